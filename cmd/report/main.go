// cmd/report/main.go
// 报表工具 - 从数据库渲染文本报表
// 模式: trend (单品趋势) / rising (上升榜) / price-changes (价格变动) / product (商品档案)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sedoritop/internal/balance"
	"sedoritop/internal/config"
	"sedoritop/internal/model"
	"sedoritop/internal/pkg/logger"
	"sedoritop/internal/snapshot"
	"sedoritop/internal/trend"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func main() {
	// 加载 .env 文件 (如果存在)
	_ = godotenv.Load()

	// 命令行参数
	configFile := flag.String("config", "", "config file path")
	mode := flag.String("mode", "", "report mode: trend | rising | price-changes | product")
	productID := flag.Uint64("id", 0, "product id (trend / product modes)")
	daysFlag := flag.Int("days", 0, "analysis window in days (default: config trend window)")
	limit := flag.Int("limit", 10, "max products in rising mode")
	thresholdFlag := flag.Float64("threshold", 0, "price change threshold percent (default: config threshold)")
	flag.Parse()

	switch *mode {
	case "trend", "product":
		if *productID == 0 {
			fmt.Fprintf(os.Stderr, "mode %q requires -id\n\n", *mode)
			usage()
			os.Exit(1)
		}
	case "rising", "price-changes":
	default:
		if *mode != "" {
			fmt.Fprintf(os.Stderr, "unknown mode %q\n\n", *mode)
		}
		usage()
		os.Exit(1)
	}

	// 加载配置
	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 报表直接打到 stdout, 日志只留告警
	slogger := logger.NewDefault("warn")
	slog.SetDefault(slogger)

	days := *daysFlag
	if days <= 0 {
		days = cfg.Research.TrendWindowDays
	}
	if days <= 0 {
		days = 30
	}
	threshold := *thresholdFlag
	if threshold <= 0 {
		threshold = cfg.Research.ChangeThreshold
	}
	if threshold <= 0 {
		threshold = 10
	}

	// 初始化数据库
	db, err := model.InitDB(&cfg.MySQL, slogger, model.DBOptions{
		MaxIdleConns:    2,
		MaxOpenConns:    5,
		ConnMaxLifetime: time.Hour,
		LogLevel:        "warn",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect database: %v\n", err)
		os.Exit(1)
	}

	store := snapshot.NewStore(db, slogger)
	trends := trend.NewAnalyzer(db, store, slogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "trend":
		err = runTrend(ctx, trends, *productID, days)
	case "rising":
		err = runRising(ctx, trends, days, *limit)
	case "price-changes":
		err = runPriceChanges(ctx, trends, days, threshold)
	case "product":
		err = runProduct(ctx, db, store, trends, *productID, days)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fmt.Fprintf(os.Stderr, "product %d not found\n", *productID)
		} else {
			fmt.Fprintf(os.Stderr, "report failed: %v\n", err)
		}
		os.Exit(1)
	}
}

func runTrend(ctx context.Context, trends *trend.Analyzer, id uint64, days int) error {
	analysis, err := trends.ProductTrend(ctx, id, days)
	if err != nil {
		return err
	}
	trend.RenderAnalysis(os.Stdout, *analysis)
	return nil
}

func runRising(ctx context.Context, trends *trend.Analyzer, days, limit int) error {
	analyses, err := trends.RisingProducts(ctx, days, limit)
	if err != nil {
		return err
	}
	fmt.Printf("Rising products over %d days\n", days)
	trend.RenderRising(os.Stdout, analyses)
	return nil
}

func runPriceChanges(ctx context.Context, trends *trend.Analyzer, days int, threshold float64) error {
	report, err := trends.PriceChangeReport(ctx, days, threshold)
	if err != nil {
		return err
	}
	trend.RenderPriceChanges(os.Stdout, report)
	return nil
}

// runProduct 商品档案: 登记信息 + 最新快照 + 趋势
func runProduct(ctx context.Context, db *gorm.DB, store *snapshot.Store, trends *trend.Analyzer, id uint64, days int) error {
	var product model.Product
	if err := db.WithContext(ctx).First(&product, id).Error; err != nil {
		return err
	}

	latest, err := store.Latest(ctx, id)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	fmt.Printf("Product #%d (row %d)\n", product.ID, product.RowNumber)
	fmt.Println(strings.Repeat("-", 56))
	fmt.Printf("  name:     %s\n", product.Name)
	if product.Category != "" {
		fmt.Printf("  category: %s\n", product.Category)
	}
	if product.Maker != "" {
		fmt.Printf("  maker:    %s\n", product.Maker)
	}
	fmt.Printf("  status:   %s  weight: %.1f\n", product.Status, product.Weight)
	if product.LastResearchedAt != nil {
		fmt.Printf("  last researched: %s\n", product.LastResearchedAt.Format("2006-01-02 15:04"))
	} else {
		fmt.Println("  last researched: never")
	}

	if latest == nil {
		fmt.Println("\n(no snapshots yet)")
		return nil
	}

	fmt.Printf("\nLatest snapshot (%s)\n", latest.RecordedAt.Format("2006-01-02 15:04"))
	fmt.Printf("  active=%s sold=%s balance=%s rank=%s\n",
		fmtCount(latest.ActiveCount), fmtCount(latest.SoldCount),
		fmtFloat(latest.Balance, 2), balance.Classify(latest.Balance))
	if latest.HasPrice() {
		fmt.Printf("  avg=%s median=%s range=%s-%s stddev=%s samples=%d\n",
			fmtFloat(latest.AvgPrice, 2), fmtFloat(latest.MedianPrice, 2),
			fmtFloat(latest.MinPrice, 0), fmtFloat(latest.MaxPrice, 0),
			fmtFloat(latest.PriceStddev, 2), latest.SampleCount)
	}
	if latest.AvgPriceJPY != nil {
		fmt.Printf("  avg (JPY): %d\n", *latest.AvgPriceJPY)
	}

	analysis, err := trends.ProductTrend(ctx, id, days)
	if err != nil {
		return err
	}
	fmt.Println()
	trend.RenderAnalysis(os.Stdout, *analysis)
	return nil
}

func fmtCount(v *uint32) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func fmtFloat(v *float64, prec int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.*f", prec, *v)
}

func usage() {
	fmt.Println("Usage: report -mode <trend|rising|price-changes|product> [options]")
	fmt.Println()
	fmt.Println("Modes:")
	fmt.Println("  trend          single product trend summary (-id required)")
	fmt.Println("  rising         products with rising demand over the window")
	fmt.Println("  price-changes  products whose average price moved past the threshold")
	fmt.Println("  product        product profile: registry row, latest snapshot, trend (-id required)")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -config     config file path")
	fmt.Println("  -id         product id")
	fmt.Println("  -days       analysis window in days (default: config trend window)")
	fmt.Println("  -limit      max products in rising mode (default: 10)")
	fmt.Println("  -threshold  price change threshold percent (default: config threshold)")
}

// loadConfig 加载配置
func loadConfig(configFile string) (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	// 尝试默认路径
	for _, path := range []string{"configs/config.json", "config.json", "/etc/sedoritop/config.json"} {
		if _, err := os.Stat(path); err == nil {
			return config.Load(path)
		}
	}
	// 使用默认配置 (环境变量覆盖仍然生效)
	return config.Load("")
}
