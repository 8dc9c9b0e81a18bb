// cmd/research/main.go
// 一次性批量调研 - 主入口
// 流程: 同步目录 → 抓取市场数据 → 计算指标 → 落快照 → 写回工作簿
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"sedoritop/internal/catalog"
	"sedoritop/internal/config"
	"sedoritop/internal/fx"
	"sedoritop/internal/market"
	"sedoritop/internal/model"
	"sedoritop/internal/pkg/logger"
	"sedoritop/internal/pkg/ratelimit"
	"sedoritop/internal/research"
	"sedoritop/internal/sheet"
	"sedoritop/internal/snapshot"
	"sedoritop/internal/trend"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// 加载 .env 文件 (如果存在)
	_ = godotenv.Load()

	// 命令行参数
	configFile := flag.String("config", "", "config file path")
	sheetPath := flag.String("sheet", "", "catalog workbook path (overrides config)")
	resume := flag.Bool("resume", false, "skip products already researched today")
	dryRun := flag.Bool("dry-run", false, "sync catalog and list products without researching")
	showStats := flag.Bool("stats", false, "print the full price distribution per product")
	flag.Parse()

	// 加载配置
	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *resume {
		cfg.Research.Resume = true
	}

	workbook := cfg.Sheet.Path
	if *sheetPath != "" {
		workbook = *sheetPath
	}
	if workbook == "" {
		fmt.Fprintln(os.Stderr, "no catalog workbook configured (set sheet.path or pass -sheet)")
		os.Exit(1)
	}

	// 初始化日志
	slogger := logger.New(logger.Config{Level: cfg.App.LogLevel})
	slog.SetDefault(slogger)

	// 初始化数据库
	db, err := model.InitDB(&cfg.MySQL, slogger, model.DBOptions{
		MaxIdleConns:    5,
		MaxOpenConns:    20,
		ConnMaxLifetime: time.Hour,
		LogLevel:        "warn",
	})
	if err != nil {
		slogger.Error("failed to connect database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 自动迁移 (可选, 由环境变量控制)
	if os.Getenv("AUTO_MIGRATE") == "true" {
		if err := model.AutoMigrate(db); err != nil {
			slogger.Error("auto migrate failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		slogger.Info("database migrated")
	}

	// Redis 是可选依赖: 连不上就退化运行
	// (没有断点日志、汇率缓存和跨进程限流预算, 批次本身照常跑)
	rdb, err := initRedis(cfg.Redis)
	if err != nil {
		slogger.Warn("Redis unavailable, running without journal / fx cache / shared rate budget",
			slog.String("error", err.Error()))
		rdb = nil
	} else {
		defer rdb.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 同步目录: 工作簿是商品登记的唯一事实来源
	rows, err := sheet.ReadCatalog(workbook, cfg.Sheet.SheetName)
	if err != nil {
		slogger.Error("read catalog failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	syncer := catalog.NewSyncer(db, slogger)
	syncResult, err := syncer.Sync(ctx, rows)
	if err != nil {
		slogger.Error("catalog sync failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	fmt.Printf("Catalog synced from %s: %d created, %d updated, %d failed\n",
		workbook, syncResult.Created, syncResult.Updated, syncResult.Failed)

	products, err := syncer.Products(ctx)
	if err != nil {
		slogger.Error("list products failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if len(products) == 0 {
		fmt.Println("No active products to research.")
		return
	}

	if *dryRun {
		fmt.Printf("\n[DRY RUN] %d products would be researched:\n", len(products))
		for _, p := range products {
			fmt.Printf("  row %-4d %-12s %s\n", p.RowNumber, p.Category, p.Name)
		}
		return
	}

	// 组装调研流水线
	var bucket *ratelimit.Bucket
	if rdb != nil {
		bucket = ratelimit.NewBucket(rdb)
	}
	mc := market.NewClient(&cfg.Market, bucket, slogger)
	fxc := fx.NewConverter(&cfg.FX, rdb, slogger)
	journal := research.NewJournal(rdb, cfg.Research.JournalTTL)
	store := snapshot.NewStore(db, slogger)
	runner := research.NewRunner(db, store, mc, fxc, journal, &cfg.Research, "batch", slogger)

	summary, err := runner.Run(ctx, products)
	if err != nil {
		slogger.Error("research run failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	fmt.Println()
	for _, res := range summary.Results {
		switch {
		case res.Skipped:
			fmt.Printf("[SKIP] row %-4d %s (already researched today)\n", res.RowNumber, res.Name)
		case res.Err != nil:
			fmt.Printf("[FAIL] row %-4d %s: %v\n", res.RowNumber, res.Name, res.Err)
		default:
			fmt.Printf("[OK]   row %-4d %-32s active=%s sold=%s balance=%s rank=%s\n",
				res.RowNumber, res.Name,
				fmtCount(res.ActiveCount), fmtCount(res.SoldCount),
				fmtBalance(res.Balance), res.Rank)
			if *showStats && res.Report != nil {
				trend.RenderReport(os.Stdout, *res.Report)
				trend.RenderConditionBreakdown(os.Stdout, res.ByCondition)
			}
		}
	}

	// 写回工作簿: 只写成功的行, 失败/跳过的行保留上一轮的旧值
	if cfg.Sheet.WriteBack {
		var results []sheet.ResultRow
		for _, res := range summary.Results {
			if res.Skipped || res.Err != nil {
				continue
			}
			rr := sheet.ResultRow{
				RowNumber:    uint32(res.RowNumber),
				ActiveCount:  res.ActiveCount,
				SoldCount:    res.SoldCount,
				Balance:      res.Balance,
				Rank:         string(res.Rank),
				AvgPriceJPY:  res.AvgPriceJPY,
				ResearchedAt: res.ResearchedAt,
			}
			if res.Report != nil {
				rr.AvgPriceUSD = &res.Report.Summary.Avg
			}
			results = append(results, rr)
		}
		if len(results) > 0 {
			if err := sheet.WriteResults(workbook, cfg.Sheet.SheetName, results); err != nil {
				slogger.Error("write back failed",
					slog.String("path", workbook),
					slog.String("error", err.Error()))
				os.Exit(1)
			}
			fmt.Printf("\nWrote %d result rows back to %s\n", len(results), workbook)
		}
	}

	fmt.Printf("\nRun %s finished in %s: %d processed, %d succeeded, %d failed, %d skipped\n",
		summary.RunID, summary.Duration.Round(time.Second),
		summary.Processed, summary.Succeeded, summary.Failed, summary.Skipped)
	if ctx.Err() != nil {
		fmt.Println("(interrupted before completion, rerun with -resume to pick up the rest)")
	}

	// 个别商品失败只计数; 全军覆没说明市场侧整体不可用, 按失败退出
	if summary.Processed > 0 && summary.Succeeded == 0 && summary.Failed > 0 {
		os.Exit(1)
	}
}

func fmtCount(v *uint32) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatUint(uint64(*v), 10)
}

func fmtBalance(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
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

// initRedis 初始化 Redis 连接
func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           0,
		PoolSize:     5,
		MinIdleConns: 1,
		DialTimeout:  dialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return rdb, nil
}
