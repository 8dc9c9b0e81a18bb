package trend

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"sedoritop/internal/model"
	"sedoritop/internal/snapshot"

	"gorm.io/gorm"
)

// Analyzer 从数据库与快照存储驱动趋势分析
type Analyzer struct {
	db    *gorm.DB
	store *snapshot.Store
	log   *slog.Logger
}

// NewAnalyzer 创建趋势分析器
func NewAnalyzer(db *gorm.DB, store *snapshot.Store, log *slog.Logger) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{
		db:    db,
		store: store,
		log:   log.With(slog.String("component", "trend_analyzer")),
	}
}

// ProductTrend 单个商品的趋势
// 商品不存在时透传 gorm.ErrRecordNotFound, API 层据此返回 404。
func (a *Analyzer) ProductTrend(ctx context.Context, productID uint64, days int) (*Analysis, error) {
	var product model.Product
	if err := a.db.WithContext(ctx).First(&product, productID).Error; err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	snaps, err := a.store.ProductSince(ctx, productID, cutoff)
	if err != nil {
		return nil, err
	}

	analysis := Analyze(product, snaps, days)
	return &analysis, nil
}

// RisingProducts 窗口内天平值上升的商品, 按涨幅降序
// limit <= 0 表示不截断。
func (a *Analyzer) RisingProducts(ctx context.Context, days, limit int) ([]Analysis, error) {
	var products []model.Product
	if err := a.db.WithContext(ctx).
		Where("status = ?", model.ProductStatusActive).
		Order("row_number ASC").
		Find(&products).Error; err != nil {
		return nil, fmt.Errorf("load active products: %w", err)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	snaps, err := a.store.Since(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	byProduct := snapshot.GroupByProduct(snaps)

	var rising []Analysis
	for _, p := range products {
		analysis := Analyze(p, byProduct[p.ID], days)
		if analysis.Direction == DirectionRising {
			rising = append(rising, analysis)
		}
	}

	// rising 走向保证 BalanceChangePct 非 nil
	sort.SliceStable(rising, func(i, j int) bool {
		return *rising[i].BalanceChangePct > *rising[j].BalanceChangePct
	})
	if limit > 0 && len(rising) > limit {
		rising = rising[:limit]
	}

	a.log.Debug("rising products analyzed",
		slog.Int("candidates", len(products)),
		slog.Int("rising", len(rising)),
		slog.Int("window_days", days))

	return rising, nil
}

// PriceChangeReport 窗口内显著价格变动的汇总, 按涨跌分组
type PriceChangeReport struct {
	WindowDays   int               `json:"window_days"`
	ThresholdPct float64           `json:"threshold_pct"`
	Rising       []snapshot.Change `json:"rising"`
	Falling      []snapshot.Change `json:"falling"`
	Total        int               `json:"total"`
}

// PriceChangeReport 生成价格变动报告
func (a *Analyzer) PriceChangeReport(ctx context.Context, days int, thresholdPct float64) (*PriceChangeReport, error) {
	window := time.Duration(days) * 24 * time.Hour
	changes, err := a.store.SignificantChanges(ctx, thresholdPct, window)
	if err != nil {
		return nil, err
	}

	report := &PriceChangeReport{
		WindowDays:   days,
		ThresholdPct: thresholdPct,
		Total:        len(changes),
	}
	for _, c := range changes {
		if c.ChangePct > 0 {
			report.Rising = append(report.Rising, c)
		} else {
			report.Falling = append(report.Falling, c)
		}
	}
	return report, nil
}
