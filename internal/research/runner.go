package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sedoritop/internal/balance"
	"sedoritop/internal/config"
	"sedoritop/internal/market"
	"sedoritop/internal/model"
	"sedoritop/internal/pkg/metrics"
	"sedoritop/internal/snapshot"
	"sedoritop/internal/statistics"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// ErrRunInProgress 同一 Runner 上已有批次在跑
var ErrRunInProgress = errors.New("research run already in progress")

// MarketClient 市场数据来源
type MarketClient interface {
	CountActive(ctx context.Context, p market.SearchParams) (uint32, error)
	CountSold(ctx context.Context, p market.SearchParams) (uint32, error)
	SoldPrices(ctx context.Context, p market.SearchParams, max int) ([]statistics.Observation, error)
}

// FXConverter 汇率换算
type FXConverter interface {
	Convert(ctx context.Context, amount float64) (int64, error)
}

// ProductResult 单个商品的调研结果
type ProductResult struct {
	ProductID    uint64                        `json:"product_id"`
	RowNumber    int                           `json:"row_number"`
	Name         string                        `json:"name"`
	Skipped      bool                          `json:"skipped,omitempty"`
	ActiveCount  *uint32                       `json:"active_count,omitempty"`
	SoldCount    *uint32                       `json:"sold_count,omitempty"`
	Balance      *float64                      `json:"balance,omitempty"`
	Rank         balance.Rank                  `json:"rank,omitempty"`
	Report       *statistics.Report            `json:"report,omitempty"`
	ByCondition  map[string]statistics.Summary `json:"by_condition,omitempty"`
	AvgPriceJPY  *int64                        `json:"avg_price_jpy,omitempty"`
	ResearchedAt time.Time                     `json:"researched_at"`
	Err          error                         `json:"-"`
}

// Summary 一次批次的汇总
type Summary struct {
	RunID     string          `json:"run_id"`
	Mode      string          `json:"mode"`
	Processed int             `json:"processed"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Skipped   int             `json:"skipped"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`
	Results   []ProductResult `json:"results"`
}

// Progress 运行中批次的进度视图
type Progress struct {
	RunID     string    `json:"run_id"`
	Running   bool      `json:"running"`
	Total     int       `json:"total"`
	Processed int       `json:"processed"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	StartedAt time.Time `json:"started_at"`
}

// Runner 调研批处理驱动器
//
// 商品之间按 Concurrency 并行, 单商品内三路抓取再并行。
// 单个协作方失败按降级处理 (字段置空继续); 只有 URL 非法、
// 市场完全无数据或快照落库失败才把该商品记为 failed,
// 且从不中断整批。
type Runner struct {
	db      *gorm.DB
	store   *snapshot.Store
	market  MarketClient
	fx      FXConverter
	journal *Journal
	cfg     *config.ResearchConfig
	mode    string
	log     *slog.Logger

	mu       sync.Mutex
	progress Progress
}

// NewRunner 创建批处理驱动器
// fx 与 journal 可为 nil (对应功能关闭); mode 用于日志与指标分流 (batch/scheduled/manual)。
func NewRunner(db *gorm.DB, store *snapshot.Store, mc MarketClient, fx FXConverter, journal *Journal, cfg *config.ResearchConfig, mode string, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	if mode == "" {
		mode = "batch"
	}
	return &Runner{
		db:      db,
		store:   store,
		market:  mc,
		fx:      fx,
		journal: journal,
		cfg:     cfg,
		mode:    mode,
		log:     log.With(slog.String("component", "research_runner")),
	}
}

// Snapshot 返回当前进度的副本
func (r *Runner) Snapshot() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// Run 以构造时的默认模式执行一批调研
func (r *Runner) Run(ctx context.Context, products []model.Product) (*Summary, error) {
	return r.RunAs(ctx, r.mode, products)
}

// RunAs 以指定模式执行 (batch/scheduled/manual)
// 模式只影响日志与指标标签; 返回的 Summary 总是完整覆盖传入的商品,
// 唯一的整体错误是并发抢跑。
func (r *Runner) RunAs(ctx context.Context, mode string, products []model.Product) (*Summary, error) {
	runID := uuid.New().String()
	started := time.Now()
	dayKey := DayKey(started)

	r.mu.Lock()
	if r.progress.Running {
		r.mu.Unlock()
		return nil, ErrRunInProgress
	}
	r.progress = Progress{
		RunID:     runID,
		Running:   true,
		Total:     len(products),
		StartedAt: started,
	}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.progress.Running = false
		r.mu.Unlock()
	}()

	concurrency := r.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	r.log.Info("research run started",
		slog.String("run_id", runID),
		slog.String("mode", mode),
		slog.Int("products", len(products)),
		slog.Int("concurrency", concurrency))

	results := make([]ProductResult, len(products))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i := range products {
		g.Go(func() error {
			results[i] = r.researchProduct(ctx, &products[i], dayKey)
			r.note(&results[i])
			return nil
		})
	}
	_ = g.Wait()

	summary := &Summary{
		RunID:     runID,
		Mode:      mode,
		StartedAt: started,
		Duration:  time.Since(started),
		Results:   results,
	}
	for i := range results {
		summary.Processed++
		switch {
		case results[i].Skipped:
			summary.Skipped++
		case results[i].Err != nil:
			summary.Failed++
		default:
			summary.Succeeded++
		}
	}

	status := "completed"
	if ctx.Err() != nil {
		status = "canceled"
	}
	metrics.ResearchRunsTotal.WithLabelValues(mode, status).Inc()
	metrics.ResearchRunDuration.Observe(summary.Duration.Seconds())

	r.log.Info("research run finished",
		slog.String("run_id", runID),
		slog.String("status", status),
		slog.Int("processed", summary.Processed),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
		slog.Int("skipped", summary.Skipped),
		slog.Duration("duration", summary.Duration))

	return summary, nil
}

// researchProduct 单商品全流程
func (r *Runner) researchProduct(ctx context.Context, product *model.Product, dayKey string) ProductResult {
	res := ProductResult{
		ProductID: product.ID,
		RowNumber: product.RowNumber,
		Name:      product.Name,
	}

	start := time.Now()
	defer func() {
		metrics.ResearchProductDuration.Observe(time.Since(start).Seconds())
	}()

	if r.cfg.Resume {
		done, err := r.journal.IsDone(ctx, dayKey, product.ID)
		if err != nil {
			r.log.Warn("journal check failed, researching anyway",
				slog.Uint64("product_id", product.ID),
				slog.String("error", err.Error()))
		} else if done {
			res.Skipped = true
			return res
		}
	}

	activeParams, err := market.ParseSearchURL(product.ActiveURL)
	if err != nil {
		res.Err = fmt.Errorf("active url: %w", err)
		return res
	}
	soldParams, err := market.ParseSearchURL(product.SoldURL)
	if err != nil {
		res.Err = fmt.Errorf("sold url: %w", err)
		return res
	}

	// 三路并发抓取, 单路失败置空继续
	var (
		activeCount *uint32
		soldCount   *uint32
		obs         []statistics.Observation
		fetchErr    error
	)
	var fg errgroup.Group
	fg.Go(func() error {
		n, err := r.market.CountActive(ctx, activeParams)
		if err != nil {
			fetchErr = err
			r.log.Warn("active count failed",
				slog.Uint64("product_id", product.ID),
				slog.String("error", err.Error()))
			return nil
		}
		activeCount = &n
		return nil
	})
	fg.Go(func() error {
		n, err := r.market.CountSold(ctx, soldParams)
		if err != nil {
			fetchErr = err
			r.log.Warn("sold count failed",
				slog.Uint64("product_id", product.ID),
				slog.String("error", err.Error()))
			return nil
		}
		soldCount = &n
		return nil
	})
	fg.Go(func() error {
		if r.cfg.MaxPriceSamples <= 0 {
			return nil
		}
		o, err := r.market.SoldPrices(ctx, soldParams, r.cfg.MaxPriceSamples)
		if err != nil {
			fetchErr = err
			r.log.Warn("sold prices failed",
				slog.Uint64("product_id", product.ID),
				slog.String("error", err.Error()))
			return nil
		}
		obs = o
		return nil
	})
	_ = fg.Wait()

	// 三路全部落空说明市场侧整体不可用, 不落全空快照污染历史
	if activeCount == nil && soldCount == nil && len(obs) == 0 && fetchErr != nil {
		res.Err = fmt.Errorf("market unavailable: %w", fetchErr)
		return res
	}

	res.ActiveCount = activeCount
	res.SoldCount = soldCount
	res.Balance = balance.Calculate(soldCount, activeCount)
	res.Rank = balance.Classify(res.Balance)

	m := snapshot.Measurement{
		ActiveCount: activeCount,
		SoldCount:   soldCount,
		Balance:     res.Balance,
		RecordedAt:  time.Now().UTC(),
	}

	if report, ok := statistics.Analyze(statistics.Prices(obs)); ok {
		res.Report = &report
		res.ByCondition = statistics.SummarizeByCondition(obs)
		m.AvgPrice = &report.Summary.Avg
		m.MedianPrice = &report.Summary.Median
		m.MinPrice = &report.Summary.Min
		m.MaxPrice = &report.Summary.Max
		m.PriceStddev = &report.Summary.Stddev
		m.SampleCount = uint32(report.Summary.Count)

		if r.fx != nil {
			jpy, err := r.fx.Convert(ctx, report.Summary.Avg)
			if err != nil {
				r.log.Warn("fx conversion failed",
					slog.Uint64("product_id", product.ID),
					slog.String("error", err.Error()))
			} else {
				m.AvgPriceJPY = &jpy
				res.AvgPriceJPY = &jpy
			}
		}
	}

	snap, err := r.store.Record(ctx, product.ID, m)
	if err != nil {
		metrics.SnapshotWritesTotal.WithLabelValues("error").Inc()
		res.Err = fmt.Errorf("record snapshot: %w", err)
		return res
	}
	metrics.SnapshotWritesTotal.WithLabelValues("ok").Inc()
	res.ResearchedAt = snap.RecordedAt

	if err := r.db.WithContext(ctx).Model(&model.Product{}).
		Where("id = ?", product.ID).
		Update("last_researched_at", snap.RecordedAt).Error; err != nil {
		r.log.Warn("update last_researched_at failed",
			slog.Uint64("product_id", product.ID),
			slog.String("error", err.Error()))
	}

	if err := r.journal.MarkDone(ctx, dayKey, product.ID); err != nil {
		r.log.Warn("journal mark failed",
			slog.Uint64("product_id", product.ID),
			slog.String("error", err.Error()))
	}

	return res
}

// note 进度与指标记账
func (r *Runner) note(res *ProductResult) {
	r.mu.Lock()
	r.progress.Processed++
	switch {
	case res.Skipped:
		r.progress.Skipped++
	case res.Err != nil:
		r.progress.Failed++
	default:
		r.progress.Succeeded++
	}
	r.mu.Unlock()

	switch {
	case res.Skipped:
		metrics.ResearchProductsTotal.WithLabelValues("skipped").Inc()
	case res.Err != nil:
		metrics.ResearchProductsTotal.WithLabelValues("failed").Inc()
		r.log.Warn("product research failed",
			slog.Uint64("product_id", res.ProductID),
			slog.String("name", res.Name),
			slog.String("error", res.Err.Error()))
	default:
		metrics.ResearchProductsTotal.WithLabelValues("success").Inc()
		r.log.Debug("product researched",
			slog.Uint64("product_id", res.ProductID),
			slog.String("name", res.Name),
			slog.String("rank", string(res.Rank)))
	}
}
