package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sedoritop/internal/config"
	"sedoritop/internal/model"
	"sedoritop/internal/pkg/metrics"
	"sedoritop/internal/snapshot"

	"gorm.io/gorm"
)

const (
	// maxSleepDuration 调度循环单次休眠上限
	// 避免排期表被外部改动后长时间睡过头
	maxSleepDuration = 5 * time.Minute

	// refreshInterval 商品列表与排期表的对账间隔
	refreshInterval = 30 * time.Minute
)

// Scheduler 驻留调度器
// 按商品权重推算下次调研时间, 精确休眠到最近的排期,
// 到期后成批交给 Runner。排期表在 Redis ZSET 中, 重启不丢。
type Scheduler struct {
	db     *gorm.DB
	store  *snapshot.Store
	runner *Runner
	sched  *Schedule
	cfg    *config.ResearchConfig
	log    *slog.Logger

	mu      sync.RWMutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewScheduler 创建调度器
func NewScheduler(db *gorm.DB, store *snapshot.Store, runner *Runner, sched *Schedule, cfg *config.ResearchConfig, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		db:     db,
		store:  store,
		runner: runner,
		sched:  sched,
		cfg:    cfg,
		log:    log.With(slog.String("component", "research_scheduler")),
		stopCh: make(chan struct{}),
	}
}

// Start 启动调度器
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	// 初始化排期 (从 Redis 恢复或按库重建)
	if err := s.Seed(ctx); err != nil {
		return fmt.Errorf("seed schedule: %w", err)
	}

	s.wg.Add(1)
	go s.scheduleLoop(ctx)

	s.wg.Add(1)
	go s.refreshLoop(ctx)

	// 快照保留清理
	if s.cfg.Retention > 0 {
		s.wg.Add(1)
		go s.cleanupLoop(ctx)
	}

	return nil
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
}

// IsRunning 检查调度器是否运行中
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Seed 初始化所有活跃商品的排期
// 排期表非空时跳过 (服务重启后 Redis 里的排期仍在)。
func (s *Scheduler) Seed(ctx context.Context) error {
	size, err := s.sched.Size(ctx)
	if err != nil {
		return fmt.Errorf("schedule size: %w", err)
	}
	if size > 0 {
		metrics.ScheduleSizeProducts.Set(float64(size))
		s.log.Info("schedule restored from redis", slog.Int64("products", size))
		return nil
	}

	products, err := s.activeProducts(ctx)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		s.log.Info("no active products to schedule")
		return nil
	}

	now := time.Now()
	immediate := 0
	deferred := 0

	entries := make(map[uint64]time.Time, len(products))
	for i, p := range products {
		var next time.Time
		if p.LastResearchedAt != nil {
			next = p.LastResearchedAt.Add(s.cfg.CalculateInterval(p.Weight))
			// 到期时间已过的分散到最近一段时间, 避免启动瞬间挤在一起
			if next.Before(now) {
				next = now.Add(time.Duration(i) * 10 * time.Second)
				immediate++
			} else {
				deferred++
			}
		} else {
			// 没调研过的立即排, 同样分散启动
			next = now.Add(time.Duration(i) * 10 * time.Second)
			immediate++
		}
		entries[p.ID] = next
	}

	if err := s.sched.SetBatch(ctx, entries); err != nil {
		return fmt.Errorf("seed batch: %w", err)
	}

	metrics.ScheduleSizeProducts.Set(float64(len(entries)))
	s.log.Info("schedule seeded from database",
		slog.Int("products", len(products)),
		slog.Int("immediate", immediate),
		slog.Int("deferred", deferred))

	return nil
}

// scheduleLoop 调度主循环 (精确休眠到最近排期)
func (s *Scheduler) scheduleLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		next, exists, err := s.sched.Next(ctx)
		if err != nil {
			s.log.Error("failed to get next schedule time",
				slog.String("error", err.Error()))
			time.Sleep(30 * time.Second)
			continue
		}

		// 排期表空, 等一会儿再看
		if !exists {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-time.After(maxSleepDuration):
				continue
			}
		}

		sleep := time.Until(next)

		// 已到期, 立即处理
		if sleep <= 0 {
			s.runDue(ctx)
			continue
		}

		if sleep > maxSleepDuration {
			sleep = maxSleepDuration
		}

		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-time.After(sleep):
			s.runDue(ctx)
		}
	}
}

// runDue 调研所有到期的商品
//
// 先重排下次时间再执行: 进程在调研途中挂掉时排期仍然有效,
// 代价只是那一轮结果等到下个周期补上, 不会重复排期堆积。
func (s *Scheduler) runDue(ctx context.Context) {
	ids, err := s.sched.Due(ctx)
	if err != nil {
		s.log.Error("failed to get due products",
			slog.String("error", err.Error()))
		return
	}
	if len(ids) == 0 {
		return
	}

	metrics.ScheduleDueProducts.Set(float64(len(ids)))
	defer metrics.ScheduleDueProducts.Set(0)

	var products []model.Product
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		s.log.Error("failed to load due products",
			slog.String("error", err.Error()))
		return
	}

	byID := make(map[uint64]*model.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	now := time.Now()
	runnable := make([]model.Product, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		// 已删除或停用的商品移出排期
		if !ok || p.Status != model.ProductStatusActive {
			_ = s.sched.Remove(ctx, id)
			continue
		}

		if err := s.sched.Set(ctx, id, now.Add(s.cfg.CalculateInterval(p.Weight))); err != nil {
			s.log.Warn("failed to reschedule product",
				slog.Uint64("product_id", id),
				slog.String("error", err.Error()))
		}
		runnable = append(runnable, *p)
	}

	if len(runnable) == 0 {
		return
	}

	summary, err := s.runner.Run(ctx, runnable)
	if err != nil {
		if errors.Is(err, ErrRunInProgress) {
			// 手动触发的批次还在跑, 稍后重试这批到期商品
			for _, p := range runnable {
				_ = s.sched.Set(ctx, p.ID, now.Add(time.Minute))
			}
			s.log.Warn("runner busy, due products deferred",
				slog.Int("products", len(runnable)))
			return
		}
		s.log.Error("scheduled run failed", slog.String("error", err.Error()))
		return
	}

	s.log.Info("due products researched",
		slog.String("run_id", summary.RunID),
		slog.Int("processed", summary.Processed),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
		slog.Int("skipped", summary.Skipped))

	if size, err := s.sched.Size(ctx); err == nil {
		metrics.ScheduleSizeProducts.Set(float64(size))
	}
}

// refreshLoop 定期对账商品列表与排期表
func (s *Scheduler) refreshLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.RefreshSchedule(ctx); err != nil {
				s.log.Warn("failed to refresh schedule",
					slog.String("error", err.Error()))
			} else if size, err := s.sched.Size(ctx); err == nil {
				metrics.ScheduleSizeProducts.Set(float64(size))
				s.log.Debug("schedule refreshed", slog.Int64("products", size))
			}
		}
	}
}

// RefreshSchedule 把新增的活跃商品排进来, 把失效的移出去
// 目录同步 (CLI 或 API) 加的新商品靠这里进入驻留调度。
func (s *Scheduler) RefreshSchedule(ctx context.Context) error {
	products, err := s.activeProducts(ctx)
	if err != nil {
		return err
	}

	activeSet := make(map[uint64]bool, len(products))
	for _, p := range products {
		activeSet[p.ID] = true

		_, exists, _ := s.sched.At(ctx, p.ID)
		if !exists {
			_ = s.sched.Set(ctx, p.ID, time.Now())
		}
	}

	all, err := s.sched.All(ctx)
	if err != nil {
		return err
	}
	for id := range all {
		if !activeSet[id] {
			_ = s.sched.Remove(ctx, id)
		}
	}

	return nil
}

// cleanupLoop 定期清理超出保留期的快照
func (s *Scheduler) cleanupLoop(ctx context.Context) {
	defer s.wg.Done()

	interval := s.cfg.CleanupInterval
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			deleted, err := s.store.CleanupOlderThan(ctx, s.cfg.Retention)
			if err != nil {
				s.log.Error("snapshot cleanup failed",
					slog.String("error", err.Error()))
				continue
			}
			metrics.SnapshotCleanupDeletedTotal.Add(float64(deleted))
			if deleted > 0 {
				s.log.Info("old snapshots cleaned up",
					slog.Int64("deleted", deleted),
					slog.Duration("retention", s.cfg.Retention))
			}
		}
	}
}

// activeProducts 取全部活跃商品
func (s *Scheduler) activeProducts(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	err := s.db.WithContext(ctx).
		Where("status = ?", model.ProductStatusActive).
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("load active products: %w", err)
	}
	return products, nil
}
