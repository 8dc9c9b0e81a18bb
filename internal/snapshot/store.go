package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sedoritop/internal/model"

	"gorm.io/gorm"
)

// ErrUnknownProduct 商品不存在
// Record 的前置条件校验: 快照必须归属一个已存在的商品。
var ErrUnknownProduct = errors.New("unknown product")

// Measurement 一次调研的测量输入
// 指针字段 nil 表示该项不可用 (上游失败或无样本), 按原样落库。
type Measurement struct {
	ActiveCount *uint32
	SoldCount   *uint32
	Balance     *float64
	AvgPrice    *float64
	MedianPrice *float64
	MinPrice    *float64
	MaxPrice    *float64
	PriceStddev *float64
	SampleCount uint32
	AvgPriceJPY *int64
	RecordedAt  time.Time // 零值取当前 UTC 时间
}

// Store 快照存储 (append-only)
// 快照只插入, 从不更新; 清理是唯一的删除路径。
type Store struct {
	db  *gorm.DB
	log *slog.Logger
}

// NewStore 创建快照存储
func NewStore(db *gorm.DB, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		db:  db,
		log: log.With(slog.String("component", "snapshot_store")),
	}
}

// Record 追加一条快照
// 商品不存在返回 ErrUnknownProduct; 合法商品的插入总是成功的 (单条原子插入)。
func (s *Store) Record(ctx context.Context, productID uint64, m Measurement) (*model.Snapshot, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ?", productID).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check product: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: id=%d", ErrUnknownProduct, productID)
	}

	recordedAt := m.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	snap := &model.Snapshot{
		ProductID:   productID,
		ActiveCount: m.ActiveCount,
		SoldCount:   m.SoldCount,
		Balance:     m.Balance,
		AvgPrice:    m.AvgPrice,
		MedianPrice: m.MedianPrice,
		MinPrice:    m.MinPrice,
		MaxPrice:    m.MaxPrice,
		PriceStddev: m.PriceStddev,
		SampleCount: m.SampleCount,
		AvgPriceJPY: m.AvgPriceJPY,
		RecordedAt:  recordedAt,
	}

	if err := s.db.WithContext(ctx).Create(snap).Error; err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}

	s.log.Debug("snapshot recorded",
		slog.Uint64("product_id", productID),
		slog.Time("recorded_at", recordedAt),
		slog.Int("sample_count", int(m.SampleCount)))

	return snap, nil
}

// Since 返回 recorded_at >= t 的全部快照, 按时间升序
func (s *Store) Since(ctx context.Context, t time.Time) ([]model.Snapshot, error) {
	var snaps []model.Snapshot
	err := s.db.WithContext(ctx).
		Where("recorded_at >= ?", t).
		Order("recorded_at ASC").
		Find(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("query snapshots since %s: %w", t.Format(time.RFC3339), err)
	}
	return snaps, nil
}

// ProductSince 返回单个商品在窗口内的快照, 按时间升序
func (s *Store) ProductSince(ctx context.Context, productID uint64, t time.Time) ([]model.Snapshot, error) {
	var snaps []model.Snapshot
	err := s.db.WithContext(ctx).
		Where("product_id = ? AND recorded_at >= ?", productID, t).
		Order("recorded_at ASC").
		Find(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("query product %d snapshots: %w", productID, err)
	}
	return snaps, nil
}

// Latest 返回商品最新的一条快照
func (s *Store) Latest(ctx context.Context, productID uint64) (*model.Snapshot, error) {
	var snap model.Snapshot
	err := s.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("recorded_at DESC").
		First(&snap).Error
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// CleanupOlderThan 删除超过保留期的快照, 返回删除行数
// 驻留模式的清扫循环定期调用, 保证 append-only 日志有界。
func (s *Store) CleanupOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)

	result := s.db.WithContext(ctx).
		Where("recorded_at < ?", cutoff).
		Delete(&model.Snapshot{})
	if result.Error != nil {
		return 0, fmt.Errorf("cleanup snapshots: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.log.Info("cleaned up old snapshots",
			slog.Int64("deleted_rows", result.RowsAffected),
			slog.Time("cutoff", cutoff))
	}

	return result.RowsAffected, nil
}
