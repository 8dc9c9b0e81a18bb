// Package catalog 目录同步
//
// 把工作簿里的登记行灌进数据库, 以物理行号为键做 upsert。
// 行号一经分配不再变化, 是商品在目录与库之间对齐的唯一纽带。
package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"sedoritop/internal/model"
	"sedoritop/internal/sheet"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SyncResult 一次同步的汇总
type SyncResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// Syncer 目录同步器
type Syncer struct {
	db  *gorm.DB
	log *slog.Logger
}

// NewSyncer 创建目录同步器
func NewSyncer(db *gorm.DB, log *slog.Logger) *Syncer {
	if log == nil {
		log = slog.Default()
	}
	return &Syncer{
		db:  db,
		log: log.With(slog.String("component", "catalog_syncer")),
	}
}

// Sync 以行号为键逐行 upsert
// 单行失败只计数不中断, 目录里一行坏数据不应挡住整批。
// 已有商品只更新登记列, status 等运营字段在重复同步间保留。
func (s *Syncer) Sync(ctx context.Context, rows []sheet.Row) (*SyncResult, error) {
	result := &SyncResult{}
	for _, row := range rows {
		created, err := s.upsertRow(ctx, row)
		if err != nil {
			result.Failed++
			s.log.Warn("sync row failed",
				slog.Uint64("row_number", uint64(row.RowNumber)),
				slog.String("name", row.Name),
				slog.String("error", err.Error()))
			continue
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	s.log.Info("catalog synced",
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("failed", result.Failed))
	return result, nil
}

func (s *Syncer) upsertRow(ctx context.Context, row sheet.Row) (created bool, err error) {
	// 第 1 行是表头, 行号 0/1 只能来自坏输入
	if row.RowNumber < 2 {
		return false, fmt.Errorf("row number %d out of range", row.RowNumber)
	}

	var existing int64
	if err := s.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("row_number = ?", row.RowNumber).
		Count(&existing).Error; err != nil {
		return false, fmt.Errorf("check existing: %w", err)
	}

	product := model.Product{
		RowNumber: int(row.RowNumber),
		Category:  row.Category,
		Maker:     row.Maker,
		Name:      row.Name,
		ActiveURL: row.ActiveURL,
		SoldURL:   row.SoldURL,
		Status:    model.ProductStatusActive,
	}
	// 注意：必须显式包含 updated_at，否则 ON CONFLICT 更新时不会触发 autoUpdateTime
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "row_number"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"category", "maker", "name", "active_url", "sold_url", "updated_at",
		}),
	}).Create(&product).Error
	if err != nil {
		return false, fmt.Errorf("upsert product: %w", err)
	}

	return existing == 0, nil
}

// Products 列出调研范围内的商品 (status=active), 按行号排序
func (s *Syncer) Products(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	err := s.db.WithContext(ctx).
		Where("status = ?", model.ProductStatusActive).
		Order("row_number ASC").
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}
