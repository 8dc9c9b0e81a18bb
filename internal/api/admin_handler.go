// internal/api/admin_handler.go
// 管理 API - 手动触发调研 / 快照清理
package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"sedoritop/internal/model"
	"sedoritop/internal/pkg/metrics"
	"sedoritop/internal/research"

	"github.com/gin-gonic/gin"
)

// triggerResearch 手动触发一轮全量调研
// POST /api/v1/admin/research
// 异步执行, 返回 202; 已有调研在跑时返回 409。
func (s *Server) triggerResearch(c *gin.Context) {
	if s.runner == nil {
		internalError(c, "runner not available")
		return
	}

	if s.runner.Snapshot().Running {
		conflict(c, "research run already in progress")
		return
	}

	var products []model.Product
	if err := s.db.WithContext(c.Request.Context()).
		Where("status = ?", model.ProductStatusActive).
		Order("row_number asc").
		Find(&products).Error; err != nil {
		s.logger.Error("failed to load products", slog.String("error", err.Error()))
		internalError(c, "failed to load products")
		return
	}
	if len(products) == 0 {
		badRequest(c, "no active products to research")
		return
	}

	// 脱离请求上下文执行, 客户端断开不影响调研
	go func() {
		if _, err := s.runner.RunAs(context.Background(), "manual", products); err != nil {
			if errors.Is(err, research.ErrRunInProgress) {
				s.logger.Warn("manual research rejected, run already in progress")
				return
			}
			s.logger.Error("manual research failed", slog.String("error", err.Error()))
		}
	}()

	accepted(c, gin.H{
		"mode":  "manual",
		"total": len(products),
	})
}

// triggerCleanup 清理超过保留期的快照
// POST /api/v1/admin/cleanup?days=180
func (s *Server) triggerCleanup(c *gin.Context) {
	retention := time.Duration(0)
	if s.rescfg != nil {
		retention = s.rescfg.Retention
	}
	if days := queryInt(c, "days", 0); days > 0 {
		retention = time.Duration(days) * 24 * time.Hour
	}
	if retention <= 0 {
		badRequest(c, "retention not configured")
		return
	}

	deleted, err := s.store.CleanupOlderThan(c.Request.Context(), retention)
	if err != nil {
		s.logger.Error("snapshot cleanup failed", slog.String("error", err.Error()))
		internalError(c, "snapshot cleanup failed")
		return
	}
	metrics.SnapshotCleanupDeletedTotal.Add(float64(deleted))

	s.logger.Info("snapshot cleanup finished",
		slog.Int64("deleted", deleted),
		slog.Duration("retention", retention))

	success(c, gin.H{
		"deleted":        deleted,
		"retention_days": int(retention.Hours() / 24),
	})
}
