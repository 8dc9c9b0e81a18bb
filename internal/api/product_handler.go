// internal/api/product_handler.go
// 商品查询 API
package api

import (
	"errors"
	"log/slog"

	"sedoritop/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	defaultSnapshotDays = 30  // 快照历史默认窗口 (天)
	maxWindowDays       = 365 // 查询窗口上限
)

// listProducts 获取商品列表
// GET /api/v1/products?status=active
func (s *Server) listProducts(c *gin.Context) {
	var products []model.Product

	query := s.db.WithContext(c.Request.Context()).Order("row_number asc")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Find(&products).Error; err != nil {
		s.logger.Error("failed to list products", slog.String("error", err.Error()))
		internalError(c, "failed to list products")
		return
	}

	success(c, gin.H{
		"total":    len(products),
		"products": products,
	})
}

// getProduct 获取单个商品详情 (含最新快照)
// GET /api/v1/products/:id
func (s *Server) getProduct(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		badRequest(c, "invalid product ID")
		return
	}

	ctx := c.Request.Context()

	var product model.Product
	if err := s.db.WithContext(ctx).First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			notFound(c, "product not found")
			return
		}
		s.logger.Error("failed to get product",
			slog.Uint64("product_id", id),
			slog.String("error", err.Error()))
		internalError(c, "failed to get product")
		return
	}

	// 最新快照可能不存在 (尚未调研过)
	var latest *model.Snapshot
	snap, err := s.store.Latest(ctx, id)
	if err == nil {
		latest = snap
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("failed to load latest snapshot",
			slog.Uint64("product_id", id),
			slog.String("error", err.Error()))
		internalError(c, "failed to load latest snapshot")
		return
	}

	success(c, gin.H{
		"product":         product,
		"latest_snapshot": latest,
	})
}

// getProductSnapshots 获取商品的快照历史
// GET /api/v1/products/:id/snapshots?days=30
func (s *Server) getProductSnapshots(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		badRequest(c, "invalid product ID")
		return
	}

	days := queryInt(c, "days", defaultSnapshotDays)
	if days < 1 {
		days = 1
	}
	if days > maxWindowDays {
		days = maxWindowDays
	}

	ctx := c.Request.Context()

	var product model.Product
	if err := s.db.WithContext(ctx).First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			notFound(c, "product not found")
			return
		}
		internalError(c, "failed to get product")
		return
	}

	snaps, err := s.store.ProductSince(ctx, id, daysAgo(days))
	if err != nil {
		s.logger.Error("failed to load snapshots",
			slog.Uint64("product_id", id),
			slog.String("error", err.Error()))
		internalError(c, "failed to load snapshots")
		return
	}

	success(c, gin.H{
		"product_id": id,
		"days":       days,
		"count":      len(snaps),
		"snapshots":  snaps,
	})
}

// getProductTrend 获取商品趋势分析
// GET /api/v1/products/:id/trend?days=30
func (s *Server) getProductTrend(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		badRequest(c, "invalid product ID")
		return
	}

	days := queryInt(c, "days", s.trendWindowDays())
	if days < 1 {
		days = 1
	}
	if days > maxWindowDays {
		days = maxWindowDays
	}

	analysis, err := s.trends.ProductTrend(c.Request.Context(), id, days)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			notFound(c, "product not found")
			return
		}
		s.logger.Error("failed to analyze trend",
			slog.Uint64("product_id", id),
			slog.String("error", err.Error()))
		internalError(c, "failed to analyze trend")
		return
	}

	success(c, analysis)
}

// trendWindowDays 趋势窗口默认值
func (s *Server) trendWindowDays() int {
	if s.rescfg != nil && s.rescfg.TrendWindowDays > 0 {
		return s.rescfg.TrendWindowDays
	}
	return defaultSnapshotDays
}
