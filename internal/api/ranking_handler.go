// internal/api/ranking_handler.go
// 排行榜 API - Redis 读穿缓存
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sedoritop/internal/balance"
	"sedoritop/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	defaultRankingLimit = 20
	maxRankingLimit     = 100
	rankingsCacheTTL    = 5 * time.Minute
)

// TopRankings 排行榜响应
type TopRankings struct {
	Limit       int             `json:"limit"`
	Total       int             `json:"total"`
	GeneratedAt time.Time       `json:"generated_at"`
	FromCache   bool            `json:"from_cache"`
	Entries     []balance.Entry `json:"entries"`
}

// getTopRankings 获取 Balance 排行榜
// GET /api/v1/rankings/top?limit=20
func (s *Server) getTopRankings(c *gin.Context) {
	limit := queryInt(c, "limit", defaultRankingLimit)
	if limit < 1 {
		limit = 1
	}
	if limit > maxRankingLimit {
		limit = maxRankingLimit
	}

	ctx := c.Request.Context()
	cacheKey := fmt.Sprintf("rankings:top:%d", limit)

	// 先查缓存
	if s.rdb != nil {
		if data, err := s.rdb.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached TopRankings
			if err := json.Unmarshal(data, &cached); err == nil {
				cached.FromCache = true
				success(c, cached)
				return
			}
		}
	}

	entries, err := s.buildEntries(ctx)
	if err != nil {
		s.logger.Error("failed to build rankings", slog.String("error", err.Error()))
		internalError(c, "failed to build rankings")
		return
	}

	top := balance.TopProducts(entries, limit)
	resp := TopRankings{
		Limit:       limit,
		Total:       len(top),
		GeneratedAt: time.Now().UTC(),
		Entries:     top,
	}

	// 写缓存失败只记日志
	if s.rdb != nil {
		if data, err := json.Marshal(resp); err == nil {
			if err := s.rdb.Set(ctx, cacheKey, data, rankingsCacheTTL).Err(); err != nil {
				s.logger.Warn("failed to cache rankings", slog.String("error", err.Error()))
			}
		}
	}

	success(c, resp)
}

// getRecommended 获取推荐商品 (good / excellent 档)
// GET /api/v1/rankings/recommended
func (s *Server) getRecommended(c *gin.Context) {
	entries, err := s.buildEntries(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to build recommendations", slog.String("error", err.Error()))
		internalError(c, "failed to build recommendations")
		return
	}

	recommended := balance.RecommendedProducts(entries)
	success(c, gin.H{
		"total":   len(recommended),
		"entries": recommended,
	})
}

// getGroupStats 按类目或厂商分组的平衡指数统计
// GET /api/v1/rankings/groups?by=category|maker
func (s *Server) getGroupStats(c *gin.Context) {
	by := c.DefaultQuery("by", "category")
	if by != "category" && by != "maker" {
		badRequest(c, "by must be category or maker")
		return
	}

	entries, err := s.buildEntries(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to build group stats", slog.String("error", err.Error()))
		internalError(c, "failed to build group stats")
		return
	}

	var groups []balance.GroupStats
	if by == "maker" {
		groups = balance.MakerStats(entries)
	} else {
		groups = balance.CategoryStats(entries)
	}

	success(c, gin.H{
		"by":     by,
		"total":  len(groups),
		"groups": groups,
	})
}

// buildEntries 按表格行序为每个在售商品取最新快照并评级
// 尚无快照的商品 Balance 为 nil, 评级垫底。
func (s *Server) buildEntries(ctx context.Context) ([]balance.Entry, error) {
	var products []model.Product
	if err := s.db.WithContext(ctx).
		Where("status = ?", model.ProductStatusActive).
		Order("row_number asc").
		Find(&products).Error; err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	entries := make([]balance.Entry, 0, len(products))
	for _, p := range products {
		entry := balance.Entry{Product: p, Rank: balance.RankPoor}
		snap, err := s.store.Latest(ctx, p.ID)
		switch {
		case err == nil:
			entry.Balance = snap.Balance
			entry.Rank = balance.Classify(snap.Balance)
		case errors.Is(err, gorm.ErrRecordNotFound):
			// 未调研过, 保持 nil
		default:
			return nil, fmt.Errorf("latest snapshot for product %d: %w", p.ID, err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
