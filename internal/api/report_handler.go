// internal/api/report_handler.go
// 报告 API - 上升榜 / 价格异动
package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

const (
	defaultRisingLimit     = 10
	defaultChangeThreshold = 10.0 // 价格异动阈值 (%)
)

// getRisingReport 获取 Balance 上升榜
// GET /api/v1/reports/rising?days=30&limit=10
func (s *Server) getRisingReport(c *gin.Context) {
	days := queryInt(c, "days", s.trendWindowDays())
	if days < 1 {
		days = 1
	}
	if days > maxWindowDays {
		days = maxWindowDays
	}

	limit := queryInt(c, "limit", defaultRisingLimit)
	if limit < 1 {
		limit = 1
	}
	if limit > maxRankingLimit {
		limit = maxRankingLimit
	}

	analyses, err := s.trends.RisingProducts(c.Request.Context(), days, limit)
	if err != nil {
		s.logger.Error("failed to build rising report", slog.String("error", err.Error()))
		internalError(c, "failed to build rising report")
		return
	}

	success(c, gin.H{
		"days":     days,
		"limit":    limit,
		"total":    len(analyses),
		"products": analyses,
	})
}

// getPriceChangeReport 获取价格异动报告
// GET /api/v1/reports/price-changes?days=30&threshold=10
func (s *Server) getPriceChangeReport(c *gin.Context) {
	days := queryInt(c, "days", s.trendWindowDays())
	if days < 1 {
		days = 1
	}
	if days > maxWindowDays {
		days = maxWindowDays
	}

	threshold := queryFloat(c, "threshold", s.changeThreshold())
	if threshold <= 0 {
		threshold = defaultChangeThreshold
	}

	report, err := s.trends.PriceChangeReport(c.Request.Context(), days, threshold)
	if err != nil {
		s.logger.Error("failed to build price change report", slog.String("error", err.Error()))
		internalError(c, "failed to build price change report")
		return
	}

	success(c, report)
}

// changeThreshold 价格异动阈值默认值
func (s *Server) changeThreshold() float64 {
	if s.rescfg != nil && s.rescfg.ChangeThreshold > 0 {
		return s.rescfg.ChangeThreshold
	}
	return defaultChangeThreshold
}
