// internal/api/system_handler.go
// 系统状态 API
package api

import (
	"net/http"
	"time"

	"sedoritop/internal/model"
	"sedoritop/internal/research"

	"github.com/gin-gonic/gin"
)

// ============================================================================
// 健康检查
// ============================================================================

// ComponentHealth 单个依赖的健康状态
type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// getSystemHealth 依赖健康检查 (MySQL / Redis)
// GET /api/v1/system/health
func (s *Server) getSystemHealth(c *gin.Context) {
	ctx := c.Request.Context()
	components := make(map[string]ComponentHealth)
	healthy := true

	dbHealth := ComponentHealth{Status: "ok"}
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		dbHealth = ComponentHealth{Status: "error", Error: err.Error()}
		healthy = false
	}
	components["database"] = dbHealth

	if s.rdb != nil {
		redisHealth := ComponentHealth{Status: "ok"}
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			redisHealth = ComponentHealth{Status: "error", Error: err.Error()}
			healthy = false
		}
		components["redis"] = redisHealth
	}

	status := "ok"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":     status,
		"timestamp":  time.Now().Format(time.RFC3339),
		"components": components,
	})
}

// ============================================================================
// 系统统计
// ============================================================================

// SystemStatsResponse 系统统计响应
type SystemStatsResponse struct {
	Status    string             `json:"status"`
	Timestamp string             `json:"timestamp"`
	Database  DatabaseStatus     `json:"database"`
	Research  *research.Progress `json:"research,omitempty"`
	Schedule  *ScheduleStatus    `json:"schedule,omitempty"`
}

// DatabaseStatus 数据库状态
type DatabaseStatus struct {
	Connected      bool  `json:"connected"`
	TotalProducts  int64 `json:"total_products"`
	ActiveProducts int64 `json:"active_products"`
	Snapshots      int64 `json:"snapshots"`
}

// ScheduleStatus 调研排期简要状态
type ScheduleStatus struct {
	Size   int64  `json:"size"`
	NextAt string `json:"next_at,omitempty"`
}

// getSystemStats 获取系统统计
// GET /api/v1/system/stats
func (s *Server) getSystemStats(c *gin.Context) {
	ctx := c.Request.Context()

	resp := SystemStatsResponse{
		Status:    "ok",
		Timestamp: time.Now().Format(time.RFC3339),
	}

	// 数据库状态
	connected := true
	var total, active, snaps int64
	if err := s.db.WithContext(ctx).Model(&model.Product{}).Count(&total).Error; err != nil {
		connected = false
	}
	s.db.WithContext(ctx).Model(&model.Product{}).
		Where("status = ?", model.ProductStatusActive).Count(&active)
	s.db.WithContext(ctx).Model(&model.Snapshot{}).Count(&snaps)
	resp.Database = DatabaseStatus{
		Connected:      connected,
		TotalProducts:  total,
		ActiveProducts: active,
		Snapshots:      snaps,
	}

	// 调研进度
	if s.runner != nil {
		progress := s.runner.Snapshot()
		resp.Research = &progress
	}

	// 排期状态
	if s.sched != nil {
		if size, err := s.sched.Size(ctx); err == nil {
			sched := &ScheduleStatus{Size: size}
			if next, ok, err := s.sched.Next(ctx); err == nil && ok {
				sched.NextAt = next.Format(time.RFC3339)
			}
			resp.Schedule = sched
		}
	}

	success(c, resp)
}
