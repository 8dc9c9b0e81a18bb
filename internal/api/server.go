// internal/api/server.go
// HTTP API Server - 使用 Gin 框架
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"sedoritop/internal/config"
	"sedoritop/internal/pkg/metrics"
	"sedoritop/internal/research"
	"sedoritop/internal/snapshot"
	"sedoritop/internal/trend"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server HTTP API 服务器
// 只读查询走 MySQL + Redis 缓存, admin 路由可触发调研与快照清理。
type Server struct {
	router      *gin.Engine
	db          *gorm.DB
	rdb         *redis.Client
	store       *snapshot.Store
	trends      *trend.Analyzer
	runner      *research.Runner
	sched       *research.Schedule
	rescfg      *config.ResearchConfig
	logger      *slog.Logger
	server      *http.Server
	adminAPIKey string
}

// Config 服务器配置
type Config struct {
	Addr         string        // 监听地址 (如 ":8080")
	ReadTimeout  time.Duration // 读取超时
	WriteTimeout time.Duration // 写入超时
	Debug        bool          // 调试模式
	EnableCORS   bool          // 启用 CORS (开发模式)
	AdminAPIKey  string        // Admin API Key (空则不启用认证)
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Addr:         ":8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Debug:        false,
		EnableCORS:   false,
	}
}

// NewServer 创建 API 服务器
// rdb 为 nil 时排行榜缓存退化为直查; sched 为 nil 时 stats 不含排期信息。
func NewServer(
	db *gorm.DB,
	rdb *redis.Client,
	store *snapshot.Store,
	runner *research.Runner,
	sched *research.Schedule,
	rescfg *config.ResearchConfig,
	logger *slog.Logger,
	cfg *Config,
) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// CORS 中间件 (开发模式)
	if cfg.EnableCORS {
		router.Use(corsMiddleware())
	}

	s := &Server{
		router:      router,
		db:          db,
		rdb:         rdb,
		store:       store,
		trends:      trend.NewAnalyzer(db, store, logger),
		runner:      runner,
		sched:       sched,
		rescfg:      rescfg,
		logger:      logger,
		adminAPIKey: cfg.AdminAPIKey,
		server: &http.Server{
			Addr:         cfg.Addr,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}

	s.setupRoutes()

	return s
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	// 存活探针
	s.router.GET("/health", s.healthCheck)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// 商品
		products := v1.Group("/products")
		{
			products.GET("", s.listProducts)
			products.GET("/:id", s.getProduct)
			products.GET("/:id/snapshots", s.getProductSnapshots)
			products.GET("/:id/trend", s.getProductTrend)
		}

		// 排行榜
		rankings := v1.Group("/rankings")
		{
			rankings.GET("/top", s.getTopRankings)
			rankings.GET("/recommended", s.getRecommended)
			rankings.GET("/groups", s.getGroupStats)
		}

		// 报告
		reports := v1.Group("/reports")
		{
			reports.GET("/rising", s.getRisingReport)
			reports.GET("/price-changes", s.getPriceChangeReport)
		}

		// 系统
		system := v1.Group("/system")
		{
			system.GET("/health", s.getSystemHealth)
			system.GET("/stats", s.getSystemStats)
		}

		// 管理 (需要 API Key 认证)
		admin := v1.Group("/admin")
		admin.Use(s.apiKeyMiddleware())
		{
			admin.POST("/research", s.triggerResearch)
			admin.POST("/cleanup", s.triggerCleanup)
		}
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("starting API server", slog.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// Router 获取路由器（用于测试）
func (s *Server) Router() *gin.Engine {
	return s.router
}

// requestLogger 请求日志中间件
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		// 指标用路由模板, 避免 :id 实参撑爆标签基数
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(
			c.Request.Method, route).Observe(latency.Seconds())

		logger.Info("request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Duration("latency", latency),
			slog.String("ip", c.ClientIP()),
		)
	}
}

// corsMiddleware CORS 中间件 (允许所有来源)
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// apiKeyMiddleware API Key 认证中间件
// 如果 adminAPIKey 为空，则不启用认证 (开发环境)
func (s *Server) apiKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.adminAPIKey == "" {
			c.Next()
			return
		}

		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, Response{
				Code:    401,
				Message: "missing API key",
			})
			c.Abort()
			return
		}

		if apiKey != s.adminAPIKey {
			c.JSON(http.StatusUnauthorized, Response{
				Code:    401,
				Message: "invalid API key",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// healthCheck 存活探针
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// ============================================================================
// Response 工具函数
// ============================================================================

// Response 统一响应格式
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// success 成功响应
func success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// accepted 202 响应 (异步任务已受理)
func accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, Response{
		Code:    0,
		Message: "accepted",
		Data:    data,
	})
}

// errorResponse 错误响应
func errorResponse(c *gin.Context, status int, code int, message string) {
	c.JSON(status, Response{
		Code:    code,
		Message: message,
	})
}

// badRequest 400 错误
func badRequest(c *gin.Context, message string) {
	errorResponse(c, http.StatusBadRequest, 400, message)
}

// notFound 404 错误
func notFound(c *gin.Context, message string) {
	errorResponse(c, http.StatusNotFound, 404, message)
}

// conflict 409 错误
func conflict(c *gin.Context, message string) {
	errorResponse(c, http.StatusConflict, 409, message)
}

// internalError 500 错误
func internalError(c *gin.Context, message string) {
	errorResponse(c, http.StatusInternalServerError, 500, message)
}

// parseID 解析 URL 中的 ID 参数
func parseID(c *gin.Context) (uint64, error) {
	return strconv.ParseUint(c.Param("id"), 10, 64)
}

// queryInt 读取整型查询参数, 解析失败或缺失时返回默认值
func queryInt(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// queryFloat 读取浮点查询参数, 解析失败或缺失时返回默认值
func queryFloat(c *gin.Context, name string, def float64) float64 {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

// daysAgo N 天前的时间点 (UTC)
func daysAgo(days int) time.Time {
	return time.Now().UTC().AddDate(0, 0, -days)
}
