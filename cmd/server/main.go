// cmd/server/main.go
// 驻留服务 - 主入口
// 包含: API Server + 刷新调度器 + 快照清理 + Prometheus 指标
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sedoritop/internal/api"
	"sedoritop/internal/config"
	"sedoritop/internal/fx"
	"sedoritop/internal/market"
	"sedoritop/internal/model"
	"sedoritop/internal/pkg/logger"
	"sedoritop/internal/pkg/metrics"
	"sedoritop/internal/pkg/ratelimit"
	"sedoritop/internal/research"
	"sedoritop/internal/snapshot"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	_ = godotenv.Load()

	// 命令行参数
	configFile := flag.String("config", "", "config file path")
	flag.Parse()

	// 加载配置
	cfg, err := loadConfig(*configFile)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 初始化日志 (带主机名与实例标识)
	slogger := logger.NewWithIdentity(
		logger.Config{Level: cfg.App.LogLevel},
		uuid.NewString()[:8],
	)
	slog.SetDefault(slogger)

	slogger.Info("starting resale research server")

	// 初始化指标静态值
	metrics.InitMetrics(cfg.Research.Concurrency)

	// 初始化 MySQL
	db, err := model.InitDB(&cfg.MySQL, slogger, model.DBOptions{
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
		LogLevel:        "warn",
	})
	if err != nil {
		slogger.Error("failed to connect MySQL", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 自动迁移（开发环境）
	if os.Getenv("AUTO_MIGRATE") == "true" {
		if err := model.AutoMigrate(db); err != nil {
			slogger.Error("auto migrate failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		slogger.Info("auto migrate completed")
	}

	// 初始化 Redis
	rdb, err := initRedis(cfg.Redis)
	if err != nil {
		slogger.Error("failed to connect Redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slogger.Info("Redis connected")

	// 市场客户端 (限流桶走 Redis, 多实例共享预算)
	bucket := ratelimit.NewBucket(rdb)
	mkt := market.NewClient(&cfg.Market, bucket, slogger)

	// 汇率换算
	fxConv := fx.NewConverter(&cfg.FX, rdb, slogger)

	// 快照存储
	store := snapshot.NewStore(db, slogger)

	// 调研 Runner (scheduled 模式, admin 手动触发时按次改写模式标签)
	journal := research.NewJournal(rdb, cfg.Research.JournalTTL)
	runner := research.NewRunner(db, store, mkt, fxConv, journal, &cfg.Research, "scheduled", slogger)

	// 刷新调度器
	sched := research.NewSchedule(rdb, slogger)
	scheduler := research.NewScheduler(db, store, runner, sched, &cfg.Research, slogger)

	// API Server
	apiCfg := &api.Config{
		Addr:         cfg.App.HTTPAddr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Debug:        cfg.App.Env == "local",
		EnableCORS:   os.Getenv("ENABLE_CORS") == "true",
		AdminAPIKey:  cfg.App.AdminAPIKey,
	}
	server := api.NewServer(db, rdb, store, runner, sched, &cfg.Research, slogger, apiCfg)
	slogger.Info("API server initialized", slog.String("addr", cfg.App.HTTPAddr))

	// 创建 context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 启动调度器
	if err := scheduler.Start(ctx); err != nil {
		slogger.Error("failed to start scheduler", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slogger.Info("scheduler started")

	// 启动 API Server (在 goroutine 中)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			slogger.Error("API server error", slog.String("error", err.Error()))
		}
	}()
	slogger.Info("API server started", slog.String("addr", cfg.App.HTTPAddr))

	// 启动 Metrics Server (Prometheus)
	metricsAddr := cfg.App.MetricsAddr
	if metricsAddr == "" {
		metricsAddr = ":2112"
	}
	metricsServer := &http.Server{
		Addr:    metricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		slogger.Info("metrics server started", slog.String("addr", metricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slogger.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()

	slogger.Info("all services started, waiting for shutdown signal...")

	// 等待关闭信号
	<-ctx.Done()
	slogger.Info("shutdown signal received, stopping services...")

	// 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 停止 API Server
	if err := server.Shutdown(shutdownCtx); err != nil {
		slogger.Error("API server shutdown error", slog.String("error", err.Error()))
	}

	// 停止 Metrics Server
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slogger.Error("metrics server shutdown error", slog.String("error", err.Error()))
	}

	// 停止调度器
	scheduler.Stop()
	slogger.Info("scheduler stopped")

	// 关闭 Redis
	if err := rdb.Close(); err != nil {
		slogger.Error("Redis close error", slog.String("error", err.Error()))
	}

	slogger.Info("server stopped")
}

// loadConfig 加载配置
func loadConfig(configFile string) (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	// 尝试默认路径
	for _, path := range []string{"configs/config.json", "config.json", "/etc/sedoritop/config.json"} {
		if _, err := os.Stat(path); err == nil {
			return config.Load(path)
		}
	}
	// 使用默认配置 (环境变量覆盖仍然生效)
	return config.Load("")
}

// initRedis 初始化 Redis 连接
func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}

	// 连接池配置
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	minIdleConns := cfg.MinIdleConns
	if minIdleConns <= 0 {
		minIdleConns = 2
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 3 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 3 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           0,
		PoolSize:     poolSize,
		MinIdleConns: minIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	slog.Info("Redis client configured",
		slog.String("addr", addr),
		slog.Int("pool_size", poolSize),
		slog.Int("min_idle_conns", minIdleConns))

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return rdb, nil
}
