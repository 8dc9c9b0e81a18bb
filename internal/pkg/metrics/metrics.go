// Package metrics 提供 Prometheus 监控指标定义和工具函数。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 调研批次相关指标
var (
	// ResearchRunsTotal 调研批次总数
	ResearchRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sedoritop_research_runs_total",
		Help: "Total number of research runs",
	}, []string{"mode", "status"}) // mode: batch, scheduled, manual; status: completed, failed

	// ResearchProductsTotal 已调研商品总数（按结果分类）
	ResearchProductsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sedoritop_research_products_total",
		Help: "Total number of products researched",
	}, []string{"status"}) // status: success, failed, skipped

	// ResearchProductDuration 单商品调研耗时分布
	ResearchProductDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sedoritop_research_product_duration_seconds",
		Help:    "Per-product research duration in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	})

	// ResearchRunDuration 整批调研耗时分布
	ResearchRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sedoritop_research_run_duration_seconds",
		Help:    "Full research run duration in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	// ResearchConcurrency 配置的并发上限
	ResearchConcurrency = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sedoritop_research_concurrency",
		Help: "Configured research concurrency limit",
	})
)

// 市场客户端相关指标
var (
	// MarketRequestsTotal 市场请求总数
	MarketRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sedoritop_market_requests_total",
		Help: "Total number of marketplace requests",
	}, []string{"op", "code"}) // op: search, html_count; code: HTTP 状态码或 error

	// MarketRequestDuration 市场请求耗时分布
	MarketRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sedoritop_market_request_duration_seconds",
		Help:    "Marketplace request duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"op"})

	// MarketFallbacksTotal API 失败后走 HTML 兜底的次数
	MarketFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sedoritop_market_fallbacks_total",
		Help: "Total number of HTML count fallbacks after API failures",
	})
)

// 快照存储相关指标
var (
	// SnapshotWritesTotal 快照写入总数
	SnapshotWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sedoritop_snapshot_writes_total",
		Help: "Total number of snapshot writes",
	}, []string{"status"}) // status: ok, error

	// SnapshotCleanupDeletedTotal 保留期清理删除的快照总数
	SnapshotCleanupDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sedoritop_snapshot_cleanup_deleted_total",
		Help: "Total number of snapshots deleted by retention cleanup",
	})
)

// 汇率相关指标
var (
	// FXCacheTotal 汇率缓存查询次数（按结果分类）
	FXCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sedoritop_fx_cache_total",
		Help: "FX rate cache lookups",
	}, []string{"result"}) // result: hit, miss, error

	// FXRate 最近一次获取的汇率
	FXRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sedoritop_fx_rate",
		Help: "Last fetched FX rate",
	}, []string{"pair"}) // pair: USDJPY
)

// 调度器相关指标
var (
	// ScheduleDueProducts 当前到期待调研的商品数
	ScheduleDueProducts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sedoritop_schedule_due_products",
		Help: "Number of products currently due for refresh",
	})

	// ScheduleSizeProducts 调度表中登记的商品总数
	ScheduleSizeProducts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sedoritop_schedule_size_products",
		Help: "Number of products enrolled in the refresh schedule",
	})
)

// HTTP API 相关指标
var (
	// HTTPRequestsTotal HTTP 请求总数
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sedoritop_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration HTTP 请求耗时分布
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sedoritop_http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	}, []string{"method", "path"})
)

// InitMetrics 初始化指标（设置静态值）
func InitMetrics(concurrency int) {
	ResearchConcurrency.Set(float64(concurrency))
}
