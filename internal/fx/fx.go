// Package fx 汇率换算
//
// 美元成交价换算成日元参考价。汇率从外部 API 拉取,
// 在 Redis 里缓存一段时间, 同一批调研内不会反复刷新。
package fx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"

	"sedoritop/internal/config"
	"sedoritop/internal/pkg/metrics"

	"github.com/go-resty/resty/v2"
	"github.com/redis/go-redis/v9"
)

const rateKeyPrefix = "fx:rate"

// Converter 汇率换算器
type Converter struct {
	rdb  *redis.Client
	http *resty.Client
	cfg  *config.FXConfig
	log  *slog.Logger
}

// NewConverter 创建汇率换算器
// rdb 可以为 nil, 表示不启用缓存 (每次换算都会请求 API)。
func NewConverter(cfg *config.FXConfig, rdb *redis.Client, log *slog.Logger) *Converter {
	if log == nil {
		log = slog.Default()
	}

	httpClient := resty.New()
	httpClient.SetTimeout(cfg.Timeout)

	return &Converter{
		rdb:  rdb,
		http: httpClient,
		cfg:  cfg,
		log:  log.With(slog.String("component", "fx_converter")),
	}
}

// rateResponse 汇率 API 响应体 (open.er-api.com 风格)
type rateResponse struct {
	Result string             `json:"result"`
	Rates  map[string]float64 `json:"rates"`
}

func (c *Converter) cacheKey() string {
	return fmt.Sprintf("%s:%s:%s", rateKeyPrefix, c.cfg.Base, c.cfg.Target)
}

func (c *Converter) pair() string {
	return c.cfg.Base + c.cfg.Target
}

// Rate 返回当前汇率, 优先读 Redis 缓存, 未命中时请求 API 并回填
// Redis 读写失败只降级不报错; API 不可用时返回错误, 调用方按 "汇率缺失" 处理。
func (c *Converter) Rate(ctx context.Context) (float64, error) {
	if c.rdb != nil {
		rate, err := c.rdb.Get(ctx, c.cacheKey()).Float64()
		switch {
		case err == nil:
			metrics.FXCacheTotal.WithLabelValues("hit").Inc()
			return rate, nil
		case errors.Is(err, redis.Nil):
			metrics.FXCacheTotal.WithLabelValues("miss").Inc()
		default:
			metrics.FXCacheTotal.WithLabelValues("error").Inc()
			c.log.Warn("fx cache read failed", slog.String("error", err.Error()))
		}
	}

	rate, err := c.fetch(ctx)
	if err != nil {
		return 0, err
	}
	metrics.FXRate.WithLabelValues(c.pair()).Set(rate)

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, c.cacheKey(), rate, c.cfg.CacheTTL).Err(); err != nil {
			c.log.Warn("fx cache write failed", slog.String("error", err.Error()))
		}
	}
	return rate, nil
}

// Convert 把源货币金额换算成目标货币整数金额 (向下取整)
func (c *Converter) Convert(ctx context.Context, amount float64) (int64, error) {
	rate, err := c.Rate(ctx)
	if err != nil {
		return 0, err
	}
	return int64(math.Floor(amount * rate)), nil
}

func (c *Converter) fetch(ctx context.Context) (float64, error) {
	resp, err := c.http.R().SetContext(ctx).Get(c.cfg.Endpoint)
	if err != nil {
		return 0, fmt.Errorf("fetch fx rate: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("fx api status %d", resp.StatusCode())
	}

	var body rateResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return 0, fmt.Errorf("decode fx response: %w", err)
	}

	rate, ok := body.Rates[c.cfg.Target]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("no usable %s rate in fx response", c.cfg.Target)
	}

	c.log.Info("fx rate refreshed",
		slog.String("pair", c.pair()),
		slog.Float64("rate", rate))
	return rate, nil
}
