package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sedoritop/internal/config"
	"sedoritop/internal/pkg/metrics"
	"sedoritop/internal/pkg/ratelimit"
	"sedoritop/internal/statistics"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// 兜底重试与分布式限流参数
const (
	budgetKey        = "market:budget"
	budgetRetryDelay = 500 * time.Millisecond
)

// Client 市场数据客户端
//
// 计数与成交价都走 JSON 搜索 API; API 返回非 200 且配置了网页端地址时,
// 计数调用回退到解析 HTML 结果页的数量标题。每个请求先过进程内限速器,
// 配置了 Redis 时再过跨进程令牌桶。
type Client struct {
	http    *resty.Client
	cfg     *config.MarketConfig
	limiter *rate.Limiter
	bucket  *ratelimit.Bucket
	log     *slog.Logger
}

// NewClient 创建市场客户端
// bucket 可以为 nil, 表示不启用跨进程限流。
func NewClient(cfg *config.MarketConfig, bucket *ratelimit.Bucket, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}

	httpClient := resty.New()
	httpClient.SetTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		httpClient.SetHeader("User-Agent", cfg.UserAgent)
	}
	if cfg.AppID != "" {
		httpClient.SetHeader("X-App-Id", cfg.AppID)
	}

	return &Client{
		http:    httpClient,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		bucket:  bucket,
		log:     log.With(slog.String("component", "market_client")),
	}
}

// searchResponse 搜索 API 的响应体
type searchResponse struct {
	TotalCount int64        `json:"totalCount"`
	Items      []searchItem `json:"items"`
}

type searchItem struct {
	Price     float64 `json:"price"`
	Condition string  `json:"condition"`
}

// CountActive 在售数量
func (c *Client) CountActive(ctx context.Context, p SearchParams) (uint32, error) {
	p.SoldOnly = false
	return c.count(ctx, p)
}

// CountSold 已售数量
func (c *Client) CountSold(ctx context.Context, p SearchParams) (uint32, error) {
	p.SoldOnly = true
	return c.count(ctx, p)
}

// SoldPrices 拉取已售成交价样本, 非正价格直接丢弃
// 最多返回 max 条; 失败不走 HTML 兜底 (成交价只有 API 提供)。
func (c *Client) SoldPrices(ctx context.Context, p SearchParams, max int) ([]statistics.Observation, error) {
	p.SoldOnly = true
	resp, err := c.search(ctx, p, max)
	if err != nil {
		return nil, err
	}

	obs := make([]statistics.Observation, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Price <= 0 {
			continue
		}
		obs = append(obs, statistics.Observation{
			Price:     item.Price,
			Condition: item.Condition,
		})
	}
	return obs, nil
}

// count 只取 totalCount, limit=1 把响应压到最小
func (c *Client) count(ctx context.Context, p SearchParams) (uint32, error) {
	resp, err := c.search(ctx, p, 1)
	if err == nil {
		if resp.TotalCount < 0 {
			return 0, fmt.Errorf("negative totalCount %d", resp.TotalCount)
		}
		return uint32(resp.TotalCount), nil
	}

	if c.cfg.WebBaseURL == "" {
		return 0, err
	}

	c.log.Warn("search api failed, falling back to html count",
		slog.String("keyword", p.Keyword),
		slog.Bool("sold_only", p.SoldOnly),
		slog.String("error", err.Error()))
	metrics.MarketFallbacksTotal.Inc()

	count, ferr := c.countFromHTML(ctx, p)
	if ferr != nil {
		return 0, fmt.Errorf("html count fallback: %w", ferr)
	}
	return count, nil
}

// search 调用 JSON 搜索 API
func (c *Client) search(ctx context.Context, p SearchParams, limit int) (*searchResponse, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("q", p.Keyword).
		SetQueryParam("limit", strconv.Itoa(limit))
	if p.CategoryID != "" {
		req.SetQueryParam("category_ids", p.CategoryID)
	}
	if p.ConditionID != "" {
		req.SetQueryParam("condition_ids", p.ConditionID)
	}
	if p.SoldOnly {
		req.SetQueryParam("sold_only", "true")
	}
	if p.Location != "" {
		req.SetQueryParam("location", p.Location)
	}

	start := time.Now()
	resp, err := req.Get(c.cfg.BaseURL + "/v1/search")
	metrics.MarketRequestDuration.WithLabelValues("search").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.MarketRequestsTotal.WithLabelValues("search", "error").Inc()
		return nil, fmt.Errorf("search request: %w", err)
	}
	metrics.MarketRequestsTotal.WithLabelValues("search", strconv.Itoa(resp.StatusCode())).Inc()

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("search api status %d", resp.StatusCode())
	}

	var out searchResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &out, nil
}

// countFromHTML 解析 HTML 结果页的数量标题
// 形如 <h1 class="srp-controls__count-heading"><span>1,234</span> results ...</h1>
func (c *Client) countFromHTML(ctx context.Context, p SearchParams) (uint32, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}

	pageURL := BuildSearchURL(c.cfg.WebBaseURL, p, 1)

	start := time.Now()
	resp, err := c.http.R().SetContext(ctx).Get(pageURL)
	metrics.MarketRequestDuration.WithLabelValues("html_count").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.MarketRequestsTotal.WithLabelValues("html_count", "error").Inc()
		return 0, fmt.Errorf("fetch results page: %w", err)
	}
	metrics.MarketRequestsTotal.WithLabelValues("html_count", strconv.Itoa(resp.StatusCode())).Inc()

	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("results page status %d", resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return 0, fmt.Errorf("parse results page: %w", err)
	}

	heading := doc.Find("h1.srp-controls__count-heading").First().Text()
	return parseCountHeading(heading)
}

// parseCountHeading "1,234 results for ..." → 1234
func parseCountHeading(text string) (uint32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("count heading not found")
	}

	var digits strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
			continue
		}
		if r == ',' {
			continue
		}
		if digits.Len() > 0 {
			break
		}
	}
	if digits.Len() == 0 {
		return 0, fmt.Errorf("no count in heading %q", text)
	}

	n, err := strconv.ParseUint(digits.String(), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse count %q: %w", digits.String(), err)
	}
	return uint32(n), nil
}

// wait 先过进程内限速, 再过 Redis 跨进程预算 (若配置)
// Redis 故障时退化为仅本地限速, 不阻塞调研。
func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if c.bucket == nil {
		return nil
	}

	for {
		ok, err := c.bucket.Allow(ctx, budgetKey, c.cfg.RateLimit, c.cfg.RateBurst)
		if err != nil {
			c.log.Warn("distributed limiter unavailable, using local limiter only",
				slog.String("error", err.Error()))
			return nil
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(budgetRetryDelay):
		}
	}
}
