package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// Config 保存应用程序配置
type Config struct {
	App      AppConfig      `json:"app"`
	Research ResearchConfig `json:"research"`
	Market   MarketConfig   `json:"market"`
	Sheet    SheetConfig    `json:"sheet"`
	FX       FXConfig       `json:"fx"`
	MySQL    MySQLConfig    `json:"mysql"`
	Redis    RedisConfig    `json:"redis"`
}

// AppConfig 应用程序基础配置
type AppConfig struct {
	Env         string `json:"env"`           // 运行环境: local / prod
	LogLevel    string `json:"log_level"`     // 日志级别: debug / info / warn / error
	HTTPAddr    string `json:"http_addr"`     // API 服务监听地址
	MetricsAddr string `json:"metrics_addr"`  // Prometheus 指标监听地址
	AdminAPIKey string `json:"admin_api_key"` // Admin API Key (空则不启用认证)
}

// ResearchConfig 调研批处理配置
type ResearchConfig struct {
	Concurrency     int           `json:"concurrency"`       // 并行调研的商品数 (默认 4)
	MaxPriceSamples int           `json:"max_price_samples"` // 每个商品抓取的成交价样本上限 (默认 100)
	TrendWindowDays int           `json:"trend_window_days"` // 趋势分析窗口天数 (默认 30)
	ChangeThreshold float64       `json:"change_threshold"`  // 显著价格变动阈值 (百分比, 默认 10)
	Retention       time.Duration `json:"retention"`         // 快照保留时间 (默认 180d)

	// 驻留模式 (cmd/server) 的定期刷新
	RefreshBaseInterval time.Duration `json:"refresh_base_interval"` // 权重 1.0 商品的刷新间隔 (默认 6h)
	RefreshMinInterval  time.Duration `json:"refresh_min_interval"`  // 高权重商品刷新间隔下限 (默认 1h)
	RefreshMaxInterval  time.Duration `json:"refresh_max_interval"`  // 低权重商品刷新间隔上限 (默认 24h)
	CleanupInterval     time.Duration `json:"cleanup_interval"`      // 快照清理扫描间隔 (默认 24h)

	Resume     bool          `json:"resume"`      // 跳过当日已完成的商品 (需要 Redis)
	JournalTTL time.Duration `json:"journal_ttl"` // 调研日志键 TTL (默认 48h)
}

// MarketConfig 市场搜索 API 配置
type MarketConfig struct {
	BaseURL    string        `json:"base_url"`     // 搜索 API 基础地址 (空则视为未配置)
	WebBaseURL string        `json:"web_base_url"` // 网页端基础地址, 用于结果数量兜底抓取 (空则禁用)
	AppID      string        `json:"app_id"`       // API 凭证
	Timeout    time.Duration `json:"timeout"`      // 单次请求超时 (默认 15s)
	RateLimit  float64       `json:"rate_limit"`   // 限流速率 (request/s, 默认 2)
	RateBurst  int           `json:"rate_burst"`   // 限流桶容量 (默认 5)
	UserAgent  string        `json:"user_agent"`   // 请求 UA
}

// SheetConfig 商品目录表格配置
type SheetConfig struct {
	Path      string `json:"path"`       // 目录工作簿路径
	SheetName string `json:"sheet_name"` // 工作表名称
	WriteBack bool   `json:"write_back"` // 调研结果是否回写表格
}

// FXConfig 汇率换算配置
type FXConfig struct {
	Endpoint string        `json:"endpoint"`  // 汇率 API 地址
	Base     string        `json:"base"`      // 源货币 (默认 USD)
	Target   string        `json:"target"`    // 目标货币 (默认 JPY)
	CacheTTL time.Duration `json:"cache_ttl"` // Redis 缓存 TTL (默认 12h)
	Timeout  time.Duration `json:"timeout"`   // 请求超时 (默认 10s)
}

// MySQLConfig MySQL 数据库配置
type MySQLConfig struct {
	DSN string `json:"dsn"` // 数据库连接字符串
}

// RedisConfig Redis 缓存配置
type RedisConfig struct {
	Addr         string        `json:"addr"`           // Redis 地址 (host:port)
	Password     string        `json:"password"`       // Redis 密码
	PoolSize     int           `json:"pool_size"`      // 连接池大小 (默认 10)
	MinIdleConns int           `json:"min_idle_conns"` // 最小空闲连接数 (默认 2)
	DialTimeout  time.Duration `json:"dial_timeout"`   // 连接超时 (默认 5s)
	ReadTimeout  time.Duration `json:"read_timeout"`   // 读取超时 (默认 3s)
	WriteTimeout time.Duration `json:"write_timeout"`  // 写入超时 (默认 3s)
}

// Load 从 JSON 文件加载配置
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	// 如果配置文件不存在，使用默认配置
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	// 读取配置文件
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:         "local",
			LogLevel:    "info",
			HTTPAddr:    ":8080",
			MetricsAddr: ":2112",
		},
		Research: ResearchConfig{
			Concurrency:         4,
			MaxPriceSamples:     100,
			TrendWindowDays:     30,
			ChangeThreshold:     10,
			Retention:           180 * 24 * time.Hour, // 180 days
			RefreshBaseInterval: 6 * time.Hour,
			RefreshMinInterval:  1 * time.Hour,
			RefreshMaxInterval:  24 * time.Hour,
			CleanupInterval:     24 * time.Hour,
			Resume:              false,
			JournalTTL:          48 * time.Hour,
		},
		Market: MarketConfig{
			BaseURL:    "", // 必须通过配置或 MARKET_BASE_URL 提供
			WebBaseURL: "",
			AppID:      "",
			Timeout:    15 * time.Second,
			RateLimit:  2,
			RateBurst:  5,
			UserAgent:  "sedoritop/1.0",
		},
		Sheet: SheetConfig{
			Path:      "catalog.xlsx",
			SheetName: "Sheet1",
			WriteBack: true,
		},
		FX: FXConfig{
			Endpoint: "https://open.er-api.com/v6/latest/USD",
			Base:     "USD",
			Target:   "JPY",
			CacheTTL: 12 * time.Hour,
			Timeout:  10 * time.Second,
		},
		MySQL: MySQLConfig{
			DSN: "root:password@tcp(localhost:3306)/sedoritop?parseTime=true&loc=Local",
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			Password:     "",
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	// App
	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.MetricsAddr == "" {
		cfg.App.MetricsAddr = defaults.App.MetricsAddr
	}

	// Research
	if cfg.Research.Concurrency == 0 {
		cfg.Research.Concurrency = defaults.Research.Concurrency
	}
	if cfg.Research.MaxPriceSamples == 0 {
		cfg.Research.MaxPriceSamples = defaults.Research.MaxPriceSamples
	}
	if cfg.Research.TrendWindowDays == 0 {
		cfg.Research.TrendWindowDays = defaults.Research.TrendWindowDays
	}
	if cfg.Research.ChangeThreshold == 0 {
		cfg.Research.ChangeThreshold = defaults.Research.ChangeThreshold
	}
	if cfg.Research.Retention == 0 {
		cfg.Research.Retention = defaults.Research.Retention
	}
	if cfg.Research.RefreshBaseInterval == 0 {
		cfg.Research.RefreshBaseInterval = defaults.Research.RefreshBaseInterval
	}
	if cfg.Research.RefreshMinInterval == 0 {
		cfg.Research.RefreshMinInterval = defaults.Research.RefreshMinInterval
	}
	if cfg.Research.RefreshMaxInterval == 0 {
		cfg.Research.RefreshMaxInterval = defaults.Research.RefreshMaxInterval
	}
	if cfg.Research.CleanupInterval == 0 {
		cfg.Research.CleanupInterval = defaults.Research.CleanupInterval
	}
	if cfg.Research.JournalTTL == 0 {
		cfg.Research.JournalTTL = defaults.Research.JournalTTL
	}
	// Resume 使用零值即可 (false 表示每次全量调研)

	// Market (BaseURL/WebBaseURL/AppID 允许为空, 空表示未配置)
	if cfg.Market.Timeout == 0 {
		cfg.Market.Timeout = defaults.Market.Timeout
	}
	if cfg.Market.RateLimit == 0 {
		cfg.Market.RateLimit = defaults.Market.RateLimit
	}
	if cfg.Market.RateBurst == 0 {
		cfg.Market.RateBurst = defaults.Market.RateBurst
	}
	if cfg.Market.UserAgent == "" {
		cfg.Market.UserAgent = defaults.Market.UserAgent
	}

	// Sheet
	if cfg.Sheet.Path == "" {
		cfg.Sheet.Path = defaults.Sheet.Path
	}
	if cfg.Sheet.SheetName == "" {
		cfg.Sheet.SheetName = defaults.Sheet.SheetName
	}

	// FX
	if cfg.FX.Endpoint == "" {
		cfg.FX.Endpoint = defaults.FX.Endpoint
	}
	if cfg.FX.Base == "" {
		cfg.FX.Base = defaults.FX.Base
	}
	if cfg.FX.Target == "" {
		cfg.FX.Target = defaults.FX.Target
	}
	if cfg.FX.CacheTTL == 0 {
		cfg.FX.CacheTTL = defaults.FX.CacheTTL
	}
	if cfg.FX.Timeout == 0 {
		cfg.FX.Timeout = defaults.FX.Timeout
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	// App
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("APP_METRICS_ADDR"); v != "" {
		cfg.App.MetricsAddr = v
	}

	// Research
	if v := os.Getenv("RESEARCH_CONCURRENCY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Research.Concurrency = i
		}
	}
	if v := os.Getenv("RESEARCH_MAX_PRICE_SAMPLES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Research.MaxPriceSamples = i
		}
	}
	if v := os.Getenv("RESEARCH_TREND_WINDOW_DAYS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Research.TrendWindowDays = i
		}
	}
	if v := os.Getenv("RESEARCH_CHANGE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Research.ChangeThreshold = f
		}
	}
	if v := os.Getenv("RESEARCH_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Research.Retention = d
		}
	}
	if v := os.Getenv("REFRESH_BASE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Research.RefreshBaseInterval = d
		}
	}
	if v := os.Getenv("REFRESH_MIN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Research.RefreshMinInterval = d
		}
	}
	if v := os.Getenv("REFRESH_MAX_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Research.RefreshMaxInterval = d
		}
	}
	if v := os.Getenv("RESEARCH_CLEANUP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Research.CleanupInterval = d
		}
	}
	if v := os.Getenv("RESEARCH_RESUME"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Research.Resume = b
		}
	}
	if v := os.Getenv("RESEARCH_JOURNAL_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Research.JournalTTL = d
		}
	}

	// Market
	if v := os.Getenv("MARKET_BASE_URL"); v != "" {
		cfg.Market.BaseURL = v
	}
	if v := os.Getenv("MARKET_WEB_BASE_URL"); v != "" {
		cfg.Market.WebBaseURL = v
	}
	if v := os.Getenv("MARKET_APP_ID"); v != "" {
		cfg.Market.AppID = v
	}
	if v := os.Getenv("MARKET_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Market.Timeout = d
		}
	}
	if v := os.Getenv("MARKET_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Market.RateLimit = f
		}
	}
	if v := os.Getenv("MARKET_RATE_BURST"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Market.RateBurst = i
		}
	}
	if v := os.Getenv("MARKET_USER_AGENT"); v != "" {
		cfg.Market.UserAgent = v
	}

	// Sheet
	if v := os.Getenv("SHEET_PATH"); v != "" {
		cfg.Sheet.Path = v
	}
	if v := os.Getenv("SHEET_NAME"); v != "" {
		cfg.Sheet.SheetName = v
	}
	if v := os.Getenv("SHEET_WRITE_BACK"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Sheet.WriteBack = b
		}
	}

	// FX
	if v := os.Getenv("FX_ENDPOINT"); v != "" {
		cfg.FX.Endpoint = v
	}
	if v := os.Getenv("FX_BASE"); v != "" {
		cfg.FX.Base = v
	}
	if v := os.Getenv("FX_TARGET"); v != "" {
		cfg.FX.Target = v
	}
	if v := os.Getenv("FX_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.FX.CacheTTL = d
		}
	}
	if v := os.Getenv("FX_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.FX.Timeout = d
		}
	}

	// MySQL
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.MySQL.DSN = v
	} else if hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") {
		cfg.MySQL.DSN = buildMySQLDSN(cfg.MySQL.DSN)
	}

	// Redis
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_POOL_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Redis.PoolSize = i
		}
	}
	if v := os.Getenv("REDIS_MIN_IDLE_CONNS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Redis.MinIdleConns = i
		}
	}
	if v := os.Getenv("REDIS_DIAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Redis.DialTimeout = d
		}
	}
	if v := os.Getenv("REDIS_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Redis.ReadTimeout = d
		}
	}
	if v := os.Getenv("REDIS_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Redis.WriteTimeout = d
		}
	}

	// Admin API Key
	if v := os.Getenv("ADMIN_API_KEY"); v != "" {
		cfg.App.AdminAPIKey = v
	}
}

func hasAnyEnv(keys ...string) bool {
	for _, key := range keys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func buildMySQLDSN(fallbackDSN string) string {
	parsed, err := mysql.ParseDSN(fallbackDSN)
	if err != nil {
		parsed = &mysql.Config{
			User:   "root",
			Passwd: "",
			Net:    "tcp",
			Addr:   "localhost:3306",
			DBName: "sedoritop",
			Params: map[string]string{
				"parseTime": "true",
				"loc":       "Local",
			},
		}
	}

	if v := os.Getenv("DB_HOST"); v != "" {
		port := "3306"
		if p := os.Getenv("DB_PORT"); p != "" {
			port = p
		} else if strings.Contains(parsed.Addr, ":") {
			parts := strings.Split(parsed.Addr, ":")
			if len(parts) == 2 {
				port = parts[1]
			}
		}
		parsed.Addr = v + ":" + port
	}
	if v := os.Getenv("DB_USER"); v != "" {
		parsed.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		parsed.Passwd = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		parsed.DBName = v
	}

	return parsed.FormatDSN()
}

// CalculateInterval 根据权重计算商品的实际刷新间隔
// interval = RefreshBaseInterval / weight, 限制在 [RefreshMinInterval, RefreshMaxInterval]
func (c *ResearchConfig) CalculateInterval(weight float64) time.Duration {
	if weight <= 0 {
		weight = 1.0
	}
	interval := time.Duration(float64(c.RefreshBaseInterval) / weight)

	if interval < c.RefreshMinInterval {
		return c.RefreshMinInterval
	}
	if interval > c.RefreshMaxInterval {
		return c.RefreshMaxInterval
	}
	return interval
}
