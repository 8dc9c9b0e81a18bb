// internal/config/config_test.go
// Config 单元测试
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// App defaults
	assert.Equal(t, "local", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":8080", cfg.App.HTTPAddr)
	assert.Equal(t, ":2112", cfg.App.MetricsAddr)
	assert.Equal(t, "", cfg.App.AdminAPIKey)

	// Research defaults
	assert.Equal(t, 4, cfg.Research.Concurrency)
	assert.Equal(t, 100, cfg.Research.MaxPriceSamples)
	assert.Equal(t, 30, cfg.Research.TrendWindowDays)
	assert.Equal(t, 10.0, cfg.Research.ChangeThreshold)
	assert.Equal(t, 180*24*time.Hour, cfg.Research.Retention)
	assert.Equal(t, 6*time.Hour, cfg.Research.RefreshBaseInterval)
	assert.Equal(t, 1*time.Hour, cfg.Research.RefreshMinInterval)
	assert.Equal(t, 24*time.Hour, cfg.Research.RefreshMaxInterval)
	assert.Equal(t, 24*time.Hour, cfg.Research.CleanupInterval)
	assert.False(t, cfg.Research.Resume)
	assert.Equal(t, 48*time.Hour, cfg.Research.JournalTTL)

	// Market defaults
	assert.Equal(t, "", cfg.Market.BaseURL)
	assert.Equal(t, "", cfg.Market.WebBaseURL)
	assert.Equal(t, 15*time.Second, cfg.Market.Timeout)
	assert.Equal(t, 2.0, cfg.Market.RateLimit)
	assert.Equal(t, 5, cfg.Market.RateBurst)
	assert.Equal(t, "sedoritop/1.0", cfg.Market.UserAgent)

	// Sheet defaults
	assert.Equal(t, "catalog.xlsx", cfg.Sheet.Path)
	assert.Equal(t, "Sheet1", cfg.Sheet.SheetName)
	assert.True(t, cfg.Sheet.WriteBack)

	// FX defaults
	assert.Equal(t, "USD", cfg.FX.Base)
	assert.Equal(t, "JPY", cfg.FX.Target)
	assert.Equal(t, 12*time.Hour, cfg.FX.CacheTTL)
	assert.Equal(t, 10*time.Second, cfg.FX.Timeout)
}

func TestLoad_NonExistentFile(t *testing.T) {
	// Load with non-existent file should return defaults
	cfg, err := Load("/non/existent/path/config.json")
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// Should have default values
	assert.Equal(t, "local", cfg.App.Env)
	assert.Equal(t, ":8080", cfg.App.HTTPAddr)
}

func TestLoad_ValidConfigFile(t *testing.T) {
	// Create a temp config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	// JSON duration values are in nanoseconds
	twoHoursNs := int64(2 * time.Hour)
	content := `{
		"app": {
			"env": "prod",
			"http_addr": ":9090"
		},
		"research": {
			"concurrency": 8,
			"refresh_base_interval": ` + fmt.Sprintf("%d", twoHoursNs) + `
		},
		"market": {
			"base_url": "https://svcs.market.example/v1"
		},
		"mysql": {
			"dsn": "user:pass@tcp(myhost:3306)/mydb"
		}
	}`
	err := os.WriteFile(configPath, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	// Custom values
	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, ":9090", cfg.App.HTTPAddr)
	assert.Equal(t, 8, cfg.Research.Concurrency)
	assert.Equal(t, 2*time.Hour, cfg.Research.RefreshBaseInterval)
	assert.Equal(t, "https://svcs.market.example/v1", cfg.Market.BaseURL)
	assert.Equal(t, "user:pass@tcp(myhost:3306)/mydb", cfg.MySQL.DSN)

	// Default values for unspecified fields
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, 1*time.Hour, cfg.Research.RefreshMinInterval)
	assert.Equal(t, 15*time.Second, cfg.Market.Timeout)
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.json")

	// Write invalid JSON
	err := os.WriteFile(configPath, []byte(`{invalid json`), 0644)
	require.NoError(t, err)

	_, err = Load(configPath)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "parse config file")
}

func TestEnvOverrides(t *testing.T) {
	// Save original env vars
	origEnv := os.Getenv("APP_ENV")
	origHTTP := os.Getenv("APP_HTTP_ADDR")
	origConcurrency := os.Getenv("RESEARCH_CONCURRENCY")
	origDBDSN := os.Getenv("DB_DSN")
	origRedis := os.Getenv("REDIS_ADDR")
	origAdminKey := os.Getenv("ADMIN_API_KEY")
	origMarket := os.Getenv("MARKET_BASE_URL")
	origRate := os.Getenv("MARKET_RATE_LIMIT")

	defer func() {
		os.Setenv("APP_ENV", origEnv)
		os.Setenv("APP_HTTP_ADDR", origHTTP)
		os.Setenv("RESEARCH_CONCURRENCY", origConcurrency)
		os.Setenv("DB_DSN", origDBDSN)
		os.Setenv("REDIS_ADDR", origRedis)
		os.Setenv("ADMIN_API_KEY", origAdminKey)
		os.Setenv("MARKET_BASE_URL", origMarket)
		os.Setenv("MARKET_RATE_LIMIT", origRate)
	}()

	// Set env vars
	os.Setenv("APP_ENV", "test")
	os.Setenv("APP_HTTP_ADDR", ":7070")
	os.Setenv("RESEARCH_CONCURRENCY", "5")
	os.Setenv("DB_DSN", "testuser:testpass@tcp(testhost:3306)/testdb")
	os.Setenv("REDIS_ADDR", "redis.test:6379")
	os.Setenv("ADMIN_API_KEY", "test_admin_key_123")
	os.Setenv("MARKET_BASE_URL", "https://market.test/v1")
	os.Setenv("MARKET_RATE_LIMIT", "10.5")

	cfg, err := Load("/non/existent/path")
	require.NoError(t, err)

	// Verify env overrides
	assert.Equal(t, "test", cfg.App.Env)
	assert.Equal(t, ":7070", cfg.App.HTTPAddr)
	assert.Equal(t, 5, cfg.Research.Concurrency)
	assert.Equal(t, "testuser:testpass@tcp(testhost:3306)/testdb", cfg.MySQL.DSN)
	assert.Equal(t, "redis.test:6379", cfg.Redis.Addr)
	assert.Equal(t, "test_admin_key_123", cfg.App.AdminAPIKey)
	assert.Equal(t, "https://market.test/v1", cfg.Market.BaseURL)
	assert.Equal(t, 10.5, cfg.Market.RateLimit)
}

func TestResearchEnvOverrides(t *testing.T) {
	// Save original env vars
	origWindow := os.Getenv("RESEARCH_TREND_WINDOW_DAYS")
	origThreshold := os.Getenv("RESEARCH_CHANGE_THRESHOLD")
	origRetention := os.Getenv("RESEARCH_RETENTION")
	origBase := os.Getenv("REFRESH_BASE_INTERVAL")
	origMin := os.Getenv("REFRESH_MIN_INTERVAL")
	origMax := os.Getenv("REFRESH_MAX_INTERVAL")
	origResume := os.Getenv("RESEARCH_RESUME")

	defer func() {
		os.Setenv("RESEARCH_TREND_WINDOW_DAYS", origWindow)
		os.Setenv("RESEARCH_CHANGE_THRESHOLD", origThreshold)
		os.Setenv("RESEARCH_RETENTION", origRetention)
		os.Setenv("REFRESH_BASE_INTERVAL", origBase)
		os.Setenv("REFRESH_MIN_INTERVAL", origMin)
		os.Setenv("REFRESH_MAX_INTERVAL", origMax)
		os.Setenv("RESEARCH_RESUME", origResume)
	}()

	// Set env vars
	os.Setenv("RESEARCH_TREND_WINDOW_DAYS", "14")
	os.Setenv("RESEARCH_CHANGE_THRESHOLD", "25.5")
	os.Setenv("RESEARCH_RETENTION", "720h")
	os.Setenv("REFRESH_BASE_INTERVAL", "3h")
	os.Setenv("REFRESH_MIN_INTERVAL", "30m")
	os.Setenv("REFRESH_MAX_INTERVAL", "12h")
	os.Setenv("RESEARCH_RESUME", "true")

	cfg, err := Load("/non/existent/path")
	require.NoError(t, err)

	assert.Equal(t, 14, cfg.Research.TrendWindowDays)
	assert.Equal(t, 25.5, cfg.Research.ChangeThreshold)
	assert.Equal(t, 720*time.Hour, cfg.Research.Retention)
	assert.Equal(t, 3*time.Hour, cfg.Research.RefreshBaseInterval)
	assert.Equal(t, 30*time.Minute, cfg.Research.RefreshMinInterval)
	assert.Equal(t, 12*time.Hour, cfg.Research.RefreshMaxInterval)
	assert.True(t, cfg.Research.Resume)
}

func TestSheetAndFXEnvOverrides(t *testing.T) {
	// Save original env vars
	origPath := os.Getenv("SHEET_PATH")
	origName := os.Getenv("SHEET_NAME")
	origWriteBack := os.Getenv("SHEET_WRITE_BACK")
	origEndpoint := os.Getenv("FX_ENDPOINT")
	origTarget := os.Getenv("FX_TARGET")
	origTTL := os.Getenv("FX_CACHE_TTL")

	defer func() {
		os.Setenv("SHEET_PATH", origPath)
		os.Setenv("SHEET_NAME", origName)
		os.Setenv("SHEET_WRITE_BACK", origWriteBack)
		os.Setenv("FX_ENDPOINT", origEndpoint)
		os.Setenv("FX_TARGET", origTarget)
		os.Setenv("FX_CACHE_TTL", origTTL)
	}()

	// Set env vars
	os.Setenv("SHEET_PATH", "/data/catalog.xlsx")
	os.Setenv("SHEET_NAME", "products")
	os.Setenv("SHEET_WRITE_BACK", "false")
	os.Setenv("FX_ENDPOINT", "https://fx.test/latest/USD")
	os.Setenv("FX_TARGET", "EUR")
	os.Setenv("FX_CACHE_TTL", "6h")

	cfg, err := Load("/non/existent/path")
	require.NoError(t, err)

	assert.Equal(t, "/data/catalog.xlsx", cfg.Sheet.Path)
	assert.Equal(t, "products", cfg.Sheet.SheetName)
	assert.False(t, cfg.Sheet.WriteBack)
	assert.Equal(t, "https://fx.test/latest/USD", cfg.FX.Endpoint)
	assert.Equal(t, "EUR", cfg.FX.Target)
	assert.Equal(t, 6*time.Hour, cfg.FX.CacheTTL)
}

func TestResearchConfig_CalculateInterval(t *testing.T) {
	cfg := &ResearchConfig{
		RefreshBaseInterval: 6 * time.Hour,
		RefreshMinInterval:  1 * time.Hour,
		RefreshMaxInterval:  24 * time.Hour,
	}

	tests := []struct {
		name     string
		weight   float64
		expected time.Duration
	}{
		{
			name:     "weight 1.0 returns base interval",
			weight:   1.0,
			expected: 6 * time.Hour,
		},
		{
			name:     "weight 2.0 halves the interval",
			weight:   2.0,
			expected: 3 * time.Hour,
		},
		{
			name:     "high weight capped at min interval",
			weight:   12.0,
			expected: 1 * time.Hour, // 6h/12 = 30m, but min is 1h
		},
		{
			name:     "low weight capped at max interval",
			weight:   0.1,
			expected: 24 * time.Hour, // 6h/0.1 = 60h, but max is 24h
		},
		{
			name:     "zero weight treated as 1.0",
			weight:   0,
			expected: 6 * time.Hour,
		},
		{
			name:     "negative weight treated as 1.0",
			weight:   -1.0,
			expected: 6 * time.Hour,
		},
		{
			name:     "weight 0.5 doubles the interval",
			weight:   0.5,
			expected: 12 * time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := cfg.CalculateInterval(tt.weight)
			assert.Equal(t, tt.expected, result)
		})
	}
}
