package trend

import (
	"context"
	"errors"
	"testing"
	"time"

	"sedoritop/internal/model"
	"sedoritop/internal/snapshot"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestAnalyzer(t *testing.T) (*Analyzer, *snapshot.Store, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	// 创建简化版表 (用于测试)
	db.Exec(`CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		row_number INTEGER,
		category TEXT DEFAULT '',
		maker TEXT DEFAULT '',
		name TEXT,
		active_url TEXT DEFAULT '',
		sold_url TEXT DEFAULT '',
		weight REAL DEFAULT 1.0,
		status TEXT DEFAULT 'active',
		notes TEXT,
		last_researched_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`)
	db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id INTEGER,
		active_count INTEGER,
		sold_count INTEGER,
		balance REAL,
		avg_price REAL,
		median_price REAL,
		min_price REAL,
		max_price REAL,
		price_stddev REAL,
		sample_count INTEGER DEFAULT 0,
		avg_price_jpy INTEGER,
		recorded_at DATETIME,
		created_at DATETIME
	)`)

	store := snapshot.NewStore(db, nil)
	return NewAnalyzer(db, store, nil), store, db
}

func seedProduct(t *testing.T, db *gorm.DB, rowNumber int, name string, status model.ProductStatus) uint64 {
	t.Helper()
	p := &model.Product{
		RowNumber: rowNumber,
		Name:      name,
		Status:    status,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
	return p.ID
}

func record(t *testing.T, store *snapshot.Store, productID uint64, balance, avgPrice *float64, at time.Time) {
	t.Helper()
	_, err := store.Record(context.Background(), productID, snapshot.Measurement{
		Balance:    balance,
		AvgPrice:   avgPrice,
		RecordedAt: at,
	})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
}

func TestProductTrend(t *testing.T) {
	analyzer, store, db := setupTestAnalyzer(t)
	id := seedProduct(t, db, 1, "フィギュア A", model.ProductStatusActive)

	now := time.Now().UTC().Truncate(time.Second)
	record(t, store, id, f64(0.3), nil, now.Add(-20*24*time.Hour))
	record(t, store, id, f64(0.6), nil, now.Add(-10*24*time.Hour))
	record(t, store, id, f64(1.2), nil, now.Add(-24*time.Hour))

	a, err := analyzer.ProductTrend(context.Background(), id, 30)
	if err != nil {
		t.Fatalf("ProductTrend failed: %v", err)
	}

	if a.Direction != DirectionRising {
		t.Errorf("Direction = %s, want rising", a.Direction)
	}
	pctIs(t, "BalanceChangePct", a.BalanceChangePct, 300.0)
	if a.Points != 3 {
		t.Errorf("Points = %d, want 3", a.Points)
	}
	if a.Product.Name != "フィギュア A" {
		t.Errorf("Product.Name = %s", a.Product.Name)
	}
}

func TestProductTrend_WindowExcludesOld(t *testing.T) {
	analyzer, store, db := setupTestAnalyzer(t)
	id := seedProduct(t, db, 1, "フィギュア A", model.ProductStatusActive)

	now := time.Now().UTC().Truncate(time.Second)
	// 窗口外的高位不应参与对比
	record(t, store, id, f64(5.0), nil, now.Add(-40*24*time.Hour))
	record(t, store, id, f64(1.0), nil, now.Add(-10*24*time.Hour))
	record(t, store, id, f64(1.05), nil, now.Add(-24*time.Hour))

	a, err := analyzer.ProductTrend(context.Background(), id, 30)
	if err != nil {
		t.Fatalf("ProductTrend failed: %v", err)
	}

	if a.Points != 2 {
		t.Errorf("Points = %d, want 2 (window should exclude the 40d-old snapshot)", a.Points)
	}
	if a.Direction != DirectionStable {
		t.Errorf("Direction = %s, want stable", a.Direction)
	}
}

func TestProductTrend_UnknownProduct(t *testing.T) {
	analyzer, _, _ := setupTestAnalyzer(t)

	_, err := analyzer.ProductTrend(context.Background(), 999, 30)
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestProductTrend_NoSnapshots(t *testing.T) {
	analyzer, _, db := setupTestAnalyzer(t)
	id := seedProduct(t, db, 1, "フィギュア A", model.ProductStatusActive)

	a, err := analyzer.ProductTrend(context.Background(), id, 30)
	if err != nil {
		t.Fatalf("ProductTrend failed: %v", err)
	}
	if a.Sufficient || a.Direction != DirectionUnknown {
		t.Errorf("no snapshots: Sufficient=%v Direction=%s", a.Sufficient, a.Direction)
	}
}

func TestRisingProducts(t *testing.T) {
	analyzer, store, db := setupTestAnalyzer(t)
	pA := seedProduct(t, db, 1, "A", model.ProductStatusActive)
	pB := seedProduct(t, db, 2, "B", model.ProductStatusActive)
	pC := seedProduct(t, db, 3, "C", model.ProductStatusActive)
	pPaused := seedProduct(t, db, 4, "P", model.ProductStatusPaused)

	now := time.Now().UTC().Truncate(time.Second)
	// A: +300%
	record(t, store, pA, f64(0.3), nil, now.Add(-20*24*time.Hour))
	record(t, store, pA, f64(1.2), nil, now.Add(-24*time.Hour))
	// B: +20%
	record(t, store, pB, f64(1.0), nil, now.Add(-20*24*time.Hour))
	record(t, store, pB, f64(1.2), nil, now.Add(-24*time.Hour))
	// C: 下跌
	record(t, store, pC, f64(2.0), nil, now.Add(-20*24*time.Hour))
	record(t, store, pC, f64(1.0), nil, now.Add(-24*time.Hour))
	// 暂停的商品即使暴涨也不纳入
	record(t, store, pPaused, f64(0.1), nil, now.Add(-20*24*time.Hour))
	record(t, store, pPaused, f64(2.0), nil, now.Add(-24*time.Hour))

	rising, err := analyzer.RisingProducts(context.Background(), 30, 0)
	if err != nil {
		t.Fatalf("RisingProducts failed: %v", err)
	}

	if len(rising) != 2 {
		t.Fatalf("expected 2 rising products, got %d", len(rising))
	}
	if rising[0].Product.Name != "A" || rising[1].Product.Name != "B" {
		t.Errorf("order = [%s %s], want [A B]", rising[0].Product.Name, rising[1].Product.Name)
	}

	// limit 截断
	top, err := analyzer.RisingProducts(context.Background(), 30, 1)
	if err != nil {
		t.Fatalf("RisingProducts with limit failed: %v", err)
	}
	if len(top) != 1 || top[0].Product.Name != "A" {
		t.Errorf("limit=1 should keep only A, got %d items", len(top))
	}
}

func TestRisingProducts_Empty(t *testing.T) {
	analyzer, _, _ := setupTestAnalyzer(t)

	rising, err := analyzer.RisingProducts(context.Background(), 30, 10)
	if err != nil {
		t.Fatalf("RisingProducts failed: %v", err)
	}
	if len(rising) != 0 {
		t.Errorf("expected no rising products, got %d", len(rising))
	}
}

func TestPriceChangeReport(t *testing.T) {
	analyzer, store, db := setupTestAnalyzer(t)
	pA := seedProduct(t, db, 1, "A", model.ProductStatusActive)
	pB := seedProduct(t, db, 2, "B", model.ProductStatusActive)
	pC := seedProduct(t, db, 3, "C", model.ProductStatusActive)

	now := time.Now().UTC().Truncate(time.Second)
	// A: +50%
	record(t, store, pA, nil, f64(100), now.Add(-5*24*time.Hour))
	record(t, store, pA, nil, f64(150), now.Add(-24*time.Hour))
	// B: -30%
	record(t, store, pB, nil, f64(100), now.Add(-5*24*time.Hour))
	record(t, store, pB, nil, f64(70), now.Add(-24*time.Hour))
	// C: +5%, 低于阈值
	record(t, store, pC, nil, f64(100), now.Add(-5*24*time.Hour))
	record(t, store, pC, nil, f64(105), now.Add(-24*time.Hour))

	report, err := analyzer.PriceChangeReport(context.Background(), 7, 10)
	if err != nil {
		t.Fatalf("PriceChangeReport failed: %v", err)
	}

	if report.Total != 2 {
		t.Errorf("Total = %d, want 2", report.Total)
	}
	if len(report.Rising) != 1 || report.Rising[0].Product.Name != "A" {
		t.Errorf("Rising = %v, want [A]", report.Rising)
	}
	if len(report.Falling) != 1 || report.Falling[0].Product.Name != "B" {
		t.Errorf("Falling = %v, want [B]", report.Falling)
	}
	if report.WindowDays != 7 || report.ThresholdPct != 10 {
		t.Errorf("report window/threshold = %d/%v", report.WindowDays, report.ThresholdPct)
	}
}
