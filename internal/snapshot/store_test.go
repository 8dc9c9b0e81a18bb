package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"sedoritop/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestStore(t *testing.T) (*Store, *gorm.DB) {
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
		deleted_at DATETIME,
		UNIQUE(row_number)
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

	return NewStore(db, nil), db
}

func seedProduct(t *testing.T, db *gorm.DB, rowNumber int, name string) uint64 {
	t.Helper()
	p := &model.Product{
		RowNumber: rowNumber,
		Name:      name,
		Status:    model.ProductStatusActive,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
	return p.ID
}

func TestRecord_UnknownProduct(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.Record(context.Background(), 999, Measurement{})
	if !errors.Is(err, ErrUnknownProduct) {
		t.Errorf("expected ErrUnknownProduct, got %v", err)
	}
}

func TestRecord_AppendsSnapshot(t *testing.T) {
	store, db := setupTestStore(t)
	id := seedProduct(t, db, 1, "フィギュア A")

	recordedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	snap, err := store.Record(context.Background(), id, Measurement{
		ActiveCount: u32(10),
		SoldCount:   u32(20),
		Balance:     f64(2.0),
		AvgPrice:    f64(1500),
		MinPrice:    f64(980),
		MaxPrice:    f64(2200),
		SampleCount: 18,
		RecordedAt:  recordedAt,
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if snap.ID == 0 {
		t.Error("snapshot ID should be assigned")
	}
	if !snap.RecordedAt.Equal(recordedAt) {
		t.Errorf("RecordedAt = %v, want %v", snap.RecordedAt, recordedAt)
	}

	var count int64
	db.Raw("SELECT COUNT(*) FROM snapshots WHERE product_id = ?", id).Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 snapshot row, got %d", count)
	}
}

func TestRecord_DefaultsRecordedAt(t *testing.T) {
	store, db := setupTestStore(t)
	id := seedProduct(t, db, 1, "フィギュア A")

	before := time.Now().UTC().Add(-time.Second)
	snap, err := store.Record(context.Background(), id, Measurement{})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	after := time.Now().UTC().Add(time.Second)

	if snap.RecordedAt.Before(before) || snap.RecordedAt.After(after) {
		t.Errorf("RecordedAt = %v, want between %v and %v", snap.RecordedAt, before, after)
	}
}

func TestRecord_NilFieldsStayNil(t *testing.T) {
	store, db := setupTestStore(t)
	id := seedProduct(t, db, 1, "フィギュア A")

	// 上游失败时计数缺失, 原样落库
	snap, err := store.Record(context.Background(), id, Measurement{
		SoldCount: u32(5),
		Balance:   f64(0.0),
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if snap.ActiveCount != nil {
		t.Errorf("ActiveCount = %v, want nil", *snap.ActiveCount)
	}
	if snap.AvgPrice != nil {
		t.Errorf("AvgPrice = %v, want nil", *snap.AvgPrice)
	}

	var nullCount int64
	db.Raw("SELECT COUNT(*) FROM snapshots WHERE product_id = ? AND active_count IS NULL", id).Scan(&nullCount)
	if nullCount != 1 {
		t.Errorf("expected active_count stored as NULL")
	}
}

func mustRecord(t *testing.T, store *Store, productID uint64, m Measurement) {
	t.Helper()
	if _, err := store.Record(context.Background(), productID, m); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
}

func TestLatest(t *testing.T) {
	store, db := setupTestStore(t)
	id := seedProduct(t, db, 1, "フィギュア A")

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	// 乱序写入, Latest 应按 recorded_at 取最新
	mustRecord(t, store, id, Measurement{Balance: f64(1.0), RecordedAt: base.Add(24 * time.Hour)})
	mustRecord(t, store, id, Measurement{Balance: f64(3.0), RecordedAt: base.Add(72 * time.Hour)})
	mustRecord(t, store, id, Measurement{Balance: f64(2.0), RecordedAt: base.Add(48 * time.Hour)})

	snap, err := store.Latest(context.Background(), id)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if snap.Balance == nil || *snap.Balance != 3.0 {
		t.Errorf("Latest balance = %v, want 3.0", snap.Balance)
	}
	if snap.RecordedAt.Unix() != base.Add(72*time.Hour).Unix() {
		t.Errorf("Latest recorded_at = %v, want %v", snap.RecordedAt, base.Add(72*time.Hour))
	}
}

func TestLatest_NoSnapshots(t *testing.T) {
	store, db := setupTestStore(t)
	id := seedProduct(t, db, 1, "フィギュア A")

	_, err := store.Latest(context.Background(), id)
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestProductSince(t *testing.T) {
	store, db := setupTestStore(t)
	p1 := seedProduct(t, db, 1, "フィギュア A")
	p2 := seedProduct(t, db, 2, "フィギュア B")

	now := time.Now().UTC().Truncate(time.Second)
	mustRecord(t, store, p1, Measurement{Balance: f64(1.0), RecordedAt: now.Add(-10 * 24 * time.Hour)})
	mustRecord(t, store, p1, Measurement{Balance: f64(2.0), RecordedAt: now.Add(-3 * 24 * time.Hour)})
	mustRecord(t, store, p1, Measurement{Balance: f64(3.0), RecordedAt: now.Add(-24 * time.Hour)})
	mustRecord(t, store, p2, Measurement{Balance: f64(9.0), RecordedAt: now.Add(-24 * time.Hour)})

	snaps, err := store.ProductSince(context.Background(), p1, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("ProductSince failed: %v", err)
	}

	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	// 按时间升序
	if *snaps[0].Balance != 2.0 || *snaps[1].Balance != 3.0 {
		t.Errorf("order = [%.1f %.1f], want [2.0 3.0]", *snaps[0].Balance, *snaps[1].Balance)
	}
	for _, snap := range snaps {
		if snap.ProductID != p1 {
			t.Errorf("got snapshot for product %d, want %d", snap.ProductID, p1)
		}
	}
}

func TestSince(t *testing.T) {
	store, db := setupTestStore(t)
	p1 := seedProduct(t, db, 1, "フィギュア A")
	p2 := seedProduct(t, db, 2, "フィギュア B")

	now := time.Now().UTC().Truncate(time.Second)
	mustRecord(t, store, p1, Measurement{RecordedAt: now.Add(-10 * 24 * time.Hour)})
	mustRecord(t, store, p1, Measurement{RecordedAt: now.Add(-2 * 24 * time.Hour)})
	mustRecord(t, store, p2, Measurement{RecordedAt: now.Add(-24 * time.Hour)})

	snaps, err := store.Since(context.Background(), now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("Since failed: %v", err)
	}

	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if !snaps[0].RecordedAt.Before(snaps[1].RecordedAt) {
		t.Errorf("snapshots not in ascending order: %v, %v", snaps[0].RecordedAt, snaps[1].RecordedAt)
	}
}

func TestCleanupOlderThan(t *testing.T) {
	store, db := setupTestStore(t)
	id := seedProduct(t, db, 1, "フィギュア A")

	now := time.Now().UTC().Truncate(time.Second)
	mustRecord(t, store, id, Measurement{RecordedAt: now.Add(-100 * 24 * time.Hour)})
	mustRecord(t, store, id, Measurement{RecordedAt: now.Add(-50 * 24 * time.Hour)})
	mustRecord(t, store, id, Measurement{RecordedAt: now.Add(-24 * time.Hour)})

	deleted, err := store.CleanupOlderThan(context.Background(), 60*24*time.Hour)
	if err != nil {
		t.Fatalf("CleanupOlderThan failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	var remaining int64
	db.Raw("SELECT COUNT(*) FROM snapshots").Scan(&remaining)
	if remaining != 2 {
		t.Errorf("remaining = %d, want 2", remaining)
	}

	// 再次清理应无事可做
	deleted, err = store.CleanupOlderThan(context.Background(), 60*24*time.Hour)
	if err != nil {
		t.Fatalf("second CleanupOlderThan failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("second cleanup deleted = %d, want 0", deleted)
	}
}

func TestSignificantChanges(t *testing.T) {
	store, db := setupTestStore(t)
	p1 := seedProduct(t, db, 1, "フィギュア A")
	p2 := seedProduct(t, db, 2, "フィギュア B")
	p3 := seedProduct(t, db, 3, "ぬいぐるみ C")

	now := time.Now().UTC().Truncate(time.Second)
	// A: 均价翻倍
	mustRecord(t, store, p1, Measurement{AvgPrice: f64(100), RecordedAt: now.Add(-5 * 24 * time.Hour)})
	mustRecord(t, store, p1, Measurement{AvgPrice: f64(200), RecordedAt: now.Add(-24 * time.Hour)})
	// B: 变动低于阈值
	mustRecord(t, store, p2, Measurement{AvgPrice: f64(100), RecordedAt: now.Add(-5 * 24 * time.Hour)})
	mustRecord(t, store, p2, Measurement{AvgPrice: f64(105), RecordedAt: now.Add(-24 * time.Hour)})
	// C: 只有一条
	mustRecord(t, store, p3, Measurement{AvgPrice: f64(300), RecordedAt: now.Add(-24 * time.Hour)})

	changes, err := store.SignificantChanges(context.Background(), 10, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("SignificantChanges failed: %v", err)
	}

	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	change := changes[0]
	if change.Product.Name != "フィギュア A" {
		t.Errorf("Product.Name = %s, want フィギュア A", change.Product.Name)
	}
	if change.ChangePct != 100.0 {
		t.Errorf("ChangePct = %.2f, want 100.00", change.ChangePct)
	}
	if change.OldestAvg != 100 || change.NewestAvg != 200 {
		t.Errorf("avg = %.0f -> %.0f, want 100 -> 200", change.OldestAvg, change.NewestAvg)
	}
	if change.Points != 2 {
		t.Errorf("Points = %d, want 2", change.Points)
	}
}

func TestSignificantChanges_SortsByMagnitude(t *testing.T) {
	store, db := setupTestStore(t)
	p1 := seedProduct(t, db, 1, "A")
	p2 := seedProduct(t, db, 2, "B")
	p3 := seedProduct(t, db, 3, "C")

	now := time.Now().UTC().Truncate(time.Second)
	mustRecord(t, store, p1, Measurement{AvgPrice: f64(100), RecordedAt: now.Add(-48 * time.Hour)})
	mustRecord(t, store, p1, Measurement{AvgPrice: f64(120), RecordedAt: now.Add(-time.Hour)}) // +20%
	mustRecord(t, store, p2, Measurement{AvgPrice: f64(100), RecordedAt: now.Add(-48 * time.Hour)})
	mustRecord(t, store, p2, Measurement{AvgPrice: f64(50), RecordedAt: now.Add(-time.Hour)}) // -50%
	mustRecord(t, store, p3, Measurement{AvgPrice: f64(100), RecordedAt: now.Add(-48 * time.Hour)})
	mustRecord(t, store, p3, Measurement{AvgPrice: f64(130), RecordedAt: now.Add(-time.Hour)}) // +30%

	changes, err := store.SignificantChanges(context.Background(), 10, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("SignificantChanges failed: %v", err)
	}

	if len(changes) != 3 {
		t.Fatalf("expected 3 changes, got %d", len(changes))
	}
	// 按幅度绝对值降序: -50%, +30%, +20%
	wantOrder := []string{"B", "C", "A"}
	for i, want := range wantOrder {
		if changes[i].Product.Name != want {
			t.Errorf("changes[%d] = %s, want %s", i, changes[i].Product.Name, want)
		}
	}
}

func TestSignificantChanges_EmptyWindow(t *testing.T) {
	store, _ := setupTestStore(t)

	changes, err := store.SignificantChanges(context.Background(), 10, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("SignificantChanges failed: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("expected no changes, got %d", len(changes))
	}
}
