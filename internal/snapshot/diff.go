package snapshot

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"sedoritop/internal/model"
)

// Diff 两个快照之间的变化
// 百分比字段 nil 表示不可计算 (任一侧缺失, 或旧值非正)。
type Diff struct {
	BalanceChangePct  *float64 `json:"balance_change_pct"`
	AvgPriceChangePct *float64 `json:"avg_price_change_pct"`
	ActiveCountDelta  int64    `json:"active_count_delta"`
	SoldCountDelta    int64    `json:"sold_count_delta"`
}

// Compare 计算 newer 相对 older 的变化
// 纯函数, 不校验两条快照是否属于同一商品。
func Compare(newer, older *model.Snapshot) Diff {
	return Diff{
		BalanceChangePct:  pctChange(newer.Balance, older.Balance),
		AvgPriceChangePct: pctChange(newer.AvgPrice, older.AvgPrice),
		ActiveCountDelta:  countDelta(newer.ActiveCount, older.ActiveCount),
		SoldCountDelta:    countDelta(newer.SoldCount, older.SoldCount),
	}
}

// pctChange (new-old)/old*100, 四舍五入保留两位小数
// 除数必须为正, 否则百分比无意义, 返回 nil。
func pctChange(newer, older *float64) *float64 {
	if newer == nil || older == nil || *older <= 0 {
		return nil
	}
	pct := (*newer - *older) / *older * 100
	rounded := math.Round(pct*100) / 100
	return &rounded
}

// countDelta 缺失的计数按 0 处理
func countDelta(newer, older *uint32) int64 {
	var n, o int64
	if newer != nil {
		n = int64(*newer)
	}
	if older != nil {
		o = int64(*older)
	}
	return n - o
}

// Change 一个商品在窗口内的显著价格变动
type Change struct {
	Product   model.Product `json:"product"`
	OldestAvg float64       `json:"oldest_avg"`
	NewestAvg float64       `json:"newest_avg"`
	ChangePct float64       `json:"change_pct"`
	Points    int           `json:"points"` // 窗口内的快照条数
}

// SignificantChanges 找出窗口内均价变动超过阈值的商品
// 按变动幅度绝对值降序返回; 幅度相同时按商品 ID 升序。
func (s *Store) SignificantChanges(ctx context.Context, thresholdPct float64, window time.Duration) ([]Change, error) {
	cutoff := time.Now().UTC().Add(-window)

	var snaps []model.Snapshot
	if err := s.db.WithContext(ctx).
		Where("recorded_at >= ?", cutoff).
		Order("recorded_at ASC").
		Find(&snaps).Error; err != nil {
		return nil, fmt.Errorf("query window snapshots: %w", err)
	}

	byProduct := GroupByProduct(snaps)
	if len(byProduct) == 0 {
		return nil, nil
	}

	ids := make([]uint64, 0, len(byProduct))
	for id := range byProduct {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var products []model.Product
	if err := s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&products).Error; err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	productByID := make(map[uint64]model.Product, len(products))
	for _, p := range products {
		productByID[p.ID] = p
	}

	return rankChanges(productByID, byProduct, ids, thresholdPct), nil
}

// GroupByProduct 按商品分组, 保持输入顺序 (已按 recorded_at 升序)
func GroupByProduct(snaps []model.Snapshot) map[uint64][]model.Snapshot {
	byProduct := make(map[uint64][]model.Snapshot)
	for _, snap := range snaps {
		byProduct[snap.ProductID] = append(byProduct[snap.ProductID], snap)
	}
	return byProduct
}

// rankChanges 对分组后的快照序列做筛选与排序
// 准入条件: 至少两条快照, 首末两端均价齐全, 且最旧一条的均价为正。
func rankChanges(productByID map[uint64]model.Product, byProduct map[uint64][]model.Snapshot, ids []uint64, thresholdPct float64) []Change {
	var changes []Change
	for _, id := range ids {
		seq := byProduct[id]
		if len(seq) < 2 {
			continue
		}
		oldest, newest := seq[0], seq[len(seq)-1]
		pct := pctChange(newest.AvgPrice, oldest.AvgPrice)
		if pct == nil || math.Abs(*pct) < thresholdPct {
			continue
		}
		changes = append(changes, Change{
			Product:   productByID[id],
			OldestAvg: *oldest.AvgPrice,
			NewestAvg: *newest.AvgPrice,
			ChangePct: *pct,
			Points:    len(seq),
		})
	}

	// ids 升序进入, 稳定排序保证同幅度时 ID 小者在前
	sort.SliceStable(changes, func(i, j int) bool {
		return math.Abs(changes[i].ChangePct) > math.Abs(changes[j].ChangePct)
	})
	return changes
}
