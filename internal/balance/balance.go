package balance

import (
	"math"
	"sort"

	"sedoritop/internal/model"
)

// ============================================================================
// 需求/供给平衡指数
// ============================================================================

// Rank 平衡指数评级
// 闭合枚举: excellent / good / fair / poor, Classify 为全量 switch, 不允许落空。
type Rank string

const (
	RankExcellent Rank = "excellent" // balance >= 2.0 供不应求
	RankGood      Rank = "good"      // balance >= 1.0 卖得比挂得快
	RankFair      Rank = "fair"      // balance >= 0.5 流转一般
	RankPoor      Rank = "poor"      // balance < 0.5 或无法计算
)

// 评级阈值 (下界含等于, 踩线取高档)
const (
	thresholdExcellent = 2.0
	thresholdGood      = 1.0
	thresholdFair      = 0.5
)

// Calculate 计算平衡指数 = sold / active, 保留两位小数 (half-up)。
// - active 缺失或为 0: 返回 nil (比值未定义, 无法评级)
// - sold 缺失或为 0: 返回 0.0 (零需求是良定义的)
// 舍入约定: 四舍五入 (1/8 -> 0.13), 由测试钉死。
func Calculate(sold, active *uint32) *float64 {
	if active == nil || *active == 0 {
		return nil
	}
	if sold == nil || *sold == 0 {
		return ptrFloat64(0.0)
	}
	ratio := float64(*sold) / float64(*active)
	return ptrFloat64(round2(ratio))
}

// Classify 将平衡指数映射到评级
// nil 视同 poor: 没有比值就没有需求证据。
func Classify(balance *float64) Rank {
	switch {
	case balance == nil:
		return RankPoor
	case *balance >= thresholdExcellent:
		return RankExcellent
	case *balance >= thresholdGood:
		return RankGood
	case *balance >= thresholdFair:
		return RankFair
	default:
		return RankPoor
	}
}

// ============================================================================
// 目录级聚合
// ============================================================================

// Entry 一个商品的最新平衡评估, 聚合函数的输入单元
type Entry struct {
	Product model.Product `json:"product"`
	Balance *float64      `json:"balance"`
	Rank    Rank          `json:"rank"`
}

// TopProducts 按平衡指数降序取前 limit 个
// 只保留指数为正的条目; 同分保持输入顺序 (稳定排序)。
func TopProducts(entries []Entry, limit int) []Entry {
	ranked := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Balance != nil && *e.Balance > 0 {
			ranked = append(ranked, e)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return *ranked[i].Balance > *ranked[j].Balance
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// RecommendedProducts 筛选评级为 good / excellent 的条目, 保持输入顺序
func RecommendedProducts(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Rank == RankGood || e.Rank == RankExcellent {
			out = append(out, e)
		}
	}
	return out
}

// GroupStats 按类目或厂商分组的统计
type GroupStats struct {
	Name        string   `json:"name"`
	Count       int      `json:"count"`        // 组内商品总数
	RankedCount int      `json:"ranked_count"` // 指数可计算的商品数
	AvgBalance  *float64 `json:"avg_balance"`  // 组内平均指数 (两位小数), 无可计算指数时为 nil
}

// CategoryStats 按类目分组统计
func CategoryStats(entries []Entry) []GroupStats {
	return groupStats(entries, func(e Entry) string { return e.Product.Category })
}

// MakerStats 按厂商分组统计
func MakerStats(entries []Entry) []GroupStats {
	return groupStats(entries, func(e Entry) string { return e.Product.Maker })
}

// groupStats 分组 -> 计数 + 平均, 排序保证输出确定:
// 平均指数降序, 无指数的组排最后, 同分按组名升序。
func groupStats(entries []Entry, keyOf func(Entry) string) []GroupStats {
	type acc struct {
		count  int
		ranked int
		sum    float64
	}
	groups := make(map[string]*acc)

	for _, e := range entries {
		key := keyOf(e)
		g, ok := groups[key]
		if !ok {
			g = &acc{}
			groups[key] = g
		}
		g.count++
		if e.Balance != nil {
			g.ranked++
			g.sum += *e.Balance
		}
	}

	out := make([]GroupStats, 0, len(groups))
	for name, g := range groups {
		stats := GroupStats{
			Name:        name,
			Count:       g.count,
			RankedCount: g.ranked,
		}
		if g.ranked > 0 {
			stats.AvgBalance = ptrFloat64(round2(g.sum / float64(g.ranked)))
		}
		out = append(out, stats)
	}

	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].AvgBalance, out[j].AvgBalance
		switch {
		case ai != nil && aj != nil && *ai != *aj:
			return *ai > *aj
		case ai != nil && aj == nil:
			return true
		case ai == nil && aj != nil:
			return false
		default:
			return out[i].Name < out[j].Name
		}
	})
	return out
}

// round2 四舍五入到两位小数
// math.Round 对正数即 half-up; 指数恒非负, 语义一致。
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ptrFloat64 返回 float64 指针
func ptrFloat64(v float64) *float64 {
	return &v
}
