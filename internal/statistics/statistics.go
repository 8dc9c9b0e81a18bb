package statistics

import (
	"math"
	"sort"
)

// ============================================================================
// 基础统计 - 均值 / 中位数 / 标准差 / 百分位
// 所有函数都是纯函数: 不修改输入, 无 I/O, 并发安全。
// 空样本统一返回 (零值, false), 不是错误。
// ============================================================================

// Summary 一个价格样本的汇总统计 (货币: USD)
type Summary struct {
	Count  int     `json:"count"`
	Avg    float64 `json:"avg"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Stddev float64 `json:"stddev"`
}

// Summarize 计算样本的汇总统计
// Avg/Median/Stddev 保留两位小数; 空样本返回 (Summary{}, false)。
func Summarize(prices []float64) (Summary, bool) {
	if len(prices) == 0 {
		return Summary{}, false
	}

	var sum float64
	min := prices[0]
	max := prices[0]
	for _, p := range prices {
		sum += p
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
	}
	avg := sum / float64(len(prices))

	median, _ := Median(prices)

	return Summary{
		Count:  len(prices),
		Avg:    round2(avg),
		Median: median,
		Min:    min,
		Max:    max,
		Stddev: round2(Stddev(prices)),
	}, true
}

// Median 中位数: 升序排序后取中间元素
// 偶数个取中间两个的平均, 保留两位小数; 空样本返回 (0, false)。
func Median(prices []float64) (float64, bool) {
	n := len(prices)
	if n == 0 {
		return 0, false
	}

	sorted := sortedCopy(prices)
	if n%2 == 1 {
		return round2(sorted[n/2]), true
	}
	return round2((sorted[n/2-1] + sorted[n/2]) / 2), true
}

// Stddev 总体标准差 (除以 n, 不是 n-1)
// 少于 2 个观测返回 0。
func Stddev(prices []float64) float64 {
	n := len(prices)
	if n < 2 {
		return 0
	}

	var sum float64
	for _, p := range prices {
		sum += p
	}
	mean := sum / float64(n)

	var variance float64
	for _, p := range prices {
		diff := p - mean
		variance += diff * diff
	}
	variance /= float64(n)

	return math.Sqrt(variance)
}

// Percentile 最近秩百分位数
// index = round(p/100 * (n-1)), 四舍五入 (half-up), 返回排序后该下标的元素。
// 注意与 Median 的偶数样本取平均不同: [10,20,30,40] 的 P50 是 30, Median 是 25。
// p 超出 [0,100] 会被钳制; 空样本返回 (0, false)。
func Percentile(prices []float64, p float64) (float64, bool) {
	n := len(prices)
	if n == 0 {
		return 0, false
	}
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}

	sorted := sortedCopy(prices)
	idx := int(math.Round(p / 100 * float64(n-1)))
	return sorted[idx], true
}

// SummarizeByCondition 按成色分组统计
// 分组 -> 每组独立 Summarize, 空分组自然不出现; 非正价观测被丢弃。
func SummarizeByCondition(obs []Observation) map[string]Summary {
	byCondition := make(map[string][]float64)
	for _, o := range obs {
		if o.Price <= 0 {
			continue
		}
		byCondition[o.Condition] = append(byCondition[o.Condition], o.Price)
	}

	out := make(map[string]Summary, len(byCondition))
	for cond, prices := range byCondition {
		if summary, ok := Summarize(prices); ok {
			out[cond] = summary
		}
	}
	return out
}

// sortedCopy 返回升序副本, 不触碰调用方的切片
func sortedCopy(prices []float64) []float64 {
	sorted := make([]float64, len(prices))
	copy(sorted, prices)
	sort.Float64s(sorted)
	return sorted
}

// round2 四舍五入到两位小数 (正数 half-up)
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// round1 四舍五入到一位小数
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
