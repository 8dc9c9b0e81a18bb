package statistics

import (
	"math"
	"strings"
)

// ============================================================================
// 自适应价格分桶 + 直方图
// 两阶段算法:
//   1. 按价差查表定步长, 从 floor(min/step)*step 开始铺桶;
//   2. 若桶数超过 6, 用 step = ceil(span/5) 向上取整到百位重新铺, 硬上限 6 桶。
// 两阶段各自独立实现, 独立测试。
// ============================================================================

const (
	maxBuckets = 6
	barWidth   = 20
)

// Bucket 一个价格区间及其观测分布
// 区间为 [Low, High), 最后一个桶右端闭合; Pct 保留一位小数。
type Bucket struct {
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Count int     `json:"count"`
	Pct   float64 `json:"pct"`
	Bar   string  `json:"bar"`
}

// stepForSpan 第一阶段: 按价差查表选步长
func stepForSpan(span float64) float64 {
	switch {
	case span <= 200:
		return 50
	case span <= 500:
		return 100
	case span <= 1000:
		return 200
	case span <= 2000:
		return 300
	default:
		return 500
	}
}

// edgesForStep 从 floor(min/step)*step 开始, 每次前进 step,
// 直到最后一条边界不小于 max; limit > 0 时桶数硬上限为 limit。
// 单点样本恰好落在步长整数倍上时仍保证至少一个桶。
func edgesForStep(min, max, step float64, limit int) []float64 {
	start := math.Floor(min/step) * step
	edges := []float64{start}

	for edges[len(edges)-1] < max {
		if limit > 0 && len(edges)-1 >= limit {
			break
		}
		edges = append(edges, edges[len(edges)-1]+step)
	}
	if len(edges) == 1 {
		edges = append(edges, start+step)
	}
	return edges
}

// bucketEdges 完整两阶段: 先查表铺桶, 超过 6 桶则换大步长重铺
func bucketEdges(min, max float64) []float64 {
	span := max - min

	step := stepForSpan(span)
	edges := edgesForStep(min, max, step, 0)

	if len(edges)-1 > maxBuckets {
		step = ceilTo100(math.Ceil(span / 5))
		edges = edgesForStep(min, max, step, maxBuckets)
	}
	return edges
}

// Distribution 计算价格直方图
// 每个桶统计 [Low, High) 内的观测, 最后一个桶含 High;
// Pct = count/total*100 一位小数; Bar 为 20 字符条形, 实心格数 = round(Pct/5)。
func Distribution(prices []float64) []Bucket {
	if len(prices) == 0 {
		return nil
	}

	min := prices[0]
	max := prices[0]
	for _, p := range prices {
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
	}

	edges := bucketEdges(min, max)
	buckets := make([]Bucket, len(edges)-1)
	for i := range buckets {
		buckets[i].Low = edges[i]
		buckets[i].High = edges[i+1]
	}

	last := len(buckets) - 1
	for _, p := range prices {
		for i := range buckets {
			inBucket := p >= buckets[i].Low && p < buckets[i].High
			if i == last {
				inBucket = p >= buckets[i].Low && p <= buckets[i].High
			}
			if inBucket {
				buckets[i].Count++
				break
			}
		}
	}

	total := len(prices)
	for i := range buckets {
		buckets[i].Pct = round1(float64(buckets[i].Count) / float64(total) * 100)
		buckets[i].Bar = renderBar(buckets[i].Pct)
	}
	return buckets
}

// VolumeZone 观测最多的价格桶 (成交集中区), 并列取第一个
func VolumeZone(prices []float64) (Bucket, bool) {
	buckets := Distribution(prices)
	if len(buckets) == 0 {
		return Bucket{}, false
	}

	best := buckets[0]
	for _, b := range buckets[1:] {
		if b.Count > best.Count {
			best = b
		}
	}
	return best, true
}

// renderBar 20 字符定宽条形, 每格代表 5 个百分点
func renderBar(pct float64) string {
	filled := int(math.Round(pct / 5))
	if filled > barWidth {
		filled = barWidth
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
}

// ceilTo100 向上取整到最近的 100
func ceilTo100(v float64) float64 {
	return math.Ceil(v/100) * 100
}
