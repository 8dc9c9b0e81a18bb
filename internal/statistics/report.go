package statistics

import "strings"

// ============================================================================
// 采购建议 - 甜点区间 / 买卖价 / 提示文案
// ============================================================================

// 变异系数与样本量的提示阈值
const (
	cvHighDispersion = 50
	cvStablePricing  = 20
	sizeSteadyDemand = 50
	sizeThinMarket   = 20
)

// 提示文案 (固定措辞, 由测试钉死), 多条用 "; " 连接
const (
	msgHighDispersion = "high price dispersion - verify condition before buying"
	msgStablePricing  = "stable pricing - margins are predictable"
	msgSteadyDemand   = "steady demand - sells reliably"
	msgThinMarket     = "thin market - few samples, treat stats with caution"
)

// PriceRange 价格区间
type PriceRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Recommendation 采购价格建议
type Recommendation struct {
	BuyPrice  float64 `json:"buy_price"`  // P25 * 0.6, 两位小数
	SellPrice float64 `json:"sell_price"` // P50 (最近秩)
	MarginPct float64 `json:"margin_pct"` // (sell-buy)/buy*100, 一位小数
}

// SweetSpot 建议收购价格带: P25 到 P50
// 上界用百分位法 P50, 不是 Median (偶数样本两者会分叉)。
func SweetSpot(prices []float64) (PriceRange, bool) {
	low, ok := Percentile(prices, 25)
	if !ok {
		return PriceRange{}, false
	}
	high, _ := Percentile(prices, 50)
	return PriceRange{Low: low, High: high}, true
}

// Recommend 计算买入/卖出目标价与预期毛利
func Recommend(prices []float64) (Recommendation, bool) {
	p25, ok := Percentile(prices, 25)
	if !ok {
		return Recommendation{}, false
	}
	sell, _ := Percentile(prices, 50)

	buy := round2(p25 * 0.6)
	margin := round1((sell - buy) / buy * 100)

	return Recommendation{
		BuyPrice:  buy,
		SellPrice: sell,
		MarginPct: margin,
	}, true
}

// Advisory 根据变异系数和样本量生成提示文案
// CV = 总体标准差/均值*100; 无触发条件时返回空串。
func Advisory(prices []float64) string {
	n := len(prices)
	if n == 0 {
		return ""
	}

	var sum float64
	for _, p := range prices {
		sum += p
	}
	mean := sum / float64(n)

	var msgs []string
	if mean > 0 {
		cv := Stddev(prices) / mean * 100
		if cv > cvHighDispersion {
			msgs = append(msgs, msgHighDispersion)
		} else if cv < cvStablePricing {
			msgs = append(msgs, msgStablePricing)
		}
	}

	if n >= sizeSteadyDemand {
		msgs = append(msgs, msgSteadyDemand)
	} else if n < sizeThinMarket {
		msgs = append(msgs, msgThinMarket)
	}

	return strings.Join(msgs, "; ")
}

// ============================================================================
// Report - 一次完整分析的打包结果
// ============================================================================

// Report 一个价格样本的完整分析
// Analyze 返回 ok 时所有字段均已填充 (单元素样本也能完整分析)。
type Report struct {
	Summary        Summary        `json:"summary"`
	Buckets        []Bucket       `json:"buckets"`
	VolumeZone     Bucket         `json:"volume_zone"`
	SweetSpot      PriceRange     `json:"sweet_spot"`
	Recommendation Recommendation `json:"recommendation"`
	Advisory       string         `json:"advisory,omitempty"`
}

// Analyze 一次性跑完全部统计
// 空样本返回 (Report{}, false); 调用方负责先过 ValidateSample。
func Analyze(prices []float64) (Report, bool) {
	summary, ok := Summarize(prices)
	if !ok {
		return Report{}, false
	}

	zone, _ := VolumeZone(prices)
	spot, _ := SweetSpot(prices)
	rec, _ := Recommend(prices)

	return Report{
		Summary:        summary,
		Buckets:        Distribution(prices),
		VolumeZone:     zone,
		SweetSpot:      spot,
		Recommendation: rec,
		Advisory:       Advisory(prices),
	}, true
}
