// Package trend 趋势分析
//
// 基于快照窗口判断商品的需求走向: 窗口内最旧与最新两条快照做对比,
// 按天平值变化率分类为 rising / falling / stable, 数据不足时为 unknown。
package trend

import (
	"sedoritop/internal/model"
	"sedoritop/internal/snapshot"
)

// Direction 需求走向
type Direction string

const (
	DirectionRising  Direction = "rising"
	DirectionFalling Direction = "falling"
	DirectionStable  Direction = "stable"
	DirectionUnknown Direction = "unknown"
)

// 方向判定阈值 (天平值变化百分比, 含边界)
const (
	risingThresholdPct  = 10.0
	fallingThresholdPct = -10.0
)

// 各走向对应的建议话术
const (
	narrativeRising  = "demand surging, consider buying"
	narrativeFalling = "demand declining, wait and watch"
	narrativeStable  = "stable demand, keep monitoring"
	narrativeUnknown = "insufficient data to judge"
)

// Analysis 单个商品的趋势分析结果
type Analysis struct {
	Product           model.Product `json:"product"`
	WindowDays        int           `json:"window_days"`
	Points            int           `json:"points"`
	Sufficient        bool          `json:"sufficient"`
	Direction         Direction     `json:"direction"`
	BalanceChangePct  *float64      `json:"balance_change_pct"`
	AvgPriceChangePct *float64      `json:"avg_price_change_pct"`
	Narrative         string        `json:"narrative"`
}

// Analyze 对窗口内的快照序列做趋势判断
// 纯函数。snaps 必须按 recorded_at 升序; 少于两条视为数据不足,
// 走向 unknown (单点无法构成趋势)。
func Analyze(product model.Product, snaps []model.Snapshot, days int) Analysis {
	a := Analysis{
		Product:    product,
		WindowDays: days,
		Points:     len(snaps),
		Direction:  DirectionUnknown,
	}
	if len(snaps) < 2 {
		a.Narrative = NarrativeFor(DirectionUnknown)
		return a
	}

	a.Sufficient = true
	diff := snapshot.Compare(&snaps[len(snaps)-1], &snaps[0])
	a.BalanceChangePct = diff.BalanceChangePct
	a.AvgPriceChangePct = diff.AvgPriceChangePct
	a.Direction = classifyDirection(diff.BalanceChangePct)
	a.Narrative = NarrativeFor(a.Direction)
	return a
}

// classifyDirection 天平值变化率 → 走向
func classifyDirection(pct *float64) Direction {
	switch {
	case pct == nil:
		return DirectionUnknown
	case *pct >= risingThresholdPct:
		return DirectionRising
	case *pct <= fallingThresholdPct:
		return DirectionFalling
	default:
		return DirectionStable
	}
}

// NarrativeFor 走向对应的建议话术
func NarrativeFor(d Direction) string {
	switch d {
	case DirectionRising:
		return narrativeRising
	case DirectionFalling:
		return narrativeFalling
	case DirectionStable:
		return narrativeStable
	default:
		return narrativeUnknown
	}
}
