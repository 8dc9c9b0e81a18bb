package trend

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"sedoritop/internal/statistics"
)

// render.go 报表的文本呈现
// 数字的正确性由上游各计算函数保证, 这里只负责排版。

// RenderAnalysis 单个商品的趋势摘要
func RenderAnalysis(w io.Writer, a Analysis) {
	fmt.Fprintf(w, "%s\n", a.Product.Name)
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", 56))
	fmt.Fprintf(w, "  window:    %d days (%d snapshots)\n", a.WindowDays, a.Points)
	fmt.Fprintf(w, "  direction: %s\n", a.Direction)
	fmt.Fprintf(w, "  balance:   %s\n", formatPct(a.BalanceChangePct))
	fmt.Fprintf(w, "  avg price: %s\n", formatPct(a.AvgPriceChangePct))
	fmt.Fprintf(w, "  advice:    %s\n", a.Narrative)
}

// RenderReport 价格统计报告, 含分布条形图
func RenderReport(w io.Writer, r statistics.Report) {
	s := r.Summary
	fmt.Fprintf(w, "  samples: %d  avg: %.2f  median: %.2f  range: %.0f-%.0f  stddev: %.2f\n",
		s.Count, s.Avg, s.Median, s.Min, s.Max, s.Stddev)
	for _, b := range r.Buckets {
		fmt.Fprintf(w, "  %7.0f-%-7.0f %s %5.1f%% (%d)\n", b.Low, b.High, b.Bar, b.Pct, b.Count)
	}
	fmt.Fprintf(w, "  volume zone: %.0f-%.0f (%d items)\n", r.VolumeZone.Low, r.VolumeZone.High, r.VolumeZone.Count)
	fmt.Fprintf(w, "  sweet spot:  %.0f-%.0f\n", r.SweetSpot.Low, r.SweetSpot.High)
	fmt.Fprintf(w, "  buy <= %.0f  sell ~ %.0f  margin %.1f%%\n",
		r.Recommendation.BuyPrice, r.Recommendation.SellPrice, r.Recommendation.MarginPct)
	if r.Advisory != "" {
		fmt.Fprintf(w, "  note: %s\n", r.Advisory)
	}
}

// RenderConditionBreakdown 按成色分组的价格摘要, 成色代码升序
func RenderConditionBreakdown(w io.Writer, byCondition map[string]statistics.Summary) {
	if len(byCondition) == 0 {
		return
	}
	conds := make([]string, 0, len(byCondition))
	for c := range byCondition {
		conds = append(conds, c)
	}
	sort.Strings(conds)
	for _, c := range conds {
		s := byCondition[c]
		fmt.Fprintf(w, "  cond %-6s samples: %-4d avg: %.2f  median: %.2f  range: %.0f-%.0f\n",
			c, s.Count, s.Avg, s.Median, s.Min, s.Max)
	}
}

// RenderRising 上升商品榜
func RenderRising(w io.Writer, analyses []Analysis) {
	if len(analyses) == 0 {
		fmt.Fprintln(w, "  (no rising products)")
		return
	}
	for i, a := range analyses {
		fmt.Fprintf(w, "  %2d. %-32s balance %s  price %s\n",
			i+1, a.Product.Name, formatPct(a.BalanceChangePct), formatPct(a.AvgPriceChangePct))
	}
}

// RenderPriceChanges 价格变动报告
func RenderPriceChanges(w io.Writer, r *PriceChangeReport) {
	if r == nil {
		return
	}
	fmt.Fprintf(w, "Price changes over %d days (threshold %.0f%%)\n", r.WindowDays, r.ThresholdPct)
	for _, c := range r.Rising {
		fmt.Fprintf(w, "  [UP]   %-32s %8.0f -> %-8.0f %+.2f%%\n",
			c.Product.Name, c.OldestAvg, c.NewestAvg, c.ChangePct)
	}
	for _, c := range r.Falling {
		fmt.Fprintf(w, "  [DOWN] %-32s %8.0f -> %-8.0f %+.2f%%\n",
			c.Product.Name, c.OldestAvg, c.NewestAvg, c.ChangePct)
	}
	fmt.Fprintf(w, "Summary: %d rising, %d falling\n", len(r.Rising), len(r.Falling))
}

func formatPct(pct *float64) string {
	if pct == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+.2f%%", *pct)
}
