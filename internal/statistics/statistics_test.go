package statistics

import (
	"errors"
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	diff := a - b
	return diff < 0.001 && diff > -0.001
}

// ============================================================================
// Median 测试
// ============================================================================

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		want   float64
		wantOK bool
	}{
		{"empty", []float64{}, 0, false},
		{"single", []float64{500}, 500, true},
		{"odd", []float64{10, 30, 20}, 20, true},
		{"even_averages_middle", []float64{10, 20, 30, 40}, 25.0, true},
		{"even_exact_half", []float64{100, 101}, 100.5, true},
		{"unsorted_input", []float64{40, 10, 30, 20}, 25.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Median(tt.prices)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("Median = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMedian_DoesNotMutateInput(t *testing.T) {
	prices := []float64{40, 10, 30, 20}
	_, _ = Median(prices)
	want := []float64{40, 10, 30, 20}
	for i := range prices {
		if prices[i] != want[i] {
			t.Fatalf("input mutated at %d: %v", i, prices)
		}
	}
}

// ============================================================================
// Stddev 测试 (总体标准差)
// ============================================================================

func TestStddev(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		want   float64
	}{
		{"empty", []float64{}, 0},
		{"single", []float64{1000}, 0},
		{"identical", []float64{500, 500, 500, 500}, 0},
		// sqrt(((1000-2000)^2 + 0 + (3000-2000)^2) / 3) ≈ 816.497
		{"population", []float64{1000, 2000, 3000}, 816.4965809277261},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Stddev(tt.prices)
			if !almostEqual(got, tt.want) {
				t.Errorf("Stddev = %v, want %v", got, tt.want)
			}
		})
	}
}

// ============================================================================
// Percentile 测试 (最近秩, 下标四舍五入)
// ============================================================================

func TestPercentile(t *testing.T) {
	sample := []float64{10, 20, 30, 40}

	tests := []struct {
		name string
		p    float64
		want float64
	}{
		{"p0", 0, 10},
		{"p25", 25, 20},   // round(0.75) = 1
		{"p50", 50, 30},   // round(1.5) = 2, 与 Median 的 25.0 分叉
		{"p75", 75, 30},   // round(2.25) = 2
		{"p100", 100, 40},
		{"clamped_low", -10, 10},
		{"clamped_high", 150, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Percentile(sample, tt.p)
			if !ok {
				t.Fatal("expected ok")
			}
			if got != tt.want {
				t.Errorf("Percentile(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestPercentile_Empty(t *testing.T) {
	if _, ok := Percentile(nil, 50); ok {
		t.Error("expected ok=false on empty sample")
	}
}

func TestPercentile_Single(t *testing.T) {
	got, ok := Percentile([]float64{7}, 50)
	if !ok || got != 7 {
		t.Errorf("Percentile([7], 50) = %v, %v; want 7, true", got, ok)
	}
}

// P50 与 Median 对 [10,20,30,40] 必须分叉: 最近秩 vs 取平均
func TestPercentile50_DivergesFromMedian(t *testing.T) {
	sample := []float64{10, 20, 30, 40}

	p50, _ := Percentile(sample, 50)
	median, _ := Median(sample)

	if p50 != 30 {
		t.Errorf("P50 = %v, want 30", p50)
	}
	if median != 25.0 {
		t.Errorf("Median = %v, want 25.0", median)
	}
}

// ============================================================================
// Summarize 测试
// ============================================================================

func TestSummarize(t *testing.T) {
	got, ok := Summarize([]float64{100, 200, 300})
	if !ok {
		t.Fatal("expected ok")
	}

	if got.Count != 3 {
		t.Errorf("Count = %d, want 3", got.Count)
	}
	if got.Avg != 200 {
		t.Errorf("Avg = %v, want 200", got.Avg)
	}
	if got.Median != 200 {
		t.Errorf("Median = %v, want 200", got.Median)
	}
	if got.Min != 100 || got.Max != 300 {
		t.Errorf("Min/Max = %v/%v, want 100/300", got.Min, got.Max)
	}
	// sqrt(20000/3) ≈ 81.6497 -> 81.65
	if got.Stddev != 81.65 {
		t.Errorf("Stddev = %v, want 81.65", got.Stddev)
	}
}

func TestSummarize_Empty(t *testing.T) {
	if _, ok := Summarize(nil); ok {
		t.Error("expected ok=false on empty sample")
	}
}

func TestSummarize_AvgRounded(t *testing.T) {
	// (10 + 10 + 11)/3 = 10.333... -> 10.33
	got, ok := Summarize([]float64{10, 10, 11})
	if !ok {
		t.Fatal("expected ok")
	}
	if got.Avg != 10.33 {
		t.Errorf("Avg = %v, want 10.33", got.Avg)
	}
}

// ============================================================================
// SummarizeByCondition 测试
// ============================================================================

func TestSummarizeByCondition(t *testing.T) {
	obs := []Observation{
		{Price: 100, Condition: "1000"},
		{Price: 200, Condition: "1000"},
		{Price: 50, Condition: "3000"},
		{Price: 0, Condition: "4000"}, // 非正价被丢弃, 分组不出现
	}

	got := SummarizeByCondition(obs)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}

	mint, ok := got["1000"]
	if !ok {
		t.Fatal("missing condition 1000")
	}
	if mint.Count != 2 || mint.Avg != 150 {
		t.Errorf("condition 1000: count=%d avg=%v, want 2/150", mint.Count, mint.Avg)
	}

	used, ok := got["3000"]
	if !ok {
		t.Fatal("missing condition 3000")
	}
	if used.Count != 1 || used.Avg != 50 {
		t.Errorf("condition 3000: count=%d avg=%v, want 1/50", used.Count, used.Avg)
	}

	if _, ok := got["4000"]; ok {
		t.Error("condition 4000 should be dropped (no valid prices)")
	}
}

func TestSummarizeByCondition_Empty(t *testing.T) {
	if got := SummarizeByCondition(nil); len(got) != 0 {
		t.Errorf("expected empty map, got %v", got)
	}
}

// ============================================================================
// ValidateSample 测试
// ============================================================================

func TestValidateSample(t *testing.T) {
	tests := []struct {
		name       string
		prices     []float64
		wantIndex  int
		wantReason string
	}{
		{"negative", []float64{-1}, 0, "non-positive"},
		{"zero_later", []float64{5, 0}, 1, "non-positive"},
		{"nan", []float64{10, math.NaN()}, 1, "not-finite"},
		{"inf", []float64{math.Inf(1)}, 0, "not-finite"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSample(tt.prices)
			if err == nil {
				t.Fatal("expected error")
			}

			var sampleErr *SampleError
			if !errors.As(err, &sampleErr) {
				t.Fatalf("expected *SampleError, got %T", err)
			}
			if sampleErr.Index != tt.wantIndex {
				t.Errorf("Index = %d, want %d", sampleErr.Index, tt.wantIndex)
			}
			if sampleErr.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", sampleErr.Reason, tt.wantReason)
			}
		})
	}
}

func TestValidateSample_Valid(t *testing.T) {
	if err := ValidateSample([]float64{0.01, 1, 99999}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	// 空样本是"数据不足", 不是校验错误
	if err := ValidateSample(nil); err != nil {
		t.Errorf("unexpected error on empty sample: %v", err)
	}
}

// ============================================================================
// Prices 测试
// ============================================================================

func TestPrices(t *testing.T) {
	obs := []Observation{
		{Price: 100},
		{Price: 0},
		{Price: -5},
		{Price: 200},
	}

	got := Prices(obs)
	want := []float64{100, 200}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
