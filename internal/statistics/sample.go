package statistics

import (
	"fmt"
	"math"
)

// Observation 一条成交价观测
// Condition 是市场侧的成色代码 (如 "1000"=新品, "3000"=二手良品), 原样透传。
type Observation struct {
	Price     float64 `json:"price"`
	Condition string  `json:"condition,omitempty"`
}

// SampleError 样本前置条件违规
// 统计函数假设输入为正的有限价格; 违规在边界 fail-fast, 不进入计算。
type SampleError struct {
	Index  int     // 违规元素下标
	Value  float64 // 违规值
	Reason string  // non-positive / not-finite
}

func (e *SampleError) Error() string {
	return fmt.Sprintf("invalid price sample at index %d: %v (%s)", e.Index, e.Value, e.Reason)
}

// ValidateSample 校验价格样本
// 返回第一个违规元素的 *SampleError; 空样本合法 (空样本是"数据不足", 不是错误)。
func ValidateSample(prices []float64) error {
	for i, p := range prices {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return &SampleError{Index: i, Value: p, Reason: "not-finite"}
		}
		if p <= 0 {
			return &SampleError{Index: i, Value: p, Reason: "non-positive"}
		}
	}
	return nil
}

// Prices 抽出观测集合中的价格序列, 丢弃非正价
func Prices(obs []Observation) []float64 {
	prices := make([]float64, 0, len(obs))
	for _, o := range obs {
		if o.Price > 0 {
			prices = append(prices, o.Price)
		}
	}
	return prices
}
