package forecast

import (
	"fmt"
	"math"
)

// Result 是内置预测器的输出：预测收盘价 + 置信度。
type Result struct {
	PredictedClose float64
	Confidence     float64 // [0.5, 0.95]，随波动率下降
	Volatility     float64
	LowerBound     float64
	UpperBound     float64
}

// Forecaster 移动均线 + 线性趋势的兜底预测器。
// 上游喂入的记录缺少模型预测时使用；精度不做任何保证。
type Forecaster struct {
	window int
}

func New(window int) *Forecaster {
	if window <= 0 {
		window = 10
	}
	return &Forecaster{window: window}
}

// Window 返回预测所需的最少收盘价数量。
func (f *Forecaster) Window() int { return f.window }

// Predict 基于最近 window 个收盘价预测下一收盘价。
func (f *Forecaster) Predict(closes []float64) (Result, error) {
	if len(closes) < f.window {
		return Result{}, fmt.Errorf("forecast: need %d closes, got %d", f.window, len(closes))
	}
	prices := closes[len(closes)-f.window:]

	n := float64(len(prices))
	ma := 0.0
	for _, p := range prices {
		ma += p
	}
	ma /= n

	// 最小二乘斜率作为趋势项。
	xMean := (n - 1) / 2
	num, den := 0.0, 0.0
	for i, p := range prices {
		dx := float64(i) - xMean
		num += dx * (p - ma)
		den += dx * dx
	}
	slope := 0.0
	if den != 0 {
		slope = num / den
	}
	predicted := ma + slope

	variance := 0.0
	for _, p := range prices {
		d := p - ma
		variance += d * d
	}
	stddev := math.Sqrt(variance / n)

	confidence := 1 - stddev/ma
	if confidence < 0.5 {
		confidence = 0.5
	}
	if confidence > 0.95 {
		confidence = 0.95
	}

	return Result{
		PredictedClose: predicted,
		Confidence:     confidence,
		Volatility:     stddev,
		LowerBound:     predicted - 1.96*stddev,
		UpperBound:     predicted + 1.96*stddev,
	}, nil
}
