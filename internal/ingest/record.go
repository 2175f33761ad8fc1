package ingest

import (
	"time"

	"vigil/internal/signal"
)

// DayRecord 是数据层约定的单日已校验入站记录。
type DayRecord struct {
	Symbol string
	Date   time.Time

	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64

	HasPrice  bool
	HasVolume bool

	RSI       *float64
	Sentiment float64
	Macro     map[string]float64

	// 预测模型给出的字段；缺省时由内置 Forecaster 兜底。
	PredictedClose     float64
	ForecastConfidence float64
	HasForecast        bool
}

// RawInput 转换为快照构建器的输入。
func (r DayRecord) RawInput() signal.RawInput {
	return signal.RawInput{
		Open:               r.Open,
		High:               r.High,
		Low:                r.Low,
		Close:              r.Close,
		Volume:             r.Volume,
		PredictedClose:     r.PredictedClose,
		ForecastConfidence: r.ForecastConfidence,
		RSI:                r.RSI,
		Sentiment:          r.Sentiment,
		Macro:              r.Macro,
		HasPrice:           r.HasPrice,
		HasVolume:          r.HasVolume,
	}
}
