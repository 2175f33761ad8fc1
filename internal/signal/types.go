package signal

import (
	"errors"
	"time"
)

// 信号快照相关错误。上游单元失败只影响自身，不中断其它 symbol。
var (
	// ErrDataIncomplete 缺少必需原始字段（价格/成交量），单元跳过并通知回填。
	ErrDataIncomplete = errors.New("signal: required raw fields missing")
	// ErrInvalidInput 输入非法（非正价格、日期乱序），单元拒绝且不落库。
	ErrInvalidInput = errors.New("signal: invalid input")
)

// TechnicalRegime 由 RSI/MACD/SMA 交叉推导的技术面状态。
type TechnicalRegime string

const (
	RegimeOverbought TechnicalRegime = "overbought"
	RegimeOversold   TechnicalRegime = "oversold"
	RegimeNeutral    TechnicalRegime = "neutral"
	RegimeTrendUp    TechnicalRegime = "trend_up"
	RegimeTrendDown  TechnicalRegime = "trend_down"
)

// Reversible 返回该状态是否属于趋势反转候选（评分时享受固定加成）。
func (r TechnicalRegime) Reversible() bool {
	switch r {
	case RegimeOverbought, RegimeOversold, RegimeTrendUp, RegimeTrendDown:
		return true
	default:
		return false
	}
}

// Direction 返回技术面隐含方向：+1 看涨、-1 看跌、0 中性。
func (r TechnicalRegime) Direction() int {
	switch r {
	case RegimeTrendUp, RegimeOversold:
		return 1
	case RegimeTrendDown, RegimeOverbought:
		return -1
	default:
		return 0
	}
}

// RawInput 是数据层给出的单日已校验记录。
type RawInput struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64 // 当日收盘，即预测基准 prior_close
	Volume float64

	PredictedClose     float64
	ForecastConfidence float64

	// 指标允许缺省；缺省时由 Builder 基于历史自行推导。
	RSI       *float64
	Sentiment float64
	Macro     map[string]float64

	HasPrice  bool
	HasVolume bool
}

// Snapshot 是单个 (symbol, date) 的归一化信号包。构建后不可变。
type Snapshot struct {
	Symbol             string
	Date               time.Time // UTC 零点
	PriorClose         float64
	PredictedClose     float64
	ForecastConfidence float64
	PctChange          float64 // (predicted-prior)/prior
	Volume             float64
	VolumeAvgBaseline  float64
	VolatilityRatio    float64 // 当前/基线
	Regime             TechnicalRegime
	SentimentScore     float64 // [-1, 1]
	MacroContext       map[string]float64
	LowHistory         bool
}

// Day 将时间归一化到 UTC 零点，作为快照日期键。
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DayKey 以 YYYY-MM-DD 形式渲染日期（持久化与对外 schema 使用）。
func DayKey(t time.Time) string {
	return Day(t).Format("2006-01-02")
}
