package signal

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// BuilderConfig 控制回看基线窗口。
type BuilderConfig struct {
	WindowDays      int // 基线窗口
	MinObservations int // 窗口内最少观测数，不足则退回 FallbackDays
	FallbackDays    int // 更宽的兜底窗口
}

func (c *BuilderConfig) normalize() {
	if c.WindowDays <= 0 {
		c.WindowDays = 10
	}
	if c.MinObservations <= 0 {
		c.MinObservations = 5
	}
	if c.FallbackDays < c.WindowDays {
		c.FallbackDays = c.WindowDays * 3
	}
}

type symbolHistory struct {
	lastDate time.Time
	closes   []float64
	volumes  []float64
}

// Builder 负责把上游原始记录装配成 Snapshot。
// 同一 symbol 必须按日期递增调用；不同 symbol 可并发（内部互斥保护历史表）。
type Builder struct {
	cfg BuilderConfig

	mu      sync.Mutex
	history map[string]*symbolHistory
}

func NewBuilder(cfg BuilderConfig) *Builder {
	cfg.normalize()
	return &Builder{cfg: cfg, history: make(map[string]*symbolHistory)}
}

// Build 装配快照，不推进历史。调用方在单元完整落库后调用 Commit；
// 单元任何一步失败（包括落库）都不会把该日标记为已处理。
func (b *Builder) Build(symbol string, date time.Time, raw RawInput) (Snapshot, error) {
	if symbol == "" {
		return Snapshot{}, fmt.Errorf("%w: empty symbol", ErrInvalidInput)
	}
	if !raw.HasPrice {
		return Snapshot{}, fmt.Errorf("%w: price for %s %s", ErrDataIncomplete, symbol, DayKey(date))
	}
	if !raw.HasVolume {
		return Snapshot{}, fmt.Errorf("%w: volume for %s %s", ErrDataIncomplete, symbol, DayKey(date))
	}
	if raw.Close <= 0 {
		return Snapshot{}, fmt.Errorf("%w: prior_close %.4f must be positive (%s %s)",
			ErrInvalidInput, raw.Close, symbol, DayKey(date))
	}
	if raw.ForecastConfidence < 0 || raw.ForecastConfidence > 1 {
		return Snapshot{}, fmt.Errorf("%w: forecast_confidence %.4f outside [0,1] (%s)",
			ErrInvalidInput, raw.ForecastConfidence, symbol)
	}
	day := Day(date)

	b.mu.Lock()
	defer b.mu.Unlock()
	hist := b.history[symbol]
	if hist == nil {
		hist = &symbolHistory{}
		b.history[symbol] = hist
	}
	if !hist.lastDate.IsZero() && !day.After(hist.lastDate) {
		return Snapshot{}, fmt.Errorf("%w: date %s not after last processed %s for %s",
			ErrInvalidInput, DayKey(day), DayKey(hist.lastDate), symbol)
	}

	volumeBaseline, volRatio, lowHistory := b.baselines(hist, raw)
	regime := deriveRegime(hist.closes, raw.RSI)

	snap := Snapshot{
		Symbol:             symbol,
		Date:               day,
		PriorClose:         raw.Close,
		PredictedClose:     raw.PredictedClose,
		ForecastConfidence: raw.ForecastConfidence,
		PctChange:          pctChange(raw.Close, raw.PredictedClose),
		Volume:             raw.Volume,
		VolumeAvgBaseline:  volumeBaseline,
		VolatilityRatio:    volRatio,
		Regime:             regime,
		SentimentScore:     clampSentiment(raw.Sentiment),
		MacroContext:       cloneMacro(raw.Macro),
		LowHistory:         lowHistory,
	}
	return snap, nil
}

// Commit 推进基线历史。重复或乱序的提交被忽略。
func (b *Builder) Commit(snap Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	hist := b.history[snap.Symbol]
	if hist == nil {
		hist = &symbolHistory{}
		b.history[snap.Symbol] = hist
	}
	if !hist.lastDate.IsZero() && !snap.Date.After(hist.lastDate) {
		return
	}
	hist.lastDate = snap.Date
	hist.closes = appendBounded(hist.closes, snap.PriorClose, b.cfg.FallbackDays)
	hist.volumes = appendBounded(hist.volumes, snap.Volume, b.cfg.FallbackDays)
}

// baselines 计算成交量基线与波动率比值。
// 窗口观测不足 MinObservations 时退回兜底窗口并标记 low_history。
func (b *Builder) baselines(hist *symbolHistory, raw RawInput) (volumeBaseline, volRatio float64, lowHistory bool) {
	window := tail(hist.volumes, b.cfg.WindowDays)
	if len(window) < b.cfg.MinObservations {
		window = tail(hist.volumes, b.cfg.FallbackDays)
		lowHistory = true
	}
	if len(window) == 0 {
		volumeBaseline = raw.Volume
	} else {
		volumeBaseline = mean(window)
	}

	current := stddevReturns(tail(hist.closes, b.cfg.WindowDays), raw.Close)
	baseline := stddevReturns(tail(hist.closes, b.cfg.FallbackDays), raw.Close)
	if len(hist.closes)+1 < b.cfg.MinObservations {
		lowHistory = true
	}
	if baseline <= 0 || current <= 0 {
		volRatio = 1.0
	} else {
		volRatio = current / baseline
	}
	return volumeBaseline, volRatio, lowHistory
}

// pctChange 使用 decimal 计算，避免长价差序列的浮点漂移。
func pctChange(prior, predicted float64) float64 {
	if prior <= 0 || predicted <= 0 {
		return 0
	}
	p := decimal.NewFromFloat(prior)
	q := decimal.NewFromFloat(predicted)
	out, _ := q.Sub(p).Div(p).Float64()
	return out
}

func clampSentiment(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

func cloneMacro(m map[string]float64) map[string]float64 {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func appendBounded(s []float64, v float64, max int) []float64 {
	s = append(s, v)
	if max > 0 && len(s) > max {
		s = s[len(s)-max:]
	}
	return s
}

func tail(s []float64, n int) []float64 {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func mean(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range s {
		sum += v
	}
	return sum / float64(len(s))
}

// stddevReturns 计算日收益率标准差；history 为历史收盘，last 为当日收盘。
func stddevReturns(history []float64, last float64) float64 {
	series := append(append([]float64(nil), history...), last)
	if len(series) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		if series[i-1] <= 0 {
			continue
		}
		returns = append(returns, series[i]/series[i-1]-1)
	}
	if len(returns) < 2 {
		return 0
	}
	m := mean(returns)
	acc := 0.0
	for _, r := range returns {
		d := r - m
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(returns)))
}
