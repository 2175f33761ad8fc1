package score

import (
	"testing"
	"time"

	"vigil/internal/alert"
	"vigil/internal/signal"

	"github.com/stretchr/testify/assert"
)

func defaultThresholds() alert.ThresholdState {
	return alert.ThresholdState{
		Version:               1,
		AlertPctThreshold:     0.04,
		MonitorScoreThreshold: 0.75,
		AlertScoreThreshold:   1.25,
		VolatilityWeight:      0.5,
		MinConfidence:         0.3,
	}
}

func baseSnapshot() signal.Snapshot {
	return signal.Snapshot{
		Symbol:             "AAPL",
		Date:               signal.Day(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)),
		PriorClose:         100,
		PredictedClose:     100,
		ForecastConfidence: 0.8,
		VolatilityRatio:    1.0,
		Regime:             signal.RegimeNeutral,
	}
}

func TestEvaluate_HighVolatilityDropTriggersAlert(t *testing.T) {
	snap := baseSnapshot()
	snap.PredictedClose = 95.5
	snap.PctChange = -0.045
	snap.VolatilityRatio = 1.8

	scored := Evaluate(snap, defaultThresholds())

	// magnitude 0.045/0.04=1.125 + volatility (1.8-1)*0.5=0.4
	assert.InDelta(t, 1.525, scored.SeverityScore, 1e-9)
	assert.Equal(t, alert.ClassAlert, scored.RawClassification)
	assert.Equal(t, alert.SeverityHigh, Label(scored.SeverityScore, defaultThresholds()))
}

func TestEvaluate_Deterministic(t *testing.T) {
	snap := baseSnapshot()
	snap.PctChange = -0.032
	snap.VolatilityRatio = 1.4
	snap.SentimentScore = -0.6
	snap.Regime = signal.RegimeOversold
	th := defaultThresholds()

	first := Evaluate(snap, th)
	second := Evaluate(snap, th)
	assert.Equal(t, first, second)
}

func TestEvaluate_BoundaryTieGoesToHigherClass(t *testing.T) {
	snap := baseSnapshot()
	// magnitude 恰好等于 MONITOR 阈值：0.03/0.04 = 0.75
	snap.PctChange = 0.03

	scored := Evaluate(snap, defaultThresholds())
	assert.InDelta(t, 0.75, scored.SeverityScore, 1e-9)
	assert.Equal(t, alert.ClassMonitor, scored.RawClassification)
}

func TestEvaluate_MagnitudeCapped(t *testing.T) {
	snap := baseSnapshot()
	snap.PctChange = -0.40 // 10x 阈值

	scored := Evaluate(snap, defaultThresholds())
	assert.InDelta(t, magnitudeCap, scored.Terms.Magnitude, 1e-9)
}

func TestEvaluate_LowConfidenceDampsScore(t *testing.T) {
	snap := baseSnapshot()
	snap.PctChange = -0.08
	snap.ForecastConfidence = 0.2

	scored := Evaluate(snap, defaultThresholds())
	assert.True(t, scored.Terms.ConfidenceDamped)
	assert.InDelta(t, 2.0*0.2, scored.SeverityScore, 1e-9)
	assert.Equal(t, alert.ClassNoAlert, scored.RawClassification)
}

func TestEvaluate_SentimentAlignment(t *testing.T) {
	th := defaultThresholds()

	aligned := baseSnapshot()
	aligned.PctChange = 0.02
	aligned.SentimentScore = 0.8
	conflicting := aligned
	conflicting.SentimentScore = -0.8

	up := Evaluate(aligned, th)
	down := Evaluate(conflicting, th)
	assert.InDelta(t, 0.8*sentimentWeight, up.Terms.Sentiment, 1e-9)
	assert.InDelta(t, -0.8*sentimentWeight, down.Terms.Sentiment, 1e-9)
	assert.Greater(t, up.SeverityScore, down.SeverityScore)
}

func TestEvaluate_ReversibleRegimeAddsBonus(t *testing.T) {
	snap := baseSnapshot()
	snap.Regime = signal.RegimeOverbought

	scored := Evaluate(snap, defaultThresholds())
	assert.InDelta(t, regimeBonus, scored.Terms.Regime, 1e-9)
}

func TestEvaluate_ScoreNeverNegative(t *testing.T) {
	snap := baseSnapshot()
	snap.PctChange = 0.001
	snap.SentimentScore = -1 // 反向情绪拉低总分

	scored := Evaluate(snap, defaultThresholds())
	assert.GreaterOrEqual(t, scored.SeverityScore, 0.0)
}

func TestLabel_MatchesClassificationBuckets(t *testing.T) {
	th := defaultThresholds()
	assert.Equal(t, alert.SeverityLow, Label(0.5, th))
	assert.Equal(t, alert.SeverityMedium, Label(0.75, th))
	assert.Equal(t, alert.SeverityMedium, Label(1.1, th))
	assert.Equal(t, alert.SeverityHigh, Label(1.25, th))
}
