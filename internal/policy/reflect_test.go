package policy

import (
	"testing"
	"time"

	"vigil/internal/alert"

	"github.com/stretchr/testify/assert"
)

func reflectConfig() ReflectionConfig {
	return ReflectionConfig{
		TargetFPRate:      0.5,
		TargetMissRate:    0.3,
		AdjustStep:        0.05,
		MinAlertThreshold: 0.8,
		MaxAlertThreshold: 2.5,
		MinSamples:        5,
	}
}

func currentState() alert.ThresholdState {
	return alert.ThresholdState{
		Version:               3,
		AlertPctThreshold:     0.04,
		MonitorScoreThreshold: 0.75,
		AlertScoreThreshold:   1.25,
		VolatilityWeight:      0.5,
		MinConfidence:         0.3,
	}
}

func entryWithOutcome(day int, final alert.Classification, materialized bool, actual float64) alert.MemoryEntry {
	return alert.MemoryEntry{
		Symbol:              "NVDA",
		Date:                time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC),
		RawClassification:   final,
		FinalClassification: final,
		SeverityScore:       1.3,
		Outcome: &alert.Outcome{
			Materialized:    materialized,
			ActualPctChange: actual,
			RecordedAt:      time.Date(2024, 3, day+1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestReflect_InsufficientSamplesUnchanged(t *testing.T) {
	history := []alert.MemoryEntry{
		entryWithOutcome(1, alert.ClassAlert, false, 0.01),
		entryWithOutcome(2, alert.ClassAlert, false, 0.01),
		{Symbol: "NVDA", Date: time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)}, // 无 outcome 不计入
	}
	next, changed := Reflect("NVDA", currentState(), history, reflectConfig(), time.Now())
	assert.False(t, changed)
	assert.Equal(t, currentState(), next)
}

func TestReflect_HighFalsePositiveRateRaisesThreshold(t *testing.T) {
	history := []alert.MemoryEntry{
		entryWithOutcome(1, alert.ClassAlert, false, 0.005),
		entryWithOutcome(2, alert.ClassAlert, false, 0.004),
		entryWithOutcome(3, alert.ClassAlert, false, 0.002),
		entryWithOutcome(4, alert.ClassAlert, true, -0.06),
		entryWithOutcome(5, alert.ClassNoAlert, false, 0.001),
	}
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	next, changed := Reflect("NVDA", currentState(), history, reflectConfig(), now)
	assert.True(t, changed)
	assert.InDelta(t, 1.30, next.AlertScoreThreshold, 1e-9)
	assert.Equal(t, int64(4), next.Version)
	assert.Equal(t, now, next.UpdatedAt)
}

func TestReflect_HighMissRateLowersThreshold(t *testing.T) {
	history := []alert.MemoryEntry{
		entryWithOutcome(1, alert.ClassMonitor, true, -0.07),
		entryWithOutcome(2, alert.ClassMonitor, true, 0.08),
		entryWithOutcome(3, alert.ClassNoAlert, true, -0.05),
		entryWithOutcome(4, alert.ClassNoAlert, false, 0.001),
		entryWithOutcome(5, alert.ClassNoAlert, false, 0.002),
	}
	next, changed := Reflect("NVDA", currentState(), history, reflectConfig(), time.Now())
	assert.True(t, changed)
	assert.InDelta(t, 1.20, next.AlertScoreThreshold, 1e-9)
}

func TestReflect_ClampAtUpperBoundKeepsState(t *testing.T) {
	state := currentState()
	state.AlertScoreThreshold = 2.5
	history := []alert.MemoryEntry{
		entryWithOutcome(1, alert.ClassAlert, false, 0.001),
		entryWithOutcome(2, alert.ClassAlert, false, 0.001),
		entryWithOutcome(3, alert.ClassAlert, false, 0.001),
		entryWithOutcome(4, alert.ClassAlert, false, 0.001),
		entryWithOutcome(5, alert.ClassAlert, false, 0.001),
	}
	next, changed := Reflect("NVDA", state, history, reflectConfig(), time.Now())
	assert.False(t, changed)
	assert.Equal(t, state, next)
}

func TestReflect_MonitorThresholdKeptBelowAlert(t *testing.T) {
	state := currentState()
	state.AlertScoreThreshold = 1.25
	state.MonitorScoreThreshold = 1.22
	history := []alert.MemoryEntry{
		entryWithOutcome(1, alert.ClassMonitor, true, -0.07),
		entryWithOutcome(2, alert.ClassMonitor, true, 0.08),
		entryWithOutcome(3, alert.ClassNoAlert, true, -0.05),
		entryWithOutcome(4, alert.ClassNoAlert, false, 0.001),
		entryWithOutcome(5, alert.ClassNoAlert, false, 0.002),
	}
	next, changed := Reflect("NVDA", state, history, reflectConfig(), time.Now())
	assert.True(t, changed)
	assert.Less(t, next.MonitorScoreThreshold, next.AlertScoreThreshold)
}

func TestReflect_HealthyOutcomesUnchanged(t *testing.T) {
	history := []alert.MemoryEntry{
		entryWithOutcome(1, alert.ClassAlert, true, -0.06),
		entryWithOutcome(2, alert.ClassAlert, true, 0.05),
		entryWithOutcome(3, alert.ClassNoAlert, false, 0.001),
		entryWithOutcome(4, alert.ClassNoAlert, false, 0.002),
		entryWithOutcome(5, alert.ClassNoAlert, false, 0.003),
	}
	next, changed := Reflect("NVDA", currentState(), history, reflectConfig(), time.Now())
	assert.False(t, changed)
	assert.Equal(t, currentState(), next)
}
