package policy

import (
	"math"
	"time"

	"vigil/internal/alert"
	"vigil/internal/logger"
)

// ReflectionConfig 控制阈值自适应。
type ReflectionConfig struct {
	TargetFPRate      float64 // ALERT 误报率目标上限
	TargetMissRate    float64 // 确认大波动的漏报率目标上限
	AdjustStep        float64 // 单次调整步长
	MinAlertThreshold float64
	MaxAlertThreshold float64
	MinSamples        int // 有 outcome 反馈的最少样本数
}

// Reflect 对带 outcome 反馈的历史做纯聚合，产出新的不可变 ThresholdState。
// 反馈不足时保持原状态并返回 changed=false（绝不阻塞决策处理）。
func Reflect(symbol string, current alert.ThresholdState, history []alert.MemoryEntry,
	cfg ReflectionConfig, now time.Time) (alert.ThresholdState, bool) {

	var (
		withOutcome int
		alerts      int
		falsePos    int
		missed      int
	)
	for _, entry := range history {
		if entry.Outcome == nil {
			continue
		}
		withOutcome++
		confirmed := entry.Outcome.Materialized &&
			math.Abs(entry.Outcome.ActualPctChange) >= current.AlertPctThreshold
		if entry.FinalClassification == alert.ClassAlert {
			alerts++
			if !entry.Outcome.Materialized {
				falsePos++
			}
		} else if confirmed {
			missed++
		}
	}

	if withOutcome < cfg.MinSamples {
		logger.Warnf("reflection: %s has %d outcome samples (<%d), thresholds unchanged",
			symbol, withOutcome, cfg.MinSamples)
		return current, false
	}

	next := current
	switch {
	case alerts > 0 && float64(falsePos)/float64(alerts) > cfg.TargetFPRate:
		next.AlertScoreThreshold += cfg.AdjustStep
	case float64(missed)/float64(withOutcome) > cfg.TargetMissRate:
		next.AlertScoreThreshold -= cfg.AdjustStep
	default:
		return current, false
	}

	next.AlertScoreThreshold = clamp(next.AlertScoreThreshold, cfg.MinAlertThreshold, cfg.MaxAlertThreshold)
	// MONITOR 档必须保持在 ALERT 档之下。
	if next.MonitorScoreThreshold >= next.AlertScoreThreshold {
		next.MonitorScoreThreshold = next.AlertScoreThreshold - cfg.AdjustStep
	}
	if next.AlertScoreThreshold == current.AlertScoreThreshold &&
		next.MonitorScoreThreshold == current.MonitorScoreThreshold {
		return current, false
	}

	next = next.Bumped(now)
	logger.Infof("reflection: %s alert_score_threshold %.3f -> %.3f (alerts=%d fp=%d missed=%d samples=%d)",
		symbol, current.AlertScoreThreshold, next.AlertScoreThreshold, alerts, falsePos, missed, withOutcome)
	return next, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
