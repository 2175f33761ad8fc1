package alert

import "time"

// Classification 三档决策结果。
type Classification string

const (
	ClassNoAlert Classification = "NO_ALERT"
	ClassMonitor Classification = "MONITOR"
	ClassAlert   Classification = "ALERT"
)

// Rank 返回严重度序：NO_ALERT=0 < MONITOR=1 < ALERT=2。
func (c Classification) Rank() int {
	switch c {
	case ClassMonitor:
		return 1
	case ClassAlert:
		return 2
	default:
		return 0
	}
}

// Downgrade 降一档，永不升级：ALERT→MONITOR→NO_ALERT。
func (c Classification) Downgrade() Classification {
	switch c {
	case ClassAlert:
		return ClassMonitor
	case ClassMonitor:
		return ClassNoAlert
	default:
		return ClassNoAlert
	}
}

// SeverityLabel 供下游展示的三档标签。
type SeverityLabel string

const (
	SeverityLow    SeverityLabel = "LOW"
	SeverityMedium SeverityLabel = "MEDIUM"
	SeverityHigh   SeverityLabel = "HIGH"
)

// Outcome 是外部协作方回填的事后反馈：预测的波动是否兑现。
type Outcome struct {
	Materialized    bool      `json:"materialized"`
	ActualPctChange float64   `json:"actual_pct_change"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// MemoryEntry 追加式记忆日志的一条记录。
// 落库后除 Outcome 回填外不可变。
type MemoryEntry struct {
	Symbol              string
	Date                time.Time
	RawClassification   Classification
	FinalClassification Classification
	SeverityScore       float64
	Suppressed          bool
	RationaleTags       []string
	Outcome             *Outcome
}

// ThresholdState 每 symbol（或全局默认）一份的运行阈值。
// 只能由 Reflection 经 memory store 的单写者接口整体替换。
type ThresholdState struct {
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`

	AlertPctThreshold     float64 `json:"alert_pct_threshold"`
	MonitorScoreThreshold float64 `json:"monitor_score_threshold"`
	AlertScoreThreshold   float64 `json:"alert_score_threshold"`
	VolatilityWeight      float64 `json:"volatility_weight"`
	MinConfidence         float64 `json:"min_confidence"`
	SuppressionWindowDays int     `json:"suppression_window_days"`
	SuppressionMinDelta   float64 `json:"suppression_min_delta"`
}

// Bumped 返回版本 +1 的副本（Reflection 产出新状态时使用）。
func (t ThresholdState) Bumped(now time.Time) ThresholdState {
	t.Version++
	t.UpdatedAt = now.UTC()
	return t
}
