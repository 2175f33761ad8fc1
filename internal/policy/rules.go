package policy

import (
	"math"
	"time"

	"vigil/internal/alert"
	"vigil/internal/score"
	"vigil/internal/signal"
)

// 规则标签，会进入 DecisionRecord.rationale_tags 与记忆日志。
const (
	TagLowConfidence      = "low_confidence"
	TagRepetitive         = "repetitive"
	TagContradicted       = "contradicted_signals"
	TagMagnitude          = "magnitude"
	TagVolatilityElevated = "volatility_elevated"
	TagRegimeSignal       = "regime_signal"
	TagSentimentConfirms  = "sentiment_confirms"
	TagSentimentConflicts = "sentiment_conflicts"
	TagLowHistory         = "low_history"
)

// Result 是抑制链的输出。
type Result struct {
	Final      alert.Classification
	Suppressed bool
	Tags       []string
}

// Config 控制抑制规则。
type Config struct {
	WindowDays             int
	MinDelta               float64
	ConfidenceFloor        float64
	ContradictionMagnitude float64
}

// rule 是一条谓词+动作；命中即停（first-match-wins），保证可独立审计。
type rule struct {
	tag   string
	apply func(scored score.Scored, history []alert.MemoryEntry, th alert.ThresholdState) (Result, bool)
}

// Suppressor 按固定顺序评估抑制规则。
type Suppressor struct {
	cfg   Config
	rules []rule
}

func NewSuppressor(cfg Config) *Suppressor {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 3
	}
	if cfg.MinDelta <= 0 {
		cfg.MinDelta = 0.20
	}
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = 0.3
	}
	if cfg.ContradictionMagnitude <= 0 {
		cfg.ContradictionMagnitude = 0.4
	}
	s := &Suppressor{cfg: cfg}
	s.rules = []rule{
		{tag: TagLowConfidence, apply: s.lowConfidence},
		{tag: TagRepetitive, apply: s.repetitive},
		{tag: TagContradicted, apply: s.contradicted},
	}
	return s
}

// Apply 依序评估规则；无命中则原样放行。
// th 携带 per-symbol 的窗口/增幅覆盖，未设置的字段回退静态配置。
func (s *Suppressor) Apply(scored score.Scored, history []alert.MemoryEntry, th alert.ThresholdState) Result {
	base := contributingTags(scored)
	for _, r := range s.rules {
		if res, hit := r.apply(scored, history, th); hit {
			res.Tags = append(base, res.Tags...)
			return res
		}
	}
	return Result{
		Final:      scored.RawClassification,
		Suppressed: false,
		Tags:       base,
	}
}

// lowConfidence 置信度硬下限：无条件压为 NO_ALERT。
func (s *Suppressor) lowConfidence(scored score.Scored, _ []alert.MemoryEntry, _ alert.ThresholdState) (Result, bool) {
	if scored.Snapshot.ForecastConfidence >= s.cfg.ConfidenceFloor {
		return Result{}, false
	}
	return Result{
		Final:      alert.ClassNoAlert,
		Suppressed: true,
		Tags:       []string{TagLowConfidence},
	}, true
}

// repetitive 抑制窗口内重复且无明显加剧的告警：降一档，永不升级。
// 恰好达到最小增幅即视为加剧，放行。
func (s *Suppressor) repetitive(scored score.Scored, history []alert.MemoryEntry, th alert.ThresholdState) (Result, bool) {
	raw := scored.RawClassification
	if raw != alert.ClassMonitor && raw != alert.ClassAlert {
		return Result{}, false
	}
	windowStart := scored.Snapshot.Date.AddDate(0, 0, -s.windowDays(th))
	for _, entry := range history {
		if entry.Date.Before(windowStart) || !entry.Date.Before(scored.Snapshot.Date) {
			continue
		}
		if entry.RawClassification != raw {
			continue
		}
		required := entry.SeverityScore * (1 + s.minDelta(th))
		if scored.SeverityScore >= required {
			continue
		}
		return Result{
			Final:      raw.Downgrade(),
			Suppressed: true,
			Tags:       []string{TagRepetitive},
		}, true
	}
	return Result{}, false
}

// contradicted 技术面与情绪强烈反向时，把 ALERT 降为 MONITOR。
func (s *Suppressor) contradicted(scored score.Scored, _ []alert.MemoryEntry, _ alert.ThresholdState) (Result, bool) {
	if scored.RawClassification != alert.ClassAlert {
		return Result{}, false
	}
	dir := scored.Snapshot.Regime.Direction()
	sentiment := scored.Snapshot.SentimentScore
	if dir == 0 || math.Abs(sentiment) < s.cfg.ContradictionMagnitude {
		return Result{}, false
	}
	if (dir > 0) == (sentiment > 0) {
		return Result{}, false
	}
	return Result{
		Final:      alert.ClassMonitor,
		Suppressed: true,
		Tags:       []string{TagContradicted},
	}, true
}

// contributingTags 把评分项折算成可读的依据标签。
func contributingTags(scored score.Scored) []string {
	tags := make([]string, 0, 5)
	if scored.Terms.Magnitude >= 1 {
		tags = append(tags, TagMagnitude)
	}
	if scored.Terms.Volatility > 0 {
		tags = append(tags, TagVolatilityElevated)
	}
	if scored.Snapshot.Regime != signal.RegimeNeutral {
		tags = append(tags, TagRegimeSignal)
	}
	if scored.Terms.Sentiment > 0 {
		tags = append(tags, TagSentimentConfirms)
	} else if scored.Terms.Sentiment < 0 {
		tags = append(tags, TagSentimentConflicts)
	}
	if scored.Snapshot.LowHistory {
		tags = append(tags, TagLowHistory)
	}
	return tags
}

// WindowStart 返回给定快照日对应的抑制窗口起点（供历史查询用）。
func (s *Suppressor) WindowStart(day time.Time, th alert.ThresholdState) time.Time {
	return day.AddDate(0, 0, -s.windowDays(th))
}

// windowDays 返回生效的抑制窗口：per-symbol 状态优先，未设置回退静态配置。
func (s *Suppressor) windowDays(th alert.ThresholdState) int {
	if th.SuppressionWindowDays > 0 {
		return th.SuppressionWindowDays
	}
	return s.cfg.WindowDays
}

// minDelta 返回生效的最小加剧幅度，规则同 windowDays。
func (s *Suppressor) minDelta(th alert.ThresholdState) float64 {
	if th.SuppressionMinDelta > 0 {
		return th.SuppressionMinDelta
	}
	return s.cfg.MinDelta
}
