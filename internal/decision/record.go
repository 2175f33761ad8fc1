package decision

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"vigil/internal/alert"
	"vigil/internal/policy"
	"vigil/internal/score"
	"vigil/internal/signal"

	"github.com/google/uuid"
)

// Record 是决策引擎的最终输出单元，交给解释生成与上报层。
// 组装完成后不可变；Explanation 由外部生成器附着一次，重试不再生成。
type Record struct {
	TraceID             string
	Symbol              string
	Date                time.Time
	Snapshot            signal.Snapshot
	SeverityScore       float64
	RawClassification   alert.Classification
	FinalClassification alert.Classification
	SeverityLabel       alert.SeverityLabel
	Suppressed          bool
	RationaleTags       []string
	Terms               score.Terms
	Explanation         string
	DecidedAt           time.Time
}

// Assemble 纯组装，无业务逻辑；输入良构则必然成功。
// 标签映射使用与分类相同的阈值，保证口径一致。
func Assemble(scored score.Scored, suppression policy.Result, th alert.ThresholdState) Record {
	snap := scored.Snapshot
	return Record{
		TraceID:             uuid.NewString(),
		Symbol:              snap.Symbol,
		Date:                snap.Date,
		Snapshot:            snap,
		SeverityScore:       scored.SeverityScore,
		RawClassification:   scored.RawClassification,
		FinalClassification: suppression.Final,
		SeverityLabel:       score.Label(scored.SeverityScore, th),
		Suppressed:          suppression.Suppressed,
		RationaleTags:       append([]string(nil), suppression.Tags...),
		Terms:               scored.Terms,
		DecidedAt:           time.Now().UTC(),
	}
}

// WithExplanation 返回附着解释文本的副本。
func (r Record) WithExplanation(text string) Record {
	r.Explanation = strings.TrimSpace(text)
	return r
}

// FlatMap 把记录渲染为扁平的 字段名→值 映射，作为解释生成器的 Prompt 上下文。
func (r Record) FlatMap() map[string]string {
	out := map[string]string{
		"trace_id":             r.TraceID,
		"symbol":               r.Symbol,
		"date":                 signal.DayKey(r.Date),
		"prior_close":          formatFloat(r.Snapshot.PriorClose),
		"predicted_close":      formatFloat(r.Snapshot.PredictedClose),
		"pct_change":           fmt.Sprintf("%.4f", r.Snapshot.PctChange),
		"forecast_confidence":  fmt.Sprintf("%.2f", r.Snapshot.ForecastConfidence),
		"volume":               formatFloat(r.Snapshot.Volume),
		"volume_avg_baseline":  formatFloat(r.Snapshot.VolumeAvgBaseline),
		"volatility_ratio":     fmt.Sprintf("%.3f", r.Snapshot.VolatilityRatio),
		"technical_regime":     string(r.Snapshot.Regime),
		"sentiment_score":      fmt.Sprintf("%.2f", r.Snapshot.SentimentScore),
		"severity_score":       fmt.Sprintf("%.4f", r.SeverityScore),
		"raw_classification":   string(r.RawClassification),
		"final_classification": string(r.FinalClassification),
		"severity_label":       string(r.SeverityLabel),
		"suppressed":           fmt.Sprintf("%v", r.Suppressed),
		"rationale_tags":       strings.Join(r.RationaleTags, ","),
	}
	if r.Snapshot.LowHistory {
		out["low_history"] = "true"
	}
	keys := make([]string, 0, len(r.Snapshot.MacroContext))
	for k := range r.Snapshot.MacroContext {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out["macro_"+k] = formatFloat(r.Snapshot.MacroContext[k])
	}
	return out
}

// ContextBlock 以固定顺序渲染 FlatMap，便于审计日志与 Prompt 拼接。
func (r Record) ContextBlock() string {
	flat := r.FlatMap()
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(flat[k])
		b.WriteString("\n")
	}
	return b.String()
}

func formatFloat(v float64) string {
	s := fmt.Sprintf("%.4f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
