package explain

import (
	"context"
	"fmt"
	"strings"

	"vigil/internal/alert"
	"vigil/internal/decision"
	"vigil/internal/policy"
)

// Generator 把决策上下文转成自然语言说明。
// 生产部署可接 LLM 实现；核心分类从不依赖生成结果。
type Generator interface {
	Generate(ctx context.Context, rec decision.Record) (string, error)
}

// TemplateGenerator 是确定性的内置实现：按标签拼装建议文本。
type TemplateGenerator struct{}

func NewTemplateGenerator() *TemplateGenerator { return &TemplateGenerator{} }

var tagPhrases = map[string]string{
	policy.TagMagnitude:          "predicted move exceeds the alert threshold",
	policy.TagVolatilityElevated: "volatility is elevated versus its baseline",
	policy.TagRegimeSignal:       "technical regime is outside neutral territory",
	policy.TagSentimentConfirms:  "news sentiment confirms the predicted direction",
	policy.TagSentimentConflicts: "news sentiment runs against the predicted direction",
	policy.TagLowHistory:         "baseline history is thin, treat derived ratios with care",
	policy.TagLowConfidence:      "model confidence is below the hard floor",
	policy.TagRepetitive:         "a similar signal fired within the suppression window",
	policy.TagContradicted:       "technical and sentiment signals strongly disagree",
}

func (g *TemplateGenerator) Generate(_ context.Context, rec decision.Record) (string, error) {
	direction := "drop"
	if rec.Snapshot.PctChange > 0 {
		direction = "rise"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: model expects %s to %s %.2f%% (%.2f -> %.2f, confidence %.0f%%).",
		rec.FinalClassification, rec.Symbol, direction,
		abs(rec.Snapshot.PctChange)*100,
		rec.Snapshot.PriorClose, rec.Snapshot.PredictedClose,
		rec.Snapshot.ForecastConfidence*100)

	reasons := make([]string, 0, len(rec.RationaleTags))
	for _, tag := range rec.RationaleTags {
		if phrase, ok := tagPhrases[tag]; ok {
			reasons = append(reasons, phrase)
		}
	}
	if len(reasons) > 0 {
		b.WriteString(" Because ")
		b.WriteString(strings.Join(reasons, "; "))
		b.WriteString(".")
	}
	b.WriteString(" ")
	b.WriteString(recommendation(rec))
	return b.String(), nil
}

// recommendation 按最终分类给出可执行建议（沿用运营侧的固定话术）。
func recommendation(rec decision.Record) string {
	switch rec.FinalClassification {
	case alert.ClassAlert:
		if rec.Snapshot.PctChange < 0 {
			return "Consider reviewing the position; a significant drop is expected."
		}
		return "Strong upward movement expected; review exposure and targets."
	case alert.ClassMonitor:
		if rec.Suppressed {
			return "Signal downgraded by suppression; keep the symbol on watch."
		}
		return "Signals detected but below alert strength; monitor closely."
	default:
		if rec.Suppressed {
			return "Alert suppressed to prevent fatigue; no action required."
		}
		return "All indicators within normal range; no action required."
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
