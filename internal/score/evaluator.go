package score

import (
	"math"

	"vigil/internal/alert"
	"vigil/internal/signal"
)

// 评分权重常量。阈值本身来自 ThresholdState，从不硬编码。
const (
	// magnitudeCap 限制极端波动的影响上限。
	magnitudeCap = 2.0
	// regimeBonus 技术面处于反转候选状态时的固定加成。
	regimeBonus = 0.25
	// sentimentWeight 情绪项的缩放系数。
	sentimentWeight = 0.3
)

// Terms 记录各评分项的贡献，供审计与解释使用。
type Terms struct {
	Magnitude        float64 `json:"magnitude"`
	Volatility       float64 `json:"volatility"`
	Regime           float64 `json:"regime"`
	Sentiment        float64 `json:"sentiment"`
	ConfidenceDamped bool    `json:"confidence_damped"`
}

// Scored 是快照加确定性评分的不可变结果。
type Scored struct {
	Snapshot          signal.Snapshot
	SeverityScore     float64
	RawClassification alert.Classification
	Terms             Terms
}

// Evaluate 是纯函数：相同快照与阈值必然得到相同结果。
func Evaluate(snap signal.Snapshot, th alert.ThresholdState) Scored {
	terms := Terms{}

	if th.AlertPctThreshold > 0 {
		terms.Magnitude = math.Abs(snap.PctChange) / th.AlertPctThreshold
		if terms.Magnitude > magnitudeCap {
			terms.Magnitude = magnitudeCap
		}
	}

	if snap.VolatilityRatio > 1 {
		terms.Volatility = (snap.VolatilityRatio - 1) * th.VolatilityWeight
	}

	if snap.Regime.Reversible() {
		terms.Regime = regimeBonus
	}

	terms.Sentiment = sentimentTerm(snap.PctChange, snap.SentimentScore)

	total := terms.Magnitude + terms.Volatility + terms.Regime + terms.Sentiment
	if total < 0 {
		total = 0
	}

	// 置信度门控：低置信度按比例衰减而非一刀切，
	// 临界情况仍有机会落在 MONITOR 档。
	if snap.ForecastConfidence < th.MinConfidence {
		total *= snap.ForecastConfidence
		terms.ConfidenceDamped = true
	}

	return Scored{
		Snapshot:          snap,
		SeverityScore:     total,
		RawClassification: classify(total, th),
		Terms:             terms,
	}
}

// sentimentTerm 情绪与预测同向加确认权重，反向扣减。
func sentimentTerm(pctChange, sentiment float64) float64 {
	if pctChange == 0 || sentiment == 0 {
		return 0
	}
	aligned := (pctChange > 0) == (sentiment > 0)
	contribution := math.Abs(sentiment) * sentimentWeight
	if aligned {
		return contribution
	}
	return -contribution
}

// classify 边界值并入更高严重档（宁可谨慎）。
func classify(severity float64, th alert.ThresholdState) alert.Classification {
	switch {
	case severity >= th.AlertScoreThreshold:
		return alert.ClassAlert
	case severity >= th.MonitorScoreThreshold:
		return alert.ClassMonitor
	default:
		return alert.ClassNoAlert
	}
}

// Label 用与分类一致的阈值把评分映射为三档标签。
func Label(severity float64, th alert.ThresholdState) alert.SeverityLabel {
	switch {
	case severity >= th.AlertScoreThreshold:
		return alert.SeverityHigh
	case severity >= th.MonitorScoreThreshold:
		return alert.SeverityMedium
	default:
		return alert.SeverityLow
	}
}
