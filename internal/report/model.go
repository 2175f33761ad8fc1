package report

import (
	"time"

	"gorm.io/datatypes"
)

// decisionRowModel 是决策流水在 SQLite 中的持久化形状。
// 列集合是对外稳定的报表契约，新增字段只追加不改名。
type decisionRowModel struct {
	ID             int64          `gorm:"column:id;primaryKey"`
	TraceID        string         `gorm:"column:trace_id;index"`
	Symbol         string         `gorm:"column:symbol;uniqueIndex:idx_decision_day,priority:1"`
	Date           string         `gorm:"column:date;uniqueIndex:idx_decision_day,priority:2"`
	Classification string         `gorm:"column:classification;index"`
	RawClass       string         `gorm:"column:raw_classification"`
	SeverityLabel  string         `gorm:"column:severity_label"`
	SeverityScore  float64        `gorm:"column:severity_score"`
	Suppressed     int            `gorm:"column:suppressed"`
	RationaleTags  datatypes.JSON `gorm:"column:rationale_tags;type:TEXT"`
	Confidence     float64        `gorm:"column:confidence"`
	PredictedClose float64        `gorm:"column:predicted_close"`
	PriorClose     float64        `gorm:"column:prior_close"`
	PctChange      float64        `gorm:"column:pct_change"`
	Explanation    string         `gorm:"column:explanation;type:TEXT"`
	DecidedAtUnix  int64          `gorm:"column:decided_at"`
	CreatedAtUnix  int64          `gorm:"column:created_at"`
}

func (decisionRowModel) TableName() string { return "decision_feed" }

// Row 是查询接口返回的展平决策行。
type Row struct {
	TraceID        string    `json:"trace_id"`
	Symbol         string    `json:"symbol"`
	Date           string    `json:"date"`
	Classification string    `json:"classification"`
	RawClass       string    `json:"raw_classification"`
	SeverityLabel  string    `json:"severity_label"`
	SeverityScore  float64   `json:"severity_score"`
	Suppressed     bool      `json:"suppressed"`
	RationaleTags  []string  `json:"rationale_tags"`
	Confidence     float64   `json:"confidence"`
	PredictedClose float64   `json:"predicted_close"`
	PriorClose     float64   `json:"prior_close"`
	PctChange      float64   `json:"pct_change"`
	Explanation    string    `json:"explanation,omitempty"`
	DecidedAt      time.Time `json:"decided_at"`
}
