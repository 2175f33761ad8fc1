package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"vigil/internal/decision"
	"vigil/internal/signal"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Store 持久化决策流水，供 HTTP 查询与 CSV 导出。
// 与告警记忆库分离：这里是只追加的报表侧，不参与去重判断。
type Store struct {
	db *gorm.DB
}

// NewStore 打开（或创建）报表库并完成迁移。
func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("report store: 决策流水路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&decisionRowModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL：留一点并发余量给 HTTP 读，写入仍然串行。
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

// Close 关闭底层连接。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Append 写入一条决策行；同 symbol+date 重放时覆盖旧行（流水以记忆库为准）。
func (s *Store) Append(ctx context.Context, rec decision.Record) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("report store 未初始化")
	}
	model, err := newDecisionRowModel(rec)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "symbol"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"trace_id", "classification", "raw_classification", "severity_label",
				"severity_score", "suppressed", "rationale_tags", "confidence",
				"predicted_close", "prior_close", "pct_change", "explanation", "decided_at",
			}),
		}).
		Create(&model).Error
}

// Recent 按 symbol（可空）返回最近的决策行，新→旧。
func (s *Store) Recent(ctx context.Context, symbol string, limit, offset int) ([]Row, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("report store 未初始化")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	query := s.db.WithContext(ctx).Model(&decisionRowModel{})
	if sym := strings.ToUpper(strings.TrimSpace(symbol)); sym != "" {
		query = query.Where("symbol = ?", sym)
	}
	var models []decisionRowModel
	if err := query.
		Order("date DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Row, 0, len(models))
	for _, m := range models {
		out = append(out, rowFromModel(m))
	}
	return out, nil
}

// History 返回单个 symbol 自 since 起的决策行，日期升序，供图表使用。
func (s *Store) History(ctx context.Context, symbol string, since time.Time) ([]Row, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("report store 未初始化")
	}
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return nil, fmt.Errorf("symbol 必填")
	}
	query := s.db.WithContext(ctx).Model(&decisionRowModel{}).Where("symbol = ?", sym)
	if !since.IsZero() {
		query = query.Where("date >= ?", signal.DayKey(since))
	}
	var models []decisionRowModel
	if err := query.Order("date ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Row, 0, len(models))
	for _, m := range models {
		out = append(out, rowFromModel(m))
	}
	return out, nil
}

// CountByClassification 统计各分类行数，供运行汇总与健康页。
func (s *Store) CountByClassification(ctx context.Context, symbol string) (map[string]int64, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("report store 未初始化")
	}
	type bucket struct {
		Classification string
		Total          int64
	}
	query := s.db.WithContext(ctx).Model(&decisionRowModel{}).
		Select("classification, COUNT(*) AS total").
		Group("classification")
	if sym := strings.ToUpper(strings.TrimSpace(symbol)); sym != "" {
		query = query.Where("symbol = ?", sym)
	}
	var buckets []bucket
	if err := query.Find(&buckets).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(buckets))
	for _, b := range buckets {
		out[b.Classification] = b.Total
	}
	return out, nil
}

// 导出列顺序固定，外部脚本按列名消费。
var exportHeader = []string{
	"date", "symbol", "classification", "severity_label", "severity_score",
	"suppressed", "rationale_tags", "confidence", "predicted_close", "prior_close",
}

// ExportCSV 把单 symbol（或全部）决策流水写成 CSV。
func (s *Store) ExportCSV(ctx context.Context, w io.Writer, symbol string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("report store 未初始化")
	}
	query := s.db.WithContext(ctx).Model(&decisionRowModel{})
	if sym := strings.ToUpper(strings.TrimSpace(symbol)); sym != "" {
		query = query.Where("symbol = ?", sym)
	}
	var models []decisionRowModel
	if err := query.Order("symbol ASC, date ASC").Find(&models).Error; err != nil {
		return err
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeader); err != nil {
		return err
	}
	for _, m := range models {
		row := rowFromModel(m)
		record := []string{
			row.Date,
			row.Symbol,
			row.Classification,
			row.SeverityLabel,
			strconv.FormatFloat(row.SeverityScore, 'f', 4, 64),
			strconv.FormatBool(row.Suppressed),
			strings.Join(row.RationaleTags, "|"),
			strconv.FormatFloat(row.Confidence, 'f', 2, 64),
			strconv.FormatFloat(row.PredictedClose, 'f', 4, 64),
			strconv.FormatFloat(row.PriorClose, 'f', 4, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func newDecisionRowModel(rec decision.Record) (decisionRowModel, error) {
	tags, err := json.Marshal(rec.RationaleTags)
	if err != nil {
		return decisionRowModel{}, err
	}
	suppressed := 0
	if rec.Suppressed {
		suppressed = 1
	}
	return decisionRowModel{
		TraceID:        rec.TraceID,
		Symbol:         strings.ToUpper(strings.TrimSpace(rec.Symbol)),
		Date:           signal.DayKey(rec.Date),
		Classification: string(rec.FinalClassification),
		RawClass:       string(rec.RawClassification),
		SeverityLabel:  string(rec.SeverityLabel),
		SeverityScore:  rec.SeverityScore,
		Suppressed:     suppressed,
		RationaleTags:  datatypes.JSON(tags),
		Confidence:     rec.Snapshot.ForecastConfidence,
		PredictedClose: rec.Snapshot.PredictedClose,
		PriorClose:     rec.Snapshot.PriorClose,
		PctChange:      rec.Snapshot.PctChange,
		Explanation:    rec.Explanation,
		DecidedAtUnix:  rec.DecidedAt.UnixMilli(),
		CreatedAtUnix:  time.Now().UnixMilli(),
	}, nil
}

func rowFromModel(m decisionRowModel) Row {
	var tags []string
	if len(m.RationaleTags) > 0 {
		_ = json.Unmarshal(m.RationaleTags, &tags)
	}
	return Row{
		TraceID:        m.TraceID,
		Symbol:         m.Symbol,
		Date:           m.Date,
		Classification: m.Classification,
		RawClass:       m.RawClass,
		SeverityLabel:  m.SeverityLabel,
		SeverityScore:  m.SeverityScore,
		Suppressed:     m.Suppressed != 0,
		RationaleTags:  tags,
		Confidence:     m.Confidence,
		PredictedClose: m.PredictedClose,
		PriorClose:     m.PriorClose,
		PctChange:      m.PctChange,
		Explanation:    m.Explanation,
		DecidedAt:      time.UnixMilli(m.DecidedAtUnix),
	}
}
