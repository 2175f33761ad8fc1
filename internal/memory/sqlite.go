package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"vigil/internal/alert"
	"vigil/internal/signal"

	_ "modernc.org/sqlite"
)

// globalKey 是全局默认 ThresholdState 在 threshold_states 表中的主键。
const globalKey = ""

// SQLiteStore 把记忆日志与阈值状态持久化到单个 SQLite 文件。
type SQLiteStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string

	thresholdMu sync.RWMutex
	thresholds  map[string]alert.ThresholdState
	defaults    alert.ThresholdState
}

// NewSQLiteStore 初始化存储；defaults 为引擎启动时的静态阈值。
// 已持久化的阈值状态会在此处恢复（跨运行保留 Reflection 结果）。
func NewSQLiteStore(path string, defaults alert.ThresholdState) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("memory store path 不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureMemorySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	s := &SQLiteStore{
		db:         db,
		path:       path,
		thresholds: make(map[string]alert.ThresholdState),
		defaults:   defaults,
	}
	if err := s.loadThresholds(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func ensureMemorySchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alert_memory (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			date TEXT NOT NULL,
			raw_classification TEXT NOT NULL,
			final_classification TEXT NOT NULL,
			severity_score REAL NOT NULL,
			suppressed INTEGER NOT NULL DEFAULT 0,
			rationale_tags TEXT,
			outcome_json TEXT,
			created_at INTEGER NOT NULL,
			UNIQUE(symbol, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_memory_symbol_date ON alert_memory(symbol, date DESC)`,
		`CREATE TABLE IF NOT EXISTS threshold_states (
			symbol TEXT PRIMARY KEY,
			version INTEGER NOT NULL,
			state_json TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("memory schema init failed: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) loadThresholds(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, state_json FROM threshold_states`)
	if err != nil {
		return fmt.Errorf("loading threshold states failed: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sym, raw string
		if err := rows.Scan(&sym, &raw); err != nil {
			return err
		}
		var state alert.ThresholdState
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			return fmt.Errorf("threshold state for %q is corrupt: %w", sym, err)
		}
		s.thresholds[sym] = state
	}
	return rows.Err()
}

// Record 追加一条记忆。UNIQUE(symbol,date) 保证幂等性违例可见。
func (s *SQLiteStore) Record(ctx context.Context, entry alert.MemoryEntry) error {
	tags, err := json.Marshal(entry.RationaleTags)
	if err != nil {
		return err
	}
	var outcome any
	if entry.Outcome != nil {
		raw, err := json.Marshal(entry.Outcome)
		if err != nil {
			return err
		}
		outcome = string(raw)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM alert_memory WHERE symbol = ? AND date = ?`,
		entry.Symbol, signal.DayKey(entry.Date)).Scan(&exists)
	if err != nil {
		return &TransientError{Op: "record/lookup", Err: err}
	}
	if exists > 0 {
		return fmt.Errorf("%w (%s %s)", ErrDuplicateEntry, entry.Symbol, signal.DayKey(entry.Date))
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alert_memory
			(symbol, date, raw_classification, final_classification, severity_score, suppressed, rationale_tags, outcome_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Symbol,
		signal.DayKey(entry.Date),
		string(entry.RawClassification),
		string(entry.FinalClassification),
		entry.SeverityScore,
		boolToInt(entry.Suppressed),
		string(tags),
		outcome,
		time.Now().Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("%w (%s %s)", ErrDuplicateEntry, entry.Symbol, signal.DayKey(entry.Date))
		}
		return &TransientError{Op: "record/insert", Err: err}
	}
	return nil
}

// Recent 返回 since 之后的记录，最近在前。
func (s *SQLiteStore) Recent(ctx context.Context, symbol string, since time.Time, limit int) ([]alert.MemoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, date, raw_classification, final_classification, severity_score, suppressed, rationale_tags, outcome_json
		 FROM alert_memory
		 WHERE symbol = ? AND date >= ?
		 ORDER BY date DESC
		 LIMIT ?`,
		symbol, signal.DayKey(since), limit)
	if err != nil {
		return nil, &TransientError{Op: "recent/query", Err: err}
	}
	defer rows.Close()

	entries := make([]alert.MemoryEntry, 0, limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, &TransientError{Op: "recent/scan", Err: err}
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (alert.MemoryEntry, error) {
	var (
		entry      alert.MemoryEntry
		dateStr    string
		rawCls     string
		finalCls   string
		suppressed int
		tagsJSON   sql.NullString
		outJSON    sql.NullString
	)
	if err := rows.Scan(&entry.Symbol, &dateStr, &rawCls, &finalCls,
		&entry.SeverityScore, &suppressed, &tagsJSON, &outJSON); err != nil {
		return alert.MemoryEntry{}, err
	}
	day, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
	if err != nil {
		return alert.MemoryEntry{}, fmt.Errorf("memory entry date %q is corrupt: %w", dateStr, err)
	}
	entry.Date = day
	entry.RawClassification = alert.Classification(rawCls)
	entry.FinalClassification = alert.Classification(finalCls)
	entry.Suppressed = suppressed != 0
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &entry.RationaleTags); err != nil {
			return alert.MemoryEntry{}, err
		}
	}
	if outJSON.Valid && outJSON.String != "" {
		var out alert.Outcome
		if err := json.Unmarshal([]byte(outJSON.String), &out); err != nil {
			return alert.MemoryEntry{}, err
		}
		entry.Outcome = &out
	}
	return entry, nil
}

// Thresholds 读取内存缓存，永不失败。
func (s *SQLiteStore) Thresholds(symbol string) alert.ThresholdState {
	s.thresholdMu.RLock()
	defer s.thresholdMu.RUnlock()
	if state, ok := s.thresholds[symbol]; ok {
		return state
	}
	if state, ok := s.thresholds[globalKey]; ok {
		return state
	}
	return s.defaults
}

// UpdateThresholds 原子替换：先落库再更新缓存。
func (s *SQLiteStore) UpdateThresholds(ctx context.Context, symbol string, state alert.ThresholdState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO threshold_states (symbol, version, state_json, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(symbol) DO UPDATE SET
			version = excluded.version,
			state_json = excluded.state_json,
			updated_at = excluded.updated_at`,
		symbol, state.Version, string(raw), time.Now().Unix())
	s.mu.Unlock()
	if err != nil {
		return &TransientError{Op: "update_thresholds", Err: err}
	}
	s.thresholdMu.Lock()
	s.thresholds[symbol] = state
	s.thresholdMu.Unlock()
	return nil
}

// AttachOutcome 回填事后反馈；目标记录不存在时报错（不静默创建）。
func (s *SQLiteStore) AttachOutcome(ctx context.Context, symbol string, date time.Time, outcome alert.Outcome) error {
	raw, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE alert_memory SET outcome_json = ? WHERE symbol = ? AND date = ?`,
		string(raw), symbol, signal.DayKey(date))
	if err != nil {
		return &TransientError{Op: "attach_outcome", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("memory: no entry to attach outcome for %s %s", symbol, signal.DayKey(date))
	}
	return nil
}

// Close 关闭底层 DB。
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
