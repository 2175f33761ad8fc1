package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"vigil/internal/alert"
	"vigil/internal/decision"
	"vigil/internal/explain"
	"vigil/internal/forecast"
	"vigil/internal/ingest"
	"vigil/internal/logger"
	"vigil/internal/memory"
	"vigil/internal/policy"
	"vigil/internal/report"
	"vigil/internal/score"
	"vigil/internal/signal"
	"vigil/internal/watchlist"

	"golang.org/x/sync/errgroup"
)

// Options 描述引擎依赖。Feed / Forecaster / Watch / Explainer 均可缺省。
type Options struct {
	Builder    *signal.Builder
	Store      memory.Store
	Feed       *report.Store
	Suppressor *policy.Suppressor
	Explainer  explain.Generator
	Forecaster *forecast.Forecaster
	Watch      func() watchlist.Snapshot
	Reflection policy.ReflectionConfig

	// MaxParallelSymbols 限制跨 symbol 并行度；同一 symbol 永远串行。
	MaxParallelSymbols int
	// HistoryLimit 单次抑制/反思查询的最大历史条数。
	HistoryLimit int
	// ReflectionLookbackDays 反思聚合的回看天数。
	ReflectionLookbackDays int
}

// Engine 驱动一个 symbol+date 单元走完 快照→评分→抑制→组装→落库 的完整链路。
type Engine struct {
	opts Options

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	closes map[string][]float64 // 兜底预测器的收盘价窗口
}

// New 构造引擎；Builder / Store / Suppressor 必填。
func New(opts Options) (*Engine, error) {
	if opts.Builder == nil || opts.Store == nil || opts.Suppressor == nil {
		return nil, errors.New("engine requires builder, store and suppressor")
	}
	if opts.MaxParallelSymbols <= 0 {
		opts.MaxParallelSymbols = 8
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 200
	}
	if opts.ReflectionLookbackDays <= 0 {
		opts.ReflectionLookbackDays = 90
	}
	return &Engine{
		opts:   opts,
		locks:  make(map[string]*sync.Mutex),
		closes: make(map[string][]float64),
	}, nil
}

// FailedUnit 记录一个未产出决策的单元及原因。
type FailedUnit struct {
	Symbol string `json:"symbol"`
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

// RunSummary 是一次批处理的汇总。失败单元显式列出，绝不静默丢弃。
type RunSummary struct {
	Processed      int          `json:"processed"`
	Alerts         int          `json:"alerts"`
	Monitors       int          `json:"monitors"`
	NoAlerts       int          `json:"no_alerts"`
	Suppressed     int          `json:"suppressed"`
	ThresholdBumps int          `json:"threshold_bumps"`
	Failed         []FailedUnit `json:"failed,omitempty"`
	Elapsed        time.Duration `json:"elapsed"`
}

func (s *RunSummary) observe(rec decision.Record) {
	s.Processed++
	if rec.Suppressed {
		s.Suppressed++
	}
	switch rec.FinalClassification {
	case alert.ClassAlert:
		s.Alerts++
	case alert.ClassMonitor:
		s.Monitors++
	default:
		s.NoAlerts++
	}
}

// symbolLock 返回 symbol 专属互斥锁，保证同一 symbol 的处理完全串行。
func (e *Engine) symbolLock(symbol string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock := e.locks[symbol]
	if lock == nil {
		lock = &sync.Mutex{}
		e.locks[symbol] = lock
	}
	return lock
}

// ProcessUnit 处理一个 symbol+date 单元。任何一步失败整个单元作废，
// 不落库、不推进基线历史。
func (e *Engine) ProcessUnit(ctx context.Context, rec ingest.DayRecord) (decision.Record, error) {
	lock := e.symbolLock(rec.Symbol)
	lock.Lock()
	defer lock.Unlock()
	return e.processLocked(ctx, rec)
}

func (e *Engine) processLocked(ctx context.Context, rec ingest.DayRecord) (decision.Record, error) {
	if err := ctx.Err(); err != nil {
		return decision.Record{}, err
	}
	raw := rec.RawInput()

	// 上游没给预测时用内置预测器兜底；窗口不足则置信度保持 0，
	// 由 low_confidence 规则压为 NO_ALERT。
	if !rec.HasForecast && e.opts.Forecaster != nil {
		if result, err := e.opts.Forecaster.Predict(e.closes[rec.Symbol]); err == nil {
			raw.PredictedClose = result.PredictedClose
			raw.ForecastConfidence = result.Confidence
		}
	}

	snap, err := e.opts.Builder.Build(rec.Symbol, rec.Date, raw)
	if err != nil {
		return decision.Record{}, err
	}

	th := e.opts.Store.Thresholds(rec.Symbol)
	if e.opts.Watch != nil {
		th = e.opts.Watch().ApplyOverrides(rec.Symbol, th)
	}

	scored := score.Evaluate(snap, th)

	windowStart := e.opts.Suppressor.WindowStart(snap.Date, th)
	history, err := e.opts.Store.Recent(ctx, rec.Symbol, windowStart, e.opts.HistoryLimit)
	if err != nil {
		return decision.Record{}, fmt.Errorf("suppression history: %w", err)
	}
	suppression := e.opts.Suppressor.Apply(scored, history, th)

	outcome := decision.Assemble(scored, suppression, th)

	// 解释文本只生成一次；生成失败降级为空文本，不影响分类结果。
	if e.opts.Explainer != nil {
		if text, err := e.opts.Explainer.Generate(ctx, outcome); err == nil {
			outcome = outcome.WithExplanation(text)
		} else {
			logger.Warnf("engine: explanation for %s %s failed: %v",
				rec.Symbol, signal.DayKey(rec.Date), err)
		}
	}

	entry := alert.MemoryEntry{
		Symbol:              outcome.Symbol,
		Date:                outcome.Date,
		RawClassification:   outcome.RawClassification,
		FinalClassification: outcome.FinalClassification,
		SeverityScore:       outcome.SeverityScore,
		Suppressed:          outcome.Suppressed,
		RationaleTags:       outcome.RationaleTags,
	}
	if err := e.opts.Store.Record(ctx, entry); err != nil {
		return decision.Record{}, fmt.Errorf("record memory: %w", err)
	}

	// 报表流水是旁路：写失败只告警，不作废已落库的决策。
	if e.opts.Feed != nil {
		if err := e.opts.Feed.Append(ctx, outcome); err != nil {
			logger.Warnf("engine: feed append for %s %s failed: %v",
				outcome.Symbol, signal.DayKey(outcome.Date), err)
		}
	}

	logger.AuditDecision(outcome.Symbol, string(outcome.FinalClassification),
		outcome.ContextBlock(), outcome.Explanation)

	// 单元完整落库后才推进基线历史与预测窗口。
	e.opts.Builder.Commit(snap)

	e.mu.Lock()
	window := 30
	if e.opts.Forecaster != nil && e.opts.Forecaster.Window() > window {
		window = e.opts.Forecaster.Window()
	}
	closes := append(e.closes[rec.Symbol], rec.Close)
	if len(closes) > window {
		closes = closes[len(closes)-window:]
	}
	e.closes[rec.Symbol] = closes
	e.mu.Unlock()

	return outcome, nil
}

// RunBatch 处理整个数据集：symbol 间并行（受 MaxParallelSymbols 限流），
// 同一 symbol 内按日期严格串行。单元失败只作废该单元，后续日期继续。
func (e *Engine) RunBatch(ctx context.Context, dataset map[string][]ingest.DayRecord) (RunSummary, error) {
	start := time.Now()
	symbols := make([]string, 0, len(dataset))
	for sym := range dataset {
		if e.opts.Watch != nil && !e.opts.Watch().Contains(sym) {
			logger.Debugf("engine: %s not in watchlist, skipped", sym)
			continue
		}
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var (
		summaryMu sync.Mutex
		summary   RunSummary
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.opts.MaxParallelSymbols)
	for _, sym := range symbols {
		sym := sym
		records := dataset[sym]
		group.Go(func() error {
			lock := e.symbolLock(sym)
			lock.Lock()
			defer lock.Unlock()
			for _, rec := range records {
				if err := groupCtx.Err(); err != nil {
					return err
				}
				outcome, err := e.processLocked(groupCtx, rec)
				summaryMu.Lock()
				if err != nil {
					summary.Failed = append(summary.Failed, FailedUnit{
						Symbol: sym,
						Date:   signal.DayKey(rec.Date),
						Reason: err.Error(),
					})
					summaryMu.Unlock()
					logger.Warnf("engine: unit %s %s undecided: %v", sym, signal.DayKey(rec.Date), err)
					continue
				}
				summary.observe(outcome)
				summaryMu.Unlock()
			}

			bumped, err := e.reflectLocked(groupCtx, sym, time.Now().UTC())
			if err != nil {
				logger.Warnf("engine: reflection for %s failed: %v", sym, err)
				return nil
			}
			if bumped {
				summaryMu.Lock()
				summary.ThresholdBumps++
				summaryMu.Unlock()
			}
			return nil
		})
	}
	err := group.Wait()
	summary.Elapsed = time.Since(start)
	sort.Slice(summary.Failed, func(i, j int) bool {
		if summary.Failed[i].Symbol != summary.Failed[j].Symbol {
			return summary.Failed[i].Symbol < summary.Failed[j].Symbol
		}
		return summary.Failed[i].Date < summary.Failed[j].Date
	})
	logger.Infof("engine: batch done processed=%d alerts=%d monitors=%d suppressed=%d failed=%d bumps=%d in %s",
		summary.Processed, summary.Alerts, summary.Monitors, summary.Suppressed,
		len(summary.Failed), summary.ThresholdBumps, summary.Elapsed)
	return summary, err
}

// ReflectSymbol 对单个 symbol 执行一轮阈值反思。
func (e *Engine) ReflectSymbol(ctx context.Context, symbol string, now time.Time) (bool, error) {
	lock := e.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()
	return e.reflectLocked(ctx, symbol, now)
}

func (e *Engine) reflectLocked(ctx context.Context, symbol string, now time.Time) (bool, error) {
	since := signal.Day(now).AddDate(0, 0, -e.opts.ReflectionLookbackDays)
	history, err := e.opts.Store.Recent(ctx, symbol, since, e.opts.HistoryLimit)
	if err != nil {
		return false, fmt.Errorf("reflection history: %w", err)
	}
	current := e.opts.Store.Thresholds(symbol)
	next, changed := policy.Reflect(symbol, current, history, e.opts.Reflection, now)
	if !changed {
		return false, nil
	}
	if err := e.opts.Store.UpdateThresholds(ctx, symbol, next); err != nil {
		return false, fmt.Errorf("update thresholds: %w", err)
	}
	return true, nil
}

// AttachOutcome 回填事后反馈；加 symbol 锁避免与反思并发读写。
func (e *Engine) AttachOutcome(ctx context.Context, symbol string, date time.Time, outcome alert.Outcome) error {
	lock := e.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()
	return e.opts.Store.AttachOutcome(ctx, symbol, date, outcome)
}

// Symbols 返回当前监控列表（无 watchlist 时为空）。
func (e *Engine) Symbols() []string {
	if e.opts.Watch == nil {
		return nil
	}
	snap := e.opts.Watch()
	out := make([]string, 0, len(snap.Entries))
	for sym := range snap.Entries {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
