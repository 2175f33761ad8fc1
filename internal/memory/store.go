package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vigil/internal/alert"
)

// ErrDuplicateEntry 同一 symbol+date 重复落库（幂等性违例，向调用方暴露）。
var ErrDuplicateEntry = errors.New("memory: entry already recorded for symbol+date")

// TransientError 标记可重试的存储 I/O 失败。
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("memory: transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient 判断错误是否值得退避重试。
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Store 是告警记忆的唯一入口。
// 追加日志与 ThresholdState 均归其独占；其它组件只能经接口读写。
type Store interface {
	// Record 追加一条记录；同 symbol+date 二次写入返回 ErrDuplicateEntry。
	Record(ctx context.Context, entry alert.MemoryEntry) error
	// Recent 返回 since 之后的记录，最近在前，上限 limit；无历史返回空切片。
	Recent(ctx context.Context, symbol string, since time.Time, limit int) ([]alert.MemoryEntry, error)
	// Thresholds 返回 symbol 专属阈值，缺省回退全局默认；永不失败。
	Thresholds(symbol string) alert.ThresholdState
	// UpdateThresholds 原子替换阈值（单写者约束由调用侧的 per-symbol 串行保证）。
	UpdateThresholds(ctx context.Context, symbol string, state alert.ThresholdState) error
	// AttachOutcome 回填事后反馈，是记录唯一允许的变更。
	AttachOutcome(ctx context.Context, symbol string, date time.Time, outcome alert.Outcome) error
	Close() error
}
