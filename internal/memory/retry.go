package memory

import (
	"context"
	"time"

	"vigil/internal/alert"
	"vigil/internal/logger"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig 控制瞬态失败的退避重试。
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxElapsedTime  time.Duration
}

func (c *RetryConfig) normalize() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 200 * time.Millisecond
	}
	if c.MaxElapsedTime <= 0 {
		c.MaxElapsedTime = 10 * time.Second
	}
}

// RetryingStore 包装底层 Store：瞬态 I/O 失败按指数退避重试，
// 超过上限后原样上抛（调用方按单元失败处理，不影响整个 run）。
type RetryingStore struct {
	inner Store
	cfg   RetryConfig
}

func NewRetryingStore(inner Store, cfg RetryConfig) *RetryingStore {
	cfg.normalize()
	return &RetryingStore{inner: inner, cfg: cfg}
}

func (s *RetryingStore) retry(ctx context.Context, op string, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.InitialInterval
	policy.MaxElapsedTime = s.cfg.MaxElapsedTime
	attempts := 0
	return backoff.Retry(func() error {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		if attempts >= s.cfg.MaxAttempts {
			logger.Errorf("memory: %s failed after %d attempts: %v", op, attempts, err)
			return backoff.Permanent(err)
		}
		logger.Warnf("memory: %s transient failure (attempt %d/%d): %v", op, attempts, s.cfg.MaxAttempts, err)
		return err
	}, backoff.WithContext(policy, ctx))
}

func (s *RetryingStore) Record(ctx context.Context, entry alert.MemoryEntry) error {
	return s.retry(ctx, "record", func() error { return s.inner.Record(ctx, entry) })
}

func (s *RetryingStore) Recent(ctx context.Context, symbol string, since time.Time, limit int) ([]alert.MemoryEntry, error) {
	var out []alert.MemoryEntry
	err := s.retry(ctx, "recent", func() error {
		var err error
		out, err = s.inner.Recent(ctx, symbol, since, limit)
		return err
	})
	return out, err
}

func (s *RetryingStore) Thresholds(symbol string) alert.ThresholdState {
	return s.inner.Thresholds(symbol)
}

func (s *RetryingStore) UpdateThresholds(ctx context.Context, symbol string, state alert.ThresholdState) error {
	return s.retry(ctx, "update_thresholds", func() error {
		return s.inner.UpdateThresholds(ctx, symbol, state)
	})
}

func (s *RetryingStore) AttachOutcome(ctx context.Context, symbol string, date time.Time, outcome alert.Outcome) error {
	return s.retry(ctx, "attach_outcome", func() error {
		return s.inner.AttachOutcome(ctx, symbol, date, outcome)
	})
}

func (s *RetryingStore) Close() error { return s.inner.Close() }
