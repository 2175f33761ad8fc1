package memory

import (
	"context"
	"testing"
	"time"

	"vigil/internal/alert"

	"github.com/stretchr/testify/assert"
)

// flakyStore 前 failures 次 Record 返回瞬态错误。
type flakyStore struct {
	failures int
	calls    int
	perm     error
}

func (f *flakyStore) Record(context.Context, alert.MemoryEntry) error {
	f.calls++
	if f.perm != nil {
		return f.perm
	}
	if f.calls <= f.failures {
		return &TransientError{Op: "record", Err: assert.AnError}
	}
	return nil
}

func (f *flakyStore) Recent(context.Context, string, time.Time, int) ([]alert.MemoryEntry, error) {
	return nil, nil
}
func (f *flakyStore) Thresholds(string) alert.ThresholdState { return alert.ThresholdState{} }
func (f *flakyStore) UpdateThresholds(context.Context, string, alert.ThresholdState) error {
	return nil
}
func (f *flakyStore) AttachOutcome(context.Context, string, time.Time, alert.Outcome) error {
	return nil
}
func (f *flakyStore) Close() error { return nil }

func retryCfg() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxElapsedTime: time.Second}
}

func TestRetry_TransientFailureEventuallySucceeds(t *testing.T) {
	inner := &flakyStore{failures: 2}
	store := NewRetryingStore(inner, retryCfg())

	err := store.Record(context.Background(), alert.MemoryEntry{Symbol: "AAPL"})
	assert.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestRetry_ExhaustedAttemptsEscalates(t *testing.T) {
	inner := &flakyStore{failures: 10}
	store := NewRetryingStore(inner, retryCfg())

	err := store.Record(context.Background(), alert.MemoryEntry{Symbol: "AAPL"})
	assert.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 3, inner.calls)
}

func TestRetry_PermanentErrorNotRetried(t *testing.T) {
	inner := &flakyStore{perm: ErrDuplicateEntry}
	store := NewRetryingStore(inner, retryCfg())

	err := store.Record(context.Background(), alert.MemoryEntry{Symbol: "AAPL"})
	assert.ErrorIs(t, err, ErrDuplicateEntry)
	assert.Equal(t, 1, inner.calls)
}
