package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"vigil/internal/alert"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDefaults() alert.ThresholdState {
	return alert.ThresholdState{
		Version:               1,
		AlertPctThreshold:     0.04,
		MonitorScoreThreshold: 0.75,
		AlertScoreThreshold:   1.25,
		VolatilityWeight:      0.5,
		MinConfidence:         0.3,
	}
}

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"), testDefaults())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func memEntry(symbol string, day int, final alert.Classification, severity float64) alert.MemoryEntry {
	return alert.MemoryEntry{
		Symbol:              symbol,
		Date:                time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC),
		RawClassification:   final,
		FinalClassification: final,
		SeverityScore:       severity,
		RationaleTags:       []string{"magnitude"},
	}
}

func TestRecord_DuplicateSameDayRejected(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, memEntry("AAPL", 15, alert.ClassAlert, 1.5)))
	err := store.Record(ctx, memEntry("AAPL", 15, alert.ClassMonitor, 0.9))
	assert.ErrorIs(t, err, ErrDuplicateEntry)

	// 其它 symbol 或其它日期不受影响
	assert.NoError(t, store.Record(ctx, memEntry("MSFT", 15, alert.ClassAlert, 1.4)))
	assert.NoError(t, store.Record(ctx, memEntry("AAPL", 16, alert.ClassAlert, 1.4)))
}

func TestRecent_NewestFirstWithinWindow(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	for _, d := range []int{10, 12, 14, 16} {
		require.NoError(t, store.Record(ctx, memEntry("AAPL", d, alert.ClassMonitor, 0.8)))
	}

	since := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	entries, err := store.Recent(ctx, "AAPL", since, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "2024-03-16", entries[0].Date.Format("2006-01-02"))
	assert.Equal(t, "2024-03-14", entries[1].Date.Format("2006-01-02"))
	assert.Equal(t, "2024-03-12", entries[2].Date.Format("2006-01-02"))
	assert.Equal(t, []string{"magnitude"}, entries[0].RationaleTags)
}

func TestRecent_EmptyHistoryReturnsEmptySlice(t *testing.T) {
	store := openTestStore(t)
	entries, err := store.Recent(context.Background(), "UNKNOWN", time.Time{}, 10)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestThresholds_FallbackToDefaults(t *testing.T) {
	store := openTestStore(t)
	state := store.Thresholds("NOSUCH")
	assert.Equal(t, testDefaults(), state)
}

func TestUpdateThresholds_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.db")
	store, err := NewSQLiteStore(path, testDefaults())
	require.NoError(t, err)

	next := testDefaults().Bumped(time.Now())
	next.AlertScoreThreshold = 1.35
	require.NoError(t, store.UpdateThresholds(context.Background(), "TSLA", next))
	assert.InDelta(t, 1.35, store.Thresholds("TSLA").AlertScoreThreshold, 1e-9)
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path, testDefaults())
	require.NoError(t, err)
	defer reopened.Close()
	restored := reopened.Thresholds("TSLA")
	assert.InDelta(t, 1.35, restored.AlertScoreThreshold, 1e-9)
	assert.Equal(t, int64(2), restored.Version)
	// 其它 symbol 仍用默认
	assert.InDelta(t, 1.25, reopened.Thresholds("AAPL").AlertScoreThreshold, 1e-9)
}

func TestAttachOutcome_RoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Record(ctx, memEntry("AAPL", 15, alert.ClassAlert, 1.5)))

	outcome := alert.Outcome{
		Materialized:    true,
		ActualPctChange: -0.051,
		RecordedAt:      time.Date(2024, 3, 16, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.AttachOutcome(ctx, "AAPL", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), outcome))

	entries, err := store.Recent(ctx, "AAPL", time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Outcome)
	assert.True(t, entries[0].Outcome.Materialized)
	assert.InDelta(t, -0.051, entries[0].Outcome.ActualPctChange, 1e-9)
}

func TestAttachOutcome_MissingEntryErrors(t *testing.T) {
	store := openTestStore(t)
	err := store.AttachOutcome(context.Background(), "AAPL",
		time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), alert.Outcome{Materialized: true})
	assert.Error(t, err)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(&TransientError{Op: "record", Err: assert.AnError}))
	assert.False(t, IsTransient(ErrDuplicateEntry))
	assert.False(t, IsTransient(assert.AnError))
}
