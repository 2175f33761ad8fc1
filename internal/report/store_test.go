package report

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"vigil/internal/alert"
	"vigil/internal/decision"
	"vigil/internal/signal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "decisions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func feedRecord(symbol string, day int, final alert.Classification, severity float64) decision.Record {
	date := time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC)
	return decision.Record{
		TraceID: "trace-" + symbol + "-" + signal.DayKey(date),
		Symbol:  symbol,
		Date:    date,
		Snapshot: signal.Snapshot{
			Symbol:             symbol,
			Date:               date,
			PriorClose:         100,
			PredictedClose:     95.5,
			PctChange:          -0.045,
			ForecastConfidence: 0.8,
		},
		SeverityScore:       severity,
		RawClassification:   final,
		FinalClassification: final,
		SeverityLabel:       alert.SeverityHigh,
		RationaleTags:       []string{"magnitude"},
		Explanation:         "test explanation",
		DecidedAt:           date.Add(18 * time.Hour),
	}
}

func TestAppendAndRecent_NewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	for _, d := range []int{12, 14, 16} {
		require.NoError(t, store.Append(ctx, feedRecord("AAPL", d, alert.ClassAlert, 1.5)))
	}
	require.NoError(t, store.Append(ctx, feedRecord("MSFT", 15, alert.ClassMonitor, 0.9)))

	rows, err := store.Recent(ctx, "AAPL", 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "2024-03-16", rows[0].Date)
	assert.Equal(t, "2024-03-12", rows[2].Date)
	assert.Equal(t, []string{"magnitude"}, rows[0].RationaleTags)
	assert.Equal(t, "ALERT", rows[0].Classification)

	all, err := store.Recent(ctx, "", 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestAppend_SameDayReplacesRow(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, feedRecord("AAPL", 15, alert.ClassAlert, 1.5)))
	require.NoError(t, store.Append(ctx, feedRecord("AAPL", 15, alert.ClassMonitor, 0.9)))

	rows, err := store.Recent(ctx, "AAPL", 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "MONITOR", rows[0].Classification)
}

func TestHistory_AscendingSinceCutoff(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	for _, d := range []int{10, 12, 14} {
		require.NoError(t, store.Append(ctx, feedRecord("AAPL", d, alert.ClassMonitor, 0.9)))
	}
	rows, err := store.History(ctx, "aapl", time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-03-12", rows[0].Date)
	assert.Equal(t, "2024-03-14", rows[1].Date)
}

func TestCountByClassification(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, feedRecord("AAPL", 14, alert.ClassAlert, 1.5)))
	require.NoError(t, store.Append(ctx, feedRecord("AAPL", 15, alert.ClassAlert, 1.6)))
	require.NoError(t, store.Append(ctx, feedRecord("AAPL", 16, alert.ClassNoAlert, 0.2)))

	counts, err := store.CountByClassification(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["ALERT"])
	assert.Equal(t, int64(1), counts["NO_ALERT"])
}

func TestExportCSV_StableHeaderAndRows(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, feedRecord("AAPL", 15, alert.ClassAlert, 1.525)))

	var buf bytes.Buffer
	require.NoError(t, store.ExportCSV(ctx, &buf, ""))
	out := buf.String()
	assert.Contains(t, out, "date,symbol,classification,severity_label,severity_score,suppressed,rationale_tags,confidence,predicted_close,prior_close")
	assert.Contains(t, out, "2024-03-15,AAPL,ALERT,HIGH,1.5250,false,magnitude,0.80,95.5000,100.0000")
}
