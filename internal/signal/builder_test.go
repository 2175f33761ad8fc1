package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testBuilder() *Builder {
	return NewBuilder(BuilderConfig{WindowDays: 10, MinObservations: 5, FallbackDays: 30})
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func validInput(close, predicted, volume float64) RawInput {
	return RawInput{
		Close:              close,
		Volume:             volume,
		PredictedClose:     predicted,
		ForecastConfidence: 0.8,
		HasPrice:           true,
		HasVolume:          true,
	}
}

// buildCommit 模拟完整落库的单元：装配成功后立即提交历史。
func buildCommit(t *testing.T, b *Builder, symbol string, d time.Time, raw RawInput) Snapshot {
	t.Helper()
	snap, err := b.Build(symbol, d, raw)
	assert.NoError(t, err)
	b.Commit(snap)
	return snap
}

func TestBuild_MissingVolumeRejected(t *testing.T) {
	b := testBuilder()
	raw := validInput(100, 104, 1000)
	raw.HasVolume = false

	_, err := b.Build("AAPL", day(1), raw)
	assert.ErrorIs(t, err, ErrDataIncomplete)
}

func TestBuild_MissingPriceRejected(t *testing.T) {
	b := testBuilder()
	raw := validInput(100, 104, 1000)
	raw.HasPrice = false

	_, err := b.Build("AAPL", day(1), raw)
	assert.ErrorIs(t, err, ErrDataIncomplete)
}

func TestBuild_NonPositiveCloseRejected(t *testing.T) {
	b := testBuilder()
	_, err := b.Build("AAPL", day(1), validInput(0, 104, 1000))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBuild_ConfidenceOutsideRangeRejected(t *testing.T) {
	b := testBuilder()
	raw := validInput(100, 104, 1000)
	raw.ForecastConfidence = 1.2
	_, err := b.Build("AAPL", day(1), raw)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBuild_OutOfOrderDateRejected(t *testing.T) {
	b := testBuilder()
	buildCommit(t, b, "AAPL", day(5), validInput(100, 102, 1000))

	_, err := b.Build("AAPL", day(5), validInput(101, 103, 1100))
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = b.Build("AAPL", day(4), validInput(101, 103, 1100))
	assert.ErrorIs(t, err, ErrInvalidInput)

	// 失败不推进历史：下一天仍可正常处理
	snap, err := b.Build("AAPL", day(6), validInput(101, 103, 1100))
	assert.NoError(t, err)
	assert.Equal(t, day(6), snap.Date)
}

func TestBuild_FailureHasNoSideEffects(t *testing.T) {
	b := testBuilder()
	buildCommit(t, b, "AAPL", day(1), validInput(100, 102, 1000))

	bad := validInput(100, 102, 1000)
	bad.HasVolume = false
	_, err := b.Build("AAPL", day(2), bad)
	assert.ErrorIs(t, err, ErrDataIncomplete)

	// day(2) 的失败不应阻塞 day(2) 的回填重试
	_, err = b.Build("AAPL", day(2), validInput(101, 103, 1050))
	assert.NoError(t, err)
}

func TestBuild_HistoryAdvancesOnlyOnCommit(t *testing.T) {
	b := testBuilder()
	snap, err := b.Build("AAPL", day(1), validInput(100, 102, 1000))
	assert.NoError(t, err)

	// 未提交：落库失败后同一天可重建
	_, err = b.Build("AAPL", day(1), validInput(100, 102, 1000))
	assert.NoError(t, err)

	b.Commit(snap)
	_, err = b.Build("AAPL", day(1), validInput(100, 102, 1000))
	assert.ErrorIs(t, err, ErrInvalidInput)

	// 重复提交被忽略，基线不被污染
	b.Commit(snap)
	next, err := b.Build("AAPL", day(2), validInput(110, 111, 2000))
	assert.NoError(t, err)
	assert.InDelta(t, 1000.0, next.VolumeAvgBaseline, 1e-9)
}

func TestBuild_PctChangeFromPredicted(t *testing.T) {
	b := testBuilder()
	snap, err := b.Build("AAPL", day(1), validInput(100, 104, 1000))
	assert.NoError(t, err)
	assert.InDelta(t, 0.04, snap.PctChange, 1e-12)
	assert.Equal(t, 100.0, snap.PriorClose)
	assert.Equal(t, 104.0, snap.PredictedClose)
}

func TestBuild_LowHistoryFlaggedUntilEnoughObservations(t *testing.T) {
	b := testBuilder()
	snap := buildCommit(t, b, "AAPL", day(1), validInput(100, 101, 1000))
	assert.True(t, snap.LowHistory)

	for d := 2; d <= 12; d++ {
		snap = buildCommit(t, b, "AAPL", day(d), validInput(100+float64(d), 101+float64(d), 1000))
	}
	assert.False(t, snap.LowHistory)
}

func TestBuild_VolumeBaselineIsWindowMean(t *testing.T) {
	b := testBuilder()
	volumes := []float64{1000, 1200, 1400, 1600, 1800}
	for i, v := range volumes {
		buildCommit(t, b, "AAPL", day(i+1), validInput(100, 101, v))
	}
	snap, err := b.Build("AAPL", day(10), validInput(100, 101, 2000))
	assert.NoError(t, err)
	assert.InDelta(t, 1400.0, snap.VolumeAvgBaseline, 1e-9)
}

func TestBuild_SentimentClamped(t *testing.T) {
	b := testBuilder()
	raw := validInput(100, 101, 1000)
	raw.Sentiment = 3.5
	snap, err := b.Build("AAPL", day(1), raw)
	assert.NoError(t, err)
	assert.Equal(t, 1.0, snap.SentimentScore)
}

func TestBuild_SymbolsIsolated(t *testing.T) {
	b := testBuilder()
	buildCommit(t, b, "AAPL", day(5), validInput(100, 101, 1000))

	// 另一 symbol 不受 AAPL 的日期游标影响
	_, err := b.Build("MSFT", day(1), validInput(200, 202, 500))
	assert.NoError(t, err)
}

func TestDayKeyNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	ts := time.Date(2024, 3, 15, 2, 30, 0, 0, loc) // UTC 2024-03-14 18:30
	assert.Equal(t, "2024-03-14", DayKey(ts))
}
