package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultsAppliedForUnsetFields(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `
app:
  env: "test"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.InDelta(t, 0.04, cfg.Thresholds.AlertPctThreshold, 1e-9)
	assert.InDelta(t, 0.75, cfg.Thresholds.MonitorScoreThreshold, 1e-9)
	assert.InDelta(t, 1.25, cfg.Thresholds.AlertScoreThreshold, 1e-9)
	assert.InDelta(t, 0.5, cfg.Thresholds.VolatilityWeight, 1e-9)
	assert.InDelta(t, 0.3, cfg.Thresholds.MinConfidenceThreshold, 1e-9)
	assert.Equal(t, 3, cfg.Suppression.WindowDays)
	assert.InDelta(t, 0.20, cfg.Suppression.MinDelta, 1e-9)
	assert.Equal(t, "1d", cfg.Reflection.Cadence)
	assert.Equal(t, 5, cfg.Reflection.MinSamples)
	assert.Equal(t, 10, cfg.Baseline.WindowDays)
	assert.Equal(t, 8, cfg.Engine.MaxParallelSymbols)
	assert.NotEmpty(t, cfg.Store.MemoryPath)
	assert.NotEmpty(t, cfg.Store.ReportPath)
}

func TestLoad_ExplicitValuesKept(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `
thresholds:
  alert_pct_threshold: 0.08
  alert_score_threshold: 1.5
suppression:
  suppression_window_days: 7
engine:
  max_parallel_symbols: 2
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.08, cfg.Thresholds.AlertPctThreshold, 1e-9)
	assert.InDelta(t, 1.5, cfg.Thresholds.AlertScoreThreshold, 1e-9)
	assert.Equal(t, 7, cfg.Suppression.WindowDays)
	assert.Equal(t, 2, cfg.Engine.MaxParallelSymbols)
}

func TestLoad_IncludeMergesBaseFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
thresholds:
  alert_pct_threshold: 0.05
  monitor_score_threshold: 0.6
`)
	path := writeConfig(t, dir, "config.yaml", `
include:
  - base.yaml
thresholds:
  monitor_score_threshold: 0.7
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	// 主文件覆盖 include，include 覆盖默认
	assert.InDelta(t, 0.7, cfg.Thresholds.MonitorScoreThreshold, 1e-9)
	assert.InDelta(t, 0.05, cfg.Thresholds.AlertPctThreshold, 1e-9)
}

func TestLoad_InvalidThresholdOrderRejected(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `
thresholds:
  monitor_score_threshold: 1.5
  alert_score_threshold: 1.0
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ConfidenceOutOfRangeRejected(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `
thresholds:
  min_confidence_threshold: 1.5
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EmptyPathRejected(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}
