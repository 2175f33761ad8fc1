package config

import "strings"

// 默认值常量
const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9984"
	defaultAppLogPath  = ""
	defaultAuditPath   = ""

	defaultEngineParallel = 8

	// 评分阈值默认值；见 ThresholdsConfig。
	defaultAlertPctThreshold  = 0.04
	defaultMonitorScore       = 0.75
	defaultAlertScore         = 1.25
	defaultVolatilityWeight   = 0.5
	defaultMinConfidence      = 0.3

	defaultSuppressionWindow = 3
	defaultSuppressionDelta  = 0.20
	defaultConfidenceFloor   = 0.3
	defaultContradictionMag  = 0.4

	defaultReflectionCadence = "1d"
	defaultTargetFPRate      = 0.5
	defaultTargetMissRate    = 0.3
	defaultAdjustStep        = 0.05
	defaultMinAlertThreshold = 0.8
	defaultMaxAlertThreshold = 2.5
	defaultReflectionSamples = 5

	defaultBaselineWindow   = 10
	defaultBaselineMinObs   = 5
	defaultBaselineFallback = 30

	defaultForecastWindow = 10

	defaultMemoryStorePath = "data/alert_memory.db"
	defaultReportStorePath = "data/decisions.db"
	defaultRetryAttempts   = 4
	defaultRetryInitialMS  = 200
	defaultRetryElapsedMS  = 10_000

	defaultWatchlistPath = "configs/watchlist.yaml"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Thresholds.applyDefaults(keys)
	c.Suppression.applyDefaults(keys)
	c.Reflection.applyDefaults(keys)
	c.Baseline.applyDefaults(keys)
	c.Forecast.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Watchlist.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "engine.max_parallel_symbols",
			need:  func() bool { return e.MaxParallelSymbols <= 0 },
			apply: func() { e.MaxParallelSymbols = defaultEngineParallel },
		},
	)
}

func (t *ThresholdsConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "thresholds.alert_pct_threshold",
			need:  func() bool { return t.AlertPctThreshold <= 0 },
			apply: func() { t.AlertPctThreshold = defaultAlertPctThreshold },
		},
		fieldDefault{
			key:   "thresholds.monitor_score_threshold",
			need:  func() bool { return t.MonitorScoreThreshold <= 0 },
			apply: func() { t.MonitorScoreThreshold = defaultMonitorScore },
		},
		fieldDefault{
			key:   "thresholds.alert_score_threshold",
			need:  func() bool { return t.AlertScoreThreshold <= 0 },
			apply: func() { t.AlertScoreThreshold = defaultAlertScore },
		},
		fieldDefault{
			key:   "thresholds.volatility_weight",
			need:  func() bool { return t.VolatilityWeight <= 0 },
			apply: func() { t.VolatilityWeight = defaultVolatilityWeight },
		},
		fieldDefault{
			key:   "thresholds.min_confidence_threshold",
			need:  func() bool { return t.MinConfidenceThreshold <= 0 },
			apply: func() { t.MinConfidenceThreshold = defaultMinConfidence },
		},
	)
}

func (s *SuppressionConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "suppression.suppression_window_days",
			need:  func() bool { return s.WindowDays <= 0 },
			apply: func() { s.WindowDays = defaultSuppressionWindow },
		},
		fieldDefault{
			key:   "suppression.suppression_min_delta",
			need:  func() bool { return s.MinDelta <= 0 },
			apply: func() { s.MinDelta = defaultSuppressionDelta },
		},
		fieldDefault{
			key:   "suppression.confidence_floor",
			need:  func() bool { return s.ConfidenceFloor <= 0 },
			apply: func() { s.ConfidenceFloor = defaultConfidenceFloor },
		},
		fieldDefault{
			key:   "suppression.contradiction_magnitude",
			need:  func() bool { return s.ContradictionMagnitude <= 0 },
			apply: func() { s.ContradictionMagnitude = defaultContradictionMag },
		},
	)
}

func (r *ReflectionConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("reflection.cadence", &r.Cadence, defaultReflectionCadence),
		fieldDefault{
			key:   "reflection.target_false_positive_rate",
			need:  func() bool { return r.TargetFPRate <= 0 },
			apply: func() { r.TargetFPRate = defaultTargetFPRate },
		},
		fieldDefault{
			key:   "reflection.target_miss_rate",
			need:  func() bool { return r.TargetMissRate <= 0 },
			apply: func() { r.TargetMissRate = defaultTargetMissRate },
		},
		fieldDefault{
			key:   "reflection.adjust_step",
			need:  func() bool { return r.AdjustStep <= 0 },
			apply: func() { r.AdjustStep = defaultAdjustStep },
		},
		fieldDefault{
			key:   "reflection.min_alert_threshold",
			need:  func() bool { return r.MinAlertThreshold <= 0 },
			apply: func() { r.MinAlertThreshold = defaultMinAlertThreshold },
		},
		fieldDefault{
			key:   "reflection.max_alert_threshold",
			need:  func() bool { return r.MaxAlertThreshold <= 0 },
			apply: func() { r.MaxAlertThreshold = defaultMaxAlertThreshold },
		},
		fieldDefault{
			key:   "reflection.min_samples",
			need:  func() bool { return r.MinSamples <= 0 },
			apply: func() { r.MinSamples = defaultReflectionSamples },
		},
	)
}

func (b *BaselineConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "baseline.window_days",
			need:  func() bool { return b.WindowDays <= 0 },
			apply: func() { b.WindowDays = defaultBaselineWindow },
		},
		fieldDefault{
			key:   "baseline.min_observations",
			need:  func() bool { return b.MinObservations <= 0 },
			apply: func() { b.MinObservations = defaultBaselineMinObs },
		},
		fieldDefault{
			key:   "baseline.fallback_days",
			need:  func() bool { return b.FallbackDays <= 0 },
			apply: func() { b.FallbackDays = defaultBaselineFallback },
		},
	)
}

func (f *ForecastConfig) applyDefaults(keys keySet) {
	if f == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("forecast.enabled", &f.Enabled, true),
		fieldDefault{
			key:   "forecast.window",
			need:  func() bool { return f.Window <= 0 },
			apply: func() { f.Window = defaultForecastWindow },
		},
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.memory_path", &s.MemoryPath, defaultMemoryStorePath),
		stringFieldDefault("store.report_path", &s.ReportPath, defaultReportStorePath),
		fieldDefault{
			key:   "store.retry_max_attempts",
			need:  func() bool { return s.RetryMaxAttempts <= 0 },
			apply: func() { s.RetryMaxAttempts = defaultRetryAttempts },
		},
		fieldDefault{
			key:   "store.retry_initial_ms",
			need:  func() bool { return s.RetryInitialMS <= 0 },
			apply: func() { s.RetryInitialMS = defaultRetryInitialMS },
		},
		fieldDefault{
			key:   "store.retry_max_elapsed_ms",
			need:  func() bool { return s.RetryMaxElapsedMS <= 0 },
			apply: func() { s.RetryMaxElapsedMS = defaultRetryElapsedMS },
		},
	)
}

func (w *WatchlistConfig) applyDefaults(keys keySet) {
	if w == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("watchlist.path", &w.Path, defaultWatchlistPath),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
