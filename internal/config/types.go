package config

import "strings"

// Config 是 Vigil 的主配置载体。
type Config struct {
	App         AppConfig         `toml:"app"`
	Engine      EngineConfig      `toml:"engine"`
	Thresholds  ThresholdsConfig  `toml:"thresholds"`
	Suppression SuppressionConfig `toml:"suppression"`
	Reflection  ReflectionConfig  `toml:"reflection"`
	Baseline    BaselineConfig    `toml:"baseline"`
	Forecast    ForecastConfig    `toml:"forecast"`
	Ingest      IngestConfig      `toml:"ingest"`
	Store       StoreConfig       `toml:"store"`
	Watchlist   WatchlistConfig   `toml:"watchlist"`
}

type AppConfig struct {
	Env          string `toml:"env"`
	LogLevel     string `toml:"log_level"`
	HTTPAddr     string `toml:"http_addr"`
	LogPath      string `toml:"log_path"`
	AuditLogPath string `toml:"audit_log_path"`
	AuditDump    bool   `toml:"audit_dump_payload"`
}

// EngineConfig 控制批处理的并行度与运行方式。
type EngineConfig struct {
	// MaxParallelSymbols 限制同时处理的 symbol 数；同一 symbol 始终串行。
	MaxParallelSymbols int  `toml:"max_parallel_symbols"`
	ServeHTTP          bool `toml:"serve_http"`
}

// ThresholdsConfig 是 ThresholdState 的静态初始值。
// 运行期副本由 memory store 持有，只能经 Reflection 单写者更新。
type ThresholdsConfig struct {
	AlertPctThreshold      float64 `toml:"alert_pct_threshold"`
	MonitorScoreThreshold  float64 `toml:"monitor_score_threshold"`
	AlertScoreThreshold    float64 `toml:"alert_score_threshold"`
	VolatilityWeight       float64 `toml:"volatility_weight"`
	MinConfidenceThreshold float64 `toml:"min_confidence_threshold"`
}

// SuppressionConfig 控制告警去重与降噪规则。
type SuppressionConfig struct {
	WindowDays      int     `toml:"suppression_window_days"`
	MinDelta        float64 `toml:"suppression_min_delta"`
	ConfidenceFloor float64 `toml:"confidence_floor"`
	// ContradictionMagnitude 为情绪/技术面反向判定的最小强度。
	ContradictionMagnitude float64 `toml:"contradiction_magnitude"`
}

// ReflectionConfig 控制阈值自适应调整。
type ReflectionConfig struct {
	Cadence           string  `toml:"cadence"` // "1d" / "4h" / "1w"
	TargetFPRate      float64 `toml:"target_false_positive_rate"`
	TargetMissRate    float64 `toml:"target_miss_rate"`
	AdjustStep        float64 `toml:"adjust_step"`
	MinAlertThreshold float64 `toml:"min_alert_threshold"`
	MaxAlertThreshold float64 `toml:"max_alert_threshold"`
	MinSamples        int     `toml:"min_samples"`
}

// BaselineConfig 控制快照构建时的回看窗口。
type BaselineConfig struct {
	WindowDays      int `toml:"window_days"`
	MinObservations int `toml:"min_observations"`
	FallbackDays    int `toml:"fallback_days"`
}

// ForecastConfig 控制内置预测器（上游缺失 predicted_close 时兜底）。
type ForecastConfig struct {
	Enabled bool `toml:"enabled"`
	Window  int  `toml:"window"`
}

type IngestConfig struct {
	DatasetPath string `toml:"dataset_path"`
	FeedPath    string `toml:"feed_path"`
}

type StoreConfig struct {
	MemoryPath        string `toml:"memory_path"`
	ReportPath        string `toml:"report_path"`
	RetryMaxAttempts  int    `toml:"retry_max_attempts"`
	RetryInitialMS    int    `toml:"retry_initial_ms"`
	RetryMaxElapsedMS int    `toml:"retry_max_elapsed_ms"`
}

type WatchlistConfig struct {
	Path string `toml:"path"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
