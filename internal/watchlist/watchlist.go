package watchlist

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"vigil/internal/alert"
	"vigil/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Entry 描述一个被监控 symbol 及其可选阈值覆盖。
type Entry struct {
	Symbol string `mapstructure:"symbol" yaml:"symbol"`

	// 指针区分"未设置"与"显式 0"；未设置沿用全局阈值。
	AlertPctThreshold     *float64 `mapstructure:"alert_pct_threshold" yaml:"alert_pct_threshold"`
	MonitorScoreThreshold *float64 `mapstructure:"monitor_score_threshold" yaml:"monitor_score_threshold"`
	AlertScoreThreshold   *float64 `mapstructure:"alert_score_threshold" yaml:"alert_score_threshold"`
	SuppressionWindowDays *int     `mapstructure:"suppression_window_days" yaml:"suppression_window_days"`
}

// fileConfig 映射 watchlist 文件。
type fileConfig struct {
	Watchlist []Entry `mapstructure:"watchlist" yaml:"watchlist"`
}

// Snapshot 是监控列表的不可变快照。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Entries  map[string]Entry // key: symbol upper
}

// Contains 判断 symbol 是否在监控范围内；空列表视为"全部监控"。
func (s Snapshot) Contains(symbol string) bool {
	if len(s.Entries) == 0 {
		return true
	}
	_, ok := s.Entries[strings.ToUpper(strings.TrimSpace(symbol))]
	return ok
}

// ApplyOverrides 把 symbol 的覆盖值合入阈值状态。
func (s Snapshot) ApplyOverrides(symbol string, state alert.ThresholdState) alert.ThresholdState {
	entry, ok := s.Entries[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return state
	}
	if entry.AlertPctThreshold != nil {
		state.AlertPctThreshold = *entry.AlertPctThreshold
	}
	if entry.MonitorScoreThreshold != nil {
		state.MonitorScoreThreshold = *entry.MonitorScoreThreshold
	}
	if entry.AlertScoreThreshold != nil {
		state.AlertScoreThreshold = *entry.AlertScoreThreshold
	}
	if entry.SuppressionWindowDays != nil {
		state.SuppressionWindowDays = *entry.SuppressionWindowDays
	}
	return state
}

// ChangeListener 在列表重载时触发。
type ChangeListener func(Snapshot)

// Loader 读取 watchlist 文件并监听热更新。
type Loader struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewLoader 读取配置文件并开始监听 FS 事件。
func NewLoader(path string) (*Loader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("watchlist loader requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read watchlist failed: %w", err)
	}
	l := &Loader{path: path, v: v}
	if err := l.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := l.reload(); err != nil {
			logger.Errorf("watchlist reload failed (%s): %v", evt.Name, err)
			return
		}
		l.notify()
	})
	v.WatchConfig()
	return l, nil
}

// Static 从内存条目构造不热更的快照（批处理与测试用）。
func Static(entries []Entry) Snapshot {
	return buildSnapshot(entries, 0, time.Now())
}

// Snapshot 返回当前监控列表快照。
func (l *Loader) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot
}

// Subscribe 注册监听器，并立即异步收到一次完整快照。
func (l *Loader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	snap := l.snapshot
	l.mu.Unlock()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("watchlist listener panic: %v", r)
			}
		}()
		fn(snap)
	}()
}

func (l *Loader) notify() {
	l.mu.RLock()
	snap := l.snapshot
	listeners := append([]ChangeListener(nil), l.listeners...)
	l.mu.RUnlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

func (l *Loader) reload() error {
	var cfg fileConfig
	if err := l.v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.WeaklyTypedInput = true
	}); err != nil {
		// viper 偶发解不开嵌套列表时，退回直接 YAML 解码。
		if yamlErr := l.reloadYAML(&cfg); yamlErr != nil {
			return fmt.Errorf("parse watchlist failed: %w", err)
		}
	}
	l.mu.Lock()
	version := l.snapshot.Version + 1
	l.snapshot = buildSnapshot(cfg.Watchlist, version, time.Now())
	count := len(l.snapshot.Entries)
	l.mu.Unlock()
	logger.Infof("watchlist: loaded %d symbols from %s (version %d)", count, l.path, version)
	return nil
}

func (l *Loader) reloadYAML(cfg *fileConfig) error {
	raw, err := yaml.Marshal(l.v.AllSettings())
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, cfg)
}

func buildSnapshot(entries []Entry, version int64, now time.Time) Snapshot {
	out := Snapshot{Version: version, LoadedAt: now, Entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		sym := strings.ToUpper(strings.TrimSpace(e.Symbol))
		if sym == "" {
			continue
		}
		e.Symbol = sym
		out.Entries[sym] = e
	}
	return out
}
