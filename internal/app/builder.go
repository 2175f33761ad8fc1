package app

import (
	"fmt"
	"time"

	"vigil/internal/alert"
	vcfg "vigil/internal/config"
	"vigil/internal/engine"
	"vigil/internal/explain"
	"vigil/internal/forecast"
	"vigil/internal/memory"
	"vigil/internal/policy"
	"vigil/internal/report"
	"vigil/internal/signal"
	alerthttp "vigil/internal/transport/http"
	"vigil/internal/watchlist"
)

// buildApp 手工装配依赖图：store → builder → suppressor → engine → http。
func buildApp(cfg *vcfg.Config) (*App, error) {
	defaults := initialThresholds(cfg)

	sqliteStore, err := memory.NewSQLiteStore(cfg.Store.MemoryPath, defaults)
	if err != nil {
		return nil, fmt.Errorf("open alert memory: %w", err)
	}
	store := memory.NewRetryingStore(sqliteStore, memory.RetryConfig{
		MaxAttempts:     cfg.Store.RetryMaxAttempts,
		InitialInterval: time.Duration(cfg.Store.RetryInitialMS) * time.Millisecond,
		MaxElapsedTime:  time.Duration(cfg.Store.RetryMaxElapsedMS) * time.Millisecond,
	})

	feed, err := report.NewStore(cfg.Store.ReportPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open decision feed: %w", err)
	}

	builder := signal.NewBuilder(signal.BuilderConfig{
		WindowDays:      cfg.Baseline.WindowDays,
		MinObservations: cfg.Baseline.MinObservations,
		FallbackDays:    cfg.Baseline.FallbackDays,
	})

	suppressor := policy.NewSuppressor(policy.Config{
		WindowDays:             cfg.Suppression.WindowDays,
		MinDelta:               cfg.Suppression.MinDelta,
		ConfidenceFloor:        cfg.Suppression.ConfidenceFloor,
		ContradictionMagnitude: cfg.Suppression.ContradictionMagnitude,
	})

	var forecaster *forecast.Forecaster
	if cfg.Forecast.Enabled {
		forecaster = forecast.New(cfg.Forecast.Window)
	}

	var watchLoader *watchlist.Loader
	watchFn := func() watchlist.Snapshot { return watchlist.Static(nil) }
	if cfg.Watchlist.Path != "" {
		watchLoader, err = watchlist.NewLoader(cfg.Watchlist.Path)
		if err != nil {
			_ = feed.Close()
			_ = store.Close()
			return nil, fmt.Errorf("load watchlist: %w", err)
		}
		watchFn = watchLoader.Snapshot
	}

	eng, err := engine.New(engine.Options{
		Builder:    builder,
		Store:      store,
		Feed:       feed,
		Suppressor: suppressor,
		Explainer:  explain.NewTemplateGenerator(),
		Forecaster: forecaster,
		Watch:      watchFn,
		Reflection: policy.ReflectionConfig{
			TargetFPRate:      cfg.Reflection.TargetFPRate,
			TargetMissRate:    cfg.Reflection.TargetMissRate,
			AdjustStep:        cfg.Reflection.AdjustStep,
			MinAlertThreshold: cfg.Reflection.MinAlertThreshold,
			MaxAlertThreshold: cfg.Reflection.MaxAlertThreshold,
			MinSamples:        cfg.Reflection.MinSamples,
		},
		MaxParallelSymbols: cfg.Engine.MaxParallelSymbols,
	})
	if err != nil {
		_ = feed.Close()
		_ = store.Close()
		return nil, err
	}

	var httpServer *alerthttp.Server
	if cfg.Engine.ServeHTTP {
		httpServer, err = alerthttp.NewServer(alerthttp.ServerConfig{
			Addr:    cfg.App.HTTPAddr,
			Feed:    feed,
			Memory:  store,
			Symbols: eng.Symbols,
		})
		if err != nil {
			_ = feed.Close()
			_ = store.Close()
			return nil, fmt.Errorf("build http server: %w", err)
		}
	}

	a := &App{
		cfg:        cfg,
		engine:     eng,
		store:      store,
		feed:       feed,
		httpServer: httpServer,
		watch:      watchLoader,
	}
	a.Summary = buildStartupSummary(cfg, defaults, eng.Symbols())
	return a, nil
}

// initialThresholds 把静态配置折成首版 ThresholdState（version=1）。
func initialThresholds(cfg *vcfg.Config) alert.ThresholdState {
	return alert.ThresholdState{
		Version:               1,
		UpdatedAt:             time.Now().UTC(),
		AlertPctThreshold:     cfg.Thresholds.AlertPctThreshold,
		MonitorScoreThreshold: cfg.Thresholds.MonitorScoreThreshold,
		AlertScoreThreshold:   cfg.Thresholds.AlertScoreThreshold,
		VolatilityWeight:      cfg.Thresholds.VolatilityWeight,
		MinConfidence:         cfg.Thresholds.MinConfidenceThreshold,
		SuppressionWindowDays: cfg.Suppression.WindowDays,
		SuppressionMinDelta:   cfg.Suppression.MinDelta,
	}
}
