package app

import (
	"context"
	"fmt"
	"time"

	vcfg "vigil/internal/config"
	"vigil/internal/engine"
	"vigil/internal/ingest"
	"vigil/internal/logger"
	"vigil/internal/memory"
	"vigil/internal/report"
	"vigil/internal/scheduler"
	alerthttp "vigil/internal/transport/http"
	"vigil/internal/watchlist"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载数据集→跑批→周期反思→可选 HTTP 查询服务。
type App struct {
	cfg        *vcfg.Config
	engine     *engine.Engine
	store      memory.Store
	feed       *report.Store
	httpServer *alerthttp.Server
	watch      *watchlist.Loader
	Summary    *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *vcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildApp(cfg)
}

// Engine 暴露底层引擎（供测试与回放工具使用）。
func (a *App) Engine() *engine.Engine {
	if a == nil {
		return nil
	}
	return a.engine
}

// Run 执行批处理；ServeHTTP 开启时随后驻留提供查询服务与周期反思。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	if a.Summary != nil {
		a.Summary.Print()
	}

	dataset, err := a.loadDataset()
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)

	if a.httpServer != nil {
		group.Go(func() error {
			logger.Infof("http: listening on %s", a.httpServer.Addr())
			if err := a.httpServer.Start(ctx); err != nil {
				return fmt.Errorf("http server error: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		if len(dataset) > 0 {
			if _, err := a.engine.RunBatch(ctx, dataset); err != nil {
				return fmt.Errorf("batch run error: %w", err)
			}
		} else {
			logger.Warnf("app: no input dataset configured, nothing to process")
		}
		// 纯批处理模式跑完即退出；驻留模式继续周期反思。
		if a.httpServer == nil {
			return nil
		}
		a.runReflectionLoop(ctx)
		return nil
	})

	return group.Wait()
}

// loadDataset 合并历史 CSV 与 JSON 实时喂入，同 symbol 记录按日期保持有序。
func (a *App) loadDataset() (map[string][]ingest.DayRecord, error) {
	out := make(map[string][]ingest.DayRecord)
	if path := a.cfg.Ingest.DatasetPath; path != "" {
		csvData, err := ingest.LoadCSV(path)
		if err != nil {
			return nil, fmt.Errorf("load dataset %s: %w", path, err)
		}
		for sym, recs := range csvData {
			out[sym] = append(out[sym], recs...)
		}
		logger.Infof("ingest: dataset %s loaded, %d symbols", path, len(csvData))
	}
	if path := a.cfg.Ingest.FeedPath; path != "" {
		feedData, err := ingest.LoadJSONFeed(path)
		if err != nil {
			return nil, fmt.Errorf("load feed %s: %w", path, err)
		}
		for sym, recs := range feedData {
			out[sym] = append(out[sym], recs...)
		}
		logger.Infof("ingest: feed %s loaded, %d symbols", path, len(feedData))
	}
	return out, nil
}

// runReflectionLoop 按配置节奏对监控列表逐 symbol 跑反思，直到 ctx 结束。
func (a *App) runReflectionLoop(ctx context.Context) {
	interval, ok := scheduler.ParseCadence(a.cfg.Reflection.Cadence)
	if !ok {
		logger.Errorf("reflection: invalid cadence %q, loop disabled", a.cfg.Reflection.Cadence)
		<-ctx.Done()
		return
	}
	sched := scheduler.NewIntervalScheduler(ctx, "reflection", interval)
	sched.Start(func() {
		now := time.Now().UTC()
		for _, sym := range a.engine.Symbols() {
			if _, err := a.engine.ReflectSymbol(ctx, sym, now); err != nil {
				logger.Warnf("reflection: %s failed: %v", sym, err)
			}
		}
	})
}

// Close 释放存储资源。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.feed != nil {
		_ = a.feed.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}
