package app

import (
	"fmt"
	"strings"

	"vigil/internal/alert"
	vcfg "vigil/internal/config"
)

// StartupSummary 启动时打印一次的配置快照，便于核对运行参数。
type StartupSummary struct {
	Env        string
	Symbols    []string
	Thresholds alert.ThresholdState
	Reflection ReflectionSummary
	Inputs     InputSummary
	HTTPAddr   string
	ServeHTTP  bool
}

type ReflectionSummary struct {
	Cadence        string
	TargetFPRate   float64
	TargetMissRate float64
	AdjustStep     float64
	MinSamples     int
}

type InputSummary struct {
	DatasetPath   string
	FeedPath      string
	WatchlistPath string
	MemoryPath    string
	ReportPath    string
}

func buildStartupSummary(cfg *vcfg.Config, th alert.ThresholdState, symbols []string) *StartupSummary {
	return &StartupSummary{
		Env:        cfg.App.Env,
		Symbols:    symbols,
		Thresholds: th,
		Reflection: ReflectionSummary{
			Cadence:        cfg.Reflection.Cadence,
			TargetFPRate:   cfg.Reflection.TargetFPRate,
			TargetMissRate: cfg.Reflection.TargetMissRate,
			AdjustStep:     cfg.Reflection.AdjustStep,
			MinSamples:     cfg.Reflection.MinSamples,
		},
		Inputs: InputSummary{
			DatasetPath:   cfg.Ingest.DatasetPath,
			FeedPath:      cfg.Ingest.FeedPath,
			WatchlistPath: cfg.Watchlist.Path,
			MemoryPath:    cfg.Store.MemoryPath,
			ReportPath:    cfg.Store.ReportPath,
		},
		HTTPAddr:  cfg.App.HTTPAddr,
		ServeHTTP: cfg.Engine.ServeHTTP,
	}
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[运行环境 (RUNTIME)]")
	fmt.Printf("  环境: %s\n", orDash(s.Env))
	if s.ServeHTTP {
		fmt.Printf("  HTTP: %s\n", s.HTTPAddr)
	} else {
		fmt.Println("  HTTP: 关闭（纯批处理模式）")
	}
	fmt.Println()

	fmt.Println("[监控列表 (WATCHLIST)]")
	if len(s.Symbols) == 0 {
		fmt.Println("  (未配置，处理数据集内全部 symbol)")
	} else {
		fmt.Printf("  符号数: %d\n", len(s.Symbols))
		fmt.Printf("  - %s\n", formatList(s.Symbols))
	}
	fmt.Println()

	fmt.Println("[初始阈值 (THRESHOLDS)]")
	fmt.Printf("  alert_pct_threshold: %.4f\n", s.Thresholds.AlertPctThreshold)
	fmt.Printf("  monitor_score_threshold: %.3f\n", s.Thresholds.MonitorScoreThreshold)
	fmt.Printf("  alert_score_threshold: %.3f\n", s.Thresholds.AlertScoreThreshold)
	fmt.Printf("  volatility_weight: %.2f\n", s.Thresholds.VolatilityWeight)
	fmt.Printf("  min_confidence: %.2f\n", s.Thresholds.MinConfidence)
	fmt.Println()

	fmt.Println("[反思策略 (REFLECTION)]")
	fmt.Printf("  节奏: %s\n", orDash(s.Reflection.Cadence))
	fmt.Printf("  误报率目标: %.2f  漏报率目标: %.2f  步长: %.3f  最少样本: %d\n",
		s.Reflection.TargetFPRate, s.Reflection.TargetMissRate,
		s.Reflection.AdjustStep, s.Reflection.MinSamples)
	fmt.Println()

	fmt.Println("[输入与存储 (INPUTS & STORES)]")
	fmt.Printf("  数据集: %s\n", orDash(s.Inputs.DatasetPath))
	fmt.Printf("  实时喂入: %s\n", orDash(s.Inputs.FeedPath))
	fmt.Printf("  监控列表文件: %s\n", orDash(s.Inputs.WatchlistPath))
	fmt.Printf("  告警记忆库: %s\n", s.Inputs.MemoryPath)
	fmt.Printf("  决策流水库: %s\n", s.Inputs.ReportPath)
	fmt.Println(strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
