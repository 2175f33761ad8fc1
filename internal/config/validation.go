package config

import "fmt"

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Thresholds.validate(); err != nil {
		return err
	}
	if err := c.Suppression.validate(); err != nil {
		return err
	}
	if err := c.Reflection.validate(); err != nil {
		return err
	}
	if err := c.Baseline.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	return nil
}

func (t *ThresholdsConfig) validate() error {
	if t.AlertPctThreshold <= 0 {
		return fmt.Errorf("thresholds.alert_pct_threshold must be > 0")
	}
	if t.MonitorScoreThreshold <= 0 {
		return fmt.Errorf("thresholds.monitor_score_threshold must be > 0")
	}
	if t.AlertScoreThreshold <= t.MonitorScoreThreshold {
		return fmt.Errorf("thresholds.alert_score_threshold (%.3f) must exceed monitor_score_threshold (%.3f)",
			t.AlertScoreThreshold, t.MonitorScoreThreshold)
	}
	if t.MinConfidenceThreshold < 0 || t.MinConfidenceThreshold > 1 {
		return fmt.Errorf("thresholds.min_confidence_threshold must be within [0,1]")
	}
	return nil
}

func (s *SuppressionConfig) validate() error {
	if s.WindowDays <= 0 {
		return fmt.Errorf("suppression.suppression_window_days must be > 0")
	}
	if s.MinDelta <= 0 || s.MinDelta >= 1 {
		return fmt.Errorf("suppression.suppression_min_delta must be within (0,1)")
	}
	if s.ConfidenceFloor < 0 || s.ConfidenceFloor > 1 {
		return fmt.Errorf("suppression.confidence_floor must be within [0,1]")
	}
	return nil
}

func (r *ReflectionConfig) validate() error {
	if r.MinAlertThreshold >= r.MaxAlertThreshold {
		return fmt.Errorf("reflection.min_alert_threshold must be below max_alert_threshold")
	}
	if r.TargetFPRate <= 0 || r.TargetFPRate >= 1 {
		return fmt.Errorf("reflection.target_false_positive_rate must be within (0,1)")
	}
	if r.TargetMissRate <= 0 || r.TargetMissRate >= 1 {
		return fmt.Errorf("reflection.target_miss_rate must be within (0,1)")
	}
	return nil
}

func (b *BaselineConfig) validate() error {
	if b.MinObservations > b.WindowDays {
		return fmt.Errorf("baseline.min_observations (%d) cannot exceed window_days (%d)",
			b.MinObservations, b.WindowDays)
	}
	if b.FallbackDays < b.WindowDays {
		return fmt.Errorf("baseline.fallback_days must be >= window_days")
	}
	return nil
}

func (s *StoreConfig) validate() error {
	if s.MemoryPath == "" {
		return fmt.Errorf("store.memory_path cannot be empty")
	}
	if s.ReportPath == "" {
		return fmt.Errorf("store.report_path cannot be empty")
	}
	return nil
}
