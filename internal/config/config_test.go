package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Clear anything the environment or a .env file might set.
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL",
		"JUDGE_URL", "JUDGE_TIMEOUT_MS", "RULE_SEARCH_URL", "RULE_SEARCH_LIMIT",
		"REPORTING_THRESHOLD", "HIGH_VALUE_THRESHOLD", "HIGH_RISK_COUNTRIES",
		"INTEGRITY_INTERVAL_SECONDS", "INTEGRITY_WINDOW_HOURS",
		"OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != DefaultPort {
		t.Errorf("Port = %q, want %q", cfg.Port, DefaultPort)
	}
	if cfg.Env != DefaultEnv {
		t.Errorf("Env = %q, want %q", cfg.Env, DefaultEnv)
	}
	if cfg.JudgeTimeout != DefaultJudgeTimeoutMS*time.Millisecond {
		t.Errorf("JudgeTimeout = %v", cfg.JudgeTimeout)
	}
	if cfg.RuleSearchLimit != DefaultRuleSearchLimit {
		t.Errorf("RuleSearchLimit = %d", cfg.RuleSearchLimit)
	}
	if cfg.ReportingThreshold != DefaultReportingThreshold {
		t.Errorf("ReportingThreshold = %v", cfg.ReportingThreshold)
	}
	if cfg.IntegrityInterval != DefaultIntegritySeconds*time.Second {
		t.Errorf("IntegrityInterval = %v", cfg.IntegrityInterval)
	}
	if cfg.IntegrityWindow != DefaultIntegrityHours*time.Hour {
		t.Errorf("IntegrityWindow = %v", cfg.IntegrityWindow)
	}
	if cfg.HighRiskCountries != nil {
		t.Errorf("HighRiskCountries = %v, want nil (use built-in list)", cfg.HighRiskCountries)
	}
	if !cfg.IsDevelopment() || cfg.IsProduction() {
		t.Error("Default env should be development")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "staging")
	t.Setenv("JUDGE_URL", "http://judge.example.com")
	t.Setenv("JUDGE_TIMEOUT_MS", "2500")
	t.Setenv("RULE_SEARCH_LIMIT", "5")
	t.Setenv("REPORTING_THRESHOLD", "15000")
	t.Setenv("HIGH_RISK_COUNTRIES", " ir, kp ,sy,")
	t.Setenv("INTEGRITY_WINDOW_HOURS", "48")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.JudgeTimeout != 2500*time.Millisecond {
		t.Errorf("JudgeTimeout = %v", cfg.JudgeTimeout)
	}
	if cfg.RuleSearchLimit != 5 {
		t.Errorf("RuleSearchLimit = %d", cfg.RuleSearchLimit)
	}
	if cfg.ReportingThreshold != 15000 {
		t.Errorf("ReportingThreshold = %v", cfg.ReportingThreshold)
	}
	want := []string{"IR", "KP", "SY"}
	if len(cfg.HighRiskCountries) != len(want) {
		t.Fatalf("HighRiskCountries = %v, want %v", cfg.HighRiskCountries, want)
	}
	for i, c := range want {
		if cfg.HighRiskCountries[i] != c {
			t.Errorf("HighRiskCountries[%d] = %q, want %q", i, cfg.HighRiskCountries[i], c)
		}
	}
	if cfg.IntegrityWindow != 48*time.Hour {
		t.Errorf("IntegrityWindow = %v", cfg.IntegrityWindow)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("JUDGE_TIMEOUT_MS", "not-a-number")
	t.Setenv("REPORTING_THRESHOLD", "lots")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.JudgeTimeout != DefaultJudgeTimeoutMS*time.Millisecond {
		t.Errorf("JudgeTimeout = %v, want default", cfg.JudgeTimeout)
	}
	if cfg.ReportingThreshold != DefaultReportingThreshold {
		t.Errorf("ReportingThreshold = %v, want default", cfg.ReportingThreshold)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			JudgeTimeout:       10 * time.Second,
			RuleSearchLimit:    10,
			ReportingThreshold: 10000,
			IntegrityInterval:  5 * time.Minute,
			IntegrityWindow:    24 * time.Hour,
		}
	}

	if err := valid().Validate(); err != nil {
		t.Errorf("Valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero judge timeout", func(c *Config) { c.JudgeTimeout = 0 }, "JUDGE_TIMEOUT_MS"},
		{"zero rule limit", func(c *Config) { c.RuleSearchLimit = 0 }, "RULE_SEARCH_LIMIT"},
		{"negative threshold", func(c *Config) { c.ReportingThreshold = -1 }, "REPORTING_THRESHOLD"},
		{"zero interval", func(c *Config) { c.IntegrityInterval = 0 }, "INTEGRITY_INTERVAL_SECONDS"},
		{"zero window", func(c *Config) { c.IntegrityWindow = 0 }, "INTEGRITY_WINDOW_HOURS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %s", err, tt.want)
			}
		})
	}
}

func TestValidateProductionEndpoints(t *testing.T) {
	cfg := &Config{
		Env:                "production",
		JudgeTimeout:       10 * time.Second,
		RuleSearchLimit:    10,
		ReportingThreshold: 10000,
		IntegrityInterval:  5 * time.Minute,
		IntegrityWindow:    24 * time.Hour,
	}

	// Internal addresses are rejected in production.
	cfg.JudgeURL = "http://localhost:9000"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "JUDGE_URL") {
		t.Errorf("Validate() = %v, want JUDGE_URL rejection", err)
	}

	cfg.JudgeURL = "https://203.0.113.10" // public IP literal, no DNS lookup
	cfg.RuleSearchURL = "http://169.254.169.254/latest"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "RULE_SEARCH_URL") {
		t.Errorf("Validate() = %v, want RULE_SEARCH_URL rejection", err)
	}

	// The same URLs are fine outside production.
	cfg.Env = "development"
	cfg.JudgeURL = "http://localhost:9000"
	cfg.RuleSearchURL = "http://localhost:9001"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Development config rejected: %v", err)
	}
}
