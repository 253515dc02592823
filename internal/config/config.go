// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/finwatch/amlguard/internal/security"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// External collaborators
	JudgeURL        string        // rule-test judge service
	JudgeTimeout    time.Duration // per-call bound
	RuleSearchURL   string        // candidate-rule retrieval service
	RuleSearchLimit int

	// Risk thresholds
	ReportingThreshold float64 // regulatory cash reporting threshold
	HighValueThreshold float64
	HighRiskCountries  []string // ISO alpha-2, comma-separated in env

	// Integrity monitoring
	IntegrityInterval time.Duration
	IntegrityWindow   time.Duration

	// Tracing
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort               = "8080"
	DefaultEnv                = "development"
	DefaultLogLevel           = "info"
	DefaultJudgeTimeoutMS     = 10000
	DefaultRuleSearchLimit    = 10
	DefaultReportingThreshold = 10000.0
	DefaultHighValueThreshold = 10000.0
	DefaultIntegritySeconds   = 300
	DefaultIntegrityHours     = 24
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:        os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		JudgeURL:           os.Getenv("JUDGE_URL"),
		JudgeTimeout:       time.Duration(getEnvInt64("JUDGE_TIMEOUT_MS", DefaultJudgeTimeoutMS)) * time.Millisecond,
		RuleSearchURL:      os.Getenv("RULE_SEARCH_URL"),
		RuleSearchLimit:    int(getEnvInt64("RULE_SEARCH_LIMIT", DefaultRuleSearchLimit)),
		ReportingThreshold: getEnvFloat("REPORTING_THRESHOLD", DefaultReportingThreshold),
		HighValueThreshold: getEnvFloat("HIGH_VALUE_THRESHOLD", DefaultHighValueThreshold),
		HighRiskCountries:  getEnvList("HIGH_RISK_COUNTRIES"),
		IntegrityInterval:  time.Duration(getEnvInt64("INTEGRITY_INTERVAL_SECONDS", DefaultIntegritySeconds)) * time.Second,
		IntegrityWindow:    time.Duration(getEnvInt64("INTEGRITY_WINDOW_HOURS", DefaultIntegrityHours)) * time.Hour,
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is coherent
func (c *Config) Validate() error {
	if c.JudgeTimeout <= 0 {
		return fmt.Errorf("JUDGE_TIMEOUT_MS must be positive")
	}
	if c.RuleSearchLimit <= 0 {
		return fmt.Errorf("RULE_SEARCH_LIMIT must be positive")
	}
	if c.ReportingThreshold <= 0 {
		return fmt.Errorf("REPORTING_THRESHOLD must be positive")
	}
	if c.IntegrityInterval <= 0 {
		return fmt.Errorf("INTEGRITY_INTERVAL_SECONDS must be positive")
	}
	if c.IntegrityWindow <= 0 {
		return fmt.Errorf("INTEGRITY_WINDOW_HOURS must be positive")
	}
	// In production, collaborator URLs must not point at internal addresses.
	if c.IsProduction() {
		if c.JudgeURL != "" {
			if err := security.ValidateEndpointURL(c.JudgeURL); err != nil {
				return fmt.Errorf("JUDGE_URL: %w", err)
			}
		}
		if c.RuleSearchURL != "" {
			if err := security.ValidateEndpointURL(c.RuleSearchURL); err != nil {
				return fmt.Errorf("RULE_SEARCH_URL: %w", err)
			}
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvList parses a comma-separated env var; nil when unset so callers can
// distinguish "not configured" from "configured empty".
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(strings.ToUpper(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
