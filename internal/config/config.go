// Package config handles YAML configuration loading, environment-variable
// expansion, and field validation, matching the teacher's
// internal/config/config.go shape.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete supervisor configuration.
type Config struct {
	App        AppConfig                 `yaml:"app"`
	Exchanges  map[string]ExchangeConfig `yaml:"exchanges"`
	Supervisor SupervisorConfig          `yaml:"supervisor"`
	System     SystemConfig              `yaml:"system"`
	Telemetry  TelemetryConfig           `yaml:"telemetry"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	PrimaryExchange string `yaml:"primary_exchange"`
	Symbol          string `yaml:"symbol"`
	StorageDSN      string `yaml:"storage_dsn"`
}

// ExchangeConfig contains one venue's connection settings.
type ExchangeConfig struct {
	Variant    string `yaml:"variant" validate:"oneof=a b"` // signature variant from spec.md §4.1/§6
	BaseURL    string `yaml:"base_url" validate:"required"`
	RecvWindowMs int  `yaml:"recv_window_ms"`
}

// SupervisorConfig contains per-strategy tick intervals and shutdown
// behavior (spec.md §4.5, §5).
type SupervisorConfig struct {
	TickIntervals           map[string]time.Duration `yaml:"tick_intervals"`
	ShutdownDeadline        time.Duration             `yaml:"shutdown_deadline"`
	HTTPCallDeadline        time.Duration             `yaml:"http_call_deadline"`
	BatchCallDeadline       time.Duration             `yaml:"batch_call_deadline"`
	InterBatchPause         time.Duration             `yaml:"inter_batch_pause"`
	InterOrderPause         time.Duration             `yaml:"inter_order_pause"`
	TreatUnknownCancelAsSuccess bool                  `yaml:"treat_unknown_cancel_as_success"`
}

// SystemConfig contains process-wide settings.
type SystemConfig struct {
	LogLevel string `yaml:"log_level" validate:"oneof=DEBUG INFO WARN ERROR FATAL"`
}

// TelemetryConfig contains metrics server settings.
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// ValidationError reports one failed validation rule.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// Load reads, expands, parses, and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(c *Config) {
	if c.Supervisor.ShutdownDeadline == 0 {
		c.Supervisor.ShutdownDeadline = 5 * time.Second
	}
	if c.Supervisor.HTTPCallDeadline == 0 {
		c.Supervisor.HTTPCallDeadline = 10 * time.Second
	}
	if c.Supervisor.BatchCallDeadline == 0 {
		c.Supervisor.BatchCallDeadline = 30 * time.Second
	}
	if c.Supervisor.InterBatchPause == 0 {
		c.Supervisor.InterBatchPause = 400 * time.Millisecond
	}
	if c.Supervisor.InterOrderPause == 0 {
		c.Supervisor.InterOrderPause = 500 * time.Millisecond
	}
	if c.Supervisor.TickIntervals == nil {
		c.Supervisor.TickIntervals = DefaultTickIntervals()
	} else {
		for k, v := range DefaultTickIntervals() {
			if _, ok := c.Supervisor.TickIntervals[k]; !ok {
				c.Supervisor.TickIntervals[k] = v
			}
		}
	}
	if c.System.LogLevel == "" {
		c.System.LogLevel = "INFO"
	}
}

// DefaultTickIntervals returns the per-strategy tick cadence from
// spec.md §4.5.
func DefaultTickIntervals() map[string]time.Duration {
	return map[string]time.Duration{
		"conditional": 10 * time.Second,
		"accumulator": 60 * time.Second,
		"maker":       30 * time.Second,
		"stabilizer":  5 * time.Second,
		"pricekeeper": 3 * time.Second,
		"buywall":     10 * time.Second,
		"liquidity":   10 * time.Second,
	}
}

// Validate performs field validation across every section.
func (c *Config) Validate() error {
	var errs []string

	if c.App.Symbol == "" {
		errs = append(errs, ValidationError{Field: "app.symbol", Message: "required"}.Error())
	}
	if len(c.Exchanges) == 0 {
		errs = append(errs, ValidationError{Field: "exchanges", Message: "at least one exchange must be configured"}.Error())
	}
	for name, ex := range c.Exchanges {
		if ex.BaseURL == "" {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("exchanges.%s.base_url", name), Message: "required"}.Error())
		}
		if ex.Variant != "a" && ex.Variant != "b" {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("exchanges.%s.variant", name), Value: ex.Variant, Message: "must be 'a' or 'b'"}.Error())
		}
	}
	switch c.System.LogLevel {
	case "DEBUG", "INFO", "WARN", "ERROR", "FATAL":
	default:
		errs = append(errs, ValidationError{Field: "system.log_level", Value: c.System.LogLevel, Message: "must be one of DEBUG INFO WARN ERROR FATAL"}.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}
