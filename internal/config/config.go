// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

// Package config provides layered configuration loading for Scrutineer.
//
// Configuration is resolved in three layers with clear precedence:
// environment variables override the optional YAML config file, which
// overrides built-in defaults. All thresholds can also be changed live
// through the API; the values here only set the starting point.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the Scrutineer server.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Detection DetectionConfig `koanf:"detection"`
	Aggregate AggregateConfig `koanf:"aggregate"`
	Notify    NotifyConfig    `koanf:"notify"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"min=1s"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=1s"`

	// CORSOrigins lists allowed browser origins. Comma-separated when
	// supplied via environment variable.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitPerMinute caps requests per client IP per minute. 0 disables
	// rate limiting.
	RateLimitPerMinute int `koanf:"rate_limit_per_minute" validate:"min=0"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// DetectionConfig holds detector thresholds and the registry dedup window.
// Values are re-read by subsequent detector passes when changed live,
// never retroactively.
type DetectionConfig struct {
	// VelocityBaseline is the absolute votes-per-minute floor for the
	// velocity detector.
	VelocityBaseline float64 `koanf:"velocity_baseline" validate:"gt=0"`

	// VelocityMinSamples gates the velocity detector until enough samples
	// exist.
	VelocityMinSamples int `koanf:"velocity_min_samples" validate:"min=2"`

	// DensityBaseline is the absolute density floor for the location
	// detector.
	DensityBaseline float64 `koanf:"density_baseline" validate:"gt=0"`

	// ShareDeviationThreshold is the minimum deviation from the uniform
	// expected share before the candidate-share detector considers a
	// candidate.
	ShareDeviationThreshold float64 `koanf:"share_deviation_threshold" validate:"gt=0,lt=1"`

	// TravelWindow is the impossible-travel time window.
	TravelWindow time.Duration `koanf:"travel_window" validate:"gt=0"`

	// DedupWindow suppresses repeat anomalies of the same kind and
	// dimension.
	DedupWindow time.Duration `koanf:"dedup_window" validate:"gt=0"`

	// NotifySeverityThreshold is the minimum severity an admitted anomaly
	// needs before it is pushed to notification sinks. Lower-severity
	// anomalies are still admitted and reported.
	NotifySeverityThreshold float64 `koanf:"notify_severity_threshold" validate:"min=0,max=1"`
}

// AggregateConfig holds the aggregator's windows and history caps.
type AggregateConfig struct {
	VelocityWindow     time.Duration `koanf:"velocity_window" validate:"gt=0"`
	DensityWindow      time.Duration `koanf:"density_window" validate:"gt=0"`
	VelocityHistoryCap int           `koanf:"velocity_history_cap" validate:"min=1"`
	TrendHistoryCap    int           `koanf:"trend_history_cap" validate:"min=1"`

	// DefaultRegions seeds zero-valued location entries at startup.
	// Comma-separated when supplied via environment variable.
	DefaultRegions []string `koanf:"default_regions"`
}

// NotifyConfig holds notification pipeline settings.
type NotifyConfig struct {
	// QueueCapacity bounds the channel between ingestion and the
	// notification pump. When full, notifications are dropped rather than
	// stalling ingestion.
	QueueCapacity int `koanf:"queue_capacity" validate:"min=1"`

	// ReportRefreshInterval is the cadence of the periodic report
	// broadcast to WebSocket clients.
	ReportRefreshInterval time.Duration `koanf:"report_refresh_interval" validate:"min=1s"`

	Webhook WebhookConfig `koanf:"webhook"`
}

// WebhookConfig holds the outbound webhook notifier settings.
type WebhookConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url" validate:"omitempty,url"`

	Timeout time.Duration `koanf:"timeout" validate:"min=1s"`

	// RatePerMinute caps webhook deliveries; bursts beyond it are dropped.
	RatePerMinute int `koanf:"rate_per_minute" validate:"min=1"`
}

// Default returns a Config with all built-in defaults, without touching
// the config file or environment.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with all built-in defaults. These are
// applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8310,
			ReadTimeout:        15 * time.Second,
			WriteTimeout:       15 * time.Second,
			ShutdownTimeout:    10 * time.Second,
			CORSOrigins:        []string{},
			RateLimitPerMinute: 300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Detection: DetectionConfig{
			VelocityBaseline:        5,
			VelocityMinSamples:      3,
			DensityBaseline:         10,
			ShareDeviationThreshold: 0.1,
			TravelWindow:            10 * time.Minute,
			DedupWindow:             30 * time.Minute,
			NotifySeverityThreshold: 0.8,
		},
		Aggregate: AggregateConfig{
			VelocityWindow:     10 * time.Minute,
			DensityWindow:      60 * time.Minute,
			VelocityHistoryCap: 20,
			TrendHistoryCap:    50,
			DefaultRegions:     []string{"urban", "suburban", "rural", "remote"},
		},
		Notify: NotifyConfig{
			QueueCapacity:         256,
			ReportRefreshInterval: 30 * time.Second,
			Webhook: WebhookConfig{
				Enabled:       false,
				URL:           "",
				Timeout:       10 * time.Second,
				RatePerMinute: 60,
			},
		},
	}
}

// Validate checks the configuration against the struct tags plus a few
// cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Notify.Webhook.Enabled && c.Notify.Webhook.URL == "" {
		return fmt.Errorf("invalid configuration: notify.webhook.url required when webhook enabled")
	}
	if c.Aggregate.VelocityWindow >= c.Aggregate.DensityWindow {
		return fmt.Errorf("invalid configuration: aggregate.velocity_window must be shorter than density_window")
	}

	return nil
}
