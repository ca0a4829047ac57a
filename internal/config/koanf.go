// Scrutineer - Real-Time Ballot Pattern Anomaly Detection
// Copyright 2026 Ballotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ballotwatch/scrutineer

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/scrutineer/config.yaml",
	"/etc/scrutineer/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "SCRUTINEER_CONFIG"

// Load resolves the configuration in three layers:
//
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("SCRUTINEER_", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps SCRUTINEER_-prefixed environment variables to config
// paths. Only listed variables are honored; this keeps unrelated
// environment noise out of the configuration.
var envMappings = map[string]string{
	"server_host":                  "server.host",
	"server_port":                  "server.port",
	"server_read_timeout":          "server.read_timeout",
	"server_write_timeout":         "server.write_timeout",
	"server_shutdown_timeout":      "server.shutdown_timeout",
	"server_cors_origins":          "server.cors_origins",
	"server_rate_limit_per_minute": "server.rate_limit_per_minute",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"velocity_baseline":         "detection.velocity_baseline",
	"velocity_min_samples":      "detection.velocity_min_samples",
	"density_baseline":          "detection.density_baseline",
	"share_deviation_threshold": "detection.share_deviation_threshold",
	"travel_window":             "detection.travel_window",
	"dedup_window":              "detection.dedup_window",
	"notify_severity_threshold": "detection.notify_severity_threshold",

	"velocity_window":      "aggregate.velocity_window",
	"density_window":       "aggregate.density_window",
	"velocity_history_cap": "aggregate.velocity_history_cap",
	"trend_history_cap":    "aggregate.trend_history_cap",
	"default_regions":      "aggregate.default_regions",

	"notify_queue_capacity":   "notify.queue_capacity",
	"report_refresh_interval": "notify.report_refresh_interval",
	"webhook_enabled":         "notify.webhook.enabled",
	"webhook_url":             "notify.webhook.url",
	"webhook_timeout":         "notify.webhook.timeout",
	"webhook_rate_per_minute": "notify.webhook.rate_per_minute",
}

// envTransformFunc maps SCRUTINEER_VELOCITY_BASELINE and friends to their
// config paths. Unknown variables are dropped.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "SCRUTINEER_"))
	if path, ok := envMappings[key]; ok {
		return path
	}
	return ""
}

// sliceConfigPaths are the paths parsed as comma-separated slices when
// they arrive as plain strings from the environment.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"aggregate.default_regions",
}

// processSliceFields converts comma-separated env strings into slices for
// the known slice fields. YAML-sourced slices pass through untouched.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}
