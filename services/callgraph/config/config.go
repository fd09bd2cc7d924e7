// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads drift's configuration with priority
// env > file > defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file inside the project's .drift directory.
const FileName = "config.yaml"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config contains all drift configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type Config struct {
	Scan          ScanConfig          `json:"scan" yaml:"scan"`
	Extraction    ExtractionConfig    `json:"extraction" yaml:"extraction"`
	Store         StoreConfig         `json:"store" yaml:"store"`
	Cache         CacheConfig         `json:"cache" yaml:"cache"`
	Watch         WatchConfig         `json:"watch" yaml:"watch"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// ScanConfig controls file discovery and the worker pool.
type ScanConfig struct {
	Include          []string `json:"include" yaml:"include" validate:"dive,globpattern"`
	Exclude          []string `json:"exclude" yaml:"exclude" validate:"dive,globpattern"`
	MaxFileSize      int64    `json:"max_file_size" yaml:"max_file_size" validate:"gt=0"`
	MaxLines         int      `json:"max_lines" yaml:"max_lines" validate:"gt=0"`
	RespectGitignore bool     `json:"respect_gitignore" yaml:"respect_gitignore"`

	// Workers of 0 means one per CPU.
	Workers int `json:"workers" yaml:"workers" validate:"gte=0,lte=256"`

	WriteLake bool `json:"write_lake" yaml:"write_lake"`
}

// ExtractionConfig controls the extraction strategies.
type ExtractionConfig struct {
	// Structured enables tree-sitter extraction. When false only the
	// pattern extractor runs.
	Structured bool `json:"structured" yaml:"structured"`

	// MaxDepth caps the syntax tree walk.
	MaxDepth int `json:"max_depth" yaml:"max_depth" validate:"gte=1,lte=100000"`
}

// StoreConfig controls graph persistence.
type StoreConfig struct {
	// Loaders lists the loaders tried on startup, in order.
	Loaders []string `json:"loaders" yaml:"loaders" validate:"min=1,unique,dive,oneof=lake legacy"`
}

// CacheConfig controls the reachability cache.
type CacheConfig struct {
	Backend string `json:"backend" yaml:"backend" validate:"oneof=file badger"`

	// MemoSize is the in-memory LRU front. 0 disables it.
	MemoSize int `json:"memo_size" yaml:"memo_size" validate:"gte=0"`
}

// WatchConfig controls watch mode.
type WatchConfig struct {
	Debounce    time.Duration `json:"debounce" yaml:"debounce" validate:"gt=0"`
	MinInterval time.Duration `json:"min_interval" yaml:"min_interval" validate:"gte=0"`

	// MetricsAddr serves /metrics while watching when set.
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr" validate:"omitempty,hostname_port"`
}

// ObservabilityConfig controls logging, tracing and metrics.
type ObservabilityConfig struct {
	LogLevel  string `json:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `json:"log_format" yaml:"log_format" validate:"oneof=auto text json"`

	TraceExporter  string  `json:"trace_exporter" yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string  `json:"metric_exporter" yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	ServiceName    string  `json:"service_name" yaml:"service_name" validate:"required"`
	SampleRate     float64 `json:"sample_rate" yaml:"sample_rate" validate:"gte=0,lte=1"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Scan: ScanConfig{
			MaxFileSize:      1 << 20,
			MaxLines:         50000,
			RespectGitignore: true,
		},
		Extraction: ExtractionConfig{
			Structured: true,
			MaxDepth:   2000,
		},
		Store: StoreConfig{
			Loaders: []string{"lake", "legacy"},
		},
		Cache: CacheConfig{
			Backend:  "file",
			MemoSize: 256,
		},
		Watch: WatchConfig{
			Debounce:    300 * time.Millisecond,
			MinInterval: 2 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      "auto",
			TraceExporter:  "none",
			MetricExporter: "none",
			ServiceName:    "drift",
			SampleRate:     1.0,
		},
	}
}

// PathFor returns the default config file path for a project.
func PathFor(projectRoot string) string {
	return filepath.Join(projectRoot, ".drift", FileName)
}

// Load loads configuration with priority: env > file > defaults.
//
// Inputs:
//   - path: YAML or JSON config file. Empty or missing uses defaults.
//
// Outputs:
//   - Config: Merged configuration.
//   - error: Non-nil if the file exists but cannot be parsed, or the
//     merged result is invalid (wraps ErrInvalidConfig).
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

// envBinding applies one DRIFT_* variable.
type envBinding struct {
	name  string
	apply func(cfg *Config, value string) error
}

var envBindings = []envBinding{
	{"DRIFT_WORKERS", func(c *Config, v string) error { return setInt(&c.Scan.Workers, v) }},
	{"DRIFT_MAX_FILE_SIZE", func(c *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			c.Scan.MaxFileSize = n
		}
		return err
	}},
	{"DRIFT_MAX_LINES", func(c *Config, v string) error { return setInt(&c.Scan.MaxLines, v) }},
	{"DRIFT_RESPECT_GITIGNORE", func(c *Config, v string) error { return setBool(&c.Scan.RespectGitignore, v) }},
	{"DRIFT_WRITE_LAKE", func(c *Config, v string) error { return setBool(&c.Scan.WriteLake, v) }},
	{"DRIFT_STRUCTURED", func(c *Config, v string) error { return setBool(&c.Extraction.Structured, v) }},
	{"DRIFT_MAX_DEPTH", func(c *Config, v string) error { return setInt(&c.Extraction.MaxDepth, v) }},
	{"DRIFT_LOADERS", func(c *Config, v string) error {
		c.Store.Loaders = splitList(v)
		return nil
	}},
	{"DRIFT_CACHE_BACKEND", func(c *Config, v string) error { c.Cache.Backend = v; return nil }},
	{"DRIFT_CACHE_MEMO_SIZE", func(c *Config, v string) error { return setInt(&c.Cache.MemoSize, v) }},
	{"DRIFT_WATCH_DEBOUNCE", func(c *Config, v string) error { return setDuration(&c.Watch.Debounce, v) }},
	{"DRIFT_WATCH_MIN_INTERVAL", func(c *Config, v string) error { return setDuration(&c.Watch.MinInterval, v) }},
	{"DRIFT_METRICS_ADDR", func(c *Config, v string) error { c.Watch.MetricsAddr = v; return nil }},
	{"DRIFT_LOG_LEVEL", func(c *Config, v string) error { c.Observability.LogLevel = strings.ToLower(v); return nil }},
	{"DRIFT_LOG_FORMAT", func(c *Config, v string) error { c.Observability.LogFormat = strings.ToLower(v); return nil }},
	{"DRIFT_TRACE_EXPORTER", func(c *Config, v string) error { c.Observability.TraceExporter = v; return nil }},
	{"DRIFT_METRIC_EXPORTER", func(c *Config, v string) error { c.Observability.MetricExporter = v; return nil }},
	{"DRIFT_OTLP_ENDPOINT", func(c *Config, v string) error { c.Observability.OTLPEndpoint = v; return nil }},
	{"DRIFT_TRACE_SAMPLE_RATE", func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			c.Observability.SampleRate = f
		}
		return err
	}},
}

// applyEnv overrides cfg from DRIFT_* variables. Unparseable values are
// errors rather than silently ignored.
func applyEnv(cfg *Config) error {
	var errs []error
	for _, b := range envBindings {
		v, ok := os.LookupEnv(b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(cfg, v); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", b.name, v, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err == nil {
		*dst = n
	}
	return err
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err == nil {
		*dst = b
	}
	return err
}

func setDuration(dst *time.Duration, v string) error {
	d, err := time.ParseDuration(v)
	if err == nil {
		*dst = d
	}
	return err
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
