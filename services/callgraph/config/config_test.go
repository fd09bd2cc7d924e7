// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, `
scan:
  include: ["src/**"]
  workers: 4
  write_lake: true
cache:
  backend: badger
watch:
  debounce: 1s
observability:
  log_level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"src/**"}, cfg.Scan.Include)
	assert.Equal(t, 4, cfg.Scan.Workers)
	assert.True(t, cfg.Scan.WriteLake)
	assert.Equal(t, "badger", cfg.Cache.Backend)
	assert.Equal(t, time.Second, cfg.Watch.Debounce)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)

	// Untouched fields keep their defaults.
	assert.Equal(t, Default().Scan.MaxLines, cfg.Scan.MaxLines)
	assert.Equal(t, 256, cfg.Cache.MemoSize)
}

func TestLoad_JSONFallback(t *testing.T) {
	path := writeConfig(t, `{"scan": {"max_lines": `)
	_, err := Load(path)
	require.Error(t, err)

	path = writeConfig(t, `{"scan": {"max_lines": 10}, "cache": {"memo_size": 0}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Scan.MaxLines)
	assert.Zero(t, cfg.Cache.MemoSize)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "scan:\n  workers: 4\n")
	t.Setenv("DRIFT_WORKERS", "8")
	t.Setenv("DRIFT_STRUCTURED", "false")
	t.Setenv("DRIFT_LOADERS", "legacy, lake")
	t.Setenv("DRIFT_WATCH_DEBOUNCE", "50ms")
	t.Setenv("DRIFT_LOG_LEVEL", "WARN")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Scan.Workers)
	assert.False(t, cfg.Extraction.Structured)
	assert.Equal(t, []string{"legacy", "lake"}, cfg.Store.Loaders)
	assert.Equal(t, 50*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, "warn", cfg.Observability.LogLevel)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("DRIFT_MAX_LINES", "many")
	_, err := Load("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Contains(t, err.Error(), "DRIFT_MAX_LINES")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"bad glob", func(c *Config) { c.Scan.Exclude = []string{"["} }, "globpattern"},
		{"zero max lines", func(c *Config) { c.Scan.MaxLines = 0 }, "MaxLines"},
		{"negative workers", func(c *Config) { c.Scan.Workers = -1 }, "Workers"},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "redis" }, "Backend"},
		{"unknown loader", func(c *Config) { c.Store.Loaders = []string{"lake", "sql"} }, "Loaders"},
		{"duplicate loader", func(c *Config) { c.Store.Loaders = []string{"lake", "lake"} }, "unique"},
		{"no loaders", func(c *Config) { c.Store.Loaders = nil }, "Loaders"},
		{"zero debounce", func(c *Config) { c.Watch.Debounce = 0 }, "Debounce"},
		{"bad log level", func(c *Config) { c.Observability.LogLevel = "loud" }, "LogLevel"},
		{"sample rate", func(c *Config) { c.Observability.SampleRate = 2 }, "SampleRate"},
		{"otlp without endpoint", func(c *Config) { c.Observability.TraceExporter = "otlp" }, "otlp_endpoint"},
		{"metrics addr without prometheus", func(c *Config) { c.Watch.MetricsAddr = ":9090" }, "metrics_addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_MetricsAddr(t *testing.T) {
	cfg := Default()
	cfg.Watch.MetricsAddr = "localhost:9090"
	cfg.Observability.MetricExporter = "prometheus"
	assert.NoError(t, cfg.Validate())
}

func TestPathFor(t *testing.T) {
	assert.Equal(t, filepath.Join("/p", ".drift", "config.yaml"), PathFor("/p"))
}
