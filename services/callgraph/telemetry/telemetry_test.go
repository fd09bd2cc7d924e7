// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ServiceName != "drift" {
		t.Errorf("ServiceName = %q, want %q", cfg.ServiceName, "drift")
	}
	if cfg.TraceExporter != "none" || cfg.MetricExporter != "none" {
		t.Errorf("exporters = %q/%q, want none/none", cfg.TraceExporter, cfg.MetricExporter)
	}
}

func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	_, err := Init(nil, DefaultConfig())
	if !errors.Is(err, ErrNilContext) {
		t.Errorf("Init(nil, cfg) error = %v, want %v", err, ErrNilContext)
	}
}

func TestInit_Noop(t *testing.T) {
	shutdown, err := Init(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestInit_StdoutTraces(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "stdout"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	_, span := otel.Tracer("drift.test").Start(context.Background(), "op")
	if !span.SpanContext().IsValid() {
		t.Error("span context should be valid with an SDK provider")
	}
	span.End()
}

func TestInit_UnknownExporter(t *testing.T) {
	tests := []struct {
		name string
		cfg  func() Config
	}{
		{"trace", func() Config { c := DefaultConfig(); c.TraceExporter = "zipkin"; return c }},
		{"metric", func() Config { c := DefaultConfig(); c.MetricExporter = "statsd"; return c }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Init(context.Background(), tt.cfg())
			if !errors.Is(err, ErrUnknownExporter) {
				t.Errorf("error = %v, want %v", err, ErrUnknownExporter)
			}
		})
	}
}

func TestMetricsHandler_Prometheus(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricExporter = "prometheus"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	counter, err := otel.Meter("drift.test").Int64Counter("drift_test_events_total")
	if err != nil {
		t.Fatalf("creating counter: %v", err)
	}
	counter.Add(context.Background(), 3)

	handler := MetricsHandler()
	if handler == nil {
		t.Fatal("MetricsHandler() returned nil")
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	resp := rec.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "drift_test_events_total") {
		t.Errorf("metrics output missing counter: %s", body)
	}
}

func TestInit_PrometheusTwice(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricExporter = "prometheus"
	for i := 0; i < 2; i++ {
		shutdown, err := Init(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Init() #%d error = %v", i, err)
		}
		_ = shutdown(context.Background())
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{0.5, "TraceIDRatioBased"},
	}
	for _, tt := range tests {
		desc := sampler(tt.rate).Description()
		if !strings.Contains(desc, tt.want) {
			t.Errorf("sampler(%v) = %q, want to contain %q", tt.rate, desc, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogHandler(t *testing.T) {
	var buf bytes.Buffer

	slog.New(NewLogHandler(&buf, "auto", slog.LevelInfo)).Info("hello", slog.Int("n", 1))
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("auto on a non-terminal should be JSON: %s", buf.String())
	}

	buf.Reset()
	slog.New(NewLogHandler(&buf, "text", slog.LevelInfo)).Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("text output = %s", buf.String())
	}

	buf.Reset()
	slog.New(NewLogHandler(&buf, "json", slog.LevelWarn)).Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn: %s", buf.String())
	}
}

func TestIsTerminal_NonFile(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Error("a buffer is not a terminal")
	}
}

func TestLoggerWithTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	LoggerWithTrace(context.Background(), logger).Info("no span")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("no trace_id expected without a span: %s", buf.String())
	}

	traceID := trace.TraceID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	spanID := trace.SpanID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	buf.Reset()
	LoggerWithTrace(ctx, logger).Info("with span")
	if !strings.Contains(buf.String(), traceID.String()) || !strings.Contains(buf.String(), spanID.String()) {
		t.Errorf("output should carry trace and span ids: %s", buf.String())
	}

	if LoggerWithTrace(ctx, nil) == nil {
		t.Error("nil logger should fall back to the default")
	}
}
