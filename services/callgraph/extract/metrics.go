// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter shared by all extraction strategies.
var (
	tracer = otel.Tracer("drift.extract")
	meter  = otel.Meter("drift.extract")
)

var (
	extractLatency     metric.Float64Histogram
	extractTotal       metric.Int64Counter
	functionsExtracted metric.Int64Histogram
	extractErrors      metric.Int64Counter
	fallbackTotal      metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		extractLatency, err = meter.Float64Histogram(
			"extract_duration_seconds",
			metric.WithDescription("Duration of per-file extraction"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		extractTotal, err = meter.Int64Counter(
			"extract_total",
			metric.WithDescription("Total number of file extractions"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		functionsExtracted, err = meter.Int64Histogram(
			"extract_functions",
			metric.WithDescription("Number of functions extracted per file"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		extractErrors, err = meter.Int64Counter(
			"extract_errors_total",
			metric.WithDescription("Total number of error strings recorded in results"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		fallbackTotal, err = meter.Int64Counter(
			"extract_fallback_total",
			metric.WithDescription("Files that fell back from structured to pattern extraction"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// RecordExtraction records metrics for one finished extraction.
//
// Inputs:
//   - ctx: Context for metric recording.
//   - result: The finished result. Language and Strategy label the metrics.
//   - duration: How long the extraction took.
func RecordExtraction(ctx context.Context, result *FileExtractionResult, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("language", string(result.Language)),
		attribute.String("strategy", string(result.Strategy)),
	)
	extractLatency.Record(ctx, duration.Seconds(), attrs)
	extractTotal.Add(ctx, 1, attrs)
	functionsExtracted.Record(ctx, int64(len(result.Functions)), attrs)
	if n := len(result.Errors); n > 0 {
		extractErrors.Add(ctx, int64(n), attrs)
	}
}

// RecordFallback counts a structured-to-pattern fallback.
func RecordFallback(ctx context.Context, lang Language, reason string) {
	if err := initMetrics(); err != nil {
		return
	}
	fallbackTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("language", string(lang)),
		attribute.String("reason", reason),
	))
}

// StartExtractSpan creates a span for one file extraction.
//
// Returns:
//   - ctx: Context with span.
//   - span: The created span (caller must call span.End()).
func StartExtractSpan(ctx context.Context, strategy Strategy, lang Language, filePath string, size int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Extractor.Extract",
		trace.WithAttributes(
			attribute.String("extract.strategy", string(strategy)),
			attribute.String("extract.language", string(lang)),
			attribute.String("extract.file", filePath),
			attribute.Int("extract.content_size", size),
		),
	)
}

// SetExtractSpanResult sets the result attributes on an extraction span.
func SetExtractSpanResult(span trace.Span, result *FileExtractionResult) {
	span.SetAttributes(
		attribute.Int("extract.function_count", len(result.Functions)),
		attribute.Int("extract.call_count", len(result.Calls)),
		attribute.Int("extract.error_count", len(result.Errors)),
	)
}
