// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scan

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("drift.scan")
	meter  = otel.Meter("drift.scan")
)

var (
	scanLatency  metric.Float64Histogram
	scanTotal    metric.Int64Counter
	filesScanned metric.Int64Counter
	rescanTotal  metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		scanLatency, err = meter.Float64Histogram(
			"scan_duration_seconds",
			metric.WithDescription("Duration of a full project scan"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		scanTotal, err = meter.Int64Counter(
			"scan_total",
			metric.WithDescription("Total number of scans"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		filesScanned, err = meter.Int64Counter(
			"scan_files_total",
			metric.WithDescription("Total number of files extracted, by strategy"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		rescanTotal, err = meter.Int64Counter(
			"scan_watch_rescans_total",
			metric.WithDescription("Total number of rescans triggered by file changes"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordScan(ctx context.Context, report *Report, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	scanLatency.Record(ctx, report.Duration.Seconds())
	scanTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
	for strategy, n := range report.ByStrategy {
		filesScanned.Add(ctx, int64(n), metric.WithAttributes(attribute.String("strategy", string(strategy))))
	}
}

func recordRescan(ctx context.Context, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	rescanTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

func startScanSpan(ctx context.Context, sessionID, root string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Session.Run",
		trace.WithAttributes(
			attribute.String("scan.session_id", sessionID),
			attribute.String("scan.root", root),
		),
	)
}

func setScanSpanResult(span trace.Span, report *Report, elapsed time.Duration) {
	span.SetAttributes(
		attribute.Int("scan.files", report.FilesScanned),
		attribute.Int("scan.skipped", report.FilesSkipped),
		attribute.Int("scan.errors", len(report.Errors)),
		attribute.Int64("scan.duration_ms", elapsed.Milliseconds()),
	)
}
