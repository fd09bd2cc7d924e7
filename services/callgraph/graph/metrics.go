// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

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
	tracer = otel.Tracer("drift.graph")
	meter  = otel.Meter("drift.graph")
)

var (
	buildLatency     metric.Float64Histogram
	buildTotal       metric.Int64Counter
	functionsCreated metric.Int64Counter
	callSitesTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"graph_build_duration_seconds",
			metric.WithDescription("Duration of call graph assembly"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		buildTotal, err = meter.Int64Counter(
			"graph_build_total",
			metric.WithDescription("Total number of call graph builds"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		functionsCreated, err = meter.Int64Counter(
			"graph_functions_created",
			metric.WithDescription("Total number of function nodes created"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		callSitesTotal, err = meter.Int64Counter(
			"graph_call_sites_total",
			metric.WithDescription("Total number of call edges created"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordBuildMetrics(ctx context.Context, duration time.Duration, stats Stats, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	buildLatency.Record(ctx, duration.Seconds())
	buildTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
	functionsCreated.Add(ctx, int64(stats.TotalFunctions))
	callSitesTotal.Add(ctx, int64(stats.ResolvedCallSites), metric.WithAttributes(attribute.Bool("resolved", true)))
	callSitesTotal.Add(ctx, int64(stats.UnresolvedCallSites), metric.WithAttributes(attribute.Bool("resolved", false)))
}

func startBuildSpan(ctx context.Context, fileCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Assembler.Build",
		trace.WithAttributes(
			attribute.Int("graph.file_count", fileCount),
		),
	)
}

func setBuildSpanResult(span trace.Span, stats Stats, incomplete bool) {
	span.SetAttributes(
		attribute.Int("graph.function_count", stats.TotalFunctions),
		attribute.Int("graph.call_sites", stats.TotalCallSites),
		attribute.Int("graph.resolved_call_sites", stats.ResolvedCallSites),
		attribute.Bool("graph.incomplete", incomplete),
	)
}
