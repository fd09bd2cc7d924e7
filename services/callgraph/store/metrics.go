// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

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
	tracer = otel.Tracer("drift.store")
	meter  = otel.Meter("drift.store")
)

var (
	loadTotal     metric.Int64Counter
	saveLatency   metric.Float64Histogram
	cacheLookups  metric.Int64Counter
	cacheFailures metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		loadTotal, err = meter.Int64Counter(
			"store_load_total",
			metric.WithDescription("Graph loads by loader and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		saveLatency, err = meter.Float64Histogram(
			"store_save_duration_seconds",
			metric.WithDescription("Duration of graph saves"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheLookups, err = meter.Int64Counter(
			"store_cache_lookups_total",
			metric.WithDescription("Reachability cache lookups by result"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheFailures, err = meter.Int64Counter(
			"store_cache_write_failures_total",
			metric.WithDescription("Reachability cache writes that failed and were dropped"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordLoad(ctx context.Context, loader, outcome string) {
	if err := initMetrics(); err != nil {
		return
	}
	loadTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("loader", loader),
		attribute.String("outcome", outcome),
	))
}

func recordSave(ctx context.Context, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	saveLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.Bool("success", success)))
}

func recordCacheLookup(ctx context.Context, hit bool) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", hit)))
}

func recordCacheFailure(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheFailures.Add(ctx, 1)
}

func startStoreSpan(ctx context.Context, op string, root string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Store."+op,
		trace.WithAttributes(attribute.String("store.root", root)),
	)
}
