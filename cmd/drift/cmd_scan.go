// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ruizrica/drift-sub003/pkg/ux"
	"github.com/ruizrica/drift-sub003/services/callgraph/extract"
	"github.com/ruizrica/drift-sub003/services/callgraph/scan"
	"github.com/ruizrica/drift-sub003/services/callgraph/telemetry"
)

func newScanCmd(a *app) *cobra.Command {
	var (
		watch       bool
		lake        bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the project and save its call graph",
		Long: `Discover source files, extract functions and calls, resolve the call
graph and save it to .drift/call-graph/graph.json.

With --watch, drift keeps running and rescans whenever a source file
changes. With --lake, the sharded per-file lake is written as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			session := scan.NewSession(st, a.sessionOptions(lake)...)
			report, err := session.Run(ctx)
			if err != nil {
				return err
			}
			if err := a.printReport(report); err != nil {
				return err
			}
			if !watch {
				return nil
			}

			if metricsAddr == "" {
				metricsAddr = a.cfg.Watch.MetricsAddr
			}
			return a.watch(ctx, session, metricsAddr)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and rescan on changes")
	cmd.Flags().BoolVar(&lake, "lake", false, "Also write the sharded lake")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics on this address while watching")
	return cmd
}

// watch blocks until interrupted, rescanning on changes.
func (a *app) watch(ctx context.Context, session *scan.Session, metricsAddr string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := scan.NewWatcher(session, scan.WatchOptions{
		Debounce:    a.cfg.Watch.Debounce,
		MinInterval: a.cfg.Watch.MinInterval,
		OnRescan: func(changes []scan.FileChange, report *scan.Report, err error) {
			if err != nil {
				a.printer.Error(fmt.Sprintf("rescan failed: %v", err))
				return
			}
			a.printer.Line(fmt.Sprintf("%d changed file(s)", len(changes)))
			if err := a.printReport(report); err != nil {
				a.logger.Warn("printing report", slog.String("error", err.Error()))
			}
		},
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	if metricsAddr != "" {
		handler := telemetry.MetricsHandler()
		if handler == nil {
			return errors.New("--metrics-addr requires observability.metric_exporter: prometheus")
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", handler)
		srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		a.logger.Info("serving metrics", slog.String("addr", metricsAddr))
	}

	a.printer.Line("Watching for changes. Press Ctrl+C to stop.")
	<-ctx.Done()
	return nil
}

func (a *app) printReport(r *scan.Report) error {
	if a.jsonOut {
		errs := make([]string, 0, len(r.Errors))
		for _, fe := range r.Errors {
			errs = append(errs, fe.Error())
		}
		return writeJSON(a.printer.Out(), struct {
			*scan.Report
			Errors []string `json:"errors"`
		}{r, errs})
	}

	a.printer.Title("Scan complete")
	a.printer.Summary(
		ux.Count{Label: "files", N: r.FilesScanned},
		ux.Count{Label: "functions", N: r.Stats.TotalFunctions},
		ux.Count{Label: "call sites", N: r.Stats.TotalCallSites},
		ux.Count{Label: "resolved", N: r.Stats.ResolvedCallSites},
		ux.Count{Label: "errors", N: len(r.Errors)},
	)

	strategies := make([]string, 0, len(r.ByStrategy))
	for s := range r.ByStrategy {
		strategies = append(strategies, string(s))
	}
	sort.Strings(strategies)
	for _, s := range strategies {
		a.printer.KeyValue("strategy "+s, r.ByStrategy[extract.Strategy(s)])
	}

	for _, fe := range r.Errors {
		a.printer.Warning(fe.Error())
	}
	if r.LakeWritten {
		a.printer.Success("lake written")
	}
	a.printer.KeyValue("duration", r.Duration.Round(time.Millisecond))
	return nil
}
