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
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ruizrica/drift-sub003/pkg/ux"
	"github.com/ruizrica/drift-sub003/services/callgraph/config"
	"github.com/ruizrica/drift-sub003/services/callgraph/extract"
	"github.com/ruizrica/drift-sub003/services/callgraph/extract/hybrid"
	"github.com/ruizrica/drift-sub003/services/callgraph/scan"
	"github.com/ruizrica/drift-sub003/services/callgraph/store"
	"github.com/ruizrica/drift-sub003/services/callgraph/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app is the state shared by every command of one invocation.
type app struct {
	// Flags
	root       string
	configPath string
	logLevel   string
	jsonOut    bool
	plain      bool

	cfg      config.Config
	logger   *slog.Logger
	printer  *ux.Printer
	shutdown func(context.Context) error
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "drift",
		Short: "Build and query a project's call graph",
		Long: `drift extracts functions and call sites from Rust and Go sources,
resolves them into a call graph and persists it under .drift/.

Examples:
  drift scan --lake
  drift graph at src/main.rs 42
  drift graph callers <function-id> --depth 3
  drift changes --diff patch.diff`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a.shutdown == nil {
				return nil
			}
			return a.shutdown(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&a.root, "root", ".", "Project root")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default <root>/.drift/config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override the configured log level")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "Output as JSON for scripting")
	root.PersistentFlags().BoolVar(&a.plain, "plain", false, "Plain text output without colors")

	root.AddCommand(
		newScanCmd(a),
		newGraphCmd(a),
		newChangesCmd(a),
		newCacheCmd(a),
	)
	return root
}

// setup loads configuration and installs logging and telemetry.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	abs, err := filepath.Abs(a.root)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}
	a.root = abs

	path := a.configPath
	if path == "" {
		path = config.PathFor(a.root)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Observability.LogLevel = a.logLevel
	}
	a.cfg = cfg

	level, err := telemetry.ParseLevel(cfg.Observability.LogLevel)
	if err != nil {
		return err
	}
	a.logger = slog.New(telemetry.NewLogHandler(cmd.ErrOrStderr(), cfg.Observability.LogFormat, level))
	slog.SetDefault(a.logger)

	mode := ux.DetectMode(cmd.OutOrStdout())
	if a.plain {
		mode = ux.ModePlain
	}
	a.printer = ux.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	a.shutdown, err = telemetry.Init(cmd.Context(), telemetry.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: version,
		TraceExporter:  cfg.Observability.TraceExporter,
		MetricExporter: cfg.Observability.MetricExporter,
		OTLPEndpoint:   cfg.Observability.OTLPEndpoint,
		OTLPInsecure:   true,
		SampleRate:     cfg.Observability.SampleRate,
	})
	return err
}

// openCache builds the configured reachability cache.
func (a *app) openCache(layout store.Layout) (store.Cache, error) {
	var cache store.Cache
	switch a.cfg.Cache.Backend {
	case "badger":
		bc, err := store.OpenBadgerCache(layout.CacheDir())
		if err != nil {
			return nil, err
		}
		cache = bc
	default:
		cache = store.NewFileCache(layout.CacheDir())
	}

	if a.cfg.Cache.MemoSize > 0 {
		memo, err := store.NewMemoCache(cache, a.cfg.Cache.MemoSize)
		if err != nil {
			_ = cache.Close()
			return nil, err
		}
		cache = memo
	}
	return cache, nil
}

// openStore opens and initializes the project's store. The caller closes it.
func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	cache, err := a.openCache(store.Layout{Root: a.root})
	if err != nil {
		return nil, err
	}
	loaders, err := store.LoadersByName(a.cfg.Store.Loaders, a.logger)
	if err != nil {
		_ = cache.Close()
		return nil, err
	}

	st, err := store.New(a.root,
		store.WithCache(cache),
		store.WithLoaders(loaders...),
		store.WithLogger(a.logger),
	)
	if err != nil {
		_ = cache.Close()
		return nil, err
	}
	if err := st.Initialize(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// openLoadedStore is openStore for commands that need an existing graph.
func (a *app) openLoadedStore(ctx context.Context) (*store.Store, error) {
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if st.Graph() == nil {
		_ = st.Close()
		return nil, fmt.Errorf("%w: run 'drift scan' first", store.ErrNoGraph)
	}
	return st, nil
}

// sessionOptions translates configuration into scan options.
func (a *app) sessionOptions(lake bool) []scan.Option {
	c := a.cfg
	opts := []scan.Option{
		scan.WithWalkOptions(scan.WalkOptions{
			Include:          c.Scan.Include,
			Exclude:          c.Scan.Exclude,
			MaxFileSize:      c.Scan.MaxFileSize,
			MaxLines:         c.Scan.MaxLines,
			RespectGitignore: c.Scan.RespectGitignore,
		}),
		scan.WithLake(lake || c.Scan.WriteLake),
		scan.WithLogger(a.logger),
		scan.WithSelectorOptions(hybrid.WithMaxDepth(c.Extraction.MaxDepth)),
	}
	if c.Scan.Workers > 0 {
		opts = append(opts, scan.WithWorkers(c.Scan.Workers))
	}
	if !c.Extraction.Structured {
		opts = append(opts, scan.WithSelectorOptions(hybrid.WithProbe(func(extract.Language) bool { return false })))
	}
	return opts
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
