// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scan runs full project scans: discover files, extract them in
// parallel, assemble the call graph and persist it through the store.
//
// # Thread Safety
//
// A Session may run more than once but not concurrently with itself. The
// Watcher serializes the rescans it triggers.
package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/ruizrica/drift-sub003/services/callgraph/classify"
	"github.com/ruizrica/drift-sub003/services/callgraph/extract"
	"github.com/ruizrica/drift-sub003/services/callgraph/extract/hybrid"
	"github.com/ruizrica/drift-sub003/services/callgraph/graph"
	"github.com/ruizrica/drift-sub003/services/callgraph/store"
)

// ErrFileTooLong marks a file skipped for exceeding the line cap.
var ErrFileTooLong = errors.New("file exceeds line limit")

// Options configures a Session.
type Options struct {
	// Workers bounds parallel extraction. Default: runtime.NumCPU().
	Workers int

	// Walk configures file discovery. Default: DefaultWalkOptions().
	Walk WalkOptions

	// WriteLake also writes the sharded lake as part of each save.
	WriteLake bool

	// EntryPoints and DataAccess default to the heuristic classifiers.
	EntryPoints graph.EntryPointClassifier
	DataAccess  graph.DataAccessClassifier

	// Selector options applied to every worker's selector.
	Selector []hybrid.Option

	// Clock supplies the graph's GeneratedAt. Default: time.Now.
	Clock func() time.Time

	Logger *slog.Logger
}

// Option is a functional option for configuring a Session.
type Option func(*Options)

// WithWorkers sets the number of extraction workers.
func WithWorkers(n int) Option {
	return func(o *Options) {
		o.Workers = n
	}
}

// WithWalkOptions sets the file discovery options.
func WithWalkOptions(w WalkOptions) Option {
	return func(o *Options) {
		o.Walk = w
	}
}

// WithLake enables writing the sharded lake with each save.
func WithLake(enabled bool) Option {
	return func(o *Options) {
		o.WriteLake = enabled
	}
}

// WithClassifiers replaces the entry point and data access classifiers.
// A nil argument keeps the default.
func WithClassifiers(ep graph.EntryPointClassifier, da graph.DataAccessClassifier) Option {
	return func(o *Options) {
		if ep != nil {
			o.EntryPoints = ep
		}
		if da != nil {
			o.DataAccess = da
		}
	}
}

// WithSelectorOptions passes options to every worker's hybrid selector.
func WithSelectorOptions(opts ...hybrid.Option) Option {
	return func(o *Options) {
		o.Selector = append(o.Selector, opts...)
	}
}

// WithClock sets the clock used for the graph's GeneratedAt.
func WithClock(clock func() time.Time) Option {
	return func(o *Options) {
		o.Clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// Report summarizes one scan.
type Report struct {
	SessionID string `json:"sessionId"`
	RunID     string `json:"runId"`
	Root      string `json:"root"`

	// FilesScanned counts files that produced an extraction result.
	FilesScanned int `json:"filesScanned"`

	// FilesSkipped counts discovered files that were not extracted
	// (unreadable or over the line cap).
	FilesSkipped int `json:"filesSkipped"`

	ByStrategy     map[extract.Strategy]int `json:"byStrategy"`
	Errors         []graph.FileError        `json:"-"`
	FileScopeCalls int                      `json:"fileScopeCalls"`
	Stats          graph.Stats              `json:"stats"`
	LakeWritten    bool                     `json:"lakeWritten"`
	Duration       time.Duration            `json:"duration"`
}

// Session scans one project into one store.
type Session struct {
	// ID identifies the session in logs and spans.
	ID string

	store  *store.Store
	opts   Options
	logger *slog.Logger
}

// NewSession creates a session that saves into st. The project root is
// the store's root.
func NewSession(st *store.Store, opts ...Option) *Session {
	options := Options{
		Workers: runtime.NumCPU(),
		Walk:    DefaultWalkOptions(),
		Clock:   time.Now,
		Logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Workers < 1 {
		options.Workers = 1
	}
	if options.EntryPoints == nil {
		options.EntryPoints = classify.NewEntryPoints()
	}
	if options.DataAccess == nil {
		options.DataAccess = classify.NewDataAccess()
	}

	id := uuid.NewString()
	return &Session{
		ID:     id,
		store:  st,
		opts:   options,
		logger: options.Logger.With(slog.String("session_id", id)),
	}
}

// Root returns the scanned project root.
func (s *Session) Root() string {
	return s.store.Layout().Root
}

// Run performs a full scan and saves the result.
//
// Description:
//
//	Files are discovered by the walker and extracted by a bounded pool of
//	workers, each owning its own hybrid selector. Results are assembled
//	into a fresh graph which replaces the stored one wholesale. Per-file
//	problems are collected in the report and never fail the scan.
//
// Inputs:
//   - ctx: Cancelling stops the scan. Nothing is saved.
//
// Outputs:
//   - *Report: The scan summary. Nil on error.
//   - error: Walker setup, cancellation, or a store failure.
func (s *Session) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	root := s.Root()

	ctx, span := startScanSpan(ctx, s.ID, root)
	defer span.End()

	report := &Report{
		SessionID:  s.ID,
		RunID:      uuid.NewString(),
		Root:       root,
		ByStrategy: make(map[extract.Strategy]int),
		Errors:     []graph.FileError{},
	}

	fail := func(err error) (*Report, error) {
		report.Duration = time.Since(start)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordScan(ctx, report, false)
		return nil, err
	}

	if s.store.State() == store.StateUninitialized {
		if err := s.store.Initialize(ctx); err != nil {
			return fail(fmt.Errorf("initialize store: %w", err))
		}
	}

	walker, err := NewWalker(root, s.opts.Walk)
	if err != nil {
		return fail(err)
	}
	files, err := walker.Walk(ctx)
	if err != nil {
		return fail(err)
	}
	s.logger.Info("scan started",
		slog.String("root", root),
		slog.Int("files", len(files)),
		slog.Int("workers", s.opts.Workers))

	results, skipped, err := s.extractAll(ctx, files, walker.MaxLines())
	if err != nil {
		return fail(err)
	}
	for _, fe := range skipped {
		report.FilesSkipped++
		report.Errors = append(report.Errors, fe)
	}
	for _, r := range results {
		report.FilesScanned++
		report.ByStrategy[r.Strategy]++
	}

	assembler := graph.NewAssembler(
		graph.WithProjectRoot(root),
		graph.WithEntryPointClassifier(s.opts.EntryPoints),
		graph.WithDataAccessClassifier(s.opts.DataAccess),
		graph.WithClock(s.opts.Clock),
		graph.WithLogger(s.logger),
	)
	built, err := assembler.Build(ctx, results)
	if err != nil {
		return fail(err)
	}
	report.Errors = append(report.Errors, built.FileErrors...)
	report.FileScopeCalls = built.FileScopeCalls
	report.Stats = built.Graph.Stats

	var saveOpts []store.SaveOption
	if s.opts.WriteLake {
		saveOpts = append(saveOpts, store.WithLakeWrite())
	}
	if err := s.store.Save(ctx, built.Graph, saveOpts...); err != nil {
		return fail(fmt.Errorf("save graph: %w", err))
	}
	report.LakeWritten = s.opts.WriteLake

	report.Duration = time.Since(start)
	setScanSpanResult(span, report, report.Duration)
	recordScan(ctx, report, true)

	s.logger.Info("scan finished",
		slog.Int("files", report.FilesScanned),
		slog.Int("skipped", report.FilesSkipped),
		slog.Int("functions", report.Stats.TotalFunctions),
		slog.Int("call_sites", report.Stats.TotalCallSites),
		slog.Int("errors", len(report.Errors)),
		slog.Duration("duration", report.Duration))
	return report, nil
}

// extractAll runs the worker pool. Results keep the order of files with
// skipped files left out.
func (s *Session) extractAll(ctx context.Context, files []File, maxLines int) ([]*extract.FileExtractionResult, []graph.FileError, error) {
	slots := make([]*extract.FileExtractionResult, len(files))
	var (
		mu      sync.Mutex
		skipped []graph.FileError
	)

	jobs := make(chan int)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers + 1)

	g.Go(func() error {
		defer close(jobs)
		for i := range files {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < s.opts.Workers; w++ {
		g.Go(func() error {
			selector := hybrid.New(append([]hybrid.Option{hybrid.WithLogger(s.logger)}, s.opts.Selector...)...)
			defer func() {
				if err := selector.Close(); err != nil {
					s.logger.Debug("closing selector", slog.String("error", err.Error()))
				}
			}()

			for i := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}
				res, ferr := extractOne(gctx, selector, files[i], maxLines)
				if ferr != nil {
					s.logger.Debug("file skipped",
						slog.String("file", files[i].Rel),
						slog.String("error", ferr.Error()))
					mu.Lock()
					skipped = append(skipped, graph.FileError{FilePath: files[i].Rel, Err: ferr})
					mu.Unlock()
					continue
				}
				slots[i] = res
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	results := make([]*extract.FileExtractionResult, 0, len(files))
	for _, r := range slots {
		if r != nil {
			results = append(results, r)
		}
	}
	sortFileErrors(skipped)
	return results, skipped, nil
}

func extractOne(ctx context.Context, selector *hybrid.Selector, f File, maxLines int) (*extract.FileExtractionResult, error) {
	src, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	if lines := bytes.Count(src, []byte{'\n'}) + 1; lines > maxLines {
		return nil, fmt.Errorf("%w: %d lines", ErrFileTooLong, lines)
	}
	return selector.Extract(ctx, f.Language, src, f.Rel), nil
}

func sortFileErrors(errs []graph.FileError) {
	sort.Slice(errs, func(i, j int) bool { return errs[i].FilePath < errs[j].FilePath })
}
