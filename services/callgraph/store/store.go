// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists the call graph and serves read-only queries over
// it.
//
// # Lifecycle
//
//	Uninitialized -> Initialized -> Loaded -> Saved
//
// Initialize creates the directory layout and loads whatever graph is on
// disk. Save replaces the graph on disk and in memory, and clears the
// reachability cache.
//
// # Thread Safety
//
// A Store is safe for concurrent use within one process. A sync.RWMutex
// guards the in-memory graph: queries take the read lock, Load and Save
// take the write lock. Concurrent saves from separate processes are not
// supported.
//
// Returned graphs and nodes are shared with the store and must be treated
// as read-only.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ruizrica/drift-sub003/services/callgraph/graph"
)

// State is the store lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateLoaded
	StateSaved
)

var stateNames = [...]string{"uninitialized", "initialized", "loaded", "saved"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Options configures a Store.
type Options struct {
	// Cache backs the reachability cache. Default: a MemoCache in front of
	// a FileCache in the layout's cache directory.
	Cache Cache

	// Loaders are tried in order by Load. Default: DefaultLoaders.
	Loaders []Loader

	// Logger for store diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// Option is a functional option for configuring a Store.
type Option func(*Options)

// WithCache sets the reachability cache backend. The store closes it.
func WithCache(c Cache) Option {
	return func(o *Options) {
		o.Cache = c
	}
}

// WithLoaders replaces the loader list.
func WithLoaders(loaders ...Loader) Option {
	return func(o *Options) {
		o.Loaders = loaders
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// Store owns the one in-memory call graph of a project.
type Store struct {
	mu      sync.RWMutex
	layout  Layout
	state   State
	graph   *graph.CallGraph
	source  string
	cache   Cache
	loaders []Loader
	logger  *slog.Logger
}

// New creates a store for the project at projectRoot. Nothing touches the
// disk until Initialize.
func New(projectRoot string, opts ...Option) (*Store, error) {
	options := Options{Logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}

	layout := Layout{Root: projectRoot}
	if options.Cache == nil {
		memo, err := NewMemoCache(NewFileCache(layout.CacheDir()), DefaultMemoSize)
		if err != nil {
			return nil, err
		}
		options.Cache = memo
	}
	if options.Loaders == nil {
		options.Loaders = DefaultLoaders(options.Logger)
	}

	return &Store{
		layout:  layout,
		cache:   options.Cache,
		loaders: options.Loaders,
		logger:  options.Logger,
	}, nil
}

// Layout returns the store's on-disk layout.
func (s *Store) Layout() Layout {
	return s.layout
}

// State returns the lifecycle state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Source names the loader the current graph came from ("lake", "legacy"),
// "save" after a Save, or "" when there is no graph.
func (s *Store) Source() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// Initialize creates the directory layout and loads the persisted graph.
//
// Outputs:
//   - error: Non-nil when a directory cannot be created. A missing or
//     unreadable graph is not an error.
func (s *Store) Initialize(ctx context.Context) error {
	for _, dir := range []string{s.layout.CallGraphDir(), s.layout.CacheDir(), s.layout.LakeFilesDir()} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	s.mu.Lock()
	if s.state == StateUninitialized {
		s.state = StateInitialized
	}
	s.mu.Unlock()

	_, err := s.Load(ctx)
	return err
}

// Load tries each loader in order and keeps the first graph produced.
//
// Description:
//
//	Loader failures are logged and skipped. When no loader produces a
//	graph the in-memory graph is left unchanged and nil is returned.
//
// Outputs:
//   - *graph.CallGraph: The loaded graph, or nil.
//   - error: Only for context cancellation.
func (s *Store) Load(ctx context.Context) (*graph.CallGraph, error) {
	ctx, span := startStoreSpan(ctx, "Load", s.layout.Root)
	defer span.End()

	for _, loader := range s.loaders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		g, err := loader.Load(ctx, s.layout)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			recordLoad(ctx, loader.Name(), "error")
			level := slog.LevelDebug
			if errors.Is(err, ErrUnsupportedVersion) {
				level = slog.LevelWarn
			}
			s.logger.Log(ctx, level, "graph loader failed",
				slog.String("loader", loader.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if g == nil {
			recordLoad(ctx, loader.Name(), "absent")
			continue
		}

		recordLoad(ctx, loader.Name(), "loaded")
		s.mu.Lock()
		s.graph = g
		s.source = loader.Name()
		s.state = StateLoaded
		s.mu.Unlock()

		s.logger.Debug("call graph loaded",
			slog.String("loader", loader.Name()),
			slog.Int("functions", len(g.Functions)),
		)
		return g, nil
	}
	return nil, nil
}

// SaveOption configures a single Save.
type SaveOption func(*saveOptions)

type saveOptions struct {
	writeLake bool
}

// WithLakeWrite makes Save write the sharded lake even when none exists yet.
func WithLakeWrite() SaveOption {
	return func(o *saveOptions) {
		o.writeLake = true
	}
}

// Save writes g as the legacy graph file, makes it the in-memory graph and
// clears the reachability cache. The lake is written when one already
// exists or WithLakeWrite is given, so the lake loader never serves a graph
// older than the last save. A failed lake write leaves no lake index
// behind, and the next Load falls back to the legacy file.
//
// Outputs:
//   - error: ErrNilGraph, ErrNotInitialized, a graph write failure, a lake
//     write failure, or a cache clear failure. The cache is cleared even
//     when the lake write fails.
func (s *Store) Save(ctx context.Context, g *graph.CallGraph, opts ...SaveOption) error {
	start := time.Now()
	ctx, span := startStoreSpan(ctx, "Save", s.layout.Root)
	defer span.End()

	if g == nil {
		return ErrNilGraph
	}

	var options saveOptions
	for _, opt := range opts {
		opt(&options)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateUninitialized {
		return ErrNotInitialized
	}

	data, err := graph.Serialize(g)
	if err != nil {
		recordSave(ctx, time.Since(start), false)
		return err
	}
	if err := writeFileAtomic(s.layout.GraphFile(), data); err != nil {
		recordSave(ctx, time.Since(start), false)
		return fmt.Errorf("save graph: %w", err)
	}

	s.graph = g
	s.source = "save"
	s.state = StateSaved

	var errs []error
	writeLakeNow := options.writeLake
	if !writeLakeNow {
		_, err := os.Stat(s.layout.LakeIndex())
		writeLakeNow = err == nil
	}
	if writeLakeNow {
		if err := writeLake(ctx, s.layout, g); err != nil {
			errs = append(errs, fmt.Errorf("write lake: %w", err))
		}
	}

	// Entries must not survive the graph they were computed from.
	if err := s.cache.Clear(ctx); err != nil {
		s.logger.Warn("reachability cache clear failed", slog.String("error", err.Error()))
		errs = append(errs, fmt.Errorf("%w: %w", ErrCacheClear, err))
	}

	err = errors.Join(errs...)
	recordSave(ctx, time.Since(start), err == nil)
	s.logger.Debug("call graph saved",
		slog.String("path", s.layout.GraphFile()),
		slog.Int("functions", len(g.Functions)),
		slog.Bool("lake", writeLakeNow),
	)
	return err
}

// WriteLake writes the current graph as a sharded lake.
func (s *Store) WriteLake(ctx context.Context) error {
	ctx, span := startStoreSpan(ctx, "WriteLake", s.layout.Root)
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == StateUninitialized {
		return ErrNotInitialized
	}
	if s.graph == nil {
		return ErrNoGraph
	}
	return writeLake(ctx, s.layout, s.graph)
}

// Graph returns the in-memory graph, or nil.
func (s *Store) Graph() *graph.CallGraph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph
}

// GetFunction returns the function with the given ID, or nil.
func (s *Store) GetFunction(id string) *graph.FunctionNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.graph == nil {
		return nil
	}
	return s.graph.Function(id)
}

// GetFunctionsInFile returns the functions of file ordered by start line.
func (s *Store) GetFunctionsInFile(file string) []*graph.FunctionNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.graph == nil {
		return nil
	}
	return s.graph.FunctionsInFile(file)
}

// GetFunctionAtLine returns the innermost function containing line.
func (s *Store) GetFunctionAtLine(file string, line int) *graph.FunctionNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.graph == nil {
		return nil
	}
	return s.graph.FunctionAtLine(file, line)
}

// EntryPoints returns the entry point IDs.
func (s *Store) EntryPoints() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.graph == nil {
		return nil
	}
	return append([]string(nil), s.graph.EntryPoints...)
}

// DataAccessors returns the data accessor IDs.
func (s *Store) DataAccessors() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.graph == nil {
		return nil
	}
	return append([]string(nil), s.graph.DataAccessors...)
}

// Stats returns the graph stats and false when there is no graph.
func (s *Store) Stats() (graph.Stats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.graph == nil {
		return graph.Stats{}, false
	}
	return s.graph.Stats, true
}

// CacheReachability stores data as JSON under key. Failures are logged at
// debug and dropped.
func (s *Store) CacheReachability(ctx context.Context, key string, data any) {
	payload, err := json.Marshal(data)
	if err == nil {
		err = s.cache.Put(ctx, key, payload)
	}
	if err != nil {
		recordCacheFailure(ctx)
		s.logger.Debug("reachability cache write dropped",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// GetCachedReachability returns the payload cached under key, or nil on a
// miss.
func (s *Store) GetCachedReachability(ctx context.Context, key string) json.RawMessage {
	data, ok := s.cache.Get(ctx, key)
	recordCacheLookup(ctx, ok)
	if !ok {
		return nil
	}
	return json.RawMessage(data)
}

// ClearCache removes every reachability cache entry.
func (s *Store) ClearCache(ctx context.Context) error {
	return s.cache.Clear(ctx)
}

// Close releases the cache backend.
func (s *Store) Close() error {
	return s.cache.Close()
}
