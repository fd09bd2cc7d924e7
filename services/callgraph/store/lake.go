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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ruizrica/drift-sub003/services/callgraph/extract"
	"github.com/ruizrica/drift-sub003/services/callgraph/graph"
)

// shardFunction is one function in a lake shard. Calls holds callee names;
// CalledBy holds caller IDs.
type shardFunction struct {
	ID             string                `json:"id"`
	Name           string                `json:"name"`
	QualifiedName  string                `json:"qualifiedName,omitempty"`
	StartLine      int                   `json:"startLine"`
	EndLine        int                   `json:"endLine"`
	IsEntryPoint   bool                  `json:"isEntryPoint"`
	IsDataAccessor bool                  `json:"isDataAccessor"`
	Calls          []string              `json:"calls"`
	CalledBy       []string              `json:"calledBy"`
	DataAccess     []graph.DataAccessRef `json:"dataAccess"`
}

// shard holds every function of one source file.
type shard struct {
	File      string           `json:"file"`
	Language  extract.Language `json:"language,omitempty"`
	Functions []shardFunction  `json:"functions"`
}

type lakeIndexEntry struct {
	File          string `json:"file"`
	Shard         string `json:"shard"`
	FunctionCount int    `json:"functionCount"`
}

type lakeIndex struct {
	Version       string           `json:"version"`
	GeneratedAt   time.Time        `json:"generatedAt"`
	ProjectRoot   string           `json:"projectRoot"`
	Files         []lakeIndexEntry `json:"files"`
	EntryPoints   []string         `json:"entryPoints"`
	DataAccessors []string         `json:"dataAccessors"`
	Stats         graph.Stats      `json:"stats"`
}

// writeLake writes g as a sharded lake. The index is removed first and
// written last, so a lake interrupted halfway has no index and is not
// loaded. Existing shards are removed so files that left the project do
// not linger.
func writeLake(ctx context.Context, layout Layout, g *graph.CallGraph) error {
	if err := os.Remove(layout.LakeIndex()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("invalidate lake index: %w", err)
	}

	filesDir := layout.LakeFilesDir()
	if err := os.MkdirAll(filesDir, 0750); err != nil {
		return fmt.Errorf("create lake dir: %w", err)
	}
	if err := removeShards(filesDir); err != nil {
		return err
	}

	idx := lakeIndex{
		Version:       g.Version,
		GeneratedAt:   g.GeneratedAt,
		ProjectRoot:   g.ProjectRoot,
		Files:         []lakeIndexEntry{},
		EntryPoints:   g.EntryPoints,
		DataAccessors: g.DataAccessors,
		Stats:         g.Stats,
	}

	for _, file := range g.Files() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fns := g.FunctionsInFile(file)
		sh := shard{File: file, Functions: make([]shardFunction, 0, len(fns))}
		for _, fn := range fns {
			sh.Language = fn.Language
			sh.Functions = append(sh.Functions, toShardFunction(g, fn))
		}

		name := ShardName(file)
		if err := writeJSONAtomic(filepath.Join(filesDir, name), sh); err != nil {
			return fmt.Errorf("write shard for %s: %w", file, err)
		}
		idx.Files = append(idx.Files, lakeIndexEntry{File: file, Shard: name, FunctionCount: len(fns)})
	}

	return writeJSONAtomic(layout.LakeIndex(), idx)
}

func toShardFunction(g *graph.CallGraph, fn *graph.FunctionNode) shardFunction {
	sf := shardFunction{
		ID:             fn.ID,
		Name:           fn.Name,
		StartLine:      fn.StartLine,
		EndLine:        fn.EndLine,
		IsEntryPoint:   g.IsEntryPoint(fn.ID),
		IsDataAccessor: g.IsDataAccessor(fn.ID),
		Calls:          make([]string, 0, len(fn.Calls)),
		CalledBy:       make([]string, 0, len(fn.CalledBy)),
		DataAccess:     fn.DataAccess,
	}
	if fn.QualifiedName != fn.Name {
		sf.QualifiedName = fn.QualifiedName
	}
	for _, c := range fn.Calls {
		sf.Calls = append(sf.Calls, c.CalleeName)
	}
	for _, c := range fn.CalledBy {
		sf.CalledBy = append(sf.CalledBy, c.CallerID)
	}
	if sf.DataAccess == nil {
		sf.DataAccess = []graph.DataAccessRef{}
	}
	return sf
}

func removeShards(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read lake dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale shard: %w", err)
		}
	}
	return nil
}

// LakeLoader reads the sharded lake.
//
// Shards only keep callee names and caller IDs, so edges are rebuilt as
// synthetic edges: outgoing calls are unresolved with confidence 0.5 and
// incoming calls are resolved with confidence 1.0. Stats are recomputed
// from those edges, so resolved counts describe the loaded graph rather
// than the one that was saved. A shard that cannot be read or parsed is
// skipped.
type LakeLoader struct {
	logger *slog.Logger
}

// Name implements Loader.
func (l *LakeLoader) Name() string { return "lake" }

// Load implements Loader.
func (l *LakeLoader) Load(ctx context.Context, layout Layout) (*graph.CallGraph, error) {
	logger := l.logger
	if logger == nil {
		logger = slog.Default()
	}

	path := layout.LakeIndex()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &LoadError{Loader: l.Name(), Path: path, Err: err}
	}

	var idx lakeIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, &LoadError{Loader: l.Name(), Path: path, Err: err}
	}
	if err := checkVersion(idx.Version); err != nil {
		return nil, &LoadError{Loader: l.Name(), Path: path, Err: err}
	}

	entries, err := os.ReadDir(layout.LakeFilesDir())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Loader: l.Name(), Path: layout.LakeFilesDir(), Err: err}
	}

	g := graph.New(idx.ProjectRoot, idx.GeneratedAt)
	g.Version = idx.Version
	skipped := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		shardPath := filepath.Join(layout.LakeFilesDir(), e.Name())
		sh, err := readShard(shardPath)
		if err != nil {
			skipped++
			logger.Debug("skipping lake shard",
				slog.String("shard", shardPath),
				slog.String("error", err.Error()),
			)
			continue
		}
		addShard(g, sh)
	}

	sort.Strings(g.EntryPoints)
	sort.Strings(g.DataAccessors)
	g.RecomputeStats()
	if skipped > 0 || idx.Stats.TotalFunctions != g.Stats.TotalFunctions {
		logger.Debug("lake differs from its index",
			slog.Int("skipped_shards", skipped),
			slog.Int("indexed_functions", idx.Stats.TotalFunctions),
			slog.Int("loaded_functions", g.Stats.TotalFunctions),
		)
	}
	return g, nil
}

func readShard(path string) (*shard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sh shard
	if err := json.Unmarshal(data, &sh); err != nil {
		return nil, err
	}
	if sh.File == "" {
		return nil, errors.New("shard has no file")
	}
	return &sh, nil
}

func addShard(g *graph.CallGraph, sh *shard) {
	for _, sf := range sh.Functions {
		if sf.ID == "" {
			continue
		}
		fn := &graph.FunctionNode{
			ID:            sf.ID,
			Name:          sf.Name,
			QualifiedName: sf.QualifiedName,
			File:          sh.File,
			StartLine:     sf.StartLine,
			EndLine:       sf.EndLine,
			Language:      sh.Language,
			Parameters:    []extract.Parameter{},
			Calls:         make([]graph.CallEdge, 0, len(sf.Calls)),
			CalledBy:      make([]graph.CallEdge, 0, len(sf.CalledBy)),
			DataAccess:    sf.DataAccess,
		}
		if fn.QualifiedName == "" {
			fn.QualifiedName = sf.Name
		}
		if fn.DataAccess == nil {
			fn.DataAccess = []graph.DataAccessRef{}
		}
		for _, name := range sf.Calls {
			fn.Calls = append(fn.Calls, graph.CallEdge{
				CallerID:   sf.ID,
				CalleeName: name,
				Confidence: graph.ConfidenceUnresolved,
			})
		}
		for _, callerID := range sf.CalledBy {
			id := sf.ID
			fn.CalledBy = append(fn.CalledBy, graph.CallEdge{
				CallerID:   callerID,
				CalleeName: sf.Name,
				CalleeID:   &id,
				Resolved:   true,
				Confidence: graph.ConfidenceResolved,
			})
		}

		g.Functions[fn.ID] = fn
		if sf.IsEntryPoint {
			g.EntryPoints = append(g.EntryPoints, fn.ID)
		}
		if sf.IsDataAccessor {
			g.DataAccessors = append(g.DataAccessors, fn.ID)
		}
	}
}
