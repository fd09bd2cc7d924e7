// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reach answers "what does this function reach" and "what reaches
// this function" over resolved call edges.
//
// Results are memoized in the store's reachability cache under
// "<direction>-<id>-d<depth>[-l<limit>]". The store clears that cache on
// every save, so a memoized result never outlives the graph it was
// computed from.
package reach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ruizrica/drift-sub003/services/callgraph/graph"
)

const (
	// DefaultMaxDepth is the default traversal depth.
	DefaultMaxDepth = 5

	// MaxTraversalDepth is the largest depth accepted.
	MaxTraversalDepth = 100

	// DefaultLimit is the default cap on reached functions.
	DefaultLimit = 1000

	contextCheckInterval = 100
)

var (
	// ErrFunctionNotFound is returned when the root ID is not in the graph.
	ErrFunctionNotFound = errors.New("function not found")
)

// Direction selects which edges a traversal follows.
type Direction string

const (
	// DirectionCallees follows outgoing resolved calls.
	DirectionCallees Direction = "callees"

	// DirectionCallers follows incoming calls.
	DirectionCallers Direction = "callers"
)

// Source is the slice of the store a traversal needs.
type Source interface {
	GetFunction(id string) *graph.FunctionNode
	CacheReachability(ctx context.Context, key string, data any)
	GetCachedReachability(ctx context.Context, key string) json.RawMessage
}

// Hop is one reached function.
type Hop struct {
	ID    string `json:"id"`
	Depth int    `json:"depth"`

	// Via is the function the hop was first reached from.
	Via string `json:"via"`
}

// Result is one traversal.
type Result struct {
	Root      string    `json:"root"`
	Direction Direction `json:"direction"`
	MaxDepth  int       `json:"maxDepth"`

	// Reached excludes the root, ordered by depth then ID.
	Reached []Hop `json:"reached"`

	// Truncated is true when the limit stopped the traversal.
	Truncated bool `json:"truncated"`

	// Cached is true when the result came from the cache.
	Cached bool `json:"-"`
}

// IDs returns the reached function IDs in result order.
func (r *Result) IDs() []string {
	ids := make([]string, len(r.Reached))
	for i, h := range r.Reached {
		ids[i] = h.ID
	}
	return ids
}

// Options configures traversals.
type Options struct {
	MaxDepth int
	Limit    int
	Logger   *slog.Logger
}

// Option is a functional option for configuring the Analyzer.
type Option func(*Options)

// WithMaxDepth sets the default depth. Values below 1 use the default;
// values above MaxTraversalDepth are clamped.
func WithMaxDepth(d int) Option {
	return func(o *Options) {
		o.MaxDepth = clampDepth(d)
	}
}

// WithLimit caps the number of reached functions. Values below 1 use the
// default.
func WithLimit(n int) Option {
	return func(o *Options) {
		if n < 1 {
			n = DefaultLimit
		}
		o.Limit = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

func clampDepth(d int) int {
	switch {
	case d < 1:
		return DefaultMaxDepth
	case d > MaxTraversalDepth:
		return MaxTraversalDepth
	default:
		return d
	}
}

// Analyzer runs memoized traversals.
//
// Thread Safety: safe for concurrent use when Source is.
type Analyzer struct {
	source  Source
	options Options
}

// New creates an Analyzer over source.
func New(source Source, opts ...Option) *Analyzer {
	options := Options{
		MaxDepth: DefaultMaxDepth,
		Limit:    DefaultLimit,
		Logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Analyzer{source: source, options: options}
}

// Callees returns what id reaches within depth hops. A depth below 1 uses
// the configured default.
func (a *Analyzer) Callees(ctx context.Context, id string, depth int) (*Result, error) {
	return a.traverse(ctx, DirectionCallees, id, depth)
}

// Callers returns what reaches id within depth hops.
func (a *Analyzer) Callers(ctx context.Context, id string, depth int) (*Result, error) {
	return a.traverse(ctx, DirectionCallers, id, depth)
}

// CacheKey is the cache key of a traversal.
func CacheKey(dir Direction, id string, depth, limit int) string {
	key := fmt.Sprintf("%s-%s-d%d", dir, id, depth)
	if limit != DefaultLimit {
		key += fmt.Sprintf("-l%d", limit)
	}
	return key
}

func (a *Analyzer) traverse(ctx context.Context, dir Direction, id string, depth int) (*Result, error) {
	if depth < 1 {
		depth = a.options.MaxDepth
	}
	depth = clampDepth(depth)

	root := a.source.GetFunction(id)
	if root == nil {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, id)
	}

	key := CacheKey(dir, id, depth, a.options.Limit)
	if raw := a.source.GetCachedReachability(ctx, key); raw != nil {
		var cached Result
		if err := json.Unmarshal(raw, &cached); err == nil && cached.Root == id {
			cached.Cached = true
			return &cached, nil
		}
		a.options.Logger.Debug("ignoring unreadable reachability entry", slog.String("key", key))
	}

	start := time.Now()
	result, err := a.bfs(ctx, dir, root, depth)
	if err != nil {
		return nil, err
	}
	a.source.CacheReachability(ctx, key, result)

	a.options.Logger.Debug("reachability computed",
		slog.String("direction", string(dir)),
		slog.String("root", id),
		slog.Int("reached", len(result.Reached)),
		slog.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// bfs is an iterative breadth-first walk that visits each function once.
func (a *Analyzer) bfs(ctx context.Context, dir Direction, root *graph.FunctionNode, maxDepth int) (*Result, error) {
	result := &Result{
		Root:      root.ID,
		Direction: dir,
		MaxDepth:  maxDepth,
		Reached:   []Hop{},
	}

	type queueItem struct {
		fn    *graph.FunctionNode
		depth int
	}
	visited := map[string]bool{root.ID: true}
	queue := []queueItem{{root, 0}}
	checkCounter := 0

	for len(queue) > 0 {
		checkCounter++
		if checkCounter%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		item := queue[0]
		queue = queue[1:]
		if item.depth >= maxDepth {
			continue
		}

		for _, next := range neighbours(dir, item.fn) {
			if visited[next] {
				continue
			}
			visited[next] = true

			fn := a.source.GetFunction(next)
			if fn == nil {
				continue
			}
			if len(result.Reached) >= a.options.Limit {
				result.Truncated = true
				queue = nil
				break
			}
			result.Reached = append(result.Reached, Hop{ID: next, Depth: item.depth + 1, Via: item.fn.ID})
			queue = append(queue, queueItem{fn, item.depth + 1})
		}
	}

	sort.SliceStable(result.Reached, func(i, j int) bool {
		if result.Reached[i].Depth != result.Reached[j].Depth {
			return result.Reached[i].Depth < result.Reached[j].Depth
		}
		return result.Reached[i].ID < result.Reached[j].ID
	})
	return result, nil
}

func neighbours(dir Direction, fn *graph.FunctionNode) []string {
	var ids []string
	if dir == DirectionCallees {
		for _, e := range fn.Calls {
			if e.Resolved && e.CalleeID != nil {
				ids = append(ids, *e.CalleeID)
			}
		}
		return ids
	}
	for _, e := range fn.CalledBy {
		ids = append(ids, e.CallerID)
	}
	return ids
}
