// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reach

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruizrica/drift-sub003/services/callgraph/extract"
	"github.com/ruizrica/drift-sub003/services/callgraph/graph"
	"github.com/ruizrica/drift-sub003/services/callgraph/store"
)

// ringGraph: a -> b -> c -> d -> a, plus a -> c.
func ringGraph(t *testing.T) (*graph.CallGraph, map[string]string) {
	t.Helper()

	r := extract.NewResult("src/ring.rs", extract.LanguageRust, extract.StrategyPattern)
	for i, name := range []string{"a", "b", "c", "d"} {
		start := 1 + i*4
		r.Functions = append(r.Functions, extract.FunctionInfo{Name: name, QualifiedName: name, StartLine: start, EndLine: start + 2})
	}
	r.Calls = append(r.Calls,
		extract.CallInfo{CalleeName: "b", Line: 2, Column: 5, CallerName: "a"},
		extract.CallInfo{CalleeName: "c", Line: 3, Column: 5, CallerName: "a"},
		extract.CallInfo{CalleeName: "c", Line: 6, Column: 5, CallerName: "b"},
		extract.CallInfo{CalleeName: "d", Line: 10, Column: 5, CallerName: "c"},
		extract.CallInfo{CalleeName: "a", Line: 14, Column: 5, CallerName: "d"},
		extract.CallInfo{CalleeName: "unknown", Line: 15, Column: 5, CallerName: "d"},
	)

	res, err := graph.NewAssembler(graph.WithClock(func() time.Time {
		return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	})).Build(context.Background(), []*extract.FileExtractionResult{r})
	require.NoError(t, err)

	ids := map[string]string{}
	for _, fn := range res.Graph.Functions {
		ids[fn.Name] = fn.ID
	}
	return res.Graph, ids
}

func newStore(t *testing.T, g *graph.CallGraph) *store.Store {
	t.Helper()
	s, err := store.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Initialize(context.Background()))
	require.NoError(t, s.Save(context.Background(), g))
	return s
}

func TestAnalyzer_Traversals(t *testing.T) {
	g, ids := ringGraph(t)
	a := New(newStore(t, g))

	tests := []struct {
		name  string
		dir   Direction
		root  string
		depth int
		want  []string
	}{
		{"callees depth 1", DirectionCallees, "a", 1, []string{"b", "c"}},
		{"callees depth 2", DirectionCallees, "a", 2, []string{"b", "c", "d"}},
		{"callees stop at the root", DirectionCallees, "a", 10, []string{"b", "c", "d"}},
		{"callers depth 1", DirectionCallers, "c", 1, []string{"a", "b"}},
		{"callers depth 2", DirectionCallers, "c", 2, []string{"a", "b", "d"}},
		{"callers of a", DirectionCallers, "a", 1, []string{"d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				res *Result
				err error
			)
			if tt.dir == DirectionCallees {
				res, err = a.Callees(context.Background(), ids[tt.root], tt.depth)
			} else {
				res, err = a.Callers(context.Background(), ids[tt.root], tt.depth)
			}
			require.NoError(t, err)

			var want []string
			for _, name := range tt.want {
				want = append(want, ids[name])
			}
			assert.ElementsMatch(t, want, res.IDs())
			assert.False(t, res.Truncated)
			assert.Equal(t, ids[tt.root], res.Root)
		})
	}
}

func TestAnalyzer_DepthAndVia(t *testing.T) {
	g, ids := ringGraph(t)
	a := New(newStore(t, g))

	res, err := a.Callees(context.Background(), ids["a"], 3)
	require.NoError(t, err)

	byID := map[string]Hop{}
	for _, h := range res.Reached {
		byID[h.ID] = h
	}
	assert.Equal(t, 1, byID[ids["c"]].Depth, "a calls c directly")
	assert.Equal(t, ids["a"], byID[ids["c"]].Via)
	assert.Equal(t, 2, byID[ids["d"]].Depth)
	assert.Equal(t, ids["c"], byID[ids["d"]].Via)

	for i := 1; i < len(res.Reached); i++ {
		assert.LessOrEqual(t, res.Reached[i-1].Depth, res.Reached[i].Depth)
	}
}

func TestAnalyzer_Limit(t *testing.T) {
	g, ids := ringGraph(t)
	a := New(newStore(t, g), WithLimit(2))

	res, err := a.Callees(context.Background(), ids["a"], 10)
	require.NoError(t, err)
	assert.Len(t, res.Reached, 2)
	assert.True(t, res.Truncated)
}

func TestAnalyzer_MemoizedUntilSave(t *testing.T) {
	ctx := context.Background()
	g, ids := ringGraph(t)
	s := newStore(t, g)
	a := New(s)

	first, err := a.Callees(ctx, ids["a"], 2)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	raw := s.GetCachedReachability(ctx, CacheKey(DirectionCallees, ids["a"], 2, DefaultLimit))
	require.NotNil(t, raw)

	second, err := a.Callees(ctx, ids["a"], 2)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Reached, second.Reached)

	require.NoError(t, s.Save(ctx, g))
	third, err := a.Callees(ctx, ids["a"], 2)
	require.NoError(t, err)
	assert.False(t, third.Cached)
}

func TestAnalyzer_NotFound(t *testing.T) {
	g, _ := ringGraph(t)
	a := New(newStore(t, g))

	_, err := a.Callers(context.Background(), "nope", 1)
	assert.True(t, errors.Is(err, ErrFunctionNotFound))
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "callees-x-d3", CacheKey(DirectionCallees, "x", 3, DefaultLimit))
	assert.Equal(t, "callers-x-d3-l10", CacheKey(DirectionCallers, "x", 3, 10))
}

func TestClampDepth(t *testing.T) {
	assert.Equal(t, DefaultMaxDepth, clampDepth(0))
	assert.Equal(t, 7, clampDepth(7))
	assert.Equal(t, MaxTraversalDepth, clampDepth(1000))
}
