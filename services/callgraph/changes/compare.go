// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package changes reports what changed between two scans and which
// functions a unified diff touches.
package changes

import (
	"reflect"
	"sort"

	"github.com/ruizrica/drift-sub003/services/callgraph/graph"
)

// Kind classifies a function-level change.
type Kind string

const (
	KindAdded    Kind = "added"
	KindRemoved  Kind = "removed"
	KindModified Kind = "modified"

	// KindMoved means only the position changed. Function IDs include the
	// start line, so a moved function has a new ID.
	KindMoved Kind = "moved"
)

// Change is one function-level difference.
type Change struct {
	Kind          Kind   `json:"kind"`
	File          string `json:"file"`
	QualifiedName string `json:"qualifiedName"`

	// PrevID is empty for additions, NextID for removals.
	PrevID string `json:"prevId,omitempty"`
	NextID string `json:"nextId,omitempty"`
}

// Report lists changes ordered by file, qualified name and kind.
type Report struct {
	Changes []Change `json:"changes"`
}

// Count returns the number of changes of kind k.
func (r *Report) Count(k Kind) int {
	n := 0
	for _, c := range r.Changes {
		if c.Kind == k {
			n++
		}
	}
	return n
}

// IDs returns the IDs of changes of kind k: the next ID, or the previous
// one for removals.
func (r *Report) IDs(k Kind) []string {
	var ids []string
	for _, c := range r.Changes {
		if c.Kind != k {
			continue
		}
		if c.NextID != "" {
			ids = append(ids, c.NextID)
		} else {
			ids = append(ids, c.PrevID)
		}
	}
	return ids
}

// identity groups functions that are "the same function" across scans.
type identity struct {
	file      string
	qualified string
}

// Compare reports the differences between two graphs. Either may be nil.
//
// Functions are matched by file and qualified name. When several share
// both (cfg-gated duplicates), they are paired in start line order and
// the surplus is reported as added or removed.
//
// A matched pair is modified when its parameters, return type, flags,
// span length or ordered callee names differ, and moved when only the
// start line differs.
func Compare(prev, next *graph.CallGraph) *Report {
	before := groupByIdentity(prev)
	after := groupByIdentity(next)

	keys := make(map[identity]bool, len(before)+len(after))
	for k := range before {
		keys[k] = true
	}
	for k := range after {
		keys[k] = true
	}

	report := &Report{Changes: []Change{}}
	for k := range keys {
		olds, news := before[k], after[k]
		n := len(olds)
		if len(news) < n {
			n = len(news)
		}
		for i := 0; i < n; i++ {
			if kind, changed := compareNodes(olds[i], news[i]); changed {
				report.Changes = append(report.Changes, Change{
					Kind: kind, File: k.file, QualifiedName: k.qualified,
					PrevID: olds[i].ID, NextID: news[i].ID,
				})
			}
		}
		for _, fn := range olds[n:] {
			report.Changes = append(report.Changes, Change{
				Kind: KindRemoved, File: k.file, QualifiedName: k.qualified, PrevID: fn.ID,
			})
		}
		for _, fn := range news[n:] {
			report.Changes = append(report.Changes, Change{
				Kind: KindAdded, File: k.file, QualifiedName: k.qualified, NextID: fn.ID,
			})
		}
	}

	sort.Slice(report.Changes, func(i, j int) bool {
		a, b := report.Changes[i], report.Changes[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.QualifiedName != b.QualifiedName {
			return a.QualifiedName < b.QualifiedName
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.PrevID+a.NextID < b.PrevID+b.NextID
	})
	return report
}

func groupByIdentity(g *graph.CallGraph) map[identity][]*graph.FunctionNode {
	groups := map[identity][]*graph.FunctionNode{}
	if g == nil {
		return groups
	}
	for _, fn := range g.Functions {
		k := identity{file: fn.File, qualified: fn.QualifiedName}
		groups[k] = append(groups[k], fn)
	}
	for _, fns := range groups {
		sort.Slice(fns, func(i, j int) bool {
			if fns[i].StartLine != fns[j].StartLine {
				return fns[i].StartLine < fns[j].StartLine
			}
			return fns[i].ID < fns[j].ID
		})
	}
	return groups
}

func compareNodes(a, b *graph.FunctionNode) (Kind, bool) {
	if !sameShape(a, b) {
		return KindModified, true
	}
	if a.StartLine != b.StartLine {
		return KindMoved, true
	}
	return "", false
}

func sameShape(a, b *graph.FunctionNode) bool {
	return a.Span() == b.Span() &&
		a.ReturnType == b.ReturnType &&
		a.IsExported == b.IsExported &&
		a.IsAsync == b.IsAsync &&
		a.IsStatic == b.IsStatic &&
		reflect.DeepEqual(normalizeParams(a), normalizeParams(b)) &&
		reflect.DeepEqual(calleeNames(a), calleeNames(b))
}

func normalizeParams(fn *graph.FunctionNode) []string {
	out := make([]string, 0, len(fn.Parameters))
	for _, p := range fn.Parameters {
		out = append(out, p.Name+":"+p.Type)
	}
	return out
}

func calleeNames(fn *graph.FunctionNode) []string {
	out := make([]string, 0, len(fn.Calls))
	for _, c := range fn.Calls {
		out = append(out, c.Receiver+"|"+c.CalleeName)
	}
	return out
}
