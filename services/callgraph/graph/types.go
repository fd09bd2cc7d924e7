// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph assembles per-file extraction results into a project call
// graph.
//
// A CallGraph maps stable function IDs to FunctionNodes. Each node carries
// its outgoing call edges (Calls) and, for edges that resolved to a known
// function, the matching incoming edges on the callee (CalledBy).
//
// # Ownership Model
//
// A CallGraph is built once by an Assembler and then handed to the store,
// which owns it. Nodes must not be mutated after the graph is handed over;
// every save replaces the whole graph.
//
// # Thread Safety
//
// CallGraph has no internal locking. Concurrent reads are safe once the
// graph is no longer being built or modified.
package graph

import (
	"sort"
	"time"

	"github.com/ruizrica/drift-sub003/services/callgraph/extract"
)

// Version is the graph format version written by this package.
const Version = "1.0.0"

// Confidence values for call edges.
const (
	ConfidenceResolved   = 1.0
	ConfidenceUnresolved = 0.5
)

// CallEdge is one call site.
type CallEdge struct {
	CallerID   string `json:"callerId"`
	CalleeName string `json:"calleeName"`

	// CalleeID is nil when the call did not resolve to a known function.
	CalleeID *string `json:"calleeId"`

	Receiver     string  `json:"receiver,omitempty"`
	Line         int     `json:"line"`
	Column       int     `json:"column"`
	IsMethodCall bool    `json:"isMethodCall,omitempty"`
	Resolved     bool    `json:"resolved"`
	Confidence   float64 `json:"confidence"`
}

// DataAccessRef is a data access performed by a function, as reported by a
// DataAccessClassifier.
type DataAccessRef struct {
	Table     string   `json:"table"`
	Operation string   `json:"operation"`
	Fields    []string `json:"fields"`
	Line      int      `json:"line"`
}

// FunctionNode is one function or method.
type FunctionNode struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	QualifiedName string           `json:"qualifiedName"`
	File          string           `json:"file"`
	StartLine     int              `json:"startLine"`
	EndLine       int              `json:"endLine"`
	Language      extract.Language `json:"language"`
	ClassName     string           `json:"className,omitempty"`

	IsExported    bool `json:"isExported"`
	IsAsync       bool `json:"isAsync"`
	IsConstructor bool `json:"isConstructor"`
	IsMethod      bool `json:"isMethod"`
	IsStatic      bool `json:"isStatic"`

	Parameters []extract.Parameter `json:"parameters"`
	ReturnType string              `json:"returnType,omitempty"`
	Decorators []string            `json:"decorators,omitempty"`

	Calls      []CallEdge      `json:"calls"`
	CalledBy   []CallEdge      `json:"calledBy"`
	DataAccess []DataAccessRef `json:"dataAccess"`
}

// Contains reports whether line falls inside the function's span.
func (f *FunctionNode) Contains(line int) bool {
	return line >= f.StartLine && line <= f.EndLine
}

// Span is the number of lines after the first.
func (f *FunctionNode) Span() int {
	return f.EndLine - f.StartLine
}

// LanguageStats is the per-language part of Stats.
type LanguageStats struct {
	Files     int `json:"files"`
	Functions int `json:"functions"`
	CallSites int `json:"callSites"`
}

// Stats summarizes a graph.
type Stats struct {
	TotalFunctions      int                                `json:"totalFunctions"`
	TotalCallSites      int                                `json:"totalCallSites"`
	ResolvedCallSites   int                                `json:"resolvedCallSites"`
	UnresolvedCallSites int                                `json:"unresolvedCallSites"`
	FileCount           int                                `json:"fileCount"`
	ByLanguage          map[extract.Language]LanguageStats `json:"byLanguage"`
}

// ResolutionRate is the fraction of call sites that resolved.
func (s Stats) ResolutionRate() float64 {
	if s.TotalCallSites == 0 {
		return 0
	}
	return float64(s.ResolvedCallSites) / float64(s.TotalCallSites)
}

// CallGraph is a whole-project call graph.
type CallGraph struct {
	Version       string                   `json:"version"`
	GeneratedAt   time.Time                `json:"generatedAt"`
	ProjectRoot   string                   `json:"projectRoot"`
	Functions     map[string]*FunctionNode `json:"functions"`
	EntryPoints   []string                 `json:"entryPoints"`
	DataAccessors []string                 `json:"dataAccessors"`
	Stats         Stats                    `json:"stats"`
}

// New creates an empty graph.
func New(projectRoot string, generatedAt time.Time) *CallGraph {
	return &CallGraph{
		Version:       Version,
		GeneratedAt:   generatedAt.UTC(),
		ProjectRoot:   projectRoot,
		Functions:     make(map[string]*FunctionNode),
		EntryPoints:   []string{},
		DataAccessors: []string{},
		Stats:         Stats{ByLanguage: map[extract.Language]LanguageStats{}},
	}
}

// Function returns the node with the given ID, or nil.
func (g *CallGraph) Function(id string) *FunctionNode {
	return g.Functions[id]
}

// SortedIDs returns every function ID in lexical order.
func (g *CallGraph) SortedIDs() []string {
	ids := make([]string, 0, len(g.Functions))
	for id := range g.Functions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FunctionsInFile returns the functions declared in file ordered by start
// line.
func (g *CallGraph) FunctionsInFile(file string) []*FunctionNode {
	var out []*FunctionNode
	for _, fn := range g.Functions {
		if fn.File == file {
			out = append(out, fn)
		}
	}
	sortByPosition(out)
	return out
}

// FunctionAtLine returns the innermost function in file whose span
// contains line: the one with the smallest EndLine-StartLine. Ties go to
// the later start. Returns nil when no function contains the line.
func (g *CallGraph) FunctionAtLine(file string, line int) *FunctionNode {
	var best *FunctionNode
	for _, fn := range g.Functions {
		if fn.File != file || !fn.Contains(line) {
			continue
		}
		if best == nil || fn.Span() < best.Span() ||
			(fn.Span() == best.Span() && (fn.StartLine > best.StartLine ||
				(fn.StartLine == best.StartLine && fn.ID < best.ID))) {
			best = fn
		}
	}
	return best
}

// Files returns the distinct source files in lexical order.
func (g *CallGraph) Files() []string {
	seen := map[string]bool{}
	var files []string
	for _, fn := range g.Functions {
		if !seen[fn.File] {
			seen[fn.File] = true
			files = append(files, fn.File)
		}
	}
	sort.Strings(files)
	return files
}

// IsEntryPoint reports membership in EntryPoints.
func (g *CallGraph) IsEntryPoint(id string) bool {
	return containsID(g.EntryPoints, id)
}

// IsDataAccessor reports membership in DataAccessors.
func (g *CallGraph) IsDataAccessor(id string) bool {
	return containsID(g.DataAccessors, id)
}

func containsID(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// RecomputeStats rebuilds Stats from the functions and their edges.
func (g *CallGraph) RecomputeStats() {
	s := Stats{ByLanguage: map[extract.Language]LanguageStats{}}
	files := map[string]extract.Language{}
	for _, fn := range g.Functions {
		s.TotalFunctions++
		ls := s.ByLanguage[fn.Language]
		ls.Functions++
		ls.CallSites += len(fn.Calls)
		s.ByLanguage[fn.Language] = ls

		for _, c := range fn.Calls {
			s.TotalCallSites++
			if c.Resolved {
				s.ResolvedCallSites++
			} else {
				s.UnresolvedCallSites++
			}
		}
		files[fn.File] = fn.Language
	}
	s.FileCount = len(files)
	for _, lang := range files {
		ls := s.ByLanguage[lang]
		ls.Files++
		s.ByLanguage[lang] = ls
	}
	g.Stats = s
}

func sortByPosition(fns []*FunctionNode) {
	sort.Slice(fns, func(i, j int) bool {
		if fns[i].StartLine != fns[j].StartLine {
			return fns[i].StartLine < fns[j].StartLine
		}
		return fns[i].ID < fns[j].ID
	})
}
