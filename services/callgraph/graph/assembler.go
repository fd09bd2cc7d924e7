// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ruizrica/drift-sub003/services/callgraph/extract"
)

// EntryPointClassifier decides whether a function is an entry point.
type EntryPointClassifier interface {
	IsEntryPoint(fn *FunctionNode) bool
}

// DataAccessClassifier reports the data accesses a function performs.
// The node's outgoing Calls are populated before it is consulted.
type DataAccessClassifier interface {
	DataAccess(fn *FunctionNode) []DataAccessRef
}

// AssemblerOptions configures graph assembly.
type AssemblerOptions struct {
	// ProjectRoot is recorded on the graph.
	ProjectRoot string

	// EntryPoints classifies entry points. Nil records none.
	EntryPoints EntryPointClassifier

	// DataAccess classifies data accessors. Nil records none.
	DataAccess DataAccessClassifier

	// Clock supplies GeneratedAt. Default: time.Now.
	Clock func() time.Time

	// Logger for build diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// AssemblerOption is a functional option for configuring the Assembler.
type AssemblerOption func(*AssemblerOptions)

// WithProjectRoot sets the project root recorded on the graph.
func WithProjectRoot(root string) AssemblerOption {
	return func(o *AssemblerOptions) {
		o.ProjectRoot = root
	}
}

// WithEntryPointClassifier sets the entry point classifier.
func WithEntryPointClassifier(c EntryPointClassifier) AssemblerOption {
	return func(o *AssemblerOptions) {
		o.EntryPoints = c
	}
}

// WithDataAccessClassifier sets the data access classifier.
func WithDataAccessClassifier(c DataAccessClassifier) AssemblerOption {
	return func(o *AssemblerOptions) {
		o.DataAccess = c
	}
}

// WithClock sets the clock used for GeneratedAt.
func WithClock(clock func() time.Time) AssemblerOption {
	return func(o *AssemblerOptions) {
		o.Clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) AssemblerOption {
	return func(o *AssemblerOptions) {
		o.Logger = logger
	}
}

// Assembler merges per-file extraction results into a CallGraph.
//
// Thread Safety: an Assembler holds only configuration and is safe for
// concurrent use. Each Build call has its own state.
type Assembler struct {
	options AssemblerOptions
}

// NewAssembler creates an Assembler with the given options.
func NewAssembler(opts ...AssemblerOption) *Assembler {
	options := AssemblerOptions{
		Clock:  time.Now,
		Logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Assembler{options: options}
}

// BuildResult is the outcome of one build.
type BuildResult struct {
	// Graph is the assembled graph. Never nil.
	Graph *CallGraph

	// FileErrors lists inputs that were skipped or carried extraction
	// errors. Files with extraction errors are still in the graph.
	FileErrors []FileError

	// FileScopeCalls counts calls with no enclosing function. They have no
	// caller node and are not part of the graph.
	FileScopeCalls int

	// Incomplete is true when the build was cancelled.
	Incomplete bool

	// Duration is how long the build took.
	Duration time.Duration
}

// buildState holds the indexes for one build.
type buildState struct {
	graph  *CallGraph
	ids    *IDGenerator
	result *BuildResult

	byName      map[string][]*FunctionNode
	byQualified map[string][]*FunctionNode

	// byFile holds each file's nodes in extraction order, used to attach
	// calls to their caller.
	byFile map[string][]*FunctionNode
}

// Build assembles a graph from extraction results.
//
// Description:
//
//	Inputs are processed in file path order so the same set of results
//	produces the same graph regardless of the order workers finished in.
//	Phases:
//	  1. Create a node per function and index it.
//	  2. Turn each call into an edge on its caller and resolve it.
//	  3. Run the classifiers and recompute stats.
//
// Inputs:
//   - ctx: Context for cancellation, checked between files.
//   - results: One result per file. Nil entries are skipped.
//
// Outputs:
//   - *BuildResult: Always non-nil.
//   - error: Wraps ErrBuildCancelled when ctx was cancelled. The partial
//     result is returned alongside.
func (a *Assembler) Build(ctx context.Context, results []*extract.FileExtractionResult) (*BuildResult, error) {
	start := time.Now()
	ctx, span := startBuildSpan(ctx, len(results))
	defer span.End()

	state := &buildState{
		graph:       New(a.options.ProjectRoot, a.options.Clock()),
		ids:         NewIDGenerator(),
		result:      &BuildResult{FileErrors: []FileError{}},
		byName:      make(map[string][]*FunctionNode),
		byQualified: make(map[string][]*FunctionNode),
		byFile:      make(map[string][]*FunctionNode),
	}
	state.result.Graph = state.graph

	ordered := make([]*extract.FileExtractionResult, 0, len(results))
	for i, r := range results {
		if r == nil {
			state.result.FileErrors = append(state.result.FileErrors, FileError{
				FilePath: fmt.Sprintf("<input %d>", i),
				Err:      ErrNilResult,
			})
			continue
		}
		ordered = append(ordered, r)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].File < ordered[j].File
	})

	var buildErr error
	if err := a.collectPhase(ctx, state, ordered); err != nil {
		buildErr = err
	} else if err := a.edgePhase(ctx, state, ordered); err != nil {
		buildErr = err
	}
	a.classifyPhase(state)
	state.graph.RecomputeStats()

	state.result.Duration = time.Since(start)
	setBuildSpanResult(span, state.graph.Stats, state.result.Incomplete)
	recordBuildMetrics(ctx, state.result.Duration, state.graph.Stats, buildErr == nil)

	a.options.Logger.Debug("call graph assembled",
		slog.Int("files", len(ordered)),
		slog.Int("functions", state.graph.Stats.TotalFunctions),
		slog.Int("call_sites", state.graph.Stats.TotalCallSites),
		slog.Int("resolved", state.graph.Stats.ResolvedCallSites),
		slog.Int("file_scope_calls", state.result.FileScopeCalls),
		slog.Duration("duration", state.result.Duration),
	)
	return state.result, buildErr
}

func (a *Assembler) checkCancelled(ctx context.Context, state *buildState) error {
	if err := ctx.Err(); err != nil {
		state.result.Incomplete = true
		return fmt.Errorf("%w: %v", ErrBuildCancelled, err)
	}
	return nil
}

// collectPhase creates and indexes a node per extracted function.
func (a *Assembler) collectPhase(ctx context.Context, state *buildState, results []*extract.FileExtractionResult) error {
	for _, r := range results {
		if err := a.checkCancelled(ctx, state); err != nil {
			return err
		}
		if len(r.Errors) > 0 {
			state.result.FileErrors = append(state.result.FileErrors, FileError{
				FilePath: r.File,
				Err:      fmt.Errorf("%w: %s", ErrExtractionErrors, strings.Join(r.Errors, "; ")),
			})
		}

		for _, fn := range r.Functions {
			node := &FunctionNode{
				ID:            state.ids.ID(r.File, fn.QualifiedName, fn.StartLine),
				Name:          fn.Name,
				QualifiedName: fn.QualifiedName,
				File:          r.File,
				StartLine:     fn.StartLine,
				EndLine:       fn.EndLine,
				Language:      r.Language,
				ClassName:     fn.ClassName,
				IsExported:    fn.IsExported,
				IsAsync:       fn.IsAsync,
				IsConstructor: fn.IsConstructor,
				IsMethod:      fn.IsMethod,
				IsStatic:      fn.IsStatic,
				Parameters:    fn.Parameters,
				ReturnType:    fn.ReturnType,
				Decorators:    fn.Decorators,
				Calls:         []CallEdge{},
				CalledBy:      []CallEdge{},
				DataAccess:    []DataAccessRef{},
			}
			if node.Parameters == nil {
				node.Parameters = []extract.Parameter{}
			}

			state.graph.Functions[node.ID] = node
			state.byName[node.Name] = append(state.byName[node.Name], node)
			state.byQualified[node.QualifiedName] = append(state.byQualified[node.QualifiedName], node)
			state.byFile[r.File] = append(state.byFile[r.File], node)
		}
	}
	return nil
}

// edgePhase creates an edge per call and resolves it.
func (a *Assembler) edgePhase(ctx context.Context, state *buildState, results []*extract.FileExtractionResult) error {
	for _, r := range results {
		if err := a.checkCancelled(ctx, state); err != nil {
			return err
		}
		for _, call := range r.Calls {
			caller := callerOf(state.byFile[r.File], call)
			if caller == nil {
				state.result.FileScopeCalls++
				continue
			}

			edge := CallEdge{
				CallerID:     caller.ID,
				CalleeName:   call.CalleeName,
				Receiver:     call.Receiver,
				Line:         call.Line,
				Column:       call.Column,
				IsMethodCall: call.IsMethodCall,
				Confidence:   ConfidenceUnresolved,
			}
			if target := resolveCall(state, caller, call); target != nil {
				id := target.ID
				edge.CalleeID = &id
				edge.Resolved = true
				edge.Confidence = ConfidenceResolved
				target.CalledBy = append(target.CalledBy, edge)
			}
			caller.Calls = append(caller.Calls, edge)
		}
	}
	return nil
}

// classifyPhase records entry points and data accessors in ID order.
func (a *Assembler) classifyPhase(state *buildState) {
	if a.options.EntryPoints == nil && a.options.DataAccess == nil {
		return
	}
	for _, id := range state.graph.SortedIDs() {
		fn := state.graph.Functions[id]
		if a.options.EntryPoints != nil && a.options.EntryPoints.IsEntryPoint(fn) {
			state.graph.EntryPoints = append(state.graph.EntryPoints, id)
		}
		if a.options.DataAccess != nil {
			if refs := a.options.DataAccess.DataAccess(fn); len(refs) > 0 {
				fn.DataAccess = refs
				state.graph.DataAccessors = append(state.graph.DataAccessors, id)
			}
		}
	}
}

// callerOf finds the node a call belongs to: the innermost function of the
// file whose qualified name matches CallerName and whose span holds the
// call. Without a CallerName the innermost function by line is used.
func callerOf(nodes []*FunctionNode, call extract.CallInfo) *FunctionNode {
	var best *FunctionNode
	for _, fn := range nodes {
		if !fn.Contains(call.Line) {
			continue
		}
		if call.CallerName != "" && fn.QualifiedName != call.CallerName {
			continue
		}
		if best == nil || fn.Span() < best.Span() ||
			(fn.Span() == best.Span() && fn.StartLine >= best.StartLine) {
			best = fn
		}
	}
	return best
}

// resolveCall finds the unique function a call refers to.
//
// Preference order:
//  1. Exact qualified match on Receiver plus name ("Foo::new", "Store.Get").
//  2. Candidates by bare name in the caller's file.
//  3. Candidates by bare name in the caller's directory.
//  4. A single candidate anywhere in the project.
//
// The first tier with any candidates decides: one candidate resolves, more
// than one leaves the call unresolved.
func resolveCall(state *buildState, caller *FunctionNode, call extract.CallInfo) *FunctionNode {
	if call.Receiver != "" {
		if owner := receiverType(caller, call.Receiver); owner != "" {
			qualified := caller.Language.Qualify(owner, call.CalleeName)
			if matches := state.byQualified[qualified]; len(matches) == 1 {
				return matches[0]
			} else if len(matches) > 1 {
				return uniqueIn(matches, func(fn *FunctionNode) bool { return fn.File == caller.File })
			}
		}
	}

	candidates := filterCandidates(state.byName[call.CalleeName], call)
	if len(candidates) == 0 {
		return nil
	}

	if same := filter(candidates, func(fn *FunctionNode) bool { return fn.File == caller.File }); len(same) > 0 {
		return single(same)
	}
	dir := filepath.Dir(caller.File)
	if same := filter(candidates, func(fn *FunctionNode) bool { return filepath.Dir(fn.File) == dir }); len(same) > 0 {
		return single(same)
	}
	return single(candidates)
}

// receiverType maps a call receiver to the type name used for qualified
// lookup. "self" and "Self" resolve to the caller's own type; paths and
// generic arguments are reduced to the last type segment.
func receiverType(caller *FunctionNode, receiver string) string {
	switch receiver {
	case "self", "Self":
		return caller.ClassName
	}
	if caller.Language == extract.LanguageRust {
		if i := strings.Index(receiver, "::<"); i >= 0 {
			receiver = receiver[:i]
		}
		return extract.RustTypeName(receiver)
	}
	if i := strings.LastIndex(receiver, "."); i >= 0 {
		receiver = receiver[i+1:]
	}
	return receiver
}

// filterCandidates drops candidates the call shape cannot reach: a method
// call only reaches methods, a bare call only reaches free functions.
func filterCandidates(nodes []*FunctionNode, call extract.CallInfo) []*FunctionNode {
	switch {
	case call.IsMethodCall:
		return filter(nodes, func(fn *FunctionNode) bool { return fn.IsMethod })
	case call.Receiver == "":
		return filter(nodes, func(fn *FunctionNode) bool { return !fn.IsMethod })
	default:
		return nodes
	}
}

func filter(nodes []*FunctionNode, keep func(*FunctionNode) bool) []*FunctionNode {
	var out []*FunctionNode
	for _, fn := range nodes {
		if keep(fn) {
			out = append(out, fn)
		}
	}
	return out
}

func single(nodes []*FunctionNode) *FunctionNode {
	if len(nodes) == 1 {
		return nodes[0]
	}
	return nil
}

func uniqueIn(nodes []*FunctionNode, keep func(*FunctionNode) bool) *FunctionNode {
	return single(filter(nodes, keep))
}
