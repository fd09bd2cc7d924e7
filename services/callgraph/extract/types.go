// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extract defines the output schema shared by every call-graph
// extraction strategy.
//
// Two strategies produce this schema: the structured extractor (tree-sitter
// syntax trees, see the structured sub-package) and the pattern extractor
// (regular expressions over preprocessed source, see the pattern
// sub-package). The hybrid sub-package selects one of them per file.
//
// # Thread Safety
//
// The types in this package are plain values. A FileExtractionResult is
// owned by the goroutine that produced it until it is handed to the graph
// assembler.
package extract

import (
	"context"
	"fmt"
	"sort"
)

// Strategy names the extraction strategy that produced a result.
type Strategy string

const (
	// StrategyStructured is the tree-sitter based extractor.
	StrategyStructured Strategy = "structured"

	// StrategyPattern is the regular-expression based extractor.
	StrategyPattern Strategy = "pattern"
)

// Parameter is one declared parameter of a function.
type Parameter struct {
	// Name is the binding name. For Rust receivers this is "self".
	Name string `json:"name"`

	// Type is the declared type text with whitespace normalized.
	// Empty when the language allows an untyped parameter.
	Type string `json:"type"`
}

// FunctionInfo describes one function, method or associated function.
type FunctionInfo struct {
	// Name is the bare identifier ("new").
	Name string `json:"name"`

	// QualifiedName includes the container ("Foo::new" in Rust,
	// "Foo.New" in Go). Equal to Name for free functions.
	QualifiedName string `json:"qualifiedName"`

	// StartLine and EndLine are 1-indexed and inclusive.
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine"`

	// StartColumn is the 1-indexed byte column of the declaration start.
	StartColumn int `json:"startColumn"`

	Parameters []Parameter `json:"parameters"`
	ReturnType string      `json:"returnType,omitempty"`

	IsExported    bool `json:"isExported"`
	IsAsync       bool `json:"isAsync"`
	IsConstructor bool `json:"isConstructor"`
	IsMethod      bool `json:"isMethod"`
	IsStatic      bool `json:"isStatic"`

	// ClassName is the enclosing impl, trait or receiver type.
	ClassName string `json:"className,omitempty"`

	// Decorators holds attribute text ("#[test]") in source order.
	Decorators []string `json:"decorators,omitempty"`
}

// Contains reports whether line falls inside the function span.
func (f FunctionInfo) Contains(line int) bool {
	return line >= f.StartLine && line <= f.EndLine
}

// CallInfo describes one call site.
type CallInfo struct {
	// CalleeName is the called identifier without receiver ("push").
	CalleeName string `json:"calleeName"`

	// Receiver is the text left of the final "." or "::" ("self.items",
	// "Vec"). Empty for bare calls.
	Receiver string `json:"receiver,omitempty"`

	// FullExpression is the callee expression as written, without arguments.
	FullExpression string `json:"fullExpression"`

	// Line and Column are 1-indexed; Column is a byte column.
	Line   int `json:"line"`
	Column int `json:"column"`

	ArgumentCount int `json:"argumentCount"`

	// IsMethodCall is true for receiver.name(...) calls.
	IsMethodCall bool `json:"isMethodCall"`

	// IsConstructorCall is a naming heuristic, see IsConstructorName.
	IsConstructorCall bool `json:"isConstructorCall"`

	// IsMacro is true for Rust macro invocations (name!(...)).
	IsMacro bool `json:"isMacro"`

	// CallerName is the qualified name of the innermost enclosing function.
	// Empty for calls at file scope.
	CallerName string `json:"callerName,omitempty"`
}

// ImportInfo is one imported name.
type ImportInfo struct {
	// Source is the module path the name is imported from
	// ("std::collections", "net/http").
	Source string `json:"source"`

	// Imported is the name as exported by Source. "*" for globs.
	Imported string `json:"imported"`

	// Local is the name bound in this file after aliasing.
	Local string `json:"local"`

	// IsNamespace is true when the import binds a module rather than an item
	// (Rust "self" and glob imports, Go package imports).
	IsNamespace bool `json:"isNamespace"`

	Line int `json:"line"`
}

// ExportInfo is one name made visible outside the file's module.
type ExportInfo struct {
	Name string `json:"name"`

	// Source is set for re-exports ("pub use a::b").
	Source string `json:"source,omitempty"`

	// Kind is the declaration kind ("function", "struct", "trait", ...).
	Kind string `json:"kind"`

	IsReExport bool `json:"isReExport"`
	Line       int  `json:"line"`
}

// ContainerKind classifies a type-like declaration.
type ContainerKind string

const (
	ContainerStruct    ContainerKind = "struct"
	ContainerEnum      ContainerKind = "enum"
	ContainerTrait     ContainerKind = "trait"
	ContainerInterface ContainerKind = "interface"
)

// IsInterfaceLike reports whether the container only declares signatures.
func (k ContainerKind) IsInterfaceLike() bool {
	return k == ContainerTrait || k == ContainerInterface
}

// ContainerInfo describes a struct, enum, trait or interface.
type ContainerInfo struct {
	Name string        `json:"name"`
	Kind ContainerKind `json:"kind"`

	// BaseTypes lists supertraits or embedded interfaces.
	BaseTypes []string `json:"baseTypes"`

	// MethodNames lists method names for interface-like containers only.
	MethodNames []string `json:"methodNames"`

	IsExported bool `json:"isExported"`
	StartLine  int  `json:"startLine"`
	EndLine    int  `json:"endLine"`
}

// FileExtractionResult is one file's raw extraction.
//
// Description:
//
//	A result carrying Errors is still a valid partial result. Extractors
//	never return an error for a problem in the source itself; they record
//	it here and keep going.
//
// Thread Safety: Not safe for concurrent mutation.
type FileExtractionResult struct {
	File       string          `json:"file"`
	Language   Language        `json:"language"`
	Strategy   Strategy        `json:"strategy"`
	Functions  []FunctionInfo  `json:"functions"`
	Calls      []CallInfo      `json:"calls"`
	Imports    []ImportInfo    `json:"imports"`
	Exports    []ExportInfo    `json:"exports"`
	Containers []ContainerInfo `json:"containers"`
	Errors     []string        `json:"errors"`
}

// NewResult returns an empty result with non-nil slices.
func NewResult(file string, lang Language, strategy Strategy) *FileExtractionResult {
	return &FileExtractionResult{
		File:       file,
		Language:   lang,
		Strategy:   strategy,
		Functions:  []FunctionInfo{},
		Calls:      []CallInfo{},
		Imports:    []ImportInfo{},
		Exports:    []ExportInfo{},
		Containers: []ContainerInfo{},
		Errors:     []string{},
	}
}

// IsEmpty reports whether the result found no functions, containers or calls.
//
// Imports and exports alone do not count: a structured parse that only
// recovered a use list is treated as a grammar mismatch by the hybrid
// selector.
func (r *FileExtractionResult) IsEmpty() bool {
	return len(r.Functions) == 0 && len(r.Containers) == 0 && len(r.Calls) == 0
}

// AddError records a non-fatal extraction problem.
func (r *FileExtractionResult) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Finalize deduplicates, attributes callers and sorts the result.
//
// Description:
//
//	Both strategies call Finalize as their last step so the same source
//	yields the same ordering regardless of traversal order.
//
//	  - Functions are deduplicated by (name, startLine), first wins.
//	  - Calls are deduplicated by (receiver, calleeName, line), first wins.
//	  - Calls without a CallerName get the innermost enclosing function.
//	  - Everything is sorted by position.
func (r *FileExtractionResult) Finalize() {
	r.Functions = DedupFunctions(r.Functions)
	r.Calls = DedupCalls(r.Calls)

	sort.SliceStable(r.Functions, func(i, j int) bool {
		a, b := r.Functions[i], r.Functions[j]
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		if a.StartColumn != b.StartColumn {
			return a.StartColumn < b.StartColumn
		}
		return a.QualifiedName < b.QualifiedName
	})

	for i := range r.Calls {
		if r.Calls[i].CallerName == "" {
			if fn, ok := InnermostAt(r.Functions, r.Calls[i].Line); ok {
				r.Calls[i].CallerName = fn.QualifiedName
			}
		}
	}

	sort.SliceStable(r.Calls, func(i, j int) bool {
		a, b := r.Calls[i], r.Calls[j]
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		return a.CalleeName < b.CalleeName
	})
	sort.SliceStable(r.Imports, func(i, j int) bool {
		return r.Imports[i].Line < r.Imports[j].Line
	})
	sort.SliceStable(r.Exports, func(i, j int) bool {
		return r.Exports[i].Line < r.Exports[j].Line
	})
	sort.SliceStable(r.Containers, func(i, j int) bool {
		return r.Containers[i].StartLine < r.Containers[j].StartLine
	})
}

// InnermostAt returns the function with the smallest span containing line.
// Ties go to the later declaration.
func InnermostAt(functions []FunctionInfo, line int) (FunctionInfo, bool) {
	best := -1
	for i, fn := range functions {
		if !fn.Contains(line) {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		span, bestSpan := fn.EndLine-fn.StartLine, functions[best].EndLine-functions[best].StartLine
		if span < bestSpan || (span == bestSpan && fn.StartLine >= functions[best].StartLine) {
			best = i
		}
	}
	if best < 0 {
		return FunctionInfo{}, false
	}
	return functions[best], true
}

// Extractor is implemented by every extraction strategy.
type Extractor interface {
	// Extract never fails; problems are recorded in the result's Errors.
	Extract(ctx context.Context, source []byte, filePath string) *FileExtractionResult

	// Language returns the language this extractor handles.
	Language() Language
}
