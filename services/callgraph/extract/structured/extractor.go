// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package structured implements extraction from tree-sitter syntax trees.
//
// One depth-first walk visits every node. Node types are classified into
// a NodeKind and dispatched through a per-language handler table; kinds
// without a handler are walked generically. Positions come from node
// spans and parameters from structured child fields, so this strategy is
// exact where the grammar is. Output follows the same conventions as the
// pattern strategy: the same qualification, receiver text, denylists and
// caller attribution (via FileExtractionResult.Finalize).
//
// # Thread Safety
//
// An Extractor owns one tree-sitter parser and is NOT safe for concurrent
// use. Create one per worker and Close it when the worker exits.
package structured

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/ruizrica/drift-sub003/services/callgraph/extract"
)

// DefaultMaxDepth bounds the syntax tree walk.
const DefaultMaxDepth = 512

// Extractor is the structured strategy for one language.
type Extractor struct {
	lang     extract.Language
	parser   *sitter.Parser
	maxDepth int
	logger   *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxDepth sets the walk depth cap. Non-positive values are ignored.
func WithMaxDepth(depth int) Option {
	return func(e *Extractor) {
		if depth > 0 {
			e.maxDepth = depth
		}
	}
}

// WithLogger sets the logger used for recovered panics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates a structured extractor for lang. The parser is acquired on
// the first extraction, not here.
func New(lang extract.Language, opts ...Option) *Extractor {
	e := &Extractor{
		lang:     lang,
		maxDepth: DefaultMaxDepth,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Language returns the language this extractor handles.
func (e *Extractor) Language() extract.Language {
	return e.lang
}

// Close releases the parser. The extractor may be used again afterwards;
// it acquires a new parser on demand.
func (e *Extractor) Close() error {
	if e.parser != nil {
		e.parser.Close()
		e.parser = nil
	}
	return nil
}

func (e *Extractor) acquire() error {
	if e.parser != nil {
		return nil
	}
	grammar := grammarFor(e.lang)
	if grammar == nil || !Probe(e.lang) {
		return fmt.Errorf("%s: %w", e.lang, extract.ErrParserUnavailable)
	}
	p := sitter.NewParser()
	p.SetLanguage(grammar)
	e.parser = p
	return nil
}

// Extract runs TryExtract and discards the error, which is already in the
// result's Errors.
func (e *Extractor) Extract(ctx context.Context, source []byte, filePath string) *extract.FileExtractionResult {
	result, _ := e.TryExtract(ctx, source, filePath)
	return result
}

// TryExtract parses source and walks the syntax tree.
//
// Description:
//
//	The result is never nil. Syntax errors in the source are not failures:
//	tree-sitter recovers and the walk records what it can, noting the
//	errors in the result. A failure to parse at all, an unavailable
//	grammar or a panic during the walk returns an *extract.ExtractError
//	together with whatever was collected; the error text is also appended
//	to the result's Errors.
//
// Inputs:
//   - ctx: Passed to the parser and used for tracing.
//   - source: File content.
//   - filePath: Project-relative path recorded in the result.
//
// Outputs:
//   - *extract.FileExtractionResult: Finalized result, never nil.
//   - error: Wraps extract.ErrUnsupportedLanguage, ErrParserUnavailable or
//     ErrParseFailed.
func (e *Extractor) TryExtract(ctx context.Context, source []byte, filePath string) (result *extract.FileExtractionResult, err error) {
	start := time.Now()
	ctx, span := extract.StartExtractSpan(ctx, extract.StrategyStructured, e.lang, filePath, len(source))
	defer span.End()

	result = extract.NewResult(filePath, e.lang, extract.StrategyStructured)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("structured extraction panicked",
				slog.String("file", filePath),
				slog.Any("panic", r),
			)
			err = extract.NewExtractError(filePath, extract.StrategyStructured,
				fmt.Errorf("%w: walk aborted: %v", extract.ErrParseFailed, r))
		}
		if err != nil {
			result.AddError("%v", err)
		}
		result.Finalize()
		extract.SetExtractSpanResult(span, result)
		extract.RecordExtraction(ctx, result, time.Since(start))
	}()

	d, ok := dispatchFor(e.lang)
	if !ok {
		return result, extract.NewExtractError(filePath, extract.StrategyStructured,
			fmt.Errorf("%s: %w", e.lang, extract.ErrUnsupportedLanguage))
	}
	if aerr := e.acquire(); aerr != nil {
		return result, extract.NewExtractError(filePath, extract.StrategyStructured, aerr)
	}

	tree, perr := e.parser.ParseCtx(ctx, nil, source)
	if perr != nil {
		return result, extract.NewExtractError(filePath, extract.StrategyStructured,
			fmt.Errorf("%w: %v", extract.ErrParseFailed, perr))
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return result, extract.NewExtractError(filePath, extract.StrategyStructured,
			fmt.Errorf("%w: no root node", extract.ErrParseFailed))
	}
	if root.HasError() {
		result.AddError("source contains syntax errors")
	}

	newWalker(source, e.lang, result, d, e.maxDepth).walk(root, 0)
	return result, nil
}

// Compile-time interface compliance check.
var _ extract.Extractor = (*Extractor)(nil)
