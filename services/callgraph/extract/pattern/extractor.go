// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pattern implements grammar-free extraction with regular
// expressions.
//
// Source is first passed through Preprocess, which blanks comments and
// literal contents without moving any byte. Ordered regular-expression
// families then recognize declarations, containers, imports and call
// sites in the preprocessed text; every match offset is also an offset
// into the original source.
//
// # Thread Safety
//
// Extractor holds no mutable state and is safe for concurrent use.
package pattern

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruizrica/drift-sub003/services/callgraph/extract"
)

// Extractor is the pattern strategy for one language.
type Extractor struct {
	lang   extract.Language
	logger *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger used for recovered panics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates a pattern extractor for lang.
func New(lang extract.Language, opts ...Option) *Extractor {
	e := &Extractor{lang: lang, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Language returns the language this extractor handles.
func (e *Extractor) Language() extract.Language {
	return e.lang
}

// Extract runs the pattern families over source.
//
// Description:
//
//	Never fails. An unsupported language or a panic inside a pattern family
//	is recorded in the result's Errors and whatever was collected before
//	it is returned.
//
// Inputs:
//   - ctx: Used for tracing only; extraction is not cancellable.
//   - source: File content.
//   - filePath: Project-relative path recorded in the result.
//
// Outputs:
//   - *extract.FileExtractionResult: Never nil.
func (e *Extractor) Extract(ctx context.Context, source []byte, filePath string) (result *extract.FileExtractionResult) {
	start := time.Now()
	ctx, span := extract.StartExtractSpan(ctx, extract.StrategyPattern, e.lang, filePath, len(source))
	defer span.End()

	result = extract.NewResult(filePath, e.lang, extract.StrategyPattern)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("pattern extraction panicked",
				slog.String("file", filePath),
				slog.Any("panic", r),
			)
			result.AddError("pattern extraction aborted: %v", r)
		}
		result.Finalize()
		extract.SetExtractSpanResult(span, result)
		extract.RecordExtraction(ctx, result, time.Since(start))
	}()

	pre := Preprocess(source, e.lang)
	f := &file{
		src:   string(source),
		text:  string(pre),
		lines: newLineIndex(source),
		lang:  e.lang,
		res:   result,
	}

	switch e.lang {
	case extract.LanguageRust:
		extractRust(f)
	case extract.LanguageGo:
		extractGo(f)
	default:
		result.AddError("%v", fmt.Errorf("%s: %w", e.lang, extract.ErrUnsupportedLanguage))
	}
	return result
}

// file carries one extraction's inputs between the pattern families.
type file struct {
	src   string // original source
	text  string // preprocessed source, same offsets
	lines *lineIndex
	lang  extract.Language
	res   *extract.FileExtractionResult
}

func (f *file) line(offset int) int {
	return f.lines.line(offset)
}

func (f *file) column(offset int) int {
	return f.lines.column(offset)
}
