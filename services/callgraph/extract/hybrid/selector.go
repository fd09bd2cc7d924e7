// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hybrid chooses an extraction strategy per file.
//
// The structured strategy is used when its grammar is available and it
// produces something; otherwise the pattern strategy's result is used.
// Exactly one strategy's result is returned for a file. Results are never
// merged field by field.
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruizrica/drift-sub003/services/callgraph/extract"
	"github.com/ruizrica/drift-sub003/services/callgraph/extract/pattern"
	"github.com/ruizrica/drift-sub003/services/callgraph/extract/structured"
)

// Fallback reasons reported to metrics and logs.
const (
	ReasonUnavailable = "unavailable"
	ReasonError       = "error"
	ReasonPanic       = "panic"
	ReasonEmpty       = "empty"
)

// StructuredExtractor is the part of the structured strategy the selector
// relies on. *structured.Extractor implements it.
type StructuredExtractor interface {
	TryExtract(ctx context.Context, source []byte, filePath string) (*extract.FileExtractionResult, error)
	Close() error
}

// Selector runs the hybrid decision for every language it meets.
//
// # Thread Safety
//
// Not safe for concurrent use: it owns structured parsers. A parallel scan
// creates one Selector per worker and closes it when the worker exits.
type Selector struct {
	probe     func(extract.Language) bool
	factory   func(extract.Language) StructuredExtractor
	maxDepth  int
	logger    *slog.Logger
	languages map[extract.Language]*languageState
}

type languageState struct {
	probed     bool
	available  bool
	structured StructuredExtractor
	pattern    *pattern.Extractor
}

// Option configures a Selector.
type Option func(*Selector)

// WithProbe replaces structured.Probe as the availability check.
func WithProbe(probe func(extract.Language) bool) Option {
	return func(s *Selector) {
		if probe != nil {
			s.probe = probe
		}
	}
}

// WithStructuredFactory replaces the constructor of structured
// extractors. Mostly useful in tests.
func WithStructuredFactory(factory func(extract.Language) StructuredExtractor) Option {
	return func(s *Selector) {
		if factory != nil {
			s.factory = factory
		}
	}
}

// WithMaxDepth sets the depth cap passed to structured extractors created
// by the default factory.
func WithMaxDepth(depth int) Option {
	return func(s *Selector) {
		s.maxDepth = depth
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Selector) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Selector.
func New(opts ...Option) *Selector {
	s := &Selector{
		probe:     structured.Probe,
		maxDepth:  structured.DefaultMaxDepth,
		logger:    slog.Default(),
		languages: make(map[extract.Language]*languageState),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.factory == nil {
		s.factory = func(lang extract.Language) StructuredExtractor {
			return structured.New(lang, structured.WithMaxDepth(s.maxDepth), structured.WithLogger(s.logger))
		}
	}
	return s
}

func (s *Selector) state(lang extract.Language) *languageState {
	st, ok := s.languages[lang]
	if !ok {
		st = &languageState{pattern: pattern.New(lang, pattern.WithLogger(s.logger))}
		s.languages[lang] = st
	}
	if !st.probed {
		st.probed = true
		st.available = s.probe(lang)
		if !st.available {
			s.logger.Info("structured extraction unavailable, using patterns",
				slog.String("language", string(lang)))
		}
	}
	return st
}

// Extract returns one file's extraction result.
//
// Description:
//
//	If the structured strategy is unavailable for lang the pattern
//	strategy runs alone. Otherwise the structured strategy runs first; an
//	error, a panic or an empty result (no functions, containers or calls)
//	discards its result and the pattern strategy's is returned instead.
//	An error wrapping extract.ErrParserUnavailable also marks the language
//	unavailable for the rest of this selector's life.
//
// Inputs:
//   - ctx: Passed to the strategies.
//   - lang: Language of the file.
//   - source: File content.
//   - filePath: Project-relative path.
//
// Outputs:
//   - *extract.FileExtractionResult: Never nil. Strategy records which
//     strategy produced it.
func (s *Selector) Extract(ctx context.Context, lang extract.Language, source []byte, filePath string) *extract.FileExtractionResult {
	st := s.state(lang)
	if !st.available {
		return st.pattern.Extract(ctx, source, filePath)
	}

	if st.structured == nil {
		st.structured = s.factory(lang)
	}
	res, err := s.tryStructured(ctx, st.structured, source, filePath)

	reason := ""
	switch {
	case errors.Is(err, errPanicked):
		reason = ReasonPanic
	case errors.Is(err, extract.ErrParserUnavailable):
		reason = ReasonUnavailable
		st.available = false
		s.logger.Warn("structured parser became unavailable",
			slog.String("language", string(lang)),
			slog.String("error", err.Error()))
	case err != nil:
		reason = ReasonError
	case res == nil || res.IsEmpty():
		reason = ReasonEmpty
	default:
		return res
	}

	s.logger.Debug("falling back to pattern extraction",
		slog.String("file", filePath),
		slog.String("reason", reason))
	extract.RecordFallback(ctx, lang, reason)
	return st.pattern.Extract(ctx, source, filePath)
}

var errPanicked = errors.New("structured extractor panicked")

func (s *Selector) tryStructured(ctx context.Context, e StructuredExtractor, source []byte, filePath string) (res *extract.FileExtractionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("%w: %v", errPanicked, r)
		}
	}()
	return e.TryExtract(ctx, source, filePath)
}

// ExtractFile detects the language from the path and extracts.
func (s *Selector) ExtractFile(ctx context.Context, source []byte, filePath string) (*extract.FileExtractionResult, error) {
	lang, ok := extract.DetectLanguage(filePath)
	if !ok {
		return nil, fmt.Errorf("%s: %w", filePath, extract.ErrUnsupportedLanguage)
	}
	return s.Extract(ctx, lang, source, filePath), nil
}

// Close releases every structured extractor the selector created.
func (s *Selector) Close() error {
	var errs []error
	for _, st := range s.languages {
		if st.structured != nil {
			if err := st.structured.Close(); err != nil {
				errs = append(errs, err)
			}
			st.structured = nil
		}
	}
	return errors.Join(errs...)
}
