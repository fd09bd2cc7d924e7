// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"errors"
	"fmt"
)

// Sentinel errors for extraction failures.
//
// Extract never returns these; they surface from the lower-level
// TryExtract entry points used by the hybrid selector to decide on a
// fallback.
var (
	// ErrUnsupportedLanguage indicates that no extractor handles the file.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrParserUnavailable indicates that the grammar binding for a language
	// could not be loaded.
	ErrParserUnavailable = errors.New("parser unavailable")

	// ErrParseFailed indicates that the parser produced no tree.
	ErrParseFailed = errors.New("parse failed")

	// ErrEmptyResult indicates a parse that produced no functions,
	// containers or calls.
	ErrEmptyResult = errors.New("empty extraction result")
)

// ExtractError ties an extraction failure to a file and strategy.
type ExtractError struct {
	File     string
	Strategy Strategy
	Cause    error
}

// Error returns "strategy file: cause".
func (e *ExtractError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Strategy, e.File, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ExtractError) Unwrap() error {
	return e.Cause
}

// NewExtractError wraps cause with file and strategy context.
func NewExtractError(file string, strategy Strategy, cause error) *ExtractError {
	return &ExtractError{File: file, Strategy: strategy, Cause: cause}
}
