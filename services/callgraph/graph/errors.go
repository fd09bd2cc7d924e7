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
	"errors"
	"fmt"
)

// Sentinel errors for graph operations.
var (
	// ErrBuildCancelled is returned when a build is cancelled via context.
	ErrBuildCancelled = errors.New("build cancelled")

	// ErrInvalidGraph is returned when serialized graph data is malformed.
	ErrInvalidGraph = errors.New("invalid graph")

	// ErrNilResult marks a nil extraction result passed to a build.
	ErrNilResult = errors.New("nil extraction result")

	// ErrExtractionErrors marks a file whose extraction recorded errors.
	// The file is still represented in the graph.
	ErrExtractionErrors = errors.New("extraction reported errors")
)

// FileError describes a problem with one input file.
type FileError struct {
	// FilePath is the path to the file.
	FilePath string

	// Err is the underlying error.
	Err error
}

func (e FileError) Error() string {
	return fmt.Sprintf("file %s: %v", e.FilePath, e.Err)
}

func (e FileError) Unwrap() error {
	return e.Err
}
