// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned by Save and WriteLake before Initialize.
	ErrNotInitialized = errors.New("store not initialized")

	// ErrCacheClear is returned by Save when the reachability cache could
	// not be cleared.
	ErrCacheClear = errors.New("reachability cache clear failed")

	// ErrNilGraph is returned when saving a nil graph.
	ErrNilGraph = errors.New("nil graph")

	// ErrNoGraph is returned when an operation needs a loaded graph.
	ErrNoGraph = errors.New("no graph loaded")

	// ErrUnsupportedVersion marks persisted data written by a newer major
	// version.
	ErrUnsupportedVersion = errors.New("unsupported graph version")
)

// LoadError describes why a loader could not produce a graph. Loaders
// degrade; a LoadError is logged and the next loader is tried.
type LoadError struct {
	// Loader is the Name of the loader that failed.
	Loader string

	// Path is the file being read.
	Path string

	// Err is the underlying error.
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s loader: %s: %v", e.Loader, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
