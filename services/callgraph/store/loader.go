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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/mod/semver"

	"github.com/ruizrica/drift-sub003/services/callgraph/graph"
)

// Loader reads one persisted graph format.
//
// Load returns (nil, nil) when its format is absent, and a *LoadError
// when the format is present but unusable. Either way the Store moves on
// to the next loader.
type Loader interface {
	Name() string
	Load(ctx context.Context, layout Layout) (*graph.CallGraph, error)
}

// DefaultLoaders returns the loaders in preference order: the sharded lake,
// then the legacy single file.
func DefaultLoaders(logger *slog.Logger) []Loader {
	return []Loader{
		&LakeLoader{logger: logger},
		&LegacyLoader{},
	}
}

// ErrUnknownLoader is returned by LoadersByName for an unrecognized name.
var ErrUnknownLoader = errors.New("unknown loader")

// LoadersByName builds loaders in the given order. Names are "lake" and
// "legacy".
func LoadersByName(names []string, logger *slog.Logger) ([]Loader, error) {
	loaders := make([]Loader, 0, len(names))
	for _, name := range names {
		switch name {
		case "lake":
			loaders = append(loaders, &LakeLoader{logger: logger})
		case "legacy":
			loaders = append(loaders, &LegacyLoader{})
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownLoader, name)
		}
	}
	return loaders, nil
}

// checkVersion rejects data whose major version is newer than Version.
func checkVersion(version string) error {
	v := "v" + version
	if !semver.IsValid(v) {
		return fmt.Errorf("%w: %q is not a semantic version", ErrUnsupportedVersion, version)
	}
	if semver.Compare(semver.Major(v), semver.Major("v"+graph.Version)) > 0 {
		return fmt.Errorf("%w: %s is newer than %s", ErrUnsupportedVersion, version, graph.Version)
	}
	return nil
}

// LegacyLoader reads .drift/call-graph/graph.json.
type LegacyLoader struct{}

// Name implements Loader.
func (l *LegacyLoader) Name() string { return "legacy" }

// Load implements Loader.
func (l *LegacyLoader) Load(ctx context.Context, layout Layout) (*graph.CallGraph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := layout.GraphFile()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &LoadError{Loader: l.Name(), Path: path, Err: err}
	}

	g, err := graph.Deserialize(data)
	if err != nil {
		return nil, &LoadError{Loader: l.Name(), Path: path, Err: err}
	}
	if err := checkVersion(g.Version); err != nil {
		return nil, &LoadError{Loader: l.Name(), Path: path, Err: err}
	}
	return g, nil
}

var (
	_ Loader = (*LegacyLoader)(nil)
	_ Loader = (*LakeLoader)(nil)
)
