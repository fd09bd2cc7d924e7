// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/ruizrica/drift-sub003/services/callgraph/extract"
)

// DefaultMaxFileSize is the largest file read by default (1 MiB).
const DefaultMaxFileSize int64 = 1 << 20

// DefaultMaxLines is the longest file extracted by default.
const DefaultMaxLines = 50000

// defaultExcludedDirs are never descended into.
var defaultExcludedDirs = map[string]struct{}{
	".git":         {},
	".drift":       {},
	".hg":          {},
	".svn":         {},
	".idea":        {},
	".vscode":      {},
	"node_modules": {},
	"vendor":       {},
	"target":       {},
	"dist":         {},
	"build":        {},
	"testdata":     {},
}

// WalkOptions configures file discovery.
type WalkOptions struct {
	// Include patterns are matched against the slash-separated relative
	// path. Empty includes every file of a supported language.
	Include []string

	// Exclude patterns win over Include.
	Exclude []string

	// MaxFileSize skips larger files. Default: DefaultMaxFileSize.
	MaxFileSize int64

	// MaxLines skips files with more lines at read time.
	// Default: DefaultMaxLines.
	MaxLines int

	// RespectGitignore applies the root .gitignore.
	RespectGitignore bool
}

// DefaultWalkOptions returns the options used when none are given.
func DefaultWalkOptions() WalkOptions {
	return WalkOptions{
		MaxFileSize:      DefaultMaxFileSize,
		MaxLines:         DefaultMaxLines,
		RespectGitignore: true,
	}
}

// File is one discovered source file.
type File struct {
	// Path is the absolute path.
	Path string

	// Rel is the slash-separated path relative to the project root. It is
	// the file identity recorded in the graph.
	Rel string

	Language extract.Language
	Size     int64
}

var (
	// ErrInvalidPattern indicates a glob pattern could not be compiled.
	ErrInvalidPattern = errors.New("invalid glob pattern")

	// ErrRootNotDir indicates the project root is missing or not a directory.
	ErrRootNotDir = errors.New("project root is not a directory")
)

// Walker discovers the source files of a project.
type Walker struct {
	root      string
	opts      WalkOptions
	include   []glob.Glob
	exclude   []glob.Glob
	gitignore *ignore.GitIgnore
}

// NewWalker compiles the patterns for a walk of root.
//
// Outputs:
//   - *Walker: Ready to walk.
//   - error: ErrRootNotDir or ErrInvalidPattern.
func NewWalker(root string, opts WalkOptions) (*Walker, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotDir, root)
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.MaxLines <= 0 {
		opts.MaxLines = DefaultMaxLines
	}

	w := &Walker{root: root, opts: opts}
	if w.include, err = compileGlobs(opts.Include); err != nil {
		return nil, err
	}
	if w.exclude, err = compileGlobs(opts.Exclude); err != nil {
		return nil, err
	}

	if opts.RespectGitignore {
		path := filepath.Join(root, ".gitignore")
		if _, statErr := os.Stat(path); statErr == nil {
			gi, err := ignore.CompileIgnoreFile(path)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			w.gitignore = gi
		}
	}
	return w, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	matchers := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, errors.Join(fmt.Errorf("%w: %q", ErrInvalidPattern, p), err)
		}
		matchers = append(matchers, g)
	}
	return matchers, nil
}

// Root returns the walked directory.
func (w *Walker) Root() string {
	return w.root
}

// MaxLines returns the line cap applied by the session.
func (w *Walker) MaxLines() int {
	return w.opts.MaxLines
}

// Walk returns the matching files sorted by relative path.
//
// Unreadable entries are skipped. The only error is context cancellation.
func (w *Walker) Walk(ctx context.Context) ([]File, error) {
	var files []File
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			return nil
		}
		if path == w.root {
			return nil
		}

		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if w.SkipDir(rel) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		lang, ok := w.Accept(rel)
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > w.opts.MaxFileSize {
			return nil
		}
		files = append(files, File{Path: path, Rel: rel, Language: lang, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Rel < files[j].Rel })
	return files, nil
}

// SkipDir reports whether the directory at rel is pruned.
func (w *Walker) SkipDir(rel string) bool {
	if _, excluded := defaultExcludedDirs[filepath.Base(rel)]; excluded {
		return true
	}
	if w.gitignore != nil && w.gitignore.MatchesPath(rel+"/") {
		return true
	}
	return matchAny(w.exclude, rel)
}

// Accept reports whether the file at rel is scanned and its language.
func (w *Walker) Accept(rel string) (extract.Language, bool) {
	lang, ok := extract.DetectLanguage(rel)
	if !ok {
		return "", false
	}
	if len(w.include) > 0 && !matchAny(w.include, rel) {
		return "", false
	}
	if matchAny(w.exclude, rel) {
		return "", false
	}
	if w.gitignore != nil && w.gitignore.MatchesPath(rel) {
		return "", false
	}
	return lang, true
}

func matchAny(globs []glob.Glob, rel string) bool {
	for _, g := range globs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}
