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
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

// FileOp is the kind of a file system change.
type FileOp int

const (
	FileOpCreate FileOp = iota
	FileOpWrite
	FileOpRemove
	FileOpRename
)

// String returns the string representation of the operation.
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "create"
	case FileOpWrite:
		return "write"
	case FileOpRemove:
		return "remove"
	case FileOpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// FileChange is one relevant source file change.
type FileChange struct {
	// Rel is the slash-separated path relative to the project root.
	Rel  string
	Op   FileOp
	Time time.Time
}

// RescanHandler observes the outcome of each triggered rescan. It runs on
// the watcher's goroutine.
type RescanHandler func(changes []FileChange, report *Report, err error)

// WatchOptions configures the Watcher.
type WatchOptions struct {
	// Debounce is how long the tree must stay quiet before a rescan.
	// Default: 300ms
	Debounce time.Duration

	// MinInterval is the minimum time between two rescans.
	// Default: 2s
	MinInterval time.Duration

	// BufferSize is the size of the change channel. Default: 1000
	BufferSize int

	// OnRescan is called after every rescan. Optional.
	OnRescan RescanHandler
}

// DefaultWatchOptions returns the defaults.
func DefaultWatchOptions() WatchOptions {
	return WatchOptions{
		Debounce:    300 * time.Millisecond,
		MinInterval: 2 * time.Second,
		BufferSize:  1000,
	}
}

// Watcher rescans a project whenever its source files change.
//
// # Description
//
// Changes to files the walker would scan are collected until the debounce
// window passes without new changes. The batch then triggers one full
// rescan and save through the session; the graph is never patched
// incrementally. Rescans are throttled to at most one per MinInterval.
//
// # Thread Safety
//
// Start and Stop are safe for concurrent use. Rescans run on a single
// goroutine.
type Watcher struct {
	session  *Session
	walker   *Walker
	fsw      *fsnotify.Watcher
	debounce time.Duration
	limiter  *rate.Limiter
	onRescan RescanHandler
	logger   *slog.Logger

	changes  chan FileChange
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu       sync.Mutex
	watching bool
}

// NewWatcher creates a watcher for the session's project.
//
// Outputs:
//   - *Watcher: Call Start to begin watching.
//   - error: Walker setup or fsnotify failure.
func NewWatcher(session *Session, opts WatchOptions) (*Watcher, error) {
	defaults := DefaultWatchOptions()
	if opts.Debounce <= 0 {
		opts.Debounce = defaults.Debounce
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = defaults.MinInterval
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaults.BufferSize
	}

	walker, err := NewWalker(session.Root(), session.opts.Walk)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		session:  session,
		walker:   walker,
		fsw:      fsw,
		debounce: opts.Debounce,
		limiter:  rate.NewLimiter(rate.Every(opts.MinInterval), 1),
		onRescan: opts.OnRescan,
		logger:   session.logger,
		changes:  make(chan FileChange, opts.BufferSize),
		done:     make(chan struct{}),
	}, nil
}

// Start registers the project's directories and begins watching.
//
// Spawns the event processor and the debounce loop. Both exit when Stop
// is called or ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.addRecursive(w.walker.Root()); err != nil {
		return err
	}

	w.wg.Add(2)
	go w.processEvents(ctx)
	go w.debounceLoop(ctx)

	w.logger.Info("watching for changes",
		slog.String("root", w.walker.Root()),
		slog.Duration("debounce", w.debounce))
	return nil
}

// Stop stops watching and waits for an in-flight rescan to finish.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.fsw.Close()
		w.wg.Wait()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching returns true if the watcher is active.
func (w *Watcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watching
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != w.walker.Root() {
			if rel, ok := w.rel(path); ok && w.walker.SkipDir(rel) {
				return filepath.SkipDir
			}
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.walker.Root(), path)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			rel, ok := w.rel(event.Name)
			if !ok {
				continue
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !w.walker.SkipDir(rel) {
						if err := w.addRecursive(event.Name); err != nil {
							w.logger.Debug("watch new directory", slog.String("dir", rel), slog.String("error", err.Error()))
						}
					}
					continue
				}
			}
			if _, ok := w.walker.Accept(rel); !ok {
				continue
			}

			select {
			case w.changes <- FileChange{Rel: rel, Op: convertOp(event.Op), Time: time.Now()}:
			default:
				w.logger.Debug("change buffer full, dropping event", slog.String("file", rel))
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}

func convertOp(op fsnotify.Op) FileOp {
	switch {
	case op.Has(fsnotify.Create):
		return FileOpCreate
	case op.Has(fsnotify.Write):
		return FileOpWrite
	case op.Has(fsnotify.Remove):
		return FileOpRemove
	case op.Has(fsnotify.Rename):
		return FileOpRename
	default:
		return FileOpWrite
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()

	var batch []FileChange
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case change := <-w.changes:
			batch = append(batch, change)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer, timerC = nil, nil
			w.rescan(ctx, deduplicateChanges(batch))
			batch = batch[:0]
		}
	}
}

func (w *Watcher) rescan(ctx context.Context, changes []FileChange) {
	if err := w.limiter.Wait(ctx); err != nil {
		return
	}

	w.logger.Info("changes detected, rescanning", slog.Int("changed_files", len(changes)))
	report, err := w.session.Run(ctx)
	recordRescan(ctx, err == nil)
	if err != nil {
		w.logger.Warn("rescan failed", slog.String("error", err.Error()))
	}
	if w.onRescan != nil {
		w.onRescan(changes, report, err)
	}
}

// deduplicateChanges keeps the latest change per file, in first-seen order.
func deduplicateChanges(changes []FileChange) []FileChange {
	seen := make(map[string]int, len(changes))
	result := make([]FileChange, 0, len(changes))
	for _, c := range changes {
		if idx, ok := seen[c.Rel]; ok {
			result[idx] = c
			continue
		}
		seen[c.Rel] = len(result)
		result = append(result, c)
	}
	return result
}
