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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	badgerstore "github.com/ruizrica/drift-sub003/services/callgraph/storage/badger"
)

// Cache is a keyed store of JSON payloads for reachability results.
//
// Entries have no TTL. A missing or corrupt entry is a miss. The Store
// clears the whole cache on every Save.
type Cache interface {
	// Get returns the payload and true on a hit.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Put stores a JSON payload.
	Put(ctx context.Context, key string, data []byte) error

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// FileCache stores one JSON file per key in a directory.
//
// Thread Safety: safe for concurrent use; writes are atomic renames.
type FileCache struct {
	dir string
}

// NewFileCache creates a cache rooted at dir. The directory is created on
// first write.
func NewFileCache(dir string) *FileCache {
	return &FileCache{dir: dir}
}

// Dir returns the cache directory.
func (c *FileCache) Dir() string {
	return c.dir
}

// Get implements Cache.
func (c *FileCache) Get(_ context.Context, key string) ([]byte, bool) {
	data, err := os.ReadFile(filepath.Join(c.dir, CacheFileName(key)))
	if err != nil || !json.Valid(data) {
		return nil, false
	}
	return data, true
}

// Put implements Cache.
func (c *FileCache) Put(_ context.Context, key string, data []byte) error {
	if err := os.MkdirAll(c.dir, 0750); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	return writeFileAtomic(filepath.Join(c.dir, CacheFileName(key)), data)
}

// Clear implements Cache. The directory itself is kept.
func (c *FileCache) Clear(_ context.Context) error {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read cache dir: %w", err)
	}
	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Cache.
func (c *FileCache) Close() error {
	return nil
}

// badgerKeyPrefix namespaces cache entries inside the database.
var badgerKeyPrefix = []byte("reach/")

// BadgerCache stores entries in a BadgerDB it owns.
type BadgerCache struct {
	db *badgerstore.DB
}

// NewBadgerCache wraps an open database. Close closes it.
func NewBadgerCache(db *badgerstore.DB) *BadgerCache {
	return &BadgerCache{db: db}
}

// OpenBadgerCache opens a database at dir and wraps it.
func OpenBadgerCache(dir string) (*BadgerCache, error) {
	db, err := badgerstore.Open(badgerstore.DefaultConfig(dir))
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	return NewBadgerCache(db), nil
}

func badgerKey(key string) []byte {
	return append(append([]byte{}, badgerKeyPrefix...), key...)
}

// Get implements Cache.
func (c *BadgerCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.db.Get(ctx, badgerKey(key))
	if err != nil || !json.Valid(data) {
		return nil, false
	}
	return data, true
}

// Put implements Cache.
func (c *BadgerCache) Put(ctx context.Context, key string, data []byte) error {
	return c.db.Set(ctx, badgerKey(key), data)
}

// Clear implements Cache.
func (c *BadgerCache) Clear(ctx context.Context) error {
	return c.db.DropPrefix(ctx, badgerKeyPrefix)
}

// Close implements Cache.
func (c *BadgerCache) Close() error {
	return c.db.Close()
}

// DefaultMemoSize is the default number of entries kept in memory.
const DefaultMemoSize = 256

// MemoCache keeps recently used entries in an LRU in front of another
// Cache. Writes go through to the backing cache.
type MemoCache struct {
	backing Cache
	memo    *lru.Cache[string, []byte]
}

// NewMemoCache wraps backing with an LRU of size entries.
func NewMemoCache(backing Cache, size int) (*MemoCache, error) {
	if size <= 0 {
		size = DefaultMemoSize
	}
	memo, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("create memo cache: %w", err)
	}
	return &MemoCache{backing: backing, memo: memo}, nil
}

// Get implements Cache.
func (c *MemoCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if data, ok := c.memo.Get(key); ok {
		return append([]byte(nil), data...), true
	}
	data, ok := c.backing.Get(ctx, key)
	if ok {
		c.memo.Add(key, append([]byte(nil), data...))
	}
	return data, ok
}

// Put implements Cache. The memo is only updated when the write succeeds.
func (c *MemoCache) Put(ctx context.Context, key string, data []byte) error {
	if err := c.backing.Put(ctx, key, data); err != nil {
		c.memo.Remove(key)
		return err
	}
	c.memo.Add(key, append([]byte(nil), data...))
	return nil
}

// Clear implements Cache.
func (c *MemoCache) Clear(ctx context.Context) error {
	c.memo.Purge()
	return c.backing.Clear(ctx)
}

// Close implements Cache.
func (c *MemoCache) Close() error {
	c.memo.Purge()
	return c.backing.Close()
}

var (
	_ Cache = (*FileCache)(nil)
	_ Cache = (*BadgerCache)(nil)
	_ Cache = (*MemoCache)(nil)
)
