// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_InMemory(t *testing.T) {
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.Set(ctx, []byte("reach/a"), []byte(`{"n":1}`)))

	got, err := db.Get(ctx, []byte("reach/a"))
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"n":1}`), got)

	_, err = db.Get(ctx, []byte("reach/missing"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Empty(t, db.Path())
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, db.Set(ctx, []byte("k"), []byte("v")))
	require.NoError(t, db.Close())

	db, err = Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer db.Close()

	got, err := db.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	assert.Equal(t, dir, db.Path())
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/tmp/x")
	assert.Equal(t, "/tmp/x", cfg.Path)
	assert.False(t, cfg.InMemory)
	assert.Equal(t, 10*time.Minute, cfg.GCInterval)
	assert.Equal(t, 0.5, cfg.GCDiscardRatio)
}

func TestDB_DropPrefix(t *testing.T) {
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	for _, k := range []string{"reach/a", "reach/b", "other/c"} {
		require.NoError(t, db.Set(ctx, []byte(k), []byte("x")))
	}

	n, err := db.CountPrefix(ctx, []byte("reach/"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, db.DropPrefix(ctx, []byte("reach/")))

	n, err = db.CountPrefix(ctx, []byte("reach/"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = db.Get(ctx, []byte("other/c"))
	assert.NoError(t, err)
}

func TestDB_CancelledContext(t *testing.T) {
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, db.Set(ctx, []byte("k"), []byte("v")))
	_, err = db.Get(ctx, []byte("k"))
	assert.Error(t, err)
	assert.Error(t, db.DropPrefix(ctx, []byte("k")))
}

func TestDB_CloseStopsGC(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.GCInterval = time.Millisecond
	db, err := Open(cfg)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	assert.NoError(t, db.Close())
}
