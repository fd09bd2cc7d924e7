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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ruizrica/drift-sub003/services/callgraph/extract"
	"github.com/ruizrica/drift-sub003/services/callgraph/store"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func rels(files []File) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Rel)
	}
	return out
}

func TestWalker_Filters(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/a.rs":          "fn a() {}\n",
		"src/b.go":          "package src\n",
		"src/skip_test.go":  "package src\n",
		"README.md":         "# readme\n",
		"target/debug/x.rs": "fn x() {}\n",
		"vendor/y.go":       "package y\n",
		"ignored/z.rs":      "fn z() {}\n",
		"gen/big.rs":        strings.Repeat("// filler\n", 200),
		".gitignore":        "ignored/\n",
	})

	tests := []struct {
		name string
		opts WalkOptions
		want []string
	}{
		{
			name: "defaults",
			opts: DefaultWalkOptions(),
			want: []string{"gen/big.rs", "src/a.rs", "src/b.go", "src/skip_test.go"},
		},
		{
			name: "exclude and size cap",
			opts: WalkOptions{Exclude: []string{"**_test.go"}, MaxFileSize: 100, RespectGitignore: true},
			want: []string{"src/a.rs", "src/b.go"},
		},
		{
			name: "include",
			opts: WalkOptions{Include: []string{"src/*.rs"}, RespectGitignore: true},
			want: []string{"src/a.rs"},
		},
		{
			name: "gitignore off",
			opts: WalkOptions{Include: []string{"**.rs"}},
			want: []string{"gen/big.rs", "ignored/z.rs", "src/a.rs"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewWalker(root, tt.opts)
			require.NoError(t, err)
			files, err := w.Walk(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, rels(files))
		})
	}
}

func TestWalker_Language(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.rs": "fn a() {}\n", "b.go": "package b\n"})

	w, err := NewWalker(root, DefaultWalkOptions())
	require.NoError(t, err)
	files, err := w.Walk(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, extract.LanguageRust, files[0].Language)
	assert.Equal(t, extract.LanguageGo, files[1].Language)
	assert.Equal(t, filepath.Join(root, "a.rs"), files[0].Path)
}

func TestNewWalker_Errors(t *testing.T) {
	_, err := NewWalker(filepath.Join(t.TempDir(), "missing"), DefaultWalkOptions())
	assert.True(t, errors.Is(err, ErrRootNotDir))

	_, err = NewWalker(t.TempDir(), WalkOptions{Exclude: []string{"["}})
	assert.True(t, errors.Is(err, ErrInvalidPattern))
}

var rustProject = map[string]string{
	"src/main.rs": `fn main() {
    helper();
}

fn helper() {
    let x = 1;
}
`,
	"src/db.rs": `pub fn load(pool: &Pool) {
    pool.fetch_one("select 1");
}
`,
}

func newSession(t *testing.T, root string, opts ...Option) (*Session, *store.Store) {
	t.Helper()
	st, err := store.New(root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return NewSession(st, append([]Option{WithWorkers(2)}, opts...)...), st
}

func TestSession_Run(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, rustProject)

	session, st := newSession(t, root, WithLake(true))
	report, err := session.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, session.ID, report.SessionID)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 2, report.FilesScanned)
	assert.Zero(t, report.FilesSkipped)
	assert.Empty(t, report.Errors)
	assert.True(t, report.LakeWritten)
	assert.Equal(t, 3, report.Stats.TotalFunctions)

	total := 0
	for _, n := range report.ByStrategy {
		total += n
	}
	assert.Equal(t, 2, total)

	assert.Equal(t, store.StateSaved, st.State())
	_, err = os.Stat(st.Layout().GraphFile())
	require.NoError(t, err)
	_, err = os.Stat(st.Layout().LakeIndex())
	require.NoError(t, err)

	main := st.GetFunctionAtLine("src/main.rs", 2)
	require.NotNil(t, main)
	assert.Equal(t, "main", main.Name)
	assert.Contains(t, st.EntryPoints(), main.ID)

	var helperEdge bool
	for _, c := range main.Calls {
		if c.CalleeName == "helper" {
			helperEdge = c.Resolved && c.CalleeID != nil
		}
	}
	assert.True(t, helperEdge, "main -> helper should resolve")

	load := st.GetFunctionAtLine("src/db.rs", 2)
	require.NotNil(t, load)
	assert.Contains(t, st.DataAccessors(), load.ID)
}

func TestSession_RescanWritesLakeOnce(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	root := t.TempDir()
	writeTree(t, root, rustProject)
	session, st := newSession(t, root, WithLake(true))

	ctx := context.Background()
	_, err := session.Run(ctx)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "src", "db.rs")))
	report, err := session.Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.LakeWritten)

	saves, lakeWrites := 0, 0
	for _, span := range recorder.Ended() {
		switch span.Name() {
		case "Store.Save":
			saves++
		case "Store.WriteLake":
			lakeWrites++
		}
	}
	assert.Equal(t, 2, saves)
	assert.Zero(t, lakeWrites, "the lake is written inside Save")

	lake, err := (&store.LakeLoader{}).Load(ctx, st.Layout())
	require.NoError(t, err)
	require.NotNil(t, lake)
	assert.Len(t, lake.Functions, 2, "the removed file left the lake")
	assert.Empty(t, lake.FunctionsInFile("src/db.rs"))
}

func TestSession_LineCap(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, rustProject)
	writeTree(t, root, map[string]string{"src/long.rs": strings.Repeat("fn f() {}\n", 10)})

	walk := DefaultWalkOptions()
	walk.MaxLines = 9
	session, _ := newSession(t, root, WithWalkOptions(walk))

	report, err := session.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.FilesScanned)
	assert.Equal(t, 1, report.FilesSkipped)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "src/long.rs", report.Errors[0].FilePath)
	assert.True(t, errors.Is(report.Errors[0], ErrFileTooLong))
}

func TestSession_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, rustProject)
	session, st := newSession(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := session.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Nil(t, st.Graph())
}

func TestSession_RescanReplacesGraph(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, rustProject)
	session, st := newSession(t, root)

	_, err := session.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(root, "src", "db.rs")))

	report, err := session.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesScanned)
	assert.Empty(t, st.GetFunctionsInFile("src/db.rs"))
}

func TestDeduplicateChanges(t *testing.T) {
	now := time.Now()
	in := []FileChange{
		{Rel: "a.rs", Op: FileOpCreate, Time: now},
		{Rel: "b.rs", Op: FileOpWrite, Time: now},
		{Rel: "a.rs", Op: FileOpWrite, Time: now.Add(time.Millisecond)},
	}
	out := deduplicateChanges(in)
	require.Len(t, out, 2)
	assert.Equal(t, "a.rs", out[0].Rel)
	assert.Equal(t, FileOpWrite, out[0].Op)
	assert.Equal(t, "b.rs", out[1].Rel)
}

func TestFileOp_String(t *testing.T) {
	assert.Equal(t, "create", FileOpCreate.String())
	assert.Equal(t, "rename", FileOpRename.String())
	assert.Equal(t, "unknown", FileOp(42).String())
}

func TestWatcher_RescansOnChange(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, rustProject)
	session, st := newSession(t, root)

	_, err := session.Run(context.Background())
	require.NoError(t, err)

	rescans := make(chan *Report, 4)
	w, err := NewWatcher(session, WatchOptions{
		Debounce:    20 * time.Millisecond,
		MinInterval: 10 * time.Millisecond,
		OnRescan: func(_ []FileChange, report *Report, err error) {
			if err == nil {
				rescans <- report
			}
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()
	assert.True(t, w.IsWatching())

	writeTree(t, root, map[string]string{"src/extra.rs": "fn extra() {}\n"})

	select {
	case report := <-rescans:
		assert.Equal(t, 3, report.FilesScanned)
	case <-time.After(5 * time.Second):
		t.Fatal("no rescan after file change")
	}
	assert.NotEmpty(t, st.GetFunctionsInFile("src/extra.rs"))

	w.Stop()
	assert.False(t, w.IsWatching())
}
