// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruizrica/drift-sub003/services/callgraph/store"
)

const mainRS = `fn main() {
    helper();
}

fn helper() {
    leaf();
}

fn leaf() {
}
`

func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "main.rs"), []byte(mainRS), 0644))
	return root
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decode(t *testing.T, s string, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(s), v), s)
}

func TestCLI_ScanAndQuery(t *testing.T) {
	root := newProject(t)

	out, err := run(t, "", "--root", root, "--json", "scan", "--lake")
	require.NoError(t, err)
	var report struct {
		FilesScanned int      `json:"filesScanned"`
		LakeWritten  bool     `json:"lakeWritten"`
		Errors       []string `json:"errors"`
	}
	decode(t, out, &report)
	assert.Equal(t, 1, report.FilesScanned)
	assert.True(t, report.LakeWritten)
	assert.Empty(t, report.Errors)

	out, err = run(t, "", "--root", root, "--json", "graph", "stats")
	require.NoError(t, err)
	var stats struct {
		TotalFunctions    int    `json:"totalFunctions"`
		TotalCallSites    int    `json:"totalCallSites"`
		ResolvedCallSites int    `json:"resolvedCallSites"`
		EntryPoints       int    `json:"entryPoints"`
		Source            string `json:"source"`
	}
	decode(t, out, &stats)
	assert.Equal(t, 3, stats.TotalFunctions)
	// Loaded from the lake, whose outgoing edges come back unresolved.
	assert.Equal(t, 2, stats.TotalCallSites)
	assert.Equal(t, 0, stats.ResolvedCallSites)
	assert.Equal(t, 1, stats.EntryPoints)
	assert.Equal(t, "lake", stats.Source)

	out, err = run(t, "", "--root", root, "--json", "graph", "at", "src/main.rs", "2")
	require.NoError(t, err)
	var fn struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	decode(t, out, &fn)
	assert.Equal(t, "main", fn.Name)

	// The lake keeps incoming edges resolved, so walk callers from the leaf.
	out, err = run(t, "", "--root", root, "--json", "graph", "at", "src/main.rs", "9")
	require.NoError(t, err)
	var leaf struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	decode(t, out, &leaf)
	require.Equal(t, "leaf", leaf.Name)

	out, err = run(t, "", "--root", root, "--json", "graph", "callers", leaf.ID, "--depth", "2")
	require.NoError(t, err)
	var res struct {
		Reached []struct {
			ID    string `json:"id"`
			Depth int    `json:"depth"`
		} `json:"reached"`
	}
	decode(t, out, &res)
	require.Len(t, res.Reached, 2)
	assert.Equal(t, 1, res.Reached[0].Depth)
	assert.Equal(t, 2, res.Reached[1].Depth)

	out, err = run(t, "", "--root", root, "--plain", "graph", "file", "src/main.rs")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "\n"))
	assert.Contains(t, out, "helper")

	out, err = run(t, "", "--root", root, "--plain", "cache", "clear")
	require.NoError(t, err)
	assert.Equal(t, "OK: cache cleared\n", out)
}

func TestCLI_Changes(t *testing.T) {
	root := newProject(t)
	_, err := run(t, "", "--root", root, "scan")
	require.NoError(t, err)

	layout := store.Layout{Root: root}
	before := filepath.Join(t.TempDir(), "before.json")
	data, err := os.ReadFile(layout.GraphFile())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(before, data, 0644))

	updated := strings.Replace(mainRS, "fn leaf() {\n}\n", "fn extra() {\n}\n", 1)
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "main.rs"), []byte(updated), 0644))
	_, err = run(t, "", "--root", root, "scan")
	require.NoError(t, err)

	out, err := run(t, "", "--root", root, "--json", "changes", "--since-graph", before)
	require.NoError(t, err)
	var report struct {
		Changes []struct {
			Kind          string `json:"kind"`
			QualifiedName string `json:"qualifiedName"`
		} `json:"changes"`
	}
	decode(t, out, &report)
	kinds := map[string]string{}
	for _, c := range report.Changes {
		kinds[c.QualifiedName] = c.Kind
	}
	assert.Equal(t, "added", kinds["extra"])
	assert.Equal(t, "removed", kinds["leaf"])

	diff := `--- a/src/main.rs
+++ b/src/main.rs
@@ -1,3 +1,3 @@
 fn main() {
-    helper();
+    helper(); // call
 }
`
	out, err = run(t, diff, "--root", root, "--json", "changes", "--diff", "-")
	require.NoError(t, err)
	var touched []struct {
		QualifiedName string `json:"qualifiedName"`
		Lines         []int  `json:"lines"`
	}
	decode(t, out, &touched)
	require.Len(t, touched, 1)
	assert.Equal(t, "main", touched[0].QualifiedName)
	assert.Equal(t, []int{2}, touched[0].Lines)
}

func TestCLI_Errors(t *testing.T) {
	root := newProject(t)

	_, err := run(t, "", "--root", root, "graph", "stats")
	assert.True(t, errors.Is(err, store.ErrNoGraph))

	_, err = run(t, "", "--root", root, "scan")
	require.NoError(t, err)

	_, err = run(t, "", "--root", root, "graph", "function", "nope")
	assert.True(t, errors.Is(err, errFunctionNotFound))

	_, err = run(t, "", "--root", root, "graph", "at", "src/main.rs", "zero")
	assert.Error(t, err)

	_, err = run(t, "", "--root", root, "changes")
	assert.Error(t, err)

	_, err = run(t, "", "--root", root, "--log-level", "loud", "graph", "stats")
	assert.Error(t, err)
}

func TestCLI_BadgerCacheBackend(t *testing.T) {
	root := newProject(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".drift"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".drift", "config.yaml"),
		[]byte("cache:\n  backend: badger\n  memo_size: 0\nextraction:\n  structured: false\n"), 0644))

	_, err := run(t, "", "--root", root, "scan")
	require.NoError(t, err)

	out, err := run(t, "", "--root", root, "--json", "graph", "at", "src/main.rs", "6")
	require.NoError(t, err)
	var fn struct {
		ID string `json:"id"`
	}
	decode(t, out, &fn)

	// Second run is served from the badger cache.
	for i := 0; i < 2; i++ {
		out, err = run(t, "", "--root", root, "--json", "graph", "callees", fn.ID)
		require.NoError(t, err)
		var res struct {
			Reached []struct {
				ID string `json:"id"`
			} `json:"reached"`
		}
		decode(t, out, &res)
		require.Len(t, res.Reached, 1)
		assert.Contains(t, res.Reached[0].ID, ":leaf:")
	}
}
