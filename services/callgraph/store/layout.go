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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// DriftDir is the per-project state directory.
const DriftDir = ".drift"

// maxCacheKeyLen is the longest key used verbatim as a file name.
const maxCacheKeyLen = 100

// Layout resolves the on-disk paths under a project root.
//
//	.drift/call-graph/graph.json
//	.drift/call-graph/reachability-cache/<key>.json
//	.drift/lake/callgraph/index.json
//	.drift/lake/callgraph/files/<shard>.json
type Layout struct {
	Root string
}

// CallGraphDir holds the legacy graph file and the cache directory.
func (l Layout) CallGraphDir() string {
	return filepath.Join(l.Root, DriftDir, "call-graph")
}

// GraphFile is the legacy single-file graph.
func (l Layout) GraphFile() string {
	return filepath.Join(l.CallGraphDir(), "graph.json")
}

// CacheDir holds reachability cache entries.
func (l Layout) CacheDir() string {
	return filepath.Join(l.CallGraphDir(), "reachability-cache")
}

// LakeDir is the root of the sharded lake.
func (l Layout) LakeDir() string {
	return filepath.Join(l.Root, DriftDir, "lake", "callgraph")
}

// LakeIndex is the lake's index file.
func (l Layout) LakeIndex() string {
	return filepath.Join(l.LakeDir(), "index.json")
}

// LakeFilesDir holds one shard per source file.
func (l Layout) LakeFilesDir() string {
	return filepath.Join(l.LakeDir(), "files")
}

// ShardName is the shard file name for a source file: the first 16 hex
// characters of sha256(file) plus ".json".
func ShardName(file string) string {
	sum := sha256.Sum256([]byte(file))
	return hex.EncodeToString(sum[:])[:16] + ".json"
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// CacheFileName maps a cache key to its file name. Characters outside
// [A-Za-z0-9._-] become "_" and the first 12 hex characters of sha256(key)
// are appended, so keys that sanitize alike keep distinct files. Keys
// longer than 100 characters are replaced by their full sha256 hex.
func CacheFileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	digest := hex.EncodeToString(sum[:])
	if len(key) > maxCacheKeyLen {
		return digest + ".json"
	}
	return unsafeKeyChars.ReplaceAllString(key, "_") + "-" + digest[:12] + ".json"
}

// writeFileAtomic writes data to path through a temp file in the same
// directory and a rename, so readers never see a partial file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tempFile, err := os.CreateTemp(dir, ".tmp-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}

	success = true
	return nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return writeFileAtomic(path, data)
}
