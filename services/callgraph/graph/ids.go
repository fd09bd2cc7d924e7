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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// BaseID derives a function ID from its identity:
// "file:qualifiedName:startLine#<first 8 bytes of sha256, hex>".
// The same triple always yields the same ID.
func BaseID(file, qualifiedName string, startLine int) string {
	key := fmt.Sprintf("%s:%s:%d", file, qualifiedName, startLine)
	sum := sha256.Sum256([]byte(key))
	return key + "#" + hex.EncodeToString(sum[:8])
}

// IDGenerator issues function IDs for one build.
//
// IDs are content-derived. When the same (file, qualifiedName, startLine)
// triple is issued again within the build, the repeat gets a "~N" suffix,
// N counting from 1 in issue order.
//
// Thread Safety: not safe for concurrent use. Create one per build.
type IDGenerator struct {
	issued map[string]int
}

// NewIDGenerator creates a generator with no IDs issued.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{issued: make(map[string]int)}
}

// ID issues the ID for a function.
func (g *IDGenerator) ID(file, qualifiedName string, startLine int) string {
	base := BaseID(file, qualifiedName, startLine)
	n := g.issued[base]
	g.issued[base] = n + 1
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s~%d", base, n)
}
