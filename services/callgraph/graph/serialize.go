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
	"encoding/json"
	"fmt"
)

// Serialize encodes g as indented JSON. The functions map is written as a
// plain object keyed by ID.
func Serialize(g *CallGraph) ([]byte, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil graph", ErrInvalidGraph)
	}
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal graph: %w", err)
	}
	return data, nil
}

// Deserialize decodes a graph written by Serialize.
//
// A missing version or a node whose id disagrees with its map key makes
// the data invalid. Nodes without an id take the key.
func Deserialize(data []byte) (*CallGraph, error) {
	var g CallGraph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGraph, err)
	}
	if g.Version == "" {
		return nil, fmt.Errorf("%w: missing version", ErrInvalidGraph)
	}
	if g.Functions == nil {
		g.Functions = make(map[string]*FunctionNode)
	}
	for id, fn := range g.Functions {
		if fn == nil {
			return nil, fmt.Errorf("%w: null function %q", ErrInvalidGraph, id)
		}
		if fn.ID == "" {
			fn.ID = id
		}
		if fn.ID != id {
			return nil, fmt.Errorf("%w: function key %q holds id %q", ErrInvalidGraph, id, fn.ID)
		}
	}
	return &g, nil
}
