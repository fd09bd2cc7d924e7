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
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialize_RoundTrip(t *testing.T) {
	res, err := NewAssembler(
		WithClock(fixedClock),
		WithProjectRoot("/p"),
		WithEntryPointClassifier(entryPointsByName{"main": true}),
		WithDataAccessClassifier(tableAccess{table: "users"}),
	).Build(context.Background(), projectResults())
	require.NoError(t, err)

	data, err := Serialize(res.Graph)
	require.NoError(t, err)

	back, err := Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, res.Graph, back)
}

func TestSerialize_Shape(t *testing.T) {
	res, err := NewAssembler(WithClock(fixedClock)).Build(context.Background(), projectResults())
	require.NoError(t, err)

	data, err := Serialize(res.Graph)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"version", "generatedAt", "projectRoot", "functions", "entryPoints", "dataAccessors", "stats"} {
		assert.Contains(t, raw, key)
	}
	assert.Equal(t, "2026-03-14T09:26:53Z", raw["generatedAt"])

	// Unresolved edges carry an explicit null callee.
	main := findNode(t, res.Graph, "src/a.rs", "main")
	functions := raw["functions"].(map[string]any)
	node := functions[main.ID].(map[string]any)
	calls := node["calls"].([]any)
	last := calls[len(calls)-1].(map[string]any)
	value, present := last["calleeId"]
	assert.True(t, present)
	assert.Nil(t, value)
}

func TestDeserialize_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"missing version", `{"functions":{}}`},
		{"null function", `{"version":"1.0.0","functions":{"a":null}}`},
		{"key mismatch", `{"version":"1.0.0","functions":{"a":{"id":"b"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Deserialize([]byte(tt.data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidGraph))
		})
	}
}

func TestDeserialize_FillsIDFromKey(t *testing.T) {
	g, err := Deserialize([]byte(`{"version":"1.0.0","functions":{"k":{"name":"f"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "k", g.Function("k").ID)
}

func TestSerialize_Nil(t *testing.T) {
	_, err := Serialize(nil)
	assert.True(t, errors.Is(err, ErrInvalidGraph))
}
