// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hybrid

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruizrica/drift-sub003/services/callgraph/extract"
)

const addSource = `pub fn add(a: i32, b: i32) -> i32 { a + b }`

// fakeStructured returns canned results and counts its calls.
type fakeStructured struct {
	result *extract.FileExtractionResult
	err    error
	panics bool
	calls  int
	closed int
}

func (f *fakeStructured) TryExtract(_ context.Context, _ []byte, filePath string) (*extract.FileExtractionResult, error) {
	f.calls++
	if f.panics {
		panic("grammar exploded")
	}
	if f.result != nil {
		return f.result, f.err
	}
	return extract.NewResult(filePath, extract.LanguageRust, extract.StrategyStructured), f.err
}

func (f *fakeStructured) Close() error {
	f.closed++
	return nil
}

func newSelector(fake *fakeStructured, available bool) (*Selector, *int) {
	factoryCalls := 0
	s := New(
		WithProbe(func(extract.Language) bool { return available }),
		WithStructuredFactory(func(extract.Language) StructuredExtractor {
			factoryCalls++
			return fake
		}),
	)
	return s, &factoryCalls
}

func TestSelector_ProbeUnavailableUsesPatternOnly(t *testing.T) {
	fake := &fakeStructured{}
	s, factoryCalls := newSelector(fake, false)
	defer s.Close()

	res := s.Extract(context.Background(), extract.LanguageRust, []byte(addSource), "lib.rs")

	assert.Equal(t, extract.StrategyPattern, res.Strategy)
	require.Len(t, res.Functions, 1)
	assert.Equal(t, "add", res.Functions[0].Name)
	assert.Equal(t, 0, *factoryCalls)
	assert.Equal(t, 0, fake.calls)
}

func TestSelector_Fallbacks(t *testing.T) {
	productive := extract.NewResult("lib.rs", extract.LanguageRust, extract.StrategyStructured)
	productive.Functions = append(productive.Functions, extract.FunctionInfo{Name: "from_tree", QualifiedName: "from_tree", StartLine: 1, EndLine: 1})

	tests := []struct {
		name         string
		fake         *fakeStructured
		wantStrategy extract.Strategy
	}{
		{"empty result", &fakeStructured{}, extract.StrategyPattern},
		{"parse error", &fakeStructured{err: fmt.Errorf("boom: %w", extract.ErrParseFailed)}, extract.StrategyPattern},
		{"panic", &fakeStructured{panics: true}, extract.StrategyPattern},
		{"error with partial result", &fakeStructured{result: productive, err: extract.ErrParseFailed}, extract.StrategyPattern},
		{"productive", &fakeStructured{result: productive}, extract.StrategyStructured},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newSelector(tt.fake, true)
			defer s.Close()

			res := s.Extract(context.Background(), extract.LanguageRust, []byte(addSource), "lib.rs")
			require.NotNil(t, res)
			assert.Equal(t, tt.wantStrategy, res.Strategy)
			assert.Equal(t, 1, tt.fake.calls)
			if tt.wantStrategy == extract.StrategyPattern {
				require.Len(t, res.Functions, 1)
				assert.Equal(t, "add", res.Functions[0].Name, "no fields leak from the discarded result")
			}
		})
	}
}

func TestSelector_UnavailableErrorShortCircuits(t *testing.T) {
	fake := &fakeStructured{err: extract.NewExtractError("lib.rs", extract.StrategyStructured, extract.ErrParserUnavailable)}
	s, factoryCalls := newSelector(fake, true)
	defer s.Close()

	for i := 0; i < 3; i++ {
		res := s.Extract(context.Background(), extract.LanguageRust, []byte(addSource), "lib.rs")
		assert.Equal(t, extract.StrategyPattern, res.Strategy)
	}
	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, 1, *factoryCalls)
}

func TestSelector_RealStructured(t *testing.T) {
	s := New()
	defer s.Close()

	res := s.Extract(context.Background(), extract.LanguageRust, []byte(`impl Foo { pub fn new() -> Self { Self {} } }`), "foo.rs")
	assert.Equal(t, extract.StrategyStructured, res.Strategy)
	require.Len(t, res.Functions, 1)
	assert.Equal(t, "Foo::new", res.Functions[0].QualifiedName)

	// A file with imports only is empty for the structured strategy.
	res = s.Extract(context.Background(), extract.LanguageRust, []byte(`use std::io;`), "uses.rs")
	assert.Equal(t, extract.StrategyPattern, res.Strategy)
	assert.Len(t, res.Imports, 1)
}

func TestSelector_ExtractFile(t *testing.T) {
	s := New()
	defer s.Close()

	res, err := s.ExtractFile(context.Background(), []byte("package p\n\nfunc F() {}\n"), "p/f.go")
	require.NoError(t, err)
	assert.Equal(t, extract.LanguageGo, res.Language)

	_, err = s.ExtractFile(context.Background(), []byte("x"), "notes.txt")
	assert.True(t, errors.Is(err, extract.ErrUnsupportedLanguage))
}

func TestSelector_CloseReleasesStructured(t *testing.T) {
	fake := &fakeStructured{}
	s, _ := newSelector(fake, true)

	s.Extract(context.Background(), extract.LanguageRust, []byte(addSource), "lib.rs")
	require.NoError(t, s.Close())
	assert.Equal(t, 1, fake.closed)

	require.NoError(t, s.Close())
	assert.Equal(t, 1, fake.closed, "already released")
}
