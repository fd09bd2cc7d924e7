// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pattern

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ruizrica/drift-sub003/services/callgraph/extract"
)

func TestPreprocess_PreservesLengthAndLines(t *testing.T) {
	tests := []struct {
		name    string
		lang    extract.Language
		src     string
		gone    []string
		present []string
	}{
		{
			name: "rust comments and strings",
			lang: extract.LanguageRust,
			src: "fn a() {\n" +
				"    let s = \"x // y\";\n" +
				"    /* c /* nested */ still */ let c = 'z';\n" +
				"    let l: &'a str = r#\"raw \"q\" \"#;\n" +
				"    let m = \"multi\nline\";\n" +
				"}\n// tail comment\n",
			gone:    []string{"// y", "nested", "still", "raw", "tail", "multi"},
			present: []string{"fn a() {", "let l: &'a str", "let c = ' ';", "\"      \""},
		},
		{
			name: "rust doc comments and escapes",
			lang: extract.LanguageRust,
			src: "/// Adds things.\n" +
				"//! crate doc\n" +
				"pub fn add() { let e = \"a\\\"b\"; let q = '\\''; let b = b\"bytes\"; }\n",
			gone:    []string{"Adds", "crate doc", "bytes"},
			present: []string{"pub fn add() {"},
		},
		{
			name: "rust unicode char literal",
			lang: extract.LanguageRust,
			src:  "fn u() { let c = 'é'; let s = \"héllo\"; }\n",
			gone:    []string{"é", "héllo"},
			present: []string{"fn u() {"},
		},
		{
			name: "go comments and literals",
			lang: extract.LanguageGo,
			src: "package p\n" +
				"// Doc line\n" +
				"func f() {\n" +
				"\tx := `raw\nline`\n" +
				"\ts := \"a\\\"b(\"\n" +
				"\tr := '\\''\n" +
				"\t/* block\n comment */\n" +
				"}\n",
			gone:    []string{"Doc line", "raw", "block", "b("},
			present: []string{"func f() {", "x := `"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := string(Preprocess([]byte(tt.src), tt.lang))

			assert.Equal(t, len(tt.src), len(out))
			assert.Equal(t, strings.Count(tt.src, "\n"), strings.Count(out, "\n"))
			for i := range tt.src {
				if tt.src[i] == '\n' {
					assert.Equal(t, byte('\n'), out[i], "newline moved at offset %d", i)
				}
			}
			for _, g := range tt.gone {
				assert.NotContains(t, out, g)
			}
			for _, p := range tt.present {
				assert.Contains(t, out, p)
			}
		})
	}
}

func TestPreprocess_UnterminatedInput(t *testing.T) {
	for _, src := range []string{"fn a() { \"open", "/* never closed", "r#\"raw", "let c = '\\"} {
		out := Preprocess([]byte(src), extract.LanguageRust)
		assert.Len(t, out, len(src))
	}
	for _, src := range []string{"x := `open", "/* never", "s := \"open"} {
		out := Preprocess([]byte(src), extract.LanguageGo)
		assert.Len(t, out, len(src))
	}
}

func TestSplitTopLevel(t *testing.T) {
	got := splitTopLevel("a: HashMap<K, V>, b: (u8, u8), c: [i32; 2], f: impl Fn(u8) -> u8,", ',')
	assert.Len(t, got, 4)
	assert.Equal(t, " b: (u8, u8)", got[1])
	assert.Equal(t, " f: impl Fn(u8) -> u8", got[3])
}

func TestReceiverStart(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"self.items.push(", "self.items"},
		{"foo().bar(", "foo()"},
		{"a.b(x).c?.d(", "a.b(x).c?"},
		{"let x = v[0].len(", "v[0]"},
		{"Vec::<u8>::new(", "Vec::<u8>"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			sep := strings.LastIndex(tt.text, ".")
			pathSep := false
			if i := strings.LastIndex(tt.text, "::"); i > sep {
				sep, pathSep = i, true
			}
			start := receiverStart(tt.text, sep, pathSep)
			assert.Equal(t, tt.want, tt.text[start:sep])
		})
	}
}
