// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package structured

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruizrica/drift-sub003/services/callgraph/extract"
	"github.com/ruizrica/drift-sub003/services/callgraph/extract/pattern"
)

func extractRust(t *testing.T, src string) *extract.FileExtractionResult {
	t.Helper()
	e := New(extract.LanguageRust)
	defer e.Close()
	res, err := e.TryExtract(context.Background(), []byte(src), "src/lib.rs")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, extract.StrategyStructured, res.Strategy)
	return res
}

func findCall(res *extract.FileExtractionResult, callee string) (extract.CallInfo, bool) {
	for _, c := range res.Calls {
		if c.CalleeName == callee {
			return c, true
		}
	}
	return extract.CallInfo{}, false
}

func TestRust_FreeFunction(t *testing.T) {
	res := extractRust(t, `pub fn add(a: i32, b: i32) -> i32 { a + b }`)

	require.Len(t, res.Functions, 1)
	fn := res.Functions[0]
	assert.Equal(t, "add", fn.Name)
	assert.Equal(t, "add", fn.QualifiedName)
	assert.Equal(t, []extract.Parameter{{Name: "a", Type: "i32"}, {Name: "b", Type: "i32"}}, fn.Parameters)
	assert.Equal(t, "i32", fn.ReturnType)
	assert.True(t, fn.IsExported)
	assert.True(t, fn.IsStatic)
	assert.False(t, fn.IsMethod)
	assert.Equal(t, 1, fn.StartLine)
	assert.Equal(t, 1, fn.StartColumn)
	assert.Empty(t, res.Calls)
	assert.Empty(t, res.Errors)

	require.Len(t, res.Exports, 1)
	assert.Equal(t, "add", res.Exports[0].Name)
}

func TestRust_ImplConstructor(t *testing.T) {
	res := extractRust(t, `impl Foo { pub fn new() -> Self { Self {} } }`)

	require.Len(t, res.Functions, 1)
	fn := res.Functions[0]
	assert.Equal(t, "Foo::new", fn.QualifiedName)
	assert.True(t, fn.IsConstructor)
	assert.True(t, fn.IsMethod)
	assert.True(t, fn.IsStatic)
	assert.Equal(t, "Foo", fn.ClassName)
	assert.Empty(t, res.Calls, "struct expressions are not calls")
}

func TestRust_GroupedUse(t *testing.T) {
	res := extractRust(t, `use std::collections::{HashMap, HashSet as Set};`)

	require.Len(t, res.Imports, 2)
	assert.Equal(t, extract.ImportInfo{Source: "std::collections", Imported: "HashMap", Local: "HashMap", Line: 1}, res.Imports[0])
	assert.Equal(t, extract.ImportInfo{Source: "std::collections", Imported: "HashSet", Local: "Set", Line: 1}, res.Imports[1])
}

func TestRust_UseForms(t *testing.T) {
	src := `use serde;
use std::io::{self, Write};
pub use crate::model::*;
use a::{b::{c, d as e}, f};
`
	res := extractRust(t, src)

	want := []extract.ImportInfo{
		{Source: "serde", Imported: "serde", Local: "serde", IsNamespace: true, Line: 1},
		{Source: "std::io", Imported: "self", Local: "io", IsNamespace: true, Line: 2},
		{Source: "std::io", Imported: "Write", Local: "Write", Line: 2},
		{Source: "crate::model", Imported: "*", Local: "*", IsNamespace: true, Line: 3},
		{Source: "a::b", Imported: "c", Local: "c", Line: 4},
		{Source: "a::b", Imported: "d", Local: "e", Line: 4},
		{Source: "a", Imported: "f", Local: "f", Line: 4},
	}
	assert.Equal(t, want, res.Imports)

	require.Len(t, res.Exports, 1)
	assert.True(t, res.Exports[0].IsReExport)
	assert.Equal(t, "crate::model", res.Exports[0].Source)
}

const rustCallSource = `fn helper(x: i32) -> i32 { x }

fn main() {
    let mut v = Vec::new();
    let n = helper(1);
    println!("{} // not a comment", n);
    v.push(2);
    if n > 0 { return; }
}
`

func TestRust_CallFamilies(t *testing.T) {
	res := extractRust(t, rustCallSource)

	require.Len(t, res.Calls, 4)

	c, ok := findCall(res, "new")
	require.True(t, ok)
	assert.Equal(t, "Vec", c.Receiver)
	assert.Equal(t, "Vec::new", c.FullExpression)
	assert.True(t, c.IsConstructorCall)
	assert.Equal(t, 4, c.Line)
	assert.Equal(t, "main", c.CallerName)

	c, ok = findCall(res, "helper")
	require.True(t, ok)
	assert.Equal(t, 5, c.Line)
	assert.Equal(t, 13, c.Column)
	assert.Equal(t, 1, c.ArgumentCount)

	c, ok = findCall(res, "println")
	require.True(t, ok)
	assert.True(t, c.IsMacro)
	assert.Equal(t, "println!", c.FullExpression)
	assert.Equal(t, 2, c.ArgumentCount)

	c, ok = findCall(res, "push")
	require.True(t, ok)
	assert.Equal(t, "v", c.Receiver)
	assert.True(t, c.IsMethodCall)
}

func TestRust_MatchesPatternStrategy(t *testing.T) {
	structuredRes := extractRust(t, rustCallSource)
	patternRes := pattern.New(extract.LanguageRust).Extract(context.Background(), []byte(rustCallSource), "src/lib.rs")

	assert.Equal(t, patternRes.Functions, structuredRes.Functions)
	assert.Equal(t, patternRes.Calls, structuredRes.Calls)
}

func TestRust_AttributesContainersAndTraits(t *testing.T) {
	src := `#[derive(Debug, Clone)]
pub struct Point { x: i32 }

enum Shape { Circle(f64), Square(f64) }

pub trait Area: Debug + Clone {
    fn area(&self) -> f64;
    fn name(&self) -> String { String::from("area") }
}

impl fmt::Display for Point {
    fn fmt(&self, f: &mut fmt::Formatter) -> fmt::Result {
        write!(f, "({})", self.x)
    }
}

#[test]
// between attributes
#[ignore]
fn it_works() { assert_eq!(1, 1); }
`
	res := extractRust(t, src)

	require.Len(t, res.Containers, 3)
	assert.Equal(t, "Point", res.Containers[0].Name)
	assert.True(t, res.Containers[0].IsExported)
	assert.Equal(t, extract.ContainerEnum, res.Containers[1].Kind)
	area := res.Containers[2]
	assert.Equal(t, []string{"Debug", "Clone"}, area.BaseTypes)
	assert.Equal(t, []string{"area", "name"}, area.MethodNames)

	require.Len(t, res.Functions, 3)
	byName := map[string]extract.FunctionInfo{}
	for _, fn := range res.Functions {
		byName[fn.QualifiedName] = fn
	}
	assert.False(t, byName["Area::name"].IsStatic)
	assert.Equal(t, []extract.Parameter{
		{Name: "self", Type: "&"},
		{Name: "f", Type: "&mut fmt::Formatter"},
	}, byName["Point::fmt"].Parameters)
	assert.Equal(t, "fmt::Result", byName["Point::fmt"].ReturnType)
	assert.Equal(t, []string{"#[test]", "#[ignore]"}, byName["it_works"].Decorators)

	_, ok := findCall(res, "derive")
	assert.False(t, ok)

	c, ok := findCall(res, "write")
	require.True(t, ok)
	assert.Equal(t, 3, c.ArgumentCount)
	assert.Equal(t, "Point::fmt", c.CallerName)
}

func TestRust_NestedFunctionIsNotMethod(t *testing.T) {
	src := `impl Engine {
    fn run(&mut self) {
        fn step(n: u32) -> u32 { n + 1 }
        self.tick(step(1));
    }
}
`
	res := extractRust(t, src)

	require.Len(t, res.Functions, 2)
	assert.Equal(t, "Engine::run", res.Functions[0].QualifiedName)
	assert.Equal(t, "step", res.Functions[1].QualifiedName)
	assert.False(t, res.Functions[1].IsMethod)

	c, ok := findCall(res, "tick")
	require.True(t, ok)
	assert.Equal(t, "self", c.Receiver)
	c, ok = findCall(res, "step")
	require.True(t, ok)
	assert.Equal(t, "Engine::run", c.CallerName)
}

func TestRust_CallsInsideMacroArguments(t *testing.T) {
	res := extractRust(t, `fn f() { println!("{}", compute(1, 2)); }`)

	c, ok := findCall(res, "compute")
	require.True(t, ok)
	assert.Equal(t, 2, c.ArgumentCount)
	assert.Equal(t, "f", c.CallerName)
}

func TestRust_Deterministic(t *testing.T) {
	src := `pub struct S;
impl S {
    pub async fn load(&self, path: &str) -> io::Result<()> {
        let data = std::fs::read(path)?;
        Ok(())
    }
}
`
	a := extractRust(t, src)
	b := extractRust(t, src)
	assert.Equal(t, a, b)

	require.Len(t, a.Functions, 1)
	assert.True(t, a.Functions[0].IsAsync)
	assert.Equal(t, "io::Result<()>", a.Functions[0].ReturnType)

	_, ok := findCall(a, "Ok")
	assert.False(t, ok, "denied names are not calls")
}

func TestRust_SyntaxErrorsArePartialResults(t *testing.T) {
	res := extractRust(t, "fn ok() {}\nfn broken( {\n")

	assert.NotEmpty(t, res.Errors)
	require.NotEmpty(t, res.Functions)
	assert.Equal(t, "ok", res.Functions[0].Name)
}

func TestMaxDepth(t *testing.T) {
	src := "fn deep() { " + strings.Repeat("{ ", 40) + "f();" + strings.Repeat(" }", 40) + " }"
	e := New(extract.LanguageRust, WithMaxDepth(8))
	defer e.Close()

	res, err := e.TryExtract(context.Background(), []byte(src), "deep.rs")
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "deeper than 8")
	assert.Empty(t, res.Calls)
	require.Len(t, res.Functions, 1)
}

func TestTryExtract_UnsupportedLanguage(t *testing.T) {
	e := New(extract.Language("cobol"))
	res, err := e.TryExtract(context.Background(), []byte("IDENTIFICATION DIVISION."), "a.cbl")

	require.Error(t, err)
	assert.True(t, errors.Is(err, extract.ErrUnsupportedLanguage))
	var xerr *extract.ExtractError
	require.True(t, errors.As(err, &xerr))
	assert.Equal(t, extract.StrategyStructured, xerr.Strategy)
	require.NotNil(t, res)
	assert.True(t, res.IsEmpty())
	assert.Len(t, res.Errors, 1)
}

func TestClose_ReacquiresParser(t *testing.T) {
	e := New(extract.LanguageRust)
	assert.Nil(t, e.parser, "parser is acquired lazily")

	e.Extract(context.Background(), []byte("fn a() {}"), "a.rs")
	first := e.parser
	require.NotNil(t, first)

	e.Extract(context.Background(), []byte("fn b() {}"), "b.rs")
	assert.Same(t, first, e.parser, "parser is reused across files")

	require.NoError(t, e.Close())
	assert.Nil(t, e.parser)
	require.NoError(t, e.Close())

	res := e.Extract(context.Background(), []byte("fn c() {}"), "c.rs")
	assert.Len(t, res.Functions, 1)
	require.NoError(t, e.Close())
}

func TestProbe(t *testing.T) {
	assert.True(t, Probe(extract.LanguageRust))
	assert.True(t, Probe(extract.LanguageGo))
	assert.False(t, Probe(extract.Language("cobol")))
	assert.True(t, Probe(extract.LanguageRust), "memoized answer is stable")
}

func TestDispatchTables(t *testing.T) {
	for _, lang := range extract.SupportedLanguages() {
		t.Run(string(lang), func(t *testing.T) {
			d, ok := dispatchFor(lang)
			require.True(t, ok)

			assert.Nil(t, d.handlers[NodeKindOther], "other kinds walk generically")
			used := map[NodeKind]bool{}
			for nodeType, kind := range d.kinds {
				assert.NotEqual(t, NodeKindOther, kind, "%s maps to other", nodeType)
				assert.NotNil(t, d.handlers[kind], "%s (%s) has no handler", nodeType, kind)
				used[kind] = true
			}
			for kind := NodeKind(0); kind < numNodeKinds; kind++ {
				if d.handlers[kind] != nil {
					assert.True(t, used[kind], "handler for %s is unreachable", kind)
				}
			}
		})
	}
}

func TestNodeKind_String(t *testing.T) {
	for kind := NodeKind(0); kind < numNodeKinds; kind++ {
		assert.NotEmpty(t, kind.String())
		assert.NotContains(t, kind.String(), "NodeKind(")
	}
	assert.Equal(t, "NodeKind(200)", NodeKind(200).String())
}
