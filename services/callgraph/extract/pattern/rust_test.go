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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruizrica/drift-sub003/services/callgraph/extract"
)

func extractRustSource(t *testing.T, src string) *extract.FileExtractionResult {
	t.Helper()
	res := New(extract.LanguageRust).Extract(context.Background(), []byte(src), "src/lib.rs")
	require.NotNil(t, res)
	assert.Equal(t, extract.StrategyPattern, res.Strategy)
	assert.Equal(t, extract.LanguageRust, res.Language)
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
	res := extractRustSource(t, `pub fn add(a: i32, b: i32) -> i32 { a + b }`)

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
	assert.Equal(t, 1, fn.EndLine)
	assert.Empty(t, res.Calls)
	assert.Empty(t, res.Errors)
}

func TestRust_ImplConstructor(t *testing.T) {
	res := extractRustSource(t, `impl Foo { pub fn new() -> Self { Self {} } }`)

	require.Len(t, res.Functions, 1)
	fn := res.Functions[0]
	assert.Equal(t, "new", fn.Name)
	assert.Equal(t, "Foo::new", fn.QualifiedName)
	assert.True(t, fn.IsConstructor)
	assert.True(t, fn.IsMethod)
	assert.Equal(t, "Foo", fn.ClassName)
	assert.Equal(t, "Self", fn.ReturnType)
}

func TestRust_GroupedUse(t *testing.T) {
	res := extractRustSource(t, `use std::collections::{HashMap, HashSet as Set};`)

	require.Len(t, res.Imports, 2)
	assert.Equal(t, "std::collections", res.Imports[0].Source)
	assert.Equal(t, "HashMap", res.Imports[0].Imported)
	assert.Equal(t, "HashMap", res.Imports[0].Local)
	assert.Equal(t, "HashSet", res.Imports[1].Imported)
	assert.Equal(t, "Set", res.Imports[1].Local)
	assert.Empty(t, res.Exports)
}

func TestRustUseTree(t *testing.T) {
	tests := []struct {
		tree string
		want []extract.ImportInfo
	}{
		{
			tree: "serde",
			want: []extract.ImportInfo{{Source: "serde", Imported: "serde", Local: "serde", IsNamespace: true}},
		},
		{
			tree: "std::io::Result as IoResult",
			want: []extract.ImportInfo{{Source: "std::io", Imported: "Result", Local: "IoResult"}},
		},
		{
			tree: "std::io::{self,Write}",
			want: []extract.ImportInfo{
				{Source: "std::io", Imported: "self", Local: "io", IsNamespace: true},
				{Source: "std::io", Imported: "Write", Local: "Write"},
			},
		},
		{
			tree: "crate::model::*",
			want: []extract.ImportInfo{{Source: "crate::model", Imported: "*", Local: "*", IsNamespace: true}},
		},
		{
			tree: "a::{b::{c,d as e},f}",
			want: []extract.ImportInfo{
				{Source: "a::b", Imported: "c", Local: "c"},
				{Source: "a::b", Imported: "d", Local: "e"},
				{Source: "a", Imported: "f", Local: "f"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.tree, func(t *testing.T) {
			assert.Equal(t, tt.want, RustUseTree("", tt.tree))
		})
	}
}

func TestRust_PubUseIsReExport(t *testing.T) {
	res := extractRustSource(t, "pub use crate::model::Point;\n")

	require.Len(t, res.Exports, 1)
	assert.Equal(t, "Point", res.Exports[0].Name)
	assert.Equal(t, "crate::model", res.Exports[0].Source)
	assert.True(t, res.Exports[0].IsReExport)
}

func TestRust_CallFamilies(t *testing.T) {
	src := `fn helper(x: i32) -> i32 { x }

fn main() {
    let mut v = Vec::new();
    let n = helper(1);
    println!("{} // not a comment", n);
    v.push(2);
    if n > 0 { return; }
}
`
	res := extractRustSource(t, src)

	require.Len(t, res.Calls, 4)

	c, ok := findCall(res, "new")
	require.True(t, ok)
	assert.Equal(t, "Vec", c.Receiver)
	assert.Equal(t, "Vec::new", c.FullExpression)
	assert.True(t, c.IsConstructorCall)
	assert.False(t, c.IsMethodCall)
	assert.Equal(t, 4, c.Line)
	assert.Equal(t, "main", c.CallerName)

	c, ok = findCall(res, "helper")
	require.True(t, ok)
	assert.Empty(t, c.Receiver)
	assert.Equal(t, 1, c.ArgumentCount)
	assert.Equal(t, 5, c.Line)
	assert.Equal(t, 13, c.Column)

	c, ok = findCall(res, "println")
	require.True(t, ok)
	assert.True(t, c.IsMacro)
	assert.Equal(t, "println!", c.FullExpression)
	assert.Equal(t, 2, c.ArgumentCount)

	c, ok = findCall(res, "push")
	require.True(t, ok)
	assert.Equal(t, "v", c.Receiver)
	assert.True(t, c.IsMethodCall)
	assert.Equal(t, "v.push", c.FullExpression)
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
#[ignore]
fn it_works() { assert_eq!(1, 1); }
`
	res := extractRustSource(t, src)

	require.Len(t, res.Containers, 3)
	byName := map[string]extract.ContainerInfo{}
	for _, c := range res.Containers {
		byName[c.Name] = c
	}

	point := byName["Point"]
	assert.Equal(t, extract.ContainerStruct, point.Kind)
	assert.True(t, point.IsExported)
	assert.Equal(t, 2, point.StartLine)

	shape := byName["Shape"]
	assert.Equal(t, extract.ContainerEnum, shape.Kind)
	assert.False(t, shape.IsExported)

	area := byName["Area"]
	assert.Equal(t, extract.ContainerTrait, area.Kind)
	assert.Equal(t, []string{"Debug", "Clone"}, area.BaseTypes)
	assert.Equal(t, []string{"area", "name"}, area.MethodNames)

	require.Len(t, res.Functions, 3)
	names := map[string]extract.FunctionInfo{}
	for _, fn := range res.Functions {
		names[fn.QualifiedName] = fn
	}

	name := names["Area::name"]
	assert.True(t, name.IsMethod)
	assert.False(t, name.IsStatic)
	assert.Equal(t, "Area", name.ClassName)

	fmtFn := names["Point::fmt"]
	assert.Equal(t, "Point", fmtFn.ClassName)
	assert.Equal(t, []extract.Parameter{
		{Name: "self", Type: "&"},
		{Name: "f", Type: "&mut fmt::Formatter"},
	}, fmtFn.Parameters)
	assert.Equal(t, "fmt::Result", fmtFn.ReturnType)

	works := names["it_works"]
	assert.Equal(t, []string{"#[test]", "#[ignore]"}, works.Decorators)

	// Tuple variants and derive arguments are not calls.
	_, ok := findCall(res, "Circle")
	assert.False(t, ok)
	_, ok = findCall(res, "derive")
	assert.False(t, ok)

	c, ok := findCall(res, "from")
	require.True(t, ok)
	assert.Equal(t, "Area::name", c.CallerName)
	assert.True(t, c.IsConstructorCall)

	c, ok = findCall(res, "write")
	require.True(t, ok)
	assert.Equal(t, "Point::fmt", c.CallerName)
	assert.Equal(t, 3, c.ArgumentCount)
}

func TestRust_NestedFunctionIsNotMethod(t *testing.T) {
	src := `impl Engine {
    fn run(&mut self) {
        fn step(n: u32) -> u32 { n + 1 }
        self.tick(step(1));
    }
}
`
	res := extractRustSource(t, src)

	require.Len(t, res.Functions, 2)
	run, step := res.Functions[0], res.Functions[1]
	assert.Equal(t, "Engine::run", run.QualifiedName)
	assert.True(t, run.IsMethod)
	assert.Equal(t, "step", step.QualifiedName)
	assert.False(t, step.IsMethod)

	c, ok := findCall(res, "step")
	require.True(t, ok)
	assert.Equal(t, "Engine::run", c.CallerName)

	c, ok = findCall(res, "tick")
	require.True(t, ok)
	assert.Equal(t, "self", c.Receiver)
}

func TestRust_Deterministic(t *testing.T) {
	src := `use std::io;
pub struct S;
impl S {
    pub async fn load(&self, path: &str) -> io::Result<()> {
        let data = std::fs::read(path)?;
        self.parse(&data).map_err(|e| io::Error::new(io::ErrorKind::Other, e))?;
        Ok(())
    }
}
`
	a := extractRustSource(t, src)
	b := extractRustSource(t, src)
	assert.Equal(t, a, b)

	require.Len(t, a.Functions, 1)
	assert.True(t, a.Functions[0].IsAsync)
	assert.Equal(t, "io::Result<()>", a.Functions[0].ReturnType)
}

func TestRust_DedupKeysAreUnique(t *testing.T) {
	src := `fn f() { g(); g(); h(g()); }
fn g() {}
fn h(_x: ()) {}
`
	res := extractRustSource(t, src)

	seen := map[extract.CallKey]bool{}
	for _, c := range res.Calls {
		assert.False(t, seen[c.Key()], "duplicate call key %+v", c.Key())
		seen[c.Key()] = true
	}
	seenFn := map[extract.FunctionKey]bool{}
	for _, fn := range res.Functions {
		assert.False(t, seenFn[fn.Key()])
		seenFn[fn.Key()] = true
	}
	assert.Len(t, res.Calls, 2)
}
