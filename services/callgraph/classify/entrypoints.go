// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package classify provides the default heuristic classifiers consulted by
// the graph assembler.
//
// Both classifiers are name and signature heuristics. They never look at
// source text; everything they use is already on the FunctionNode.
package classify

import (
	"strings"

	"github.com/ruizrica/drift-sub003/services/callgraph/extract"
	"github.com/ruizrica/drift-sub003/services/callgraph/graph"
)

// routeAttributes are Rust attribute prefixes that mark request handlers
// or runtime entry points.
var routeAttributes = []string{
	"#[tokio::main", "#[actix_web::main", "#[async_std::main",
	"#[get(", "#[post(", "#[put(", "#[delete(", "#[patch(", "#[head(",
	"#[route(", "#[actix_web::get(", "#[actix_web::post(",
	"#[rocket::get(", "#[rocket::post(",
	"#[test]", "#[tokio::test",
}

// goTestPrefixes are the go test entry points.
var goTestPrefixes = []string{"Test", "Benchmark", "Fuzz", "Example"}

// EntryPoints is the default EntryPointClassifier.
type EntryPoints struct {
	extraAttributes []string
}

// NewEntryPoints creates the classifier. extraAttributes are additional
// attribute prefixes (for example "#[lambda_runtime::main") treated like
// the built-in route attributes.
func NewEntryPoints(extraAttributes ...string) *EntryPoints {
	return &EntryPoints{extraAttributes: extraAttributes}
}

// IsEntryPoint implements graph.EntryPointClassifier.
func (e *EntryPoints) IsEntryPoint(fn *graph.FunctionNode) bool {
	if fn == nil {
		return false
	}
	switch fn.Language {
	case extract.LanguageRust:
		return e.rustEntryPoint(fn)
	case extract.LanguageGo:
		return goEntryPoint(fn)
	}
	return false
}

func (e *EntryPoints) rustEntryPoint(fn *graph.FunctionNode) bool {
	if fn.Name == "main" && !fn.IsMethod {
		return true
	}
	for _, d := range fn.Decorators {
		d = strings.Join(strings.Fields(d), "")
		if hasAnyPrefix(d, routeAttributes) || hasAnyPrefix(d, e.extraAttributes) {
			return true
		}
	}
	return false
}

func goEntryPoint(fn *graph.FunctionNode) bool {
	if !fn.IsMethod {
		if fn.Name == "main" || fn.Name == "init" {
			return true
		}
		for _, prefix := range goTestPrefixes {
			if strings.HasPrefix(fn.Name, prefix) && isGoTestSuffix(fn.Name[len(prefix):]) {
				return true
			}
		}
	}
	if fn.IsMethod && fn.Name == "ServeHTTP" {
		return true
	}
	return isGoHandlerSignature(fn.Parameters)
}

// isGoTestSuffix follows the go test rule: the name after the prefix is
// empty or does not start with a lower-case letter.
func isGoTestSuffix(rest string) bool {
	return rest == "" || !(rest[0] >= 'a' && rest[0] <= 'z')
}

// isGoHandlerSignature matches net/http handlers and the context-style
// handlers of the common routers.
func isGoHandlerSignature(params []extract.Parameter) bool {
	var writer, request bool
	for _, p := range params {
		switch p.Type {
		case "http.ResponseWriter":
			writer = true
		case "*http.Request":
			request = true
		case "*gin.Context", "echo.Context", "*fiber.Ctx":
			return true
		}
	}
	return writer && request
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

var _ graph.EntryPointClassifier = (*EntryPoints)(nil)
