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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/ruizrica/drift-sub003/services/callgraph/extract"
)

// walker carries one traversal's state.
type walker struct {
	src      []byte
	lang     extract.Language
	res      *extract.FileExtractionResult
	dispatch dispatch
	maxDepth int
	depthHit bool

	// className is the enclosing impl, trait or receiver type.
	className string

	// inFunction is set inside a function body. Functions declared there
	// are free functions even when the body belongs to a method.
	inFunction bool

	// importLocals holds Go package names bound by import specs seen so
	// far. Selector calls on them are not method calls.
	importLocals map[string]bool
}

func newWalker(src []byte, lang extract.Language, res *extract.FileExtractionResult, d dispatch, maxDepth int) *walker {
	return &walker{
		src:          src,
		lang:         lang,
		res:          res,
		dispatch:     d,
		maxDepth:     maxDepth,
		importLocals: map[string]bool{},
	}
}

// walk dispatches n to its handler, or walks its named children when the
// kind has none.
func (w *walker) walk(n *sitter.Node, depth int) {
	if n == nil {
		return
	}
	if depth > w.maxDepth {
		if !w.depthHit {
			w.depthHit = true
			w.res.AddError("syntax tree deeper than %d levels at line %d; deeper nodes skipped", w.maxDepth, w.line(n))
		}
		return
	}
	if h := w.dispatch.handlers[w.dispatch.kindOf(n)]; h != nil {
		h(w, n, depth)
		return
	}
	w.walkChildren(n, depth)
}

func (w *walker) walkChildren(n *sitter.Node, depth int) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walk(n.NamedChild(i), depth+1)
	}
}

// enter switches the scope and returns the function restoring it.
func (w *walker) enter(className string, inFunction bool) func() {
	prevClass, prevIn := w.className, w.inFunction
	w.className, w.inFunction = className, inFunction
	return func() {
		w.className, w.inFunction = prevClass, prevIn
	}
}

func (w *walker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(w.src[n.StartByte():n.EndByte()])
}

func (w *walker) line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

func (w *walker) endLine(n *sitter.Node) int {
	return int(n.EndPoint().Row) + 1
}

func (w *walker) column(n *sitter.Node) int {
	return int(n.StartPoint().Column) + 1
}

func (w *walker) addContainer(c extract.ContainerInfo) {
	w.res.Containers = append(w.res.Containers, c)
	if c.IsExported && !w.inFunction {
		w.res.Exports = append(w.res.Exports, extract.ExportInfo{
			Name: c.Name,
			Kind: string(c.Kind),
			Line: c.StartLine,
		})
	}
}

// addCall records a call site. The expression runs from expr's start to
// the end of nameNode.
func (w *walker) addCall(expr, nameNode *sitter.Node, receiver string, argc int, method, macro bool) {
	name := w.text(nameNode)
	full := stripSpace(string(w.src[expr.StartByte():nameNode.EndByte()]))
	if macro {
		full += "!"
	}
	w.res.Calls = append(w.res.Calls, extract.CallInfo{
		CalleeName:        name,
		Receiver:          receiver,
		FullExpression:    full,
		Line:              w.line(expr),
		Column:            w.column(expr),
		ArgumentCount:     argc,
		IsMethodCall:      method,
		IsConstructorCall: !macro && extract.IsConstructorName(w.lang, name),
		IsMacro:           macro,
	})
}

// countArgs counts the argument expressions of an argument list node.
func countArgs(args *sitter.Node) int {
	if args == nil {
		return 0
	}
	n := 0
	for i := 0; i < int(args.NamedChildCount()); i++ {
		if !isTrivia(args.NamedChild(i)) {
			n++
		}
	}
	return n
}

// isTrivia reports nodes that never carry declarations or arguments.
func isTrivia(n *sitter.Node) bool {
	switch n.Type() {
	case "comment", "line_comment", "block_comment", "attribute_item":
		return true
	}
	return false
}

func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}
