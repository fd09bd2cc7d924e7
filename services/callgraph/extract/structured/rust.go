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

var rustKinds = map[string]NodeKind{
	"function_item":           NodeKindFunction,
	"function_signature_item": NodeKindSignature,
	"impl_item":               NodeKindImpl,
	"trait_item":              NodeKindTrait,
	"struct_item":             NodeKindStruct,
	"union_item":              NodeKindStruct,
	"enum_item":               NodeKindEnum,
	"use_declaration":         NodeKindImport,
	"call_expression":         NodeKindCall,
	"macro_invocation":        NodeKindMacro,
	"attribute_item":          NodeKindSkip,
	"inner_attribute_item":    NodeKindSkip,
	"macro_definition":        NodeKindSkip,
	"line_comment":            NodeKindSkip,
	"block_comment":           NodeKindSkip,
}

var rustHandlers = [numNodeKinds]handler{
	NodeKindFunction:  (*walker).rustFunction,
	NodeKindSignature: skipNode, // named by rustTrait
	NodeKindImpl:      (*walker).rustImpl,
	NodeKindTrait:     (*walker).rustTrait,
	NodeKindStruct:    (*walker).rustStruct,
	NodeKindEnum:      (*walker).rustEnum,
	NodeKindImport:    (*walker).rustUse,
	NodeKindCall:      (*walker).rustCall,
	NodeKindMacro:     (*walker).rustMacro,
	NodeKindSkip:      skipNode,
}

func (w *walker) rustFunction(n *sitter.Node, depth int) {
	nameNode := n.ChildByFieldName("name")
	body := n.ChildByFieldName("body")
	if nameNode == nil || body == nil {
		w.walkChildren(n, depth)
		return
	}
	name := w.text(nameNode)
	params, hasSelf := w.rustParams(n.ChildByFieldName("parameters"))

	info := extract.FunctionInfo{
		Name:          name,
		QualifiedName: name,
		StartLine:     w.line(n),
		EndLine:       w.endLine(n),
		StartColumn:   w.column(n),
		Parameters:    params,
		ReturnType:    extract.NormalizeSpace(w.text(n.ChildByFieldName("return_type"))),
		IsExported:    w.rustIsPub(n),
		IsAsync:       w.rustHasModifier(n, "async"),
		IsStatic:      true,
		Decorators:    w.rustAttributes(n),
	}
	if w.className != "" && !w.inFunction {
		info.ClassName = w.className
		info.QualifiedName = w.lang.Qualify(w.className, name)
		info.IsMethod = true
		info.IsStatic = !hasSelf
		info.IsConstructor = extract.IsRustConstructor(name, info.ReturnType, w.className, hasSelf)
	} else if info.IsExported && !w.inFunction {
		w.res.Exports = append(w.res.Exports, extract.ExportInfo{
			Name: name,
			Kind: "function",
			Line: info.StartLine,
		})
	}
	w.res.Functions = append(w.res.Functions, info)

	defer w.enter(w.className, true)()
	w.walk(body, depth+1)
}

// rustParams reads a parameters node. The second result reports a self
// receiver in first position.
func (w *walker) rustParams(list *sitter.Node) ([]extract.Parameter, bool) {
	params := []extract.Parameter{}
	if list == nil {
		return params, false
	}
	hasSelf := false
	idx := 0
	for i := 0; i < int(list.NamedChildCount()); i++ {
		c := list.NamedChild(i)
		if isTrivia(c) {
			continue
		}
		switch c.Type() {
		case "self_parameter":
			if idx == 0 {
				hasSelf = true
			}
			text := extract.NormalizeSpace(w.text(c))
			params = append(params, extract.Parameter{
				Name: "self",
				Type: extract.NormalizeSpace(strings.TrimSuffix(text, "self")),
			})
		case "parameter":
			name := strings.TrimPrefix(extract.NormalizeSpace(w.text(c.ChildByFieldName("pattern"))), "mut ")
			if idx == 0 && name == "self" {
				hasSelf = true
			}
			params = append(params, extract.Parameter{
				Name: name,
				Type: extract.NormalizeSpace(w.text(c.ChildByFieldName("type"))),
			})
		default:
			params = append(params, extract.Parameter{Type: extract.NormalizeSpace(w.text(c))})
		}
		idx++
	}
	return params, hasSelf
}

func (w *walker) rustIsPub(n *sitter.Node) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "visibility_modifier" {
			return strings.HasPrefix(w.text(c), "pub")
		}
	}
	return false
}

func (w *walker) rustHasModifier(n *sitter.Node, modifier string) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() != "function_modifiers" {
			continue
		}
		for _, m := range strings.Fields(w.text(c)) {
			if m == modifier {
				return true
			}
		}
	}
	return false
}

// rustAttributes collects the attribute items preceding n in source
// order. Comments between them are skipped.
func (w *walker) rustAttributes(n *sitter.Node) []string {
	var attrs []string
	for p := n.PrevSibling(); p != nil; p = p.PrevSibling() {
		if p.Type() == "line_comment" || p.Type() == "block_comment" {
			continue
		}
		if p.Type() != "attribute_item" {
			break
		}
		attrs = append(attrs, w.text(p))
	}
	for l, r := 0, len(attrs)-1; l < r; l, r = l+1, r-1 {
		attrs[l], attrs[r] = attrs[r], attrs[l]
	}
	return attrs
}

func (w *walker) rustImpl(n *sitter.Node, depth int) {
	typ := n.ChildByFieldName("type")
	body := n.ChildByFieldName("body")
	if typ == nil || body == nil {
		w.walkChildren(n, depth)
		return
	}
	defer w.enter(extract.RustTypeName(w.text(typ)), false)()
	w.walk(body, depth+1)
}

func (w *walker) rustTrait(n *sitter.Node, depth int) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		w.walkChildren(n, depth)
		return
	}
	name := w.text(nameNode)
	c := extract.ContainerInfo{
		Name:        name,
		Kind:        extract.ContainerTrait,
		BaseTypes:   []string{},
		MethodNames: []string{},
		IsExported:  w.rustIsPub(n),
		StartLine:   w.line(n),
		EndLine:     w.endLine(n),
	}
	if bounds := n.ChildByFieldName("bounds"); bounds != nil {
		for i := 0; i < int(bounds.NamedChildCount()); i++ {
			if b := bounds.NamedChild(i); !isTrivia(b) {
				c.BaseTypes = append(c.BaseTypes, extract.NormalizeSpace(w.text(b)))
			}
		}
	}
	body := n.ChildByFieldName("body")
	if body != nil {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			item := body.NamedChild(i)
			if item.Type() != "function_item" && item.Type() != "function_signature_item" {
				continue
			}
			if fn := item.ChildByFieldName("name"); fn != nil {
				c.MethodNames = append(c.MethodNames, w.text(fn))
			}
		}
	}
	w.addContainer(c)

	if body != nil {
		defer w.enter(name, false)()
		w.walk(body, depth+1)
	}
}

func (w *walker) rustStruct(n *sitter.Node, _ int) {
	w.rustPlainContainer(n, extract.ContainerStruct)
}

func (w *walker) rustEnum(n *sitter.Node, _ int) {
	w.rustPlainContainer(n, extract.ContainerEnum)
}

func (w *walker) rustPlainContainer(n *sitter.Node, kind extract.ContainerKind) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	w.addContainer(extract.ContainerInfo{
		Name:        w.text(nameNode),
		Kind:        kind,
		BaseTypes:   []string{},
		MethodNames: []string{},
		IsExported:  w.rustIsPub(n),
		StartLine:   w.line(n),
		EndLine:     w.endLine(n),
	})
}

func (w *walker) rustUse(n *sitter.Node, _ int) {
	arg := n.ChildByFieldName("argument")
	if arg == nil {
		return
	}
	line := w.line(n)
	isPub := w.rustIsPub(n)
	for _, imp := range w.rustUseTree("", arg) {
		imp.Line = line
		w.res.Imports = append(w.res.Imports, imp)
		if isPub {
			w.res.Exports = append(w.res.Exports, extract.ExportInfo{
				Name:       imp.Local,
				Source:     imp.Source,
				Kind:       "reexport",
				IsReExport: true,
				Line:       line,
			})
		}
	}
}

// rustUseTree expands one use clause under prefix.
func (w *walker) rustUseTree(prefix string, n *sitter.Node) []extract.ImportInfo {
	switch n.Type() {
	case "use_as_clause":
		path := n.ChildByFieldName("path")
		alias := n.ChildByFieldName("alias")
		if path == nil {
			return nil
		}
		return rustUsePath(joinRustPath(prefix, stripSpace(w.text(path))), w.text(alias))

	case "scoped_use_list":
		p := prefix
		if path := n.ChildByFieldName("path"); path != nil {
			p = joinRustPath(prefix, stripSpace(w.text(path)))
		}
		list := n.ChildByFieldName("list")
		if list == nil {
			return nil
		}
		return w.rustUseTree(p, list)

	case "use_list":
		var out []extract.ImportInfo
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if isTrivia(c) {
				continue
			}
			out = append(out, w.rustUseTree(prefix, c)...)
		}
		return out

	case "use_wildcard":
		path := strings.TrimSuffix(strings.TrimSuffix(stripSpace(w.text(n)), "*"), "::")
		return []extract.ImportInfo{{
			Source:      joinRustPath(prefix, path),
			Imported:    "*",
			Local:       "*",
			IsNamespace: true,
		}}
	}
	return rustUsePath(joinRustPath(prefix, stripSpace(w.text(n))), "")
}

// rustUsePath builds the record for one fully prefixed path.
func rustUsePath(path, alias string) []extract.ImportInfo {
	segs := strings.Split(path, "::")
	last := segs[len(segs)-1]
	source := strings.Join(segs[:len(segs)-1], "::")
	local := alias

	switch {
	case last == "self":
		if local == "" && len(segs) >= 2 {
			local = segs[len(segs)-2]
		}
		return []extract.ImportInfo{{Source: source, Imported: "self", Local: local, IsNamespace: true}}
	case len(segs) == 1:
		if local == "" {
			local = last
		}
		return []extract.ImportInfo{{Source: last, Imported: last, Local: local, IsNamespace: true}}
	}
	if local == "" {
		local = last
	}
	return []extract.ImportInfo{{Source: source, Imported: last, Local: local}}
}

func joinRustPath(prefix, path string) string {
	switch {
	case prefix == "":
		return path
	case path == "":
		return prefix
	}
	return prefix + "::" + path
}

func (w *walker) rustCall(n *sitter.Node, depth int) {
	target := n.ChildByFieldName("function")
	argc := countArgs(n.ChildByFieldName("arguments"))
	if target != nil && target.Type() == "generic_function" {
		if inner := target.ChildByFieldName("function"); inner != nil {
			target = inner
		}
	}
	if target != nil {
		switch target.Type() {
		case "identifier":
			if !extract.IsDeniedCall(w.lang, w.text(target)) {
				w.addCall(target, target, "", argc, false, false)
			}
		case "field_expression":
			value := target.ChildByFieldName("value")
			field := target.ChildByFieldName("field")
			if value != nil && field != nil && field.Type() == "field_identifier" {
				w.addCall(target, field, stripSpace(w.text(value)), argc, true, false)
			}
		case "scoped_identifier":
			if name := target.ChildByFieldName("name"); name != nil {
				receiver := ""
				if path := target.ChildByFieldName("path"); path != nil {
					receiver = stripSpace(w.text(path))
				}
				w.addCall(target, name, receiver, argc, false, false)
			}
		}
	}
	w.walkChildren(n, depth)
}

func (w *walker) rustMacro(n *sitter.Node, depth int) {
	var tokens *sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "token_tree" {
			tokens = c
		}
	}
	if m := n.ChildByFieldName("macro"); m != nil {
		nameNode, receiver := m, ""
		if m.Type() == "scoped_identifier" {
			if name := m.ChildByFieldName("name"); name != nil {
				nameNode = name
			}
			if path := m.ChildByFieldName("path"); path != nil {
				receiver = stripSpace(w.text(path))
			}
		}
		name := w.text(nameNode)
		if !extract.IsDeniedCall(w.lang, name) && name != "macro_rules" {
			w.addCall(m, nameNode, receiver, w.tokenTreeArgs(tokens), false, true)
		}
	}
	if tokens != nil {
		w.tokenTreeCalls(tokens, depth+1)
	}
}

// tokenTreeArgs counts the comma-separated arguments of a macro token
// tree. Literals and nested trees are opaque.
func (w *walker) tokenTreeArgs(tt *sitter.Node) int {
	if tt == nil || tt.ChildCount() < 2 {
		return 0
	}
	inner := make([]*sitter.Node, 0, tt.ChildCount())
	for i := 1; i < int(tt.ChildCount())-1; i++ {
		c := tt.Child(i)
		if c.Type() == "line_comment" || c.Type() == "block_comment" {
			continue
		}
		inner = append(inner, c)
	}
	if len(inner) == 0 {
		return 0
	}
	args := 1
	for _, c := range inner {
		if isOpaqueToken(c) {
			continue
		}
		args += strings.Count(w.text(c), ",")
	}
	if last := inner[len(inner)-1]; !isOpaqueToken(last) && strings.HasSuffix(strings.TrimSpace(w.text(last)), ",") {
		args--
	}
	return args
}

func isOpaqueToken(n *sitter.Node) bool {
	switch n.Type() {
	case "token_tree", "string_literal", "raw_string_literal", "char_literal":
		return true
	}
	return false
}

// tokenTreeCalls finds call-shaped token runs inside a macro token tree:
// "name(", "recv.name(", "Path::name(" and nested "name!(". Receivers
// are only recognized when they are a single identifier or self.
func (w *walker) tokenTreeCalls(tt *sitter.Node, depth int) {
	if depth > w.maxDepth {
		return
	}
	count := int(tt.ChildCount())
	for i := 0; i < count; i++ {
		c := tt.Child(i)
		if c.Type() == "token_tree" {
			w.tokenTreeCalls(c, depth+1)
			continue
		}
		if c.Type() != "identifier" || i+1 >= count {
			continue
		}
		next := tt.Child(i + 1)
		if next.Type() == "token_tree" && strings.HasPrefix(w.text(next), "(") {
			w.tokenTreeCall(tt, i, w.tokenTreeArgs(next))
			continue
		}
		if w.text(next) == "!" && i+2 < count && tt.Child(i+2).Type() == "token_tree" {
			name := w.text(c)
			if !extract.IsDeniedCall(w.lang, name) {
				w.addCall(c, c, "", w.tokenTreeArgs(tt.Child(i+2)), false, true)
			}
		}
	}
}

// tokenTreeCall records the call whose name is child i of tt.
func (w *walker) tokenTreeCall(tt *sitter.Node, i, argc int) {
	nameNode := tt.Child(i)
	name := w.text(nameNode)
	if i >= 1 {
		sep := strings.TrimSpace(w.text(tt.Child(i - 1)))
		if sep == "fn" {
			return
		}
		if strings.HasSuffix(sep, ".") || strings.HasSuffix(sep, "::") {
			if i < 2 || len(strings.TrimRight(sep, ".:")) > 0 {
				return
			}
			recv := tt.Child(i - 2)
			if recv.Type() != "identifier" && recv.Type() != "self" {
				return
			}
			method := strings.HasSuffix(sep, ".")
			w.addCall(recv, nameNode, w.text(recv), argc, method, false)
			return
		}
	}
	if !extract.IsDeniedCall(w.lang, name) {
		w.addCall(nameNode, nameNode, "", argc, false, false)
	}
}
