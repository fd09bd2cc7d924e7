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

var goKinds = map[string]NodeKind{
	"function_declaration": NodeKindFunction,
	"method_declaration":   NodeKindMethod,
	"type_spec":            NodeKindType,
	"import_spec":          NodeKindImport,
	"call_expression":      NodeKindCall,
	"comment":              NodeKindSkip,
}

var goHandlers = [numNodeKinds]handler{
	NodeKindFunction: (*walker).goFunction,
	NodeKindMethod:   (*walker).goFunction,
	NodeKindType:     (*walker).goType,
	NodeKindImport:   (*walker).goImport,
	NodeKindCall:     (*walker).goCall,
	NodeKindSkip:     skipNode,
}

// goFunction handles function and method declarations. Declarations
// without a body (assembly stubs) are not recorded.
func (w *walker) goFunction(n *sitter.Node, depth int) {
	nameNode := n.ChildByFieldName("name")
	body := n.ChildByFieldName("body")
	if nameNode == nil || body == nil {
		return
	}
	name := w.text(nameNode)
	info := extract.FunctionInfo{
		Name:          name,
		QualifiedName: name,
		StartLine:     w.line(n),
		EndLine:       w.endLine(n),
		StartColumn:   w.column(n),
		Parameters:    w.goParams(n.ChildByFieldName("parameters")),
		ReturnType:    extract.NormalizeSpace(w.text(n.ChildByFieldName("result"))),
		IsExported:    extract.IsGoExported(name),
		IsStatic:      true,
	}

	if recv := n.ChildByFieldName("receiver"); recv != nil {
		info.ClassName = extract.GoReceiverType(w.goReceiverType(recv))
		info.QualifiedName = w.lang.Qualify(info.ClassName, name)
		info.IsMethod = true
		info.IsStatic = false
	} else {
		info.IsConstructor = extract.IsConstructorName(w.lang, name)
		if info.IsExported {
			w.res.Exports = append(w.res.Exports, extract.ExportInfo{
				Name: name,
				Kind: "function",
				Line: info.StartLine,
			})
		}
	}
	w.res.Functions = append(w.res.Functions, info)

	defer w.enter(info.ClassName, true)()
	w.walk(body, depth+1)
}

func (w *walker) goReceiverType(recv *sitter.Node) string {
	for i := 0; i < int(recv.NamedChildCount()); i++ {
		c := recv.NamedChild(i)
		if c.Type() == "parameter_declaration" {
			return w.text(c.ChildByFieldName("type"))
		}
	}
	return ""
}

// goParams reads a parameter_list. Names sharing one type ("a, b int")
// are separate parameters; unnamed parameters have only a type.
func (w *walker) goParams(list *sitter.Node) []extract.Parameter {
	params := []extract.Parameter{}
	if list == nil {
		return params
	}
	for i := 0; i < int(list.NamedChildCount()); i++ {
		c := list.NamedChild(i)
		switch c.Type() {
		case "parameter_declaration":
			typ := extract.NormalizeSpace(w.text(c.ChildByFieldName("type")))
			named := false
			for j := 0; j < int(c.NamedChildCount()); j++ {
				if id := c.NamedChild(j); id.Type() == "identifier" {
					params = append(params, extract.Parameter{Name: w.text(id), Type: typ})
					named = true
				}
			}
			if !named {
				params = append(params, extract.Parameter{Type: typ})
			}
		case "variadic_parameter_declaration":
			params = append(params, extract.Parameter{
				Name: w.text(c.ChildByFieldName("name")),
				Type: "..." + extract.NormalizeSpace(w.text(c.ChildByFieldName("type"))),
			})
		}
	}
	return params
}

// goType records package-level struct and interface types.
func (w *walker) goType(n *sitter.Node, _ int) {
	if w.inFunction {
		return
	}
	nameNode := n.ChildByFieldName("name")
	typ := n.ChildByFieldName("type")
	if nameNode == nil || typ == nil {
		return
	}
	name := w.text(nameNode)
	c := extract.ContainerInfo{
		Name:        name,
		BaseTypes:   []string{},
		MethodNames: []string{},
		IsExported:  extract.IsGoExported(name),
		StartLine:   w.line(n),
		EndLine:     w.endLine(n),
	}

	switch typ.Type() {
	case "struct_type":
		c.Kind = extract.ContainerStruct
		for i := 0; i < int(typ.NamedChildCount()); i++ {
			if list := typ.NamedChild(i); list.Type() == "field_declaration_list" {
				w.goEmbeddedFields(&c, list)
			}
		}
	case "interface_type":
		c.Kind = extract.ContainerInterface
		w.goInterfaceElems(&c, typ)
	default:
		return
	}
	w.addContainer(c)
}

func (w *walker) goEmbeddedFields(c *extract.ContainerInfo, list *sitter.Node) {
	for i := 0; i < int(list.NamedChildCount()); i++ {
		field := list.NamedChild(i)
		if field.Type() != "field_declaration" {
			continue
		}
		embedded := true
		for j := 0; j < int(field.NamedChildCount()); j++ {
			if field.NamedChild(j).Type() == "field_identifier" {
				embedded = false
				break
			}
		}
		if !embedded {
			continue
		}
		if t := field.ChildByFieldName("type"); t != nil {
			c.BaseTypes = append(c.BaseTypes, strings.TrimPrefix(stripSpace(w.text(t)), "*"))
		}
	}
}

func (w *walker) goInterfaceElems(c *extract.ContainerInfo, iface *sitter.Node) {
	for i := 0; i < int(iface.NamedChildCount()); i++ {
		elem := iface.NamedChild(i)
		switch elem.Type() {
		case "method_elem", "method_spec":
			if name := elem.ChildByFieldName("name"); name != nil {
				c.MethodNames = append(c.MethodNames, w.text(name))
			}
		case "type_elem", "constraint_elem", "interface_type_name", "type_identifier", "qualified_type":
			// Unions and approximation elements constrain, they do not embed.
			if t := extract.NormalizeSpace(w.text(elem)); !strings.ContainsAny(t, "|~ ") {
				c.BaseTypes = append(c.BaseTypes, t)
			}
		}
	}
}

func (w *walker) goImport(n *sitter.Node, _ int) {
	path := n.ChildByFieldName("path")
	if path == nil {
		return
	}
	rec := extract.GoImportRecord(w.text(n.ChildByFieldName("name")), strings.Trim(w.text(path), "\"`"), w.line(path))
	w.res.Imports = append(w.res.Imports, rec)
	w.importLocals[rec.Local] = true
}

func (w *walker) goCall(n *sitter.Node, depth int) {
	target := n.ChildByFieldName("function")
	argc := countArgs(n.ChildByFieldName("arguments"))
	if target != nil {
		switch target.Type() {
		case "identifier":
			if !extract.IsDeniedCall(w.lang, w.text(target)) {
				w.addCall(target, target, "", argc, false, false)
			}
		case "selector_expression":
			operand := target.ChildByFieldName("operand")
			field := target.ChildByFieldName("field")
			if operand != nil && field != nil {
				receiver := stripSpace(w.text(operand))
				w.addCall(target, field, receiver, argc, !w.importLocals[receiver], false)
			}
		}
	}
	w.walkChildren(n, depth)
}
