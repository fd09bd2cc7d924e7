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
	"regexp"
	"strings"

	"github.com/ruizrica/drift-sub003/services/callgraph/extract"
)

// Go pattern families.
var (
	goFuncRe      = regexp.MustCompile(`(?m)^func\s*(\(([^()]*)\))?\s*([A-Za-z_][A-Za-z0-9_]*)\s*`)
	goTypeRe      = regexp.MustCompile(`(?m)^type\s+([A-Za-z_][A-Za-z0-9_]*)\s*(\[[^\]]*\])?\s*(struct|interface)\s*\{`)
	goTypeGroupRe = regexp.MustCompile(`(?m)^type\s*\(`)
	goGroupSpecRe = regexp.MustCompile(`^[ \t]*([A-Za-z_][A-Za-z0-9_]*)\s*(\[[^\]]*\])?\s*(struct|interface)\s*\{`)
	goImportRe    = regexp.MustCompile(`(?m)^import\s*`)
	goMethodElem  = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

	goSelectorCallRe = regexp.MustCompile(`\.\s*([A-Za-z_][A-Za-z0-9_]*)\s*(?:\[[^\]()]*\]\s*)?\(`)
	goBareCallRe     = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\s*(?:\[[^\]()]*\]\s*)?\(`)
)

func extractGo(f *file) {
	declared := goFunctions(f)
	ifaces := goContainers(f)
	locals := goImports(f)
	goCalls(f, declared, locals, ifaces)
}

// GoParams parses a Go parameter list with Go's grouping rules.
//
// Description:
//
//	When at least one entry has a name and a type, entries with a single
//	token are names that share the next entry's type ("a, b int"). When no
//	entry has two tokens, every entry is an unnamed type.
func GoParams(text string) []extract.Parameter {
	params := []extract.Parameter{}
	var items []string
	for _, raw := range splitTopLevel(text, ',') {
		if s := extract.NormalizeSpace(raw); s != "" {
			items = append(items, s)
		}
	}

	named := false
	for _, it := range items {
		if name, _ := splitGoParam(it); name != "" {
			named = true
			break
		}
	}

	if !named {
		for _, it := range items {
			params = append(params, extract.Parameter{Type: it})
		}
		return params
	}

	var pending []string
	for _, it := range items {
		name, typ := splitGoParam(it)
		if name == "" {
			pending = append(pending, it)
			continue
		}
		for _, p := range pending {
			params = append(params, extract.Parameter{Name: p, Type: typ})
		}
		pending = pending[:0]
		params = append(params, extract.Parameter{Name: name, Type: typ})
	}
	for _, p := range pending {
		params = append(params, extract.Parameter{Name: p})
	}
	return params
}

// splitGoParam splits "name type" into its parts. A lone token returns an
// empty name.
func splitGoParam(item string) (string, string) {
	sp := strings.IndexByte(item, ' ')
	if sp < 0 {
		return "", item
	}
	name := item[:sp]
	for i := 0; i < len(name); i++ {
		if !isIdentByte(name[i]) {
			return "", item
		}
	}
	return name, strings.TrimSpace(item[sp+1:])
}

// goBodyOpen finds the '{' opening a function body after its signature,
// or -1 when the line ends first (a declaration without body).
func goBodyOpen(text string, i int) int {
	depth := 0
	for ; i < len(text); i++ {
		switch text[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case '{':
			if depth == 0 {
				// "interface{}" and "struct{}" in a result type are not the body.
				w := prevWord(text, i)
				if w == "interface" || w == "struct" {
					if c := matchForward(text, i); c >= 0 {
						i = c
						continue
					}
				}
				return i
			}
		case '\n':
			if depth == 0 {
				return -1
			}
		}
	}
	return -1
}

// goFunctions records declarations and returns the offsets of their names.
func goFunctions(f *file) map[int]bool {
	declared := map[int]bool{}
	text := f.text
	for _, m := range goFuncRe.FindAllStringSubmatchIndex(text, -1) {
		nameStart, nameEnd := m[6], m[7]
		name := text[nameStart:nameEnd]
		declared[nameStart] = true

		i := m[1]
		if i < len(text) && text[i] == '[' {
			if c := matchForward(text, i); c >= 0 {
				i = skipSpaceForward(text, c+1)
			}
		}
		if i >= len(text) || text[i] != '(' {
			continue
		}
		pclose := matchForward(text, i)
		if pclose < 0 {
			f.res.AddError("unbalanced parameter list for func %s at line %d", name, f.line(m[0]))
			continue
		}
		open := goBodyOpen(text, pclose+1)
		if open < 0 {
			continue
		}
		close := matchForward(text, open)
		if close < 0 {
			f.res.AddError("unterminated body for func %s at line %d", name, f.line(m[0]))
			close = len(text) - 1
		}

		info := extract.FunctionInfo{
			Name:          name,
			QualifiedName: name,
			StartLine:     f.line(m[0]),
			EndLine:       f.line(close),
			StartColumn:   f.column(m[0]),
			Parameters:    GoParams(text[i+1 : pclose]),
			ReturnType:    extract.NormalizeSpace(text[pclose+1 : open]),
			IsExported:    extract.IsGoExported(name),
			IsStatic:      true,
		}

		if m[2] >= 0 {
			recv := extract.NormalizeSpace(text[m[4]:m[5]])
			typ := recv
			if rname, t := splitGoParam(recv); rname != "" {
				typ = t
			}
			info.ClassName = extract.GoReceiverType(typ)
			info.QualifiedName = f.lang.Qualify(info.ClassName, name)
			info.IsMethod = true
			info.IsStatic = false
		} else {
			info.IsConstructor = extract.IsConstructorName(f.lang, name)
			if info.IsExported {
				f.res.Exports = append(f.res.Exports, extract.ExportInfo{
					Name: name,
					Kind: "function",
					Line: info.StartLine,
				})
			}
		}
		f.res.Functions = append(f.res.Functions, info)
	}
	return declared
}

// goContainers records struct and interface types. Returns interface body
// ranges so their method elements are not taken for calls.
func goContainers(f *file) [][2]int {
	text := f.text
	var ifaces [][2]int
	record := func(start int, name, keyword string, open int) int {
		close := goContainer(f, start, name, keyword, open)
		if keyword == "interface" {
			ifaces = append(ifaces, [2]int{open, close})
		}
		return close
	}

	for _, m := range goTypeRe.FindAllStringSubmatchIndex(text, -1) {
		record(m[2], text[m[2]:m[3]], text[m[6]:m[7]], m[1]-1)
	}

	for _, g := range goTypeGroupRe.FindAllStringIndex(text, -1) {
		gclose := matchForward(text, g[1]-1)
		if gclose < 0 {
			continue
		}
		i := g[1]
		for i < gclose {
			end := f.lines.lineEnd(i, len(text))
			if end > gclose {
				end = gclose
			}
			if m := goGroupSpecRe.FindStringSubmatchIndex(text[i:end]); m != nil {
				open := i + m[1] - 1
				i = record(i+m[2], text[i+m[2]:i+m[3]], text[i+m[6]:i+m[7]], open) + 1
				continue
			}
			i = end + 1
		}
	}
	return ifaces
}

func goContainer(f *file, start int, name, keyword string, open int) int {
	text := f.text
	close := matchForward(text, open)
	if close < 0 {
		close = len(text) - 1
	}
	c := extract.ContainerInfo{
		Name:        name,
		Kind:        extract.ContainerStruct,
		BaseTypes:   []string{},
		MethodNames: []string{},
		IsExported:  extract.IsGoExported(name),
		StartLine:   f.line(start),
		EndLine:     f.line(close),
	}
	if keyword == "interface" {
		c.Kind = extract.ContainerInterface
	}

	// Entries end at a newline or ';' at the body's own depth.
	depth := 0
	entryStart := open + 1
	for i := open + 1; i < close; i++ {
		switch text[i] {
		case '{', '(', '[':
			depth++
		case '}', ')', ']':
			depth--
		}
		if depth == 0 && (text[i] == '\n' || text[i] == ';') {
			goContainerEntry(&c, text[entryStart:i])
			entryStart = i + 1
		}
	}
	if entryStart < close {
		goContainerEntry(&c, text[entryStart:close])
	}

	f.res.Containers = append(f.res.Containers, c)
	if c.IsExported {
		f.res.Exports = append(f.res.Exports, extract.ExportInfo{
			Name: name,
			Kind: string(c.Kind),
			Line: c.StartLine,
		})
	}
	return close
}

// goContainerEntry classifies one body entry: an interface method, an
// embedded type, or (ignored) a named field.
func goContainerEntry(c *extract.ContainerInfo, entry string) {
	var tokens []string
	for _, tok := range strings.Fields(entry) {
		if strings.HasPrefix(tok, "`") || strings.HasPrefix(tok, `"`) {
			break
		}
		tokens = append(tokens, tok)
	}
	if len(tokens) == 0 {
		return
	}

	if c.Kind == extract.ContainerInterface {
		if m := goMethodElem.FindStringSubmatch(strings.Join(tokens, " ")); m != nil {
			c.MethodNames = append(c.MethodNames, m[1])
			return
		}
		if len(tokens) == 1 && !strings.ContainsAny(tokens[0], "|~") {
			c.BaseTypes = append(c.BaseTypes, tokens[0])
		}
		return
	}

	if len(tokens) == 1 {
		c.BaseTypes = append(c.BaseTypes, strings.TrimPrefix(tokens[0], "*"))
	}
}

// goImports records import specs and returns the local package names.
func goImports(f *file) map[string]bool {
	text := f.text
	locals := map[string]bool{}

	spec := func(from, to int) {
		// Strings are blanked in text but their quotes survive, so the
		// path is read from the original source between them.
		q := strings.IndexByte(text[from:to], '"')
		if q < 0 {
			return
		}
		q += from
		qe := strings.IndexByte(text[q+1:to], '"')
		if qe < 0 {
			return
		}
		qe += q + 1
		alias := strings.TrimSpace(text[from:q])
		rec := extract.GoImportRecord(alias, f.src[q+1:qe], f.line(q))
		f.res.Imports = append(f.res.Imports, rec)
		locals[rec.Local] = true
	}

	for _, m := range goImportRe.FindAllStringIndex(text, -1) {
		i := m[1]
		if i < len(text) && text[i] == '(' {
			close := matchForward(text, i)
			if close < 0 {
				continue
			}
			start := i + 1
			for j := i + 1; j <= close; j++ {
				if text[j] == '\n' || text[j] == ';' || j == close {
					spec(start, j)
					start = j + 1
				}
			}
			continue
		}
		spec(i, f.lines.lineEnd(i, len(text)))
	}
	return locals
}

func goCalls(f *file, declared map[int]bool, importLocals map[string]bool, ifaces [][2]int) {
	text := f.text
	for _, b := range ifaces {
		text = blankRange(text, b[0]+1, b[1])
	}
	taken := map[int]bool{}

	emit := func(exprStart, nameStart, nameEnd, open int, receiver string, method bool) {
		name := f.src[nameStart:nameEnd]
		argc := 0
		if close := matchForward(text, open); close >= 0 {
			argc = countArgs(text[open+1 : close])
		}
		f.res.Calls = append(f.res.Calls, extract.CallInfo{
			CalleeName:        name,
			Receiver:          receiver,
			FullExpression:    stripSpace(f.src[exprStart:nameEnd]),
			Line:              f.line(exprStart),
			Column:            f.column(exprStart),
			ArgumentCount:     argc,
			IsMethodCall:      method,
			IsConstructorCall: extract.IsConstructorName(f.lang, name),
		})
		taken[nameStart] = true
	}

	for _, m := range goSelectorCallRe.FindAllStringSubmatchIndex(text, -1) {
		if m[0] > 0 && text[m[0]-1] == '.' {
			continue // variadic "..."
		}
		exprStart := receiverStart(text, m[0], false)
		receiver := stripSpace(f.src[exprStart:m[0]])
		emit(exprStart, m[2], m[3], m[1]-1, receiver, !importLocals[receiver])
	}

	for _, m := range goBareCallRe.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[2]:m[3]]
		if taken[m[2]] || declared[m[2]] || extract.IsDeniedCall(f.lang, name) {
			continue
		}
		if j := skipSpaceBack(text, m[2]-1); j >= 0 && text[j] == '.' {
			continue
		}
		if w := prevWord(text, m[2]); w == "func" || w == "type" {
			continue
		}
		emit(m[2], m[2], m[3], m[1]-1, "", false)
	}
}
