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

// Rust pattern families. Applied in the order they are declared.
var (
	rustImplRe   = regexp.MustCompile(`\bimpl\b`)
	rustTraitRe  = regexp.MustCompile(`\btrait\s+([A-Za-z_][A-Za-z0-9_]*)`)
	rustFnRe     = regexp.MustCompile(`\bfn\s+([A-Za-z_][A-Za-z0-9_]*)`)
	rustStructRe = regexp.MustCompile(`\b(struct|union)\s+([A-Za-z_][A-Za-z0-9_]*)`)
	rustEnumRe   = regexp.MustCompile(`\benum\s+([A-Za-z_][A-Za-z0-9_]*)`)
	rustUseRe    = regexp.MustCompile(`\buse\s+`)
	rustForRe    = regexp.MustCompile(`\bfor\b`)
	rustWhereRe  = regexp.MustCompile(`\bwhere\b`)
	rustSelfRe   = regexp.MustCompile(`^(&\s*('[A-Za-z_][A-Za-z0-9_]*\s+)?)?(mut\s+)?self$`)
	rustUseTidy  = regexp.MustCompile(`\s*(::|[{},])\s*`)
	rustAttrRe   = regexp.MustCompile(`#!?\[`)
	rustRulesRe  = regexp.MustCompile(`\bmacro_rules\s*!\s*[A-Za-z_][A-Za-z0-9_]*\s*`)

	rustMacroCallRe  = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\s*!\s*[(\[{]`)
	rustMethodCallRe = regexp.MustCompile(`\.\s*([A-Za-z_][A-Za-z0-9_]*)\s*(?:::\s*<[^(){};]*>\s*)?\(`)
	rustPathCallRe   = regexp.MustCompile(`::\s*([A-Za-z_][A-Za-z0-9_]*)\s*(?:::\s*<[^(){};]*>\s*)?\(`)
	rustBareCallRe   = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\s*(?:::\s*<[^(){};]*>\s*)?\(`)
)

var rustModifierWords = map[string]bool{
	"pub": true, "async": true, "const": true, "unsafe": true, "extern": true, "default": true,
}

// rustDeclKeywords precede a name that is declared, not called.
var rustDeclKeywords = map[string]bool{
	"fn": true, "struct": true, "enum": true, "union": true, "trait": true, "impl": true, "type": true, "mod": true,
}

// rustScope is an impl or trait body that qualifies the functions in it.
type rustScope struct {
	className string
	trait     bool
	open      int
	close     int
}

// rustFn is a function found by the first pass, before classification.
type rustFn struct {
	name       string
	nameAt     int
	start      int
	mods       []string
	params     string
	returnType string
	bodyOpen   int // -1 for a signature without body
	bodyClose  int
}

func (fn rustFn) hasMod(m string) bool {
	for _, x := range fn.mods {
		if x == m {
			return true
		}
	}
	return false
}

func extractRust(f *file) {
	scopes := rustScopes(f)
	fns := rustFunctions(f)
	rustClassifyFunctions(f, scopes, fns)
	enums := rustContainers(f, scopes, fns)
	rustImports(f)
	rustCalls(f, fns, enums)
}

// rustModifiers walks backward from a keyword over visibility and
// qualifier words. Returns the offset of the first modifier (or kw) and
// the modifiers found.
func rustModifiers(text string, kw int) (int, []string) {
	start := kw
	var mods []string
	i := skipSpaceBack(text, kw-1)
	for i >= 0 {
		switch {
		case text[i] == ')':
			open := matchBackward(text, i)
			if open < 0 {
				return start, mods
			}
			j := skipSpaceBack(text, open-1)
			if j < 2 || text[j-2:j+1] != "pub" || (j >= 3 && isIdentByte(text[j-3])) {
				return start, mods
			}
			start = j - 2
			mods = append(mods, "pub")
			i = skipSpaceBack(text, j-3)

		case text[i] == '"':
			j := i - 1
			for j >= 0 && text[j] != '"' {
				j--
			}
			k := skipSpaceBack(text, j-1)
			if j < 0 || k < 5 || text[k-5:k+1] != "extern" {
				return start, mods
			}
			start = k - 5
			mods = append(mods, "extern")
			i = skipSpaceBack(text, k-6)

		case isIdentByte(text[i]):
			j := i
			for j >= 0 && isIdentByte(text[j]) {
				j--
			}
			word := text[j+1 : i+1]
			if !rustModifierWords[word] {
				return start, mods
			}
			start = j + 1
			mods = append(mods, word)
			i = skipSpaceBack(text, j)

		default:
			return start, mods
		}
	}
	return start, mods
}

// atItemStart reports whether offset begins an item or statement.
func atItemStart(text string, offset int) bool {
	i := skipSpaceBack(text, offset-1)
	if i < 0 {
		return true
	}
	switch text[i] {
	case ';', '{', '}', ']':
		return true
	}
	return false
}

// rustAttributes collects the #[...] attributes directly before start,
// in source order, as written in the original source.
func rustAttributes(f *file, start int) []string {
	var attrs []string
	i := skipSpaceBack(f.text, start-1)
	for i >= 0 && f.text[i] == ']' {
		open := matchBackward(f.text, i)
		if open < 1 || f.text[open-1] != '#' {
			break
		}
		attrs = append(attrs, f.src[open-1:i+1])
		i = skipSpaceBack(f.text, open-2)
	}
	for l, r := 0, len(attrs)-1; l < r; l, r = l+1, r-1 {
		attrs[l], attrs[r] = attrs[r], attrs[l]
	}
	return attrs
}

// skipGenerics skips a generic parameter list starting at i, if any.
func skipGenerics(text string, i int) int {
	i = skipSpaceForward(text, i)
	if i < len(text) && text[i] == '<' {
		if c := matchForward(text, i); c >= 0 {
			return skipSpaceForward(text, c+1)
		}
	}
	return i
}

// headerEnd finds the first '{' or ';' at bracket depth zero from i.
func headerEnd(text string, i int) int {
	depth := 0
	for ; i < len(text); i++ {
		switch text[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case '<':
			depth++
		case '>':
			if i > 0 && (text[i-1] == '-' || text[i-1] == '=') {
				continue
			}
			depth--
		case '{', ';':
			if depth <= 0 {
				return i
			}
		}
	}
	return -1
}

func rustScopes(f *file) []rustScope {
	var scopes []rustScope
	text := f.text

	for _, m := range rustImplRe.FindAllStringIndex(text, -1) {
		start, _ := rustModifiers(text, m[0])
		if !atItemStart(text, start) {
			continue
		}
		i := skipGenerics(text, m[1])
		open := headerEnd(text, i)
		if open < 0 || text[open] != '{' {
			continue
		}
		header := text[i:open]
		if w := rustWhereRe.FindStringIndex(header); w != nil {
			header = header[:w[0]]
		}
		// "impl Trait for Type" qualifies methods with Type.
		typ := header
		if loc := rustForRe.FindStringIndex(header); loc != nil {
			typ = header[loc[1]:]
		}
		close := matchForward(text, open)
		if close < 0 {
			close = len(text) - 1
		}
		scopes = append(scopes, rustScope{
			className: extract.RustTypeName(typ),
			open:      open,
			close:     close,
		})
	}

	for _, m := range rustTraitRe.FindAllStringSubmatchIndex(text, -1) {
		start, _ := rustModifiers(text, m[0])
		if !atItemStart(text, start) {
			continue
		}
		open := headerEnd(text, m[1])
		if open < 0 || text[open] != '{' {
			continue
		}
		close := matchForward(text, open)
		if close < 0 {
			close = len(text) - 1
		}
		scopes = append(scopes, rustScope{
			className: text[m[2]:m[3]],
			trait:     true,
			open:      open,
			close:     close,
		})
	}
	return scopes
}

func rustFunctions(f *file) []rustFn {
	var fns []rustFn
	text := f.text
	for _, m := range rustFnRe.FindAllStringSubmatchIndex(text, -1) {
		start, mods := rustModifiers(text, m[0])
		i := skipGenerics(text, m[1])
		if i >= len(text) || text[i] != '(' {
			continue
		}
		pclose := matchForward(text, i)
		if pclose < 0 {
			f.res.AddError("unbalanced parameter list for fn %s at line %d", text[m[2]:m[3]], f.line(m[0]))
			continue
		}

		fn := rustFn{
			name:     text[m[2]:m[3]],
			nameAt:   m[2],
			start:    start,
			mods:     mods,
			params:   text[i+1 : pclose],
			bodyOpen: -1,
		}

		end := headerEnd(text, pclose+1)
		if end < 0 {
			end = len(text)
		}
		tail := text[pclose+1 : end]
		if w := rustWhereRe.FindStringIndex(tail); w != nil {
			tail = tail[:w[0]]
		}
		if t := strings.TrimSpace(tail); strings.HasPrefix(t, "->") {
			fn.returnType = extract.NormalizeSpace(t[2:])
		}

		if end < len(text) && text[end] == '{' {
			fn.bodyOpen = end
			fn.bodyClose = matchForward(text, end)
			if fn.bodyClose < 0 {
				f.res.AddError("unterminated body for fn %s at line %d", fn.name, f.line(m[0]))
				fn.bodyClose = len(text) - 1
			}
		} else {
			fn.bodyClose = end
			if fn.bodyClose >= len(text) {
				fn.bodyClose = len(text) - 1
			}
		}
		fns = append(fns, fn)
	}
	return fns
}

// rustEnclosingScope returns the innermost impl or trait directly holding
// the function, or nil when the function is free or nested in another
// function's body.
func rustEnclosingScope(scopes []rustScope, fns []rustFn, fn rustFn) *rustScope {
	var best *rustScope
	for i := range scopes {
		s := &scopes[i]
		if fn.start > s.open && fn.start < s.close {
			if best == nil || s.open > best.open {
				best = s
			}
		}
	}
	if best == nil {
		return nil
	}
	for _, other := range fns {
		if other.bodyOpen < 0 || other.nameAt == fn.nameAt {
			continue
		}
		if other.bodyOpen > best.open && other.bodyOpen < fn.start && other.bodyClose > fn.start {
			return nil
		}
	}
	return best
}

// rustNestedInFunction reports whether offset lies inside any function body.
func rustNestedInFunction(fns []rustFn, offset int) bool {
	for _, fn := range fns {
		if fn.bodyOpen >= 0 && offset > fn.bodyOpen && offset < fn.bodyClose {
			return true
		}
	}
	return false
}

// rustParams parses a parameter list. hasSelf is true when the list
// starts with a self receiver.
func rustParams(text string) ([]extract.Parameter, bool) {
	params := []extract.Parameter{}
	hasSelf := false
	for idx, raw := range splitTopLevel(text, ',') {
		p := strings.TrimSpace(raw)
		for strings.HasPrefix(p, "#[") {
			close := matchForward(p, 1)
			if close < 0 {
				break
			}
			p = strings.TrimSpace(p[close+1:])
		}
		if p == "" {
			continue
		}
		if rustSelfRe.MatchString(extract.NormalizeSpace(p)) {
			if idx == 0 {
				hasSelf = true
			}
			params = append(params, extract.Parameter{
				Name: "self",
				Type: extract.NormalizeSpace(strings.TrimSuffix(p, "self")),
			})
			continue
		}
		colon := indexTopLevelColon(p)
		if colon < 0 {
			params = append(params, extract.Parameter{Type: extract.NormalizeSpace(p)})
			continue
		}
		name := extract.NormalizeSpace(p[:colon])
		name = strings.TrimPrefix(name, "mut ")
		if idx == 0 && name == "self" {
			hasSelf = true
		}
		params = append(params, extract.Parameter{
			Name: name,
			Type: extract.NormalizeSpace(p[colon+1:]),
		})
	}
	return params, hasSelf
}

func rustClassifyFunctions(f *file, scopes []rustScope, fns []rustFn) {
	for _, fn := range fns {
		if fn.bodyOpen < 0 {
			// Signatures only name trait methods; see rustContainers.
			continue
		}
		params, hasSelf := rustParams(fn.params)
		info := extract.FunctionInfo{
			Name:          fn.name,
			QualifiedName: fn.name,
			StartLine:     f.line(fn.start),
			EndLine:       f.line(fn.bodyClose),
			StartColumn:   f.column(fn.start),
			Parameters:    params,
			ReturnType:    fn.returnType,
			IsExported:    fn.hasMod("pub"),
			IsAsync:       fn.hasMod("async"),
			IsStatic:      true,
			Decorators:    rustAttributes(f, fn.start),
		}
		if scope := rustEnclosingScope(scopes, fns, fn); scope != nil {
			info.ClassName = scope.className
			info.QualifiedName = f.lang.Qualify(scope.className, fn.name)
			info.IsMethod = true
			info.IsStatic = !hasSelf
			info.IsConstructor = extract.IsRustConstructor(fn.name, fn.returnType, scope.className, hasSelf)
		} else if info.IsExported && !rustNestedInFunction(fns, fn.start) {
			f.res.Exports = append(f.res.Exports, extract.ExportInfo{
				Name: fn.name,
				Kind: "function",
				Line: info.StartLine,
			})
		}
		f.res.Functions = append(f.res.Functions, info)
	}
}

// rustContainers records structs, enums and traits. Returns enum body
// ranges so call recognition can skip tuple variants.
func rustContainers(f *file, scopes []rustScope, fns []rustFn) [][2]int {
	text := f.text
	var enumBodies [][2]int

	add := func(start, end int, name string, kind extract.ContainerKind, mods []string, bases, methods []string) {
		c := extract.ContainerInfo{
			Name:        name,
			Kind:        kind,
			BaseTypes:   bases,
			MethodNames: methods,
			IsExported:  containsString(mods, "pub"),
			StartLine:   f.line(start),
			EndLine:     f.line(end),
		}
		f.res.Containers = append(f.res.Containers, c)
		if c.IsExported && !rustNestedInFunction(fns, start) {
			f.res.Exports = append(f.res.Exports, extract.ExportInfo{
				Name: name,
				Kind: string(kind),
				Line: c.StartLine,
			})
		}
	}

	for _, m := range rustStructRe.FindAllStringSubmatchIndex(text, -1) {
		start, mods := rustModifiers(text, m[0])
		if !atItemStart(text, start) {
			continue
		}
		i := skipGenerics(text, m[1])
		end := -1
		switch {
		case i < len(text) && text[i] == '(':
			if c := matchForward(text, i); c >= 0 {
				end = headerEnd(text, c+1)
			}
		default:
			end = headerEnd(text, i)
			if end >= 0 && text[end] == '{' {
				end = matchForward(text, end)
			}
		}
		if end < 0 {
			end = len(text) - 1
		}
		add(start, end, text[m[4]:m[5]], extract.ContainerStruct, mods, []string{}, []string{})
	}

	for _, m := range rustEnumRe.FindAllStringSubmatchIndex(text, -1) {
		start, mods := rustModifiers(text, m[0])
		if !atItemStart(text, start) {
			continue
		}
		open := headerEnd(text, m[1])
		if open < 0 || text[open] != '{' {
			continue
		}
		end := matchForward(text, open)
		if end < 0 {
			end = len(text) - 1
		}
		enumBodies = append(enumBodies, [2]int{open, end})
		add(start, end, text[m[2]:m[3]], extract.ContainerEnum, mods, []string{}, []string{})
	}

	for _, m := range rustTraitRe.FindAllStringSubmatchIndex(text, -1) {
		start, mods := rustModifiers(text, m[0])
		if !atItemStart(text, start) {
			continue
		}
		i := skipGenerics(text, m[1])
		open := headerEnd(text, i)
		if open < 0 || text[open] != '{' {
			continue
		}
		header := text[i:open]
		if w := rustWhereRe.FindStringIndex(header); w != nil {
			header = header[:w[0]]
		}
		bases := []string{}
		if h := strings.TrimSpace(header); strings.HasPrefix(h, ":") {
			for _, b := range splitTopLevel(h[1:], '+') {
				if b = extract.NormalizeSpace(b); b != "" {
					bases = append(bases, b)
				}
			}
		}
		end := matchForward(text, open)
		if end < 0 {
			end = len(text) - 1
		}
		methods := []string{}
		for _, fn := range fns {
			if fn.start <= open || fn.start >= end {
				continue
			}
			if s := rustEnclosingScope(scopes, fns, fn); s != nil && s.trait && s.open == open {
				methods = append(methods, fn.name)
			}
		}
		add(start, end, text[m[2]:m[3]], extract.ContainerTrait, mods, bases, methods)
	}
	return enumBodies
}

func containsString(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

func rustImports(f *file) {
	text := f.text
	for _, m := range rustUseRe.FindAllStringIndex(text, -1) {
		start, mods := rustModifiers(text, m[0])
		if !atItemStart(text, start) {
			continue
		}
		end := strings.IndexByte(text[m[1]:], ';')
		if end < 0 {
			continue
		}
		tree := rustUseTidy.ReplaceAllString(extract.NormalizeSpace(text[m[1]:m[1]+end]), "$1")
		line := f.line(start)
		isPub := containsString(mods, "pub")

		for _, imp := range RustUseTree("", tree) {
			imp.Line = line
			f.res.Imports = append(f.res.Imports, imp)
			if isPub {
				f.res.Exports = append(f.res.Exports, extract.ExportInfo{
					Name:       imp.Local,
					Source:     imp.Source,
					Kind:       "reexport",
					IsReExport: true,
					Line:       line,
				})
			}
		}
	}
}

// RustUseTree expands a use tree into import records.
//
// Description:
//
//	The tree must be whitespace-normalized around "::", braces and commas
//	("std::collections::{HashMap,HashSet as Set}"). Handles plain paths,
//	"as" aliases, braced groups (nested), "self" inside a group and "*"
//	globs. A single-segment path ("use serde;") imports a whole crate.
//
// Inputs:
//   - prefix: Path accumulated by enclosing groups. Empty at top level.
//   - tree: The use tree text.
//
// Outputs:
//   - []extract.ImportInfo: Records with Line unset.
func RustUseTree(prefix, tree string) []extract.ImportInfo {
	tree = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tree), "::"))
	if tree == "" {
		return nil
	}

	if strings.HasSuffix(tree, "}") {
		open := strings.IndexByte(tree, '{')
		if open < 0 {
			return nil
		}
		base := strings.TrimSuffix(tree[:open], "::")
		p := joinRustPath(prefix, base)
		var out []extract.ImportInfo
		for _, item := range splitTopLevel(tree[open+1:len(tree)-1], ',') {
			out = append(out, RustUseTree(p, item)...)
		}
		return out
	}

	path, alias := tree, ""
	if i := strings.LastIndex(tree, " as "); i >= 0 {
		path, alias = strings.TrimSpace(tree[:i]), strings.TrimSpace(tree[i+4:])
	}

	full := joinRustPath(prefix, path)
	segs := strings.Split(full, "::")
	last := segs[len(segs)-1]
	source := strings.Join(segs[:len(segs)-1], "::")

	switch {
	case last == "*":
		return []extract.ImportInfo{{Source: source, Imported: "*", Local: "*", IsNamespace: true}}

	case last == "self":
		local := alias
		if local == "" && len(segs) > 1 {
			local = segs[len(segs)-2]
		}
		return []extract.ImportInfo{{Source: source, Imported: "self", Local: local, IsNamespace: true}}

	case len(segs) == 1:
		local := alias
		if local == "" {
			local = last
		}
		return []extract.ImportInfo{{Source: last, Imported: last, Local: local, IsNamespace: true}}
	}

	local := alias
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

// rustCallText blanks attributes, macro_rules bodies and enum bodies so
// that none of them yield call sites.
func rustCallText(f *file, enumBodies [][2]int) string {
	text := f.text
	for _, m := range rustAttrRe.FindAllStringIndex(text, -1) {
		if close := matchForward(text, m[1]-1); close >= 0 {
			text = blankRange(text, m[0], close+1)
		}
	}
	for _, m := range rustRulesRe.FindAllStringIndex(text, -1) {
		if m[1] < len(text) {
			if close := matchForward(text, m[1]); close >= 0 {
				text = blankRange(text, m[0], close+1)
			}
		}
	}
	for _, b := range enumBodies {
		text = blankRange(text, b[0]+1, b[1])
	}
	return text
}

// prevWord returns the identifier ending right before offset, skipping
// whitespace.
func prevWord(text string, offset int) string {
	i := skipSpaceBack(text, offset-1)
	j := i
	for j >= 0 && isIdentByte(text[j]) {
		j--
	}
	return text[j+1 : i+1]
}

func rustCalls(f *file, fns []rustFn, enumBodies [][2]int) {
	text := rustCallText(f, enumBodies)
	declared := make(map[int]bool, len(fns))
	for _, fn := range fns {
		declared[fn.nameAt] = true
	}
	taken := map[int]bool{}

	emit := func(exprStart, nameStart, nameEnd, open int, receiver string, method, macro bool) {
		name := f.src[nameStart:nameEnd]
		argc := 0
		if close := matchForward(text, open); close >= 0 {
			argc = countArgs(text[open+1 : close])
		}
		full := stripSpace(f.src[exprStart:nameEnd])
		if macro {
			full += "!"
		}
		f.res.Calls = append(f.res.Calls, extract.CallInfo{
			CalleeName:        name,
			Receiver:          receiver,
			FullExpression:    full,
			Line:              f.line(exprStart),
			Column:            f.column(exprStart),
			ArgumentCount:     argc,
			IsMethodCall:      method,
			IsConstructorCall: !macro && extract.IsConstructorName(f.lang, name),
			IsMacro:           macro,
		})
		taken[nameStart] = true
	}

	for _, m := range rustMacroCallRe.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[2]:m[3]]
		if extract.IsDeniedCall(f.lang, name) || name == "macro_rules" {
			continue
		}
		exprStart, receiver := m[2], ""
		if j := skipSpaceBack(text, m[2]-1); j >= 1 && text[j] == ':' && text[j-1] == ':' {
			exprStart = receiverStart(text, j-1, true)
			receiver = stripSpace(f.src[exprStart : j-1])
		}
		emit(exprStart, m[2], m[3], m[1]-1, receiver, false, true)
	}

	for _, m := range rustMethodCallRe.FindAllStringSubmatchIndex(text, -1) {
		if m[0] > 0 && text[m[0]-1] == '.' {
			continue // range operator ".."
		}
		exprStart := receiverStart(text, m[0], false)
		receiver := stripSpace(f.src[exprStart:m[0]])
		emit(exprStart, m[2], m[3], m[1]-1, receiver, true, false)
	}

	for _, m := range rustPathCallRe.FindAllStringSubmatchIndex(text, -1) {
		if taken[m[2]] {
			continue
		}
		exprStart := receiverStart(text, m[0], true)
		receiver := stripSpace(f.src[exprStart:m[0]])
		emit(exprStart, m[2], m[3], m[1]-1, receiver, false, false)
	}

	for _, m := range rustBareCallRe.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[2]:m[3]]
		if taken[m[2]] || declared[m[2]] || extract.IsDeniedCall(f.lang, name) {
			continue
		}
		if j := skipSpaceBack(text, m[2]-1); j >= 0 {
			afterRange := text[j] == '.' && j > 0 && text[j-1] == '.'
			if (text[j] == '.' && !afterRange) || text[j] == ':' || text[j] == '\'' {
				continue
			}
		}
		if rustDeclKeywords[prevWord(text, m[2])] {
			continue
		}
		if isDigit(name[0]) {
			continue
		}
		emit(m[2], m[2], m[3], m[1]-1, "", false, false)
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
