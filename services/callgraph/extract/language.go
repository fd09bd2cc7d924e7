// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Language identifies a supported source language.
type Language string

const (
	LanguageRust Language = "rust"
	LanguageGo   Language = "go"
)

// languageByExtension maps file extensions to languages.
var languageByExtension = map[string]Language{
	".rs": LanguageRust,
	".go": LanguageGo,
}

// SupportedLanguages returns every language with an extractor, in a fixed order.
func SupportedLanguages() []Language {
	return []Language{LanguageRust, LanguageGo}
}

// DetectLanguage returns the language for a file path based on its extension.
//
// Outputs:
//   - Language: The detected language.
//   - bool: False when the extension is not supported.
func DetectLanguage(path string) (Language, bool) {
	lang, ok := languageByExtension[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// Separator returns the qualified-name separator for the language.
func (l Language) Separator() string {
	if l == LanguageRust {
		return "::"
	}
	return "."
}

// Qualify joins a container and member name with the language separator.
func (l Language) Qualify(container, name string) string {
	if container == "" {
		return name
	}
	return container + l.Separator() + name
}

// deniedCallNames suppresses keywords and conversions that look like calls.
var deniedCallNames = map[Language]map[string]struct{}{
	LanguageRust: setOf(
		"if", "else", "while", "for", "loop", "match", "return", "fn", "let",
		"as", "in", "move", "unsafe", "impl", "where", "mut", "ref", "dyn",
		"async", "await", "struct", "enum", "trait", "type", "use", "mod",
		"pub", "const", "static", "extern", "break", "continue", "crate",
		"super", "self", "Self", "Some", "Ok", "Err", "Fn", "FnMut", "FnOnce",
	),
	LanguageGo: setOf(
		"if", "else", "for", "switch", "select", "case", "return", "func",
		"go", "defer", "range", "type", "struct", "interface", "map", "chan",
		"var", "const", "package", "import", "break", "continue", "goto",
		"fallthrough", "default",
		"bool", "byte", "rune", "string", "error", "any", "uintptr",
		"int", "int8", "int16", "int32", "int64",
		"uint", "uint8", "uint16", "uint32", "uint64",
		"float32", "float64", "complex64", "complex128",
	),
}

func setOf(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// IsDeniedCall reports whether a bare call name is a keyword or conversion
// that must not be recorded as a call site.
func IsDeniedCall(lang Language, name string) bool {
	_, denied := deniedCallNames[lang][name]
	return denied
}

// IsConstructorName reports whether a called name looks like a constructor.
//
// Rust: new, default, from and new_*/with_*/from_* associated functions.
// Go: New and New* functions.
func IsConstructorName(lang Language, name string) bool {
	switch lang {
	case LanguageRust:
		switch name {
		case "new", "default", "from":
			return true
		}
		return strings.HasPrefix(name, "new_") ||
			strings.HasPrefix(name, "with_") ||
			strings.HasPrefix(name, "from_")
	case LanguageGo:
		if name == "New" {
			return true
		}
		if !strings.HasPrefix(name, "New") {
			return false
		}
		r, _ := utf8.DecodeRuneInString(name[len("New"):])
		return unicode.IsUpper(r) || r == '_'
	}
	return false
}

// IsRustConstructor decides the constructor flag for a Rust function.
//
// A function is a constructor when it lives in an impl or trait, takes no
// self receiver, and is either named like a constructor or returns Self
// (or the container type itself).
func IsRustConstructor(name, returnType, className string, hasSelf bool) bool {
	if className == "" || hasSelf {
		return false
	}
	if IsConstructorName(LanguageRust, name) {
		return true
	}
	rt := strings.TrimSpace(returnType)
	return rt == "Self" || rt == className
}

// IsGoExported reports whether a Go identifier is exported.
func IsGoExported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}

// GoReceiverType strips pointer markers and type parameters from a Go
// receiver type ("*Store[K]" becomes "Store").
func GoReceiverType(t string) string {
	t = strings.TrimSpace(t)
	t = strings.TrimLeft(t, "*")
	t = strings.TrimSpace(t)
	if i := strings.IndexByte(t, '['); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}

// NormalizeSpace collapses runs of whitespace, including newlines, to a
// single space.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// RustTypeName reduces a Rust type expression to its base type name
// ("&mut crate::a::Foo<T>" becomes "Foo").
func RustTypeName(t string) string {
	t = strings.TrimSpace(t)
	for {
		trimmed := strings.TrimLeft(t, "&*")
		trimmed = strings.TrimSpace(trimmed)
		if strings.HasPrefix(trimmed, "'") {
			if sp := strings.IndexByte(trimmed, ' '); sp >= 0 {
				trimmed = strings.TrimSpace(trimmed[sp+1:])
			}
		}
		for _, prefix := range []string{"mut ", "dyn ", "const "} {
			trimmed = strings.TrimPrefix(trimmed, prefix)
		}
		if trimmed == t {
			break
		}
		t = trimmed
	}
	if i := strings.IndexByte(t, '<'); i >= 0 {
		t = t[:i]
	}
	if i := strings.LastIndex(t, "::"); i >= 0 {
		t = t[i+2:]
	}
	return strings.TrimSpace(t)
}

// GoImportRecord builds the record for one Go import spec. A trailing
// major-version segment ("/v4") is not the package name.
func GoImportRecord(alias, path string, line int) ImportInfo {
	segs := strings.Split(path, "/")
	pkg := segs[len(segs)-1]
	if isGoVersionSegment(pkg) && len(segs) > 1 {
		pkg = segs[len(segs)-2]
	}
	local := pkg
	if alias != "" {
		local = alias
	}
	return ImportInfo{
		Source:      path,
		Imported:    pkg,
		Local:       local,
		IsNamespace: true,
		Line:        line,
	}
}

func isGoVersionSegment(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for i := 1; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
