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
	"sort"
	"strings"
	"unicode"
)

// lineIndex maps byte offsets to 1-indexed line and column numbers.
type lineIndex struct {
	starts []int
}

func newLineIndex(src []byte) *lineIndex {
	starts := []int{0}
	for i, c := range src {
		if c == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &lineIndex{starts: starts}
}

// line returns the 1-indexed line containing offset.
func (li *lineIndex) line(offset int) int {
	return sort.SearchInts(li.starts, offset+1)
}

// column returns the 1-indexed byte column of offset.
func (li *lineIndex) column(offset int) int {
	return offset - li.starts[li.line(offset)-1] + 1
}

// lineEnd returns the offset of the newline ending the line that contains
// offset, or len when it is the last line.
func (li *lineIndex) lineEnd(offset, length int) int {
	l := li.line(offset)
	if l < len(li.starts) {
		return li.starts[l] - 1
	}
	return length
}

var closerOf = map[byte]byte{'(': ')', '[': ']', '{': '}', '<': '>'}

// matchForward returns the offset of the delimiter closing text[open].
//
// Only the delimiter pair at text[open] is counted. For angle brackets the
// arrows "->" and "=>" do not close. Returns -1 when unbalanced.
func matchForward(text string, open int) int {
	if open < 0 || open >= len(text) {
		return -1
	}
	o := text[open]
	c, ok := closerOf[o]
	if !ok {
		return -1
	}
	depth := 0
	for i := open; i < len(text); i++ {
		switch text[i] {
		case o:
			depth++
		case c:
			if c == '>' && i > 0 && (text[i-1] == '-' || text[i-1] == '=') {
				continue
			}
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// matchBackward returns the offset of the delimiter opening text[close].
// Returns -1 when unbalanced.
func matchBackward(text string, close int) int {
	if close < 0 || close >= len(text) {
		return -1
	}
	var o byte
	switch text[close] {
	case ')':
		o = '('
	case ']':
		o = '['
	case '}':
		o = '{'
	case '>':
		o = '<'
	default:
		return -1
	}
	c := text[close]
	depth := 0
	for i := close; i >= 0; i-- {
		switch text[i] {
		case c:
			if c == '>' && i > 0 && (text[i-1] == '-' || text[i-1] == '=') {
				continue
			}
			depth++
		case o:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits s on sep, ignoring separators nested inside any
// bracket pair. Empty trailing items (a trailing comma) are dropped.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{', '<':
			depth++
		case ')', ']', '}':
			depth--
		case '>':
			if i > 0 && (s[i-1] == '-' || s[i-1] == '=') {
				continue
			}
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])

	out := parts[:0]
	for i, p := range parts {
		if i == len(parts)-1 && strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// countArgs counts the top-level arguments in a delimited argument list.
func countArgs(inner string) int {
	if strings.TrimSpace(inner) == "" {
		return 0
	}
	n := 0
	for _, p := range splitTopLevel(inner, ',') {
		if strings.TrimSpace(p) != "" {
			n++
		}
	}
	return n
}

// indexTopLevelColon returns the first ':' at depth zero that is not part
// of a "::" path separator, or -1.
func indexTopLevelColon(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{', '<':
			depth++
		case ')', ']', '}', '>':
			depth--
		case ':':
			if depth != 0 {
				continue
			}
			if i+1 < len(s) && s[i+1] == ':' {
				i++
				continue
			}
			if i > 0 && s[i-1] == ':' {
				continue
			}
			return i
		}
	}
	return -1
}

// receiverStart walks backward from sep (the offset of a "." or the first
// ':' of "::") over a postfix chain and returns the chain's start offset.
//
// The chain is made of identifiers, balanced (...) and [...] groups,
// string and char literals, "?" operators, and generic argument lists in
// path position, joined by "." or "::". Returns sep when nothing precedes it.
func receiverStart(text string, sep int, pathSep bool) int {
	start := sep
	i := skipSpaceBack(text, sep-1)
	for i >= 0 {
		atom := atomStart(text, i, pathSep)
		if atom < 0 {
			return start
		}
		start = atom
		j := skipSpaceBack(text, atom-1)
		switch {
		case j >= 0 && text[j] == '.' && (j == 0 || text[j-1] != '.'):
			i = skipSpaceBack(text, j-1)
		case j >= 1 && text[j] == ':' && text[j-1] == ':':
			pathSep = true
			i = skipSpaceBack(text, j-2)
		default:
			return start
		}
	}
	return start
}

// atomStart returns the start of the postfix expression ending at i, or -1.
func atomStart(text string, i int, pathSep bool) int {
	for i >= 0 {
		c := text[i]
		switch {
		case c == '?':
			i = skipSpaceBack(text, i-1)

		case c == ')' || c == ']':
			open := matchBackward(text, i)
			if open < 0 {
				return -1
			}
			j := skipSpaceBack(text, open-1)
			if j >= 0 && (isIdentByte(text[j]) || text[j] == ')' || text[j] == ']' || text[j] == '?' || (pathSep && text[j] == '>')) {
				i = j
				continue
			}
			return open

		case c == '>' && pathSep:
			open := matchBackward(text, i)
			if open < 0 {
				return -1
			}
			j := skipSpaceBack(text, open-1)
			if j >= 0 && isIdentByte(text[j]) {
				i = j
				continue
			}
			return open

		case isIdentByte(c):
			for i >= 0 && isIdentByte(text[i]) {
				i--
			}
			return i + 1

		case c == '"' || c == '\'' || c == '`':
			j := i - 1
			for j >= 0 && text[j] != c {
				j--
			}
			if j < 0 {
				return -1
			}
			return j

		default:
			return -1
		}
	}
	return -1
}

func skipSpaceBack(text string, i int) int {
	for i >= 0 && (text[i] == ' ' || text[i] == '\t' || text[i] == '\n' || text[i] == '\r') {
		i--
	}
	return i
}

func skipSpaceForward(text string, i int) int {
	for i < len(text) && (text[i] == ' ' || text[i] == '\t' || text[i] == '\n' || text[i] == '\r') {
		i++
	}
	return i
}

// stripSpace removes all whitespace.
func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// blankRange returns text with [from, to) replaced by spaces, newlines kept.
func blankRange(text string, from, to int) string {
	b := []byte(text)
	for i := from; i < to && i < len(b); i++ {
		if b[i] != '\n' && b[i] != '\r' {
			b[i] = ' '
		}
	}
	return string(b)
}
