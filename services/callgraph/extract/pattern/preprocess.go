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
	"unicode/utf8"

	"github.com/ruizrica/drift-sub003/services/callgraph/extract"
)

// Preprocess neutralizes comments, strings and character literals.
//
// Description:
//
//	Every byte inside a comment is replaced by a space. Every byte between
//	the delimiters of a string, raw string or character literal is replaced
//	by a space; the delimiters themselves stay so argument lists still
//	balance. Newlines and carriage returns are never replaced.
//
//	The output has exactly the same length and the same line count as the
//	input, so an offset into the output is an offset into the source.
//
// Inputs:
//   - src: Raw file content.
//   - lang: Source language; selects the lexical rules.
//
// Outputs:
//   - []byte: A new slice; src is not modified.
func Preprocess(src []byte, lang extract.Language) []byte {
	out := make([]byte, len(src))
	copy(out, src)

	p := &preprocessor{src: src, out: out}
	switch lang {
	case extract.LanguageRust:
		p.rust()
	case extract.LanguageGo:
		p.golang()
	}
	return out
}

type preprocessor struct {
	src []byte
	out []byte
}

// blank replaces out[from:to] with spaces, keeping line breaks.
func (p *preprocessor) blank(from, to int) {
	if to > len(p.out) {
		to = len(p.out)
	}
	for i := from; i < to; i++ {
		if p.out[i] != '\n' && p.out[i] != '\r' {
			p.out[i] = ' '
		}
	}
}

func (p *preprocessor) at(i int) byte {
	if i < 0 || i >= len(p.src) {
		return 0
	}
	return p.src[i]
}

// lineComment blanks from i to the end of the line and returns the
// offset of the newline (or len(src)).
func (p *preprocessor) lineComment(i int) int {
	j := i
	for j < len(p.src) && p.src[j] != '\n' {
		j++
	}
	p.blank(i, j)
	return j
}

// quoted blanks the body of an escape-aware literal that opened at i with
// quote, keeping both delimiters. Returns the offset after the closing
// delimiter.
func (p *preprocessor) quoted(i int, quote byte) int {
	j := i + 1
	for j < len(p.src) {
		switch p.src[j] {
		case '\\':
			j += 2
			continue
		case quote:
			p.blank(i+1, j)
			return j + 1
		}
		j++
	}
	p.blank(i+1, len(p.src))
	return len(p.src)
}

func (p *preprocessor) rust() {
	src := p.src
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '/' && p.at(i+1) == '/':
			i = p.lineComment(i)

		case c == '/' && p.at(i+1) == '*':
			i = p.rustBlockComment(i)

		case c == '"':
			i = p.quoted(i, '"')

		case (c == 'r' || c == 'b') && !isIdentByte(p.at(i-1)):
			if next, ok := p.rustPrefixedString(i); ok {
				i = next
			} else {
				i++
			}

		case c == '\'':
			i = p.rustQuote(i)

		default:
			i++
		}
	}
}

// rustBlockComment handles nested /* */ comments.
func (p *preprocessor) rustBlockComment(i int) int {
	depth := 0
	j := i
	for j < len(p.src) {
		if p.src[j] == '/' && p.at(j+1) == '*' {
			depth++
			j += 2
			continue
		}
		if p.src[j] == '*' && p.at(j+1) == '/' {
			depth--
			j += 2
			if depth == 0 {
				break
			}
			continue
		}
		j++
	}
	p.blank(i, j)
	return j
}

// rustPrefixedString handles r"..", r#".."#, b"..", br"..", br#".."#.
func (p *preprocessor) rustPrefixedString(i int) (int, bool) {
	j := i
	if p.src[j] == 'b' {
		j++
		if p.at(j) == '"' {
			return p.quoted(j, '"'), true
		}
		if p.at(j) == '\'' {
			return p.quoted(j, '\''), true
		}
	}
	if p.at(j) != 'r' {
		return 0, false
	}
	j++
	hashes := 0
	for p.at(j) == '#' {
		hashes++
		j++
	}
	if p.at(j) != '"' {
		return 0, false
	}
	open := j
	j++
	for j < len(p.src) {
		if p.src[j] == '"' && p.closesRaw(j+1, hashes) {
			p.blank(open+1, j)
			return j + 1 + hashes, true
		}
		j++
	}
	p.blank(open+1, len(p.src))
	return len(p.src), true
}

func (p *preprocessor) closesRaw(j, hashes int) bool {
	for k := 0; k < hashes; k++ {
		if p.at(j+k) != '#' {
			return false
		}
	}
	return true
}

// rustQuote distinguishes character literals from lifetimes and labels.
func (p *preprocessor) rustQuote(i int) int {
	if p.at(i+1) == '\\' {
		return p.quoted(i, '\'')
	}
	if i+1 >= len(p.src) {
		return i + 1
	}
	_, size := utf8.DecodeRune(p.src[i+1:])
	if p.at(i+1+size) == '\'' {
		p.blank(i+1, i+1+size)
		return i + 2 + size
	}
	// Lifetime or loop label: 'a, 'static, 'outer.
	return i + 1
}

func (p *preprocessor) golang() {
	src := p.src
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '/' && p.at(i+1) == '/':
			i = p.lineComment(i)

		case c == '/' && p.at(i+1) == '*':
			j := i + 2
			for j < len(src) && !(src[j] == '*' && p.at(j+1) == '/') {
				j++
			}
			j += 2
			if j > len(src) {
				j = len(src)
			}
			p.blank(i, j)
			i = j

		case c == '"':
			i = p.quoted(i, '"')

		case c == '\'':
			i = p.quoted(i, '\'')

		case c == '`':
			j := i + 1
			for j < len(src) && src[j] != '`' {
				j++
			}
			p.blank(i+1, j)
			i = j + 1

		default:
			i++
		}
	}
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c >= 0x80
}
