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
	"context"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/rust"

	"github.com/ruizrica/drift-sub003/services/callgraph/extract"
)

var (
	probeMu      sync.Mutex
	probeResults = map[extract.Language]bool{}
)

// probeSources are minimal programs each grammar must parse cleanly.
var probeSources = map[extract.Language]string{
	extract.LanguageRust: "fn probe() {}\n",
	extract.LanguageGo:   "package probe\n\nfunc probe() {}\n",
}

func grammarFor(lang extract.Language) *sitter.Language {
	switch lang {
	case extract.LanguageRust:
		return rust.GetLanguage()
	case extract.LanguageGo:
		return golang.GetLanguage()
	}
	return nil
}

// Probe reports whether the structured strategy can run for lang: the
// grammar binding loads and a parser accepts it. The answer is computed
// once per language per process.
func Probe(lang extract.Language) bool {
	probeMu.Lock()
	defer probeMu.Unlock()
	if ok, seen := probeResults[lang]; seen {
		return ok
	}
	ok := probe(lang)
	probeResults[lang] = ok
	return ok
}

func probe(lang extract.Language) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	grammar := grammarFor(lang)
	src, known := probeSources[lang]
	if grammar == nil || !known {
		return false
	}
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(context.Background(), nil, []byte(src))
	if err != nil || tree == nil {
		return false
	}
	defer tree.Close()

	root := tree.RootNode()
	return root != nil && !root.HasError()
}
