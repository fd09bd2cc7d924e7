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
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/ruizrica/drift-sub003/services/callgraph/extract"
)

// NodeKind classifies syntax tree nodes for dispatch.
//
// Grammar node type names differ between languages; each language maps
// its names onto this shared set. Node types without a mapping are
// NodeKindOther and are walked generically.
type NodeKind uint8

const (
	// NodeKindOther has no handler; its named children are walked.
	NodeKindOther NodeKind = iota

	// NodeKindFunction is a free function declaration with a body.
	NodeKindFunction

	// NodeKindMethod is a Go method declaration.
	NodeKindMethod

	// NodeKindSignature is a Rust trait method without a body.
	NodeKindSignature

	// NodeKindImpl is a Rust impl block.
	NodeKindImpl

	// NodeKindTrait is a Rust trait definition.
	NodeKindTrait

	// NodeKindStruct is a Rust struct or union.
	NodeKindStruct

	// NodeKindEnum is a Rust enum.
	NodeKindEnum

	// NodeKindType is a Go type spec.
	NodeKindType

	// NodeKindImport is a Rust use declaration or a Go import spec.
	NodeKindImport

	// NodeKindCall is a call expression.
	NodeKindCall

	// NodeKindMacro is a Rust macro invocation.
	NodeKindMacro

	// NodeKindSkip is never descended into (comments, attributes,
	// macro_rules definitions).
	NodeKindSkip

	numNodeKinds
)

var nodeKindNames = [numNodeKinds]string{
	NodeKindOther:     "other",
	NodeKindFunction:  "function",
	NodeKindMethod:    "method",
	NodeKindSignature: "signature",
	NodeKindImpl:      "impl",
	NodeKindTrait:     "trait",
	NodeKindStruct:    "struct",
	NodeKindEnum:      "enum",
	NodeKindType:      "type",
	NodeKindImport:    "import",
	NodeKindCall:      "call",
	NodeKindMacro:     "macro",
	NodeKindSkip:      "skip",
}

// String returns the kind's name.
func (k NodeKind) String() string {
	if k < numNodeKinds {
		return nodeKindNames[k]
	}
	return fmt.Sprintf("NodeKind(%d)", uint8(k))
}

// handler processes one node. A handler owns the node's subtree: the walk
// does not descend into it afterwards unless the handler does so itself.
type handler func(w *walker, n *sitter.Node, depth int)

// dispatch pairs a language's node type mapping with its handlers.
type dispatch struct {
	kinds    map[string]NodeKind
	handlers *[numNodeKinds]handler
}

func (d dispatch) kindOf(n *sitter.Node) NodeKind {
	return d.kinds[n.Type()]
}

func skipNode(*walker, *sitter.Node, int) {}

// dispatchFor returns the dispatch table for lang.
func dispatchFor(lang extract.Language) (dispatch, bool) {
	switch lang {
	case extract.LanguageRust:
		return dispatch{kinds: rustKinds, handlers: &rustHandlers}, true
	case extract.LanguageGo:
		return dispatch{kinds: goKinds, handlers: &goHandlers}, true
	}
	return dispatch{}, false
}
