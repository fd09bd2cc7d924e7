// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package classify

import (
	"strings"

	"github.com/ruizrica/drift-sub003/services/callgraph/graph"
)

// Data access operations.
const (
	OperationRead  = "read"
	OperationWrite = "write"
)

// UnknownTable is recorded when the accessed table cannot be named from
// the call alone.
const UnknownTable = "unknown"

// dataOperations maps lower-cased callee names to the operation they
// perform. "Context" suffixes are stripped before lookup.
var dataOperations = map[string]string{
	"query":          OperationRead,
	"query_as":       OperationRead,
	"query_scalar":   OperationRead,
	"queryrow":       OperationRead,
	"fetch":          OperationRead,
	"fetch_one":      OperationRead,
	"fetch_all":      OperationRead,
	"fetch_optional": OperationRead,
	"find":           OperationRead,
	"find_one":       OperationRead,
	"select":         OperationRead,
	"get":            OperationRead,
	"load":           OperationRead,
	"execute":        OperationWrite,
	"exec":           OperationWrite,
	"insert":         OperationWrite,
	"insert_one":     OperationWrite,
	"update":         OperationWrite,
	"delete":         OperationWrite,
	"upsert":         OperationWrite,
	"namedexec":      OperationWrite,
}

// defaultReceivers are receiver names that hold a database handle.
var defaultReceivers = []string{"db", "conn", "pool", "sqlx", "tx", "database"}

// DataAccess is the default DataAccessClassifier.
//
// A call is a data access when its callee is a known query or write
// operation and the last segment of its receiver names a database handle
// ("db", "self.pool", "state.conn"). The table is not recoverable from
// the call and is recorded as UnknownTable.
type DataAccess struct {
	receivers map[string]bool
}

// NewDataAccess creates the classifier. extraReceivers extend the
// built-in receiver names.
func NewDataAccess(extraReceivers ...string) *DataAccess {
	d := &DataAccess{receivers: make(map[string]bool)}
	for _, r := range append(append([]string{}, defaultReceivers...), extraReceivers...) {
		d.receivers[strings.ToLower(r)] = true
	}
	return d
}

// DataAccess implements graph.DataAccessClassifier.
func (d *DataAccess) DataAccess(fn *graph.FunctionNode) []graph.DataAccessRef {
	if fn == nil {
		return nil
	}
	var refs []graph.DataAccessRef
	for _, c := range fn.Calls {
		op, ok := operationOf(c.CalleeName)
		if !ok || !d.isHandle(c.Receiver) {
			continue
		}
		refs = append(refs, graph.DataAccessRef{
			Table:     UnknownTable,
			Operation: op,
			Line:      c.Line,
		})
	}
	return refs
}

func operationOf(callee string) (string, bool) {
	name := strings.ToLower(callee)
	name = strings.TrimSuffix(name, "_context")
	name = strings.TrimSuffix(name, "context")
	op, ok := dataOperations[name]
	return op, ok
}

// isHandle checks the last receiver segment, ignoring a trailing
// reference or await chain ("self.pool", "&db", "state.db.clone()").
func (d *DataAccess) isHandle(receiver string) bool {
	if receiver == "" {
		return false
	}
	r := strings.TrimLeft(receiver, "&*")
	r = strings.TrimSuffix(r, ".clone()")
	r = strings.TrimSuffix(r, ".as_ref()")
	if i := strings.LastIndexAny(r, ".:"); i >= 0 {
		r = r[i+1:]
	}
	return d.receivers[strings.ToLower(r)]
}

var _ graph.DataAccessClassifier = (*DataAccess)(nil)
