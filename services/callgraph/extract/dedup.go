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

// FunctionKey is the deduplication key for functions.
type FunctionKey struct {
	Name      string
	StartLine int
}

// Key returns the function's deduplication key.
func (f FunctionInfo) Key() FunctionKey {
	return FunctionKey{Name: f.Name, StartLine: f.StartLine}
}

// CallKey is the deduplication key for call sites.
type CallKey struct {
	Receiver   string
	CalleeName string
	Line       int
}

// Key returns the call's deduplication key.
func (c CallInfo) Key() CallKey {
	return CallKey{Receiver: c.Receiver, CalleeName: c.CalleeName, Line: c.Line}
}

// DedupFunctions drops functions whose key was already seen. Order is kept.
func DedupFunctions(in []FunctionInfo) []FunctionInfo {
	seen := make(map[FunctionKey]struct{}, len(in))
	out := make([]FunctionInfo, 0, len(in))
	for _, fn := range in {
		k := fn.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, fn)
	}
	return out
}

// DedupCalls drops calls whose key was already seen. Order is kept.
func DedupCalls(in []CallInfo) []CallInfo {
	seen := make(map[CallKey]struct{}, len(in))
	out := make([]CallInfo, 0, len(in))
	for _, c := range in {
		k := c.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}
