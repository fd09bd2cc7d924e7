// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package changes

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/ruizrica/drift-sub003/services/callgraph/graph"
)

// ErrInvalidDiff is returned when the diff text cannot be parsed.
var ErrInvalidDiff = errors.New("invalid unified diff")

// FunctionSource looks up the functions of a file.
type FunctionSource interface {
	GetFunctionsInFile(file string) []*graph.FunctionNode
}

// Touched is a function whose span intersects a diff hunk.
type Touched struct {
	Function *graph.FunctionNode

	// Lines are the new-side lines of the function that the diff added or
	// deleted next to, ascending.
	Lines []int
}

// FunctionsInDiff returns the functions whose spans contain a line the diff
// adds, or the position of a line it deletes, on the new side.
//
// Description:
//
//	File names are taken from the new side with the "b/" prefix removed.
//	Deleted files are skipped. Positions are matched against the graph,
//	so the graph should have been built from the new side of the diff.
//
// Outputs:
//   - []Touched: Ordered by file then start line.
//   - error: Wraps ErrInvalidDiff on parse failure.
func FunctionsInDiff(src FunctionSource, unified []byte) ([]Touched, error) {
	fileDiffs, err := diff.ParseMultiFileDiff(unified)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDiff, err)
	}

	var touched []Touched
	for _, fd := range fileDiffs {
		if fd.NewName == "/dev/null" {
			continue
		}
		file := strings.TrimPrefix(fd.NewName, "b/")

		lines := changedLines(fd)
		if len(lines) == 0 {
			continue
		}

		for _, fn := range src.GetFunctionsInFile(file) {
			var hits []int
			for _, l := range lines {
				if fn.Contains(l) {
					hits = append(hits, l)
				}
			}
			if len(hits) > 0 {
				touched = append(touched, Touched{Function: fn, Lines: hits})
			}
		}
	}

	sort.SliceStable(touched, func(i, j int) bool {
		a, b := touched[i].Function, touched[j].Function
		if a.File != b.File {
			return a.File < b.File
		}
		return a.StartLine < b.StartLine
	})
	return touched, nil
}

// changedLines walks each hunk and returns the new-side line numbers of
// added lines and of the positions where lines were deleted.
func changedLines(fd *diff.FileDiff) []int {
	seen := map[int]bool{}
	for _, hunk := range fd.Hunks {
		newLine := int(hunk.NewStartLine)
		body := strings.TrimSuffix(string(hunk.Body), "\n")
		for _, line := range strings.Split(body, "\n") {
			switch {
			case strings.HasPrefix(line, "+"):
				seen[newLine] = true
				newLine++
			case strings.HasPrefix(line, "-"):
				seen[newLine] = true
			case strings.HasPrefix(line, `\`):
				// "\ No newline at end of file"
			default:
				newLine++
			}
		}
	}

	lines := make([]int, 0, len(seen))
	for l := range seen {
		lines = append(lines, l)
	}
	sort.Ints(lines)
	return lines
}
