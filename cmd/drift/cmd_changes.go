// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ruizrica/drift-sub003/pkg/ux"
	"github.com/ruizrica/drift-sub003/services/callgraph/changes"
	"github.com/ruizrica/drift-sub003/services/callgraph/graph"
)

func newChangesCmd(a *app) *cobra.Command {
	var sinceGraph, diffFile string

	cmd := &cobra.Command{
		Use:   "changes",
		Short: "Report what changed since an earlier graph, or what a diff touches",
		Long: `Compare the saved graph with an earlier graph.json, or map a unified diff
onto the functions it touches.

Examples:
  cp .drift/call-graph/graph.json /tmp/before.json && drift scan
  drift changes --since-graph /tmp/before.json
  git diff | drift changes --diff -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openLoadedStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			if sinceGraph != "" {
				data, err := os.ReadFile(sinceGraph)
				if err != nil {
					return err
				}
				prev, err := graph.Deserialize(data)
				if err != nil {
					return fmt.Errorf("%s: %w", sinceGraph, err)
				}
				return a.printChanges(changes.Compare(prev, st.Graph()))
			}

			var data []byte
			if diffFile == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(diffFile)
			}
			if err != nil {
				return err
			}
			touched, err := changes.FunctionsInDiff(st, data)
			if err != nil {
				return err
			}
			return a.printTouched(touched)
		},
	}

	cmd.Flags().StringVar(&sinceGraph, "since-graph", "", "Earlier graph.json to compare against")
	cmd.Flags().StringVar(&diffFile, "diff", "", "Unified diff file, or - for stdin")
	cmd.MarkFlagsMutuallyExclusive("since-graph", "diff")
	cmd.MarkFlagsOneRequired("since-graph", "diff")
	return cmd
}

func (a *app) printChanges(r *changes.Report) error {
	if a.jsonOut {
		return writeJSON(a.printer.Out(), r)
	}
	rows := make([][]string, 0, len(r.Changes))
	for _, c := range r.Changes {
		rows = append(rows, []string{string(c.Kind), c.File, c.QualifiedName})
	}
	a.printer.Table([]string{"CHANGE", "FILE", "FUNCTION"}, rows)
	a.printer.Summary(
		ux.Count{Label: "added", N: r.Count(changes.KindAdded)},
		ux.Count{Label: "removed", N: r.Count(changes.KindRemoved)},
		ux.Count{Label: "modified", N: r.Count(changes.KindModified)},
		ux.Count{Label: "moved", N: r.Count(changes.KindMoved)},
	)
	return nil
}

func (a *app) printTouched(touched []changes.Touched) error {
	if a.jsonOut {
		type entry struct {
			ID            string `json:"id"`
			File          string `json:"file"`
			QualifiedName string `json:"qualifiedName"`
			Lines         []int  `json:"lines"`
		}
		out := make([]entry, 0, len(touched))
		for _, t := range touched {
			out = append(out, entry{t.Function.ID, t.Function.File, t.Function.QualifiedName, t.Lines})
		}
		return writeJSON(a.printer.Out(), out)
	}

	rows := make([][]string, 0, len(touched))
	for _, t := range touched {
		lines := make([]string, len(t.Lines))
		for i, l := range t.Lines {
			lines[i] = strconv.Itoa(l)
		}
		rows = append(rows, []string{t.Function.File, t.Function.QualifiedName, strings.Join(lines, ",")})
	}
	a.printer.Table([]string{"FILE", "FUNCTION", "LINES"}, rows)
	return nil
}
