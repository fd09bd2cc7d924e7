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
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ruizrica/drift-sub003/pkg/ux"
	"github.com/ruizrica/drift-sub003/services/callgraph/extract"
	"github.com/ruizrica/drift-sub003/services/callgraph/graph"
	"github.com/ruizrica/drift-sub003/services/callgraph/reach"
	"github.com/ruizrica/drift-sub003/services/callgraph/store"
)

// errFunctionNotFound reports a lookup miss on the command line.
var errFunctionNotFound = reach.ErrFunctionNotFound

func newGraphCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Query the saved call graph",
		Long: `Commands for looking up functions and walking the saved call graph.

Prerequisites:
  Run 'drift scan' first.

Subcommands:
  function  - Show one function by ID
  file      - List the functions of a file
  at        - Find the innermost function containing a line
  stats     - Show graph statistics
  callees   - Functions reachable from a function
  callers   - Functions that reach a function`,
	}

	cmd.AddCommand(
		newGraphFunctionCmd(a),
		newGraphFileCmd(a),
		newGraphAtCmd(a),
		newGraphStatsCmd(a),
		newGraphReachCmd(a, reach.DirectionCallees),
		newGraphReachCmd(a, reach.DirectionCallers),
	)
	return cmd
}

func newGraphFunctionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "function ID",
		Short: "Show one function by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openLoadedStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			fn := st.GetFunction(args[0])
			if fn == nil {
				return fmt.Errorf("%w: %s", errFunctionNotFound, args[0])
			}
			return a.printFunction(fn)
		},
	}
}

func newGraphFileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "file PATH",
		Short: "List the functions of a file",
		Long: `List the functions of a file in start line order.

PATH is relative to the project root, with forward slashes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openLoadedStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			fns := st.GetFunctionsInFile(args[0])
			if a.jsonOut {
				return writeJSON(a.printer.Out(), fns)
			}
			rows := make([][]string, 0, len(fns))
			for _, fn := range fns {
				rows = append(rows, []string{
					fn.ID,
					fn.QualifiedName,
					fmt.Sprintf("%d-%d", fn.StartLine, fn.EndLine),
					strconv.Itoa(len(fn.Calls)),
					strconv.Itoa(len(fn.CalledBy)),
				})
			}
			a.printer.Table([]string{"ID", "NAME", "LINES", "CALLS", "CALLERS"}, rows)
			return nil
		},
	}
}

func newGraphAtCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "at FILE LINE",
		Short: "Find the innermost function containing a line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := strconv.Atoi(args[1])
			if err != nil || line < 1 {
				return fmt.Errorf("invalid line %q", args[1])
			}

			st, err := a.openLoadedStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			fn := st.GetFunctionAtLine(args[0], line)
			if fn == nil {
				return fmt.Errorf("%w: no function at %s:%d", errFunctionNotFound, args[0], line)
			}
			return a.printFunction(fn)
		},
	}
}

func newGraphStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show graph statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openLoadedStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			stats, _ := st.Stats()
			if a.jsonOut {
				return writeJSON(a.printer.Out(), struct {
					graph.Stats
					ResolutionRate float64 `json:"resolutionRate"`
					EntryPoints    int     `json:"entryPoints"`
					DataAccessors  int     `json:"dataAccessors"`
					Source         string  `json:"source"`
				}{stats, stats.ResolutionRate(), len(st.EntryPoints()), len(st.DataAccessors()), st.Source()})
			}

			a.printer.Title("Call graph")
			a.printer.Summary(
				ux.Count{Label: "files", N: stats.FileCount},
				ux.Count{Label: "functions", N: stats.TotalFunctions},
				ux.Count{Label: "call sites", N: stats.TotalCallSites},
				ux.Count{Label: "resolved", N: stats.ResolvedCallSites},
			)
			a.printer.KeyValue("resolution rate", fmt.Sprintf("%.1f%%", stats.ResolutionRate()*100))
			a.printer.KeyValue("entry points", len(st.EntryPoints()))
			a.printer.KeyValue("data accessors", len(st.DataAccessors()))
			a.printer.KeyValue("loaded from", st.Source())

			langs := make([]string, 0, len(stats.ByLanguage))
			for l := range stats.ByLanguage {
				langs = append(langs, string(l))
			}
			sort.Strings(langs)
			rows := make([][]string, 0, len(langs))
			for _, l := range langs {
				ls := stats.ByLanguage[extract.Language(l)]
				rows = append(rows, []string{l, strconv.Itoa(ls.Files), strconv.Itoa(ls.Functions), strconv.Itoa(ls.CallSites)})
			}
			a.printer.Table([]string{"LANGUAGE", "FILES", "FUNCTIONS", "CALL SITES"}, rows)
			return nil
		},
	}
}

func newGraphReachCmd(a *app, dir reach.Direction) *cobra.Command {
	var depth, limit int

	short := "Functions reachable from a function"
	if dir == reach.DirectionCallers {
		short = "Functions that reach a function"
	}

	cmd := &cobra.Command{
		Use:   string(dir) + " ID",
		Short: short,
		Long: short + `.

Only resolved call edges are followed. Results are cached under
.drift/cache until the next scan.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openLoadedStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			analyzer := reach.New(st, reach.WithLimit(limit), reach.WithLogger(a.logger))
			var res *reach.Result
			if dir == reach.DirectionCallers {
				res, err = analyzer.Callers(ctx, args[0], depth)
			} else {
				res, err = analyzer.Callees(ctx, args[0], depth)
			}
			if err != nil {
				return err
			}

			if a.jsonOut {
				return writeJSON(a.printer.Out(), res)
			}
			rows := make([][]string, 0, len(res.Reached))
			for _, h := range res.Reached {
				name := h.ID
				if fn := st.GetFunction(h.ID); fn != nil {
					name = fn.QualifiedName
				}
				rows = append(rows, []string{strconv.Itoa(h.Depth), name, h.ID})
			}
			a.printer.Table([]string{"DEPTH", "NAME", "ID"}, rows)
			if res.Truncated {
				a.printer.Warning(fmt.Sprintf("results truncated at %d", len(res.Reached)))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&depth, "depth", reach.DefaultMaxDepth, "Maximum traversal depth")
	cmd.Flags().IntVar(&limit, "limit", reach.DefaultLimit, "Maximum results")
	return cmd
}

func (a *app) printFunction(fn *graph.FunctionNode) error {
	if a.jsonOut {
		return writeJSON(a.printer.Out(), fn)
	}

	a.printer.Title(fn.QualifiedName)
	a.printer.KeyValue("id", fn.ID)
	a.printer.KeyValue("file", fmt.Sprintf("%s:%d-%d", fn.File, fn.StartLine, fn.EndLine))
	a.printer.KeyValue("language", fn.Language)
	if fn.ReturnType != "" {
		a.printer.KeyValue("returns", fn.ReturnType)
	}

	rows := make([][]string, 0, len(fn.Calls))
	for _, c := range fn.Calls {
		target := "?"
		if c.CalleeID != nil {
			target = *c.CalleeID
		}
		callee := c.CalleeName
		if c.Receiver != "" {
			callee = c.Receiver + "." + c.CalleeName
		}
		rows = append(rows, []string{strconv.Itoa(c.Line), callee, target})
	}
	a.printer.Table([]string{"LINE", "CALL", "TARGET"}, rows)

	for _, c := range fn.CalledBy {
		a.printer.KeyValue("called by", c.CallerID)
	}
	return nil
}

// Compile-time check that the store satisfies the traversal source.
var _ reach.Source = (*store.Store)(nil)
