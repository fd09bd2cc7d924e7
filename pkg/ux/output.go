// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the drift CLI.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Color palette
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // headings
	ColorTealDeep    = lipgloss.Color("#16858E") // borders
	ColorSlate       = lipgloss.Color("#2C4A54") // muted text

	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Key     lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorTealBright),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Key:     lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Mode selects rich or plain output.
type Mode int

const (
	// ModeRich uses colors, icons and boxes.
	ModeRich Mode = iota

	// ModePlain outputs plain text suitable for scripting and parsing.
	ModePlain
)

// DetectMode returns ModeRich when w is a terminal and NO_COLOR is unset.
func DetectMode(w io.Writer) Mode {
	if os.Getenv("NO_COLOR") != "" {
		return ModePlain
	}
	f, ok := w.(*os.File)
	if !ok || !(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return ModePlain
	}
	return ModeRich
}

// Printer writes styled output. Results go to out, diagnostics to errOut.
type Printer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
}

// NewPrinter creates a printer.
func NewPrinter(out, errOut io.Writer, mode Mode) *Printer {
	return &Printer{out: out, errOut: errOut, mode: mode}
}

// Out returns the writer results go to.
func (p *Printer) Out() io.Writer {
	return p.out
}

// Mode returns the printer's mode.
func (p *Printer) Mode() Mode {
	return p.mode
}

// Title prints a styled title. Plain mode prints nothing.
func (p *Printer) Title(text string) {
	if p.mode == ModePlain {
		return
	}
	fmt.Fprintln(p.out, Styles.Title.Render(text))
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) {
	if p.mode == ModePlain {
		fmt.Fprintf(p.out, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", Styles.Success.Render(string(IconSuccess)), Styles.Success.Render(text))
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	if p.mode == ModePlain {
		fmt.Fprintf(p.errOut, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(p.errOut, "%s %s\n", Styles.Warning.Render(string(IconWarning)), Styles.Warning.Render(text))
}

// Error prints an error message
func (p *Printer) Error(text string) {
	if p.mode == ModePlain {
		fmt.Fprintf(p.errOut, "ERROR: %s\n", text)
		return
	}
	fmt.Fprintf(p.errOut, "%s %s\n", Styles.Error.Render(string(IconError)), Styles.Error.Render(text))
}

// Line prints text unchanged.
func (p *Printer) Line(text string) {
	fmt.Fprintln(p.out, text)
}

// KeyValue prints one "key: value" pair. Plain mode separates with a tab.
func (p *Printer) KeyValue(key string, value any) {
	if p.mode == ModePlain {
		fmt.Fprintf(p.out, "%s\t%v\n", key, value)
		return
	}
	fmt.Fprintf(p.out, "%s %v\n", Styles.Key.Render(key+":"), value)
}

// Table prints rows under headers. Plain mode prints tab-separated values
// without the header.
func (p *Printer) Table(headers []string, rows [][]string) {
	if p.mode == ModePlain {
		for _, row := range rows {
			fmt.Fprintln(p.out, strings.Join(row, "\t"))
		}
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if w := lipgloss.Width(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	cells := make([]string, len(headers))
	for i, h := range headers {
		cells[i] = Styles.Bold.Width(widths[i]).Render(h)
	}
	fmt.Fprintln(p.out, strings.Join(cells, "  "))
	for _, row := range rows {
		for i := range cells {
			v := ""
			if i < len(row) {
				v = row[i]
			}
			cells[i] = lipgloss.NewStyle().Width(widths[i]).Render(v)
		}
		fmt.Fprintln(p.out, strings.TrimRight(strings.Join(cells, "  "), " "))
	}
}

// Box prints content in a rounded box under title.
func (p *Printer) Box(title, content string) {
	if p.mode == ModePlain {
		fmt.Fprintf(p.out, "%s: %s\n", title, content)
		return
	}
	fmt.Fprintln(p.out, Styles.Box.Render(Styles.Title.Render(title)+"\n"+content))
}

// Count is one labelled number in a summary line.
type Count struct {
	Label string
	N     int
}

// Summary prints counts on one line.
func (p *Printer) Summary(counts ...Count) {
	parts := make([]string, 0, len(counts))
	for _, c := range counts {
		if p.mode == ModePlain {
			parts = append(parts, fmt.Sprintf("%s=%d", c.Label, c.N))
			continue
		}
		parts = append(parts, Styles.Bold.Render(fmt.Sprintf("%d", c.N))+" "+Styles.Muted.Render(c.Label))
	}
	if p.mode == ModePlain {
		fmt.Fprintf(p.out, "SUMMARY: %s\n", strings.Join(parts, " "))
		return
	}
	fmt.Fprintln(p.out, strings.Join(parts, "  "))
}
