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
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
)

var (
	colorTeal    = lipgloss.Color("#2CD7C7")
	colorDeep    = lipgloss.Color("#16858E")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
	colorSlate   = lipgloss.Color("#2C4A54")
)

var styles = struct {
	Title   lipgloss.Style
	Header  lipgloss.Style
	Cell    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(colorTeal),
	Header:  lipgloss.NewStyle().Bold(true).Foreground(colorTeal).Padding(0, 1),
	Cell:    lipgloss.NewStyle().Padding(0, 1),
	Muted:   lipgloss.NewStyle().Foreground(colorSlate),
	Success: lipgloss.NewStyle().Foreground(colorTeal),
	Warning: lipgloss.NewStyle().Foreground(colorWarning),
	Error:   lipgloss.NewStyle().Foreground(colorError),
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// printTable writes rows under headers. Terminals get a bordered table;
// anything else gets tab-separated lines.
func printTable(w io.Writer, headers []string, rows [][]string) {
	if !isTerminal(w) {
		fmt.Fprintln(w, strings.Join(headers, "\t"))
		for _, r := range rows {
			fmt.Fprintln(w, strings.Join(r, "\t"))
		}
		return
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDeep)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.Header
			}
			return styles.Cell
		}).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(w, t.Render())
}

// title writes a styled heading on terminals and a plain one elsewhere.
func title(w io.Writer, s string) {
	if isTerminal(w) {
		fmt.Fprintln(w, styles.Title.Render(s))
		return
	}
	fmt.Fprintln(w, s)
}

// progressPrinter renders algorithm progress to w.
//
// Terminals get a redrawn bar; other writers get one line per message
// change, so logs stay readable.
type progressPrinter struct {
	w       io.Writer
	bar     progress.Model
	tty     bool
	lastMsg string
	drawn   bool
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{
		w:   w,
		bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		tty: isTerminal(w),
	}
}

func (p *progressPrinter) update(name string, frac float64, msg string) {
	if !p.tty {
		if msg != p.lastMsg {
			fmt.Fprintf(p.w, "%s %3.0f%% %s\n", name, frac*100, msg)
			p.lastMsg = msg
		}
		return
	}
	fmt.Fprintf(p.w, "\r%s %s %s", name, p.bar.ViewAs(frac), styles.Muted.Render(msg))
	p.drawn = true
}

func (p *progressPrinter) done() {
	if p.drawn {
		fmt.Fprintln(p.w)
		p.drawn = false
	}
}
