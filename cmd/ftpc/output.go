package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/gonzalop/ftpc"
)

var dirColor = color.New(color.FgBlue, color.Bold)

// renderEntries prints entries as a table.
func renderEntries(w io.Writer, entries []*ftpc.Entry) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "Directory is empty")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("Name", "Type", "Size", "Modified")
	for _, e := range entries {
		name, size := e.Name, formatSize(e.Size)
		if e.IsDir() {
			name = dirColor.Sprint(e.Name + "/")
			size = "-"
		}
		modified := "-"
		if !e.ModTime.IsZero() {
			modified = e.ModTime.Format("2006-01-02 15:04")
		}
		if err := table.Append([]string{name, e.Type.String(), size, modified}); err != nil {
			return err
		}
	}
	return table.Render()
}

// formatSize formats a file size in human-readable format
func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return strconv.FormatInt(size, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

// progressPrinter redraws a single status line while a transfer runs.
type progressPrinter struct {
	w     io.Writer
	last  time.Time
	shown bool
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w}
}

// report implements ftpc.ProgressFunc, redrawing at most ten times a second.
func (p *progressPrinter) report(verb, path string, n int64) {
	now := time.Now()
	if p.shown && now.Sub(p.last) < 100*time.Millisecond {
		return
	}
	p.last = now
	p.shown = true
	fmt.Fprintf(p.w, "\r%s %s: %s\x1b[K", verb, path, formatSize(n))
}

// done ends the status line, if one was drawn. It is a no-op on nil.
func (p *progressPrinter) done() {
	if p == nil || !p.shown {
		return
	}
	fmt.Fprintln(p.w)
	p.shown = false
}
