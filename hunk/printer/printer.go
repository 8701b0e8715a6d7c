// Package printer renders a memory report: per category (low hunk, high hunk,
// zone, cache) the named entries, their sizes and totals.
package printer

import (
	"io"

	"github.com/cockroachdb/errors"
)

// Format specifies the output format for printing.
type Format string

const (
	// FormatText outputs a human-readable table.
	FormatText Format = "text"

	// FormatJSON outputs a single JSON document.
	FormatJSON Format = "json"
)

// DefaultIndentSize is the indent of entry lines in text output.
const DefaultIndentSize = 2

// Options controls printing behavior.
type Options struct {
	// Format specifies output format (text, json).
	// Default: FormatText
	Format Format

	// IndentSize is the number of spaces before entry lines (text format only).
	// Default: 2
	IndentSize int

	// ShowEntries lists individual entries under each category.
	// Default: true
	ShowEntries bool

	// ShowZoneBlocks lists every zone block, free ones included.
	// Default: false
	ShowZoneBlocks bool
}

// DefaultOptions returns sensible defaults for printing.
func DefaultOptions() Options {
	return Options{
		Format:      FormatText,
		IndentSize:  DefaultIndentSize,
		ShowEntries: true,
	}
}

// Printer writes snapshots to a writer.
type Printer struct {
	opts   Options
	writer io.Writer
}

// New creates a new Printer.
func New(w io.Writer, opts Options) *Printer {
	return &Printer{writer: w, opts: opts}
}

// Print writes s in the configured format.
func (p *Printer) Print(s Snapshot) error {
	switch p.opts.Format {
	case FormatJSON:
		return p.printJSON(s)
	case FormatText, "":
		return p.printText(s)
	default:
		return errors.Newf("printer: unknown format %q", p.opts.Format)
	}
}

// Print writes s to w.
//
// Example:
//
//	snap := printer.Capture(arena, z, c)
//	printer.Print(os.Stdout, snap, printer.DefaultOptions())
func Print(w io.Writer, s Snapshot, opts Options) error {
	return New(w, opts).Print(s)
}
