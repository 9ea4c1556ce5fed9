package ui

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/franksops/gofastq/engine"
)

// Printer is the headless view: it writes one colored line per finished or
// failed transfer and counts completions. A Printer without a writer only
// counts, which is what the interactive view uses.
type Printer struct {
	engine.NopObserver

	w        io.Writer
	finished int
	failed   int

	success *color.Color
	failure *color.Color
	info    *color.Color
}

// NewPrinter creates a printer writing to w. w may be nil.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{
		w:       w,
		success: color.New(color.FgGreen),
		failure: color.New(color.FgRed),
		info:    color.New(color.FgCyan),
	}
}

// Finished is the number of files completed so far.
func (p *Printer) Finished() int { return p.finished }

// FailedCount is the number of failures reported so far.
func (p *Printer) FailedCount() int { return p.failed }

func (p *Printer) TransferFinished(t *engine.Transfer) {
	p.finished++
	if p.w == nil {
		return
	}
	p.success.Fprintf(p.w, "done   ")
	fmt.Fprintf(p.w, "%s -> %s (%s)\n", engine.DisplayLocation(t.Source()), engine.DisplayLocation(t.Dest()), formatBytes(t.Size()))
}

func (p *Printer) FailedAdded(ft *engine.FailedTransfer) {
	p.failed++
	if p.w == nil {
		return
	}
	p.failure.Fprintf(p.w, "failed ")
	fmt.Fprintf(p.w, "%s: %s\n", engine.DisplayLocation(ft.Transfer().Source()), ft.Err())
}

// Summary writes the totals of a finished run.
func (p *Printer) Summary(st *QueueState) {
	if p.w == nil {
		return
	}
	p.info.Fprintf(p.w, "%d files, %s transferred", p.finished, formatBytes(st.CompletedBytes))
	if p.failed > 0 {
		p.failure.Fprintf(p.w, ", %d failed", p.failed)
	}
	fmt.Fprintln(p.w)
}
