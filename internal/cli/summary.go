package cli

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/vk/taskgrid/internal/executor"
	"golang.org/x/term"
)

// palette holds the summary colors. Colors are dropped when the writer is
// not a terminal.
type palette struct {
	ok, warn, fail, dim *color.Color
}

func newPalette(w io.Writer) palette {
	p := palette{
		ok:   color.New(color.FgGreen),
		warn: color.New(color.FgYellow),
		fail: color.New(color.FgRed, color.Bold),
		dim:  color.New(color.FgHiBlack),
	}
	if !isTTY(w) {
		for _, c := range []*color.Color{p.ok, p.warn, p.fail, p.dim} {
			c.DisableColor()
		}
	}
	return p
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// printSummary writes the outcome of a run: its status, every failed task
// with its error and the tasks that never started.
func printSummary(w io.Writer, r *executor.Report) {
	p := newPalette(w)
	goals := strings.Join(r.Goals, ", ")
	took := r.Duration.Round(time.Millisecond)

	switch r.Status {
	case executor.StatusSucceeded:
		p.ok.Fprintf(w, "✅ %s succeeded in %s (%d tasks)\n", goals, took, len(r.Tasks))
	case executor.StatusDegraded:
		p.warn.Fprintf(w, "⚠️ %s finished with failures in %s (%d tasks, %d failed)\n", goals, took, len(r.Tasks), len(r.Failed()))
	default:
		p.fail.Fprintf(w, "❌ %s failed after %s\n", goals, took)
	}

	for _, t := range r.Failed() {
		p.fail.Fprintf(w, "   ✗ %s", t.Name)
		p.dim.Fprintf(w, "  %v\n", t.Err)
	}
	if len(r.NotRun) > 0 {
		p.dim.Fprintf(w, "   not run: %s\n", strings.Join(r.NotRun, ", "))
	}
}
