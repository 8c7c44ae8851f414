// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jonathan/job-harvester/internal/pipeline"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of failed sweeps listed in a summary
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode. It is safe for use
// from the concurrent sweep callbacks.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(title, boxWidth-4))
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// PrintSweep outputs the counters of one finished sweep.
func (p *Printer) PrintSweep(res pipeline.SweepResult) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Region:    %s (%s)\n", res.Task.Region.Label(), res.Task.Region.Code))
	sb.WriteString(fmt.Sprintf("Category:  %s (%s)\n", res.Task.Category.Label(), res.Task.Category.Code))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Pages:     %d\n", res.Pages))
	sb.WriteString(fmt.Sprintf("Listed:    %d (dropped %d)\n", res.Listed, res.Dropped))
	if res.DetailMisses > 0 || res.EmployerMisses > 0 {
		sb.WriteString(fmt.Sprintf("Misses:    detail %d, employer %d\n", res.DetailMisses, res.EmployerMisses))
	}
	sb.WriteString(fmt.Sprintf("Persisted: %d\n", res.Persisted))
	sb.WriteString(fmt.Sprintf("Elapsed:   %s", res.Duration.Round(time.Millisecond)))
	if res.Err != nil {
		sb.WriteString(fmt.Sprintf("\nError:     %v", res.Err))
	}

	title := "SWEEP " + res.Task.String()
	if res.Err != nil {
		title += " (FAILED)"
	}
	p.printBox(title, sb.String())
}

// PrintRunSummary outputs the totals of a run and the sweeps that failed.
func (p *Printer) PrintRunSummary(results []pipeline.SweepResult, elapsed time.Duration) {
	if len(results) == 0 {
		return
	}

	var listed, dropped, persisted int
	var failed []pipeline.SweepResult
	for _, r := range results {
		listed += r.Listed
		dropped += r.Dropped
		persisted += r.Persisted
		if r.Err != nil {
			failed = append(failed, r)
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Sweeps:    %d (%d failed)\n", len(results), len(failed)))
	sb.WriteString(fmt.Sprintf("Listed:    %d (dropped %d)\n", listed, dropped))
	sb.WriteString(fmt.Sprintf("Persisted: %d\n", persisted))
	sb.WriteString(fmt.Sprintf("Elapsed:   %s", elapsed.Round(time.Millisecond)))

	if len(failed) > 0 {
		sb.WriteString("\n\nFailed sweeps:")
		count := min(len(failed), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("\n  • %s", failed[i].Task))
		}
		if len(failed) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("\n  ... and %d more", len(failed)-maxItemsToShow))
		}
	}

	p.printBox("HARVEST SUMMARY", sb.String())
}
