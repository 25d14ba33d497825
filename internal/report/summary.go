package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/specialistvlad/buildchain/internal/executor"
)

// SummaryOptions configures PrintSummary.
type SummaryOptions struct {
	NoColor bool
}

// PrintSummary writes a one line per step overview of res to w, followed by
// a totals line.
func PrintSummary(w io.Writer, res *executor.Result, opts *SummaryOptions) {
	noColor := opts != nil && opts.NoColor

	green := newColor(noColor, color.FgGreen)
	red := newColor(noColor, color.FgRed, color.Bold)
	yellow := newColor(noColor, color.FgYellow)
	gray := newColor(noColor, color.FgHiBlack)
	header := newColor(noColor, color.Bold, color.FgCyan)

	width := 0
	for _, s := range res.Steps {
		width = max(width, len(s.Name))
	}

	header.Fprintf(w, "Build %s\n", res.RunID)
	for _, s := range res.Steps {
		var mark string
		switch s.Status {
		case executor.Completed:
			mark = green.Sprint("✓")
		case executor.Failed:
			mark = red.Sprint("✗")
		case executor.Skipped:
			mark = yellow.Sprint("-")
		default:
			mark = gray.Sprint("?")
		}
		fmt.Fprintf(w, "  %s %s  %s", mark, padRight(s.Name, width), s.Status)
		switch {
		case s.Err != nil:
			red.Fprintf(w, "  %v", s.Err)
		case s.Reason != executor.ReasonNone:
			gray.Fprintf(w, "  (%s)", s.Reason)
		case s.Duration() > 0:
			gray.Fprintf(w, "  %s", s.Duration().Round(durationPrecision))
		}
		fmt.Fprintln(w)
	}

	totals := fmt.Sprintf("%d completed, %d failed, %d skipped in %s",
		res.Count(executor.Completed), res.Count(executor.Failed), res.Count(executor.Skipped),
		res.Duration().Round(durationPrecision))
	if res.Succeeded {
		green.Fprintf(w, "Build succeeded: %s\n", totals)
	} else {
		red.Fprintf(w, "Build failed: %s\n", totals)
	}
}

const durationPrecision = time.Microsecond

func newColor(disabled bool, attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if disabled {
		c.DisableColor()
	}
	return c
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
