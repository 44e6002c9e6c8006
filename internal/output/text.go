package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/dshills/docreview/internal/review"
)

const commentWidth = 70

// TextWriter outputs a human-readable text report.
type TextWriter struct {
	Color bool
}

func (t *TextWriter) Write(w io.Writer, report *Report) error {
	ew := &errWriter{w: w}

	ew.printf("Document Review: %s (%s)\n", report.Run.Name, report.Run.ID)
	if report.Run.DocumentNames != "" {
		ew.printf("Documents: %s\n", report.Run.DocumentNames)
	}
	if report.Run.Status != "" {
		ew.printf("Status: %s\n", t.paint(statusColor(report.Run.Status), string(report.Run.Status)))
	}
	ew.println(strings.Repeat("─", 60))

	counts := report.EvaluationCounts()
	parts := make([]string, 0, len(counts))
	for _, l := range sortedLabels(counts) {
		parts = append(parts, fmt.Sprintf("%s: %d", l, counts[l]))
	}
	ew.printf("Checklist items: %d", len(report.Results))
	if len(parts) > 0 {
		ew.printf(" (%s)", strings.Join(parts, ", "))
	}
	ew.println("")
	ew.println(strings.Repeat("─", 60))

	if len(report.Results) == 0 {
		ew.println("\nNo checklist items.")
		return ew.err
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = true
	tbl.AppendHeader(table.Row{"ID", "Checklist", "Eval", "Comment"})
	tbl.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: 40},
		{Number: 3, Align: text.AlignCenter},
		{Number: 4, WidthMax: commentWidth},
	})
	for _, cr := range report.Results {
		eval, comment := "…", ""
		if cr.Result != nil {
			eval = t.paint(evaluationColor(cr.Result.Evaluation), cr.Result.Evaluation)
			comment = cr.Result.Comment
		}
		tbl.AppendRow(table.Row{cr.Checklist.ID, cr.Checklist.Content, eval, comment})
	}
	ew.println(tbl.Render())

	if failures := report.Failures(); len(failures) > 0 {
		ew.printf("\n%s\n", t.paint(color.FgRed, "Failures"))
		for _, f := range failures {
			ew.printf("  ・%s: %s\n", f.Name, f.ErrorMessage)
		}
	}

	if report.Outcome != nil {
		ew.printf("\n%s\n", strings.Repeat("─", 60))
		ew.printf("Completed in %dms (%s mode, %d categories, %d documents)\n",
			report.Outcome.Duration.Milliseconds(), report.Outcome.Mode,
			report.Outcome.Categories, report.Outcome.Documents)
	}

	return ew.err
}

func (t *TextWriter) paint(attr color.Attribute, s string) string {
	c := color.New(attr)
	if t.Color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c.Sprint(s)
}

func evaluationColor(label string) color.Attribute {
	switch label {
	case "A":
		return color.FgGreen
	case "B":
		return color.FgYellow
	case "C":
		return color.FgRed
	default:
		return color.FgWhite
	}
}

func statusColor(s review.Status) color.Attribute {
	switch s {
	case review.StatusSuccess:
		return color.FgGreen
	case review.StatusFailed:
		return color.FgRed
	default:
		return color.FgYellow
	}
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}
