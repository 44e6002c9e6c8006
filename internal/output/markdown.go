package output

import (
	"fmt"
	"io"
	"strings"
)

// MarkdownWriter outputs a markdown report with a collapsible section of
// per-document comments for each checklist item.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, report *Report) error {
	ew := &errWriter{w: w}

	ew.printf("## Document Review: %s\n\n", mdEscape(report.Run.Name))
	if report.Run.DocumentNames != "" {
		ew.printf("Documents: %s\n\n", mdEscape(report.Run.DocumentNames))
	}

	counts := report.EvaluationCounts()
	ew.printf("| Evaluation | Count |\n")
	ew.printf("|------------|-------|\n")
	for _, l := range sortedLabels(counts) {
		ew.printf("| %s | %d |\n", mdEscape(l), counts[l])
	}
	ew.printf("| **Total** | **%d** |\n\n", len(report.Results))

	for _, cr := range report.Results {
		ew.printf("### %d. %s\n\n", cr.Checklist.ID, mdEscape(cr.Checklist.Content))
		if cr.Result == nil {
			ew.printf("*Not reviewed yet.*\n\n")
			continue
		}
		ew.printf("**Evaluation:** %s\n\n", mdEscape(cr.Result.Evaluation))
		if cr.Result.Comment != "" {
			ew.printf("> %s\n\n", strings.ReplaceAll(textReplacer.Replace(cr.Result.Comment), "\n", "\n> "))
		}
		if len(cr.Individuals) > 0 {
			ew.printf("<details>\n<summary>Per-document comments (%d)</summary>\n\n", len(cr.Individuals))
			for _, ir := range cr.Individuals {
				ew.printf("- **%s**: %s\n", mdEscape(ir.DocumentName), strings.ReplaceAll(textReplacer.Replace(ir.Comment), "\n", " "))
			}
			ew.printf("\n</details>\n\n")
		}
	}

	if failures := report.Failures(); len(failures) > 0 {
		ew.printf("#### Failures\n\n")
		for _, f := range failures {
			ew.printf("- ・%s: %s\n", mdEscape(f.Name), mdEscape(f.ErrorMessage))
		}
		ew.printf("\n")
	}

	if report.Outcome != nil {
		ew.printf("*Reviewed in %dms (%s mode)*\n", report.Outcome.Duration.Milliseconds(), report.Outcome.Mode)
	}
	return ew.err
}

var (
	mdReplacer   = strings.NewReplacer("|", `\|`, "\n", " ", "<", "&lt;")
	textReplacer = strings.NewReplacer("<", "&lt;")
)

func mdEscape(s string) string {
	return mdReplacer.Replace(s)
}

// markdownString renders the markdown report into a string.
func markdownString(report *Report) (string, error) {
	var sb strings.Builder
	if err := (&MarkdownWriter{}).Write(&sb, report); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return sb.String(), nil
}
