package output

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dshills/docreview/internal/review"
)

// Report is everything a writer needs to render one review run.
type Report struct {
	Run     review.Run               `json:"run"`
	Outcome *review.RunOutcome       `json:"outcome,omitempty"`
	Results []review.ChecklistResult `json:"results"`
}

// EvaluationCounts tallies final evaluations by label. Items without a
// result are counted under "pending".
func (r *Report) EvaluationCounts() map[string]int {
	counts := make(map[string]int)
	for _, cr := range r.Results {
		if cr.Result == nil {
			counts["pending"]++
			continue
		}
		counts[cr.Result.Evaluation]++
	}
	return counts
}

// Failures returns the failed tasks of the run outcome, if any.
func (r *Report) Failures() []review.TaskResult {
	if r.Outcome == nil {
		return nil
	}
	var out []review.TaskResult
	for _, t := range r.Outcome.Tasks {
		if t.Status == review.StatusFailed {
			out = append(out, t)
		}
	}
	return out
}

func sortedLabels(counts map[string]int) []string {
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Writer writes a report in a specific format.
type Writer interface {
	Write(w io.Writer, report *Report) error
}

// GetWriter returns a writer for the specified format. Color only affects
// the text format.
func GetWriter(format string, color bool) (Writer, error) {
	switch format {
	case "text":
		return &TextWriter{Color: color}, nil
	case "json":
		return &JSONWriter{}, nil
	case "markdown", "md":
		return &MarkdownWriter{}, nil
	case "html":
		return &HTMLWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteReport writes the report to the specified output (file path or stdout).
func WriteReport(report *Report, format, outPath string, color bool) error {
	writer, err := GetWriter(format, color && outPath == "")
	if err != nil {
		return err
	}

	var w io.Writer
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	} else {
		w = os.Stdout
	}

	return writer.Write(w, report)
}
