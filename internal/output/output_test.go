package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docreview/internal/review"
)

func sampleReport() *Report {
	return &Report{
		Run: review.Run{
			ID:            "run-1",
			Name:          "Design review",
			Status:        review.StatusFailed,
			DocumentNames: "spec.pdf, notes.md",
		},
		Outcome: &review.RunOutcome{
			RunID:      "run-1",
			Status:     review.StatusFailed,
			Mode:       review.ModeLarge,
			Categories: 2,
			Documents:  2,
			Duration:   1500 * time.Millisecond,
			Tasks: []review.TaskResult{
				{Name: "Security", Status: review.StatusSuccess},
				{Name: "Layout", Status: review.StatusFailed, ErrorMessage: "model timed out"},
			},
		},
		Results: []review.ChecklistResult{
			{
				Checklist: review.ChecklistItem{ID: 1, Content: "Secrets are not logged"},
				Result:    &review.ReviewResult{ChecklistID: 1, Evaluation: "A", Comment: "No secrets appear in <log> examples."},
				Individuals: []review.IndividualResult{
					{ChecklistID: 1, DocumentID: "d1", DocumentName: "spec.pdf", Comment: "Section 3 masks tokens."},
					{ChecklistID: 1, DocumentID: "d2", DocumentName: "notes.md", Comment: "Not covered."},
				},
			},
			{
				Checklist: review.ChecklistItem{ID: 2, Content: "Tables | columns are labelled"},
				Result:    &review.ReviewResult{ChecklistID: 2, Evaluation: "C", Comment: "Table 4 has no header."},
			},
			{
				Checklist: review.ChecklistItem{ID: 3, Content: "Diagrams have captions"},
			},
		},
	}
}

func TestGetWriter(t *testing.T) {
	for _, f := range []string{"text", "json", "markdown", "md", "html"} {
		w, err := GetWriter(f, false)
		if err != nil {
			t.Errorf("GetWriter(%q) error: %v", f, err)
		}
		if w == nil {
			t.Errorf("GetWriter(%q) returned nil", f)
		}
	}
	if _, err := GetWriter("sarif", false); err == nil {
		t.Error("GetWriter(sarif) should fail")
	}
}

func TestEvaluationCounts(t *testing.T) {
	counts := sampleReport().EvaluationCounts()
	assert.Equal(t, map[string]int{"A": 1, "C": 1, "pending": 1}, counts)
}

func TestTextWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &TextWriter{}
	if err := w.Write(&buf, sampleReport()); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"Document Review: Design review (run-1)",
		"Documents: spec.pdf, notes.md",
		"Checklist items: 3 (A: 1, C: 1, pending: 1)",
		"Secrets are not logged",
		"Table 4 has no header.",
		"・Layout: model timed out",
		"Completed in 1500ms (large mode, 2 categories, 2 documents)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Output should contain %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("Output should not contain ANSI codes when color is off")
	}
}

func TestTextWriter_Color(t *testing.T) {
	var buf bytes.Buffer
	w := &TextWriter{Color: true}
	require.NoError(t, w.Write(&buf, sampleReport()))
	assert.Contains(t, buf.String(), "\x1b[")
}

func TestTextWriter_Empty(t *testing.T) {
	var buf bytes.Buffer
	w := &TextWriter{}
	require.NoError(t, w.Write(&buf, &Report{Run: review.Run{ID: "r", Name: "empty"}}))
	assert.Contains(t, buf.String(), "No checklist items.")
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &JSONWriter{}
	if err := w.Write(&buf, sampleReport()); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	var parsed Report
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if parsed.Run.ID != "run-1" {
		t.Errorf("Run.ID = %q, want %q", parsed.Run.ID, "run-1")
	}
	if len(parsed.Results) != 3 {
		t.Errorf("Results count = %d, want 3", len(parsed.Results))
	}
	if len(parsed.Results[0].Individuals) != 2 {
		t.Errorf("Individuals count = %d, want 2", len(parsed.Results[0].Individuals))
	}
}

func TestMarkdownWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &MarkdownWriter{}
	require.NoError(t, w.Write(&buf, sampleReport()))

	out := buf.String()
	for _, want := range []string{
		"## Document Review: Design review",
		"| A | 1 |",
		"| **Total** | **3** |",
		"### 1. Secrets are not logged",
		"**Evaluation:** A",
		"> No secrets appear in &lt;log> examples.",
		"<summary>Per-document comments (2)</summary>",
		"- **spec.pdf**: Section 3 masks tokens.",
		`### 2. Tables \| columns are labelled`,
		"*Not reviewed yet.*",
		"- ・Layout: model timed out",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Output should contain %q\n%s", want, out)
		}
	}
}

func TestHTMLWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &HTMLWriter{}
	require.NoError(t, w.Write(&buf, sampleReport()))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "<title>Document Review: Design review</title>")
	assert.Contains(t, out, "<h2>Document Review: Design review</h2>")
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "<details>")
	assert.Contains(t, out, "&lt;log")
	assert.NotContains(t, out, "<log>")
}

func TestWriteReport_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, WriteReport(sampleReport(), "json", path, true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run-1"`)
}
