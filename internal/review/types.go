package review

import (
	"fmt"
	"time"

	"github.com/dshills/docreview/internal/extract"
)

// ChecklistItem is one reviewable criterion.
type ChecklistItem struct {
	ID      int    `json:"id" yaml:"id"`
	Content string `json:"content" yaml:"content"`
}

// EvaluationLabel is one allowed value of a final evaluation.
type EvaluationLabel struct {
	Label       string `json:"label" yaml:"label" mapstructure:"label"`
	Description string `json:"description" yaml:"description" mapstructure:"description"`
}

// DefaultEvaluationLabels is the label set used when none is configured.
var DefaultEvaluationLabels = []EvaluationLabel{
	{Label: "A", Description: "fully satisfies the checklist item"},
	{Label: "B", Description: "partially satisfies the checklist item"},
	{Label: "C", Description: "does not satisfy the checklist item"},
	{Label: "–", Description: "not applicable or cannot be judged from the documents"},
}

// ReviewResult is the final verdict for one checklist item in a run.
// Writes are upserts keyed by (run, checklist id).
type ReviewResult struct {
	ChecklistID int       `json:"checklistId"`
	Evaluation  string    `json:"evaluation"`
	Comment     string    `json:"comment"`
	FileID      string    `json:"fileId,omitempty"`
	FileName    string    `json:"fileName,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitzero"`
}

// IndividualResult is one document's raw comment on one checklist item,
// produced in large-document mode before consolidation.
type IndividualResult struct {
	ChecklistID  int    `json:"checklistId"`
	DocumentID   string `json:"documentId"`
	DocumentName string `json:"documentName"`
	Comment      string `json:"comment"`
}

// ChecklistResult joins a checklist item with its final and per-document
// results.
type ChecklistResult struct {
	Checklist   ChecklistItem      `json:"checklist"`
	Result      *ReviewResult      `json:"result,omitempty"`
	Individuals []IndividualResult `json:"individualResults,omitempty"`
}

// Document is an extracted input. Sub-documents produced by splitting carry
// a _part{n} suffix on ID and Name and share FileID with their parent.
type Document struct {
	ID     string       `json:"id"`
	FileID string       `json:"fileId"`
	Name   string       `json:"name"`
	Path   string       `json:"path"`
	Type   string       `json:"type"`
	Mode   extract.Mode `json:"processMode"`
	Text   string       `json:"textContent,omitempty"`
	Images []string     `json:"imageData,omitempty"`
}

// Units returns the length of the document in split units: runes for
// text documents, pages for image documents.
func (d Document) Units() int {
	if d.Mode == extract.ModeImage {
		return len(d.Images)
	}
	return len([]rune(d.Text))
}

// Category is a named group of checklist items reviewed together.
type Category struct {
	Name       string          `json:"name"`
	Checklists []ChecklistItem `json:"checklists"`
}

// Status is the terminal state of a unit of work.
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// TaskResult is the outcome of one fan-out unit. Failures are carried as
// values so siblings are unaffected.
type TaskResult struct {
	Name         string `json:"name"`
	Status       Status `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	// Checklists are the items a failure applies to. Empty means every
	// item of the category.
	Checklists []ChecklistItem `json:"checklists,omitempty"`
}

func succeeded(name string) TaskResult {
	return TaskResult{Name: name, Status: StatusSuccess}
}

func failed(name string, format string, args ...any) TaskResult {
	return TaskResult{Name: name, Status: StatusFailed, ErrorMessage: fmt.Sprintf(format, args...)}
}

func failedItems(name string, items []ChecklistItem, format string, args ...any) TaskResult {
	r := failed(name, format, args...)
	r.Checklists = items
	return r
}

// Run is a review run as stored by the repository.
type Run struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Status        Status    `json:"status,omitempty"`
	Message       string    `json:"message,omitempty"`
	DocumentNames string    `json:"documentNames,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// RunOutcome is the terminal result of Engine.Run.
type RunOutcome struct {
	RunID      string        `json:"runId"`
	Status     Status        `json:"status"`
	Message    string        `json:"message,omitempty"`
	Mode       Mode          `json:"mode,omitempty"`
	Categories int           `json:"categories"`
	Documents  int           `json:"documents"`
	Tasks      []TaskResult  `json:"tasks,omitempty"`
	Duration   time.Duration `json:"durationNs"`
}
