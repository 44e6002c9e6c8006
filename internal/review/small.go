package review

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/docreview/internal/agent"
	"github.com/dshills/docreview/internal/extract"
)

// maxItemAttempts bounds the calls made to recover checklist items a model
// left out of its structured output.
const maxItemAttempts = 3

// smallRun reviews every category against all documents combined into
// one message.
type smallRun struct {
	e     *Engine
	runID string
	msg   agent.Message
}

func (e *Engine) newSmallRun(runID string, docs []Document) *smallRun {
	return &smallRun{e: e, runID: runID, msg: combineDocuments(docs)}
}

// combineDocuments builds the single multi-document message used by
// small mode. Image pages follow in document order.
func combineDocuments(docs []Document) agent.Message {
	var b strings.Builder
	var images []string
	for i, d := range docs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "<document id=%q name=%q>\n", d.ID, d.Name)
		if d.Mode == extract.ModeImage {
			fmt.Fprintf(&b, "(%d page images attached, images %d to %d)\n", len(d.Images), len(images)+1, len(images)+len(d.Images))
			images = append(images, d.Images...)
		} else {
			b.WriteString(d.Text)
			b.WriteString("\n")
		}
		b.WriteString("</document>")
	}
	return agent.Message{Text: b.String(), Images: images}
}

func (r *smallRun) review(ctx context.Context, cat Category) TaskResult {
	logger := r.e.logger.With("run_id", r.runID, "category", cat.Name)
	labels := r.e.settings.labels()
	allowed := make(map[string]bool, len(labels))
	for _, l := range labels {
		allowed[l.Label] = true
	}

	done := make(map[int]bool, len(cat.Checklists))
	remaining := cat.Checklists
	for attempt := 1; attempt <= maxItemAttempts && len(remaining) > 0; attempt++ {
		res, err := agent.Generate[evaluatedOutput](ctx, r.e.rt, AgentReviewer, r.msg, agent.CallOptions{
			Settings: r.e.checklistSettings(remaining).render(),
			Schema:   evaluatedSchema(labels),
		})
		if err != nil {
			if agent.IsContentLength(err) {
				return failed(cat.Name, "the documents are too large to review together; run the review in large mode")
			}
			logger.ErrorContext(ctx, "category review failed", "attempt", attempt, "error", err)
			return failed(cat.Name, "%v", err)
		}

		want := make(map[int]bool, len(remaining))
		for _, c := range remaining {
			want[c.ID] = true
		}
		var batch []ReviewResult
		for _, item := range res.Object.Results {
			if !want[item.ChecklistID] || done[item.ChecklistID] || !allowed[item.Evaluation] {
				continue
			}
			done[item.ChecklistID] = true
			batch = append(batch, ReviewResult{
				ChecklistID: item.ChecklistID,
				Evaluation:  item.Evaluation,
				Comment:     item.Comment,
			})
		}
		if len(batch) > 0 {
			if err := r.e.repo.UpsertReviewResults(ctx, r.runID, batch); err != nil {
				return failed(cat.Name, "saving review results: %v", err)
			}
		}

		remaining = missingItems(cat.Checklists, done)
		if len(remaining) > 0 {
			logger.WarnContext(ctx, "checklist items missing from review", "attempt", attempt, "missing", len(remaining))
		}
	}

	if len(remaining) > 0 {
		return failedItems(cat.Name, remaining, "no review was returned")
	}
	return succeeded(cat.Name)
}
