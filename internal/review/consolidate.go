package review

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/docreview/internal/agent"
)

// consolidate merges per-document comments into one evaluation and comment
// per checklist item. Items the model leaves out are asked for again, up to
// maxItemAttempts calls in total. Results are persisted as they arrive.
func (e *Engine) consolidate(ctx context.Context, runID string, checklists []ChecklistItem, docs []DocumentComments) error {
	return e.stage(ctx, "review.consolidate", func(ctx context.Context) error {
		return e.consolidateItems(ctx, runID, checklists, docs)
	})
}

func (e *Engine) consolidateItems(ctx context.Context, runID string, checklists []ChecklistItem, docs []DocumentComments) error {
	logger := e.logger.With("run_id", runID)
	labels := e.settings.labels()
	allowed := make(map[string]bool, len(labels))
	for _, l := range labels {
		allowed[l.Label] = true
	}

	var fileID, fileName string
	if len(docs) == 1 {
		fileID, fileName = docs[0].FileID, docs[0].DocumentName
	}

	done := make(map[int]bool, len(checklists))
	remaining := checklists
	var lastReason string
	for attempt := 1; attempt <= maxItemAttempts && len(remaining) > 0; attempt++ {
		res, err := agent.Generate[evaluatedOutput](ctx, e.rt, AgentConsolidator,
			agent.Message{Text: consolidationMessage(remaining, docs)},
			agent.CallOptions{Settings: e.checklistSettings(remaining).render(), Schema: evaluatedSchema(labels)},
		)
		if err != nil {
			return fmt.Errorf("consolidating results: %w", err)
		}
		if j := res.Judge(); !j.Success {
			lastReason = j.Reason
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
				FileID:      fileID,
				FileName:    fileName,
			})
		}
		if len(batch) > 0 {
			if err := e.repo.UpsertReviewResults(ctx, runID, batch); err != nil {
				return fmt.Errorf("saving review results: %w", err)
			}
		}

		remaining = missingItems(checklists, done)
		if len(remaining) > 0 {
			lastReason = "the model did not return a result for these items"
			logger.WarnContext(ctx, "checklist items missing from consolidation", "attempt", attempt, "missing", len(remaining))
		}
	}

	if len(remaining) > 0 {
		return &unresolvedError{items: remaining, reason: lastReason}
	}
	return nil
}

// unresolvedError lists the checklist items still without a result after
// the last consolidation attempt.
type unresolvedError struct {
	items  []ChecklistItem
	reason string
}

func (e *unresolvedError) Error() string {
	return fmt.Sprintf("could not consolidate results for:\n%s\nreason: %s", bulletList(e.items), e.reason)
}

func consolidationMessage(items []ChecklistItem, docs []DocumentComments) string {
	var b strings.Builder
	for _, c := range items {
		fmt.Fprintf(&b, "## [%d] %s\n", c.ID, c.Content)
		found := false
		for _, d := range docs {
			comment, ok := d.Comments[c.ID]
			if !ok {
				continue
			}
			found = true
			fmt.Fprintf(&b, "### %s\n%s\n", d.DocumentName, comment)
		}
		if !found {
			b.WriteString("(no document commented on this item)\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}
