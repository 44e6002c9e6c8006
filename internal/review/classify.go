package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dshills/docreview/internal/agent"
	"github.com/dshills/docreview/internal/apperr"
)

// OtherCategoryName collects checklist items the model did not assign.
const OtherCategoryName = "その他"

// ClassifyOptions bounds the categories produced by ClassifyChecklists.
type ClassifyOptions struct {
	MaxPerCategory int
	MaxCategories  int
}

// ClassifyChecklists partitions items into categories. Every item appears
// in exactly one category and no category exceeds MaxPerCategory items.
//
// With MaxPerCategory <= 1 no model call is made. When the model call fails
// with an API error or returns unusable output, the original list is split
// into equal-size categories instead. Other errors are returned.
func ClassifyChecklists(ctx context.Context, rt *agent.Runtime, items []ChecklistItem, opts ClassifyOptions, logger *slog.Logger) ([]Category, error) {
	if len(items) == 0 {
		return nil, apperr.New(apperr.CodeChecklistNotFound, "the run has no checklist items", true)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.MaxPerCategory <= 1 {
		return SplitEvenly(items, 1), nil
	}

	var msg strings.Builder
	msg.WriteString("Group these checklist items:\n")
	for _, c := range items {
		fmt.Fprintf(&msg, "- [%d] %s\n", c.ID, c.Content)
	}

	res, err := agent.Generate[categoryOutput](ctx, rt, AgentCategorizer, agent.Message{Text: msg.String()}, agent.CallOptions{
		Settings: categorizeSettings{MaxCategories: opts.MaxCategories, MaxPerCategory: opts.MaxPerCategory}.render(),
		Schema:   categorySchema,
	})
	if err != nil {
		if agent.IsAPIError(err) || agent.IsContentLength(err) || agent.IsNoObject(err) {
			logger.WarnContext(ctx, "checklist classification failed, using equal split", "error", err)
			return SplitEvenly(items, opts.MaxPerCategory), nil
		}
		return nil, fmt.Errorf("classifying checklists: %w", err)
	}

	byID := make(map[int]ChecklistItem, len(items))
	for _, c := range items {
		byID[c.ID] = c
	}

	seen := make(map[int]bool, len(items))
	var categories []Category
	for _, rc := range res.Object.Categories {
		var members []ChecklistItem
		for _, id := range rc.ChecklistIDs {
			c, ok := byID[id]
			if !ok || seen[id] {
				continue
			}
			seen[id] = true
			members = append(members, c)
		}
		name := strings.TrimSpace(rc.Name)
		if name == "" {
			name = fmt.Sprintf("Category %d", len(categories)+1)
		}
		categories = append(categories, capCategory(name, members, opts.MaxPerCategory)...)
	}

	if len(categories) == 0 {
		logger.WarnContext(ctx, "checklist classification returned no usable categories, using equal split")
		return SplitEvenly(items, opts.MaxPerCategory), nil
	}

	var rest []ChecklistItem
	for _, c := range items {
		if !seen[c.ID] {
			rest = append(rest, c)
		}
	}
	categories = append(categories, capCategory(OtherCategoryName, rest, opts.MaxPerCategory)...)

	return categories, nil
}

// capCategory splits members into numbered parts of at most size items.
// Empty input yields no categories.
func capCategory(name string, members []ChecklistItem, size int) []Category {
	if len(members) == 0 {
		return nil
	}
	if len(members) <= size {
		return []Category{{Name: name, Checklists: members}}
	}
	var out []Category
	for i := 0; i < len(members); i += size {
		end := min(i+size, len(members))
		out = append(out, Category{
			Name:       fmt.Sprintf("%s (%d)", name, i/size+1),
			Checklists: members[i:end:end],
		})
	}
	return out
}

// SplitEvenly splits items into ceil(len/size) categories of near-equal
// size, named by position.
func SplitEvenly(items []ChecklistItem, size int) []Category {
	if len(items) == 0 {
		return nil
	}
	if size < 1 {
		size = 1
	}
	n := (len(items) + size - 1) / size
	parts := SplitSlice(items, n, 0)
	out := make([]Category, len(parts))
	for i, p := range parts {
		out[i] = Category{Name: fmt.Sprintf("Category %d", i+1), Checklists: p}
	}
	return out
}
