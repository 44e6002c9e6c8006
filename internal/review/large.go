package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dshills/docreview/internal/agent"
	"github.com/dshills/docreview/internal/pool"
)

const defaultReadinessIterations = 3

// largeRun reviews documents one at a time: summarize, gather answers to
// follow-up questions, review per document, then consolidate.
type largeRun struct {
	e     *Engine
	runID string
	docs  []Document
	// topics memoizes each document's summary for the whole run.
	topics []func() ([]Topic, error)
}

func (e *Engine) newLargeRun(ctx context.Context, runID string, docs []Document) *largeRun {
	r := &largeRun{e: e, runID: runID, docs: docs, topics: make([]func() ([]Topic, error), len(docs))}
	for i, d := range docs {
		r.topics[i] = sync.OnceValues(func() ([]Topic, error) { return r.summarize(ctx, d) })
	}
	return r
}

// DocumentComments are one document's raw comments keyed by checklist id.
type DocumentComments struct {
	DocumentID   string
	DocumentName string
	FileID       string
	Comments     map[int]string
}

func (r *largeRun) review(ctx context.Context, cat Category) TaskResult {
	logger := r.e.logger.With("run_id", r.runID, "category", cat.Name)

	topics, errs := pool.Collect(ctx, r.topics, pool.DefaultLimit, func(_ context.Context, f func() ([]Topic, error)) ([]Topic, error) {
		return f()
	})
	if err := allFailed(errs); err != nil {
		return failed(cat.Name, "summarizing documents: %v", err)
	}
	for i, err := range errs {
		if err != nil {
			logger.WarnContext(ctx, "document summary failed", "document", r.docs[i].Name, "error", err)
		}
	}

	qa, err := r.gather(ctx, cat, topics)
	if err != nil {
		return failed(cat.Name, "%v", err)
	}

	comments, errs := pool.Collect(ctx, r.docs, pool.DefaultLimit, func(ctx context.Context, d Document) (DocumentComments, error) {
		return r.reviewDocument(ctx, cat, d, qa[d.ID])
	})
	if err := allFailed(errs); err != nil {
		return failed(cat.Name, "%v", err)
	}
	var reviewed []DocumentComments
	for i, err := range errs {
		if err != nil {
			logger.WarnContext(ctx, "document review failed", "document", r.docs[i].Name, "error", err)
			continue
		}
		reviewed = append(reviewed, comments[i])
	}

	if err := r.e.consolidate(ctx, r.runID, cat.Checklists, reviewed); err != nil {
		var unresolved *unresolvedError
		if errors.As(err, &unresolved) {
			return failedItems(cat.Name, unresolved.items, "could not consolidate results: %s", unresolved.reason)
		}
		return failed(cat.Name, "%v", err)
	}
	return succeeded(cat.Name)
}

// summarize extracts a document's topics, splitting it as needed.
func (r *largeRun) summarize(ctx context.Context, d Document) ([]Topic, error) {
	out := RunChunked(ctx, r.e.chunkEnv(), d, ReviewPolicy.WithPurpose("topics"), func(ctx context.Context, c Chunk) ([]Topic, error) {
		cd := c.Document()
		res, err := agent.Generate[topicOutput](ctx, r.e.rt, AgentTopics, documentMessage(cd, nil), agent.CallOptions{
			Settings: documentSettings{DocumentID: d.ID, DocumentName: d.Name, ChunkIndex: c.Index, TotalChunks: c.Total}.render(),
			Schema:   topicSchema,
		})
		if err != nil {
			return nil, chunkError(err)
		}
		return res.Object.Topics, nil
	})
	if out.Err != nil {
		return nil, out.Err
	}
	var topics []Topic
	for _, p := range out.Parts {
		topics = append(topics, p...)
	}
	return topics, nil
}

// gather runs the readiness loop: while the model asks follow-up questions,
// answer them per document and fold the answers into that document's Q&A.
// The loop is bounded by MaxReadinessIterations.
func (r *largeRun) gather(ctx context.Context, cat Category, topics [][]Topic) (map[string][]QA, error) {
	logger := r.e.logger.With("run_id", r.runID, "category", cat.Name)
	iterations := r.e.settings.MaxReadinessIterations
	if iterations <= 0 {
		iterations = defaultReadinessIterations
	}

	known := make(map[string]Document, len(r.docs))
	for _, d := range r.docs {
		known[d.ID] = d
	}

	qa := make(map[string][]QA)
	for iter := 0; iter < iterations; iter++ {
		res, err := agent.Generate[readinessOutput](ctx, r.e.rt, AgentReadiness,
			agent.Message{Text: r.readinessContext(topics, qa, iter > 0)},
			agent.CallOptions{Settings: r.e.checklistSettings(cat.Checklists).render(), Schema: readinessSchema},
		)
		if err != nil {
			return nil, fmt.Errorf("readiness check: %w", err)
		}
		if res.Object.Ready {
			break
		}

		byDoc := make(map[string][]string)
		var order []string
		for _, q := range res.Object.Questions {
			if _, ok := known[q.DocumentID]; !ok || strings.TrimSpace(q.Question) == "" {
				continue
			}
			if _, ok := byDoc[q.DocumentID]; !ok {
				order = append(order, q.DocumentID)
			}
			byDoc[q.DocumentID] = append(byDoc[q.DocumentID], q.Question)
		}
		if len(order) == 0 {
			break
		}
		logger.DebugContext(ctx, "answering follow-up questions", "iteration", iter+1, "documents", len(order))

		answers, errs := pool.Collect(ctx, order, pool.DefaultLimit, func(ctx context.Context, id string) ([]QA, error) {
			return r.answer(ctx, known[id], byDoc[id])
		})
		if err := allFailed(errs); err != nil {
			return nil, fmt.Errorf("answering questions: %w", err)
		}
		for i, id := range order {
			if errs[i] != nil {
				logger.WarnContext(ctx, "answering questions failed", "document", known[id].Name, "error", errs[i])
				continue
			}
			qa[id] = append(qa[id], answers[i]...)
		}
	}
	return qa, nil
}

func (r *largeRun) readinessContext(topics [][]Topic, qa map[string][]QA, withQA bool) string {
	var b strings.Builder
	for i, d := range r.docs {
		fmt.Fprintf(&b, "<document id=%q name=%q>\nTopics:\n", d.ID, d.Name)
		for _, t := range topics[i] {
			fmt.Fprintf(&b, "- %s: %s\n", t.Topic, t.Summary)
		}
		if withQA && len(qa[d.ID]) > 0 {
			b.WriteString("Answered questions:\n")
			writeQA(&b, qa[d.ID])
		}
		b.WriteString("</document>\n")
	}
	return b.String()
}

// answer asks questions of one document, splitting it as needed. Answers
// from each part are kept.
func (r *largeRun) answer(ctx context.Context, d Document, questions []string) ([]QA, error) {
	var qb strings.Builder
	qb.WriteString("Questions:\n")
	for _, q := range questions {
		fmt.Fprintf(&qb, "- %s\n", q)
	}

	out := RunChunked(ctx, r.e.chunkEnv(), d, ReviewPolicy.WithPurpose("qa"), func(ctx context.Context, c Chunk) ([]QA, error) {
		msg := documentMessage(c.Document(), nil)
		msg.Text += "\n\n" + qb.String()
		res, err := agent.Generate[answerOutput](ctx, r.e.rt, AgentAnswerer, msg, agent.CallOptions{
			Settings: documentSettings{DocumentID: d.ID, DocumentName: d.Name, ChunkIndex: c.Index, TotalChunks: c.Total}.render(),
			Schema:   answerSchema,
		})
		if err != nil {
			return nil, chunkError(err)
		}
		return res.Object.Answers, nil
	})
	if out.Err != nil {
		return nil, out.Err
	}
	var all []QA
	for _, p := range out.Parts {
		all = append(all, p...)
	}
	return all, nil
}

// reviewDocument reviews one document against the category, splitting it
// into _part{n} sub-documents when it overflows the context window, and
// persists the per-document comments.
func (r *largeRun) reviewDocument(ctx context.Context, cat Category, d Document, qa []QA) (DocumentComments, error) {
	want := make(map[int]bool, len(cat.Checklists))
	for _, c := range cat.Checklists {
		want[c.ID] = true
	}

	out := RunChunked(ctx, r.e.chunkEnv(), d, ReviewPolicy, func(ctx context.Context, c Chunk) ([]commentItem, error) {
		res, err := agent.Generate[commentOutput](ctx, r.e.rt, AgentDocChecker, documentMessage(c.Document(), qa), agent.CallOptions{
			Settings: joinSettings(
				r.e.checklistSettings(cat.Checklists).render(),
				documentSettings{DocumentID: d.ID, DocumentName: d.Name, ChunkIndex: c.Index, TotalChunks: c.Total}.render(),
			),
			Schema: commentSchema,
		})
		if err != nil {
			return nil, chunkError(err)
		}
		return res.Object.Comments, nil
	})
	if out.Err != nil {
		return DocumentComments{}, out.Err
	}

	dc := DocumentComments{DocumentID: d.ID, DocumentName: d.Name, FileID: d.FileID, Comments: make(map[int]string)}
	perItem := make(map[int][]string)
	for i, part := range out.Parts {
		for _, item := range part {
			if !want[item.ChecklistID] || strings.TrimSpace(item.Comment) == "" {
				continue
			}
			text := item.Comment
			if out.TotalChunks > 1 {
				text = "【" + out.Chunks[i].Document().Name + "】" + text
			}
			perItem[item.ChecklistID] = append(perItem[item.ChecklistID], text)
		}
	}

	var individuals []IndividualResult
	for _, c := range cat.Checklists {
		texts, ok := perItem[c.ID]
		if !ok {
			continue
		}
		comment := strings.Join(texts, "\n")
		dc.Comments[c.ID] = comment
		individuals = append(individuals, IndividualResult{
			ChecklistID:  c.ID,
			DocumentID:   d.ID,
			DocumentName: d.Name,
			Comment:      comment,
		})
	}
	if len(individuals) > 0 {
		if err := r.e.repo.UpsertIndividualResults(ctx, r.runID, individuals); err != nil {
			return DocumentComments{}, fmt.Errorf("%s: saving individual results: %w", d.Name, err)
		}
	}
	return dc, nil
}

// documentMessage renders one (sub-)document and its accumulated Q&A.
func documentMessage(d Document, qa []QA) agent.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "<document id=%q name=%q>\n", d.ID, d.Name)
	if len(d.Images) > 0 {
		fmt.Fprintf(&b, "(%d page images attached)\n", len(d.Images))
	} else {
		b.WriteString(d.Text)
		b.WriteString("\n")
	}
	b.WriteString("</document>\n")
	if len(qa) > 0 {
		b.WriteString("\nPreviously answered questions about this document:\n")
		writeQA(&b, qa)
	}
	return agent.Message{Text: b.String(), Images: d.Images}
}

func writeQA(b *strings.Builder, qa []QA) {
	for _, x := range qa {
		fmt.Fprintf(b, "Q: %s\nA: %s\n", x.Question, x.Answer)
	}
}

// allFailed returns the joined errors when every entry failed, and nil
// when at least one succeeded or errs is empty.
func allFailed(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	for _, err := range errs {
		if err == nil {
			return nil
		}
	}
	return errors.Join(errs...)
}
