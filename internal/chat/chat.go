package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/docreview/internal/agent"
	"github.com/dshills/docreview/internal/apperr"
	"github.com/dshills/docreview/internal/pool"
	"github.com/dshills/docreview/internal/review"
)

const tracerName = "docreview/chat"

// finishToolCalls ends the research step of a turn.
const finishToolCalls agent.FinishReason = "tool-calls"

// Repository is the persistence chat needs.
type Repository interface {
	review.ChunkMemo
	ListReviewDocuments(ctx context.Context, runID string) ([]review.Document, error)
}

// Turn is one prior message of the conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one chat turn.
type Request struct {
	RunID    string
	Question string
	History  []Turn
}

// Research is the outcome of one research task.
type Research struct {
	DocumentID   string `json:"documentId"`
	DocumentName string `json:"documentName"`
	Instruction  string `json:"instruction"`
	Result       string `json:"result"`
	TotalChunks  int    `json:"totalChunks"`
}

// Answer is the outcome of a completed turn.
type Answer struct {
	Text         string
	FinishReason agent.FinishReason
	Usage        agent.Usage
	Research     []Research
}

// Service answers questions over the documents of a review run.
type Service struct {
	rt      *agent.Runtime
	repo    Repository
	retries review.RetryRecorder
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithRetryRecorder sets the chunk-retry metrics recorder.
func WithRetryRecorder(r review.RetryRecorder) Option { return func(s *Service) { s.retries = r } }

// NewService creates a chat service. The runtime must have Agents
// registered.
func NewService(rt *agent.Runtime, repo Repository, opts ...Option) *Service {
	s := &Service{
		rt:     rt,
		repo:   repo,
		logger: slog.New(slog.DiscardHandler),
		tracer: otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// usageTotal sums usage across concurrent calls.
type usageTotal struct {
	mu sync.Mutex
	u  agent.Usage
}

func (t *usageTotal) add(u agent.Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.u = t.u.Add(u)
}

func (t *usageTotal) get() agent.Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.u
}

// Ask plans research over the run's documents, runs every research task,
// and streams the synthesized answer to w. Any failed research task aborts
// the turn. Canceling ctx stops further dispatch.
func (s *Service) Ask(ctx context.Context, req Request, w *Writer) (Answer, error) {
	ctx, span := s.tracer.Start(ctx, "chat.turn", trace.WithAttributes(attribute.String("run.id", req.RunID)))
	defer span.End()

	ans, err := s.ask(ctx, req, w)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if werr := w.Error(apperr.UserMessage(err)); werr != nil {
			s.logger.WarnContext(ctx, "writing error frame", "error", werr)
		}
		return Answer{}, err
	}
	span.SetAttributes(attribute.Int("chat.research_tasks", len(ans.Research)))
	return ans, nil
}

func (s *Service) ask(ctx context.Context, req Request, w *Writer) (Answer, error) {
	if strings.TrimSpace(req.Question) == "" {
		return Answer{}, apperr.New(apperr.CodeInvalidInput, "the question is empty", true)
	}
	docs, err := s.repo.ListReviewDocuments(ctx, req.RunID)
	if err != nil {
		return Answer{}, fmt.Errorf("loading documents: %w", err)
	}
	if len(docs) == 0 {
		return Answer{}, apperr.New(apperr.CodeDocumentNotFound, "no documents are cached for this run; run a review first", true)
	}

	var usage usageTotal
	tasks, err := s.plan(ctx, req, docs, &usage)
	if err != nil {
		return Answer{}, err
	}

	research, err := s.research(ctx, tasks, w, &usage)
	if err != nil {
		return Answer{}, err
	}
	if len(research) > 0 {
		if err := w.StepFinish(finishToolCalls, usage.get(), false); err != nil {
			return Answer{}, err
		}
	}

	notes := make([]string, len(research))
	for i, r := range research {
		notes[i] = fmt.Sprintf("### %s\nInstruction: %s\n%s", r.DocumentName, r.Instruction, r.Result)
	}
	res, err := agent.StreamText(ctx, s.rt, AgentAnswerer, answerMessage(req, notes), agent.CallOptions{}, w.Text)
	if err != nil {
		return Answer{}, fmt.Errorf("answering: %w", err)
	}
	usage.add(res.Usage)

	if err := w.StepFinish(res.FinishReason, res.Usage, false); err != nil {
		return Answer{}, err
	}
	total := usage.get()
	if err := w.Finish(res.FinishReason, total); err != nil {
		return Answer{}, err
	}

	s.logger.InfoContext(ctx, "chat turn finished",
		"run_id", req.RunID,
		"research_tasks", len(research),
		"finish_reason", res.FinishReason,
		"tokens", total.Total(),
	)
	return Answer{Text: res.Text, FinishReason: res.FinishReason, Usage: total, Research: research}, nil
}

type plannedTask struct {
	task
	doc review.Document
}

// plan asks the planner for research tasks. Tasks naming unknown
// documents are dropped.
func (s *Service) plan(ctx context.Context, req Request, docs []review.Document, usage *usageTotal) ([]plannedTask, error) {
	res, err := agent.Generate[planOutput](ctx, s.rt, AgentPlanner, planMessage(req, docs), agent.CallOptions{Schema: planSchema})
	if err != nil {
		return nil, fmt.Errorf("planning research: %w", err)
	}
	usage.add(res.Usage)

	byID := make(map[string]review.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	var out []plannedTask
	for _, t := range res.Object.Tasks {
		d, ok := byID[t.DocumentID]
		if !ok || strings.TrimSpace(t.Instruction) == "" {
			s.logger.DebugContext(ctx, "dropping research task", "document_id", t.DocumentID)
			continue
		}
		out = append(out, plannedTask{task: t, doc: d})
	}
	return out, nil
}

// research runs every task through the chunk-retry controller. The first
// failure cancels the remaining tasks.
func (s *Service) research(ctx context.Context, tasks []plannedTask, w *Writer, usage *usageTotal) ([]Research, error) {
	env := review.ChunkEnv{Memo: s.repo, Recorder: s.retries, Logger: s.logger}
	results := make([]Research, len(tasks))

	err := pool.ForEach(ctx, len(tasks), review.ChatPolicy.Concurrency, func(ctx context.Context, i int) error {
		t := tasks[i]
		id := fmt.Sprintf("research-%d", i+1)
		if err := w.ToolCall(id, researchTool, t.task); err != nil {
			return err
		}

		out := review.RunChunked(ctx, env, t.doc, review.ChatPolicy, func(ctx context.Context, c review.Chunk) (string, error) {
			res, err := agent.GenerateText(ctx, s.rt, AgentResearcher, researchMessage(c, t.Instruction), agent.CallOptions{})
			if err != nil {
				return "", err
			}
			usage.add(res.Usage)
			if res.FinishReason == agent.FinishLength {
				return "", &agent.ContentLengthError{Agent: AgentResearcher, Err: fmt.Errorf("research output truncated")}
			}
			return res.Text, nil
		})
		if out.Err != nil {
			return fmt.Errorf("researching %s: %w", t.doc.Name, out.Err)
		}

		results[i] = Research{
			DocumentID:   t.doc.ID,
			DocumentName: t.doc.Name,
			Instruction:  t.Instruction,
			Result:       review.JoinChunkText(t.doc.Name, out.Parts),
			TotalChunks:  out.TotalChunks,
		}
		return w.ToolResult(id, results[i])
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
