package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/docreview/internal/agent"
	"github.com/dshills/docreview/internal/apperr"
	"github.com/dshills/docreview/internal/extract"
	"github.com/dshills/docreview/internal/pool"
)

const tracerName = "docreview/review"

// Mode selects the review executor.
type Mode string

const (
	ModeAuto  Mode = "auto"
	ModeSmall Mode = "small"
	ModeLarge Mode = "large"
)

// largeImagePages is the page count above which an image document forces
// large mode under ModeAuto.
const largeImagePages = 20

// Settings are the per-run review parameters.
type Settings struct {
	Mode                     Mode
	MaxChecklistsPerCategory int
	MaxCategories            int
	SmallModeMaxChars        int
	MaxReadinessIterations   int
	EvaluationLabels         []EvaluationLabel
	CommentFormat            string
	AdditionalInstructions   string
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Mode:                     ModeAuto,
		MaxChecklistsPerCategory: 10,
		MaxCategories:            10,
		SmallModeMaxChars:        200_000,
		MaxReadinessIterations:   3,
		EvaluationLabels:         DefaultEvaluationLabels,
	}
}

func (s Settings) labels() []EvaluationLabel {
	if len(s.EvaluationLabels) == 0 {
		return DefaultEvaluationLabels
	}
	return s.EvaluationLabels
}

// Repository is the persistence the engine needs.
type Repository interface {
	ChunkMemo
	GetChecklists(ctx context.Context, runID string) ([]ChecklistItem, error)
	UpsertReviewResults(ctx context.Context, runID string, results []ReviewResult) error
	DeleteAllReviewResults(ctx context.Context, runID string) error
	UpsertIndividualResults(ctx context.Context, runID string, results []IndividualResult) error
	SaveReviewDocuments(ctx context.Context, runID string, docs []Document) error
	SetRunDocumentNames(ctx context.Context, runID, names string) error
	SetRunStatus(ctx context.Context, runID string, status Status, message string) error
}

// Extractor turns an input file into text or page images.
type Extractor interface {
	Extract(ctx context.Context, f extract.File) (extract.Content, error)
}

// Notifier is told when a run reaches a terminal state.
type Notifier interface {
	RunFinished(ctx context.Context, outcome RunOutcome)
}

// RunRequest identifies the run and its input files.
type RunRequest struct {
	RunID string
	Files []extract.File
}

// Engine executes review runs.
type Engine struct {
	rt        *agent.Runtime
	repo      Repository
	extractor Extractor
	settings  Settings
	notifiers []Notifier
	retries   RetryRecorder
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithNotifier registers an observer of run completion. It may be given
// more than once.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifiers = append(e.notifiers, n) }
}

// WithRetryRecorder sets the chunk-retry metrics recorder.
func WithRetryRecorder(r RetryRecorder) Option { return func(e *Engine) { e.retries = r } }

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option { return func(e *Engine) { e.tracer = t } }

// NewEngine creates an engine. The runtime must have Agents registered.
func NewEngine(rt *agent.Runtime, repo Repository, extractor Extractor, settings Settings, opts ...Option) *Engine {
	e := &Engine{
		rt:        rt,
		repo:      repo,
		extractor: extractor,
		settings:  settings,
		logger:    slog.New(slog.DiscardHandler),
		tracer:    otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) chunkEnv() ChunkEnv {
	return ChunkEnv{Memo: e.repo, Recorder: e.retries, Logger: e.logger}
}

// Run executes one review run end to end and returns its outcome. The
// outcome is also passed to every registered Notifier.
func (e *Engine) Run(ctx context.Context, req RunRequest) RunOutcome {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "review.run", trace.WithAttributes(
		attribute.String("run.id", req.RunID),
		attribute.Int("run.files", len(req.Files)),
	))
	defer span.End()

	logger := e.logger.With("run_id", req.RunID)
	out := e.run(ctx, logger, req)
	out.RunID = req.RunID
	out.Duration = time.Since(start)

	span.SetAttributes(attribute.String("run.status", string(out.Status)), attribute.String("run.mode", string(out.Mode)))
	if out.Status == StatusFailed {
		span.SetStatus(codes.Error, out.Message)
	}

	// Record and notify even when ctx was canceled.
	finCtx := context.WithoutCancel(ctx)
	if err := e.repo.SetRunStatus(finCtx, req.RunID, out.Status, out.Message); err != nil {
		logger.ErrorContext(finCtx, "saving run status", "error", err)
	}
	logger.InfoContext(finCtx, "review finished",
		"status", out.Status,
		"mode", out.Mode,
		"categories", out.Categories,
		"documents", out.Documents,
		"duration", out.Duration,
	)
	for _, n := range e.notifiers {
		n.RunFinished(finCtx, out)
	}
	return out
}

func (e *Engine) run(ctx context.Context, logger *slog.Logger, req RunRequest) RunOutcome {
	if err := e.repo.SetRunStatus(ctx, req.RunID, StatusRunning, ""); err != nil {
		return failedOutcome(err)
	}

	// Extraction and classification have no data dependency.
	var (
		docs       []Document
		categories []Category
		checklists []ChecklistItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.stage(gctx, "review.extract", func(ctx context.Context) error {
			var err error
			docs, err = e.extractAll(ctx, req.Files)
			return err
		})
	})
	g.Go(func() error {
		return e.stage(gctx, "review.classify", func(ctx context.Context) error {
			var err error
			checklists, err = e.repo.GetChecklists(ctx, req.RunID)
			if err != nil {
				return fmt.Errorf("loading checklists: %w", err)
			}
			categories, err = ClassifyChecklists(ctx, e.rt, checklists, ClassifyOptions{
				MaxPerCategory: e.settings.MaxChecklistsPerCategory,
				MaxCategories:  e.settings.MaxCategories,
			}, logger)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return failedOutcome(err)
	}

	if err := e.stage(ctx, "review.prepare", func(ctx context.Context) error {
		return e.prepare(ctx, req.RunID, docs)
	}); err != nil {
		return failedOutcome(err)
	}

	mode := e.pickMode(docs)
	logger.InfoContext(ctx, "review started",
		"mode", mode,
		"documents", len(docs),
		"checklists", len(checklists),
		"categories", len(categories),
	)

	var reviewCategory func(context.Context, Category) TaskResult
	switch mode {
	case ModeLarge:
		reviewCategory = e.newLargeRun(ctx, req.RunID, docs).review
	default:
		reviewCategory = e.newSmallRun(req.RunID, docs).review
	}
	task := func(ctx context.Context, c Category) (TaskResult, error) {
		ctx, span := e.tracer.Start(ctx, "review.category", trace.WithAttributes(
			attribute.String("category.name", c.Name),
			attribute.Int("category.checklists", len(c.Checklists)),
		))
		defer span.End()
		r := reviewCategory(ctx, c)
		if r.Status == StatusFailed {
			span.SetStatus(codes.Error, r.ErrorMessage)
		}
		return r, nil
	}

	results, errs := pool.Collect(ctx, categories, pool.DefaultLimit, task)
	for i, err := range errs {
		if err != nil {
			results[i] = failed(categories[i].Name, "%v", err)
		}
	}

	out := RunOutcome{
		Status:     StatusSuccess,
		Mode:       mode,
		Categories: len(categories),
		Documents:  len(docs),
		Tasks:      results,
	}
	var lines []string
	for i, r := range results {
		if r.Status != StatusFailed {
			continue
		}
		items := r.Checklists
		if len(items) == 0 {
			items = categories[i].Checklists
		}
		lines = append(lines, failureLines(items, r.ErrorMessage)...)
	}
	if len(lines) > 0 {
		out.Status = StatusFailed
		out.Message = strings.Join(lines, "\n")
	}
	return out
}

// stage runs fn inside a child span named name.
func (e *Engine) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := e.tracer.Start(ctx, name)
	defer span.End()
	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// prepare clears prior results and caches the extracted documents. It is
// the barrier between extraction and the category fan-out.
func (e *Engine) prepare(ctx context.Context, runID string, docs []Document) error {
	if err := e.repo.DeleteAllReviewResults(ctx, runID); err != nil {
		return fmt.Errorf("clearing review results: %w", err)
	}
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = d.Name
	}
	if err := e.repo.SetRunDocumentNames(ctx, runID, strings.Join(names, ", ")); err != nil {
		return fmt.Errorf("saving document names: %w", err)
	}
	if err := e.repo.SaveReviewDocuments(ctx, runID, docs); err != nil {
		return fmt.Errorf("caching documents: %w", err)
	}
	return nil
}

// failureLines renders one line per failed checklist item.
func failureLines(items []ChecklistItem, msg string) []string {
	msg = strings.Join(strings.Fields(msg), " ")
	lines := make([]string, len(items))
	for i, c := range items {
		lines[i] = "・" + c.Content + ": " + msg
	}
	return lines
}

func failedOutcome(err error) RunOutcome {
	return RunOutcome{Status: StatusFailed, Message: apperr.UserMessage(err)}
}

// extractAll extracts every file with bounded concurrency. Any failure
// fails the whole stage.
func (e *Engine) extractAll(ctx context.Context, files []extract.File) ([]Document, error) {
	if len(files) == 0 {
		return nil, apperr.New(apperr.CodeInvalidInput, "no documents to review", true)
	}
	contents, errs := pool.Collect(ctx, files, pool.DefaultLimit, e.extractor.Extract)
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("extracting documents: %w", err)
	}

	docs := make([]Document, len(files))
	for i, f := range files {
		c := contents[i]
		docs[i] = Document{
			ID:     strconv.Itoa(i + 1),
			FileID: c.Hash,
			Name:   filepath.Base(f.Path),
			Path:   f.Path,
			Type:   c.Type,
			Mode:   c.Mode,
			Text:   c.Text,
			Images: c.Images,
		}
	}
	return docs, nil
}

// pickMode resolves ModeAuto from the extracted documents.
func (e *Engine) pickMode(docs []Document) Mode {
	switch e.settings.Mode {
	case ModeSmall, ModeLarge:
		return e.settings.Mode
	}
	chars := 0
	for _, d := range docs {
		if d.Mode == extract.ModeImage && len(d.Images) > largeImagePages {
			return ModeLarge
		}
		chars += len([]rune(d.Text))
	}
	if e.settings.SmallModeMaxChars > 0 && chars > e.settings.SmallModeMaxChars {
		return ModeLarge
	}
	return ModeSmall
}

func (e *Engine) checklistSettings(items []ChecklistItem) checklistSettings {
	return checklistSettings{
		Checklists:             items,
		Labels:                 e.settings.labels(),
		CommentFormat:          e.settings.CommentFormat,
		AdditionalInstructions: e.settings.AdditionalInstructions,
	}
}

// missingItems returns the items whose ids are not in done.
func missingItems(items []ChecklistItem, done map[int]bool) []ChecklistItem {
	var out []ChecklistItem
	for _, c := range items {
		if !done[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

func bulletList(items []ChecklistItem) string {
	lines := make([]string, len(items))
	for i, c := range items {
		lines[i] = "・" + c.Content
	}
	return strings.Join(lines, "\n")
}
