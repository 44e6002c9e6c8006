package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dshills/docreview/internal/agent"
	"github.com/dshills/docreview/internal/cache"
	"github.com/dshills/docreview/internal/chat"
	"github.com/dshills/docreview/internal/config"
	"github.com/dshills/docreview/internal/events"
	"github.com/dshills/docreview/internal/extract"
	"github.com/dshills/docreview/internal/observability"
	"github.com/dshills/docreview/internal/output"
	"github.com/dshills/docreview/internal/redact"
	"github.com/dshills/docreview/internal/review"
	"github.com/dshills/docreview/internal/store"
)

// app holds the services one command invocation needs.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	obs       observability.Providers
	metrics   *observability.Metrics
	store     *store.Store
	extractor *extract.Extractor
	bus       *events.Bus
	provider  agent.Provider
	rt        *agent.Runtime
	stop      context.CancelFunc
}

// openApp loads configuration and opens the run store. With withLLM it
// also connects the configured provider.
func openApp(ctx context.Context, withLLM bool) (*app, error) {
	cfg, err := config.Load(flagConfig, buildOverrides())
	if err != nil {
		return nil, err
	}
	if flagDB != "" {
		cfg.DBPath = flagDB
	}
	if flagNoRedact {
		cfg.Privacy.RedactSecrets = false
		fmt.Fprintln(os.Stderr, "WARNING: secret redaction is disabled")
	}

	obs, err := observability.Init(observabilityConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	a := &app{cfg: cfg, obs: obs, logger: obs.Logger}

	ctx, a.stop = context.WithCancel(ctx)
	if obs.MetricsHandler != nil {
		go func() {
			if err := observability.ServeMetrics(ctx, cfg.Telemetry.MetricsAddr, obs.MetricsHandler, a.logger); err != nil {
				a.logger.Error("metrics endpoint stopped", "error", err)
			}
		}()
	}

	a.metrics, err = observability.NewMetrics(obs.Meter)
	if err != nil {
		a.close()
		return nil, err
	}

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		a.close()
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		a.close()
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	a.store, err = store.Open(dbPath)
	if err != nil {
		a.close()
		return nil, err
	}

	opts := []extract.Option{
		extract.WithMaxImageDimension(cfg.Extract.MaxImageDimension),
		extract.WithLogger(a.logger),
	}
	if cfg.Privacy.RedactSecrets {
		opts = append(opts, extract.WithRedactor(redact.New(cfg.Privacy.RedactPaths)))
		// Cached text is post-redaction, so unredacted runs bypass the cache.
		c, err := cache.New(cfg.Cache.Enabled, cfg.Cache.Dir, cfg.Cache.TTLSeconds)
		if err != nil {
			a.logger.Warn("extraction cache unavailable", "error", err)
		} else if c.Enabled() {
			opts = append(opts, extract.WithCache(c))
		}
	}
	a.extractor = extract.New(opts...)
	a.bus = events.NewBus(a.logger)

	if withLLM {
		a.provider, err = agent.New(ctx, cfg.Provider, cfg.Model, agent.Options{
			OpenAIBaseURL:  cfg.OpenAI.BaseURL,
			VertexProject:  cfg.Vertex.Project,
			VertexLocation: cfg.Vertex.Location,
		})
		if err != nil {
			a.close()
			return nil, err
		}
		defs := append(review.Agents(), chat.Agents()...)
		a.rt = agent.NewRuntime(a.provider, defs,
			agent.WithLogger(a.logger),
			agent.WithRecorder(a.metrics),
			agent.WithMaxRequestBytes(agent.MaxRequestBytes(a.cfg.Provider)),
		)
	}
	return a, nil
}

func observabilityConfig(cfg config.Config) observability.Config {
	oc := observability.DefaultConfig()
	oc.ServiceVersion = version
	oc.LogLevel = observability.ParseLevel(cfg.Log.Level)
	if flagVerbose {
		oc.LogLevel = slog.LevelDebug
	}
	oc.LogJSON = cfg.Log.JSON
	oc.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	oc.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	oc.Prometheus = cfg.Telemetry.MetricsAddr != ""
	return oc
}

// reviewSettings converts the review section of the config.
func reviewSettings(cfg config.Config) review.Settings {
	s := review.Settings{
		Mode:                     review.Mode(cfg.Review.Mode),
		MaxChecklistsPerCategory: cfg.Review.MaxChecklistsPerCategory,
		MaxCategories:            cfg.Review.MaxCategories,
		SmallModeMaxChars:        cfg.Review.SmallModeMaxChars,
		MaxReadinessIterations:   cfg.Review.MaxReadinessIterations,
		CommentFormat:            cfg.Review.CommentFormat,
		AdditionalInstructions:   cfg.Review.AdditionalInstructions,
	}
	for _, l := range cfg.Review.EvaluationLabels {
		s.EvaluationLabels = append(s.EvaluationLabels, review.EvaluationLabel{Label: l.Label, Description: l.Description})
	}
	return s
}

func (a *app) engine() *review.Engine {
	return review.NewEngine(a.rt, a.store, a.extractor, reviewSettings(a.cfg),
		review.WithLogger(a.logger),
		review.WithTracer(a.obs.Tracer),
		review.WithRetryRecorder(a.metrics),
		review.WithNotifier(a.metrics),
		review.WithNotifier(events.NewNotifier(a.bus)),
	)
}

func (a *app) chatService() *chat.Service {
	return chat.NewService(a.rt, a.store,
		chat.WithLogger(a.logger),
		chat.WithRetryRecorder(a.metrics),
	)
}

// report loads everything output writers need for a run.
func (a *app) report(ctx context.Context, runID string, outcome *review.RunOutcome) (*output.Report, error) {
	run, err := a.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	results, err := a.store.GetChecklistResultsWithIndividualResults(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &output.Report{Run: run, Outcome: outcome, Results: results}, nil
}

func (a *app) close() {
	if a.stop != nil {
		a.stop()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing store", "error", err)
		}
	}
	if c, ok := a.provider.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.logger.Warn("closing provider", "error", err)
		}
	}
	if a.obs.Shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.obs.Shutdown(ctx); err != nil {
			a.logger.Warn("flushing telemetry", "error", err)
		}
	}
}

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagProvider != "" {
		m["provider"] = flagProvider
	}
	if flagModel != "" {
		m["model"] = flagModel
	}
	if flagFormat != "" {
		m["format"] = flagFormat
	}
	if flagMode != "" {
		m["review.mode"] = flagMode
	}
	if flagMaxCategories > 0 {
		m["review.maxCategories"] = strconv.Itoa(flagMaxCategories)
	}
	if flagMaxPerCategory > 0 {
		m["review.maxChecklistsPerCategory"] = strconv.Itoa(flagMaxPerCategory)
	}
	return m
}
