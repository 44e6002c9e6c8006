package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/dshills/docreview/internal/apperr"
	"github.com/dshills/docreview/internal/events"
	"github.com/dshills/docreview/internal/extract"
	"github.com/dshills/docreview/internal/output"
	"github.com/dshills/docreview/internal/review"
	"github.com/dshills/docreview/internal/store"
	"github.com/dshills/docreview/internal/watch"
)

// Shared review flags
var (
	flagProvider       string
	flagModel          string
	flagFormat         string
	flagOut            string
	flagMode           string
	flagMaxCategories  int
	flagMaxPerCategory int
	flagNoRedact       bool
	flagNoColor        bool
	flagRunID          string
	flagRunName        string
	flagChecklist      string
	flagImage          []string
	flagDebounce       time.Duration
)

func addReviewFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagProvider, "provider", "", "LLM provider (anthropic, openai, gemini, ollama)")
	cmd.Flags().StringVar(&flagModel, "model", "", "Model name")
	cmd.Flags().StringVar(&flagFormat, "format", "", "Output format (text, json, markdown, html)")
	cmd.Flags().StringVar(&flagOut, "out", "", "Output file path (default: stdout)")
	cmd.Flags().StringVar(&flagMode, "mode", "", "Review mode (auto, small, large)")
	cmd.Flags().IntVar(&flagMaxCategories, "max-categories", 0, "Maximum checklist categories")
	cmd.Flags().IntVar(&flagMaxPerCategory, "max-per-category", 0, "Maximum checklist items per category")
	cmd.Flags().BoolVar(&flagNoRedact, "no-redact", false, "Disable secret redaction (use with caution)")
	cmd.Flags().BoolVar(&flagNoColor, "no-color", false, "Disable colored text output")
	cmd.Flags().StringVar(&flagRunID, "run", "", "Existing run ID (default: create a new run)")
	cmd.Flags().StringVar(&flagRunName, "name", "", "Name of the new run (default: first document name)")
	cmd.Flags().StringVar(&flagChecklist, "checklist", "", "Checklist YAML file to add to the run")
	cmd.Flags().StringSliceVar(&flagImage, "image", nil, "Glob of documents to review as page images (repeatable)")
}

func splitComma(s string) []string {
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// inputFiles expands paths into extraction inputs. Files matching any of
// imageGlobs, by base name or full path, are read in image mode.
func inputFiles(paths, imageGlobs []string) ([]extract.File, error) {
	if len(paths) == 0 {
		return nil, apperr.New(apperr.CodeInvalidInput, "no documents given", true)
	}
	names, err := watch.Files(paths)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, apperr.New(apperr.CodeInvalidInput, "no supported documents found", true)
	}
	files := make([]extract.File, 0, len(names))
	for _, n := range names {
		mode := extract.ModeText
		if matchAny(imageGlobs, n) {
			mode = extract.ModeImage
		}
		files = append(files, extract.File{Path: n, Mode: mode})
	}
	return files, nil
}

func matchAny(globs []string, path string) bool {
	for _, g := range globs {
		if ok, _ := filepath.Match(g, filepath.Base(path)); ok {
			return true
		}
		if ok, _ := filepath.Match(g, path); ok {
			return true
		}
	}
	return false
}

// runStore is the part of the store prepareRun needs.
type runStore interface {
	CreateRun(ctx context.Context, name string) (review.Run, error)
	GetRun(ctx context.Context, id string) (review.Run, error)
	AddChecklists(ctx context.Context, runID string, contents []string) ([]review.ChecklistItem, error)
}

var _ runStore = (*store.Store)(nil)

// prepareRun resolves or creates the run to review and imports the
// checklist file when one is given.
func prepareRun(ctx context.Context, s runStore, runID, name, checklistPath string, files []extract.File) (string, error) {
	if runID == "" {
		if checklistPath == "" {
			return "", apperr.New(apperr.CodeInvalidInput, "a new run needs --checklist", true)
		}
		if name == "" {
			name = filepath.Base(files[0].Path)
		}
		run, err := s.CreateRun(ctx, name)
		if err != nil {
			return "", err
		}
		runID = run.ID
	} else if _, err := s.GetRun(ctx, runID); err != nil {
		return "", err
	}

	if checklistPath != "" {
		contents, err := review.LoadChecklistFile(checklistPath)
		if err != nil {
			return "", err
		}
		if _, err := s.AddChecklists(ctx, runID, contents); err != nil {
			return "", err
		}
	}
	return runID, nil
}

func useColor() bool {
	return !flagNoColor && !color.NoColor
}

// executeRun reviews files under runID and writes the report.
func executeRun(ctx context.Context, a *app, runID string, files []extract.File) (review.RunOutcome, error) {
	outcome := a.engine().Run(ctx, review.RunRequest{RunID: runID, Files: files})
	rep, err := a.report(ctx, runID, &outcome)
	if err != nil {
		return outcome, err
	}
	if err := output.WriteReport(rep, a.cfg.Format, flagOut, useColor()); err != nil {
		return outcome, fmt.Errorf("writing output: %w", err)
	}
	return outcome, nil
}

func outcomeExit(out review.RunOutcome) int {
	if out.Status != review.StatusSuccess {
		return ExitReviewFailed
	}
	for _, t := range out.Tasks {
		if t.Status == review.StatusFailed {
			return ExitReviewFailed
		}
	}
	return ExitSuccess
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review documents against a checklist",
	Long:  "Review documents against the checklist of a run. Use subcommands to run, inspect or watch reviews.",
}

var reviewRunCmd = &cobra.Command{
	Use:   "run <document|dir>...",
	Short: "Review documents once",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		files, err := inputFiles(args, flagImage)
		if err != nil {
			return fail(err)
		}
		a, err := openApp(ctx, true)
		if err != nil {
			return fail(err)
		}
		defer a.close()

		runID, err := prepareRun(ctx, a.store, flagRunID, flagRunName, flagChecklist, files)
		if err != nil {
			return fail(err)
		}
		outcome, err := executeRun(ctx, a, runID, files)
		if err != nil {
			return fail(err)
		}
		exitCode = outcomeExit(outcome)
		return nil
	},
}

var reviewWatchCmd = &cobra.Command{
	Use:   "watch <document|dir>...",
	Short: "Review documents and re-review whenever they change",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		files, err := inputFiles(args, flagImage)
		if err != nil {
			return fail(err)
		}
		a, err := openApp(ctx, true)
		if err != nil {
			return fail(err)
		}
		defer a.close()

		runID, err := prepareRun(ctx, a.store, flagRunID, flagRunName, flagChecklist, files)
		if err != nil {
			return fail(err)
		}

		finished, unsubscribe := a.bus.Subscribe(4)
		defer unsubscribe()
		go func() {
			for e := range finished {
				rf, err := events.Decode[events.ReviewFinished](e)
				if err != nil {
					continue
				}
				fmt.Fprintf(os.Stderr, "Run %s %s in %s; watching for changes (Ctrl-C to stop)\n",
					rf.RunID, rf.Status, time.Duration(rf.DurationMs)*time.Millisecond)
			}
		}()

		if _, err := executeRun(ctx, a, runID, files); err != nil {
			return fail(err)
		}

		w := watch.New(args, func(ctx context.Context, names []string) error {
			files, err := inputFiles(names, flagImage)
			if err != nil {
				return err
			}
			_, err = executeRun(ctx, a, runID, files)
			return err
		}, watch.WithDebounce(flagDebounce), watch.WithLogger(a.logger))
		if err := w.Run(ctx); err != nil {
			return fail(err)
		}
		return nil
	},
}

var reviewShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the stored results of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, false)
		if err != nil {
			return fail(err)
		}
		defer a.close()

		rep, err := a.report(ctx, args[0], nil)
		if err != nil {
			return fail(err)
		}
		if err := output.WriteReport(rep, a.cfg.Format, flagOut, useColor()); err != nil {
			return fail(fmt.Errorf("writing output: %w", err))
		}
		return nil
	},
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List review runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, false)
		if err != nil {
			return fail(err)
		}
		defer a.close()

		runs, err := a.store.ListRuns(ctx)
		if err != nil {
			return fail(err)
		}
		fmt.Fprintln(os.Stdout, runsTable(runs, time.Now()))
		return nil
	},
}

func runsTable(runs []review.Run, now time.Time) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"ID", "Name", "Status", "Documents", "Created"})
	for _, r := range runs {
		status := string(r.Status)
		if status == "" {
			status = "new"
		}
		tbl.AppendRow(table.Row{r.ID, r.Name, status, r.DocumentNames, humanize.RelTime(r.CreatedAt, now, "ago", "from now")})
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d runs", len(runs))})
	return tbl.Render()
}

func init() {
	reviewCmd.AddCommand(reviewRunCmd)
	reviewCmd.AddCommand(reviewWatchCmd)
	reviewCmd.AddCommand(reviewShowCmd)
	reviewCmd.AddCommand(reviewListCmd)

	addReviewFlags(reviewRunCmd)
	addReviewFlags(reviewWatchCmd)
	reviewWatchCmd.Flags().DurationVar(&flagDebounce, "debounce", watch.DefaultDebounce, "Quiet period before re-reviewing")

	reviewShowCmd.Flags().StringVar(&flagFormat, "format", "", "Output format (text, json, markdown, html)")
	reviewShowCmd.Flags().StringVar(&flagOut, "out", "", "Output file path (default: stdout)")
	reviewShowCmd.Flags().BoolVar(&flagNoColor, "no-color", false, "Disable colored text output")
}
