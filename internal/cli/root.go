package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/docreview/internal/agent"
	"github.com/dshills/docreview/internal/apperr"
)

const version = "0.1.0"

// Exit codes
const (
	ExitSuccess      = 0
	ExitReviewFailed = 1
	ExitUsageError   = 2
	ExitAuthError    = 3
	ExitRuntimeError = 4
)

var rootCmd = &cobra.Command{
	Use:   "docreview",
	Short: "LLM document review CLI",
	Long: "docreview checks documents against checklists using LLM providers, " +
		"stores the results of each run, and answers questions about the reviewed documents.",
	SilenceUsage: true,
}

// Global flags
var (
	flagConfig  string
	flagDB      string
	flagVerbose bool
)

// Run executes the root command and returns an exit code.
func Run() int {
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(checklistCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		return ExitUsageError
	}

	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

// fail reports err on stderr and records the matching exit code. Handlers
// return its result so cobra does not print usage for runtime failures.
func fail(err error) error {
	fmt.Fprintf(os.Stderr, "Error: %s\n", apperr.UserMessage(err))
	exitCode = exitFor(err)
	return nil
}

func exitFor(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case agent.IsAuthError(err):
		return ExitAuthError
	case errors.Is(err, os.ErrNotExist):
		return ExitUsageError
	}
	switch apperr.Code(err) {
	case apperr.CodeRunNotFound, apperr.CodeInvalidInput, apperr.CodeUnsupportedFile,
		apperr.CodeChecklistNotFound, apperr.CodeDocumentNotFound:
		return ExitUsageError
	}
	return ExitRuntimeError
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print docreview version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "docreview version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default: $XDG_CONFIG_HOME/docreview/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "Run database path")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log debug output to stderr")
}
