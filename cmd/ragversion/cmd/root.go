// Package cmd provides the CLI commands for RAGVersion.
package cmd

import (
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/sourangshupal/ragversion/internal/config"
	"github.com/sourangshupal/ragversion/internal/logging"
	"github.com/sourangshupal/ragversion/pkg/version"
)

var (
	configPath     string
	debugMode      bool
	loggingCleanup func()
	logger         *slog.Logger
)

// NewRootCmd creates the root command for the ragversion CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ragversion",
		Short: "Document version tracking for RAG pipelines",
		Long: `RAGVersion watches a corpus of source documents, detects content
changes at document and chunk granularity, persists an auditable version
history, and emits change events so downstream vector stores re-embed
only what actually changed.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("ragversion version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (default: .ragversion.yaml if present)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.ragversion/logs/")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newTrackCmd())
	cmd.AddCommand(newBatchCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newDiffCmd())
	cmd.AddCommand(newRestoreCmd())
	cmd.AddCommand(newUntrackCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

func setupLogging(_ *cobra.Command, _ []string) error {
	// File-only by default; --debug raises the level and echoes to
	// stderr.
	opts := logging.Default()
	if debugMode {
		opts = logging.Debug()
	}
	l, cleanup, err := logging.New(opts)
	if err != nil {
		return err
	}
	logger = l
	loggingCleanup = cleanup
	return nil
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = ".ragversion.yaml"
	}
	return config.Load(path)
}

// useColor reports whether stdout is a terminal, so output can degrade
// to plain text under pipes and CI.
func useColor() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

var changeColors = map[string]string{
	"CREATED":  "32",
	"MODIFIED": "33",
	"DELETED":  "31",
	"RESTORED": "36",
}

// colorChange wraps a change type in its ANSI color when stdout is a
// terminal.
func colorChange(changeType string) string {
	code, ok := changeColors[changeType]
	if !ok || !useColor() {
		return changeType
	}
	return "\x1b[" + code + "m" + changeType + "\x1b[0m"
}
