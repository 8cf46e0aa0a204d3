// Package cmd wires the pdfscribe CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pdfscribe/internal/config"
	"pdfscribe/internal/logger"
)

var version = "1.0.0"

var (
	flagConfig   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "pdfscribe",
	Short: "Deterministic PDF transcript orchestrator",
	Long: `pdfscribe converts PDF documents into normalized markdown and text by
classifying text quality, splitting large documents into page-range chunks,
dispatching each chunk to a conversion engine, and merging the results into
a single deterministic transcript plus a structured job report.

Jobs are content addressed: the same input bytes under the same effective
configuration always land in the same output directory.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and exits non-zero on any fatal error with the full
// causal chain printed to stderr.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to YAML config (default: ./pdfscribe.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Override log level (trace/debug/info/warn/error)")
}

// loadConfig resolves the config file and applies the log-level override.
// A missing default config file falls back to built-in defaults.
func loadConfig() (*config.Config, error) {
	path := flagConfig
	if path == "" {
		if _, err := os.Stat("pdfscribe.yaml"); err == nil {
			path = "pdfscribe.yaml"
		}
	}

	var cfg *config.Config
	if path == "" {
		cfg = config.Default()
	} else {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger used by commands that do not own a
// job directory (job runs tee into their own log file instead).
func newLogger(cfg *config.Config) (zerolog.Logger, error) {
	log, _, err := logger.New(cfg.Logging, "")
	return log, err
}
