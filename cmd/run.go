package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"pdfscribe/internal/job"
)

var (
	runInput  string
	runOutDir string
	runFresh  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Convert a PDF into a normalized transcript",
	Long: `Run the full pipeline: probe, classify, plan chunks, convert each chunk,
merge, postprocess, and write the transcript plus a structured job report
into a content-addressed job directory.

Re-running with the same input and configuration is a no-op success once
the job has completed; --fresh instead fails if the job directory exists.`,
	Example: `  # Convert a document with the default configuration
  pdfscribe run --input book.pdf

  # Write job output under a different root
  pdfscribe run --input book.pdf --out-dir /data/out

  # Refuse to reuse an existing job directory
  pdfscribe run --input book.pdf --fresh`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runInput, "input", "", "Path to the input PDF")
	runCmd.Flags().StringVar(&runOutDir, "out-dir", "", "Output root (default: paths.out_dir)")
	runCmd.Flags().BoolVar(&runFresh, "fresh", false, "Fail if the job directory already exists")
	_ = runCmd.MarkFlagRequired("input")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	summary, err := job.Run(cmd.Context(), cfg, runInput, runOutDir, runFresh)
	if err != nil {
		return err
	}

	if cfg.Global.PrintSummary {
		out, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding summary: %w", err)
		}
		fmt.Println(string(out))
	}
	return nil
}
