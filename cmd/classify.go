package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"pdfscribe/internal/engine"
	"pdfscribe/internal/job"
	"pdfscribe/internal/logger"
	"pdfscribe/internal/policy"
	"pdfscribe/internal/probe"
)

var classifyInput string

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Probe a PDF and print its quality tier decision",
	Long: `Probe the input document, evaluate the classification policy against the
sampled text-quality statistics, and print both without converting anything.`,
	Args: cobra.NoArgs,
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().StringVar(&classifyInput, "input", "", "Path to the input PDF")
	_ = classifyCmd.MarkFlagRequired("input")
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	if err := job.ValidateInput(cfg, classifyInput); err != nil {
		return err
	}

	eng, err := engine.NewPythonEngine(cfg, logger.WithComponent(log, "engine"))
	if err != nil {
		return err
	}

	res, err := probe.Probe(cmd.Context(), cfg, eng, classifyInput)
	if err != nil {
		return err
	}
	decision := policy.Decide(cfg, res)

	out, err := json.MarshalIndent(map[string]any{
		"input":    classifyInput,
		"probe":    res,
		"decision": decision,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding classification: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
