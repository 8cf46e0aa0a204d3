package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"pdfscribe/internal/chunkplan"
	"pdfscribe/internal/engine"
	"pdfscribe/internal/job"
	"pdfscribe/internal/logger"
	"pdfscribe/internal/probe"
)

var planInput string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Probe a PDF and print its chunk plan",
	Args:  cobra.NoArgs,
	RunE:  runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().StringVar(&planInput, "input", "", "Path to the input PDF")
	_ = planCmd.MarkFlagRequired("input")
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	if err := job.ValidateInput(cfg, planInput); err != nil {
		return err
	}

	eng, err := engine.NewPythonEngine(cfg, logger.WithComponent(log, "engine"))
	if err != nil {
		return err
	}

	res, err := probe.Probe(cmd.Context(), cfg, eng, planInput)
	if err != nil {
		return err
	}
	plan := chunkplan.FromPageCount(cfg, res.Input.PageCount)

	out, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding plan: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
