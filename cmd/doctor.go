package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"pdfscribe/internal/engine"
	"pdfscribe/internal/logger"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run the conversion engine's environment self-check",
	Long: `Invoke the engine's doctor capability and print its diagnostics. Use this
to verify the Python interpreter, engine scripts, and engine installation
before running a job.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	eng, err := engine.NewPythonEngine(cfg, logger.WithComponent(log, "engine"))
	if err != nil {
		return err
	}

	diag, err := eng.Doctor(cmd.Context())
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(diag, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding diagnostics: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
