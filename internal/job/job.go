// Package job ties one input document and one effective configuration to a
// content-addressed job directory and runs the pipeline inside it.
package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"pdfscribe/internal/config"
	"pdfscribe/internal/engine"
	"pdfscribe/internal/identity"
	"pdfscribe/internal/logger"
	"pdfscribe/internal/pipeline"
)

// ErrJobDirExists is returned when the job directory is already present
// and reuse is ruled out, either by fresh mode or by resume being
// disabled.
var ErrJobDirExists = errors.New("job directory already exists")

// Identity names one (config, input) pair.
type Identity struct {
	ConfigDigest string `json:"config_digest"`
	InputDigest  string `json:"input_digest"`
	JobID        string `json:"job_id"`
}

// Summary is printed on stdout after a run when global.print_summary is set.
type Summary struct {
	JobID  string `json:"job_id"`
	JobDir string `json:"job_dir"`
	Status string `json:"status"` // ok or cached
}

// index is the stable completion handle external callers poll for.
type index struct {
	JobID         string `json:"job_id"`
	RunID         string `json:"run_id"`
	Started       string `json:"started"`
	Finished      string `json:"finished"`
	FinalMarkdown string `json:"final_markdown"`
	FinalText     string `json:"final_text"`
	Report        string `json:"report"`
}

// ComputeIdentity digests the normalized configuration and the input bytes.
// Identical (config, input) pairs always yield the same job id.
func ComputeIdentity(cfg *config.Config, inputPath string) (Identity, error) {
	normalized, err := cfg.Normalized()
	if err != nil {
		return Identity{}, err
	}
	configDigest := identity.HashString(normalized)

	inputDigest, err := identity.HashFile(inputPath, cfg.Hashing.Mode, cfg.Hashing.FastWindowBytes)
	if err != nil {
		return Identity{}, fmt.Errorf("hashing input %s: %w", inputPath, err)
	}

	return Identity{
		ConfigDigest: configDigest,
		InputDigest:  inputDigest,
		JobID:        identity.JobID(configDigest, inputDigest),
	}, nil
}

// ValidateInput rejects URL-like and missing inputs before any hashing or
// subprocess work is spent.
func ValidateInput(cfg *config.Config, inputPath string) error {
	if cfg.Security.RejectURLInputs && looksLikeURL(inputPath) {
		return fmt.Errorf("URL inputs are disabled: %s", inputPath)
	}

	info, err := os.Stat(inputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input does not exist: %s", inputPath)
		}
		return fmt.Errorf("accessing input %s: %w", inputPath, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("input is not a regular file: %s", inputPath)
	}

	if ext := filepath.Ext(inputPath); ext != "" && !strings.EqualFold(ext, ".pdf") {
		return fmt.Errorf("input is not a PDF: %s", inputPath)
	}
	return nil
}

func looksLikeURL(s string) bool {
	s = strings.ToLower(s)
	return strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "file://")
}

// Run executes one job end to end: identity, directory layout, pipeline,
// artifacts, index. Re-running an already completed job is a no-op success
// unless fresh is set, in which case an existing directory is an error.
func Run(ctx context.Context, cfg *config.Config, inputPath, outDirOverride string, fresh bool) (*Summary, error) {
	if err := ValidateInput(cfg, inputPath); err != nil {
		return nil, err
	}

	id, err := ComputeIdentity(cfg, inputPath)
	if err != nil {
		return nil, err
	}

	outRoot := cfg.Paths.OutDir
	if outDirOverride != "" {
		outRoot = outDirOverride
	}
	jobDir := filepath.Join(outRoot, id.JobID)
	indexPath := filepath.Join(jobDir, "index.json")

	if _, err := os.Stat(jobDir); err == nil {
		if fresh {
			return nil, fmt.Errorf("%w: %s", ErrJobDirExists, jobDir)
		}
		if !cfg.Global.Resume {
			return nil, fmt.Errorf("%w and global.resume is disabled: %s", ErrJobDirExists, jobDir)
		}
		if _, err := os.Stat(indexPath); err == nil {
			// Completed job under the same identity; nothing to redo.
			return &Summary{JobID: id.JobID, JobDir: jobDir, Status: "cached"}, nil
		}
	}

	for _, dir := range []string{
		jobDir,
		filepath.Join(jobDir, "final"),
		filepath.Join(jobDir, "logs"),
		filepath.Join(jobDir, "chunks"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	log, closeLog, err := logger.New(cfg.Logging, resolveLogPath(cfg, jobDir))
	if err != nil {
		return nil, err
	}
	defer closeLog()

	runID := uuid.NewString()
	log = log.With().Str("job_id", id.JobID).Str("run_id", runID).Logger()
	log.Info().Str("input", inputPath).Str("job_dir", jobDir).Msg("starting job")

	if cfg.Debug.DumpEffectiveConfig {
		raw, err := yaml.Marshal(cfg)
		if err == nil {
			_ = os.WriteFile(filepath.Join(jobDir, "effective-config.yaml"), raw, 0o644)
		}
	}

	for _, dir := range []string{cfg.Paths.WorkDir, cfg.Paths.CacheDir, cfg.Paths.ArtifactsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	eng, err := engine.NewPythonEngine(cfg, logger.WithComponent(log, "engine"))
	if err != nil {
		return nil, err
	}

	started := time.Now().UTC()
	result, err := pipeline.New(cfg, eng, logger.WithComponent(log, "pipeline")).RunJob(ctx, inputPath, jobDir)
	if err != nil {
		// The partial job directory is left in place for diagnosis.
		return nil, err
	}

	if err := writeArtifacts(cfg, jobDir, result); err != nil {
		return nil, err
	}

	if cfg.Output.WriteIndexJSON {
		idx := index{
			JobID:         id.JobID,
			RunID:         runID,
			Started:       started.Format(time.RFC3339),
			Finished:      time.Now().UTC().Format(time.RFC3339),
			FinalMarkdown: "final/" + cfg.Output.MarkdownFilename,
			FinalText:     "final/" + cfg.Output.TextFilename,
			Report:        "final/" + cfg.Output.ReportFilename,
		}
		raw, err := json.MarshalIndent(idx, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding index: %w", err)
		}
		if err := os.WriteFile(indexPath, raw, 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", indexPath, err)
		}
	}

	log.Info().Int("chunks", len(result.Report.ChunkReports)).Msg("job complete")
	return &Summary{JobID: id.JobID, JobDir: jobDir, Status: "ok"}, nil
}

func writeArtifacts(cfg *config.Config, jobDir string, result *pipeline.Output) error {
	finalDir := filepath.Join(jobDir, "final")

	if cfg.Output.WriteMarkdown {
		p := filepath.Join(finalDir, cfg.Output.MarkdownFilename)
		if err := os.WriteFile(p, []byte(result.Markdown), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", p, err)
		}
	}
	if cfg.Output.WriteText {
		p := filepath.Join(finalDir, cfg.Output.TextFilename)
		if err := os.WriteFile(p, []byte(result.Text), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", p, err)
		}
	}
	if cfg.Output.WriteReportJSON {
		raw, err := json.MarshalIndent(result.Report, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		p := filepath.Join(finalDir, cfg.Output.ReportFilename)
		if err := os.WriteFile(p, raw, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", p, err)
		}
	}
	return nil
}

func resolveLogPath(cfg *config.Config, jobDir string) string {
	if !cfg.Logging.WriteToFile {
		return ""
	}
	if cfg.Logging.FilePath != "" {
		return cfg.Logging.FilePath
	}
	return filepath.Join(jobDir, "logs", "pdfscribe.log")
}
