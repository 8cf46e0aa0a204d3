// Package probe inspects an input document once per job and produces the
// immutable statistics the classification policy decides on.
package probe

import (
	"context"
	"fmt"
	"os"

	"pdfscribe/internal/config"
	"pdfscribe/internal/engine"
)

// Input describes the probed file.
type Input struct {
	Path      string `json:"path"`
	FileBytes int64  `json:"file_bytes"`
	PageCount int    `json:"page_count"`
}

// SampleStats holds text-quality statistics over the sampled pages.
// Ratios are in [0, 1].
type SampleStats struct {
	SampledPages    int     `json:"sampled_pages"`
	AvgCharsPerPage int     `json:"avg_chars_per_page"`
	GarbageRatio    float64 `json:"garbage_ratio"`
	WhitespaceRatio float64 `json:"whitespace_ratio"`
}

// Result is produced once per job and never mutated afterward.
type Result struct {
	Input  Input       `json:"input"`
	Sample SampleStats `json:"sample"`
}

// Probe validates input limits and runs the engine's inspect capability.
//
// The file-size ceiling is checked before any subprocess is spent; page
// ceilings are checked after. Violations fail the job with no retry.
func Probe(ctx context.Context, cfg *config.Config, eng engine.Engine, inputPath string) (*Result, error) {
	info, err := os.Stat(inputPath)
	if err != nil {
		return nil, fmt.Errorf("stat input %s: %w", inputPath, err)
	}
	fileBytes := info.Size()
	if fileBytes > cfg.Limits.MaxInputFileBytes {
		return nil, fmt.Errorf("input %s exceeds max_input_file_bytes (%d > %d)",
			inputPath, fileBytes, cfg.Limits.MaxInputFileBytes)
	}

	out, err := eng.Probe(ctx, inputPath, cfg.Classification.SamplePages)
	if err != nil {
		return nil, fmt.Errorf("engine probe failed: %w", err)
	}

	if out.PageCount > cfg.Limits.MaxInputPages {
		return nil, fmt.Errorf("input %s exceeds max_input_pages (%d > %d)",
			inputPath, out.PageCount, cfg.Limits.MaxInputPages)
	}
	if out.PageCount < 1 {
		return nil, fmt.Errorf("input %s has zero pages", inputPath)
	}

	return &Result{
		Input: Input{
			Path:      inputPath,
			FileBytes: fileBytes,
			PageCount: out.PageCount,
		},
		Sample: SampleStats{
			SampledPages:    out.SampledPages,
			AvgCharsPerPage: out.AvgCharsPerPage,
			GarbageRatio:    out.GarbageRatio,
			WhitespaceRatio: out.WhitespaceRatio,
		},
	}, nil
}
