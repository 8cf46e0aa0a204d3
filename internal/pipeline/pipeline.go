// Package pipeline sequences one conversion job from probe to report.
//
// The controller is strictly sequential: probe, classify, plan, materialize
// chunks, convert each chunk in plan order, merge, postprocess, report.
// Chunks never run concurrently even when configuration suggests otherwise;
// the only real concurrency lives inside the engine gateway's pipe drains.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pdfscribe/internal/chunkplan"
	"pdfscribe/internal/config"
	"pdfscribe/internal/engine"
	"pdfscribe/internal/policy"
	"pdfscribe/internal/postprocess"
	"pdfscribe/internal/probe"
	"pdfscribe/internal/report"
)

// Pipeline owns all mutable state for the lifetime of one job invocation.
type Pipeline struct {
	cfg *config.Config
	eng engine.Engine
	log zerolog.Logger
}

// Output is the result of a completed job before artifacts are written.
type Output struct {
	Markdown string
	Text     string
	Report   *report.JobReport
}

// chunkInput is one materialized unit of conversion work.
type chunkInput struct {
	inputPath    string
	startPage    int
	endPage      int
	usePageRange bool
	tempFile     bool
}

// New builds a pipeline over the given engine.
func New(cfg *config.Config, eng engine.Engine, log zerolog.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, eng: eng, log: log}
}

// RunJob executes the full state machine for one input document. jobDir
// must already exist; chunk artifacts land under jobDir/chunks.
func (p *Pipeline) RunJob(ctx context.Context, inputPath, jobDir string) (*Output, error) {
	started := time.Now()

	probeRes, err := probe.Probe(ctx, p.cfg, p.eng, inputPath)
	if err != nil {
		return nil, err
	}
	decision := policy.Decide(p.cfg, probeRes)
	plan := chunkplan.FromPageCount(p.cfg, probeRes.Input.PageCount)

	p.log.Info().
		Int("page_count", probeRes.Input.PageCount).
		Int64("file_bytes", probeRes.Input.FileBytes).
		Int("avg_chars_per_page", probeRes.Sample.AvgCharsPerPage).
		Float64("garbage_ratio", probeRes.Sample.GarbageRatio).
		Float64("whitespace_ratio", probeRes.Sample.WhitespaceRatio).
		Msg("probe complete")
	p.log.Info().
		Str("tier", string(decision.Tier)).
		Str("engine", decision.ChosenEngine).
		Bool("do_ocr", decision.DoOCR).
		Msg("policy decision")

	if decision.ChosenEngine == config.EngineNativeText && p.cfg.NativeText.Backend != "python_pypdf" {
		return nil, fmt.Errorf("unsupported native_text.backend: %q", p.cfg.NativeText.Backend)
	}

	// Chunking is a cost and robustness tool for large documents only; a
	// small document always runs as one chunk regardless of the plan.
	requireChunking := probeRes.Input.PageCount > p.cfg.Limits.RequireChunkingOverPages ||
		probeRes.Input.FileBytes > p.cfg.Limits.RequireChunkingOverBytes
	if !requireChunking && len(plan.Chunks) > 1 {
		p.log.Debug().Int("planned_chunks", len(plan.Chunks)).Msg("collapsing plan to a single chunk")
		plan = chunkplan.Single(plan.PageCount, p.cfg.Chunking.Strategy)
	}

	if p.cfg.Global.MaxParallelChunks > 1 {
		p.log.Warn().
			Int("max_parallel_chunks", p.cfg.Global.MaxParallelChunks).
			Msg("max_parallel_chunks > 1 is configured, but chunks run sequentially in this build")
	}

	chunksDir := filepath.Join(jobDir, "chunks")
	if err := os.MkdirAll(chunksDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating chunks dir: %w", err)
	}

	chunkInputs, err := p.materializeChunks(ctx, inputPath, plan, chunksDir)
	if err != nil {
		return nil, err
	}

	var chunkReports []report.ChunkReport
	var markdownParts []string

	for i, ch := range chunkInputs {
		if p.cfg.Limits.JobTimeoutSeconds > 0 &&
			time.Since(started) > time.Duration(p.cfg.Limits.JobTimeoutSeconds)*time.Second {
			return nil, fmt.Errorf("job timeout exceeded: %ds", p.cfg.Limits.JobTimeoutSeconds)
		}

		p.log.Info().
			Int("chunk", i).
			Int("start_page", ch.startPage).
			Int("end_page", ch.endPage).
			Str("input", ch.inputPath).
			Msg("converting chunk")

		req := &engine.ConvertRequest{
			InputPath:    ch.inputPath,
			OutDir:       chunksDir,
			ChunkIndex:   i,
			StartPage:    ch.startPage,
			EndPage:      ch.endPage,
			DoOCR:        decision.DoOCR,
			PDFBackend:   p.cfg.Layout.PDFBackend,
			UsePageRange: ch.usePageRange,
		}

		out, usedFallback, err := p.convertChunk(ctx, decision.ChosenEngine, i, req)
		if err != nil {
			return nil, fmt.Errorf("convert failed for chunk %d: %w", i, err)
		}

		// Hard stop: a chunk that stays ok=false after fallback fails the
		// whole job; partial transcripts are never emitted as success.
		if !out.OK {
			return nil, fmt.Errorf("chunk %d failed; warnings=%v", i, out.Warnings)
		}

		if usedFallback {
			out.Warnings = append(out.Warnings, "native_text failed; fell back to layout engine")
		}

		if p.cfg.Output.WriteChunkJSON {
			path := filepath.Join(chunksDir, fmt.Sprintf("chunk_%05d.json", i))
			raw, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("encoding chunk %d result: %w", i, err)
			}
			if err := os.WriteFile(path, raw, 0o644); err != nil {
				return nil, fmt.Errorf("writing %s: %w", path, err)
			}
		}

		chunkReports = append(chunkReports, report.ChunkReport{
			ChunkIndex: i,
			StartPage:  ch.startPage,
			EndPage:    ch.endPage,
			OK:         out.OK,
			Warnings:   out.Warnings,
			Meta:       out.Meta,
		})
		markdownParts = append(markdownParts, out.Markdown)
	}

	mergedMD, err := postprocess.MergeMarkdown(p.cfg, markdownParts)
	if err != nil {
		return nil, fmt.Errorf("postprocessing merged markdown: %w", err)
	}
	mergedText := postprocess.MarkdownToText(mergedMD)

	if !p.cfg.Global.KeepIntermediates {
		p.cleanupIntermediates(chunkInputs)
	}

	return &Output{
		Markdown: mergedMD,
		Text:     mergedText,
		Report: &report.JobReport{
			Input:        probeRes.Input,
			Sample:       probeRes.Sample,
			Decision:     decision,
			ChunkReports: chunkReports,
		},
	}, nil
}

// convertChunk runs the policy-selected engine and, when that engine is the
// native-text extractor and the attempt fails or reports a missing backend,
// retries the same chunk once with the layout engine.
func (p *Pipeline) convertChunk(ctx context.Context, chosenEngine string, index int, req *engine.ConvertRequest) (*engine.ConvertResult, bool, error) {
	var out *engine.ConvertResult
	var err error

	switch chosenEngine {
	case config.EngineLayout:
		out, err = p.eng.ConvertLayout(ctx, req)
		return out, false, err
	case config.EngineNativeText:
		out, err = p.eng.ConvertNativeText(ctx, req)
	default:
		return nil, false, fmt.Errorf("unknown engine: %q", chosenEngine)
	}

	if !nativeTextNeedsFallback(out, err) {
		return out, false, err
	}

	p.log.Warn().
		Int("chunk", index).
		AnErr("native_error", err).
		Msg("native_text failed; falling back to layout engine")

	out, err = p.eng.ConvertLayout(ctx, req)
	return out, true, err
}

// nativeTextNeedsFallback fires at most once per chunk: on any failed
// native-text attempt, on an ok=false response, or on the recognizable
// missing-backend warning.
func nativeTextNeedsFallback(out *engine.ConvertResult, err error) bool {
	if err != nil {
		return true
	}
	if !out.OK {
		return true
	}
	for _, w := range out.Warnings {
		if strings.Contains(w, engine.NativeTextMissingBackend) {
			return true
		}
	}
	return false
}

// materializeChunks turns the plan into concrete work units. A failed
// physical split falls back to logical page-range requests over the same
// plan; a failure under any other configured strategy is fatal.
func (p *Pipeline) materializeChunks(ctx context.Context, inputPath string, plan chunkplan.Plan, chunksDir string) ([]chunkInput, error) {
	inputs, err := p.prepareChunks(ctx, inputPath, plan, chunksDir)
	if err == nil {
		return inputs, nil
	}
	if p.cfg.Chunking.Strategy != config.StrategyPhysicalSplit {
		return nil, err
	}

	p.log.Warn().Err(err).Msg("physical split failed; falling back to page_range")
	fallback := plan
	fallback.Strategy = config.StrategyPageRange
	return p.prepareChunks(ctx, inputPath, fallback, chunksDir)
}

func (p *Pipeline) prepareChunks(ctx context.Context, inputPath string, plan chunkplan.Plan, chunksDir string) ([]chunkInput, error) {
	// The plan's strategy, not the configured one, drives materialization
	// so the fallback path can re-run the same plan logically.
	if plan.Strategy == config.StrategyPhysicalSplit && len(plan.Chunks) > 1 {
		outputs, err := p.eng.Split(ctx, inputPath, chunksDir, plan.Chunks)
		if err != nil {
			return nil, fmt.Errorf("splitting input: %w", err)
		}

		inputs := make([]chunkInput, 0, len(outputs))
		for _, c := range outputs {
			if p.cfg.Chunking.CapChunkBytes && p.cfg.Chunking.MaxChunkBytes > 0 {
				if info, statErr := os.Stat(c.Path); statErr == nil && info.Size() > p.cfg.Chunking.MaxChunkBytes {
					p.log.Warn().
						Int("chunk", c.ChunkIndex).
						Int64("bytes", info.Size()).
						Int64("max_chunk_bytes", p.cfg.Chunking.MaxChunkBytes).
						Msg("split chunk exceeds max_chunk_bytes")
				}
			}
			inputs = append(inputs, chunkInput{
				inputPath: c.Path,
				startPage: c.StartPage,
				endPage:   c.EndPage,
				tempFile:  true,
			})
		}
		return inputs, nil
	}

	usePageRange := plan.Strategy == config.StrategyPageRange && len(plan.Chunks) > 1
	inputs := make([]chunkInput, 0, len(plan.Chunks))
	for _, r := range plan.Chunks {
		inputs = append(inputs, chunkInput{
			inputPath:    inputPath,
			startPage:    r.StartPage,
			endPage:      r.EndPage,
			usePageRange: usePageRange,
		})
	}
	return inputs, nil
}

func (p *Pipeline) cleanupIntermediates(chunks []chunkInput) {
	if p.cfg.Chunking.KeepSplitPDFs {
		return
	}
	for _, ch := range chunks {
		if ch.tempFile {
			if err := os.Remove(ch.inputPath); err != nil && !os.IsNotExist(err) {
				p.log.Warn().Err(err).Str("path", ch.inputPath).Msg("failed to remove split chunk")
			}
		}
	}
}
