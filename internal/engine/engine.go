// Package engine defines the external conversion-engine contract and its
// subprocess implementation.
//
// An engine exposes four capabilities: doctor (environment self-check),
// probe (page count and sampled text-quality statistics), split (physical
// page-range extraction), and convert (page range to markdown). Each call
// exchanges exactly one JSON document on the child's stdin and one on its
// stdout; stderr is captured for diagnostics only and never parsed as part
// of the structured result.
package engine

import (
	"context"
	"encoding/json"

	"pdfscribe/internal/chunkplan"
)

// Engine is the conversion capability consumed by the pipeline.
type Engine interface {
	// Doctor runs the engine's environment self-check.
	Doctor(ctx context.Context) (*Diag, error)

	// Probe inspects the document and samples text-quality statistics
	// over at most samplePages pages.
	Probe(ctx context.Context, inputPath string, samplePages int) (*ProbeOut, error)

	// Split materializes one sub-file per page range under outDir.
	Split(ctx context.Context, inputPath, outDir string, ranges []chunkplan.PageRange) ([]SplitChunk, error)

	// ConvertLayout converts a chunk with the full layout-analysis engine.
	ConvertLayout(ctx context.Context, req *ConvertRequest) (*ConvertResult, error)

	// ConvertNativeText converts a chunk with the lightweight native-text
	// extractor. It has no OCR capability.
	ConvertNativeText(ctx context.Context, req *ConvertRequest) (*ConvertResult, error)
}

// Diag is the doctor capability's response.
type Diag struct {
	PythonExe     string `json:"python_exe"`
	PythonVersion string `json:"python_version"`
	EngineVersion string `json:"engine_version,omitempty"`
	OK            bool   `json:"ok"`
	Error         string `json:"error,omitempty"`
}

// ProbeOut is the probe capability's response.
type ProbeOut struct {
	PageCount       int     `json:"page_count"`
	SampledPages    int     `json:"sampled_pages"`
	AvgCharsPerPage int     `json:"avg_chars_per_page"`
	GarbageRatio    float64 `json:"garbage_ratio"`
	WhitespaceRatio float64 `json:"whitespace_ratio"`
	Error           string  `json:"error,omitempty"`
}

// ConvertRequest asks the engine to convert one chunk.
type ConvertRequest struct {
	InputPath  string `json:"input_pdf"`
	OutDir     string `json:"out_dir"`
	ChunkIndex int    `json:"chunk_index"`
	StartPage  int    `json:"start_page"`
	EndPage    int    `json:"end_page"`
	DoOCR      bool   `json:"do_ocr"`
	PDFBackend string `json:"pdf_backend"`

	// UsePageRange tells the engine to honor StartPage/EndPage against the
	// original file instead of converting the whole input.
	UsePageRange bool `json:"use_page_range"`
}

// ConvertResult is the convert capability's response. OK false is an
// application-level failure distinct from an IPC failure; the markdown is
// not usable in that case.
type ConvertResult struct {
	OK       bool            `json:"ok"`
	Markdown string          `json:"markdown"`
	Warnings []string        `json:"warnings"`
	Meta     json.RawMessage `json:"meta"`
}

// SplitChunk describes one materialized sub-file.
type SplitChunk struct {
	ChunkIndex int    `json:"chunk_index"`
	StartPage  int    `json:"start_page"`
	EndPage    int    `json:"end_page"`
	Path       string `json:"path"`
}

// splitOut is the split capability's wire response.
type splitOut struct {
	OK      bool         `json:"ok"`
	Outputs []SplitChunk `json:"outputs"`
	Error   string       `json:"error,omitempty"`
}
