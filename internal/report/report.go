// Package report assembles the durable audit record of one job.
package report

import (
	"encoding/json"

	"pdfscribe/internal/policy"
	"pdfscribe/internal/probe"
)

// ChunkReport records the outcome of one processed chunk. Chunk indexes
// equal processing order; entries are appended in that order and never
// mutated afterward.
type ChunkReport struct {
	ChunkIndex int             `json:"chunk_index"`
	StartPage  int             `json:"start_page"`
	EndPage    int             `json:"end_page"`
	OK         bool            `json:"ok"`
	Warnings   []string        `json:"warnings"`
	Meta       json.RawMessage `json:"meta"`
}

// JobReport aggregates the probe, the policy decision, and every chunk
// outcome for one job.
type JobReport struct {
	Input        probe.Input       `json:"input"`
	Sample       probe.SampleStats `json:"sample"`
	Decision     policy.Decision   `json:"decision"`
	ChunkReports []ChunkReport     `json:"chunk_reports"`
}
