// Package chunkplan splits a page count into contiguous page ranges.
//
// Planning is pure: it never touches the filesystem or the engine, so the
// same page count and settings always produce the same plan.
package chunkplan

import (
	"pdfscribe/internal/config"
)

// PageRange is a contiguous, 1-based, inclusive page span.
type PageRange struct {
	StartPage int `json:"start_page" yaml:"start_page"`
	EndPage   int `json:"end_page" yaml:"end_page"`
}

// Pages returns the number of pages covered by the range.
func (r PageRange) Pages() int {
	return r.EndPage - r.StartPage + 1
}

// Plan is an ordered set of ranges covering [1, PageCount] exactly once.
type Plan struct {
	PageCount int         `json:"page_count"`
	Strategy  string      `json:"strategy"`
	Chunks    []PageRange `json:"chunks"`
}

// Single returns a plan with one chunk covering the whole document.
func Single(pageCount int, strategy string) Plan {
	if pageCount < 1 {
		pageCount = 1
	}
	return Plan{
		PageCount: pageCount,
		Strategy:  strategy,
		Chunks:    []PageRange{{StartPage: 1, EndPage: pageCount}},
	}
}

// FromPageCount walks a cursor left to right, proposing target-sized chunks
// clipped to the max span. When the pages left after a chunk would form a
// tail smaller than the minimum, the current chunk absorbs them instead of
// emitting an orphan tail.
func FromPageCount(cfg *config.Config, pageCount int) Plan {
	if cfg.Chunking.Strategy == config.StrategySingle {
		return Single(pageCount, config.StrategySingle)
	}

	target := max(cfg.Chunking.TargetPagesPerChunk, 1)
	maxPages := max(cfg.Chunking.MaxPagesPerChunk, 1)
	minPages := min(max(cfg.Chunking.MinPagesPerChunk, 1), maxPages)

	var chunks []PageRange
	p := 1
	for p <= pageCount {
		end := min(p+target-1, pageCount)
		if end-p+1 > maxPages {
			end = p + maxPages - 1
		}

		// The chunk being fixed counts as existing, so a short tail is
		// always absorbed rather than emitted on its own.
		remaining := pageCount - end
		if remaining > 0 && remaining < minPages {
			end = pageCount
		}

		chunks = append(chunks, PageRange{StartPage: p, EndPage: end})
		p = end + 1
	}

	return Plan{
		PageCount: pageCount,
		Strategy:  cfg.Chunking.Strategy,
		Chunks:    chunks,
	}
}
