// Package postprocess merges chunk outputs and cleans the merged text.
//
// Every transform is order preserving and idempotent: running the pipeline
// over its own output changes nothing, so resumed or re-merged jobs stay
// byte-identical.
package postprocess

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"pdfscribe/internal/config"
)

// ChunkSeparator joins chunk outputs in the merged markdown.
const ChunkSeparator = "\n\n---\n\n"

// MergeMarkdown joins the chunk outputs and applies the configured cleanup
// passes: newline normalization, NFKC, control-character sanitization,
// trailing-whitespace trimming, repeated-line removal, and regex removal.
func MergeMarkdown(cfg *config.Config, parts []string) (string, error) {
	merged := strings.Join(parts, ChunkSeparator)

	if cfg.Postprocess.NormalizeNewlines {
		merged = strings.ReplaceAll(merged, "\r\n", "\n")
	}

	if cfg.Postprocess.NormalizeUnicode {
		merged = norm.NFKC.String(merged)
	}

	if cfg.Postprocess.RemoveControlChars {
		merged = stripControlChars(merged)
	}

	if cfg.Postprocess.TrimTrailingWhitespace {
		merged = trimTrailingWhitespace(merged)
	}

	if cfg.Postprocess.RemoveRepeatedLines {
		merged = removeRepeatedLines(cfg, merged)
	}

	if cfg.Postprocess.RemoveByRegex {
		var err error
		merged, err = removeByRegex(cfg, merged)
		if err != nil {
			return "", err
		}
	}

	return merged, nil
}

// stripControlChars drops non-printable control code points. Structural
// whitespace (newline, carriage return, tab) is always preserved no matter
// what is configured; dropping it would corrupt line-based passes later in
// the pipeline.
func stripControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t':
			return r
		}
		if r < 0x20 || r == 0x7f || (r >= 0x80 && r <= 0x9f) {
			return -1
		}
		return r
	}, s)
}

func trimTrailingWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.Join(lines, "\n")
}

// removeRepeatedLines drops short lines that recur across the document at
// or above the configured occurrence count, targeting running headers,
// footers, and page numbers. Blank lines are never counted and never
// removed, so document structure survives.
func removeRepeatedLines(cfg *config.Config, s string) string {
	lines := strings.Split(s, "\n")

	counts := make(map[string]int)
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		if trimmed == "" {
			continue
		}
		if len(trimmed) > cfg.Postprocess.RepeatedLineMaxLength {
			continue
		}
		counts[trimmed]++
	}

	minOcc := cfg.Postprocess.RepeatedLineMinOccurrences
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		if trimmed == "" || counts[trimmed] < minOcc {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// removeByRegex drops lines whose trimmed form matches any configured
// pattern. Patterns are evaluated per line.
func removeByRegex(cfg *config.Config, s string) (string, error) {
	regs := make([]*regexp.Regexp, 0, len(cfg.Postprocess.RegexPatterns))
	for _, p := range cfg.Postprocess.RegexPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return "", fmt.Errorf("compiling postprocess pattern %q: %w", p, err)
		}
		regs = append(regs, re)
	}

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		matched := false
		for _, re := range regs {
			if re.MatchString(trimmed) {
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n"), nil
}

// MarkdownToText flattens markdown emphasis and heading markers to plain
// text via literal substring removal. It is intentionally lossy and is not
// a markdown parser.
func MarkdownToText(md string) string {
	s := strings.ReplaceAll(md, "**", "")
	s = strings.ReplaceAll(s, "### ", "")
	s = strings.ReplaceAll(s, "## ", "")
	s = strings.ReplaceAll(s, "# ", "")
	return s
}
