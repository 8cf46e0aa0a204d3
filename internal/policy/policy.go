// Package policy classifies a probed document into a quality tier and maps
// the tier to a conversion engine and an OCR decision.
//
// Decide is a pure function over the probe statistics and the configured
// thresholds; the same inputs always yield the same decision.
package policy

import (
	"strings"

	"pdfscribe/internal/config"
	"pdfscribe/internal/probe"
)

// Tier is the document's estimated digitization quality class.
type Tier string

const (
	HighText  Tier = "HighText"
	MixedText Tier = "MixedText"
	Scan      Tier = "Scan"
)

// Decision maps a tier to its engine and OCR setting. Never mutated once
// derived.
type Decision struct {
	Tier         Tier   `json:"tier"`
	ChosenEngine string `json:"chosen_engine"`
	DoOCR        bool   `json:"do_ocr"`
}

// Decide evaluates the tier decision table in fixed priority order:
// HighText when the average character density clears the high threshold and
// both noise ratios stay under their caps, otherwise Scan when the density
// falls at or under the scan ceiling, otherwise MixedText.
//
// classification.forced_tier bypasses the statistics entirely.
func Decide(cfg *config.Config, res *probe.Result) Decision {
	if forced := strings.ToUpper(cfg.Classification.ForcedTier); forced != config.TierAuto {
		return fromTier(cfg, forcedTier(forced))
	}

	avg := res.Sample.AvgCharsPerPage
	garbage := res.Sample.GarbageRatio
	ws := res.Sample.WhitespaceRatio

	var tier Tier
	switch {
	case avg >= cfg.Classification.MinAvgCharsPerPageHighText &&
		garbage <= cfg.Classification.MaxGarbageRatioHighText &&
		ws <= cfg.Classification.MaxWhitespaceRatioHighText:
		tier = HighText
	case avg <= cfg.Classification.MaxAvgCharsPerPageScan:
		tier = Scan
	default:
		tier = MixedText
	}

	return fromTier(cfg, tier)
}

func forcedTier(forced string) Tier {
	switch forced {
	case config.TierHighText:
		return HighText
	case config.TierScan:
		return Scan
	default:
		return MixedText
	}
}

// fromTier applies the engine/OCR mapping: HighText never OCRs, Scan always
// does, MixedText follows the layout engine's configured default.
func fromTier(cfg *config.Config, tier Tier) Decision {
	switch tier {
	case HighText:
		return Decision{Tier: tier, ChosenEngine: cfg.Engines.HighText, DoOCR: false}
	case Scan:
		return Decision{Tier: tier, ChosenEngine: cfg.Engines.Scan, DoOCR: true}
	default:
		return Decision{Tier: MixedText, ChosenEngine: cfg.Engines.MixedText, DoOCR: cfg.Layout.DoOCR}
	}
}
