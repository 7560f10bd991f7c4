// Package probe implements the Prober (C4): given a child manifest
// already parsed into a canon.ManifestView, it computes the "anchor" —
// the last confirmed segment a Monitor should start from — plus the
// structural pre-validation checks spec'd for first contact with a
// rendition.
package probe

import (
	"fmt"

	"github.com/ericcug/streamcanary/internal/canon"
)

// Result is everything a Monitor needs to seed its RenditionState.
type Result struct {
	Anchor          canon.SegmentRecord
	ContentDuration float64
	PeriodOrder     map[string]int // DASH only: period id -> document order
	Warnings        []string
}

// Probe computes the anchor from the last segment of a freshly parsed
// ManifestView and runs the structural checks that only need to happen
// once, at first contact.
func Probe(view *canon.ManifestView) (Result, error) {
	if len(view.Segments) == 0 {
		return Result{}, fmt.Errorf("probe: manifest has no segments")
	}

	res := Result{
		Anchor: view.Segments[len(view.Segments)-1],
	}
	for _, seg := range view.Segments {
		res.ContentDuration += seg.DurationSec
	}

	if len(view.PeriodList) > 0 {
		res.PeriodOrder = make(map[string]int, len(view.PeriodList))
		for i, id := range view.PeriodList {
			res.PeriodOrder[id] = i
		}
	}

	res.Warnings = structuralChecks(view)
	return res, nil
}

// structuralChecks implements the §4.6 once-per-rendition validations:
// it flags segments whose duration, rounded to the nearest second,
// exceeds the header's target duration. Only the HLS parser sets
// TargetDurationSec, so DASH and Smooth views get no warnings here. The
// DASH parser does not reject a representation without a SegmentTemplate;
// such a representation simply contributes no segments.
func structuralChecks(view *canon.ManifestView) []string {
	var warnings []string
	if view.Header.TargetDurationSec <= 0 {
		return warnings
	}
	for _, seg := range view.Segments {
		if roundf(seg.DurationSec) > view.Header.TargetDurationSec {
			warnings = append(warnings, fmt.Sprintf(
				"segment duration %.3f exceeds target duration %.3f", seg.DurationSec, view.Header.TargetDurationSec))
		}
	}
	return warnings
}

func roundf(f float64) float64 {
	return float64(int64(f + 0.5))
}
