package probe_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericcug/streamcanary/internal/canon"
	"github.com/ericcug/streamcanary/internal/probe"
)

func TestProbeSeedsAnchorAndDuration(t *testing.T) {
	view := &canon.ManifestView{
		Header: canon.HeaderSnapshot{TargetDurationSec: 6},
		Segments: []canon.SegmentRecord{
			{Seq: canon.Sequence{MediaSequence: 1}, DurationSec: 6},
			{Seq: canon.Sequence{MediaSequence: 2}, DurationSec: 6},
			{Seq: canon.Sequence{MediaSequence: 3}, DurationSec: 6},
		},
		PeriodList: []string{"p1", "p2"},
	}

	res, err := probe.Probe(view)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Anchor.Seq.MediaSequence)
	assert.Equal(t, 18.0, res.ContentDuration)
	assert.Equal(t, map[string]int{"p1": 0, "p2": 1}, res.PeriodOrder)
	assert.Empty(t, res.Warnings)
}

func TestProbeRejectsEmptyManifest(t *testing.T) {
	_, err := probe.Probe(&canon.ManifestView{})
	require.Error(t, err)
}

func TestProbeWarnsOnOverlongSegment(t *testing.T) {
	view := &canon.ManifestView{
		Header: canon.HeaderSnapshot{TargetDurationSec: 6},
		Segments: []canon.SegmentRecord{
			{Seq: canon.Sequence{MediaSequence: 1}, DurationSec: 9},
		},
	}
	res, err := probe.Probe(view)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "exceeds target duration")
}
