package hls_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericcug/streamcanary/internal/manifest/hls"
)

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:4
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:100
#EXT-X-DISCONTINUITY-SEQUENCE:2
#EXT-X-PROGRAM-DATE-TIME:2026-07-30T10:00:00.000Z
#EXTINF:6.000,
seg100.ts
#EXTINF:6.000,
seg101.ts
#EXT-X-DISCONTINUITY
#EXTINF:6.000,
seg102.ts
`

func TestParseMediaPlaylist(t *testing.T) {
	view, err := hls.Parser{}.Parse([]byte(mediaPlaylist), "https://example.com/live/index.m3u8")
	require.NoError(t, err)
	require.False(t, view.IsPrimary)
	require.Len(t, view.Segments, 3)

	assert.Equal(t, 4, view.Header.Version)
	assert.Equal(t, 6.0, view.Header.TargetDurationSec)

	first := view.Segments[0]
	assert.Equal(t, int64(100), first.Seq.MediaSequence)
	assert.Equal(t, "https://example.com/live/seg100.ts", first.URL)
	assert.True(t, first.PDTExplicit)
	assert.False(t, first.DiscontinuityFlag)
	assert.Equal(t, int64(2), first.DiscontinuitySeq)

	second := view.Segments[1]
	assert.Equal(t, int64(101), second.Seq.MediaSequence)
	assert.False(t, second.PDTExplicit)
	assert.Equal(t, first.PDT.Add(6_000_000_000), second.PDT)

	third := view.Segments[2]
	assert.True(t, third.DiscontinuityFlag)
	assert.Equal(t, int64(3), third.DiscontinuitySeq)
}

const multivariantPlaylist = `#EXTM3U
#EXT-X-VERSION:6
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aac",NAME="English",URI="audio/en.m3u8"
#EXT-X-STREAM-INF:BANDWIDTH=5000000,AUDIO="aac"
video/high.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=1500000,AUDIO="aac"
video/low.m3u8
`

func TestParseMultivariantPlaylistIsPrimary(t *testing.T) {
	view, err := hls.Parser{}.Parse([]byte(multivariantPlaylist), "https://example.com/live/master.m3u8")
	require.NoError(t, err)
	assert.True(t, view.IsPrimary)
	assert.Empty(t, view.Segments)
}

func TestCueOutCueInAdSignal(t *testing.T) {
	playlist := `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:1
#EXTINF:6.000,
seg1.ts
#EXT-X-CUE-OUT:30
#EXTINF:6.000,
ad1.ts
#EXT-X-CUE-IN
#EXTINF:6.000,
seg2.ts
`
	view, err := hls.Parser{}.Parse([]byte(playlist), "https://example.com/live/index.m3u8")
	require.NoError(t, err)
	require.Len(t, view.Segments, 3)

	assert.Nil(t, view.Segments[0].Ad)
	require.NotNil(t, view.Segments[1].Ad)
	assert.True(t, view.Segments[1].Ad.CueOut)
	assert.Equal(t, 30.0, view.Segments[1].Ad.CueOutDurationSec)
	require.NotNil(t, view.Segments[2].Ad)
	assert.True(t, view.Segments[2].Ad.CueIn)
}

func TestDateRangeSCTESignal(t *testing.T) {
	playlist := `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:1
#EXT-X-DATERANGE:ID="break1",SCTE35-OUT=0xFC002,DURATION=30.0
#EXTINF:6.000,
ad1.ts
`
	view, err := hls.Parser{}.Parse([]byte(playlist), "https://example.com/live/index.m3u8")
	require.NoError(t, err)
	require.Len(t, view.Segments, 1)
	require.NotNil(t, view.Segments[0].Ad)
	assert.Equal(t, "break1", view.Segments[0].Ad.DateRangeID)
	assert.True(t, view.Segments[0].Ad.DateRangeSCTEOut)
	assert.Equal(t, 30.0, view.Segments[0].Ad.DateRangeDurationSec)
}
