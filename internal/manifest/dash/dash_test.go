package dash_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericcug/streamcanary/internal/manifest/dash"
)

const mpdFixture = `<?xml version="1.0"?>
<MPD type="dynamic" availabilityStartTime="2026-07-30T10:00:00Z">
  <Period id="p1">
    <AdaptationSet id="1" contentType="video" mimeType="video/mp4">
      <SegmentTemplate timescale="90000" startNumber="100" media="$RepresentationID$/seg-$Number%05d$.m4s" presentationTimeOffset="0">
        <SegmentTimeline>
          <S t="0" d="540000"/>
          <S d="540000" r="1"/>
        </SegmentTimeline>
      </SegmentTemplate>
      <Representation id="v1" bandwidth="5000000"/>
    </AdaptationSet>
    <EventStream schemeIdUri="urn:scte:scte35:2013:xml">
      <Event presentationTime="0">
        <SpliceInsert spliceEventId="1" outOfNetworkIndicator="true" availNum="1">
          <BreakDuration duration="2700000" timescale="90000"/>
        </SpliceInsert>
      </Event>
    </EventStream>
  </Period>
</MPD>`

func TestDashParseSegmentsAndPDT(t *testing.T) {
	p := dash.Parser{RepresentationID: "v1"}
	view, err := p.Parse([]byte(mpdFixture), "https://example.com/live/manifest.mpd")
	require.NoError(t, err)
	require.Len(t, view.Segments, 3)
	assert.Equal(t, []string{"p1"}, view.PeriodList)

	first := view.Segments[0]
	assert.Equal(t, int64(100), first.Seq.Number)
	assert.Equal(t, "p1", first.Seq.PeriodID)
	assert.Equal(t, 6.0, first.DurationSec)
	assert.Equal(t, "https://example.com/live/v1/seg-00100.m4s", first.URL)
	assert.True(t, first.PDTExplicit)
	assert.Equal(t, time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC), first.PDT)

	second := view.Segments[1]
	assert.Equal(t, int64(101), second.Seq.Number)
	assert.Equal(t, first.PDT.Add(6*time.Second), second.PDT)

	require.Len(t, view.EventStream, 1)
	ev := view.EventStream[0]
	assert.Equal(t, "p1", ev.PeriodID)
	assert.True(t, ev.OutOfNetwork)
	assert.Equal(t, 1, ev.AvailNum)
	assert.Equal(t, uint64(2700000), ev.SegmentationDuration)
	assert.Equal(t, uint64(90000), ev.SegmentationTimescale)
}

func TestSegmentTimelineExpand(t *testing.T) {
	tl := dash.SegmentTimeline{
		Segments: []dash.S{
			{D: 2, HasT: true, T: uintPtr(0)},
			{D: 2, R: 2},
		},
	}
	out := tl.Expand()
	require.Len(t, out, 4)
	assert.Equal(t, []dash.TimedSegment{
		{Time: 0, Duration: 2},
		{Time: 2, Duration: 2},
		{Time: 4, Duration: 2},
		{Time: 6, Duration: 2},
	}, out)
}

func uintPtr(v uint64) *uint64 { return &v }
