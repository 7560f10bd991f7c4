package smooth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericcug/streamcanary/internal/canon"
	"github.com/ericcug/streamcanary/internal/manifest/smooth"
)

const smoothFixture = `<?xml version="1.0"?>
<SmoothStreamingMedia TimeScale="10000000" IsLive="TRUE">
  <StreamIndex Type="video" Name="video">
    <QualityLevel Index="0" Bitrate="5000000" FourCC="H264"/>
    <c t="0" d="20000000"/>
    <c d="20000000" r="2"/>
  </StreamIndex>
  <StreamIndex Type="audio" Name="audio">
    <QualityLevel Index="0" Bitrate="128000" FourCC="AACL"/>
    <c t="0" d="20000000"/>
  </StreamIndex>
  <StreamIndex Type="text" Name="captions">
    <QualityLevel Index="0" Bitrate="1000" FourCC="TTML"/>
    <c t="0" d="20000000"/>
  </StreamIndex>
</SmoothStreamingMedia>`

func TestSmoothParseVideoChunkChaining(t *testing.T) {
	p := smooth.Parser{Role: canon.RoleVideo}
	view, err := p.Parse([]byte(smoothFixture), "https://example.com/live/stream.ism")
	require.NoError(t, err)
	require.Len(t, view.Segments, 4)

	assert.Equal(t, uint64(0), view.Segments[0].Seq.StartTime)
	assert.Equal(t, uint64(20000000), view.Segments[1].Seq.StartTime)
	assert.Equal(t, uint64(40000000), view.Segments[2].Seq.StartTime)
	assert.Equal(t, uint64(60000000), view.Segments[3].Seq.StartTime)
	assert.Equal(t, 2.0, view.Segments[0].DurationSec)
	assert.Contains(t, view.Segments[0].URL, "QualityLevels(5000000)/Fragments(video=0)")
}

func TestSmoothAudioRequiresAACL(t *testing.T) {
	p := smooth.Parser{Role: canon.RoleAudio}
	view, err := p.Parse([]byte(smoothFixture), "https://example.com/live/stream.ism")
	require.NoError(t, err)
	require.Len(t, view.Segments, 1)
}

func TestSmoothAudioRejectsNonAACL(t *testing.T) {
	fixture := `<SmoothStreamingMedia TimeScale="10000000">
  <StreamIndex Type="audio" Name="audio">
    <QualityLevel Index="0" Bitrate="128000" FourCC="WMA"/>
    <c t="0" d="20000000"/>
  </StreamIndex>
</SmoothStreamingMedia>`
	p := smooth.Parser{Role: canon.RoleAudio}
	_, err := p.Parse([]byte(fixture), "https://example.com/live/stream.ism")
	require.Error(t, err)
}

func TestSmoothMissingStreamIndex(t *testing.T) {
	p := smooth.Parser{Role: canon.RoleSubtitle}
	fixture := `<SmoothStreamingMedia TimeScale="10000000">
  <StreamIndex Type="video" Name="video">
    <QualityLevel Index="0" Bitrate="5000000" FourCC="H264"/>
    <c t="0" d="20000000"/>
  </StreamIndex>
</SmoothStreamingMedia>`
	_, err := p.Parse([]byte(fixture), "https://example.com/live/stream.ism")
	require.Error(t, err)
}
