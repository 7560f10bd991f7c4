package discover_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericcug/streamcanary/internal/canon"
	"github.com/ericcug/streamcanary/internal/discover"
)

const multivariantPlaylist = `#EXTM3U
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aac",NAME="English",URI="audio/en.m3u8"
#EXT-X-MEDIA:TYPE=SUBTITLES,GROUP-ID="subs",NAME="English",URI="subs/en.m3u8"
#EXT-X-STREAM-INF:BANDWIDTH=5000000,AUDIO="aac"
video/high.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=1500000,AUDIO="aac"
video/low.m3u8
`

func TestFromHLS(t *testing.T) {
	cands, err := discover.FromHLS([]byte(multivariantPlaylist), "https://example.com/live/master.m3u8")
	require.NoError(t, err)
	require.Len(t, cands, 4)

	assert.Equal(t, canon.RoleAudio, cands[0].Role)
	assert.Equal(t, canon.RoleSubtitle, cands[1].Role)
	assert.Equal(t, canon.RoleVideo, cands[2].Role)
	assert.Equal(t, 1, cands[2].Ordinal)
	assert.Equal(t, "https://example.com/live/video/high.m3u8", cands[2].Anchor.URL)
	assert.Equal(t, 2, cands[3].Ordinal)
}

const mpdFixture = `<MPD>
  <Period id="p1">
    <AdaptationSet contentType="video" mimeType="video/mp4">
      <Representation id="v1" bandwidth="5000000"/>
      <Representation id="v2" bandwidth="1500000"/>
    </AdaptationSet>
    <AdaptationSet contentType="audio" mimeType="audio/mp4">
      <Representation id="a1" bandwidth="128000"/>
    </AdaptationSet>
  </Period>
</MPD>`

func TestFromDASH(t *testing.T) {
	cands, err := discover.FromDASH([]byte(mpdFixture))
	require.NoError(t, err)
	require.Len(t, cands, 3)
	assert.Equal(t, canon.RoleVideo, cands[0].Role)
	assert.Equal(t, "v1", cands[0].Anchor.RepresentationID)
	assert.Equal(t, 2, cands[1].Ordinal)
	assert.Equal(t, canon.RoleAudio, cands[2].Role)
}

const smoothFixture = `<SmoothStreamingMedia>
  <StreamIndex Type="video">
    <QualityLevel Index="0"/>
    <QualityLevel Index="1"/>
  </StreamIndex>
  <StreamIndex Type="audio">
    <QualityLevel Index="0"/>
  </StreamIndex>
</SmoothStreamingMedia>`

func TestFromSmooth(t *testing.T) {
	cands, err := discover.FromSmooth([]byte(smoothFixture))
	require.NoError(t, err)
	require.Len(t, cands, 3)
	assert.Equal(t, canon.RoleVideo, cands[0].Role)
	assert.Equal(t, 2, cands[1].Ordinal)
	assert.Equal(t, canon.RoleAudio, cands[2].Role)
}

func TestSelectModes(t *testing.T) {
	cands, err := discover.FromDASH([]byte(mpdFixture))
	require.NoError(t, err)

	all, err := discover.Select(cands, canon.Selector{Mode: canon.SelectAll})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	player, err := discover.Select(cands, canon.Selector{Mode: canon.SelectPlayer})
	require.NoError(t, err)
	require.Len(t, player, 2)
	assert.Equal(t, canon.RoleVideo, player[0].Role)
	assert.Equal(t, canon.RoleAudio, player[1].Role)

	single, err := discover.Select(cands, canon.Selector{Mode: canon.SelectSingle, Role: canon.RoleVideo, Ordinal: 2})
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Equal(t, "v2", single[0].Anchor.RepresentationID)

	_, err = discover.Select(cands, canon.Selector{Mode: canon.SelectSingle, Role: canon.RoleVideo, Ordinal: 9})
	require.Error(t, err)
}
