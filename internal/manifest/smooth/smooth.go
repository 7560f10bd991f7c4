// Package smooth implements the Microsoft Smooth Streaming manifest
// parser (C2). Structurally it mirrors the HLS/DASH parsers' shape
// (decode XML into a struct tree, flatten into canon.SegmentRecords) but
// the stream selection rule is unique to this format: only the first
// QualityLevel of each StreamIndex is monitored, and an audio
// StreamIndex is rejected outright unless its first QualityLevel's
// FourCC is AACL.
package smooth

import (
	"encoding/xml"
	"fmt"

	"github.com/ericcug/streamcanary/internal/canon"
	"github.com/ericcug/streamcanary/internal/manifest"
)

// SmoothStreamingMedia is the root element of a .ism/Manifest document.
type SmoothStreamingMedia struct {
	XMLName     xml.Name      `xml:"SmoothStreamingMedia"`
	Duration    uint64        `xml:"Duration,attr"`
	TimeScale   uint64        `xml:"TimeScale,attr"`
	IsLive      bool          `xml:"IsLive,attr"`
	DVRWindow   uint64        `xml:"DVRWindowLength,attr"`
	StreamIndex []StreamIndex `xml:"StreamIndex"`
}

// StreamIndex carries one media track (video, audio, or text) across a
// set of interchangeable quality levels.
type StreamIndex struct {
	Type          string         `xml:"Type,attr"`
	Name          string         `xml:"Name,attr"`
	Chunks        int            `xml:"Chunks,attr"`
	QualityLevels []QualityLevel `xml:"QualityLevel"`
	C             []Chunk        `xml:"c"`
}

// QualityLevel is one bitrate/codec rung within a StreamIndex.
type QualityLevel struct {
	Index      int    `xml:"Index,attr"`
	Bitrate    int    `xml:"Bitrate,attr"`
	FourCC     string `xml:"FourCC,attr"`
	SamplingRate int  `xml:"SamplingRate,attr,omitempty"`
}

// Chunk is one fragment entry; D is its duration and T its absolute start
// time, both in the StreamIndex's TimeScale units. T is omitted when it
// chains directly from the previous chunk's end.
type Chunk struct {
	T    *uint64 `xml:"t,attr"`
	D    uint64  `xml:"d,attr"`
	R    int     `xml:"r,attr,omitempty"`
	HasT bool    `xml:"-"`
}

// UnmarshalXML distinguishes an absent t from an explicit t=0.
func (c *Chunk) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	type raw struct {
		T *uint64 `xml:"t,attr"`
		D uint64  `xml:"d,attr"`
		R int     `xml:"r,attr"`
	}
	var r raw
	if err := d.DecodeElement(&r, &start); err != nil {
		return err
	}
	c.T, c.D, c.R = r.T, r.D, r.R
	c.HasT = r.T != nil
	return nil
}

// Parser implements manifest.Parser for Smooth Streaming manifests.
type Parser struct {
	// Role restricts parsing to a single StreamIndex type ("video",
	// "audio", "text"); required, since a Smooth manifest always
	// interleaves multiple track types in one document.
	Role canon.Role
}

var _ manifest.Parser = Parser{}

// Parse decodes a Smooth Streaming Manifest into a canonical ManifestView
// for the first QualityLevel of the selected StreamIndex.
func (p Parser) Parse(data []byte, baseURL string) (*canon.ManifestView, error) {
	var media SmoothStreamingMedia
	if err := xml.Unmarshal(data, &media); err != nil {
		return nil, &manifest.ParseError{Format: "smooth", Reason: err.Error()}
	}

	si, found := selectStreamIndex(media, p.Role)
	if !found {
		return nil, &manifest.ParseError{Format: "smooth", Reason: fmt.Sprintf("no StreamIndex of type %q", p.Role)}
	}

	if p.Role == canon.RoleAudio {
		if len(si.QualityLevels) == 0 || si.QualityLevels[0].FourCC != "AACL" {
			return nil, &manifest.ParseError{Format: "smooth", Reason: "audio StreamIndex first QualityLevel is not AACL"}
		}
	}

	timescale := media.TimeScale
	if timescale == 0 {
		timescale = 10000000
	}

	view := &canon.ManifestView{RawSize: len(data)}

	var cursor uint64
	emit := func(t uint64, d uint64) {
		rec := canon.SegmentRecord{
			Seq: canon.Sequence{StartTime: t},
			DurationSec: float64(d) / float64(timescale),
			FormatSpecific: canon.FormatSpecific{
				Timescale: timescale,
			},
			URL: fmt.Sprintf("%s/QualityLevels(%d)/Fragments(%s=%d)", baseURL, qualityBitrate(si), si.Name, t),
		}
		view.Segments = append(view.Segments, rec)
	}

	for _, c := range si.C {
		t := cursor
		if c.HasT {
			t = *c.T
		}
		for i := 0; i <= c.R; i++ {
			emit(t, c.D)
			t += c.D
		}
		cursor = t
	}

	return view, nil
}

func selectStreamIndex(media SmoothStreamingMedia, role canon.Role) (StreamIndex, bool) {
	wantType := smoothTypeForRole(role)
	for _, si := range media.StreamIndex {
		if si.Type == wantType {
			return si, true
		}
	}
	return StreamIndex{}, false
}

func smoothTypeForRole(role canon.Role) string {
	switch role {
	case canon.RoleVideo:
		return "video"
	case canon.RoleAudio:
		return "audio"
	case canon.RoleSubtitle:
		return "text"
	default:
		return string(role)
	}
}

func qualityBitrate(si StreamIndex) int {
	if len(si.QualityLevels) == 0 {
		return 0
	}
	return si.QualityLevels[0].Bitrate
}
