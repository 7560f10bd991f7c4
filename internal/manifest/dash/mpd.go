// Package dash implements the MPEG-DASH MPD parser (C2). The XML struct
// tree is grounded directly in the teacher's internal/dash.MPD/Period/
// AdaptationSet/Representation/SegmentTemplate types, extended with the
// nonstandard <Pattern> repeat element, per-period SCTE-35 EventStream
// signaling, and SupplementalProperty UTC timing that the teacher's
// dash-to-hls proxy never needed.
package dash

import "encoding/xml"

// MPD is the root element of a Media Presentation Description.
type MPD struct {
	XMLName               xml.Name `xml:"MPD"`
	Type                  string   `xml:"type,attr"`
	Profiles              string   `xml:"profiles,attr"`
	MinimumUpdatePeriod    string  `xml:"minimumUpdatePeriod,attr"`
	TimeShiftBufferDepth  string   `xml:"timeShiftBufferDepth,attr"`
	AvailabilityStartTime string   `xml:"availabilityStartTime,attr"`
	PublishTime           string   `xml:"publishTime,attr"`
	MaxSegmentDuration    string   `xml:"maxSegmentDuration,attr"`
	MinBufferTime         string   `xml:"minBufferTime,attr"`
	Periods               []Period `xml:"Period"`
}

// Period represents a media content period.
type Period struct {
	ID          string          `xml:"id,attr"`
	Start       string          `xml:"start,attr"`
	Duration    string          `xml:"duration,attr"`
	BaseURL     string          `xml:"BaseURL"`
	Sets        []AdaptationSet `xml:"AdaptationSet"`
	EventStream []EventStream   `xml:"EventStream"`
}

// EventStream carries SCTE-35 signaling events for a Period.
type EventStream struct {
	SchemeIDURI string  `xml:"schemeIdUri,attr"`
	Events      []Event `xml:"Event"`
}

// Event is one SCTE-35 signal: a SpliceInsert, TimeSignal, or the
// SegmentationDescriptor attached to either.
type Event struct {
	PresentationTime string                 `xml:"presentationTime,attr"`
	Duration         uint64                 `xml:"duration,attr"`
	SpliceInsert     *SpliceInsert          `xml:"SpliceInsert"`
	TimeSignal       *TimeSignal            `xml:"TimeSignal"`
	Segmentation     *SegmentationDescriptor `xml:"SegmentationDescriptor"`
}

// SpliceInsert mirrors the SCTE-35 splice_insert() command.
type SpliceInsert struct {
	SpliceEventID         uint64 `xml:"spliceEventId,attr"`
	OutOfNetworkIndicator bool   `xml:"outOfNetworkIndicator,attr"`
	AvailNum              int    `xml:"availNum,attr"`
	UniqueProgramID       int    `xml:"uniqueProgramId,attr"`
	AutoReturn            bool   `xml:"autoReturn,attr"`
	BreakDuration         *BreakDuration `xml:"BreakDuration"`
}

// TimeSignal mirrors the SCTE-35 time_signal() command; it carries no
// fields of its own beyond the enclosing Event's presentationTime.
type TimeSignal struct{}

// BreakDuration carries the ad-break duration in its own timescale.
type BreakDuration struct {
	Duration  uint64 `xml:"duration,attr"`
	Timescale uint64 `xml:"timescale,attr"`
}

// SegmentationDescriptor mirrors the SCTE-35 segmentation_descriptor().
type SegmentationDescriptor struct {
	SegmentationEventID   string `xml:"segmentationEventId,attr"`
	SegmentationDuration  uint64 `xml:"segmentationDuration,attr"`
	SegmentationTypeID    string `xml:"segmentationTypeId,attr"`
}

// AdaptationSet represents a set of interchangeable representations.
type AdaptationSet struct {
	ID                  string           `xml:"id,attr"`
	ContentType         string           `xml:"contentType,attr"`
	Lang                string           `xml:"lang,attr,omitempty"`
	MimeType            string           `xml:"mimeType,attr"`
	SegmentAlignment    bool             `xml:"segmentAlignment,attr"`
	StartWithSAP        int              `xml:"startWithSAP,attr"`
	MaxWidth            int              `xml:"maxWidth,attr,omitempty"`
	MaxHeight           int              `xml:"maxHeight,attr,omitempty"`
	Representations     []Representation `xml:"Representation"`
	SegmentTemplate     *SegmentTemplate `xml:"SegmentTemplate"`
	SupplementalProperty []SupplementalProperty `xml:"SupplementalProperty"`
}

// SupplementalProperty carries the UTC-timing descriptor used for PDT
// cross-checks against the DASH availabilityStartTime clock.
type SupplementalProperty struct {
	SchemeIDURI string `xml:"schemeIdUri,attr"`
	Value       string `xml:"value,attr"`
}

// Representation represents a specific media stream.
type Representation struct {
	ID                     string           `xml:"id,attr"`
	Bandwidth              int              `xml:"bandwidth,attr"`
	Codecs                 string           `xml:"codecs,attr"`
	Width                  int              `xml:"width,attr,omitempty"`
	Height                 int              `xml:"height,attr,omitempty"`
	FrameRate              string           `xml:"frameRate,attr,omitempty"`
	AudioSamplingRate      int              `xml:"audioSamplingRate,attr,omitempty"`
	SegmentTemplate        *SegmentTemplate `xml:"SegmentTemplate"`
}

// SegmentTemplate defines the URL structure and timeline for segments. It
// can appear on a Representation (compact form, wins) or on its enclosing
// AdaptationSet.
type SegmentTemplate struct {
	Timescale              uint64          `xml:"timescale,attr"`
	StartNumber            int64           `xml:"startNumber,attr"`
	PresentationTimeOffset uint64          `xml:"presentationTimeOffset,attr"`
	Initialization         string          `xml:"initialization,attr"`
	Media                  string          `xml:"media,attr"`
	Timeline               SegmentTimeline `xml:"SegmentTimeline"`
}

// SegmentTimeline defines the timeline of segments, including the
// nonstandard <Pattern r>...<S/></Pattern> repeat wrapper some origins
// emit; kept for corpus compatibility but not advertised elsewhere.
type SegmentTimeline struct {
	Segments []S       `xml:"S"`
	Patterns []Pattern `xml:"Pattern"`
}

// Pattern is the nonstandard repeat-of-S wrapper.
type Pattern struct {
	R int `xml:"r,attr"`
	S S   `xml:"S"`
}

// S represents a single segment or a run of `r+1` identical-duration
// segments starting at `t` (or chained from the previous cursor if t is
// absent).
type S struct {
	T    *uint64 `xml:"t,attr"`
	D    uint64  `xml:"d,attr"`
	R    int     `xml:"r,attr,omitempty"`
	HasT bool    `xml:"-"`
}

// UnmarshalXML captures whether t was present, since a legitimate t=0 must
// be distinguished from "absent, chain from cursor".
func (s *S) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	type rawS struct {
		T *uint64 `xml:"t,attr"`
		D uint64  `xml:"d,attr"`
		R int     `xml:"r,attr"`
	}
	var r rawS
	if err := d.DecodeElement(&r, &start); err != nil {
		return err
	}
	s.D = r.D
	s.R = r.R
	s.T = r.T
	s.HasT = r.T != nil
	return nil
}

// Expand walks a SegmentTimeline (including any nonstandard <Pattern>
// wrappers) into a flat, ordered list of (startTime, duration) pairs.
func (tl SegmentTimeline) Expand() []TimedSegment {
	var out []TimedSegment
	var cursor uint64
	emitRun := func(s S) {
		t := cursor
		if s.HasT {
			t = *s.T
		}
		for i := 0; i <= s.R; i++ {
			out = append(out, TimedSegment{Time: t, Duration: s.D})
			t += s.D
		}
		cursor = t
	}
	for _, s := range tl.Segments {
		emitRun(s)
	}
	for _, p := range tl.Patterns {
		for i := 0; i <= p.R; i++ {
			emitRun(p.S)
		}
	}
	return out
}

// TimedSegment is one expanded (t, d) entry from a SegmentTimeline.
type TimedSegment struct {
	Time     uint64
	Duration uint64
}

// EffectiveSegmentTemplate returns the Representation's own SegmentTemplate
// if present (the compact form wins), else the AdaptationSet's.
func EffectiveSegmentTemplate(as *AdaptationSet, rep *Representation) *SegmentTemplate {
	if rep.SegmentTemplate != nil {
		return rep.SegmentTemplate
	}
	return as.SegmentTemplate
}
