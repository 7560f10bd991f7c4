// Package canon holds the canonical, format-agnostic data model shared by
// every manifest parser, the monitor state machine, and the correlator.
package canon

import (
	"strconv"
	"time"
)

// EndpointType identifies which adaptive-bitrate format an Endpoint serves.
type EndpointType string

const (
	TypeHLS    EndpointType = "hls"
	TypeDASH   EndpointType = "dash"
	TypeSmooth EndpointType = "smooth"
)

// Endpoint is a configured, immutable-after-load polling target.
type Endpoint struct {
	Name        string
	ManifestURL string
	TrackingURL string
	Type        EndpointType
}

// Role is the kind of media a Rendition carries.
type Role string

const (
	RoleVideo    Role = "video"
	RoleAudio    Role = "audio"
	RoleSubtitle Role = "subtitle"
)

// SelectionMode controls which renditions of an Endpoint get monitored.
type SelectionMode string

const (
	SelectSingle SelectionMode = "single"
	SelectPlayer SelectionMode = "player"
	SelectAll    SelectionMode = "all"
)

// Selector names the rendition(s) a premonitor should pick.
type Selector struct {
	Mode    SelectionMode
	Role    Role
	Ordinal int // 1-based, used with SelectSingle
}

// AnchorKey carries the format-specific key used to identify a Rendition
// independent of the generic (Endpoint, Selector) addressing.
type AnchorKey struct {
	// HLS
	URL string
	// DASH
	RepresentationID string
	MimeType         string
	// Smooth
	StreamType   string
	QualityLevel int
}

// Rendition is a single selected stream within an Endpoint.
type Rendition struct {
	Endpoint Endpoint
	Role     Role
	Ordinal  int
	Anchor   AnchorKey
}

// Name returns a stable, human-readable identifier used for metric
// dimensions and log correlation, e.g. "mychannel-video-1".
func (r Rendition) Name() string {
	if r.Role == "" {
		return r.Endpoint.Name
	}
	return r.Endpoint.Name + "-" + string(r.Role) + "-" + strconv.Itoa(r.Ordinal)
}

// FormatSpecific carries the handful of per-format attributes a
// SegmentRecord needs that don't generalize cleanly, e.g. DASH's
// presentationTimeOffset/timescale pair used for PTS derivation.
type FormatSpecific struct {
	PeriodID               string
	TimelineTime           uint64 // DASH SegmentTimeline raw @t for this segment
	PresentationTimeOffset uint64
	Timescale              uint64
	RepresentationID       string
}

// SegmentRecord is one media segment in a canonical ManifestView.
type SegmentRecord struct {
	Seq               Sequence
	DurationSec       float64
	DiscontinuityFlag bool
	DiscontinuitySeq  int64
	PDT               time.Time
	PDTExplicit       bool
	URL               string
	FormatSpecific    FormatSpecific
	Ad                *AdSignal
}

// AdSignal carries the ad-break tags attached to a segment by the HLS
// parser (CUE-OUT/CUE-IN, DATERANGE SCTE35-OUT/IN). DASH signals ad breaks
// at the period level instead (see ManifestView.EventStream), not here.
type AdSignal struct {
	CueOut             bool
	CueOutDurationSec  float64
	CueIn              bool
	DateRangeID        string
	DateRangeSCTEOut   bool
	DateRangeSCTEIn    bool
	DateRangeDurationSec float64
}

// Sequence is the opaque total ordering of a SegmentRecord within a
// Rendition. HLS uses MediaSequence alone; DASH uses (PeriodID, Number);
// Smooth uses StartTime. Comparisons must only ever happen between
// Sequences produced by the same Rendition's parser.
type Sequence struct {
	MediaSequence int64  // HLS
	PeriodID      string // DASH
	Number        int64  // DASH
	StartTime     uint64 // Smooth "t"
}

// Less reports whether s is strictly ordered before o. DASH sequences
// compare by (PeriodID, Number) with PeriodID compared by the period's
// position in PeriodOrder, supplied by the caller since period ids are
// opaque strings with no intrinsic order.
func (s Sequence) Less(o Sequence, periodOrder map[string]int) bool {
	if s.PeriodID != "" || o.PeriodID != "" {
		pi, pj := periodOrder[s.PeriodID], periodOrder[o.PeriodID]
		if pi != pj {
			return pi < pj
		}
		return s.Number < o.Number
	}
	if s.StartTime != 0 || o.StartTime != 0 {
		return s.StartTime < o.StartTime
	}
	return s.MediaSequence < o.MediaSequence
}

// Equal reports whether two Sequences refer to the same logical position.
func (s Sequence) Equal(o Sequence) bool {
	return s.MediaSequence == o.MediaSequence && s.PeriodID == o.PeriodID &&
		s.Number == o.Number && s.StartTime == o.StartTime
}

// HeaderSnapshot is the set of static, header-level manifest attributes the
// Monitor diffs across polls to detect configuration changes.
type HeaderSnapshot struct {
	TargetDurationSec    float64
	Version              int
	AvailabilityStart    time.Time
	SupplementalPropUTC  string
}

// SCTESegmentationEvent is a DASH EventStream SegmentationDescriptor or a
// SpliceInsert/TimeSignal, normalized across both representations.
type SCTESegmentationEvent struct {
	PeriodID             string
	SegmentationEventID  uint64
	SegmentationDuration  uint64
	SegmentationTimescale uint64
	SegmentationTypeID    int
	OutOfNetwork          bool
	SpliceEventID         uint64
	AvailNum              int
	UniqueProgramID       int
	AutoReturn            bool
}

// ManifestView is the canonical, format-agnostic parse result.
type ManifestView struct {
	Segments       []SegmentRecord
	Header         HeaderSnapshot
	PeriodList     []string // DASH period ids in document order, empty otherwise
	IsPrimary      bool     // HLS multivariant master detection
	EventStream    []SCTESegmentationEvent
	RawSize        int
}
