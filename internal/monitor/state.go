// Package monitor implements the per-rendition Monitor state machine
// (C5): the polling loop, diff engine, ad-break tracker, PDT/PTS checks,
// staleness detection, and input-buffer accounting. Structurally it plays
// the role the teacher's internal/session.StreamSession's downloadLoop
// plays — one ticker-driven goroutine per unit of work, owning its state
// exclusively — generalized from "download next DASH segments" to
// "poll, diff, and score one rendition."
package monitor

import (
	"time"

	"github.com/ericcug/streamcanary/internal/canon"
)

// SegmentRequestMode controls whether §4.5 step 4's per-segment request
// is issued, and with which HTTP method.
type SegmentRequestMode string

const (
	SegmentRequestsOff  SegmentRequestMode = "off"
	SegmentRequestsHead SegmentRequestMode = "head"
	SegmentRequestsGet  SegmentRequestMode = "get"
)

// adState is RenditionState's ad-break bookkeeping (§3).
type adState struct {
	InBreak              bool
	AdvertisedDurationSec float64
	ActualDurationSec    float64
	BreakStartMonotonic  time.Time
	TrackingConfirmed    bool
	DateRangeID          string
}

// sessionState is RenditionState's input-buffer/session bookkeeping (§3).
type sessionState struct {
	StartMonotonic     time.Time
	ContentDurationSec float64
	NextStaleMonotonic time.Time
}

// pdtAnchor carries the last explicit PDT and the content seen since, so
// subsequent non-explicit segments can interpolate (§3 "pdt_anchor").
type pdtAnchor struct {
	PDT           time.Time
	CumulativeSec float64
	Valid         bool
}

// contentRing is the 10-slot ring buffer of per-poll new-content duration
// sums used by the content-shortage check (§4.5 step 8).
type contentRing struct {
	values [10]float64
	filled int
	next   int
}

func (r *contentRing) push(v float64) {
	r.values[r.next] = v
	r.next = (r.next + 1) % len(r.values)
	if r.filled < len(r.values) {
		r.filled++
	}
}

// ordered returns the ring's contents oldest-first, once full.
func (r *contentRing) ordered() []float64 {
	out := make([]float64, len(r.values))
	for i := 0; i < len(r.values); i++ {
		out[i] = r.values[(r.next+i)%len(r.values)]
	}
	return out
}

// renditionState is owned exclusively by one Monitor's goroutine; nothing
// outside ever mutates it (§3, §5).
type renditionState struct {
	anchor             canon.SegmentRecord
	haveAnchor         bool
	lastHeader         canon.HeaderSnapshot
	ad                 adState
	session            sessionState
	contentWindow      contentRing
	periodsSeen        []string
	currentPeriodDurationSec float64
	pdt                pdtAnchor
	lastDiscontinuitySeq int64

	// lipSyncWarned is not read or written; the warn-once and recovery
	// state for the DASH lip-sync check is kept per (period, number) in
	// PTSBucket.warned (§4.5.2).
	lipSyncWarned bool
}
