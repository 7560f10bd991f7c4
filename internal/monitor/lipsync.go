package monitor

import (
	"sync"

	"github.com/ericcug/streamcanary/internal/canon"
	"github.com/ericcug/streamcanary/internal/metrics"
)

// PTSBucket is the DASH analogue of correlate.Bucket (§4.5.2): a
// mutex-guarded map from (period, number) to the PTS each contributing
// representation observed, compared once every expected representation
// has reported in. One Bucket is shared by every DASH Monitor under the
// same endpoint in player/all selection mode.
type PTSBucket struct {
	mu      sync.Mutex
	members int
	entries map[periodNumber][]float64
	warned  map[periodNumber]bool
	log     logPrinter
}

type periodNumber struct {
	PeriodID string
	Number   int64
}

// logPrinter is the narrow slice of logger.Logger PTSBucket needs,
// avoiding an import cycle back onto the monitor that owns the logger.
type logPrinter interface {
	Warnf(format string, v ...interface{})
	Infof(format string, v ...interface{})
}

// NewPTSBucket creates a bucket expecting contributions from members DASH
// representations.
func NewPTSBucket(log logPrinter, members int) *PTSBucket {
	return &PTSBucket{
		members: members,
		entries: make(map[periodNumber][]float64),
		warned:  make(map[periodNumber]bool),
		log:     log,
	}
}

// Contribute adds one representation's PTS for (period, number) and, once
// every member has reported, computes and logs the delta.
func (b *PTSBucket) Contribute(periodID string, number int64, pts float64) (delta float64, ready bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	k := periodNumber{periodID, number}
	b.entries[k] = append(b.entries[k], pts)
	if len(b.entries[k]) < b.members {
		return 0, false
	}

	values := b.entries[k]
	maxV, minV := values[0], values[0]
	for _, v := range values[1:] {
		if v > maxV {
			maxV = v
		}
		if v < minV {
			minV = v
		}
	}
	delta = maxV - minV
	delete(b.entries, k)

	if delta > 0.1 {
		if !b.warned[k] {
			b.log.Warnf("lip sync: PTS delta %.3fs at period=%s number=%d exceeds 0.1s threshold", delta, periodID, number)
		}
		b.warned[k] = true
	} else if b.warned[k] {
		b.log.Infof("lip sync: PTS delta now within 100ms at period=%s number=%d", periodID, number)
		b.warned[k] = false
	}
	return delta, true
}

// recordPTS implements §4.5 step 4's "record the segment's PTS" for DASH,
// publishing into the shared PTSBucket when one is configured.
func (m *Monitor) recordPTS(seg canon.SegmentRecord) {
	if m.PTSBucket == nil {
		return
	}
	timescale := seg.FormatSpecific.Timescale
	if timescale == 0 {
		return
	}
	pts := (float64(seg.FormatSpecific.TimelineTime) - float64(seg.FormatSpecific.PresentationTimeOffset)) / float64(timescale)
	if delta, ready := m.PTSBucket.Contribute(seg.FormatSpecific.PeriodID, seg.Seq.Number, pts); ready {
		batch := metrics.NewBatch(metrics.Dimensions{Endpoint: m.Rendition.Name(), Type: string(m.Rendition.Endpoint.Type)})
		batch.Observe(metrics.PTSDelta, delta)
		m.publishAndFinish(batch)
	}
}

// SmoothSyncState is the exported alias used by callers outside this
// package (the supervisor) to hold a reference to a smoothSyncState
// without being able to construct one directly.
type SmoothSyncState = smoothSyncState

// smoothSyncState tracks each role's latest tsec for the Smooth
// structural sibling check in §4.5.2.
type smoothSyncState struct {
	mu     sync.Mutex
	latest map[canon.Role]float64
	log    logPrinter
}

// NewSmoothSyncState creates the shared cross-role tsec tracker for one
// Smooth endpoint's video/audio/subtitle Monitors.
func NewSmoothSyncState(log logPrinter) *smoothSyncState {
	return &smoothSyncState{latest: make(map[canon.Role]float64), log: log}
}

// Update records role's latest tsec and checks it against the other
// already-known roles' tsec.
func (s *smoothSyncState) Update(role canon.Role, tsec float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[role] = tsec

	video, haveVideo := s.latest[canon.RoleVideo]
	if !haveVideo {
		return
	}
	if audio, ok := s.latest[canon.RoleAudio]; ok {
		if delta := absf(video - audio); delta > 0.05 {
			s.log.Warnf("possible lip sync issue. AV PTS delta: %.3f", delta)
		}
	}
	if sub, ok := s.latest[canon.RoleSubtitle]; ok {
		if delta := absf(video - sub); delta > 0.5 {
			s.log.Warnf("possible subtitle sync issue. V-S PTS delta: %.3f", delta)
		}
	}
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
