// Package correlate implements the Cross-Rendition Correlator (C6),
// adapted from the teacher's internal/cache.SegmentCache eviction-worker
// shape: a mutex-guarded map drained by a periodic background goroutine,
// repurposed here from "evict stale segment bytes" to "drain segment
// records once every member rendition has contributed."
package correlate

import (
	"context"
	"sync"
	"time"

	"github.com/ericcug/streamcanary/internal/canon"
	"github.com/ericcug/streamcanary/internal/logger"
)

// Entry is one rendition's contribution to a correlation bucket at a
// given seq.
type Entry struct {
	Seq              canon.Sequence
	Role             canon.Role
	Duration         float64
	Discontinuity    bool
	DiscontinuitySeq int64
	PDT              time.Time
	PDTExplicit      bool
}

type bucketKey struct {
	MediaSequence int64
	PeriodID      string
	Number        int64
	StartTime     uint64
}

func keyFor(seq canon.Sequence) bucketKey {
	return bucketKey{seq.MediaSequence, seq.PeriodID, seq.Number, seq.StartTime}
}

// Bucket is the shared per-endpoint correlation table. One Bucket is
// created per endpoint running in an all-renditions or player-mode
// premonitor.
type Bucket struct {
	log      logger.Logger
	members  int
	maxLen   int
	mu       sync.Mutex
	entries  map[bucketKey][]Entry
	overflow func()

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Bucket expecting contributions from members renditions;
// maxLen bounds how long any single seq's entry list may grow (§4.6:
// "unexpectedly long" detection) before overflow is invoked to signal the
// owning monitors to stop.
func New(log logger.Logger, members int, maxLen int, overflow func()) *Bucket {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bucket{
		log:      log,
		members:  members,
		maxLen:   maxLen,
		entries:  make(map[bucketKey][]Entry),
		overflow: overflow,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the periodic drain worker at the supervisor's cadence.
func (b *Bucket) Start(period time.Duration) {
	go b.drainWorker(period)
}

// Stop halts the drain worker.
func (b *Bucket) Stop() { b.cancel() }

// Contribute appends one rendition's SegmentRecord-derived Entry under its
// seq. Called by a Monitor for every new segment it emits, under one lock
// per the design document's concurrency model.
func (b *Bucket) Contribute(seq canon.Sequence, e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := keyFor(seq)
	b.entries[k] = append(b.entries[k], e)
	if len(b.entries[k]) > b.maxLen {
		b.log.Warnf("correlation bucket for seq %+v unexpectedly long (%d entries)", k, len(b.entries[k]))
		if b.overflow != nil {
			b.overflow()
		}
	}
}

func (b *Bucket) drainWorker(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.drainComplete()
		}
	}
}

// drainComplete compares and removes every bucket entry that has
// contributions from all member renditions.
func (b *Bucket) drainComplete() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for k, entries := range b.entries {
		if len(entries) < b.members {
			continue
		}
		b.compare(k, entries)
		delete(b.entries, k)
	}
}

func (b *Bucket) compare(k bucketKey, entries []Entry) {
	first := entries[0]
	for _, e := range entries[1:] {
		if e.DiscontinuitySeq != first.DiscontinuitySeq {
			b.log.Warnf("correlation mismatch at seq %+v: discontinuity_seq differs (%d vs %d)", k, first.DiscontinuitySeq, e.DiscontinuitySeq)
		}
		if e.Discontinuity != first.Discontinuity {
			b.log.Warnf("correlation mismatch at seq %+v: discontinuity flag differs", k)
		}
	}

	var videoPDT time.Time
	var videoPDTSet bool
	var videoDuration float64
	var videoDurationSet bool
	for _, e := range entries {
		if e.Role != canon.RoleVideo {
			continue
		}
		if !e.PDTExplicit {
			continue
		}
		if !videoPDTSet {
			videoPDT, videoPDTSet = e.PDT, true
		} else if !e.PDT.Equal(videoPDT) {
			b.log.Warnf("correlation mismatch at seq %+v: video PDT differs across renditions", k)
		}
		if !videoDurationSet {
			videoDuration, videoDurationSet = e.Duration, true
		} else if e.Duration != videoDuration {
			b.log.Warnf("correlation mismatch at seq %+v: video duration differs across renditions", k)
		}
	}
}
