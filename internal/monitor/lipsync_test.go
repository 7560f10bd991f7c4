package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ericcug/streamcanary/internal/canon"
	"github.com/ericcug/streamcanary/internal/metrics"
)

type fakeLogPrinter struct {
	warns []string
	infos []string
}

func (f *fakeLogPrinter) Warnf(format string, v ...interface{}) { f.warns = append(f.warns, format) }
func (f *fakeLogPrinter) Infof(format string, v ...interface{}) { f.infos = append(f.infos, format) }

func TestPTSBucketWarnsOnceThenRecovers(t *testing.T) {
	log := &fakeLogPrinter{}
	b := NewPTSBucket(log, 2)

	delta, ready := b.Contribute("p1", 1, 0.0)
	assert.False(t, ready)
	assert.Equal(t, 0.0, delta)

	delta, ready = b.Contribute("p1", 1, 0.5)
	assert.True(t, ready)
	assert.InDelta(t, 0.5, delta, 1e-9)
	assert.Len(t, log.warns, 1)

	// Same key, a later round within threshold: recovery is logged once.
	b.Contribute("p1", 1, 0.0)
	delta, ready = b.Contribute("p1", 1, 0.01)
	assert.True(t, ready)
	assert.Less(t, delta, 0.1)
	assert.Len(t, log.infos, 1)
}

func TestRecordPTSUsesTimelineOffsetNotSequenceNumber(t *testing.T) {
	log := &fakeLogPrinter{}
	bucket := NewPTSBucket(log, 2)
	video := &Monitor{
		Rendition: canon.Rendition{Endpoint: canon.Endpoint{Name: "ch", Type: canon.TypeDASH}, Role: canon.RoleVideo},
		PTSBucket: bucket,
		Sink:      metrics.NopSink{},
	}
	audio := &Monitor{
		Rendition: canon.Rendition{Endpoint: canon.Endpoint{Name: "ch", Type: canon.TypeDASH}, Role: canon.RoleAudio},
		PTSBucket: bucket,
		Sink:      metrics.NopSink{},
	}

	// Video: t=90000, pto=0, timescale=90000 -> pts=1.0s. Audio: t=48000,
	// pto=0, timescale=48000 -> pts=1.0s. Both carry sequence number 3,
	// so they meet in one bucket entry; the presentation times computed
	// from the timeline offsets line up, so this must not report drift.
	video.recordPTS(canon.SegmentRecord{
		Seq:            canon.Sequence{PeriodID: "p1", Number: 3},
		FormatSpecific: canon.FormatSpecific{PeriodID: "p1", TimelineTime: 90000, Timescale: 90000},
	})
	audio.recordPTS(canon.SegmentRecord{
		Seq:            canon.Sequence{PeriodID: "p1", Number: 3},
		FormatSpecific: canon.FormatSpecific{PeriodID: "p1", TimelineTime: 48000, Timescale: 48000},
	})

	assert.Empty(t, log.warns, "matching presentation times must not be flagged as drift")
}

func TestSmoothSyncStateWarnsOnAVDelta(t *testing.T) {
	log := &fakeLogPrinter{}
	s := NewSmoothSyncState(log)

	s.Update(canon.RoleVideo, 10.0)
	assert.Empty(t, log.warns)

	s.Update(canon.RoleAudio, 10.2)
	assert.Len(t, log.warns, 1)
}
