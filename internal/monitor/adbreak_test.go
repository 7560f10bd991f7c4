package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericcug/streamcanary/internal/canon"
	"github.com/ericcug/streamcanary/internal/logger"
	"github.com/ericcug/streamcanary/internal/metrics"
)

func newTestMonitor(epType canon.EndpointType) *Monitor {
	return &Monitor{
		Rendition: canon.Rendition{
			Endpoint: canon.Endpoint{Name: "ep1", Type: epType},
			Role:     canon.RoleVideo,
		},
		Log: &nopLogger{},
	}
}

type nopLogger struct{}

func (*nopLogger) Debugf(string, ...interface{})       {}
func (*nopLogger) Infof(string, ...interface{})        {}
func (*nopLogger) Warnf(string, ...interface{})        {}
func (*nopLogger) Errorf(string, ...interface{})       {}
func (l *nopLogger) With(...string) logger.Logger { return l }

func TestApplySCTETransitionHLSCueOutCueIn(t *testing.T) {
	m := newTestMonitor(canon.TypeHLS)

	batch := metrics.NewBatch(metrics.Dimensions{})
	entrySeg := canon.SegmentRecord{
		DurationSec: 6,
		Ad: &canon.AdSignal{
			CueOut:            true,
			CueOutDurationSec: 30,
			DateRangeID:       "break1",
		},
	}
	m.applySCTETransitionHLS(batch, entrySeg)
	assert.True(t, m.state.ad.InBreak)
	assert.Equal(t, 30.0, m.state.ad.AdvertisedDurationSec)
	assert.Equal(t, []float64{1}, batch.Hist[metrics.AdBreak])

	midSeg := canon.SegmentRecord{DurationSec: 6}
	m.applySCTETransitionHLS(batch, midSeg)
	assert.Equal(t, 12.0, m.state.ad.ActualDurationSec)

	exitSeg := canon.SegmentRecord{
		DurationSec: 6,
		Ad: &canon.AdSignal{
			CueIn: true,
		},
	}
	m.applySCTETransitionHLS(batch, exitSeg)
	assert.False(t, m.state.ad.InBreak)
	require.Len(t, batch.Hist[metrics.AdDurationActual], 1)
	assert.Equal(t, 18.0, batch.Hist[metrics.AdDurationActual][0])
	require.Len(t, batch.Hist[metrics.AdDurationDelta], 1)
	assert.Equal(t, -12.0, batch.Hist[metrics.AdDurationDelta][0])
}

func TestApplyEMTTransitionHLS(t *testing.T) {
	m := newTestMonitor(canon.TypeHLS)
	m.Cfg.EMT = true
	m.Cfg.AdSegmentSubstring = "/ads/"

	batch := metrics.NewBatch(metrics.Dimensions{})

	m.applyEMTTransitionHLS(batch, canon.SegmentRecord{
		DurationSec:       6,
		DiscontinuityFlag: true,
		URL:               "https://example.com/ads/1.ts",
	})
	assert.True(t, m.state.ad.InBreak)
	assert.Equal(t, []float64{1}, batch.Hist[metrics.AdBreak])

	m.applyEMTTransitionHLS(batch, canon.SegmentRecord{
		DurationSec:       6,
		DiscontinuityFlag: true,
		URL:               "https://example.com/content/2.ts",
	})
	assert.False(t, m.state.ad.InBreak)
	require.Len(t, batch.Hist[metrics.AdDurationActual], 1)
}

func TestApplySCTEPeriodTransitionDASH(t *testing.T) {
	m := newTestMonitor(canon.TypeDASH)
	batch := metrics.NewBatch(metrics.Dimensions{})

	view := &canon.ManifestView{
		PeriodList: []string{"p1", "p2"},
		EventStream: []canon.SCTESegmentationEvent{
			{PeriodID: "p2", OutOfNetwork: true, SegmentationDuration: 300000, SegmentationTimescale: 10000},
		},
	}
	m.processPeriods(batch, view)
	assert.True(t, m.state.ad.InBreak)
	assert.Equal(t, 30.0, m.state.ad.AdvertisedDurationSec)
	assert.Equal(t, []string{"p1", "p2"}, m.state.periodsSeen)

	// Segments within period p2 accumulate as processNewSegment runs
	// across subsequent ticks, the same way the ad period's actual
	// duration is tallied before the next period closes it.
	m.state.currentPeriodDurationSec = 28.5

	view2 := &canon.ManifestView{PeriodList: []string{"p1", "p2", "p3"}}
	m.processPeriods(batch, view2)
	assert.False(t, m.state.ad.InBreak)
	require.Len(t, batch.Hist[metrics.AdDurationActual], 1)
	assert.Equal(t, 28.5, batch.Hist[metrics.AdDurationActual][0])
	require.Len(t, batch.Hist[metrics.AdDurationDelta], 1)
	assert.InDelta(t, -1.5, batch.Hist[metrics.AdDurationDelta][0], 1e-9)
}

func TestProcessPeriodsWarnsOnShortPeriod(t *testing.T) {
	m := newTestMonitor(canon.TypeDASH)
	log := &recordingLogger{}
	m.Log = log
	batch := metrics.NewBatch(metrics.Dimensions{})

	m.processPeriods(batch, &canon.ManifestView{PeriodList: []string{"p1"}})
	m.state.currentPeriodDurationSec = 0.2
	m.processPeriods(batch, &canon.ManifestView{PeriodList: []string{"p1", "p2"}})

	assert.Len(t, log.warns, 1)
}

type recordingLogger struct {
	nopLogger
	warns []string
}

func (l *recordingLogger) Warnf(format string, v ...interface{}) { l.warns = append(l.warns, format) }
func (l *recordingLogger) With(...string) logger.Logger          { return l }
