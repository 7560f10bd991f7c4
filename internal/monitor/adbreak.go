package monitor

import (
	"strings"
	"time"

	"github.com/ericcug/streamcanary/internal/canon"
	"github.com/ericcug/streamcanary/internal/metrics"
)

// applyAdBreakTransition implements §4.5.1 for a single new segment. HLS
// ad signaling is per-segment (CUE-OUT/CUE-IN, DATERANGE); DASH ad
// signaling is per-period and is handled separately in processPeriods,
// once per tick, via applySCTEPeriodTransition or applyEMTPeriodTransition.
func (m *Monitor) applyAdBreakTransition(batch *metrics.Batch, seg canon.SegmentRecord) {
	if m.Rendition.Endpoint.Type != canon.TypeHLS {
		return
	}
	if m.Cfg.EMT {
		m.applyEMTTransitionHLS(batch, seg)
		return
	}
	m.applySCTETransitionHLS(batch, seg)
}

func (m *Monitor) applySCTETransitionHLS(batch *metrics.Batch, seg canon.SegmentRecord) {
	if seg.Ad == nil {
		if m.state.ad.InBreak {
			m.state.ad.ActualDurationSec += seg.DurationSec
		}
		return
	}

	entering := seg.Ad.CueOut || seg.Ad.DateRangeSCTEOut
	exiting := seg.Ad.CueIn || (seg.Ad.DateRangeSCTEIn && seg.Ad.DateRangeID == m.state.ad.DateRangeID)

	if entering {
		if m.state.ad.InBreak {
			m.Log.Warnf("nested ad break entry while already in break")
		}
		m.state.ad.InBreak = true
		m.state.ad.ActualDurationSec = 0
		m.state.ad.BreakStartMonotonic = time.Now()
		m.state.ad.TrackingConfirmed = false
		if seg.Ad.CueOut {
			m.state.ad.AdvertisedDurationSec = seg.Ad.CueOutDurationSec
		} else {
			m.state.ad.AdvertisedDurationSec = seg.Ad.DateRangeDurationSec
		}
		m.state.ad.DateRangeID = seg.Ad.DateRangeID
		// Matching the source: adbreak is only published when a
		// daterange id is present, even on the CUE-OUT path, per the
		// open-question decision recorded in DESIGN.md.
		if m.state.ad.DateRangeID != "" {
			batch.Observe(metrics.AdBreak, 1)
			batch.Observe(metrics.AdDurationAdvertised, m.state.ad.AdvertisedDurationSec)
		}
	}

	if m.state.ad.InBreak {
		m.state.ad.ActualDurationSec += seg.DurationSec
	}

	if exiting && m.state.ad.InBreak {
		m.closeAdBreak(batch)
	}
}

func (m *Monitor) applyEMTTransitionHLS(batch *metrics.Batch, seg canon.SegmentRecord) {
	isAdSegment := m.Cfg.AdSegmentSubstring != "" && strings.Contains(seg.URL, m.Cfg.AdSegmentSubstring)

	if seg.DiscontinuityFlag && isAdSegment && !m.state.ad.InBreak {
		m.state.ad.InBreak = true
		m.state.ad.ActualDurationSec = 0
		m.state.ad.BreakStartMonotonic = time.Now()
		m.state.ad.TrackingConfirmed = false
		batch.Observe(metrics.AdBreak, 1)
	} else if seg.DiscontinuityFlag && !isAdSegment && m.state.ad.InBreak {
		m.closeAdBreak(batch)
		return
	}

	if m.state.ad.InBreak {
		m.state.ad.ActualDurationSec += seg.DurationSec
	}
}

func (m *Monitor) closeAdBreak(batch *metrics.Batch) {
	batch.Observe(metrics.AdDurationActual, m.state.ad.ActualDurationSec)
	if m.state.ad.AdvertisedDurationSec > 0 {
		delta := m.state.ad.ActualDurationSec - m.state.ad.AdvertisedDurationSec
		batch.Observe(metrics.AdDurationDelta, delta)
		if delta > 1 || delta < -1 {
			if delta > 0 {
				m.Log.Warnf("ad break ran longer than advertised by %.3f seconds", delta)
			} else {
				m.Log.Warnf("ad break ran shorter than advertised by %.3f seconds", -delta)
			}
		}
	}
	if !m.state.ad.TrackingConfirmed && m.Cfg.TrackingEnabled {
		m.Log.Warnf("did not find expected tracking info for ad break")
	}
	m.state.ad = adState{}
}

// processPeriods implements the DASH side of §4.5.1: a new period is an
// ad-break entry when its first SCTE event is a SpliceInsert with
// outOfNetworkIndicator=true or a SegmentationDescriptor whose type is in
// canon.AdBreakStartTypes; exit is the first subsequent period without
// such a marker.
func (m *Monitor) processPeriods(batch *metrics.Batch, view *canon.ManifestView) {
	if m.Rendition.Endpoint.Type != canon.TypeDASH {
		return
	}

	seen := make(map[string]bool, len(m.state.periodsSeen))
	for _, id := range m.state.periodsSeen {
		seen[id] = true
	}

	for i, periodID := range view.PeriodList {
		if seen[periodID] {
			continue
		}
		// Closing the previous period: its accumulated segment duration
		// is now final. Warn on a suspiciously short period and hand the
		// duration to the ad-break tracker before resetting for the new
		// period, mirroring the original's lastperiodduration bookkeeping.
		if i > 0 || len(m.state.periodsSeen) > 0 {
			if m.state.currentPeriodDurationSec < 0.5 {
				m.Log.Warnf("period duration was %.3f seconds, which is less than 500ms", m.state.currentPeriodDurationSec)
			}
		}
		closingDurationSec := m.state.currentPeriodDurationSec
		m.state.currentPeriodDurationSec = 0

		if m.Cfg.EMT {
			m.applyEMTPeriodTransition(batch, periodID, closingDurationSec)
		} else {
			m.applySCTEPeriodTransition(batch, periodID, view, closingDurationSec)
		}
	}
	m.state.periodsSeen = view.PeriodList
}

func (m *Monitor) applySCTEPeriodTransition(batch *metrics.Batch, periodID string, view *canon.ManifestView, closingDurationSec float64) {
	var firstEvent *canon.SCTESegmentationEvent
	for i := range view.EventStream {
		if view.EventStream[i].PeriodID == periodID {
			firstEvent = &view.EventStream[i]
			break
		}
	}

	isAdBreakStart := firstEvent != nil && (firstEvent.OutOfNetwork || canon.AdBreakStartTypes[firstEvent.SegmentationTypeID])

	if isAdBreakStart {
		if m.state.ad.InBreak {
			m.Log.Warnf("nested ad break entry at period %s", periodID)
		}
		m.state.ad.InBreak = true
		m.state.ad.ActualDurationSec = 0
		m.state.ad.BreakStartMonotonic = time.Now()
		m.state.ad.TrackingConfirmed = false
		if firstEvent.SegmentationTimescale > 0 {
			m.state.ad.AdvertisedDurationSec = float64(firstEvent.SegmentationDuration) / float64(firstEvent.SegmentationTimescale)
		}
		batch.Observe(metrics.AdBreak, 1)
		batch.Observe(metrics.AdDurationAdvertised, m.state.ad.AdvertisedDurationSec)
		if name, ok := canon.SegmentationTypeName[firstEvent.SegmentationTypeID]; ok {
			m.Log.Infof("ad break entered at period %s: %s", periodID, name)
		}
		return
	}

	if m.state.ad.InBreak {
		m.state.ad.ActualDurationSec = closingDurationSec
		m.closeAdBreak(batch)
	}
}

func (m *Monitor) applyEMTPeriodTransition(batch *metrics.Batch, periodID string, closingDurationSec float64) {
	isAdPeriod := strings.Contains(periodID, "_")
	if isAdPeriod && !m.state.ad.InBreak {
		m.state.ad.InBreak = true
		m.state.ad.ActualDurationSec = 0
		m.state.ad.BreakStartMonotonic = time.Now()
		m.state.ad.TrackingConfirmed = false
		batch.Observe(metrics.AdBreak, 1)
	} else if !isAdPeriod && m.state.ad.InBreak {
		m.state.ad.ActualDurationSec = closingDurationSec
		m.closeAdBreak(batch)
	}
}
