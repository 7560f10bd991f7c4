package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/ericcug/streamcanary/internal/canon"
	"github.com/ericcug/streamcanary/internal/canonerr"
	"github.com/ericcug/streamcanary/internal/correlate"
	"github.com/ericcug/streamcanary/internal/fetch"
	"github.com/ericcug/streamcanary/internal/logger"
	"github.com/ericcug/streamcanary/internal/manifest"
	"github.com/ericcug/streamcanary/internal/metrics"
	"github.com/ericcug/streamcanary/internal/probe"
	"github.com/ericcug/streamcanary/internal/save"
	"github.com/ericcug/streamcanary/internal/status"
)

// Config is everything §6's CLI surface contributes to one Monitor.
type Config struct {
	Frequency             time.Duration
	StaleTimeout          time.Duration
	SegmentRequests       SegmentRequestMode
	InitialBufferSec      float64
	FromPrimary           bool
	EMT                   bool
	AdSegmentSubstring    string
	TrackingURL           string
	TrackingEnabled       bool
	PlayheadAwareTracking bool
	CheckTrackingEvents   bool
	SaveManifests         bool
	SaveSegments          bool
	SaveTracking          bool
}

// Monitor runs the per-rendition polling loop described in §4.5.
type Monitor struct {
	Rendition canon.Rendition
	Parser    manifest.Parser
	Fetcher   *fetch.Fetcher
	Sink      metrics.Sink
	Log       logger.Logger
	Cfg       Config
	Correlator *correlate.Bucket
	Saver      save.Saver
	PTSBucket  *PTSBucket
	SmoothSync *smoothSyncState
	Health     *status.Registry

	state   renditionState
	trackHTTP *trackingClient
}

// New constructs a Monitor seeded from a Prober result.
func New(r canon.Rendition, parser manifest.Parser, fetcher *fetch.Fetcher, sink metrics.Sink, log logger.Logger, cfg Config, seed probe.Result) *Monitor {
	m := &Monitor{
		Rendition: r,
		Parser:    parser,
		Fetcher:   fetcher,
		Sink:      sink,
		Log:       log.With("rendition", r.Name()),
		Cfg:       cfg,
	}
	m.state.anchor = seed.Anchor
	m.state.haveAnchor = true
	m.state.session.StartMonotonic = time.Now()
	m.state.session.ContentDurationSec = seed.ContentDuration
	m.state.session.NextStaleMonotonic = time.Now().Add(cfg.StaleTimeout)
	if cfg.TrackingEnabled && cfg.TrackingURL != "" {
		m.trackHTTP = newTrackingClient(fetcher, cfg.TrackingURL, cfg)
	}
	return m
}

// StaleExit is returned by Run to tell the supervisor this Monitor
// exited because of the primary-spawned staleness recovery path (§4.5
// step 10), as opposed to context cancellation.
type StaleExit struct{ Rendition string }

func (e *StaleExit) Error() string { return fmt.Sprintf("rendition %s stale, terminating for re-resolution", e.Rendition) }

// Run executes the tick loop until ctx is cancelled or a primary-spawned
// stale exit occurs.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.Cfg.Frequency)
	defer ticker.Stop()

	prevTickStart := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		tickStart := time.Now()
		overrun := tickStart.Sub(prevTickStart) - m.Cfg.Frequency
		if overrun > time.Second {
			m.Log.Warnf("poll overrun by %v", overrun)
		}
		prevTickStart = tickStart

		if err := m.tick(ctx); err != nil {
			if _, ok := err.(*StaleExit); ok {
				return err
			}
			m.Log.Warnf("tick error: %v", err)
		}
	}
}

// tick implements the eleven steps of §4.5. Steps 6 and 8-10 (PDT drift,
// content shortage, input buffer, staleness) run regardless of whether
// step 2's fetch or step 3's parse succeeded, matching the original's
// premonitor loop (canarymonitor.py ~line 1608), which runs those checks
// unconditionally whether or not a response body was available that
// tick. The parse-dependent steps (3-5, the tracking poll, and step 7's
// header-change check) are skipped on a fetch or parse failure.
func (m *Monitor) tick(ctx context.Context) error {
	batch := metrics.NewBatch(metrics.Dimensions{Endpoint: m.Rendition.Name(), Type: string(m.Rendition.Endpoint.Type)})

	// Step 2: fetch.
	res := m.Fetcher.Fetch(ctx, m.Rendition.Endpoint.ManifestURL, fetch.MethodGET, fetch.CategoryManifest, true)
	batch.Scalar(metrics.ManifestResponseTime, res.LatencyMS)

	foundLast := true
	var newSegs []canon.SegmentRecord
	var lastErr string

	switch {
	case res.Err != nil:
		m.recordFetchError(batch, "manifest", res.Err)
		lastErr = res.Err.Error()
	case res.Response == nil:
		// HEAD-shaped fetch with no body; nothing to parse this tick.
	default:
		batch.Scalar(metrics.ManifestSize, float64(len(res.Response.Body)))
		if m.Cfg.SaveManifests && m.Saver != nil {
			_ = m.Saver.SaveManifest(m.Rendition, time.Now(), res.Response.Body)
		}

		// Step 3: parse.
		view, perr := m.Parser.Parse(res.Response.Body, m.Rendition.Endpoint.ManifestURL)
		if perr != nil {
			m.Log.Warnf("parse error: %v", perr)
			lastErr = perr.Error()
		} else {
			var manifestDuration float64
			for _, seg := range view.Segments {
				manifestDuration += seg.DurationSec
			}
			batch.Scalar(metrics.ManifestDuration, manifestDuration)

			// Steps 4-5: anchor scan / diff.
			foundLast, newSegs = m.anchorScan(view)
			if !foundLast {
				m.Log.Warnf("last segment not found; previous anchor seq=%+v", m.state.anchor.Seq)
			}

			m.processPeriods(batch, view)

			prevSeg := m.state.anchor
			havePrev := m.state.haveAnchor
			for _, seg := range newSegs {
				var prevPtr *canon.SegmentRecord
				if havePrev {
					prevPtr = &prevSeg
				}
				m.processNewSegment(ctx, batch, seg, prevPtr)
				prevSeg = seg
				havePrev = true
			}

			if m.Cfg.TrackingEnabled && m.trackHTTP != nil {
				m.pollTracking(ctx, batch)
			}

			// Step 7: header change detection.
			m.checkHeaderChange(view)

			if foundLast && len(newSegs) > 0 {
				m.state.anchor = newSegs[len(newSegs)-1]
				m.state.haveAnchor = true
			}
			m.state.lastHeader = view.Header
		}
	}

	// Step 6: PDT drift.
	m.checkPDTDrift(batch)

	// Step 8: content shortage.
	var newContentSum float64
	for _, seg := range newSegs {
		newContentSum += seg.DurationSec
	}
	m.checkContentShortage(batch, newContentSum)

	// Step 9: input buffer / session.
	m.updateInputBuffer(batch, len(newSegs) > 0)

	// Step 10: staleness.
	if len(newSegs) > 0 {
		m.state.session.NextStaleMonotonic = time.Now().Add(m.Cfg.StaleTimeout)
	}
	stale := time.Now().After(m.state.session.NextStaleMonotonic)
	if stale {
		batch.Scalar(metrics.Stale, 1)
		m.Log.Warnf("rendition stale: no new segment for at least %v", m.Cfg.StaleTimeout)
	} else {
		batch.Scalar(metrics.Stale, 0)
	}

	// Step 11: publish.
	m.publishAndFinish(batch)

	if m.Health != nil {
		m.Health.Update(status.RenditionHealth{
			Endpoint:     m.Rendition.Endpoint.Name,
			Rendition:    m.Rendition.Name(),
			Stale:        stale,
			LastAnchorAt: m.state.anchor.PDT,
			LastError:    lastErr,
		})
	}

	if stale && m.Cfg.FromPrimary {
		return &StaleExit{Rendition: m.Rendition.Name()}
	}
	return nil
}

func buildPeriodOrder(periods []string) map[string]int {
	if len(periods) == 0 {
		return nil
	}
	order := make(map[string]int, len(periods))
	for i, id := range periods {
		order[id] = i
	}
	return order
}

// anchorScan implements §4.5 step 4: discard segments behind the anchor,
// confirm the anchor segment itself via compare_last_segment, and return
// every strictly-newer segment in order.
func (m *Monitor) anchorScan(view *canon.ManifestView) (foundLast bool, newSegs []canon.SegmentRecord) {
	if !m.state.haveAnchor {
		return true, view.Segments
	}

	periodOrder := buildPeriodOrder(view.PeriodList)
	for _, seg := range view.Segments {
		switch {
		case seg.Seq.Equal(m.state.anchor.Seq):
			foundLast = true
			m.compareLastSegment(m.state.anchor, seg)
		case m.state.anchor.Seq.Less(seg.Seq, periodOrder):
			newSegs = append(newSegs, seg)
		}
	}
	return foundLast, newSegs
}

// compareLastSegment warns on differences in non-ignored fields between
// the previously recorded anchor and the same seq observed again. pdt is
// ignored when interpolated, and pdt_explicit itself is ignored, per
// §4.5 step 4.
func (m *Monitor) compareLastSegment(prev, cur canon.SegmentRecord) {
	if prev.DurationSec != cur.DurationSec {
		m.Log.Warnf("last segment duration changed: %.3f -> %.3f", prev.DurationSec, cur.DurationSec)
	}
	if prev.DiscontinuityFlag != cur.DiscontinuityFlag {
		m.Log.Warnf("last segment discontinuity flag changed: %v -> %v", prev.DiscontinuityFlag, cur.DiscontinuityFlag)
	}
	if prev.URL != cur.URL {
		m.Log.Warnf("last segment URL changed: %s -> %s", prev.URL, cur.URL)
	}
	if prev.PDTExplicit && cur.PDTExplicit && !prev.PDT.Equal(cur.PDT) {
		m.Log.Warnf("last segment PDT changed: %s -> %s", prev.PDT, cur.PDT)
	}
}

func (m *Monitor) processNewSegment(ctx context.Context, batch *metrics.Batch, seg canon.SegmentRecord, prevSeg *canon.SegmentRecord) {
	m.state.session.ContentDurationSec += seg.DurationSec
	batch.Observe(metrics.SegmentDuration, seg.DurationSec)

	if m.Cfg.SegmentRequests != SegmentRequestsOff {
		method := fetch.MethodHEAD
		if m.Cfg.SegmentRequests == SegmentRequestsGet {
			method = fetch.MethodGET
		}
		res := m.Fetcher.Fetch(ctx, seg.URL, method, fetch.CategorySegment, false)
		batch.Observe(metrics.SegmentResponseTime, res.LatencyMS)
		if res.Response != nil {
			batch.Observe(metrics.SegmentSize, float64(len(res.Response.Body)))
		}
		if res.Err != nil {
			m.recordFetchError(batch, "segment", res.Err)
		}
	}

	switch {
	case m.Rendition.Endpoint.Type == canon.TypeHLS && seg.DiscontinuityFlag:
		batch.Observe(metrics.Discontinuity, 1)
	case m.Rendition.Endpoint.Type == canon.TypeDASH && prevSeg != nil:
		samePeriod := prevSeg.FormatSpecific.PeriodID == seg.FormatSpecific.PeriodID
		if samePeriod && seg.Seq.Number != prevSeg.Seq.Number+1 {
			batch.Observe(metrics.Discontinuity, 1)
		}
	}

	m.applyAdBreakTransition(batch, seg)

	if m.Rendition.Endpoint.Type == canon.TypeDASH {
		m.state.currentPeriodDurationSec += seg.DurationSec
		m.recordPTS(seg)
	}

	if m.Rendition.Endpoint.Type == canon.TypeSmooth && m.SmoothSync != nil && seg.FormatSpecific.Timescale > 0 {
		m.SmoothSync.Update(m.Rendition.Role, float64(seg.Seq.StartTime)/float64(seg.FormatSpecific.Timescale))
	}

	if m.Correlator != nil {
		m.Correlator.Contribute(seg.Seq, correlate.Entry{
			Seq:              seg.Seq,
			Role:             m.Rendition.Role,
			Duration:         seg.DurationSec,
			Discontinuity:    seg.DiscontinuityFlag,
			DiscontinuitySeq: seg.DiscontinuitySeq,
			PDT:              seg.PDT,
			PDTExplicit:      seg.PDTExplicit,
		})
	}

	if seg.PDTExplicit {
		m.state.pdt = pdtAnchor{PDT: seg.PDT, CumulativeSec: 0, Valid: true}
	} else if m.state.pdt.Valid {
		m.state.pdt.CumulativeSec += seg.DurationSec
	}
}

func (m *Monitor) recordFetchError(batch *metrics.Batch, category string, err error) {
	switch canonerr.KindOf(err) {
	case canonerr.KindHTTP4xx:
		batch.Scalar(metrics.ErrorCounterName(category, "4xx"), 1)
	case canonerr.KindHTTP5xx:
		batch.Scalar(metrics.ErrorCounterName(category, "5xx"), 1)
	case canonerr.KindTransport:
		batch.Scalar(metrics.ErrorCounterName(category, "timeouterror"), 1)
	}
}

// checkPDTDrift implements §4.5 step 6.
func (m *Monitor) checkPDTDrift(batch *metrics.Batch) {
	if !m.state.pdt.Valid {
		return
	}
	delta := m.state.pdt.PDT.Sub(time.Now()).Seconds() + m.state.pdt.CumulativeSec
	batch.Scalar(metrics.PDTDelta, delta)

	targetDuration := m.state.lastHeader.TargetDurationSec
	if targetDuration > 0 {
		if delta > 2*targetDuration {
			m.Log.Warnf("PDT jumped forward by %.3fs, more than 2x target duration", delta)
		} else if delta < 0 {
			m.Log.Warnf("PDT jumped backward by %.3fs", delta)
		}
	}
}

// checkHeaderChange implements §4.5 step 7.
func (m *Monitor) checkHeaderChange(view *canon.ManifestView) {
	prev := m.state.lastHeader
	if prev.TargetDurationSec != 0 && prev.TargetDurationSec != view.Header.TargetDurationSec {
		m.Log.Warnf("target duration changed: %.3f -> %.3f", prev.TargetDurationSec, view.Header.TargetDurationSec)
	}
	if prev.Version != 0 && prev.Version != view.Header.Version {
		m.Log.Warnf("version changed: %d -> %d", prev.Version, view.Header.Version)
	}
	if !prev.AvailabilityStart.IsZero() && !prev.AvailabilityStart.Equal(view.Header.AvailabilityStart) {
		m.Log.Warnf("availability start time changed: %s -> %s", prev.AvailabilityStart, view.Header.AvailabilityStart)
	}
}

// checkContentShortage implements §4.5 step 8.
func (m *Monitor) checkContentShortage(batch *metrics.Batch, newContentSum float64) {
	m.state.contentWindow.push(newContentSum)
	if m.state.contentWindow.filled < 10 {
		return
	}
	values := m.state.contentWindow.ordered()
	allPositive := true
	for _, v := range values[:8] {
		if v <= 0 {
			allPositive = false
			break
		}
	}
	tail := values[8] + values[9]
	threshold := 0.25 * 2 * m.Cfg.Frequency.Seconds()
	if allPositive && tail < threshold {
		batch.Scalar(metrics.ContentShortage, 1)
		m.Log.Warnf("content shortage: last two polls summed %.3fs of new content (ring=%v)", tail, values)
	} else {
		batch.Scalar(metrics.ContentShortage, 0)
	}
}

// updateInputBuffer implements §4.5 step 9 / invariant 5.
func (m *Monitor) updateInputBuffer(batch *metrics.Batch, sawNewSegment bool) {
	elapsed := time.Since(m.state.session.StartMonotonic).Seconds()
	inputBuffer := m.Cfg.InitialBufferSec - elapsed + m.state.session.ContentDurationSec
	batch.Scalar(metrics.InputBufferSize, inputBuffer)

	if inputBuffer < 0 && sawNewSegment {
		m.Log.Warnf("input buffer exhausted (%.3fs); restarting session accounting", inputBuffer)
		m.state.session.StartMonotonic = time.Now()
		m.state.session.ContentDurationSec = 0
	}
}

func (m *Monitor) publishAndFinish(batch *metrics.Batch) {
	if err := m.Sink.Publish(batch); err != nil {
		m.Log.Warnf("metrics publish failed: %v", err)
	}
}
