// Package supervisor implements the Endpoint Supervisor (C8): one
// goroutine per configured endpoint that resolves the endpoint's top-level
// manifest into a set of Renditions, spawns a Monitor per rendition, and
// restarts the whole endpoint with backoff if every Monitor exits.
// Adapted from the teacher's internal/session.SessionManager
// (map-of-sessions-with-mutex) fused with internal/dash.Downloader's
// worker-pool shape, generalized from "one session per channel ID,
// lazily created on first request" to "one premonitor per configured
// endpoint, eagerly created at startup and kept alive for the process
// lifetime."
package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ericcug/streamcanary/internal/canon"
	"github.com/ericcug/streamcanary/internal/discover"
	"github.com/ericcug/streamcanary/internal/fetch"
	"github.com/ericcug/streamcanary/internal/logger"
	"github.com/ericcug/streamcanary/internal/manifest"
	"github.com/ericcug/streamcanary/internal/manifest/dash"
	"github.com/ericcug/streamcanary/internal/manifest/hls"
	"github.com/ericcug/streamcanary/internal/manifest/smooth"
	"github.com/ericcug/streamcanary/internal/metrics"
	"github.com/ericcug/streamcanary/internal/monitor"
	"github.com/ericcug/streamcanary/internal/probe"
	"github.com/ericcug/streamcanary/internal/save"
	"github.com/ericcug/streamcanary/internal/status"
)

// EndpointSpec is one configured polling target, as read from the
// endpoints file or CLI flags.
type EndpointSpec struct {
	Name        string
	ManifestURL string
	TrackingURL string
	Type        canon.EndpointType // empty means auto-detect
}

// Config carries the process-wide settings every premonitor needs,
// forwarded into each spawned Monitor's monitor.Config.
type Config struct {
	Selector       canon.Selector
	Monitor        monitor.Config
	RestartBackoff time.Duration
	CorrelationMax int // §4.6 "unexpectedly long" bound for correlate.Bucket
}

// Supervisor owns every configured endpoint's premonitor goroutine.
type Supervisor struct {
	Fetcher *fetch.Fetcher
	Sink    metrics.Sink
	Saver   save.Saver
	Health  *status.Registry
	Log     logger.Logger
	Cfg     Config
}

// Run starts one premonitor per endpoint and blocks until ctx is
// cancelled and every premonitor has returned; it always returns nil. Individual
// endpoint failures are retried with backoff rather than propagated, so
// one misbehaving endpoint never brings down the others; errgroup is
// used purely for the fan-out/fan-in/cancellation-propagation shape.
func (s *Supervisor) Run(ctx context.Context, endpoints []EndpointSpec) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, ep := range endpoints {
		ep := ep
		g.Go(func() error {
			s.runEndpointWithBackoff(ctx, ep)
			return nil
		})
	}
	return g.Wait()
}

// runEndpointWithBackoff keeps re-resolving and re-running an endpoint's
// Renditions until ctx is cancelled, pausing Cfg.RestartBackoff between
// attempts so a endpoint stuck in a resolve-fail loop doesn't spin.
func (s *Supervisor) runEndpointWithBackoff(ctx context.Context, ep EndpointSpec) {
	log := s.Log.With("endpoint", ep.Name)
	for {
		if ctx.Err() != nil {
			return
		}
		runID := uuid.New().String()
		runLog := log.With("run_id", runID)
		if err := s.runEndpoint(ctx, ep, runLog); err != nil {
			runLog.Warnf("premonitor exited: %v", err)
		}
		if ctx.Err() != nil {
			return
		}
		runLog.Infof("restarting endpoint premonitor in %v", s.Cfg.RestartBackoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.Cfg.RestartBackoff):
		}
	}
}

// runEndpoint resolves ep's renditions once and runs a Monitor per
// rendition until every Monitor exits, then returns so the caller can
// decide whether to restart.
func (s *Supervisor) runEndpoint(ctx context.Context, ep EndpointSpec, log logger.Logger) error {
	renditions, parsers, fromPrimary, err := s.resolve(ctx, ep, log)
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}
	if len(renditions) == 0 {
		return fmt.Errorf("no renditions selected")
	}

	resolvedType := renditions[0].Endpoint.Type

	egCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, egCtx := errgroup.WithContext(egCtx)

	var correlator *correlatorHandle
	var ptsBucket *monitor.PTSBucket
	var smoothSync *monitor.SmoothSyncState
	if s.Cfg.Selector.Mode != canon.SelectSingle && len(renditions) > 1 {
		correlator = newCorrelatorHandle(log, renditions, s.Cfg, cancel)
		defer correlator.Stop()
		if resolvedType == canon.TypeDASH {
			ptsBucket = monitor.NewPTSBucket(log, countDASHMembers(renditions))
		}
		if resolvedType == canon.TypeSmooth {
			smoothSync = monitor.NewSmoothSyncState(log)
		}
	}

	for i, r := range renditions {
		r := r
		parser := parsers[i]

		seedBody, seedErr := s.fetchOne(egCtx, r.Endpoint.ManifestURL)
		if seedErr != nil {
			log.Warnf("seed fetch failed for %s: %v", r.Name(), seedErr)
			continue
		}
		view, perr := parser.Parse(seedBody, r.Endpoint.ManifestURL)
		if perr != nil {
			log.Warnf("seed parse failed for %s: %v", r.Name(), perr)
			continue
		}
		seed, perr := probe.Probe(view)
		if perr != nil {
			log.Warnf("probe failed for %s: %v", r.Name(), perr)
			continue
		}
		for _, w := range seed.Warnings {
			log.Warnf("%s: %s", r.Name(), w)
		}

		monCfg := s.Cfg.Monitor
		monCfg.TrackingURL = ep.TrackingURL
		monCfg.TrackingEnabled = monCfg.TrackingEnabled && ep.TrackingURL != ""
		monCfg.FromPrimary = fromPrimary
		m := monitor.New(r, parser, s.Fetcher, s.Sink, log, monCfg, seed)
		m.Saver = s.Saver
		m.Health = s.Health
		if correlator != nil {
			m.Correlator = correlator.bucket
		}
		if ptsBucket != nil && r.Role == canon.RoleVideo {
			m.PTSBucket = ptsBucket
		}
		if smoothSync != nil {
			m.SmoothSync = smoothSync
		}

		g.Go(func() error {
			return m.Run(egCtx)
		})
	}

	return g.Wait()
}

// resolve fetches ep's top-level manifest, auto-detects its format if
// ep.Type is unset, enumerates candidate renditions, narrows them per the
// supervisor's Selector, and builds one canon.Rendition and
// manifest.Parser pair per selected candidate. The returned bool reports
// whether the renditions were selected out of a primary/multivariant
// manifest (per the original's premonitor fromprimary logic: always true
// for DASH and Smooth, and true for HLS unless the top-level manifest was
// itself a plain media playlist monitored directly).
func (s *Supervisor) resolve(ctx context.Context, ep EndpointSpec, log logger.Logger) ([]canon.Rendition, []manifest.Parser, bool, error) {
	body, err := s.fetchOne(ctx, ep.ManifestURL)
	if err != nil {
		return nil, nil, false, fmt.Errorf("fetch top manifest: %w", err)
	}

	epType := ep.Type
	if epType == "" {
		epType = detectType(ep.ManifestURL, body)
	}
	baseEndpoint := canon.Endpoint{Name: ep.Name, ManifestURL: ep.ManifestURL, TrackingURL: ep.TrackingURL, Type: epType}

	switch epType {
	case canon.TypeHLS:
		return s.resolveHLS(ep, baseEndpoint, body, log)
	case canon.TypeDASH:
		cands, err := discover.FromDASH(body)
		if err != nil {
			return nil, nil, false, err
		}
		renditions, parsers, err := s.build(baseEndpoint, ep, cands, func(c discover.Candidate) manifest.Parser {
			return dash.Parser{RepresentationID: c.Anchor.RepresentationID}
		}, ep.ManifestURL)
		return renditions, parsers, true, err
	case canon.TypeSmooth:
		cands, err := discover.FromSmooth(body)
		if err != nil {
			return nil, nil, false, err
		}
		renditions, parsers, err := s.build(baseEndpoint, ep, cands, func(c discover.Candidate) manifest.Parser {
			return smooth.Parser{Role: c.Role}
		}, ep.ManifestURL)
		return renditions, parsers, true, err
	default:
		return nil, nil, false, fmt.Errorf("unrecognized manifest type for %s", ep.ManifestURL)
	}
}

// resolveHLS handles both shapes a configured HLS endpoint may be: a
// multivariant (primary) playlist that fans out into child media
// playlists, or a media playlist monitored directly as a single
// rendition. Only the former is fromPrimary=true; a directly-monitored
// media playlist has no primary manifest to re-resolve against on
// staleness.
func (s *Supervisor) resolveHLS(ep EndpointSpec, baseEndpoint canon.Endpoint, body []byte, log logger.Logger) ([]canon.Rendition, []manifest.Parser, bool, error) {
	view, err := hls.Parser{}.Parse(body, ep.ManifestURL)
	if err != nil {
		return nil, nil, false, err
	}
	if !view.IsPrimary {
		r := canon.Rendition{Endpoint: baseEndpoint, Role: canon.RoleVideo, Ordinal: 1}
		return []canon.Rendition{r}, []manifest.Parser{hls.Parser{}}, false, nil
	}

	cands, err := discover.FromHLS(body, ep.ManifestURL)
	if err != nil {
		return nil, nil, false, err
	}
	renditions, parsers, err := s.build(baseEndpoint, ep, cands, func(discover.Candidate) manifest.Parser {
		return hls.Parser{}
	}, "")
	return renditions, parsers, true, err
}

// build narrows cands per the Selector and, for each survivor, constructs
// a Rendition whose Endpoint.ManifestURL points at the right manifest: the
// candidate's own URL for HLS child playlists (sharedURL empty means
// "use the candidate's Anchor.URL"), or the shared top-level manifest URL
// for DASH/Smooth where every representation lives in one document.
func (s *Supervisor) build(baseEndpoint canon.Endpoint, ep EndpointSpec, cands []discover.Candidate, parserFor func(discover.Candidate) manifest.Parser, sharedURL string) ([]canon.Rendition, []manifest.Parser, error) {
	selected, err := discover.Select(cands, s.Cfg.Selector)
	if err != nil {
		return nil, nil, err
	}

	renditions := make([]canon.Rendition, 0, len(selected))
	parsers := make([]manifest.Parser, 0, len(selected))
	for _, c := range selected {
		childEndpoint := baseEndpoint
		if sharedURL == "" {
			childEndpoint.ManifestURL = c.Anchor.URL
		} else {
			childEndpoint.ManifestURL = sharedURL
		}
		renditions = append(renditions, canon.Rendition{
			Endpoint: childEndpoint,
			Role:     c.Role,
			Ordinal:  c.Ordinal,
			Anchor:   c.Anchor,
		})
		parsers = append(parsers, parserFor(c))
	}
	return renditions, parsers, nil
}

func (s *Supervisor) fetchOne(ctx context.Context, url string) ([]byte, error) {
	res := s.Fetcher.Fetch(ctx, url, fetch.MethodGET, fetch.CategoryManifest, true)
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Response == nil {
		return nil, fmt.Errorf("empty response from %s", url)
	}
	return res.Response.Body, nil
}

// detectType sniffs the manifest format from the URL suffix first (per
// spec.md §6's endpoints-file convention), falling back to content
// sniffing for URLs with no recognizable extension.
func detectType(url string, body []byte) canon.EndpointType {
	switch {
	case hasSuffix(url, ".m3u8"):
		return canon.TypeHLS
	case hasSuffix(url, ".mpd"):
		return canon.TypeDASH
	case hasSuffix(url, ".ism/manifest") || hasSuffix(url, ".ism/Manifest"):
		return canon.TypeSmooth
	}
	switch {
	case bytes.Contains(body, []byte("#EXTM3U")):
		return canon.TypeHLS
	case bytes.Contains(body, []byte("<MPD")):
		return canon.TypeDASH
	case bytes.Contains(body, []byte("<SmoothStreamingMedia")):
		return canon.TypeSmooth
	}
	return ""
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func countDASHMembers(renditions []canon.Rendition) int {
	n := 0
	for _, r := range renditions {
		if r.Role == canon.RoleVideo {
			n++
		}
	}
	if n == 0 {
		return len(renditions)
	}
	return n
}
