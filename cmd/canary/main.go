// Command canary runs the streaming-media canary: it polls a list of
// HLS/DASH/Smooth Streaming manifest endpoints on a steady cadence and
// reports the defects a player would stumble over. See the "compare"
// subcommand for the one-shot manifest-diff debugging mode.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ericcug/streamcanary/internal/config"
	"github.com/ericcug/streamcanary/internal/fetch"
	"github.com/ericcug/streamcanary/internal/logger"
	"github.com/ericcug/streamcanary/internal/metrics"
	"github.com/ericcug/streamcanary/internal/monitor"
	"github.com/ericcug/streamcanary/internal/save"
	"github.com/ericcug/streamcanary/internal/status"
	"github.com/ericcug/streamcanary/internal/supervisor"
	"golang.org/x/sync/errgroup"
)

// flags mirrors spec.md §6's CLI surface. Every field has a pflag-bound
// default; a value loaded from --config is applied first and flags the
// user actually set override it, matching the teacher's config.LoadConfig
// precedence generalized to "file, then flags" per SPEC_FULL.md §6.
type flags struct {
	configFile    string
	endpointsFile string
	url           string
	trackingURL   string
	mode          string
	selector      string
	forceType     string

	frequencySec   float64
	staleSec       float64
	httpTimeoutSec float64

	saveManifests  bool
	saveSegments   bool
	saveTracking   bool
	saveRoot       string
	gzipOnSave     bool
	dayPartitioned bool

	metricsOn        bool
	metricsRegion    string
	metricsNamespace string
	dashboardsOn     bool

	logLevel     string
	stdoutMirror bool
	properties   []string
	labels       []string

	loadTest              bool
	emt                   bool
	adSegmentSubstring    string
	playheadAwareTracking bool
	checkTrackingEvents   bool

	segmentRequests string
	statusAddr      string
	restartBackoff  float64
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "canary",
		Short: "Streaming-media canary: poll HLS/DASH/Smooth manifests and flag defects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f)
		},
	}

	var pf *pflag.FlagSet = cmd.Flags()
	pf.StringVar(&f.configFile, "config", "", "optional YAML config file; flags override its values")
	pf.StringVar(&f.endpointsFile, "endpoints-file", "", "path to the comma-delimited endpoints file")
	pf.StringVar(&f.url, "url", "", "single manifest URL to monitor instead of an endpoints file")
	pf.StringVar(&f.trackingURL, "tracking-url", "", "tracking companion URL paired with --url")
	pf.StringVar(&f.mode, "mode", "single", "rendition selection mode: single, player, all")
	pf.StringVar(&f.selector, "selector", "v1", "rendition selector for single mode, e.g. v3, a1, s1")
	pf.StringVar(&f.forceType, "force-type", "", "force endpoint type instead of auto-detecting: hls, dash, smooth")

	pf.Float64Var(&f.frequencySec, "frequency", 6, "poll cadence in seconds (>= 0.5)")
	pf.Float64Var(&f.staleSec, "stale-timeout", 60, "seconds without a new segment before a rendition is flagged stale")
	pf.Float64Var(&f.httpTimeoutSec, "http-timeout", 10, "HTTP request timeout in seconds")
	pf.Float64Var(&f.restartBackoff, "restart-backoff", 5, "seconds to wait before restarting a failed endpoint's premonitor")

	pf.BoolVar(&f.saveManifests, "save-manifests", false, "persist fetched manifest bodies to disk")
	pf.BoolVar(&f.saveSegments, "save-segments", false, "persist fetched segment bodies to disk")
	pf.BoolVar(&f.saveTracking, "save-tracking", false, "persist fetched tracking responses to disk")
	pf.StringVar(&f.saveRoot, "save-root", "./canary-data", "root directory for saved bodies")
	pf.BoolVar(&f.gzipOnSave, "gzip-on-save", false, "gzip saved bodies")
	pf.BoolVar(&f.dayPartitioned, "day-partitioned", false, "partition saved bodies into YYYY-MM-DD subfolders")

	pf.BoolVar(&f.metricsOn, "metrics-on", false, "publish metrics via the Prometheus sink instead of discarding them")
	pf.StringVar(&f.metricsRegion, "metrics-region", "", "accepted for CLI compatibility; not attached to published metrics")
	pf.StringVar(&f.metricsNamespace, "metrics-namespace", "", "accepted for CLI compatibility; metrics always use the streamcanary namespace")
	pf.BoolVar(&f.dashboardsOn, "dashboards-on", false, "accepted for CLI compatibility; no dashboard renderer exists, so it has no effect")

	pf.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.BoolVar(&f.stdoutMirror, "stdout-mirror", true, "accepted for CLI compatibility; logs always go to stdout, so it has no effect")
	pf.StringSliceVar(&f.properties, "property", nil, "arbitrary key=value property tag, repeatable")
	pf.StringSliceVar(&f.labels, "label", nil, "arbitrary label tag, repeatable")

	pf.BoolVar(&f.loadTest, "load-test", false, "bypass parsing; just fetch and time the manifest (and tracking) URL")
	pf.BoolVar(&f.emt, "emt", false, "use discontinuity+URL-substring ad-break detection instead of SCTE-35")
	pf.StringVar(&f.adSegmentSubstring, "ad-segment-substring", "", "URL substring identifying an ad segment in EMT mode")
	pf.BoolVar(&f.playheadAwareTracking, "playhead-aware-tracking", false, "append aws.playheadPositionInSeconds to tracking requests")
	pf.BoolVar(&f.checkTrackingEvents, "check-tracking-events", false, "warn when a tracked ad is missing a required event")

	pf.StringVar(&f.segmentRequests, "segment-requests", "off", "segment request mode: off, head, get")
	pf.StringVar(&f.statusAddr, "status-addr", "", "address for the debug /healthz and /status HTTP surface, empty disables it")

	cmd.AddCommand(newCompareCmd())
	return cmd
}

// applyFileSettings fills in any flag the user did not explicitly pass
// with the corresponding value from the YAML config file, giving flags
// precedence over the file as SPEC_FULL.md §6 requires.
func applyFileSettings(cmd *cobra.Command, f *flags, fs *config.FileSettings) {
	set := func(name string) bool { return cmd.Flags().Changed(name) }

	if !set("endpoints-file") && fs.EndpointsFile != "" {
		f.endpointsFile = fs.EndpointsFile
	}
	if !set("url") && fs.URL != "" {
		f.url = fs.URL
	}
	if !set("tracking-url") && fs.TrackingURL != "" {
		f.trackingURL = fs.TrackingURL
	}
	if !set("mode") && fs.Mode != "" {
		f.mode = fs.Mode
	}
	if !set("selector") && fs.Selector != "" {
		f.selector = fs.Selector
	}
	if !set("force-type") && fs.ForceType != "" {
		f.forceType = fs.ForceType
	}
	if !set("frequency") && fs.FrequencySec != 0 {
		f.frequencySec = fs.FrequencySec
	}
	if !set("stale-timeout") && fs.StaleSec != 0 {
		f.staleSec = fs.StaleSec
	}
	if !set("http-timeout") && fs.HTTPTimeoutSec != 0 {
		f.httpTimeoutSec = fs.HTTPTimeoutSec
	}
	if !set("save-manifests") && fs.SaveManifests {
		f.saveManifests = true
	}
	if !set("save-segments") && fs.SaveSegments {
		f.saveSegments = true
	}
	if !set("save-tracking") && fs.SaveTracking {
		f.saveTracking = true
	}
	if !set("save-root") && fs.SaveRoot != "" {
		f.saveRoot = fs.SaveRoot
	}
	if !set("gzip-on-save") && fs.GzipOnSave {
		f.gzipOnSave = true
	}
	if !set("day-partitioned") && fs.DayPartitioned {
		f.dayPartitioned = true
	}
	if !set("metrics-on") && fs.MetricsOn {
		f.metricsOn = true
	}
	if !set("metrics-region") && fs.MetricsRegion != "" {
		f.metricsRegion = fs.MetricsRegion
	}
	if !set("metrics-namespace") && fs.MetricsNamespace != "" {
		f.metricsNamespace = fs.MetricsNamespace
	}
	if !set("dashboards-on") && fs.DashboardsOn {
		f.dashboardsOn = true
	}
	if !set("log-level") && fs.LogLevel != "" {
		f.logLevel = fs.LogLevel
	}
	if !set("property") && len(fs.Properties) > 0 {
		f.properties = fs.Properties
	}
	if !set("label") && len(fs.Labels) > 0 {
		f.labels = fs.Labels
	}
	if !set("load-test") && fs.LoadTest {
		f.loadTest = true
	}
	if !set("emt") && fs.EMT {
		f.emt = true
	}
	if !set("ad-segment-substring") && fs.AdSegmentSubstring != "" {
		f.adSegmentSubstring = fs.AdSegmentSubstring
	}
	if !set("playhead-aware-tracking") && fs.PlayheadAwareTracking {
		f.playheadAwareTracking = true
	}
	if !set("check-tracking-events") && fs.CheckTrackingEvents {
		f.checkTrackingEvents = true
	}
	if !set("segment-requests") && fs.SegmentRequests != "" {
		f.segmentRequests = fs.SegmentRequests
	}
	if !set("status-addr") && fs.StatusAddr != "" {
		f.statusAddr = fs.StatusAddr
	}
}

func run(cmd *cobra.Command, f *flags) error {
	fileSettings, err := config.LoadFileSettings(f.configFile)
	if err != nil {
		return err
	}
	applyFileSettings(cmd, f, fileSettings)

	// logger.New always writes to stdout; --stdout-mirror is accepted for
	// parity with spec.md §6's CLI surface but has nothing further to
	// toggle since this logger has no separate file/syslog destination.
	_ = f.stdoutMirror
	log := logger.New(f.logLevel, nil)
	log = log.With(append(append([]string{}, f.labels...), f.properties...)...)

	forceType, err := config.ParseEndpointType(f.forceType)
	if err != nil {
		return err
	}

	var endpoints []config.Endpoint
	switch {
	case f.url != "":
		endpoints = []config.Endpoint{{Name: f.url, ManifestURL: f.url, TrackingURL: f.trackingURL, Type: forceType}}
	case f.endpointsFile != "":
		endpoints, err = config.ReadEndpointsFile(f.endpointsFile, forceType)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("canary: one of --url or --endpoints-file is required")
	}

	selector, err := config.ParseSelector(f.mode, f.selector)
	if err != nil {
		return err
	}

	fetcher := fetch.New(time.Duration(f.httpTimeoutSec * float64(time.Second)))

	var sink metrics.Sink = metrics.NopSink{}
	if f.metricsOn {
		sink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
	}

	var saver save.Saver = save.NopSaver{}
	if f.saveManifests || f.saveSegments || f.saveTracking {
		saver = save.New(f.saveRoot, f.dayPartitioned, f.gzipOnSave)
	}

	healthReg := status.NewRegistry()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	if f.statusAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/", status.New(healthReg))
		if f.metricsOn {
			mux.Handle("/metrics", promhttp.Handler())
		}
		srv := &http.Server{Addr: f.statusAddr, Handler: mux}
		g.Go(func() error {
			log.Infof("status server listening on %s", f.statusAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	segReqs, err := parseSegmentRequestMode(f.segmentRequests)
	if err != nil {
		return err
	}

	if f.loadTest {
		for _, ep := range endpoints {
			ep := ep
			lt := &monitor.LoadTestMonitor{
				Name:        ep.Name,
				ManifestURL: ep.ManifestURL,
				TrackingURL: ep.TrackingURL,
				Fetcher:     fetcher,
				Sink:        sink,
				Frequency:   time.Duration(f.frequencySec * float64(time.Second)),
			}
			g.Go(func() error { return lt.Run(ctx) })
		}
		return g.Wait()
	}

	// FromPrimary is not set here: the supervisor derives it per endpoint
	// from discover's actual multivariant/plain classification of the
	// resolved manifest (see supervisor.resolve), not from --mode.
	monCfg := monitor.Config{
		Frequency:             time.Duration(f.frequencySec * float64(time.Second)),
		StaleTimeout:          time.Duration(f.staleSec * float64(time.Second)),
		SegmentRequests:       segReqs,
		EMT:                   f.emt,
		AdSegmentSubstring:    f.adSegmentSubstring,
		TrackingEnabled:       f.checkTrackingEvents || f.playheadAwareTracking || f.trackingURL != "",
		PlayheadAwareTracking: f.playheadAwareTracking,
		CheckTrackingEvents:   f.checkTrackingEvents,
		SaveManifests:         f.saveManifests,
		SaveSegments:          f.saveSegments,
		SaveTracking:          f.saveTracking,
	}

	specs := make([]supervisor.EndpointSpec, 0, len(endpoints))
	for _, ep := range endpoints {
		specs = append(specs, supervisor.EndpointSpec{
			Name:        ep.Name,
			ManifestURL: ep.ManifestURL,
			TrackingURL: ep.TrackingURL,
			Type:        ep.Type,
		})
	}

	sup := &supervisor.Supervisor{
		Fetcher: fetcher,
		Sink:    sink,
		Saver:   saver,
		Health:  healthReg,
		Log:     log,
		Cfg: supervisor.Config{
			Selector:       selector,
			Monitor:        monCfg,
			RestartBackoff: time.Duration(f.restartBackoff * float64(time.Second)),
		},
	}

	g.Go(func() error { return sup.Run(ctx, specs) })
	return g.Wait()
}

func parseSegmentRequestMode(s string) (monitor.SegmentRequestMode, error) {
	switch s {
	case "", "off":
		return monitor.SegmentRequestsOff, nil
	case "head":
		return monitor.SegmentRequestsHead, nil
	case "get":
		return monitor.SegmentRequestsGet, nil
	default:
		return "", fmt.Errorf("canary: unknown --segment-requests %q", s)
	}
}
