package monitor

import (
	"context"
	"time"

	"github.com/ericcug/streamcanary/internal/fetch"
	"github.com/ericcug/streamcanary/internal/metrics"
)

// LoadTestMonitor implements §4.5.4: bypass all parsing/state, fire a
// manifest fetch and optional tracking fetch per tick, record latency,
// sleep. Kept as a separate type rather than a Monitor flag since it
// shares almost none of Monitor's diff/state machinery.
type LoadTestMonitor struct {
	Name        string
	ManifestURL string
	TrackingURL string
	Fetcher     *fetch.Fetcher
	Sink        metrics.Sink
	Frequency   time.Duration
}

// Run ticks until ctx is cancelled.
func (l *LoadTestMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.Frequency)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		l.tick(ctx)
	}
}

func (l *LoadTestMonitor) tick(ctx context.Context) {
	batch := metrics.NewBatch(metrics.Dimensions{Endpoint: l.Name, Type: "loadtest"})

	res := l.Fetcher.Fetch(ctx, l.ManifestURL, fetch.MethodGET, fetch.CategoryManifest, true)
	batch.Scalar(metrics.ManifestResponseTime, res.LatencyMS)
	if res.Response != nil {
		batch.Scalar(metrics.ManifestSize, float64(len(res.Response.Body)))
	}

	if l.TrackingURL != "" {
		tres := l.Fetcher.Fetch(ctx, l.TrackingURL, fetch.MethodGET, fetch.CategoryTracking, false)
		batch.Scalar(metrics.TrackingResponseTime, tres.LatencyMS)
	}

	_ = l.Sink.Publish(batch)
}
