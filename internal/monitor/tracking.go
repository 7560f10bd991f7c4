package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/ericcug/streamcanary/internal/fetch"
	"github.com/ericcug/streamcanary/internal/metrics"
)

// trackingEvent is one entry in an ad's trackingEvents array.
type trackingEvent struct {
	EventType string `json:"eventType"`
}

// trackingAd is one ad within an avail.
type trackingAd struct {
	AdID           string          `json:"adId"`
	DurationInSecs float64         `json:"durationInSeconds"`
	CreativeID     string          `json:"creativeId"`
	AdTitle        string          `json:"adTitle"`
	TrackingEvents []trackingEvent `json:"trackingEvents"`
}

// trackingAvail is one avail window in the tracking companion's response.
type trackingAvail struct {
	AvailID        string       `json:"availId"`
	StartTimeSecs  float64      `json:"startTimeInSeconds"`
	DurationInSecs float64      `json:"durationInSeconds"`
	Ads            []trackingAd `json:"ads"`
}

type trackingResponse struct {
	Avails []trackingAvail `json:"avails"`
}

// requiredTrackingEvents is the minimum set §4.5.3 requires each ad to
// report.
var requiredTrackingEvents = []string{"impression", "start", "firstQuartile", "midpoint", "thirdQuartile", "complete"}

// trackingClient implements the tracking companion.
type trackingClient struct {
	fetcher *fetch.Fetcher
	url     string
	cfg     Config
}

func newTrackingClient(fetcher *fetch.Fetcher, url string, cfg Config) *trackingClient {
	return &trackingClient{fetcher: fetcher, url: url, cfg: cfg}
}

// poll issues the tracking GET and, while in a break not yet confirmed,
// looks for a matching avail and validates its tracking events.
func (m *Monitor) pollTracking(ctx context.Context, batch *metrics.Batch) {
	if m.trackHTTP == nil {
		return
	}
	m.trackHTTP.poll(m, batch)
}

func (t *trackingClient) poll(m *Monitor, batch *metrics.Batch) {
	url := t.url
	if t.cfg.PlayheadAwareTracking {
		playhead := time.Since(m.state.session.StartMonotonic).Seconds()
		url = fmt.Sprintf("%s?aws.playheadPositionInSeconds=%d", url, int(math.Round(playhead)))
	}

	res := t.fetcher.Fetch(context.Background(), url, fetch.MethodGET, fetch.CategoryTracking, false)
	batch.Scalar(metrics.TrackingResponseTime, res.LatencyMS)
	if res.Err != nil {
		m.recordFetchError(batch, "tracking", res.Err)
		return
	}
	if res.Response == nil {
		return
	}

	var parsed trackingResponse
	if err := json.Unmarshal(res.Response.Body, &parsed); err != nil {
		m.Log.Warnf("tracking response parse error: %v", err)
		return
	}

	if !m.state.ad.InBreak || m.state.ad.TrackingConfirmed {
		return
	}

	playhead := time.Since(m.state.session.StartMonotonic).Seconds()
	for _, avail := range parsed.Avails {
		if playhead < avail.StartTimeSecs || playhead > avail.StartTimeSecs+avail.DurationInSecs {
			continue
		}
		m.state.ad.TrackingConfirmed = true
		m.Log.Infof("tracking confirmed: avail=%s ads=%d", avail.AvailID, len(avail.Ads))

		threshold := 3 * t.cfg.Frequency.Seconds()
		if math.Abs(playhead-avail.StartTimeSecs) > threshold {
			m.Log.Warnf("tracking drift: playhead %.3fs vs avail start %.3fs exceeds %.3fs", playhead, avail.StartTimeSecs, threshold)
		}
		if time.Since(m.state.ad.BreakStartMonotonic).Seconds() > threshold {
			m.Log.Warnf("tracking drift: break start time exceeds %.3fs threshold", threshold)
		}

		if t.cfg.CheckTrackingEvents {
			for _, ad := range avail.Ads {
				seen := map[string]bool{}
				for _, ev := range ad.TrackingEvents {
					seen[ev.EventType] = true
				}
				var missing []string
				for _, req := range requiredTrackingEvents {
					if !seen[req] {
						missing = append(missing, req)
					}
				}
				if len(missing) > 0 {
					m.Log.Warnf("ad %s missing tracking events: %v", ad.AdID, missing)
				}
			}
		}
		batch.Observe(metrics.AdAvailNum, float64(len(avail.Ads)))
		return
	}
}
