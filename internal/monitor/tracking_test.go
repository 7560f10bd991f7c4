package monitor

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericcug/streamcanary/internal/canon"
	"github.com/ericcug/streamcanary/internal/fetch"
	"github.com/ericcug/streamcanary/internal/metrics"
)

func newPollTestMonitor(srvURL string, cfg Config) *Monitor {
	m := newTestMonitor(canon.TypeHLS)
	m.Fetcher = fetch.New(2 * time.Second)
	m.Cfg = cfg
	m.state.session.StartMonotonic = time.Now().Add(-5 * time.Second)
	m.state.ad.InBreak = true
	m.trackHTTP = newTrackingClient(m.Fetcher, srvURL, cfg)
	return m
}

func TestPollTrackingConfirmsAvailWithinPlayhead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"avails":[{"availId":"a1","startTimeInSeconds":0,"durationInSeconds":30,"ads":[{"adId":"ad1","trackingEvents":[{"eventType":"impression"},{"eventType":"start"},{"eventType":"firstQuartile"},{"eventType":"midpoint"},{"eventType":"thirdQuartile"},{"eventType":"complete"}]}]}]}`))
	}))
	defer srv.Close()

	cfg := Config{Frequency: time.Second, CheckTrackingEvents: true}
	m := newPollTestMonitor(srv.URL, cfg)

	batch := metrics.NewBatch(metrics.Dimensions{})
	m.pollTracking(nil, batch)

	assert.True(t, m.state.ad.TrackingConfirmed)
	require.Len(t, batch.Hist[metrics.AdAvailNum], 1)
	assert.Equal(t, 1.0, batch.Hist[metrics.AdAvailNum][0])
}

func TestPollTrackingSkipsWhenNotInBreak(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"avails":[]}`))
	}))
	defer srv.Close()

	cfg := Config{Frequency: time.Second}
	m := newPollTestMonitor(srv.URL, cfg)
	m.state.ad.InBreak = false

	batch := metrics.NewBatch(metrics.Dimensions{})
	m.pollTracking(nil, batch)

	assert.False(t, m.state.ad.TrackingConfirmed)
	assert.Empty(t, batch.Hist[metrics.AdAvailNum])
}

func TestPollTrackingSkipsWhenAlreadyConfirmed(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Write([]byte(`{"avails":[{"availId":"a1","startTimeInSeconds":0,"durationInSeconds":30,"ads":[]}]}`))
	}))
	defer srv.Close()

	cfg := Config{Frequency: time.Second}
	m := newPollTestMonitor(srv.URL, cfg)
	m.state.ad.TrackingConfirmed = true

	batch := metrics.NewBatch(metrics.Dimensions{})
	m.pollTracking(nil, batch)

	assert.True(t, called, "tracking endpoint should still be polled for latency metrics")
	assert.Empty(t, batch.Hist[metrics.AdAvailNum])
}

func TestPollTrackingNoop(t *testing.T) {
	m := newTestMonitor(canon.TypeHLS)
	batch := metrics.NewBatch(metrics.Dimensions{})
	m.pollTracking(nil, batch)
}
