package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericcug/streamcanary/internal/metrics"
)

func TestBatchScalarAndObserve(t *testing.T) {
	b := metrics.NewBatch(metrics.Dimensions{Endpoint: "ep1", Type: "hls"})
	b.Scalar(metrics.ManifestSize, 1024)
	b.Observe(metrics.SegmentSize, 100)
	b.Observe(metrics.SegmentSize, 200)

	assert.Equal(t, 1024.0, b.Scalars[metrics.ManifestSize])
	assert.Equal(t, []float64{100, 200}, b.Hist[metrics.SegmentSize])
}

func TestPrometheusSinkPublishScalarAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := metrics.NewPrometheusSink(reg)

	b := metrics.NewBatch(metrics.Dimensions{Endpoint: "ep1", Type: "hls"})
	b.Scalar(metrics.ManifestSize, 2048)
	b.Observe(metrics.SegmentSize, 500)

	require.NoError(t, sink.Publish(b))

	families, err := reg.Gather()
	require.NoError(t, err)

	found := map[string]bool{}
	for _, fam := range families {
		found[fam.GetName()] = true
		if fam.GetName() == "streamcanary_manifestsize" {
			require.Len(t, fam.Metric, 1)
			assert.Equal(t, 2048.0, fam.Metric[0].GetGauge().GetValue())
		}
		if fam.GetName() == "streamcanary_segmentsize" {
			require.Len(t, fam.Metric, 1)
			assert.Equal(t, uint64(1), fam.Metric[0].GetHistogram().GetSampleCount())
		}
	}
	assert.True(t, found["streamcanary_manifestsize"])
	assert.True(t, found["streamcanary_segmentsize"])
}

func TestPrometheusSinkDynamicErrorCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := metrics.NewPrometheusSink(reg)

	b := metrics.NewBatch(metrics.Dimensions{Endpoint: "ep1", Type: "hls"})
	b.Scalar(metrics.ErrorCounterName("manifest", "4xx"), 1)
	require.NoError(t, sink.Publish(b))

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, fam := range families {
		if fam.GetName() == "streamcanary_manifest4xx" {
			found = true
			require.Len(t, fam.Metric, 1)
			assert.Equal(t, 1.0, fam.Metric[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found)
}

func TestNopSinkAlwaysSucceeds(t *testing.T) {
	var s metrics.Sink = metrics.NopSink{}
	assert.NoError(t, s.Publish(metrics.NewBatch(metrics.Dimensions{})))
}
