// Package metrics implements the Metrics Aggregator (C7): a typed enum of
// metric names with scalar/histogram variants, batch-published once per
// poll through a narrow Sink interface. The default Sink wraps
// github.com/prometheus/client_golang, dimensioned by {Endpoint, Type} per
// the design document, the same way Dash-Industry-Forum-livesim2 and
// randomizedcoder-go-ffmpeg-hls-swarm export metrics from a media poller.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Name is a stable metric identifier.
type Name string

// Scalar metrics: one value per poll.
const (
	ManifestResponseTime Name = "manifestresponsetime"
	ManifestSize         Name = "manifestsize"
	ManifestDuration     Name = "manifestduration"
	PDTDelta             Name = "pdtdelta"
	TrackingResponseTime Name = "trackingresponsetime"
	InputBufferSize      Name = "inputbuffersize"
	Stale                Name = "stale"
	ContentShortage      Name = "contentshortage"
)

// Histogram metrics: zero or more values per poll.
const (
	SegmentResponseTime Name = "segmentresponsetime"
	SegmentSize         Name = "segmentsize"
	SegmentDuration     Name = "segmentduration"
	Discontinuity       Name = "discontinuity"
	AdBreak             Name = "adbreak"
	AdDurationAdvertised Name = "addurationadvertised"
	AdDurationActual    Name = "addurationactual"
	AdDurationDelta     Name = "addurationdelta"
	AdAvailNum          Name = "adavailnum"
	PTSDelta            Name = "ptsdelta"
)

// ErrorCounterName builds the per-category, per-class error counter name,
// e.g. "manifest4xx", "segmenttimeouterror".
func ErrorCounterName(category, class string) Name {
	return Name(category + class)
}

// Dimensions identifies a metric's {Endpoint, Type} tag pair.
type Dimensions struct {
	Endpoint string
	Type     string
}

// Batch is one poll's worth of metric values, keyed by name. Scalars
// hold one value per name; histograms hold a list of samples per name.
type Batch struct {
	Dims    Dimensions
	Scalars map[Name]float64
	Hist    map[Name][]float64
}

// NewBatch returns an empty Batch for the given dimensions.
func NewBatch(dims Dimensions) *Batch {
	return &Batch{Dims: dims, Scalars: map[Name]float64{}, Hist: map[Name][]float64{}}
}

// Scalar records a single-value metric for this tick.
func (b *Batch) Scalar(name Name, v float64) { b.Scalars[name] = v }

// Observe appends a histogram sample for this tick.
func (b *Batch) Observe(name Name, v float64) { b.Hist[name] = append(b.Hist[name], v) }

// Sink is the narrow external-collaborator interface the design document
// treats as a remote time-series backend. Publish is given one batch per
// Monitor tick and must not block past its own timeout.
type Sink interface {
	Publish(batch *Batch) error
}

// PrometheusSink implements Sink against an in-process Prometheus
// registry, scraped by an operator's existing collector the way
// ManuGH-xg2g and livesim2 expose their media-adjacent metrics.
type PrometheusSink struct {
	gauges map[Name]*prometheus.GaugeVec
	hists  map[Name]*prometheus.HistogramVec
	reg    prometheus.Registerer
}

const metricNamespace = "streamcanary"

var scalarNames = []Name{
	ManifestResponseTime, ManifestSize, ManifestDuration, PDTDelta,
	TrackingResponseTime, InputBufferSize, Stale, ContentShortage,
}

var histogramNames = []Name{
	SegmentResponseTime, SegmentSize, SegmentDuration, Discontinuity,
	AdBreak, AdDurationAdvertised, AdDurationActual, AdDurationDelta,
	AdAvailNum, PTSDelta,
}

// NewPrometheusSink registers every metric from §4.7 against reg (pass
// prometheus.DefaultRegisterer for the process-global registry).
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		gauges: make(map[Name]*prometheus.GaugeVec, len(scalarNames)),
		hists:  make(map[Name]*prometheus.HistogramVec, len(histogramNames)),
		reg:    reg,
	}
	for _, n := range scalarNames {
		gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      string(n),
		}, []string{"endpoint", "type"})
		reg.MustRegister(gv)
		s.gauges[n] = gv
	}
	for _, n := range histogramNames {
		hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricNamespace,
			Name:      string(n),
		}, []string{"endpoint", "type"})
		reg.MustRegister(hv)
		s.hists[n] = hv
	}
	return s
}

// errorCounter lazily registers per-category/class counters, since the
// set of <cat><class> names is open-ended (manifest4xx, segment5xx,
// tracking timeouterror, ...) rather than fixed like the rest of §4.7.
func (s *PrometheusSink) errorCounter(name Name) *prometheus.GaugeVec {
	if gv, ok := s.gauges[name]; ok {
		return gv
	}
	gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricNamespace,
		Name:      string(name),
	}, []string{"endpoint", "type"})
	s.reg.MustRegister(gv)
	s.gauges[name] = gv
	return gv
}

// Publish pushes one batch's scalars and histogram observations into the
// registered collectors.
func (s *PrometheusSink) Publish(batch *Batch) error {
	labels := prometheus.Labels{"endpoint": batch.Dims.Endpoint, "type": batch.Dims.Type}
	for name, v := range batch.Scalars {
		gv, ok := s.gauges[name]
		if !ok {
			gv = s.errorCounter(name)
		}
		gv.With(labels).Set(v)
	}
	for name, values := range batch.Hist {
		hv, ok := s.hists[name]
		if !ok {
			gv := s.errorCounter(name)
			gv.With(labels).Set(float64(len(values)))
			continue
		}
		for _, v := range values {
			hv.With(labels).Observe(v)
		}
	}
	return nil
}

// NopSink discards every batch; used when metrics are disabled.
type NopSink struct{}

func (NopSink) Publish(*Batch) error { return nil }
