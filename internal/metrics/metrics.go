// Package metrics contains Prometheus metrics of the recording pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "avrecorder"

// track kinds.
const (
	TrackVideo = "video"
	TrackAudio = "audio"
)

// Metrics holds the recording metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// registry to register metrics on. If nil, a new registry is created.
	Registry *prometheus.Registry

	samplesWritten *prometheus.CounterVec
	samplesDropped *prometheus.CounterVec
	bytesWritten   *prometheus.CounterVec
	sessions       *prometheus.CounterVec
	encodersActive prometheus.Gauge
}

// Initialize initializes Metrics.
func (m *Metrics) Initialize() {
	if m.Registry == nil {
		m.Registry = prometheus.NewRegistry()
	}

	f := promauto.With(m.Registry)

	m.samplesWritten = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_written_total",
			Help:      "Samples forwarded to the container",
		},
		[]string{"track"},
	)
	m.samplesDropped = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_dropped_total",
			Help:      "Samples discarded because the container was not writable",
		},
		[]string{"track"},
	)
	m.bytesWritten = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Sample payload bytes forwarded to the container",
		},
		[]string{"track"},
	)
	m.sessions = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Recording sessions by outcome",
		},
		[]string{"outcome"},
	)
	m.encodersActive = f.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "encoders_active",
			Help:      "Encoders whose worker is running",
		},
	)
}

// Handler returns a HTTP handler that serves the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// SampleWritten records a forwarded sample.
func (m *Metrics) SampleWritten(track string, size int) {
	if m == nil {
		return
	}
	m.samplesWritten.WithLabelValues(track).Inc()
	m.bytesWritten.WithLabelValues(track).Add(float64(size))
}

// SampleDropped records a discarded sample.
func (m *Metrics) SampleDropped(track string) {
	if m == nil {
		return
	}
	m.samplesDropped.WithLabelValues(track).Inc()
}

// SessionEnded records the outcome of a recording session.
func (m *Metrics) SessionEnded(outcome string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(outcome).Inc()
}

// EncoderStarted records an encoder worker start.
func (m *Metrics) EncoderStarted() {
	if m == nil {
		return
	}
	m.encodersActive.Inc()
}

// EncoderStopped records an encoder worker exit.
func (m *Metrics) EncoderStopped() {
	if m == nil {
		return
	}
	m.encodersActive.Dec()
}
