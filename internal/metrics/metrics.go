// Package metrics provides Prometheus metrics for the worker.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "scribe"

// Metrics holds all Prometheus instruments for the worker.
type Metrics struct {
	JobsStarted prometheus.Counter
	JobsFailed  prometheus.Counter
	JobsActive  prometheus.Gauge

	TracksActive prometheus.Gauge

	VendorEvents          *prometheus.CounterVec
	TranscriptsForwarded  *prometheus.CounterVec
	TranscriptsSuppressed *prometheus.CounterVec

	PublishErrors  prometheus.Counter
	StreamErrors   prometheus.Counter
	AudioBytesSent prometheus.Counter

	EventLatency prometheus.Histogram
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide metrics registered on the default
// Prometheus registry, for serving via promhttp.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New creates all instruments on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_started_total",
			Help:      "Total number of meeting jobs started",
		}),
		JobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_failed_total",
			Help:      "Total number of meeting jobs that ended in error",
		}),
		JobsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_active",
			Help:      "Number of meeting jobs currently running",
		}),
		TracksActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracks_active",
			Help:      "Number of audio tracks currently being transcribed",
		}),
		VendorEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vendor_events_total",
			Help:      "Transcript events received from the vendor",
		}, []string{"finality"}),
		TranscriptsForwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_forwarded_total",
			Help:      "Transcript events forwarded to the platform",
		}, []string{"finality"}),
		TranscriptsSuppressed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_suppressed_total",
			Help:      "Transcript events dropped before publishing",
		}, []string{"reason"}),
		PublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failures publishing transcript updates to the platform",
		}),
		StreamErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_errors_total",
			Help:      "Vendor stream failures",
		}),
		AudioBytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_sent_total",
			Help:      "PCM bytes sent to the vendor",
		}),
		EventLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_handling_seconds",
			Help:      "Time to normalize, filter, and publish one vendor event",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

func finality(final bool) string {
	if final {
		return "final"
	}
	return "interim"
}

// RecordJobStart records a meeting job starting.
func (m *Metrics) RecordJobStart() {
	m.JobsStarted.Inc()
	m.JobsActive.Inc()
}

// RecordJobEnd records a meeting job ending.
func (m *Metrics) RecordJobEnd(failed bool) {
	m.JobsActive.Dec()
	if failed {
		m.JobsFailed.Inc()
	}
}

// RecordTrackStart records an audio track entering transcription.
func (m *Metrics) RecordTrackStart() {
	m.TracksActive.Inc()
}

// RecordTrackEnd records an audio track leaving transcription.
func (m *Metrics) RecordTrackEnd() {
	m.TracksActive.Dec()
}

// RecordVendorEvent records one transcript event arriving from the vendor.
func (m *Metrics) RecordVendorEvent(final bool) {
	m.VendorEvents.WithLabelValues(finality(final)).Inc()
}

// RecordForwarded records an event that passed the filter and was published.
func (m *Metrics) RecordForwarded(final bool) {
	m.TranscriptsForwarded.WithLabelValues(finality(final)).Inc()
}

// RecordSuppressed records an event dropped before publishing.
func (m *Metrics) RecordSuppressed(reason string) {
	m.TranscriptsSuppressed.WithLabelValues(reason).Inc()
}

// RecordPublishError records a failed platform publish.
func (m *Metrics) RecordPublishError() {
	m.PublishErrors.Inc()
}

// RecordStreamError records a vendor stream failure.
func (m *Metrics) RecordStreamError() {
	m.StreamErrors.Inc()
}

// RecordAudioSent records PCM bytes shipped to the vendor.
func (m *Metrics) RecordAudioSent(bytes int) {
	m.AudioBytesSent.Add(float64(bytes))
}

// ObserveEventLatency records end-to-end handling time for one event.
func (m *Metrics) ObserveEventLatency(seconds float64) {
	m.EventLatency.Observe(seconds)
}
