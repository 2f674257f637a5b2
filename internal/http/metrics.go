package http

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics implements core.Metrics on a private prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	GenerationsTotal   prometheus.Counter
	GenerationDuration prometheus.Histogram
	QueueEntries       *prometheus.GaugeVec
	QueueLength        prometheus.Gauge
	ResolvesTotal      *prometheus.CounterVec
	RecoveriesTotal    *prometheus.CounterVec
	PlaybackFailures   *prometheus.CounterVec
	RequestsTotal      *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors, plus the Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		GenerationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scqueue_generations_total",
				Help: "Total number of generated queues",
			},
		),
		GenerationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scqueue_generation_duration_seconds",
				Help:    "Time spent fetching collections and generating a queue",
				Buckets: prometheus.DefBuckets,
			},
		),
		QueueEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "scqueue_queue_entries",
				Help: "Entries of the last generated queue by source",
			},
			[]string{"source"},
		),
		QueueLength: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "scqueue_queue_length",
				Help: "Current number of entries in the queue",
			},
		),
		ResolvesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scqueue_stream_resolves_total",
				Help: "Stream URL resolutions by outcome",
			},
			[]string{"status"},
		),
		RecoveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scqueue_stream_recoveries_total",
				Help: "Stream recovery attempts by outcome",
			},
			[]string{"outcome"},
		),
		PlaybackFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scqueue_playback_failures_total",
				Help: "Terminal playback failures by error kind",
			},
			[]string{"kind"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scqueue_api_requests_total",
				Help: "API requests by route and status code",
			},
			[]string{"route", "code"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.GenerationsTotal,
		m.GenerationDuration,
		m.QueueEntries,
		m.QueueLength,
		m.ResolvesTotal,
		m.RecoveriesTotal,
		m.PlaybackFailures,
		m.RequestsTotal,
	)

	return m
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordGeneration(likes, feed int, duration time.Duration) {
	m.GenerationsTotal.Inc()
	m.GenerationDuration.Observe(duration.Seconds())
	m.QueueEntries.WithLabelValues("likes").Set(float64(likes))
	m.QueueEntries.WithLabelValues("feed").Set(float64(feed))
}

func (m *Metrics) RecordResolve(status string) {
	m.ResolvesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordRecovery(outcome string) {
	m.RecoveriesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordPlaybackFailure(kind string) {
	m.PlaybackFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetQueueLength(n int) {
	m.QueueLength.Set(float64(n))
}

func (m *Metrics) recordRequest(route string, code int) {
	m.RequestsTotal.WithLabelValues(route, statusLabel(code)).Inc()
}
