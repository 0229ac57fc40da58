// Package metrics provides Prometheus metrics for the ingestion pipeline.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values for DocumentsFetchedTotal and DocumentsParsedTotal.
const (
	StatusFetched   = "fetched"
	StatusUnchanged = "unchanged"
	StatusParsed    = "parsed"
	StatusFailed    = "failed"
)

// Label values for VersionsWrittenTotal.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
)

// Metrics holds all Prometheus metrics for the pipeline
type Metrics struct {
	// Event stream metrics
	EventsPublishedTotal      *prometheus.CounterVec
	EventPublishFailuresTotal *prometheus.CounterVec

	// Pipeline stage metrics
	DocumentsDiscoveredTotal prometheus.Counter
	DocumentsFetchedTotal    *prometheus.CounterVec
	DocumentsParsedTotal     *prometheus.CounterVec
	VersionsWrittenTotal     *prometheus.CounterVec
	PipelineFailuresTotal    *prometheus.CounterVec
	ProcessingDuration       *prometheus.HistogramVec
	ActiveDocumentProcessing *prometheus.GaugeVec

	// Database metrics
	DbQueriesTotal  *prometheus.CounterVec
	DbQueryDuration *prometheus.HistogramVec

	// Process metrics
	UptimeSeconds prometheus.Gauge
	StartTime     time.Time
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide metrics instance. Collectors register
// against the default Prometheus registry, so only one instance can exist.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = newMetrics()
	})
	return defaultMetrics
}

// newMetrics creates and registers all Prometheus metrics
func newMetrics() *Metrics {
	m := &Metrics{
		StartTime: time.Now(),
	}

	// Event stream metrics
	m.EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtstream_events_published_total",
			Help: "Total number of events published to the stream",
		},
		[]string{"subject"},
	)

	m.EventPublishFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtstream_event_publish_failures_total",
			Help: "Total number of failed event publishes",
		},
		[]string{"subject"},
	)

	// Pipeline stage metrics
	m.DocumentsDiscoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courtstream_documents_discovered_total",
			Help: "Total number of documents announced for fetching",
		},
	)

	m.DocumentsFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtstream_documents_fetched_total",
			Help: "Total number of fetch attempts by outcome",
		},
		[]string{"status"},
	)

	m.DocumentsParsedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtstream_documents_parsed_total",
			Help: "Total number of parse attempts by outcome",
		},
		[]string{"status"},
	)

	m.VersionsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtstream_versions_written_total",
			Help: "Total number of version writes by outcome",
		},
		[]string{"outcome"},
	)

	m.PipelineFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtstream_pipeline_failures_total",
			Help: "Total number of recorded pipeline failures",
		},
		[]string{"stage", "error_kind"},
	)

	m.ProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courtstream_document_processing_duration_seconds",
			Help:    "Duration of document processing by pipeline stage",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	m.ActiveDocumentProcessing = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "courtstream_active_document_processing",
			Help: "Number of documents currently being processed by stage",
		},
		[]string{"stage"},
	)

	// Database metrics
	m.DbQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtstream_db_queries_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "status"},
	)

	m.DbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courtstream_db_query_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	// Process metrics
	m.UptimeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courtstream_uptime_seconds",
			Help: "Process uptime in seconds",
		},
	)

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime periodically updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.UptimeSeconds.Set(time.Since(m.StartTime).Seconds())
	}
}

// RecordPublish records a successful event publish
func (m *Metrics) RecordPublish(subject string) {
	m.EventsPublishedTotal.WithLabelValues(subject).Inc()
}

// RecordPublishFailure records a failed event publish
func (m *Metrics) RecordPublishFailure(subject string) {
	m.EventPublishFailuresTotal.WithLabelValues(subject).Inc()
}

// RecordDiscovered records a document announced for fetching
func (m *Metrics) RecordDiscovered() {
	m.DocumentsDiscoveredTotal.Inc()
}

// RecordFetch records a fetch attempt with its outcome
func (m *Metrics) RecordFetch(status string, duration time.Duration) {
	m.DocumentsFetchedTotal.WithLabelValues(status).Inc()
	m.ProcessingDuration.WithLabelValues("fetch").Observe(duration.Seconds())
}

// RecordParse records a parse attempt with its outcome
func (m *Metrics) RecordParse(status string, duration time.Duration) {
	m.DocumentsParsedTotal.WithLabelValues(status).Inc()
	m.ProcessingDuration.WithLabelValues("parse").Observe(duration.Seconds())
}

// RecordWrite records a version write with its outcome
func (m *Metrics) RecordWrite(outcome string, duration time.Duration) {
	m.VersionsWrittenTotal.WithLabelValues(outcome).Inc()
	m.ProcessingDuration.WithLabelValues("write").Observe(duration.Seconds())
}

// RecordFailure records a pipeline failure by stage and error kind
func (m *Metrics) RecordFailure(stage, errorKind string) {
	m.PipelineFailuresTotal.WithLabelValues(stage, errorKind).Inc()
}

// RecordDbQuery records a database operation
func (m *Metrics) RecordDbQuery(operation, status string, duration time.Duration) {
	m.DbQueriesTotal.WithLabelValues(operation, status).Inc()
	m.DbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// TrackActive marks a document as in-flight for a stage and returns the
// function that releases it.
func (m *Metrics) TrackActive(stage string) func() {
	gauge := m.ActiveDocumentProcessing.WithLabelValues(stage)
	gauge.Inc()
	return gauge.Dec
}
