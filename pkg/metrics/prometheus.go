// Package metrics provides Prometheus metrics for the AI review pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Consumer
	eventsConsumed  *prometheus.CounterVec
	eventLatency    *prometheus.HistogramVec
	redeliveries    prometheus.Counter
	deadLettered    *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
	inFlight        prometheus.Gauge
	workerCount     prometheus.Gauge

	// Fit reviews
	reviewsCreated *prometheus.CounterVec
	reviewsFailed  *prometheus.CounterVec
	fitScore       prometheus.Histogram

	// Résumé extraction
	extractions *prometheus.CounterVec

	// Dependencies
	aiRequests        *prometheus.CounterVec
	aiLatency         *prometheus.HistogramVec
	aiRetries         *prometheus.CounterVec
	aiBreakerState    *prometheus.GaugeVec
	enrichmentCalls   *prometheus.CounterVec
	enrichmentLatency prometheus.Histogram
	storeLatency      *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewMetricsManager(WithPrometheusRegistry(customRegistry))
}

// Configure rebuilds the global collectors on a fresh registry. It must run
// at startup, before metrics are recorded or GetRegistry is served.
func Configure(opts ...Option) {
	registry := prometheus.NewRegistry()
	globalManager = NewMetricsManager(append(opts, WithPrometheusRegistry(registry))...)
	customRegistry = registry
}

// NewMetricsManager creates a metrics manager and registers its collectors.
func NewMetricsManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "aireview",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix != "" {
		return m.metricPrefix + "_" + n
	}
	return n
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.customLabels)
	latencyBuckets := []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000}

	m.eventsConsumed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("events_consumed_total"),
		Help: "Inbound events by type and disposition", ConstLabels: labels,
	}, []string{"event_type", "disposition"})
	m.eventLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("event_handling_milliseconds"),
		Help: "Time spent handling one inbound event", Buckets: latencyBuckets, ConstLabels: labels,
	}, []string{"event_type"})
	m.redeliveries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("redeliveries_total"),
		Help: "Deliveries received with the redelivered flag", ConstLabels: labels,
	})
	m.deadLettered = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("dead_lettered_total"),
		Help: "Messages routed to the dead-letter queue", ConstLabels: labels,
	}, []string{"reason"})
	m.eventsPublished = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("events_published_total"),
		Help: "Lifecycle events published by routing key and outcome", ConstLabels: labels,
	}, []string{"routing_key", "outcome"})
	m.inFlight = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("in_flight_deliveries"),
		Help: "Deliveries currently being handled", ConstLabels: labels,
	})
	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("worker_count"),
		Help: "Configured delivery handlers", ConstLabels: labels,
	})

	m.reviewsCreated = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("reviews_created_total"),
		Help: "Fit reviews persisted by recommendation", ConstLabels: labels,
	}, []string{"recommendation"})
	m.reviewsFailed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("reviews_failed_total"),
		Help: "Fit reviews that failed by stage", ConstLabels: labels,
	}, []string{"stage"})
	m.fitScore = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("fit_score"),
		Help: "Distribution of persisted fit scores", Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}, ConstLabels: labels,
	})

	m.extractions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("resume_extractions_total"),
		Help: "Résumé extraction attempts by outcome", ConstLabels: labels,
	}, []string{"outcome"})

	m.aiRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("ai_requests_total"),
		Help: "AI provider calls", ConstLabels: labels,
	}, []string{"provider", "operation", "outcome"})
	m.aiLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("ai_request_milliseconds"),
		Help: "AI provider call latency", Buckets: latencyBuckets, ConstLabels: labels,
	}, []string{"provider", "operation"})
	m.aiRetries = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("ai_retries_total"),
		Help: "AI provider call retries", ConstLabels: labels,
	}, []string{"provider", "operation"})
	m.aiBreakerState = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("ai_breaker_state"),
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)", ConstLabels: labels,
	}, []string{"name"})
	m.enrichmentCalls = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("enrichment_calls_total"),
		Help: "Upstream enrichment outcomes", ConstLabels: labels,
	}, []string{"outcome"})
	m.enrichmentLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("enrichment_milliseconds"),
		Help: "Upstream enrichment latency", Buckets: latencyBuckets, ConstLabels: labels,
	})
	m.storeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("store_operation_milliseconds"),
		Help: "Database operation latency", Buckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}, ConstLabels: labels,
	}, []string{"operation"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("http_requests_total"),
		Help: "Ops HTTP requests", ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("http_request_duration_milliseconds"),
		Help: "Ops HTTP request duration", Buckets: m.histogramBuckets, ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("errors_by_component_total"),
		Help: "Errors by component and type", ConstLabels: labels,
	}, []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("system_memory_usage_bytes"),
		Help: "Allocated heap bytes", ConstLabels: labels,
	})
	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("system_goroutine_count"),
		Help: "Number of goroutines", ConstLabels: labels,
	})
	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("system_gc_pause_time_milliseconds"),
		Help: "Average GC pause", Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100}, ConstLabels: labels,
	})
}

// RecordEventConsumed counts an inbound event by its final disposition.
func RecordEventConsumed(eventType, disposition string) {
	globalManager.eventsConsumed.WithLabelValues(eventType, disposition).Inc()
}

// RecordEventLatency records how long one event took to handle.
func RecordEventLatency(eventType string, latencyMs float64) {
	globalManager.eventLatency.WithLabelValues(eventType).Observe(latencyMs)
}

// RecordRedelivery counts a broker redelivery.
func RecordRedelivery() {
	globalManager.redeliveries.Inc()
}

// RecordDeadLettered counts a message moved to the dead-letter queue.
func RecordDeadLettered(reason string) {
	globalManager.deadLettered.WithLabelValues(reason).Inc()
}

// RecordPublish counts a lifecycle publish attempt.
func RecordPublish(routingKey, outcome string) {
	globalManager.eventsPublished.WithLabelValues(routingKey, outcome).Inc()
}

// IncInFlight marks a delivery as started.
func IncInFlight() { globalManager.inFlight.Inc() }

// DecInFlight marks a delivery as finished.
func DecInFlight() { globalManager.inFlight.Dec() }

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordReviewCreated counts a persisted review and observes its score.
func RecordReviewCreated(recommendation string, score int) {
	globalManager.reviewsCreated.WithLabelValues(recommendation).Inc()
	globalManager.fitScore.Observe(float64(score))
}

// RecordReviewFailed counts a failed review by pipeline stage.
func RecordReviewFailed(stage string) {
	globalManager.reviewsFailed.WithLabelValues(stage).Inc()
}

// RecordExtraction counts a résumé extraction outcome.
func RecordExtraction(outcome string) {
	globalManager.extractions.WithLabelValues(outcome).Inc()
}

// RecordAIRequest counts an AI call and observes its latency.
func RecordAIRequest(provider, operation, outcome string, latencyMs float64) {
	globalManager.aiRequests.WithLabelValues(provider, operation, outcome).Inc()
	globalManager.aiLatency.WithLabelValues(provider, operation).Observe(latencyMs)
}

// RecordAIRetry counts an AI call retry.
func RecordAIRetry(provider, operation string) {
	globalManager.aiRetries.WithLabelValues(provider, operation).Inc()
}

// UpdateAIBreakerState sets the numeric breaker state.
func UpdateAIBreakerState(name string, state float64) {
	globalManager.aiBreakerState.WithLabelValues(name).Set(state)
}

// RecordEnrichment counts an enrichment outcome and observes its latency.
func RecordEnrichment(outcome string, latencyMs float64) {
	globalManager.enrichmentCalls.WithLabelValues(outcome).Inc()
	globalManager.enrichmentLatency.Observe(latencyMs)
}

// RecordStoreLatency observes one database operation.
func RecordStoreLatency(operation string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent counts an error attributed to a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the allocated heap size.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime observes the average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
