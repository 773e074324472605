package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultRefreshInterval = 10 * time.Second

// Manager owns every Prometheus collector the service exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Leaderboard
	companiesTotal     prometheus.Gauge
	mutations          *prometheus.CounterVec
	reads              *prometheus.CounterVec
	leaderboardErrors  *prometheus.CounterVec
	ticksProcessed     prometheus.Counter
	ticksDuplicate     prometheus.Counter
	ticksRejected      prometheus.Counter
	kafkaMessages      *prometheus.CounterVec
	seedRecordsLoaded  prometheus.Counter
	seedRecordsSkipped prometheus.Counter

	// Store
	storeLatency      *prometheus.HistogramVec
	storeErrors       *prometheus.CounterVec
	journalFlushes    prometheus.Counter
	journalFlushDur   prometheus.Histogram
	journalLastFlush  prometheus.Gauge
	journalFlushBatch prometheus.Histogram

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec
	errorsByType        *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "capboard",
		subsystem:        "leaderboard",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

// RefreshInterval is how often gauge updaters should run.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

// Enabled reports whether recording is active.
func (m *Manager) Enabled() bool { return m.enabled }

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.customLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.customLabels, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.companiesTotal = m.gauge("companies_total", "Number of companies currently ranked")
	m.mutations = m.counterVec("mutations_total", "Leaderboard mutations by operation", "op")
	m.reads = m.counterVec("reads_total", "Leaderboard reads by mode", "mode")
	m.leaderboardErrors = m.counterVec("errors_total", "Leaderboard operation failures by operation and kind", "op", "kind")
	m.ticksProcessed = m.counter("ticks_processed_total", "Market-cap ticks applied to the leaderboard")
	m.ticksDuplicate = m.counter("ticks_duplicate_total", "Ticks dropped because their id was already seen")
	m.ticksRejected = m.counter("ticks_rejected_total", "Ticks that could not be applied")
	m.kafkaMessages = m.counterVec("kafka_messages_total", "Kafka messages consumed by outcome", "outcome")
	m.seedRecordsLoaded = m.counter("seed_records_loaded_total", "Seed records inserted at startup")
	m.seedRecordsSkipped = m.counter("seed_records_skipped_total", "Seed records rejected at startup")

	m.storeLatency = m.histogramVec("store_operation_duration_milliseconds", "Store operation latency", "backend", "op")
	m.storeErrors = m.counterVec("store_errors_total", "Store operation failures", "backend", "op")
	m.journalFlushes = m.counter("journal_flush_total", "Completed journal flushes")
	m.journalFlushDur = m.histogram("journal_flush_duration_milliseconds", "Journal flush duration",
		[]float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
	m.journalLastFlush = m.gauge("journal_last_flush_unix", "Unix time of the last journal flush")
	m.journalFlushBatch = m.histogram("journal_flush_batch_size", "Records written per journal flush",
		prometheus.ExponentialBuckets(1, 4, 8))

	m.queueSize = m.gauge("queue_size", "Ticks waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue fill ratio between 0 and 1")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Ticks enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Ticks dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Enqueue attempts rejected")

	m.workerCount = m.gauge("worker_count", "Running tick workers")
	m.workerMessagesPerSecond = m.gauge("worker_messages_per_second", "Average ticks processed per second")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Time to apply one tick", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Ticks a worker failed to apply")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", "endpoint", "method", "status_code")
	m.errorsByEndpoint = m.counterVec("http_errors_total", "HTTP error responses by endpoint", "endpoint", "method", "error_type")
	m.errorsByType = m.counterVec("http_errors_by_type_total", "HTTP error responses by type and severity", "error_type", "severity")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap memory in use")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
}

// Refresh returns the global manager's gauge refresh interval.
func Refresh() time.Duration { return globalManager.refreshInterval }

func on() bool { return globalManager.enabled }

// UpdateCompaniesTotal sets the ranked company count.
func UpdateCompaniesTotal(n int) {
	if on() {
		globalManager.companiesTotal.Set(float64(n))
	}
}

// RecordMutation counts an insert, increment or remove.
func RecordMutation(op string) {
	if on() {
		globalManager.mutations.WithLabelValues(op).Inc()
	}
}

// RecordRead counts a ranked read by mode ("all", "top", "bottom", "symbols").
func RecordRead(mode string) {
	if on() {
		globalManager.reads.WithLabelValues(mode).Inc()
	}
}

// RecordLeaderboardError counts a failed service operation.
func RecordLeaderboardError(op, kind string) {
	if on() {
		globalManager.leaderboardErrors.WithLabelValues(op, kind).Inc()
	}
}

// RecordTickProcessed counts a tick applied by a worker.
func RecordTickProcessed() {
	if on() {
		globalManager.ticksProcessed.Inc()
	}
}

// RecordTickDuplicate counts a tick dropped by deduplication.
func RecordTickDuplicate() {
	if on() {
		globalManager.ticksDuplicate.Inc()
	}
}

// RecordTickRejected counts a tick that could not be applied.
func RecordTickRejected() {
	if on() {
		globalManager.ticksRejected.Inc()
	}
}

// RecordKafkaMessage counts a consumed Kafka message by outcome.
func RecordKafkaMessage(outcome string) {
	if on() {
		globalManager.kafkaMessages.WithLabelValues(outcome).Inc()
	}
}

// RecordSeed counts loaded and skipped seed records.
func RecordSeed(loaded, skipped int) {
	if on() {
		globalManager.seedRecordsLoaded.Add(float64(loaded))
		globalManager.seedRecordsSkipped.Add(float64(skipped))
	}
}

// RecordStoreLatency observes one store call in milliseconds.
func RecordStoreLatency(backend, op string, latencyMs float64) {
	if on() {
		globalManager.storeLatency.WithLabelValues(backend, op).Observe(latencyMs)
	}
}

// RecordStoreError counts a failed store call.
func RecordStoreError(backend, op string) {
	if on() {
		globalManager.storeErrors.WithLabelValues(backend, op).Inc()
	}
}

// RecordJournalFlush records a completed journal flush.
func RecordJournalFlush(durationMs float64, records int) {
	if !on() {
		return
	}
	globalManager.journalFlushes.Inc()
	globalManager.journalFlushDur.Observe(durationMs)
	globalManager.journalFlushBatch.Observe(float64(records))
	globalManager.journalLastFlush.Set(float64(time.Now().Unix()))
}

// UpdateQueueSize sets the current queue length.
func UpdateQueueSize(size int) {
	if on() {
		globalManager.queueSize.Set(float64(size))
	}
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	if on() {
		globalManager.queueCapacity.Set(float64(capacity))
	}
}

// UpdateQueueUtilization sets the queue fill ratio.
func UpdateQueueUtilization(utilization float64) {
	if on() {
		globalManager.queueUtilization.Set(utilization)
	}
}

// RecordQueueEnqueue counts an accepted enqueue.
func RecordQueueEnqueue() {
	if on() {
		globalManager.queueEnqueued.Inc()
	}
}

// RecordQueueDequeue counts a dequeue.
func RecordQueueDequeue() {
	if on() {
		globalManager.queueDequeued.Inc()
	}
}

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError() {
	if on() {
		globalManager.queueEnqueueErrors.Inc()
	}
}

// UpdateWorkerCount sets the running worker count.
func UpdateWorkerCount(count int) {
	if on() {
		globalManager.workerCount.Set(float64(count))
	}
}

// UpdateWorkerMessagesPerSecond sets the average processing rate.
func UpdateWorkerMessagesPerSecond(rate float64) {
	if on() {
		globalManager.workerMessagesPerSecond.Set(rate)
	}
}

// RecordWorkerProcessingLatency observes one tick's processing time.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if on() {
		globalManager.workerProcessingLatency.Observe(latencyMs)
	}
}

// RecordWorkerError counts a tick a worker failed to apply.
func RecordWorkerError() {
	if on() {
		globalManager.workerErrors.Inc()
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if on() {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if on() {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordErrorByEndpoint records an HTTP error with endpoint, method and type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if on() {
		globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// RecordErrorByType records an HTTP error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	if on() {
		globalManager.errorsByType.WithLabelValues(errorType, severity).Inc()
	}
}

// UpdateSystemMemoryUsage sets heap bytes in use.
func UpdateSystemMemoryUsage(bytes uint64) {
	if on() {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if on() {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

// Configure rebuilds the global manager from opts on a fresh registry.
// Call it once at startup, before anything records.
func Configure(opts ...Option) {
	registry := prometheus.NewRegistry()
	opts = append(append([]Option{}, opts...), WithPrometheusRegistry(registry))
	globalManager = NewManager(opts...)
	customRegistry = registry
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
