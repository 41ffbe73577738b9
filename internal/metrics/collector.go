package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/catalogfed/internal/pool"
	"github.com/BaSui01/catalogfed/types"
)

// Collector records federation, source and infrastructure metrics. It
// satisfies federation.MetricsRecorder.
type Collector struct {
	// Federation metrics
	federationsTotal   *prometheus.CounterVec
	federationDuration *prometheus.HistogramVec
	federationResults  prometheus.Histogram
	federationSources  prometheus.Histogram

	// Source metrics
	sourceQueriesTotal  *prometheus.CounterVec
	sourceQueryDuration *prometheus.HistogramVec
	processingDetails   *prometheus.CounterVec
	sourceVetoes        *prometheus.CounterVec
	pluginFailures      *prometheus.CounterVec

	// API metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Upstream HTTP metrics
	upstreamRequestsTotal   *prometheus.CounterVec
	upstreamRequestDuration *prometheus.HistogramVec

	// Database metrics
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	// Response cache metrics
	cacheLookups *prometheus.CounterVec

	// Executor metrics
	poolWorkers  *prometheus.GaugeVec
	poolActive   *prometheus.GaugeVec
	poolQueued   *prometheus.GaugeVec
	poolRejected *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector registers the metrics under namespace with the default
// registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.federationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "federations_total",
			Help:      "Total number of federated queries",
		},
		[]string{"status"},
	)

	c.federationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "federation_duration_seconds",
			Help:      "Federated query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	c.federationResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "federation_results",
			Help:      "Number of results returned per federated query",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	c.federationSources = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "federation_sources",
			Help:      "Number of sources offered per federated query",
			Buckets:   prometheus.LinearBuckets(1, 2, 10),
		},
	)

	c.sourceQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_queries_total",
			Help:      "Total number of per-source queries by outcome",
		},
		[]string{"source", "status"},
	)

	c.sourceQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_query_duration_seconds",
			Help:      "Per-source query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	c.processingDetails = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processing_details_total",
			Help:      "Total number of processing details carrying an error",
		},
		[]string{"source", "code"},
	)

	c.sourceVetoes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_vetoes_total",
			Help:      "Total number of sources skipped by a pre-query plugin",
		},
		[]string{"source"},
	)

	c.pluginFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugin_failures_total",
			Help:      "Total number of recoverable plugin failures",
		},
		[]string{"stage", "plugin"},
	)

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.upstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of HTTP requests sent to catalog backends",
		},
		[]string{"source", "status"},
	)

	c.upstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Catalog backend HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	c.cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Total number of source response cache lookups",
		},
		[]string{"source_id", "result"},
	)

	c.poolWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executor_workers",
			Help:      "Number of live executor workers",
		},
		[]string{"executor"},
	)

	c.poolActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executor_active_tasks",
			Help:      "Number of source tasks currently running",
		},
		[]string{"executor"},
	)

	c.poolQueued = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executor_queued_tasks",
			Help:      "Number of source tasks waiting for a worker",
		},
		[]string{"executor"},
	)

	c.poolRejected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executor_rejected_tasks",
			Help:      "Number of source tasks rejected since start",
		},
		[]string{"executor"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordFederation records one finished federated query.
func (c *Collector) RecordFederation(status string, duration time.Duration, sources, results int) {
	c.federationsTotal.WithLabelValues(status).Inc()
	c.federationDuration.WithLabelValues(status).Observe(duration.Seconds())
	c.federationResults.Observe(float64(results))
	c.federationSources.Observe(float64(sources))
}

// RecordSourceQuery records the outcome of one source task.
func (c *Collector) RecordSourceQuery(sourceID, status string, duration time.Duration) {
	c.sourceQueriesTotal.WithLabelValues(sourceID, status).Inc()
	c.sourceQueryDuration.WithLabelValues(sourceID).Observe(duration.Seconds())
}

// RecordProcessingDetail counts an error detail.
func (c *Collector) RecordProcessingDetail(sourceID string, code types.ErrorCode) {
	label := string(code)
	if label == "" {
		label = "UNCLASSIFIED"
	}
	c.processingDetails.WithLabelValues(sourceID, label).Inc()
}

// RecordSourceVeto counts a source skipped by a plugin.
func (c *Collector) RecordSourceVeto(sourceID string) {
	c.sourceVetoes.WithLabelValues(sourceID).Inc()
}

// RecordPluginFailure counts a recoverable plugin failure.
func (c *Collector) RecordPluginFailure(stage, plugin string) {
	c.pluginFailures.WithLabelValues(stage, plugin).Inc()
}

// RecordHTTPRequest records one API request. path must be a route pattern,
// not a raw URL.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordUpstreamRequest records an HTTP request to a catalog backend.
func (c *Collector) RecordUpstreamRequest(sourceID string, status int, duration time.Duration) {
	c.upstreamRequestsTotal.WithLabelValues(sourceID, statusCode(status)).Inc()
	c.upstreamRequestDuration.WithLabelValues(sourceID).Observe(duration.Seconds())
}

// RecordDBConnections records database connection counts.
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery records a database query.
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// RecordCacheLookup counts a response cache hit or miss.
func (c *Collector) RecordCacheLookup(sourceID string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(sourceID, result).Inc()
}

// RecordPoolStats publishes executor statistics.
func (c *Collector) RecordPoolStats(executor string, stats pool.GoroutinePoolStats) {
	c.poolWorkers.WithLabelValues(executor).Set(float64(stats.Workers))
	c.poolActive.WithLabelValues(executor).Set(float64(stats.Active))
	c.poolQueued.WithLabelValues(executor).Set(float64(stats.Queued))
	c.poolRejected.WithLabelValues(executor).Set(float64(stats.Rejected))
}

// statusCode groups HTTP status codes into classes. Zero means the request
// never got a response.
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "error"
	}
}
