package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the history server
var (
	// History update metrics
	historyUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serverhistory_updates_total",
			Help: "Total number of ring buffer updates, by element type",
		},
		[]string{"value_type"},
	)

	historyUpdateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "serverhistory_update_duration_seconds",
			Help:    "Time spent advancing and publishing one input's ring buffers",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"value_type"},
	)

	registeredVariables = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "serverhistory_registered_variables",
			Help: "Number of inputs registered with the history module",
		},
	)

	dataFaultCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "serverhistory_data_fault_count",
			Help: "Current value of the process-wide data fault counter",
		},
	)

	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serverhistory_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "serverhistory_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status_code"},
	)

	// Ingest metrics
	ingestSamplesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serverhistory_ingest_samples_total",
			Help: "Total number of samples posted via the ingest endpoint",
		},
		[]string{"result"},
	)

	// WebSocket metrics
	websocketConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "serverhistory_websocket_connections_total",
			Help: "Total number of WebSocket connections",
		},
	)

	websocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "serverhistory_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)
)

// ObserveHistoryUpdate records one completed ring buffer update.
func ObserveHistoryUpdate(valueType string, duration time.Duration) {
	historyUpdatesTotal.WithLabelValues(valueType).Inc()
	historyUpdateDuration.WithLabelValues(valueType).Observe(duration.Seconds())
}

// SetRegisteredVariables records the number of registered inputs.
func SetRegisteredVariables(n int) {
	registeredVariables.Set(float64(n))
}

// SetDataFault records the current data fault counter value.
func SetDataFault(n int64) {
	dataFaultCount.Set(float64(n))
}

// RecordHTTPRequest records metrics for an HTTP request.
func RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordIngestSample records the outcome of one ingest request.
func RecordIngestSample(result string) {
	ingestSamplesTotal.WithLabelValues(result).Inc()
}

// RecordWebSocketConnection records a new WebSocket connection.
func RecordWebSocketConnection() {
	websocketConnectionsTotal.Inc()
	websocketConnectionsActive.Inc()
}

// RecordWebSocketDisconnection records a closed WebSocket connection.
func RecordWebSocketDisconnection() {
	websocketConnectionsActive.Dec()
}
