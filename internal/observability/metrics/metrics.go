package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "bollette_"

	ResultSuccess = "success"
	ResultError   = "error"
	ResultInvalid = "invalid"

	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

var (
	registerOnce sync.Once

	billOpsTotal  *prometheus.CounterVec
	billOpLatency *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	syncTotal *prometheus.CounterVec
)

// Init registers the application metrics with the default registry. Safe to
// call more than once; only the first call registers.
func Init() {
	registerOnce.Do(func() {
		billOpsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "bill_operations_total",
				Help: "Total bill write operations by op and result",
			},
			[]string{"op", "result"},
		)
		billOpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "bill_operation_latency_seconds",
				Help:    "Bill operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		)
		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "Total HTTP requests by method and status class",
			},
			[]string{"method", "class"},
		)
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_latency_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		)
		syncTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "backup_sync_total",
				Help: "Total backup sync attempts by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			billOpsTotal,
			billOpLatency,
			httpRequests,
			httpLatency,
			syncTotal,
		)
	})
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveBillOp records one bill write operation. A no-op until Init runs,
// so packages under test never need the registry.
func ObserveBillOp(op, result string, d time.Duration) {
	if billOpsTotal == nil {
		return
	}
	billOpsTotal.WithLabelValues(op, result).Inc()
	billOpLatency.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveHTTPRequest records one completed HTTP request.
func ObserveHTTPRequest(method string, status int, d time.Duration) {
	if httpRequests == nil {
		return
	}
	class := "2xx"
	switch {
	case status >= 500:
		class = "5xx"
	case status >= 400:
		class = "4xx"
	case status >= 300:
		class = "3xx"
	}
	httpRequests.WithLabelValues(method, class).Inc()
	httpLatency.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveSync records one backup sync attempt.
func ObserveSync(result string) {
	if syncTotal == nil {
		return
	}
	syncTotal.WithLabelValues(result).Inc()
}
