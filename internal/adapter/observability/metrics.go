package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"route", "method"},
	)

	ItemsSanitizedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sanitize_items_total",
			Help: "Total number of batch items processed, by outcome",
		},
		[]string{"outcome"}, // cleaned | passthrough | absent
	)
	BatchSizeHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sanitize_batch_size",
			Help:    "Distribution of sanitize batch sizes",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	BatchesEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batches_enqueued_total",
			Help: "Total number of async batches enqueued",
		},
	)
	BatchesProcessing = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "batches_processing",
			Help: "Number of batches currently processing",
		},
	)
	BatchesCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batches_completed_total",
			Help: "Total number of batches completed",
		},
	)
	BatchesFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batches_failed_total",
			Help: "Total number of batches failed",
		},
	)
	CallbackDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callback_deliveries_total",
			Help: "Total number of callback delivery attempts by result",
		},
		[]string{"result"}, // ok | error
	)
)

// InitMetrics registers all Prometheus collectors. Call once per process.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(ItemsSanitizedTotal)
	prometheus.MustRegister(BatchSizeHistogram)
	prometheus.MustRegister(BatchesEnqueuedTotal)
	prometheus.MustRegister(BatchesProcessing)
	prometheus.MustRegister(BatchesCompletedTotal)
	prometheus.MustRegister(BatchesFailedTotal)
	prometheus.MustRegister(CallbackDeliveriesTotal)
}

// ObserveItem records the outcome of one processed batch item.
func ObserveItem(outcome string) { ItemsSanitizedTotal.WithLabelValues(outcome).Inc() }

// ObserveBatchSize records the size of one processed batch.
func ObserveBatchSize(n int) { BatchSizeHistogram.Observe(float64(n)) }

// EnqueueBatch increments the enqueued counter.
func EnqueueBatch() { BatchesEnqueuedTotal.Inc() }

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}
