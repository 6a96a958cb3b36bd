package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-level metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Credential-engine metrics.
var (
	BearerIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_bearer_tokens_issued_total",
		Help: "Signed bearer tokens issued.",
	})

	BearerVerified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_bearer_verifications_total",
			Help: "Bearer token verification attempts by result.",
		},
		[]string{"result"},
	)

	OpaqueIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_opaque_tokens_issued_total",
			Help: "Opaque tokens issued by kind.",
		},
		[]string{"kind"},
	)

	OpaqueConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_opaque_tokens_consumed_total",
			Help: "Opaque tokens consumed by kind.",
		},
		[]string{"kind"},
	)

	AdmissionRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_admission_rejections_total",
			Help: "Requests rejected before credential logic, by cause.",
		},
		[]string{"cause"},
	)

	KeyRotations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_key_rotations_total",
		Help: "Signing key rotations performed.",
	})

	SweepDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_token_sweep_deleted_total",
		Help: "Rows removed by the token retention sweep.",
	})
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		BearerIssued, BearerVerified, OpaqueIssued, OpaqueConsumed,
		AdmissionRejected, KeyRotations, SweepDeleted,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument wraps a handler with request counting and latency measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpInFlight.Dec()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
