package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Общие HTTP-метрики
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
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bookcat_ready",
		Help: "1 when the service can reach its database.",
	})
)

// Метрики импорта книг
var (
	importRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookcat_import_rows_total",
			Help: "Rows processed by bulk import.",
		},
		[]string{"outcome"},
	)

	importBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookcat_import_batches_total",
			Help: "Bulk import batches by transaction result.",
		},
		[]string{"result"},
	)
)

var initOnce sync.Once

// Регистрация метрик в default-регистре.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration, ready, importRows, importBatches)
	})
}

// Хэндлер Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady flips the readiness gauge.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// ImportRows counts imported or skipped rows.
func ImportRows(outcome string, n int) {
	if n > 0 {
		importRows.WithLabelValues(outcome).Add(float64(n))
	}
}

// ImportBatch counts one batch transaction as committed or rolled_back.
func ImportBatch(result string) {
	importBatches.WithLabelValues(result).Inc()
}

// Обёртка для измерения RPS/latency/в полёте.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath collapses ids and file names so label cardinality stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	const books = "/api/v1/book/"
	rest, ok := strings.CutPrefix(path, books)
	if !ok || rest == "" {
		return path
	}
	if name, ok := strings.CutPrefix(rest, "download/"); ok && name != "" {
		return books + "download/:filename"
	}
	seg, tail, _ := strings.Cut(rest, "/")
	if _, err := strconv.ParseInt(seg, 10, 64); err != nil {
		return path
	}
	if tail != "" {
		return path
	}
	if strings.HasSuffix(rest, "/") {
		return books + ":id/"
	}
	return books + ":id"
}

// statusWriter: локальная копия, чтобы знать код ответа.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
