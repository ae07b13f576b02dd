// Package monitoring provides Prometheus metrics and logging helpers
// for the aggregation server.
package monitoring

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skylens/skylens/pkg/cache"
)

var (
	// Common namespace for all metrics in the app
	namespace = "skylens"

	// logging level: 0=info, 1=debug
	logLevel int32

	// HTTP server metrics
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Upstream provider metrics
	UpstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Total number of upstream API requests",
		},
		[]string{"provider", "outcome"},
	)

	// WebSocket metrics
	WSClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Number of connected WebSocket clients",
		},
	)

	WSMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "messages_total",
			Help:      "Total number of WebSocket messages handled",
		},
		[]string{"type"},
	)

)

func init() {
	prometheus.MustRegister(
		HTTPRequests,
		HTTPDuration,
		UpstreamRequests,
		WSClients,
		WSMessages,
	)

	// default from env
	ConfigureLogLevelFromEnv()
}

// RegisterSessionCount exposes the credential session count as a gauge
// evaluated at scrape time, so background sweeps are reflected without
// extra bookkeeping.
func RegisterSessionCount(count func() int) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of credential sessions currently held",
		},
		func() float64 { return float64(count()) },
	))
}

// RegisterCacheStats exposes the shared cache's counters as gauges
// evaluated at scrape time.
func RegisterCacheStats(stats func() cache.Stats) {
	gauge := func(name, help string, value func(cache.Stats) float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      name,
				Help:      help,
			},
			func() float64 { return value(stats()) },
		)
	}

	prometheus.MustRegister(
		gauge("keys", "Number of live cache entries", func(s cache.Stats) float64 { return float64(s.Keys) }),
		gauge("hits_total", "Cache hits since startup", func(s cache.Stats) float64 { return float64(s.Hits) }),
		gauge("misses_total", "Cache misses since startup", func(s cache.Stats) float64 { return float64(s.Misses) }),
		gauge("hit_rate", "Hits over lookups since startup", func(s cache.Stats) float64 { return s.HitRate }),
	)
}

// RecordUpstream counts one upstream round trip by provider and outcome.
func RecordUpstream(provider string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	UpstreamRequests.WithLabelValues(provider, outcome).Inc()
}

// Logging level helpers
func SetLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		atomic.StoreInt32(&logLevel, 1)
	case "info", "":
		atomic.StoreInt32(&logLevel, 0)
	default:
		// unknown -> info
		atomic.StoreInt32(&logLevel, 0)
		log.Printf("unknown log level %q, using info", level)
	}
}

func ConfigureLogLevelFromEnv() {
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		SetLogLevel(lvl)
		return
	}
	if d := strings.ToLower(os.Getenv("DEBUG")); d == "1" || d == "true" || d == "yes" {
		SetLogLevel("debug")
		return
	}
	SetLogLevel("info")
}

func IsDebug() bool { return atomic.LoadInt32(&logLevel) == 1 }

func Debugf(format string, args ...interface{}) {
	if IsDebug() {
		log.Printf("DEBUG "+format, args...)
	}
}

// ============ Helpers and middlewares for metrics ============

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.status = code
	rr.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware instruments all HTTP traffic. Mounted on a chi
// router it labels by route pattern, keeping icao24s and the like out
// of the label space.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rr := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rr, r)

		duration := time.Since(start).Seconds()
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		HTTPDuration.WithLabelValues(r.Method, path).Observe(duration)
		HTTPRequests.WithLabelValues(r.Method, path, strconv.Itoa(rr.status)).Inc()
	})
}

// PrometheusHandler exposes registered metrics.
func PrometheusHandler() http.Handler { return promhttp.Handler() }
