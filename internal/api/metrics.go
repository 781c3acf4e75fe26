package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	unmatched   = "unmatched"
	eventsRoute = "/v1/modules/events"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modloader_http_requests_total",
			Help: "Total number of HTTP requests by endpoint group.",
		},
		[]string{"method", "endpoint", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modloader_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds. Event streams are not observed.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	eventStreamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "modloader_http_event_streams",
			Help: "Number of connected transition event streams.",
		},
	)

	resourceBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "modloader_http_resource_bytes_total",
			Help: "Bytes written for requests under /resources/.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(eventStreamsActive)
	prometheus.MustRegister(resourceBytesTotal)
}

// metricsMiddleware records request count and duration for every HTTP request.
// Uses the chi route pattern (not the raw path) to avoid unbounded cardinality.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := routePattern(r)
		endpoint := endpointOf(route)
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, route, strconv.Itoa(status)).Inc()
		switch endpoint {
		case "events":
			// A stream lasts as long as its client.
		case "resources":
			resourceBytesTotal.Add(float64(ww.BytesWritten()))
			fallthrough
		default:
			httpRequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		}
	})
}

// routePattern extracts the matched chi route pattern, falling back to "unmatched".
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unmatched
}

// endpointOf groups route patterns by the loader facility they expose:
// "/v1/modules/*" is "modules", "/healthz" is "healthz".
func endpointOf(route string) string {
	if route == eventsRoute {
		return "events"
	}
	rest, ok := strings.CutPrefix(route, "/")
	if !ok {
		return unmatched
	}
	rest = strings.TrimPrefix(rest, "v1/")
	name, _, _ := strings.Cut(rest, "/")
	if name == "" || name == "*" {
		return unmatched
	}
	return name
}

// metricsHandler returns the Prometheus metrics handler.
func metricsHandler() http.Handler {
	return promhttp.Handler()
}
