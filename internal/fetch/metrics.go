package fetch

import "github.com/prometheus/client_golang/prometheus"

// Metric label values for attempt outcomes.
const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

var (
	fetchAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modloader_fetch_attempts_total",
			Help: "Total number of module fetch attempts.",
		},
		[]string{"mode", "outcome"},
	)

	fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modloader_fetch_duration_seconds",
			Help:    "Module fetch duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)
)

func init() {
	prometheus.MustRegister(fetchAttemptsTotal)
	prometheus.MustRegister(fetchDuration)

	// Pre-initialize label combinations so they appear in /metrics before
	// the first fetch.
	for _, mode := range []string{ModeSync, ModeAsync} {
		for _, outcome := range []string{outcomeOK, outcomeError} {
			fetchAttemptsTotal.WithLabelValues(mode, outcome)
		}
	}
}
