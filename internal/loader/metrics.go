package loader

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/seantiz/modloader/internal/model"
)

var (
	modulesSettledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modloader_modules_settled_total",
			Help: "Total number of modules that reached a terminal state.",
		},
		[]string{"state"},
	)

	unhandledFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "modloader_unhandled_failures_total",
			Help: "Async module failures delivered to no error callback.",
		},
	)

	cyclePlaceholdersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "modloader_cycle_placeholders_total",
			Help: "Dependency edges resolved to an undefined placeholder because of a cycle.",
		},
	)

	droppedDefinitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modloader_dropped_definitions_total",
			Help: "Definitions discarded by the lenient define policy.",
		},
		[]string{"reason"},
	)

	invariantViolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "modloader_state_violations_total",
			Help: "Invalid transitions and double settlements that were ignored.",
		},
	)
)

func init() {
	prometheus.MustRegister(modulesSettledTotal)
	prometheus.MustRegister(unhandledFailuresTotal)
	prometheus.MustRegister(cyclePlaceholdersTotal)
	prometheus.MustRegister(droppedDefinitionsTotal)
	prometheus.MustRegister(invariantViolationsTotal)

	for _, s := range []model.State{model.StateReady, model.StateFailed} {
		modulesSettledTotal.WithLabelValues(s.String())
	}
}
