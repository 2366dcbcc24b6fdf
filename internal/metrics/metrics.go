// Package metrics defines the Prometheus instrumentation for Magpie.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts API requests by method, route and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magpie",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed.",
	}, []string{"method", "route", "status"})

	// HTTPDuration tracks request latency by route.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "magpie",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// RefreshRuns counts segmentation rebuilds by outcome.
	RefreshRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magpie",
		Subsystem: "segmentation",
		Name:      "refresh_runs_total",
		Help:      "Total segmentation refresh runs.",
	}, []string{"outcome"})

	// RefreshDuration tracks how long a full rebuild takes.
	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "magpie",
		Subsystem: "segmentation",
		Name:      "refresh_duration_seconds",
		Help:      "Segmentation refresh latency.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// CustomersSegmented gauges the population size of the last refresh.
	CustomersSegmented = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "magpie",
		Subsystem: "segmentation",
		Name:      "customers_total",
		Help:      "Customers classified in the latest refresh.",
	})

	// PersonaSize gauges the current size of each persona segment.
	PersonaSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "magpie",
		Subsystem: "segmentation",
		Name:      "persona_size",
		Help:      "Customers per persona in the latest refresh.",
	}, []string{"persona"})

	// SimulationsTotal counts what-if simulations by persona.
	SimulationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magpie",
		Subsystem: "simulator",
		Name:      "simulations_total",
		Help:      "Total what-if simulations run.",
	}, []string{"persona"})

	// DatasetRows counts rows accepted by dataset loads.
	DatasetRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magpie",
		Subsystem: "dataset",
		Name:      "rows_total",
		Help:      "Total rows accepted into the dataset.",
	}, []string{"table"})
)
