// Package metrics provides Prometheus metrics collection for dmpath.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dmpath"

// Collector holds all Prometheus metrics for dmpath.
type Collector struct {
	// Module metrics
	ModuleUpdates        *prometheus.CounterVec
	ModuleUpdateErrors   *prometheus.CounterVec
	ModuleUpdateDuration *prometheus.HistogramVec
	ModulesEnabled       prometheus.Gauge

	// Path metrics
	PathsActive     *prometheus.GaugeVec
	PathTransitions *prometheus.CounterVec

	// Feed metrics
	FeedErrors *prometheus.CounterVec

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a collector registered with the default Prometheus registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		ModuleUpdates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "module_updates_total",
				Help:      "Total number of module update ticks",
			},
			[]string{"module"},
		),
		ModuleUpdateErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "module_update_errors_total",
				Help:      "Total number of failed module updates",
			},
			[]string{"module"},
		),
		ModuleUpdateDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "module_update_duration_seconds",
				Help:      "Module update duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, 1},
			},
			[]string{"module"},
		),
		ModulesEnabled: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "modules_enabled",
				Help:      "Number of currently enabled modules",
			},
		),
		PathsActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "paths_active",
				Help:      "Number of registered paths per module data model",
			},
			[]string{"module"},
		),
		PathTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "path_transitions_total",
				Help:      "Total number of path validity transitions",
			},
			[]string{"kind"},
		),
		FeedErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_errors_total",
				Help:      "Total number of feed read or selector errors",
			},
			[]string{"feed"},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "route"},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// Nop returns a collector backed by a private registry, for callers that do
// not export metrics.
func Nop() *Collector {
	return NewWithRegistry(prometheus.NewRegistry())
}
