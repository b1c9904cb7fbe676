// Package metrics provides Prometheus instrumentation for goevent components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for goevent components.
type Registry struct {
	// Pipeline Metrics
	PipelineSignals        *prometheus.CounterVec
	PipelineFailures       *prometheus.CounterVec
	PipelineShortCircuits  *prometheus.CounterVec
	PipelineSignalDuration *prometheus.HistogramVec
	PipelineHandlers       *prometheus.GaugeVec

	// Registry Metrics
	RegistryPipelines *prometheus.GaugeVec
	RegistryLookups   *prometheus.CounterVec

	// Trigger Metrics
	TriggerFires   *prometheus.CounterVec
	TriggerEntries *prometheus.GaugeVec
}

// DefaultRegistry is the default metrics registry used by goevent components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		// Pipeline Metrics
		PipelineSignals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "goevent",
				Subsystem: "pipeline",
				Name:      "signals_total",
				Help:      "Total number of signal calls driven through the stage machine",
			},
			[]string{"pipeline_name"},
		),

		PipelineFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "goevent",
				Subsystem: "pipeline",
				Name:      "failures_total",
				Help:      "Total number of signal calls that reached the error stage",
			},
			[]string{"pipeline_name"},
		),

		PipelineShortCircuits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "goevent",
				Subsystem: "pipeline",
				Name:      "short_circuits_total",
				Help:      "Total number of signal calls skipped because no run handlers were registered",
			},
			[]string{"pipeline_name"},
		),

		PipelineSignalDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "goevent",
				Subsystem: "pipeline",
				Name:      "signal_duration_seconds",
				Help:      "Time spent driving one signal call through all stages",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pipeline_name"},
		),

		PipelineHandlers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "goevent",
				Subsystem: "pipeline",
				Name:      "handlers",
				Help:      "Number of handlers currently registered per slot",
			},
			[]string{"pipeline_name", "slot"},
		),

		// Registry Metrics
		RegistryPipelines: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "goevent",
				Subsystem: "registry",
				Name:      "pipelines",
				Help:      "Number of pipelines currently registered",
			},
			[]string{"registry_name"},
		),

		RegistryLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "goevent",
				Subsystem: "registry",
				Name:      "lookups_total",
				Help:      "Total number of registry lookups by outcome",
			},
			[]string{"registry_name", "outcome"},
		),

		// Trigger Metrics
		TriggerFires: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "goevent",
				Subsystem: "trigger",
				Name:      "fires_total",
				Help:      "Total number of scheduled pipeline signals fired",
			},
			[]string{"trigger_name"},
		),

		TriggerEntries: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "goevent",
				Subsystem: "trigger",
				Name:      "entries",
				Help:      "Number of schedule entries currently registered",
			},
			[]string{"trigger_name"},
		),
	}
}
