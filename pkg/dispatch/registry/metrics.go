package registry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	geerrors "github.com/vnykmshr/goevent/pkg/common/errors"
	"github.com/vnykmshr/goevent/pkg/dispatch/pipeline"
	"github.com/vnykmshr/goevent/pkg/metrics"
)

// MetricsRegistry wraps a Registry with Prometheus metrics collection.
type MetricsRegistry struct {
	base     Registry
	name     string
	registry *metrics.Registry
	enabled  bool
}

// NewWithMetrics creates a new registry with metrics enabled.
func NewWithMetrics(name string) Registry {
	// Use a separate registry for each metrics-enabled component to avoid conflicts
	promRegistry := prometheus.NewRegistry()
	config := metrics.Config{
		Enabled:  true,
		Registry: promRegistry,
	}

	return NewWithMetricsConfig(name, config)
}

// NewWithMetricsConfig creates a new registry with custom metrics configuration.
func NewWithMetricsConfig(name string, metricsConfig metrics.Config) Registry {
	base := New()

	if !metricsConfig.Enabled {
		return base
	}

	registry := metrics.DefaultRegistry
	if metricsConfig.Registry != nil {
		registry = metrics.NewRegistry(metricsConfig.Registry)
	}

	mr := &MetricsRegistry{
		base:     base,
		name:     name,
		registry: registry,
		enabled:  true,
	}

	mr.updateGauge()

	return mr
}

func (mr *MetricsRegistry) updateGauge() {
	if !mr.enabled {
		return
	}
	mr.registry.RegistryPipelines.WithLabelValues(mr.name).Set(float64(mr.base.Len()))
}

// Get looks up id and records the lookup outcome.
func (mr *MetricsRegistry) Get(id string) (pipeline.Engine, error) {
	engine, err := mr.base.Get(id)

	if mr.enabled {
		outcome := "found"
		switch {
		case errors.Is(err, geerrors.ErrNotFound):
			outcome = "not_found"
		case errors.Is(err, geerrors.ErrNilEngine):
			outcome = "nil_engine"
		case err != nil:
			outcome = "invalid"
		}
		mr.registry.RegistryLookups.WithLabelValues(mr.name, outcome).Inc()
	}

	return engine, err
}

func (mr *MetricsRegistry) Register(id string, engine pipeline.Engine) bool {
	added := mr.base.Register(id, engine)
	mr.updateGauge()
	return added
}

func (mr *MetricsRegistry) Unregister(id string) bool {
	removed := mr.base.Unregister(id)
	mr.updateGauge()
	return removed
}

func (mr *MetricsRegistry) IDs() []string {
	return mr.base.IDs()
}

func (mr *MetricsRegistry) Len() int {
	return mr.base.Len()
}
