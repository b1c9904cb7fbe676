package pipeline

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vnykmshr/goevent/pkg/metrics"
)

// MetricsEngine wraps an Engine with Prometheus metrics collection.
type MetricsEngine struct {
	base     Engine
	name     string
	registry *metrics.Registry
	enabled  bool
}

// NewWithMetrics creates a new engine with metrics enabled.
func NewWithMetrics(name string) Engine {
	// Use a separate registry for each metrics-enabled component to avoid conflicts
	registry := prometheus.NewRegistry()
	config := metrics.Config{
		Enabled:  true,
		Registry: registry,
	}

	return NewWithConfigAndMetrics(Config{Name: name}, name, config)
}

// NewWithConfigAndMetrics creates a new engine with custom config and metrics.
func NewWithConfigAndMetrics(config Config, name string, metricsConfig metrics.Config) Engine {
	base := NewWithConfig(config)

	if !metricsConfig.Enabled {
		return base
	}

	registry := metrics.DefaultRegistry
	if metricsConfig.Registry != nil {
		registry = metrics.NewRegistry(metricsConfig.Registry)
	}

	me := &MetricsEngine{
		base:     base,
		name:     name,
		registry: registry,
		enabled:  true,
	}

	me.updateHandlerGauges()

	return me
}

// updateHandlerGauges updates the per-slot handler count gauges.
func (me *MetricsEngine) updateHandlerGauges() {
	if !me.enabled {
		return
	}

	stats := me.base.Stats()
	me.registry.PipelineHandlers.WithLabelValues(me.name, "start").Set(float64(stats.StartHandlers))
	me.registry.PipelineHandlers.WithLabelValues(me.name, "run").Set(float64(stats.RunHandlers))
	me.registry.PipelineHandlers.WithLabelValues(me.name, "end").Set(float64(stats.EndHandlers))
}

// Signal drives the base engine and records signal totals, failures,
// short circuits, and duration. Each call records its own outcome, so
// overlapping Signal calls never double count.
func (me *MetricsEngine) Signal(ctx context.Context, pctx *Context) {
	base, ok := me.base.(*engine)
	if !ok || !me.enabled {
		me.base.Signal(ctx, pctx)
		return
	}

	start := time.Now()
	switch base.signal(ctx, pctx) {
	case runShortCircuit:
		me.registry.PipelineShortCircuits.WithLabelValues(me.name).Inc()
	case runSucceeded:
		me.registry.PipelineSignals.WithLabelValues(me.name).Inc()
		me.registry.PipelineSignalDuration.WithLabelValues(me.name).Observe(time.Since(start).Seconds())
	case runFailed:
		me.registry.PipelineSignals.WithLabelValues(me.name).Inc()
		me.registry.PipelineFailures.WithLabelValues(me.name).Inc()
		me.registry.PipelineSignalDuration.WithLabelValues(me.name).Observe(time.Since(start).Seconds())
	}
}

func (me *MetricsEngine) AddStartHandler(handlers ...Handler) Engine {
	me.base.AddStartHandler(handlers...)
	me.updateHandlerGauges()
	return me
}

func (me *MetricsEngine) RemoveStartHandler(handlers ...Handler) Engine {
	me.base.RemoveStartHandler(handlers...)
	me.updateHandlerGauges()
	return me
}

func (me *MetricsEngine) AddRunHandler(handlers ...Handler) Engine {
	me.base.AddRunHandler(handlers...)
	me.updateHandlerGauges()
	return me
}

func (me *MetricsEngine) RemoveRunHandler(handlers ...Handler) Engine {
	me.base.RemoveRunHandler(handlers...)
	me.updateHandlerGauges()
	return me
}

func (me *MetricsEngine) AddEndHandler(handlers ...Handler) Engine {
	me.base.AddEndHandler(handlers...)
	me.updateHandlerGauges()
	return me
}

func (me *MetricsEngine) RemoveEndHandler(handlers ...Handler) Engine {
	me.base.RemoveEndHandler(handlers...)
	me.updateHandlerGauges()
	return me
}

func (me *MetricsEngine) OnStart(callbacks ...Callback) Engine {
	me.base.OnStart(callbacks...)
	return me
}

func (me *MetricsEngine) RemoveOnStart(callbacks ...Callback) Engine {
	me.base.RemoveOnStart(callbacks...)
	return me
}

func (me *MetricsEngine) OnEnd(callbacks ...Callback) Engine {
	me.base.OnEnd(callbacks...)
	return me
}

func (me *MetricsEngine) RemoveOnEnd(callbacks ...Callback) Engine {
	me.base.RemoveOnEnd(callbacks...)
	return me
}

func (me *MetricsEngine) OnFinally(callbacks ...Callback) Engine {
	me.base.OnFinally(callbacks...)
	return me
}

func (me *MetricsEngine) RemoveOnFinally(callbacks ...Callback) Engine {
	me.base.RemoveOnFinally(callbacks...)
	return me
}

func (me *MetricsEngine) OnErrorCaught(callbacks ...ErrorCallback) Engine {
	me.base.OnErrorCaught(callbacks...)
	return me
}

func (me *MetricsEngine) RemoveOnErrorCaught(callbacks ...ErrorCallback) Engine {
	me.base.RemoveOnErrorCaught(callbacks...)
	return me
}

func (me *MetricsEngine) OnErrorThrown(callbacks ...ErrorCallback) Engine {
	me.base.OnErrorThrown(callbacks...)
	return me
}

func (me *MetricsEngine) RemoveOnErrorThrown(callbacks ...ErrorCallback) Engine {
	me.base.RemoveOnErrorThrown(callbacks...)
	return me
}

func (me *MetricsEngine) Name() string {
	return me.base.Name()
}

func (me *MetricsEngine) Stats() Stats {
	return me.base.Stats()
}
