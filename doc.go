/*
Package goevent provides in-process asynchronous event-dispatch pipelines.

Dispatch (pkg/dispatch):
  - pipeline: Staged dispatch engine with async handler fan-out and lifecycle callbacks
  - registry: Named pipeline lookup for globally reachable pipelines
  - trigger: Cron and interval-based pipeline signaling

Observability (pkg/metrics):
  - Prometheus collectors for pipelines, registries, and triggers

Example usage:

	import (
		"github.com/vnykmshr/goevent/pkg/dispatch/pipeline"
	)

	engine := pipeline.New()
	engine.AddRunHandler(func(ctx context.Context, sender pipeline.Engine, pctx *pipeline.Context) error {
		return doWork(ctx)
	})
	engine.OnFinally(func(pctx *pipeline.Context) {
		log.Printf("run finished in stage %s", pctx.Stage())
	})

	engine.Signal(context.Background(), pipeline.NewContext())
*/
package goevent
