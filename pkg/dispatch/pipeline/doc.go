/*
Package pipeline provides a staged asynchronous dispatch engine.

An Engine owns three handler slots (start, run, end) holding asynchronous
handlers, and five callback sets (on-start, on-end, on-finally,
on-error-caught, on-error-thrown) holding synchronous observers. A Signal
call drives one pass through the stage machine, fanning out each slot's
handlers concurrently and joining them before the next transition:

	none -> start -> running -> end -> final
	                   |                ^
	                   v                |
	                 error -------------+

# Quick Start

	engine := pipeline.New()

	engine.AddRunHandler(func(ctx context.Context, sender pipeline.Engine, pctx *pipeline.Context) error {
		return processEvent(ctx)
	})

	pctx := pipeline.NewContext()
	engine.Signal(context.Background(), pctx)
	fmt.Println(pctx.Stage()) // final

# Handlers and Callbacks

Handlers are asynchronous: every handler registered in a slot is launched in
its own goroutine when the stage is entered, and the stage completes only
after all of them return. Handlers in one slot are deduplicated by function
identity and fan out in registration order, though no ordering is guaranteed
among concurrently running siblings.

Callbacks are synchronous and run on the signaling goroutine. Callback sets
carry no ordering guarantee at all.

	engine.AddStartHandler(openResources)
	engine.AddRunHandler(handleA, handleB)
	engine.AddEndHandler(flushResults)

	engine.OnStart(func(pctx *pipeline.Context) { log.Println("starting") })
	engine.OnEnd(func(pctx *pipeline.Context) { log.Println("ended") })
	engine.OnFinally(func(pctx *pipeline.Context) { log.Println("done") })

Registering an already-registered handler or callback is a silent no-op, as
is removing one that is absent.

# Error Handling

Signal never returns or re-raises a handler failure. A failed run moves the
context through the error stage, invokes the error-caught callbacks and then
the error-thrown callbacks with the same error instance, and still completes
through the final stage:

	engine.OnErrorCaught(func(pctx *pipeline.Context, err error) {
		log.Printf("caught: %v", err)
	})
	engine.OnErrorThrown(func(pctx *pipeline.Context, err error) {
		notifyObservers(err)
	})

With no error callbacks registered, a failure is observable only through the
stage transitions a callback would have seen; that is deliberate. Errors
become events, never a raised failure at the Signal boundary.

Panics in handlers and in start/end callbacks are converted into the run
error. Panics in error or finally callbacks are not caught.

# Signaling

A Signal call with an empty run slot is a no-op: no stage transitions, no
callbacks. Otherwise the run context (Context) records each stage as it is
entered. Passing a nil Context uses the process-wide shared instance from
Background(); concurrent default-context runs share its stage, which is a
documented hazard of omitting the context.

The context.Context argument is the cancellation signal threaded to every
handler of the run. It is advisory: the engine never aborts a handler, so
callers layer timeouts by canceling the context and writing handlers that
honor it.

Concurrent Signal calls on one engine proceed independently. Registrations
made while a signal is in flight do not affect stage snapshots already taken.

# Monitoring

	engine := pipeline.NewWithMetrics("ingest")

wraps the engine with Prometheus collectors for signal totals, failures,
short circuits, durations, and per-slot handler counts. Stats() exposes the
same counters programmatically:

	stats := engine.Stats()
	fmt.Printf("signals=%d failed=%d\n", stats.Signals, stats.Failed)

# Thread Safety

All registration methods and Signal are safe for concurrent use.
*/
package pipeline
