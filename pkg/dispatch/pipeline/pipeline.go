package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	geerrors "github.com/vnykmshr/goevent/pkg/common/errors"
)

// Handler is an asynchronous unit of work invoked when a stage is entered.
// All handlers of a slot are launched concurrently with the same arguments:
// the cancellation context for the run, the engine that fired them, and the
// run context. Cancellation is advisory; handlers choose whether to honor it.
type Handler func(ctx context.Context, sender Engine, pctx *Context) error

// Callback is a synchronous observer invoked at a stage boundary.
type Callback func(pctx *Context)

// ErrorCallback is a synchronous observer invoked when a run fails.
type ErrorCallback func(pctx *Context, err error)

// Engine drives a staged dispatch run: start, run, and end handler slots
// executed as concurrent fan-outs, with synchronous callback sets observing
// stage transitions and errors.
type Engine interface {
	// AddStartHandler registers handlers in the start slot.
	// Already-registered handlers are silently skipped.
	AddStartHandler(handlers ...Handler) Engine

	// RemoveStartHandler unregisters handlers from the start slot.
	// Absent handlers are silently ignored.
	RemoveStartHandler(handlers ...Handler) Engine

	// AddRunHandler registers handlers in the run slot.
	AddRunHandler(handlers ...Handler) Engine

	// RemoveRunHandler unregisters handlers from the run slot.
	RemoveRunHandler(handlers ...Handler) Engine

	// AddEndHandler registers handlers in the end slot.
	AddEndHandler(handlers ...Handler) Engine

	// RemoveEndHandler unregisters handlers from the end slot.
	RemoveEndHandler(handlers ...Handler) Engine

	// OnStart registers callbacks invoked when the start stage is entered.
	OnStart(callbacks ...Callback) Engine

	// RemoveOnStart unregisters start callbacks.
	RemoveOnStart(callbacks ...Callback) Engine

	// OnEnd registers callbacks invoked when the end stage is entered.
	OnEnd(callbacks ...Callback) Engine

	// RemoveOnEnd unregisters end callbacks.
	RemoveOnEnd(callbacks ...Callback) Engine

	// OnFinally registers callbacks invoked when the final stage is entered,
	// whether or not the run failed.
	OnFinally(callbacks ...Callback) Engine

	// RemoveOnFinally unregisters finally callbacks.
	RemoveOnFinally(callbacks ...Callback) Engine

	// OnErrorCaught registers callbacks invoked first when a run fails.
	OnErrorCaught(callbacks ...ErrorCallback) Engine

	// RemoveOnErrorCaught unregisters error-caught callbacks.
	RemoveOnErrorCaught(callbacks ...ErrorCallback) Engine

	// OnErrorThrown registers callbacks invoked after the error-caught set
	// when a run fails, with the same error instance.
	OnErrorThrown(callbacks ...ErrorCallback) Engine

	// RemoveOnErrorThrown unregisters error-thrown callbacks.
	RemoveOnErrorThrown(callbacks ...ErrorCallback) Engine

	// Signal drives one full pass through the stage machine.
	// See the package documentation for the exact sequencing contract.
	Signal(ctx context.Context, pctx *Context)

	// Name returns the configured pipeline name.
	Name() string

	// Stats returns run counters and current handler slot sizes.
	Stats() Stats
}

// Stats holds pipeline run counters and handler slot sizes.
type Stats struct {
	// Signals counts Signal calls that entered the stage machine.
	Signals int64

	// Succeeded counts runs that reached the end stage without error.
	Succeeded int64

	// Failed counts runs that passed through the error stage.
	Failed int64

	// ShortCircuits counts Signal calls skipped for lack of run handlers.
	ShortCircuits int64

	// StartHandlers, RunHandlers, and EndHandlers are the current slot sizes.
	StartHandlers int
	RunHandlers   int
	EndHandlers   int
}

// Config holds engine configuration options.
type Config struct {
	// Name identifies the pipeline in logs and metrics.
	Name string

	// Logger receives lifecycle events. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// handlerEntry pairs a handler with its identity key so slots can dedupe by
// function identity while preserving registration order.
type handlerEntry struct {
	key uintptr
	fn  Handler
}

// engine implements the Engine interface.
type engine struct {
	name   string
	logger *slog.Logger

	mu            sync.Mutex
	startHandlers []handlerEntry
	runHandlers   []handlerEntry
	endHandlers   []handlerEntry
	onStart       map[uintptr]Callback
	onEnd         map[uintptr]Callback
	onFinally     map[uintptr]Callback
	onErrorCaught map[uintptr]ErrorCallback
	onErrorThrown map[uintptr]ErrorCallback

	statsMu sync.Mutex
	stats   Stats
}

// New creates an engine with default configuration.
func New() Engine {
	return NewWithConfig(Config{})
}

// NewWithConfig creates an engine with the specified configuration.
func NewWithConfig(config Config) Engine {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &engine{
		name:          config.Name,
		logger:        logger,
		onStart:       make(map[uintptr]Callback),
		onEnd:         make(map[uintptr]Callback),
		onFinally:     make(map[uintptr]Callback),
		onErrorCaught: make(map[uintptr]ErrorCallback),
		onErrorThrown: make(map[uintptr]ErrorCallback),
	}
}

// handlerKey derives the identity used for dedupe and removal: the function's
// code pointer. Two references to the same function or closure variable share
// a key; note that closures created from the same literal also share one, so
// they count as a single handler.
func handlerKey(fn Handler) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

func callbackKey(fn interface{}) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

// addToSlot appends handlers not already present, preserving registration order.
func (e *engine) addToSlot(slot *[]handlerEntry, handlers []Handler) Engine {
	e.mu.Lock()
	defer e.mu.Unlock()

next:
	for _, fn := range handlers {
		if fn == nil {
			continue
		}
		key := handlerKey(fn)
		for _, entry := range *slot {
			if entry.key == key {
				continue next
			}
		}
		*slot = append(*slot, handlerEntry{key: key, fn: fn})
	}
	return e
}

// removeFromSlot deletes handlers if present; absent handlers are ignored.
func (e *engine) removeFromSlot(slot *[]handlerEntry, handlers []Handler) Engine {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, fn := range handlers {
		if fn == nil {
			continue
		}
		key := handlerKey(fn)
		for i, entry := range *slot {
			if entry.key == key {
				*slot = append((*slot)[:i], (*slot)[i+1:]...)
				break
			}
		}
	}
	return e
}

func (e *engine) AddStartHandler(handlers ...Handler) Engine {
	return e.addToSlot(&e.startHandlers, handlers)
}

func (e *engine) RemoveStartHandler(handlers ...Handler) Engine {
	return e.removeFromSlot(&e.startHandlers, handlers)
}

func (e *engine) AddRunHandler(handlers ...Handler) Engine {
	return e.addToSlot(&e.runHandlers, handlers)
}

func (e *engine) RemoveRunHandler(handlers ...Handler) Engine {
	return e.removeFromSlot(&e.runHandlers, handlers)
}

func (e *engine) AddEndHandler(handlers ...Handler) Engine {
	return e.addToSlot(&e.endHandlers, handlers)
}

func (e *engine) RemoveEndHandler(handlers ...Handler) Engine {
	return e.removeFromSlot(&e.endHandlers, handlers)
}

func (e *engine) OnStart(callbacks ...Callback) Engine {
	return e.addCallbacks(e.onStart, callbacks)
}

func (e *engine) RemoveOnStart(callbacks ...Callback) Engine {
	return e.removeCallbacks(e.onStart, callbacks)
}

func (e *engine) OnEnd(callbacks ...Callback) Engine {
	return e.addCallbacks(e.onEnd, callbacks)
}

func (e *engine) RemoveOnEnd(callbacks ...Callback) Engine {
	return e.removeCallbacks(e.onEnd, callbacks)
}

func (e *engine) OnFinally(callbacks ...Callback) Engine {
	return e.addCallbacks(e.onFinally, callbacks)
}

func (e *engine) RemoveOnFinally(callbacks ...Callback) Engine {
	return e.removeCallbacks(e.onFinally, callbacks)
}

func (e *engine) OnErrorCaught(callbacks ...ErrorCallback) Engine {
	return e.addErrorCallbacks(e.onErrorCaught, callbacks)
}

func (e *engine) RemoveOnErrorCaught(callbacks ...ErrorCallback) Engine {
	return e.removeErrorCallbacks(e.onErrorCaught, callbacks)
}

func (e *engine) OnErrorThrown(callbacks ...ErrorCallback) Engine {
	return e.addErrorCallbacks(e.onErrorThrown, callbacks)
}

func (e *engine) RemoveOnErrorThrown(callbacks ...ErrorCallback) Engine {
	return e.removeErrorCallbacks(e.onErrorThrown, callbacks)
}

func (e *engine) addCallbacks(set map[uintptr]Callback, callbacks []Callback) Engine {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, cb := range callbacks {
		if cb == nil {
			continue
		}
		key := callbackKey(cb)
		if _, exists := set[key]; !exists {
			set[key] = cb
		}
	}
	return e
}

func (e *engine) removeCallbacks(set map[uintptr]Callback, callbacks []Callback) Engine {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, cb := range callbacks {
		if cb == nil {
			continue
		}
		delete(set, callbackKey(cb))
	}
	return e
}

func (e *engine) addErrorCallbacks(set map[uintptr]ErrorCallback, callbacks []ErrorCallback) Engine {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, cb := range callbacks {
		if cb == nil {
			continue
		}
		key := callbackKey(cb)
		if _, exists := set[key]; !exists {
			set[key] = cb
		}
	}
	return e
}

func (e *engine) removeErrorCallbacks(set map[uintptr]ErrorCallback, callbacks []ErrorCallback) Engine {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, cb := range callbacks {
		if cb == nil {
			continue
		}
		delete(set, callbackKey(cb))
	}
	return e
}

// snapshotSlot copies a handler slot under lock. The copy is what a stage
// fans out over; registrations during the fan-out do not affect it.
func (e *engine) snapshotSlot(slot *[]handlerEntry) []handlerEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]handlerEntry, len(*slot))
	copy(out, *slot)
	return out
}

// snapshotCallbacks copies a callback set under lock. Map iteration keeps
// invocation order unspecified, which is part of the contract.
func (e *engine) snapshotCallbacks(set map[uintptr]Callback) []Callback {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Callback, 0, len(set))
	for _, cb := range set {
		out = append(out, cb)
	}
	return out
}

func (e *engine) snapshotErrorCallbacks(set map[uintptr]ErrorCallback) []ErrorCallback {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]ErrorCallback, 0, len(set))
	for _, cb := range set {
		out = append(out, cb)
	}
	return out
}

// Signal drives one full pass through the stage machine:
//
//	none -> start -> running -> end -> final
//	                   |                ^
//	                   v                |
//	                 error -------------+
//
// If the run slot is empty the call is a no-op: no stage transitions occur
// and no callback is invoked. A nil pctx defaults to the shared Background()
// context; a nil ctx defaults to context.Background().
//
// Handler and stage-callback failures never propagate to the caller. They
// move the context through the error stage, where the error-caught and then
// the error-thrown callback sets each receive the same error instance, and
// the run still completes through the final stage. When several handlers of
// one fan-out fail, the first failure in slot registration order is the one
// reported; the remaining handlers still run to completion.
//
// Panics raised inside error or finally callbacks are not caught.
//
// Concurrent Signal calls on one engine proceed independently; callers
// needing single-flight semantics must enforce it externally.
func (e *engine) Signal(ctx context.Context, pctx *Context) {
	e.signal(ctx, pctx)
}

// runResult classifies one signal call so instrumentation can count per call
// rather than diffing shared counters across overlapping calls.
type runResult int

const (
	runShortCircuit runResult = iota
	runSucceeded
	runFailed
)

func (e *engine) signal(ctx context.Context, pctx *Context) runResult {
	run := e.snapshotSlot(&e.runHandlers)
	if len(run) == 0 {
		e.logger.Debug("signal skipped: no run handlers registered", "pipeline", e.name)
		e.statsMu.Lock()
		e.stats.ShortCircuits++
		e.statsMu.Unlock()
		return runShortCircuit
	}

	if pctx == nil {
		pctx = Background()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	runErr := e.enterStart(ctx, pctx)
	if runErr == nil {
		runErr = e.enterRunning(ctx, pctx)
	}
	if runErr == nil {
		runErr = e.enterEnd(ctx, pctx)
	}

	if runErr != nil {
		e.logger.Error("pipeline run failed",
			"pipeline", e.name,
			"stage", pctx.Stage().String(),
			"error", runErr)

		pctx.setStage(StageError)
		for _, cb := range e.snapshotErrorCallbacks(e.onErrorCaught) {
			cb(pctx, runErr)
		}
		for _, cb := range e.snapshotErrorCallbacks(e.onErrorThrown) {
			cb(pctx, runErr)
		}
	}

	pctx.setStage(StageFinal)
	for _, cb := range e.snapshotCallbacks(e.onFinally) {
		cb(pctx)
	}

	e.statsMu.Lock()
	e.stats.Signals++
	if runErr == nil {
		e.stats.Succeeded++
	} else {
		e.stats.Failed++
	}
	e.statsMu.Unlock()

	if runErr != nil {
		return runFailed
	}
	return runSucceeded
}

// enterStart runs the start transition: stage marker, start callbacks, then
// the start handler fan-out. A panicking callback fails the stage.
func (e *engine) enterStart(ctx context.Context, pctx *Context) (err error) {
	defer e.recoverStageFailure(StageStart, &err)

	pctx.setStage(StageStart)
	for _, cb := range e.snapshotCallbacks(e.onStart) {
		cb(pctx)
	}
	return e.fanOut(ctx, StageStart, e.snapshotSlot(&e.startHandlers), pctx)
}

func (e *engine) enterRunning(ctx context.Context, pctx *Context) (err error) {
	defer e.recoverStageFailure(StageRunning, &err)

	pctx.setStage(StageRunning)
	return e.fanOut(ctx, StageRunning, e.snapshotSlot(&e.runHandlers), pctx)
}

func (e *engine) enterEnd(ctx context.Context, pctx *Context) (err error) {
	defer e.recoverStageFailure(StageEnd, &err)

	pctx.setStage(StageEnd)
	for _, cb := range e.snapshotCallbacks(e.onEnd) {
		cb(pctx)
	}
	return e.fanOut(ctx, StageEnd, e.snapshotSlot(&e.endHandlers), pctx)
}

// recoverStageFailure converts a panic from a synchronous stage callback into
// the run error for this signal call.
func (e *engine) recoverStageFailure(stage Stage, err *error) {
	if r := recover(); r != nil {
		*err = &geerrors.HandlerError{
			Pipeline: e.name,
			Stage:    stage.String(),
			Cause:    fmt.Errorf("panic: %v", r),
		}
	}
}

// fanOut launches every handler in the snapshot concurrently and waits for
// all of them to finish. The stage fails if any handler failed, but siblings
// are never canceled on a first failure; only the error is carried forward.
func (e *engine) fanOut(ctx context.Context, stage Stage, handlers []handlerEntry, pctx *Context) error {
	if len(handlers) == 0 {
		return nil
	}

	errs := make([]error, len(handlers))
	var wg sync.WaitGroup

	for i, entry := range handlers {
		wg.Add(1)
		go func(i int, fn Handler) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = &geerrors.HandlerError{
						Pipeline: e.name,
						Stage:    stage.String(),
						Cause:    fmt.Errorf("panic: %v", r),
					}
				}
			}()
			errs[i] = fn(ctx, e, pctx)
		}(i, entry.fn)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Name returns the configured pipeline name.
func (e *engine) Name() string {
	return e.name
}

// Stats returns run counters and current handler slot sizes.
func (e *engine) Stats() Stats {
	e.statsMu.Lock()
	stats := e.stats
	e.statsMu.Unlock()

	e.mu.Lock()
	stats.StartHandlers = len(e.startHandlers)
	stats.RunHandlers = len(e.runHandlers)
	stats.EndHandlers = len(e.endHandlers)
	e.mu.Unlock()

	return stats
}
