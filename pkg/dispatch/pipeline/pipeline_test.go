package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vnykmshr/goevent/internal/testutil"
	geerrors "github.com/vnykmshr/goevent/pkg/common/errors"
)

func noopHandler(_ context.Context, _ Engine, _ *Context) error {
	return nil
}

func TestNew(t *testing.T) {
	e := New()
	if e == nil {
		t.Fatal("engine should not be nil")
	}

	stats := e.Stats()
	testutil.AssertEqual(t, stats.RunHandlers, 0)
	testutil.AssertEqual(t, stats.Signals, 0)
}

func TestNewWithConfig(t *testing.T) {
	e := NewWithConfig(Config{Name: "ingest"})
	testutil.AssertEqual(t, e.Name(), "ingest")
}

func TestChaining(t *testing.T) {
	e := New()

	result := e.AddRunHandler(noopHandler).
		OnFinally(func(*Context) {}).
		RemoveRunHandler(noopHandler)

	testutil.AssertEqual[Engine](t, result, e)
}

func TestSignal_EmptyRunSlot(t *testing.T) {
	e := New()
	rec := &testutil.Recorder{}

	// Start and end handlers plus every callback set: none may fire.
	e.AddStartHandler(func(_ context.Context, _ Engine, _ *Context) error {
		rec.Record("start-handler")
		return nil
	})
	e.AddEndHandler(func(_ context.Context, _ Engine, _ *Context) error {
		rec.Record("end-handler")
		return nil
	})
	e.OnStart(func(*Context) { rec.Record("on-start") })
	e.OnEnd(func(*Context) { rec.Record("on-end") })
	e.OnFinally(func(*Context) { rec.Record("on-finally") })
	e.OnErrorCaught(func(*Context, error) { rec.Record("on-error-caught") })
	e.OnErrorThrown(func(*Context, error) { rec.Record("on-error-thrown") })

	pctx := NewContext()
	e.Signal(context.Background(), pctx)

	testutil.AssertEqual(t, pctx.Stage(), StageNone)
	testutil.AssertEqual(t, rec.Len(), 0)
	testutil.AssertEqual(t, e.Stats().ShortCircuits, 1)
	testutil.AssertEqual(t, e.Stats().Signals, 0)
}

func TestSignal_StageOrder(t *testing.T) {
	e := New()
	rec := &testutil.Recorder{}

	e.OnStart(func(pctx *Context) { rec.Record("callback:" + pctx.Stage().String()) })
	e.AddRunHandler(func(_ context.Context, _ Engine, pctx *Context) error {
		rec.Record("handler:" + pctx.Stage().String())
		return nil
	})
	e.OnEnd(func(pctx *Context) { rec.Record("callback:" + pctx.Stage().String()) })
	e.OnFinally(func(pctx *Context) { rec.Record("callback:" + pctx.Stage().String()) })

	pctx := NewContext()
	e.Signal(context.Background(), pctx)

	testutil.AssertEqual(t, pctx.Stage(), StageFinal)

	want := []string{"callback:start", "handler:running", "callback:end", "callback:final"}
	got := rec.Events()
	testutil.AssertEqual(t, len(got), len(want))
	for i := range want {
		testutil.AssertEqual(t, got[i], want[i])
	}
}

func TestSignal_SuccessfulRun(t *testing.T) {
	e := New()
	var executed int32

	e.AddRunHandler(func(_ context.Context, _ Engine, _ *Context) error {
		atomic.AddInt32(&executed, 1)
		return nil
	})

	pctx := NewContext()
	e.Signal(context.Background(), pctx)

	testutil.AssertEqual(t, pctx.Stage(), StageFinal)
	testutil.AssertEqual(t, atomic.LoadInt32(&executed), 1)

	stats := e.Stats()
	testutil.AssertEqual(t, stats.Signals, 1)
	testutil.AssertEqual(t, stats.Succeeded, 1)
	testutil.AssertEqual(t, stats.Failed, 0)
}

func TestAddRunHandler_Dedupe(t *testing.T) {
	e := New()
	var executed int32

	handler := func(_ context.Context, _ Engine, _ *Context) error {
		atomic.AddInt32(&executed, 1)
		return nil
	}

	e.AddRunHandler(handler)
	e.AddRunHandler(handler)
	testutil.AssertEqual(t, e.Stats().RunHandlers, 1)

	e.Signal(context.Background(), NewContext())
	testutil.AssertEqual(t, atomic.LoadInt32(&executed), 1)
}

func TestRemoveHandler_Absent(t *testing.T) {
	e := New()
	e.AddRunHandler(noopHandler)

	// Removing a handler that was never registered leaves the slot unchanged,
	// as does removing from an empty slot.
	e.RemoveRunHandler(func(_ context.Context, _ Engine, _ *Context) error { return nil })
	testutil.AssertEqual(t, e.Stats().RunHandlers, 1)

	e.RemoveStartHandler(noopHandler)
	testutil.AssertEqual(t, e.Stats().StartHandlers, 0)
}

func TestRemoveHandler(t *testing.T) {
	e := New()
	var executed int32

	handler := func(_ context.Context, _ Engine, _ *Context) error {
		atomic.AddInt32(&executed, 1)
		return nil
	}

	e.AddRunHandler(handler)
	e.RemoveRunHandler(handler)
	testutil.AssertEqual(t, e.Stats().RunHandlers, 0)

	pctx := NewContext()
	e.Signal(context.Background(), pctx)
	testutil.AssertEqual(t, pctx.Stage(), StageNone)
	testutil.AssertEqual(t, atomic.LoadInt32(&executed), 0)
}

func TestCallback_Dedupe(t *testing.T) {
	e := New()
	rec := &testutil.Recorder{}

	callback := func(*Context) { rec.Record("finally") }

	e.AddRunHandler(noopHandler)
	e.OnFinally(callback)
	e.OnFinally(callback)

	e.Signal(context.Background(), NewContext())
	testutil.AssertEqual(t, rec.Count("finally"), 1)
}

func TestRemoveCallback(t *testing.T) {
	e := New()
	rec := &testutil.Recorder{}

	callback := func(*Context) { rec.Record("finally") }

	e.AddRunHandler(noopHandler)
	e.OnFinally(callback)
	e.RemoveOnFinally(callback)

	e.Signal(context.Background(), NewContext())
	testutil.AssertEqual(t, rec.Count("finally"), 0)
}

func TestSignal_HandlerError(t *testing.T) {
	e := New()
	rec := &testutil.Recorder{}
	errBoom := errors.New("boom")

	var caughtErr, thrownErr error

	e.AddRunHandler(func(_ context.Context, _ Engine, _ *Context) error {
		return errBoom
	})
	e.OnErrorCaught(func(pctx *Context, err error) {
		rec.Record("caught:" + pctx.Stage().String())
		caughtErr = err
	})
	e.OnErrorThrown(func(pctx *Context, err error) {
		rec.Record("thrown:" + pctx.Stage().String())
		thrownErr = err
	})
	e.OnFinally(func(pctx *Context) {
		rec.Record("finally:" + pctx.Stage().String())
	})

	pctx := NewContext()
	e.Signal(context.Background(), pctx)

	// Never stuck at error or running; error callbacks see the error stage,
	// finally sees the final stage, and both sets got the same error instance.
	testutil.AssertEqual(t, pctx.Stage(), StageFinal)

	want := []string{"caught:error", "thrown:error", "finally:final"}
	got := rec.Events()
	testutil.AssertEqual(t, len(got), len(want))
	for i := range want {
		testutil.AssertEqual(t, got[i], want[i])
	}

	if caughtErr != errBoom {
		t.Errorf("caught error = %v, want %v", caughtErr, errBoom)
	}
	if thrownErr != errBoom {
		t.Errorf("thrown error = %v, want %v", thrownErr, errBoom)
	}

	stats := e.Stats()
	testutil.AssertEqual(t, stats.Failed, 1)
	testutil.AssertEqual(t, stats.Succeeded, 0)
}

func TestSignal_ErrorWithoutErrorCallbacks(t *testing.T) {
	e := New()
	var finallyRuns int32

	e.AddRunHandler(func(_ context.Context, _ Engine, _ *Context) error {
		return errors.New("swallowed")
	})
	e.OnFinally(func(*Context) { atomic.AddInt32(&finallyRuns, 1) })

	// With no error callbacks the failure is swallowed apart from the stage
	// transitions; Signal must not panic and must still complete.
	pctx := NewContext()
	e.Signal(context.Background(), pctx)

	testutil.AssertEqual(t, pctx.Stage(), StageFinal)
	testutil.AssertEqual(t, atomic.LoadInt32(&finallyRuns), 1)
}

func TestSignal_WaitsForAllSiblings(t *testing.T) {
	e := New()
	errFast := errors.New("fast failure")

	var slowDone, fastDone int32
	var slowDoneAtError int32

	// A completes in 50ms, B fails after 10ms. The stage must wait for both
	// and report B's failure regardless of completion order.
	e.AddRunHandler(
		func(_ context.Context, _ Engine, _ *Context) error {
			time.Sleep(50 * time.Millisecond)
			atomic.StoreInt32(&slowDone, 1)
			return nil
		},
		func(_ context.Context, _ Engine, _ *Context) error {
			time.Sleep(10 * time.Millisecond)
			atomic.StoreInt32(&fastDone, 1)
			return errFast
		},
	)

	var gotErr error
	e.OnErrorCaught(func(_ *Context, err error) {
		gotErr = err
		atomic.StoreInt32(&slowDoneAtError, atomic.LoadInt32(&slowDone))
	})

	pctx := NewContext()
	e.Signal(context.Background(), pctx)

	testutil.AssertEqual(t, pctx.Stage(), StageFinal)
	testutil.AssertEqual(t, atomic.LoadInt32(&slowDone), 1)
	testutil.AssertEqual(t, atomic.LoadInt32(&fastDone), 1)
	// The fan-in joined before the error transition ran.
	testutil.AssertEqual(t, atomic.LoadInt32(&slowDoneAtError), 1)
	if gotErr != errFast {
		t.Errorf("caught error = %v, want %v", gotErr, errFast)
	}
}

func TestSignal_FirstErrorInSlotOrder(t *testing.T) {
	e := New()
	errFirst := errors.New("first registered")
	errSecond := errors.New("second registered")

	e.AddRunHandler(
		func(_ context.Context, _ Engine, _ *Context) error {
			time.Sleep(30 * time.Millisecond)
			return errFirst
		},
		func(_ context.Context, _ Engine, _ *Context) error {
			return errSecond
		},
	)

	var gotErr error
	e.OnErrorCaught(func(_ *Context, err error) { gotErr = err })

	e.Signal(context.Background(), NewContext())

	// Both fail; the earlier-registered handler's error wins even though it
	// completed later.
	if gotErr != errFirst {
		t.Errorf("caught error = %v, want %v", gotErr, errFirst)
	}
}

func TestSignal_StartAndEndHandlers(t *testing.T) {
	e := New()
	rec := &testutil.Recorder{}

	e.AddStartHandler(func(_ context.Context, _ Engine, pctx *Context) error {
		rec.Record("start:" + pctx.Stage().String())
		return nil
	})
	e.AddRunHandler(func(_ context.Context, _ Engine, pctx *Context) error {
		rec.Record("run:" + pctx.Stage().String())
		return nil
	})
	e.AddEndHandler(func(_ context.Context, _ Engine, pctx *Context) error {
		rec.Record("end:" + pctx.Stage().String())
		return nil
	})

	e.Signal(context.Background(), NewContext())

	want := []string{"start:start", "run:running", "end:end"}
	got := rec.Events()
	testutil.AssertEqual(t, len(got), len(want))
	for i := range want {
		testutil.AssertEqual(t, got[i], want[i])
	}
}

func TestSignal_StartHandlerErrorSkipsRun(t *testing.T) {
	e := New()
	var runExecuted int32

	e.AddStartHandler(func(_ context.Context, _ Engine, _ *Context) error {
		return errors.New("start failed")
	})
	e.AddRunHandler(func(_ context.Context, _ Engine, _ *Context) error {
		atomic.AddInt32(&runExecuted, 1)
		return nil
	})

	pctx := NewContext()
	e.Signal(context.Background(), pctx)

	testutil.AssertEqual(t, pctx.Stage(), StageFinal)
	testutil.AssertEqual(t, atomic.LoadInt32(&runExecuted), 0)
	testutil.AssertEqual(t, e.Stats().Failed, 1)
}

func TestSignal_StartCallbackPanicFailsRun(t *testing.T) {
	e := New()
	var gotErr error

	e.AddRunHandler(noopHandler)
	e.OnStart(func(*Context) { panic("start callback blew up") })
	e.OnErrorCaught(func(_ *Context, err error) { gotErr = err })

	pctx := NewContext()
	e.Signal(context.Background(), pctx)

	testutil.AssertEqual(t, pctx.Stage(), StageFinal)

	var herr *geerrors.HandlerError
	if !errors.As(gotErr, &herr) {
		t.Fatalf("caught error = %v, want HandlerError", gotErr)
	}
	testutil.AssertEqual(t, herr.Stage, "start")
}

func TestSignal_PanickingHandler(t *testing.T) {
	e := New()
	var gotErr error

	e.AddRunHandler(func(_ context.Context, _ Engine, _ *Context) error {
		panic("handler blew up")
	})
	e.OnErrorCaught(func(_ *Context, err error) { gotErr = err })

	pctx := NewContext()
	e.Signal(context.Background(), pctx)

	testutil.AssertEqual(t, pctx.Stage(), StageFinal)

	var herr *geerrors.HandlerError
	if !errors.As(gotErr, &herr) {
		t.Fatalf("caught error = %v, want HandlerError", gotErr)
	}
	testutil.AssertEqual(t, herr.Stage, "running")
}

func TestSignal_PanickingFinallyCallback(t *testing.T) {
	e := New()

	e.AddRunHandler(noopHandler)
	e.OnFinally(func(*Context) { panic("finally blew up") })

	// Panics from finally callbacks are not caught: they propagate to the
	// Signal caller.
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic from finally callback to propagate")
		}
	}()
	e.Signal(context.Background(), NewContext())
}

func TestSignal_PanickingErrorCallback(t *testing.T) {
	e := New()

	e.AddRunHandler(func(_ context.Context, _ Engine, _ *Context) error {
		return errors.New("boom")
	})
	e.OnErrorCaught(func(*Context, error) { panic("error callback blew up") })

	pctx := NewContext()

	// Panics from error callbacks are not caught either; the run never
	// reaches the final stage.
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic from error callback to propagate")
		}
		testutil.AssertEqual(t, pctx.Stage(), StageError)
	}()
	e.Signal(context.Background(), pctx)
}

func TestSignal_SnapshotIsolation(t *testing.T) {
	e := New()
	var lateExecutions int32

	late := func(_ context.Context, _ Engine, _ *Context) error {
		atomic.AddInt32(&lateExecutions, 1)
		return nil
	}

	e.AddRunHandler(func(_ context.Context, sender Engine, _ *Context) error {
		// Registered mid-flight: not part of this call's snapshot.
		sender.AddRunHandler(late)
		return nil
	})

	e.Signal(context.Background(), NewContext())
	testutil.AssertEqual(t, atomic.LoadInt32(&lateExecutions), 0)

	e.Signal(context.Background(), NewContext())
	testutil.AssertEqual(t, atomic.LoadInt32(&lateExecutions), 1)
}

func TestSignal_NilContextDefaults(t *testing.T) {
	e := New()
	var executed int32

	e.AddRunHandler(func(ctx context.Context, _ Engine, pctx *Context) error {
		if ctx == nil {
			t.Error("handler received nil context.Context")
		}
		if pctx != Background() {
			t.Error("handler should receive the shared background context")
		}
		atomic.AddInt32(&executed, 1)
		return nil
	})

	e.Signal(nil, nil) //nolint:staticcheck // nil context is part of the contract

	testutil.AssertEqual(t, atomic.LoadInt32(&executed), 1)
	testutil.AssertEqual(t, Background().Stage(), StageFinal)
}

func TestSignal_CancellationIsAdvisory(t *testing.T) {
	e := New()
	var observed int32

	e.AddRunHandler(func(ctx context.Context, _ Engine, _ *Context) error {
		if ctx.Err() != nil {
			atomic.StoreInt32(&observed, 1)
			return ctx.Err()
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A pre-canceled token still reaches the handler; the engine never
	// aborts on its own.
	pctx := NewContext()
	e.Signal(ctx, pctx)

	testutil.AssertEqual(t, atomic.LoadInt32(&observed), 1)
	testutil.AssertEqual(t, pctx.Stage(), StageFinal)
	testutil.AssertEqual(t, e.Stats().Failed, 1)
}

func TestSignal_Concurrent(t *testing.T) {
	e := New()
	var executed int32

	e.AddRunHandler(func(_ context.Context, _ Engine, _ *Context) error {
		atomic.AddInt32(&executed, 1)
		return nil
	})

	const numSignals = 10
	var wg sync.WaitGroup
	for i := 0; i < numSignals; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Signal(context.Background(), NewContext())
		}()
	}
	wg.Wait()

	testutil.AssertEqual(t, atomic.LoadInt32(&executed), int32(numSignals))
	testutil.AssertEqual(t, e.Stats().Signals, int64(numSignals))
}

func TestStats(t *testing.T) {
	e := New()

	e.AddStartHandler(noopHandler)
	e.AddRunHandler(
		func(_ context.Context, _ Engine, _ *Context) error { return nil },
		func(_ context.Context, _ Engine, _ *Context) error { return fmt.Errorf("fail") },
	)

	e.Signal(context.Background(), NewContext())

	stats := e.Stats()
	testutil.AssertEqual(t, stats.StartHandlers, 1)
	testutil.AssertEqual(t, stats.RunHandlers, 2)
	testutil.AssertEqual(t, stats.EndHandlers, 0)
	testutil.AssertEqual(t, stats.Signals, 1)
	testutil.AssertEqual(t, stats.Failed, 1)
}

func BenchmarkSignal(b *testing.B) {
	e := New()
	e.AddRunHandler(noopHandler)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Signal(context.Background(), NewContext())
	}
}

func BenchmarkSignal_FanOut(b *testing.B) {
	// Distinct literals so the identity dedupe keeps all four.
	e := New()
	e.AddRunHandler(
		func(_ context.Context, _ Engine, _ *Context) error { return nil },
		func(_ context.Context, _ Engine, _ *Context) error { return nil },
		func(_ context.Context, _ Engine, _ *Context) error { return nil },
		func(_ context.Context, _ Engine, _ *Context) error { return nil },
	)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Signal(context.Background(), NewContext())
	}
}
