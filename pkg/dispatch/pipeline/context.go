package pipeline

import "sync/atomic"

// Stage identifies one phase of a pipeline run.
type Stage int32

const (
	// StageNone is the state of a context that has never been signaled.
	StageNone Stage = iota

	// StageStart is entered before start handlers run.
	StageStart

	// StageRunning is entered while run handlers execute.
	StageRunning

	// StageEnd is entered after all run handlers completed successfully.
	StageEnd

	// StageError is entered when a handler or stage callback failed.
	StageError

	// StageFinal is the terminal stage of every non-short-circuited run.
	StageFinal
)

// String returns the lowercase name of the stage.
func (s Stage) String() string {
	switch s {
	case StageNone:
		return "none"
	case StageStart:
		return "start"
	case StageRunning:
		return "running"
	case StageEnd:
		return "end"
	case StageError:
		return "error"
	case StageFinal:
		return "final"
	default:
		return "unknown"
	}
}

// Context is the mutable token passed through every stage of a pipeline run.
// It carries the current stage, advanced exclusively by the engine during a
// Signal call. A context may be reused across runs; the engine resets nothing
// between calls, so the stage observed after a run is the last stage reached.
type Context struct {
	stage atomic.Int32
}

// NewContext creates a fresh context in StageNone.
func NewContext() *Context {
	return &Context{}
}

// Stage returns the stage the context is currently in.
func (c *Context) Stage() Stage {
	return Stage(c.stage.Load())
}

func (c *Context) setStage(s Stage) {
	c.stage.Store(int32(s))
}

var background = NewContext()

// Background returns the process-wide shared context used whenever a caller
// signals without an explicit context. It is never owned by one caller:
// concurrent Signal calls that both default to it will race on its stage.
// That sharing is a documented hazard of omitting the context, not a
// guarantee the engine protects against. Callers that inspect the stage
// after a run should pass their own context.
func Background() *Context {
	return background
}
