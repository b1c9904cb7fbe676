package trigger

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	ctxutil "github.com/vnykmshr/goevent/pkg/common/context"
	geerrors "github.com/vnykmshr/goevent/pkg/common/errors"
	"github.com/vnykmshr/goevent/pkg/common/validation"
	"github.com/vnykmshr/goevent/pkg/dispatch/pipeline"
	"github.com/vnykmshr/goevent/pkg/metrics"
)

// Entry describes a registered schedule entry.
type Entry struct {
	ID       string
	RunAt    time.Time
	Interval time.Duration // Zero for one-time and cron entries
	Expr     string        // Cron expression, empty otherwise
	Created  time.Time
}

// Trigger signals pipeline engines on a schedule.
type Trigger interface {
	// Basic scheduling
	At(id string, engine pipeline.Engine, runAt time.Time) error
	After(id string, engine pipeline.Engine, delay time.Duration) error
	Every(id string, engine pipeline.Engine, interval time.Duration) error

	// Cron scheduling
	Cron(id string, cronExpr string, engine pipeline.Engine) error

	// Entry management
	Cancel(id string) bool
	CancelAll()
	List() []Entry

	// Lifecycle
	Start() error
	Stop() <-chan struct{}
}

// Config holds trigger configuration.
type Config struct {
	// Name identifies the trigger in logs and metrics.
	Name string

	// Location is the timezone for cron evaluation (default: time.Local).
	Location *time.Location

	// TickInterval is how often due entries are checked (default: 50ms).
	TickInterval time.Duration

	// MaxEntries caps the number of schedule entries (default: 10000).
	MaxEntries int

	// FireTimeout bounds each fired signal via context cancellation.
	// Zero means no timeout. Cancellation is advisory to handlers.
	FireTimeout time.Duration

	// NewContext produces the run context for each fire.
	// If nil, every fire gets a fresh pipeline.NewContext().
	NewContext func() *pipeline.Context

	// Logger receives fire and lifecycle events. If nil, slog.Default() is used.
	Logger *slog.Logger

	// Metrics, when non-nil, receives fire counts and entry gauges.
	Metrics *metrics.Registry
}

type scheduledEntry struct {
	id           string
	engine       pipeline.Engine
	runAt        time.Time
	interval     time.Duration
	expr         string
	cronSchedule cron.Schedule
	created      time.Time
}

// trigger is the tick-loop implementation.
type trigger struct {
	name         string
	location     *time.Location
	tickInterval time.Duration
	maxEntries   int
	fireTimeout  time.Duration
	newContext   func() *pipeline.Context
	logger       *slog.Logger
	metrics      *metrics.Registry
	cronParser   cron.Parser

	mu      sync.RWMutex
	entries map[string]*scheduledEntry
	ticker  *time.Ticker
	done    chan struct{}
	stopped chan struct{}
	running bool
}

// New creates a trigger with default configuration.
func New() Trigger {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a trigger with custom configuration.
func NewWithConfig(cfg Config) Trigger {
	location := cfg.Location
	if location == nil {
		location = time.Local
	}

	tickInterval := cfg.TickInterval
	if tickInterval <= 0 {
		tickInterval = 50 * time.Millisecond
	}

	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 10000
	}

	newContext := cfg.NewContext
	if newContext == nil {
		newContext = pipeline.NewContext
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &trigger{
		name:         cfg.Name,
		location:     location,
		tickInterval: tickInterval,
		maxEntries:   maxEntries,
		fireTimeout:  cfg.FireTimeout,
		newContext:   newContext,
		logger:       logger,
		metrics:      cfg.Metrics,
		cronParser:   cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		entries:      make(map[string]*scheduledEntry),
		done:         make(chan struct{}),
	}
}

func (t *trigger) At(id string, engine pipeline.Engine, runAt time.Time) error {
	if err := validation.ValidateID("trigger", "id", id); err != nil {
		return err
	}
	if engine == nil {
		return geerrors.NewValidationError("trigger", "engine", nil, "cannot be nil")
	}
	if runAt.IsZero() {
		return geerrors.NewValidationError("trigger", "runAt", runAt, "cannot be zero")
	}

	return t.add(&scheduledEntry{
		id:      id,
		engine:  engine,
		runAt:   runAt,
		created: time.Now(),
	})
}

func (t *trigger) After(id string, engine pipeline.Engine, delay time.Duration) error {
	return t.At(id, engine, time.Now().Add(delay))
}

func (t *trigger) Every(id string, engine pipeline.Engine, interval time.Duration) error {
	if err := validation.ValidateID("trigger", "id", id); err != nil {
		return err
	}
	if engine == nil {
		return geerrors.NewValidationError("trigger", "engine", nil, "cannot be nil")
	}
	if interval <= 0 {
		return geerrors.NewValidationError("trigger", "interval", interval, "must be positive")
	}

	return t.add(&scheduledEntry{
		id:       id,
		engine:   engine,
		runAt:    time.Now(),
		interval: interval,
		created:  time.Now(),
	})
}

func (t *trigger) Cron(id string, cronExpr string, engine pipeline.Engine) error {
	if err := validation.ValidateID("trigger", "id", id); err != nil {
		return err
	}
	if engine == nil {
		return geerrors.NewValidationError("trigger", "engine", nil, "cannot be nil")
	}
	if err := validation.ValidateNotEmpty("trigger", "cronExpr", cronExpr); err != nil {
		return err
	}

	schedule, err := t.cronParser.Parse(cronExpr)
	if err != nil {
		return geerrors.NewValidationError("trigger", "cronExpr", cronExpr, "invalid cron expression").
			WithHint(err.Error())
	}

	now := time.Now().In(t.location)
	return t.add(&scheduledEntry{
		id:           id,
		engine:       engine,
		runAt:        schedule.Next(now),
		expr:         cronExpr,
		cronSchedule: schedule,
		created:      time.Now(),
	})
}

func (t *trigger) add(entry *scheduledEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[entry.id]; exists {
		return geerrors.NewValidationError("trigger", "id", entry.id, "already scheduled").
			WithHint("use a different id or cancel the existing entry first")
	}
	if len(t.entries) >= t.maxEntries {
		return geerrors.NewOperationError("trigger", "add", geerrors.ErrCapacityExceeded)
	}

	t.entries[entry.id] = entry
	t.updateEntryGauge(len(t.entries))
	return nil
}

func (t *trigger) Cancel(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[id]; exists {
		delete(t.entries, id)
		t.updateEntryGauge(len(t.entries))
		return true
	}
	return false
}

func (t *trigger) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = make(map[string]*scheduledEntry)
	t.updateEntryGauge(0)
}

func (t *trigger) List() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entries := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		entries = append(entries, Entry{
			ID:       e.id,
			RunAt:    e.runAt,
			Interval: e.interval,
			Expr:     e.expr,
			Created:  e.created,
		})
	}

	// Sort by run time
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RunAt.Before(entries[j].RunAt)
	})

	return entries
}

func (t *trigger) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return geerrors.NewOperationError("trigger", "Start", geerrors.ErrAlreadyRunning).
			WithContext("call Stop() first")
	}

	t.running = true
	t.done = make(chan struct{})
	t.stopped = make(chan struct{})
	t.ticker = time.NewTicker(t.tickInterval)

	// The loop gets its own references so a later Start cannot race with a
	// loop that is still winding down.
	go t.run(t.done, t.stopped, t.ticker)
	return nil
}

// Stop halts the tick loop. The returned channel closes once the loop
// goroutine has exited; fires already launched may still be in flight.
func (t *trigger) Stop() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		stopped := make(chan struct{})
		close(stopped)
		return stopped
	}

	t.running = false
	close(t.done)
	t.ticker.Stop()
	return t.stopped
}

func (t *trigger) run(done <-chan struct{}, stopped chan<- struct{}, ticker *time.Ticker) {
	defer close(stopped)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			t.fireDueEntries()
		}
	}
}

// fireDueEntries collects entries whose run time has passed, reschedules the
// repeating ones, and fires each due entry on its own goroutine so a slow
// pipeline cannot stall the tick loop.
func (t *trigger) fireDueEntries() {
	now := time.Now()

	t.mu.Lock()
	if len(t.entries) == 0 {
		t.mu.Unlock()
		return
	}

	due := make([]*scheduledEntry, 0, len(t.entries))
	for id, entry := range t.entries {
		if now.Before(entry.runAt) {
			continue
		}
		due = append(due, entry)

		switch {
		case entry.interval > 0:
			entry.runAt = now.Add(entry.interval)
		case entry.cronSchedule != nil:
			entry.runAt = entry.cronSchedule.Next(now.In(t.location))
		default:
			delete(t.entries, id)
		}
	}
	t.updateEntryGauge(len(t.entries))
	t.mu.Unlock()

	for _, entry := range due {
		go t.fire(entry)
	}
}

func (t *trigger) fire(entry *scheduledEntry) {
	ctx := context.Background()
	if t.fireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = ctxutil.WithTimeoutOrCancel(ctx, t.fireTimeout)
		defer cancel()
	}

	t.logger.Debug("firing scheduled signal", "trigger", t.name, "entry", entry.id)
	if t.metrics != nil {
		t.metrics.TriggerFires.WithLabelValues(t.name).Inc()
	}

	entry.engine.Signal(ctx, t.newContext())
}

func (t *trigger) updateEntryGauge(n int) {
	if t.metrics != nil {
		t.metrics.TriggerEntries.WithLabelValues(t.name).Set(float64(n))
	}
}
