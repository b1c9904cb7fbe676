package registry

import (
	"sort"
	"sync"

	geerrors "github.com/vnykmshr/goevent/pkg/common/errors"
	"github.com/vnykmshr/goevent/pkg/dispatch/pipeline"
)

// Registry maps string identifiers to pipeline engines so applications can
// reach named pipelines globally.
type Registry interface {
	// Get returns the engine bound to id. It fails with ErrNotFound if the
	// id is unbound and with ErrNilEngine if the binding holds no engine.
	Get(id string) (pipeline.Engine, error)

	// Register binds id to engine and reports whether the binding was added.
	// An empty id or an already-bound id is rejected. A nil engine is a
	// valid binding; Get reports it as ErrNilEngine.
	Register(id string, engine pipeline.Engine) bool

	// Unregister removes the binding for id and reports whether one was removed.
	Unregister(id string) bool

	// IDs returns the bound identifiers in sorted order.
	IDs() []string

	// Len returns the number of bindings.
	Len() int
}

// registry implements the Registry interface.
type registry struct {
	mu        sync.RWMutex
	pipelines map[string]pipeline.Engine
}

// New creates an empty registry.
func New() Registry {
	return &registry{
		pipelines: make(map[string]pipeline.Engine),
	}
}

func (r *registry) Get(id string) (pipeline.Engine, error) {
	if id == "" {
		return nil, geerrors.ErrEmptyID
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	engine, exists := r.pipelines[id]
	if !exists {
		return nil, geerrors.NewOperationError("registry", "Get", geerrors.ErrNotFound).
			WithContext("id " + id)
	}
	if engine == nil {
		return nil, geerrors.NewOperationError("registry", "Get", geerrors.ErrNilEngine).
			WithContext("id " + id)
	}
	return engine, nil
}

func (r *registry) Register(id string, engine pipeline.Engine) bool {
	if id == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pipelines[id]; exists {
		return false
	}
	r.pipelines[id] = engine
	return true
}

func (r *registry) Unregister(id string) bool {
	if id == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pipelines[id]; !exists {
		return false
	}
	delete(r.pipelines, id)
	return true
}

func (r *registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.pipelines))
	for id := range r.pipelines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pipelines)
}

// defaultRegistry is the process-wide registry used by the package-level
// convenience functions.
var defaultRegistry = New()

// Default returns the process-wide registry.
func Default() Registry {
	return defaultRegistry
}

// Get looks up id in the default registry.
func Get(id string) (pipeline.Engine, error) {
	return defaultRegistry.Get(id)
}

// Register binds id in the default registry.
func Register(id string, engine pipeline.Engine) bool {
	return defaultRegistry.Register(id, engine)
}

// Unregister removes id from the default registry.
func Unregister(id string) bool {
	return defaultRegistry.Unregister(id)
}
