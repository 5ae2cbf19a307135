package join

import (
	"context"
	"sync"
	"sync/atomic"

	sdkerrors "github.com/wehubfusion/Ariadne/pkg/errors"
)

// defaultInstance is the process-wide engine behind the package-level Join.
// It is configuration state, not per-call state: set it once at startup, then
// read it on every call. Swapping it while joins are in flight is not
// coordinated with those calls.
var defaultInstance atomic.Pointer[Engine]

// SetInstance replaces the process-wide default engine. Passing nil restores
// the built-in default pipeline.
func SetInstance(e *Engine) {
	defaultInstance.Store(e)
}

// Instance returns the process-wide default engine, creating the default
// pipeline on first use.
func Instance() *Engine {
	if e := defaultInstance.Load(); e != nil {
		return e
	}
	e := New()
	if defaultInstance.CompareAndSwap(nil, e) {
		return e
	}
	return defaultInstance.Load()
}

// Join runs one join operation on the process-wide default engine. See
// Engine.Join.
func Join(ctx context.Context, p Params, metadata any) (Result, error) {
	return Instance().Join(ctx, p, metadata)
}

// Registry holds independently named engines so different call sites can use
// differently configured pipelines. Safe for concurrent use, though the usual
// lifecycle is register-at-startup, read-per-call.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]*Engine
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]*Engine)}
}

// Register stores an engine under name, replacing any previous entry.
func (r *Registry) Register(name string, e *Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[name] = e
}

// Get returns the engine registered under name.
func (r *Registry) Get(name string) (*Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[name]
	if !ok {
		return nil, sdkerrors.NewError(sdkerrors.CodeValidation, name, sdkerrors.ErrEngineNotFound)
	}
	return e, nil
}

// Join runs one join operation on the engine registered under name.
func (r *Registry) Join(ctx context.Context, name string, p Params, metadata any) (Result, error) {
	e, err := r.Get(name)
	if err != nil {
		return Result{}, err
	}
	return e.Join(ctx, p, metadata)
}
