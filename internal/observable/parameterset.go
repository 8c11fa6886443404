package observable

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/easternanemone/rust-daq-sub009/internal/daqerr"
)

// Erased is the type-erased view of an Observable[T] a ParameterSet stores,
// letting the RPC surface enumerate and read/write parameters of unknown
// concrete type via JSON.
type Erased interface {
	Name() string
	Metadata() Metadata
	GetJSON() (json.RawMessage, error)
	SetJSON(ctx context.Context, data []byte) error
	WatchJSON(stop <-chan struct{}) <-chan json.RawMessage
}

// ParameterSet is an insertion-ordered name -> Observable registry with
// unique keys, exposing both type-erased and typed access.
type ParameterSet struct {
	mu      sync.RWMutex
	order   []string
	byName  map[string]Erased
}

// NewParameterSet returns an empty ParameterSet.
func NewParameterSet() *ParameterSet {
	return &ParameterSet{byName: make(map[string]Erased)}
}

// Register inserts obs under its own Name(). Duplicate names are rejected.
func (p *ParameterSet) Register(obs Erased) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	name := obs.Name()
	if _, exists := p.byName[name]; exists {
		return daqerr.New(daqerr.Duplicate, "parameter %q already registered", name)
	}
	p.byName[name] = obs
	p.order = append(p.order, name)
	return nil
}

// Names returns parameter names in registration order.
func (p *ParameterSet) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Get returns the type-erased Observable for name, if registered.
func (p *ParameterSet) Get(name string) (Erased, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	o, ok := p.byName[name]
	return o, ok
}

// GetTyped returns the concrete *Observable[T] for name, asserting its type.
// Callers that registered the parameter themselves know the type; RPC
// handlers use GetJSON/SetJSON via Get instead.
func GetTyped[T any](p *ParameterSet, name string) (*Observable[T], bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	o, ok := p.byName[name]
	if !ok {
		return nil, false
	}
	typed, ok := o.(*Observable[T])
	return typed, ok
}

// Iter calls fn for every registered parameter in registration order.
func (p *ParameterSet) Iter(fn func(name string, obs Erased)) {
	p.mu.RLock()
	ordered := make([]string, len(p.order))
	copy(ordered, p.order)
	p.mu.RUnlock()
	for _, name := range ordered {
		p.mu.RLock()
		obs := p.byName[name]
		p.mu.RUnlock()
		fn(name, obs)
	}
}

// GetJSON looks up name and returns its current value JSON-encoded.
func (p *ParameterSet) GetJSON(name string) (json.RawMessage, error) {
	obs, ok := p.Get(name)
	if !ok {
		return nil, daqerr.New(daqerr.DeviceNotFound, "parameter %q not found", name)
	}
	return obs.GetJSON()
}

// WatchJSON looks up name and returns a type-erased stream of its
// subsequent values, JSON-encoded. The returned channel closes when stop is
// closed.
func (p *ParameterSet) WatchJSON(name string, stop <-chan struct{}) (<-chan json.RawMessage, error) {
	obs, ok := p.Get(name)
	if !ok {
		return nil, daqerr.New(daqerr.DeviceNotFound, "parameter %q not found", name)
	}
	return obs.WatchJSON(stop), nil
}

// SetJSON looks up name and sets its value from JSON-encoded data.
func (p *ParameterSet) SetJSON(ctx context.Context, name string, data []byte) error {
	obs, ok := p.Get(name)
	if !ok {
		return daqerr.New(daqerr.DeviceNotFound, "parameter %q not found", name)
	}
	if obs.Metadata().ReadOnly {
		return daqerr.New(daqerr.InvalidState, "parameter %q is read-only", name)
	}
	return obs.SetJSON(ctx, data)
}
