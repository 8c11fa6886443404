// Package observable implements the reactive typed parameter cell (C2).
// Semantics — including the decision to hold one lock across validation, the
// optional hardware write-through, and the watch-channel publish — are ported
// from the doc comments of
// _examples/original_source/crates/daq-core/src/observable.rs, which name
// this exact ordering requirement and the dtype="enum" / non-finite-bound
// rules quoted in SPEC_FULL.md §4.
package observable

import (
	"context"
	"encoding/json"
	"math"
	"sync"

	"github.com/easternanemone/rust-daq-sub009/internal/daqerr"
	"github.com/easternanemone/rust-daq-sub009/internal/events"
)

// Metadata describes an Observable's declared type, units, and (optionally)
// its validated bounds or enumerated choices for GUI rendering.
type Metadata struct {
	Units       string   `json:"units,omitempty"`
	Description string   `json:"description,omitempty"`
	Dtype       string   `json:"dtype"`
	ReadOnly    bool     `json:"read_only"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	EnumValues  []string `json:"enum_values,omitempty"`
}

// Numeric bounds the types WithRange/WithRangeIntrospectable accept.
type Numeric interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

// Observable is a reactive typed cell: {name, current value, metadata, watch
// channel, optional validator, optional hardware write-through}. T is
// restricted by convention (not the type system) to JSON-serialisable types
// so the RPC surface can round-trip it without a compile-time type map.
type Observable[T any] struct {
	mu          sync.Mutex
	name        string
	current     T
	metadata    Metadata
	validator   func(T) error
	hwWrite     func(ctx context.Context, v T) error
	broadcaster *events.Broadcaster[T]
}

// New constructs an Observable with an initial value. The validator, if one
// is later installed, is NOT run against initial — only subsequent Set calls
// must satisfy it.
func New[T any](name string, initial T, dtype string) *Observable[T] {
	return &Observable[T]{
		name:        name,
		current:     initial,
		metadata:    Metadata{Dtype: dtype},
		broadcaster: events.NewBroadcaster[T](),
	}
}

// WithUnits sets the reported units string and returns the receiver for chaining.
func (o *Observable[T]) WithUnits(units string) *Observable[T] {
	o.metadata.Units = units
	return o
}

// WithDescription sets a human-readable description.
func (o *Observable[T]) WithDescription(desc string) *Observable[T] {
	o.metadata.Description = desc
	return o
}

// WithReadOnly marks the observable as not settable via the RPC surface:
// ParameterSet.SetJSON rejects writes to it, while Set itself does not check
// the flag.
func (o *Observable[T]) WithReadOnly(ro bool) *Observable[T] {
	o.metadata.ReadOnly = ro
	return o
}

// WithHardwareWrite installs a callback invoked (and awaited) before the
// value is published. If it returns an error, the value and subscribers are
// left unchanged and Set returns that error.
func (o *Observable[T]) WithHardwareWrite(fn func(ctx context.Context, v T) error) *Observable[T] {
	o.hwWrite = fn
	return o
}

// WithValidator installs a bare validation function without touching
// metadata — "validation only" per the Rust with_range/with_validator split.
func (o *Observable[T]) WithValidator(fn func(T) error) *Observable[T] {
	o.validator = fn
	return o
}

// WithRange installs a numeric bounds validator without publishing the
// bounds to metadata (non-introspectable).
func WithRange[T Numeric](o *Observable[T], min, max T) *Observable[T] {
	o.validator = func(v T) error {
		if v < min || v > max {
			return daqerr.New(daqerr.InvalidValue, "%s: value %v outside [%v,%v]", o.name, v, min, max)
		}
		return nil
	}
	return o
}

// WithRangeIntrospectable installs a numeric bounds validator AND publishes
// min/max into metadata for GUI rendering. Non-finite bounds are rejected
// with InvalidConfig at construction time, per the Rust constructor's
// explicit NaN/Infinity rejection.
func WithRangeIntrospectable[T Numeric](o *Observable[T], min, max T) (*Observable[T], error) {
	minF, maxF := float64(min), float64(max)
	if math.IsNaN(minF) || math.IsInf(minF, 0) || math.IsNaN(maxF) || math.IsInf(maxF, 0) {
		return nil, daqerr.New(daqerr.InvalidConfig, "%s: non-finite range bound", o.name)
	}
	WithRange(o, min, max)
	o.metadata.Min = &minF
	o.metadata.Max = &maxF
	return o, nil
}

// WithChoices installs a membership validator without publishing choices to
// metadata.
func WithChoices[T comparable](o *Observable[T], choices []T) *Observable[T] {
	set := make(map[T]struct{}, len(choices))
	for _, c := range choices {
		set[c] = struct{}{}
	}
	o.validator = func(v T) error {
		if _, ok := set[v]; !ok {
			return daqerr.New(daqerr.InvalidValue, "%s: value %v not in allowed choices", o.name, v)
		}
		return nil
	}
	return o
}

// WithChoicesIntrospectable installs a membership validator for a string
// Observable and publishes the choice list to metadata with dtype="enum" —
// not "string" — per the original proto contract cited in observable.rs.
func WithChoicesIntrospectable(o *Observable[string], choices []string) *Observable[string] {
	WithChoices(o, choices)
	o.metadata.Dtype = "enum"
	o.metadata.EnumValues = append([]string(nil), choices...)
	return o
}

// Name returns the observable's parameter name.
func (o *Observable[T]) Name() string { return o.name }

// Metadata returns a copy of the observable's current metadata.
func (o *Observable[T]) Metadata() Metadata { return o.metadata }

// Get returns a snapshot of the current value. It takes the same mutex Set
// holds across validation, the hardware write and publish, so it is not
// lock-free: a Get waits while a Set is in progress.
func (o *Observable[T]) Get() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Set validates v, optionally runs the hardware write-through, and publishes
// the new value, all under one held lock so a concurrent Set cannot interleave
// its hardware write between this call's callback and its publish. This is
// the strict-serialization resolution of the spec's Observable Open Question:
// implementers must not release the lock between the callback and the watch
// publish, or two racing Sets could leave the logical value disagreeing with
// the last hardware write.
func (o *Observable[T]) Set(ctx context.Context, v T) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.validator != nil {
		if err := o.validator(v); err != nil {
			return err
		}
	}
	if o.hwWrite != nil {
		if err := o.hwWrite(ctx, v); err != nil {
			if _, ok := daqerr.As(err); ok {
				return err
			}
			return daqerr.Wrap(daqerr.Instrument, err, "%s: hardware write failed", o.name)
		}
	}
	o.current = v
	o.broadcaster.Publish(v)
	return nil
}

// Watch returns a subscription receiving every published value in write
// order, from this point forward.
func (o *Observable[T]) Watch(buffer int) *events.Subscription[T] {
	return o.broadcaster.Subscribe(buffer)
}

// GetJSON returns the current value JSON-encoded, for the type-erased RPC
// surface.
func (o *Observable[T]) GetJSON() (json.RawMessage, error) {
	return json.Marshal(o.Get())
}

// SetJSON decodes data into T and calls Set.
func (o *Observable[T]) SetJSON(ctx context.Context, data []byte) error {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return daqerr.Wrap(daqerr.InvalidValue, err, "%s: invalid JSON value", o.name)
	}
	return o.Set(ctx, v)
}

// WatchJSON is the type-erased counterpart to Watch, used by the RPC
// surface's StreamParameterChanges: it re-marshals every published value to
// JSON on a background goroutine that exits when stop is closed.
func (o *Observable[T]) WatchJSON(stop <-chan struct{}) <-chan json.RawMessage {
	sub := o.Watch(8)
	out := make(chan json.RawMessage, 8)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case v, ok := <-sub.C():
				if !ok {
					return
				}
				data, err := json.Marshal(v)
				if err != nil {
					continue
				}
				select {
				case out <- data:
				case <-stop:
					return
				}
			case <-stop:
				return
			}
		}
	}()
	return out
}
