// Package pipeline implements the Tee (C5): one owned primary consumer of a
// measurement stream, a lossy broadcast channel, and zero-or-more synchronous
// observers. Channel/goroutine/WaitGroup shape is grounded on
// engine/internal/pipeline/pipeline.go's stage-worker structure in the
// teacher repo; the drop-on-full broadcast reuses internal/events'
// Broadcaster, itself grounded on engine/telemetry/events/events.go.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/easternanemone/rust-daq-sub009/internal/events"
	"github.com/easternanemone/rust-daq-sub009/internal/obslog"
)

// Observer receives a synchronous, inline callback for every item flowing
// through a Tee. Implementations MUST complete in under ObserverBudget
// (default 100 microseconds, spec.md §5's observer timing floor); real work
// must be offloaded via a non-blocking send on the observer's own bounded
// channel, dropping on Full rather than blocking the Tee.
type Observer[M any] interface {
	OnItem(m M)
}

// ObserverBudget is the default per-call budget a synchronous observer is
// contractually bound to. Exceeding it produces a logged warning, never an
// abort.
const ObserverBudget = 100 * time.Microsecond

// Tee couples one upstream input channel to an optional reliable primary
// sink, a lossy broadcast, and a set of synchronous observers.
type Tee[M any] struct {
	logger    obslog.Logger
	primary   chan M // nil if no reliable primary sink is configured
	broadcast *events.Broadcaster[M]

	mu        sync.RWMutex
	observers map[int64]Observer[M]
	nextObsID int64
	budget    time.Duration

	done chan struct{}
	wg   sync.WaitGroup
}

// Option configures a Tee at construction.
type Option[M any] func(*Tee[M])

// WithPrimary installs a reliable bounded primary sender. Sending to it is
// the data plane's only backpressure point: delivery blocks until the
// receiver takes the item or the input's ctx is cancelled.
func WithPrimary[M any](bufferSize int) Option[M] {
	return func(t *Tee[M]) { t.primary = make(chan M, bufferSize) }
}

// WithObserverBudget overrides the default 100us synchronous-observer budget.
func WithObserverBudget[M any](d time.Duration) Option[M] {
	return func(t *Tee[M]) { t.budget = d }
}

// New builds a Tee. logger may be nil (obslog.New(nil) is used).
func New[M any](logger obslog.Logger, opts ...Option[M]) *Tee[M] {
	if logger == nil {
		logger = obslog.New(nil)
	}
	t := &Tee[M]{
		logger:    logger,
		broadcast: events.NewBroadcaster[M](),
		observers: make(map[int64]Observer[M]),
		budget:    ObserverBudget,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Primary returns the reliable sink's receive side, or nil if none was
// configured.
func (t *Tee[M]) Primary() <-chan M {
	if t.primary == nil {
		return nil
	}
	return t.primary
}

// Subscribe returns a lossy broadcast subscription. Lagging consumers simply
// miss items that arrived while their channel was full; there is no Lagged
// signal distinct from a dropped-item counter in this implementation (see
// Broadcaster.Stats).
func (t *Tee[M]) Subscribe(buffer int) *events.Subscription[M] {
	return t.broadcast.Subscribe(buffer)
}

// RegisterObserver adds a synchronous observer and returns an unregister func.
func (t *Tee[M]) RegisterObserver(obs Observer[M]) (unregister func()) {
	t.mu.Lock()
	t.nextObsID++
	id := t.nextObsID
	t.observers[id] = obs
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.observers, id)
		t.mu.Unlock()
	}
}

// RegisterInput spawns a goroutine draining rx until it closes (or ctx is
// cancelled), delivering each item to observers, the primary sink, and the
// broadcast, in that order per spec.md §4.5.
func (t *Tee[M]) RegisterInput(ctx context.Context, rx <-chan M) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.done:
				return
			case m, ok := <-rx:
				if !ok {
					return
				}
				t.deliver(ctx, m)
			}
		}
	}()
}

func (t *Tee[M]) deliver(ctx context.Context, m M) {
	t.mu.RLock()
	observers := make([]Observer[M], 0, len(t.observers))
	for _, o := range t.observers {
		observers = append(observers, o)
	}
	t.mu.RUnlock()

	for _, obs := range observers {
		start := time.Now()
		obs.OnItem(m)
		if elapsed := time.Since(start); elapsed > t.budget {
			t.logger.WarnCtx(ctx, "pipeline: observer exceeded budget",
				"elapsed_us", elapsed.Microseconds(), "budget_us", t.budget.Microseconds())
		}
	}

	if t.primary != nil {
		select {
		case t.primary <- m:
		case <-ctx.Done():
			return
		}
	}

	t.broadcast.Publish(m)
}

// Stop signals RegisterInput goroutines to exit and waits for them.
func (t *Tee[M]) Stop() {
	close(t.done)
	t.wg.Wait()
	if t.primary != nil {
		close(t.primary)
	}
}
