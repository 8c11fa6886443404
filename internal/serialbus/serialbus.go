// Package serialbus provides a registry of shared serial-port
// handles, for RS-485 multidrop buses where several logical devices share
// one physical port. Ported directly from
// _examples/original_source/crates/daq-driver-thorlabs/src/shared_ports.rs:
// a health-checked get-or-open with a short flush timeout, stale-port
// eviction on failure, and reopen-on-next-use. The Rust implementation uses
// a package-level OnceLock<RwLock<HashMap>>; this package uses a
// sync.RWMutex-guarded map inside a Registry value built by NewRegistry, with
// no package-level instance, so devices share a port only when they share
// one Registry. io.ReadWriteCloser stands in for
// tokio_serial::SerialStream since the standard library has no serial port
// type of its own.
package serialbus

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/easternanemone/rust-daq-sub009/internal/daqerr"
	"github.com/easternanemone/rust-daq-sub009/internal/obslog"
)

// Port is the minimal contract a shared serial connection must satisfy.
// Flush is used as the liveness probe; real serial port implementations
// (e.g. a cgo or USB-CDC backed driver) wire this to their device handle.
type Port interface {
	io.ReadWriteCloser
	Flush() error
}

// Opener constructs a new Port for a path, applying driver-specific line
// settings (baud rate, parity, stop bits). Supplied by callers since this
// package has no serial transport of its own.
type Opener func(ctx context.Context, path string, timeout time.Duration) (Port, error)

type sharedPort struct {
	mu   sync.Mutex
	port Port
}

// Registry is a shared, health-checked serial-port pool keyed by device
// path. The zero value is not usable; construct with NewRegistry.
type Registry struct {
	logger obslog.Logger

	mu    sync.RWMutex
	ports map[string]*sharedPort
}

// NewRegistry builds an empty Registry. logger may be nil.
func NewRegistry(logger obslog.Logger) *Registry {
	if logger == nil {
		logger = obslog.New(nil)
	}
	return &Registry{logger: logger, ports: make(map[string]*sharedPort)}
}

// GetExisting returns the already-open shared port for path, if any,
// without a health check.
func (r *Registry) GetExisting(path string) (*sharedPort, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sp, ok := r.ports[path]
	return sp, ok
}

// Remove evicts path from the registry (e.g. after a failed health check),
// reporting whether a port was actually removed.
func (r *Registry) Remove(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ports[path]; ok {
		delete(r.ports, path)
		return true
	}
	return false
}

// Count returns the number of currently open shared ports.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ports)
}

// CloseAll closes and forgets every open port; used in shutdown and tests.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for path, sp := range r.ports {
		sp.mu.Lock()
		_ = sp.port.Close()
		sp.mu.Unlock()
		delete(r.ports, path)
	}
}

// GetOrOpen returns a healthy shared port for path, reusing an existing
// connection if its Flush health check succeeds within healthCheckTimeout,
// and opening (via open) otherwise. A stale port is evicted before the
// reopen attempt.
func (r *Registry) GetOrOpen(ctx context.Context, path string, openTimeout, healthCheckTimeout time.Duration, open Opener) (*sharedPort, error) {
	if sp, ok := r.GetExisting(path); ok {
		if r.healthy(ctx, sp, healthCheckTimeout) {
			r.logger.DebugCtx(ctx, "serialbus: reusing healthy shared port", "path", path)
			return sp, nil
		}
		r.logger.WarnCtx(ctx, "serialbus: shared port health check failed, reopening", "path", path)
		r.Remove(path)
	}

	port, err := open(ctx, path, openTimeout)
	if err != nil {
		return nil, daqerr.Wrap(daqerr.Communication, err, "opening serial port %q", path)
	}

	sp := &sharedPort{port: port}
	r.mu.Lock()
	r.ports[path] = sp
	r.mu.Unlock()
	r.logger.InfoCtx(ctx, "serialbus: registered new shared port", "path", path)
	return sp, nil
}

// healthy runs Flush under sp's mutex with a bounded timeout, exactly
// mirroring the Rust health_check-via-flush-with-timeout pattern.
func (r *Registry) healthy(ctx context.Context, sp *sharedPort, timeout time.Duration) bool {
	done := make(chan error, 1)
	go func() {
		sp.mu.Lock()
		defer sp.mu.Unlock()
		done <- sp.port.Flush()
	}()
	select {
	case err := <-done:
		return err == nil
	case <-time.After(timeout):
		return false
	case <-ctx.Done():
		return false
	}
}

// WithPort runs fn while holding sp's connection mutex, serializing access
// to the shared physical link across every logical device on the bus.
func (sp *sharedPort) WithPort(fn func(Port) error) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if err := fn(sp.port); err != nil {
		return fmt.Errorf("serialbus: operation on shared port failed: %w", err)
	}
	return nil
}
