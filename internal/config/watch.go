package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/easternanemone/rust-daq-sub009/internal/daqerr"
)

// DeviceChange is emitted when a device TOML file under a watched directory
// is created, written, or removed.
type DeviceChange struct {
	Path      string
	Removed   bool
	Spec      DeviceSpec // zero value when Removed
}

// DeviceWatcher watches a devices directory for changes, deduplicating
// editor-induced duplicate write events via a per-file content checksum —
// grounded on engine/internal/runtime/runtime.go's HotReloadSystem, which
// pairs an fsnotify.Watcher with RuntimeBusinessConfig.Checksum for the
// identical reason.
type DeviceWatcher struct {
	dir     string
	watcher *fsnotify.Watcher

	mu         sync.Mutex
	checksums  map[string]string
	isWatching bool
}

// NewDeviceWatcher opens an fsnotify watcher on dir. The watcher is not
// active until Watch is called.
func NewDeviceWatcher(dir string) (*DeviceWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, daqerr.Wrap(daqerr.Internal, err, "creating device config watcher")
	}
	return &DeviceWatcher{dir: dir, watcher: w, checksums: make(map[string]string)}, nil
}

// Watch starts watching the devices directory, returning a channel of
// DeviceChange events and a channel of non-fatal errors. Both channels
// close when ctx is cancelled or Stop is called.
func (w *DeviceWatcher) Watch(ctx context.Context) (<-chan DeviceChange, <-chan error) {
	changes := make(chan DeviceChange, 16)
	errs := make(chan error, 16)

	w.mu.Lock()
	if w.isWatching {
		w.mu.Unlock()
		close(changes)
		close(errs)
		return changes, errs
	}
	if err := w.watcher.Add(w.dir); err != nil {
		w.mu.Unlock()
		errs <- daqerr.Wrap(daqerr.Internal, err, "watching devices directory %q", w.dir)
		close(changes)
		close(errs)
		return changes, errs
	}
	w.isWatching = true
	w.mu.Unlock()

	go func() {
		defer close(changes)
		defer close(errs)
		for {
			select {
			case ev, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if filepath.Ext(ev.Name) != ".toml" {
					continue
				}
				w.handleEvent(ev, changes, errs)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				errs <- err
			case <-ctx.Done():
				return
			}
		}
	}()

	return changes, errs
}

func (w *DeviceWatcher) handleEvent(ev fsnotify.Event, changes chan<- DeviceChange, errs chan<- error) {
	if ev.Op&fsnotify.Remove == fsnotify.Remove || ev.Op&fsnotify.Rename == fsnotify.Rename {
		w.mu.Lock()
		delete(w.checksums, ev.Name)
		w.mu.Unlock()
		changes <- DeviceChange{Path: ev.Name, Removed: true}
		return
	}
	if ev.Op&fsnotify.Write != fsnotify.Write && ev.Op&fsnotify.Create != fsnotify.Create {
		return
	}

	data, err := os.ReadFile(ev.Name)
	if err != nil {
		errs <- daqerr.Wrap(daqerr.InvalidConfig, err, "reading changed device config %q", ev.Name)
		return
	}
	sum := checksum(data)

	w.mu.Lock()
	last := w.checksums[ev.Name]
	w.checksums[ev.Name] = sum
	w.mu.Unlock()
	if sum == last {
		return
	}

	spec, err := LoadDeviceSpec(ev.Name)
	if err != nil {
		errs <- err
		return
	}
	changes <- DeviceChange{Path: ev.Name, Spec: spec}
}

// Stop closes the underlying fsnotify watcher.
func (w *DeviceWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.isWatching {
		return nil
	}
	w.isWatching = false
	return w.watcher.Close()
}
