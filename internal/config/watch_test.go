package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceWatcherDetectsNewFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDeviceWatcher(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	changes, errs := w.Watch(ctx)

	path := filepath.Join(dir, "stage1.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
id = "stage1"
driver_type = "mock-stage"
`), 0o644))

	select {
	case ch := <-changes:
		assert.Equal(t, "stage1", ch.Spec.ID)
		assert.False(t, ch.Removed)
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for device change notification")
	}
}

func TestDeviceWatcherDetectsRemoval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stage1.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
id = "stage1"
driver_type = "mock-stage"
`), 0o644))

	w, err := NewDeviceWatcher(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	changes, _ := w.Watch(ctx)

	require.NoError(t, os.Remove(path))

	select {
	case ch := <-changes:
		assert.True(t, ch.Removed)
		assert.Equal(t, path, ch.Path)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for removal notification")
	}
}
