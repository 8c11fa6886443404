package recorder

import (
	"context"
	"encoding/binary"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/easternanemone/rust-daq-sub009/drivers/mock"
	"github.com/easternanemone/rust-daq-sub009/internal/driver"
	"github.com/easternanemone/rust-daq-sub009/internal/obslog"
)

func TestRecordingWritesFramesToRingBuffer(t *testing.T) {
	logger := obslog.New(slog.Default())

	f := mock.NewCameraFactory()
	comps, err := f.Build(context.Background(), driver.Config{Raw: map[string]any{
		"width": 4.0, "height": 4.0, "fps": 200.0,
	}})
	require.NoError(t, err)

	require.NoError(t, comps.FrameProducer.StartStream(context.Background(), nil))
	defer comps.FrameProducer.StopStream(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	rec, err := Start(ctx, logger, dir, "cam-0", 1<<20, comps.FrameProducer)
	require.NoError(t, err)
	defer rec.Close()

	sub := rec.rb.Subscribe(4)
	defer sub.Close()

	select {
	case payload := <-sub.C():
		require.GreaterOrEqual(t, len(payload), frameHeaderSize)
		width := binary.LittleEndian.Uint32(payload[16:20])
		height := binary.LittleEndian.Uint32(payload[20:24])
		require.Equal(t, uint32(4), width)
		require.Equal(t, uint32(4), height)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a recorded frame")
	}

	require.NotEmpty(t, filepath.Join(dir, "cam-0.ring"))
}
