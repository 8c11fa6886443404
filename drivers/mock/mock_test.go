package mock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easternanemone/rust-daq-sub009/internal/capability"
	"github.com/easternanemone/rust-daq-sub009/internal/driver"
)

func TestStageMoveAndSettle(t *testing.T) {
	f := NewStageFactory()
	c, err := f.Build(context.Background(), driver.Config{Raw: map[string]any{
		"min_position": 0.0, "max_position": 50.0, "settle_delay_ms": 10.0,
	}})
	require.NoError(t, err)

	require.NoError(t, c.Movable.MoveAbs(context.Background(), 25))
	pos, err := c.Movable.Position(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25.0, pos)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Movable.WaitSettled(ctx))
}

func TestStageRejectsOutOfRangePosition(t *testing.T) {
	f := NewStageFactory()
	c, err := f.Build(context.Background(), driver.Config{Raw: map[string]any{"max_position": 10.0}})
	require.NoError(t, err)
	err = c.Movable.MoveAbs(context.Background(), 999)
	require.Error(t, err)
}

func TestSensorReadsNearBaseValue(t *testing.T) {
	f := NewSensorFactory()
	c, err := f.Build(context.Background(), driver.Config{Raw: map[string]any{
		"base_value": 5.0, "noise_sigma": 0.001,
	}})
	require.NoError(t, err)
	v, err := c.Readable.Read(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 5.0, v, 0.1)
	assert.Equal(t, "W", c.ReadingUnits)
}

func TestCameraStreamEmitsFrames(t *testing.T) {
	f := NewCameraFactory()
	c, err := f.Build(context.Background(), driver.Config{Raw: map[string]any{
		"width": 8.0, "height": 8.0, "fps": 200.0,
	}})
	require.NoError(t, err)

	frames, unsubscribe := c.FrameProducer.SubscribeFrames()
	defer unsubscribe()

	require.NoError(t, c.FrameProducer.StartStream(context.Background(), nil))
	defer c.FrameProducer.StopStream(context.Background())

	select {
	case fr := <-frames:
		assert.Equal(t, uint32(8), fr.Width)
		assert.Equal(t, uint32(8), fr.Height)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a frame")
	}
}

func TestCameraExposureBounds(t *testing.T) {
	f := NewCameraFactory()
	c, err := f.Build(context.Background(), driver.Config{Raw: map[string]any{
		"min_exposure_secs": 0.001, "max_exposure_secs": 1.0,
	}})
	require.NoError(t, err)

	_, err = c.ExposureControl.SetExposure(context.Background(), 5)
	require.Error(t, err)

	actual, err := c.ExposureControl.SetExposure(context.Background(), 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.5, actual)
}

func TestCameraGainParameter(t *testing.T) {
	f := NewCameraFactory()
	c, err := f.Build(context.Background(), driver.Config{})
	require.NoError(t, err)

	gain, ok := c.Parameterized.Parameters().Get("gain")
	require.True(t, ok)
	data, err := gain.GetJSON()
	require.NoError(t, err)
	assert.JSONEq(t, "1", string(data))
}

func TestLaserInterlockRefusesShutterOpenWithEmissionOff(t *testing.T) {
	f := NewLaserFactory()
	c, err := f.Build(context.Background(), driver.Config{})
	require.NoError(t, err)

	err = c.ShutterControl.SetShutter(context.Background(), true)
	require.Error(t, err)

	require.NoError(t, c.EmissionControl.SetEmission(context.Background(), true))
	require.NoError(t, c.ShutterControl.SetShutter(context.Background(), true))
}

func TestLaserDisablingEmissionClosesShutter(t *testing.T) {
	f := NewLaserFactory()
	c, err := f.Build(context.Background(), driver.Config{})
	require.NoError(t, err)

	require.NoError(t, c.EmissionControl.SetEmission(context.Background(), true))
	require.NoError(t, c.ShutterControl.SetShutter(context.Background(), true))

	require.NoError(t, c.EmissionControl.SetEmission(context.Background(), false))
	open, err := c.ShutterControl.ShutterOpen(context.Background())
	require.NoError(t, err)
	assert.False(t, open)
}

func TestLaserFireRequiresArm(t *testing.T) {
	f := NewLaserFactory()
	c, err := f.Build(context.Background(), driver.Config{})
	require.NoError(t, err)

	err = c.Triggerable.Fire(context.Background())
	require.Error(t, err)

	require.NoError(t, c.EmissionControl.SetEmission(context.Background(), true))
	require.NoError(t, c.ShutterControl.SetShutter(context.Background(), true))
	require.NoError(t, c.Triggerable.Arm(context.Background(), capability.TriggerConfig{Mode: "single"}))
	require.NoError(t, c.Triggerable.Fire(context.Background()))
}
