package mock

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/easternanemone/rust-daq-sub009/internal/capability"
	"github.com/easternanemone/rust-daq-sub009/internal/daqerr"
	"github.com/easternanemone/rust-daq-sub009/internal/driver"
	"github.com/easternanemone/rust-daq-sub009/internal/events"
	"github.com/easternanemone/rust-daq-sub009/internal/frame"
	"github.com/easternanemone/rust-daq-sub009/internal/observable"
)

// cameraConfig is the TOML "config" block for mock-camera.
type cameraConfig struct {
	Width         uint32  `json:"width"`
	Height        uint32  `json:"height"`
	FPS           float64 `json:"fps"`
	ExposureSecs  float64 `json:"exposure_secs"`
	MinExposure   float64 `json:"min_exposure_secs"`
	MaxExposure   float64 `json:"max_exposure_secs"`
}

func (c *cameraConfig) applyDefaults() {
	if c.Width == 0 {
		c.Width = 640
	}
	if c.Height == 0 {
		c.Height = 480
	}
	if c.FPS == 0 {
		c.FPS = 30
	}
	if c.ExposureSecs == 0 {
		c.ExposureSecs = 0.01
	}
	if c.MaxExposure == 0 {
		c.MaxExposure = 10
	}
}

// cameraFactory builds a synthetic FrameProducer emitting noise frames at a
// configurable rate, with a settable exposure and a "gain" Parameterized
// knob.
type cameraFactory struct{}

// NewCameraFactory returns the mock-camera driver factory.
func NewCameraFactory() driver.Factory { return cameraFactory{} }

func (cameraFactory) DriverType() string { return "mock-camera" }
func (cameraFactory) Name() string       { return "Mock Camera" }
func (cameraFactory) Capabilities() []capability.Capability {
	return []capability.Capability{capability.FrameProducer, capability.ExposureControl, capability.Parameterized}
}

func (cameraFactory) Validate(cfg driver.Config) error {
	var c cameraConfig
	if err := decodeConfig(cfg, &c); err != nil {
		return err
	}
	c.applyDefaults()
	if c.FPS <= 0 {
		return daqerr.New(daqerr.InvalidConfig, "fps must be positive")
	}
	return nil
}

func (cameraFactory) Build(ctx context.Context, cfg driver.Config) (*driver.Components, error) {
	var c cameraConfig
	if err := decodeConfig(cfg, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()

	params := observable.NewParameterSet()
	gain := observable.New[float64]("gain", 1.0, "f64").WithUnits("x").WithDescription("digital gain multiplier")
	observable.WithRangeIntrospectable(gain, 0.1, 16.0)
	if err := params.Register(gain); err != nil {
		return nil, daqerr.Wrap(daqerr.Internal, err, "registering gain parameter")
	}

	cam := &mockCamera{
		cfg:         c,
		exposure:    c.ExposureSecs,
		gain:        gain,
		broadcaster: events.NewBroadcaster[*frame.FrameRef](),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	return &driver.Components{
		FrameProducer:   cam,
		ExposureControl: cam,
		Parameterized:   &mockParameterized{set: params},
		Lifecycle:       cam,
	}, nil
}

// mockParameterized adapts a bare *observable.ParameterSet to
// capability.Parameterized for factories that build the set directly
// without a dedicated driver type.
type mockParameterized struct{ set *observable.ParameterSet }

func (m *mockParameterized) Parameters() *observable.ParameterSet { return m.set }

type mockCamera struct {
	cfg cameraConfig

	mu         sync.Mutex
	exposure   float64
	streaming  bool
	frameNum   uint64
	stopCh     chan struct{}
	wg         sync.WaitGroup

	gain        *observable.Observable[float64]
	broadcaster *events.Broadcaster[*frame.FrameRef]
	rng         *rand.Rand
}

func (c *mockCamera) OnRegister(ctx context.Context) error   { return nil }
func (c *mockCamera) OnUnregister(ctx context.Context) error { return c.StopStream(ctx) }

func (c *mockCamera) StartStream(ctx context.Context, count *int) error {
	c.mu.Lock()
	if c.streaming {
		c.mu.Unlock()
		return daqerr.New(daqerr.InvalidState, "stream already running")
	}
	c.streaming = true
	c.stopCh = make(chan struct{})
	stop := c.stopCh
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(stop, count)
	return nil
}

func (c *mockCamera) run(stop chan struct{}, count *int) {
	defer c.wg.Done()
	interval := time.Duration(float64(time.Second) / c.cfg.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	emitted := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.emitFrame()
			emitted++
			if count != nil && emitted >= *count {
				c.mu.Lock()
				c.streaming = false
				c.mu.Unlock()
				return
			}
		}
	}
}

func (c *mockCamera) emitFrame() {
	c.mu.Lock()
	gain := c.gain.Get()
	c.frameNum++
	num := c.frameNum
	c.mu.Unlock()

	n := int(c.cfg.Width) * int(c.cfg.Height)
	data := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := uint16(gain * float64(128+c.rng.Intn(32)))
		data[i*2] = byte(v)
		data[i*2+1] = byte(v >> 8)
	}
	fr := frame.NewFrameRefFull(c.cfg.Width, c.cfg.Height, 16, data, 0, num, uint64(time.Now().UnixNano()))
	c.broadcaster.Publish(fr)
}

func (c *mockCamera) StopStream(ctx context.Context) error {
	c.mu.Lock()
	if !c.streaming {
		c.mu.Unlock()
		return nil
	}
	close(c.stopCh)
	c.streaming = false
	c.mu.Unlock()
	c.wg.Wait()
	return nil
}

func (c *mockCamera) SubscribeFrames() (<-chan *frame.FrameRef, func()) {
	sub := c.broadcaster.Subscribe(8)
	return sub.C(), sub.Close
}

// RegisterObserver is accepted for interface conformance; this mock
// publishes only through SubscribeFrames's broadcast channel, not the
// synchronous inline-observer path real frame grabbers use.
func (c *mockCamera) RegisterObserver(obs capability.FrameObserver) (unregister func()) {
	return func() {}
}

func (c *mockCamera) SetExposure(ctx context.Context, seconds float64) (float64, error) {
	if seconds < c.cfg.MinExposure || seconds > c.cfg.MaxExposure {
		return 0, daqerr.New(daqerr.InvalidValue, "exposure %v outside [%v,%v]", seconds, c.cfg.MinExposure, c.cfg.MaxExposure)
	}
	c.mu.Lock()
	c.exposure = seconds
	c.mu.Unlock()
	return seconds, nil
}

func (c *mockCamera) GetExposure(ctx context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exposure, nil
}
