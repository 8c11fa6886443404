package mock

import (
	"context"
	"sync"
	"time"

	"github.com/easternanemone/rust-daq-sub009/internal/capability"
	"github.com/easternanemone/rust-daq-sub009/internal/daqerr"
	"github.com/easternanemone/rust-daq-sub009/internal/driver"
)

// laserConfig is the TOML "config" block for mock-laser.
type laserConfig struct {
	MinWavelengthNm float64 `json:"min_wavelength_nm"`
	MaxWavelengthNm float64 `json:"max_wavelength_nm"`
}

func (c *laserConfig) applyDefaults() {
	if c.MinWavelengthNm == 0 {
		c.MinWavelengthNm = 700
	}
	if c.MaxWavelengthNm == 0 {
		c.MaxWavelengthNm = 1000
	}
}

// laserFactory builds a tunable pulsed laser: WavelengthTunable +
// ShutterControl + EmissionControl (the registry's interlock check requires
// ShutterControl alongside EmissionControl) plus Triggerable for its
// Q-switch fire cycle.
type laserFactory struct{}

// NewLaserFactory returns the mock-laser driver factory.
func NewLaserFactory() driver.Factory { return laserFactory{} }

func (laserFactory) DriverType() string { return "mock-laser" }
func (laserFactory) Name() string       { return "Mock Tunable Laser" }
func (laserFactory) Capabilities() []capability.Capability {
	return []capability.Capability{
		capability.WavelengthTunable, capability.ShutterControl,
		capability.EmissionControl, capability.Triggerable,
	}
}

func (laserFactory) Validate(cfg driver.Config) error {
	var c laserConfig
	if err := decodeConfig(cfg, &c); err != nil {
		return err
	}
	c.applyDefaults()
	if c.MinWavelengthNm >= c.MaxWavelengthNm {
		return daqerr.New(daqerr.InvalidConfig, "min_wavelength_nm must be less than max_wavelength_nm")
	}
	return nil
}

func (laserFactory) Build(ctx context.Context, cfg driver.Config) (*driver.Components, error) {
	var c laserConfig
	if err := decodeConfig(cfg, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	laser := &mockLaser{cfg: c, wavelengthNm: c.MinWavelengthNm}
	return &driver.Components{
		WavelengthTunable: laser,
		ShutterControl:    laser,
		EmissionControl:   laser,
		Triggerable:       laser,
	}, nil
}

type mockLaser struct {
	cfg laserConfig

	mu           sync.Mutex
	wavelengthNm float64
	shutterOpen  bool
	emissionOn   bool
	armed        bool
}

func (l *mockLaser) SetWavelength(ctx context.Context, nm float64) error {
	if nm < l.cfg.MinWavelengthNm || nm > l.cfg.MaxWavelengthNm {
		return daqerr.New(daqerr.InvalidValue, "wavelength %v outside [%v,%v]", nm, l.cfg.MinWavelengthNm, l.cfg.MaxWavelengthNm)
	}
	l.mu.Lock()
	l.wavelengthNm = nm
	l.mu.Unlock()
	return nil
}

func (l *mockLaser) GetWavelength(ctx context.Context) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.wavelengthNm, nil
}

func (l *mockLaser) SetShutter(ctx context.Context, open bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if open && !l.emissionOn {
		return daqerr.New(daqerr.InvalidState, "cannot open shutter while emission is off")
	}
	l.shutterOpen = open
	return nil
}

func (l *mockLaser) ShutterOpen(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shutterOpen, nil
}

func (l *mockLaser) SetEmission(ctx context.Context, on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !on && l.shutterOpen {
		l.shutterOpen = false
	}
	l.emissionOn = on
	return nil
}

func (l *mockLaser) EmissionOn(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.emissionOn, nil
}

func (l *mockLaser) Arm(ctx context.Context, config capability.TriggerConfig) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.emissionOn {
		return daqerr.New(daqerr.InvalidState, "cannot arm trigger while emission is off")
	}
	l.armed = true
	return nil
}

func (l *mockLaser) Disarm(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.armed = false
	return nil
}

func (l *mockLaser) Fire(ctx context.Context) error {
	l.mu.Lock()
	armed := l.armed
	l.mu.Unlock()
	if !armed {
		return daqerr.New(daqerr.InvalidState, "cannot fire: not armed")
	}
	select {
	case <-ctx.Done():
		return daqerr.Wrap(daqerr.Timeout, ctx.Err(), "fire cancelled")
	case <-time.After(time.Microsecond):
	}
	return nil
}
