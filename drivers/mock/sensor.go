package mock

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/easternanemone/rust-daq-sub009/internal/capability"
	"github.com/easternanemone/rust-daq-sub009/internal/driver"
)

// sensorConfig is the TOML "config" block for mock-sensor.
type sensorConfig struct {
	BaseValue  float64 `json:"base_value"`
	NoiseSigma float64 `json:"noise_sigma"`
	Units      string  `json:"units"`
}

func (c *sensorConfig) applyDefaults() {
	if c.NoiseSigma == 0 {
		c.NoiseSigma = 0.01
	}
	if c.Units == "" {
		c.Units = "W"
	}
}

// sensorFactory builds a single-value Readable that reports BaseValue plus
// Gaussian noise, for power meters, thermocouples, and similar instruments.
type sensorFactory struct{}

// NewSensorFactory returns the mock-sensor driver factory.
func NewSensorFactory() driver.Factory { return sensorFactory{} }

func (sensorFactory) DriverType() string                        { return "mock-sensor" }
func (sensorFactory) Name() string                               { return "Mock Power Meter" }
func (sensorFactory) Capabilities() []capability.Capability {
	return []capability.Capability{capability.Readable}
}
func (sensorFactory) Validate(cfg driver.Config) error {
	var c sensorConfig
	return decodeConfig(cfg, &c)
}

func (sensorFactory) Build(ctx context.Context, cfg driver.Config) (*driver.Components, error) {
	var c sensorConfig
	if err := decodeConfig(cfg, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	return &driver.Components{
		Readable:     &mockSensor{cfg: c, rng: rand.New(rand.NewSource(time.Now().UnixNano()))},
		ReadingUnits: c.Units,
	}, nil
}

type mockSensor struct {
	cfg sensorConfig

	mu  sync.Mutex
	rng *rand.Rand
}

func (s *mockSensor) Read(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	noise := s.rng.NormFloat64() * s.cfg.NoiseSigma
	return math.Max(0, s.cfg.BaseValue+noise), nil
}
