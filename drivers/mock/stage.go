package mock

import (
	"context"
	"sync"
	"time"

	"github.com/easternanemone/rust-daq-sub009/internal/capability"
	"github.com/easternanemone/rust-daq-sub009/internal/daqerr"
	"github.com/easternanemone/rust-daq-sub009/internal/driver"
)

// stageConfig is the TOML "config" block for mock-stage. SettleDelayMs is
// plain milliseconds rather than a time.Duration so it round-trips through
// JSON (and therefore TOML) as an ordinary number.
type stageConfig struct {
	MinPosition    float64 `json:"min_position"`
	MaxPosition    float64 `json:"max_position"`
	SettleDelayMs  float64 `json:"settle_delay_ms"`
	VelocityUnitsS float64 `json:"velocity_units_s"`
}

func (c *stageConfig) applyDefaults() {
	if c.MaxPosition == 0 {
		c.MaxPosition = 100
	}
	if c.SettleDelayMs == 0 {
		c.SettleDelayMs = 50
	}
	if c.VelocityUnitsS == 0 {
		c.VelocityUnitsS = 50
	}
}

func (c stageConfig) settleDelay() time.Duration {
	return time.Duration(c.SettleDelayMs * float64(time.Millisecond))
}

// stageFactory builds mock motion stages: a Movable that "moves"
// instantaneously but reports WaitSettled only after a fixed settle delay,
// simulating a real stage's move-then-settle behaviour without hardware.
type stageFactory struct{}

// NewStageFactory returns the mock-stage driver factory.
func NewStageFactory() driver.Factory { return stageFactory{} }

func (stageFactory) DriverType() string { return "mock-stage" }
func (stageFactory) Name() string       { return "Mock Motion Stage" }
func (stageFactory) Capabilities() []capability.Capability {
	return []capability.Capability{capability.Movable, capability.Stageable}
}

func (stageFactory) Validate(cfg driver.Config) error {
	var c stageConfig
	if err := decodeConfig(cfg, &c); err != nil {
		return err
	}
	c.applyDefaults()
	if c.MinPosition >= c.MaxPosition {
		return daqerr.New(daqerr.InvalidConfig, "min_position must be less than max_position")
	}
	return nil
}

func (stageFactory) Build(ctx context.Context, cfg driver.Config) (*driver.Components, error) {
	var c stageConfig
	if err := decodeConfig(cfg, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	minP, maxP := c.MinPosition, c.MaxPosition
	stage := &mockStage{cfg: c}
	return &driver.Components{
		Movable:       stage,
		Stageable:     stage,
		PositionUnits: "mm",
		MinPosition:   &minP,
		MaxPosition:   &maxP,
	}, nil
}

type mockStage struct {
	cfg stageConfig

	mu       sync.Mutex
	position float64
	settling bool
	settleAt time.Time
	moving   bool
}

func (s *mockStage) MoveAbs(ctx context.Context, position float64) error {
	if position < s.cfg.MinPosition || position > s.cfg.MaxPosition {
		return daqerr.New(daqerr.InvalidValue, "position %v outside [%v,%v]", position, s.cfg.MinPosition, s.cfg.MaxPosition)
	}
	s.mu.Lock()
	s.position = position
	s.settling = true
	s.settleAt = time.Now().Add(s.cfg.settleDelay())
	s.moving = true
	s.mu.Unlock()
	return nil
}

func (s *mockStage) MoveRel(ctx context.Context, delta float64) error {
	s.mu.Lock()
	target := s.position + delta
	s.mu.Unlock()
	return s.MoveAbs(ctx, target)
}

func (s *mockStage) Position(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position, nil
}

func (s *mockStage) WaitSettled(ctx context.Context) error {
	s.mu.Lock()
	wait := time.Until(s.settleAt)
	s.mu.Unlock()
	if wait <= 0 {
		s.mu.Lock()
		s.settling, s.moving = false, false
		s.mu.Unlock()
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return daqerr.Wrap(daqerr.Timeout, ctx.Err(), "waiting for stage to settle")
	case <-timer.C:
		s.mu.Lock()
		s.settling, s.moving = false, false
		s.mu.Unlock()
		return nil
	}
}

func (s *mockStage) StopMotion(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settling, s.moving = false, false
	return nil
}

func (s *mockStage) SettlingWindow() time.Duration { return s.cfg.settleDelay() }
