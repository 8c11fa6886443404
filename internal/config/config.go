// Package config loads and validates daemon-level configuration (YAML, via
// gopkg.in/yaml.v3) and per-device configuration (TOML, via
// github.com/pelletier/go-toml/v2, decoded by each driver.Factory). The
// typed-struct-plus-Validate shape is grounded on
// engine/config/unified_config.go's UnifiedBusinessConfig/Validate pattern
// in the teacher repo; hot reload is grounded on
// engine/internal/runtime/runtime.go's HotReloadSystem, which pairs an
// fsnotify.Watcher on the config file's parent directory with a
// checksum-based change-detection gate so redundant fsnotify.Write events
// (editors often fire several per save) don't trigger redundant reloads.
package config

import (
	"crypto/sha256"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/easternanemone/rust-daq-sub009/internal/daqerr"
)

// RPCConfig configures the gRPC device service listener.
type RPCConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// StreamConfig bounds how much frame-streaming capacity a client may claim.
type StreamConfig struct {
	MaxStreamsPerClient int     `yaml:"max_streams_per_client"`
	MaxFPS              float64 `yaml:"max_fps"`
}

// RingBufferConfig configures the memory-mapped ring buffer's backing file.
type RingBufferConfig struct {
	Directory   string `yaml:"directory"`
	CapacityMiB int    `yaml:"capacity_mib"`
}

// HealthConfig configures the health monitor's probe cache TTL and
// heartbeat staleness window.
type HealthConfig struct {
	ProbeTTL          time.Duration `yaml:"probe_ttl"`
	HeartbeatMaxAge   time.Duration `yaml:"heartbeat_max_age"`
	ErrorRingSize     int           `yaml:"error_ring_size"`
}

// ObservabilityConfig configures logging, metrics, and tracing.
type ObservabilityConfig struct {
	LogLevel        string  `yaml:"log_level"`
	MetricsAddr     string  `yaml:"metrics_addr"`
	TraceSampleRate float64 `yaml:"trace_sample_rate"`
}

// DaemonConfig is the top-level daemon configuration, loaded from a single
// YAML file. Device configuration lives separately, one TOML file per
// device, under DevicesDir.
type DaemonConfig struct {
	RPC           RPCConfig           `yaml:"rpc"`
	Stream        StreamConfig        `yaml:"stream"`
	RingBuffer    RingBufferConfig    `yaml:"ring_buffer"`
	Health        HealthConfig        `yaml:"health"`
	Observability ObservabilityConfig `yaml:"observability"`
	DevicesDir    string              `yaml:"devices_dir"`
}

// Defaults returns a DaemonConfig with sensible defaults, mirroring
// engine/config.Defaults()'s role of giving every field a safe starting
// value before overrides are applied.
func Defaults() DaemonConfig {
	return DaemonConfig{
		RPC:        RPCConfig{ListenAddr: "0.0.0.0:50051"},
		Stream:     StreamConfig{MaxStreamsPerClient: 4, MaxFPS: 30},
		RingBuffer: RingBufferConfig{Directory: "/var/run/daqd/ring", CapacityMiB: 64},
		Health:     HealthConfig{ProbeTTL: 2 * time.Second, HeartbeatMaxAge: 30 * time.Second, ErrorRingSize: 256},
		Observability: ObservabilityConfig{
			LogLevel:        "info",
			MetricsAddr:     ":9090",
			TraceSampleRate: 0.1,
		},
		DevicesDir: "/etc/daqd/devices.d",
	}
}

// Load reads and validates a DaemonConfig from path, starting from Defaults()
// so a sparse file only needs to specify overrides.
func Load(path string) (DaemonConfig, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, daqerr.Wrap(daqerr.InvalidConfig, err, "reading daemon config %q", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, daqerr.Wrap(daqerr.InvalidConfig, err, "parsing daemon config %q", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate performs structural validation of the daemon configuration.
func (c DaemonConfig) Validate() error {
	if c.RPC.ListenAddr == "" {
		return daqerr.New(daqerr.InvalidConfig, "rpc.listen_addr must not be empty")
	}
	if c.Stream.MaxStreamsPerClient <= 0 {
		return daqerr.New(daqerr.InvalidConfig, "stream.max_streams_per_client must be positive")
	}
	if c.Stream.MaxFPS <= 0 {
		return daqerr.New(daqerr.InvalidConfig, "stream.max_fps must be positive")
	}
	if c.RingBuffer.CapacityMiB <= 0 || c.RingBuffer.CapacityMiB&(c.RingBuffer.CapacityMiB-1) != 0 {
		return daqerr.New(daqerr.InvalidConfig, "ring_buffer.capacity_mib must be a positive power of two")
	}
	if c.DevicesDir == "" {
		return daqerr.New(daqerr.InvalidConfig, "devices_dir must not be empty")
	}
	return nil
}

// checksum returns a content hash used to suppress redundant reload
// notifications for a file that fsnotify reports as written multiple times
// for one logical save.
func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum)
}
