package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsForSparseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daqd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rpc:\n  listen_addr: \"127.0.0.1:9999\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.RPC.ListenAddr)
	assert.Equal(t, 4, cfg.Stream.MaxStreamsPerClient)
}

func TestValidateRejectsNonPowerOfTwoRingCapacity(t *testing.T) {
	cfg := Defaults()
	cfg.RingBuffer.CapacityMiB = 3
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyListenAddr(t *testing.T) {
	cfg := Defaults()
	cfg.RPC.ListenAddr = ""
	require.Error(t, cfg.Validate())
}

func TestLoadDeviceSpecParsesConfigBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stage1.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
id = "stage1"
name = "X-axis stage"
driver_type = "mock-stage"
enabled = true

[config]
port = "/dev/ttyUSB0"
baud = 9600
`), 0o644))

	spec, err := LoadDeviceSpec(path)
	require.NoError(t, err)
	assert.Equal(t, "stage1", spec.ID)
	assert.Equal(t, "X-axis stage", spec.Name)
	assert.Equal(t, "mock-stage", spec.DriverType)
	assert.True(t, spec.Enabled)
	assert.Equal(t, "/dev/ttyUSB0", spec.Config.Raw["port"])
}

func TestLoadDeviceSpecDefaultsEnabledTrue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stage1.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
id = "stage1"
driver_type = "mock-stage"
`), 0o644))
	spec, err := LoadDeviceSpec(path)
	require.NoError(t, err)
	assert.True(t, spec.Enabled)
}

func TestLoadDeviceSpecMissingIDRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte(`driver_type = "mock-stage"`), 0o644))
	_, err := LoadDeviceSpec(path)
	require.Error(t, err)
}

func TestLoadDeviceSpecRejectsUnknownTopLevelField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
id = "stage1"
driver_type = "mock-stage"
typo_field = "oops"
`), 0o644))
	_, err := LoadDeviceSpec(path)
	require.Error(t, err)
}

func TestLoadDeviceSpecAllowUnknownFieldsOptsOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ok.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
id = "stage1"
driver_type = "mock-stage"
allow_unknown_fields = true
typo_field = "oops"
`), 0o644))
	spec, err := LoadDeviceSpec(path)
	require.NoError(t, err)
	assert.Equal(t, "stage1", spec.ID)
}

func TestLoadDeviceSpecDirLoadsOnlyTomlFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stage1.toml"), []byte(`
id = "stage1"
driver_type = "mock-stage"
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignore me"), 0o644))

	specs, err := LoadDeviceSpecDir(dir)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "stage1", specs[0].ID)
}
