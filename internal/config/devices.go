package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/easternanemone/rust-daq-sub009/internal/daqerr"
	"github.com/easternanemone/rust-daq-sub009/internal/driver"
)

// deviceFile is the normative on-disk shape of a device TOML file
// (spec.md §6): {id, name, driver_type, enabled, config: {free-form}}.
// allow_unknown_fields is an additive, non-normative escape hatch this
// daemon adds for drivers that accept passthrough vendor blobs under
// config — see SPEC_FULL.md's TOML-strictness Open Question resolution.
type deviceFile struct {
	ID                 string         `toml:"id"`
	Name               string         `toml:"name"`
	DriverType         string         `toml:"driver_type"`
	Enabled            *bool          `toml:"enabled"`
	AllowUnknownFields bool           `toml:"allow_unknown_fields"`
	Config             map[string]any `toml:"config"`
}

// DeviceSpec is one decoded device configuration file.
type DeviceSpec struct {
	ID         string
	Name       string
	DriverType string
	Enabled    bool
	Config     driver.Config
	SourcePath string
}

// LoadDeviceSpec decodes one device TOML file. Unknown top-level keys are
// rejected by default (toml.Unmarshal's strict decoder via DisallowUnknownFields);
// a file may opt out with allow_unknown_fields = true, which admits unknown
// top-level keys and is carried into driver.Config.AllowUnknownFields. The
// config block is passed through verbatim either way since "config" is
// explicitly free-form per spec.md §6.
func LoadDeviceSpec(path string) (DeviceSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DeviceSpec{}, daqerr.Wrap(daqerr.InvalidConfig, err, "reading device config %q", path)
	}

	strictDec := toml.NewDecoder(strings.NewReader(string(data)))
	strictDec.DisallowUnknownFields()
	var df deviceFile
	if strictErr := strictDec.Decode(&df); strictErr != nil {
		// Unknown top-level key (or malformed document): re-decode
		// permissively to check for the opt-out before giving up. A
		// genuinely malformed document fails this pass too and the
		// original strict error is what gets returned.
		lenientDec := toml.NewDecoder(strings.NewReader(string(data)))
		var lenient deviceFile
		if lenientErr := lenientDec.Decode(&lenient); lenientErr != nil || !lenient.AllowUnknownFields {
			return DeviceSpec{}, daqerr.Wrap(daqerr.InvalidConfig, strictErr,
				"parsing device config %q (set allow_unknown_fields=true to opt out of strict decoding)", path)
		}
		df = lenient
	}

	if df.ID == "" {
		return DeviceSpec{}, daqerr.New(daqerr.InvalidConfig, "%s: missing required field \"id\"", path)
	}
	if df.DriverType == "" {
		return DeviceSpec{}, daqerr.New(daqerr.InvalidConfig, "%s: missing required field \"driver_type\"", path)
	}

	enabled := true
	if df.Enabled != nil {
		enabled = *df.Enabled
	}

	return DeviceSpec{
		ID:         df.ID,
		Name:       df.Name,
		DriverType: df.DriverType,
		Enabled:    enabled,
		SourcePath: path,
		Config:     driver.Config{Raw: df.Config, AllowUnknownFields: df.AllowUnknownFields},
	}, nil
}

// LoadDeviceSpecDir loads every *.toml file directly under dir (no
// recursion — one file per device, spec.md §4.6's layout).
func LoadDeviceSpecDir(dir string) ([]DeviceSpec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, daqerr.Wrap(daqerr.InvalidConfig, err, "reading devices directory %q", dir)
	}
	var specs []DeviceSpec
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}
		spec, err := LoadDeviceSpec(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
