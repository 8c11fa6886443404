package frame

import "time"

// Kind tags which variant a Measurement carries.
type Kind string

const (
	KindScalar   Kind = "scalar"
	KindImage    Kind = "image"
	KindSpectrum Kind = "spectrum"
)

// SpectrumBin is one (frequency, magnitude) sample of a Spectrum measurement.
type SpectrumBin struct {
	Frequency float64 `json:"frequency"`
	Magnitude float64 `json:"magnitude"`
}

// Measurement is the tagged union of scalar, image, and spectrum payloads the
// system carries through the pipeline. Every variant carries a wall-clock
// timestamp and a channel/name tag, per spec.md §3.
type Measurement struct {
	Kind      Kind              `json:"kind"`
	Name      string            `json:"name"`
	Timestamp time.Time         `json:"timestamp"`
	Unit      string            `json:"unit,omitempty"`

	// Scalar
	Value float64 `json:"value,omitempty"`

	// Image
	Image *Frame `json:"image,omitempty"`

	// Spectrum
	Channel  string            `json:"channel,omitempty"`
	Bins     []SpectrumBin     `json:"bins,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewScalar builds a Scalar measurement.
func NewScalar(name string, value float64, unit string, ts time.Time) Measurement {
	return Measurement{Kind: KindScalar, Name: name, Value: value, Unit: unit, Timestamp: ts}
}

// NewImage builds an Image measurement.
func NewImage(name string, f *Frame, ts time.Time) Measurement {
	return Measurement{Kind: KindImage, Name: name, Image: f, Timestamp: ts}
}

// NewSpectrum builds a Spectrum measurement.
func NewSpectrum(channel string, bins []SpectrumBin, unit string, metadata map[string]string, ts time.Time) Measurement {
	return Measurement{Kind: KindSpectrum, Channel: channel, Bins: bins, Unit: unit, Metadata: metadata, Timestamp: ts}
}

// Time returns the measurement's timestamp regardless of variant.
func (m Measurement) Time() time.Time { return m.Timestamp }
