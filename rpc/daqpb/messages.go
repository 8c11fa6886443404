// Package daqpb defines the wire messages and service descriptor for the
// device RPC surface (C8). Field names are normative per spec.md §6 for
// wire compatibility with the original implementation's clients. Since the
// Go toolchain (and therefore protoc-gen-go) cannot be run in this
// environment, messages are plain Go structs carrying JSON struct tags and
// are (de)serialized by the jsonCodec in codec.go rather than generated
// protobuf bindings — see DESIGN.md's Open Question decision on
// RPC-transport-without-protoc for the full rationale.
package daqpb

// DeviceInfo projects one registered device for ListDevices.
type DeviceInfo struct {
	ID                       string   `json:"id"`
	Name                     string   `json:"name"`
	DriverType               string   `json:"driver_type"`
	IsMovable                bool     `json:"is_movable"`
	IsReadable               bool     `json:"is_readable"`
	IsTriggerable            bool     `json:"is_triggerable"`
	IsFrameProducer          bool     `json:"is_frame_producer"`
	IsWavelengthTunable      bool     `json:"is_wavelength_tunable"`
	IsShutterControllable    bool     `json:"is_shutter_controllable"`
	IsEmissionControllable   bool     `json:"is_emission_controllable"`
	PositionUnits            string   `json:"position_units,omitempty"`
	ReadingUnits             string   `json:"reading_units,omitempty"`
	MinPosition              *float64 `json:"min_position,omitempty"`
	MaxPosition              *float64 `json:"max_position,omitempty"`
}

// ListDevicesRequest filters ListDevices by an optional capability mask;
// an empty Capabilities list returns every device.
type ListDevicesRequest struct {
	Capabilities []string `json:"capabilities,omitempty"`
}

type ListDevicesResponse struct {
	Devices []DeviceInfo `json:"devices"`
}

// StreamQuality selects the adaptive downsample level applied before wire
// serialisation (spec.md §4.8).
type StreamQuality string

const (
	QualityFull    StreamQuality = "Full"
	QualityHalf    StreamQuality = "Half"
	QualityQuarter StreamQuality = "Quarter"
)

// Compression tags whether FrameData.Data is LZ4-compressed.
type Compression int32

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
)

// FrameData is one streamed camera frame.
type FrameData struct {
	DeviceID         string      `json:"device_id"`
	FrameNumber      uint64      `json:"frame_number"`
	TimestampNs      uint64      `json:"timestamp_ns"`
	Width            uint32      `json:"width"`
	Height           uint32      `json:"height"`
	BitDepth         uint32      `json:"bit_depth"`
	Compression      Compression `json:"compression"`
	UncompressedSize uint32      `json:"uncompressed_size"`
	Data             []byte      `json:"data"`
	ExposureMs       *float64    `json:"exposure_ms,omitempty"`
}

// ParameterDescriptor describes one entry in a device's ParameterSet.
type ParameterDescriptor struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Dtype       string   `json:"dtype"`
	Units       string   `json:"units,omitempty"`
	ReadOnly    bool     `json:"read_only"`
	MinValue    *float64 `json:"min_value,omitempty"`
	MaxValue    *float64 `json:"max_value,omitempty"`
	EnumValues  []string `json:"enum_values,omitempty"`
}

// StreamFramesRequest opens a FrameData server stream.
type StreamFramesRequest struct {
	DeviceID string        `json:"device_id"`
	MaxFPS   float64       `json:"max_fps"`
	Quality  StreamQuality `json:"quality"`
}

// StreamingMetrics is periodically interleaved on a frame stream to report
// drop/throughput counters.
type StreamingMetrics struct {
	FramesSent                uint64 `json:"frames_sent"`
	FramesDroppedFPS          uint64 `json:"frames_dropped_fps"`
	FramesDroppedBackpressure uint64 `json:"frames_dropped_backpressure"`
	BytesSent                 uint64 `json:"bytes_sent"`
	CompressionRatioX1000     uint64 `json:"compression_ratio_x1000"`
}

// StreamFramesEvent is the tagged union carried on the StreamFrames
// response stream: exactly one of Frame or Metrics is set.
type StreamFramesEvent struct {
	Frame   *FrameData        `json:"frame,omitempty"`
	Metrics *StreamingMetrics `json:"metrics,omitempty"`
}

// --- motion / reading / trigger -------------------------------------------------

type MoveAbsRequest struct {
	DeviceID string  `json:"device_id"`
	Position float64 `json:"position"`
}

type MoveRelRequest struct {
	DeviceID string  `json:"device_id"`
	Delta    float64 `json:"delta"`
}

type DeviceIDRequest struct {
	DeviceID string `json:"device_id"`
}

type PositionResponse struct {
	Position float64 `json:"position"`
}

type ReadValueResponse struct {
	Value        float64 `json:"value"`
	ReadingUnits string  `json:"reading_units,omitempty"`
}

type ArmTriggerRequest struct {
	DeviceID   string         `json:"device_id"`
	Mode       string         `json:"mode"`
	DelayNs    int64          `json:"delay_ns"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// --- parameters -------------------------------------------------------------

type ListParametersResponse struct {
	Parameters []ParameterDescriptor `json:"parameters"`
}

type GetParameterRequest struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
}

type GetParameterResponse struct {
	ValueJSON []byte `json:"value_json"`
}

type SetParameterRequest struct {
	DeviceID  string `json:"device_id"`
	Name      string `json:"name"`
	ValueJSON []byte `json:"value_json"`
}

type ParameterChange struct {
	DeviceID  string `json:"device_id"`
	Name      string `json:"name"`
	ValueJSON []byte `json:"value_json"`
}

// --- laser / camera knobs -----------------------------------------------------

type SetExposureRequest struct {
	DeviceID string  `json:"device_id"`
	Seconds  float64 `json:"seconds"`
}

type SetExposureResponse struct {
	ActualSeconds float64 `json:"actual_seconds"`
}

type GetExposureResponse struct {
	Seconds float64 `json:"seconds"`
}

type SetWavelengthRequest struct {
	DeviceID string  `json:"device_id"`
	Nm       float64 `json:"nm"`
}

type SetShutterRequest struct {
	DeviceID string `json:"device_id"`
	Open     bool   `json:"open"`
}

type SetEmissionRequest struct {
	DeviceID string `json:"device_id"`
	On       bool   `json:"on"`
}

// --- device state / module events ---------------------------------------------

type DeviceStateUpdate struct {
	DeviceID  string `json:"device_id"`
	Name      string `json:"name"`
	ValueJSON []byte `json:"value_json"`
}

type ModuleEventMessage struct {
	ModuleID    string            `json:"module_id"`
	EventType   string            `json:"event_type"`
	TimestampNs uint64            `json:"timestamp_ns"`
	Severity    int32             `json:"severity"`
	Message     string            `json:"message"`
	Data        map[string]string `json:"data,omitempty"`
}

type DescribeDriverRequest struct {
	DriverType string `json:"driver_type"`
}

type DescribeDriverResponse struct {
	DriverType   string   `json:"driver_type"`
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
}

// Empty is the payload for requests/responses with no fields.
type Empty struct{}
