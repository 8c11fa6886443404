// Package moduleinfo models the experiment-module type system: static
// descriptors of what a module is (ModuleTypeInfo, ModuleParameter,
// ModuleRole) and the runtime events/state it produces (ModuleState,
// ModuleEvent). This is a supplemented feature (SPEC_FULL.md §11): the
// distilled spec.md has no module layer of its own, but
// _examples/original_source/crates/daq-core/src/modules.rs defines one in
// full, so it is ported directly, field for field, translating Rust enums
// to Go string/int enums and serde derives to encoding/json struct tags.
package moduleinfo

// State is the lifecycle state of an experiment module.
type State int

const (
	StateUnknown State = iota
	StateCreated
	StateConfigured
	StateStaged
	StateRunning
	StatePaused
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConfigured:
		return "configured"
	case StateStaged:
		return "staged"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// EventSeverity is the severity level of a ModuleEvent.
type EventSeverity int

const (
	SeverityUnknown EventSeverity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

// EventSeverityFromInt mirrors the Rust From<i32> impl's lenient decode:
// any value outside 1..=4 maps to SeverityUnknown rather than erroring.
func EventSeverityFromInt(v int) EventSeverity {
	switch v {
	case 1:
		return SeverityInfo
	case 2:
		return SeverityWarning
	case 3:
		return SeverityError
	case 4:
		return SeverityCritical
	default:
		return SeverityUnknown
	}
}

// Event is emitted by a running module — state transitions, warnings,
// completion notices — and forwarded onto the daemon event bus.
type Event struct {
	ModuleID    string            `json:"module_id"`
	EventType   string            `json:"event_type"`
	TimestampNs uint64            `json:"timestamp_ns"`
	Severity    EventSeverity     `json:"severity"`
	Message     string            `json:"message"`
	Data        map[string]string `json:"data,omitempty"`
}

// DataPoint is a scalar measurement sample emitted by a module, distinct
// from the frame/Measurement pipeline used by device drivers — modules
// report derived quantities (fit results, computed ratios), not raw
// instrument readings.
type DataPoint struct {
	ModuleID    string            `json:"module_id"`
	DataType    string            `json:"data_type"`
	TimestampNs uint64            `json:"timestamp_ns"`
	Values      map[string]float64 `json:"values"`
	Metadata    map[string]string  `json:"metadata,omitempty"`
}

// Role is a generic capability requirement a module declares (e.g. "needs
// a power meter"), resolved against the device registry's capability index
// at module configuration time rather than a hardcoded device ID.
type Role struct {
	RoleID               string `json:"role_id"`
	Description          string `json:"description"`
	DisplayName          string `json:"display_name"`
	RequiredCapability   string `json:"required_capability"`
	AllowsMultiple       bool   `json:"allows_multiple"`
}

// Parameter describes one configurable knob a module type exposes.
type Parameter struct {
	ParamID      string   `json:"param_id"`
	DisplayName  string   `json:"display_name"`
	Description  string   `json:"description"`
	ParamType    string   `json:"param_type"`
	DefaultValue string   `json:"default_value"`
	MinValue     *string  `json:"min_value,omitempty"`
	MaxValue     *string  `json:"max_value,omitempty"`
	EnumValues   []string `json:"enum_values,omitempty"`
	Units        string   `json:"units,omitempty"`
	Required     bool     `json:"required"`
}

// TypeInfo is the static descriptor of a module type, analogous to a
// Factory's advertised Capabilities() but for the higher-level experiment
// orchestration layer rather than individual device drivers.
type TypeInfo struct {
	TypeID        string      `json:"type_id"`
	DisplayName   string      `json:"display_name"`
	Description   string      `json:"description"`
	Version       string      `json:"version"`
	Parameters    []Parameter `json:"parameters"`
	EventTypes    []string    `json:"event_types"`
	DataTypes     []string    `json:"data_types"`
	RequiredRoles []Role      `json:"required_roles"`
	OptionalRoles []Role      `json:"optional_roles"`
}
