// Package daqerr defines the daemon's canonical error taxonomy and its mapping
// onto gRPC status codes. Drivers, the registry, and the RPC layer all speak
// this vocabulary; no native SDK error code is ever surfaced to a caller.
package daqerr

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
)

// Kind is one of the canonical error kinds a caller can match on structurally.
type Kind string

const (
	InvalidConfig         Kind = "InvalidConfig"
	UnknownDriver         Kind = "UnknownDriver"
	DeviceNotFound        Kind = "DeviceNotFound"
	CapabilityUnsupported Kind = "CapabilityUnsupported"
	InvalidState          Kind = "InvalidState"
	InvalidValue          Kind = "InvalidValue"
	Duplicate             Kind = "Duplicate"
	Instrument            Kind = "Instrument"
	Communication         Kind = "Communication"
	Timeout               Kind = "Timeout"
	ResourceExhausted     Kind = "ResourceExhausted"
	Internal              Kind = "Internal"
)

// code maps each Kind onto the gRPC status code spec.md §7 pins it to.
var code = map[Kind]codes.Code{
	InvalidConfig:         codes.InvalidArgument,
	UnknownDriver:         codes.NotFound,
	DeviceNotFound:        codes.NotFound,
	CapabilityUnsupported: codes.FailedPrecondition,
	InvalidState:          codes.FailedPrecondition,
	InvalidValue:          codes.OutOfRange,
	Duplicate:             codes.AlreadyExists,
	Instrument:            codes.Unavailable,
	Communication:         codes.Unavailable,
	Timeout:               codes.DeadlineExceeded,
	ResourceExhausted:     codes.ResourceExhausted,
	Internal:              codes.Internal,
}

// MetadataKey is the gRPC trailer/header key the RPC layer attaches the Kind to
// so clients can match structurally instead of parsing the message string.
const MetadataKey = "x-daq-error-kind"

// Error is the concrete error type every trait method, factory, and registry
// operation returns. The message is free text; the Kind is the contract.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Code returns the gRPC status code this error's Kind maps to.
func (e *Error) Code() codes.Code {
	if c, ok := code[e.Kind]; ok {
		return c
	}
	return codes.Internal
}

// New builds an *Error with the given kind and formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error carrying an underlying native/driver error as Cause.
// Propagation policy (spec.md §7): drivers wrap native errors at the boundary;
// callers above the driver boundary never repackage the Kind, only the message.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// As extracts a *Error from err, if any is present in its chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it (or something in its chain) is an
// *Error, and Internal otherwise — an unclassified error is always a bug.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}
