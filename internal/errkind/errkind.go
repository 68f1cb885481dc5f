// Package errkind defines the typed error taxonomy shared by every layer of
// the data plane: adapters, scheduler, validator, storage, and gateway all
// classify failures the same way instead of matching on ad hoc strings.
package errkind

import (
	"errors"
	"fmt"
)

// Kind enumerates the error classes a component may surface.
type Kind string

const (
	// Adapter layer.
	Timeout            Kind = "TIMEOUT"
	RateLimited         Kind = "RATE_LIMITED"
	AuthFailed          Kind = "AUTH_FAILED"
	NotSupported        Kind = "NOT_SUPPORTED"
	UpstreamEmpty       Kind = "UPSTREAM_EMPTY"
	UpstreamMalformed   Kind = "UPSTREAM_MALFORMED"
	Network             Kind = "NETWORK"

	// Validator layer.
	NullValue         Kind = "NULL_VALUE"
	UntrustedSource   Kind = "UNTRUSTED_SOURCE"
	OutOfRange        Kind = "OUT_OF_RANGE"
	PlaceholderSuspect Kind = "PLACEHOLDER_SUSPECT"
	Stale             Kind = "STALE"

	// Scheduler layer.
	SeriesFail   Kind = "SERIES_FAIL"
	ServiceBusy  Kind = "SERVICE_BUSY"

	// Gateway layer.
	ParamInvalid  Kind = "PARAM_INVALID"
	UnknownSeries Kind = "UNKNOWN_SERIES"
	Unavailable   Kind = "UNAVAILABLE"

	// Monitor layer.
	CoverageDegraded Kind = "COVERAGE_DEGRADED"
	Escalation       Kind = "ESCALATION"
)

// RetryableSkip reports whether an adapter error of this kind should make the
// scheduler continue to the next adapter in the fallback chain without
// recording an Incident (the spec's "not an error" skip path).
func (k Kind) RetryableSkip() bool {
	switch k {
	case Timeout, Network, RateLimited, UpstreamEmpty:
		return true
	default:
		return false
	}
}

// Error wraps a Kind with the component that raised it, a human detail, and
// an optional underlying cause, following the same wrapped-error idiom the
// teacher uses throughout (fmt.Errorf("...: %w", err)).
type Error struct {
	Kind      Kind
	Component string
	Detail    string
	Cause     error
}

func New(kind Kind, component, detail string) *Error {
	return &Error{Kind: kind, Component: component, Detail: detail}
}

func Wrap(kind Kind, component, detail string, cause error) *Error {
	return &Error{Kind: kind, Component: component, Detail: detail, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s[%s]: %s: %v", e.Component, e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Component, e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, errkind.New(Timeout, "", "")) match on Kind alone.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
