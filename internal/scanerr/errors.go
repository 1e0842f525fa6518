package scanerr

import (
	"errors"
	"fmt"
)

// Kind is the category of a scan failure.
type Kind int

const (
	KindChannelUnavailable Kind = iota + 1
	KindDeviceNotFound
	KindAlreadyConnectedOrConnecting
	KindAlreadyRunning
	KindConnectionFailed
	KindPersistenceFailed
	KindChannelFailed
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindChannelUnavailable:
		return "channel unavailable"
	case KindDeviceNotFound:
		return "device not found"
	case KindAlreadyConnectedOrConnecting:
		return "already connected or connecting"
	case KindAlreadyRunning:
		return "scan already running"
	case KindConnectionFailed:
		return "connection failed"
	case KindPersistenceFailed:
		return "persistence failed"
	case KindChannelFailed:
		return "channel failed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Sentinels for errors.Is matching. They compare equal to any *Error of the
// same kind.
var (
	ErrChannelUnavailable           = &Error{Kind: KindChannelUnavailable}
	ErrDeviceNotFound               = &Error{Kind: KindDeviceNotFound}
	ErrAlreadyConnectedOrConnecting = &Error{Kind: KindAlreadyConnectedOrConnecting}
	ErrAlreadyRunning               = &Error{Kind: KindAlreadyRunning}
	ErrConnectionFailed             = &Error{Kind: KindConnectionFailed}
	ErrPersistenceFailed            = &Error{Kind: KindPersistenceFailed}
	ErrChannelFailed                = &Error{Kind: KindChannelFailed}
)

// Error is a categorised scan failure.
type Error struct {
	Kind     Kind
	Channel  string // "radio" or "network", when known
	Identity string // device identity, when the failure concerns one device
	Cause    string // short machine-friendly cause, e.g. "powered_off" or "timeout"
	Err      error  // underlying error, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Channel != "" {
		msg = e.Channel + ": " + msg
	}
	if e.Identity != "" {
		msg += fmt.Sprintf(" (device %s)", e.Identity)
	}
	if e.Cause != "" {
		msg += ": " + e.Cause
	}
	if e.Err != nil {
		msg += fmt.Sprintf(" (caused by: %v)", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// ChannelUnavailable reports that the channel's power/availability
// precondition failed.
func ChannelUnavailable(channel, cause string) *Error {
	return &Error{Kind: KindChannelUnavailable, Channel: channel, Cause: cause}
}

// DeviceNotFound reports an identity unknown to the registry.
func DeviceNotFound(channel, identity string) *Error {
	return &Error{Kind: KindDeviceNotFound, Channel: channel, Identity: identity}
}

// AlreadyConnectedOrConnecting reports a connect request on an active device.
func AlreadyConnectedOrConnecting(channel, identity string) *Error {
	return &Error{Kind: KindAlreadyConnectedOrConnecting, Channel: channel, Identity: identity}
}

// AlreadyRunning reports a start request on a run that is not idle.
func AlreadyRunning(channel string) *Error {
	return &Error{Kind: KindAlreadyRunning, Channel: channel}
}

// ConnectionFailed reports a hardware-reported connection failure.
func ConnectionFailed(channel, identity, cause string, err error) *Error {
	return &Error{Kind: KindConnectionFailed, Channel: channel, Identity: identity, Cause: cause, Err: err}
}

// PersistenceFailed wraps a failure reported by the session store.
func PersistenceFailed(cause string, err error) *Error {
	return &Error{Kind: KindPersistenceFailed, Cause: cause, Err: err}
}

// ChannelFailed reports that a discovery source terminated with a failure.
func ChannelFailed(channel, cause string, err error) *Error {
	return &Error{Kind: KindChannelFailed, Channel: channel, Cause: cause, Err: err}
}

// KindOf returns the kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
