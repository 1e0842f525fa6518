package radio

import (
	"github.com/muurk/proxiscan/internal/device"
	"github.com/muurk/proxiscan/internal/lifecycle"
)

// EventKind identifies what changed in the engine.
type EventKind int

const (
	EventStarted EventKind = iota
	EventProgress
	EventStopped
	EventDevice
	EventConnection
	EventPower
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventProgress:
		return "progress"
	case EventStopped:
		return "stopped"
	case EventDevice:
		return "device"
	case EventConnection:
		return "connection"
	case EventPower:
		return "power"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers after every engine state change.
type Event struct {
	Kind     EventKind
	RunID    string
	Progress float64

	// Device is set for EventDevice and EventConnection.
	Device *device.RadioDevice
	// New is true when an EventDevice introduced a new identity.
	New bool

	Power  PowerState
	Reason lifecycle.StopReason
	Err    error
}

// effects collects work that must run after the engine lock is released.
type effects []func()

func (fx *effects) add(f func()) {
	*fx = append(*fx, f)
}

func (fx effects) run() {
	for _, f := range fx {
		f()
	}
}
