package network

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
	Device   *device.NetworkDevice
	New      bool
	Reason   lifecycle.StopReason
	Err      error
}

type effects []func()

func (fx *effects) add(f func()) {
	*fx = append(*fx, f)
}

func (fx effects) run() {
	for _, f := range fx {
		f()
	}
}
