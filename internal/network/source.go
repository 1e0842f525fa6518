package network

import (
	"github.com/muurk/proxiscan/internal/device"
)

// Outcome is how a source's collection ended.
type Outcome int

const (
	OutcomeFinished Outcome = iota
	OutcomeCancelled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFinished:
		return "finished"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Listener receives events from a Source. Engine implements it.
type Listener interface {
	// HandleProbe reports a host. Fields the probe could not determine are
	// left empty; a zero LastSeen is filled in by the receiver.
	HandleProbe(obs device.NetworkDevice)

	// HandleTerminated reports that collection ended. err is set for
	// OutcomeFailed.
	HandleTerminated(outcome Outcome, err error)
}

// Source is a network probe. Commands must return promptly and must deliver
// their resulting events asynchronously.
//
// Attach sets the listener for collections begun afterwards. A collection
// reports every probe and its single terminal outcome to the listener that
// was attached when it began, even if another listener is attached later.
type Source interface {
	Attach(l Listener)
	BeginCollection(suppressDuplicates bool)
	EndCollection()
}
