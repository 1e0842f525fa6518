package lifecycle

import (
	"fmt"
	"time"

	"github.com/muurk/proxiscan/internal/clock"
)

// DefaultTickInterval is the progress recomputation cadence.
const DefaultTickInterval = 100 * time.Millisecond

// State is the lifecycle state of a run.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StopReason records what ended a run.
type StopReason int

const (
	ReasonNone StopReason = iota
	ReasonManual
	ReasonTimeout
	ReasonDeadline
	ReasonForced
	ReasonSourceTerminated
)

func (r StopReason) String() string {
	switch r {
	case ReasonManual:
		return "manual"
	case ReasonTimeout:
		return "timeout"
	case ReasonDeadline:
		return "deadline"
	case ReasonForced:
		return "forced"
	case ReasonSourceTerminated:
		return "source_terminated"
	default:
		return "none"
	}
}

// Hooks are invoked when a run's timers fire. The owner wraps them in its own
// serialisation and then calls Tick or Expire.
type Hooks struct {
	OnTick     func()
	OnDeadline func()
}

// Run is a single scan run.
type Run struct {
	clock        clock.Clock
	tickInterval time.Duration

	state     State
	timeout   time.Duration
	startTime time.Time
	endTime   time.Time
	duration  time.Duration
	progress  float64
	reason    StopReason

	tick     clock.Timer
	deadline clock.Timer
}

// Snapshot is a point-in-time view of a run.
type Snapshot struct {
	State     State
	Timeout   time.Duration
	StartTime time.Time
	EndTime   time.Time // zero until stopped
	Duration  time.Duration
	Progress  float64
	Reason    StopReason
}

// HasDuration reports whether Duration is defined, which is exactly when the
// run has stopped.
func (s Snapshot) HasDuration() bool {
	return s.State == StateStopped
}

// New creates an idle run. A non-positive tickInterval selects the default.
func New(c clock.Clock, tickInterval time.Duration) *Run {
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	return &Run{clock: c, tickInterval: tickInterval}
}

// ErrNotIdle is returned by Start on a run that has already been started.
var ErrNotIdle = fmt.Errorf("run is not idle")

// Start transitions idle → running and arms the tick and deadline timers.
func (r *Run) Start(timeout time.Duration, hooks Hooks) error {
	if r.state != StateIdle {
		return ErrNotIdle
	}
	if timeout <= 0 {
		return fmt.Errorf("invalid scan timeout %v", timeout)
	}

	r.state = StateRunning
	r.timeout = timeout
	r.startTime = r.clock.Now()
	r.progress = 0

	if hooks.OnTick != nil {
		r.tick = r.clock.Every(r.tickInterval, hooks.OnTick)
	}
	if hooks.OnDeadline != nil {
		r.deadline = r.clock.AfterFunc(timeout, hooks.OnDeadline)
	}
	return nil
}

// Tick recomputes progress and stops the run once it reaches 1.0. It reports
// whether this call performed the stop transition.
func (r *Run) Tick() bool {
	if r.state != StateRunning {
		return false
	}
	elapsed := r.clock.Now().Sub(r.startTime)
	r.progress = min(float64(elapsed)/float64(r.timeout), 1.0)
	if r.progress >= 1.0 {
		return r.stop(ReasonTimeout)
	}
	return false
}

// Expire handles the absolute deadline. It reports whether this call
// performed the stop transition.
func (r *Run) Expire() bool {
	return r.stop(ReasonDeadline)
}

// Stop stops a running run. Calling it on an idle or already stopped run is a
// no-op. It reports whether this call performed the transition.
func (r *Run) Stop() bool {
	return r.stop(ReasonManual)
}

// StopWithReason is Stop with an explicit reason.
func (r *Run) StopWithReason(reason StopReason) bool {
	return r.stop(reason)
}

func (r *Run) stop(reason StopReason) bool {
	if r.state != StateRunning {
		return false
	}
	if r.tick != nil {
		r.tick.Stop()
		r.tick = nil
	}
	if r.deadline != nil {
		r.deadline.Stop()
		r.deadline = nil
	}

	r.state = StateStopped
	r.endTime = r.clock.Now()
	r.duration = r.endTime.Sub(r.startTime)
	r.progress = 1.0
	r.reason = reason
	return true
}

// State returns the current lifecycle state.
func (r *Run) State() State { return r.state }

// Progress returns the completion fraction in [0, 1].
func (r *Run) Progress() float64 { return r.progress }

// Duration returns the run duration; ok is false until the run has stopped.
func (r *Run) Duration() (d time.Duration, ok bool) {
	if r.state != StateStopped {
		return 0, false
	}
	return r.duration, true
}

// Snapshot returns a copy of the run's observable state.
func (r *Run) Snapshot() Snapshot {
	s := Snapshot{
		State:     r.state,
		Timeout:   r.timeout,
		StartTime: r.startTime,
		Progress:  r.progress,
		Reason:    r.reason,
	}
	if r.state == StateStopped {
		s.EndTime = r.endTime
		s.Duration = r.duration
	}
	return s
}
