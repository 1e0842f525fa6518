package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/proxiscan/internal/clock"
)

var epoch = time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)

// harness wires a run's hooks straight back into it, the way an engine does
// under its own lock.
type harness struct {
	clock   *clock.Fake
	run     *Run
	stopped int
}

func newHarness() *harness {
	c := clock.NewFake(epoch)
	return &harness{clock: c, run: New(c, 100*time.Millisecond)}
}

func (h *harness) start(t *testing.T, timeout time.Duration) {
	t.Helper()
	require.NoError(t, h.run.Start(timeout, Hooks{
		OnTick: func() {
			if h.run.Tick() {
				h.stopped++
			}
		},
		OnDeadline: func() {
			if h.run.Expire() {
				h.stopped++
			}
		},
	}))
}

func TestRun_InitialState(t *testing.T) {
	h := newHarness()

	assert.Equal(t, StateIdle, h.run.State())
	_, ok := h.run.Duration()
	assert.False(t, ok)
	assert.False(t, h.run.Snapshot().HasDuration())
}

func TestRun_StartTwiceFails(t *testing.T) {
	h := newHarness()
	h.start(t, time.Second)

	err := h.run.Start(time.Second, Hooks{})
	assert.ErrorIs(t, err, ErrNotIdle)
	assert.Equal(t, StateRunning, h.run.State())
}

func TestRun_StartAfterStopFails(t *testing.T) {
	h := newHarness()
	h.start(t, time.Second)
	h.run.Stop()

	assert.ErrorIs(t, h.run.Start(time.Second, Hooks{}), ErrNotIdle)
}

func TestRun_RejectsInvalidTimeout(t *testing.T) {
	h := newHarness()
	assert.Error(t, h.run.Start(0, Hooks{}))
	assert.Equal(t, StateIdle, h.run.State())
}

func TestRun_TickProgress(t *testing.T) {
	h := newHarness()
	h.start(t, time.Second)

	h.clock.Advance(500 * time.Millisecond)
	assert.InDelta(t, 0.5, h.run.Progress(), 1e-9)
	assert.Equal(t, StateRunning, h.run.State())
	_, ok := h.run.Duration()
	assert.False(t, ok, "duration must not exist while running")
}

func TestRun_TimeoutStopsExactlyOnce(t *testing.T) {
	h := newHarness()
	h.start(t, time.Second)

	h.clock.Advance(3 * time.Second)

	assert.Equal(t, StateStopped, h.run.State())
	assert.Equal(t, 1, h.stopped)
	assert.Equal(t, 1.0, h.run.Progress())
	d, ok := h.run.Duration()
	require.True(t, ok)
	assert.Equal(t, time.Second, d)
	assert.Equal(t, ReasonTimeout, h.run.Snapshot().Reason)
	assert.Zero(t, h.clock.Pending(), "timers must be cancelled on stop")
}

func TestRun_DeadlineStopsWithoutTicks(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.run.Start(time.Second, Hooks{
		OnDeadline: func() {
			if h.run.Expire() {
				h.stopped++
			}
		},
	}))

	h.clock.Advance(time.Second)

	assert.Equal(t, StateStopped, h.run.State())
	assert.Equal(t, ReasonDeadline, h.run.Snapshot().Reason)
	assert.Equal(t, 1, h.stopped)
}

func TestRun_ManualStop(t *testing.T) {
	h := newHarness()
	h.start(t, 10*time.Second)
	h.clock.Advance(2500 * time.Millisecond)

	require.True(t, h.run.Stop())

	snap := h.run.Snapshot()
	assert.Equal(t, StateStopped, snap.State)
	assert.Equal(t, 1.0, snap.Progress, "manual stop forces progress to 1.0")
	assert.Equal(t, epoch.Add(2500*time.Millisecond), snap.EndTime)
	assert.Equal(t, 2500*time.Millisecond, snap.Duration)
	assert.Zero(t, h.clock.Pending())
}

func TestRun_StopIsIdempotent(t *testing.T) {
	h := newHarness()
	h.start(t, 10*time.Second)
	h.clock.Advance(time.Second)

	require.True(t, h.run.Stop())
	first := h.run.Snapshot()

	h.clock.Advance(time.Second)
	assert.False(t, h.run.Stop())
	assert.False(t, h.run.Expire())
	assert.False(t, h.run.Tick())

	assert.Equal(t, first, h.run.Snapshot())
}

func TestRun_StopOnIdleIsNoop(t *testing.T) {
	h := newHarness()
	assert.False(t, h.run.Stop())
	assert.Equal(t, StateIdle, h.run.State())
}

func TestRun_DefaultTickInterval(t *testing.T) {
	r := New(clock.NewFake(epoch), 0)
	assert.Equal(t, DefaultTickInterval, r.tickInterval)
}
