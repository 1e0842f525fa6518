package network

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/muurk/proxiscan/internal/clock"
	"github.com/muurk/proxiscan/internal/device"
	"github.com/muurk/proxiscan/internal/lifecycle"
	"github.com/muurk/proxiscan/internal/logging"
	"github.com/muurk/proxiscan/internal/registry"
	"github.com/muurk/proxiscan/internal/scanerr"
	"github.com/muurk/proxiscan/internal/session"
)

// Channel is the channel name used in errors, logs and captures.
const Channel = "network"

// DefaultTimeout is the scan length used when none is configured.
const DefaultTimeout = 15 * time.Second

// Options configures an Engine.
type Options struct {
	Clock        clock.Clock
	TickInterval time.Duration
}

// Engine runs network discovery scans.
type Engine struct {
	mu sync.Mutex

	source       Source
	clock        clock.Clock
	tickInterval time.Duration

	devices *registry.Registry[device.NetworkDevice]

	run         *lifecycle.Run
	runID       string
	lastErr     error
	lastCapture *session.Capture

	subs      map[int]func(Event)
	nextSub   int
	stopHooks []func(session.Capture)
}

// NewEngine creates an engine bound to src and attaches itself as the
// source's listener.
func NewEngine(src Source, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	e := &Engine{
		source:       src,
		clock:        opts.Clock,
		tickInterval: opts.TickInterval,
		devices: registry.New(registry.Policy[device.NetworkDevice]{
			Merge: device.MergeNetwork,
			Less:  device.NetworkLess,
		}),
		subs: make(map[int]func(Event)),
	}
	src.Attach(e)
	return e
}

// StartScan begins a new run that stops itself after timeout. Hosts from the
// previous run are discarded.
func (e *Engine) StartScan(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	e.mu.Lock()
	if e.run != nil && e.run.State() == lifecycle.StateRunning {
		e.mu.Unlock()
		return scanerr.AlreadyRunning(Channel)
	}

	run := lifecycle.New(e.clock, e.tickInterval)
	e.devices.Clear()
	if err := run.Start(timeout, lifecycle.Hooks{
		OnTick:     func() { e.onTick(run) },
		OnDeadline: func() { e.onDeadline(run) },
	}); err != nil {
		e.mu.Unlock()
		return err
	}
	e.run = run
	e.runID = uuid.NewString()
	e.lastErr = nil

	var fx effects
	runID := e.runID
	fx.add(func() {
		logging.LogScanEvent(Channel, "started",
			zap.String("run_id", runID),
			zap.Duration("timeout", timeout),
		)
		e.source.Attach(runListener{engine: e, run: run})
		e.source.BeginCollection(true)
	})
	e.emitLocked(&fx, Event{Kind: EventStarted, RunID: runID})
	e.mu.Unlock()

	fx.run()
	return nil
}

// StopScan stops the current run. It is safe to call in any state.
func (e *Engine) StopScan() {
	e.stopWithReason(lifecycle.ReasonManual)
}

func (e *Engine) stopWithReason(reason lifecycle.StopReason) {
	e.mu.Lock()
	var fx effects
	if e.run != nil && e.run.StopWithReason(reason) {
		e.finishLocked(&fx)
	}
	e.mu.Unlock()
	fx.run()
}

func (e *Engine) onTick(run *lifecycle.Run) {
	e.mu.Lock()
	if e.run != run {
		e.mu.Unlock()
		return
	}
	var fx effects
	if run.Tick() {
		e.finishLocked(&fx)
	} else if run.State() == lifecycle.StateRunning {
		e.emitLocked(&fx, Event{Kind: EventProgress, RunID: e.runID, Progress: run.Progress()})
	}
	e.mu.Unlock()
	fx.run()
}

func (e *Engine) onDeadline(run *lifecycle.Run) {
	e.mu.Lock()
	if e.run != run {
		e.mu.Unlock()
		return
	}
	var fx effects
	if run.Expire() {
		e.finishLocked(&fx)
	}
	e.mu.Unlock()
	fx.run()
}

func (e *Engine) finishLocked(fx *effects) {
	snap := e.run.Snapshot()
	capture := session.Capture{
		RunID:     e.runID,
		Channel:   Channel,
		StartTime: snap.StartTime,
		EndTime:   snap.EndTime,
		Duration:  snap.Duration,
		Network:   e.devices.All(),
	}
	e.lastCapture = &capture

	hooks := slices.Clone(e.stopHooks)
	fx.add(func() {
		e.source.EndCollection()
		logging.LogScanEvent(Channel, "stopped",
			zap.String("run_id", capture.RunID),
			zap.String("reason", snap.Reason.String()),
			zap.Int("devices", len(capture.Network)),
			zap.Duration("duration", capture.Duration),
		)
	})
	e.emitLocked(fx, Event{Kind: EventStopped, RunID: capture.RunID, Progress: 1, Reason: snap.Reason})
	fx.add(func() {
		for _, h := range hooks {
			h(capture)
		}
	})
}

// runListener delivers the events of one collection to the run that began
// it. Events arriving after a newer run has started are dropped.
type runListener struct {
	engine *Engine
	run    *lifecycle.Run
}

func (l runListener) HandleProbe(obs device.NetworkDevice) {
	l.engine.handleProbe(l.run, obs)
}

func (l runListener) HandleTerminated(outcome Outcome, err error) {
	l.engine.handleTerminated(l.run, outcome, err)
}

// HandleProbe implements Listener for the current run. Probes outside a run
// are ignored.
func (e *Engine) HandleProbe(obs device.NetworkDevice) {
	e.handleProbe(nil, obs)
}

// handleProbe applies obs to run, or to the current run when run is nil.
func (e *Engine) handleProbe(run *lifecycle.Run, obs device.NetworkDevice) {
	if obs.IPAddress == "" {
		return
	}

	e.mu.Lock()
	if e.run == nil || e.run.State() != lifecycle.StateRunning || (run != nil && run != e.run) {
		e.mu.Unlock()
		return
	}
	if obs.LastSeen.IsZero() {
		obs.LastSeen = e.clock.Now()
	}
	if obs.Vendor == "" && obs.MACAddress != "" {
		obs.Vendor = device.VendorForMAC(obs.MACAddress)
	}

	isNew := e.devices.Upsert(obs)

	var fx effects
	if stored, ok := e.devices.Get(obs.IPAddress); ok {
		e.emitLocked(&fx, Event{Kind: EventDevice, RunID: e.runID, Device: &stored, New: isNew})
	}
	e.mu.Unlock()

	if isNew {
		logging.LogDeviceEvent(Channel, obs.IPAddress, "discovered")
	}
	fx.run()
}

// HandleTerminated implements Listener for the current run. Every outcome
// stops the run; a failure is recorded as the engine's last error.
func (e *Engine) HandleTerminated(outcome Outcome, err error) {
	e.handleTerminated(nil, outcome, err)
}

// handleTerminated ends run, or the current run when run is nil. The outcome
// of a collection superseded by a newer run is dropped.
func (e *Engine) handleTerminated(run *lifecycle.Run, outcome Outcome, err error) {
	e.mu.Lock()
	if run != nil && run != e.run {
		e.mu.Unlock()
		logging.Debug("Ignoring outcome of a superseded network collection",
			zap.String("outcome", outcome.String()))
		return
	}
	var fx effects
	if outcome == OutcomeFailed {
		cause := "unknown"
		if err != nil {
			cause = err.Error()
		}
		failure := scanerr.ChannelFailed(Channel, cause, err)
		e.lastErr = failure
		e.emitLocked(&fx, Event{Kind: EventError, RunID: e.runID, Err: failure})
		fx.add(func() {
			logging.Warn("Network probe failed", zap.Error(err))
		})
	}
	if e.run != nil && e.run.StopWithReason(lifecycle.ReasonSourceTerminated) {
		e.finishLocked(&fx)
	}
	e.mu.Unlock()

	logging.LogScanEvent(Channel, "source_terminated", zap.String("outcome", outcome.String()))
	fx.run()
}

// Subscribe registers fn for engine events and returns a function that
// removes it.
func (e *Engine) Subscribe(fn func(Event)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
}

// OnStopped registers fn to receive the capture of every stopped run.
func (e *Engine) OnStopped(fn func(session.Capture)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopHooks = append(e.stopHooks, fn)
}

func (e *Engine) emitLocked(fx *effects, ev Event) {
	if len(e.subs) == 0 {
		return
	}
	subs := make([]func(Event), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	fx.add(func() {
		for _, fn := range subs {
			fn(ev)
		}
	})
}

// Capture returns a copy of the most recently stopped run.
func (e *Engine) Capture() (session.Capture, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastCapture == nil {
		return session.Capture{}, false
	}
	c := *e.lastCapture
	c.Network = make([]device.NetworkDevice, len(e.lastCapture.Network))
	for i, d := range e.lastCapture.Network {
		c.Network[i] = d.Clone()
	}
	return c, true
}

// Devices returns the discovered hosts in address order.
func (e *Engine) Devices() []device.NetworkDevice {
	return e.devices.All()
}

// Device returns the host with the given address.
func (e *Engine) Device(ip string) (device.NetworkDevice, bool) {
	return e.devices.Get(ip)
}

// DeviceCount returns the number of distinct hosts in the current run.
func (e *Engine) DeviceCount() int {
	return e.devices.Len()
}

// LocalDevices returns the hosts that belong to this machine.
func (e *Engine) LocalDevices() []device.NetworkDevice {
	return e.devices.Filter(func(d device.NetworkDevice) bool {
		return d.IsLocal
	})
}

// IsScanning reports whether a run is in progress.
func (e *Engine) IsScanning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run != nil && e.run.State() == lifecycle.StateRunning
}

// Progress returns the completion fraction of the current or last run.
func (e *Engine) Progress() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run == nil {
		return 0
	}
	return e.run.Progress()
}

// Snapshot returns the lifecycle state of the current or last run.
func (e *Engine) Snapshot() lifecycle.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run == nil {
		return lifecycle.Snapshot{}
	}
	return e.run.Snapshot()
}

// RunID returns the identifier of the current or last run.
func (e *Engine) RunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runID
}

// LastError returns the failure reported by the source for the current or
// last run, or nil.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}
