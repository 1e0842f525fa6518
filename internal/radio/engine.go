package radio

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
const Channel = "radio"

// DefaultTimeout is the scan length used when none is configured.
const DefaultTimeout = 15 * time.Second

// Options configures an Engine.
type Options struct {
	// Clock drives the tick and deadline timers. Defaults to clock.System().
	Clock clock.Clock

	// TickInterval defaults to lifecycle.DefaultTickInterval.
	TickInterval time.Duration

	// AllowDuplicates asks the source not to suppress repeat advertisements.
	AllowDuplicates bool
}

// Engine runs radio discovery scans and connection requests.
type Engine struct {
	mu sync.Mutex

	source          Source
	clock           clock.Clock
	tickInterval    time.Duration
	allowDuplicates bool

	devices    *registry.Registry[device.RadioDevice]
	correlator *Correlator

	// unconfirmed counts disconnects sent to the source whose confirmation
	// has not arrived yet.
	unconfirmed map[string]int

	run         *lifecycle.Run
	runID       string
	power       PowerState
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
		source:          src,
		clock:           opts.Clock,
		tickInterval:    opts.TickInterval,
		allowDuplicates: opts.AllowDuplicates,
		devices: registry.New(registry.Policy[device.RadioDevice]{
			Merge:          device.MergeRadio,
			Less:           device.RadioLess,
			ResortOnUpdate: true,
		}),
		correlator:  NewCorrelator(),
		unconfirmed: make(map[string]int),
		power:       src.PowerState(),
		subs:        make(map[int]func(Event)),
	}
	src.Attach(e)
	return e
}

// StartScanning begins a new run that stops itself after timeout. Devices from
// the previous run are discarded.
func (e *Engine) StartScanning(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	e.mu.Lock()
	if e.run != nil && e.run.State() == lifecycle.StateRunning {
		e.mu.Unlock()
		return scanerr.AlreadyRunning(Channel)
	}
	if !e.power.Available() {
		state := e.power
		err := scanerr.ChannelUnavailable(Channel, state.String())
		e.lastErr = err
		e.mu.Unlock()
		logging.Warn("Radio unavailable", zap.String("power_state", state.String()))
		return err
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
	suppress := !e.allowDuplicates
	fx.add(func() {
		logging.LogScanEvent(Channel, "started",
			zap.String("run_id", runID),
			zap.Duration("timeout", timeout),
		)
		e.source.BeginCollection(suppress)
	})
	e.emitLocked(&fx, Event{Kind: EventStarted, RunID: runID})
	e.mu.Unlock()

	fx.run()
	return nil
}

// StopScanning stops the current run. It is safe to call in any state.
func (e *Engine) StopScanning() {
	e.mu.Lock()
	var fx effects
	if e.run != nil && e.run.StopWithReason(lifecycle.ReasonManual) {
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

// finishLocked runs after the current run has transitioned to stopped. It
// takes the capture and queues the source command, log line, event and stop
// hooks.
func (e *Engine) finishLocked(fx *effects) {
	snap := e.run.Snapshot()
	capture := session.Capture{
		RunID:     e.runID,
		Channel:   Channel,
		StartTime: snap.StartTime,
		EndTime:   snap.EndTime,
		Duration:  snap.Duration,
		Radio:     e.devices.All(),
	}
	e.lastCapture = &capture

	hooks := slices.Clone(e.stopHooks)
	fx.add(func() {
		e.source.EndCollection()
		logging.LogScanEvent(Channel, "stopped",
			zap.String("run_id", capture.RunID),
			zap.String("reason", snap.Reason.String()),
			zap.Int("devices", len(capture.Radio)),
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

// HandlePowerState implements Listener.
func (e *Engine) HandlePowerState(state PowerState) {
	e.mu.Lock()
	var fx effects
	e.power = state
	e.emitLocked(&fx, Event{Kind: EventPower, RunID: e.runID, Power: state})

	if state.Available() {
		if scanerr.KindOf(e.lastErr) == scanerr.KindChannelUnavailable {
			e.lastErr = nil
		}
		e.mu.Unlock()
		fx.run()
		return
	}

	unavailable := scanerr.ChannelUnavailable(Channel, state.String())
	e.lastErr = unavailable
	if e.run != nil && e.run.StopWithReason(lifecycle.ReasonForced) {
		fx.add(func() {
			logging.Warn("Radio lost power during scan, stopping",
				zap.String("power_state", state.String()),
			)
		})
		e.finishLocked(&fx)
		e.emitLocked(&fx, Event{Kind: EventError, RunID: e.runID, Err: unavailable})
	}

	// Connections do not survive the radio going away.
	pending := e.correlator.TakeAll()
	clear(e.unconfirmed)
	e.devices.UpdateAll(func(d *device.RadioDevice) {
		if d.Status.IsActive() {
			d.Status = device.StatusDisconnected
		}
	})
	for id, h := range pending {
		if h == nil {
			continue
		}
		fail := scanerr.ConnectionFailed(Channel, id, state.String(), nil)
		fx.add(func() { h(fail) })
	}
	e.mu.Unlock()
	fx.run()
}

// HandleAdvertisement implements Listener. Advertisements outside a run are
// ignored.
func (e *Engine) HandleAdvertisement(obs Observation) {
	if obs.PeripheralID == "" {
		return
	}

	e.mu.Lock()
	if e.run == nil || e.run.State() != lifecycle.StateRunning {
		e.mu.Unlock()
		return
	}

	seen := obs.SeenAt
	if seen.IsZero() {
		seen = e.clock.Now()
	}
	name := obs.Name
	if name == "" && obs.Advertisement != nil {
		name = obs.Advertisement.LocalName
	}

	// A connect already requested outranks the status the source last
	// reported.
	status := obs.Status
	if status == device.StatusDisconnected && e.correlator.Pending(obs.PeripheralID) {
		status = device.StatusConnecting
	}

	isNew := e.devices.Upsert(device.RadioDevice{
		PeripheralID:  obs.PeripheralID,
		Name:          name,
		RSSI:          obs.RSSI,
		Status:        status,
		Advertisement: obs.Advertisement,
		LastSeen:      seen,
	})

	var fx effects
	if stored, ok := e.devices.Get(obs.PeripheralID); ok {
		e.emitLocked(&fx, Event{Kind: EventDevice, RunID: e.runID, Device: &stored, New: isNew})
	}
	e.mu.Unlock()

	var payload []byte
	if obs.Advertisement != nil {
		payload = obs.Advertisement.ManufacturerData
	}
	logging.LogAdvertisement(obs.PeripheralID, obs.RSSI, payload)
	fx.run()
}

// Connect requests a connection to a discovered device. The outcome is
// delivered to onResult exactly once, later, unless a newer request for the
// same device supersedes it.
func (e *Engine) Connect(id string, onResult ResultHandler) error {
	e.mu.Lock()
	d, ok := e.devices.Get(id)
	if !ok {
		e.mu.Unlock()
		return scanerr.DeviceNotFound(Channel, id)
	}
	if d.Status.IsActive() {
		e.mu.Unlock()
		return scanerr.AlreadyConnectedOrConnecting(Channel, id)
	}
	if !e.power.Available() {
		e.mu.Unlock()
		return scanerr.ChannelUnavailable(Channel, e.power.String())
	}

	e.correlator.Register(id, onResult)
	e.devices.Update(id, func(d *device.RadioDevice) {
		d.Status = device.StatusConnecting
	})

	var fx effects
	e.emitDeviceLocked(&fx, EventConnection, id)
	fx.add(func() {
		logging.LogDeviceEvent(Channel, id, "connect_requested")
		e.source.Connect(id)
	})
	e.mu.Unlock()
	fx.run()
	return nil
}

// HandleConnectOutcome implements Listener.
func (e *Engine) HandleConnectOutcome(id string, err error) {
	e.mu.Lock()
	handler, _ := e.correlator.Take(id)

	status := device.StatusConnected
	var result error
	if err != nil {
		status = device.StatusDisconnected
		result = scanerr.ConnectionFailed(Channel, id, err.Error(), err)
	}
	e.devices.Update(id, func(d *device.RadioDevice) {
		d.Status = status
	})

	var fx effects
	e.emitDeviceLocked(&fx, EventConnection, id)
	e.mu.Unlock()

	if err != nil {
		logging.LogDeviceEvent(Channel, id, "connect_failed", zap.Error(err))
	} else {
		logging.LogDeviceEvent(Channel, id, "connected")
	}
	fx.run()
	if handler != nil {
		handler(result)
	}
}

// HandleDisconnected implements Listener. The confirmation of a Disconnect
// issued by the engine is consumed without changing state, since the local
// status was already updated and a newer Connect may be pending. Any other
// disconnect fails a connect request still waiting for its outcome.
func (e *Engine) HandleDisconnected(id string) {
	e.mu.Lock()
	if n := e.unconfirmed[id]; n > 0 {
		if n == 1 {
			delete(e.unconfirmed, id)
		} else {
			e.unconfirmed[id] = n - 1
		}
		e.mu.Unlock()
		logging.LogDeviceEvent(Channel, id, "disconnect_confirmed")
		return
	}

	handler, _ := e.correlator.Take(id)
	e.devices.Update(id, func(d *device.RadioDevice) {
		d.Status = device.StatusDisconnected
	})

	var fx effects
	e.emitDeviceLocked(&fx, EventConnection, id)
	e.mu.Unlock()

	logging.LogDeviceEvent(Channel, id, "disconnected")
	fx.run()
	if handler != nil {
		handler(scanerr.ConnectionFailed(Channel, id, "disconnected", nil))
	}
}

// Disconnect drops the connection to id. The local status is set to
// disconnected immediately without waiting for the radio to confirm.
func (e *Engine) Disconnect(id string) {
	e.mu.Lock()
	d, ok := e.devices.Get(id)
	if !ok || d.Status == device.StatusDisconnected {
		e.mu.Unlock()
		return
	}
	e.devices.Update(id, func(d *device.RadioDevice) {
		d.Status = device.StatusDisconnected
	})
	e.unconfirmed[id]++

	var fx effects
	e.emitDeviceLocked(&fx, EventConnection, id)
	fx.add(func() {
		logging.LogDeviceEvent(Channel, id, "disconnect_requested")
		e.source.Disconnect(id)
	})
	e.mu.Unlock()
	fx.run()
}

// DisconnectAll disconnects every connected or connecting device.
func (e *Engine) DisconnectAll() {
	e.mu.Lock()
	active := e.devices.Filter(func(d device.RadioDevice) bool {
		return d.Status.IsActive()
	})
	e.devices.UpdateAll(func(d *device.RadioDevice) {
		d.Status = device.StatusDisconnected
	})

	var fx effects
	for _, d := range active {
		id := d.PeripheralID
		e.unconfirmed[id]++
		e.emitDeviceLocked(&fx, EventConnection, id)
		fx.add(func() { e.source.Disconnect(id) })
	}
	e.mu.Unlock()
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

func (e *Engine) emitDeviceLocked(fx *effects, kind EventKind, id string) {
	if d, ok := e.devices.Get(id); ok {
		e.emitLocked(fx, Event{Kind: kind, RunID: e.runID, Device: &d})
	}
}

// Capture returns a copy of the most recently stopped run.
func (e *Engine) Capture() (session.Capture, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastCapture == nil {
		return session.Capture{}, false
	}
	c := *e.lastCapture
	c.Radio = cloneRadio(c.Radio)
	return c, true
}

func cloneRadio(in []device.RadioDevice) []device.RadioDevice {
	out := make([]device.RadioDevice, len(in))
	for i, d := range in {
		out[i] = d.Clone()
	}
	return out
}

// Devices returns the discovered devices, strongest signal first.
func (e *Engine) Devices() []device.RadioDevice {
	return e.devices.All()
}

// Device returns the device with the given identity.
func (e *Engine) Device(id string) (device.RadioDevice, bool) {
	return e.devices.Get(id)
}

// DeviceCount returns the number of distinct devices in the current run.
func (e *Engine) DeviceCount() int {
	return e.devices.Len()
}

// ConnectedDevices returns the devices with an established connection.
func (e *Engine) ConnectedDevices() []device.RadioDevice {
	return e.devices.Filter(func(d device.RadioDevice) bool {
		return d.Status == device.StatusConnected
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

// PowerState returns the last power state reported by the source.
func (e *Engine) PowerState() PowerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.power
}

// LastError returns the most recent channel condition, or nil.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}
