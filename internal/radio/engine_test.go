package radio

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/proxiscan/internal/clock"
	"github.com/muurk/proxiscan/internal/device"
	"github.com/muurk/proxiscan/internal/lifecycle"
	"github.com/muurk/proxiscan/internal/scanerr"
	"github.com/muurk/proxiscan/internal/session"
)

var epoch = time.Date(2026, 2, 5, 9, 30, 0, 0, time.UTC)

// fakeSource records commands. Events are injected by calling the engine's
// Listener methods directly from the test.
type fakeSource struct {
	mu          sync.Mutex
	power       PowerState
	listener    Listener
	begins      []bool
	ends        int
	connects    []string
	disconnects []string
}

func (f *fakeSource) Attach(l Listener)      { f.listener = l }
func (f *fakeSource) PowerState() PowerState { return f.power }

func (f *fakeSource) BeginCollection(suppress bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begins = append(f.begins, suppress)
}

func (f *fakeSource) EndCollection() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ends++
}

func (f *fakeSource) Connect(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, id)
}

func (f *fakeSource) Disconnect(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, id)
}

func newTestEngine(t *testing.T) (*Engine, *fakeSource, *clock.Fake) {
	t.Helper()
	c := clock.NewFake(epoch)
	src := &fakeSource{power: PowerOn}
	e := NewEngine(src, Options{Clock: c, TickInterval: 100 * time.Millisecond})
	require.Same(t, e, src.listener)
	return e, src, c
}

func advertise(e *Engine, id string, rssi int) {
	e.HandleAdvertisement(Observation{PeripheralID: id, RSSI: rssi})
}

func TestEngine_StartRequiresPower(t *testing.T) {
	c := clock.NewFake(epoch)
	src := &fakeSource{power: PowerOff}
	e := NewEngine(src, Options{Clock: c})

	err := e.StartScanning(time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, scanerr.ErrChannelUnavailable))

	var se *scanerr.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "powered_off", se.Cause)
	assert.False(t, e.IsScanning())
	assert.Empty(t, src.begins)
}

func TestEngine_StartRequestsDuplicateSuppression(t *testing.T) {
	e, src, _ := newTestEngine(t)

	require.NoError(t, e.StartScanning(time.Second))
	assert.Equal(t, []bool{true}, src.begins)
	assert.True(t, e.IsScanning())
	assert.NotEmpty(t, e.RunID())
}

func TestEngine_StartWhileRunning(t *testing.T) {
	e, _, _ := newTestEngine(t)
	require.NoError(t, e.StartScanning(time.Second))

	err := e.StartScanning(time.Second)
	assert.ErrorIs(t, err, scanerr.ErrAlreadyRunning)
	assert.True(t, e.IsScanning())
}

func TestEngine_RestartClearsDevices(t *testing.T) {
	e, _, _ := newTestEngine(t)
	require.NoError(t, e.StartScanning(time.Second))
	advertise(e, "A", -50)
	e.StopScanning()
	require.Equal(t, 1, e.DeviceCount())

	require.NoError(t, e.StartScanning(time.Second))
	assert.Zero(t, e.DeviceCount())
}

func TestEngine_OrdersBySignalStrength(t *testing.T) {
	e, _, _ := newTestEngine(t)
	require.NoError(t, e.StartScanning(10*time.Second))

	advertise(e, "A", -50)
	advertise(e, "B", -70)
	assert.Equal(t, []string{"A", "B"}, ids(e.Devices()))

	advertise(e, "B", -40)
	assert.Equal(t, []string{"B", "A"}, ids(e.Devices()))
	assert.Equal(t, 2, e.DeviceCount())
}

func TestEngine_IgnoresAdvertisementsWhenIdle(t *testing.T) {
	e, _, _ := newTestEngine(t)
	advertise(e, "A", -50)
	assert.Zero(t, e.DeviceCount())
}

func TestEngine_NameFallsBackToLocalName(t *testing.T) {
	e, _, _ := newTestEngine(t)
	require.NoError(t, e.StartScanning(time.Second))

	e.HandleAdvertisement(Observation{
		PeripheralID:  "A",
		RSSI:          -60,
		Advertisement: &device.Advertisement{LocalName: "Thermo"},
	})

	d, ok := e.Device("A")
	require.True(t, ok)
	assert.Equal(t, "Thermo", d.Name)
	assert.Equal(t, epoch, d.LastSeen)
}

func TestEngine_TimeoutStopsAndNotifiesOnce(t *testing.T) {
	e, src, c := newTestEngine(t)
	var captures []session.Capture
	e.OnStopped(func(cp session.Capture) { captures = append(captures, cp) })

	require.NoError(t, e.StartScanning(time.Second))
	advertise(e, "A", -50)

	c.Advance(2 * time.Second)

	assert.False(t, e.IsScanning())
	assert.Equal(t, 1.0, e.Progress())
	assert.Equal(t, 1, src.ends)
	require.Len(t, captures, 1)
	assert.Equal(t, Channel, captures[0].Channel)
	assert.Equal(t, time.Second, captures[0].Duration)
	assert.Equal(t, []string{"A"}, ids(captures[0].Radio))

	e.StopScanning()
	assert.Len(t, captures, 1, "stop after timeout must not notify again")
	assert.Equal(t, 1, src.ends)
}

func TestEngine_ProgressEvents(t *testing.T) {
	e, _, c := newTestEngine(t)
	var progress []float64
	e.Subscribe(func(ev Event) {
		if ev.Kind == EventProgress {
			progress = append(progress, ev.Progress)
		}
	})

	require.NoError(t, e.StartScanning(time.Second))
	c.Advance(300 * time.Millisecond)

	require.Len(t, progress, 3)
	assert.InDelta(t, 0.3, progress[2], 1e-9)
}

func TestEngine_UnsubscribeStopsEvents(t *testing.T) {
	e, _, _ := newTestEngine(t)
	count := 0
	unsubscribe := e.Subscribe(func(Event) { count++ })
	unsubscribe()

	require.NoError(t, e.StartScanning(time.Second))
	assert.Zero(t, count)
}

func TestEngine_PowerLossForceStops(t *testing.T) {
	e, _, _ := newTestEngine(t)
	var captures []session.Capture
	e.OnStopped(func(cp session.Capture) { captures = append(captures, cp) })

	require.NoError(t, e.StartScanning(10*time.Second))
	advertise(e, "A", -50)

	e.HandlePowerState(PowerOff)

	assert.False(t, e.IsScanning())
	assert.Equal(t, lifecycle.ReasonForced, e.Snapshot().Reason)
	assert.ErrorIs(t, e.LastError(), scanerr.ErrChannelUnavailable)
	require.Len(t, captures, 1, "partial results are still finalized")
	assert.Len(t, captures[0].Radio, 1)
}

func TestEngine_PowerLossWhileIdleIsLatched(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.HandlePowerState(PowerUnauthorized)
	assert.ErrorIs(t, e.LastError(), scanerr.ErrChannelUnavailable)

	err := e.StartScanning(time.Second)
	var se *scanerr.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "unauthorized", se.Cause)

	e.HandlePowerState(PowerOn)
	assert.NoError(t, e.LastError())
	assert.NoError(t, e.StartScanning(time.Second))
}

func TestEngine_ConnectUnknownDevice(t *testing.T) {
	e, src, _ := newTestEngine(t)
	require.NoError(t, e.StartScanning(time.Second))
	advertise(e, "A", -50)
	before := e.Devices()

	err := e.Connect("missing", func(error) { t.Error("handler must not be invoked") })

	assert.ErrorIs(t, err, scanerr.ErrDeviceNotFound)
	assert.Equal(t, before, e.Devices())
	assert.Zero(t, e.correlator.Len())
	assert.Empty(t, src.connects)
}

func TestEngine_ConnectSuccess(t *testing.T) {
	e, src, _ := newTestEngine(t)
	require.NoError(t, e.StartScanning(time.Second))
	advertise(e, "A", -50)

	var results []error
	require.NoError(t, e.Connect("A", func(err error) { results = append(results, err) }))

	d, _ := e.Device("A")
	assert.Equal(t, device.StatusConnecting, d.Status)
	assert.Equal(t, []string{"A"}, src.connects)
	assert.Empty(t, results, "outcome is never delivered synchronously")

	e.HandleConnectOutcome("A", nil)
	require.Len(t, results, 1)
	assert.NoError(t, results[0])
	assert.Len(t, e.ConnectedDevices(), 1)

	// A late duplicate outcome has nobody to resolve.
	e.HandleConnectOutcome("A", nil)
	assert.Len(t, results, 1)
}

func TestEngine_ConnectWhileActive(t *testing.T) {
	e, _, _ := newTestEngine(t)
	require.NoError(t, e.StartScanning(time.Second))
	advertise(e, "A", -50)
	require.NoError(t, e.Connect("A", func(error) {}))

	err := e.Connect("A", func(error) {})
	assert.ErrorIs(t, err, scanerr.ErrAlreadyConnectedOrConnecting)
}

func TestEngine_ConnectFailureReturnsToDisconnected(t *testing.T) {
	e, _, _ := newTestEngine(t)
	require.NoError(t, e.StartScanning(time.Second))
	advertise(e, "X", -50)

	var results []error
	require.NoError(t, e.Connect("X", func(err error) { results = append(results, err) }))

	e.HandleConnectOutcome("X", errors.New("timeout"))

	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0], scanerr.ErrConnectionFailed)
	var se *scanerr.Error
	require.ErrorAs(t, results[0], &se)
	assert.Equal(t, "timeout", se.Cause)

	d, _ := e.Device("X")
	assert.Equal(t, device.StatusDisconnected, d.Status)
}

func TestEngine_ReconnectSupersedesPendingHandler(t *testing.T) {
	e, src, _ := newTestEngine(t)
	require.NoError(t, e.StartScanning(time.Second))
	advertise(e, "X", -50)

	first, second := 0, 0
	var result error
	require.NoError(t, e.Connect("X", func(error) { first++ }))
	e.Disconnect("X")
	require.NoError(t, e.Connect("X", func(err error) { second++; result = err }))

	// The confirmation of the earlier disconnect arrives after the reconnect.
	e.HandleDisconnected("X")
	assert.Zero(t, second)
	d, _ := e.Device("X")
	assert.Equal(t, device.StatusConnecting, d.Status)

	e.HandleConnectOutcome("X", nil)

	assert.Zero(t, first)
	assert.Equal(t, 1, second)
	assert.NoError(t, result)
	d, _ = e.Device("X")
	assert.Equal(t, device.StatusConnected, d.Status)
	assert.Equal(t, []string{"X", "X"}, src.connects)
	assert.Equal(t, []string{"X"}, src.disconnects)
}

func TestEngine_UnsolicitedDisconnectAfterConfirmation(t *testing.T) {
	e, _, _ := newTestEngine(t)
	require.NoError(t, e.StartScanning(time.Second))
	advertise(e, "X", -50)

	require.NoError(t, e.Connect("X", func(error) {}))
	e.Disconnect("X")
	e.HandleDisconnected("X")

	var got error
	require.NoError(t, e.Connect("X", func(err error) { got = err }))
	e.HandleDisconnected("X")

	assert.ErrorIs(t, got, scanerr.ErrConnectionFailed)
	d, _ := e.Device("X")
	assert.Equal(t, device.StatusDisconnected, d.Status)
}

func TestEngine_PowerLossDropsUnconfirmedDisconnects(t *testing.T) {
	e, _, _ := newTestEngine(t)
	require.NoError(t, e.StartScanning(time.Second))
	advertise(e, "X", -50)
	require.NoError(t, e.Connect("X", func(error) {}))
	e.DisconnectAll()

	e.HandlePowerState(PowerResetting)
	e.HandlePowerState(PowerOn)
	require.NoError(t, e.StartScanning(time.Second))
	advertise(e, "X", -50)

	var got error
	require.NoError(t, e.Connect("X", func(err error) { got = err }))
	e.HandleDisconnected("X")

	assert.ErrorIs(t, got, scanerr.ErrConnectionFailed)
}

func TestEngine_AdvertisementKeepsRequestedConnect(t *testing.T) {
	e, _, _ := newTestEngine(t)
	require.NoError(t, e.StartScanning(time.Second))
	advertise(e, "X", -50)
	require.NoError(t, e.Connect("X", func(error) {}))

	e.HandleAdvertisement(Observation{PeripheralID: "X", RSSI: -45, Status: device.StatusDisconnected})

	d, _ := e.Device("X")
	assert.Equal(t, device.StatusConnecting, d.Status)
	assert.Equal(t, -45, d.RSSI)

	e.HandleConnectOutcome("X", nil)
	d, _ = e.Device("X")
	assert.Equal(t, device.StatusConnected, d.Status)
}

func TestEngine_DisconnectIsOptimistic(t *testing.T) {
	e, src, _ := newTestEngine(t)
	require.NoError(t, e.StartScanning(time.Second))
	advertise(e, "A", -50)
	require.NoError(t, e.Connect("A", func(error) {}))
	e.HandleConnectOutcome("A", nil)

	e.Disconnect("A")

	d, _ := e.Device("A")
	assert.Equal(t, device.StatusDisconnected, d.Status)
	assert.Equal(t, []string{"A"}, src.disconnects)

	// Confirmation re-asserts the same status; further disconnects do nothing.
	e.HandleDisconnected("A")
	e.Disconnect("A")
	e.Disconnect("missing")
	d, _ = e.Device("A")
	assert.Equal(t, device.StatusDisconnected, d.Status)
	assert.Equal(t, []string{"A"}, src.disconnects)
}

func TestEngine_DisconnectedEventFailsPendingConnect(t *testing.T) {
	e, _, _ := newTestEngine(t)
	require.NoError(t, e.StartScanning(time.Second))
	advertise(e, "A", -50)

	var got error
	require.NoError(t, e.Connect("A", func(err error) { got = err }))
	e.HandleDisconnected("A")

	assert.ErrorIs(t, got, scanerr.ErrConnectionFailed)
}

func TestEngine_DisconnectAll(t *testing.T) {
	e, src, _ := newTestEngine(t)
	require.NoError(t, e.StartScanning(time.Second))
	advertise(e, "A", -50)
	advertise(e, "B", -60)
	advertise(e, "C", -70)
	require.NoError(t, e.Connect("A", func(error) {}))
	require.NoError(t, e.Connect("B", func(error) {}))
	e.HandleConnectOutcome("A", nil)

	e.DisconnectAll()

	assert.ElementsMatch(t, []string{"A", "B"}, src.disconnects)
	for _, d := range e.Devices() {
		assert.Equal(t, device.StatusDisconnected, d.Status, d.PeripheralID)
	}
}

func TestEngine_PowerLossFailsPendingConnects(t *testing.T) {
	e, _, _ := newTestEngine(t)
	require.NoError(t, e.StartScanning(time.Second))
	advertise(e, "A", -50)

	var got error
	require.NoError(t, e.Connect("A", func(err error) { got = err }))
	e.HandlePowerState(PowerResetting)

	assert.ErrorIs(t, got, scanerr.ErrConnectionFailed)
	d, _ := e.Device("A")
	assert.Equal(t, device.StatusDisconnected, d.Status)
}

func TestEngine_CaptureIsACopy(t *testing.T) {
	e, _, _ := newTestEngine(t)
	_, ok := e.Capture()
	assert.False(t, ok)

	require.NoError(t, e.StartScanning(time.Second))
	advertise(e, "A", -50)
	e.StopScanning()

	cp, ok := e.Capture()
	require.True(t, ok)
	cp.Radio[0].Name = "mutated"

	again, _ := e.Capture()
	assert.Empty(t, again.Radio[0].Name)
}

func ids(devices []device.RadioDevice) []string {
	out := make([]string, len(devices))
	for i, d := range devices {
		out[i] = d.PeripheralID
	}
	return out
}
