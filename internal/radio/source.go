package radio

import (
	"time"

	"github.com/muurk/proxiscan/internal/device"
)

// Observation is one advertisement as delivered by a Source.
type Observation struct {
	PeripheralID  string
	Name          string
	RSSI          int
	Advertisement *device.Advertisement

	// Status is the connection state the source currently knows for the
	// peripheral.
	Status device.ConnectionStatus

	// SeenAt is optional; the engine clock is used when zero.
	SeenAt time.Time
}

// Listener receives events from a Source. Engine implements it.
type Listener interface {
	HandlePowerState(state PowerState)
	HandleAdvertisement(obs Observation)

	// HandleConnectOutcome reports the result of a Connect command; a nil err
	// means the connection is established.
	HandleConnectOutcome(peripheralID string, err error)

	HandleDisconnected(peripheralID string)
}

// Source is a radio stack. Commands must return promptly and must deliver
// their resulting events asynchronously.
type Source interface {
	// Attach registers the listener that receives all subsequent events.
	Attach(l Listener)

	// PowerState returns the current availability of the radio.
	PowerState() PowerState

	// BeginCollection starts delivering advertisements. suppressDuplicates
	// is a hint; repeat observations may still arrive.
	BeginCollection(suppressDuplicates bool)

	EndCollection()

	Connect(peripheralID string)

	// Disconnect drops or abandons a connection. Every call is confirmed
	// with exactly one HandleDisconnected.
	Disconnect(peripheralID string)
}
