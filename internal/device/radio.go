package device

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Advertisement is the payload carried by a radio advertisement.
type Advertisement struct {
	LocalName        string   `yaml:"local_name,omitempty" json:"local_name,omitempty" cbor:"1,keyasint,omitempty"`
	ManufacturerData []byte   `yaml:"manufacturer_data,omitempty" json:"manufacturer_data,omitempty" cbor:"2,keyasint,omitempty"`
	ServiceUUIDs     []string `yaml:"service_uuids,omitempty" json:"service_uuids,omitempty" cbor:"3,keyasint,omitempty"`
	TxPower          *int     `yaml:"tx_power,omitempty" json:"tx_power,omitempty" cbor:"4,keyasint,omitempty"`
	Connectable      bool     `yaml:"connectable,omitempty" json:"connectable,omitempty" cbor:"5,keyasint,omitempty"`
}

// Clone returns a deep copy of the advertisement.
func (a *Advertisement) Clone() *Advertisement {
	if a == nil {
		return nil
	}
	c := *a
	c.ManufacturerData = slices.Clone(a.ManufacturerData)
	c.ServiceUUIDs = slices.Clone(a.ServiceUUIDs)
	if a.TxPower != nil {
		p := *a.TxPower
		c.TxPower = &p
	}
	return &c
}

// RadioDevice is a device observed through radio advertisements.
type RadioDevice struct {
	// PeripheralID is the stable identity assigned by the radio stack.
	PeripheralID string `yaml:"peripheral_id" json:"peripheral_id" cbor:"1,keyasint"`

	// Name is the advertised name, if any.
	Name string `yaml:"name,omitempty" json:"name,omitempty" cbor:"2,keyasint,omitempty"`

	// RSSI is the received signal strength in dBm.
	RSSI int `yaml:"rssi" json:"rssi" cbor:"3,keyasint"`

	Status        ConnectionStatus `yaml:"status" json:"status" cbor:"4,keyasint"`
	Advertisement *Advertisement   `yaml:"advertisement,omitempty" json:"advertisement,omitempty" cbor:"5,keyasint,omitempty"`
	Services      []string         `yaml:"services,omitempty" json:"services,omitempty" cbor:"6,keyasint,omitempty"`
	LastSeen      time.Time        `yaml:"last_seen" json:"last_seen" cbor:"7,keyasint"`
}

// Identity returns the merge key.
func (d RadioDevice) Identity() string {
	return d.PeripheralID
}

// Clone returns a deep copy that shares no mutable state with d.
func (d RadioDevice) Clone() RadioDevice {
	c := d
	c.Advertisement = d.Advertisement.Clone()
	c.Services = slices.Clone(d.Services)
	return c
}

// Equal reports whether both records describe the same device.
func (d RadioDevice) Equal(other RadioDevice) bool {
	return d.PeripheralID == other.PeripheralID
}

// DisplayName returns the advertised name, or a placeholder built from the
// identity when the device does not advertise one.
func (d RadioDevice) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	if d.PeripheralID != "" {
		id := d.PeripheralID
		if len(id) > 8 {
			id = id[:8]
		}
		return fmt.Sprintf("Unknown device (%s)", strings.ToUpper(id))
	}
	return "Unknown"
}

// FormattedRSSI returns the signal strength with its unit.
func (d RadioDevice) FormattedRSSI() string {
	return fmt.Sprintf("%d dBm", d.RSSI)
}

// SignalStrength buckets RSSI into a coarse quality level.
type SignalStrength int

const (
	SignalUnknown SignalStrength = iota
	SignalWeak
	SignalMedium
	SignalStrong
)

func (s SignalStrength) String() string {
	switch s {
	case SignalWeak:
		return "weak"
	case SignalMedium:
		return "medium"
	case SignalStrong:
		return "strong"
	default:
		return "unknown"
	}
}

// SignalStrength classifies the device RSSI.
func (d RadioDevice) SignalStrength() SignalStrength {
	switch {
	case d.RSSI < -80:
		return SignalWeak
	case d.RSSI < -60:
		return SignalMedium
	case d.RSSI < 0:
		return SignalStrong
	default:
		return SignalUnknown
	}
}

// MergeRadio applies a fresh observation to an existing record. Identity and
// any field the observation leaves empty are kept; LastSeen never moves
// backwards.
func MergeRadio(existing *RadioDevice, obs RadioDevice) {
	existing.RSSI = obs.RSSI
	if obs.Name != "" {
		existing.Name = obs.Name
	}
	if obs.Advertisement != nil {
		existing.Advertisement = obs.Advertisement.Clone()
	}
	if len(obs.Services) > 0 {
		existing.Services = slices.Clone(obs.Services)
	}
	existing.Status = obs.Status
	if obs.LastSeen.After(existing.LastSeen) {
		existing.LastSeen = obs.LastSeen
	}
}

// RadioLess orders radio devices by descending signal strength, breaking
// ties by ascending identity.
func RadioLess(a, b RadioDevice) bool {
	if a.RSSI != b.RSSI {
		return a.RSSI > b.RSSI
	}
	return a.PeripheralID < b.PeripheralID
}
