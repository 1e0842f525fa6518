package radio

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/muurk/proxiscan/internal/clock"
	"github.com/muurk/proxiscan/internal/device"
)

// Script is a timed sequence of radio events. Offsets are relative to the
// BeginCollection call.
//
//	power: powered_on
//	events:
//	  - after: 200ms
//	    advertisement: {id: 4F1C22A0, name: Headphones, rssi: -52}
//	  - after: 3s
//	    power: powered_off
//	connections:
//	  4F1C22A0: {delay: 400ms}
//	  9B0D11E7: {delay: 1s, error: timeout}
type Script struct {
	// Power is the initial power state; powered_on when omitted.
	Power       *PowerState                 `yaml:"power,omitempty"`
	Events      []ScriptEvent               `yaml:"events"`
	Connections map[string]ScriptConnection `yaml:"connections,omitempty"`

	// DisconnectDelay is how long a disconnect takes to be confirmed.
	DisconnectDelay time.Duration `yaml:"disconnect_delay,omitempty"`
}

// ScriptEvent is one entry of a script. Exactly one of Advertisement or Power
// is set.
type ScriptEvent struct {
	After         time.Duration        `yaml:"after"`
	Repeat        time.Duration        `yaml:"repeat,omitempty"`
	Advertisement *ScriptAdvertisement `yaml:"advertisement,omitempty"`
	Power         *PowerState          `yaml:"power,omitempty"`
}

// ScriptAdvertisement describes an advertisement to replay.
type ScriptAdvertisement struct {
	ID               string   `yaml:"id"`
	Name             string   `yaml:"name,omitempty"`
	RSSI             int      `yaml:"rssi"`
	ManufacturerData string   `yaml:"manufacturer_data,omitempty"` // hex
	ServiceUUIDs     []string `yaml:"service_uuids,omitempty"`
	TxPower          *int     `yaml:"tx_power,omitempty"`
	Connectable      bool     `yaml:"connectable,omitempty"`
}

// ScriptConnection is the scripted outcome of connecting to a peripheral.
type ScriptConnection struct {
	Delay time.Duration `yaml:"delay,omitempty"`
	Error string        `yaml:"error,omitempty"`
}

const (
	defaultConnectDelay    = 100 * time.Millisecond
	defaultDisconnectDelay = 50 * time.Millisecond
)

// LoadScript reads a replay script from a YAML file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript decodes and validates a replay script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse replay script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks every event for consistency.
func (s *Script) Validate() error {
	for i, ev := range s.Events {
		switch {
		case ev.Advertisement == nil && ev.Power == nil:
			return fmt.Errorf("event %d: needs an advertisement or a power state", i)
		case ev.Advertisement != nil && ev.Power != nil:
			return fmt.Errorf("event %d: advertisement and power are mutually exclusive", i)
		case ev.After < 0 || ev.Repeat < 0:
			return fmt.Errorf("event %d: negative offset", i)
		}
		if ad := ev.Advertisement; ad != nil {
			if strings.TrimSpace(ad.ID) == "" {
				return fmt.Errorf("event %d: advertisement without id", i)
			}
			if _, err := hex.DecodeString(ad.ManufacturerData); err != nil {
				return fmt.Errorf("event %d: manufacturer_data: %w", i, err)
			}
		}
	}
	return nil
}

// ReplaySource is a Source that plays back a Script.
type ReplaySource struct {
	mu       sync.Mutex
	clock    clock.Clock
	script   *Script
	listener Listener

	power      PowerState
	status     map[string]device.ConnectionStatus
	collecting bool
	timers     []clock.Timer
	connects   map[string]clock.Timer
}

// NewReplaySource creates a source that replays script on c.
func NewReplaySource(c clock.Clock, script *Script) *ReplaySource {
	if c == nil {
		c = clock.System()
	}
	power := PowerOn
	if script.Power != nil {
		power = *script.Power
	}
	return &ReplaySource{
		clock:    c,
		script:   script,
		power:    power,
		status:   make(map[string]device.ConnectionStatus),
		connects: make(map[string]clock.Timer),
	}
}

// Attach implements Source.
func (r *ReplaySource) Attach(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listener = l
}

// PowerState implements Source.
func (r *ReplaySource) PowerState() PowerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.power
}

// BeginCollection schedules every scripted event. Duplicate suppression does
// not apply; repeated events are delivered as scripted.
func (r *ReplaySource) BeginCollection(bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.collecting {
		return
	}
	r.collecting = true
	for _, ev := range r.script.Events {
		r.timers = append(r.timers, r.clock.AfterFunc(ev.After, func() {
			r.deliver(ev)
			if ev.Repeat > 0 {
				r.mu.Lock()
				if r.collecting {
					r.timers = append(r.timers, r.clock.Every(ev.Repeat, func() { r.deliver(ev) }))
				}
				r.mu.Unlock()
			}
		}))
	}
}

// EndCollection cancels scripted events that have not fired yet.
func (r *ReplaySource) EndCollection() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.collecting = false
	for _, t := range r.timers {
		t.Stop()
	}
	r.timers = nil
}

func (r *ReplaySource) deliver(ev ScriptEvent) {
	r.mu.Lock()
	l := r.listener
	if !r.collecting || l == nil {
		r.mu.Unlock()
		return
	}

	if ev.Power != nil {
		r.power = *ev.Power
		r.mu.Unlock()
		l.HandlePowerState(*ev.Power)
		return
	}

	ad := ev.Advertisement
	obs := Observation{
		PeripheralID:  ad.ID,
		Name:          ad.Name,
		RSSI:          ad.RSSI,
		Status:        r.status[ad.ID],
		Advertisement: ad.payload(),
	}
	r.mu.Unlock()
	l.HandleAdvertisement(obs)
}

func (ad *ScriptAdvertisement) payload() *device.Advertisement {
	data, _ := hex.DecodeString(ad.ManufacturerData)
	p := &device.Advertisement{
		LocalName:        ad.Name,
		ManufacturerData: data,
		ServiceUUIDs:     ad.ServiceUUIDs,
		Connectable:      ad.Connectable,
	}
	if ad.TxPower != nil {
		tx := *ad.TxPower
		p.TxPower = &tx
	}
	return p
}

// Connect schedules the scripted outcome for id. Unscripted peripherals
// connect successfully.
func (r *ReplaySource) Connect(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	outcome := r.script.Connections[id]
	delay := outcome.Delay
	if delay <= 0 {
		delay = defaultConnectDelay
	}
	if t, ok := r.connects[id]; ok {
		t.Stop()
	}
	r.status[id] = device.StatusConnecting
	r.connects[id] = r.clock.AfterFunc(delay, func() {
		r.mu.Lock()
		delete(r.connects, id)
		var err error
		if outcome.Error != "" {
			err = errors.New(outcome.Error)
			r.status[id] = device.StatusDisconnected
		} else {
			r.status[id] = device.StatusConnected
		}
		l := r.listener
		r.mu.Unlock()

		if l != nil {
			l.HandleConnectOutcome(id, err)
		}
	})
}

// Disconnect cancels any pending connect for id and confirms the disconnect
// after the scripted delay.
func (r *ReplaySource) Disconnect(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.connects[id]; ok {
		t.Stop()
		delete(r.connects, id)
	}
	r.status[id] = device.StatusDisconnected

	delay := r.script.DisconnectDelay
	if delay <= 0 {
		delay = defaultDisconnectDelay
	}
	r.clock.AfterFunc(delay, func() {
		r.mu.Lock()
		l := r.listener
		r.mu.Unlock()
		if l != nil {
			l.HandleDisconnected(id)
		}
	})
}
