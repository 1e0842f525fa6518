package feed

import (
	"time"

	"github.com/muurk/proxiscan/internal/device"
	"github.com/muurk/proxiscan/internal/lifecycle"
	"github.com/muurk/proxiscan/internal/network"
	"github.com/muurk/proxiscan/internal/radio"
	"github.com/muurk/proxiscan/internal/session"
)

// Message types.
const (
	TypeRadio    = "radio"
	TypeNetwork  = "network"
	TypeSessions = "sessions"
	TypeStatus   = "status"
)

// Message is one frame on the live feed.
type Message struct {
	Type     string    `json:"type"`
	Event    string    `json:"event,omitempty"`
	Time     time.Time `json:"time"`
	RunID    string    `json:"run_id,omitempty"`
	Progress float64   `json:"progress"`

	RadioDevice   *device.RadioDevice   `json:"radio_device,omitempty"`
	NetworkDevice *device.NetworkDevice `json:"network_device,omitempty"`
	New           bool                  `json:"new,omitempty"`

	Power  string `json:"power,omitempty"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`

	Sessions []session.ScanSession `json:"sessions,omitempty"`
	Status   *Status               `json:"status,omitempty"`
}

// RunView is the JSON form of a lifecycle snapshot.
type RunView struct {
	State     string        `json:"state"`
	Progress  float64       `json:"progress"`
	Timeout   time.Duration `json:"timeout_ns,omitempty"`
	StartTime time.Time     `json:"start_time,omitzero"`
	EndTime   time.Time     `json:"end_time,omitzero"`
	Duration  time.Duration `json:"duration_ns,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}

// ChannelStatus describes one channel's current run and devices.
type ChannelStatus struct {
	Run       RunView `json:"run"`
	RunID     string  `json:"run_id,omitempty"`
	Power     string  `json:"power,omitempty"`
	LastError string  `json:"last_error,omitempty"`

	RadioDevices   []device.RadioDevice   `json:"radio_devices,omitempty"`
	NetworkDevices []device.NetworkDevice `json:"network_devices,omitempty"`
}

// Status is the combined state of the attached engines.
type Status struct {
	Radio   *ChannelStatus `json:"radio,omitempty"`
	Network *ChannelStatus `json:"network,omitempty"`
	Clients int            `json:"clients"`
}

func runView(s lifecycle.Snapshot) RunView {
	v := RunView{
		State:     s.State.String(),
		Progress:  s.Progress,
		Timeout:   s.Timeout,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
	}
	if s.HasDuration() {
		v.Duration = s.Duration
		v.Reason = s.Reason.String()
	}
	return v
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func radioMessage(ev radio.Event, now time.Time) Message {
	m := Message{
		Type:        TypeRadio,
		Event:       ev.Kind.String(),
		Time:        now,
		RunID:       ev.RunID,
		Progress:    ev.Progress,
		RadioDevice: ev.Device,
		New:         ev.New,
		Error:       errString(ev.Err),
	}
	switch ev.Kind {
	case radio.EventPower:
		m.Power = ev.Power.String()
	case radio.EventStopped:
		m.Reason = ev.Reason.String()
	}
	return m
}

func networkMessage(ev network.Event, now time.Time) Message {
	m := Message{
		Type:          TypeNetwork,
		Event:         ev.Kind.String(),
		Time:          now,
		RunID:         ev.RunID,
		Progress:      ev.Progress,
		NetworkDevice: ev.Device,
		New:           ev.New,
		Error:         errString(ev.Err),
	}
	if ev.Kind == network.EventStopped {
		m.Reason = ev.Reason.String()
	}
	return m
}

func sessionsMessage(sessions []session.ScanSession, err error, now time.Time) Message {
	return Message{
		Type:     TypeSessions,
		Event:    "refreshed",
		Time:     now,
		Sessions: sessions,
		Error:    errString(err),
	}
}
