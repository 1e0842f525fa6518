package session

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/muurk/proxiscan/internal/device"
)

// ScanType records which channels contributed to a session.
type ScanType string

const (
	TypeRadio    ScanType = "radio"
	TypeNetwork  ScanType = "network"
	TypeCombined ScanType = "combined"
)

// ParseScanType parses a scan type name.
func ParseScanType(s string) (ScanType, error) {
	switch t := ScanType(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeRadio, TypeNetwork, TypeCombined:
		return t, nil
	default:
		return "", fmt.Errorf("unknown scan type %q", s)
	}
}

// ScanSession is the frozen result of one completed run.
type ScanSession struct {
	ID        string        `yaml:"id" json:"id" cbor:"1,keyasint"`
	Type      ScanType      `yaml:"type" json:"type" cbor:"2,keyasint"`
	StartTime time.Time     `yaml:"start_time" json:"start_time" cbor:"3,keyasint"`
	EndTime   time.Time     `yaml:"end_time,omitempty" json:"end_time,omitzero" cbor:"4,keyasint,omitempty"`
	Duration  time.Duration `yaml:"duration,omitempty" json:"duration,omitempty" cbor:"5,keyasint,omitempty"`

	RadioDevices   []device.RadioDevice   `yaml:"radio_devices,omitempty" json:"radio_devices" cbor:"6,keyasint,omitempty"`
	NetworkDevices []device.NetworkDevice `yaml:"network_devices,omitempty" json:"network_devices" cbor:"7,keyasint,omitempty"`
}

// Completed reports whether the session has an end time.
func (s ScanSession) Completed() bool {
	return !s.EndTime.IsZero()
}

// TotalDevices returns the number of devices across both channels.
func (s ScanSession) TotalDevices() int {
	return len(s.RadioDevices) + len(s.NetworkDevices)
}

// FormattedDuration renders the duration as "12.3 seconds" or "2 min 5 sec".
func (s ScanSession) FormattedDuration() string {
	if !s.Completed() {
		return "in progress"
	}
	secs := s.Duration.Seconds()
	if secs < 60 {
		return fmt.Sprintf("%.1f seconds", secs)
	}
	total := int(secs)
	return fmt.Sprintf("%d min %d sec", total/60, total%60)
}

// DeviceStats summarises the device counts, e.g. "3 radio, 12 network".
func (s ScanSession) DeviceStats() string {
	var parts []string
	if n := len(s.RadioDevices); n > 0 {
		parts = append(parts, fmt.Sprintf("%d radio", n))
	}
	if n := len(s.NetworkDevices); n > 0 {
		parts = append(parts, fmt.Sprintf("%d network", n))
	}
	if len(parts) == 0 {
		return "No devices"
	}
	return strings.Join(parts, ", ")
}

// WithEndTime returns a copy with the end time replaced and the duration
// recomputed. It is used for administrative corrections only.
func (s ScanSession) WithEndTime(end time.Time) ScanSession {
	c := s.Clone()
	c.EndTime = end
	c.Duration = 0
	if !end.IsZero() {
		c.Duration = end.Sub(c.StartTime)
	}
	return c
}

// Clone returns a deep copy.
func (s ScanSession) Clone() ScanSession {
	c := s
	c.RadioDevices = nil
	c.NetworkDevices = nil
	if s.RadioDevices != nil {
		c.RadioDevices = make([]device.RadioDevice, len(s.RadioDevices))
		for i, d := range s.RadioDevices {
			c.RadioDevices[i] = d.Clone()
		}
	}
	if s.NetworkDevices != nil {
		c.NetworkDevices = make([]device.NetworkDevice, len(s.NetworkDevices))
		for i, d := range s.NetworkDevices {
			c.NetworkDevices[i] = d.Clone()
		}
	}
	return c
}

// SortNewestFirst orders sessions by descending start time, in place.
func SortNewestFirst(sessions []ScanSession) {
	slices.SortStableFunc(sessions, func(a, b ScanSession) int {
		return b.StartTime.Compare(a.StartTime)
	})
}

func cloneAll(sessions []ScanSession) []ScanSession {
	out := make([]ScanSession, len(sessions))
	for i, s := range sessions {
		out[i] = s.Clone()
	}
	return out
}
