package session

import (
	"time"

	"github.com/muurk/proxiscan/internal/device"
)

// Capture is a point-in-time copy of a stopped run, taken from an engine.
type Capture struct {
	RunID     string
	Channel   string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Radio   []device.RadioDevice
	Network []device.NetworkDevice
}

// Empty reports whether the capture holds no devices.
func (c Capture) Empty() bool {
	return len(c.Radio) == 0 && len(c.Network) == 0
}

// Capturer is implemented by the scan engines. Capture returns false while no
// stopped run is available.
type Capturer interface {
	Capture() (Capture, bool)
}

// StopNotifier is implemented by engines that report every stop transition.
// fn receives the capture taken at the moment the run stopped.
type StopNotifier interface {
	OnStopped(fn func(Capture))
}

func cloneRadio(cp Capture) []device.RadioDevice {
	if len(cp.Radio) == 0 {
		return nil
	}
	out := make([]device.RadioDevice, len(cp.Radio))
	for i, d := range cp.Radio {
		out[i] = d.Clone()
	}
	return out
}

func cloneNetwork(cp Capture) []device.NetworkDevice {
	if len(cp.Network) == 0 {
		return nil
	}
	out := make([]device.NetworkDevice, len(cp.Network))
	for i, d := range cp.Network {
		out[i] = d.Clone()
	}
	return out
}
