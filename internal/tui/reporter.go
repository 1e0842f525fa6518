package tui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/muurk/proxiscan/internal/network"
	"github.com/muurk/proxiscan/internal/radio"
	"github.com/muurk/proxiscan/internal/session"
)

// Reporter prints one plain line per notable engine event. It is used when
// stdout is not a terminal.
type Reporter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewReporter creates a Reporter writing to w, or os.Stdout if w is nil.
func NewReporter(w io.Writer) *Reporter {
	if w == nil {
		w = os.Stdout
	}
	return &Reporter{out: w}
}

func (r *Reporter) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.out, format+"\n", args...)
}

// RadioEvent reports a radio engine event. Progress ticks and repeat
// sightings are skipped.
func (r *Reporter) RadioEvent(ev radio.Event) {
	switch ev.Kind {
	case radio.EventStarted:
		r.printf("%-8s started run %s", radio.Channel, ev.RunID)
	case radio.EventDevice:
		if ev.New && ev.Device != nil {
			d := ev.Device
			r.printf("%-8s + %s  %s (%s)  %s", radio.Channel, d.DisplayName(), d.FormattedRSSI(), d.SignalStrength(), d.PeripheralID)
		}
	case radio.EventConnection:
		if ev.Device != nil {
			r.printf("%-8s %s %s", radio.Channel, ev.Device.DisplayName(), ev.Device.Status)
		}
	case radio.EventPower:
		r.printf("%-8s power %s", radio.Channel, ev.Power)
	case radio.EventStopped:
		r.printf("%-8s stopped (%s)", radio.Channel, ev.Reason)
	case radio.EventError:
		r.printf("%-8s error: %v", radio.Channel, ev.Err)
	}
}

// NetworkEvent reports a network engine event. Progress ticks and repeat
// probes are skipped.
func (r *Reporter) NetworkEvent(ev network.Event) {
	switch ev.Kind {
	case network.EventStarted:
		r.printf("%-8s started run %s", network.Channel, ev.RunID)
	case network.EventDevice:
		if ev.New && ev.Device != nil {
			d := ev.Device
			line := fmt.Sprintf("%-8s + %s", network.Channel, d.IPAddress)
			if d.Hostname != "" {
				line += "  " + d.Hostname
			}
			if d.Vendor != "" {
				line += "  [" + d.Vendor + "]"
			}
			if ports := d.OpenPortsDescription(); ports != "" {
				line += "  ports " + ports
			}
			r.printf("%s", line)
		}
	case network.EventStopped:
		r.printf("%-8s stopped (%s)", network.Channel, ev.Reason)
	case network.EventError:
		r.printf("%-8s error: %v", network.Channel, ev.Err)
	}
}

// Finished reports the outcome of finalization.
func (r *Reporter) Finished(s *session.ScanSession, err error) {
	switch {
	case err != nil:
		r.printf("session not saved: %v", err)
	case s == nil:
		r.printf("nothing found; no session saved")
	default:
		r.printf("saved %s session %s: %s in %s", s.Type, s.ID, s.DeviceStats(), s.FormattedDuration())
	}
}
