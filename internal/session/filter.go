package session

import (
	"fmt"
	"strings"
	"time"
)

// DeviceType selects sessions by the kind of device they contain.
type DeviceType int

const (
	AnyDevice DeviceType = iota
	RadioDevices
	NetworkDevices
)

func (t DeviceType) String() string {
	switch t {
	case RadioDevices:
		return "radio"
	case NetworkDevices:
		return "network"
	default:
		return "any"
	}
}

// ParseDeviceType parses "radio", "network" or "" (any).
func ParseDeviceType(s string) (DeviceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any", "all":
		return AnyDevice, nil
	case "radio", "bluetooth":
		return RadioDevices, nil
	case "network":
		return NetworkDevices, nil
	default:
		return AnyDevice, fmt.Errorf("unknown device type %q", s)
	}
}

// Filter is a set of history filters combined with AND. Zero values disable
// the corresponding filter.
type Filter struct {
	Type DeviceType

	// Date keeps sessions that started on the same calendar day, in Date's
	// location.
	Date time.Time

	// Search is a case-insensitive substring matched against device display
	// names and identities.
	Search string
}

// Active reports whether any filter is set.
func (f Filter) Active() bool {
	return f.Type != AnyDevice || !f.Date.IsZero() || strings.TrimSpace(f.Search) != ""
}

// ApplyFilters returns the sessions that pass every filter, newest first. The
// input is not modified.
func ApplyFilters(sessions []ScanSession, f Filter) []ScanSession {
	var dayStart, dayEnd time.Time
	if !f.Date.IsZero() {
		dayStart, dayEnd = dayBounds(f.Date)
	}
	query := strings.ToLower(strings.TrimSpace(f.Search))

	out := make([]ScanSession, 0, len(sessions))
	for _, s := range sessions {
		if !matchesType(s, f.Type) {
			continue
		}
		if !dayStart.IsZero() && (s.StartTime.Before(dayStart) || !s.StartTime.Before(dayEnd)) {
			continue
		}
		if query != "" && !matchesSearch(s, query) {
			continue
		}
		out = append(out, s.Clone())
	}
	SortNewestFirst(out)
	return out
}

func dayBounds(date time.Time) (time.Time, time.Time) {
	y, m, d := date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, date.Location())
	return start, start.AddDate(0, 0, 1)
}

func matchesType(s ScanSession, t DeviceType) bool {
	switch t {
	case RadioDevices:
		return len(s.RadioDevices) > 0
	case NetworkDevices:
		return len(s.NetworkDevices) > 0
	default:
		return true
	}
}

func matchesSearch(s ScanSession, query string) bool {
	for _, d := range s.RadioDevices {
		if containsFold(d.DisplayName(), query) || containsFold(d.PeripheralID, query) {
			return true
		}
	}
	for _, d := range s.NetworkDevices {
		if containsFold(d.DisplayName(), query) || containsFold(d.IPAddress, query) {
			return true
		}
	}
	return false
}

func containsFold(s, lowerQuery string) bool {
	return strings.Contains(strings.ToLower(s), lowerQuery)
}

// DateLayout is the calendar-day format accepted by ParseFilter.
const DateLayout = "2006-01-02"

// ParseFilter builds a Filter from its textual form, as given on the command
// line or in a query string. Dates are interpreted in loc.
func ParseFilter(typ, date, search string, loc *time.Location) (Filter, error) {
	t, err := ParseDeviceType(typ)
	if err != nil {
		return Filter{}, err
	}
	f := Filter{Type: t, Search: strings.TrimSpace(search)}
	if date = strings.TrimSpace(date); date != "" {
		if loc == nil {
			loc = time.Local
		}
		d, err := time.ParseInLocation(DateLayout, date, loc)
		if err != nil {
			return Filter{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", date)
		}
		f.Date = d
	}
	return f, nil
}
