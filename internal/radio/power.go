package radio

import (
	"fmt"
	"strings"
)

// PowerState is the availability of the radio as reported by the source.
type PowerState int

const (
	PowerUnknown PowerState = iota
	PowerResetting
	PowerUnsupported
	PowerUnauthorized
	PowerOff
	PowerOn
)

var powerNames = map[PowerState]string{
	PowerUnknown:      "unknown",
	PowerResetting:    "resetting",
	PowerUnsupported:  "unsupported",
	PowerUnauthorized: "unauthorized",
	PowerOff:          "powered_off",
	PowerOn:           "powered_on",
}

func (p PowerState) String() string {
	if name, ok := powerNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PowerState(%d)", int(p))
}

// Available reports whether scanning and connecting are possible.
func (p PowerState) Available() bool {
	return p == PowerOn
}

// Description is a user-facing sentence for an unavailable state.
func (p PowerState) Description() string {
	switch p {
	case PowerOn:
		return "Bluetooth is on"
	case PowerOff:
		return "Bluetooth is turned off"
	case PowerUnauthorized:
		return "Bluetooth access is not authorized"
	case PowerUnsupported:
		return "Bluetooth is not supported on this host"
	case PowerResetting:
		return "Bluetooth is resetting"
	default:
		return "Bluetooth state is unknown"
	}
}

// ParsePowerState parses a state name as produced by String.
func ParsePowerState(name string) (PowerState, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for state, n := range powerNames {
		if n == name {
			return state, nil
		}
	}
	switch name {
	case "on", "poweredon":
		return PowerOn, nil
	case "off", "poweredoff":
		return PowerOff, nil
	}
	return PowerUnknown, fmt.Errorf("unknown power state %q", name)
}

// MarshalText encodes the state by name.
func (p PowerState) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a state name.
func (p *PowerState) UnmarshalText(text []byte) error {
	state, err := ParsePowerState(string(text))
	if err != nil {
		return err
	}
	*p = state
	return nil
}
