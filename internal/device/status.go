package device

import (
	"fmt"
	"strings"
)

// ConnectionStatus is the connection state of a radio device.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusUnknown
)

// String returns the lowercase status name.
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("ConnectionStatus(%d)", int(s))
	}
}

// IsActive reports whether a connection is established or being established.
func (s ConnectionStatus) IsActive() bool {
	return s == StatusConnecting || s == StatusConnected
}

// MarshalText encodes the status by name so persisted sessions stay readable.
func (s ConnectionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name. Unrecognised names decode as unknown.
func (s *ConnectionStatus) UnmarshalText(text []byte) error {
	*s = ParseConnectionStatus(string(text))
	return nil
}

// ParseConnectionStatus converts a status name into a ConnectionStatus.
func ParseConnectionStatus(name string) ConnectionStatus {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "disconnected":
		return StatusDisconnected
	case "connecting":
		return StatusConnecting
	case "connected":
		return StatusConnected
	default:
		return StatusUnknown
	}
}
