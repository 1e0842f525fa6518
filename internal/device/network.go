package device

import (
	"fmt"
	"net/netip"
	"slices"
	"strconv"
	"strings"
	"time"
)

// NetworkDevice is a host observed through a local-network probe.
type NetworkDevice struct {
	// IPAddress is the stable identity of the host.
	IPAddress string `yaml:"ip_address" json:"ip_address" cbor:"1,keyasint"`

	MACAddress   string        `yaml:"mac_address,omitempty" json:"mac_address,omitempty" cbor:"2,keyasint,omitempty"`
	Hostname     string        `yaml:"hostname,omitempty" json:"hostname,omitempty" cbor:"3,keyasint,omitempty"`
	Vendor       string        `yaml:"vendor,omitempty" json:"vendor,omitempty" cbor:"4,keyasint,omitempty"`
	IsLocal      bool          `yaml:"is_local,omitempty" json:"is_local,omitempty" cbor:"5,keyasint,omitempty"`
	Ports        []int         `yaml:"ports,omitempty" json:"ports,omitempty" cbor:"6,keyasint,omitempty"`
	ResponseTime time.Duration `yaml:"response_time,omitempty" json:"response_time,omitempty" cbor:"7,keyasint,omitempty"`

	// Metadata holds service TXT records or other probe-specific details.
	Metadata map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty" cbor:"8,keyasint,omitempty"`

	LastSeen time.Time `yaml:"last_seen" json:"last_seen" cbor:"9,keyasint"`
}

// Identity returns the merge key.
func (d NetworkDevice) Identity() string {
	return d.IPAddress
}

// Clone returns a deep copy that shares no mutable state with d.
func (d NetworkDevice) Clone() NetworkDevice {
	c := d
	c.Ports = slices.Clone(d.Ports)
	if d.Metadata != nil {
		c.Metadata = make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// Equal reports whether both records describe the same host.
func (d NetworkDevice) Equal(other NetworkDevice) bool {
	return d.IPAddress == other.IPAddress
}

// DisplayName returns the hostname, falling back to the address.
func (d NetworkDevice) DisplayName() string {
	if d.Hostname != "" {
		return d.Hostname
	}
	return d.IPAddress
}

// FormattedMAC returns the MAC address or a placeholder.
func (d NetworkDevice) FormattedMAC() string {
	if d.MACAddress == "" {
		return "MAC unknown"
	}
	return d.MACAddress
}

// FormattedResponseTime returns the probe round trip in milliseconds, or ""
// when no response time was measured.
func (d NetworkDevice) FormattedResponseTime() string {
	if d.ResponseTime <= 0 {
		return ""
	}
	return fmt.Sprintf("%.2f ms", float64(d.ResponseTime)/float64(time.Millisecond))
}

// OpenPortsDescription lists open ports separated by commas, or "" if none.
func (d NetworkDevice) OpenPortsDescription() string {
	if len(d.Ports) == 0 {
		return ""
	}
	parts := make([]string, len(d.Ports))
	for i, p := range d.Ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ", ")
}

// MergeNetwork applies a fresh probe result to an existing record. Hostname,
// MAC and vendor are only replaced when the probe reports them.
func MergeNetwork(existing *NetworkDevice, obs NetworkDevice) {
	if obs.Hostname != "" {
		existing.Hostname = obs.Hostname
	}
	if obs.MACAddress != "" {
		existing.MACAddress = obs.MACAddress
	}
	if obs.Vendor != "" {
		existing.Vendor = obs.Vendor
	}
	if obs.IsLocal {
		existing.IsLocal = true
	}
	if len(obs.Ports) > 0 {
		existing.Ports = mergePorts(existing.Ports, obs.Ports)
	}
	if obs.ResponseTime > 0 {
		existing.ResponseTime = obs.ResponseTime
	}
	for k, v := range obs.Metadata {
		if existing.Metadata == nil {
			existing.Metadata = make(map[string]string, len(obs.Metadata))
		}
		existing.Metadata[k] = v
	}
	if obs.LastSeen.After(existing.LastSeen) {
		existing.LastSeen = obs.LastSeen
	}
}

func mergePorts(a, b []int) []int {
	out := slices.Clone(a)
	for _, p := range b {
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out
}

// NetworkLess orders hosts by address compared numerically, so 192.168.1.9
// sorts before 192.168.1.10.
func NetworkLess(a, b NetworkDevice) bool {
	return CompareAddress(a.IPAddress, b.IPAddress) < 0
}

// CompareAddress compares two addresses numerically. Parseable IP addresses
// compare by value; anything else is compared segment by segment, treating
// digit runs as numbers.
func CompareAddress(a, b string) int {
	addrA, errA := netip.ParseAddr(a)
	addrB, errB := netip.ParseAddr(b)
	if errA == nil && errB == nil {
		return addrA.Unmap().Compare(addrB.Unmap())
	}
	return compareSegments(a, b)
}

func compareSegments(a, b string) int {
	sa := strings.Split(a, ".")
	sb := strings.Split(b, ".")
	for i := 0; i < len(sa) && i < len(sb); i++ {
		na, errA := strconv.Atoi(sa[i])
		nb, errB := strconv.Atoi(sb[i])
		switch {
		case errA == nil && errB == nil:
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
		default:
			if c := strings.Compare(sa[i], sb[i]); c != 0 {
				return c
			}
		}
	}
	switch {
	case len(sa) < len(sb):
		return -1
	case len(sa) > len(sb):
		return 1
	}
	return 0
}
