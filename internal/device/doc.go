// Package device defines the observation records produced by the two discovery
// channels: RadioDevice for short-range radio advertisements and NetworkDevice
// for local-network host probes.
//
// Both types carry a stable identity (PeripheralID or IPAddress) that is the
// merge key for a registry; every other field is a mutable observation that a
// later sighting may refresh. Equality between two records is defined solely
// on identity.
//
// The package also provides the channel-specific orderings used by the
// registry (descending signal strength for radio, numeric address order for
// network) and a small OUI vendor table used to label network hosts.
package device
