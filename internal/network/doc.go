// Package network discovers hosts on the local network.
//
// The Engine mirrors radio.Engine without the connection layer or power
// gating: a Source reports discovered hosts and a single terminal outcome,
// and the engine merges results by IP address into an address-ordered
// registry. A terminal outcome always stops the current run; a failed
// outcome is kept as the engine's last error and the hosts found so far are
// retained.
//
// # Sources
//
// Two sources are provided:
//   - MDNSSource browses DNS-SD service types with zeroconf
//   - SweepSource connects to a list of TCP ports on every address of a
//     subnet and then enriches the results from the kernel ARP table
//
// Each run attaches its own listener before the collection begins. Reports
// from a collection that outlived its run, such as a cancelled browse
// finishing after a restart, are dropped instead of stopping the new run.
//
// # Usage Example
//
//	engine := network.NewEngine(network.NewMDNSSource(nil), network.Options{})
//	engine.OnStopped(func(cp session.Capture) {
//	    for _, host := range cp.Network {
//	        fmt.Printf("%s %s\n", host.IPAddress, host.Hostname)
//	    }
//	})
//	if err := engine.StartScan(10 * time.Second); err != nil {
//	    return err
//	}
//
// # Network Requirements
//
// - mDNS needs multicast on the interface and UDP port 5353
// - A sweep needs outbound TCP to the scanned subnet
package network
