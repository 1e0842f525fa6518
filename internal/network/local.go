package network

import (
	"net"
	"net/netip"
)

// localAddresses returns the addresses assigned to this machine's interfaces.
func localAddresses() map[string]bool {
	out := make(map[string]bool)
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return out
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok {
			out[ipnet.IP.String()] = true
		}
	}
	return out
}

// DetectSubnet returns the IPv4 prefix of the first non-loopback interface,
// falling back to 192.168.1.0/24.
func DetectSubnet() netip.Prefix {
	fallback := netip.MustParsePrefix("192.168.1.0/24")

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return fallback
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() || ipnet.IP.To4() == nil {
			continue
		}
		addr, ok := netip.AddrFromSlice(ipnet.IP.To4())
		if !ok {
			continue
		}
		bits, _ := ipnet.Mask.Size()
		// Large LANs are swept as the /24 around this host.
		if bits < 24 {
			bits = 24
		}
		return netip.PrefixFrom(addr, bits).Masked()
	}
	return fallback
}
