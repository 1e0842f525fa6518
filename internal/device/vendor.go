package device

import "strings"

// ouiVendors maps the first three octets of common MAC addresses to vendors.
// It is deliberately small; unknown prefixes simply yield "".
var ouiVendors = map[string]string{
	"DC:A6:32": "Raspberry Pi",
	"B8:27:EB": "Raspberry Pi",
	"D8:3A:DD": "Raspberry Pi",
	"00:1A:2B": "Cisco",
	"F0:9E:63": "Apple",
	"BC:D1:D3": "Apple",
	"00:03:93": "Apple",
	"00:17:F2": "Apple",
	"AC:29:3A": "Canon",
	"50:E5:49": "Gigabyte",
	"00:11:32": "Synology",
	"24:8D:76": "Espressif",
	"84:F3:EB": "Espressif",
	"00:50:56": "VMware",
	"00:0C:29": "VMware",
	"52:54:00": "QEMU/KVM",
}

// VendorForMAC returns the vendor registered for the MAC prefix, or "".
func VendorForMAC(mac string) string {
	mac = strings.ToUpper(strings.ReplaceAll(mac, "-", ":"))
	if len(mac) < 8 {
		return ""
	}
	return ouiVendors[mac[:8]]
}
