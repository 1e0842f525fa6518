package device

import (
	"sort"
	"testing"
	"time"
)

func TestConnectionStatus_IsActive(t *testing.T) {
	tests := []struct {
		status ConnectionStatus
		want   bool
	}{
		{StatusDisconnected, false},
		{StatusConnecting, true},
		{StatusConnected, true},
		{StatusUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			if got := tt.status.IsActive(); got != tt.want {
				t.Errorf("IsActive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConnectionStatus_TextRoundTrip(t *testing.T) {
	for _, s := range []ConnectionStatus{StatusDisconnected, StatusConnecting, StatusConnected, StatusUnknown} {
		text, err := s.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText() error = %v", err)
		}
		var got ConnectionStatus
		if err := got.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText() error = %v", err)
		}
		if got != s {
			t.Errorf("round trip of %v = %v", s, got)
		}
	}

	if got := ParseConnectionStatus("bogus"); got != StatusUnknown {
		t.Errorf("ParseConnectionStatus(bogus) = %v, want unknown", got)
	}
}

func TestRadioDevice_DisplayName(t *testing.T) {
	tests := []struct {
		name   string
		device RadioDevice
		want   string
	}{
		{"advertised name", RadioDevice{PeripheralID: "abc", Name: "Headphones"}, "Headphones"},
		{"identity prefix", RadioDevice{PeripheralID: "6f1c2d3e-aaaa-bbbb"}, "Unknown device (6F1C2D3E)"},
		{"short identity", RadioDevice{PeripheralID: "ab12"}, "Unknown device (AB12)"},
		{"nothing", RadioDevice{}, "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.device.DisplayName(); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRadioDevice_SignalStrength(t *testing.T) {
	tests := []struct {
		rssi int
		want SignalStrength
	}{
		{-95, SignalWeak},
		{-81, SignalWeak},
		{-80, SignalMedium},
		{-61, SignalMedium},
		{-60, SignalStrong},
		{-1, SignalStrong},
		{0, SignalUnknown},
		{10, SignalUnknown},
	}

	for _, tt := range tests {
		if got := (RadioDevice{RSSI: tt.rssi}).SignalStrength(); got != tt.want {
			t.Errorf("SignalStrength(%d) = %v, want %v", tt.rssi, got, tt.want)
		}
	}
}

func TestRadioDevice_CloneIsDeep(t *testing.T) {
	power := -4
	orig := RadioDevice{
		PeripheralID: "A",
		Services:     []string{"180F"},
		Advertisement: &Advertisement{
			ManufacturerData: []byte{0x4c, 0x00},
			ServiceUUIDs:     []string{"180D"},
			TxPower:          &power,
		},
	}

	c := orig.Clone()
	c.Services[0] = "changed"
	c.Advertisement.ManufacturerData[0] = 0xff
	c.Advertisement.ServiceUUIDs[0] = "changed"
	*c.Advertisement.TxPower = 20

	if orig.Services[0] != "180F" {
		t.Error("Clone shares Services with original")
	}
	if orig.Advertisement.ManufacturerData[0] != 0x4c {
		t.Error("Clone shares ManufacturerData with original")
	}
	if orig.Advertisement.ServiceUUIDs[0] != "180D" {
		t.Error("Clone shares ServiceUUIDs with original")
	}
	if *orig.Advertisement.TxPower != -4 {
		t.Error("Clone shares TxPower with original")
	}
}

func TestMergeRadio_LastSeenNeverDecreases(t *testing.T) {
	now := time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC)
	existing := RadioDevice{PeripheralID: "A", Name: "Tag", RSSI: -70, LastSeen: now}

	MergeRadio(&existing, RadioDevice{PeripheralID: "A", RSSI: -50, LastSeen: now.Add(-time.Minute)})

	if !existing.LastSeen.Equal(now) {
		t.Errorf("LastSeen = %v, want %v", existing.LastSeen, now)
	}
	if existing.RSSI != -50 {
		t.Errorf("RSSI = %d, want -50", existing.RSSI)
	}
	if existing.Name != "Tag" {
		t.Errorf("Name = %q, want name kept when observation has none", existing.Name)
	}
}

func TestRadioLess(t *testing.T) {
	devices := []RadioDevice{
		{PeripheralID: "C", RSSI: -70},
		{PeripheralID: "B", RSSI: -50},
		{PeripheralID: "A", RSSI: -70},
	}
	sort.Slice(devices, func(i, j int) bool { return RadioLess(devices[i], devices[j]) })

	want := []string{"B", "A", "C"}
	for i, d := range devices {
		if d.PeripheralID != want[i] {
			t.Errorf("devices[%d] = %s, want %s", i, d.PeripheralID, want[i])
		}
	}
}

func TestCompareAddress(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"192.168.1.9", "192.168.1.10", -1},
		{"192.168.1.10", "192.168.1.9", 1},
		{"10.0.0.1", "10.0.0.1", 0},
		{"10.0.0.255", "192.168.0.1", -1},
		{"fe80::1", "fe80::2", -1},
		{"host.5", "host.10", -1},
	}

	for _, tt := range tests {
		if got := CompareAddress(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareAddress(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestMergeNetwork_KeepsKnownFields(t *testing.T) {
	now := time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC)
	existing := NetworkDevice{
		IPAddress:  "192.168.1.20",
		Hostname:   "nas.local",
		MACAddress: "00:11:32:aa:bb:cc",
		Vendor:     "Synology",
		Ports:      []int{443},
		LastSeen:   now,
	}

	MergeNetwork(&existing, NetworkDevice{
		IPAddress: "192.168.1.20",
		Ports:     []int{22, 443},
		Metadata:  map[string]string{"path": "/"},
		LastSeen:  now.Add(time.Second),
	})

	if existing.Hostname != "nas.local" || existing.MACAddress == "" || existing.Vendor != "Synology" {
		t.Errorf("known fields were dropped: %+v", existing)
	}
	if got := existing.OpenPortsDescription(); got != "22, 443" {
		t.Errorf("OpenPortsDescription() = %q, want %q", got, "22, 443")
	}
	if existing.Metadata["path"] != "/" {
		t.Errorf("Metadata[path] = %q, want /", existing.Metadata["path"])
	}
	if !existing.LastSeen.Equal(now.Add(time.Second)) {
		t.Errorf("LastSeen = %v, want advanced", existing.LastSeen)
	}
}

func TestNetworkDevice_Formatting(t *testing.T) {
	d := NetworkDevice{IPAddress: "10.0.0.7", ResponseTime: 1500 * time.Microsecond}

	if got := d.DisplayName(); got != "10.0.0.7" {
		t.Errorf("DisplayName() = %q, want address fallback", got)
	}
	if got := d.FormattedResponseTime(); got != "1.50 ms" {
		t.Errorf("FormattedResponseTime() = %q, want %q", got, "1.50 ms")
	}
	if got := d.FormattedMAC(); got != "MAC unknown" {
		t.Errorf("FormattedMAC() = %q", got)
	}
}

func TestVendorForMAC(t *testing.T) {
	tests := []struct {
		mac  string
		want string
	}{
		{"dc:a6:32:01:02:03", "Raspberry Pi"},
		{"00-11-32-aa-bb-cc", "Synology"},
		{"12:34:56:78:9a:bc", ""},
		{"short", ""},
	}

	for _, tt := range tests {
		if got := VendorForMAC(tt.mac); got != tt.want {
			t.Errorf("VendorForMAC(%q) = %q, want %q", tt.mac, got, tt.want)
		}
	}
}
