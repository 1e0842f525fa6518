package network

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/proxiscan/internal/device"
	"github.com/muurk/proxiscan/internal/logging"
)

const (
	// DefaultProbeTimeout is the per-port connect timeout.
	DefaultProbeTimeout = 200 * time.Millisecond

	// DefaultConcurrency limits simultaneous host probes.
	DefaultConcurrency = 50

	// MaxSweepHosts caps the number of addresses a single sweep will probe.
	MaxSweepHosts = 4096

	// ARPTablePath is the Linux kernel neighbour table.
	ARPTablePath = "/proc/net/arp"
)

// DefaultPorts are probed when none are configured.
var DefaultPorts = []int{22, 53, 80, 443, 445, 5000, 5353, 8000, 8080, 62078}

// DialFunc opens a connection; it has the signature of net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// SweepSource finds hosts by connecting to a set of TCP ports on every
// address of a subnet.
type SweepSource struct {
	// Subnet is a CIDR prefix ("192.168.1.0/24") or a three-octet prefix
	// ("192.168.1"). Empty means the subnet of the first LAN interface.
	Subnet string

	Ports        []int
	ProbeTimeout time.Duration
	Concurrency  int

	// ARPPath is read after the sweep to attach MAC addresses. Empty
	// disables the lookup.
	ARPPath string

	// Dial and LookupAddr are replaced in tests.
	Dial       DialFunc
	LookupAddr func(ctx context.Context, addr string) ([]string, error)

	mu       sync.Mutex
	listener Listener
	cancel   context.CancelFunc
	gen      int
}

// NewSweepSource creates a sweep over subnet with default ports and limits.
func NewSweepSource(subnet string) *SweepSource {
	arp := ""
	if runtime.GOOS == "linux" {
		arp = ARPTablePath
	}
	dialer := &net.Dialer{}
	return &SweepSource{
		Subnet:       subnet,
		Ports:        DefaultPorts,
		ProbeTimeout: DefaultProbeTimeout,
		Concurrency:  DefaultConcurrency,
		ARPPath:      arp,
		Dial:         dialer.DialContext,
		LookupAddr:   net.DefaultResolver.LookupAddr,
	}
}

// Attach implements Source. A sweep already in progress keeps reporting to
// the listener it started with.
func (s *SweepSource) Attach(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

// BeginCollection starts the sweep in the background. Each host is reported
// once per sweep, so duplicate suppression is inherent.
func (s *SweepSource) BeginCollection(bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.gen++
	go s.sweep(ctx, s.gen, s.listener)
}

// EndCollection cancels an in-flight sweep.
func (s *SweepSource) EndCollection() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *SweepSource) sweep(ctx context.Context, gen int, l Listener) {
	report := func(obs device.NetworkDevice) {
		if l != nil {
			l.HandleProbe(obs)
		}
	}
	outcome, err := s.run(ctx, report)

	s.mu.Lock()
	if s.gen == gen && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	if l != nil {
		l.HandleTerminated(outcome, err)
	}
}

func (s *SweepSource) run(ctx context.Context, report func(device.NetworkDevice)) (Outcome, error) {
	prefix, err := s.prefix()
	if err != nil {
		return OutcomeFailed, err
	}
	hosts, err := expandPrefix(prefix)
	if err != nil {
		return OutcomeFailed, err
	}

	logging.Debug("Sweeping subnet",
		zap.String("subnet", prefix.String()),
		zap.Int("hosts", len(hosts)),
		zap.Ints("ports", s.ports()),
	)

	local := localAddresses()
	concurrency := s.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, host := range hosts {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
			wg.Add(1)
			go func(ip string) {
				defer wg.Done()
				defer func() { <-sem }()

				if obs, ok := s.probeHost(ctx, ip); ok {
					obs.IsLocal = local[ip]
					report(obs)
				}
			}(host.String())
			continue
		}
		break
	}
	wg.Wait()

	if ctx.Err() != nil {
		return OutcomeCancelled, nil
	}

	if s.ARPPath != "" {
		if err := s.reportARP(prefix, report); err != nil {
			logging.Debug("ARP lookup skipped", zap.Error(err))
		}
	}
	return OutcomeFinished, nil
}

func (s *SweepSource) ports() []int {
	if len(s.Ports) == 0 {
		return DefaultPorts
	}
	return s.Ports
}

func (s *SweepSource) prefix() (netip.Prefix, error) {
	if strings.TrimSpace(s.Subnet) == "" {
		return DetectSubnet(), nil
	}
	return ParseSubnet(s.Subnet)
}

// probeHost connects to each port. A host is alive when any port accepts or
// actively refuses the connection.
func (s *SweepSource) probeHost(ctx context.Context, ip string) (device.NetworkDevice, bool) {
	timeout := s.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	obs := device.NetworkDevice{IPAddress: ip}
	alive := false
	for _, port := range s.ports() {
		if ctx.Err() != nil {
			return obs, false
		}

		dialCtx, cancel := context.WithTimeout(ctx, timeout)
		started := time.Now()
		conn, err := s.Dial(dialCtx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
		elapsed := time.Since(started)
		cancel()

		switch {
		case err == nil:
			conn.Close()
			obs.Ports = append(obs.Ports, port)
		case errors.Is(err, syscall.ECONNREFUSED):
		default:
			continue
		}
		if !alive || elapsed < obs.ResponseTime {
			obs.ResponseTime = elapsed
		}
		alive = true
	}
	if !alive {
		return obs, false
	}

	if s.LookupAddr != nil {
		lookupCtx, cancel := context.WithTimeout(ctx, timeout)
		names, err := s.LookupAddr(lookupCtx, ip)
		cancel()
		if err == nil && len(names) > 0 {
			obs.Hostname = strings.TrimSuffix(names[0], ".")
		}
	}
	return obs, true
}

// reportARP enriches swept hosts with MAC addresses and reports neighbours
// that did not answer on any probed port.
func (s *SweepSource) reportARP(prefix netip.Prefix, report func(device.NetworkDevice)) error {
	f, err := os.Open(s.ARPPath)
	if err != nil {
		return err
	}
	defer f.Close()

	entries, err := ParseARPTable(f)
	if err != nil {
		return err
	}
	for _, e := range entries {
		addr, err := netip.ParseAddr(e.IP)
		if err != nil || !prefix.Contains(addr) {
			continue
		}
		report(device.NetworkDevice{
			IPAddress:  e.IP,
			MACAddress: e.MAC,
			Vendor:     device.VendorForMAC(e.MAC),
		})
	}
	return nil
}

// ARPEntry is one resolved row of the kernel neighbour table.
type ARPEntry struct {
	IP  string
	MAC string
}

// ParseARPTable parses /proc/net/arp. Incomplete entries are skipped.
func ParseARPTable(r io.Reader) ([]ARPEntry, error) {
	var out []ARPEntry
	scanner := bufio.NewScanner(r)
	header := true
	for scanner.Scan() {
		if header {
			header = false
			continue
		}
		// IP address  HW type  Flags  HW address  Mask  Device
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		mac := strings.ToLower(fields[3])
		if mac == "00:00:00:00:00:00" || fields[2] == "0x0" {
			continue
		}
		out = append(out, ARPEntry{IP: fields[0], MAC: mac})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ARP table: %w", err)
	}
	return out, nil
}

// ParseSubnet accepts a CIDR prefix or a dotted three-octet prefix, which is
// read as a /24.
func ParseSubnet(subnet string) (netip.Prefix, error) {
	subnet = strings.TrimSpace(subnet)
	if strings.Contains(subnet, "/") {
		p, err := netip.ParsePrefix(subnet)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("invalid subnet %q: %w", subnet, err)
		}
		return p.Masked(), nil
	}
	if strings.Count(subnet, ".") == 2 {
		subnet += ".0"
	}
	addr, err := netip.ParseAddr(subnet)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid subnet %q: %w", subnet, err)
	}
	return netip.PrefixFrom(addr, 24).Masked(), nil
}

// expandPrefix lists the host addresses of an IPv4 prefix, excluding the
// network and broadcast addresses where they exist.
func expandPrefix(p netip.Prefix) ([]netip.Addr, error) {
	if !p.Addr().Is4() {
		return nil, fmt.Errorf("subnet %s: only IPv4 sweeps are supported", p)
	}
	hostBits := 32 - p.Bits()
	if hostBits > 12 {
		return nil, fmt.Errorf("subnet %s is too large to sweep (max %d hosts)", p, MaxSweepHosts)
	}

	var out []netip.Addr
	for a := p.Addr(); p.Contains(a); a = a.Next() {
		out = append(out, a)
		if !a.Next().IsValid() {
			break
		}
	}
	if hostBits >= 2 {
		out = out[1 : len(out)-1]
	}
	return out, nil
}
