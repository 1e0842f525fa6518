package network

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/proxiscan/internal/device"
	"github.com/muurk/proxiscan/internal/logging"
)

const (
	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultBrowseTimeout bounds a browse when the engine does not stop it
	// sooner.
	DefaultBrowseTimeout = 10 * time.Second
)

// DefaultServices are the service types browsed when none are configured.
var DefaultServices = []string{
	"_http._tcp",
	"_https._tcp",
	"_ssh._tcp",
	"_smb._tcp",
	"_ipp._tcp",
	"_airplay._tcp",
	"_googlecast._tcp",
	"_hap._tcp",
}

// Browser browses a single service type. It is satisfied by
// *zeroconf.Resolver.
type Browser interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// MDNSSource discovers hosts that advertise DNS-SD services.
type MDNSSource struct {
	// Services are the service types to browse, e.g. "_http._tcp".
	Services []string

	// Timeout is the maximum time to wait for service entries.
	Timeout time.Duration

	// NewBrowser creates one browser per service type. Defaults to a
	// zeroconf resolver on all interfaces.
	NewBrowser func() (Browser, error)

	mu       sync.Mutex
	listener Listener
	cancel   context.CancelFunc
	gen      int
	local    map[string]bool
}

// NewMDNSSource creates an mDNS source with default settings
func NewMDNSSource(services []string) *MDNSSource {
	if len(services) == 0 {
		services = DefaultServices
	}
	return &MDNSSource{
		Services: services,
		Timeout:  DefaultBrowseTimeout,
		NewBrowser: func() (Browser, error) {
			return zeroconf.NewResolver(nil)
		},
	}
}

// Attach implements Source. A browse already in progress keeps reporting to
// the listener it started with.
func (s *MDNSSource) Attach(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

// BeginCollection starts browsing every configured service type. Entries
// for the same host are merged by the engine, so duplicate suppression needs
// no work here.
func (s *MDNSSource) BeginCollection(bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultBrowseTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	s.cancel = cancel
	s.gen++
	s.local = localAddresses()

	go s.browse(ctx, s.gen, s.listener)
}

// EndCollection cancels an in-flight browse.
func (s *MDNSSource) EndCollection() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *MDNSSource) browse(parent context.Context, gen int, l Listener) {
	ctx, stop := context.WithCancel(parent)
	defer stop()

	var wg sync.WaitGroup
	var failure error

	for _, service := range s.Services {
		browser, err := s.NewBrowser()
		if err != nil {
			failure = fmt.Errorf("failed to create mDNS resolver: %w", err)
			break
		}

		entries := make(chan *zeroconf.ServiceEntry)
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.drain(ctx, l, entries)
		}()

		if err := browser.Browse(ctx, service, ServiceDomain, entries); err != nil {
			failure = fmt.Errorf("failed to browse for %s: %w", service, err)
			break
		}
		logging.Debug("Browsing mDNS service", zap.String("service", service))
	}

	if failure == nil {
		<-ctx.Done()
	}
	stop()
	wg.Wait()

	s.mu.Lock()
	if s.gen == gen && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	if l == nil {
		return
	}

	switch {
	case failure != nil:
		l.HandleTerminated(OutcomeFailed, failure)
	case errors.Is(parent.Err(), context.DeadlineExceeded):
		l.HandleTerminated(OutcomeFinished, nil)
	default:
		l.HandleTerminated(OutcomeCancelled, nil)
	}
}

func (s *MDNSSource) drain(ctx context.Context, l Listener, entries <-chan *zeroconf.ServiceEntry) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			obs, ok := parseServiceEntry(entry)
			if !ok {
				continue
			}

			s.mu.Lock()
			obs.IsLocal = s.local[obs.IPAddress]
			s.mu.Unlock()
			if l != nil {
				l.HandleProbe(obs)
			}
		}
	}
}

// parseServiceEntry converts a zeroconf service entry to a host observation.
// Entries without an address are dropped.
func parseServiceEntry(entry *zeroconf.ServiceEntry) (device.NetworkDevice, bool) {
	if entry == nil {
		return device.NetworkDevice{}, false
	}

	// Get IP address (prefer IPv4)
	var ip string
	for _, addr := range entry.AddrIPv4 {
		ip = addr.String()
		break
	}
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return device.NetworkDevice{}, false
	}

	// TXT records are in "key=value" format
	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else if parts[0] != "" {
			metadata[parts[0]] = ""
		}
	}
	if entry.Instance != "" {
		metadata["instance"] = entry.Instance
	}
	if entry.Service != "" {
		metadata["service"] = entry.Service
	}

	obs := device.NetworkDevice{
		IPAddress: ip,
		Hostname:  strings.TrimSuffix(strings.TrimSuffix(entry.HostName, "."), ".local"),
		Metadata:  metadata,
	}
	if entry.Port > 0 {
		obs.Ports = []int{entry.Port}
	}
	return obs, true
}
