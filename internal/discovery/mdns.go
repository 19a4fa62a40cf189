package discovery

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/rawws/internal/logging"
	"go.uber.org/zap"
)

const (
	// ServiceType is the mDNS service type rawws servers advertise
	ServiceType = "_rawws._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for discovery
	DefaultScanTimeout = 5 * time.Second

	// DefaultPort is assumed when an entry carries no port
	DefaultPort = 1337
)

// TXT record keys
const (
	txtPath    = "path"
	txtTLS     = "tls"
	txtVersion = "version"
)

// Advertiser announces a running server over mDNS until Shutdown.
type Advertiser struct {
	server   *zeroconf.Server
	instance string
}

// Advertise registers instance on port. An empty instance uses the hostname.
func Advertise(instance string, port int, tls bool, version string) (*Advertiser, error) {
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("failed to determine instance name: %w", err)
		}
		instance = host
	}

	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, TXTRecords(tls, version), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}

	logging.Info("Advertising server via mDNS",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Int("port", port),
	)
	return &Advertiser{server: server, instance: instance}, nil
}

// Instance returns the registered instance name
func (a *Advertiser) Instance() string {
	return a.instance
}

// Shutdown withdraws the announcement
func (a *Advertiser) Shutdown() {
	a.server.Shutdown()
	logging.Debug("mDNS advertisement withdrawn", zap.String("instance", a.instance))
}

// TXTRecords renders the TXT data published with the service.
func TXTRecords(tls bool, version string) []string {
	txt := []string{txtPath + "=/"}
	if tls {
		txt = append(txt, txtTLS+"=1")
	}
	if version != "" {
		txt = append(txt, txtVersion+"="+version)
	}
	return txt
}

// Scanner handles mDNS discovery of rawws servers
type Scanner struct {
	// Timeout is the maximum time to wait for answers
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// Scan browses for servers until the timeout or ctx ends and returns every
// distinct instance found.
func (s *Scanner) Scan(ctx context.Context) ([]*Service, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu       sync.Mutex
		services []*Service
		seen     = make(map[string]bool)
		done     = make(chan struct{})
	)

	go func() {
		defer close(done)
		for entry := range entries {
			service := parseServiceEntry(entry)
			if service == nil {
				continue
			}
			mu.Lock()
			if !seen[service.Instance] {
				seen[service.Instance] = true
				services = append(services, service)
			}
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	// Let the collector drain entries still in flight.
	select {
	case <-done:
	case <-time.After(time.Second):
	}

	mu.Lock()
	defer mu.Unlock()
	return append([]*Service(nil), services...), nil
}

// Find waits for a specific instance.
func (s *Scanner) Find(ctx context.Context, instance string) (*Service, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan *Service, 1)

	go func() {
		for entry := range entries {
			service := parseServiceEntry(entry)
			if service != nil && service.Instance == instance {
				found <- service
				cancel()
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	select {
	case service := <-found:
		return service, nil
	case <-ctx.Done():
		select {
		case service := <-found:
			return service, nil
		default:
		}
		return nil, fmt.Errorf("server %q not found within %s", instance, s.Timeout)
	}
}

// parseServiceEntry converts a zeroconf entry to a Service. Entries without a
// usable address are ignored.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Service {
	if entry == nil || entry.Instance == "" {
		return nil
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}

	return &Service{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		TLS:          metadata[txtTLS] == "1",
		Version:      metadata[txtVersion],
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}
