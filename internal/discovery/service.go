package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Service is a rawws server found on the local network
type Service struct {
	// Instance is the advertised instance name (usually the host name)
	Instance string

	// Hostname is the mDNS hostname (e.g., "buildbox.local.")
	Hostname string

	// IP is the first IPv4 address, or an IPv6 address if none was announced
	IP string

	// Port is the WebSocket port
	Port int

	// TLS reports whether the server expects wss://
	TLS bool

	// Version is the advertised rawws build version
	Version string

	// Metadata holds every TXT record as key/value pairs
	Metadata map[string]string

	// DiscoveredAt is when the service was resolved
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the service
func (s *Service) String() string {
	return fmt.Sprintf("rawws %s (%s) at %s", s.Instance, s.Hostname, s.URL())
}

// URL returns the WebSocket URL for the service
func (s *Service) URL() string {
	scheme := "ws"
	if s.TLS {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s/", scheme, net.JoinHostPort(s.IP, strconv.Itoa(s.Port)))
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (s *Service) GetMetadata(key string) string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata[key]
}
