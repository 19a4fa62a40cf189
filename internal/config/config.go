package config

import (
	"errors"
	"fmt"
	"time"
)

// Oversized-payload policies
const (
	// OversizedClose sends Close 1009 and terminates the connection
	OversizedClose = "close"
	// OversizedDrop discards the offending frame (and the rest of its message)
	// and keeps the connection open
	OversizedDrop = "drop"
)

// DefaultPort is the port the legacy server listened on
const DefaultPort = 1337

// Config is the process-wide server configuration. It is loaded once at
// start-up and treated as read-only afterwards.
type Config struct {
	Version    int       `yaml:"version"`
	Host       string    `yaml:"host"`
	Port       int       `yaml:"port"`
	TLS        TLS       `yaml:"tls,omitempty"`
	Limits     Limits    `yaml:"limits"`
	Timeouts   Timeouts  `yaml:"timeouts"`
	Keepalive  Keepalive `yaml:"keepalive"`
	Policy     Policy    `yaml:"policy"`
	Log        Log       `yaml:"log"`
	CaptureDir string    `yaml:"capture_dir,omitempty"` // Empty = frame capture disabled
	Advertise  Advertise `yaml:"advertise"`
}

// TLS holds optional certificate paths. Both empty = plain TCP.
type TLS struct {
	Cert string `yaml:"cert,omitempty"`
	Key  string `yaml:"key,omitempty"`
}

// Enabled reports whether TLS termination is configured
func (t TLS) Enabled() bool {
	return t.Cert != "" && t.Key != ""
}

// Limits bound per-frame and per-message payload sizes in bytes.
type Limits struct {
	MaxMessageSize uint64 `yaml:"max_message_size"`
	MaxFrameSize   uint64 `yaml:"max_frame_size"` // 0 = same as MaxMessageSize
}

// FrameLimit returns the effective per-frame ceiling.
func (l Limits) FrameLimit() uint64 {
	if l.MaxFrameSize == 0 || l.MaxFrameSize > l.MaxMessageSize {
		return l.MaxMessageSize
	}
	return l.MaxFrameSize
}

// Timeouts for the connection lifecycle.
type Timeouts struct {
	Handshake time.Duration `yaml:"handshake"` // Reading the HTTP upgrade request
	Idle      time.Duration `yaml:"idle"`      // No frames from the peer; 0 = never
	Write     time.Duration `yaml:"write"`     // Writing a single frame
	Shutdown  time.Duration `yaml:"shutdown"`  // Draining connections on shutdown
}

// Keepalive controls server-initiated pings and the idle timer.
type Keepalive struct {
	PingInterval   time.Duration `yaml:"ping_interval"` // 0 = no server pings
	PongResetsIdle bool          `yaml:"pong_resets_idle"`
}

// Policy holds per-connection protocol policies.
type Policy struct {
	Oversized    string `yaml:"oversized"` // "close" or "drop"
	ValidateUTF8 bool   `yaml:"validate_utf8"`
}

// Log selects the logger level and encoding.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Advertise controls mDNS announcement of the server.
type Advertise struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance,omitempty"` // Defaults to the hostname
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Port:    DefaultPort,
		Limits: Limits{
			MaxMessageSize: 16 << 20,
		},
		Timeouts: Timeouts{
			Handshake: 10 * time.Second,
			Idle:      60 * time.Second,
			Write:     10 * time.Second,
			Shutdown:  10 * time.Second,
		},
		Keepalive: Keepalive{
			PongResetsIdle: true,
		},
		Policy: Policy{
			Oversized:    OversizedClose,
			ValidateUTF8: true,
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
	}
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Version != 1 {
		errs = append(errs, fmt.Errorf("unsupported config version: %d (expected 1)", c.Version))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if (c.TLS.Cert == "") != (c.TLS.Key == "") {
		errs = append(errs, errors.New("tls.cert and tls.key must be set together"))
	}
	if c.Limits.MaxMessageSize == 0 {
		errs = append(errs, errors.New("limits.max_message_size must be positive"))
	}
	if c.Timeouts.Write <= 0 {
		errs = append(errs, errors.New("timeouts.write must be positive"))
	}
	if c.Timeouts.Handshake <= 0 {
		errs = append(errs, errors.New("timeouts.handshake must be positive"))
	}
	if c.Timeouts.Idle < 0 || c.Keepalive.PingInterval < 0 || c.Timeouts.Shutdown < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.Keepalive.PingInterval > 0 && c.Timeouts.Idle > 0 && c.Keepalive.PingInterval >= c.Timeouts.Idle {
		errs = append(errs, fmt.Errorf("keepalive.ping_interval (%s) must be shorter than timeouts.idle (%s)",
			c.Keepalive.PingInterval, c.Timeouts.Idle))
	}
	switch c.Policy.Oversized {
	case OversizedClose, OversizedDrop:
	default:
		errs = append(errs, fmt.Errorf("policy.oversized %q (expected %q or %q)",
			c.Policy.Oversized, OversizedClose, OversizedDrop))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q (expected console or json)", c.Log.Format))
	}

	return errors.Join(errs...)
}
