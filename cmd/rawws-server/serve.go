package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/rawws/internal/config"
	"github.com/muurk/rawws/internal/discovery"
	"github.com/muurk/rawws/internal/echo"
	"github.com/muurk/rawws/internal/logging"
	"github.com/muurk/rawws/internal/server"
	"github.com/muurk/rawws/internal/ui"
	"github.com/muurk/rawws/internal/version"
)

type serveOptions struct {
	configPath     string
	host           string
	port           int
	cert           string
	key            string
	logLevel       string
	logFormat      string
	captureDir     string
	maxMessageSize uint64
	idleTimeout    time.Duration
	pingInterval   time.Duration
	advertise      bool
}

func newServeCmd(opts *serveOptions) *cobra.Command {
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the WebSocket server",
		Long: `Start the WebSocket server and run the JSON echo application on every
upgraded connection.

Settings come from the configuration file (see 'rawws-server config init')
and are overridden by any flag given on the command line. The log level can
also be set with the ` + logging.LogLevelEnvVar + ` environment variable.

To capture every frame for protocol analysis, use --capture-dir. Frames are
appended as JSON lines to capture-YYYYMMDD.jsonl in that directory.`,
		Example: `  # Plain TCP on the default port
  rawws-server serve

  # TLS with debug logging
  rawws-server serve --port 8443 --cert fullchain.pem --key privkey.pem --log-level debug

  # Capture frames and ping idle clients every 20s
  rawws-server serve --capture-dir ./captures --ping-interval 20s

  # Announce the server on the LAN
  rawws-server serve --advertise`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "Path to configuration file (default: user config dir)")
	f.StringVar(&opts.host, "host", defaults.Host, "Listen host (empty = all interfaces)")
	f.IntVar(&opts.port, "port", defaults.Port, "Listen port")
	f.StringVar(&opts.cert, "cert", "", "Path to TLS certificate file (enables TLS with --key)")
	f.StringVar(&opts.key, "key", "", "Path to TLS private key file")
	f.StringVar(&opts.logLevel, "log-level", defaults.Log.Level, "Log level (debug, info, warn, error)")
	f.StringVar(&opts.logFormat, "log-format", defaults.Log.Format, "Log format (console, json)")
	f.StringVar(&opts.captureDir, "capture-dir", "", "Directory for JSONL frame capture (disabled if empty)")
	f.Uint64Var(&opts.maxMessageSize, "max-message-size", defaults.Limits.MaxMessageSize, "Largest accepted message in bytes")
	f.DurationVar(&opts.idleTimeout, "idle-timeout", defaults.Timeouts.Idle, "Close connections idle this long (0 = never)")
	f.DurationVar(&opts.pingInterval, "ping-interval", defaults.Keepalive.PingInterval, "Send a Ping this often (0 = off)")
	f.BoolVar(&opts.advertise, "advertise", defaults.Advertise.Enabled, "Advertise the server via mDNS")

	return cmd
}

// apply overrides cfg with every flag set on the command line.
func (o *serveOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("host") {
		cfg.Host = o.host
	}
	if changed("port") {
		cfg.Port = o.port
	}
	if changed("cert") {
		cfg.TLS.Cert = o.cert
	}
	if changed("key") {
		cfg.TLS.Key = o.key
	}
	if changed("log-level") {
		cfg.Log.Level = o.logLevel
	} else if env := os.Getenv(logging.LogLevelEnvVar); env != "" {
		cfg.Log.Level = env
	}
	if changed("log-format") {
		cfg.Log.Format = o.logFormat
	}
	if changed("capture-dir") {
		cfg.CaptureDir = o.captureDir
	}
	if changed("max-message-size") {
		cfg.Limits.MaxMessageSize = o.maxMessageSize
	}
	if changed("idle-timeout") {
		cfg.Timeouts.Idle = o.idleTimeout
	}
	if changed("ping-interval") {
		cfg.Keepalive.PingInterval = o.pingInterval
	}
	if changed("advertise") {
		cfg.Advertise.Enabled = o.advertise
	}
}

// loadServeConfig reads the configuration file and applies flag overrides.
func loadServeConfig(cmd *cobra.Command, opts *serveOptions) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(opts.configPath)
	if err != nil {
		return nil, err
	}
	opts.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	cfg, err := loadServeConfig(cmd, opts)
	if err != nil {
		return err
	}

	if err := logging.Initialize(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	srv, err := server.New(cfg, echo.New())
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := srv.Listen(); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), serveBanner(cfg, srv.Addr()).Render())

	if cfg.Advertise.Enabled {
		port := cfg.Port
		if tcp, ok := srv.Addr().(*net.TCPAddr); ok {
			port = tcp.Port
		}
		adv, err := discovery.Advertise(cfg.Advertise.Instance, port, cfg.TLS.Enabled(), version.Version)
		if err != nil {
			logging.Warn("mDNS advertisement failed, continuing without it", zap.Error(err))
		} else {
			defer adv.Shutdown()
			logging.Info("Advertising server via mDNS",
				zap.String("instance", adv.Instance()),
				zap.String("service", discovery.ServiceType),
				zap.Int("port", port),
			)
		}
	}

	return srv.Start()
}

func serveBanner(cfg *config.Config, addr net.Addr) *ui.Header {
	scheme := "ws"
	if cfg.TLS.Enabled() {
		scheme = "wss"
	}
	listen := cfg.Addr()
	if addr != nil {
		listen = addr.String()
	}

	onOff := func(v string) string {
		if v == "" || v == "0s" {
			return "off"
		}
		return v
	}

	return ui.NewHeader("rawws server", "rawws-server serve",
		ui.Field{Key: "Listen", Value: scheme + "://" + listen + "/"},
		ui.Field{Key: "Max message", Value: strconv.FormatUint(cfg.Limits.MaxMessageSize, 10) + " bytes"},
		ui.Field{Key: "Oversized", Value: cfg.Policy.Oversized},
		ui.Field{Key: "Idle timeout", Value: onOff(cfg.Timeouts.Idle.String())},
		ui.Field{Key: "Ping interval", Value: onOff(cfg.Keepalive.PingInterval.String())},
		ui.Field{Key: "Capture", Value: onOff(cfg.CaptureDir)},
		ui.Field{Key: "Version", Value: version.Version},
	)
}
