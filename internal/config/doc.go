// Package config loads the rawws server configuration.
//
// The configuration is a YAML file holding listener, TLS, size-limit,
// timeout, keepalive and policy settings. It is read once at start-up into an
// immutable *Config that the server and every connection share read-only.
// Command-line flags override values from the file.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/rawws/server.yaml or $HOME/.config/rawws/server.yaml
//   - macOS: $HOME/.config/rawws/server.yaml
//   - Windows: %LOCALAPPDATA%\rawws\server.yaml
//
// # Example
//
//	version: 1
//	port: 1337
//	limits:
//	  max_message_size: 1048576
//	timeouts:
//	  idle: 2m
//	keepalive:
//	  ping_interval: 30s
//	  pong_resets_idle: true
//	policy:
//	  oversized: drop
package config
