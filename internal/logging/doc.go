// Package logging provides structured logging for the rawws server.
//
// This package wraps a global zap logger with convenience functions for the
// patterns used throughout the server: connection lifecycle events, HTTP
// upgrade requests and responses, WebSocket messages and raw byte dumps.
//
// # Log Levels
//
//   - Debug: frame-by-frame traces, hex dumps, ping/pong
//   - Info: connections, handshakes, messages
//   - Warn: dropped frames, protocol violations by peers
//   - Error: handler panics, listener failures
//
// # Configuration
//
//	if err := logging.Initialize("debug", logging.FormatConsole); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// An empty level falls back to RAWWS_LOG_LEVEL; if that is empty too the
// logger is a no-op. The console format colors levels only when stdout is a
// terminal. The json format uses zap's production encoder.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. Initialize and SetLogger
// must be called before the server starts.
package logging
