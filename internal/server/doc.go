// Package server runs RFC 6455 WebSocket connections over raw TCP or TLS
// sockets.
//
// The server reads the HTTP upgrade request itself, answers with the exact
// 101 response from package protocol and then hands the socket to a Conn,
// which drives the frame decoder with exact-length reads. Requests that do
// not ask for an upgrade get a plain "Hey there!" 200 response; malformed
// upgrade requests get 400, 405 or 426.
//
// # Usage Example
//
//	cfg := config.Default()
//	cfg.Port = 1337
//
//	srv, err := server.New(cfg, server.HandlerFunc(
//	    func(s server.Sender, op protocol.Opcode, payload []byte) {
//	        _ = s.Send(op, payload)
//	    }))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Start blocks until SIGINT/SIGTERM or a fatal error
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Message Handling
//
// Each Conn runs a single reader goroutine:
//  1. Frames are decoded one at a time (header, extended length, mask key, payload)
//  2. Ping is answered with Pong immediately, even between fragments
//  3. Fragments are accumulated and delivered to the Handler once, in order
//  4. Close is echoed and the socket closed
//  5. Protocol violations send Close 1002 (1007 for bad UTF-8), oversized
//     payloads Close 1009 or are dropped, per configuration
//
// Handler panics are recovered; the affected connection is closed with 1011
// and the listener keeps accepting.
//
// # Writing
//
// Send, Ping and Close may be called from any goroutine. Every frame is
// written with one Write call under a per-connection mutex and a write
// deadline. Once the socket is closed Send returns ErrConnClosed.
//
// # Frame Capture
//
// When capture_dir is configured every frame in both directions is appended
// to capture-YYYYMMDD.jsonl as a JSON object with hex and ASCII renderings
// of the payload and raw frame bytes.
//
// # Graceful Shutdown
//
// Shutdown closes the listener, sends Close 1001 to every open connection and
// waits for the connection goroutines until its context expires.
package server
