package server

import "github.com/muurk/rawws/internal/protocol"

// Sender is the outbound half of a connection handed to application code.
type Sender interface {
	// Send encodes payload as a single frame and writes it atomically.
	Send(op protocol.Opcode, payload []byte) error
	// ID returns the connection identifier used in logs and captures.
	ID() string
	// RemoteAddr returns the peer address.
	RemoteAddr() string
}

// Handler receives fully reassembled messages. OnMessage is called from the
// connection's reader goroutine, once per message, in arrival order; frames
// are not read while it runs.
type Handler interface {
	OnMessage(s Sender, op protocol.Opcode, payload []byte)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(s Sender, op protocol.Opcode, payload []byte)

// OnMessage calls f(s, op, payload).
func (f HandlerFunc) OnMessage(s Sender, op protocol.Opcode, payload []byte) {
	f(s, op, payload)
}
