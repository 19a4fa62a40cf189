package protocol

import "fmt"

// Opcode identifies the purpose of a WebSocket frame (RFC 6455 section 5.2).
type Opcode byte

// WebSocket frame opcodes
const (
	OpcodeContinuation Opcode = 0x0
	OpcodeText         Opcode = 0x1
	OpcodeBinary       Opcode = 0x2
	OpcodeClose        Opcode = 0x8
	OpcodePing         Opcode = 0x9
	OpcodePong         Opcode = 0xA
)

// Valid reports whether the opcode is one defined by RFC 6455.
// Reserved opcodes (0x3-0x7, 0xB-0xF) are not valid.
func (o Opcode) Valid() bool {
	switch o {
	case OpcodeContinuation, OpcodeText, OpcodeBinary, OpcodeClose, OpcodePing, OpcodePong:
		return true
	}
	return false
}

// IsControl reports whether the opcode is a control opcode (Close, Ping, Pong).
func (o Opcode) IsControl() bool {
	return o&0x8 != 0
}

// IsData reports whether the opcode starts a data message (Text or Binary).
func (o Opcode) IsData() bool {
	return o == OpcodeText || o == OpcodeBinary
}

// String returns a human-readable opcode name
func (o Opcode) String() string {
	switch o {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	default:
		return fmt.Sprintf("unknown(0x%X)", byte(o))
	}
}
