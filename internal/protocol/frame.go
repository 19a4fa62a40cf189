package protocol

import (
	"encoding/binary"
	"fmt"
)

// Frame layout constants
const (
	finBit  = 0x80
	rsv1Bit = 0x40
	rsv2Bit = 0x20
	rsv3Bit = 0x10
	maskBit = 0x80

	opcodeMask = 0x0F
	lengthMask = 0x7F

	// MaxControlPayload is the largest payload a control frame may carry
	MaxControlPayload = 125

	len16Marker = 126
	len64Marker = 127

	// MaxPayloadLength is the largest length the 64-bit field may carry
	// (the most significant bit must be zero).
	MaxPayloadLength = 1<<63 - 1

	// DefaultMaxPayload is the frame limit a Decoder applies when
	// MaxPayload is zero.
	DefaultMaxPayload = 64 << 20

	// MaxHeaderSize is the largest possible frame header: 2 + 8 + 4
	MaxHeaderSize = 14
)

// Frame represents a WebSocket frame
type Frame struct {
	Fin     bool
	Rsv1    bool
	Rsv2    bool
	Rsv3    bool
	Opcode  Opcode
	Masked  bool
	Length  uint64
	MaskKey [4]byte
	Payload []byte // Unmasked payload
	Raw     []byte // Wire bytes, only populated when the decoder keeps them
}

// String returns a debug representation of the frame
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{FIN=%v, Opcode=%s, Masked=%v, Length=%d}",
		f.Fin, f.Opcode, f.Masked, f.Length)
}

// HeaderSize returns the size of an unmasked server frame header for a
// payload of n bytes.
func HeaderSize(n int) int {
	switch {
	case n <= MaxControlPayload:
		return 2
	case n <= 0xFFFF:
		return 4
	default:
		return 10
	}
}

// EncodeFrame builds a server-to-client frame. Server frames are never masked.
func EncodeFrame(op Opcode, payload []byte, fin bool) ([]byte, error) {
	return AppendFrame(make([]byte, 0, HeaderSize(len(payload))+len(payload)), op, payload, fin)
}

// AppendFrame appends the encoded frame to dst and returns the extended slice.
func AppendFrame(dst []byte, op Opcode, payload []byte, fin bool) ([]byte, error) {
	if !op.Valid() {
		return dst, NewProtocolError(ErrInvalidOpcode, fmt.Sprintf("opcode 0x%X", byte(op)))
	}
	n := uint64(len(payload))
	if n > MaxPayloadLength {
		return dst, NewOversizedError(ErrFrameTooLarge, n, MaxPayloadLength)
	}
	if op.IsControl() {
		if !fin {
			return dst, NewProtocolError(ErrFragmentedControl, op.String())
		}
		if n > MaxControlPayload {
			return dst, NewProtocolError(ErrControlTooLarge, fmt.Sprintf("%s with %d bytes", op, n))
		}
	}

	// Byte 0: FIN + RSV (always 0, no extensions) + opcode
	b0 := byte(op)
	if fin {
		b0 |= finBit
	}
	dst = append(dst, b0)

	// Byte 1: MASK (0) + length indicator, then extended length
	switch {
	case n <= MaxControlPayload:
		dst = append(dst, byte(n))
	case n <= 0xFFFF:
		dst = append(dst, len16Marker)
		dst = binary.BigEndian.AppendUint16(dst, uint16(n))
	default:
		dst = append(dst, len64Marker)
		dst = binary.BigEndian.AppendUint64(dst, n)
	}

	return append(dst, payload...), nil
}
