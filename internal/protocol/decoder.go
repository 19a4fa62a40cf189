package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// payloadChunk bounds a single payload read. It is a multiple of the mask
// key size so every chunk unmasks from key offset zero.
const payloadChunk = 1 << 20

// DecodeState is a step of the frame decoding state machine.
type DecodeState int

const (
	StateFrameHeader DecodeState = iota
	StateExtendedLength
	StateMaskKey
	StatePayload
	StateFrameComplete
)

func (s DecodeState) String() string {
	switch s {
	case StateFrameHeader:
		return "AwaitingFrameHeader"
	case StateExtendedLength:
		return "AwaitingExtendedLength"
	case StateMaskKey:
		return "AwaitingMaskKey"
	case StatePayload:
		return "AwaitingPayload"
	case StateFrameComplete:
		return "FrameComplete"
	default:
		return fmt.Sprintf("DecodeState(%d)", int(s))
	}
}

// ByteSource returns exactly n bytes or an error. Implementations buffer
// partial reads internally.
type ByteSource interface {
	ReadExactly(n int) ([]byte, error)
}

// Decoder decodes client-to-server frames one step at a time. Each state
// consumes a known number of bytes (Need); Advance refuses any other amount,
// so a step never runs on a partial field.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	// MaxPayload is the largest frame payload accepted. Zero means
	// DefaultMaxPayload.
	MaxPayload uint64

	// KeepRaw copies the wire bytes of each frame into Frame.Raw.
	KeepRaw bool

	state   DecodeState
	frame   Frame
	extLen  int
	payload []byte
}

// NewDecoder returns a decoder enforcing maxPayload per frame.
func NewDecoder(maxPayload uint64) *Decoder {
	return &Decoder{MaxPayload: maxPayload}
}

// State returns the current decoding step.
func (d *Decoder) State() DecodeState {
	return d.state
}

// Pending returns the header fields parsed so far for the frame in progress.
// After an oversized error it describes the frame that must be discarded.
func (d *Decoder) Pending() Frame {
	f := d.frame
	f.Payload = nil
	f.Raw = nil
	return f
}

// Reset discards any partially decoded frame.
func (d *Decoder) Reset() {
	d.state = StateFrameHeader
	d.frame = Frame{}
	d.extLen = 0
	d.payload = nil
}

// Need returns how many bytes the current state consumes. Payloads are
// consumed in chunks of at most 1 MiB, so memory grows only as bytes arrive.
func (d *Decoder) Need() int {
	switch d.state {
	case StateFrameHeader:
		return 2
	case StateExtendedLength:
		return d.extLen
	case StateMaskKey:
		return MaskKeySize
	case StatePayload:
		return int(min(d.frame.Length-uint64(len(d.payload)), payloadChunk))
	default:
		return 0
	}
}

// Advance feeds exactly Need() bytes into the state machine. It returns the
// completed frame when the last step finishes, or nil when more steps remain.
// On error the decoder must be Reset before reuse.
func (d *Decoder) Advance(b []byte) (*Frame, error) {
	if len(b) != d.Need() {
		return nil, fmt.Errorf("%w: state %s needs %d, got %d", ErrShortBuffer, d.state, d.Need(), len(b))
	}
	if d.KeepRaw {
		d.frame.Raw = append(d.frame.Raw, b...)
	}

	switch d.state {
	case StateFrameHeader:
		return nil, d.parseHeader(b[0], b[1])

	case StateExtendedLength:
		var n uint64
		if d.extLen == 2 {
			n = uint64(binary.BigEndian.Uint16(b))
		} else {
			n = binary.BigEndian.Uint64(b)
			if n > MaxPayloadLength {
				return nil, NewProtocolError(ErrLengthOverflow, fmt.Sprintf("0x%016X", n))
			}
		}
		d.frame.Length = n
		if err := d.checkLimit(); err != nil {
			return nil, err
		}
		d.state = StateMaskKey
		return nil, nil

	case StateMaskKey:
		copy(d.frame.MaskKey[:], b)
		if d.frame.Length == 0 {
			return d.complete(nil), nil
		}
		d.state = StatePayload
		return nil, nil

	case StatePayload:
		start := len(d.payload)
		d.payload = append(d.payload, b...)
		ApplyInPlace(d.payload[start:], d.frame.MaskKey)
		if uint64(len(d.payload)) < d.frame.Length {
			return nil, nil
		}
		return d.complete(d.payload), nil
	}

	return nil, fmt.Errorf("decoder in state %s", d.state)
}

func (d *Decoder) parseHeader(b0, b1 byte) error {
	d.frame.Fin = b0&finBit != 0
	d.frame.Rsv1 = b0&rsv1Bit != 0
	d.frame.Rsv2 = b0&rsv2Bit != 0
	d.frame.Rsv3 = b0&rsv3Bit != 0
	d.frame.Opcode = Opcode(b0 & opcodeMask)
	d.frame.Masked = b1&maskBit != 0
	indicator := b1 & lengthMask

	if !d.frame.Opcode.Valid() {
		return NewProtocolError(ErrInvalidOpcode, fmt.Sprintf("opcode 0x%X", byte(d.frame.Opcode)))
	}
	if d.frame.Rsv1 || d.frame.Rsv2 || d.frame.Rsv3 {
		return NewProtocolError(ErrReservedBits, fmt.Sprintf("byte 0x%02X", b0))
	}
	if !d.frame.Masked {
		return NewProtocolError(ErrUnmaskedFrame, d.frame.Opcode.String())
	}
	if d.frame.Opcode.IsControl() {
		if !d.frame.Fin {
			return NewProtocolError(ErrFragmentedControl, d.frame.Opcode.String())
		}
		if indicator > MaxControlPayload {
			return NewProtocolError(ErrControlTooLarge, d.frame.Opcode.String())
		}
	}

	switch indicator {
	case len16Marker:
		d.extLen = 2
		d.state = StateExtendedLength
		return nil
	case len64Marker:
		d.extLen = 8
		d.state = StateExtendedLength
		return nil
	}

	d.frame.Length = uint64(indicator)
	if err := d.checkLimit(); err != nil {
		return err
	}
	d.state = StateMaskKey
	return nil
}

func (d *Decoder) checkLimit() error {
	if d.frame.Opcode.IsControl() && d.frame.Length > MaxControlPayload {
		return NewProtocolError(ErrControlTooLarge, fmt.Sprintf("%s with %d bytes", d.frame.Opcode, d.frame.Length))
	}
	limit := d.MaxPayload
	if limit == 0 {
		limit = DefaultMaxPayload
	}
	limit = min(limit, MaxPayloadLength, math.MaxInt)
	if d.frame.Length > limit {
		return NewOversizedError(ErrFrameTooLarge, d.frame.Length, limit)
	}
	return nil
}

func (d *Decoder) complete(payload []byte) *Frame {
	d.state = StateFrameComplete
	f := d.frame
	f.Payload = payload
	d.Reset()
	return &f
}

// ReadFrame runs the decoder until a full frame has been read from src. It
// returns io.EOF only when src ends before the first header byte.
func (d *Decoder) ReadFrame(src ByteSource) (*Frame, error) {
	for {
		b, err := src.ReadExactly(d.Need())
		if err != nil {
			if err == io.EOF && d.state != StateFrameHeader {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		f, err := d.Advance(b)
		if err != nil || f != nil {
			return f, err
		}
	}
}

// ReadFrame decodes one client frame from src, refusing payloads above
// DefaultMaxPayload.
func ReadFrame(src ByteSource) (*Frame, error) {
	return NewDecoder(0).ReadFrame(src)
}
