package protocol

import (
	"bufio"
	"encoding/binary"
	"io"
)

// readerSource adapts an io.Reader to ByteSource for tests.
type readerSource struct {
	r io.Reader
}

func newReaderSource(r io.Reader) *readerSource {
	return &readerSource{r: bufio.NewReader(r)}
}

func (s *readerSource) ReadExactly(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(s.r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// clientFrame builds a masked frame the way a browser would send it.
// It performs no validation so tests can produce malformed frames.
func clientFrame(op Opcode, payload []byte, fin bool, key [4]byte) []byte {
	b0 := byte(op)
	if fin {
		b0 |= 0x80
	}
	out := []byte{b0}
	n := len(payload)
	switch {
	case n <= 125:
		out = append(out, 0x80|byte(n))
	case n <= 0xFFFF:
		out = append(out, 0x80|126)
		out = binary.BigEndian.AppendUint16(out, uint16(n))
	default:
		out = append(out, 0x80|127)
		out = binary.BigEndian.AppendUint64(out, uint64(n))
	}
	out = append(out, key[:]...)
	return append(out, Apply(payload, key)...)
}

// maskServerFrame converts an encoded server frame into its masked client
// equivalent by setting the MASK bit and inserting the key.
func maskServerFrame(encoded []byte, key [4]byte) []byte {
	var hdr int
	switch encoded[1] & 0x7F {
	case 126:
		hdr = 4
	case 127:
		hdr = 10
	default:
		hdr = 2
	}
	out := make([]byte, 0, len(encoded)+4)
	out = append(out, encoded[:hdr]...)
	out[1] |= 0x80
	out = append(out, key[:]...)
	return append(out, Apply(encoded[hdr:], key)...)
}
