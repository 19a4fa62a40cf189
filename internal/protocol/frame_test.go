package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestEncodeFrame(t *testing.T) {
	tests := []struct {
		name       string
		op         Opcode
		payloadLen int
		fin        bool
		wantHeader []byte
	}{
		{"empty text", OpcodeText, 0, true, []byte{0x81, 0x00}},
		{"small binary", OpcodeBinary, 5, true, []byte{0x82, 0x05}},
		{"7-bit boundary", OpcodeText, 125, true, []byte{0x81, 0x7D}},
		{"16-bit lower boundary", OpcodeText, 126, true, []byte{0x81, 0x7E, 0x00, 0x7E}},
		{"16-bit upper boundary", OpcodeBinary, 65535, true, []byte{0x82, 0x7E, 0xFF, 0xFF}},
		{"64-bit lower boundary", OpcodeBinary, 65536, true,
			[]byte{0x82, 0x7F, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00}},
		{"non-final text fragment", OpcodeText, 3, false, []byte{0x01, 0x03}},
		{"continuation", OpcodeContinuation, 3, true, []byte{0x80, 0x03}},
		{"pong", OpcodePong, 4, true, []byte{0x8A, 0x04}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := bytes.Repeat([]byte{'x'}, tt.payloadLen)
			got, err := EncodeFrame(tt.op, payload, tt.fin)
			if err != nil {
				t.Fatalf("EncodeFrame() error = %v", err)
			}
			if !bytes.Equal(got[:len(tt.wantHeader)], tt.wantHeader) {
				t.Errorf("header = % x, want % x", got[:len(tt.wantHeader)], tt.wantHeader)
			}
			if got[1]&0x80 != 0 {
				t.Error("server frame must not set the MASK bit")
			}
			if !bytes.Equal(got[len(tt.wantHeader):], payload) {
				t.Error("payload not copied unmodified")
			}
			if len(got) != HeaderSize(tt.payloadLen)+tt.payloadLen {
				t.Errorf("len = %d, want %d", len(got), HeaderSize(tt.payloadLen)+tt.payloadLen)
			}
		})
	}
}

func TestEncodeFrame_Errors(t *testing.T) {
	tests := []struct {
		name    string
		op      Opcode
		payload []byte
		fin     bool
		reason  error
	}{
		{"reserved opcode", Opcode(0x3), nil, true, ErrInvalidOpcode},
		{"fragmented ping", OpcodePing, nil, false, ErrFragmentedControl},
		{"oversized close", OpcodeClose, make([]byte, 126), true, ErrControlTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeFrame(tt.op, tt.payload, tt.fin)
			if !errors.Is(err, tt.reason) {
				t.Fatalf("error = %v, want %v", err, tt.reason)
			}
			if !IsProtocolViolation(err) {
				t.Errorf("TypeOf = %s, want protocol violation", TypeOf(err))
			}
		})
	}
}

func TestEncodeFrame_LargePayloadUses64BitLength(t *testing.T) {
	// The legacy server refused anything above 65535 bytes.
	payload := make([]byte, 70000)
	got, err := EncodeFrame(OpcodeBinary, payload, true)
	if err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}
	if got[1] != 127 {
		t.Fatalf("length indicator = %d, want 127", got[1])
	}
	if n := binary.BigEndian.Uint64(got[2:10]); n != 70000 {
		t.Errorf("extended length = %d, want 70000", n)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	key := [4]byte{0x37, 0xFA, 0x21, 0x3D}
	lengths := []int{0, 1, 125, 126, 65535, 65536, 70000}

	for _, op := range []Opcode{OpcodeText, OpcodeBinary} {
		for _, n := range lengths {
			payload := make([]byte, n)
			for i := range payload {
				payload[i] = byte(i * 7)
			}

			encoded, err := EncodeFrame(op, payload, true)
			if err != nil {
				t.Fatalf("%s/%d: EncodeFrame() error = %v", op, n, err)
			}

			frame, err := ReadFrame(newReaderSource(bytes.NewReader(maskServerFrame(encoded, key))))
			if err != nil {
				t.Fatalf("%s/%d: ReadFrame() error = %v", op, n, err)
			}
			if frame.Opcode != op {
				t.Errorf("%s/%d: opcode = %s", op, n, frame.Opcode)
			}
			if !frame.Fin {
				t.Errorf("%s/%d: FIN lost", op, n)
			}
			if frame.Length != uint64(n) || len(frame.Payload) != n {
				t.Errorf("%s/%d: length = %d, payload = %d", op, n, frame.Length, len(frame.Payload))
			}
			if !bytes.Equal(frame.Payload, payload) && n > 0 {
				t.Errorf("%s/%d: payload mismatch", op, n)
			}
		}
	}
}

func TestHeaderSize(t *testing.T) {
	tests := map[int]int{0: 2, 125: 2, 126: 4, 65535: 4, 65536: 10, 1 << 30: 10}
	for n, want := range tests {
		if got := HeaderSize(n); got != want {
			t.Errorf("HeaderSize(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestFrame_String(t *testing.T) {
	frame := &Frame{
		Fin:     true,
		Opcode:  OpcodeBinary,
		Masked:  true,
		Length:  3,
		MaskKey: [4]byte{0xAA, 0xBB, 0xCC, 0xDD},
		Payload: []byte{0x01, 0x02, 0x03},
	}

	s := frame.String()
	for _, want := range []string{"FIN=true", "binary", "Masked=true", "Length=3"} {
		if !bytes.Contains([]byte(s), []byte(want)) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}

func BenchmarkEncodeFrame(b *testing.B) {
	payload := make([]byte, 1024)
	buf := make([]byte, 0, MaxHeaderSize+len(payload))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf, _ = AppendFrame(buf[:0], OpcodeBinary, payload, true)
	}
}
