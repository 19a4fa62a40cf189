package protocol

import (
	"bytes"
	"testing"
	"testing/quick"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		maskKey [4]byte
		want    []byte
	}{
		{
			name:    "simple unmasking",
			payload: []byte{0xAB, 0xBA, 0xCD, 0xDC},
			maskKey: [4]byte{0xAA, 0xBB, 0xCC, 0xDD},
			want:    []byte{0x01, 0x01, 0x01, 0x01},
		},
		{
			name:    "empty payload",
			payload: []byte{},
			maskKey: [4]byte{0x01, 0x02, 0x03, 0x04},
			want:    []byte{},
		},
		{
			name:    "payload longer than mask key",
			payload: []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
			maskKey: [4]byte{0x01, 0x01, 0x01, 0x01},
			want:    []byte{0x00, 0x03, 0x02, 0x05, 0x04, 0x07, 0x06, 0x09},
		},
		{
			name:    "all zero mask (no-op)",
			payload: []byte{0x11, 0x22, 0x33},
			maskKey: [4]byte{0x00, 0x00, 0x00, 0x00},
			want:    []byte{0x11, 0x22, 0x33},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := append([]byte(nil), tt.payload...)

			got := Apply(tt.payload, tt.maskKey)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Apply() = %v, want %v", got, tt.want)
			}
			if !bytes.Equal(tt.payload, original) {
				t.Error("Apply() modified its input")
			}
		})
	}
}

func TestApply_SelfInverse(t *testing.T) {
	roundTrip := func(p []byte, key [4]byte) bool {
		return bytes.Equal(Apply(Apply(p, key), key), p)
	}
	if err := quick.Check(roundTrip, nil); err != nil {
		t.Error(err)
	}
}

func TestApplyInPlace_MatchesApply(t *testing.T) {
	matches := func(p []byte, key [4]byte) bool {
		want := Apply(p, key)
		ApplyInPlace(p, key)
		return bytes.Equal(p, want)
	}
	if err := quick.Check(matches, nil); err != nil {
		t.Error(err)
	}
}

func BenchmarkApply(b *testing.B) {
	payload := make([]byte, 1024)
	for i := range payload {
		payload[i] = byte(i % 256)
	}
	maskKey := [4]byte{0xAA, 0xBB, 0xCC, 0xDD}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ApplyInPlace(payload, maskKey)
	}
}
