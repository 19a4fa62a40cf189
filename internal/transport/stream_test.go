package transport

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"
)

type readWriter struct {
	io.Reader
	io.Writer
}

func TestStream_ReadExactly(t *testing.T) {
	data := []byte("0123456789abcdef")

	tests := []struct {
		name   string
		reader io.Reader
	}{
		{"whole buffer", bytes.NewReader(data)},
		{"one byte at a time", iotest.OneByteReader(bytes.NewReader(data))},
		{"half reads", iotest.HalfReader(bytes.NewReader(data))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStream(readWriter{tt.reader, io.Discard})

			for _, want := range []string{"01", "2345", "", "6789abcdef"} {
				got, err := s.ReadExactly(len(want))
				if err != nil {
					t.Fatalf("ReadExactly(%d) error = %v", len(want), err)
				}
				if string(got) != want {
					t.Errorf("ReadExactly(%d) = %q, want %q", len(want), got, want)
				}
			}

			if _, err := s.ReadExactly(1); err != io.EOF {
				t.Errorf("read past end error = %v, want io.EOF", err)
			}
		})
	}
}

func TestStream_ReadExactly_ShortStream(t *testing.T) {
	s := NewStream(readWriter{bytes.NewReader([]byte("abc")), io.Discard})
	if _, err := s.ReadExactly(5); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("error = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestStream_ReadExactly_Negative(t *testing.T) {
	s := NewStream(readWriter{bytes.NewReader(nil), io.Discard})
	if _, err := s.ReadExactly(-1); err == nil {
		t.Error("expected error for negative length")
	}
}

func TestStream_ReturnsFreshSlices(t *testing.T) {
	s := NewStream(readWriter{bytes.NewReader([]byte("aabb")), io.Discard})
	first, _ := s.ReadExactly(2)
	second, _ := s.ReadExactly(2)
	if string(first) != "aa" || string(second) != "bb" {
		t.Errorf("slices alias each other: %q %q", first, second)
	}
}

func TestStream_Discard(t *testing.T) {
	payload := append(bytes.Repeat([]byte{'x'}, 10000), []byte("tail")...)
	s := NewStream(readWriter{iotest.HalfReader(bytes.NewReader(payload)), io.Discard})

	if err := s.Discard(10000); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	got, err := s.ReadExactly(4)
	if err != nil || string(got) != "tail" {
		t.Errorf("after discard got %q, %v", got, err)
	}

	if err := s.Discard(1); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Discard past end error = %v", err)
	}
}

func TestStream_Write(t *testing.T) {
	var out bytes.Buffer
	s := NewStream(readWriter{bytes.NewReader(nil), &out})
	if _, err := s.Write([]byte("frame")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if out.String() != "frame" {
		t.Errorf("wrote %q", out.String())
	}
}
