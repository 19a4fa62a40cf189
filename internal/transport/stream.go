// Package transport adapts a live byte stream to the exact-length reads the
// frame decoder needs.
package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// DefaultBufferSize is the read buffer used when wrapping a bare reader
const DefaultBufferSize = 4096

// Stream is a bidirectional byte stream offering ReadExactly. Reads that the
// operating system delivers in smaller chunks are accumulated in the buffered
// reader until the requested count is available.
type Stream struct {
	r *bufio.Reader
	w io.Writer
}

// NewStream wraps rw. If rw's reader side has already been wrapped in a
// bufio.Reader (for example to parse the HTTP upgrade request), pass that
// reader via NewStreamFromReader instead so buffered bytes are not lost.
func NewStream(rw io.ReadWriter) *Stream {
	return NewStreamFromReader(bufio.NewReaderSize(rw, DefaultBufferSize), rw)
}

// NewStreamFromReader builds a Stream from an existing buffered reader and a
// writer.
func NewStreamFromReader(r *bufio.Reader, w io.Writer) *Stream {
	return &Stream{r: r, w: w}
}

// ReadExactly blocks until n bytes are available and returns them in a fresh
// slice. It returns io.EOF only when the stream ends before the first byte,
// and io.ErrUnexpectedEOF when it ends part way through.
func (s *Stream) ReadExactly(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("transport: negative read length %d", n)
	}
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	if _, err := io.ReadFull(s.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Discard skips n bytes without retaining them.
func (s *Stream) Discard(n uint64) error {
	for n > 0 {
		chunk := n
		if chunk > 1<<30 {
			chunk = 1 << 30
		}
		skipped, err := s.r.Discard(int(chunk))
		n -= uint64(skipped)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
	return nil
}

// Write writes p to the underlying stream.
func (s *Stream) Write(p []byte) (int, error) {
	return s.w.Write(p)
}
