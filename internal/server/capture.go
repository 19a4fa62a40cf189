package server

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/muurk/rawws/internal/logging"
	"github.com/muurk/rawws/internal/protocol"
	"go.uber.org/zap"
)

// Frame directions recorded in captures and logs
const (
	DirectionIn  = "client->server"
	DirectionOut = "server->client"
)

// CaptureRecord is one line of a frame capture file.
type CaptureRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	ConnID       string    `json:"conn_id"`
	RemoteAddr   string    `json:"remote_addr"`
	Direction    string    `json:"direction"`
	Opcode       string    `json:"opcode"`
	FIN          bool      `json:"fin"`
	Masked       bool      `json:"masked"`
	PayloadLen   uint64    `json:"payload_len"`
	PayloadHex   string    `json:"payload_hex"`
	PayloadASCII string    `json:"payload_ascii"`
	RawFrameHex  string    `json:"raw_frame_hex,omitempty"`
}

// Capture appends frames as JSON lines to capture-<date>.jsonl in a
// directory. A nil *Capture records nothing.
type Capture struct {
	dir string
	now func() time.Time

	mu sync.Mutex
}

// NewCapture creates dir if needed and returns a Capture writing into it.
// An empty dir disables capture and returns nil.
func NewCapture(dir string) (*Capture, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create capture directory: %w", err)
	}
	return &Capture{dir: dir, now: time.Now}, nil
}

// Dir returns the capture directory.
func (c *Capture) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

// Path returns the capture file for the given time.
func (c *Capture) Path(t time.Time) string {
	return filepath.Join(c.dir, fmt.Sprintf("capture-%s.jsonl", t.Format("20060102")))
}

// Record appends one frame. Failures are logged, never returned; capture must
// not break a connection.
func (c *Capture) Record(connID, remoteAddr, direction string, frame *protocol.Frame, raw []byte) {
	if c == nil {
		return
	}

	timestamp := c.now()
	record := CaptureRecord{
		Timestamp:    timestamp,
		ConnID:       connID,
		RemoteAddr:   remoteAddr,
		Direction:    direction,
		Opcode:       frame.Opcode.String(),
		FIN:          frame.Fin,
		Masked:       frame.Masked,
		PayloadLen:   frame.Length,
		PayloadHex:   hex.EncodeToString(frame.Payload),
		PayloadASCII: logging.ASCIIDump(frame.Payload),
		RawFrameHex:  hex.EncodeToString(raw),
	}

	data, err := json.Marshal(record)
	if err != nil {
		logging.Error("Failed to marshal capture record", zap.Error(err))
		return
	}

	filename := c.Path(timestamp)

	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logging.Error("Failed to open capture file",
			zap.String("filename", filename),
			zap.Error(err),
		)
		return
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(data, '\n')); err != nil {
		logging.Error("Failed to write capture file",
			zap.String("filename", filename),
			zap.Error(err),
		)
		return
	}

	logging.Debug("Captured frame",
		zap.String("filename", filename),
		zap.String("conn_id", connID),
		zap.String("direction", direction),
	)
}

// ReadCapture calls fn for every record in a capture stream. Blank lines are
// skipped; a malformed line stops the scan with its line number.
func ReadCapture(r io.Reader, fn func(CaptureRecord) error) error {
	br := bufio.NewReader(r)
	for line := 1; ; line++ {
		data, err := br.ReadBytes('\n')
		if len(bytes.TrimSpace(data)) > 0 {
			var record CaptureRecord
			if jerr := json.Unmarshal(data, &record); jerr != nil {
				return fmt.Errorf("capture line %d: %w", line, jerr)
			}
			if ferr := fn(record); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read capture: %w", err)
		}
	}
}

// CaptureKey groups capture records by direction and opcode.
type CaptureKey struct {
	Direction string
	Opcode    string
}

// CaptureCount totals the frames for one CaptureKey.
type CaptureCount struct {
	CaptureKey
	Frames       int
	PayloadBytes uint64
}

// CaptureSummary aggregates a capture file.
type CaptureSummary struct {
	Frames      int
	Connections int
	First       time.Time
	Last        time.Time
	Counts      []CaptureCount // sorted by direction, then opcode

	conns  map[string]struct{}
	counts map[CaptureKey]*CaptureCount
}

func (s *CaptureSummary) add(r CaptureRecord) {
	if s.conns == nil {
		s.conns = make(map[string]struct{})
		s.counts = make(map[CaptureKey]*CaptureCount)
	}

	s.Frames++
	s.conns[r.ConnID] = struct{}{}
	if s.First.IsZero() || r.Timestamp.Before(s.First) {
		s.First = r.Timestamp
	}
	if r.Timestamp.After(s.Last) {
		s.Last = r.Timestamp
	}

	key := CaptureKey{Direction: r.Direction, Opcode: r.Opcode}
	c, ok := s.counts[key]
	if !ok {
		c = &CaptureCount{CaptureKey: key}
		s.counts[key] = c
	}
	c.Frames++
	c.PayloadBytes += r.PayloadLen
}

func (s *CaptureSummary) finish() {
	s.Connections = len(s.conns)
	s.Counts = make([]CaptureCount, 0, len(s.counts))
	for _, c := range s.counts {
		s.Counts = append(s.Counts, *c)
	}
	sort.Slice(s.Counts, func(i, j int) bool {
		if s.Counts[i].Direction != s.Counts[j].Direction {
			return s.Counts[i].Direction < s.Counts[j].Direction
		}
		return s.Counts[i].Opcode < s.Counts[j].Opcode
	})
}

// SummarizeCapture reads a whole capture stream into a summary.
func SummarizeCapture(r io.Reader) (*CaptureSummary, error) {
	summary := &CaptureSummary{}
	if err := ReadCapture(r, func(rec CaptureRecord) error {
		summary.add(rec)
		return nil
	}); err != nil {
		return nil, err
	}
	summary.finish()
	return summary, nil
}
