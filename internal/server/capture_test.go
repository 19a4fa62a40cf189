package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/muurk/rawws/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCapture(t *testing.T, path string) []CaptureRecord {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []CaptureRecord
	require.NoError(t, ReadCapture(f, func(r CaptureRecord) error {
		records = append(records, r)
		return nil
	}))
	return records
}

func TestNewCapture_Disabled(t *testing.T) {
	c, err := NewCapture("")
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Empty(t, c.Dir())

	// A nil capture is a no-op
	c.Record("id", "addr", DirectionIn, &protocol.Frame{}, nil)
}

func TestCapture_Record(t *testing.T) {
	c, err := NewCapture(t.TempDir())
	require.NoError(t, err)
	fixed := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	frame := &protocol.Frame{
		Fin:     true,
		Opcode:  protocol.OpcodeText,
		Masked:  true,
		Length:  2,
		Payload: []byte("hi"),
	}
	c.Record("conn-1", "127.0.0.1:5000", DirectionIn, frame, []byte{0x81, 0x82})

	records := readCapture(t, c.Path(fixed))
	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, "conn-1", r.ConnID)
	assert.Equal(t, DirectionIn, r.Direction)
	assert.Equal(t, "text", r.Opcode)
	assert.True(t, r.FIN)
	assert.True(t, r.Masked)
	assert.Equal(t, uint64(2), r.PayloadLen)
	assert.Equal(t, "6869", r.PayloadHex)
	assert.Equal(t, "hi", r.PayloadASCII)
	assert.Equal(t, "8182", r.RawFrameHex)
	assert.Contains(t, c.Path(fixed), "capture-20240309.jsonl")
}

func TestConn_CapturesBothDirections(t *testing.T) {
	capture, err := NewCapture(t.TempDir())
	require.NoError(t, err)

	cfg := testConnConfig()
	cfg.Capture = capture
	handler := HandlerFunc(func(s Sender, op protocol.Opcode, payload []byte) {
		_ = s.Send(op, payload)
	})
	c := newTestClient(t, handler, cfg)

	sent := maskedFrame(protocol.OpcodeBinary, []byte{1, 2, 3}, true)
	c.write(sent)
	c.read()

	// The outbound record is written after the frame hits the socket.
	path := capture.Path(time.Now())
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && bytes.Count(data, []byte("\n")) == 2
	}, 5*time.Second, 10*time.Millisecond)

	records := readCapture(t, path)
	require.Len(t, records, 2)

	in, out := records[0], records[1]
	assert.Equal(t, DirectionIn, in.Direction)
	assert.Equal(t, c.server.ID(), in.ConnID)
	assert.Equal(t, "010203", in.PayloadHex)
	assert.True(t, in.Masked)
	assert.Len(t, in.RawFrameHex, 2*len(sent))

	assert.Equal(t, DirectionOut, out.Direction)
	assert.False(t, out.Masked)
	assert.Equal(t, "8203010203", out.RawFrameHex)
}

func TestSummarizeCapture(t *testing.T) {
	t0 := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	records := []CaptureRecord{
		{Timestamp: t0.Add(time.Second), ConnID: "a", Direction: DirectionIn, Opcode: "text", PayloadLen: 5},
		{Timestamp: t0, ConnID: "a", Direction: DirectionOut, Opcode: "text", PayloadLen: 40},
		{Timestamp: t0.Add(3 * time.Second), ConnID: "b", Direction: DirectionIn, Opcode: "text", PayloadLen: 7},
		{Timestamp: t0.Add(2 * time.Second), ConnID: "b", Direction: DirectionIn, Opcode: "ping"},
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, r := range records {
		require.NoError(t, enc.Encode(r))
		if i == 1 {
			buf.WriteString("\n")
		}
	}

	summary, err := SummarizeCapture(&buf)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Frames)
	assert.Equal(t, 2, summary.Connections)
	assert.True(t, summary.First.Equal(t0))
	assert.True(t, summary.Last.Equal(t0.Add(3*time.Second)))
	assert.Equal(t, []CaptureCount{
		{CaptureKey: CaptureKey{Direction: DirectionIn, Opcode: "ping"}, Frames: 1},
		{CaptureKey: CaptureKey{Direction: DirectionIn, Opcode: "text"}, Frames: 2, PayloadBytes: 12},
		{CaptureKey: CaptureKey{Direction: DirectionOut, Opcode: "text"}, Frames: 1, PayloadBytes: 40},
	}, summary.Counts)
}

func TestReadCapture_NoTrailingNewline(t *testing.T) {
	var n int
	err := ReadCapture(strings.NewReader(`{"conn_id":"a"}`), func(r CaptureRecord) error {
		n++
		assert.Equal(t, "a", r.ConnID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReadCapture_Errors(t *testing.T) {
	err := ReadCapture(strings.NewReader("{\"conn_id\":\"a\"}\nnot json\n"), func(CaptureRecord) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capture line 2")

	stop := errors.New("stop")
	err = ReadCapture(strings.NewReader("{}\n{}\n"), func(CaptureRecord) error { return stop })
	assert.ErrorIs(t, err, stop)
}
