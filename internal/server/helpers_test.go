package server

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/muurk/rawws/internal/protocol"
	"github.com/stretchr/testify/require"
)

var clientKey = [4]byte{0x12, 0x34, 0x56, 0x78}

type message struct {
	op      protocol.Opcode
	payload []byte
}

// recorder is a Handler that pushes every message onto a channel.
type recorder struct {
	messages chan message
}

func newRecorder() *recorder {
	return &recorder{messages: make(chan message, 64)}
}

func (r *recorder) OnMessage(_ Sender, op protocol.Opcode, payload []byte) {
	r.messages <- message{op: op, payload: append([]byte(nil), payload...)}
}

func (r *recorder) next(t *testing.T) message {
	t.Helper()
	select {
	case m := <-r.messages:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return message{}
	}
}

func (r *recorder) assertEmpty(t *testing.T) {
	t.Helper()
	select {
	case m := <-r.messages:
		t.Fatalf("unexpected message %s %q", m.op, m.payload)
	default:
	}
}

func testConnConfig() ConnConfig {
	return ConnConfig{
		MaxMessageSize: 1 << 20,
		MaxFrameSize:   1 << 20,
		IdleTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		PongResetsIdle: true,
		ValidateUTF8:   true,
	}
}

// testClient is the client end of a loopback TCP connection whose server end
// is served by a Conn.
type testClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
	server *Conn
	served chan error
}

// tcpPair returns both ends of a loopback TCP connection.
func tcpPair(t *testing.T) (client, server net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server, ok := <-accepted
	require.True(t, ok, "accept failed")
	return client, server
}

func newTestClient(t *testing.T, handler Handler, cfg ConnConfig) *testClient {
	return newTestClientContext(t, context.Background(), handler, cfg)
}

func newTestClientContext(t *testing.T, ctx context.Context, handler Handler, cfg ConnConfig) *testClient {
	t.Helper()
	client, serverSide := tcpPair(t)

	tc := &testClient{
		t:      t,
		conn:   client,
		reader: bufio.NewReader(client),
		server: NewConn(serverSide, nil, handler, cfg),
		served: make(chan error, 1),
	}
	go func() { tc.served <- tc.server.Serve(ctx) }()

	t.Cleanup(func() {
		_ = client.Close()
		_ = tc.server.Close(protocol.CloseNormal, "")
	})
	return tc
}

// send writes one masked client frame.
func (c *testClient) send(op protocol.Opcode, payload []byte, fin bool) {
	c.t.Helper()
	c.write(maskedFrame(op, payload, fin))
}

func (c *testClient) write(b []byte) {
	c.t.Helper()
	_, err := c.conn.Write(b)
	require.NoError(c.t, err)
}

// read returns the next server frame.
func (c *testClient) read() (protocol.Opcode, []byte) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	op, payload, err := readServerFrame(c.reader)
	require.NoError(c.t, err)
	return op, payload
}

// readClose reads frames until a Close frame arrives and returns its status.
func (c *testClient) readClose() protocol.CloseCode {
	c.t.Helper()
	for {
		op, payload := c.read()
		if op != protocol.OpcodeClose {
			continue
		}
		code, _, err := protocol.ParseClosePayload(payload)
		require.NoError(c.t, err)
		return code
	}
}

// wait returns Serve's result.
func (c *testClient) wait() error {
	c.t.Helper()
	select {
	case err := <-c.served:
		return err
	case <-time.After(5 * time.Second):
		c.t.Fatal("Serve did not return")
		return nil
	}
}

// maskedFrame encodes a frame the way a client must: with the MASK bit set
// and the payload XORed with clientKey.
func maskedFrame(op protocol.Opcode, payload []byte, fin bool) []byte {
	var b0 byte
	if fin {
		b0 = 0x80
	}
	b0 |= byte(op)

	frame := []byte{b0}
	n := len(payload)
	switch {
	case n <= 125:
		frame = append(frame, 0x80|byte(n))
	case n <= 65535:
		frame = append(frame, 0x80|126)
		frame = binary.BigEndian.AppendUint16(frame, uint16(n))
	default:
		frame = append(frame, 0x80|127)
		frame = binary.BigEndian.AppendUint64(frame, uint64(n))
	}
	frame = append(frame, clientKey[:]...)
	return append(frame, protocol.Apply(payload, clientKey)...)
}

// readServerFrame decodes one unmasked server frame.
func readServerFrame(r io.Reader) (protocol.Opcode, []byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	n := uint64(hdr[1] & 0x7F)
	switch n {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return 0, nil, err
		}
		n = uint64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return 0, nil, err
		}
		n = binary.BigEndian.Uint64(ext[:])
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return protocol.Opcode(hdr[0] & 0x0F), payload, nil
}
