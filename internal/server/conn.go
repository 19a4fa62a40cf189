package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/muurk/rawws/internal/config"
	"github.com/muurk/rawws/internal/logging"
	"github.com/muurk/rawws/internal/protocol"
	"github.com/muurk/rawws/internal/transport"
	"go.uber.org/zap"
)

// ErrConnClosed is returned by Send, Ping and Close once the connection has
// been closed or a Close frame has already been sent.
var ErrConnClosed = errors.New("websocket: connection closed")

// errPeerClosed ends the read loop after the closing handshake completed.
var errPeerClosed = errors.New("peer closed the connection")

// errHandlerPanic is reported when the application handler panics.
var errHandlerPanic = errors.New("message handler panicked")

// ConnConfig holds the per-connection settings derived from config.Config.
type ConnConfig struct {
	MaxMessageSize uint64
	MaxFrameSize   uint64
	IdleTimeout    time.Duration // 0 = no read deadline
	WriteTimeout   time.Duration
	PingInterval   time.Duration // 0 = no server pings
	PongResetsIdle bool
	DropOversized  bool
	ValidateUTF8   bool

	// OnPong is called from the reader goroutine for every Pong frame.
	OnPong func(s Sender, payload []byte)

	// Capture receives every inbound and outbound frame when non-nil.
	Capture *Capture
}

// NewConnConfig derives connection settings from the server configuration.
func NewConnConfig(cfg *config.Config) ConnConfig {
	return ConnConfig{
		MaxMessageSize: cfg.Limits.MaxMessageSize,
		MaxFrameSize:   cfg.Limits.FrameLimit(),
		IdleTimeout:    cfg.Timeouts.Idle,
		WriteTimeout:   cfg.Timeouts.Write,
		PingInterval:   cfg.Keepalive.PingInterval,
		PongResetsIdle: cfg.Keepalive.PongResetsIdle,
		DropOversized:  cfg.Policy.Oversized == config.OversizedDrop,
		ValidateUTF8:   cfg.Policy.ValidateUTF8,
	}
}

// Stats are per-connection traffic counters.
type Stats struct {
	FramesIn    uint64
	FramesOut   uint64
	MessagesIn  uint64
	MessagesOut uint64
	BytesIn     uint64
	BytesOut    uint64
}

type connStats struct {
	framesIn    atomic.Uint64
	framesOut   atomic.Uint64
	messagesIn  atomic.Uint64
	messagesOut atomic.Uint64
	bytesIn     atomic.Uint64
	bytesOut    atomic.Uint64
}

// Conn is one upgraded WebSocket connection. Serve owns the read side; Send,
// Ping and Close may be called from any goroutine.
type Conn struct {
	id         string
	remoteAddr string
	netConn    net.Conn
	stream     *transport.Stream
	decoder    *protocol.Decoder
	handler    Handler
	cfg        ConnConfig

	// Reader state, touched only by the Serve goroutine
	msgOpcode    protocol.Opcode
	fragments    [][]byte
	msgSize      uint64
	inProgress   bool
	discarding   bool
	lastActivity time.Time

	writeMu   sync.Mutex
	writeBuf  []byte
	closeSent bool

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	stats connStats
}

// NewConn wraps an upgraded socket. br must be the reader that parsed the HTTP
// upgrade request (or nil to read netConn directly); bytes the client
// pipelined after the request are still buffered in it.
func NewConn(netConn net.Conn, br *bufio.Reader, handler Handler, cfg ConnConfig) *Conn {
	if br == nil {
		br = bufio.NewReaderSize(netConn, transport.DefaultBufferSize)
	}
	decoder := protocol.NewDecoder(cfg.MaxFrameSize)
	decoder.KeepRaw = cfg.Capture != nil

	return &Conn{
		id:         uuid.NewString(),
		remoteAddr: netConn.RemoteAddr().String(),
		netConn:    netConn,
		stream:     transport.NewStreamFromReader(br, netConn),
		decoder:    decoder,
		handler:    handler,
		cfg:        cfg,
		done:       make(chan struct{}),
	}
}

// ID returns the connection's UUID.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string { return c.remoteAddr }

// Done is closed once the socket has been closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Stats returns a snapshot of the traffic counters.
func (c *Conn) Stats() Stats {
	return Stats{
		FramesIn:    c.stats.framesIn.Load(),
		FramesOut:   c.stats.framesOut.Load(),
		MessagesIn:  c.stats.messagesIn.Load(),
		MessagesOut: c.stats.messagesOut.Load(),
		BytesIn:     c.stats.bytesIn.Load(),
		BytesOut:    c.stats.bytesOut.Load(),
	}
}

// Serve reads and dispatches frames until the connection ends. It returns nil
// after a completed closing handshake, a clean EOF between frames or a local
// Close, and the classified error otherwise. Cancelling ctx sends Close 1001.
func (c *Conn) Serve(ctx context.Context) error {
	logging.LogConnection(c.remoteAddr, "websocket_open", zap.String("conn_id", c.id))
	defer c.finish()

	stop := context.AfterFunc(ctx, func() {
		_ = c.Close(protocol.CloseGoingAway, "server shutting down")
	})
	defer stop()

	if c.cfg.PingInterval > 0 {
		go c.keepalive()
	}

	c.lastActivity = time.Now()
	for {
		frame, err := c.readFrame()
		if err != nil {
			if protocol.IsOversized(err) && c.cfg.DropOversized {
				if err = c.dropFrame(err); err == nil {
					continue
				}
			}
			return c.fail(err)
		}

		if err := c.dispatch(frame); err != nil {
			if errors.Is(err, errPeerClosed) {
				return nil
			}
			if protocol.IsOversized(err) && c.cfg.DropOversized {
				c.dropMessage(frame.Fin, err)
				continue
			}
			return c.fail(err)
		}
	}
}

// readFrame drives the decoder one exact-length read at a time.
func (c *Conn) readFrame() (*protocol.Frame, error) {
	for {
		if err := c.netConn.SetReadDeadline(c.readDeadline()); err != nil {
			return nil, protocol.NewTransportError(err, "set read deadline")
		}

		state := c.decoder.State()
		b, err := c.stream.ReadExactly(c.decoder.Need())
		if err != nil {
			if err == io.EOF && state == protocol.StateFrameHeader {
				return nil, io.EOF
			}
			return nil, protocol.NewTransportError(err, "read "+state.String())
		}

		frame, err := c.decoder.Advance(b)
		if err != nil {
			return nil, err
		}
		if frame != nil {
			return frame, nil
		}
	}
}

// readDeadline measures idleness from the last frame while waiting for a new
// header, and from now once a frame has started.
func (c *Conn) readDeadline() time.Time {
	if c.cfg.IdleTimeout <= 0 {
		return time.Time{}
	}
	if c.decoder.State() == protocol.StateFrameHeader {
		return c.lastActivity.Add(c.cfg.IdleTimeout)
	}
	return time.Now().Add(c.cfg.IdleTimeout)
}

func (c *Conn) dispatch(frame *protocol.Frame) error {
	c.stats.framesIn.Add(1)
	c.stats.bytesIn.Add(frame.Length)
	logging.LogFrame(c.remoteAddr, "in", frame)
	if c.cfg.Capture != nil {
		c.cfg.Capture.Record(c.id, c.remoteAddr, DirectionIn, frame, frame.Raw)
	}

	if frame.Opcode != protocol.OpcodePong || c.cfg.PongResetsIdle {
		c.lastActivity = time.Now()
	}

	switch frame.Opcode {
	case protocol.OpcodePing:
		// Control frames may arrive between fragments; the accumulator is untouched.
		if err := c.writeFrame(protocol.OpcodePong, frame.Payload); err != nil && !errors.Is(err, ErrConnClosed) {
			return err
		}
		return nil

	case protocol.OpcodePong:
		if c.cfg.OnPong != nil {
			c.cfg.OnPong(c, frame.Payload)
		}
		return nil

	case protocol.OpcodeClose:
		return c.handleClose(frame.Payload)

	case protocol.OpcodeText, protocol.OpcodeBinary:
		if c.inProgress || c.discarding {
			return protocol.NewProtocolError(protocol.ErrMessageInProgress,
				fmt.Sprintf("%s frame", frame.Opcode))
		}
		if frame.Fin {
			if err := c.checkMessageSize(frame.Length); err != nil {
				return err
			}
			return c.deliver(frame.Opcode, frame.Payload)
		}
		c.inProgress = true
		c.msgOpcode = frame.Opcode
		c.fragments = append(c.fragments[:0], frame.Payload)
		c.msgSize = frame.Length
		return c.checkMessageSize(c.msgSize)

	case protocol.OpcodeContinuation:
		if c.discarding {
			c.discarding = !frame.Fin
			return nil
		}
		if !c.inProgress {
			return protocol.NewProtocolError(protocol.ErrUnexpectedContinuation, "")
		}
		c.fragments = append(c.fragments, frame.Payload)
		c.msgSize += frame.Length
		if err := c.checkMessageSize(c.msgSize); err != nil {
			return err
		}
		if !frame.Fin {
			return nil
		}
		payload := bytes.Join(c.fragments, nil)
		op := c.msgOpcode
		c.resetMessage()
		return c.deliver(op, payload)
	}

	// The decoder rejects every other opcode.
	return protocol.NewProtocolError(protocol.ErrInvalidOpcode, frame.Opcode.String())
}

// checkMessageSize applies the message limit independently of MaxFrameSize,
// which a hand-built ConnConfig may set higher.
func (c *Conn) checkMessageSize(size uint64) error {
	if limit := c.cfg.MaxMessageSize; limit > 0 && size > limit {
		return protocol.NewOversizedError(protocol.ErrMessageTooLarge, size, limit)
	}
	return nil
}

func (c *Conn) resetMessage() {
	for i := range c.fragments {
		c.fragments[i] = nil
	}
	c.fragments = c.fragments[:0]
	c.inProgress = false
	c.msgSize = 0
}

// deliver hands one complete message to the handler.
func (c *Conn) deliver(op protocol.Opcode, payload []byte) (err error) {
	if op == protocol.OpcodeText && c.cfg.ValidateUTF8 && !utf8.Valid(payload) {
		return protocol.NewProtocolError(protocol.ErrInvalidUTF8, "")
	}

	c.stats.messagesIn.Add(1)
	logging.LogWebSocketMessage(c.remoteAddr, "in", op.String(), payload)

	defer func() {
		if r := recover(); r != nil {
			logging.Error("Message handler panicked",
				zap.String("conn_id", c.id),
				zap.String("remote_addr", c.remoteAddr),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			err = errHandlerPanic
		}
	}()
	c.handler.OnMessage(c, op, payload)
	return nil
}

// handleClose completes the closing handshake started by the peer.
func (c *Conn) handleClose(payload []byte) error {
	code, reason, err := protocol.ParseClosePayload(payload)
	if err != nil {
		return err
	}
	logging.LogConnection(c.remoteAddr, "close_received",
		zap.String("conn_id", c.id),
		zap.Uint16("code", uint16(code)),
		zap.String("reason", reason),
	)

	if err := c.sendClose(code, ""); err != nil && !errors.Is(err, ErrConnClosed) {
		logging.Debug("Failed to echo close frame",
			zap.String("conn_id", c.id),
			zap.Error(err),
		)
	}
	c.closeSocket()
	return errPeerClosed
}

// dropFrame skips the payload of a frame the decoder refused as oversized.
// The mask key has not been read yet when the decoder reports the size.
func (c *Conn) dropFrame(cause error) error {
	pending := c.decoder.Pending()
	c.decoder.Reset()

	if c.cfg.IdleTimeout > 0 {
		if err := c.netConn.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout)); err != nil {
			return protocol.NewTransportError(err, "set read deadline")
		}
	}
	if err := c.stream.Discard(protocol.MaskKeySize + pending.Length); err != nil {
		return protocol.NewTransportError(err, "discard oversized frame")
	}

	c.stats.framesIn.Add(1)
	c.stats.bytesIn.Add(pending.Length)
	c.lastActivity = time.Now()

	switch {
	case pending.Opcode == protocol.OpcodeContinuation && c.discarding:
		c.discarding = !pending.Fin
		return nil
	case pending.Opcode == protocol.OpcodeContinuation && !c.inProgress:
		return protocol.NewProtocolError(protocol.ErrUnexpectedContinuation, "")
	case pending.Opcode.IsData() && (c.inProgress || c.discarding):
		return protocol.NewProtocolError(protocol.ErrMessageInProgress,
			fmt.Sprintf("%s frame", pending.Opcode))
	}

	c.dropMessage(pending.Fin, cause)
	return nil
}

// dropMessage abandons the message in progress. When the dropped frame was
// not final, the remaining fragments are skipped as they arrive.
func (c *Conn) dropMessage(fin bool, cause error) {
	logging.Warn("Dropping oversized message",
		zap.String("conn_id", c.id),
		zap.String("remote_addr", c.remoteAddr),
		zap.Error(cause),
	)
	c.resetMessage()
	c.discarding = !fin
}

// fail reacts to a read-side error according to its kind and returns it for
// the caller to log. Errors caused by a local Close are swallowed.
func (c *Conn) fail(err error) error {
	if c.closed.Load() {
		return nil
	}
	if err == io.EOF {
		logging.LogConnection(c.remoteAddr, "peer_disconnected", zap.String("conn_id", c.id))
		c.closeSocket()
		return nil
	}

	switch protocol.TypeOf(err) {
	case protocol.ErrTypeProtocolViolation, protocol.ErrTypeOversizedPayload:
		logging.Warn("Closing connection",
			zap.String("conn_id", c.id),
			zap.String("remote_addr", c.remoteAddr),
			zap.Stringer("kind", protocol.TypeOf(err)),
			zap.Error(err),
		)
		_ = c.Close(protocol.CloseCodeFor(err), closeReason(err))
	case protocol.ErrTypeTransport:
		if errors.Is(err, os.ErrDeadlineExceeded) {
			logging.Info("Idle timeout",
				zap.String("conn_id", c.id),
				zap.String("remote_addr", c.remoteAddr),
				zap.Duration("idle_timeout", c.cfg.IdleTimeout),
			)
			_ = c.Close(protocol.CloseGoingAway, "idle timeout")
			break
		}
		c.closeSocket()
	default:
		_ = c.Close(protocol.CloseInternalError, "internal error")
	}
	return err
}

// closeReason is the short text carried in the Close frame.
func closeReason(err error) string {
	var wsErr *protocol.Error
	if errors.As(err, &wsErr) && wsErr.Err != nil {
		return wsErr.Err.Error()
	}
	return err.Error()
}

func (c *Conn) keepalive() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.Ping(nil); err != nil {
				return
			}
		}
	}
}

// closeSocket closes the underlying socket once.
func (c *Conn) closeSocket() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		_ = c.netConn.Close()
		close(c.done)
	})
}

func (c *Conn) finish() {
	c.closeSocket()
	s := c.Stats()
	logging.LogConnection(c.remoteAddr, "websocket_closed",
		zap.String("conn_id", c.id),
		zap.Uint64("frames_in", s.FramesIn),
		zap.Uint64("frames_out", s.FramesOut),
		zap.Uint64("messages_in", s.MessagesIn),
		zap.Uint64("messages_out", s.MessagesOut),
		zap.Uint64("bytes_in", s.BytesIn),
		zap.Uint64("bytes_out", s.BytesOut),
	)
}
