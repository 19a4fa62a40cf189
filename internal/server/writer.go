package server

import (
	"time"

	"github.com/muurk/rawws/internal/logging"
	"github.com/muurk/rawws/internal/protocol"
	"go.uber.org/zap"
)

// maxRetainedWriteBuf caps the encode buffer kept between writes
const maxRetainedWriteBuf = 64 << 10

// Send writes payload as a single unfragmented frame. Payloads above the
// message limit are refused with an OversizedPayload error and nothing is
// written. Continuation and reserved opcodes are refused with a
// ProtocolViolation. Send is safe for concurrent use; frames are never
// interleaved.
func (c *Conn) Send(op protocol.Opcode, payload []byte) error {
	switch op {
	case protocol.OpcodeText, protocol.OpcodeBinary, protocol.OpcodeClose,
		protocol.OpcodePing, protocol.OpcodePong:
	default:
		return protocol.NewProtocolError(protocol.ErrInvalidOpcode, "send "+op.String())
	}
	if limit := c.cfg.MaxMessageSize; limit > 0 && uint64(len(payload)) > limit {
		return protocol.NewOversizedError(protocol.ErrMessageTooLarge, uint64(len(payload)), limit)
	}
	if op == protocol.OpcodeClose {
		code, reason, err := protocol.ParseClosePayload(payload)
		if err != nil {
			return err
		}
		return c.Close(code, reason)
	}
	if err := c.writeFrame(op, payload); err != nil {
		return err
	}
	if op.IsData() {
		c.stats.messagesOut.Add(1)
		logging.LogWebSocketMessage(c.remoteAddr, "out", op.String(), payload)
	}
	return nil
}

// Ping sends a Ping frame with an optional payload of at most 125 bytes.
func (c *Conn) Ping(payload []byte) error {
	return c.writeFrame(protocol.OpcodePing, payload)
}

// Close sends a Close frame (once per connection) and closes the socket.
// CloseNoStatus sends an empty Close payload.
func (c *Conn) Close(code protocol.CloseCode, reason string) error {
	err := c.sendClose(code, reason)
	c.closeSocket()
	if err == ErrConnClosed {
		return nil
	}
	return err
}

func (c *Conn) sendClose(code protocol.CloseCode, reason string) error {
	return c.writeFrame(protocol.OpcodeClose, protocol.BuildClosePayload(code, reason))
}

// writeFrame encodes and writes one frame with a single Write call.
func (c *Conn) writeFrame(op protocol.Opcode, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() || c.closeSent {
		return ErrConnClosed
	}

	buf, err := protocol.AppendFrame(c.writeBuf[:0], op, payload, true)
	if err != nil {
		return err
	}
	if cap(buf) <= maxRetainedWriteBuf {
		c.writeBuf = buf
	}

	if c.cfg.WriteTimeout > 0 {
		if err := c.netConn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
			c.closeSocket()
			return protocol.NewTransportError(err, "set write deadline")
		}
	}
	if _, err := c.stream.Write(buf); err != nil {
		logging.Debug("Frame write failed",
			zap.String("conn_id", c.id),
			zap.Stringer("opcode", op),
			zap.Error(err),
		)
		c.closeSocket()
		return protocol.NewTransportError(err, "write "+op.String()+" frame")
	}
	if op == protocol.OpcodeClose {
		c.closeSent = true
	}

	c.stats.framesOut.Add(1)
	c.stats.bytesOut.Add(uint64(len(payload)))
	if c.cfg.Capture != nil {
		c.cfg.Capture.Record(c.id, c.remoteAddr, DirectionOut, &protocol.Frame{
			Fin:     true,
			Opcode:  op,
			Length:  uint64(len(payload)),
			Payload: payload,
		}, buf)
	}
	return nil
}
