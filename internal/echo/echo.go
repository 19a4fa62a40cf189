// Package echo is the application served by rawws-server: it answers each
// JSON text message with the parsed value and a timestamp, and echoes binary
// messages unchanged.
package echo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/muurk/rawws/internal/logging"
	"github.com/muurk/rawws/internal/protocol"
	"github.com/muurk/rawws/internal/server"
	"go.uber.org/zap"
)

// TimeFormat is the reply timestamp layout: RFC 3339, UTC, milliseconds.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Reply is the JSON document sent back for every text message.
type Reply struct {
	Message json.RawMessage `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	At      string          `json:"at"`
}

// Handler implements server.Handler.
type Handler struct {
	now func() time.Time
}

// New returns an echo Handler.
func New() *Handler {
	return &Handler{now: time.Now}
}

// OnMessage answers one message.
func (h *Handler) OnMessage(s server.Sender, op protocol.Opcode, payload []byte) {
	if op == protocol.OpcodeBinary {
		h.send(s, protocol.OpcodeBinary, payload)
		return
	}

	reply, err := h.Build(payload)
	if err != nil {
		logging.Error("Failed to build echo reply",
			zap.String("conn_id", s.ID()),
			zap.Error(err),
		)
		return
	}
	h.send(s, protocol.OpcodeText, reply)
}

// Build renders the reply for a text payload. Invalid JSON produces an error
// reply rather than a failure.
func (h *Handler) Build(payload []byte) ([]byte, error) {
	reply := Reply{At: h.now().UTC().Format(TimeFormat)}

	var compact bytes.Buffer
	if err := json.Compact(&compact, payload); err != nil {
		reply.Error = fmt.Sprintf("invalid JSON: %v", err)
	} else {
		reply.Message = compact.Bytes()
	}

	out, err := json.Marshal(reply)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reply: %w", err)
	}
	return out, nil
}

func (h *Handler) send(s server.Sender, op protocol.Opcode, payload []byte) {
	if err := s.Send(op, payload); err != nil {
		logging.Debug("Echo reply not sent",
			zap.String("conn_id", s.ID()),
			zap.String("remote_addr", s.RemoteAddr()),
			zap.Error(err),
		)
	}
}
