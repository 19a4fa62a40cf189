package protocol

import (
	"encoding/binary"
	"fmt"
)

// CloseCode is a WebSocket close status code (RFC 6455 section 7.4).
type CloseCode uint16

// Close status codes
const (
	CloseNormal          CloseCode = 1000
	CloseGoingAway       CloseCode = 1001
	CloseProtocolError   CloseCode = 1002
	CloseUnsupportedData CloseCode = 1003
	CloseNoStatus        CloseCode = 1005 // never sent on the wire
	CloseAbnormal        CloseCode = 1006 // never sent on the wire
	CloseInvalidPayload  CloseCode = 1007
	ClosePolicyViolation CloseCode = 1008
	CloseMessageTooBig   CloseCode = 1009
	CloseInternalError   CloseCode = 1011
)

func (c CloseCode) String() string {
	switch c {
	case CloseNormal:
		return "normal closure"
	case CloseGoingAway:
		return "going away"
	case CloseProtocolError:
		return "protocol error"
	case CloseUnsupportedData:
		return "unsupported data"
	case CloseNoStatus:
		return "no status"
	case CloseAbnormal:
		return "abnormal closure"
	case CloseInvalidPayload:
		return "invalid payload data"
	case ClosePolicyViolation:
		return "policy violation"
	case CloseMessageTooBig:
		return "message too big"
	case CloseInternalError:
		return "internal error"
	default:
		return fmt.Sprintf("close(%d)", uint16(c))
	}
}

// Sendable reports whether the code may appear in a Close frame on the wire.
func (c CloseCode) Sendable() bool {
	switch {
	case c < 1000:
		return false
	case c == 1004 || c == CloseNoStatus || c == CloseAbnormal || c == 1015:
		return false
	case c <= 1014:
		return true
	case c < 3000:
		// 1016-2999 are reserved for future protocol revisions
		return false
	case c <= 4999:
		return true
	}
	return false
}

// ParseClosePayload splits a Close frame payload into status code and reason.
// An empty payload yields CloseNoStatus. The reason text is returned as-is
// without UTF-8 validation.
func ParseClosePayload(p []byte) (CloseCode, string, error) {
	switch len(p) {
	case 0:
		return CloseNoStatus, "", nil
	case 1:
		return 0, "", NewProtocolError(ErrInvalidClosePayload, "1-byte close payload")
	}
	code := CloseCode(binary.BigEndian.Uint16(p[:2]))
	if !code.Sendable() {
		return 0, "", NewProtocolError(ErrInvalidClosePayload, fmt.Sprintf("status code %d", uint16(code)))
	}
	return code, string(p[2:]), nil
}

// BuildClosePayload encodes a status code and reason. CloseNoStatus produces an
// empty payload. The reason is truncated so the payload fits a control frame.
func BuildClosePayload(code CloseCode, reason string) []byte {
	if code == CloseNoStatus || code == 0 {
		return nil
	}
	if len(reason) > MaxControlPayload-2 {
		reason = reason[:MaxControlPayload-2]
	}
	p := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(p, uint16(code))
	copy(p[2:], reason)
	return p
}
