package protocol

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// MagicGUID is appended to the client key before hashing (RFC 6455 section 1.3)
const MagicGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// SupportedVersion is the only Sec-WebSocket-Version this server speaks
const SupportedVersion = "13"

// Accept derives the Sec-WebSocket-Accept value for a client key.
func Accept(key string) (string, error) {
	if key == "" {
		return "", NewHandshakeError(ErrMissingKey, "cannot compute accept value")
	}
	sum := sha1.Sum([]byte(key + MagicGUID))
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}

// ValidateKey checks that key is the base64 encoding of a 16-byte nonce.
func ValidateKey(key string) error {
	if key == "" {
		return NewHandshakeError(ErrMissingKey, "")
	}
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return NewHandshakeError(ErrMalformedKey, err.Error())
	}
	if len(raw) != 16 {
		return NewHandshakeError(ErrMalformedKey, fmt.Sprintf("decoded to %d bytes, want 16", len(raw)))
	}
	return nil
}

// BuildResponse returns the exact 101 response for an accept value.
//
//	HTTP/1.1 101 Switching Protocols\r\n
//	Upgrade: websocket\r\n
//	Connection: Upgrade\r\n
//	Sec-WebSocket-Accept: <accept>\r\n
//	\r\n
func BuildResponse(accept string) []byte {
	return []byte("HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n" +
		"\r\n")
}

// BuildRejection returns a minimal HTTP error response for a refused upgrade.
// A 426 response advertises the supported protocol version.
func BuildRejection(status int, reason string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	if status == http.StatusUpgradeRequired {
		b.WriteString("Sec-WebSocket-Version: " + SupportedVersion + "\r\n")
	}
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(reason))
	b.WriteString("Connection: close\r\n\r\n")
	b.WriteString(reason)
	return []byte(b.String())
}
