package server

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/muurk/rawws/internal/logging"
	"github.com/muurk/rawws/internal/protocol"
	"go.uber.org/zap"
)

// PlainResponseBody is returned to plain HTTP requests on the WebSocket port
const PlainResponseBody = "Hey there!"

// WriteHandshakeResponse writes the 101 Switching Protocols response for an
// accept value, byte for byte as protocol.BuildResponse renders it.
func WriteHandshakeResponse(w io.Writer, remoteAddr, accept string) error {
	response := protocol.BuildResponse(accept)
	logging.LogRawBytes("HTTP 101 Response", response)

	n, err := w.Write(response)
	if err != nil {
		return protocol.NewTransportError(err, "write HTTP 101 response")
	}

	logging.Debug("Sent HTTP 101 Switching Protocols response",
		zap.String("remote_addr", remoteAddr),
		zap.Int("bytes_written", n),
	)
	logging.LogHTTPResponse(remoteAddr, http.StatusSwitchingProtocols, map[string]string{
		"Upgrade":              "websocket",
		"Connection":           "Upgrade",
		"Sec-WebSocket-Accept": accept,
	})
	return nil
}

// WriteRejection answers a failed upgrade with status and the error text.
func WriteRejection(w io.Writer, remoteAddr string, status int, cause error) error {
	response := protocol.BuildRejection(status, cause.Error())
	if _, err := w.Write(response); err != nil {
		return protocol.NewTransportError(err, "write HTTP rejection")
	}
	logging.LogHTTPResponse(remoteAddr, status, map[string]string{"Connection": "close"})
	return nil
}

// WritePlainResponse answers a request that did not ask for an upgrade.
func WritePlainResponse(w io.Writer, remoteAddr string) error {
	response := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		fmt.Sprintf("Content-Length: %d\r\n", len(PlainResponseBody)) +
		"Connection: close\r\n" +
		"\r\n" +
		PlainResponseBody
	if _, err := io.WriteString(w, response); err != nil {
		return protocol.NewTransportError(err, "write HTTP response")
	}
	logging.LogHTTPResponse(remoteAddr, http.StatusOK, map[string]string{"Content-Type": "text/plain"})
	return nil
}

// IsUpgradeRequest reports whether the client asked for a WebSocket upgrade
// at all. Requests that did are validated; the rest get the plain response.
func IsUpgradeRequest(req *http.Request) bool {
	return headerContainsToken(req.Header, "Upgrade", "websocket") ||
		req.Header.Get("Sec-WebSocket-Key") != ""
}

// ValidateWebSocketUpgradeRequest checks an upgrade request. On failure it
// returns the HTTP status to answer with and a handshake error.
func ValidateWebSocketUpgradeRequest(req *http.Request) (int, error) {
	if req.Method != http.MethodGet {
		return http.StatusMethodNotAllowed,
			protocol.NewHandshakeError(nil, fmt.Sprintf("invalid method: %s (expected GET)", req.Method))
	}

	if !headerContainsToken(req.Header, "Upgrade", "websocket") {
		return http.StatusBadRequest,
			protocol.NewHandshakeError(nil, fmt.Sprintf("invalid Upgrade header: %q (expected websocket)", req.Header.Get("Upgrade")))
	}

	if !headerContainsToken(req.Header, "Connection", "upgrade") {
		return http.StatusBadRequest,
			protocol.NewHandshakeError(nil, fmt.Sprintf("invalid Connection header: %q (expected upgrade)", req.Header.Get("Connection")))
	}

	if version := req.Header.Get("Sec-WebSocket-Version"); version != protocol.SupportedVersion {
		return http.StatusUpgradeRequired,
			protocol.NewHandshakeError(nil, fmt.Sprintf("unsupported Sec-WebSocket-Version: %q (expected %s)", version, protocol.SupportedVersion))
	}

	if err := protocol.ValidateKey(req.Header.Get("Sec-WebSocket-Key")); err != nil {
		return http.StatusBadRequest, err
	}

	return http.StatusSwitchingProtocols, nil
}

// headerContainsToken checks a comma-separated header for token, ignoring case.
func headerContainsToken(h http.Header, name, token string) bool {
	for _, value := range h.Values(name) {
		for _, part := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

// ReadHTTPRequest reads the upgrade request from br. The same reader must be
// handed to NewConn afterwards; it may already hold the first frame bytes.
func ReadHTTPRequest(br *bufio.Reader) (*http.Request, error) {
	req, err := http.ReadRequest(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read HTTP request: %w", err)
	}
	return req, nil
}

// LogHTTPRequestDetails logs all details of an HTTP request
func LogHTTPRequestDetails(req *http.Request, remoteAddr string) {
	headers := make(map[string]string)
	for key, values := range req.Header {
		headers[key] = strings.Join(values, ", ")
	}

	logging.LogHTTPRequest(remoteAddr, req.Method, req.URL.Path, headers)

	logging.Debug("WebSocket upgrade request details",
		zap.String("remote_addr", remoteAddr),
		zap.String("host", req.Host),
		zap.String("origin", req.Header.Get("Origin")),
		zap.String("sec_websocket_key", req.Header.Get("Sec-WebSocket-Key")),
		zap.String("sec_websocket_version", req.Header.Get("Sec-WebSocket-Version")),
		zap.String("sec_websocket_protocol", req.Header.Get("Sec-WebSocket-Protocol")),
		zap.String("user_agent", req.Header.Get("User-Agent")),
	)
}
