package server

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/muurk/rawws/internal/config"
	"github.com/muurk/rawws/internal/logging"
	"github.com/muurk/rawws/internal/protocol"
	"github.com/muurk/rawws/internal/transport"
	"go.uber.org/zap"
)

// Server accepts TCP (or TLS) connections, performs the upgrade handshake and
// runs one Conn per client.
type Server struct {
	config    *config.Config
	handler   Handler
	connCfg   ConnConfig
	tlsConfig *tls.Config

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu          sync.Mutex
	activeConns map[net.Conn]struct{}
}

// New creates a Server for cfg. The configuration must not be modified
// afterwards.
func New(cfg *config.Config, handler Handler) (*Server, error) {
	if handler == nil {
		return nil, errors.New("server: nil handler")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var tlsConfig *tls.Config
	if cfg.TLS.Enabled() {
		var err error
		tlsConfig, err = NewTLSConfig(cfg.TLS.Cert, cfg.TLS.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
	}

	capture, err := NewCapture(cfg.CaptureDir)
	if err != nil {
		return nil, err
	}

	connCfg := NewConnConfig(cfg)
	connCfg.Capture = capture

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:      cfg,
		handler:     handler,
		connCfg:     connCfg,
		tlsConfig:   tlsConfig,
		ctx:         ctx,
		cancel:      cancel,
		activeConns: make(map[net.Conn]struct{}),
	}, nil
}

// OnPong registers a callback invoked for every Pong frame on every
// connection. Call it before Listen.
func (s *Server) OnPong(fn func(s Sender, payload []byte)) {
	s.connCfg.OnPong = fn
}

// Listen opens the listening socket.
func (s *Server) Listen() error {
	addr := s.config.Addr()

	var listener net.Listener
	var err error
	if s.tlsConfig != nil {
		logging.Info("TLS Configuration", zap.Any("tls_info", GetTLSInfo(s.tlsConfig)))
		listener, err = tls.Listen("tcp", addr, s.tlsConfig)
	} else {
		listener, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	logging.Info("Server listening for connections",
		zap.String("addr", listener.Addr().String()),
		zap.Bool("tls", s.tlsConfig != nil),
	)
	return nil
}

// Addr returns the listener address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start listens (unless Listen was already called), serves and blocks until
// SIGINT/SIGTERM or an accept error.
func (s *Server) Start() error {
	logging.Info("Starting rawws server",
		zap.String("addr", s.config.Addr()),
		zap.Uint64("max_message_size", s.config.Limits.MaxMessageSize),
		zap.Duration("idle_timeout", s.config.Timeouts.Idle),
		zap.String("oversized_policy", s.config.Policy.Oversized),
		zap.String("capture_dir", s.connCfg.Capture.Dir()),
	)

	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Serve()
	}()

	select {
	case <-sigChan:
		logging.Info("Shutdown signal received, stopping server...")
		ctx := context.Background()
		if d := s.config.Timeouts.Shutdown; d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return s.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

// Serve accepts connections on the listener opened by Listen until it is
// closed. It returns nil after Shutdown.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("server: Serve called before Listen")
	}

	var backoff time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			backoff = nextBackoff(backoff)
			logging.Error("Failed to accept connection",
				zap.Duration("retry_in", backoff),
				zap.Error(err),
			)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		return time.Second
	}
	return d
}

// handleConnection runs the handshake and the frame loop for one socket. A
// panic anywhere below is contained to this connection.
func (s *Server) handleConnection(conn net.Conn) {
	remoteAddr := conn.RemoteAddr().String()

	s.track(conn)
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Connection goroutine panicked",
				zap.String("remote_addr", remoteAddr),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
		_ = conn.Close()
		s.untrack(conn)
		logging.LogConnection(remoteAddr, "connection_closed")
	}()

	logging.LogConnection(remoteAddr, "connection_accepted")

	if err := conn.SetDeadline(time.Now().Add(s.config.Timeouts.Handshake)); err != nil {
		logging.Warn("Failed to set handshake deadline", zap.String("remote_addr", remoteAddr), zap.Error(err))
		return
	}

	if tlsConn, ok := conn.(*tls.Conn); ok {
		if err := tlsConn.HandshakeContext(s.ctx); err != nil {
			logging.Warn("TLS handshake failed",
				zap.String("remote_addr", remoteAddr),
				zap.Error(err),
			)
			return
		}
		logging.LogTLSHandshake(remoteAddr, tlsConn.ConnectionState())
	}

	br := bufio.NewReaderSize(conn, transport.DefaultBufferSize)
	req, err := ReadHTTPRequest(br)
	if err != nil {
		logging.Warn("Failed to read HTTP request",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
		return
	}
	LogHTTPRequestDetails(req, remoteAddr)

	if !IsUpgradeRequest(req) {
		if err := WritePlainResponse(conn, remoteAddr); err != nil {
			logging.Warn("Failed to answer plain HTTP request", zap.String("remote_addr", remoteAddr), zap.Error(err))
		}
		return
	}

	if status, err := ValidateWebSocketUpgradeRequest(req); err != nil {
		logging.Warn("Rejected WebSocket upgrade request",
			zap.String("remote_addr", remoteAddr),
			zap.Int("status", status),
			zap.Error(err),
		)
		if werr := WriteRejection(conn, remoteAddr, status, err); werr != nil {
			logging.Debug("Failed to write rejection", zap.String("remote_addr", remoteAddr), zap.Error(werr))
		}
		return
	}

	accept, err := protocol.Accept(req.Header.Get("Sec-WebSocket-Key"))
	if err != nil {
		return
	}
	if err := WriteHandshakeResponse(conn, remoteAddr, accept); err != nil {
		logging.Warn("Failed to send HTTP 101 response",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
		return
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		return
	}

	wsConn := NewConn(conn, br, s.handler, s.connCfg)
	if err := wsConn.Serve(s.ctx); err != nil {
		logging.Warn("WebSocket connection ended with error",
			zap.String("conn_id", wsConn.ID()),
			zap.String("remote_addr", remoteAddr),
			zap.Stringer("kind", protocol.TypeOf(err)),
			zap.Error(err),
		)
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.activeConns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.activeConns, conn)
	s.mu.Unlock()
}

// Shutdown stops accepting, sends Close 1001 to every upgraded connection and
// waits for connection goroutines until ctx expires. Connections still open
// then are closed forcibly.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logging.Error("Error closing listener", zap.Error(err))
		}
	}

	// Serving connections watch s.ctx and send Close 1001 themselves.
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		logging.Info("All connections closed gracefully")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close",
			zap.Int("remaining", s.ActiveConnections()),
		)
		s.mu.Lock()
		for conn := range s.activeConns {
			_ = conn.Close()
		}
		s.mu.Unlock()
		err = ctx.Err()
	}

	logging.Sync()
	return err
}

// ActiveConnections returns the number of open sockets, upgraded or not.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}
