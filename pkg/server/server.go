package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/vango-dev/storefront/pkg/protocol"
	"k8s.io/utils/clock"
)

// Server hosts the live search sessions and serves the page handler.
type Server struct {
	config   *ServerConfig
	upgrader websocket.Upgrader
	sessions *SessionManager
	metrics  *Metrics

	mu         sync.RWMutex
	handler    http.Handler
	httpServer *http.Server

	logger *slog.Logger
}

// New creates a Server. A nil config uses DefaultServerConfig.
func New(config *ServerConfig) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	config = config.Clone()
	if config.SessionConfig == nil {
		config.SessionConfig = DefaultSessionConfig()
	}
	config.SessionConfig.fill()
	if config.CheckOrigin == nil {
		config.CheckOrigin = SameOriginCheck
	}
	if config.Clock == nil {
		config.Clock = clock.RealClock{}
	}
	if config.MetricsNamespace == "" {
		config.MetricsNamespace = "storefront"
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultServerConfig().ShutdownTimeout
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics := NewMetrics(config.Registerer, config.MetricsNamespace)

	return &Server{
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		sessions: NewSessionManager(config.SessionConfig, logger, ManagerOptions{
			MaxSessions: config.MaxSessions,
			Store:       config.Store,
			Clock:       config.Clock,
			Metrics:     metrics,
		}),
		metrics: metrics,
		logger:  logger.With("component", "server"),
	}
}

// SetHandler sets the handler for page requests.
func (s *Server) SetHandler(h http.Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s
}

// WebSocketHandler returns the live session endpoint for mounting on a router.
func (s *Server) WebSocketHandler() http.Handler {
	return http.HandlerFunc(s.HandleWebSocket)
}

// ServeHTTP delegates to the page handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	h := s.handler
	s.mu.RUnlock()
	if h == nil {
		http.NotFound(w, r)
		return
	}
	h.ServeHTTP(w, r)
}

// HandleWebSocket upgrades the request, performs the handshake and runs the
// session until the client goes away.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already replied with an HTTP error.
		s.logger.Debug("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	sc := s.config.SessionConfig
	conn.SetReadLimit(sc.MaxMessageSize)

	hs, err := readHandshake(conn, sc.HandshakeTimeout)
	if err != nil {
		s.metrics.FrameErrors.WithLabelValues("handshake").Inc()
		s.logger.Debug("handshake failed", "error", err, "remote", r.RemoteAddr)
		_ = writeError(conn, sc.WriteTimeout, protocol.ErrBadHandshake, "expected handshake frame")
		_ = conn.Close()
		return
	}

	sess, err := s.sessions.Open(r.Context(), conn, hs)
	if err != nil {
		code := protocol.ErrBadHandshake
		switch {
		case errors.Is(err, ErrSessionLimit):
			code = protocol.ErrSessionLimit
		case errors.Is(err, ErrServerClosing):
			code = protocol.ErrServerClosing
		}
		s.logger.Warn("session rejected", "error", err, "remote", r.RemoteAddr)
		_ = writeError(conn, sc.WriteTimeout, code, err.Error())
		_ = conn.Close()
		return
	}

	if err := sess.Start(); err != nil {
		s.logger.Warn("session start failed", "error", err)
		sess.Close()
		sess.Wait()
		return
	}

	sess.ReadLoop()
	sess.Wait()
}

// Run listens on the configured address until ctx is cancelled or the
// process receives SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         s.config.Address,
		Handler:      s,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", s.config.Address)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err

	case <-ctx.Done():
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown persists and closes all sessions, then stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.sessions.Shutdown(ctx); err != nil {
		s.logger.Error("session shutdown error", "error", err)
		errs = append(errs, err)
	}

	s.mu.RLock()
	httpServer := s.httpServer
	s.mu.RUnlock()
	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			errs = append(errs, err)
		}
	}

	s.logger.Info("server shutdown complete")
	return errors.Join(errs...)
}

// Sessions returns the session manager.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Config returns the server configuration.
func (s *Server) Config() *ServerConfig {
	return s.config
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}
