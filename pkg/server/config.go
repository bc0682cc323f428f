package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vango-dev/storefront/pkg/search"
	"github.com/vango-dev/storefront/pkg/session"
	"k8s.io/utils/clock"
)

// SessionConfig holds per-session configuration.
type SessionConfig struct {
	// SearchPath is the results page settles navigate to.
	// Default: "/search".
	SearchPath string

	// QuietPeriod is the search debounce delay.
	// Default: 400ms.
	QuietPeriod time.Duration

	// SkipMountNavigation suppresses the settle that runs when a session
	// opens on a page that already carries a query.
	SkipMountNavigation bool

	// ReadTimeout is how long to wait for any frame from the client,
	// including heartbeat pongs.
	// Default: 60 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the deadline for a single frame write.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// HandshakeTimeout is the deadline for the first frame after upgrade.
	// Default: 5 seconds.
	HandshakeTimeout time.Duration

	// HeartbeatInterval is the time between heartbeat pings.
	// Default: 30 seconds.
	HeartbeatInterval time.Duration

	// IdleTimeout closes sessions that sent no input for this long.
	// Zero disables idle cleanup.
	// Default: 30 minutes.
	IdleTimeout time.Duration

	// MaxMessageSize is the maximum WebSocket message size in bytes.
	// Default: 16KB.
	MaxMessageSize int64

	// MaxEventQueue is the capacity of the session event queue.
	// Default: 64.
	MaxEventQueue int

	// ResumeWindow is how long a closed session's state stays resumable.
	// Default: 5 minutes.
	ResumeWindow time.Duration
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		SearchPath:        search.DefaultPath,
		QuietPeriod:       search.DefaultQuietPeriod,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HandshakeTimeout:  5 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		IdleTimeout:       30 * time.Minute,
		MaxMessageSize:    16 * 1024,
		MaxEventQueue:     64,
		ResumeWindow:      5 * time.Minute,
	}
}

// Clone returns a copy of the SessionConfig.
func (c *SessionConfig) Clone() *SessionConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// fill replaces zero values with defaults.
func (c *SessionConfig) fill() {
	d := DefaultSessionConfig()
	if c.SearchPath == "" {
		c.SearchPath = d.SearchPath
	}
	if c.QuietPeriod <= 0 {
		c.QuietPeriod = d.QuietPeriod
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.MaxEventQueue <= 0 {
		c.MaxEventQueue = d.MaxEventQueue
	}
	if c.ResumeWindow <= 0 {
		c.ResumeWindow = d.ResumeWindow
	}
}

// ServerConfig holds server-wide configuration.
type ServerConfig struct {
	// Address is the TCP address to listen on.
	// Default: ":8080".
	Address string

	// ReadTimeout and WriteTimeout bound plain HTTP requests.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// IdleTimeout is the keep-alive timeout for HTTP connections.
	IdleTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30 seconds.
	ShutdownTimeout time.Duration

	// MaxSessions caps concurrent live sessions. Zero means no limit.
	MaxSessions int

	// ReadBufferSize and WriteBufferSize size the WebSocket buffers.
	ReadBufferSize  int
	WriteBufferSize int

	// CheckOrigin validates the WebSocket Origin header.
	// Default: SameOriginCheck.
	CheckOrigin func(r *http.Request) bool

	// SessionConfig is the per-session configuration.
	SessionConfig *SessionConfig

	// Store persists session state for resume. Default: an in-memory store.
	Store session.Store

	// Registerer receives the server's prometheus collectors.
	// Default: a private registry.
	Registerer prometheus.Registerer

	// MetricsNamespace prefixes metric names.
	// Default: "storefront".
	MetricsNamespace string

	// Clock drives debouncing, heartbeats and idle cleanup.
	// Default: the real clock.
	Clock clock.WithTickerAndDelayedExecution

	// Logger is the base logger. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:          ":8080",
		ReadTimeout:      15 * time.Second,
		WriteTimeout:     15 * time.Second,
		IdleTimeout:      60 * time.Second,
		ShutdownTimeout:  30 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      SameOriginCheck,
		SessionConfig:    DefaultSessionConfig(),
		MetricsNamespace: "storefront",
	}
}

// SameOriginCheck accepts requests without an Origin header and requests
// whose Origin host matches the request Host.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := r.Host
	if host == "" {
		return false
	}

	// Compare the host portion (includes port if present)
	return originURL.Host == host
}

// Clone returns a copy of the ServerConfig.
func (c *ServerConfig) Clone() *ServerConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.SessionConfig != nil {
		clone.SessionConfig = c.SessionConfig.Clone()
	}
	return &clone
}

// WithAddress sets the server address and returns the config for chaining.
func (c *ServerConfig) WithAddress(addr string) *ServerConfig {
	c.Address = addr
	return c
}

// WithSessionConfig sets the session configuration and returns the config for chaining.
func (c *ServerConfig) WithSessionConfig(sc *SessionConfig) *ServerConfig {
	c.SessionConfig = sc
	return c
}

// WithMaxSessions sets the maximum sessions and returns the config for chaining.
func (c *ServerConfig) WithMaxSessions(max int) *ServerConfig {
	c.MaxSessions = max
	return c
}

// WithStore sets the resume store and returns the config for chaining.
func (c *ServerConfig) WithStore(store session.Store) *ServerConfig {
	c.Store = store
	return c
}
