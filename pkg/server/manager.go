package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-dev/storefront/pkg/protocol"
	"github.com/vango-dev/storefront/pkg/search"
	"github.com/vango-dev/storefront/pkg/session"
	"github.com/vango-dev/storefront/pkg/urlparam"
	"k8s.io/utils/clock"
)

// SessionManager tracks live sessions, enforces the session limit and
// persists session state so a reconnecting client can resume.
type SessionManager struct {
	// Sessions map protected by RWMutex
	sessions map[string]*Session
	mu       sync.RWMutex

	// Configuration
	config      *SessionConfig
	maxSessions int

	store     session.Store
	ownsStore bool
	clock     clock.WithTickerAndDelayedExecution
	metrics   *Metrics

	// Cleanup
	cleanupInterval time.Duration
	done            chan struct{}
	cleanupDone     chan struct{}
	closing         atomic.Bool

	// Counters
	totalCreated atomic.Uint64
	totalResumed atomic.Uint64
	totalClosed  atomic.Uint64
	peakSessions int

	logger *slog.Logger
}

// ManagerOptions configures a SessionManager. Zero fields take defaults.
type ManagerOptions struct {
	// MaxSessions caps concurrent sessions; 0 means no limit.
	MaxSessions int

	// Store persists session state. Default: a MemoryStore.
	Store session.Store

	// CleanupInterval is how often idle sessions are swept.
	// Default: 30 seconds.
	CleanupInterval time.Duration

	Clock   clock.WithTickerAndDelayedExecution
	Metrics *Metrics
}

// ManagerStats is a snapshot of session counters.
type ManagerStats struct {
	Active       int
	Peak         int
	TotalCreated uint64
	TotalResumed uint64
	TotalClosed  uint64
}

// NewSessionManager creates a SessionManager and starts its cleanup loop.
func NewSessionManager(config *SessionConfig, logger *slog.Logger, opts ManagerOptions) *SessionManager {
	if config == nil {
		config = DefaultSessionConfig()
	}
	config.fill()
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	ownsStore := false
	if opts.Store == nil {
		opts.Store = session.NewMemoryStore(session.WithMemoryClock(opts.Clock))
		ownsStore = true
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil, "storefront")
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = 30 * time.Second
	}

	sm := &SessionManager{
		sessions:        make(map[string]*Session),
		config:          config,
		maxSessions:     opts.MaxSessions,
		store:           opts.Store,
		ownsStore:       ownsStore,
		clock:           opts.Clock,
		metrics:         opts.Metrics,
		cleanupInterval: opts.CleanupInterval,
		done:            make(chan struct{}),
		cleanupDone:     make(chan struct{}),
		logger:          logger.With("component", "session_manager"),
	}
	go sm.cleanupLoop()
	return sm
}

// Open creates a session for a completed handshake. When the handshake
// names a session whose state is still stored, that session is resumed: it
// keeps its id and, if the client shows the same page, its unsettled text.
func (sm *SessionManager) Open(ctx context.Context, conn *websocket.Conn, hs *protocol.Handshake) (*Session, error) {
	if sm.closing.Load() {
		return nil, ErrServerClosing
	}

	id, restored := sm.restore(ctx, hs)

	sm.mu.Lock()
	if sm.maxSessions > 0 && len(sm.sessions) >= sm.maxSessions {
		sm.mu.Unlock()
		sm.metrics.Sessions.WithLabelValues("rejected").Inc()
		if restored != nil {
			// Keep the saved state resumable for the client's next attempt.
			expiresAt := sm.clock.Now().Add(sm.config.ResumeWindow)
			if err := sm.store.Touch(ctx, id, expiresAt); err != nil {
				sm.logger.Warn("session touch failed", "session_id", id, "error", err)
			}
		}
		return nil, ErrSessionLimit
	}
	if _, live := sm.sessions[id]; live {
		// The same id is already connected, e.g. a duplicated tab.
		id = generateSessionID()
		restored = nil
	}
	s := newSession(conn, id, hs, restored, sm.config, sm.clock, sm.metrics, sm.logger)
	s.onClose = sm.remove
	sm.sessions[id] = s
	if len(sm.sessions) > sm.peakSessions {
		sm.peakSessions = len(sm.sessions)
	}
	sm.mu.Unlock()

	if restored != nil {
		if err := sm.store.Delete(ctx, id); err != nil {
			sm.logger.Warn("session delete failed", "session_id", id, "error", err)
		}
	}

	sm.totalCreated.Add(1)
	sm.metrics.SessionsActive.Inc()
	if s.Resumed {
		sm.totalResumed.Add(1)
		sm.metrics.Sessions.WithLabelValues("resumed").Inc()
	} else {
		sm.metrics.Sessions.WithLabelValues("new").Inc()
	}
	sm.logger.Debug("session opened", "session_id", id, "resumed", s.Resumed, "path", hs.Path)
	return s, nil
}

// restore looks up a resumable state for hs. It returns the id the new
// session should use and the state to restore, or nil when there is none.
// When the stored page differs from the page the client shows, the URL's
// query replaces the saved text. The stored copy stays in place until Open
// accepts the session.
func (sm *SessionManager) restore(ctx context.Context, hs *protocol.Handshake) (string, *session.State) {
	if hs.Session == "" {
		return generateSessionID(), nil
	}

	data, err := sm.store.Load(ctx, hs.Session)
	if err != nil {
		sm.logger.Warn("session load failed", "session_id", hs.Session, "error", err)
		return generateSessionID(), nil
	}
	if data == nil {
		return generateSessionID(), nil
	}
	state, err := session.DecodeState(data)
	if err != nil {
		sm.logger.Warn("discarding unreadable session state", "session_id", hs.Session, "error", err)
		_ = sm.store.Delete(ctx, hs.Session)
		return generateSessionID(), nil
	}
	if state.Path != hs.Path || !urlparam.Parse(state.Query).Equal(urlparam.Parse(hs.Query)) {
		// Another page was loaded since; its URL wins over the saved text.
		state.Text = urlparam.Parse(hs.Query).Get(search.QueryParam)
	}
	return hs.Session, state
}

// remove is called once when a session closes.
func (sm *SessionManager) remove(s *Session) {
	sm.mu.Lock()
	if cur, ok := sm.sessions[s.ID]; ok && cur == s {
		delete(sm.sessions, s.ID)
	}
	sm.mu.Unlock()

	sm.totalClosed.Add(1)
	sm.metrics.SessionsActive.Dec()

	if sm.closing.Load() {
		// Shutdown persists all sessions in one batch.
		return
	}
	if err := sm.persist(context.Background(), s); err != nil {
		sm.logger.Warn("session persist failed", "session_id", s.ID, "error", err)
	}
}

func (sm *SessionManager) persist(ctx context.Context, s *Session) error {
	data, err := s.State().Encode()
	if err != nil {
		return err
	}
	return sm.store.Save(ctx, s.ID, data, sm.clock.Now().Add(sm.config.ResumeWindow))
}

// Get returns the live session with id, or nil.
func (sm *SessionManager) Get(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// Count returns the number of live sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Stats returns a snapshot of session counters.
func (sm *SessionManager) Stats() ManagerStats {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return ManagerStats{
		Active:       len(sm.sessions),
		Peak:         sm.peakSessions,
		TotalCreated: sm.totalCreated.Load(),
		TotalResumed: sm.totalResumed.Load(),
		TotalClosed:  sm.totalClosed.Load(),
	}
}

func (sm *SessionManager) snapshot() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s)
	}
	return out
}

// cleanupLoop periodically closes idle sessions.
func (sm *SessionManager) cleanupLoop() {
	defer close(sm.cleanupDone)

	ticker := sm.clock.NewTicker(sm.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			sm.CleanupIdle()
		case <-sm.done:
			return
		}
	}
}

// CleanupIdle closes sessions that have sent no input within the idle
// timeout. It returns the number of sessions closed.
func (sm *SessionManager) CleanupIdle() int {
	if sm.config.IdleTimeout <= 0 {
		return 0
	}
	cutoff := sm.clock.Now().Add(-sm.config.IdleTimeout)
	closed := 0
	for _, s := range sm.snapshot() {
		if s.LastActive().Before(cutoff) {
			s.closeWith(websocket.CloseGoingAway, "idle")
			closed++
		}
	}
	if closed > 0 {
		sm.logger.Info("closed idle sessions", "count", closed)
	}
	return closed
}

// Shutdown persists every live session in one batch, then closes them and
// stops the cleanup loop. New sessions are refused from the first call.
func (sm *SessionManager) Shutdown(ctx context.Context) error {
	if !sm.closing.CompareAndSwap(false, true) {
		return nil
	}
	close(sm.done)

	sessions := sm.snapshot()
	batch := make(map[string]session.Data, len(sessions))
	expires := sm.clock.Now().Add(sm.config.ResumeWindow)
	for _, s := range sessions {
		data, err := s.State().Encode()
		if err != nil {
			sm.logger.Warn("session encode failed", "session_id", s.ID, "error", err)
			continue
		}
		batch[s.ID] = session.Data{Data: data, ExpiresAt: expires}
	}

	var errs []error
	if len(batch) > 0 {
		if err := sm.store.SaveAll(ctx, batch); err != nil {
			errs = append(errs, fmt.Errorf("persist sessions: %w", err))
		}
	}

	for _, s := range sessions {
		s.sendError(protocol.ErrServerClosing, "server is shutting down", true)
		s.closeWith(websocket.CloseGoingAway, string(protocol.ErrServerClosing))
	}

	select {
	case <-sm.cleanupDone:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	if sm.ownsStore {
		if err := sm.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	sm.logger.Info("session manager stopped", "persisted", len(batch))
	return errors.Join(errs...)
}
