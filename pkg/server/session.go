package server

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-dev/storefront/pkg/protocol"
	"github.com/vango-dev/storefront/pkg/routepath"
	"github.com/vango-dev/storefront/pkg/search"
	"github.com/vango-dev/storefront/pkg/session"
	"github.com/vango-dev/storefront/pkg/urlparam"
	"k8s.io/utils/clock"
)

// Session is one live connection: a search box in a browser tab and the
// synchronizer that drives it. All synchronizer calls run on the session's
// event loop.
type Session struct {
	// Identity
	ID        string
	CreatedAt time.Time
	Resumed   bool

	conn   *websocket.Conn
	config *SessionConfig
	clock  clock.WithTickerAndDelayedExecution
	logger *slog.Logger

	metrics *Metrics
	search  *search.Synchronizer

	// restored is unsettled text carried over from a previous connection.
	restored string

	// location is the page the client shows, "path" or "path?query".
	locMu    sync.Mutex
	location string

	writeMu sync.Mutex

	events     chan func()
	dispatchCh chan func()
	done       chan struct{}
	closeOnce  sync.Once
	closed     atomic.Bool
	lastActive atomic.Int64
	wg         sync.WaitGroup

	onClose func(*Session)
}

// newSession creates a session for a completed handshake. restored may be nil.
func newSession(conn *websocket.Conn, id string, hs *protocol.Handshake, restored *session.State, config *SessionConfig, clk clock.WithTickerAndDelayedExecution, metrics *Metrics, logger *slog.Logger) *Session {
	now := clk.Now()
	s := &Session{
		ID:         id,
		CreatedAt:  now,
		conn:       conn,
		config:     config,
		clock:      clk,
		logger:     logger.With("session_id", id),
		metrics:    metrics,
		location:   urlparam.Parse(hs.Query).WithPath(hs.Path),
		events:     make(chan func(), config.MaxEventQueue),
		dispatchCh: make(chan func(), config.MaxEventQueue),
		done:       make(chan struct{}),
	}
	s.lastActive.Store(now.UnixNano())

	initial := urlparam.Parse(hs.Query)
	if restored != nil {
		s.Resumed = true
		s.restored = restored.Text
	}

	s.search = search.New(initial, urlparam.NavigatorFunc(s.navigate),
		search.WithQuietPeriod(config.QuietPeriod),
		search.WithPath(config.SearchPath),
		search.WithClock(clk),
		search.WithDispatcher(s.Dispatch),
		search.WithLogger(s.logger),
		search.WithOnSettle(metrics.observeSettle),
	)
	return s
}

// generateSessionID creates a cryptographically random session ID.
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("server: crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// Start sends the welcome frame and starts the event and heartbeat loops.
// The mount settle runs as the first dispatched callback.
func (s *Session) Start() error {
	value := s.search.Text()
	if s.Resumed {
		value = s.restored
	}
	if err := s.send(protocol.FrameWelcome, &protocol.Welcome{
		Session: s.ID,
		Value:   value,
		Resumed: s.Resumed,
	}); err != nil {
		return NewSessionError(s.ID, "welcome", err)
	}

	s.wg.Add(2)
	go s.EventLoop()
	go s.heartbeatLoop()

	s.Dispatch(func() {
		if !s.config.SkipMountNavigation {
			s.search.Start()
		}
		if s.Resumed && s.restored != s.search.Text() {
			s.search.Input(s.restored)
		}
	})
	return nil
}

// EventLoop runs queued input events and dispatched callbacks until the
// session closes.
func (s *Session) EventLoop() {
	defer s.wg.Done()
	for {
		select {
		case fn := <-s.events:
			s.execute(fn)

		case fn := <-s.dispatchCh:
			s.execute(fn)

		case <-s.done:
			return
		}
	}
}

// execute runs fn with panic recovery.
func (s *Session) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event panic",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

// QueueEvent queues client-originated work without blocking the read loop.
func (s *Session) QueueEvent(fn func()) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	select {
	case s.events <- fn:
		return nil
	default:
		s.logger.Warn("event queue full, dropping event")
		return ErrEventQueueFull
	}
}

// Dispatch queues fn to run on the session's event loop. It is safe to call
// from any goroutine and blocks until the loop accepts fn or the session
// closes, so debounced settles are never dropped.
func (s *Session) Dispatch(fn func()) {
	if s.closed.Load() {
		return
	}
	select {
	case s.dispatchCh <- fn:
	case <-s.done:
		// Session is closing, discard
	}
}

// Search returns the session's synchronizer.
func (s *Session) Search() *search.Synchronizer {
	return s.search
}

// Location returns the page the client currently shows.
func (s *Session) Location() string {
	s.locMu.Lock()
	defer s.locMu.Unlock()
	return s.location
}

func (s *Session) setLocation(loc string) {
	s.locMu.Lock()
	s.location = loc
	s.locMu.Unlock()
}

// navigate is the synchronizer's navigator. It runs on the event loop.
func (s *Session) navigate(target string) {
	clean, err := routepath.NavTarget(target)
	if err != nil {
		s.logger.Error("refusing navigation", "target", target, "error", err)
		return
	}
	target = clean
	replace := target == s.Location()
	s.setLocation(target)

	data, err := protocol.MarshalNavigate(target, replace)
	if err != nil {
		s.logger.Error("encode navigate", "target", target, "error", err)
		return
	}
	if err := s.sendFrame(data); err != nil {
		s.logger.Warn("navigate not delivered", "target", target, "error", err)
		return
	}
	s.metrics.Navigations.Inc()
	s.logger.Debug("navigate", "target", target, "replace", replace)
}

// State captures what a later connection needs to resume this session.
func (s *Session) State() *session.State {
	path, query := routepath.SplitTarget(s.Location())
	return &session.State{
		Text:    s.search.Text(),
		Path:    path,
		Query:   query,
		SavedAt: s.clock.Now(),
	}
}

// touch records client activity for idle cleanup.
func (s *Session) touch() {
	s.lastActive.Store(s.clock.Now().UnixNano())
}

// LastActive returns the time of the last client input.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// IsClosed reports whether the session has been closed.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close closes the session with a normal closure.
func (s *Session) Close() {
	s.closeWith(websocket.CloseNormalClosure, "")
}

// closeWith cancels any pending settle, stops the loops and closes the
// connection with the given close code. It is idempotent.
func (s *Session) closeWith(code int, reason string) {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.search.Close()
		close(s.done)

		s.writeMu.Lock()
		deadline := time.Now().Add(s.config.WriteTimeout)
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		s.writeMu.Unlock()
		_ = s.conn.Close()

		s.metrics.Coalesced.Add(float64(s.search.Coalesced()))
		s.logger.Debug("session closed", "reason", reason)

		if s.onClose != nil {
			s.onClose(s)
		}
	})
}

// Wait blocks until the session's loops have exited.
func (s *Session) Wait() {
	s.wg.Wait()
}
