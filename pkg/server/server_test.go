package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vango-dev/storefront/pkg/protocol"
	"github.com/vango-dev/storefront/pkg/session"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testQuiet = 40 * time.Millisecond

type testEnv struct {
	srv   *Server
	ts    *httptest.Server
	store *session.MemoryStore
}

func newTestEnv(t *testing.T, mutate func(*ServerConfig)) *testEnv {
	t.Helper()
	store := session.NewMemoryStore()
	cfg := DefaultServerConfig()
	cfg.SessionConfig.QuietPeriod = testQuiet
	cfg.Store = store
	cfg.Registerer = prometheus.NewRegistry()
	if mutate != nil {
		mutate(cfg)
	}
	srv := New(cfg)
	ts := httptest.NewServer(srv.WebSocketHandler())
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		ts.Close()
		_ = store.Close()
	})
	return &testEnv{srv: srv, ts: ts, store: store}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// connect dials and completes the handshake, returning the welcome.
func (e *testEnv) connect(t *testing.T, hs protocol.Handshake) (*websocket.Conn, protocol.Welcome) {
	t.Helper()
	conn := e.dial(t)
	writeMsg(t, conn, protocol.FrameHandshake, &hs)

	f := readFrame(t, conn, time.Second)
	require.Equal(t, protocol.FrameWelcome, f.Type, "first frame")
	var w protocol.Welcome
	require.NoError(t, protocol.Unmarshal(f, &w))
	return conn, w
}

func writeMsg(t *testing.T, conn *websocket.Conn, ft protocol.FrameType, msg any) {
	t.Helper()
	data, err := protocol.Marshal(ft, msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, data))
}

func readFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) *protocol.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	f, err := protocol.DecodeFrame(data)
	require.NoError(t, err)
	return f
}

func readNavigate(t *testing.T, conn *websocket.Conn) (string, bool) {
	t.Helper()
	f := readFrame(t, conn, time.Second)
	require.Equal(t, protocol.FrameNavigate, f.Type)
	var nav protocol.Navigate
	require.NoError(t, protocol.Unmarshal(f, &nav))
	return nav.URL, f.Flags.Has(protocol.FlagReplace)
}

// expectSilence asserts nothing arrives for d. The connection is unusable
// afterwards.
func expectSilence(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))
	_, data, err := conn.ReadMessage()
	if err == nil {
		f, _ := protocol.DecodeFrame(data)
		t.Fatalf("unexpected frame: %+v", f)
	}
	var netErr net.Error
	if !assert.ErrorAs(t, err, &netErr) || !netErr.Timeout() {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestHandshake_NoQueryDoesNotNavigate(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, w := env.connect(t, protocol.Handshake{Path: "/search"})

	assert.NotEmpty(t, w.Session)
	assert.Equal(t, "", w.Value)
	assert.False(t, w.Resumed)
	expectSilence(t, conn, 4*testQuiet)
}

func TestHandshake_QueryNavigatesAndDropsPage(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, w := env.connect(t, protocol.Handshake{Path: "/search", Query: "q=foo&page=2"})

	assert.Equal(t, "foo", w.Value)
	url, replace := readNavigate(t, conn)
	assert.Equal(t, "/search?q=foo", url)
	assert.False(t, replace)
}

func TestHandshake_CanonicalizesPath(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, _ := env.connect(t, protocol.Handshake{Path: "/search/", Query: "q=foo"})

	url, replace := readNavigate(t, conn)
	assert.Equal(t, "/search?q=foo", url)
	assert.True(t, replace, "the page is already at the canonical target")
}

func TestHandshake_SkipMountNavigation(t *testing.T) {
	env := newTestEnv(t, func(c *ServerConfig) { c.SessionConfig.SkipMountNavigation = true })
	conn, _ := env.connect(t, protocol.Handshake{Path: "/search", Query: "q=foo&page=2"})
	expectSilence(t, conn, 4*testQuiet)
}

func TestInput_NavigatesAfterQuietPeriod(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, w := env.connect(t, protocol.Handshake{Path: "/search"})

	writeMsg(t, conn, protocol.FrameInput, &protocol.Input{Value: "shoes"})
	url, _ := readNavigate(t, conn)
	assert.Equal(t, "/search?q=shoes", url)

	sess := env.srv.Sessions().Get(w.Session)
	require.NotNil(t, sess)
	assert.Equal(t, "/search?q=shoes", sess.Location())
	assert.Equal(t, "shoes", sess.Search().Settled())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.srv.Metrics().Navigations))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.srv.Metrics().Settles.WithLabelValues("navigated")))
}

func TestInput_BurstNavigatesOnce(t *testing.T) {
	env := newTestEnv(t, func(c *ServerConfig) { c.SessionConfig.QuietPeriod = 150 * time.Millisecond })
	conn, _ := env.connect(t, protocol.Handshake{Path: "/search", Query: "q=red"})
	url, _ := readNavigate(t, conn)
	require.Equal(t, "/search?q=red", url)

	for _, v := range []string{"red ", "red s", "red sh", "red shoes"} {
		writeMsg(t, conn, protocol.FrameInput, &protocol.Input{Value: v})
	}
	url, _ = readNavigate(t, conn)
	assert.Equal(t, "/search?q=red%20shoes", url)
	expectSilence(t, conn, 300*time.Millisecond)
}

func TestInput_SameValueReplacesHistoryEntry(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, _ := env.connect(t, protocol.Handshake{Path: "/search"})

	writeMsg(t, conn, protocol.FrameInput, &protocol.Input{Value: "hat"})
	url, replace := readNavigate(t, conn)
	assert.Equal(t, "/search?q=hat", url)
	assert.False(t, replace)

	writeMsg(t, conn, protocol.FrameInput, &protocol.Input{Value: "hat"})
	url, replace = readNavigate(t, conn)
	assert.Equal(t, "/search?q=hat", url)
	assert.True(t, replace, "navigating to the current location replaces")
}

func TestLocation_UpdatesParams(t *testing.T) {
	env := newTestEnv(t, func(c *ServerConfig) { c.SessionConfig.SkipMountNavigation = true })
	conn, _ := env.connect(t, protocol.Handshake{Path: "/search", Query: "q=a&sort=price"})

	writeMsg(t, conn, protocol.FrameLocation, &protocol.Location{Path: "/search", Query: "q=a&sort=name&page=4"})
	writeMsg(t, conn, protocol.FrameInput, &protocol.Input{Value: "b"})

	url, _ := readNavigate(t, conn)
	assert.Equal(t, "/search?q=b&sort=name", url)
}

func TestLocation_RejectsEscapingPath(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, _ := env.connect(t, protocol.Handshake{Path: "/search"})

	writeMsg(t, conn, protocol.FrameLocation, &protocol.Location{Path: "/../etc"})
	f := readFrame(t, conn, time.Second)
	require.Equal(t, protocol.FrameError, f.Type)
	var perr protocol.Error
	require.NoError(t, protocol.Unmarshal(f, &perr))
	assert.Equal(t, protocol.ErrBadFrame, perr.Code)
	assert.False(t, perr.Fatal)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.srv.Metrics().FrameErrors.WithLabelValues("path")))
}

func TestControl_PingPong(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, _ := env.connect(t, protocol.Handshake{Path: "/search"})

	writeMsg(t, conn, protocol.FrameControl, &protocol.Control{Type: protocol.ControlPing, Timestamp: 42})
	f := readFrame(t, conn, time.Second)
	require.Equal(t, protocol.FrameControl, f.Type)
	var ctrl protocol.Control
	require.NoError(t, protocol.Unmarshal(f, &ctrl))
	assert.Equal(t, protocol.ControlPong, ctrl.Type)
	assert.Equal(t, int64(42), ctrl.Timestamp)
}

func TestHeartbeat(t *testing.T) {
	env := newTestEnv(t, func(c *ServerConfig) { c.SessionConfig.HeartbeatInterval = 20 * time.Millisecond })
	conn, _ := env.connect(t, protocol.Handshake{Path: "/search"})

	f := readFrame(t, conn, time.Second)
	require.Equal(t, protocol.FrameControl, f.Type)
	var ctrl protocol.Control
	require.NoError(t, protocol.Unmarshal(f, &ctrl))
	assert.Equal(t, protocol.ControlPing, ctrl.Type)
}

func TestBadFrame_KeepsSession(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, _ := env.connect(t, protocol.Handshake{Path: "/search"})

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x7f, 0, 0, 0}))
	f := readFrame(t, conn, time.Second)
	require.Equal(t, protocol.FrameError, f.Type)
	var perr protocol.Error
	require.NoError(t, protocol.Unmarshal(f, &perr))
	assert.Equal(t, protocol.ErrBadFrame, perr.Code)
	assert.False(t, perr.Fatal)

	writeMsg(t, conn, protocol.FrameInput, &protocol.Input{Value: "still here"})
	url, _ := readNavigate(t, conn)
	assert.Equal(t, "/search?q=still%20here", url)
}

func TestHandshake_Rejected(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t)
	writeMsg(t, conn, protocol.FrameInput, &protocol.Input{Value: "too early"})

	f := readFrame(t, conn, time.Second)
	require.Equal(t, protocol.FrameError, f.Type)
	var perr protocol.Error
	require.NoError(t, protocol.Unmarshal(f, &perr))
	assert.Equal(t, protocol.ErrBadHandshake, perr.Code)
	assert.True(t, perr.Fatal)
}

func TestSessionLimit(t *testing.T) {
	env := newTestEnv(t, func(c *ServerConfig) { c.MaxSessions = 1 })
	env.connect(t, protocol.Handshake{Path: "/search"})

	conn := env.dial(t)
	writeMsg(t, conn, protocol.FrameHandshake, &protocol.Handshake{Path: "/search"})
	f := readFrame(t, conn, time.Second)
	require.Equal(t, protocol.FrameError, f.Type)
	var perr protocol.Error
	require.NoError(t, protocol.Unmarshal(f, &perr))
	assert.Equal(t, protocol.ErrSessionLimit, perr.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.srv.Metrics().Sessions.WithLabelValues("rejected")))
}

type touchRecorder struct {
	session.Store

	mu      sync.Mutex
	touched []string
}

func (r *touchRecorder) Touch(ctx context.Context, id string, expiresAt time.Time) error {
	r.mu.Lock()
	r.touched = append(r.touched, id)
	r.mu.Unlock()
	return r.Store.Touch(ctx, id, expiresAt)
}

func (r *touchRecorder) Touched() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.touched...)
}

func TestResume_RejectedByLimitKeepsState(t *testing.T) {
	var rec *touchRecorder
	env := newTestEnv(t, func(c *ServerConfig) {
		c.MaxSessions = 1
		c.SessionConfig.QuietPeriod = time.Minute
		rec = &touchRecorder{Store: c.Store}
		c.Store = rec
	})

	conn, w := env.connect(t, protocol.Handshake{Path: "/search"})
	writeMsg(t, conn, protocol.FrameInput, &protocol.Input{Value: "sca"})
	require.Eventually(t, func() bool {
		s := env.srv.Sessions().Get(w.Session)
		return s != nil && s.Search().Text() == "sca"
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return env.srv.Sessions().Count() == 0 && env.store.Count() == 1
	}, time.Second, 5*time.Millisecond)

	other, _ := env.connect(t, protocol.Handshake{Path: "/search"})

	conn = env.dial(t)
	writeMsg(t, conn, protocol.FrameHandshake, &protocol.Handshake{Path: "/search", Session: w.Session})
	f := readFrame(t, conn, time.Second)
	require.Equal(t, protocol.FrameError, f.Type)
	var perr protocol.Error
	require.NoError(t, protocol.Unmarshal(f, &perr))
	require.Equal(t, protocol.ErrSessionLimit, perr.Code)
	assert.Equal(t, []string{w.Session}, rec.Touched())
	assert.Equal(t, 1, env.store.Count(), "rejected resume must not consume the state")

	require.NoError(t, other.Close())
	require.Eventually(t, func() bool {
		return env.srv.Sessions().Count() == 0
	}, time.Second, 5*time.Millisecond)

	_, w2 := env.connect(t, protocol.Handshake{Path: "/search", Session: w.Session})
	assert.True(t, w2.Resumed)
	assert.Equal(t, w.Session, w2.Session)
	assert.Equal(t, "sca", w2.Value)
}

func TestResume_RestoresUnsettledText(t *testing.T) {
	env := newTestEnv(t, func(c *ServerConfig) { c.SessionConfig.QuietPeriod = time.Minute })
	conn, w := env.connect(t, protocol.Handshake{Path: "/search", Query: "sort=price"})

	writeMsg(t, conn, protocol.FrameInput, &protocol.Input{Value: "boo"})
	require.Eventually(t, func() bool {
		s := env.srv.Sessions().Get(w.Session)
		return s != nil && s.Search().Text() == "boo"
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return env.srv.Sessions().Count() == 0 && env.store.Count() == 1
	}, time.Second, 5*time.Millisecond)

	_, w2 := env.connect(t, protocol.Handshake{Path: "/search", Query: "sort=price", Session: w.Session})
	assert.Equal(t, w.Session, w2.Session)
	assert.True(t, w2.Resumed)
	assert.Equal(t, "boo", w2.Value)
	assert.Equal(t, 0, env.store.Count(), "resumed state is consumed")

	require.Eventually(t, func() bool {
		s := env.srv.Sessions().Get(w.Session)
		return s != nil && s.Search().Text() == "boo" && s.Search().Pending()
	}, time.Second, 5*time.Millisecond)
}

func TestResume_OtherPageUsesURL(t *testing.T) {
	env := newTestEnv(t, func(c *ServerConfig) {
		c.SessionConfig.QuietPeriod = time.Minute
		c.SessionConfig.SkipMountNavigation = true
	})
	conn, w := env.connect(t, protocol.Handshake{Path: "/search"})
	writeMsg(t, conn, protocol.FrameInput, &protocol.Input{Value: "boo"})
	require.Eventually(t, func() bool {
		s := env.srv.Sessions().Get(w.Session)
		return s != nil && s.Search().Text() == "boo"
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return env.store.Count() == 1 }, time.Second, 5*time.Millisecond)

	_, w2 := env.connect(t, protocol.Handshake{Path: "/search", Query: "q=boots", Session: w.Session})
	assert.True(t, w2.Resumed)
	assert.Equal(t, "boots", w2.Value)
}

func TestResume_UnknownSessionStartsFresh(t *testing.T) {
	env := newTestEnv(t, nil)
	_, w := env.connect(t, protocol.Handshake{Path: "/search", Session: "gone"})
	assert.NotEqual(t, "gone", w.Session)
	assert.False(t, w.Resumed)
}

func TestShutdown_PersistsAndNotifies(t *testing.T) {
	env := newTestEnv(t, func(c *ServerConfig) { c.SessionConfig.QuietPeriod = time.Minute })
	conn, w := env.connect(t, protocol.Handshake{Path: "/search"})
	writeMsg(t, conn, protocol.FrameInput, &protocol.Input{Value: "half"})
	require.Eventually(t, func() bool {
		s := env.srv.Sessions().Get(w.Session)
		return s != nil && s.Search().Text() == "half"
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, env.srv.Shutdown(context.Background()))

	f := readFrame(t, conn, time.Second)
	require.Equal(t, protocol.FrameError, f.Type)
	var perr protocol.Error
	require.NoError(t, protocol.Unmarshal(f, &perr))
	assert.Equal(t, protocol.ErrServerClosing, perr.Code)

	data, err := env.store.Load(context.Background(), w.Session)
	require.NoError(t, err)
	require.NotNil(t, data)
	state, err := session.DecodeState(data)
	require.NoError(t, err)
	assert.Equal(t, "half", state.Text)
	assert.Equal(t, "/search", state.Path)

	require.Eventually(t, func() bool { return env.srv.Sessions().Count() == 0 }, time.Second, 5*time.Millisecond)

	conn2 := env.dial(t)
	writeMsg(t, conn2, protocol.FrameHandshake, &protocol.Handshake{Path: "/search"})
	f = readFrame(t, conn2, time.Second)
	require.Equal(t, protocol.FrameError, f.Type)
}

func TestCleanupIdle(t *testing.T) {
	env := newTestEnv(t, func(c *ServerConfig) { c.SessionConfig.IdleTimeout = time.Millisecond })
	conn, _ := env.connect(t, protocol.Handshake{Path: "/search"})

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, env.srv.Sessions().CleanupIdle())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Equal(t, uint64(1), env.srv.Sessions().Stats().TotalClosed)
}

func TestServeHTTP_DelegatesToHandler(t *testing.T) {
	srv := New(&ServerConfig{Registerer: prometheus.NewRegistry()})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	srv.SetHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
