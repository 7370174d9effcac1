package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitealert/internal/eventbus"
	"sitealert/internal/notification"
	"sitealert/internal/session"
	logx "sitealert/pkg/logx"
)

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool { t.stopped = true; return true }

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) after(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, fn: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *fakeScheduler) last() *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[len(s.timers)-1]
}

func (s *fakeScheduler) delaysMS() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, t.delay.Milliseconds())
	}
	return out
}

type failingDialer struct {
	mu    sync.Mutex
	dials int
}

func (d *failingDialer) DialContext(context.Context, string, http.Header) (Conn, error) {
	d.mu.Lock()
	d.dials++
	d.mu.Unlock()
	return nil, errors.New("connection refused")
}

func (d *failingDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func waitState(t *testing.T, a *Adapter, s State) {
	t.Helper()
	require.Eventually(t, func() bool { return a.Status().State == s }, 2*time.Second, 2*time.Millisecond)
}

func TestReconnectBackoffSequence(t *testing.T) {
	t.Parallel()
	sched := &fakeScheduler{}
	dialer := &failingDialer{}
	a := New(Config{URL: "ws://dash.invalid/ws"}, nil,
		WithDialer(dialer), WithAfterFunc(sched.after), WithLogger(logx.Nop()))

	require.NoError(t, a.Connect())
	for i := 1; i <= 5; i++ {
		require.Eventually(t, func() bool { return sched.count() == i }, 2*time.Second, 2*time.Millisecond)
		assert.Equal(t, StateBackoff, a.Status().State)
		sched.last().fn()
	}

	waitState(t, a, StateDisconnected)
	assert.Equal(t, []int64{2000, 4000, 8000, 16000, 32000}, sched.delaysMS())
	assert.Equal(t, 6, dialer.count())
	st := a.Status()
	assert.True(t, st.Exhausted)
	assert.Equal(t, CloseAbnormal, st.LastClose)

	// a manual connect starts a fresh budget
	require.NoError(t, a.Connect())
	require.Eventually(t, func() bool { return sched.count() == 6 }, 2*time.Second, 2*time.Millisecond)
	assert.Equal(t, int64(2000), sched.last().delay.Milliseconds())
	assert.False(t, a.Status().Exhausted)
	a.Disconnect()
}

func TestStaleTimerDoesNotDial(t *testing.T) {
	t.Parallel()
	sched := &fakeScheduler{}
	dialer := &failingDialer{}
	a := New(Config{URL: "ws://dash.invalid/ws"}, nil, WithDialer(dialer), WithAfterFunc(sched.after))

	require.NoError(t, a.Connect())
	require.Eventually(t, func() bool { return sched.count() == 1 }, 2*time.Second, 2*time.Millisecond)
	tm := sched.last()

	a.Disconnect()
	assert.True(t, tm.stopped)
	tm.fn()
	assert.Equal(t, 1, dialer.count())
	assert.Equal(t, StateDisconnected, a.Status().State)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := eventbus.SubscribePrefix(bus, 32, EventState)
	defer unsub()
	conn := newScriptedConn()
	a := New(Config{URL: "ws://dash.invalid/ws"}, nil, WithDialer(scriptedDialer{conn}), WithBus(bus))

	require.NoError(t, a.Connect())
	waitState(t, a, StateConnected)
	drain(events)

	a.Disconnect()
	a.Disconnect()

	assert.Equal(t, 1, conn.closes())
	assert.Equal(t, 1, conn.controlFrames())
	assert.Equal(t, StateDisconnected, a.Status().State)
	assert.Len(t, drain(events), 1)
	assert.False(t, a.SendPing())
}

func TestConnectionEstablishedResetsAttempts(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	frames, unsub := eventbus.SubscribePrefix(bus, 8, EventFrame)
	defer unsub()
	conn := newScriptedConn()
	a := New(Config{URL: "ws://dash.invalid/ws"}, nil, WithDialer(scriptedDialer{conn}), WithBus(bus))

	require.NoError(t, a.Connect())
	waitState(t, a, StateConnected)
	a.mu.Lock()
	a.attempts = 3
	a.mu.Unlock()

	conn.push(`{"type":"pong"}`)
	select {
	case e := <-frames:
		assert.Equal(t, TypePong, e.Data.(FrameEvent).Type)
	case <-time.After(2 * time.Second):
		t.Fatal("pong frame not handled")
	}
	assert.Equal(t, 3, a.Status().Attempts)

	conn.push(`{"type":"connection_established","message":"welcome"}`)
	require.Eventually(t, func() bool { return a.Status().Attempts == 0 }, 2*time.Second, 2*time.Millisecond)
	a.Disconnect()
}

func TestDisconnectBeforeConnectIsNoop(t *testing.T) {
	t.Parallel()
	a := New(Config{URL: "ws://dash.invalid/ws"}, nil)
	a.Disconnect()
	a.Disconnect()
	assert.Equal(t, StateDisconnected, a.Status().State)
}

func TestConnectRequiresSessionAndURL(t *testing.T) {
	t.Parallel()
	assert.ErrorIs(t, New(Config{}, nil).Connect(), ErrNoURL)
	m := session.New(nil, logx.Nop())
	assert.ErrorIs(t, New(Config{URL: "ws://x"}, nil, WithSession(m)).Connect(), ErrNotAuthenticated)
}

func drain(ch <-chan eventbus.Event) []eventbus.Event {
	var out []eventbus.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		case <-time.After(50 * time.Millisecond):
			return out
		}
	}
}

// scriptedConn returns pushed frames from reads and blocks until closed.
type scriptedConn struct {
	mu       sync.Mutex
	in       chan []byte
	done     chan struct{}
	nClose   int
	nControl int
	writes   [][]byte
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{in: make(chan []byte, 8), done: make(chan struct{})}
}

func (c *scriptedConn) push(frame string) { c.in <- []byte(frame) }

func (c *scriptedConn) ReadMessage() (int, []byte, error) {
	select {
	case b := <-c.in:
		return websocket.TextMessage, b, nil
	case <-c.done:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *scriptedConn) WriteMessage(_ int, b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, b)
	return nil
}

func (c *scriptedConn) WriteControl(int, []byte, time.Time) error {
	c.mu.Lock()
	c.nControl++
	c.mu.Unlock()
	return nil
}

func (c *scriptedConn) SetWriteDeadline(time.Time) error { return nil }

func (c *scriptedConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nClose++
	if c.nClose == 1 {
		close(c.done)
	}
	return nil
}

func (c *scriptedConn) closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nClose
}

func (c *scriptedConn) controlFrames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nControl
}

type scriptedDialer struct{ c *scriptedConn }

func (d scriptedDialer) DialContext(context.Context, string, http.Header) (Conn, error) {
	return d.c, nil
}

// End to end against a real websocket server.

type wsServer struct {
	srv      *httptest.Server
	mu       sync.Mutex
	conns    []*websocket.Conn
	received []map[string]any
	tokens   []string
}

func newWSServer(t *testing.T, greet ...any) *wsServer {
	t.Helper()
	s := &wsServer{}
	up := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, c)
		s.tokens = append(s.tokens, r.URL.Query().Get("token"))
		s.mu.Unlock()
		for _, g := range greet {
			_ = c.WriteJSON(g)
		}
		for {
			var m map[string]any
			if err := c.ReadJSON(&m); err != nil {
				return
			}
			s.mu.Lock()
			s.received = append(s.received, m)
			s.mu.Unlock()
			if m["type"] == TypePing {
				_ = c.WriteJSON(map[string]any{"type": TypePong})
			}
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string { return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/api/v1/notifications/ws" }

func (s *wsServer) receivedTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.received {
		out = append(out, m["type"].(string))
	}
	return out
}

func (s *wsServer) lastConn() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[len(s.conns)-1]
}

func TestFeedEndToEnd(t *testing.T) {
	t.Parallel()
	srv := newWSServer(t,
		map[string]any{"type": "connection_established", "message": "welcome"},
		map[string]any{"type": "notification", "data": map[string]any{
			"id": "srv-1", "type": "stage_delayed", "priority": "urgent",
			"title": "Stage delayed", "message": "Framing is late",
			"metadata": map[string]any{"project_name": "Tanaka residence"},
		}},
		map[string]any{"type": "system_message", "message": "maintenance tonight"},
		map[string]any{"type": "typing"},
	)

	bus := eventbus.New()
	store := notification.NewStore(notification.WithBus(bus))
	sess := session.New(bus, logx.Nop())
	a := New(Config{URL: srv.url(), Heartbeat: 20 * time.Millisecond}, store,
		WithSession(sess), WithBus(bus), WithLogger(logx.Nop()))

	// Bind connects straight away for a session that is already logged in.
	require.NoError(t, sess.Login(session.User{ID: "u-42"}, "s3cret"))
	ctx, cancel := context.WithCancel(context.Background())
	bound := make(chan struct{})
	go func() {
		defer close(bound)
		_ = a.Bind(ctx)
	}()

	require.Eventually(t, func() bool { return store.Len() == 2 }, 2*time.Second, 5*time.Millisecond)
	recs := store.Records()
	assert.Equal(t, notification.CategorySystemUpdate, recs[0].Category)
	assert.Equal(t, "srv-1", recs[1].RemoteID)
	assert.Equal(t, "Tanaka residence", recs[1].Subject.Name)

	require.True(t, store.MarkRead(recs[1].ID))
	require.Eventually(t, func() bool {
		types := srv.receivedTypes()
		return contains(types, TypeAuth) && contains(types, TypeMarkRead) && contains(types, TypePing)
	}, 2*time.Second, 5*time.Millisecond)
	srv.mu.Lock()
	assert.Equal(t, "s3cret", srv.tokens[len(srv.tokens)-1])
	srv.mu.Unlock()

	require.True(t, a.GetStatus())

	// a clean close from the server ends the session without a retry
	_ = srv.lastConn().WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	waitState(t, a, StateDisconnected)
	assert.Equal(t, CloseNormal, a.Status().LastClose)
	assert.Zero(t, a.Status().Attempts)

	cancel()
	<-bound
}

func TestFeedAbnormalServerCloseSchedulesRetry(t *testing.T) {
	t.Parallel()
	srv := newWSServer(t)
	sched := &fakeScheduler{}
	a := New(Config{URL: srv.url()}, nil, WithAfterFunc(sched.after))

	require.NoError(t, a.Connect())
	waitState(t, a, StateConnected)
	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.conns) == 1
	}, time.Second, 2*time.Millisecond)
	_ = srv.lastConn().WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "restart"))

	require.Eventually(t, func() bool { return sched.count() == 1 }, 2*time.Second, 2*time.Millisecond)
	assert.Equal(t, 2*time.Second, sched.last().delay)
	assert.Equal(t, websocket.CloseGoingAway, a.Status().LastClose)

	sched.last().fn()
	waitState(t, a, StateConnected)
	assert.Zero(t, a.Status().Attempts)
	a.Disconnect()
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

type connFactory struct {
	mu    sync.Mutex
	conns []*scriptedConn
}

func (f *connFactory) DialContext(context.Context, string, http.Header) (Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := newScriptedConn()
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *connFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func TestBindFollowsSession(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	sess := session.New(bus, logx.Nop())
	dialer := &connFactory{}
	a := New(Config{URL: "ws://dash.invalid/ws"}, nil,
		WithDialer(dialer), WithSession(sess), WithBus(bus))

	require.NoError(t, sess.Login(session.User{ID: "u-1"}, "tok"))
	ctx, cancel := context.WithCancel(context.Background())
	bound := make(chan struct{})
	go func() {
		defer close(bound)
		_ = a.Bind(ctx)
	}()
	waitState(t, a, StateConnected)

	sess.Logout()
	waitState(t, a, StateDisconnected)
	assert.Equal(t, 1, dialer.conns[0].closes())

	require.NoError(t, sess.Login(session.User{ID: "u-1"}, "tok2"))
	waitState(t, a, StateConnected)
	assert.Equal(t, 2, dialer.count())

	cancel()
	<-bound
	assert.Equal(t, StateDisconnected, a.Status().State)
}

func TestBindDisconnectsWhenLogoutIsMissed(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	// The session publishes elsewhere, so the adapter never sees the logout.
	sess := session.New(eventbus.New(), logx.Nop())
	dialer := &connFactory{}
	a := New(Config{URL: "ws://dash.invalid/ws"}, nil,
		WithDialer(dialer), WithSession(sess), WithBus(bus))

	require.NoError(t, sess.Login(session.User{ID: "u-1"}, "tok"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a.Bind(ctx) }()
	waitState(t, a, StateConnected)

	sess.Logout()
	assert.Equal(t, StateConnected, a.Status().State)

	bus.Publish(eventbus.Event{Type: notification.EventRead, Time: time.Now(),
		Data: notification.RecordEvent{ID: "n-1", RemoteID: "r-1"}})
	waitState(t, a, StateDisconnected)
	assert.Equal(t, 1, dialer.conns[0].closes())
}
