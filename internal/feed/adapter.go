package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sitealert/internal/eventbus"
	"sitealert/internal/notification"
	"sitealert/internal/session"
	logx "sitealert/pkg/logx"
)

// Event types published by the Adapter.
const (
	EventState     = "feed.state"
	EventReconnect = "feed.reconnect_scheduled"
	EventExhausted = "feed.exhausted"
	EventFrame     = "feed.frame"
)

var (
	ErrNotAuthenticated = errors.New("feed: no authenticated session")
	ErrNoURL            = errors.New("feed: url is empty")
)

// State is the connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateBackoff
)

var stateNames = [...]string{"disconnected", "connecting", "connected", "backoff"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Config controls the adapter.
type Config struct {
	URL               string
	Heartbeat         time.Duration
	ReconnectBase     time.Duration
	MaxAttempts       int
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	DisableAutoRejoin bool // do not connect on login events in Bind
}

func (c Config) withDefaults() Config {
	if c.Heartbeat <= 0 {
		c.Heartbeat = 30 * time.Second
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = 2 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

// Status is a snapshot for operators.
type Status struct {
	State       State         `json:"state"`
	URL         string        `json:"url"`
	Attempts    int           `json:"attempts"`
	Exhausted   bool          `json:"exhausted"`
	NextDelay   time.Duration `json:"next_delay,omitempty"`
	ConnectedAt time.Time     `json:"connected_at,omitempty"`
	LastClose   int           `json:"last_close,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
}

// StateEvent is published on every transition.
type StateEvent struct {
	State   State  `json:"state"`
	Attempt int    `json:"attempt"`
	Code    int    `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ReconnectEvent struct {
	Attempt int           `json:"attempt"`
	Delay   time.Duration `json:"delay"`
}

type FrameEvent struct {
	Type string `json:"type"`
}

// Sink receives translated candidates. notification.Store satisfies it.
type Sink interface {
	Ingest(c notification.Candidate) (notification.Record, error)
}

// Session supplies credentials. *session.Manager satisfies it.
type Session interface {
	Current() session.State
}

// Adapter bridges the realtime feed into a Sink.
type Adapter struct {
	cfg    Config
	dialer Dialer
	sink   Sink
	sess   Session
	bus    eventbus.Bus
	log    logx.Logger
	after  AfterFunc

	mu       sync.Mutex
	state    State
	gen      uint64 // bumps on every dial and on Disconnect; stale goroutines compare it
	conn     Conn
	attempts int
	timer    Timer
	status   Status
	hbStop   chan struct{}

	wmu sync.Mutex // gorilla allows one concurrent writer
}

type Option func(*Adapter)

func WithDialer(d Dialer) Option { return func(a *Adapter) { a.dialer = d } }

func WithSession(s Session) Option { return func(a *Adapter) { a.sess = s } }

func WithBus(b eventbus.Bus) Option { return func(a *Adapter) { a.bus = b } }

func WithLogger(l logx.Logger) Option { return func(a *Adapter) { a.log = l } }

// WithAfterFunc replaces the reconnect scheduler.
func WithAfterFunc(f AfterFunc) Option {
	return func(a *Adapter) {
		if f != nil {
			a.after = f
		}
	}
}

func New(cfg Config, sink Sink, opts ...Option) *Adapter {
	a := &Adapter{
		cfg:   cfg.withDefaults(),
		sink:  sink,
		after: stdAfterFunc,
	}
	for _, o := range opts {
		o(a)
	}
	if a.log.IsZero() {
		a.log = logx.Nop()
	}
	a.log = a.log.With(logx.String("comp", "feed"))
	if a.dialer == nil {
		a.dialer = WebsocketDialer{D: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: a.cfg.HandshakeTimeout,
		}}
	}
	a.status.URL = a.cfg.URL
	return a
}

// Connect opens the feed with a fresh retry budget. It is a no-op while a
// connection is open or being opened.
func (a *Adapter) Connect() error {
	if a.cfg.URL == "" {
		return ErrNoURL
	}
	if a.sess != nil && !a.sess.Current().Authenticated {
		a.log.Debug("not authenticated, skipping feed connect")
		return ErrNotAuthenticated
	}

	a.mu.Lock()
	if a.state == StateConnected || a.state == StateConnecting {
		a.mu.Unlock()
		return nil
	}
	a.stopTimerLocked()
	a.attempts = 0
	a.status.Exhausted = false
	a.status.NextDelay = 0
	gen := a.dialLocked()
	a.mu.Unlock()

	go a.dial(gen)
	return nil
}

// dialLocked moves to connecting and returns the generation for the dial.
func (a *Adapter) dialLocked() uint64 {
	a.gen++
	a.setStateLocked(StateConnecting, 0, nil)
	return a.gen
}

func (a *Adapter) dial(gen uint64) {
	u, h, userID := a.target()
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.HandshakeTimeout)
	conn, err := a.dialer.DialContext(ctx, u, h)
	cancel()

	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		a.mu.Unlock()
		a.log.Warn("feed dial failed", logx.Err(err))
		a.handleClose(gen, CloseAbnormal, err)
		return
	}
	a.conn = conn
	a.attempts = 0
	a.status.ConnectedAt = time.Now()
	a.status.LastError = ""
	a.setStateLocked(StateConnected, 0, nil)
	stop := make(chan struct{})
	a.hbStop = stop
	a.mu.Unlock()

	a.log.Info("feed connected", logx.String("url", a.cfg.URL))
	if userID != "" {
		a.write(gen, authFrame{Type: TypeAuth, UserID: userID})
	}
	go a.heartbeat(gen, stop)
	go a.readLoop(gen, conn)
}

// target builds the dial URL, adding ?token= when the session has one.
func (a *Adapter) target() (string, http.Header, string) {
	raw := a.cfg.URL
	if a.sess == nil {
		return raw, nil, ""
	}
	st := a.sess.Current()
	if st.Token == "" {
		return raw, nil, st.User.ID
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw, nil, st.User.ID
	}
	q := u.Query()
	q.Set("token", st.Token)
	u.RawQuery = q.Encode()
	return u.String(), nil, st.User.ID
}

func (a *Adapter) readLoop(gen uint64, conn Conn) {
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			a.handleClose(gen, closeCode(err), err)
			return
		}
		a.handleMessage(b)
	}
}

// handleClose applies the close policy for the connection of generation gen.
// A clean close ends the session; anything else schedules base*2^n until
// the budget is spent.
func (a *Adapter) handleClose(gen uint64, code int, cause error) {
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return
	}
	a.teardownLocked()
	a.status.LastClose = code
	if cause != nil && code != CloseNormal {
		a.status.LastError = cause.Error()
	}

	if code == CloseNormal {
		a.setStateLocked(StateDisconnected, code, nil)
		a.mu.Unlock()
		a.log.Info("feed closed cleanly")
		return
	}
	if a.attempts >= a.cfg.MaxAttempts {
		a.status.Exhausted = true
		a.status.NextDelay = 0
		a.setStateLocked(StateDisconnected, code, cause)
		attempts := a.attempts
		a.mu.Unlock()
		a.log.Warn("feed reconnect budget exhausted", logx.Int("attempts", attempts))
		eventbus.Emit(a.bus, EventExhausted, ReconnectEvent{Attempt: attempts})
		return
	}

	delay := a.cfg.ReconnectBase << a.attempts
	a.attempts++
	attempt := a.attempts
	a.status.NextDelay = delay
	a.setStateLocked(StateBackoff, code, cause)
	a.armTimerLocked(delay)
	a.mu.Unlock()

	a.log.Info("feed reconnect scheduled",
		logx.Int("code", code),
		logx.Int("attempt", attempt),
		logx.Int("max", a.cfg.MaxAttempts),
		logx.Duration("delay", delay),
	)
	eventbus.Emit(a.bus, EventReconnect, ReconnectEvent{Attempt: attempt, Delay: delay})
}

func (a *Adapter) armTimerLocked(delay time.Duration) {
	a.stopTimerLocked()
	var t Timer
	t = a.after(delay, func() {
		a.mu.Lock()
		if a.timer != t || a.state != StateBackoff {
			a.mu.Unlock()
			return
		}
		a.timer = nil
		gen := a.dialLocked()
		a.mu.Unlock()
		a.dial(gen)
	})
	a.timer = t
}

func (a *Adapter) stopTimerLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// teardownLocked drops the current connection and its heartbeat.
func (a *Adapter) teardownLocked() {
	if a.hbStop != nil {
		close(a.hbStop)
		a.hbStop = nil
	}
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
}

// Disconnect closes the feed cleanly and cancels any pending reconnect.
// Calling it again is a no-op.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	if a.state == StateDisconnected && a.conn == nil && a.timer == nil {
		a.mu.Unlock()
		return
	}
	a.gen++
	a.stopTimerLocked()
	conn := a.conn
	if conn != nil {
		msg := websocket.FormatCloseMessage(CloseNormal, "manual disconnect")
		a.wmu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(a.cfg.WriteTimeout))
		a.wmu.Unlock()
	}
	a.teardownLocked()
	a.status.NextDelay = 0
	a.setStateLocked(StateDisconnected, CloseNormal, nil)
	a.mu.Unlock()
	a.log.Info("feed disconnected")
}

// SendMessage writes v as a JSON text frame. It reports false when the feed
// is not connected or the write fails.
func (a *Adapter) SendMessage(v any) bool {
	a.mu.Lock()
	gen := a.gen
	ok := a.state == StateConnected && a.conn != nil
	a.mu.Unlock()
	if !ok {
		a.log.Debug("feed not connected, message not sent")
		return false
	}
	return a.write(gen, v)
}

func (a *Adapter) write(gen uint64, v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		a.log.Warn("feed frame encode failed", logx.Err(err))
		return false
	}
	a.mu.Lock()
	conn := a.conn
	if gen != a.gen || conn == nil {
		a.mu.Unlock()
		return false
	}
	a.mu.Unlock()

	a.wmu.Lock()
	defer a.wmu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		a.log.Debug("feed write failed", logx.Err(err))
		return false
	}
	return true
}

func (a *Adapter) SendPing() bool { return a.SendMessage(typeOnly{Type: TypePing}) }

func (a *Adapter) GetStatus() bool { return a.SendMessage(typeOnly{Type: TypeGetStatus}) }

// MarkNotificationRead forwards read state for a server-side id.
func (a *Adapter) MarkNotificationRead(remoteID string) bool {
	if remoteID == "" {
		return false
	}
	return a.SendMessage(markReadFrame{Type: TypeMarkRead, NotificationID: remoteID})
}

func (a *Adapter) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.status
	st.State = a.state
	st.Attempts = a.attempts
	return st
}

func (a *Adapter) setStateLocked(s State, code int, cause error) {
	a.state = s
	ev := StateEvent{State: s, Attempt: a.attempts, Code: code}
	if cause != nil {
		ev.Error = cause.Error()
	}
	eventbus.Emit(a.bus, EventState, ev)
}

func (a *Adapter) heartbeat(gen uint64, stop <-chan struct{}) {
	t := time.NewTicker(a.cfg.Heartbeat)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			a.mu.Lock()
			current := gen == a.gen && a.state == StateConnected
			a.mu.Unlock()
			if !current {
				return
			}
			a.write(gen, typeOnly{Type: TypePing})
		}
	}
}

func (a *Adapter) handleMessage(b []byte) {
	f, err := DecodeFrame(b)
	if err != nil {
		a.log.Warn("feed frame dropped", logx.Err(err))
		return
	}
	eventbus.Emit(a.bus, EventFrame, FrameEvent{Type: f.Type()})

	switch fr := f.(type) {
	case NotificationFrame:
		a.ingest(Translate(fr.Data))
	case SystemMessageFrame:
		if fr.Message != "" {
			a.ingest(SystemCandidate(fr.Message))
		}
	case ConnectionEstablishedFrame:
		a.mu.Lock()
		a.attempts = 0
		a.mu.Unlock()
		a.log.Info("feed connection established", logx.String("message", fr.Message))
	case PongFrame:
		a.log.Trace("feed pong")
	case StatusFrame:
		a.log.Debug("feed status", logx.Any("fields", fr.Fields))
	case UnknownFrame:
		a.log.Debug("feed frame ignored", logx.String("type", fr.Kind))
	}
}

func (a *Adapter) ingest(c notification.Candidate) {
	if a.sink == nil {
		return
	}
	if _, err := a.sink.Ingest(c); err != nil {
		a.log.Warn("feed notification rejected", logx.String("category", string(c.Category)), logx.Err(err))
	}
}

// Bind follows the session and the store until ctx is done: login connects,
// logout disconnects, and a local read of a record with a remote id is
// forwarded to the server. Session events have their own subscription so a
// burst of reads cannot crowd out a logout; the session is also re-checked
// on every read in case a logout was dropped anyway.
func (a *Adapter) Bind(ctx context.Context) error {
	if a.bus == nil {
		return errors.New("feed: bind requires an event bus")
	}
	sessEvents, unsubSess := eventbus.SubscribePrefix(a.bus, 16, "session.")
	defer unsubSess()
	reads, unsubReads := eventbus.SubscribePrefix(a.bus, 64, notification.EventRead)
	defer unsubReads()
	defer a.Disconnect()

	if a.authenticated() && !a.cfg.DisableAutoRejoin {
		_ = a.Connect()
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-sessEvents:
			if !ok {
				return nil
			}
			switch e.Type {
			case session.EventLogin:
				if a.cfg.DisableAutoRejoin {
					continue
				}
				// a new login may carry a new token
				a.Disconnect()
				if err := a.Connect(); err != nil {
					a.log.Warn("feed connect on login failed", logx.Err(err))
				}
			case session.EventLogout:
				a.Disconnect()
			}
		case e, ok := <-reads:
			if !ok {
				return nil
			}
			if !a.authenticated() {
				a.Disconnect()
				continue
			}
			if re, ok := e.Data.(notification.RecordEvent); ok && re.RemoteID != "" {
				a.MarkNotificationRead(re.RemoteID)
			}
		}
	}
}

func (a *Adapter) authenticated() bool {
	return a.sess != nil && a.sess.Current().Authenticated
}
