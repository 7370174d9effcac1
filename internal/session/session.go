// Package session holds the authenticated user for the running daemon and
// announces changes on the event bus.
package session

import (
	"errors"
	"sync"
	"time"

	"sitealert/internal/eventbus"
	logx "sitealert/pkg/logx"
)

const (
	EventLogin  = "session.login"
	EventLogout = "session.logout"
)

var ErrNoToken = errors.New("session token is empty")

// User is who the dashboard session belongs to.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// State is a point-in-time view of the session.
type State struct {
	Authenticated bool      `json:"authenticated"`
	User          User      `json:"user"`
	Token         string    `json:"-"`
	Since         time.Time `json:"since,omitempty"`
}

// Manager is safe for concurrent use.
type Manager struct {
	mu  sync.RWMutex
	cur State

	bus eventbus.Bus
	log logx.Logger
	now func() time.Time
}

func New(bus eventbus.Bus, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{bus: bus, log: log.With(logx.String("comp", "session")), now: time.Now}
}

// Login replaces the current session. Logging in again with a new token
// publishes a fresh login event so bound components reconnect.
func (m *Manager) Login(u User, token string) error {
	if token == "" {
		return ErrNoToken
	}
	m.mu.Lock()
	m.cur = State{Authenticated: true, User: u, Token: token, Since: m.now()}
	st := m.cur
	m.mu.Unlock()

	m.log.Info("session login", logx.String("user", u.ID))
	eventbus.Emit(m.bus, EventLogin, st)
	return nil
}

// Logout clears the session. It reports whether anyone was logged in.
func (m *Manager) Logout() bool {
	m.mu.Lock()
	was := m.cur
	m.cur = State{}
	m.mu.Unlock()
	if !was.Authenticated {
		return false
	}
	m.log.Info("session logout", logx.String("user", was.User.ID))
	eventbus.Emit(m.bus, EventLogout, was.User)
	return true
}

func (m *Manager) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

// Token returns the bearer token, or "" when logged out.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur.Token
}
