package delivery

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/godbus/dbus/v5"

	logx "sitealert/pkg/logx"
)

const (
	fdoDest      = "org.freedesktop.Notifications"
	fdoPath      = dbus.ObjectPath("/org/freedesktop/Notifications")
	fdoIface     = "org.freedesktop.Notifications"
	fdoDefaultAc = "default"
)

// DBusPlatform shows alerts through the freedesktop notification service on
// the session bus. A reachable server means permission is granted.
type DBusPlatform struct {
	AppName  string
	AssetDir string // local directory holding the dashboard icons

	log logx.Logger

	mu      sync.Mutex
	conn    *dbus.Conn
	signals chan *dbus.Signal
	pending map[uint32]func()
	closed  bool
}

func NewDBusPlatform(appName, assetDir string, log logx.Logger) *DBusPlatform {
	if log.IsZero() {
		log = logx.Nop()
	}
	if appName == "" {
		appName = "sitealert"
	}
	return &DBusPlatform{
		AppName:  appName,
		AssetDir: assetDir,
		log:      log.With(logx.String("comp", "dbus")),
		pending:  map[uint32]func(){},
	}
}

func (p *DBusPlatform) connect(ctx context.Context) (*dbus.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New("dbus platform closed")
	}
	if p.conn != nil {
		return p.conn, nil
	}
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(fdoPath),
		dbus.WithMatchInterface(fdoIface),
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("subscribe notification signals: %w", err)
	}
	p.signals = make(chan *dbus.Signal, 16)
	conn.Signal(p.signals)
	go p.signalLoop(p.signals)
	p.conn = conn
	return conn, nil
}

func (p *DBusPlatform) Permission(ctx context.Context) (Permission, error) {
	conn, err := p.connect(ctx)
	if err != nil {
		p.log.Debug("session bus unavailable", logx.Err(err))
		return PermissionUnsupported, nil
	}
	var name, vendor, version, spec string
	call := conn.Object(fdoDest, fdoPath).CallWithContext(ctx, fdoIface+".GetServerInformation", 0)
	if err := call.Store(&name, &vendor, &version, &spec); err != nil {
		p.log.Debug("notification server unavailable", logx.Err(err))
		return PermissionUnsupported, nil
	}
	p.log.Debug("notification server", logx.String("name", name), logx.String("vendor", vendor), logx.String("version", version))
	return PermissionGranted, nil
}

// RequestPermission has nothing to ask on the desktop bus.
func (p *DBusPlatform) RequestPermission(ctx context.Context) (Permission, error) {
	return p.Permission(ctx)
}

func (p *DBusPlatform) Show(ctx context.Context, pl Payload, onClick func()) (func(), error) {
	conn, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	urgency := byte(1)
	timeout := int32(-1)
	if pl.RequireInteraction {
		urgency, timeout = 2, 0
	}
	hints := map[string]dbus.Variant{
		"urgency":       dbus.MakeVariant(urgency),
		"category":      dbus.MakeVariant(pl.Tag),
		"desktop-entry": dbus.MakeVariant(p.AppName),
	}
	var actions []string
	if onClick != nil {
		actions = []string{fdoDefaultAc, "Open"}
	}

	var id uint32
	call := conn.Object(fdoDest, fdoPath).CallWithContext(ctx, fdoIface+".Notify", 0,
		p.AppName, uint32(0), p.asset(pl.Icon), pl.Title, pl.Body, actions, hints, timeout)
	if err := call.Store(&id); err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}
	if onClick != nil {
		p.mu.Lock()
		p.pending[id] = onClick
		p.mu.Unlock()
	}

	dismiss := func() {
		p.mu.Lock()
		delete(p.pending, id)
		c := p.conn
		p.mu.Unlock()
		if c == nil {
			return
		}
		if err := c.Object(fdoDest, fdoPath).Call(fdoIface+".CloseNotification", 0, id).Err; err != nil {
			p.log.Debug("close notification failed", logx.Err(err))
		}
	}
	return dismiss, nil
}

func (p *DBusPlatform) asset(rel string) string {
	if rel == "" || p.AssetDir == "" {
		return ""
	}
	return filepath.Join(p.AssetDir, filepath.FromSlash(rel))
}

func (p *DBusPlatform) signalLoop(ch <-chan *dbus.Signal) {
	for sig := range ch {
		p.handleSignal(sig)
	}
}

// handleSignal runs the click callback for ActionInvoked and forgets the
// notification on NotificationClosed.
func (p *DBusPlatform) handleSignal(sig *dbus.Signal) {
	if sig == nil || len(sig.Body) == 0 {
		return
	}
	id, ok := sig.Body[0].(uint32)
	if !ok {
		return
	}
	switch sig.Name {
	case fdoIface + ".ActionInvoked":
		p.mu.Lock()
		fn := p.pending[id]
		delete(p.pending, id)
		p.mu.Unlock()
		if fn != nil {
			fn()
		}
	case fdoIface + ".NotificationClosed":
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}
}

func (p *DBusPlatform) Close() error {
	p.mu.Lock()
	conn, ch := p.conn, p.signals
	p.conn, p.signals, p.closed = nil, nil, true
	p.mu.Unlock()
	if conn == nil {
		return nil
	}
	conn.RemoveSignal(ch)
	close(ch)
	return conn.Close()
}
