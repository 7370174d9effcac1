package delivery

import (
	"context"
	"sync"

	"sitealert/internal/notification"
	logx "sitealert/pkg/logx"
)

// Permission is the desktop notification permission state.
type Permission string

const (
	PermissionDefault     Permission = "default"
	PermissionGranted     Permission = "granted"
	PermissionDenied      Permission = "denied"
	PermissionUnsupported Permission = "unsupported"
)

// Asset paths served by the dashboard.
const (
	IconPath  = "/icon-192x192.png"
	BadgePath = "/icon-72x72.png"
	SoundPath = "/notification-sound.mp3"
)

// Payload is what a platform displays.
type Payload struct {
	Title              string
	Body               string
	Icon               string
	Badge              string
	Tag                string
	RequireInteraction bool
	URL                string
	RecordID           string
}

// PayloadFor builds the desktop payload for rec.
func PayloadFor(rec notification.Record) Payload {
	return Payload{
		Title:              rec.Title,
		Body:               rec.Message,
		Icon:               IconPath,
		Badge:              BadgePath,
		Tag:                string(rec.Category),
		RequireInteraction: rec.Priority == notification.PriorityUrgent,
		URL:                rec.ActionURL,
		RecordID:           rec.ID,
	}
}

// Platform is a host notification API.
//
// Show displays p and calls onClick at most once if the user activates it.
// The returned dismiss func closes the notification; it is safe to call after
// the platform has already closed it.
type Platform interface {
	Permission(ctx context.Context) (Permission, error)
	RequestPermission(ctx context.Context) (Permission, error)
	Show(ctx context.Context, p Payload, onClick func()) (dismiss func(), err error)
}

// Reader marks a record read. notification.Store satisfies it.
type Reader interface {
	MarkRead(id string) bool
}

// Navigator opens an action target.
type Navigator interface {
	Navigate(target string) error
}

type navigatorFunc func(string) error

func (f navigatorFunc) Navigate(t string) error { return f(t) }

// Desktop is the desktop alert channel.
//
// The permission state is queried once and cached; RequestPermission is the
// only way to move it out of "default". Anything but "granted" turns Deliver
// into a no-op that reports ErrPermissionDenied or ErrUnsupported.
type Desktop struct {
	platform Platform
	reader   Reader
	nav      Navigator
	log      logx.Logger

	mu    sync.Mutex
	perm  Permission
	known bool
}

func NewDesktop(p Platform, r Reader, nav Navigator, log logx.Logger) *Desktop {
	if log.IsZero() {
		log = logx.Nop()
	}
	if nav == nil {
		nav = navigatorFunc(func(string) error { return nil })
	}
	return &Desktop{platform: p, reader: r, nav: nav, log: log.With(logx.String("comp", "desktop"))}
}

// Permission returns the cached state, querying the platform the first time.
func (d *Desktop) Permission(ctx context.Context) Permission {
	d.mu.Lock()
	if d.known {
		p := d.perm
		d.mu.Unlock()
		return p
	}
	d.mu.Unlock()

	if d.platform == nil {
		return d.store(PermissionUnsupported)
	}
	p, err := d.platform.Permission(ctx)
	if err != nil {
		d.log.Debug("desktop permission query failed", logx.Err(err))
		return d.store(PermissionUnsupported)
	}
	return d.store(p)
}

// RequestPermission asks the platform once; later calls return the cached
// answer unless it is still "default".
func (d *Desktop) RequestPermission(ctx context.Context) Permission {
	if cur := d.Permission(ctx); cur != PermissionDefault {
		return cur
	}
	p, err := d.platform.RequestPermission(ctx)
	if err != nil {
		d.log.Warn("desktop permission request failed", logx.Err(err))
		return d.store(PermissionUnsupported)
	}
	d.log.Info("desktop permission", logx.String("state", string(p)))
	return d.store(p)
}

func (d *Desktop) store(p Permission) Permission {
	d.mu.Lock()
	d.perm, d.known = p, true
	d.mu.Unlock()
	return p
}

func (d *Desktop) Deliver(ctx context.Context, rec notification.Record) error {
	switch d.Permission(ctx) {
	case PermissionGranted:
	case PermissionUnsupported:
		return ErrUnsupported
	default:
		return ErrPermissionDenied
	}

	var (
		once    sync.Once
		dmu     sync.Mutex
		dismiss func()
		clicked bool
	)
	id, target := rec.ID, rec.ActionURL
	onClick := func() {
		once.Do(func() {
			d.click(id, target)
			dmu.Lock()
			fn := dismiss
			clicked = true
			dmu.Unlock()
			if fn != nil {
				fn()
			}
		})
	}
	fn, err := d.platform.Show(ctx, PayloadFor(rec), onClick)
	if err != nil {
		return err
	}
	// A click may arrive before Show returns; the dismiss is then ours to call.
	dmu.Lock()
	dismiss = fn
	early := clicked
	dmu.Unlock()
	if early && fn != nil {
		fn()
	}
	return nil
}

func (d *Desktop) click(id, target string) {
	if d.reader != nil {
		d.reader.MarkRead(id)
	}
	if target == "" {
		return
	}
	if err := d.nav.Navigate(target); err != nil {
		d.log.Warn("navigate failed", logx.String("target", target), logx.Err(err))
	}
}
