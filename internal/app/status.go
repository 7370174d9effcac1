package app

import (
	"context"
	"sort"
	"time"

	"sitealert/internal/delivery"
	"sitealert/internal/feed"
	rtsup "sitealert/internal/runtime/supervisor"
)

// Status is served on /status.
type Status struct {
	Uptime       string              `json:"uptime"`
	Records      int                 `json:"records"`
	Unread       int                 `json:"unread"`
	SoundEnabled bool                `json:"sound_enabled"`
	Permission   delivery.Permission `json:"desktop_permission"`
	Session      SessionStatus       `json:"session"`
	Feed         *feed.Status        `json:"feed,omitempty"`
	Delivery     DeliveryStatus      `json:"delivery"`
	Retention    RetentionStatus     `json:"retention"`
	Supervisor   rtsup.Snapshot      `json:"supervisor"`
}

type SessionStatus struct {
	Authenticated bool      `json:"authenticated"`
	UserID        string    `json:"user_id,omitempty"`
	Since         time.Time `json:"since,omitempty"`
}

type DeliveryStatus struct {
	Channels []string               `json:"channels"`
	Workers  int                    `json:"workers"`
	Queue    int                    `json:"queue_size"`
	Rate     int                    `json:"rate_per_sec"`
	Recent   []delivery.HistoryItem `json:"recent"`
}

type RetentionStatus struct {
	LastRun     time.Time `json:"last_run,omitempty"`
	LastRemoved int       `json:"last_removed"`
	NextRun     time.Time `json:"next_run,omitempty"`
}

const statusHistory = 20

func (a *App) Status() Status {
	st := a.local.Store
	sess := a.session.Current()
	dcfg := a.local.Dispatcher.Config()

	out := Status{
		Records:      st.Len(),
		Unread:       st.UnreadCount(),
		SoundEnabled: st.SoundEnabled(),
		Permission:   a.local.Desktop.Permission(context.Background()),
		Session: SessionStatus{
			Authenticated: sess.Authenticated,
			UserID:        sess.User.ID,
			Since:         sess.Since,
		},
		Delivery: DeliveryStatus{
			Workers: dcfg.Workers,
			Queue:   dcfg.QueueSize,
			Rate:    dcfg.RatePerSec,
		},
		Supervisor: a.sup.Snapshot(),
	}
	if !a.started.IsZero() {
		out.Uptime = time.Since(a.started).Round(time.Second).String()
	}
	for _, ch := range a.local.Dispatcher.Channels() {
		out.Delivery.Channels = append(out.Delivery.Channels, string(ch))
	}
	sort.Strings(out.Delivery.Channels)
	hist := a.local.Dispatcher.Snapshot()
	if len(hist) > statusHistory {
		hist = hist[len(hist)-statusHistory:]
	}
	out.Delivery.Recent = hist
	if a.feed != nil {
		fs := a.feed.Status()
		out.Feed = &fs
	}
	last := a.sweeper.Last()
	out.Retention = RetentionStatus{LastRun: last.At, LastRemoved: last.Removed, NextRun: a.sweeper.Next()}
	return out
}
