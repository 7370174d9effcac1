package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "sitealert/pkg/logx"
)

// sdNotify is swapped in tests.
var sdNotify = daemon.SdNotify

func (a *App) notifySystemd(state string) {
	sent, err := sdNotify(false, state)
	if err != nil {
		a.log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		a.log.Debug("sd_notify", logx.String("state", state))
	}
}

// runWatchdog pings systemd at half the configured watchdog interval.
// It returns at once when the unit has no watchdog.
func (a *App) runWatchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	a.log.Info("systemd watchdog enabled", logx.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.notifySystemd(daemon.SdNotifyWatchdog)
		}
	}
}
