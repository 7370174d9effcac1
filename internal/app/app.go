// Package app wires the sitealert components together and runs them.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"sitealert/internal/config"
	"sitealert/internal/eventbus"
	"sitealert/internal/feed"
	"sitealert/internal/metrics"
	"sitealert/internal/observability/debughttp"
	"sitealert/internal/remote"
	"sitealert/internal/retention"
	rtsup "sitealert/internal/runtime/supervisor"
	"sitealert/internal/session"
	logx "sitealert/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	local    *Local
	session  *session.Manager
	feed     *feed.Adapter // nil when the feed is disabled
	sweeper  *retention.Sweeper
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	debug    *debughttp.Service
	remote   *remote.Client // nil without remote.base_url

	started time.Time
}

// New loads the config at cfgPath and builds every component without
// starting anything.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()
	local, err := OpenLocal(context.Background(), cfg, log, bus)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		local:   local,
		session: session.New(bus, log),
		sweeper: retention.New(mapRetentionConfig(cfg), local.Store, bus, log),
	}

	if cfg.Feed.Enabled {
		fc, err := mapFeedConfig(cfg)
		if err != nil {
			return nil, a.abort(err)
		}
		a.feed = feed.New(fc, local.Store,
			feed.WithSession(a.session),
			feed.WithBus(bus),
			feed.WithLogger(log),
		)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	dcfg, err := mapDebugConfig(cfg)
	if err != nil {
		return nil, a.abort(err)
	}
	a.debug = debughttp.New(dcfg, log,
		debughttp.WithGatherer(a.registry),
		debughttp.WithStatus(func() any { return a.Status() }),
	)

	if rc, ok, err := mapRemoteConfig(cfg); err != nil {
		return nil, a.abort(err)
	} else if ok {
		if a.remote, err = remote.New(rc, a.session, log); err != nil {
			return nil, a.abort(err)
		}
	}
	return a, nil
}

func (a *App) abort(err error) error {
	_ = a.local.Close(context.Background())
	_ = a.logs.Close()
	return err
}

func (a *App) Config() *config.Config         { return a.cfgm.Get() }
func (a *App) Local() *Local                  { return a.local }
func (a *App) Session() *session.Manager      { return a.session }
func (a *App) Bus() eventbus.Bus              { return a.bus }
func (a *App) Registry() *prometheus.Registry { return a.registry }

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.started = time.Now()
	c := a.sup.Context()
	cfg := a.cfgm.Get()

	a.local.Dispatcher.Start(c)
	a.sup.Go("store.persist", a.local.Store.RunPersistence)
	a.sup.Go("metrics", func(c context.Context) error { return a.metrics.Run(c, a.bus) })

	perm := a.local.Desktop.RequestPermission(c)
	a.log.Info("desktop notifications", logx.String("permission", string(perm)))

	if a.remote != nil && cfg.Remote.PullPreferences {
		logins, unsub := eventbus.SubscribePrefix(a.bus, 4, session.EventLogin)
		a.sup.Go0("remote.preferences", func(c context.Context) {
			defer unsub()
			a.followLogins(c, logins)
		})
	}
	if a.feed != nil {
		a.sup.Go("feed.bind", a.feed.Bind)
	}

	if err := a.sweeper.Start(c); err != nil {
		return err
	}
	a.debug.Start(c)

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		a.logEvents(c, events)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("systemd.watchdog", a.runWatchdog)

	user, token, ok, err := mapSession(cfg)
	if err != nil {
		return err
	}
	if ok {
		if err := a.session.Login(user, token); err != nil {
			return fmt.Errorf("session login: %w", err)
		}
	}

	a.notifySystemd(daemon.SdNotifyReady)
	a.log.Info("app started",
		logx.Int("records", a.local.Store.Len()),
		logx.Int("unread", a.local.Store.UnreadCount()),
		logx.Bool("feed", a.feed != nil),
		logx.Bool("remote", a.remote != nil),
	)
	return nil
}

func (a *App) followLogins(ctx context.Context, logins <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-logins:
			if !ok {
				return
			}
			if err := a.PullPreferences(ctx); err != nil {
				a.log.Warn("remote preferences not applied", logx.Err(err))
			}
		}
	}
}

// PullPreferences replaces local preferences with the backend's copy.
func (a *App) PullPreferences(ctx context.Context) error {
	if a.remote == nil {
		return nil
	}
	rctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	p, err := a.remote.Preferences(rctx)
	if err != nil {
		return err
	}
	if err := a.local.Store.UpdatePreferences(p.Patch()); err != nil {
		return err
	}
	a.log.Info("remote preferences applied")
	return nil
}

func (a *App) logEvents(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// keep only the newest of a burst
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyConfig hot-applies logging, delivery, retention and the debug server.
// Other sections are logged as needing a restart.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	a.notifySystemd(daemon.SdNotifyReloading)
	defer a.notifySystemd(daemon.SdNotifyReady)

	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if rr := config.RestartRequired(sections); len(rr) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.Strings("sections", rr))
	}

	a.logs.Apply(mapLogging(newCfg))

	if dc, err := mapDeliveryConfig(newCfg); err != nil {
		a.log.Warn("invalid delivery config; keeping previous", logx.Err(err))
	} else {
		a.local.Dispatcher.Apply(dc)
	}

	if err := a.sweeper.Apply(mapRetentionConfig(newCfg)); err != nil {
		a.log.Warn("invalid retention config; keeping previous", logx.Err(err))
	}

	if dbg, err := mapDebugConfig(newCfg); err != nil {
		a.log.Warn("invalid debug config; keeping previous", logx.Err(err))
	} else {
		a.debug.Reconfigure(ctx, dbg)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.notifySystemd(daemon.SdNotifyStopping)
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	a.step(ctx, "feed", time.Second, func(context.Context) error {
		if a.feed != nil {
			a.feed.Disconnect()
		}
		return nil
	})
	a.step(ctx, "retention", time.Second, func(c context.Context) error { a.sweeper.Stop(c); return nil })
	a.step(ctx, "debug", time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.step(ctx, "local", 5*time.Second, a.local.Close)

	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}

// step runs one shutdown step bounded by max and the caller's deadline.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		max = min(max, time.Until(dl))
	}
	if max <= 0 {
		a.log.Warn("stop step skipped: deadline reached", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}
