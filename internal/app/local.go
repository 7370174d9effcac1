package app

import (
	"context"
	"errors"
	"time"

	"sitealert/internal/config"
	"sitealert/internal/delivery"
	"sitealert/internal/eventbus"
	"sitealert/internal/notification"
	"sitealert/internal/storage"
	logx "sitealert/pkg/logx"
)

// Local is the notification core without the network side: persisted
// state, the store and the delivery channels. The CLI uses it directly.
type Local struct {
	Log        logx.Logger
	Bus        eventbus.Bus
	State      storage.Store
	Store      *notification.Store
	Dispatcher *delivery.Dispatcher
	Desktop    *delivery.Desktop

	chans *channels
}

// OpenLocal builds the core from cfg and loads persisted state. A nil bus
// gets a private one.
func OpenLocal(ctx context.Context, cfg *config.Config, log logx.Logger, bus eventbus.Bus) (*Local, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.New()
	}

	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	var state storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		state = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	} else {
		state = storage.NewMemory(0)
	}

	dcfg, err := mapDeliveryConfig(cfg)
	if err != nil {
		_ = state.Close()
		return nil, err
	}

	// The store fires channels through the dispatcher, and the desktop
	// channel marks records read through the store.
	var disp *delivery.Dispatcher
	store := notification.NewStore(
		notification.WithStateStore(state),
		notification.WithLogger(log),
		notification.WithBus(bus),
		notification.WithLocation(loc),
		notification.WithNotifier(notification.NotifierFunc(func(ch notification.Channel, rec notification.Record) {
			disp.Notify(ch, rec)
		})),
	)

	chans, err := buildChannels(cfg, store, log)
	if err != nil {
		_ = state.Close()
		return nil, err
	}
	opts := append([]delivery.DispatcherOption{
		delivery.WithJournal(state),
		delivery.WithEventBus(bus),
	}, chans.opts...)
	disp = delivery.NewDispatcher(dcfg, log, opts...)

	if err := store.Load(ctx); err != nil {
		log.Debug("notification state not loaded", logx.Err(err))
	}

	return &Local{
		Log:        log,
		Bus:        bus,
		State:      state,
		Store:      store,
		Dispatcher: disp,
		Desktop:    chans.desktop,
		chans:      chans,
	}, nil
}

// Close drains deliveries, writes the final snapshot and releases storage.
func (l *Local) Close(ctx context.Context) error {
	stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	l.Dispatcher.Stop(stopCtx)
	cancel()

	var errs []error
	if err := l.Store.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	l.chans.Close()
	if err := l.State.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
