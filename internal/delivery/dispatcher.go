package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"sitealert/internal/eventbus"
	"sitealert/internal/notification"
	rtsup "sitealert/internal/runtime/supervisor"
	"sitealert/internal/storage"
	logx "sitealert/pkg/logx"
)

const historyMax = 300

// Journal receives one entry per delivery attempt. storage.Store satisfies it.
type Journal interface {
	AppendDelivery(ctx context.Context, e storage.DeliveryEntry) error
}

type job struct {
	ch  notification.Channel
	rec notification.Record
}

// Dispatcher is an async delivery pipeline: queue + worker pool + rate limit.
// Deliveries are attempted once.
//
// It is safe for concurrent use.
type Dispatcher struct {
	mu sync.Mutex

	log     logx.Logger
	bus     eventbus.Bus
	journal Journal
	chans   map[notification.Channel]Deliverer

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan job
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping

	hmu     sync.Mutex
	history []HistoryItem
}

type DispatcherOption func(*Dispatcher)

// WithChannel registers d for ch, replacing any earlier registration.
func WithChannel(ch notification.Channel, d Deliverer) DispatcherOption {
	return func(x *Dispatcher) {
		if d != nil {
			x.chans[ch] = d
		}
	}
}

func WithJournal(j Journal) DispatcherOption { return func(x *Dispatcher) { x.journal = j } }

func WithEventBus(b eventbus.Bus) DispatcherOption { return func(x *Dispatcher) { x.bus = b } }

func NewDispatcher(cfg Config, log logx.Logger, opts ...DispatcherOption) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{
		log:   log.With(logx.String("comp", "delivery")),
		chans: map[notification.Channel]Deliverer{},
	}
	for _, o := range opts {
		o(d)
	}
	d.applyLocked(cfg)
	return d
}

func (d *Dispatcher) Apply(cfg Config) {
	d.mu.Lock()
	d.applyLocked(cfg)
	d.mu.Unlock()
}

func (d *Dispatcher) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	d.cfg = cfg
	// burst = rate, so a short spike of channels for one record goes out together.
	d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Config returns the effective configuration.
func (d *Dispatcher) Config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Channels lists the registered channels.
func (d *Dispatcher) Channels() []notification.Channel {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]notification.Channel, 0, len(d.chans))
	for ch := range d.chans {
		out = append(out, ch)
	}
	return out
}

func (d *Dispatcher) Supervisor() *rtsup.Supervisor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sup
}

// Start launches the workers. It is idempotent; a Start during Stop waits
// for the stop to finish first.
func (d *Dispatcher) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.Lock()
	if d.stopDone != nil {
		done := d.stopDone
		d.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		d.mu.Lock()
	}
	if d.queue != nil {
		d.mu.Unlock()
		return
	}

	d.queue = make(chan job, d.cfg.QueueSize)
	d.accepting = true
	workers := d.cfg.Workers
	d.sup = rtsup.New(ctx,
		rtsup.WithLogger(d.log),
		// a broken channel must not take the daemon down.
		rtsup.WithCancelOnError(false),
	)
	sup := d.sup
	q := d.queue
	d.mu.Unlock()

	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			d.workerLoop(c, q)
			d.mu.Lock()
			stopping := d.stopDone != nil
			d.mu.Unlock()
			if stopping {
				return context.Canceled
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("delivery worker exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}
	d.log.Info("delivery dispatcher started", logx.Int("workers", workers), logx.Int("queue", cap(q)))
}

// Stop stops intake and drains the queue until ctx is done; whatever is
// still queued after that is abandoned.
func (d *Dispatcher) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.Lock()
	q := d.queue
	sup := d.sup
	if q == nil {
		d.mu.Unlock()
		return
	}
	if d.stopDone != nil {
		done := d.stopDone
		d.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	d.stopDone = done
	d.accepting = false
	d.mu.Unlock()

	go func() {
		defer close(done)
		d.sendWG.Wait()
		close(q)
		if sup != nil {
			_ = sup.Wait(context.Background())
		}
		d.mu.Lock()
		d.queue = nil
		d.stopDone = nil
		d.sup = nil
		d.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if sup != nil {
			sup.Cancel()
		}
	}
}

// Notify implements notification.Notifier. It never blocks; a full queue or
// stopped dispatcher drops the delivery.
func (d *Dispatcher) Notify(ch notification.Channel, rec notification.Record) {
	if err := d.Enqueue(ch, rec); err != nil {
		d.log.Debug("delivery not queued", logx.String("channel", string(ch)), logx.String("id", rec.ID), logx.Err(err))
	}
}

// Enqueue queues one delivery.
func (d *Dispatcher) Enqueue(ch notification.Channel, rec notification.Record) error {
	d.mu.Lock()
	if !d.accepting || d.queue == nil {
		d.mu.Unlock()
		d.finish(context.Background(), job{ch: ch, rec: rec}, OutcomeDropped, 0, ErrStopped)
		return ErrStopped
	}
	if _, ok := d.chans[ch]; !ok {
		d.mu.Unlock()
		err := fmt.Errorf("%w %q", ErrNoChannel, ch)
		d.finish(context.Background(), job{ch: ch, rec: rec}, OutcomeSkipped, 0, err)
		return err
	}
	q := d.queue
	d.sendWG.Add(1)
	d.mu.Unlock()
	defer d.sendWG.Done()

	j := job{ch: ch, rec: rec}
	select {
	case q <- j:
		eventbus.Emit(d.bus, EventQueued, d.event(j, 0, nil))
		return nil
	default:
		d.finish(context.Background(), j, OutcomeDropped, 0, ErrQueueFull)
		return ErrQueueFull
	}
}

func (d *Dispatcher) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			d.deliver(ctx, j)
		}
	}
}

func (d *Dispatcher) deliver(runCtx context.Context, j job) {
	d.mu.Lock()
	lim := d.limiter
	timeout := d.cfg.SendTimeout
	dv := d.chans[j.ch]
	d.mu.Unlock()

	if dv == nil {
		d.finish(runCtx, j, OutcomeSkipped, 0, fmt.Errorf("%w %q", ErrNoChannel, j.ch))
		return
	}
	if lim != nil {
		if err := lim.Wait(runCtx); err != nil {
			return
		}
	}

	callCtx, cancel := context.WithTimeout(runCtx, timeout)
	start := time.Now()
	err := safeDeliver(callCtx, dv, j.rec)
	took := time.Since(start)
	cancel()

	switch {
	case err == nil:
		d.finish(runCtx, j, OutcomeSent, took, nil)
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrUnsupported):
		d.finish(runCtx, j, OutcomeSkipped, took, err)
	default:
		d.finish(runCtx, j, OutcomeFailed, took, err)
	}
}

func safeDeliver(ctx context.Context, dv Deliverer, rec notification.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("deliverer panic: %v", r)
		}
	}()
	return dv.Deliver(ctx, rec)
}

// finish journals, publishes and records one outcome. History is written
// last so a reader that sees it also sees the journal entry.
func (d *Dispatcher) finish(ctx context.Context, j job, out Outcome, took time.Duration, err error) {
	defer d.appendHistory(j, out, err)

	var typ string
	switch out {
	case OutcomeSent:
		typ = EventSent
		d.log.Debug("delivered", logx.String("channel", string(j.ch)), logx.String("id", j.rec.ID), logx.Duration("took", took))
	case OutcomeSkipped:
		typ = EventSkipped
		d.log.Debug("delivery skipped", logx.String("channel", string(j.ch)), logx.String("id", j.rec.ID), logx.Err(err))
	case OutcomeDropped:
		typ = EventDropped
		d.log.Warn("delivery dropped", logx.String("channel", string(j.ch)), logx.String("id", j.rec.ID), logx.Err(err))
	default:
		typ = EventFailed
		d.log.Warn("delivery failed", logx.String("channel", string(j.ch)), logx.String("id", j.rec.ID), logx.Err(err))
	}
	eventbus.Emit(d.bus, typ, d.event(j, took, err))

	if d.journal == nil {
		return
	}
	e := storage.DeliveryEntry{
		At:       time.Now(),
		RecordID: j.rec.ID,
		Category: string(j.rec.Category),
		Priority: j.rec.Priority.String(),
		Channel:  string(j.ch),
		Outcome:  string(out),
		TookMS:   took.Milliseconds(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if jerr := d.journal.AppendDelivery(jctx, e); jerr != nil {
		d.log.Debug("delivery journal write failed", logx.Err(jerr))
	}
}

func (d *Dispatcher) event(j job, took time.Duration, err error) DeliveryEvent {
	ev := DeliveryEvent{
		Channel:  j.ch,
		RecordID: j.rec.ID,
		Category: j.rec.Category,
		Priority: j.rec.Priority.String(),
		At:       time.Now(),
		Took:     took,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// Snapshot returns recent delivery outcomes, oldest first.
func (d *Dispatcher) Snapshot() []HistoryItem {
	d.hmu.Lock()
	out := append([]HistoryItem(nil), d.history...)
	d.hmu.Unlock()
	return out
}

func (d *Dispatcher) appendHistory(j job, out Outcome, err error) {
	h := HistoryItem{At: time.Now(), Channel: j.ch, RecordID: j.rec.ID, Outcome: out}
	if err != nil {
		h.Error = err.Error()
	}
	d.hmu.Lock()
	d.history = append(d.history, h)
	if len(d.history) > historyMax {
		d.history = d.history[len(d.history)-historyMax:]
	}
	d.hmu.Unlock()
}
