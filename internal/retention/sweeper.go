// Package retention runs the notification retention sweep on a cron schedule.
package retention

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"sitealert/internal/eventbus"
	logx "sitealert/pkg/logx"
)

const EventSwept = "retention.swept"

type Config struct {
	Enabled  bool
	Schedule string // cron spec or descriptor; default "@every 1h"
	Days     int    // default 30
	Timezone string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Schedule) == "" {
		c.Schedule = "@every 1h"
	}
	if c.Days <= 0 {
		c.Days = 30
	}
	return c
}

// Pruner removes records older than days. notification.Store satisfies it.
type Pruner interface {
	PruneOlderThan(days int) int
}

type SweepEvent struct {
	Removed int       `json:"removed"`
	Days    int       `json:"days"`
	At      time.Time `json:"at"`
}

// Run describes the last sweep.
type Run struct {
	At      time.Time
	Removed int
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether spec parses.
func ValidateSchedule(spec string) error {
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("retention schedule %q: %w", spec, err)
	}
	return nil
}

// Sweeper is safe for concurrent use.
type Sweeper struct {
	mu      sync.Mutex
	cfg     Config
	pruner  Pruner
	bus     eventbus.Bus
	log     logx.Logger
	c       *cron.Cron
	entry   cron.EntryID
	last    Run
	running bool
}

func New(cfg Config, p Pruner, bus eventbus.Bus, log logx.Logger) *Sweeper {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sweeper{cfg: cfg.withDefaults(), pruner: p, bus: bus, log: log.With(logx.String("comp", "retention"))}
}

func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if !s.cfg.Enabled {
		s.log.Debug("retention sweep disabled")
		return nil
	}
	if err := s.startLocked(); err != nil {
		return err
	}
	s.running = true
	return nil
}

func (s *Sweeper) startLocked() error {
	loc := s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(parser), cron.WithLocation(loc))
	id, err := s.c.AddFunc(s.cfg.Schedule, func() { s.RunOnce() })
	if err != nil {
		s.c = nil
		return fmt.Errorf("retention schedule %q: %w", s.cfg.Schedule, err)
	}
	s.entry = id
	s.c.Start()
	s.log.Info("retention sweep scheduled",
		logx.String("schedule", s.cfg.Schedule),
		logx.Int("days", s.cfg.Days),
		logx.String("tz", loc.String()),
	)
	return nil
}

func (s *Sweeper) stopLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
		s.c = nil
	}
}

func (s *Sweeper) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.running = false
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Apply swaps the configuration, rescheduling when running.
func (s *Sweeper) Apply(cfg Config) error {
	cfg = cfg.withDefaults()
	if err := ValidateSchedule(cfg.Schedule); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cfg
	s.cfg = cfg
	switch {
	case s.running && !cfg.Enabled:
		s.stopLocked()
		s.running = false
		s.log.Info("retention sweep disabled")
	case !s.running && cfg.Enabled:
		if err := s.startLocked(); err != nil {
			return err
		}
		s.running = true
	case s.running && (old.Schedule != cfg.Schedule || old.Timezone != cfg.Timezone):
		s.stopLocked()
		return s.startLocked()
	}
	return nil
}

// RunOnce sweeps now and returns how many records were removed.
func (s *Sweeper) RunOnce() int {
	s.mu.Lock()
	days := s.cfg.Days
	p := s.pruner
	s.mu.Unlock()
	if p == nil {
		return 0
	}
	removed := p.PruneOlderThan(days)
	now := time.Now()

	s.mu.Lock()
	s.last = Run{At: now, Removed: removed}
	s.mu.Unlock()

	s.log.Debug("retention sweep", logx.Int("removed", removed), logx.Int("days", days))
	eventbus.Emit(s.bus, EventSwept, SweepEvent{Removed: removed, Days: days, At: now})
	return removed
}

// Last returns the most recent sweep; the zero Run means none yet.
func (s *Sweeper) Last() Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Next returns when the next sweep fires, or the zero time when idle.
func (s *Sweeper) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}
	}
	return s.c.Entry(s.entry).Next
}

func (s *Sweeper) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
