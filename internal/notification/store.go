package notification

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"sitealert/internal/eventbus"
	logx "sitealert/pkg/logx"
)

// Event types published by the Store.
const (
	EventIngested    = "notification.ingested"
	EventRejected    = "notification.rejected"
	EventRead        = "notification.read"
	EventReadAll     = "notification.read_all"
	EventDeleted     = "notification.deleted"
	EventCleared     = "notification.cleared"
	EventPruned      = "notification.pruned"
	EventPreferences = "preferences.updated"
)

type IngestedEvent struct {
	Record   Record   `json:"record"`
	Decision Decision `json:"decision"`
	Unread   int      `json:"unread"`
}

type RejectedEvent struct {
	Category Category `json:"category"`
	Error    string   `json:"error"`
}

type RecordEvent struct {
	ID       string `json:"id"`
	RemoteID string `json:"remote_id,omitempty"`
	Unread   int    `json:"unread"`
}

type BulkEvent struct {
	Count  int `json:"count"`
	Unread int `json:"unread"`
}

// Notifier performs a delivery side effect. Implementations must not block
// for long; the Store calls it synchronously after an ingest commits.
type Notifier interface {
	Notify(ch Channel, rec Record)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ch Channel, rec Record)

func (f NotifierFunc) Notify(ch Channel, rec Record) { f(ch, rec) }

type nopNotifier struct{}

func (nopNotifier) Notify(Channel, Record) {}

type Option func(*Store)

func WithNotifier(n Notifier) Option {
	return func(s *Store) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithStateStore sets where state is persisted.
func WithStateStore(st StateStore) Option { return func(s *Store) { s.state = st } }

func WithLogger(l logx.Logger) Option { return func(s *Store) { s.log = l } }

func WithBus(b eventbus.Bus) Option { return func(s *Store) { s.bus = b } }

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the zone quiet hours are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithPreferences replaces the initial preferences. Invalid sets are repaired
// the same way persisted ones are.
func WithPreferences(p PreferenceSet) Option {
	return func(s *Store) { s.prefs = normalize(p) }
}

// Store is the single writer of notification and preference state.
//
// Every mutation recomputes the unread count from the sequence before the lock
// is released, so readers never see the two disagree. Channels fire after the
// lock is released, which lets a click handler call back into the Store.
type Store struct {
	mu      sync.RWMutex
	records []Record // most recent first
	unread  int
	prefs   PreferenceSet
	soundOn bool
	group   *coalescer

	notifier Notifier
	state    StateStore
	log      logx.Logger
	bus      eventbus.Bus
	now      func() time.Time
	loc      *time.Location
	newID    func() string

	dirty chan struct{}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		prefs:    DefaultPreferences(),
		soundOn:  true,
		group:    newCoalescer(0),
		notifier: nopNotifier{},
		now:      time.Now,
		loc:      time.Local,
		newID:    uuid.NewString,
		dirty:    make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

// Ingest stores a new record built from c and fires the channels its
// preferences allow. Unknown categories and invalid priorities are rejected
// without touching state.
func (s *Store) Ingest(c Candidate) (Record, error) {
	if !c.Category.Known() {
		err := fmt.Errorf("%w: %q", ErrUnknownCategory, c.Category)
		s.reject(c, err)
		return Record{}, err
	}
	if !c.Priority.Valid() {
		err := fmt.Errorf("%w: %d", ErrInvalidPriority, int(c.Priority))
		s.reject(c, err)
		return Record{}, err
	}

	// The timestamp is taken under the lock so that sequence order and
	// CreatedAt order agree across concurrent ingests.
	s.mu.Lock()
	now := s.now()
	created := now
	if len(s.records) > 0 && created.Before(s.records[0].CreatedAt) {
		created = s.records[0].CreatedAt
	}
	rec := Record{ID: s.newID(), CreatedAt: created, Candidate: c.clone()}
	s.records = append(s.records, Record{})
	copy(s.records[1:], s.records)
	s.records[0] = rec
	s.recountLocked()
	unread := s.unread

	d := Decide(s.prefs, s.soundOn, rec, ClockOf(now.In(s.loc)))
	if g := s.prefs.Grouping; len(d.Channels) > 0 && g.Enabled && g.WindowMinutes > 0 {
		if !s.group.allow(groupKey(rec), now, time.Duration(g.WindowMinutes)*time.Minute) {
			d = Decision{Suppressed: SuppressGrouped}
		}
	}
	s.mu.Unlock()

	s.markDirty()
	s.log.Debug("notification ingested",
		logx.String("id", rec.ID),
		logx.String("category", string(rec.Category)),
		logx.String("priority", rec.Priority.String()),
		logx.Any("channels", d.Channels),
		logx.String("suppressed", string(d.Suppressed)),
		logx.Int("unread", unread),
	)
	eventbus.Emit(s.bus, EventIngested, IngestedEvent{Record: rec, Decision: d, Unread: unread})

	for _, ch := range d.Channels {
		s.fire(ch, rec)
	}
	return rec, nil
}

func (s *Store) reject(c Candidate, err error) {
	s.log.Warn("notification rejected", logx.String("category", string(c.Category)), logx.Err(err))
	eventbus.Emit(s.bus, EventRejected, RejectedEvent{Category: c.Category, Error: err.Error()})
}

func (s *Store) fire(ch Channel, rec Record) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("delivery channel panicked", logx.String("channel", string(ch)), logx.String("id", rec.ID), logx.Any("panic", r))
		}
	}()
	s.notifier.Notify(ch, rec)
}

func (s *Store) recountLocked() {
	n := 0
	for i := range s.records {
		if !s.records[i].Read {
			n++
		}
	}
	s.unread = n
}

func (s *Store) indexLocked(id string) int {
	for i := range s.records {
		if s.records[i].ID == id {
			return i
		}
	}
	return -1
}

// MarkRead marks one record read. It reports whether anything changed; an
// unknown id is a no-op.
func (s *Store) MarkRead(id string) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 || s.records[i].Read {
		s.mu.Unlock()
		return false
	}
	s.records[i].Read = true
	s.recountLocked()
	ev := RecordEvent{ID: id, RemoteID: s.records[i].RemoteID, Unread: s.unread}
	s.mu.Unlock()

	s.markDirty()
	eventbus.Emit(s.bus, EventRead, ev)
	return true
}

// MarkAllRead returns how many records changed.
func (s *Store) MarkAllRead() int {
	s.mu.Lock()
	n := 0
	for i := range s.records {
		if !s.records[i].Read {
			s.records[i].Read = true
			n++
		}
	}
	s.recountLocked()
	s.mu.Unlock()

	if n > 0 {
		s.markDirty()
		eventbus.Emit(s.bus, EventReadAll, BulkEvent{Count: n})
	}
	return n
}

// Delete removes one record; an unknown id is a no-op.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	remote := s.records[i].RemoteID
	s.records = append(s.records[:i], s.records[i+1:]...)
	s.recountLocked()
	ev := RecordEvent{ID: id, RemoteID: remote, Unread: s.unread}
	s.mu.Unlock()

	s.markDirty()
	eventbus.Emit(s.bus, EventDeleted, ev)
	return true
}

// ClearAll empties the store and returns how many records were removed.
func (s *Store) ClearAll() int {
	s.mu.Lock()
	n := len(s.records)
	s.records = nil
	s.recountLocked()
	s.mu.Unlock()

	s.markDirty()
	eventbus.Emit(s.bus, EventCleared, BulkEvent{Count: n})
	return n
}

// PruneOlderThan removes records created before now minus days and returns
// how many were removed. It only runs when called.
func (s *Store) PruneOlderThan(days int) int {
	if days < 0 {
		return 0
	}
	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)

	s.mu.Lock()
	kept := s.records[:0]
	for _, r := range s.records {
		if !r.CreatedAt.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	removed := len(s.records) - len(kept)
	for i := len(kept); i < len(s.records); i++ {
		s.records[i] = Record{}
	}
	s.records = kept
	s.recountLocked()
	unread := s.unread
	s.mu.Unlock()

	if removed > 0 {
		s.markDirty()
		eventbus.Emit(s.bus, EventPruned, BulkEvent{Count: removed, Unread: unread})
		s.log.Info("pruned notifications", logx.Int("removed", removed), logx.Int("retention_days", days))
	}
	return removed
}

// UpdatePreferences merges patch at the top level. The result must still be
// a valid set; otherwise nothing changes.
func (s *Store) UpdatePreferences(patch PreferencePatch) error {
	s.mu.Lock()
	next := s.prefs.Clone()
	patch.applyTo(&next)
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.prefs = next
	s.mu.Unlock()

	s.markDirty()
	eventbus.Emit(s.bus, EventPreferences, next.Clone())
	return nil
}

// ReplacePreferences swaps in a complete set (used when syncing from the server).
func (s *Store) ReplacePreferences(p PreferenceSet) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.prefs = p.Clone()
	s.mu.Unlock()

	s.markDirty()
	eventbus.Emit(s.bus, EventPreferences, p.Clone())
	return nil
}

// UpdateCategoryPreference merges patch into one category, leaving the others
// untouched.
func (s *Store) UpdateCategoryPreference(c Category, patch CategoryPatch) error {
	if !c.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, c)
	}
	if patch.MinimumPriority != nil && !patch.MinimumPriority.Valid() {
		return fmt.Errorf("%w: %w: %d", ErrInvalidPreferences, ErrInvalidPriority, int(*patch.MinimumPriority))
	}
	s.mu.Lock()
	next := s.prefs.Clone()
	cp := next.Categories[c]
	patch.applyTo(&cp)
	next.Categories[c] = cp
	s.prefs = next
	s.mu.Unlock()

	s.markDirty()
	eventbus.Emit(s.bus, EventPreferences, next.Clone())
	return nil
}

// SetSoundEnabled sets the store-wide sound flag.
func (s *Store) SetSoundEnabled(on bool) {
	s.mu.Lock()
	changed := s.soundOn != on
	s.soundOn = on
	s.mu.Unlock()
	if changed {
		s.markDirty()
	}
}

// ToggleSound flips the sound flag and returns the new value.
func (s *Store) ToggleSound() bool {
	s.mu.Lock()
	s.soundOn = !s.soundOn
	on := s.soundOn
	s.mu.Unlock()
	s.markDirty()
	return on
}

func (s *Store) SoundEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.soundOn
}

func (s *Store) Preferences() PreferenceSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs.Clone()
}

func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
