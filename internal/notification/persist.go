package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sitealert/internal/storage"
	logx "sitealert/pkg/logx"
)

const (
	// StorageKey is where the store keeps its state.
	StorageKey = "notification-storage"
	// MaxPersisted caps how many records are written out.
	MaxPersisted = 100
)

// StateStore is the durable key-value area the Store writes to.
// storage.Store satisfies it.
type StateStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

type persistedState struct {
	Notifications []Record       `json:"notifications"`
	Preferences   *PreferenceSet `json:"preferences,omitempty"`
	SoundEnabled  *bool          `json:"soundEnabled,omitempty"`
}

// storedState is persistedState with each part left raw, so that one bad
// record or a bad preference value only costs that part.
type storedState struct {
	Notifications []json.RawMessage `json:"notifications"`
	Preferences   json.RawMessage   `json:"preferences,omitempty"`
	SoundEnabled  *bool             `json:"soundEnabled,omitempty"`
}

// Load replaces in-memory state with what the StateStore holds. Absent or
// malformed data leaves the defaults in place; the Store is usable either way
// and the returned error is informational.
func (s *Store) Load(ctx context.Context) error {
	if s.state == nil {
		return nil
	}
	b, err := s.state.Get(ctx, StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.log.Warn("notification state read failed; using defaults", logx.Err(err))
		return fmt.Errorf("load notification state: %w", err)
	}

	var ps storedState
	if err := json.Unmarshal(b, &ps); err != nil {
		s.log.Warn("notification state malformed; using defaults", logx.Err(err))
		return fmt.Errorf("decode notification state: %w", err)
	}

	records := make([]Record, 0, len(ps.Notifications))
	dropped := 0
	for _, raw := range ps.Notifications {
		var r Record
		if err := json.Unmarshal(raw, &r); err != nil || !r.Category.Known() || !r.Priority.Valid() || r.ID == "" {
			dropped++
			continue
		}
		records = append(records, r)
		if len(records) == MaxPersisted {
			break
		}
	}

	prefs := DefaultPreferences()
	if len(ps.Preferences) > 0 && string(ps.Preferences) != "null" {
		var p PreferenceSet
		if err := json.Unmarshal(ps.Preferences, &p); err != nil {
			s.log.Warn("persisted preferences malformed; using defaults", logx.Err(err))
		} else {
			prefs = normalize(p)
		}
	}
	soundOn := true
	if ps.SoundEnabled != nil {
		soundOn = *ps.SoundEnabled
	}

	s.mu.Lock()
	s.records = records
	s.prefs = prefs
	s.soundOn = soundOn
	s.recountLocked()
	unread := s.unread
	s.mu.Unlock()

	s.log.Info("notification state loaded",
		logx.Int("records", len(records)),
		logx.Int("dropped", dropped),
		logx.Int("unread", unread),
	)
	return nil
}

func (s *Store) snapshot() ([]byte, error) {
	s.mu.RLock()
	n := min(len(s.records), MaxPersisted)
	ps := persistedState{
		Notifications: append([]Record(nil), s.records[:n]...),
		Preferences:   ptr(s.prefs.Clone()),
		SoundEnabled:  ptr(s.soundOn),
	}
	s.mu.RUnlock()
	return json.Marshal(ps)
}

// Flush writes the current state synchronously.
func (s *Store) Flush(ctx context.Context) error {
	if s.state == nil {
		return nil
	}
	b, err := s.snapshot()
	if err != nil {
		return fmt.Errorf("encode notification state: %w", err)
	}
	if err := s.state.Put(ctx, StorageKey, b); err != nil {
		return fmt.Errorf("write notification state: %w", err)
	}
	return nil
}

// RunPersistence writes state after mutations until ctx is done. Bursts of
// mutations collapse into one write; a failed write is logged and retried on
// the next mutation.
func (s *Store) RunPersistence(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.dirty:
			wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := s.Flush(wctx); err != nil {
				s.log.Warn("notification state write failed", logx.Err(err))
			}
			cancel()
		}
	}
}

func (s *Store) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func ptr[T any](v T) *T { return &v }
