package notification

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitealert/internal/eventbus"
)

func countUnread(rs []Record) int {
	n := 0
	for _, r := range rs {
		if !r.Read {
			n++
		}
	}
	return n
}

func TestUnreadCountMatchesRecordsAfterEveryOperation(t *testing.T) {
	t.Parallel()
	clock := newFakeClock(noon)
	s := newTestStore(clock, nil)
	rng := rand.New(rand.NewSource(7))

	var ids []string
	for step := 0; step < 400; step++ {
		switch op := rng.Intn(10); {
		case op < 5:
			rec, err := s.Ingest(candidate(Categories()[rng.Intn(len(Categories()))], Priority(rng.Intn(4)), "t"))
			require.NoError(t, err)
			ids = append(ids, rec.ID)
			clock.Advance(time.Second)
		case op < 7 && len(ids) > 0:
			s.MarkRead(ids[rng.Intn(len(ids))])
		case op < 9 && len(ids) > 0:
			s.Delete(ids[rng.Intn(len(ids))])
		default:
			s.MarkAllRead()
		}
		require.Equal(t, countUnread(s.Records()), s.UnreadCount(), "step %d", step)
	}
}

func TestRecordsStayMostRecentFirst(t *testing.T) {
	t.Parallel()
	clock := newFakeClock(noon)
	s := newTestStore(clock, nil)

	var ids []string
	for i := 0; i < 6; i++ {
		rec, err := s.Ingest(candidate(CategoryComment, PriorityLow, "c"))
		require.NoError(t, err)
		ids = append(ids, rec.ID)
		clock.Advance(time.Minute)
	}
	s.MarkRead(ids[2])
	s.Delete(ids[4])
	s.MarkRead("missing")
	_, err := s.Ingest(candidate(CategoryComment, PriorityLow, "last"))
	require.NoError(t, err)

	rs := s.Records()
	require.Len(t, rs, 6)
	require.Equal(t, "last", rs[0].Title)
	for i := 1; i < len(rs); i++ {
		require.False(t, rs[i].CreatedAt.After(rs[i-1].CreatedAt))
	}
	require.Equal(t, []string{ids[5], ids[3], ids[2], ids[1], ids[0]},
		[]string{rs[1].ID, rs[2].ID, rs[3].ID, rs[4].ID, rs[5].ID})
}

func TestConcurrentIngestKeepsCreationOrder(t *testing.T) {
	t.Parallel()
	var (
		mu   sync.Mutex
		tick = noon
	)
	// Every read of the clock moves it forward, so any reordering between
	// taking the timestamp and inserting the record shows up as an inversion.
	s := NewStore(
		WithClock(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			tick = tick.Add(time.Millisecond)
			return tick
		}),
		WithLocation(time.UTC),
		WithIDGenerator(sequentialIDs()),
	)

	const workers, perWorker = 8, 200
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := s.Ingest(candidate(CategoryComment, PriorityLow, "c"))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	rs := s.Records()
	require.Len(t, rs, workers*perWorker)
	for i := 1; i < len(rs); i++ {
		require.False(t, rs[i-1].CreatedAt.Before(rs[i].CreatedAt), "index %d older than index %d", i-1, i)
	}
}

func TestIngestNeverStampsBeforeNewestRecord(t *testing.T) {
	t.Parallel()
	clock := newFakeClock(noon)
	s := newTestStore(clock, nil)

	_, err := s.Ingest(candidate(CategoryComment, PriorityLow, "first"))
	require.NoError(t, err)
	clock.Set(noon.Add(-time.Hour))
	rec, err := s.Ingest(candidate(CategoryComment, PriorityLow, "second"))
	require.NoError(t, err)

	assert.Equal(t, noon, rec.CreatedAt)
	assert.Equal(t, "second", s.Records()[0].Title)
}

func TestDisabledCategoryIsStoredButSilent(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	s := newTestStore(newFakeClock(noon), rec)
	require.NoError(t, s.UpdateCategoryPreference(CategoryBottleneckAlert, CategoryPatch{Enabled: Bool(false)}))

	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent} {
		_, err := s.Ingest(candidate(CategoryBottleneckAlert, p, "b"))
		require.NoError(t, err)
	}
	require.Zero(t, rec.total())
	require.Len(t, s.ByCategory(CategoryBottleneckAlert), 4)
	require.Equal(t, 4, s.UnreadCount())
}

func TestMinimumPriorityThreshold(t *testing.T) {
	t.Parallel()
	tests := []struct {
		priority Priority
		fires    bool
	}{
		{PriorityLow, false},
		{PriorityMedium, false},
		{PriorityHigh, true},
		{PriorityUrgent, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.priority.String(), func(t *testing.T) {
			t.Parallel()
			rec := &recorder{}
			s := newTestStore(newFakeClock(noon), rec)
			require.NoError(t, s.UpdateCategoryPreference(CategoryMention, CategoryPatch{MinimumPriority: PriorityPtr(PriorityHigh)}))

			_, err := s.Ingest(candidate(CategoryMention, tt.priority, "m"))
			require.NoError(t, err)
			if tt.fires {
				require.Equal(t, 1, rec.count(ChannelDesktop))
				require.Equal(t, 1, rec.count(ChannelSound))
			} else {
				require.Zero(t, rec.total())
			}
		})
	}
}

func TestQuietHoursWraparoundInStore(t *testing.T) {
	t.Parallel()
	clock := newFakeClock(time.Date(2026, 5, 12, 23, 30, 0, 0, time.UTC))
	rec := &recorder{}
	s := newTestStore(clock, rec)
	require.NoError(t, s.UpdatePreferences(PreferencePatch{
		QuietHours: &QuietHours{Enabled: true, Start: "22:00", End: "08:00", AllowUrgent: true},
	}))

	_, err := s.Ingest(candidate(CategoryStageDelayed, PriorityHigh, "late high"))
	require.NoError(t, err)
	require.Zero(t, rec.count(ChannelDesktop))

	_, err = s.Ingest(candidate(CategoryStageDelayed, PriorityUrgent, "late urgent"))
	require.NoError(t, err)
	require.Equal(t, 1, rec.count(ChannelDesktop))

	clock.Set(noon)
	_, err = s.Ingest(candidate(CategoryStageDelayed, PriorityHigh, "noon high"))
	require.NoError(t, err)
	require.Equal(t, 2, rec.count(ChannelDesktop))
	require.Equal(t, 2, rec.count(ChannelSound))
}

func TestQuietHoursUseConfiguredLocation(t *testing.T) {
	t.Parallel()
	// 14:30 UTC is 23:30 in Tokyo.
	clock := newFakeClock(time.Date(2026, 5, 12, 14, 30, 0, 0, time.UTC))
	tokyo := time.FixedZone("JST", 9*3600)
	rec := &recorder{}
	s := newTestStore(clock, rec, WithLocation(tokyo))
	require.NoError(t, s.UpdatePreferences(PreferencePatch{
		QuietHours: &QuietHours{Enabled: true, Start: "22:00", End: "08:00"},
	}))
	_, err := s.Ingest(candidate(CategoryStageDelayed, PriorityUrgent, "x"))
	require.NoError(t, err)
	require.Zero(t, rec.total())
}

func TestPruneOlderThan(t *testing.T) {
	t.Parallel()
	clock := newFakeClock(noon.AddDate(0, 0, -31))
	s := newTestStore(clock, nil)
	old, err := s.Ingest(candidate(CategoryComment, PriorityLow, "old"))
	require.NoError(t, err)
	clock.Set(noon.AddDate(0, 0, -29))
	young, err := s.Ingest(candidate(CategoryComment, PriorityLow, "young"))
	require.NoError(t, err)
	clock.Set(noon)

	require.Equal(t, 1, s.PruneOlderThan(30))
	_, ok := s.Get(old.ID)
	require.False(t, ok)
	_, ok = s.Get(young.ID)
	require.True(t, ok)
	require.Equal(t, 1, s.UnreadCount())
	require.Zero(t, s.PruneOlderThan(30))
}

func TestUnknownCategoryIsRejected(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()
	s := newTestStore(newFakeClock(noon), nil, WithBus(bus))

	_, err := s.Ingest(Candidate{Category: "site_visit", Priority: PriorityHigh, Title: "x"})
	require.ErrorIs(t, err, ErrUnknownCategory)
	_, err = s.Ingest(Candidate{Category: CategoryComment, Priority: Priority(9), Title: "x"})
	require.ErrorIs(t, err, ErrInvalidPriority)
	require.Zero(t, s.Len())

	ev := <-events
	require.Equal(t, EventRejected, ev.Type)
}

func TestMutationsOnMissingIDsAreNoops(t *testing.T) {
	t.Parallel()
	s := newTestStore(newFakeClock(noon), nil)
	_, err := s.Ingest(candidate(CategoryComment, PriorityLow, "a"))
	require.NoError(t, err)

	require.False(t, s.MarkRead("nope"))
	require.False(t, s.Delete("nope"))
	require.Equal(t, 1, s.Len())
	require.Equal(t, 1, s.UnreadCount())
}

func TestMarkAllReadAndClearAll(t *testing.T) {
	t.Parallel()
	s := newTestStore(newFakeClock(noon), nil)
	for i := 0; i < 3; i++ {
		_, err := s.Ingest(candidate(CategoryComment, PriorityLow, "a"))
		require.NoError(t, err)
	}
	require.Equal(t, 3, s.MarkAllRead())
	require.Zero(t, s.UnreadCount())
	require.Zero(t, s.MarkAllRead())
	require.Equal(t, 3, s.ClearAll())
	require.Zero(t, s.Len())
	require.Zero(t, s.UnreadCount())
}

func TestQueries(t *testing.T) {
	t.Parallel()
	clock := newFakeClock(noon.Add(-5 * time.Hour))
	s := newTestStore(clock, nil)
	a, _ := s.Ingest(candidate(CategoryMention, PriorityMedium, "a"))
	clock.Set(noon.Add(-1 * time.Hour))
	b, _ := s.Ingest(candidate(CategoryStageDelayed, PriorityUrgent, "b"))
	c, _ := s.Ingest(candidate(CategoryMention, PriorityLow, "c"))
	clock.Set(noon)
	s.MarkRead(c.ID)

	ids := func(rs []Record) []string {
		out := []string{}
		for _, r := range rs {
			out = append(out, r.ID)
		}
		return out
	}
	assert.Equal(t, []string{c.ID, a.ID}, ids(s.ByCategory(CategoryMention)))
	assert.Equal(t, []string{b.ID, a.ID}, ids(s.AtLeastPriority(PriorityMedium)))
	assert.Equal(t, []string{b.ID, a.ID}, ids(s.Unread()))
	assert.Equal(t, []string{c.ID, b.ID}, ids(s.Recent(2)))

	// Views are copies.
	rs := s.Records()
	rs[0].Read = false
	got, _ := s.Get(c.ID)
	assert.True(t, got.Read)
}

func TestUpdateCategoryPreferenceLeavesSiblings(t *testing.T) {
	t.Parallel()
	s := newTestStore(newFakeClock(noon), nil)
	before := s.Preferences()

	require.NoError(t, s.UpdateCategoryPreference(CategoryComment, CategoryPatch{Desktop: Bool(true), Sound: Bool(true)}))
	after := s.Preferences()

	got := after.Categories[CategoryComment]
	require.True(t, got.Desktop)
	require.True(t, got.Sound)
	require.True(t, got.Enabled)
	require.Equal(t, PriorityLow, got.MinimumPriority)
	for _, c := range Categories() {
		if c != CategoryComment {
			require.Equal(t, before.Categories[c], after.Categories[c], c)
		}
	}

	require.ErrorIs(t, s.UpdateCategoryPreference("unknown", CategoryPatch{}), ErrUnknownCategory)
	require.ErrorIs(t, s.UpdateCategoryPreference(CategoryComment, CategoryPatch{MinimumPriority: PriorityPtr(Priority(7))}), ErrInvalidPreferences)
}

func TestUpdatePreferencesRejectsInvalidAndKeepsState(t *testing.T) {
	t.Parallel()
	s := newTestStore(newFakeClock(noon), nil)
	err := s.UpdatePreferences(PreferencePatch{
		DesktopEnabled: Bool(false),
		QuietHours:     &QuietHours{Enabled: true, Start: "25:00", End: "08:00"},
	})
	require.ErrorIs(t, err, ErrInvalidPreferences)
	require.True(t, s.Preferences().DesktopEnabled)

	require.NoError(t, s.UpdatePreferences(PreferencePatch{DesktopEnabled: Bool(false)}))
	p := s.Preferences()
	require.False(t, p.DesktopEnabled)
	require.True(t, p.SoundEnabled)
	require.Equal(t, DefaultPreferences().QuietHours, p.QuietHours)
}

func TestGroupingSuppressesRepeatedInterruptions(t *testing.T) {
	t.Parallel()
	clock := newFakeClock(noon)
	rec := &recorder{}
	s := newTestStore(clock, rec)

	for i := 0; i < 3; i++ {
		_, err := s.Ingest(candidate(CategoryHandoffRequest, PriorityHigh, "same"))
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}
	require.Equal(t, 3, s.Len())
	require.Equal(t, 1, rec.count(ChannelDesktop))

	clock.Advance(5 * time.Minute)
	_, err := s.Ingest(candidate(CategoryHandoffRequest, PriorityHigh, "same"))
	require.NoError(t, err)
	require.Equal(t, 2, rec.count(ChannelDesktop))

	require.NoError(t, s.UpdatePreferences(PreferencePatch{Grouping: &Grouping{Enabled: false, WindowMinutes: 5}}))
	_, err = s.Ingest(candidate(CategoryHandoffRequest, PriorityHigh, "same"))
	require.NoError(t, err)
	require.Equal(t, 3, rec.count(ChannelDesktop))
}

func TestSoundFlag(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	s := newTestStore(newFakeClock(noon), rec)
	require.False(t, s.ToggleSound())
	_, err := s.Ingest(candidate(CategoryMention, PriorityMedium, "quiet"))
	require.NoError(t, err)
	require.Zero(t, rec.count(ChannelSound))
	require.Equal(t, 1, rec.count(ChannelDesktop))

	s.SetSoundEnabled(true)
	require.True(t, s.SoundEnabled())
}

func TestNotifierPanicDoesNotEscapeIngest(t *testing.T) {
	t.Parallel()
	s := newTestStore(newFakeClock(noon), NotifierFunc(func(Channel, Record) { panic("platform exploded") }))
	rec, err := s.Ingest(candidate(CategoryMention, PriorityHigh, "p"))
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
	require.Equal(t, 1, s.UnreadCount())
}

func TestClickHandlerMayReenterStore(t *testing.T) {
	t.Parallel()
	var s *Store
	s = newTestStore(newFakeClock(noon), NotifierFunc(func(ch Channel, r Record) {
		if ch == ChannelDesktop {
			s.MarkRead(r.ID)
		}
	}))
	_, err := s.Ingest(candidate(CategoryMention, PriorityHigh, "p"))
	require.NoError(t, err)
	require.Zero(t, s.UnreadCount())
}

func TestIngestPublishesDecision(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()
	s := newTestStore(newFakeClock(noon), nil, WithBus(bus))

	rec, err := s.Ingest(candidate(CategoryStageCompleted, PriorityLow, "done"))
	require.NoError(t, err)
	ev := <-events
	require.Equal(t, EventIngested, ev.Type)
	data := ev.Data.(IngestedEvent)
	require.Equal(t, rec.ID, data.Record.ID)
	require.Equal(t, SuppressChannelOff, data.Decision.Suppressed)
	require.Equal(t, 1, data.Unread)

	s.MarkRead(rec.ID)
	ev = <-events
	require.Equal(t, EventRead, ev.Type)
	require.Equal(t, 0, ev.Data.(RecordEvent).Unread)
}
