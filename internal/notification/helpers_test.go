package notification

import (
	"fmt"
	"sync"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type delivery struct {
	ch Channel
	id string
}

type recorder struct {
	mu    sync.Mutex
	calls []delivery
}

func (r *recorder) Notify(ch Channel, rec Record) {
	r.mu.Lock()
	r.calls = append(r.calls, delivery{ch: ch, id: rec.ID})
	r.mu.Unlock()
}

func (r *recorder) count(ch Channel) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.ch == ch {
			n++
		}
	}
	return n
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func sequentialIDs() func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("n-%03d", n)
	}
}

// noon is outside the default quiet-hours window.
var noon = time.Date(2026, 5, 12, 12, 0, 0, 0, time.UTC)

func newTestStore(clock *fakeClock, n Notifier, opts ...Option) *Store {
	base := []Option{
		WithClock(clock.Now),
		WithLocation(time.UTC),
		WithIDGenerator(sequentialIDs()),
		WithNotifier(n),
	}
	return NewStore(append(base, opts...)...)
}

func candidate(c Category, p Priority, title string) Candidate {
	return Candidate{Category: c, Priority: p, Title: title, Message: title + " body"}
}
