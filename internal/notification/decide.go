package notification

import (
	"fmt"
	"hash/fnv"
	"time"
)

// Channel names a delivery side effect.
type Channel string

const (
	ChannelDesktop Channel = "desktop"
	ChannelSound   Channel = "sound"
	ChannelPush    Channel = "push"
)

// Suppression explains why nothing fired.
type Suppression string

const (
	SuppressNone             Suppression = ""
	SuppressCategoryDisabled Suppression = "category_disabled"
	SuppressBelowMinimum     Suppression = "below_minimum"
	SuppressQuietHours       Suppression = "quiet_hours"
	SuppressChannelOff       Suppression = "channel_off"
	SuppressGrouped          Suppression = "grouped"
)

type Decision struct {
	Channels   []Channel   `json:"channels,omitempty"`
	Suppressed Suppression `json:"suppressed,omitempty"`
}

func (d Decision) Has(ch Channel) bool {
	for _, c := range d.Channels {
		if c == ch {
			return true
		}
	}
	return false
}

// Decide computes which channels fire for rec. soundOn is the store's sound
// flag, checked in addition to the global sound toggle.
//
// Quiet hours gate every channel alike.
func Decide(p PreferenceSet, soundOn bool, rec Record, now ClockTime) Decision {
	cp, ok := p.Categories[rec.Category]
	if !ok || !cp.Enabled {
		return Decision{Suppressed: SuppressCategoryDisabled}
	}
	if rec.Priority < cp.MinimumPriority {
		return Decision{Suppressed: SuppressBelowMinimum}
	}
	if !p.QuietHours.Allows(now, rec.Priority) {
		return Decision{Suppressed: SuppressQuietHours}
	}

	var d Decision
	if cp.Desktop && p.DesktopEnabled {
		d.Channels = append(d.Channels, ChannelDesktop)
	}
	if cp.Sound && p.SoundEnabled && soundOn {
		d.Channels = append(d.Channels, ChannelSound)
	}
	if cp.Push && p.PushEnabled {
		d.Channels = append(d.Channels, ChannelPush)
	}
	if len(d.Channels) == 0 {
		d.Suppressed = SuppressChannelOff
	}
	return d
}

// coalescer suppresses repeated identical interruptions inside the grouping
// window. Records themselves are never merged. Not safe for concurrent use;
// the Store calls it under its lock.
type coalescer struct {
	until map[string]time.Time
	max   int
}

func newCoalescer(max int) *coalescer {
	if max <= 0 {
		max = 1024
	}
	return &coalescer{until: map[string]time.Time{}, max: max}
}

func (c *coalescer) allow(key string, now time.Time, window time.Duration) bool {
	if until, ok := c.until[key]; ok && now.Before(until) {
		return false
	}
	c.until[key] = now.Add(window)

	for k, t := range c.until {
		if !now.Before(t) {
			delete(c.until, k)
		}
	}
	for len(c.until) > c.max {
		var (
			oldest string
			minT   time.Time
		)
		for k, t := range c.until {
			if oldest == "" || t.Before(minT) {
				oldest, minT = k, t
			}
		}
		delete(c.until, oldest)
	}
	return true
}

func groupKey(rec Record) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(rec.Category))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(rec.Title))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(rec.Message))
	if rec.Subject != nil {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(rec.Subject.ID))
	}
	return fmt.Sprintf("%x", h.Sum64())
}
