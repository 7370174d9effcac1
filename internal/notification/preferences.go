package notification

import (
	"fmt"
)

// CategoryPreference controls delivery for one category.
type CategoryPreference struct {
	Enabled bool `json:"enabled"`
	Desktop bool `json:"desktop"`
	// Email is stored for the server side; nothing here sends mail.
	Email           bool     `json:"email"`
	Sound           bool     `json:"sound"`
	Push            bool     `json:"push"`
	MinimumPriority Priority `json:"minimum_priority"`
}

// QuietHours is a wall-clock window (HH:MM, 24h) that may wrap midnight.
type QuietHours struct {
	Enabled     bool   `json:"enabled"`
	Start       string `json:"start"`
	End         string `json:"end"`
	AllowUrgent bool   `json:"allow_urgent"`
}

type Grouping struct {
	Enabled       bool `json:"enabled"`
	WindowMinutes int  `json:"window_minutes"`
}

// PreferenceSet always holds an entry for every known category.
type PreferenceSet struct {
	DesktopEnabled bool                            `json:"desktop_enabled"`
	SoundEnabled   bool                            `json:"sound_enabled"`
	EmailEnabled   bool                            `json:"email_enabled"`
	PushEnabled    bool                            `json:"push_enabled"`
	Categories     map[Category]CategoryPreference `json:"categories"`
	QuietHours     QuietHours                      `json:"quiet_hours"`
	Grouping       Grouping                        `json:"grouping"`
}

func categoryDefault(enabled, desktop, email, sound, push bool, min Priority) CategoryPreference {
	return CategoryPreference{Enabled: enabled, Desktop: desktop, Email: email, Sound: sound, Push: push, MinimumPriority: min}
}

var defaultCategories = map[Category]CategoryPreference{
	CategoryTaskAssigned:     categoryDefault(true, true, false, true, true, PriorityMedium),
	CategoryTaskDeadline:     categoryDefault(true, true, true, true, true, PriorityHigh),
	CategoryStageCompleted:   categoryDefault(true, false, false, false, false, PriorityLow),
	CategoryStageDelayed:     categoryDefault(true, true, true, true, true, PriorityHigh),
	CategoryHandoffRequest:   categoryDefault(true, true, false, true, true, PriorityHigh),
	CategoryHandoffCompleted: categoryDefault(true, false, false, false, false, PriorityMedium),
	CategoryMilestone:        categoryDefault(true, true, false, false, false, PriorityMedium),
	CategoryBottleneckAlert:  categoryDefault(true, true, true, true, true, PriorityUrgent),
	CategoryApprovalRequired: categoryDefault(true, true, false, true, true, PriorityHigh),
	CategorySystemUpdate:     categoryDefault(true, false, false, false, false, PriorityLow),
	CategoryMention:          categoryDefault(true, true, false, true, true, PriorityMedium),
	CategoryComment:          categoryDefault(true, false, false, false, false, PriorityLow),
}

func defaultQuietHours() QuietHours {
	return QuietHours{Enabled: false, Start: "22:00", End: "08:00", AllowUrgent: true}
}

func defaultGrouping() Grouping { return Grouping{Enabled: true, WindowMinutes: 5} }

// DefaultPreferences returns the system defaults.
func DefaultPreferences() PreferenceSet {
	p := PreferenceSet{
		DesktopEnabled: true,
		SoundEnabled:   true,
		EmailEnabled:   false,
		PushEnabled:    false,
		Categories:     make(map[Category]CategoryPreference, len(categoryOrder)),
		QuietHours:     defaultQuietHours(),
		Grouping:       defaultGrouping(),
	}
	for _, c := range categoryOrder {
		p.Categories[c] = defaultCategories[c]
	}
	return p
}

// Clone returns a copy whose category map can be modified independently.
func (p PreferenceSet) Clone() PreferenceSet {
	out := p
	out.Categories = make(map[Category]CategoryPreference, len(p.Categories))
	for k, v := range p.Categories {
		out.Categories[k] = v
	}
	return out
}

func (p PreferenceSet) Validate() error {
	for _, c := range categoryOrder {
		cp, ok := p.Categories[c]
		if !ok {
			return fmt.Errorf("%w: missing category %s", ErrInvalidPreferences, c)
		}
		if !cp.MinimumPriority.Valid() {
			return fmt.Errorf("%w: %s minimum priority %d", ErrInvalidPreferences, c, int(cp.MinimumPriority))
		}
	}
	for c := range p.Categories {
		if !c.Known() {
			return fmt.Errorf("%w: %w: %q", ErrInvalidPreferences, ErrUnknownCategory, c)
		}
	}
	if _, err := ParseClock(p.QuietHours.Start); err != nil {
		return fmt.Errorf("%w: quiet_hours.start: %w", ErrInvalidPreferences, err)
	}
	if _, err := ParseClock(p.QuietHours.End); err != nil {
		return fmt.Errorf("%w: quiet_hours.end: %w", ErrInvalidPreferences, err)
	}
	if p.Grouping.WindowMinutes < 0 {
		return fmt.Errorf("%w: grouping.window_minutes must be >= 0", ErrInvalidPreferences)
	}
	return nil
}

// normalize repairs persisted preferences: missing or invalid parts take the
// defaults, unknown categories are dropped.
func normalize(p PreferenceSet) PreferenceSet {
	out := p.Clone()
	for c := range out.Categories {
		if !c.Known() {
			delete(out.Categories, c)
		}
	}
	for _, c := range categoryOrder {
		cp, ok := out.Categories[c]
		if !ok || !cp.MinimumPriority.Valid() {
			out.Categories[c] = defaultCategories[c]
		}
	}
	_, errStart := ParseClock(out.QuietHours.Start)
	_, errEnd := ParseClock(out.QuietHours.End)
	if errStart != nil || errEnd != nil {
		out.QuietHours = defaultQuietHours()
	}
	if out.Grouping.WindowMinutes < 0 {
		out.Grouping = defaultGrouping()
	}
	return out
}

// PreferencePatch replaces the top-level fields that are set.
// Categories, when non-nil, replaces entries for the categories it names.
type PreferencePatch struct {
	DesktopEnabled *bool
	SoundEnabled   *bool
	EmailEnabled   *bool
	PushEnabled    *bool
	Categories     map[Category]CategoryPreference
	QuietHours     *QuietHours
	Grouping       *Grouping
}

func (pp PreferencePatch) applyTo(p *PreferenceSet) {
	setBool(&p.DesktopEnabled, pp.DesktopEnabled)
	setBool(&p.SoundEnabled, pp.SoundEnabled)
	setBool(&p.EmailEnabled, pp.EmailEnabled)
	setBool(&p.PushEnabled, pp.PushEnabled)
	for c, cp := range pp.Categories {
		p.Categories[c] = cp
	}
	if pp.QuietHours != nil {
		p.QuietHours = *pp.QuietHours
	}
	if pp.Grouping != nil {
		p.Grouping = *pp.Grouping
	}
}

// CategoryPatch merges into a single category entry.
type CategoryPatch struct {
	Enabled         *bool
	Desktop         *bool
	Email           *bool
	Sound           *bool
	Push            *bool
	MinimumPriority *Priority
}

func (cp CategoryPatch) applyTo(p *CategoryPreference) {
	setBool(&p.Enabled, cp.Enabled)
	setBool(&p.Desktop, cp.Desktop)
	setBool(&p.Email, cp.Email)
	setBool(&p.Sound, cp.Sound)
	setBool(&p.Push, cp.Push)
	if cp.MinimumPriority != nil {
		p.MinimumPriority = *cp.MinimumPriority
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// Bool returns a pointer to v, for building patches.
func Bool(v bool) *bool { return &v }

// PriorityPtr returns a pointer to p, for building patches.
func PriorityPtr(p Priority) *Priority { return &p }
