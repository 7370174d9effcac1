package remote

import (
	"sitealert/internal/notification"
)

// Preferences is the backend's preference document.
type Preferences struct {
	ID                      string                                     `json:"id,omitempty"`
	UserID                  string                                     `json:"user_id,omitempty"`
	EnableDesktop           bool                                       `json:"enable_desktop_notifications"`
	EnableEmail             bool                                       `json:"enable_email_notifications"`
	EnableSound             bool                                       `json:"enable_sound_notifications"`
	EnablePush              bool                                       `json:"enable_push_notifications"`
	TypePreferences         map[string]notification.CategoryPreference `json:"type_preferences,omitempty"`
	QuietHoursEnabled       bool                                       `json:"quiet_hours_enabled"`
	QuietHoursStart         string                                     `json:"quiet_hours_start"`
	QuietHoursEnd           string                                     `json:"quiet_hours_end"`
	AllowUrgentInQuietHours bool                                       `json:"allow_urgent_in_quiet_hours"`
	GroupingEnabled         bool                                       `json:"grouping_enabled"`
	GroupingTimeWindow      int                                        `json:"grouping_time_window"`
}

// PreferencesUpdate is a partial update; nil fields are left alone.
type PreferencesUpdate struct {
	EnableDesktop           *bool                                      `json:"enable_desktop_notifications,omitempty"`
	EnableEmail             *bool                                      `json:"enable_email_notifications,omitempty"`
	EnableSound             *bool                                      `json:"enable_sound_notifications,omitempty"`
	EnablePush              *bool                                      `json:"enable_push_notifications,omitempty"`
	TypePreferences         map[string]notification.CategoryPreference `json:"type_preferences,omitempty"`
	QuietHoursEnabled       *bool                                      `json:"quiet_hours_enabled,omitempty"`
	QuietHoursStart         *string                                    `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd           *string                                    `json:"quiet_hours_end,omitempty"`
	AllowUrgentInQuietHours *bool                                      `json:"allow_urgent_in_quiet_hours,omitempty"`
	GroupingEnabled         *bool                                      `json:"grouping_enabled,omitempty"`
	GroupingTimeWindow      *int                                       `json:"grouping_time_window,omitempty"`
}

// Patch maps the backend document onto a local preference patch. Category
// entries the backend does not carry keep their local values; unknown
// categories are ignored.
func (p Preferences) Patch() notification.PreferencePatch {
	patch := notification.PreferencePatch{
		DesktopEnabled: notification.Bool(p.EnableDesktop),
		SoundEnabled:   notification.Bool(p.EnableSound),
		EmailEnabled:   notification.Bool(p.EnableEmail),
		PushEnabled:    notification.Bool(p.EnablePush),
		QuietHours: &notification.QuietHours{
			Enabled:     p.QuietHoursEnabled,
			Start:       p.QuietHoursStart,
			End:         p.QuietHoursEnd,
			AllowUrgent: p.AllowUrgentInQuietHours,
		},
		Grouping: &notification.Grouping{Enabled: p.GroupingEnabled, WindowMinutes: p.GroupingTimeWindow},
	}
	for name, cp := range p.TypePreferences {
		c, err := notification.ParseCategory(name)
		if err != nil || !cp.MinimumPriority.Valid() {
			continue
		}
		if patch.Categories == nil {
			patch.Categories = map[notification.Category]notification.CategoryPreference{}
		}
		patch.Categories[c] = cp
	}
	return patch
}

// UpdateFrom builds a full update from a local preference set.
func UpdateFrom(p notification.PreferenceSet) PreferencesUpdate {
	types := make(map[string]notification.CategoryPreference, len(p.Categories))
	for c, cp := range p.Categories {
		types[string(c)] = cp
	}
	qh := p.QuietHours
	window := max(p.Grouping.WindowMinutes, 1)
	return PreferencesUpdate{
		EnableDesktop:           ptr(p.DesktopEnabled),
		EnableEmail:             ptr(p.EmailEnabled),
		EnableSound:             ptr(p.SoundEnabled),
		EnablePush:              ptr(p.PushEnabled),
		TypePreferences:         types,
		QuietHoursEnabled:       ptr(qh.Enabled),
		QuietHoursStart:         ptr(qh.Start),
		QuietHoursEnd:           ptr(qh.End),
		AllowUrgentInQuietHours: ptr(qh.AllowUrgent),
		GroupingEnabled:         ptr(p.Grouping.Enabled),
		GroupingTimeWindow:      ptr(min(window, 60)),
	}
}

func ptr[T any](v T) *T { return &v }
