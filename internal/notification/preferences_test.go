package notification

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultPreferencesCoverEveryCategory(t *testing.T) {
	t.Parallel()
	p := DefaultPreferences()
	require.NoError(t, p.Validate())
	require.Len(t, p.Categories, len(Categories()))

	require.True(t, p.DesktopEnabled)
	require.True(t, p.SoundEnabled)
	require.False(t, p.EmailEnabled)
	require.False(t, p.PushEnabled)
	require.Equal(t, QuietHours{Enabled: false, Start: "22:00", End: "08:00", AllowUrgent: true}, p.QuietHours)
	require.Equal(t, Grouping{Enabled: true, WindowMinutes: 5}, p.Grouping)

	require.Equal(t, PriorityUrgent, p.Categories[CategoryBottleneckAlert].MinimumPriority)
	require.False(t, p.Categories[CategoryStageCompleted].Desktop)
	require.True(t, p.Categories[CategoryTaskDeadline].Email)
	require.False(t, p.Categories[CategoryMilestone].Sound)
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()
	a := DefaultPreferences()
	b := a.Clone()
	cp := b.Categories[CategoryComment]
	cp.Enabled = false
	b.Categories[CategoryComment] = cp
	require.True(t, a.Categories[CategoryComment].Enabled)
}

func TestValidateRejectsMissingAndUnknownCategories(t *testing.T) {
	t.Parallel()
	p := DefaultPreferences()
	delete(p.Categories, CategoryMention)
	require.ErrorIs(t, p.Validate(), ErrInvalidPreferences)

	p = DefaultPreferences()
	p.Categories["legacy"] = CategoryPreference{}
	err := p.Validate()
	require.ErrorIs(t, err, ErrInvalidPreferences)
	require.ErrorIs(t, err, ErrUnknownCategory)

	p = DefaultPreferences()
	p.Grouping.WindowMinutes = -1
	require.ErrorIs(t, p.Validate(), ErrInvalidPreferences)
}

func TestPreferencesJSON(t *testing.T) {
	t.Parallel()
	b, err := json.Marshal(DefaultPreferences())
	require.NoError(t, err)
	var back PreferenceSet
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, DefaultPreferences(), back)
	require.Contains(t, string(b), `"minimum_priority":"urgent"`)
}

func TestParseCategoryAndPriority(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]Category{
		"stage_delayed":     CategoryStageDelayed,
		"stage-delayed":     CategoryStageDelayed,
		"Milestone":         CategoryMilestone,
		"project_milestone": CategoryMilestone,
	} {
		got, err := ParseCategory(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseCategory("site_visit")
	require.ErrorIs(t, err, ErrUnknownCategory)

	p, err := ParsePriority(" URGENT ")
	require.NoError(t, err)
	require.Equal(t, PriorityUrgent, p)
	require.True(t, PriorityUrgent > PriorityHigh)
	_, err = ParsePriority("critical")
	require.ErrorIs(t, err, ErrInvalidPriority)
}
