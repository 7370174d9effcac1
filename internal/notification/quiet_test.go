package notification

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want ClockTime
		ok   bool
	}{
		{in: "00:00", want: 0, ok: true},
		{in: "08:30", want: 8*60 + 30, ok: true},
		{in: "7:05", want: 7*60 + 5, ok: true},
		{in: "23:59", want: 23*60 + 59, ok: true},
		{in: "24:00"},
		{in: "12:60"},
		{in: "1200"},
		{in: "aa:bb"},
		{in: ""},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if !tt.ok {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}
	require.Equal(t, "08:05", ClockTime(8*60+5).String())
}

func TestQuietHoursContains(t *testing.T) {
	t.Parallel()
	overnight := QuietHours{Enabled: true, Start: "22:00", End: "08:00"}
	daytime := QuietHours{Enabled: true, Start: "12:00", End: "13:30"}
	empty := QuietHours{Enabled: true, Start: "09:00", End: "09:00"}

	tests := []struct {
		name string
		q    QuietHours
		now  string
		want bool
	}{
		{"overnight late", overnight, "23:30", true},
		{"overnight start inclusive", overnight, "22:00", true},
		{"overnight after midnight", overnight, "03:15", true},
		{"overnight end exclusive", overnight, "08:00", false},
		{"overnight noon", overnight, "12:00", false},
		{"daytime inside", daytime, "12:45", true},
		{"daytime end exclusive", daytime, "13:30", false},
		{"daytime before", daytime, "11:59", false},
		{"equal bounds", empty, "09:00", false},
		{"bad bounds", QuietHours{Enabled: true, Start: "x", End: "08:00"}, "03:00", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now, err := ParseClock(tt.now)
			require.NoError(t, err)
			require.Equal(t, tt.want, tt.q.Contains(now))
		})
	}
}

func TestQuietHoursAllowsUrgentOverride(t *testing.T) {
	t.Parallel()
	q := QuietHours{Enabled: true, Start: "22:00", End: "08:00", AllowUrgent: true}
	late, _ := ParseClock("23:30")
	midday, _ := ParseClock("12:00")

	require.False(t, q.Allows(late, PriorityHigh))
	require.True(t, q.Allows(late, PriorityUrgent))
	require.True(t, q.Allows(midday, PriorityLow))

	q.AllowUrgent = false
	require.False(t, q.Allows(late, PriorityUrgent))

	q.Enabled = false
	require.True(t, q.Allows(late, PriorityLow))
}
