package compose

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitealert/internal/notification"
	logx "sitealert/pkg/logx"
)

type channelCounter struct {
	mu sync.Mutex
	n  map[notification.Channel]int
}

func (c *channelCounter) Notify(ch notification.Channel, _ notification.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n == nil {
		c.n = map[notification.Channel]int{}
	}
	c.n[ch]++
}

func (c *channelCounter) get(ch notification.Channel) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n[ch]
}

func newStore(n notification.Notifier) *notification.Store {
	noon := time.Date(2026, 5, 12, 12, 0, 0, 0, time.UTC)
	return notification.NewStore(
		notification.WithClock(func() time.Time { return noon }),
		notification.WithLocation(time.UTC),
		notification.WithNotifier(n),
	)
}

func TestStageDelayedEndToEnd(t *testing.T) {
	t.Parallel()
	counter := &channelCounter{}
	c := New(newStore(counter), logx.Nop())

	rec, err := c.StageDelayed("Framing", "Tanaka residence", 10, "lumber late")
	require.NoError(t, err)

	assert.Equal(t, notification.PriorityUrgent, rec.Priority)
	assert.Contains(t, strings.ToLower(rec.Title), "delayed")
	assert.Equal(t, 10, rec.Attributes["delay_days"])
	assert.Equal(t, "lumber late", rec.Attributes["reason"])
	assert.Equal(t, "Framing", rec.Subject.Stage)
	assert.Equal(t, 1, counter.get(notification.ChannelDesktop))
	assert.Equal(t, 1, counter.get(notification.ChannelSound))
	assert.Zero(t, counter.get(notification.ChannelPush))
}

func TestTaskDeadlineEndToEnd(t *testing.T) {
	t.Parallel()
	s := newStore(nil)
	c := New(s, logx.Nop())

	overdue, err := c.TaskDeadline("Foundation check", "Sato residence", 0)
	require.NoError(t, err)
	later, err := c.TaskDeadline("Foundation check", "Sato residence", 100)
	require.NoError(t, err)

	assert.Equal(t, notification.PriorityUrgent, overdue.Priority)
	assert.Equal(t, notification.PriorityLow, later.Priority)
	assert.Contains(t, overdue.Message, "overdue")
	assert.Contains(t, later.Message, "100 hours")
	assert.Equal(t, 2, s.UnreadCount())
}

func TestPriorityRules(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		got  notification.Priority
		want notification.Priority
	}{
		{"deadline negative", DeadlinePriority(-3), notification.PriorityUrgent},
		{"deadline 24h", DeadlinePriority(24), notification.PriorityHigh},
		{"deadline 24.5h", DeadlinePriority(24.5), notification.PriorityMedium},
		{"deadline 72h", DeadlinePriority(72), notification.PriorityMedium},
		{"deadline 73h", DeadlinePriority(73), notification.PriorityLow},
		{"delay 7 days", DelayPriority(7), notification.PriorityHigh},
		{"delay 8 days", DelayPriority(8), notification.PriorityUrgent},
		{"milestone 7 days", MilestonePriority(7), notification.PriorityHigh},
		{"milestone 8 days", MilestonePriority(8), notification.PriorityMedium},
		{"bottleneck critical", BottleneckPriority(SeverityCritical), notification.PriorityUrgent},
		{"bottleneck high", BottleneckPriority(SeverityHigh), notification.PriorityUrgent},
		{"bottleneck medium", BottleneckPriority(SeverityMedium), notification.PriorityHigh},
		{"bottleneck low", BottleneckPriority(SeverityLow), notification.PriorityMedium},
		{"approval urgent", ApprovalPriority(UrgencyUrgent), notification.PriorityUrgent},
		{"approval normal", ApprovalPriority(UrgencyNormal), notification.PriorityHigh},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestBuildersProduceKnownCategories(t *testing.T) {
	t.Parallel()
	all := []notification.Candidate{
		TaskAssigned("t", "p", "Yamada"),
		TaskDeadline("t", "p", 12),
		StageCompleted("s", "p", "Suzuki"),
		StageDelayed("s", "p", 3, ""),
		HandoffRequest("design", "IC", "p", 5),
		HandoffCompleted("design", "IC", "p"),
		ProjectMilestone("m", "p", 3),
		BottleneckAlert("IC", "wiring plan", 4, SeverityHigh),
		ApprovalRequired("drawings", "Ito", UrgencyNormal),
		SystemUpdate(UpdateMaintenance, "Sunday 02:00"),
		Mention("Takahashi", "see the plan", ""),
		Comment("Ito", "drawings", "looks good", "p"),
	}
	seen := map[notification.Category]bool{}
	for _, c := range all {
		require.True(t, c.Category.Known(), c.Category)
		require.True(t, c.Priority.Valid(), c.Category)
		require.NotEmpty(t, c.Title, c.Category)
		seen[c.Category] = true
	}
	assert.Len(t, seen, len(notification.Categories()))
}

func TestBuilderDetails(t *testing.T) {
	t.Parallel()

	c := TaskAssigned("Inspect rebar", "Tanaka residence", "Yamada")
	assert.Equal(t, "/projects/Tanaka%20residence", c.ActionURL)
	assert.Equal(t, "Yamada", c.Sender.Name)
	assert.Equal(t, "Tanaka residence", c.Subject.Name)

	d := StageDelayed("Roofing", "p", 2, "")
	assert.Equal(t, notification.PriorityHigh, d.Priority)
	assert.NotContains(t, d.Attributes, "reason")
	assert.NotContains(t, d.Message, "reason")

	b := BottleneckAlert("IC", "wiring plan", 4, SeverityMedium)
	assert.Equal(t, "/analytics", b.ActionURL)
	assert.Nil(t, b.Subject)

	a := ApprovalRequired("drawings", "Ito", UrgencyUrgent)
	assert.Equal(t, "/approvals", a.ActionURL)
	assert.Contains(t, a.Title, "Urgent")

	assert.Equal(t, "New feature available", SystemUpdate(UpdateFeature, "x").Title)
	assert.Equal(t, "Issue fixed", SystemUpdate(UpdateBugFix, "x").Title)

	m := Mention("Takahashi", "ctx", "")
	assert.Equal(t, "/messages", m.ActionURL)
	assert.Nil(t, m.Subject)
	assert.Equal(t, "/comments", Comment("a", "b", "c", "").ActionURL)
}

func TestParseHelpers(t *testing.T) {
	t.Parallel()
	s, err := ParseSeverity("Critical")
	require.NoError(t, err)
	assert.Equal(t, SeverityCritical, s)
	_, err = ParseSeverity("dire")
	assert.Error(t, err)

	u, err := ParseUrgency("")
	require.NoError(t, err)
	assert.Equal(t, UrgencyNormal, u)

	k, err := ParseUpdateKind("bug-fix")
	require.NoError(t, err)
	assert.Equal(t, UpdateBugFix, k)
}

type failingIngester struct{}

func (failingIngester) Ingest(notification.Candidate) (notification.Record, error) {
	return notification.Record{}, errors.New("closed")
}

func TestComposerPropagatesIngestErrors(t *testing.T) {
	t.Parallel()
	_, err := New(failingIngester{}, logx.Nop()).Comment("a", "b", "c", "")
	require.Error(t, err)
}
