package notification

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownCategory    = errors.New("unknown notification category")
	ErrInvalidPriority    = errors.New("invalid notification priority")
	ErrInvalidPreferences = errors.New("invalid notification preferences")
)

// Category is the closed set of notification kinds. Values are the wire names.
type Category string

const (
	CategoryTaskAssigned     Category = "task_assigned"
	CategoryTaskDeadline     Category = "task_deadline"
	CategoryStageCompleted   Category = "stage_completed"
	CategoryStageDelayed     Category = "stage_delayed"
	CategoryHandoffRequest   Category = "handoff_request"
	CategoryHandoffCompleted Category = "handoff_completed"
	CategoryMilestone        Category = "project_milestone"
	CategoryBottleneckAlert  Category = "bottleneck_alert"
	CategoryApprovalRequired Category = "approval_required"
	CategorySystemUpdate     Category = "system_update"
	CategoryMention          Category = "mention"
	CategoryComment          Category = "comment"
)

var categoryOrder = []Category{
	CategoryTaskAssigned,
	CategoryTaskDeadline,
	CategoryStageCompleted,
	CategoryStageDelayed,
	CategoryHandoffRequest,
	CategoryHandoffCompleted,
	CategoryMilestone,
	CategoryBottleneckAlert,
	CategoryApprovalRequired,
	CategorySystemUpdate,
	CategoryMention,
	CategoryComment,
}

// Categories returns every known category in display order.
func Categories() []Category { return append([]Category(nil), categoryOrder...) }

func (c Category) Known() bool {
	for _, k := range categoryOrder {
		if c == k {
			return true
		}
	}
	return false
}

// ParseCategory accepts wire names, their hyphenated forms and "milestone".
func ParseCategory(s string) (Category, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	if norm == "milestone" {
		return CategoryMilestone, nil
	}
	c := Category(norm)
	if !c.Known() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// Priority is ordered: comparisons against a minimum use plain integer order.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityUrgent
)

var priorityNames = [...]string{"low", "medium", "high", "urgent"}

func (p Priority) Valid() bool { return p >= PriorityLow && p <= PriorityUrgent }

func (p Priority) String() string {
	if !p.Valid() {
		return fmt.Sprintf("priority(%d)", int(p))
	}
	return priorityNames[p]
}

func ParsePriority(s string) (Priority, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	for i, n := range priorityNames {
		if n == norm {
			return Priority(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPriority, s)
}

func (p Priority) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPriority, int(p))
	}
	return []byte(priorityNames[p]), nil
}

func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

type Sender struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// Subject is the project or entity a notification concerns.
type Subject struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Stage string `json:"stage,omitempty"`
}

// Candidate is everything a record carries except what ingest assigns.
type Candidate struct {
	Category    Category       `json:"type"`
	Priority    Priority       `json:"priority"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	ActionURL   string         `json:"action_url,omitempty"`
	ActionLabel string         `json:"action_label,omitempty"`
	Sender      *Sender        `json:"sender,omitempty"`
	Subject     *Subject       `json:"subject,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	// RemoteID is the server-side id when the candidate came from the feed.
	RemoteID string `json:"remote_id,omitempty"`
}

// Record is an ingested notification. Only Read changes after creation.
type Record struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
	Candidate
}

// Expired reports whether the record carries an expiry at or before now.
func (r Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

func (c Candidate) clone() Candidate {
	out := c
	if c.Sender != nil {
		s := *c.Sender
		out.Sender = &s
	}
	if c.Subject != nil {
		s := *c.Subject
		out.Subject = &s
	}
	if c.Attributes != nil {
		out.Attributes = make(map[string]any, len(c.Attributes))
		for k, v := range c.Attributes {
			out.Attributes[k] = v
		}
	}
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		out.ExpiresAt = &t
	}
	return out
}
