package remote

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Notification is a server-side notification.
type Notification struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Priority    string         `json:"priority"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	IsRead      bool           `json:"is_read"`
	IsDelivered bool           `json:"is_delivered"`
	ActionURL   string         `json:"action_url,omitempty"`
	ActionLabel string         `json:"action_label,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ReadAt      *time.Time     `json:"read_at,omitempty"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	SenderID    string         `json:"sender_id,omitempty"`
	SenderName  string         `json:"sender_name,omitempty"`
	ProjectID   string         `json:"related_project_id,omitempty"`
	ProjectName string         `json:"project_name,omitempty"`
}

type ListOptions struct {
	Skip       int
	Limit      int // server caps at 100
	UnreadOnly bool
	Type       string
	Priority   string
}

func (o ListOptions) values() url.Values {
	q := url.Values{}
	if o.Skip > 0 {
		q.Set("skip", strconv.Itoa(o.Skip))
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(min(o.Limit, 100)))
	}
	if o.UnreadOnly {
		q.Set("unread_only", "true")
	}
	if o.Type != "" {
		q.Set("type_filter", o.Type)
	}
	if o.Priority != "" {
		q.Set("priority_filter", o.Priority)
	}
	return q
}

type ListResponse struct {
	Notifications []Notification `json:"notifications"`
	Total         int            `json:"total"`
	UnreadCount   int            `json:"unread_count"`
	HasMore       bool           `json:"has_more"`
}

type Stats struct {
	Total       int            `json:"total"`
	Unread      int            `json:"unread"`
	ByType      map[string]int `json:"by_type"`
	ByPriority  map[string]int `json:"by_priority"`
	RecentCount int            `json:"recent_count"`
}

// NotifyResult is what the construction notify endpoints return.
type NotifyResult struct {
	Message        string `json:"message"`
	NotificationID string `json:"notification_id,omitempty"`
	Count          int    `json:"count,omitempty"`
}

func (c *Client) List(ctx context.Context, o ListOptions) (ListResponse, error) {
	var out ListResponse
	err := c.do(ctx, http.MethodGet, "/notifications/", o.values(), nil, &out)
	return out, err
}

func (c *Client) Get(ctx context.Context, id string) (Notification, error) {
	var out Notification
	err := c.do(ctx, http.MethodGet, "/notifications/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

func (c *Client) MarkRead(ctx context.Context, id string) (Notification, error) {
	var out Notification
	err := c.do(ctx, http.MethodPatch, "/notifications/"+url.PathEscape(id)+"/read", nil, nil, &out)
	return out, err
}

func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPatch, "/notifications/mark-all-read", nil, nil, nil)
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/notifications/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	err := c.do(ctx, http.MethodGet, "/notifications/stats/summary", nil, nil, &out)
	return out, err
}

func (c *Client) Preferences(ctx context.Context) (Preferences, error) {
	var out Preferences
	err := c.do(ctx, http.MethodGet, "/notifications/preferences/me", nil, nil, &out)
	return out, err
}

func (c *Client) UpdatePreferences(ctx context.Context, u PreferencesUpdate) (Preferences, error) {
	var out Preferences
	err := c.do(ctx, http.MethodPatch, "/notifications/preferences/me", nil, u, &out)
	return out, err
}

// Construction notify requests.

type TaskAssignedRequest struct {
	TaskName    string `json:"task_name"`
	ProjectName string `json:"project_name"`
	AssignedBy  string `json:"assigned_by"`
	RecipientID string `json:"recipient_id"`
	ProjectID   string `json:"project_id"`
	TaskID      string `json:"task_id,omitempty"`
}

type TaskDeadlineRequest struct {
	TaskName       string `json:"task_name"`
	ProjectName    string `json:"project_name"`
	HoursRemaining int    `json:"hours_remaining"`
	RecipientID    string `json:"recipient_id"`
	ProjectID      string `json:"project_id"`
	TaskID         string `json:"task_id,omitempty"`
}

type StageCompletedRequest struct {
	StageName    string   `json:"stage_name"`
	ProjectName  string   `json:"project_name"`
	CompletedBy  string   `json:"completed_by"`
	RecipientIDs []string `json:"recipient_ids"`
	ProjectID    string   `json:"project_id"`
	StageID      string   `json:"stage_id,omitempty"`
}

type StageDelayedRequest struct {
	StageName    string   `json:"stage_name"`
	ProjectName  string   `json:"project_name"`
	DelayDays    int      `json:"delay_days"`
	Reason       string   `json:"reason,omitempty"`
	RecipientIDs []string `json:"recipient_ids"`
	ProjectID    string   `json:"project_id"`
	StageID      string   `json:"stage_id,omitempty"`
}

type HandoffRequestRequest struct {
	FromRole     string   `json:"from_role"`
	ToRole       string   `json:"to_role"`
	ProjectName  string   `json:"project_name"`
	TaskCount    int      `json:"task_count"`
	RecipientIDs []string `json:"recipient_ids"`
	ProjectID    string   `json:"project_id"`
}

type BottleneckAlertRequest struct {
	Role         string   `json:"role"`
	TaskName     string   `json:"task_name"`
	ImpactCount  int      `json:"impact_count"`
	Severity     string   `json:"severity"`
	RecipientIDs []string `json:"recipient_ids"`
}

func (c *Client) notify(ctx context.Context, kind string, req any) (NotifyResult, error) {
	var out NotifyResult
	err := c.do(ctx, http.MethodPost, "/notifications/construction/"+kind, nil, req, &out)
	return out, err
}

func (c *Client) NotifyTaskAssigned(ctx context.Context, r TaskAssignedRequest) (NotifyResult, error) {
	return c.notify(ctx, "task-assigned", r)
}

func (c *Client) NotifyTaskDeadline(ctx context.Context, r TaskDeadlineRequest) (NotifyResult, error) {
	return c.notify(ctx, "task-deadline", r)
}

func (c *Client) NotifyStageCompleted(ctx context.Context, r StageCompletedRequest) (NotifyResult, error) {
	return c.notify(ctx, "stage-completed", r)
}

func (c *Client) NotifyStageDelayed(ctx context.Context, r StageDelayedRequest) (NotifyResult, error) {
	return c.notify(ctx, "stage-delayed", r)
}

func (c *Client) NotifyHandoffRequest(ctx context.Context, r HandoffRequestRequest) (NotifyResult, error) {
	return c.notify(ctx, "handoff-request", r)
}

func (c *Client) NotifyBottleneckAlert(ctx context.Context, r BottleneckAlertRequest) (NotifyResult, error) {
	return c.notify(ctx, "bottleneck-alert", r)
}
