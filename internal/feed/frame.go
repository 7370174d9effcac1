package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"sitealert/internal/notification"
)

// Inbound frame type discriminators.
const (
	TypeNotification          = "notification"
	TypeConnectionEstablished = "connection_established"
	TypePong                  = "pong"
	TypeStatus                = "status"
	TypeSystemMessage         = "system_message"
)

// Outbound frame type discriminators.
const (
	TypeAuth      = "auth"
	TypePing      = "ping"
	TypeMarkRead  = "mark_read"
	TypeGetStatus = "get_status"
)

// Frame is one decoded inbound message. The set of implementations is closed.
type Frame interface {
	Type() string
	isFrame()
}

// NotificationData is the payload of a notification frame.
type NotificationData struct {
	ID               string         `json:"id"`
	Type             string         `json:"type"`
	NotificationType string         `json:"notification_type"`
	Priority         string         `json:"priority"`
	Title            string         `json:"title"`
	Message          string         `json:"message"`
	ActionURL        string         `json:"action_url"`
	ActionLabel      string         `json:"action_label"`
	CreatedAt        string         `json:"created_at"`
	Timestamp        string         `json:"timestamp"`
	ExpiresAt        string         `json:"expires_at"`
	SenderID         string         `json:"sender_id"`
	SenderName       string         `json:"sender_name"`
	SenderRole       string         `json:"sender_role"`
	ProjectID        string         `json:"project_id"`
	ProjectName      string         `json:"project_name"`
	Metadata         map[string]any `json:"metadata"`
}

type NotificationFrame struct{ Data NotificationData }

type ConnectionEstablishedFrame struct{ Message string }

type PongFrame struct{}

// StatusFrame carries the server's status fields as sent.
type StatusFrame struct{ Fields map[string]any }

type SystemMessageFrame struct{ Message string }

// UnknownFrame is any discriminator this client does not handle.
type UnknownFrame struct{ Kind string }

func (NotificationFrame) Type() string          { return TypeNotification }
func (ConnectionEstablishedFrame) Type() string { return TypeConnectionEstablished }
func (PongFrame) Type() string                  { return TypePong }
func (StatusFrame) Type() string                { return TypeStatus }
func (SystemMessageFrame) Type() string         { return TypeSystemMessage }
func (f UnknownFrame) Type() string             { return f.Kind }

func (NotificationFrame) isFrame()          {}
func (ConnectionEstablishedFrame) isFrame() {}
func (PongFrame) isFrame()                  {}
func (StatusFrame) isFrame()                {}
func (SystemMessageFrame) isFrame()         {}
func (UnknownFrame) isFrame()               {}

var ErrMalformedFrame = errors.New("malformed feed frame")

type envelope struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// DecodeFrame parses one text message.
func DecodeFrame(b []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	switch env.Type {
	case TypeNotification:
		if len(env.Data) == 0 || string(env.Data) == "null" {
			return nil, fmt.Errorf("%w: notification without data", ErrMalformedFrame)
		}
		var d NotificationData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, fmt.Errorf("%w: notification data: %w", ErrMalformedFrame, err)
		}
		return NotificationFrame{Data: d}, nil
	case TypeConnectionEstablished:
		return ConnectionEstablishedFrame{Message: env.Message}, nil
	case TypePong:
		return PongFrame{}, nil
	case TypeStatus:
		fields := map[string]any{}
		if err := json.Unmarshal(b, &fields); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
		}
		delete(fields, "type")
		return StatusFrame{Fields: fields}, nil
	case TypeSystemMessage:
		return SystemMessageFrame{Message: env.Message}, nil
	default:
		return UnknownFrame{Kind: env.Type}, nil
	}
}

// Translate turns a notification payload into a store candidate. Category and
// priority are passed through even when unrecognized so the store's rejection
// path sees them.
func Translate(d NotificationData) notification.Candidate {
	kind := d.Type
	if kind == "" {
		kind = d.NotificationType
	}
	cat, err := notification.ParseCategory(kind)
	if err != nil {
		cat = notification.Category(kind)
	}

	prio := notification.PriorityMedium
	if strings.TrimSpace(d.Priority) != "" {
		if p, err := notification.ParsePriority(d.Priority); err == nil {
			prio = p
		} else {
			prio = notification.Priority(-1)
		}
	}

	c := notification.Candidate{
		Category:    cat,
		Priority:    prio,
		Title:       d.Title,
		Message:     d.Message,
		ActionURL:   d.ActionURL,
		ActionLabel: d.ActionLabel,
		RemoteID:    d.ID,
	}
	if len(d.Metadata) > 0 {
		c.Attributes = make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			c.Attributes[k] = v
		}
	}
	if d.SenderName != "" || d.SenderID != "" {
		c.Sender = &notification.Sender{ID: d.SenderID, Name: d.SenderName, Role: d.SenderRole}
	}

	projectID := firstNonEmpty(metaString(d.Metadata, "project_id"), d.ProjectID)
	projectName := firstNonEmpty(metaString(d.Metadata, "project_name"), d.ProjectName)
	if projectName != "" {
		c.Subject = &notification.Subject{ID: projectID, Name: projectName, Stage: metaString(d.Metadata, "stage_name")}
	}
	if t, ok := parseTime(d.ExpiresAt); ok {
		c.ExpiresAt = &t
	}
	return c
}

// SystemCandidate is what a system_message frame becomes.
func SystemCandidate(msg string) notification.Candidate {
	return notification.Candidate{
		Category: notification.CategorySystemUpdate,
		Priority: notification.PriorityLow,
		Title:    "System message",
		Message:  msg,
	}
}

func metaString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return ""
	}
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type authFrame struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

type markReadFrame struct {
	Type           string `json:"type"`
	NotificationID string `json:"notification_id"`
}

type typeOnly struct {
	Type string `json:"type"`
}
