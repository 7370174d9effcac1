package delivery

import (
	"context"
	"errors"
	"time"

	"sitealert/internal/notification"
)

var (
	ErrQueueFull        = errors.New("delivery queue full")
	ErrStopped          = errors.New("delivery dispatcher stopped")
	ErrPermissionDenied = errors.New("desktop notification permission not granted")
	ErrUnsupported      = errors.New("desktop notifications unsupported")
	ErrNoChannel        = errors.New("no deliverer for channel")
)

// Deliverer performs one channel's side effect for a record.
type Deliverer interface {
	Deliver(ctx context.Context, rec notification.Record) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, rec notification.Record) error

func (f DelivererFunc) Deliver(ctx context.Context, rec notification.Record) error { return f(ctx, rec) }

// Config controls the dispatcher pipeline.
type Config struct {
	Workers     int
	QueueSize   int
	RatePerSec  int
	SendTimeout time.Duration
}

// Outcome is the journaled result of one delivery.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
	OutcomeDropped Outcome = "dropped"
)

// Event types published by the Dispatcher.
const (
	EventQueued  = "delivery.queued"
	EventSent    = "delivery.sent"
	EventFailed  = "delivery.failed"
	EventSkipped = "delivery.skipped"
	EventDropped = "delivery.dropped"
)

// DeliveryEvent is the payload of every delivery.* event.
type DeliveryEvent struct {
	Channel  notification.Channel  `json:"channel"`
	RecordID string                `json:"record_id"`
	Category notification.Category `json:"category"`
	Priority string                `json:"priority"`
	At       time.Time             `json:"at"`
	Took     time.Duration         `json:"took,omitempty"`
	Error    string                `json:"error,omitempty"`
}

type HistoryItem struct {
	At       time.Time
	Channel  notification.Channel
	RecordID string
	Outcome  Outcome
	Error    string
}
