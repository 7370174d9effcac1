package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("storage key not found")
)

// Config configures storage.
//
// Driver values:
//   - "" or "memory": process-local, nothing survives a restart
//   - "file": Path is a file prefix; state and journal live next to it
//   - "sqlite": Path is the database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// JournalKeep bounds retained delivery entries (sqlite, memory). 0 means 5000.
	JournalKeep int
}

// DeliveryEntry records one channel attempt for one notification.
// Keep it compact and schema-stable.
type DeliveryEntry struct {
	At       time.Time `json:"at"`
	RecordID string    `json:"record_id"`
	Category string    `json:"category"`
	Priority string    `json:"priority,omitempty"`
	Channel  string    `json:"channel"`
	Outcome  string    `json:"outcome"`
	Error    string    `json:"error,omitempty"`
	TookMS   int64     `json:"took_ms"`
}
