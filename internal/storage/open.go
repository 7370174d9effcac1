package storage

import (
	"context"
	"fmt"
	"strings"

	logx "sitealert/pkg/logx"
)

// Store is the persistence API used by the notification store and the
// delivery dispatcher.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	AppendDelivery(ctx context.Context, e DeliveryEntry) error
	// RecentDeliveries returns up to limit entries, newest first.
	RecentDeliveries(ctx context.Context, limit int) ([]DeliveryEntry, error)
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.JournalKeep <= 0 {
		cfg.JournalKeep = 5000
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "memory":
		return NewMemory(cfg.JournalKeep), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
