// Package storage persists sitealert's local state.
//
// Two concerns live here: a small key-value area holding the serialized
// notification state, and an append-only delivery journal recording every
// channel attempt. Drivers: "memory" (default), "file" (JSON snapshot per key +
// JSON Lines journal) and "sqlite" (modernc.org/sqlite, pure Go).
package storage
