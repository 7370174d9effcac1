// Package notification is the in-memory notification engine: the ordered
// record store with unread accounting, per-category delivery preferences,
// quiet hours, and the decision of which delivery channels fire on ingest.
//
// Side effects never happen here. The Store hands (channel, record) pairs to
// an injected Notifier and persists its state through an injected StateStore;
// both default to no-ops.
package notification
