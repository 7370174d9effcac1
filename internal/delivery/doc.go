// Package delivery performs the side effects a notification decision asks
// for: desktop alerts, an audible cue and an optional Telegram push.
//
// The Dispatcher implements notification.Notifier. It queues each
// (channel, record) pair and delivers it from a small worker pool under a
// token-bucket rate limit, so a slow platform call never holds up ingest.
// Every attempt is journaled to storage and published on the event bus.
//
// Channel failures stay inside this package: they are logged, journaled and
// reported as events, never returned to the store.
package delivery
