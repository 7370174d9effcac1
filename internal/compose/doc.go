// Package compose turns construction-site occurrences (a delayed stage, a
// pending handoff, an approaching deadline) into notification candidates with
// a derived priority.
//
// The builders are pure. Composer pairs them with an ingester so callers can
// build and store in one step.
package compose
