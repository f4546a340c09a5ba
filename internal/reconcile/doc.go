// Package reconcile turns raw queue snapshots into stable display
// state for status watchers.
//
// Polling introduces latency and transient contradiction: a retry races
// the cancel it replaces, a crashed worker leaves a job "running" long
// after updates stopped, and progress can arrive late or not at all.
// The reconciler absorbs these: server progress is always authoritative
// when present, gaps are filled with a monotonic elapsed-time heuristic
// capped below completion, quiet running jobs surface as "stalled", and
// canceled snapshots inside a short post-retry grace window are held
// back until the new attempt becomes visible.
package reconcile
