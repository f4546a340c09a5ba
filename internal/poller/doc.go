// Package poller drives per-subject status polling for clients. A
// Controller runs one cancellable task per tracked subject, feeds every
// snapshot through the reconciler, and streams the merged views to the
// caller. Tasks stop on terminal status, explicit cancel, or the
// polling ceiling; Suspend and Resume gate fetching globally while the
// client is backgrounded.
package poller
