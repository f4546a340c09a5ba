// Package api defines the transport-neutral surface of the loom queue.
//
// Service wraps the queue store with validation, submission defaults,
// and lifecycle instrumentation. It is the single entry point for queue
// mutations: the daemon HTTP handlers, the control socket, and
// in-process workers all go through it. Client mirrors the Service
// method set over the daemon HTTP API so remote workers and the CLI can
// use the same call shapes.
//
// The DTOs in this package use camelCase JSON fields and RFC3339
// timestamps rendered with millisecond precision.
package api
