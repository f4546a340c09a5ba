// Package daemon runs the loom coordinator: it serves the HTTP API for
// clients and workers, hosts the embedded worker pool, exposes
// Prometheus metrics, and sweeps terminal jobs past their retention
// window. A flock-based lock keeps the daemon single-instance.
package daemon
