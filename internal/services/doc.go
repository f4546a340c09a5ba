// Package services defines shared utilities consumed by the worker pool and
// API surfaces.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, subjects, worker IDs, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     into recoverable (retry) and permanent (failed) outcomes.
//
// Use these helpers when wiring new coordination logic so operational behaviour
// (error handling, observability, retries) stays uniform across the system.
package services
