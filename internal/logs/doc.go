// Package logs provides offset-based log file tailing shared by the
// daemon's /api/logs endpoint and the IPC LogTail handler.
//
// It reads files with bounded memory, supports negative offsets for
// "last N lines" requests, and powers follow mode for `loom logs -f`.
// Callers supply context deadlines so background polling shuts down
// cleanly when the CLI exits.
package logs
