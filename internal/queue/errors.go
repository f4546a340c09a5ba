package queue

import "errors"

// ErrLeaseConflict rejects a complete, fail, or progress call from a
// worker that no longer holds the live lease on the job. The store
// leaves the row untouched; the caller's run outcome is discarded.
var ErrLeaseConflict = errors.New("lease conflict")
