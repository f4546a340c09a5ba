// Package queue persists assembly jobs in SQLite and enforces the
// lease protocol around them.
//
// Each job belongs to a subject and moves through pending, running,
// retry, and one of the terminal states completed, failed, or canceled.
// Workers obtain jobs through Claim, which leases exactly one eligible
// job per call, and settle them through Complete or Fail while the
// lease is live. A worker that loses its lease, because it expired and
// another worker reclaimed the job or because the job was canceled,
// has its calls rejected with ErrLeaseConflict.
package queue
