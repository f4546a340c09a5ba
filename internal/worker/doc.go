// Package worker runs assembly jobs claimed from the queue. A Pool
// keeps a fixed number of workers looping over claim, run, report:
// each claims with a lease, launches the assembler, forwards progress
// events, and finishes with a completion or failure report. A busy
// worker re-reads its job on an interval so cancellation and lease
// reassignment interrupt the run instead of wasting it. The pool works
// against the in-process service or the daemon HTTP client through the
// same Source interface.
package worker
