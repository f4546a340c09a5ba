package daemon

import (
	"context"

	"loom/internal/queue"
)

// Queue administration passthroughs for the control socket. These skip
// the API service because they are operator actions, not client or
// worker traffic.

// ClearQueue removes every job from the queue.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	return d.store.Clear(ctx)
}

// ClearCompleted removes completed jobs.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	return d.store.ClearCompleted(ctx)
}

// ClearFailed removes failed jobs.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	return d.store.ClearFailed(ctx)
}

// RemoveJob deletes a single job by id.
func (d *Daemon) RemoveJob(ctx context.Context, id int64) (bool, error) {
	return d.store.Remove(ctx, id)
}

// DatabaseHealth reports job database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}
