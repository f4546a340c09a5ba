package daemon

import (
	"context"
	"time"

	"loom/internal/logging"
)

const (
	retentionSweepInterval = time.Hour
	queueGaugeInterval     = 15 * time.Second
)

// runRetention purges terminal jobs older than the configured
// retention window. The sweep runs once at startup and then hourly.
func (d *Daemon) runRetention(ctx context.Context) {
	defer d.wg.Done()
	retention := time.Duration(d.cfg.Queue.RetentionDays) * 24 * time.Hour
	if retention <= 0 {
		return
	}

	logger := logging.NewComponentLogger(d.logger, "retention")
	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()
	for {
		purged, err := d.store.PurgeTerminal(ctx, retention)
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Warn("terminal job purge failed", logging.Error(err))
		case purged > 0:
			logger.Info("purged terminal jobs",
				logging.Int64("purged", purged),
				logging.Duration("retention", retention))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runQueueGauges refreshes the per-status queue depth gauges.
func (d *Daemon) runQueueGauges(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(queueGaugeInterval)
	defer ticker.Stop()
	for {
		if stats, err := d.store.Stats(ctx); err == nil {
			d.collector.ObserveQueue(stats)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
