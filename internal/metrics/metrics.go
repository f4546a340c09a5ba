// Package metrics exposes queue lifecycle counters and gauges in
// Prometheus format. A Collector satisfies the api recorder contract so
// the service layer counts each lifecycle event exactly once, whichever
// transport drove it.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loom/internal/queue"
)

// Collector aggregates job lifecycle metrics on a private registry so
// tests and restarts never collide on global registration.
type Collector struct {
	registry *prometheus.Registry

	submitted     prometheus.Counter
	deduplicated  prometheus.Counter
	claims        prometheus.Counter
	completions   prometheus.Counter
	failures      prometheus.Counter
	exhausted     prometheus.Counter
	cancellations prometheus.Counter
	retries       prometheus.Counter

	jobDuration prometheus.Histogram
	queueDepth  *prometheus.GaugeVec
}

// NewCollector constructs and registers the collector's metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loom_jobs_submitted_total",
			Help: "Total number of accepted assembly submissions.",
		}),
		deduplicated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loom_jobs_deduplicated_total",
			Help: "Total number of submissions folded into an existing live job.",
		}),
		claims: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loom_jobs_claimed_total",
			Help: "Total number of jobs leased to workers.",
		}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loom_jobs_completed_total",
			Help: "Total number of jobs completed successfully.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loom_jobs_failed_total",
			Help: "Total number of failures reported by workers, recoverable ones included.",
		}),
		exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loom_jobs_failed_permanent_total",
			Help: "Total number of failures that exhausted the attempt budget.",
		}),
		cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loom_jobs_canceled_total",
			Help: "Total number of jobs canceled by request.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loom_jobs_retried_total",
			Help: "Total number of retry requests that changed queue state.",
		}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "loom_job_duration_seconds",
			Help: "Wall-clock duration of completed assembly jobs.",
			// Assemblies run seconds to hours; the top bucket sits past
			// the two hour polling ceiling.
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loom_queue_jobs",
			Help: "Current number of jobs per status.",
		}, []string{"status"}),
	}

	c.registry.MustRegister(
		c.submitted,
		c.deduplicated,
		c.claims,
		c.completions,
		c.failures,
		c.exhausted,
		c.cancellations,
		c.retries,
		c.jobDuration,
		c.queueDepth,
	)
	return c
}

// RecordSubmit counts an accepted submission; reused live jobs count as
// deduplicated as well.
func (c *Collector) RecordSubmit(created bool) {
	c.submitted.Inc()
	if !created {
		c.deduplicated.Inc()
	}
}

// RecordClaim counts a job leased to a worker.
func (c *Collector) RecordClaim() {
	c.claims.Inc()
}

// RecordComplete counts a successful completion and observes its
// duration when one is known.
func (c *Collector) RecordComplete(duration time.Duration) {
	c.completions.Inc()
	if duration > 0 {
		c.jobDuration.Observe(duration.Seconds())
	}
}

// RecordFail counts a reported failure; permanent marks attempts
// exhausted.
func (c *Collector) RecordFail(permanent bool) {
	c.failures.Inc()
	if permanent {
		c.exhausted.Inc()
	}
}

// RecordCancel counts a cancellation that changed queue state.
func (c *Collector) RecordCancel() {
	c.cancellations.Inc()
}

// RecordRetry counts a retry request that changed queue state.
func (c *Collector) RecordRetry() {
	c.retries.Inc()
}

// ObserveQueue refreshes the per-status depth gauges from a stats
// snapshot. Every known status is written so counts that drop to zero
// do not linger at their old value.
func (c *Collector) ObserveQueue(stats map[queue.Status]int) {
	for _, status := range queue.AllStatuses() {
		c.queueDepth.WithLabelValues(string(status)).Set(float64(stats[status]))
	}
}

// Handler serves the collector's registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
