package queue

import (
	"math/rand"
	"time"
)

// BackoffPolicy computes how long a failed job waits before its next
// attempt becomes eligible.
type BackoffPolicy struct {
	Base    time.Duration
	Ceiling time.Duration
}

// Delay returns the wait applied after the given number of failures.
// The first retry waits Base; each further failure doubles the wait up
// to Ceiling. The result carries ±20% jitter so jobs that failed
// together do not become eligible in lockstep.
func (p BackoffPolicy) Delay(attempts int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = time.Minute
	}
	ceiling := p.Ceiling
	if ceiling < base {
		ceiling = base
	}

	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= ceiling {
			delay = ceiling
			break
		}
	}

	jitter := 0.8 + 0.4*rand.Float64()
	scaled := time.Duration(float64(delay) * jitter)
	if scaled < time.Second {
		scaled = time.Second
	}
	return scaled
}
