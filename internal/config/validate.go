package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateClient(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateQueue() error {
	if err := ensurePositiveMap(map[string]int{
		"queue.max_attempts":           c.Queue.MaxAttempts,
		"queue.retry_cooldown_seconds": c.Queue.RetryCooldown,
		"queue.retry_backoff_seconds":  c.Queue.RetryBackoffBase,
	}); err != nil {
		return err
	}
	if c.Queue.RetryBackoffCeiling < c.Queue.RetryBackoffBase {
		return errors.New("queue.retry_backoff_max_seconds must be >= queue.retry_backoff_seconds")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if err := ensurePositiveMap(map[string]int{
		"workers.poll_interval": c.Workers.PollInterval,
		"workers.lease_seconds": c.Workers.LeaseSeconds,
	}); err != nil {
		return err
	}
	if c.Workers.LeaseSeconds <= c.Workers.PollInterval {
		return errors.New("workers.lease_seconds must be greater than workers.poll_interval")
	}
	return nil
}

func (c *Config) validateClient() error {
	if err := ensurePositiveMap(map[string]int{
		"client.poll_interval":        c.Client.PollInterval,
		"client.poll_timeout_seconds": c.Client.PollTimeout,
		"client.staleness_seconds":    c.Client.StalenessSeconds,
		"client.state_ttl_seconds":    c.Client.StateTTL,
	}); err != nil {
		return err
	}
	if c.Client.RetryGrace < 0 {
		return errors.New("client.retry_grace_seconds must be >= 0")
	}
	if c.Client.PollTimeout <= c.Client.PollInterval {
		return errors.New("client.poll_timeout_seconds must be greater than client.poll_interval")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
