package scheduler

import (
	"time"

	"github.com/pawtraits-dev/pawtraits-sub014/internal/config"
)

// Config controls the loop cadence and the per-run budget.
type Config struct {
	Enabled     bool
	RunInterval time.Duration
	JobTimeout  time.Duration
	BatchSize   int
}

func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		RunInterval: 15 * time.Minute,
		JobTimeout:  5 * time.Minute,
		BatchSize:   200,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:     cfg.Reconcile.Enabled,
		RunInterval: cfg.Reconcile.Interval,
		JobTimeout:  cfg.Reconcile.Timeout,
		BatchSize:   cfg.Reconcile.BatchSize,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	return c
}
