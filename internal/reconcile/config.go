package reconcile

import (
	"time"

	appconfig "github.com/viewdeal/viewdeal/internal/config"
)

// Config controls the reconciliation loop.
type Config struct {
	RunInterval    time.Duration
	BatchSize      int
	Workers        int
	AdapterTimeout time.Duration
	LockTTL        time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:    5 * time.Minute,
		BatchSize:      50,
		Workers:        4,
		AdapterTimeout: 10 * time.Second,
		LockTTL:        4 * time.Minute,
	}
}

func FromAppConfig(cfg appconfig.Config) Config {
	return Config{
		RunInterval:    cfg.Reconcile.RunInterval,
		BatchSize:      cfg.Reconcile.BatchSize,
		Workers:        cfg.Reconcile.Workers,
		AdapterTimeout: cfg.Reconcile.AdapterTimeout,
		LockTTL:        cfg.Reconcile.LockTTL,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.Workers <= 0 {
		c.Workers = defaults.Workers
	}
	if c.AdapterTimeout <= 0 {
		c.AdapterTimeout = defaults.AdapterTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
