package sqlite

import (
	"time"

	statestore "github.com/tysonjf/astro-state"
)

// Option configures the Store
type Option func(*config)

type config struct {
	path        string
	busyTimeout time.Duration
	autoMigrate bool
	logger      statestore.Logger
}

func defaultConfig() *config {
	return &config{
		busyTimeout: 5 * time.Second,
		autoMigrate: true,
	}
}

// WithBusyTimeout sets the SQLite busy timeout
// Default is 5 seconds
func WithBusyTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.busyTimeout = timeout
	}
}

// WithAutoMigrate enables or disables automatic schema migration
// Default is true
func WithAutoMigrate(enabled bool) Option {
	return func(c *config) {
		c.autoMigrate = enabled
	}
}

// WithLogger sets the logger for the store
func WithLogger(logger statestore.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}
