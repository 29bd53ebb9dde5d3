package bbolt

import (
	"os"
	"time"
)

// Option configures the Store
type Option func(*config)

type config struct {
	bucket   string
	fileMode os.FileMode
	timeout  time.Duration
}

func defaultConfig() *config {
	return &config{
		bucket:   "statestore",
		fileMode: 0o600,
		timeout:  time.Second,
	}
}

// WithBucket sets the bucket records are stored in.
// Default is "statestore".
func WithBucket(name string) Option {
	return func(c *config) {
		c.bucket = name
	}
}

// WithFileMode sets the mode the database file is created with.
// Default is 0600.
func WithFileMode(mode os.FileMode) Option {
	return func(c *config) {
		c.fileMode = mode
	}
}

// WithTimeout sets how long to wait for the file lock when another process
// holds the database open. Default is one second.
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.timeout = timeout
	}
}
