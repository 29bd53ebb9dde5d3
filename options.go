package statestore

import "time"

// Logger is the minimal logging interface the store writes diagnostics to.
// *log/slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Subscriber observes committed transitions. It receives the committed
// state, the state it replaced and the initial state.
type Subscriber[T any] func(newState, prevState, initialState T)

// Option configures a Store at construction time.
type Option[T any] func(*config[T])

type config[T any] struct {
	callback   Subscriber[T]
	adapter    StorageAdapter
	key        string
	staleTime  time.Duration
	logger     Logger
	obs        Observability
	clone      func(T) (T, error)
	equal      func(a, b T) bool
	middleware []Middleware[T]
}

func defaultConfig[T any]() config[T] {
	return config[T]{
		clone: cloneJSON[T],
		equal: equalDeep[T],
	}
}

// WithCallback sets a construction callback, invoked exactly once with the
// initial value in all three positions before New returns.
func WithCallback[T any](fn Subscriber[T]) Option[T] {
	return func(c *config[T]) {
		c.callback = fn
	}
}

// WithBackup enables durable backup of the state under key in the given
// adapter. New immediately loads any existing record, and every committed
// set writes through. Both the adapter and a non-empty key are required;
// with either missing, backup operations log and do nothing.
func WithBackup[T any](adapter StorageAdapter, key string) Option[T] {
	return func(c *config[T]) {
		c.adapter = adapter
		c.key = key
	}
}

// WithStaleTime sets the maximum age of a persisted record. A record older
// than d at load time triggers a reset instead of a load.
func WithStaleTime[T any](d time.Duration) Option[T] {
	return func(c *config[T]) {
		c.staleTime = d
	}
}

// WithLogger sets the logger for backup diagnostics.
func WithLogger[T any](logger Logger) Option[T] {
	return func(c *config[T]) {
		c.logger = logger
	}
}

// WithObservability sets hooks called around set, notify and backup
// operations. See the otel subpackage for an OpenTelemetry implementation.
func WithObservability[T any](obs Observability) Option[T] {
	return func(c *config[T]) {
		c.obs = obs
	}
}

// WithMiddleware registers middleware at construction time, in order.
// Equivalent to calling Use for each before the first set.
func WithMiddleware[T any](mw ...Middleware[T]) Option[T] {
	return func(c *config[T]) {
		c.middleware = append(c.middleware, mw...)
	}
}

// WithCloner replaces the default JSON round-trip cloner. Use it when T
// holds values JSON cannot represent.
func WithCloner[T any](clone func(T) (T, error)) Option[T] {
	return func(c *config[T]) {
		c.clone = clone
	}
}

// WithComparer replaces the default reflect.DeepEqual structural equality
// used by the no-op short circuit.
func WithComparer[T any](equal func(a, b T) bool) Option[T] {
	return func(c *config[T]) {
		c.equal = equal
	}
}

func (s *Store[T]) logError(msg string, args ...any) {
	if s.cfg.logger != nil {
		s.cfg.logger.Error(msg, args...)
	}
}

func (s *Store[T]) logDebug(msg string, args ...any) {
	if s.cfg.logger != nil {
		s.cfg.logger.Debug(msg, args...)
	}
}
