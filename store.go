package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// UpdateFunc computes a candidate state from the previous and initial state.
// The prev argument is a private clone and may be mutated freely; returning
// an error aborts the whole set operation.
type UpdateFunc[T any] func(prev, initial T) (T, error)

// Store is an observable container around a single value of type T.
//
// All mutations go through Set or Update, which run the commit protocol:
// clone, equality short-circuit, middleware pipeline, commit, subscriber
// fan-out and (when a backup is configured) write-through persistence.
// Commits are serialized per Store instance, so overlapping Set calls
// never interleave their middleware stages.
type Store[T any] struct {
	// commitMu serializes the full commit protocol, including the
	// middleware pipeline and the persistence operations.
	commitMu sync.Mutex

	// stateMu guards reads of state and initial so Get and Subscribe
	// never wait on an in-flight pipeline.
	stateMu sync.RWMutex
	state   T
	initial T

	subsMu sync.RWMutex
	subs   []*subscription[T]

	mwMu       sync.Mutex
	middleware []Middleware[T]

	cfg config[T]
}

// New creates a Store holding initial as both the current and the initial
// state. If a construction callback is configured it is invoked once with
// the initial value in all three positions. If a backup is configured, New
// loads it before returning, which may replace both the current and the
// initial state (see Load).
func New[T any](initial T, opts ...Option[T]) (*Store[T], error) {
	cfg := defaultConfig[T]()
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Store[T]{
		state:      initial,
		initial:    initial,
		middleware: cfg.middleware,
		cfg:        cfg,
	}

	if cfg.callback != nil {
		cfg.callback(initial, initial, initial)
	}

	if s.backupConfigured() {
		if err := s.Load(context.Background()); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Get returns the current state without cloning it. Callers must treat the
// returned value as read-only: mutating shared structure in place bypasses
// the equality check and the subscriber pipeline.
func (s *Store[T]) Get() T {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Initial returns the current initial state. Load and Reset may replace it
// with the persisted one.
func (s *Store[T]) Initial() T {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.initial
}

// Set proposes value as the next state and runs the commit protocol.
// It returns the committed state and the previous state. If value is
// structurally equal to the current state, Set is a no-op: no middleware
// runs, no subscriber fires, nothing is persisted, and both return values
// carry the current state.
func (s *Store[T]) Set(ctx context.Context, value T) (T, T, error) {
	return s.commit(ctx, func(prev, initial T) (T, error) {
		return value, nil
	})
}

// Update is the functional form of Set: fn receives a clone of the current
// state plus the initial state and returns the candidate. The clone means
// fn may mutate its prev argument without corrupting the equality baseline.
func (s *Store[T]) Update(ctx context.Context, fn UpdateFunc[T]) (T, T, error) {
	return s.commit(ctx, fn)
}

func (s *Store[T]) commit(ctx context.Context, setter UpdateFunc[T]) (newState T, prevState T, err error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	committed := false
	if s.cfg.obs != nil {
		ctx = s.cfg.obs.OnSetStart(ctx)
		defer func() {
			s.cfg.obs.OnSetEnd(ctx, committed, err)
		}()
	}

	var zero T

	prev, err := s.cfg.clone(s.state)
	if err != nil {
		return zero, zero, fmt.Errorf("statestore: clone state: %w", err)
	}

	candidate, err := setter(prev, s.initial)
	if err != nil {
		return zero, zero, err
	}

	// Hard no-op short circuit: nothing downstream runs.
	if s.cfg.equal(prev, candidate) {
		return s.state, prev, nil
	}

	next := candidate
	for _, mw := range s.middlewareSnapshot() {
		next, err = mw(ctx, next, prev, s.initial)
		if err != nil {
			// Abandon the commit; state, subscribers and the
			// persisted record are untouched.
			return zero, zero, fmt.Errorf("statestore: middleware: %w", err)
		}
	}

	s.stateMu.Lock()
	s.state = next
	initial := s.initial
	s.stateMu.Unlock()
	committed = true

	s.notify(next, prev, initial)

	if s.backupConfigured() {
		if err := s.persistLocked(ctx); err != nil {
			return next, prev, err
		}
	}

	return next, prev, nil
}

func (s *Store[T]) backupConfigured() bool {
	return s.cfg.adapter != nil && s.cfg.key != ""
}

// cloneJSON is the default cloner: a JSON round trip. It fails on values
// JSON cannot represent (cycles, channels, funcs), and that failure
// propagates out of Set.
func cloneJSON[T any](v T) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}

func equalDeep[T any](a, b T) bool {
	return reflect.DeepEqual(a, b)
}
