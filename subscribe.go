package statestore

import (
	"reflect"
	"time"
)

// SubscribeOption configures a single Subscribe call.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	initialCall bool
}

// WithoutInitialCall suppresses the synchronous initial invocation that
// Subscribe performs by default.
func WithoutInitialCall() SubscribeOption {
	return func(c *subscribeConfig) {
		c.initialCall = false
	}
}

type subscription[T any] struct {
	fn  Subscriber[T]
	ptr uintptr
}

// Subscribe appends fn to the subscriber list. Unless WithoutInitialCall is
// given, fn is invoked once immediately with the current state in both the
// new and previous positions, since no transition has occurred yet.
func (s *Store[T]) Subscribe(fn Subscriber[T], opts ...SubscribeOption) {
	cfg := subscribeConfig{initialCall: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	sub := &subscription[T]{
		fn:  fn,
		ptr: reflect.ValueOf(fn).Pointer(),
	}

	s.subsMu.Lock()
	s.subs = append(s.subs, sub)
	s.subsMu.Unlock()

	if cfg.initialCall {
		s.stateMu.RLock()
		state, initial := s.state, s.initial
		s.stateMu.RUnlock()
		fn(state, state, initial)
	}
}

// Unsubscribe removes every registration of fn, compared by function
// identity. Subscribing the same function twice and unsubscribing once
// removes both. Unknown functions are ignored.
func (s *Store[T]) Unsubscribe(fn Subscriber[T]) {
	ptr := reflect.ValueOf(fn).Pointer()

	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	kept := s.subs[:0]
	for _, sub := range s.subs {
		if sub.ptr != ptr {
			kept = append(kept, sub)
		}
	}
	// Clear trailing slots so removed subscribers are collectable.
	for i := len(kept); i < len(s.subs); i++ {
		s.subs[i] = nil
	}
	s.subs = kept
}

// Subscribers returns the number of registered subscribers.
func (s *Store[T]) Subscribers() int {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	return len(s.subs)
}

// HasSubscribers returns true if at least one subscriber is registered.
func (s *Store[T]) HasSubscribers() bool {
	return s.Subscribers() > 0
}

// notify fans out synchronously, in registration order. The subscriber
// slice is copied first so callbacks may subscribe or unsubscribe without
// deadlocking.
func (s *Store[T]) notify(newState, prevState, initialState T) {
	s.subsMu.RLock()
	subs := make([]*subscription[T], len(s.subs))
	copy(subs, s.subs)
	s.subsMu.RUnlock()

	start := time.Now()
	for _, sub := range subs {
		sub.fn(newState, prevState, initialState)
	}
	if s.cfg.obs != nil {
		s.cfg.obs.OnNotify(len(subs), time.Since(start))
	}
}
