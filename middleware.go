package statestore

import "context"

// Middleware transforms a candidate state before it commits. Stages run
// sequentially in registration order: each receives the previous stage's
// output as next, together with the pre-set state and the initial state.
// Returning an error aborts the whole set operation with the state
// unchanged.
type Middleware[T any] func(ctx context.Context, next, prev, initial T) (T, error)

// Use appends mw to the pipeline. Middleware cannot be removed; it stays
// registered for the lifetime of the store.
func (s *Store[T]) Use(mw Middleware[T]) {
	s.mwMu.Lock()
	defer s.mwMu.Unlock()
	s.middleware = append(s.middleware, mw)
}

// Middlewares returns the number of registered middleware stages.
func (s *Store[T]) Middlewares() int {
	s.mwMu.Lock()
	defer s.mwMu.Unlock()
	return len(s.middleware)
}

func (s *Store[T]) middlewareSnapshot() []Middleware[T] {
	s.mwMu.Lock()
	defer s.mwMu.Unlock()
	mws := make([]Middleware[T], len(s.middleware))
	copy(mws, s.middleware)
	return mws
}
