// Package statestore implements an observable, optionally durable state
// container: one mutable value with ordered subscriber notification, a
// sequential middleware pipeline applied to every proposed mutation, and
// write-through backup to a string-keyed store with staleness-based
// invalidation.
//
// # Basic use
//
//	store, _ := statestore.New(Counter{Count: 0})
//
//	store.Subscribe(func(next, prev, initial Counter) {
//	    fmt.Println("count is now", next.Count)
//	})
//
//	store.Update(ctx, func(prev, initial Counter) (Counter, error) {
//	    prev.Count++
//	    return prev, nil
//	})
//
// Setting a value structurally equal to the current state is a hard no-op:
// no middleware runs, no subscriber fires and nothing is persisted.
//
// # Middleware
//
// Middleware transforms candidates before they commit, in registration
// order. A failing stage aborts the whole set with the state unchanged:
//
//	store.Use(func(ctx context.Context, next, prev, initial Counter) (Counter, error) {
//	    if next.Count < 0 {
//	        return next, errors.New("count cannot go negative")
//	    }
//	    return next, nil
//	})
//
// # Durable backup
//
// With WithBackup the store writes a record {state, initialState,
// timestamp} under one key after every commit, loads it at construction,
// and exposes explicit Load, Reset and ClearBackup operations. Load adopts
// the persisted initial state as well as the persisted state; a record
// older than WithStaleTime triggers Reset instead of a load:
//
//	adapter, _ := bbolt.New("app.db")
//	store, _ := statestore.New(Counter{},
//	    statestore.WithBackup[Counter](adapter, "counter"),
//	    statestore.WithStaleTime[Counter](24*time.Hour),
//	)
//
// # Concurrency
//
// Set and Update are serialized per store: the clone, equality check,
// middleware pipeline, commit, fan-out and persistence write of one call
// finish before the next call starts. Get, Subscribe, Unsubscribe and Use
// never wait on an in-flight pipeline. Subscriber notification is
// synchronous, so a slow subscriber delays the triggering call, and a
// subscriber or middleware must not call Set on its own store: the commit
// lock is held for the whole protocol and the call would deadlock.
package statestore
