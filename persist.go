package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// StorageAdapter is the interface the store persists through. Any durable
// string-keyed store works: bbolt and sqlite adapters live under stores/,
// and MemoryAdapter covers tests and ephemeral use.
type StorageAdapter interface {
	// Get returns the value under key. The second return is false when
	// no value exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set writes value under key, overwriting any prior value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the value under key. Deleting a missing key is not
	// an error.
	Delete(ctx context.Context, key string) error
}

// backupRecord is the persisted shape: the current state, the initial
// state and a millisecond timestamp, as one JSON blob per key.
type backupRecord struct {
	State        json.RawMessage `json:"state"`
	InitialState json.RawMessage `json:"initialState"`
	Timestamp    int64           `json:"timestamp"`
}

// IsPersistent returns true if the store was constructed with a usable
// backup configuration.
func (s *Store[T]) IsPersistent() bool {
	return s.backupConfigured()
}

// backupReady reports whether backup operations can run, logging the
// skipped operation when they cannot. Misconfiguration is diagnostic-only:
// the operation degrades to a no-op rather than failing.
func (s *Store[T]) backupReady(op string) bool {
	if !s.backupConfigured() {
		s.logError("backup not configured, skipping", "op", op)
		return false
	}
	return true
}

// Persist serializes the current state, the initial state and the current
// time and writes the record under the configured key, replacing any prior
// record. Without a backup configuration it logs and does nothing.
func (s *Store[T]) Persist(ctx context.Context) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	return s.persistLocked(ctx)
}

func (s *Store[T]) persistLocked(ctx context.Context) (err error) {
	if !s.backupReady("persist") {
		return nil
	}
	defer s.observeBackup(ctx, "persist", time.Now(), &err)

	stateData, err := json.Marshal(s.state)
	if err != nil {
		return fmt.Errorf("statestore: encode state: %w", err)
	}
	initialData, err := json.Marshal(s.initial)
	if err != nil {
		return fmt.Errorf("statestore: encode initial state: %w", err)
	}

	data, err := json.Marshal(backupRecord{
		State:        stateData,
		InitialState: initialData,
		Timestamp:    time.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("statestore: encode backup record: %w", err)
	}

	if err := s.cfg.adapter.Set(ctx, s.cfg.key, data); err != nil {
		return fmt.Errorf("statestore: write backup: %w", err)
	}
	s.logDebug("persisted backup", "key", s.cfg.key)
	return nil
}

// Load reads the record under the configured key and adopts it: the
// persisted initial state replaces the live one, and the persisted state
// becomes the current state, bypassing both the no-op short circuit and
// the middleware pipeline. Subscribers are notified unconditionally, even
// when the loaded state equals the current one. A record older than the
// configured stale time triggers Reset instead. A missing record is a
// no-op; a malformed one surfaces as an error and is left in place.
func (s *Store[T]) Load(ctx context.Context) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Store[T]) loadLocked(ctx context.Context) (err error) {
	if !s.backupReady("load") {
		return nil
	}
	defer s.observeBackup(ctx, "load", time.Now(), &err)

	rec, ok, err := s.readRecord(ctx, "load")
	if err != nil || !ok {
		return err
	}

	if s.cfg.staleTime > 0 && time.Now().UnixMilli()-rec.Timestamp > s.cfg.staleTime.Milliseconds() {
		s.logDebug("backup record stale, resetting", "key", s.cfg.key, "timestamp", rec.Timestamp)
		return s.resetLocked(ctx)
	}

	var initial T
	if err := json.Unmarshal(rec.InitialState, &initial); err != nil {
		return fmt.Errorf("statestore: load: decode initial state: %w", err)
	}
	var state T
	if err := json.Unmarshal(rec.State, &state); err != nil {
		return fmt.Errorf("statestore: load: decode state: %w", err)
	}

	s.stateMu.Lock()
	prev := s.state
	s.state = state
	s.initial = initial
	s.stateMu.Unlock()

	s.notify(state, prev, initial)
	return nil
}

// Reset reads the record under the configured key and, if present, sets
// both the current state and the initial state to the record's initial
// state (not its state), then notifies subscribers.
func (s *Store[T]) Reset(ctx context.Context) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	return s.resetLocked(ctx)
}

func (s *Store[T]) resetLocked(ctx context.Context) (err error) {
	if !s.backupReady("reset") {
		return nil
	}
	defer s.observeBackup(ctx, "reset", time.Now(), &err)

	rec, ok, err := s.readRecord(ctx, "reset")
	if err != nil || !ok {
		return err
	}

	var initial T
	if err := json.Unmarshal(rec.InitialState, &initial); err != nil {
		return fmt.Errorf("statestore: reset: decode initial state: %w", err)
	}

	s.stateMu.Lock()
	prev := s.state
	s.state = initial
	s.initial = initial
	s.stateMu.Unlock()

	s.notify(initial, prev, initial)
	return nil
}

// ClearBackup deletes the record under the configured key. The in-memory
// current and initial state are untouched.
func (s *Store[T]) ClearBackup(ctx context.Context) (err error) {
	if !s.backupReady("clear") {
		return nil
	}
	defer s.observeBackup(ctx, "clear", time.Now(), &err)

	if err := s.cfg.adapter.Delete(ctx, s.cfg.key); err != nil {
		return fmt.Errorf("statestore: clear backup: %w", err)
	}
	return nil
}

func (s *Store[T]) readRecord(ctx context.Context, op string) (backupRecord, bool, error) {
	var rec backupRecord

	data, ok, err := s.cfg.adapter.Get(ctx, s.cfg.key)
	if err != nil {
		return rec, false, fmt.Errorf("statestore: %s: read backup: %w", op, err)
	}
	if !ok {
		return rec, false, nil
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, false, fmt.Errorf("statestore: %s: decode backup record: %w", op, err)
	}
	return rec, true, nil
}

func (s *Store[T]) observeBackup(ctx context.Context, op string, start time.Time, err *error) {
	if s.cfg.obs != nil {
		s.cfg.obs.OnBackup(ctx, op, time.Since(start), *err)
	}
}

// MemoryAdapter is a StorageAdapter backed by a map. It is safe for
// concurrent use.
type MemoryAdapter struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryAdapter creates an empty in-memory adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		records: make(map[string][]byte),
	}
}

// Get implements StorageAdapter.
func (m *MemoryAdapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.records[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// Set implements StorageAdapter.
func (m *MemoryAdapter) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	m.records[key] = stored
	return nil
}

// Delete implements StorageAdapter.
func (m *MemoryAdapter) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, key)
	return nil
}
