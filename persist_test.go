package statestore

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

type testLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *testLogger) Debug(msg string, args ...any) {}
func (l *testLogger) Info(msg string, args ...any)  {}
func (l *testLogger) Error(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *testLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

func seedRecord(t *testing.T, adapter *MemoryAdapter, key string, state, initial any, timestamp int64) {
	t.Helper()

	stateData, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}
	initialData, err := json.Marshal(initial)
	if err != nil {
		t.Fatalf("marshal initial: %v", err)
	}
	data, err := json.Marshal(backupRecord{
		State:        stateData,
		InitialState: initialData,
		Timestamp:    timestamp,
	})
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	if err := adapter.Set(context.Background(), key, data); err != nil {
		t.Fatalf("seed record: %v", err)
	}
}

func TestPersistRecordFormat(t *testing.T) {
	ctx := context.Background()
	adapter := NewMemoryAdapter()
	store, err := New(counterState{Count: 0},
		WithBackup[counterState](adapter, "counter"),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	before := time.Now().UnixMilli()
	if _, _, err := store.Set(ctx, counterState{Count: 5}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	after := time.Now().UnixMilli()

	data, ok, err := adapter.Get(ctx, "counter")
	if err != nil || !ok {
		t.Fatalf("Get returned (%v, %v), want record", ok, err)
	}

	var rec backupRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	var state, initial counterState
	if err := json.Unmarshal(rec.State, &state); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if err := json.Unmarshal(rec.InitialState, &initial); err != nil {
		t.Fatalf("unmarshal initial: %v", err)
	}

	if state.Count != 5 {
		t.Errorf("persisted state = %d, want 5", state.Count)
	}
	if initial.Count != 0 {
		t.Errorf("persisted initial = %d, want 0", initial.Count)
	}
	if rec.Timestamp < before || rec.Timestamp > after {
		t.Errorf("timestamp %d outside [%d, %d]", rec.Timestamp, before, after)
	}

	// Wire keys are fixed.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	for _, key := range []string{"state", "initialState", "timestamp"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("record missing %q key", key)
		}
	}
}

func TestNewLoadsBackup(t *testing.T) {
	adapter := NewMemoryAdapter()
	seedRecord(t, adapter, "counter", counterState{Count: 8}, counterState{Count: 2}, time.Now().UnixMilli())

	// The constructor argument is silently replaced by the loaded record,
	// including the initial state.
	store, err := New(counterState{Count: 99},
		WithBackup[counterState](adapter, "counter"),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if got := store.Get(); got.Count != 8 {
		t.Errorf("Get() = %d, want loaded 8", got.Count)
	}
	if got := store.Initial(); got.Count != 2 {
		t.Errorf("Initial() = %d, want loaded 2", got.Count)
	}
}

func TestLoadNotifiesUnconditionally(t *testing.T) {
	ctx := context.Background()
	adapter := NewMemoryAdapter()
	store, err := New(counterState{Count: 3},
		WithBackup[counterState](adapter, "counter"),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	seedRecord(t, adapter, "counter", counterState{Count: 3}, counterState{Count: 3}, time.Now().UnixMilli())

	calls := 0
	store.Subscribe(func(next, prev, initial counterState) { calls++ }, WithoutInitialCall())

	// Loaded state equals current state: still notifies.
	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("subscriber called %d times on equal load, want 1", calls)
	}
}

func TestLoadBypassesMiddleware(t *testing.T) {
	ctx := context.Background()
	adapter := NewMemoryAdapter()
	seedRecord(t, adapter, "counter", counterState{Count: 6}, counterState{Count: 1}, time.Now().UnixMilli())

	store, err := New(counterState{},
		WithBackup[counterState](adapter, "counter"),
		WithMiddleware(func(ctx context.Context, next, prev, initial counterState) (counterState, error) {
			t.Error("middleware ran during load")
			return next, nil
		}),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := store.Get(); got.Count != 6 {
		t.Errorf("Get() = %d, want 6", got.Count)
	}
}

func TestLoadMissingRecord(t *testing.T) {
	ctx := context.Background()
	store, err := New(counterState{Count: 5},
		WithBackup[counterState](NewMemoryAdapter(), "counter"),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := store.Load(ctx); err != nil {
		t.Fatalf("Load of missing record failed: %v", err)
	}
	if got := store.Get(); got.Count != 5 {
		t.Errorf("Get() = %d after empty load, want 5", got.Count)
	}
}

func TestStaleLoadResets(t *testing.T) {
	adapter := NewMemoryAdapter()
	// Persisted five seconds ago, stale after one.
	seedRecord(t, adapter, "counter",
		counterState{Count: 9}, counterState{Count: 1},
		time.Now().Add(-5*time.Second).UnixMilli())

	store, err := New(counterState{Count: 4},
		WithBackup[counterState](adapter, "counter"),
		WithStaleTime[counterState](time.Second),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Stale load behaves as reset: both states become record.initialState.
	if got := store.Get(); got.Count != 1 {
		t.Errorf("Get() = %d after stale load, want 1", got.Count)
	}
	if got := store.Initial(); got.Count != 1 {
		t.Errorf("Initial() = %d after stale load, want 1", got.Count)
	}
}

func TestResetSemantics(t *testing.T) {
	ctx := context.Background()
	adapter := NewMemoryAdapter()
	seedRecord(t, adapter, "counter", counterState{Count: 1}, counterState{Count: 0}, time.Now().UnixMilli())

	store, err := New(counterState{Count: 0},
		WithBackup[counterState](adapter, "counter"),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, _, err := store.Set(ctx, counterState{Count: 5}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	// Restore the seeded record the Set just overwrote.
	seedRecord(t, adapter, "counter", counterState{Count: 1}, counterState{Count: 0}, time.Now().UnixMilli())

	var notified *counterState
	store.Subscribe(func(next, prev, initial counterState) { notified = &next }, WithoutInitialCall())

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	// record.initialState wins, not record.state.
	if got := store.Get(); got.Count != 0 {
		t.Errorf("Get() = %d after reset, want 0", got.Count)
	}
	if got := store.Initial(); got.Count != 0 {
		t.Errorf("Initial() = %d after reset, want 0", got.Count)
	}
	if notified == nil || notified.Count != 0 {
		t.Errorf("reset notified %+v, want Count 0", notified)
	}
}

func TestResetMissingRecord(t *testing.T) {
	ctx := context.Background()
	store, err := New(counterState{Count: 5},
		WithBackup[counterState](NewMemoryAdapter(), "counter"),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("Reset of missing record failed: %v", err)
	}
	if got := store.Get(); got.Count != 5 {
		t.Errorf("Get() = %d after empty reset, want 5", got.Count)
	}
}

func TestClearBackup(t *testing.T) {
	ctx := context.Background()
	adapter := NewMemoryAdapter()
	store, err := New(counterState{},
		WithBackup[counterState](adapter, "counter"),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, _, err := store.Set(ctx, counterState{Count: 3}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := store.ClearBackup(ctx); err != nil {
		t.Fatalf("ClearBackup failed: %v", err)
	}

	if _, ok, _ := adapter.Get(ctx, "counter"); ok {
		t.Error("record still present after ClearBackup")
	}
	// In-memory state is untouched.
	if got := store.Get(); got.Count != 3 {
		t.Errorf("Get() = %d after ClearBackup, want 3", got.Count)
	}
}

func TestBackupOpsWithoutConfig(t *testing.T) {
	ctx := context.Background()
	logger := &testLogger{}
	store, err := New(counterState{Count: 2},
		WithLogger[counterState](logger),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ops := []struct {
		name string
		call func() error
	}{
		{"persist", func() error { return store.Persist(ctx) }},
		{"load", func() error { return store.Load(ctx) }},
		{"reset", func() error { return store.Reset(ctx) }},
		{"clear", func() error { return store.ClearBackup(ctx) }},
	}

	for _, op := range ops {
		if err := op.call(); err != nil {
			t.Errorf("%s without backup config returned %v, want nil", op.name, err)
		}
	}

	if got := logger.errorCount(); got != len(ops) {
		t.Errorf("logged %d diagnostics, want %d", got, len(ops))
	}
	if got := store.Get(); got.Count != 2 {
		t.Errorf("Get() = %d after no-op backup ops, want 2", got.Count)
	}
}

func TestCorruptedRecord(t *testing.T) {
	ctx := context.Background()
	adapter := NewMemoryAdapter()
	if err := adapter.Set(ctx, "counter", []byte("{not json")); err != nil {
		t.Fatalf("seed corrupt record: %v", err)
	}

	// Construction surfaces the decode failure.
	_, err := New(counterState{},
		WithBackup[counterState](adapter, "counter"),
	)
	if err == nil {
		t.Fatal("New succeeded with corrupted record")
	}
	if !strings.Contains(err.Error(), "decode backup record") {
		t.Errorf("error = %v, want decode failure", err)
	}

	// The record is left in place for inspection.
	if _, ok, _ := adapter.Get(ctx, "counter"); !ok {
		t.Error("corrupted record was removed")
	}
}

func TestExplicitPersist(t *testing.T) {
	ctx := context.Background()
	adapter := NewMemoryAdapter()
	store, err := New(counterState{Count: 1},
		WithBackup[counterState](adapter, "counter"),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := store.Persist(ctx); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if _, ok, _ := adapter.Get(ctx, "counter"); !ok {
		t.Error("Persist wrote no record")
	}
}

func TestMemoryAdapter(t *testing.T) {
	ctx := context.Background()
	adapter := NewMemoryAdapter()

	if _, ok, err := adapter.Get(ctx, "missing"); ok || err != nil {
		t.Errorf("Get(missing) = (%v, %v), want (false, nil)", ok, err)
	}

	if err := adapter.Set(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := adapter.Set(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	data, ok, err := adapter.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get = (%v, %v), want value", ok, err)
	}
	if string(data) != "v2" {
		t.Errorf("Get = %q, want %q (overwrite)", data, "v2")
	}

	// Returned slice is a copy.
	data[0] = 'X'
	data2, _, _ := adapter.Get(ctx, "k")
	if string(data2) != "v2" {
		t.Error("Get returned aliased slice")
	}

	if err := adapter.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := adapter.Get(ctx, "k"); ok {
		t.Error("value present after Delete")
	}
	if err := adapter.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete(missing) = %v, want nil", err)
	}
}
