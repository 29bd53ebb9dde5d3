// Package bbolt provides a statestore.StorageAdapter backed by a BoltDB
// file. Records live in a single bucket, one key per container.
package bbolt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	statestore "github.com/tysonjf/astro-state"
)

// Store implements statestore.StorageAdapter using bbolt.
type Store struct {
	db     *bolt.DB
	bucket []byte
}

var _ statestore.StorageAdapter = (*Store)(nil)

// New opens (creating if needed) the database file at path and ensures the
// configured bucket exists. The parent directory is created if missing.
func New(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("bbolt: path is required")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("bbolt: create directory %s: %w", dir, err)
	}

	db, err := bolt.Open(path, cfg.fileMode, &bolt.Options{
		Timeout: cfg.timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("bbolt: open database: %w", err)
	}

	bucket := []byte(cfg.bucket)
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bbolt: create bucket %s: %w", cfg.bucket, err)
	}

	return &Store{db: db, bucket: bucket}, nil
}

// Get implements statestore.StorageAdapter.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(key))
		if v != nil {
			// The slice is only valid inside the transaction.
			value = make([]byte, len(v))
			copy(value, v)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("bbolt: get %s: %w", key, err)
	}
	if value == nil {
		return nil, false, nil
	}
	return value, true, nil
}

// Set implements statestore.StorageAdapter.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("bbolt: put %s: %w", key, err)
	}
	return nil
}

// Delete implements statestore.StorageAdapter.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("bbolt: delete %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
