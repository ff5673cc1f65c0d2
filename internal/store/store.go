// Package store persists cached search results, asynchronous job
// state, and per-system health counters in Badger. An empty data path
// opens an in-memory database, which tests and ephemeral deployments
// use.
package store

import (
	"encoding/json/v2"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/arguspanoptes/argus-server/internal/logger"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("store: not found")

// Store wraps a Badger database instance.
type Store struct {
	db  *badger.DB
	log *logger.Logger

	// healthMu serializes read-modify-write cycles on health records
	// so concurrent adapter completions never hit a commit conflict.
	healthMu sync.Mutex
}

// Open opens the database at path, or an in-memory database when path
// is empty.
func Open(path string, log *logger.Logger) (*Store, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
		opts.SyncWrites = true       // Sync writes to disk to survive crashes
		opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup
	}
	opts.Logger = nil // Disable Badger's internal logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	if log != nil {
		if path == "" {
			log.Info("database opened in memory")
		} else {
			log.Info("database opened", "path", path)
		}
	}
	return &Store{db: db, log: log}, nil
}

// Close gracefully closes the database.
func (s *Store) Close() error {
	if s.log != nil {
		s.log.Info("closing database")
	}
	return s.db.Close()
}

// Helper methods for database operations.

// get retrieves a value by key. Returns ErrNotFound when absent.
func (s *Store) get(key []byte, dest any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dest)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}

// set stores a value by key.
func (s *Store) set(key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// setWithTTL stores a value that Badger expires after ttl.
func (s *Store) setWithTTL(key []byte, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, data).WithTTL(ttl))
	})
}
