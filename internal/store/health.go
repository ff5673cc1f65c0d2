package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/arguspanoptes/argus-server/internal/domain"
)

const healthPrefix = "health:system:"

// RecordSuccess folds one successful adapter call into the system's
// running counters.
func (s *Store) RecordSuccess(ctx context.Context, systemID string, elapsed time.Duration) error {
	return s.updateHealth(ctx, systemID, func(rec *domain.HealthRecord) {
		now := time.Now().UTC()
		rec.Successes++
		rec.TotalDurationMS += elapsed.Milliseconds()
		rec.LastSuccess = &now
	})
}

// RecordFailure folds one failed adapter call into the system's
// running counters. message should be the sanitized error text.
func (s *Store) RecordFailure(ctx context.Context, systemID, message string) error {
	return s.updateHealth(ctx, systemID, func(rec *domain.HealthRecord) {
		now := time.Now().UTC()
		rec.Failures++
		rec.LastFailure = &now
		rec.LastError = message
	})
}

// HealthRecord returns the counters for one system. Systems that have
// never been probed get a zero record rather than an error.
func (s *Store) HealthRecord(ctx context.Context, systemID string) (*domain.HealthRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec := domain.HealthRecord{SystemID: systemID}
	err := s.get([]byte(healthPrefix+systemID), &rec)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return &rec, nil
}

// HealthRecords returns the counters for every system that has been
// recorded at least once.
func (s *Store) HealthRecords(ctx context.Context) ([]*domain.HealthRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []*domain.HealthRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(healthPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec domain.HealthRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// updateHealth runs a serialized read-modify-write on one record.
func (s *Store) updateHealth(ctx context.Context, systemID string, apply func(*domain.HealthRecord)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	rec, err := s.HealthRecord(ctx, systemID)
	if err != nil {
		return err
	}
	apply(rec)
	return s.set([]byte(healthPrefix+systemID), rec)
}
