package store

import (
	"context"
	"time"

	"github.com/arguspanoptes/argus-server/internal/domain"
)

const (
	jobPrefix = "search:job:"

	// jobTTL bounds how long finished jobs remain queryable. Badger
	// expires the entries natively, so no sweeper is needed.
	jobTTL = 24 * time.Hour
)

// CreateJob stores a freshly submitted search job.
func (s *Store) CreateJob(ctx context.Context, job *domain.SearchJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.setWithTTL([]byte(jobPrefix+job.ID), job, jobTTL)
}

// UpdateJob overwrites a job's stored state, resetting its expiry.
func (s *Store) UpdateJob(ctx context.Context, job *domain.SearchJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.setWithTTL([]byte(jobPrefix+job.ID), job, jobTTL)
}

// Job retrieves a search job by id. Returns ErrNotFound for unknown or
// expired ids.
func (s *Store) Job(ctx context.Context, id string) (*domain.SearchJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var job domain.SearchJob
	if err := s.get([]byte(jobPrefix+id), &job); err != nil {
		return nil, err
	}
	return &job, nil
}
