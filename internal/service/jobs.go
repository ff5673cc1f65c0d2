package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arguspanoptes/argus-server/internal/domain"
	apperrors "github.com/arguspanoptes/argus-server/internal/errors"
	"github.com/arguspanoptes/argus-server/internal/isbn"
	"github.com/arguspanoptes/argus-server/internal/logger"
	"github.com/arguspanoptes/argus-server/internal/store"
)

// JobService runs searches in the background for the async POST path.
// Jobs are persisted before the goroutine starts, so a status poll
// never races job creation.
type JobService struct {
	search *SearchService
	db     *store.Store
	log    *logger.Logger
}

// NewJobService wires the job runner.
func NewJobService(search *SearchService, db *store.Store, log *logger.Logger) *JobService {
	return &JobService{search: search, db: db, log: log.WithComponent("jobs")}
}

// Submit validates the ISBN, persists a pending job, and starts the
// search in the background. Invalid input fails fast with no job.
func (j *JobService) Submit(ctx context.Context, rawISBN string) (*domain.SearchJob, error) {
	if _, err := isbn.Parse(rawISBN); err != nil {
		return nil, apperrors.Validationf("invalid isbn: %v", err).WithCause(err)
	}

	job := &domain.SearchJob{
		ID:        uuid.NewString(),
		ISBN:      rawISBN,
		Status:    domain.JobPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := j.db.CreateJob(ctx, job); err != nil {
		return nil, apperrors.Internal("creating search job").WithCause(err)
	}

	// The search outlives the submitting request, so it runs on a
	// fresh context; the coordinator applies its own global deadline.
	go j.run(*job)
	return job, nil
}

// Job returns the stored job state by id.
func (j *JobService) Job(ctx context.Context, id string) (*domain.SearchJob, error) {
	job, err := j.db.Job(ctx, id)
	if err != nil {
		if apperrors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFoundf("search %s not found", id)
		}
		return nil, apperrors.Internal("loading search job").WithCause(err)
	}
	return job, nil
}

// run executes one background search and persists the terminal state.
// A panicking adapter marks the job failed instead of killing the
// process.
func (j *JobService) run(job domain.SearchJob) {
	defer func() {
		if r := recover(); r != nil {
			j.log.Error("background search panicked", "searchId", job.ID, "panic", fmt.Sprint(r))
			j.finish(&job, nil, fmt.Errorf("internal error"))
		}
	}()

	result, err := j.search.Search(context.Background(), job.ISBN, job.ID, false)
	j.finish(&job, result, err)
}

func (j *JobService) finish(job *domain.SearchJob, result *domain.SearchResult, err error) {
	now := time.Now().UTC()
	job.CompletedAt = &now
	if err != nil {
		job.Status = domain.JobFailed
		job.Error = err.Error()
	} else {
		job.Status = domain.JobCompleted
		job.Result = result
	}
	if updateErr := j.db.UpdateJob(context.Background(), job); updateErr != nil {
		j.log.Error("job update failed", "searchId", job.ID, "error", updateErr.Error())
	}
}
