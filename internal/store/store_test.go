package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arguspanoptes/argus-server/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSearchCacheRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	result := &domain.SearchResult{
		SearchID:         "a0f6b7c8-0000-0000-0000-000000000001",
		ISBN:             "0-306-40615-2",
		NormalizedISBN13: "9780306406157",
		CompletedAt:      time.Now().UTC(),
		Holdings: []domain.BookHolding{
			{SystemID: "metro", BranchID: "metro:central", Status: domain.StatusAvailable},
		},
		SystemsSearched:  2,
		SystemsSucceeded: 2,
	}
	if err := s.PutSearch(ctx, result); err != nil {
		t.Fatalf("PutSearch: %v", err)
	}

	got, ok, err := s.CachedSearch(ctx, "9780306406157", time.Hour)
	if err != nil {
		t.Fatalf("CachedSearch: %v", err)
	}
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if got.SearchID != result.SearchID {
		t.Errorf("SearchID = %q, want %q", got.SearchID, result.SearchID)
	}
	if len(got.Holdings) != 1 || got.Holdings[0].BranchID != "metro:central" {
		t.Errorf("holdings did not survive the round trip: %+v", got.Holdings)
	}
}

func TestSearchCacheMiss(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.CachedSearch(context.Background(), "9780000000002", time.Hour)
	if err != nil {
		t.Fatalf("CachedSearch: %v", err)
	}
	if ok {
		t.Fatal("expected a miss for an unknown isbn")
	}
}

func TestSearchCacheStaleEntryIsAMiss(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	result := &domain.SearchResult{
		NormalizedISBN13: "9780306406157",
		CompletedAt:      time.Now().UTC().Add(-2 * time.Hour),
	}
	if err := s.PutSearch(ctx, result); err != nil {
		t.Fatalf("PutSearch: %v", err)
	}

	_, ok, err := s.CachedSearch(ctx, "9780306406157", time.Hour)
	if err != nil {
		t.Fatalf("CachedSearch: %v", err)
	}
	if ok {
		t.Fatal("entry older than the ttl must not be served")
	}
}

func TestJobLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := &domain.SearchJob{
		ID:        "7b6d3f4e-0000-0000-0000-00000000000a",
		ISBN:      "9780306406157",
		Status:    domain.JobPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	got, err := s.Job(ctx, job.ID)
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if got.Status != domain.JobPending {
		t.Errorf("Status = %q, want %q", got.Status, domain.JobPending)
	}

	done := time.Now().UTC()
	job.Status = domain.JobCompleted
	job.CompletedAt = &done
	job.Result = &domain.SearchResult{NormalizedISBN13: "9780306406157"}
	if err := s.UpdateJob(ctx, job); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	got, err = s.Job(ctx, job.ID)
	if err != nil {
		t.Fatalf("Job after update: %v", err)
	}
	if got.Status != domain.JobCompleted {
		t.Errorf("Status = %q, want %q", got.Status, domain.JobCompleted)
	}
	if got.Result == nil || got.Result.NormalizedISBN13 != "9780306406157" {
		t.Errorf("Result did not survive the update: %+v", got.Result)
	}
}

func TestJobUnknownIDIsNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Job(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestHealthCounters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RecordSuccess(ctx, "metro", 200*time.Millisecond); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	if err := s.RecordSuccess(ctx, "metro", 400*time.Millisecond); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	if err := s.RecordFailure(ctx, "metro", "connection refused"); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}

	rec, err := s.HealthRecord(ctx, "metro")
	if err != nil {
		t.Fatalf("HealthRecord: %v", err)
	}
	if rec.Successes != 2 || rec.Failures != 1 {
		t.Errorf("counters = %d/%d, want 2/1", rec.Successes, rec.Failures)
	}
	if rec.AverageDurationMS() != 300 {
		t.Errorf("AverageDurationMS = %d, want 300", rec.AverageDurationMS())
	}
	if rec.LastError != "connection refused" {
		t.Errorf("LastError = %q", rec.LastError)
	}
	if rec.LastSuccess == nil || rec.LastFailure == nil {
		t.Error("expected both timestamps to be set")
	}
}

func TestHealthRecordUnknownSystemIsZero(t *testing.T) {
	s := openTestStore(t)

	rec, err := s.HealthRecord(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("HealthRecord: %v", err)
	}
	if rec.SystemID != "never-seen" || rec.Successes != 0 || rec.Failures != 0 {
		t.Errorf("expected a zero record, got %+v", rec)
	}
}

func TestHealthRecordsListsAllSystems(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RecordSuccess(ctx, "metro", time.Millisecond); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	if err := s.RecordFailure(ctx, "prairie", "timeout"); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}

	records, err := s.HealthRecords(ctx)
	if err != nil {
		t.Fatalf("HealthRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len = %d, want 2", len(records))
	}
	seen := map[string]bool{}
	for _, rec := range records {
		seen[rec.SystemID] = true
	}
	if !seen["metro"] || !seen["prairie"] {
		t.Errorf("missing systems: %v", seen)
	}
}
