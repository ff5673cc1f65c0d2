package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/arguspanoptes/argus-server/internal/domain"
	"github.com/arguspanoptes/argus-server/internal/isbn"
)

func (s *Server) registerSearchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "search",
		Method:      http.MethodGet,
		Path:        "/search",
		Summary:     "Search availability",
		Description: "Searches every enabled library system for an ISBN and returns the aggregated availability.",
		Tags:        []string{"Search"},
	}, s.handleSearch)

	huma.Register(s.api, huma.Operation{
		OperationID:   "submitSearch",
		Method:        http.MethodPost,
		Path:          "/search",
		Summary:       "Submit an async search",
		DefaultStatus: http.StatusAccepted,
		Tags:          []string{"Search"},
	}, s.handleSubmitSearch)

	huma.Register(s.api, huma.Operation{
		OperationID: "getSearch",
		Method:      http.MethodGet,
		Path:        "/search/{searchId}",
		Summary:     "Poll an async search",
		Tags:        []string{"Search"},
	}, s.handleGetSearch)
}

// SearchInput is the synchronous search request.
type SearchInput struct {
	ISBN    string `query:"isbn" doc:"ISBN-10 or ISBN-13, hyphens and spaces allowed"`
	Refresh bool   `query:"refresh" doc:"Bypass the result cache"`
}

// SearchOutput wraps the search result.
type SearchOutput struct {
	Body domain.SearchResult
}

func (s *Server) handleSearch(ctx context.Context, in *SearchInput) (*SearchOutput, error) {
	if _, err := isbn.Parse(in.ISBN); err != nil {
		return nil, isbnValidationError(err.Error())
	}

	result, err := s.search.Search(ctx, in.ISBN, uuid.NewString(), in.Refresh)
	if err != nil {
		return nil, err
	}
	return &SearchOutput{Body: *result}, nil
}

// SubmitSearchInput is the async search submission.
type SubmitSearchInput struct {
	Body struct {
		ISBN string `json:"isbn" doc:"ISBN-10 or ISBN-13"`
	}
}

// SubmitSearchOutput acknowledges the queued job.
type SubmitSearchOutput struct {
	Body struct {
		SearchID string `json:"searchId" doc:"UUID to poll"`
		Status   string `json:"status" doc:"Always pending"`
	}
}

func (s *Server) handleSubmitSearch(ctx context.Context, in *SubmitSearchInput) (*SubmitSearchOutput, error) {
	if _, err := isbn.Parse(in.Body.ISBN); err != nil {
		return nil, isbnValidationError(err.Error())
	}

	job, err := s.jobs.Submit(ctx, in.Body.ISBN)
	if err != nil {
		return nil, err
	}

	out := &SubmitSearchOutput{}
	out.Body.SearchID = job.ID
	out.Body.Status = string(job.Status)
	return out, nil
}

// GetSearchInput addresses one async search job.
type GetSearchInput struct {
	SearchID string `path:"searchId" doc:"UUID returned by the submission"`
}

// GetSearchOutput is the job's current state: pending, or terminal
// with its result or error.
type GetSearchOutput struct {
	Body struct {
		SearchID string               `json:"searchId"`
		Status   string               `json:"status"`
		Result   *domain.SearchResult `json:"result,omitempty"`
		Error    string               `json:"error,omitempty"`
	}
}

func (s *Server) handleGetSearch(ctx context.Context, in *GetSearchInput) (*GetSearchOutput, error) {
	if _, err := uuid.Parse(in.SearchID); err != nil {
		return nil, huma.Error400BadRequest("searchId must be a UUID")
	}

	job, err := s.jobs.Job(ctx, in.SearchID)
	if err != nil {
		return nil, err
	}

	out := &GetSearchOutput{}
	out.Body.SearchID = job.ID
	out.Body.Status = string(job.Status)
	out.Body.Result = job.Result
	out.Body.Error = job.Error
	return out, nil
}
