package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/arguspanoptes/argus-server/internal/domain"
)

func (s *Server) registerLibraryRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listLibraries",
		Method:      http.MethodGet,
		Path:        "/libraries",
		Summary:     "List library systems",
		Description: "Lists configured library systems, optionally filtered by a free-text query over names, vendors, regions, and branches.",
		Tags:        []string{"Libraries"},
	}, s.handleListLibraries)

	huma.Register(s.api, huma.Operation{
		OperationID: "getLibrary",
		Method:      http.MethodGet,
		Path:        "/libraries/{id}",
		Summary:     "Get one library system",
		Tags:        []string{"Libraries"},
	}, s.handleGetLibrary)
}

// ListLibrariesInput filters the system listing.
type ListLibrariesInput struct {
	Query string `query:"q" doc:"Free-text filter"`
}

// ListLibrariesOutput is the system listing. Adapter configs serialize
// without credential fields.
type ListLibrariesOutput struct {
	Body struct {
		Systems []*domain.LibrarySystem `json:"systems"`
		Total   int                     `json:"total"`
	}
}

func (s *Server) handleListLibraries(ctx context.Context, in *ListLibrariesInput) (*ListLibrariesOutput, error) {
	out := &ListLibrariesOutput{}

	if in.Query == "" || s.index == nil {
		out.Body.Systems = s.systems
		out.Body.Total = len(s.systems)
		if out.Body.Systems == nil {
			out.Body.Systems = []*domain.LibrarySystem{}
		}
		return out, nil
	}

	ids, err := s.index.Query(ctx, in.Query)
	if err != nil {
		s.log.Error("library query failed", "q", in.Query, "error", err.Error())
		return nil, huma.Error500InternalServerError("library search failed")
	}

	byID := make(map[string]*domain.LibrarySystem, len(s.systems))
	for _, sys := range s.systems {
		byID[sys.ID] = sys
	}
	out.Body.Systems = []*domain.LibrarySystem{}
	for _, id := range ids {
		if sys, ok := byID[id]; ok {
			out.Body.Systems = append(out.Body.Systems, sys)
		}
	}
	out.Body.Total = len(out.Body.Systems)
	return out, nil
}

// GetLibraryInput addresses one system.
type GetLibraryInput struct {
	ID string `path:"id" doc:"System id"`
}

// GetLibraryOutput is one system's configuration, credentials omitted.
type GetLibraryOutput struct {
	Body domain.LibrarySystem
}

func (s *Server) handleGetLibrary(_ context.Context, in *GetLibraryInput) (*GetLibraryOutput, error) {
	for _, sys := range s.systems {
		if sys.ID == in.ID {
			return &GetLibraryOutput{Body: *sys}, nil
		}
	}
	return nil, huma.Error404NotFound("library system " + in.ID + " not found")
}
