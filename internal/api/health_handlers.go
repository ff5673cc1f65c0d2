package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/arguspanoptes/argus-server/internal/service"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Liveness check",
		Description: "Reports process health with per-component checks.",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)

	huma.Register(s.api, huma.Operation{
		OperationID: "systemsHealth",
		Method:      http.MethodGet,
		Path:        "/health/systems",
		Summary:     "Per-system health",
		Description: "Reports running success/failure counters and breaker state for every configured system.",
		Tags:        []string{"Health"},
	}, s.handleSystemsHealth)
}

// HealthOutput wraps the liveness report.
type HealthOutput struct {
	Body service.Liveness
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	return &HealthOutput{Body: s.health.Liveness(ctx)}, nil
}

// SystemsHealthOutput wraps the per-system report.
type SystemsHealthOutput struct {
	Body struct {
		Systems []service.SystemHealth `json:"systems"`
	}
}

func (s *Server) handleSystemsHealth(ctx context.Context, _ *struct{}) (*SystemsHealthOutput, error) {
	rows, err := s.health.Snapshot(ctx)
	if err != nil {
		s.log.Error("health snapshot failed", "error", err.Error())
		return nil, huma.Error500InternalServerError("health snapshot failed")
	}
	out := &SystemsHealthOutput{}
	out.Body.Systems = rows
	if out.Body.Systems == nil {
		out.Body.Systems = []service.SystemHealth{}
	}
	return out, nil
}
