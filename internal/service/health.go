package service

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/arguspanoptes/argus-server/internal/catalog"
	"github.com/arguspanoptes/argus-server/internal/domain"
	"github.com/arguspanoptes/argus-server/internal/logger"
	"github.com/arguspanoptes/argus-server/internal/resilience"
	"github.com/arguspanoptes/argus-server/internal/store"
)

// SystemHealth is one row of the per-system health report: the running
// counters joined with the breaker's current view of the system.
type SystemHealth struct {
	SystemID   string          `json:"systemId"`
	SystemName string          `json:"systemName"`
	Enabled    bool            `json:"enabled"`
	Protocol   domain.Protocol `json:"protocol,omitempty"`

	BreakerState        string `json:"breakerState"`
	ConsecutiveFailures uint32 `json:"consecutiveFailures"`

	Successes     int64      `json:"successes"`
	Failures      int64      `json:"failures"`
	AvgDurationMS int64      `json:"avgDurationMs"`
	LastSuccess   *time.Time `json:"lastSuccess"`
	LastFailure   *time.Time `json:"lastFailure"`
	LastError     string     `json:"lastError,omitempty"`
}

// ComponentHealth is one subsystem's slice of the liveness report.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Liveness is the GET /health payload.
type Liveness struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

// HealthService maintains per-system running counters and serves the
// liveness and per-system health reports.
type HealthService struct {
	systems  []*domain.LibrarySystem
	registry *catalog.Registry
	breakers *resilience.BreakerSet
	db       *store.Store
	log      *logger.Logger

	// probes coalesces concurrent upstream health checks per system.
	probes singleflight.Group
}

// NewHealthService wires the health service.
func NewHealthService(
	systems []*domain.LibrarySystem,
	registry *catalog.Registry,
	breakers *resilience.BreakerSet,
	db *store.Store,
	log *logger.Logger,
) *HealthService {
	return &HealthService{
		systems:  systems,
		registry: registry,
		breakers: breakers,
		db:       db,
		log:      log.WithComponent("health"),
	}
}

// RecordSuccess folds one successful adapter call into the system's
// counters. Called from fan-out goroutines, so it never takes the
// request context.
func (h *HealthService) RecordSuccess(systemID string, elapsed time.Duration) {
	if err := h.db.RecordSuccess(context.Background(), systemID, elapsed); err != nil {
		h.log.Warn("health record failed", "system", systemID, "error", err.Error())
	}
}

// RecordFailure folds one failed adapter call into the system's
// counters.
func (h *HealthService) RecordFailure(systemID, message string) {
	if err := h.db.RecordFailure(context.Background(), systemID, message); err != nil {
		h.log.Warn("health record failed", "system", systemID, "error", err.Error())
	}
}

// Snapshot reports every configured system: its running counters and
// breaker state, sorted by system id for stable output. Disabled
// systems appear with their configuration but no live adapter state.
func (h *HealthService) Snapshot(ctx context.Context) ([]SystemHealth, error) {
	out := make([]SystemHealth, 0, len(h.systems))
	for _, sys := range h.systems {
		row := SystemHealth{
			SystemID:     sys.ID,
			SystemName:   sys.Name,
			Enabled:      sys.Enabled,
			BreakerState: "closed",
		}
		if adapter, ok := h.registry.PrimaryAdapter(sys.ID); ok {
			row.Protocol = adapter.Protocol()
		}
		if h.breakers != nil {
			b := h.breakers.For(sys.ID)
			row.BreakerState = b.State()
			row.ConsecutiveFailures = b.ConsecutiveFailures()
		}
		rec, err := h.db.HealthRecord(ctx, sys.ID)
		if err != nil {
			return nil, err
		}
		row.Successes = rec.Successes
		row.Failures = rec.Failures
		row.AvgDurationMS = rec.AverageDurationMS()
		row.LastSuccess = rec.LastSuccess
		row.LastFailure = rec.LastFailure
		row.LastError = rec.LastError
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SystemID < out[j].SystemID })
	return out, nil
}

// Liveness reports process health: the store answers reads and the
// registry holds at least one adapter.
func (h *HealthService) Liveness(ctx context.Context) Liveness {
	report := Liveness{
		Status:     "ok",
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]ComponentHealth),
	}

	if _, err := h.db.HealthRecords(ctx); err != nil {
		report.Status = "degraded"
		report.Components["store"] = ComponentHealth{Status: "down", Message: err.Error()}
	} else {
		report.Components["store"] = ComponentHealth{Status: "ok"}
	}

	if h.registry.Len() == 0 {
		report.Status = "degraded"
		report.Components["registry"] = ComponentHealth{Status: "down", Message: "no adapters registered"}
	} else {
		report.Components["registry"] = ComponentHealth{Status: "ok"}
	}

	return report
}

// Probe runs the primary adapter's upstream health check for one
// system. Concurrent probes for the same system share one in-flight
// check.
func (h *HealthService) Probe(ctx context.Context, systemID string) (catalog.HealthStatus, bool) {
	adapter, ok := h.registry.PrimaryAdapter(systemID)
	if !ok {
		return catalog.HealthStatus{}, false
	}
	v, _, _ := h.probes.Do(systemID, func() (any, error) {
		return adapter.HealthCheck(ctx), nil
	})
	status, _ := v.(catalog.HealthStatus)
	return status, true
}
