package providers

import (
	"github.com/samber/do/v2"

	"github.com/arguspanoptes/argus-server/internal/config"
	"github.com/arguspanoptes/argus-server/internal/domain"
	"github.com/arguspanoptes/argus-server/internal/logger"
	"github.com/arguspanoptes/argus-server/internal/metrics"
	"github.com/arguspanoptes/argus-server/internal/resilience"
	"github.com/arguspanoptes/argus-server/internal/search"
)

// SystemIndexHandle wraps the bleve index with shutdown capability.
type SystemIndexHandle struct {
	*search.SystemIndex
}

// Shutdown implements do.Shutdownable.
func (h *SystemIndexHandle) Shutdown() error {
	return h.Close()
}

// ProvideSystemIndex builds the in-memory library search index from the
// loaded definitions.
func ProvideSystemIndex(i do.Injector) (*SystemIndexHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	systems := do.MustInvoke[[]*domain.LibrarySystem](i)

	idx, err := search.NewSystemIndex(systems)
	if err != nil {
		return nil, err
	}

	docs, err := idx.Count()
	if err != nil {
		_ = idx.Close()
		return nil, err
	}
	log.Info("Library index built", "documents", docs)
	return &SystemIndexHandle{SystemIndex: idx}, nil
}

// ProvideMetrics provides the Prometheus collectors.
func ProvideMetrics(i do.Injector) (*metrics.Metrics, error) {
	return metrics.New(), nil
}

// ProvideBreakers provides the per-system circuit breaker set. State
// transitions are logged so an open circuit is visible without the
// exposition endpoint.
func ProvideBreakers(i do.Injector) (*resilience.BreakerSet, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	breakerLog := log.WithComponent("breaker")
	return resilience.NewBreakerSet(resilience.BreakerConfig{
		FailureThreshold: uint32(cfg.Breaker.FailureThreshold), //#nosec G115 -- validated >= 1
		ResetTimeout:     cfg.Breaker.ResetTimeout,
	}, func(c resilience.StateChange) {
		breakerLog.Warn("breaker state change",
			"system", c.SystemID,
			"from", c.From,
			"to", c.To,
		)
	}), nil
}
