package providers

import (
	"github.com/samber/do/v2"

	"github.com/arguspanoptes/argus-server/internal/catalog"
	"github.com/arguspanoptes/argus-server/internal/config"
	"github.com/arguspanoptes/argus-server/internal/domain"
	"github.com/arguspanoptes/argus-server/internal/logger"
	"github.com/arguspanoptes/argus-server/internal/metrics"
	"github.com/arguspanoptes/argus-server/internal/resilience"
	"github.com/arguspanoptes/argus-server/internal/service"
)

// ProvideHealthService provides the per-system health reporter.
func ProvideHealthService(i do.Injector) (*service.HealthService, error) {
	log := do.MustInvoke[*logger.Logger](i)
	systems := do.MustInvoke[[]*domain.LibrarySystem](i)
	reg := do.MustInvoke[*catalog.Registry](i)
	breakers := do.MustInvoke[*resilience.BreakerSet](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	return service.NewHealthService(systems, reg, breakers, storeHandle.Store, log), nil
}

// ProvideSearchService provides the federated search coordinator.
func ProvideSearchService(i do.Injector) (*service.SearchService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	systems := do.MustInvoke[[]*domain.LibrarySystem](i)
	reg := do.MustInvoke[*catalog.Registry](i)
	breakers := do.MustInvoke[*resilience.BreakerSet](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	health := do.MustInvoke[*service.HealthService](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	searchCfg := service.SearchConfig{
		GlobalTimeout:  cfg.Search.GlobalTimeout,
		SystemTimeout:  cfg.Search.SystemTimeout,
		CacheTTL:       cfg.Search.CacheTTL,
		MaxConcurrency: cfg.Search.MaxConcurrency,
		Retry: resilience.Policy{
			MaxRetries: cfg.Retry.Max,
			BaseDelay:  cfg.Retry.BaseDelay,
		},
	}

	return service.NewSearchService(systems, reg, breakers, storeHandle.Store, health, m, log, searchCfg), nil
}

// ProvideJobService provides the async search job runner.
func ProvideJobService(i do.Injector) (*service.JobService, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	searchSvc := do.MustInvoke[*service.SearchService](i)

	return service.NewJobService(searchSvc, storeHandle.Store, log), nil
}
