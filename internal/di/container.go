// Package di provides dependency injection configuration for the Argus server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/arguspanoptes/argus-server/internal/catalog"
	"github.com/arguspanoptes/argus-server/internal/config"
	"github.com/arguspanoptes/argus-server/internal/di/providers"
	"github.com/arguspanoptes/argus-server/internal/domain"
	"github.com/arguspanoptes/argus-server/internal/logger"
	"github.com/arguspanoptes/argus-server/internal/metrics"
	"github.com/arguspanoptes/argus-server/internal/resilience"
	"github.com/arguspanoptes/argus-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideMetrics)

	// Storage layer
	do.Provide(injector, providers.ProvideStore)

	// Catalog layer
	do.Provide(injector, providers.ProvideSystems)
	do.Provide(injector, providers.ProvideBrowserPool)
	do.Provide(injector, providers.ProvideRegistry)
	do.Provide(injector, providers.ProvideSystemIndex)
	do.Provide(injector, providers.ProvideBreakers)

	// Business services
	do.Provide(injector, providers.ProvideHealthService)
	do.Provide(injector, providers.ProvideSearchService)
	do.Provide(injector, providers.ProvideJobService)

	// Workers
	do.Provide(injector, providers.ProvideUsageReporter)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns once the server is
// listening. This triggers lazy initialization of every provider.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*metrics.Metrics](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)

	_ = do.MustInvoke[[]*domain.LibrarySystem](injector)
	_ = do.MustInvoke[*providers.BrowserPool](injector)
	_ = do.MustInvoke[*catalog.Registry](injector)
	_ = do.MustInvoke[*providers.SystemIndexHandle](injector)
	_ = do.MustInvoke[*resilience.BreakerSet](injector)

	_ = do.MustInvoke[*service.HealthService](injector)
	_ = do.MustInvoke[*service.SearchService](injector)
	_ = do.MustInvoke[*service.JobService](injector)

	_ = do.MustInvoke[*providers.UsageReporter](injector)

	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
