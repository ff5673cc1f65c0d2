package registry

import (
	"fmt"

	"github.com/arguspanoptes/argus-server/internal/catalog"
	"github.com/arguspanoptes/argus-server/internal/catalog/apollo"
	"github.com/arguspanoptes/argus-server/internal/catalog/aspen"
	"github.com/arguspanoptes/argus-server/internal/catalog/bibliocommons"
	"github.com/arguspanoptes/argus-server/internal/catalog/browser"
	"github.com/arguspanoptes/argus-server/internal/catalog/enterprise"
	"github.com/arguspanoptes/argus-server/internal/catalog/polaris"
	"github.com/arguspanoptes/argus-server/internal/catalog/sierra"
	"github.com/arguspanoptes/argus-server/internal/catalog/sru"
	"github.com/arguspanoptes/argus-server/internal/catalog/tlc"
	"github.com/arguspanoptes/argus-server/internal/catalog/webscrape"
	"github.com/arguspanoptes/argus-server/internal/catalog/worldcat"
	"github.com/arguspanoptes/argus-server/internal/domain"
	"github.com/arguspanoptes/argus-server/internal/logger"
)

// Factory constructs a wrapped adapter for each protocol tag.
type Factory struct {
	log *logger.Logger
	// browserPool is nil when no browser service is configured; the
	// playwright_scrape protocol is then unavailable.
	browserPool *browser.Pool
}

// NewFactory builds a factory. browserPool may be nil.
func NewFactory(log *logger.Logger, browserPool *browser.Pool) *Factory {
	return &Factory{log: log.WithComponent("registry"), browserPool: browserPool}
}

// Build constructs and wraps the adapter for one config.
func (f *Factory) Build(system *domain.LibrarySystem, cfg domain.AdapterConfig) (catalog.Adapter, error) {
	inner, err := f.build(system, cfg)
	if err != nil {
		return nil, err
	}
	return catalog.Wrap(inner), nil
}

func (f *Factory) build(system *domain.LibrarySystem, cfg domain.AdapterConfig) (catalog.Searcher, error) {
	switch cfg.Protocol {
	case domain.ProtocolKohaSRU, domain.ProtocolSRU:
		return sru.New(system, cfg)
	case domain.ProtocolOCLCWorldCat:
		return worldcat.New(system, cfg)
	case domain.ProtocolSierraREST:
		return sierra.New(system, cfg)
	case domain.ProtocolPolarisPAPI:
		return polaris.New(system, cfg)
	case domain.ProtocolEnterpriseScrape:
		return enterprise.New(system, cfg)
	case domain.ProtocolBiblioCommonsScrape:
		return bibliocommons.New(system, cfg)
	case domain.ProtocolWebScrape, domain.ProtocolAtriuumScrape, domain.ProtocolSpydusScrape:
		return webscrape.New(system, cfg)
	case domain.ProtocolApolloAPI:
		return apollo.New(system, cfg)
	case domain.ProtocolAspenDiscoveryAPI:
		return aspen.New(system, cfg)
	case domain.ProtocolTLCAPI:
		return tlc.New(system, cfg)
	case domain.ProtocolPlaywrightScrape:
		return browser.New(system, cfg, f.browserPool)
	default:
		return nil, fmt.Errorf("no adapter for protocol %q", cfg.Protocol)
	}
}

// BuildRegistry constructs adapters for every enabled system and
// registers those that come up. A config that fails construction (a
// credential env var that is unset, a selector template missing) is
// logged and skipped so one broken entry never takes down startup; the
// system's remaining adapters still register.
func (f *Factory) BuildRegistry(systems []*domain.LibrarySystem) *catalog.Registry {
	reg := catalog.NewRegistry()
	for _, system := range systems {
		if !system.Enabled {
			f.log.Info("system disabled, skipping", "system", system.ID)
			continue
		}
		for _, cfg := range system.Adapters {
			adapter, err := f.Build(system, cfg)
			if err != nil {
				f.log.Error("adapter construction failed, skipping",
					"system", system.ID,
					"protocol", cfg.Protocol.String(),
					"error", err.Error(),
				)
				continue
			}
			reg.Register(system.ID, adapter)
			f.log.Info("adapter registered",
				"system", system.ID,
				"protocol", cfg.Protocol.String(),
			)
		}
	}
	return reg
}
