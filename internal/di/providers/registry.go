package providers

import (
	"fmt"

	"github.com/samber/do/v2"

	"github.com/arguspanoptes/argus-server/internal/catalog"
	"github.com/arguspanoptes/argus-server/internal/catalog/browser"
	"github.com/arguspanoptes/argus-server/internal/config"
	"github.com/arguspanoptes/argus-server/internal/domain"
	"github.com/arguspanoptes/argus-server/internal/logger"
	"github.com/arguspanoptes/argus-server/internal/registry"
)

// ProvideSystems loads the library-system definitions from the
// configured directory. Startup fails on a malformed definition; a
// wrong protocol tag or duplicate id is a deployment error, not
// something to limp past.
func ProvideSystems(i do.Injector) ([]*domain.LibrarySystem, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	systems, err := registry.NewLoader().LoadDir(cfg.Libraries.Dir)
	if err != nil {
		return nil, fmt.Errorf("loading library definitions: %w", err)
	}

	enabled := 0
	for _, sys := range systems {
		if sys.Enabled {
			enabled++
		}
	}
	log.Info("Library definitions loaded",
		"dir", cfg.Libraries.Dir,
		"systems", len(systems),
		"enabled", enabled,
	)

	return systems, nil
}

// BrowserPool wraps the optional headless-browser pool. The inner pool
// is nil when no browser service is configured; browser-context
// adapters are then unavailable.
type BrowserPool struct {
	*browser.Pool
}

// ProvideBrowserPool provides the shared browser-context pool.
func ProvideBrowserPool(i do.Injector) (*BrowserPool, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Browser.ServiceURL == "" {
		log.Info("No browser service configured - browser-context adapters disabled")
		return &BrowserPool{Pool: nil}, nil
	}

	log.Info("Browser service configured",
		"url", cfg.Browser.ServiceURL,
		"max_contexts", cfg.Browser.MaxContexts,
	)
	return &BrowserPool{Pool: browser.NewPool(cfg.Browser.ServiceURL, int64(cfg.Browser.MaxContexts))}, nil
}

// ProvideRegistry constructs an adapter for every enabled system's
// configs and registers the ones that come up.
func ProvideRegistry(i do.Injector) (*catalog.Registry, error) {
	log := do.MustInvoke[*logger.Logger](i)
	systems := do.MustInvoke[[]*domain.LibrarySystem](i)
	pool := do.MustInvoke[*BrowserPool](i)

	factory := registry.NewFactory(log, pool.Pool)
	reg := factory.BuildRegistry(systems)

	log.Info("Adapter registry ready", "adapters", reg.Len())
	return reg, nil
}
