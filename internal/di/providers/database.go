package providers

import (
	"github.com/samber/do/v2"

	"github.com/arguspanoptes/argus-server/internal/config"
	"github.com/arguspanoptes/argus-server/internal/logger"
	"github.com/arguspanoptes/argus-server/internal/store"
)

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the badger-backed store. An empty data path
// selects the in-memory store, which loses caches and job state on
// restart.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	db, err := store.Open(cfg.Data.Path, log)
	if err != nil {
		return nil, err
	}

	if cfg.Data.Path == "" {
		log.Info("Store initialized in memory")
	} else {
		log.Info("Store initialized", "path", cfg.Data.Path)
	}

	return &StoreHandle{Store: db}, nil
}
