// Package providers contains dependency injection providers for the Argus server.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/arguspanoptes/argus-server/internal/config"
	"github.com/arguspanoptes/argus-server/internal/logger"
)

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Format:      cfg.Logger.Format,
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	dataPath := cfg.Data.Path
	if dataPath == "" {
		dataPath = "(in-memory)"
	}
	log.Info("Starting Argus server",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"libraries_dir", cfg.Libraries.Dir,
		"data_path", dataPath,
	)

	return log, nil
}
