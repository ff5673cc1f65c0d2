package providers

import (
	"context"
	"net"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/arguspanoptes/argus-server/internal/api"
	"github.com/arguspanoptes/argus-server/internal/config"
	"github.com/arguspanoptes/argus-server/internal/domain"
	"github.com/arguspanoptes/argus-server/internal/logger"
	"github.com/arguspanoptes/argus-server/internal/metrics"
	"github.com/arguspanoptes/argus-server/internal/service"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	systems := do.MustInvoke[[]*domain.LibrarySystem](i)
	searchSvc := do.MustInvoke[*service.SearchService](i)
	jobs := do.MustInvoke[*service.JobService](i)
	health := do.MustInvoke[*service.HealthService](i)
	indexHandle := do.MustInvoke[*SystemIndexHandle](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	handler := api.NewServer(api.Options{
		Systems:      systems,
		Search:       searchSvc,
		Jobs:         jobs,
		Health:       health,
		Index:        indexHandle.SystemIndex,
		Metrics:      m,
		Logger:       log,
		RateLimitRPM: cfg.RateLimit.RPM,
	})

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv}, nil
}
