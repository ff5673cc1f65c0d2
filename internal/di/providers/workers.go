package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/arguspanoptes/argus-server/internal/logger"
	"github.com/arguspanoptes/argus-server/internal/metrics"
)

// usageReportInterval is how often the coarse usage summary is logged.
const usageReportInterval = 15 * time.Minute

// UsageReporter periodically logs a usage summary for deployments
// without a Prometheus scraper.
type UsageReporter struct {
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (r *UsageReporter) Shutdown() error {
	r.cancel()
	return nil
}

// ProvideUsageReporter starts the periodic usage summary.
func ProvideUsageReporter(i do.Injector) (*UsageReporter, error) {
	log := do.MustInvoke[*logger.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	ctx, cancel := context.WithCancel(context.Background())
	go m.ReportPeriodically(ctx, log.WithComponent("metrics"), usageReportInterval)

	return &UsageReporter{cancel: cancel}, nil
}
