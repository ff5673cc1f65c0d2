// Package main provides a health probe CLI: it builds every configured
// catalog adapter and checks each upstream once, printing a table of
// results. Exit status is non-zero when any adapter is unhealthy, so it
// slots into deployment smoke tests.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/arguspanoptes/argus-server/internal/catalog"
	"github.com/arguspanoptes/argus-server/internal/catalog/browser"
	"github.com/arguspanoptes/argus-server/internal/config"
	"github.com/arguspanoptes/argus-server/internal/logger"
	"github.com/arguspanoptes/argus-server/internal/registry"
)

// probeTimeout bounds one upstream health check.
const probeTimeout = 15 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Adapter construction logs go to the structured logger; the probe
	// results themselves go to stdout as a table.
	log := logger.New(logger.Config{
		Writer: os.Stderr,
		Format: "json",
		Level:  slog.LevelWarn,
	})

	systems, err := registry.NewLoader().LoadDir(cfg.Libraries.Dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading library definitions: %v\n", err)
		os.Exit(1)
	}

	var pool *browser.Pool
	if cfg.Browser.ServiceURL != "" {
		pool = browser.NewPool(cfg.Browser.ServiceURL, int64(cfg.Browser.MaxContexts))
	}

	reg := registry.NewFactory(log, pool).BuildRegistry(systems)
	if reg.Len() == 0 {
		fmt.Fprintln(os.Stderr, "no adapters registered")
		os.Exit(1)
	}

	statuses := probeAll(context.Background(), reg)
	printTable(os.Stdout, statuses)

	for _, st := range statuses {
		if !st.Healthy {
			os.Exit(1)
		}
	}
}

// probeAll health-checks every registered adapter concurrently.
func probeAll(ctx context.Context, reg *catalog.Registry) []catalog.HealthStatus {
	ids := reg.SystemIDs()
	sort.Strings(ids)

	var (
		mu       sync.Mutex
		statuses []catalog.HealthStatus
		wg       sync.WaitGroup
	)
	for _, id := range ids {
		for _, adapter := range reg.ForSystem(id) {
			wg.Add(1)
			go func(a catalog.Adapter) {
				defer wg.Done()
				checkCtx, cancel := context.WithTimeout(ctx, probeTimeout)
				defer cancel()
				st := a.HealthCheck(checkCtx)
				mu.Lock()
				statuses = append(statuses, st)
				mu.Unlock()
			}(adapter)
		}
	}
	wg.Wait()

	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].SystemID != statuses[j].SystemID {
			return statuses[i].SystemID < statuses[j].SystemID
		}
		return statuses[i].Protocol < statuses[j].Protocol
	})
	return statuses
}

func printTable(w io.Writer, statuses []catalog.HealthStatus) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYSTEM\tPROTOCOL\tHEALTHY\tLATENCY\tMESSAGE")
	for _, st := range statuses {
		healthy := "ok"
		if !st.Healthy {
			healthy = "FAIL"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%dms\t%s\n",
			st.SystemID, st.Protocol, healthy, st.LatencyMS, st.Message)
	}
	tw.Flush()
}
