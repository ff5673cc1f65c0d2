// Package service holds the orchestration layer: the search
// coordinator that fans an ISBN out across every enabled library
// system, the health service backing the liveness and per-system
// endpoints, and the async job runner behind POST /search.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/arguspanoptes/argus-server/internal/aggregate"
	"github.com/arguspanoptes/argus-server/internal/catalog"
	"github.com/arguspanoptes/argus-server/internal/domain"
	apperrors "github.com/arguspanoptes/argus-server/internal/errors"
	"github.com/arguspanoptes/argus-server/internal/isbn"
	"github.com/arguspanoptes/argus-server/internal/logger"
	"github.com/arguspanoptes/argus-server/internal/metrics"
	"github.com/arguspanoptes/argus-server/internal/resilience"
	"github.com/arguspanoptes/argus-server/internal/store"
)

// SearchConfig tunes the coordinator's deadlines and fan-out bounds.
type SearchConfig struct {
	// GlobalTimeout bounds one whole fan-out.
	GlobalTimeout time.Duration
	// SystemTimeout bounds one system's search including retries.
	SystemTimeout time.Duration
	// CacheTTL is how long a stored result satisfies later searches.
	CacheTTL time.Duration
	// MaxConcurrency is the per-system concurrency bound used when an
	// adapter config does not set its own.
	MaxConcurrency int
	// Retry is the per-system retry policy.
	Retry resilience.Policy
}

// DefaultSearchConfig mirrors the documented tunable defaults.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		GlobalTimeout:  30 * time.Second,
		SystemTimeout:  20 * time.Second,
		CacheTTL:       time.Hour,
		MaxConcurrency: 2,
		Retry:          resilience.DefaultPolicy(),
	}
}

// SearchService coordinates one availability search: cache probe,
// breaker-gated fan-out, outcome collection under the global deadline,
// aggregation, and cache population. No individual system failure is
// fatal; the only fatal path is an invalid ISBN.
type SearchService struct {
	systems  []*domain.LibrarySystem
	registry *catalog.Registry
	breakers *resilience.BreakerSet
	limiter  *resilience.KeyedLimiter
	db       *store.Store
	health   *HealthService
	metrics  *metrics.Metrics
	log      *logger.Logger
	cfg      SearchConfig
}

// NewSearchService wires the coordinator. health and m may be nil in
// tests that do not assert on them.
func NewSearchService(
	systems []*domain.LibrarySystem,
	registry *catalog.Registry,
	breakers *resilience.BreakerSet,
	db *store.Store,
	health *HealthService,
	m *metrics.Metrics,
	log *logger.Logger,
	cfg SearchConfig,
) *SearchService {
	return &SearchService{
		systems:  systems,
		registry: registry,
		breakers: breakers,
		limiter:  resilience.NewKeyedLimiter(),
		db:       db,
		health:   health,
		metrics:  m,
		log:      log.WithComponent("search"),
		cfg:      cfg,
	}
}

// outcome is one system's fan-out result.
type outcome struct {
	system   *domain.LibrarySystem
	protocol domain.Protocol
	result   *catalog.Result
	err      error
	elapsed  time.Duration
}

// task is one admitted system plus its breaker settlement callback.
type task struct {
	system  *domain.LibrarySystem
	adapter catalog.Adapter
	settle  func(success bool)
}

// Search runs one federated availability search. refresh skips the
// cache probe but the result is still written back.
func (s *SearchService) Search(ctx context.Context, rawISBN, searchID string, refresh bool) (*domain.SearchResult, error) {
	parsed, err := isbn.Parse(rawISBN)
	if err != nil {
		return nil, apperrors.Validationf("invalid isbn: %v", err).WithCause(err)
	}

	finish := s.searchStarted()
	defer finish()
	started := time.Now().UTC()

	if cached, ok := s.probeCache(ctx, parsed.ISBN13, refresh); ok {
		cached.SearchID = searchID
		cached.FromCache = true
		s.recordSearch(cached, time.Since(started))
		return cached, nil
	}

	result := &domain.SearchResult{
		SearchID:         searchID,
		ISBN:             rawISBN,
		NormalizedISBN13: parsed.ISBN13,
		StartedAt:        started,
		Errors:           []domain.SearchError{},
	}

	tasks := s.admit(result)
	holdings := s.fanOut(ctx, parsed.ISBN13, tasks, result)

	result.Holdings, result.Summary = aggregate.Aggregate(holdings)
	result.CompletedAt = time.Now().UTC()
	result.SystemsSearched = result.SystemsSucceeded + result.SystemsFailed + result.SystemsTimedOut
	result.IsPartial = result.SystemsFailed > 0 || result.SystemsTimedOut > 0

	if err := s.db.PutSearch(ctx, result); err != nil {
		s.log.Warn("cache write failed", "isbn", parsed.ISBN13, "error", err.Error())
	}
	s.recordSearch(result, time.Since(started))
	return result, nil
}

// probeCache returns a clone of a fresh cached result. With refresh
// set, the probe is skipped entirely and recorded as a bypass.
func (s *SearchService) probeCache(ctx context.Context, isbn13 string, refresh bool) (*domain.SearchResult, bool) {
	if refresh {
		s.cacheProbe(metrics.CacheBypass)
		return nil, false
	}
	cached, ok, err := s.db.CachedSearch(ctx, isbn13, s.cfg.CacheTTL)
	if err != nil {
		s.log.Warn("cache probe failed", "isbn", isbn13, "error", err.Error())
	}
	if !ok {
		s.cacheProbe(metrics.CacheMiss)
		return nil, false
	}
	s.cacheProbe(metrics.CacheHit)
	return cached.Clone(), true
}

// admit gates every enabled system through its circuit breaker. A
// skipped system counts as failed, carries one circuit_open metric per
// configured adapter protocol, and gets an error record.
func (s *SearchService) admit(result *domain.SearchResult) []task {
	var tasks []task
	for _, sys := range s.systems {
		if !sys.Enabled {
			continue
		}
		adapter, ok := s.registry.PrimaryAdapter(sys.ID)
		if !ok {
			continue
		}
		settle, admitted := s.breakers.For(sys.ID).Allow()
		if !admitted {
			s.log.Info("breaker open, skipping system", "system", sys.ID)
			for _, cfg := range sys.Adapters {
				s.adapterRequest(cfg.Protocol, metrics.OutcomeCircuitOpen, 0)
			}
			result.SystemsFailed++
			result.Errors = append(result.Errors, domain.SearchError{
				SystemID:   sys.ID,
				SystemName: sys.Name,
				Protocol:   adapter.Protocol(),
				ErrorType:  "circuit_open",
				Message:    "circuit breaker open",
				Timestamp:  time.Now().UTC(),
			})
			continue
		}
		tasks = append(tasks, task{system: sys, adapter: adapter, settle: settle})
	}
	return tasks
}

// fanOut launches every admitted task and collects outcomes until all
// arrive or the global deadline expires. At expiry the already-ready
// outcomes are drained without blocking, then the stragglers are
// marked timed out; their goroutines observe the cancelled context,
// settle their breakers, and exit on their own.
func (s *SearchService) fanOut(ctx context.Context, isbn13 string, tasks []task, result *domain.SearchResult) []domain.BookHolding {
	if len(tasks) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.GlobalTimeout)
	defer cancel()

	outcomes := make(chan outcome, len(tasks))
	pendingBySystem := make(map[string]*domain.LibrarySystem, len(tasks))
	for _, t := range tasks {
		pendingBySystem[t.system.ID] = t.system
		go s.searchSystem(ctx, isbn13, t, outcomes)
	}

	var holdings []domain.BookHolding
	pending := len(tasks)
	for pending > 0 {
		select {
		case out := <-outcomes:
			pending--
			delete(pendingBySystem, out.system.ID)
			holdings = append(holdings, s.collect(out, result)...)
		case <-ctx.Done():
			for pending > 0 {
				select {
				case out := <-outcomes:
					pending--
					delete(pendingBySystem, out.system.ID)
					holdings = append(holdings, s.collect(out, result)...)
					continue
				default:
				}
				break
			}
			for _, sys := range pendingBySystem {
				result.SystemsTimedOut++
				result.Errors = append(result.Errors, domain.SearchError{
					SystemID:   sys.ID,
					SystemName: sys.Name,
					Protocol:   s.protocolOf(sys.ID),
					ErrorType:  string(catalog.KindTimeout),
					Message:    "global search deadline exceeded",
					Timestamp:  time.Now().UTC(),
				})
			}
			return holdings
		}
	}
	return holdings
}

// searchSystem runs one system's search under its per-system timeout,
// concurrency bound, and retry policy. Breaker settlement, health
// recording, and the adapter metric happen here so they fire exactly
// once even when the coordinator has already returned.
func (s *SearchService) searchSystem(ctx context.Context, isbn13 string, t task, outcomes chan<- outcome) {
	start := time.Now()

	sysCtx, cancel := context.WithTimeout(ctx, s.cfg.SystemTimeout)
	defer cancel()

	limit := s.cfg.MaxConcurrency
	if len(t.system.Adapters) > 0 && t.system.Adapters[0].MaxConcurrency > 0 {
		limit = t.system.Adapters[0].MaxConcurrency
	}

	var res *catalog.Result
	err := s.limiter.Run(sysCtx, t.system.ID, limit, func() error {
		return resilience.Do(sysCtx, s.cfg.Retry, catalog.Retryable, func() (attemptErr error) {
			// One misbehaving adapter must not take down the process.
			defer func() {
				if r := recover(); r != nil {
					attemptErr = &catalog.Error{
						Kind:     catalog.KindUnknown,
						Op:       "search",
						SystemID: t.system.ID,
						Protocol: t.adapter.Protocol(),
						Err:      fmt.Errorf("adapter panic: %v", r),
					}
				}
			}()
			r, searchErr := t.adapter.Search(sysCtx, isbn13)
			if searchErr != nil {
				return searchErr
			}
			res = r
			return nil
		})
	})

	elapsed := time.Since(start)
	t.settle(err == nil)
	if err == nil {
		s.recordSuccess(t.system.ID, elapsed)
		s.adapterRequest(t.adapter.Protocol(), metrics.OutcomeOK, elapsed)
	} else {
		s.recordFailure(t.system.ID, err.Error())
		s.adapterRequest(t.adapter.Protocol(), string(catalog.KindOf(err)), elapsed)
	}

	outcomes <- outcome{
		system:   t.system,
		protocol: t.adapter.Protocol(),
		result:   res,
		err:      err,
		elapsed:  elapsed,
	}
}

// collect folds one outcome into the response counters and returns its
// holdings. Per-system timeouts keep their own classification even
// when the global deadline also elapsed.
func (s *SearchService) collect(out outcome, result *domain.SearchResult) []domain.BookHolding {
	if out.err == nil {
		result.SystemsSucceeded++
		s.log.Debug("system search succeeded",
			"system", out.system.ID,
			"holdings", len(out.result.Holdings),
			"elapsedMs", out.elapsed.Milliseconds(),
		)
		return out.result.Holdings
	}

	kind := catalog.KindOf(out.err)
	if kind == catalog.KindTimeout {
		result.SystemsTimedOut++
	} else {
		result.SystemsFailed++
	}
	result.Errors = append(result.Errors, domain.SearchError{
		SystemID:   out.system.ID,
		SystemName: out.system.Name,
		Protocol:   out.protocol,
		ErrorType:  string(kind),
		Message:    out.err.Error(),
		Timestamp:  time.Now().UTC(),
	})
	s.log.Warn("system search failed",
		"system", out.system.ID,
		"kind", string(kind),
		"error", out.err.Error(),
	)
	return nil
}

func (s *SearchService) protocolOf(systemID string) domain.Protocol {
	if adapter, ok := s.registry.PrimaryAdapter(systemID); ok {
		return adapter.Protocol()
	}
	return ""
}

// recordSearch emits the terminal search metric: failed when every
// searched system failed, partial on any failure, completed otherwise.
// A cache hit records completed regardless of the stored outcome; the
// fan-out that produced it already recorded its own result.
func (s *SearchService) recordSearch(result *domain.SearchResult, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	label := metrics.ResultCompleted
	switch {
	case result.FromCache:
	case result.SystemsSearched > 0 && result.SystemsSucceeded == 0:
		label = metrics.ResultFailed
	case result.IsPartial:
		label = metrics.ResultPartial
	}
	s.metrics.SearchCompleted(label, elapsed)
}

// nil-tolerant recording helpers so tests can omit collaborators.

func (s *SearchService) searchStarted() func() {
	if s.metrics == nil {
		return func() {}
	}
	return s.metrics.SearchStarted()
}

func (s *SearchService) cacheProbe(outcome string) {
	if s.metrics != nil {
		s.metrics.CacheProbe(outcome)
	}
}

func (s *SearchService) adapterRequest(protocol domain.Protocol, outcome string, elapsed time.Duration) {
	if s.metrics != nil {
		s.metrics.AdapterRequest(protocol.String(), outcome, elapsed)
	}
}

func (s *SearchService) recordSuccess(systemID string, elapsed time.Duration) {
	if s.health != nil {
		s.health.RecordSuccess(systemID, elapsed)
	}
}

func (s *SearchService) recordFailure(systemID, message string) {
	if s.health != nil {
		s.health.RecordFailure(systemID, message)
	}
}
