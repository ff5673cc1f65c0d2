// Package resilience provides the fan-out safety primitives: per-system
// circuit breakers, retry with jittered backoff, and bounded per-host
// concurrency.
package resilience

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig tunes the per-system circuit breakers.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// breaker.
	FailureThreshold uint32
	// ResetTimeout is how long an open breaker rejects tasks before
	// admitting a single probe.
	ResetTimeout time.Duration
}

// DefaultBreakerConfig opens after five consecutive failures and admits
// one probe per minute.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, ResetTimeout: time.Minute}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = time.Minute
	}
	return c
}

// Breaker gates fan-out tasks for one system. A success in any state
// closes the breaker and clears the failure count; reaching the failure
// threshold opens it for ResetTimeout, after which exactly one probe is
// admitted per window.
type Breaker struct {
	cb *gobreaker.TwoStepCircuitBreaker
}

// Allow asks to admit one task. When ok, the returned done callback must
// be invoked exactly once with the task outcome; when not ok the breaker
// is open (or a half-open probe is already in flight) and the caller
// skips the system. Calling Allow observes the clock, so it performs the
// open to half-open transition when the reset window has elapsed.
func (b *Breaker) Allow() (done func(success bool), ok bool) {
	done, err := b.cb.Allow()
	if err != nil {
		return nil, false
	}
	return done, true
}

// State reports the breaker state as "closed", "half_open", or "open".
// Observation performs the time-based open to half-open transition.
func (b *Breaker) State() string {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// ConsecutiveFailures exposes the current failure streak, for health
// reporting.
func (b *Breaker) ConsecutiveFailures() uint32 {
	return b.cb.Counts().ConsecutiveFailures
}

// StateChange describes one breaker transition, for logging.
type StateChange struct {
	SystemID string
	From     string
	To       string
}

// BreakerSet owns one breaker per system id, constructed on first use
// and kept for the process lifetime.
type BreakerSet struct {
	cfg      BreakerConfig
	onChange func(StateChange)

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakerSet builds a set with the given config. onChange may be nil;
// when set it is called synchronously on every state transition.
func NewBreakerSet(cfg BreakerConfig, onChange func(StateChange)) *BreakerSet {
	return &BreakerSet{
		cfg:      cfg.withDefaults(),
		onChange: onChange,
		breakers: make(map[string]*Breaker),
	}
}

// For returns the breaker for systemID, creating it if needed.
func (s *BreakerSet) For(systemID string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[systemID]; ok {
		return b
	}
	threshold := s.cfg.FailureThreshold
	settings := gobreaker.Settings{
		Name:        systemID,
		MaxRequests: 1,
		Timeout:     s.cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}
	if s.onChange != nil {
		notify := s.onChange
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			notify(StateChange{SystemID: name, From: stateName(from), To: stateName(to)})
		}
	}
	b := &Breaker{cb: gobreaker.NewTwoStepCircuitBreaker(settings)}
	s.breakers[systemID] = b
	return b
}

// States snapshots the current state of every breaker constructed so far.
func (s *BreakerSet) States() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.breakers))
	for id, b := range s.breakers {
		out[id] = b.State()
	}
	return out
}

func stateName(st gobreaker.State) string {
	switch st {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}
