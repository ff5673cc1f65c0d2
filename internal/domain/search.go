package domain

import "time"

// SearchError describes one failed system within a search response.
type SearchError struct {
	SystemID   string    `json:"systemId"`
	SystemName string    `json:"systemName"`
	Protocol   Protocol  `json:"protocol"`
	ErrorType  string    `json:"errorType"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// SearchResult is the unified response for one availability search.
type SearchResult struct {
	SearchID         string    `json:"searchId"`
	ISBN             string    `json:"isbn"`
	NormalizedISBN13 string    `json:"normalizedIsbn13"`
	StartedAt        time.Time `json:"startedAt"`
	CompletedAt      time.Time `json:"completedAt"`

	// Holdings is the flat deduplicated list across all systems.
	Holdings []BookHolding `json:"holdings"`
	// Summary groups holdings by system and branch with copy totals.
	Summary *AvailabilitySummary `json:"summary,omitempty"`

	Errors []SearchError `json:"errors"`

	SystemsSearched  int  `json:"systemsSearched"`
	SystemsSucceeded int  `json:"systemsSucceeded"`
	SystemsFailed    int  `json:"systemsFailed"`
	SystemsTimedOut  int  `json:"systemsTimedOut"`
	IsPartial        bool `json:"isPartial"`
	FromCache        bool `json:"fromCache"`
}

// Clone returns a deep-enough copy for cache reuse: slices are copied so
// the cached value is never aliased by a response, while the immutable
// holdings themselves are shared.
func (r *SearchResult) Clone() *SearchResult {
	out := *r
	out.Holdings = append([]BookHolding(nil), r.Holdings...)
	out.Errors = append([]SearchError(nil), r.Errors...)
	if r.Summary != nil {
		summary := *r.Summary
		summary.Systems = append([]SystemAvailability(nil), r.Summary.Systems...)
		out.Summary = &summary
	}
	return &out
}

// AvailabilitySummary is the aggregated view of a search result.
type AvailabilitySummary struct {
	TotalCopies    int                  `json:"totalCopies"`
	TotalAvailable int                  `json:"totalAvailable"`
	Systems        []SystemAvailability `json:"systems"`
}

// SystemAvailability groups holdings for a single system.
type SystemAvailability struct {
	SystemID         string               `json:"systemId"`
	SystemName       string               `json:"systemName"`
	TotalCopies      int                  `json:"totalCopies"`
	TotalAvailable   int                  `json:"totalAvailable"`
	CheckedOutCopies int                  `json:"checkedOutCopies"`
	HoldCount        int                  `json:"holdCount"`
	Branches         []BranchAvailability `json:"branches"`
}

// BranchAvailability groups holdings for a single branch.
type BranchAvailability struct {
	BranchID         string        `json:"branchId"`
	BranchName       string        `json:"branchName"`
	TotalCopies      int           `json:"totalCopies"`
	TotalAvailable   int           `json:"totalAvailable"`
	CheckedOutCopies int           `json:"checkedOutCopies"`
	HoldCount        int           `json:"holdCount"`
	Holdings         []BookHolding `json:"holdings"`
}

// HealthRecord carries per-system running counters maintained by the
// health tracker. One record exists per system id; updates are
// serialized by the store.
type HealthRecord struct {
	SystemID        string     `json:"systemId"`
	Successes       int64      `json:"successes"`
	Failures        int64      `json:"failures"`
	TotalDurationMS int64      `json:"totalDurationMs"`
	LastSuccess     *time.Time `json:"lastSuccess"`
	LastFailure     *time.Time `json:"lastFailure"`
	LastError       string     `json:"lastError,omitempty"`
}

// AverageDurationMS returns the mean successful-call duration, or zero
// when no successes have been recorded.
func (h *HealthRecord) AverageDurationMS() int64 {
	if h.Successes == 0 {
		return 0
	}
	return h.TotalDurationMS / h.Successes
}
