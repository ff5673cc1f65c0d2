package domain

import "strings"

// HoldingStatus is the closed availability vocabulary every upstream
// status string normalizes into.
type HoldingStatus string

const (
	StatusAvailable    HoldingStatus = "available"
	StatusCheckedOut   HoldingStatus = "checked_out"
	StatusInTransit    HoldingStatus = "in_transit"
	StatusOnHold       HoldingStatus = "on_hold"
	StatusOnOrder      HoldingStatus = "on_order"
	StatusInProcessing HoldingStatus = "in_processing"
	StatusMissing      HoldingStatus = "missing"
	StatusUnknown      HoldingStatus = "unknown"
)

// MaterialType is the closed material vocabulary.
type MaterialType string

const (
	MaterialBook        MaterialType = "book"
	MaterialLargePrint  MaterialType = "large_print"
	MaterialAudiobookCD MaterialType = "audiobook_cd"
	MaterialEbook       MaterialType = "ebook"
	MaterialDVD         MaterialType = "dvd"
	MaterialUnknown     MaterialType = "unknown"
)

// AggregateSourceStatus is the raw status stamped on holdings that come
// from a union catalog rather than the owning system's own catalog.
// Such records carry no real-time availability; the aggregator drops
// them for systems that also produced direct results.
const AggregateSourceStatus = "WorldCat holdings - real-time status unavailable"

// BookHolding is the unified record for a single item instance at a
// single branch. Produced inside an adapter call and never mutated.
type BookHolding struct {
	ISBN       string `json:"isbn"`
	SystemID   string `json:"systemId"`
	BranchID   string `json:"branchId"`
	SystemName string `json:"systemName"`
	BranchName string `json:"branchName"`

	CallNumber   *string      `json:"callNumber"`
	Collection   string       `json:"collection,omitempty"`
	Volume       *string      `json:"volume,omitempty"`
	MaterialType MaterialType `json:"materialType"`

	Status    HoldingStatus `json:"status"`
	DueDate   *string       `json:"dueDate"`
	HoldCount *int          `json:"holdCount"`
	CopyCount *int          `json:"copyCount"`
	RawStatus string        `json:"rawStatus"`

	CatalogURL  string `json:"catalogUrl,omitempty"`
	Fingerprint string `json:"fingerprint"`

	// IsSecondarySource marks aggregate-source records (see
	// AggregateSourceStatus). Direct results for the same system
	// supersede these during aggregation.
	IsSecondarySource bool `json:"isSecondarySource,omitempty"`
}

// Copies returns the number of copies this record represents, defaulting
// to one when the upstream did not report a count.
func (h *BookHolding) Copies() int {
	if h.CopyCount != nil {
		return *h.CopyCount
	}
	return 1
}

// Secondary reports whether the holding came from an aggregate source,
// either via the explicit flag or the raw status stamp (holdings
// deserialized from older cache entries carry only the stamp).
func (h *BookHolding) Secondary() bool {
	return h.IsSecondarySource || h.RawStatus == AggregateSourceStatus
}

// BuildFingerprint derives the dedup key from its identifying parts.
// Empty parts are dropped; the rest are trimmed, lowercased, and joined
// by ":". Equal fingerprints identify the same logical item.
func BuildFingerprint(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, ":")
}
