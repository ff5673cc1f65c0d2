// Package aggregate turns the raw holdings collected from every adapter
// into the unified availability view: fingerprint deduplication,
// direct-over-aggregate source preference, and system/branch grouping
// with copy totals.
package aggregate

import (
	"sort"

	"github.com/arguspanoptes/argus-server/internal/domain"
)

// Aggregate deduplicates holdings and builds the grouped summary.
//
// Dedup keeps the first occurrence of each fingerprint. A system that
// produced at least one direct-source holding has its aggregate-source
// holdings dropped; aggregate-source holdings survive only for systems
// nothing else covered.
func Aggregate(holdings []domain.BookHolding) ([]domain.BookHolding, *domain.AvailabilitySummary) {
	deduped := dedupe(holdings)
	deduped = preferDirect(deduped)
	return deduped, summarize(deduped)
}

func dedupe(holdings []domain.BookHolding) []domain.BookHolding {
	seen := make(map[string]struct{}, len(holdings))
	out := make([]domain.BookHolding, 0, len(holdings))
	for _, h := range holdings {
		if h.Fingerprint != "" {
			if _, dup := seen[h.Fingerprint]; dup {
				continue
			}
			seen[h.Fingerprint] = struct{}{}
		}
		out = append(out, h)
	}
	return out
}

func preferDirect(holdings []domain.BookHolding) []domain.BookHolding {
	hasDirect := make(map[string]bool)
	for _, h := range holdings {
		if !h.Secondary() {
			hasDirect[h.SystemID] = true
		}
	}
	out := holdings[:0]
	for _, h := range holdings {
		if h.Secondary() && hasDirect[h.SystemID] {
			continue
		}
		out = append(out, h)
	}
	return out
}

func summarize(holdings []domain.BookHolding) *domain.AvailabilitySummary {
	type branchAcc struct {
		group domain.BranchAvailability
	}
	type systemAcc struct {
		group    domain.SystemAvailability
		branches map[string]*branchAcc
		order    []string
	}

	systems := make(map[string]*systemAcc)
	var systemOrder []string

	for _, h := range holdings {
		sys, ok := systems[h.SystemID]
		if !ok {
			sys = &systemAcc{
				group:    domain.SystemAvailability{SystemID: h.SystemID, SystemName: h.SystemName},
				branches: make(map[string]*branchAcc),
			}
			systems[h.SystemID] = sys
			systemOrder = append(systemOrder, h.SystemID)
		}

		branchKey := h.BranchID
		if branchKey == "" {
			branchKey = h.BranchName
		}
		br, ok := sys.branches[branchKey]
		if !ok {
			br = &branchAcc{group: domain.BranchAvailability{BranchID: h.BranchID, BranchName: h.BranchName}}
			sys.branches[branchKey] = br
			sys.order = append(sys.order, branchKey)
		}

		copies := h.Copies()
		sys.group.TotalCopies += copies
		br.group.TotalCopies += copies
		switch h.Status {
		case domain.StatusAvailable:
			sys.group.TotalAvailable += copies
			br.group.TotalAvailable += copies
		case domain.StatusCheckedOut:
			sys.group.CheckedOutCopies += copies
			br.group.CheckedOutCopies += copies
		}
		if h.HoldCount != nil {
			sys.group.HoldCount += *h.HoldCount
			br.group.HoldCount += *h.HoldCount
		}
		br.group.Holdings = append(br.group.Holdings, h)
	}

	summary := &domain.AvailabilitySummary{Systems: make([]domain.SystemAvailability, 0, len(systems))}
	for _, id := range systemOrder {
		sys := systems[id]
		sys.group.Branches = make([]domain.BranchAvailability, 0, len(sys.order))
		for _, key := range sys.order {
			sys.group.Branches = append(sys.group.Branches, sys.branches[key].group)
		}
		sortBranches(sys.group.Branches)
		summary.TotalCopies += sys.group.TotalCopies
		summary.TotalAvailable += sys.group.TotalAvailable
		summary.Systems = append(summary.Systems, sys.group)
	}
	sortSystems(summary.Systems)
	return summary
}

// Most-available first; copy count and then name break ties so the
// ordering is stable across runs.
func sortSystems(systems []domain.SystemAvailability) {
	sort.SliceStable(systems, func(i, j int) bool {
		a, b := systems[i], systems[j]
		if a.TotalAvailable != b.TotalAvailable {
			return a.TotalAvailable > b.TotalAvailable
		}
		if a.TotalCopies != b.TotalCopies {
			return a.TotalCopies > b.TotalCopies
		}
		return a.SystemName < b.SystemName
	})
}

func sortBranches(branches []domain.BranchAvailability) {
	sort.SliceStable(branches, func(i, j int) bool {
		a, b := branches[i], branches[j]
		if a.TotalAvailable != b.TotalAvailable {
			return a.TotalAvailable > b.TotalAvailable
		}
		if a.TotalCopies != b.TotalCopies {
			return a.TotalCopies > b.TotalCopies
		}
		return a.BranchName < b.BranchName
	})
}
