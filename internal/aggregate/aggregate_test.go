package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arguspanoptes/argus-server/internal/domain"
)

func intp(n int) *int { return &n }

func holding(systemID, branch string, status domain.HoldingStatus, mods ...func(*domain.BookHolding)) domain.BookHolding {
	h := domain.BookHolding{
		ISBN:        "9780306406157",
		SystemID:    systemID,
		SystemName:  systemID,
		BranchID:    systemID + ":" + branch,
		BranchName:  branch,
		Status:      status,
		RawStatus:   string(status),
		Fingerprint: domain.BuildFingerprint(systemID, "9780306406157", branch),
	}
	for _, mod := range mods {
		mod(&h)
	}
	return h
}

func TestDedupKeepsFirstOccurrence(t *testing.T) {
	first := holding("sys-a", "main", domain.StatusAvailable, func(h *domain.BookHolding) {
		h.Fingerprint = "sys-a:9780306406157:main:fic-gat"
		h.RawStatus = "Available"
	})
	second := holding("sys-a", "main", domain.StatusCheckedOut, func(h *domain.BookHolding) {
		h.Fingerprint = "sys-a:9780306406157:main:fic-gat"
		h.RawStatus = "Checked Out"
	})

	deduped, _ := Aggregate([]domain.BookHolding{first, second})

	require.Len(t, deduped, 1)
	assert.Equal(t, "Available", deduped[0].RawStatus)
}

func TestDedupPreservesFingerprintlessHoldings(t *testing.T) {
	a := holding("sys-a", "main", domain.StatusAvailable, func(h *domain.BookHolding) { h.Fingerprint = "" })
	b := holding("sys-a", "west", domain.StatusAvailable, func(h *domain.BookHolding) { h.Fingerprint = "" })

	deduped, _ := Aggregate([]domain.BookHolding{a, b})
	assert.Len(t, deduped, 2)
}

func TestDirectResultsSupersedeAggregateSource(t *testing.T) {
	direct := holding("houston-public", "central", domain.StatusAvailable, func(h *domain.BookHolding) {
		h.RawStatus = "Available"
	})
	shadowed := holding("houston-public", "central", domain.StatusUnknown, func(h *domain.BookHolding) {
		h.RawStatus = domain.AggregateSourceStatus
		h.IsSecondarySource = true
		h.Fingerprint = h.Fingerprint + ":worldcat"
	})
	orphan := holding("rural-county", "main", domain.StatusUnknown, func(h *domain.BookHolding) {
		h.RawStatus = domain.AggregateSourceStatus
		h.IsSecondarySource = true
	})

	deduped, summary := Aggregate([]domain.BookHolding{direct, shadowed, orphan})

	require.Len(t, deduped, 2)
	systems := make(map[string]bool)
	for _, h := range deduped {
		assert.False(t, h.SystemID == "houston-public" && h.Secondary(),
			"aggregate-source record for a directly covered system survived")
		systems[h.SystemID] = true
	}
	assert.True(t, systems["houston-public"])
	assert.True(t, systems["rural-county"])
	assert.Len(t, summary.Systems, 2)
}

func TestAggregateSourceRetainedWithoutDirectCoverage(t *testing.T) {
	orphan := holding("rural-county", "main", domain.StatusUnknown, func(h *domain.BookHolding) {
		h.IsSecondarySource = true
	})
	deduped, _ := Aggregate([]domain.BookHolding{orphan})
	require.Len(t, deduped, 1)
}

func TestSummaryTotals(t *testing.T) {
	holdings := []domain.BookHolding{
		holding("sys-a", "main", domain.StatusAvailable, func(h *domain.BookHolding) {
			h.CopyCount = intp(3)
			h.HoldCount = intp(2)
		}),
		holding("sys-a", "main", domain.StatusCheckedOut, func(h *domain.BookHolding) {
			h.Fingerprint = h.Fingerprint + ":2"
		}),
		holding("sys-a", "west", domain.StatusAvailable),
		holding("sys-b", "main", domain.StatusOnHold, func(h *domain.BookHolding) {
			h.HoldCount = intp(5)
		}),
	}

	_, summary := Aggregate(holdings)

	assert.Equal(t, 6, summary.TotalCopies)
	assert.Equal(t, 4, summary.TotalAvailable)
	require.Len(t, summary.Systems, 2)

	sysA := summary.Systems[0]
	assert.Equal(t, "sys-a", sysA.SystemID, "sys-a has more available copies and sorts first")
	assert.Equal(t, 5, sysA.TotalCopies)
	assert.Equal(t, 4, sysA.TotalAvailable)
	assert.Equal(t, 1, sysA.CheckedOutCopies)
	assert.Equal(t, 2, sysA.HoldCount)

	require.Len(t, sysA.Branches, 2)
	main := sysA.Branches[0]
	assert.Equal(t, "main", main.BranchName, "main holds more available copies")
	assert.Equal(t, 4, main.TotalCopies)
	assert.Equal(t, 3, main.TotalAvailable)
	assert.Len(t, main.Holdings, 2)

	assert.GreaterOrEqual(t, summary.TotalCopies, summary.TotalAvailable)
}

func TestSystemOrderingTieBreaks(t *testing.T) {
	holdings := []domain.BookHolding{
		holding("zeta", "main", domain.StatusAvailable, func(h *domain.BookHolding) { h.SystemName = "Zeta" }),
		holding("alpha", "main", domain.StatusAvailable, func(h *domain.BookHolding) { h.SystemName = "Alpha" }),
		holding("beta", "main", domain.StatusAvailable, func(h *domain.BookHolding) {
			h.SystemName = "Beta"
			h.CopyCount = intp(2)
			h.Fingerprint = h.Fingerprint + ":x"
		}),
	}

	_, summary := Aggregate(holdings)

	require.Len(t, summary.Systems, 3)
	assert.Equal(t, "Beta", summary.Systems[0].SystemName, "two available copies beat one")
	assert.Equal(t, "Alpha", summary.Systems[1].SystemName)
	assert.Equal(t, "Zeta", summary.Systems[2].SystemName)
}

func TestEmptyInput(t *testing.T) {
	deduped, summary := Aggregate(nil)
	assert.Empty(t, deduped)
	assert.Zero(t, summary.TotalCopies)
	assert.Empty(t, summary.Systems)
}
