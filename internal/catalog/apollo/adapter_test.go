package apollo

import (
	"context"
	"encoding/json/v2"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arguspanoptes/argus-server/internal/domain"
)

func newTestAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	a, err := New(&domain.LibrarySystem{
		ID:   "oakdale",
		Name: "Oakdale Public Library",
		Branches: []domain.Branch{
			{ID: "oakdale:main", Code: "Main", Name: "Main"},
		},
	}, domain.AdapterConfig{
		Protocol: domain.ProtocolApolloAPI,
		BaseURL:  server.URL,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestSearchSinglePhase(t *testing.T) {
	calls := 0
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if got := r.URL.Query().Get("isbn"); got != "9780143127741" {
			t.Errorf("isbn = %q", got)
		}
		json.MarshalWrite(w, map[string]any{ //nolint:errcheck
			"total": 1,
			"records": []map[string]any{
				{
					"id": "b1029", "title": "The Body Keeps the Score", "materialType": "Book",
					"items": []map[string]any{
						{"branch": "Main", "collection": "Adult Nonfiction", "callNumber": "616.85 VAN",
							"status": "Available", "barcode": "30500017"},
						{"branch": "Main", "callNumber": "616.85 VAN", "status": "Checked Out",
							"dueDate": "2026-09-10", "barcode": "30500018", "holds": 4},
					},
				},
			},
		})
	}))

	holdings, err := a.ExecuteSearch(context.Background(), "9780143127741")
	if err != nil {
		t.Fatalf("ExecuteSearch: %v", err)
	}
	if calls != 1 {
		t.Errorf("upstream called %d times, want 1", calls)
	}
	if len(holdings) != 2 {
		t.Fatalf("got %d holdings, want 2", len(holdings))
	}

	first := holdings[0]
	if first.BranchID != "oakdale:main" {
		t.Errorf("branchID = %q", first.BranchID)
	}
	if first.Status != domain.StatusAvailable {
		t.Errorf("status = %s", first.Status)
	}
	if first.Collection != "Adult Nonfiction" {
		t.Errorf("collection = %q", first.Collection)
	}

	second := holdings[1]
	if second.Status != domain.StatusCheckedOut {
		t.Errorf("status = %s", second.Status)
	}
	if second.DueDate == nil || *second.DueDate != "2026-09-10" {
		t.Errorf("dueDate = %v", second.DueDate)
	}
	if second.HoldCount == nil || *second.HoldCount != 4 {
		t.Errorf("holdCount = %v", second.HoldCount)
	}
	if first.Fingerprint == second.Fingerprint {
		t.Error("distinct barcodes must yield distinct fingerprints")
	}
}

func TestSearchRecordWithoutItems(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.MarshalWrite(w, map[string]any{ //nolint:errcheck
			"total": 1,
			"records": []map[string]any{
				{"id": "b2000", "title": "On Order Title", "callNumber": "FIC ONO"},
			},
		})
	}))

	holdings, err := a.ExecuteSearch(context.Background(), "9780143127741")
	if err != nil {
		t.Fatalf("ExecuteSearch: %v", err)
	}
	if len(holdings) != 1 {
		t.Fatalf("got %d holdings, want 1", len(holdings))
	}
	h := holdings[0]
	if h.Status != domain.StatusUnknown {
		t.Errorf("status = %s, want unknown", h.Status)
	}
	if h.BranchName != "Unknown" {
		t.Errorf("branchName = %q", h.BranchName)
	}
	if h.CallNumber == nil || *h.CallNumber != "FIC ONO" {
		t.Errorf("callNumber = %v", h.CallNumber)
	}
}

func TestSearchEmpty(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.MarshalWrite(w, map[string]any{"total": 0}) //nolint:errcheck
	}))

	holdings, err := a.ExecuteSearch(context.Background(), "9780143127741")
	if err != nil {
		t.Fatalf("ExecuteSearch: %v", err)
	}
	if len(holdings) != 0 {
		t.Errorf("got %d holdings, want 0", len(holdings))
	}
}
