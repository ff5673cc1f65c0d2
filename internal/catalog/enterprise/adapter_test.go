package enterprise

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arguspanoptes/argus-server/internal/domain"
)

const resultsPage = `<!DOCTYPE html>
<html><body>
<div class="results_cell">
  <a class="title">The Left Hand of Darkness</a>
  <div class="formatText">Book</div>
  <table class="detailItemsTable">
    <tr class="detailItemsTableHeader"><th>Library</th><th>Call Number</th><th>Status</th></tr>
    <tr class="detailItemsTableRow">
      <td class="detailItemsTable_LIBRARY">Central</td>
      <td class="detailItemsTable_CALLNUMBER">SF LEG</td>
      <td class="detailItemsTable_ITEM_STATUS">On Shelf</td>
    </tr>
    <tr class="detailItemsTableRow">
      <td class="detailItemsTable_LIBRARY">Westside</td>
      <td class="detailItemsTable_CALLNUMBER">SF LEG</td>
      <td class="detailItemsTable_ITEM_STATUS">Due 09/01/2026</td>
    </tr>
  </table>
</div>
<div class="results_cell">
  <a class="title">The Left Hand of Darkness</a>
  <div class="formatText">Audiobook CD</div>
</div>
</body></html>`

func newTestAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	a, err := New(&domain.LibrarySystem{
		ID:   "metro",
		Name: "Metro Library",
		Branches: []domain.Branch{
			{ID: "metro:central", Code: "Central", Name: "Central Library"},
		},
	}, domain.AdapterConfig{
		Protocol: domain.ProtocolEnterpriseScrape,
		BaseURL:  server.URL,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestSearchParsesItemTables(t *testing.T) {
	var gotQuery string
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("qu")
		w.Write([]byte(resultsPage)) //nolint:errcheck
	}))

	holdings, err := a.ExecuteSearch(context.Background(), "9780441478125")
	if err != nil {
		t.Fatalf("ExecuteSearch: %v", err)
	}
	if gotQuery != "9780441478125" {
		t.Errorf("qu = %q", gotQuery)
	}
	if len(holdings) != 3 {
		t.Fatalf("got %d holdings, want 3", len(holdings))
	}

	central := holdings[0]
	if central.BranchID != "metro:central" {
		t.Errorf("branchID = %q", central.BranchID)
	}
	if central.BranchName != "Central Library" {
		t.Errorf("branchName = %q", central.BranchName)
	}
	if central.Status != domain.StatusAvailable {
		t.Errorf("status = %s (raw %q)", central.Status, central.RawStatus)
	}
	if central.CallNumber == nil || *central.CallNumber != "SF LEG" {
		t.Errorf("callNumber = %v", central.CallNumber)
	}

	westside := holdings[1]
	if westside.Status != domain.StatusCheckedOut {
		t.Errorf("westside status = %s", westside.Status)
	}
	if westside.DueDate == nil || *westside.DueDate != "2026-09-01" {
		t.Errorf("westside dueDate = %v", westside.DueDate)
	}

	// The CD edition has no item table; it degrades to one bib-level row.
	cd := holdings[2]
	if cd.MaterialType != domain.MaterialAudiobookCD {
		t.Errorf("cd materialType = %s", cd.MaterialType)
	}
	if cd.Status != domain.StatusUnknown {
		t.Errorf("cd status = %s", cd.Status)
	}
	if cd.BranchName != "Unknown" {
		t.Errorf("cd branchName = %q", cd.BranchName)
	}
}

func TestSearchNoResults(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<html><body><div class="noResultsMessage">No results</div></body></html>`)) //nolint:errcheck
	}))

	holdings, err := a.ExecuteSearch(context.Background(), "9780441478125")
	if err != nil {
		t.Fatalf("ExecuteSearch: %v", err)
	}
	if len(holdings) != 0 {
		t.Errorf("got %d holdings, want 0", len(holdings))
	}
}
