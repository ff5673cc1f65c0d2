package webscrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arguspanoptes/argus-server/internal/catalog"
	"github.com/arguspanoptes/argus-server/internal/domain"
)

const resultPage = `<!DOCTYPE html>
<html><body>
<table>
  <tr class="result">
    <td class="title">The Design of Everyday Things</td>
    <td class="branch">Main Library</td>
    <td class="status">Available</td>
    <td class="call">155.9 NOR</td>
  </tr>
  <tr class="result">
    <td class="title">The Design of Everyday Things</td>
    <td class="branch"></td>
    <td class="status"></td>
  </tr>
</table>
</body></html>`

func selectors() map[string]string {
	return map[string]string{
		"rowSelector":        "//tr[@class='result']",
		"titleSelector":      ".//td[@class='title']",
		"branchSelector":     ".//td[@class='branch']",
		"statusSelector":     ".//td[@class='status']",
		"callNumberSelector": ".//td[@class='call']",
	}
}

func newTestAdapter(t *testing.T, handler http.Handler, extra map[string]string) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	if extra == nil {
		extra = selectors()
	}
	if extra["searchUrlTemplate"] == "" {
		extra["searchUrlTemplate"] = server.URL + "/search?q={isbn}"
	}

	a, err := New(&domain.LibrarySystem{
		ID:   "rural-county",
		Name: "Rural County Library",
		Branches: []domain.Branch{
			{ID: "rural-county:main", Code: "Main Library", Name: "Main Library"},
		},
	}, domain.AdapterConfig{
		Protocol: domain.ProtocolWebScrape,
		BaseURL:  server.URL,
		Extra:    extra,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestSearchExtractsRows(t *testing.T) {
	var gotPath string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		w.Write([]byte(resultPage)) //nolint:errcheck
	})

	a := newTestAdapter(t, handler, nil)
	holdings, err := a.ExecuteSearch(context.Background(), "9780306406157")
	if err != nil {
		t.Fatalf("ExecuteSearch: %v", err)
	}
	if gotPath != "/search?q=9780306406157" {
		t.Errorf("request path = %q", gotPath)
	}
	if len(holdings) != 2 {
		t.Fatalf("got %d holdings, want 2", len(holdings))
	}

	main := holdings[0]
	if main.BranchID != "rural-county:main" {
		t.Errorf("branchID = %q", main.BranchID)
	}
	if main.Status != domain.StatusAvailable {
		t.Errorf("status = %s", main.Status)
	}
	if main.CallNumber == nil || *main.CallNumber != "155.9 NOR" {
		t.Errorf("callNumber = %v", main.CallNumber)
	}

	sparse := holdings[1]
	if sparse.BranchName != "Unknown" {
		t.Errorf("empty branch cell should read Unknown, got %q", sparse.BranchName)
	}
	if sparse.Status != domain.StatusUnknown {
		t.Errorf("empty status cell should read unknown, got %s", sparse.Status)
	}
	if sparse.CallNumber != nil {
		t.Errorf("missing call cell should yield nil, got %q", *sparse.CallNumber)
	}
}

func TestSearchNoMatchingRows(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<html><body><p>No results found.</p></body></html>`)) //nolint:errcheck
	})

	a := newTestAdapter(t, handler, nil)
	holdings, err := a.ExecuteSearch(context.Background(), "9780306406157")
	if err != nil {
		t.Fatalf("ExecuteSearch: %v", err)
	}
	if len(holdings) != 0 {
		t.Errorf("got %d holdings, want 0", len(holdings))
	}
}

func TestMissingTemplateFailsConstruction(t *testing.T) {
	for _, tmpl := range []string{"", "https://opac.example/search?q=QUERY"} {
		_, err := New(&domain.LibrarySystem{ID: "rural-county"}, domain.AdapterConfig{
			Protocol: domain.ProtocolWebScrape,
			BaseURL:  "https://opac.example",
			Extra:    map[string]string{"searchUrlTemplate": tmpl},
		})
		var ce *catalog.Error
		if !errors.As(err, &ce) || ce.Kind != catalog.KindParse {
			t.Errorf("template %q: err = %v, want parse error", tmpl, err)
		}
	}
}

func TestSearchPacesRequests(t *testing.T) {
	hits := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.Write([]byte(resultPage)) //nolint:errcheck
	})

	a := newTestAdapter(t, handler, nil)
	if _, err := a.ExecuteSearch(context.Background(), "9780306406157"); err != nil {
		t.Fatalf("first search: %v", err)
	}

	// The second request needs a token the one-per-second bucket does not
	// have yet; a short deadline turns the wait into a timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := a.ExecuteSearch(ctx, "9780306406157")
	if err == nil {
		t.Fatal("second immediate search should block on pacing")
	}
	if hits != 1 {
		t.Errorf("upstream hit %d times, want 1", hits)
	}
}
