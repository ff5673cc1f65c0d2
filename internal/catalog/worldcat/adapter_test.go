package worldcat

import (
	"context"
	"encoding/json/v2"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arguspanoptes/argus-server/internal/domain"
)

func newTestAdapter(t *testing.T, mux *http.ServeMux, extra map[string]string) *Adapter {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		if user, _, ok := r.BasicAuth(); !ok || user != "wskey" {
			t.Errorf("token auth user = %q", user)
		}
		w.Header().Set("Content-Type", "application/json")
		json.MarshalWrite(w, map[string]any{ //nolint:errcheck
			"access_token": "wc-token",
			"token_type":   "bearer",
			"expires_in":   1200,
		})
	})

	t.Setenv("WC_TEST_KEY", "wskey")
	t.Setenv("WC_TEST_SECRET", "wsecret")

	if extra == nil {
		extra = map[string]string{}
	}
	extra["tokenUrl"] = server.URL + "/token"

	a, err := New(&domain.LibrarySystem{ID: "houston-public", Name: "Houston Public Library"},
		domain.AdapterConfig{
			Protocol:           domain.ProtocolOCLCWorldCat,
			BaseURL:            server.URL,
			ClientKeyEnvVar:    "WC_TEST_KEY",
			ClientSecretEnvVar: "WC_TEST_SECRET",
			Extra:              extra,
		})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestSearchStampsAggregateSource(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /search/brief-bibs", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "bn:9780306406157" {
			t.Errorf("q = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer wc-token" {
			t.Errorf("Authorization = %q", got)
		}
		json.MarshalWrite(w, map[string]any{ //nolint:errcheck
			"numberOfRecords": 1,
			"bibRecords": []map[string]any{
				{"identifier": map[string]string{"oclcNumber": "44959930"}},
			},
		})
	})
	mux.HandleFunc("GET /search/bibs-detailed-holdings", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("oclcNumber"); got != "44959930" {
			t.Errorf("oclcNumber = %q", got)
		}
		json.MarshalWrite(w, map[string]any{ //nolint:errcheck
			"numberOfHoldings": 2,
			"detailedHoldings": []map[string]any{
				{"oclcSymbol": "HOU", "institutionName": "Houston PL", "numberOfCopies": 3},
				{"oclcSymbol": "ZZZ", "institutionName": "Somewhere Else"},
			},
		})
	})

	a := newTestAdapter(t, mux, map[string]string{"symbols": "HOU=Central Library"})

	holdings, err := a.ExecuteSearch(context.Background(), "9780306406157")
	if err != nil {
		t.Fatalf("ExecuteSearch: %v", err)
	}
	if len(holdings) != 1 {
		t.Fatalf("got %d holdings, want 1 (unmapped symbol filtered)", len(holdings))
	}

	h := holdings[0]
	if !h.IsSecondarySource {
		t.Error("WorldCat holdings must be flagged secondary")
	}
	if h.RawStatus != domain.AggregateSourceStatus {
		t.Errorf("rawStatus = %q, want aggregate sentinel", h.RawStatus)
	}
	if h.Status != domain.StatusUnknown {
		t.Errorf("status = %s, want unknown", h.Status)
	}
	if h.BranchName != "Central Library" {
		t.Errorf("branchName = %q", h.BranchName)
	}
	if h.CopyCount == nil || *h.CopyCount != 3 {
		t.Errorf("copyCount = %v, want 3", h.CopyCount)
	}
}

func TestSearchNoRecords(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /search/brief-bibs", func(w http.ResponseWriter, _ *http.Request) {
		json.MarshalWrite(w, map[string]any{"numberOfRecords": 0}) //nolint:errcheck
	})

	a := newTestAdapter(t, mux, nil)
	holdings, err := a.ExecuteSearch(context.Background(), "9780306406157")
	if err != nil {
		t.Fatalf("ExecuteSearch: %v", err)
	}
	if len(holdings) != 0 {
		t.Errorf("got %d holdings, want 0", len(holdings))
	}
}

func TestParseSymbolMap(t *testing.T) {
	m := parseSymbolMap("hou=Central, SW = Southwest ,bad")
	if m["HOU"] != "Central" {
		t.Errorf("HOU = %q", m["HOU"])
	}
	if m["SW"] != "Southwest" {
		t.Errorf("SW = %q", m["SW"])
	}
	if _, ok := m["BAD"]; ok {
		t.Error("pair without '=' should be skipped")
	}
	if parseSymbolMap("") != nil {
		t.Error("empty input should yield nil map")
	}
}
