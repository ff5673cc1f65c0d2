package polaris

import (
	"context"
	"crypto/hmac"
	"crypto/sha1" //#nosec G505 -- verifying PAPI signatures
	"encoding/base64"
	"encoding/json/v2"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/arguspanoptes/argus-server/internal/catalog"
	"github.com/arguspanoptes/argus-server/internal/domain"
)

func newTestAdapter(t *testing.T, handler http.Handler) (*Adapter, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	t.Setenv("PAPI_TEST_ID", "access-id")
	t.Setenv("PAPI_TEST_KEY", "access-key")

	a, err := New(&domain.LibrarySystem{
		ID:   "prairie",
		Name: "Prairie Library Consortium",
		Branches: []domain.Branch{
			{ID: "prairie:elm", Code: "Elm Street", Name: "Elm Street"},
		},
	}, domain.AdapterConfig{
		Protocol:           domain.ProtocolPolarisPAPI,
		BaseURL:            server.URL,
		ClientKeyEnvVar:    "PAPI_TEST_ID",
		ClientSecretEnvVar: "PAPI_TEST_KEY",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, server
}

func TestSignature(t *testing.T) {
	t.Setenv("PAPI_TEST_ID", "access-id")
	t.Setenv("PAPI_TEST_KEY", "secret")
	a, err := New(&domain.LibrarySystem{ID: "prairie", Name: "Prairie"}, domain.AdapterConfig{
		Protocol:           domain.ProtocolPolarisPAPI,
		BaseURL:            "https://papi.example",
		ClientKeyEnvVar:    "PAPI_TEST_ID",
		ClientSecretEnvVar: "PAPI_TEST_KEY",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	httpDate := "Tue, 25 Aug 2026 12:00:00 GMT"
	requestURL := "https://papi.example/PAPIService/REST/public/v1/1033/100/1/bib/42/holdings"

	mac := hmac.New(sha1.New, []byte("secret"))
	mac.Write([]byte(http.MethodGet + requestURL + httpDate)) //nolint:errcheck
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if got := a.sign(http.MethodGet, requestURL, httpDate); got != want {
		t.Errorf("sign = %q, want %q", got, want)
	}
}

func TestSearchSignsEveryRequest(t *testing.T) {
	var adapter *Adapter
	mux := http.NewServeMux()
	verify := func(r *http.Request) {
		t.Helper()
		httpDate := r.Header.Get("PolarisDate")
		if httpDate == "" {
			t.Error("PolarisDate header missing")
		}
		if _, err := time.Parse(http.TimeFormat, httpDate); err != nil {
			t.Errorf("PolarisDate %q not an HTTP date: %v", httpDate, err)
		}
		auth := r.Header.Get("Authorization")
		prefix := "PWS access-id:"
		if !strings.HasPrefix(auth, prefix) {
			t.Fatalf("Authorization = %q", auth)
		}
		fullURL := "http://" + r.Host + r.URL.RequestURI()
		if want := adapter.sign(http.MethodGet, fullURL, httpDate); auth != prefix+want {
			t.Errorf("signature mismatch for %s", fullURL)
		}
	}
	mux.HandleFunc("GET /PAPIService/REST/public/v1/1033/100/1/search/bibs/boolean", func(w http.ResponseWriter, r *http.Request) {
		verify(r)
		json.MarshalWrite(w, map[string]any{ //nolint:errcheck
			"PAPIErrorCode":     0,
			"TotalRecordsFound": 1,
			"SearchRows": []map[string]any{
				{"ControlNumber": 42, "Title": "Example", "MaterialType": "Book"},
			},
		})
	})
	mux.HandleFunc("GET /PAPIService/REST/public/v1/1033/100/1/bib/42/holdings", func(w http.ResponseWriter, r *http.Request) {
		verify(r)
		json.MarshalWrite(w, map[string]any{ //nolint:errcheck
			"PAPIErrorCode": 0,
			"GetHoldingsRows": []map[string]any{
				{
					"LocationName": "Elm Street", "CollectionName": "Adult Fiction",
					"CallNumber": "FIC GAT", "Barcode": "33012000123", "CircStatus": "In",
				},
				{
					"LocationName": "Annex", "CircStatus": "Out", "DueDate": "09/15/2026",
					"HoldsCount": 2,
				},
			},
		})
	})

	a, _ := newTestAdapter(t, mux)
	adapter = a

	holdings, err := a.ExecuteSearch(context.Background(), "9780306406157")
	if err != nil {
		t.Fatalf("ExecuteSearch: %v", err)
	}
	if len(holdings) != 2 {
		t.Fatalf("got %d holdings, want 2", len(holdings))
	}

	elm := holdings[0]
	if elm.BranchID != "prairie:elm" {
		t.Errorf("branchID = %q", elm.BranchID)
	}
	if elm.Status != domain.StatusAvailable {
		t.Errorf("status = %s, want available (raw \"In\")", elm.Status)
	}
	if elm.Collection != "Adult Fiction" {
		t.Errorf("collection = %q", elm.Collection)
	}

	annex := holdings[1]
	if annex.Status != domain.StatusCheckedOut {
		t.Errorf("annex status = %s", annex.Status)
	}
	if annex.DueDate == nil || *annex.DueDate != "2026-09-15" {
		t.Errorf("annex dueDate = %v", annex.DueDate)
	}
	if annex.HoldCount == nil || *annex.HoldCount != 2 {
		t.Errorf("annex holdCount = %v", annex.HoldCount)
	}
}

func TestPAPIErrorCodeIsParseError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		json.MarshalWrite(w, map[string]any{"PAPIErrorCode": -5000}) //nolint:errcheck
	})

	a, _ := newTestAdapter(t, mux)
	_, err := a.ExecuteSearch(context.Background(), "9780306406157")
	var ce *catalog.Error
	if !errors.As(err, &ce) || ce.Kind != catalog.KindParse {
		t.Fatalf("err = %v, want parse error", err)
	}
}

func TestMissingCredentialFailsConstruction(t *testing.T) {
	_, err := New(&domain.LibrarySystem{ID: "prairie"}, domain.AdapterConfig{
		Protocol:           domain.ProtocolPolarisPAPI,
		BaseURL:            "https://papi.example",
		ClientKeyEnvVar:    "PAPI_UNSET_FOR_TEST",
		ClientSecretEnvVar: "PAPI_ALSO_UNSET",
	})
	var ce *catalog.Error
	if !errors.As(err, &ce) || ce.Kind != catalog.KindAuth {
		t.Fatalf("err = %v, want auth error", err)
	}
}
