package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arguspanoptes/argus-server/internal/domain"
)

func testSystem() *domain.LibrarySystem {
	return &domain.LibrarySystem{
		ID:         "sys-a",
		Name:       "Sample Public Library",
		CatalogURL: "https://catalog.example.org",
		Enabled:    true,
		Branches: []domain.Branch{
			{ID: "sys-a:main", Code: "main", Name: "Main"},
		},
	}
}

// stubSearcher lets tests drive the Wrap bookkeeping directly.
type stubSearcher struct {
	holdings []domain.BookHolding
	err      error
	panics   bool
	health   error
}

func (s *stubSearcher) ExecuteSearch(ctx context.Context, isbn13 string) ([]domain.BookHolding, error) {
	if s.panics {
		panic("boom")
	}
	return s.holdings, s.err
}

func (s *stubSearcher) ExecuteHealthCheck(ctx context.Context) error {
	if s.panics {
		panic("boom")
	}
	return s.health
}

func (s *stubSearcher) SystemID() string          { return "sys-a" }
func (s *stubSearcher) Protocol() domain.Protocol { return domain.ProtocolSRU }

func TestWrapFillsResultBookkeeping(t *testing.T) {
	adapter := Wrap(&stubSearcher{holdings: []domain.BookHolding{{SystemID: "sys-a"}}})

	res, err := adapter.Search(context.Background(), "9780306406157")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Holdings) != 1 {
		t.Fatalf("holdings = %d, want 1", len(res.Holdings))
	}
	if res.Protocol != domain.ProtocolSRU {
		t.Errorf("protocol = %q", res.Protocol)
	}
	if res.ResponseTime < 0 {
		t.Errorf("response time = %v", res.ResponseTime)
	}
}

func TestWrapClassifiesRawErrors(t *testing.T) {
	adapter := Wrap(&stubSearcher{err: context.DeadlineExceeded})

	_, err := adapter.Search(context.Background(), "9780306406157")
	if KindOf(err) != KindTimeout {
		t.Fatalf("kind = %q, want timeout", KindOf(err))
	}

	var ce *Error
	if !errors.As(err, &ce) || ce.SystemID != "sys-a" {
		t.Fatalf("identity not stamped: %v", err)
	}
}

func TestWrapPreservesClassifiedErrors(t *testing.T) {
	inner := &Error{Kind: KindParse, Op: "search", SystemID: "sys-a", Err: errors.New("bad xml")}
	adapter := Wrap(&stubSearcher{err: inner})

	_, err := adapter.Search(context.Background(), "9780306406157")
	var ce *Error
	if !errors.As(err, &ce) || ce != inner {
		t.Fatalf("classified error not preserved: %v", err)
	}
}

func TestWrapHealthCheck(t *testing.T) {
	healthy := Wrap(&stubSearcher{}).HealthCheck(context.Background())
	if !healthy.Healthy || healthy.SystemID != "sys-a" || healthy.CheckedAt.IsZero() {
		t.Errorf("unexpected status %+v", healthy)
	}

	failing := Wrap(&stubSearcher{health: errors.New("upstream down")}).HealthCheck(context.Background())
	if failing.Healthy || failing.Message != "upstream down" {
		t.Errorf("unexpected status %+v", failing)
	}

	panicked := Wrap(&stubSearcher{panics: true}).HealthCheck(context.Background())
	if panicked.Healthy || panicked.Message == "" {
		t.Errorf("panic should yield unhealthy status, got %+v", panicked)
	}
}

func TestBaseCheckStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusTooManyRequests, KindRateLimit},
		{http.StatusInternalServerError, KindConnection},
		{http.StatusNotFound, KindConnection},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		base := NewBase(testSystem(), domain.AdapterConfig{Protocol: domain.ProtocolSRU, BaseURL: srv.URL})
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
		resp, err := base.Do(req, "search")
		if err != nil {
			t.Fatalf("Do: %v", err)
		}
		err = base.CheckStatus(resp, "search")
		if KindOf(err) != tt.want {
			t.Errorf("status %d: kind = %q, want %q", tt.status, KindOf(err), tt.want)
		}
		srv.Close()
	}
}

func TestBaseGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("User-Agent not set")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"title":"The Great Gatsby"}`))
	}))
	defer srv.Close()

	base := NewBase(testSystem(), domain.AdapterConfig{Protocol: domain.ProtocolApolloAPI, BaseURL: srv.URL})

	var out struct {
		Title string `json:"title"`
	}
	if err := base.GetJSON(context.Background(), "search", srv.URL, nil, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out.Title != "The Great Gatsby" {
		t.Errorf("title = %q", out.Title)
	}
}

func TestBaseGetJSONMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"title":`))
	}))
	defer srv.Close()

	base := NewBase(testSystem(), domain.AdapterConfig{Protocol: domain.ProtocolApolloAPI, BaseURL: srv.URL})

	var out map[string]any
	err := base.GetJSON(context.Background(), "search", srv.URL, nil, &out)
	if KindOf(err) != KindParse {
		t.Fatalf("kind = %q, want parse", KindOf(err))
	}
}

func TestBaseFingerprint(t *testing.T) {
	base := NewBase(testSystem(), domain.AdapterConfig{Protocol: domain.ProtocolSRU})
	got := base.Fingerprint("9780306406157", "Main", "FIC GAT", "")
	want := "sys-a:9780306406157:main:fic gat"
	if got != want {
		t.Errorf("Fingerprint = %q, want %q", got, want)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	first := Wrap(&stubSearcher{})
	second := Wrap(&stubSearcher{})
	reg.Register("sys-a", first)
	reg.Register("sys-a", second)

	primary, ok := reg.PrimaryAdapter("sys-a")
	if !ok || primary != first {
		t.Fatal("primary adapter should be the first registered")
	}
	if got := reg.ForSystem("sys-a"); len(got) != 2 || got[1] != second {
		t.Fatalf("ForSystem = %v", got)
	}
	if _, ok := reg.PrimaryAdapter("nope"); ok {
		t.Error("unknown system should have no primary")
	}
	if reg.Len() != 2 {
		t.Errorf("Len = %d, want 2", reg.Len())
	}
	if ids := reg.SystemIDs(); len(ids) != 1 || ids[0] != "sys-a" {
		t.Errorf("SystemIDs = %v", ids)
	}
}
