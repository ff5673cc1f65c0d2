package browser

import (
	"context"
	"encoding/json/v2"
	"errors"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"

	"github.com/arguspanoptes/argus-server/internal/catalog"
	"github.com/arguspanoptes/argus-server/internal/domain"
)

// challengeWait bounds how long a navigation may sit on an anti-bot
// interstitial before the adapter gives up. challengePoll is the delay
// between clearance re-checks. Vars so tests can shorten them.
var (
	challengeWait = 8 * time.Second
	challengePoll = time.Second
)

// challengeMarkers are the interstitial page titles that mean the
// clearance cookie has not been issued yet.
var challengeMarkers = []string{"Just a moment", "Attention Required"}

// Adapter searches catalogs whose APIs sit behind anti-bot challenges.
// It navigates the catalog home inside a pooled browser context to earn
// the clearance cookie, then calls the catalog's JSON API with an
// in-page fetch so the cookie is honored.
type Adapter struct {
	catalog.Base
	system      *domain.LibrarySystem
	pool        *Pool
	apiTemplate string
}

// New builds a browser-context adapter over the shared pool. The
// config's extra must carry apiUrlTemplate with an {isbn} placeholder.
func New(system *domain.LibrarySystem, cfg domain.AdapterConfig, pool *Pool) (*Adapter, error) {
	a := &Adapter{
		Base:        catalog.NewBase(system, cfg),
		system:      system,
		pool:        pool,
		apiTemplate: cfg.Extra["apiUrlTemplate"],
	}
	if pool == nil {
		return nil, a.Failf(catalog.KindConnection, "construct", "no browser service configured")
	}
	if a.apiTemplate == "" || !strings.Contains(a.apiTemplate, "{isbn}") {
		return nil, a.Failf(catalog.KindParse, "construct",
			"extra.apiUrlTemplate must contain an {isbn} placeholder")
	}
	return a, nil
}

type apiResponse struct {
	Records []struct {
		Title  string `json:"title"`
		Format string `json:"format"`
		Items  []struct {
			Branch     string `json:"branch"`
			Collection string `json:"collection"`
			CallNumber string `json:"callNumber"`
			Status     string `json:"status"`
			DueDate    string `json:"dueDate"`
			Barcode    string `json:"barcode"`
		} `json:"items"`
	} `json:"records"`
}

// ExecuteSearch acquires a browser context, clears the challenge, and
// runs the API call in-page. The context is released on every path.
func (a *Adapter) ExecuteSearch(ctx context.Context, isbn13 string) ([]domain.BookHolding, error) {
	bc, err := a.pool.Acquire(ctx)
	if err != nil {
		return nil, a.classify(err, "acquire")
	}
	defer bc.Release()

	if err := a.clearChallenge(ctx, bc); err != nil {
		return nil, err
	}

	apiURL := strings.ReplaceAll(a.apiTemplate, "{isbn}", isbn13)
	body, err := bc.Fetch(ctx, apiURL)
	if err != nil {
		return nil, a.classify(err, "fetch")
	}

	var found apiResponse
	if err := json.Unmarshal(body, &found); err != nil {
		return nil, a.Fail(catalog.KindParse, "fetch", err)
	}
	return a.mapRecords(found, isbn13), nil
}

// ExecuteHealthCheck navigates the catalog home in a pooled context.
func (a *Adapter) ExecuteHealthCheck(ctx context.Context) error {
	bc, err := a.pool.Acquire(ctx)
	if err != nil {
		return a.classify(err, "acquire")
	}
	defer bc.Release()
	_, err = bc.Content(ctx, a.homeURL(), 0)
	if err != nil {
		return a.classify(err, "health")
	}
	return nil
}

// clearChallenge navigates home and waits out the interstitial. An
// unresolved challenge after the wait budget is a connection failure.
func (a *Adapter) clearChallenge(ctx context.Context, bc *Context) error {
	deadline := time.Now().Add(challengeWait)
	waitMS := 0
	for {
		page, err := bc.Content(ctx, a.homeURL(), waitMS)
		if err != nil {
			return a.classify(err, "navigate")
		}
		if !challenged(page) {
			return nil
		}
		if time.Now().After(deadline) {
			return a.Failf(catalog.KindConnection, "navigate",
				"anti-bot challenge did not resolve within %s", challengeWait)
		}
		select {
		case <-ctx.Done():
			return a.classify(ctx.Err(), "navigate")
		case <-time.After(challengePoll):
		}
		waitMS = int(challengePoll / time.Millisecond)
	}
}

func (a *Adapter) homeURL() string {
	if a.CatalogURL() != "" {
		return a.CatalogURL()
	}
	return a.BaseURL()
}

// classify maps raw pool errors into the taxonomy: deadline-shaped
// failures are timeouts, everything else reaching the browser service
// is a connection failure.
func (a *Adapter) classify(err error, op string) error {
	var ce *catalog.Error
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return a.Fail(catalog.KindTimeout, op, err)
	}
	if errors.Is(err, context.Canceled) {
		return a.Fail(catalog.KindTimeout, op, err)
	}
	return a.Fail(catalog.KindConnection, op, err)
}

func (a *Adapter) mapRecords(found apiResponse, isbn13 string) []domain.BookHolding {
	var holdings []domain.BookHolding
	for _, record := range found.Records {
		material := catalog.NormalizeMaterial(record.Format)
		if material == domain.MaterialUnknown {
			material = domain.MaterialBook
		}
		for _, item := range record.Items {
			h := domain.BookHolding{
				ISBN:         isbn13,
				SystemID:     a.SystemID(),
				SystemName:   a.SystemName(),
				BranchName:   item.Branch,
				Collection:   item.Collection,
				MaterialType: material,
				Status:       catalog.NormalizeStatus(item.Status),
				RawStatus:    item.Status,
				CatalogURL:   a.CatalogURL(),
			}
			if h.BranchName == "" {
				h.BranchName = "Unknown"
			}
			if branch, ok := a.system.BranchByCode(item.Branch); ok {
				h.BranchID = branch.ID
				h.BranchName = branch.Name
			} else {
				h.BranchID = domain.BuildFingerprint(a.SystemID(), h.BranchName)
			}
			if item.CallNumber != "" {
				call := item.CallNumber
				h.CallNumber = &call
			}
			if item.DueDate != "" {
				h.Status = domain.StatusCheckedOut
				h.DueDate = catalog.NormalizeDueDate(item.DueDate)
			}
			h.Fingerprint = a.Fingerprint(isbn13, h.BranchName, item.CallNumber, item.Barcode)
			holdings = append(holdings, h)
		}
	}
	return holdings
}

// challenged reports whether the rendered page is an anti-bot
// interstitial, judged by its title.
func challenged(page string) bool {
	doc, err := htmlquery.Parse(strings.NewReader(page))
	if err != nil {
		return false
	}
	title, err := htmlquery.Query(doc, "//title")
	if err != nil || title == nil {
		return false
	}
	text := htmlquery.InnerText(title)
	for _, marker := range challengeMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
