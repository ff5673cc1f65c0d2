// Package tlc queries TLC (The Library Corporation) LS2 catalogs. A
// search is stateful on the upstream side: a setup call mints a
// search_id, the search itself POSTs that id with the term, and item
// rows come from a per-bib fetch.
package tlc

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"net/http"
	"net/url"

	"github.com/arguspanoptes/argus-server/internal/catalog"
	"github.com/arguspanoptes/argus-server/internal/domain"
)

// Adapter speaks the TLC LS2 search API.
type Adapter struct {
	catalog.Base
	system *domain.LibrarySystem
}

// New builds a TLC adapter.
func New(system *domain.LibrarySystem, cfg domain.AdapterConfig) (*Adapter, error) {
	return &Adapter{
		Base:   catalog.NewBase(system, cfg),
		system: system,
	}, nil
}

type setupResponse struct {
	SearchID string `json:"search_id"`
}

type searchRequest struct {
	SearchID string `json:"search_id"`
	Type     string `json:"type"`
	Term     string `json:"term"`
}

type searchResponse struct {
	Bibs []struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Format string `json:"format"`
	} `json:"bibs"`
}

type itemsResponse struct {
	Items []struct {
		Branch     string `json:"holdingsLocation"`
		Collection string `json:"collection"`
		CallNumber string `json:"callNumber"`
		Status     string `json:"status"`
		DueDate    string `json:"dueDate"`
		Barcode    string `json:"barcode"`
	} `json:"items"`
}

// ExecuteSearch mints a search id, runs the ISBN search with it, then
// fetches items per bib. A failed item fetch degrades that bib to one
// bib-level unknown holding.
func (a *Adapter) ExecuteSearch(ctx context.Context, isbn13 string) ([]domain.BookHolding, error) {
	searchID, err := a.setup(ctx)
	if err != nil {
		return nil, err
	}

	found, err := a.runSearch(ctx, searchID, isbn13)
	if err != nil {
		return nil, err
	}

	var holdings []domain.BookHolding
	for _, bib := range found.Bibs {
		material := catalog.NormalizeMaterial(bib.Format)
		if material == domain.MaterialUnknown {
			material = domain.MaterialBook
		}

		items, err := a.fetchItems(ctx, bib.ID)
		if err != nil {
			h := a.newHolding(isbn13, "", "Item details unavailable", material)
			h.Status = domain.StatusUnknown
			h.Fingerprint = a.Fingerprint(isbn13, h.BranchName, "", bib.ID)
			holdings = append(holdings, h)
			continue
		}

		for _, item := range items.Items {
			h := a.newHolding(isbn13, item.Branch, item.Status, material)
			h.Collection = item.Collection
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
	return holdings, nil
}

// ExecuteHealthCheck runs the setup call; a search id means the API is
// answering.
func (a *Adapter) ExecuteHealthCheck(ctx context.Context) error {
	_, err := a.setup(ctx)
	return err
}

func (a *Adapter) setup(ctx context.Context) (string, error) {
	var setup setupResponse
	if err := a.GetJSON(ctx, "setup", a.BaseURL()+"/search/setup", nil, &setup); err != nil {
		return "", err
	}
	if setup.SearchID == "" {
		return "", a.Failf(catalog.KindParse, "setup", "setup response carried no search_id")
	}
	return setup.SearchID, nil
}

func (a *Adapter) runSearch(ctx context.Context, searchID, isbn13 string) (*searchResponse, error) {
	body, err := json.Marshal(searchRequest{SearchID: searchID, Type: "isbn", Term: isbn13})
	if err != nil {
		return nil, a.Fail(catalog.KindUnknown, "search", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.BaseURL()+"/search/run", bytes.NewReader(body))
	if err != nil {
		return nil, a.Fail(catalog.KindUnknown, "search", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.Do(req, "search")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := a.CheckStatus(resp, "search"); err != nil {
		return nil, err
	}
	var found searchResponse
	if err := json.UnmarshalRead(resp.Body, &found); err != nil {
		return nil, a.Fail(catalog.KindParse, "search", err)
	}
	return &found, nil
}

func (a *Adapter) fetchItems(ctx context.Context, bibID string) (*itemsResponse, error) {
	itemsURL := a.BaseURL() + "/bib/" + url.PathEscape(bibID) + "/items"
	var items itemsResponse
	if err := a.GetJSON(ctx, "items", itemsURL, nil, &items); err != nil {
		return nil, err
	}
	return &items, nil
}

func (a *Adapter) newHolding(isbn13, branchName, rawStatus string, material domain.MaterialType) domain.BookHolding {
	h := domain.BookHolding{
		ISBN:         isbn13,
		SystemID:     a.SystemID(),
		SystemName:   a.SystemName(),
		BranchName:   branchName,
		MaterialType: material,
		Status:       catalog.NormalizeStatus(rawStatus),
		RawStatus:    rawStatus,
		CatalogURL:   a.CatalogURL(),
	}
	if h.BranchName == "" {
		h.BranchName = "Unknown"
	}
	if branch, ok := a.system.BranchByCode(branchName); ok {
		h.BranchID = branch.ID
		h.BranchName = branch.Name
	} else {
		h.BranchID = domain.BuildFingerprint(a.SystemID(), h.BranchName)
	}
	return h
}
