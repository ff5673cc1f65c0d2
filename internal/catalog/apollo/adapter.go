// Package apollo queries Biblionix Apollo catalogs. Apollo serves
// small-town libraries and answers an ISBN search with every item row in
// one response, so the adapter is single phase.
package apollo

import (
	"context"
	"net/url"

	"github.com/arguspanoptes/argus-server/internal/catalog"
	"github.com/arguspanoptes/argus-server/internal/domain"
)

// Adapter speaks the Apollo JSON search endpoint.
type Adapter struct {
	catalog.Base
	system     *domain.LibrarySystem
	searchPath string
}

// New builds an Apollo adapter. extra["searchPath"] overrides the search
// endpoint for nonstandard installs.
func New(system *domain.LibrarySystem, cfg domain.AdapterConfig) (*Adapter, error) {
	searchPath := cfg.Extra["searchPath"]
	if searchPath == "" {
		searchPath = "/catalog/search.json"
	}
	return &Adapter{
		Base:       catalog.NewBase(system, cfg),
		system:     system,
		searchPath: searchPath,
	}, nil
}

type searchResponse struct {
	Total   int `json:"total"`
	Records []struct {
		ID           string `json:"id"`
		Title        string `json:"title"`
		MaterialType string `json:"materialType"`
		CallNumber   string `json:"callNumber"`
		Items        []struct {
			Branch     string `json:"branch"`
			Collection string `json:"collection"`
			CallNumber string `json:"callNumber"`
			Status     string `json:"status"`
			DueDate    string `json:"dueDate"`
			Barcode    string `json:"barcode"`
			Holds      int    `json:"holds"`
		} `json:"items"`
	} `json:"records"`
}

// ExecuteSearch issues the single search call and maps every item row.
// A record with no item rows still yields one bib-level holding.
func (a *Adapter) ExecuteSearch(ctx context.Context, isbn13 string) ([]domain.BookHolding, error) {
	searchURL := a.BaseURL() + a.searchPath + "?isbn=" + url.QueryEscape(isbn13)

	var found searchResponse
	if err := a.GetJSON(ctx, "search", searchURL, nil, &found); err != nil {
		return nil, err
	}

	var holdings []domain.BookHolding
	for _, record := range found.Records {
		material := catalog.NormalizeMaterial(record.MaterialType)
		if material == domain.MaterialUnknown {
			material = domain.MaterialBook
		}

		if len(record.Items) == 0 {
			h := a.newHolding(isbn13, "", "", material)
			if record.CallNumber != "" {
				call := record.CallNumber
				h.CallNumber = &call
			}
			h.Fingerprint = a.Fingerprint(isbn13, h.BranchName, record.CallNumber, record.ID)
			holdings = append(holdings, h)
			continue
		}

		for _, item := range record.Items {
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
			if item.Holds > 0 {
				holds := item.Holds
				h.HoldCount = &holds
			}
			h.Fingerprint = a.Fingerprint(isbn13, h.BranchName, item.CallNumber, item.Barcode)
			holdings = append(holdings, h)
		}
	}
	return holdings, nil
}

// ExecuteHealthCheck probes the search endpoint with no query; Apollo
// answers it with an empty result set.
func (a *Adapter) ExecuteHealthCheck(ctx context.Context) error {
	return a.Ping(ctx, a.BaseURL()+a.searchPath)
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
