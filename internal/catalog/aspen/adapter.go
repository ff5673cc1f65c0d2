// Package aspen queries Aspen Discovery's JSON API. The search call
// returns grouped-work ids; a second call per record returns the item
// rows with live statuses in one payload.
package aspen

import (
	"context"
	"net/url"

	"github.com/arguspanoptes/argus-server/internal/catalog"
	"github.com/arguspanoptes/argus-server/internal/domain"
)

// Adapter speaks the Aspen Discovery SearchAPI/ItemAPI pair.
type Adapter struct {
	catalog.Base
	system *domain.LibrarySystem
}

// New builds an Aspen adapter.
func New(system *domain.LibrarySystem, cfg domain.AdapterConfig) (*Adapter, error) {
	return &Adapter{
		Base:   catalog.NewBase(system, cfg),
		system: system,
	}, nil
}

type searchResponse struct {
	Result struct {
		RecordCount int `json:"recordCount"`
		RecordSet   []struct {
			ID     string `json:"id"`
			Title  string `json:"title_display"`
			Format string `json:"format"`
		} `json:"recordSet"`
	} `json:"result"`
}

type availabilityResponse struct {
	Result struct {
		Holdings []struct {
			LocationName  string `json:"locationName"`
			ShelfLocation string `json:"shelfLocation"`
			CallNumber    string `json:"callNumber"`
			Status        string `json:"status"`
			Available     bool   `json:"available"`
			DueDate       string `json:"dueDate"`
			Barcode       string `json:"barcode"`
		} `json:"holdings"`
	} `json:"result"`
}

// ExecuteSearch searches by ISBN, then pulls item availability for each
// matched record. A failed availability call degrades that record to one
// bib-level unknown holding instead of failing the search.
func (a *Adapter) ExecuteSearch(ctx context.Context, isbn13 string) ([]domain.BookHolding, error) {
	searchURL := a.BaseURL() + "/API/SearchAPI?method=search&searchIndex=ISN&lookfor=" +
		url.QueryEscape(isbn13)

	var found searchResponse
	if err := a.GetJSON(ctx, "search", searchURL, nil, &found); err != nil {
		return nil, err
	}

	var holdings []domain.BookHolding
	for _, record := range found.Result.RecordSet {
		material := catalog.NormalizeMaterial(record.Format)
		if material == domain.MaterialUnknown {
			material = domain.MaterialBook
		}

		items, err := a.fetchAvailability(ctx, record.ID)
		if err != nil {
			h := a.newHolding(isbn13, "", "Item details unavailable", material)
			h.Status = domain.StatusUnknown
			h.Fingerprint = a.Fingerprint(isbn13, h.BranchName, "", record.ID)
			holdings = append(holdings, h)
			continue
		}

		for _, item := range items.Result.Holdings {
			h := a.newHolding(isbn13, item.LocationName, item.Status, material)
			if item.Available {
				h.Status = domain.StatusAvailable
			}
			h.Collection = item.ShelfLocation
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

// ExecuteHealthCheck probes the SearchAPI endpoint.
func (a *Adapter) ExecuteHealthCheck(ctx context.Context) error {
	return a.Ping(ctx, a.BaseURL()+"/API/SearchAPI?method=search")
}

func (a *Adapter) fetchAvailability(ctx context.Context, recordID string) (*availabilityResponse, error) {
	availURL := a.BaseURL() + "/API/ItemAPI?method=getItemAvailability&id=" +
		url.QueryEscape(recordID)
	var avail availabilityResponse
	if err := a.GetJSON(ctx, "availability", availURL, nil, &avail); err != nil {
		return nil, err
	}
	return &avail, nil
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
