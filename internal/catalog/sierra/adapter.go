// Package sierra queries the III Sierra REST API: a cached
// client-credentials token, a bib search by ISBN, and an item fetch per
// bib record.
package sierra

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/arguspanoptes/argus-server/internal/catalog"
	"github.com/arguspanoptes/argus-server/internal/domain"
)

// Sierra status codes that the display string does not always spell out.
var statusCodes = map[string]domain.HoldingStatus{
	"-": domain.StatusAvailable,
	"o": domain.StatusAvailable,
	"t": domain.StatusInTransit,
	"!": domain.StatusOnHold,
	"m": domain.StatusMissing,
	"$": domain.StatusMissing,
	"p": domain.StatusInProcessing,
}

// Adapter speaks the Sierra REST API v6.
type Adapter struct {
	catalog.Base
	system *domain.LibrarySystem
	creds  catalog.Credentials
	tokens *tokenCache
}

// New builds a Sierra adapter. Client key and secret come from the env
// vars named in the config; unresolved names fail construction.
func New(system *domain.LibrarySystem, cfg domain.AdapterConfig) (*Adapter, error) {
	creds, err := catalog.ResolveCredentials(system.ID, cfg)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		Base:   catalog.NewBase(system, cfg),
		system: system,
		creds:  creds,
		tokens: newTokenCache(),
	}, nil
}

// ExecuteSearch finds bib records by ISBN, then fetches their items.
func (a *Adapter) ExecuteSearch(ctx context.Context, isbn13 string) ([]domain.BookHolding, error) {
	bibs, err := a.searchBibs(ctx, isbn13)
	if err != nil {
		return nil, err
	}

	var holdings []domain.BookHolding
	for _, bib := range bibs {
		items, err := a.fetchItems(ctx, bib.ID)
		if err != nil {
			// A bib whose items cannot be fetched still counts as a
			// holding; degrade to a bib-level record instead of failing
			// the whole search.
			holdings = append(holdings, a.bibLevelHolding(bib, isbn13))
			continue
		}
		for i := range items {
			holdings = append(holdings, a.itemHolding(&items[i], isbn13))
		}
	}
	return holdings, nil
}

// ExecuteHealthCheck verifies the token endpoint accepts our credentials.
func (a *Adapter) ExecuteHealthCheck(ctx context.Context) error {
	_, err := a.tokens.get(ctx, a.fetchToken)
	return err
}

type bibEntry struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	CallNumber   string `json:"callNumber"`
	MaterialType struct {
		Code  string `json:"code"`
		Value string `json:"value"`
	} `json:"materialType"`
}

type itemEntry struct {
	ID         string `json:"id"`
	Barcode    string `json:"barcode"`
	CallNumber string `json:"callNumber"`
	Location   struct {
		Code string `json:"code"`
		Name string `json:"name"`
	} `json:"location"`
	Status struct {
		Code    string `json:"code"`
		Display string `json:"display"`
		DueDate string `json:"duedate"`
	} `json:"status"`
	Holds      int  `json:"holdCount"`
	Suppressed bool `json:"suppressed"`
}

func (a *Adapter) searchBibs(ctx context.Context, isbn13 string) ([]bibEntry, error) {
	query := url.Values{
		"isbn":   {isbn13},
		"fields": {"id,title,callNumber,materialType"},
		"limit":  {"5"},
	}
	var payload struct {
		Total   int        `json:"total"`
		Entries []bibEntry `json:"entries"`
	}
	err := a.getJSON(ctx, "bibs", a.BaseURL()+"/bibs?"+query.Encode(), &payload)
	if err != nil {
		return nil, err
	}
	return payload.Entries, nil
}

func (a *Adapter) fetchItems(ctx context.Context, bibID string) ([]itemEntry, error) {
	query := url.Values{
		"bibIds": {bibID},
		"fields": {"id,barcode,callNumber,location,status,holdCount"},
		"limit":  {"50"},
	}
	var payload struct {
		Total   int         `json:"total"`
		Entries []itemEntry `json:"entries"`
	}
	err := a.getJSON(ctx, "items", a.BaseURL()+"/items?"+query.Encode(), &payload)
	if err != nil {
		return nil, err
	}
	return payload.Entries, nil
}

// getJSON issues an authenticated GET, invalidating the token cache and
// raising an auth error when the API rejects our token.
func (a *Adapter) getJSON(ctx context.Context, op, requestURL string, out any) error {
	token, err := a.tokens.get(ctx, a.fetchToken)
	if err != nil {
		return err
	}
	header := http.Header{"Authorization": {"Bearer " + token}}
	err = a.GetJSON(ctx, op, requestURL, header, out)
	if err != nil {
		if catalog.KindOf(err) == catalog.KindAuth {
			a.tokens.invalidate()
		}
		return err
	}
	return nil
}

func (a *Adapter) itemHolding(item *itemEntry, isbn13 string) domain.BookHolding {
	h := domain.BookHolding{
		ISBN:       isbn13,
		SystemID:   a.SystemID(),
		SystemName: a.SystemName(),
		CatalogURL: a.CatalogURL(),
		RawStatus:  item.Status.Display,
	}

	if branch, ok := a.system.BranchByCode(item.Location.Code); ok {
		h.BranchID = branch.ID
		h.BranchName = branch.Name
	} else {
		h.BranchID = domain.BuildFingerprint(a.SystemID(), item.Location.Code)
		h.BranchName = item.Location.Name
		if h.BranchName == "" {
			h.BranchName = "Unknown"
		}
	}

	if item.CallNumber != "" {
		call := item.CallNumber
		h.CallNumber = &call
	}
	if item.Holds > 0 {
		holds := item.Holds
		h.HoldCount = &holds
	}

	h.Status = catalog.NormalizeStatus(item.Status.Display)
	if h.Status == domain.StatusUnknown {
		if mapped, ok := statusCodes[item.Status.Code]; ok {
			h.Status = mapped
		}
	}
	if item.Status.DueDate != "" {
		h.Status = domain.StatusCheckedOut
		h.DueDate = catalog.NormalizeDueDate(item.Status.DueDate)
		if h.RawStatus == "" {
			h.RawStatus = "Due " + item.Status.DueDate
		}
	}
	h.MaterialType = domain.MaterialBook

	h.Fingerprint = a.Fingerprint(isbn13, h.BranchName, item.CallNumber, item.Barcode)
	return h
}

// bibLevelHolding stands in for a bib whose item fetch failed.
func (a *Adapter) bibLevelHolding(bib bibEntry, isbn13 string) domain.BookHolding {
	h := domain.BookHolding{
		ISBN:         isbn13,
		SystemID:     a.SystemID(),
		SystemName:   a.SystemName(),
		BranchID:     a.SystemID(),
		BranchName:   a.SystemName(),
		MaterialType: catalog.NormalizeMaterial(bib.MaterialType.Value),
		Status:       domain.StatusUnknown,
		RawStatus:    "Item details unavailable",
		CatalogURL:   a.CatalogURL(),
	}
	if h.MaterialType == domain.MaterialUnknown {
		h.MaterialType = domain.MaterialBook
	}
	if bib.CallNumber != "" {
		call := bib.CallNumber
		h.CallNumber = &call
	}
	h.Fingerprint = a.Fingerprint(isbn13, a.SystemID(), bib.CallNumber, fmt.Sprintf("bib-%s", bib.ID))
	return h
}
