// Package enterprise scrapes SirsiDynix Enterprise discovery portals.
// Enterprise renders item tables server-side, so a plain fetch of the
// search results page is enough; the markup is stable across installs.
package enterprise

import (
	"context"
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/arguspanoptes/argus-server/internal/catalog"
	"github.com/arguspanoptes/argus-server/internal/domain"
)

// Enterprise result page structure. Each matched title carries a
// detailItemsTable with one row per physical item.
const (
	resultXPath = "//div[contains(@class,'results_cell')] | //div[contains(@class,'displayDetailModule')]"
	itemRows    = ".//table[contains(@class,'detailItemsTable')]//tr[contains(@class,'detailItemsTableRow')]"
	libCell     = ".//td[contains(@class,'detailItemsTable_LIBRARY')] | .//div[contains(@class,'itemLibLabel')]"
	callCell    = ".//td[contains(@class,'detailItemsTable_CALLNUMBER')] | .//div[contains(@class,'itemCallNumber')]"
	statusCell  = ".//td[contains(@class,'detailItemsTable_ITEM_STATUS')] | .//div[contains(@class,'itemStatus')]"
	formatCell  = ".//div[contains(@class,'formatText')]"
	titleCell   = ".//a[contains(@class,'title')] | .//div[contains(@class,'displayDetailLeftTitle')]"
)

// Adapter scrapes Enterprise search result pages.
type Adapter struct {
	catalog.Base
	system     *domain.LibrarySystem
	searchPath string
}

// New builds an Enterprise adapter. extra["searchPath"] overrides the
// default results endpoint for installs mounted under a profile prefix.
func New(system *domain.LibrarySystem, cfg domain.AdapterConfig) (*Adapter, error) {
	searchPath := cfg.Extra["searchPath"]
	if searchPath == "" {
		searchPath = "/search/results"
	}
	return &Adapter{
		Base:       catalog.NewBase(system, cfg),
		system:     system,
		searchPath: searchPath,
	}, nil
}

// ExecuteSearch fetches the results page for the ISBN and extracts a
// holding per item row. Titles rendered without an item table still get
// one bib-level holding so the system shows up in the summary.
func (a *Adapter) ExecuteSearch(ctx context.Context, isbn13 string) ([]domain.BookHolding, error) {
	searchURL := a.BaseURL() + a.searchPath + "?qu=" + url.QueryEscape(isbn13) + "&te="

	doc, err := a.GetHTML(ctx, "search", searchURL)
	if err != nil {
		return nil, err
	}

	cells, err := htmlquery.QueryAll(doc, resultXPath)
	if err != nil {
		return nil, a.Fail(catalog.KindParse, "search", err)
	}

	var holdings []domain.BookHolding
	for _, cell := range cells {
		holdings = append(holdings, a.cellHoldings(cell, isbn13)...)
	}
	return holdings, nil
}

// ExecuteHealthCheck fetches the portal root.
func (a *Adapter) ExecuteHealthCheck(ctx context.Context) error {
	return a.Ping(ctx, "")
}

func (a *Adapter) cellHoldings(cell *html.Node, isbn13 string) []domain.BookHolding {
	title := text(cell, titleCell)
	material := catalog.NormalizeMaterial(text(cell, formatCell))
	if material == domain.MaterialUnknown {
		material = domain.MaterialBook
	}

	rows, err := htmlquery.QueryAll(cell, itemRows)
	if err != nil || len(rows) == 0 {
		h := a.newHolding(isbn13, "", "Unknown availability", material)
		h.Fingerprint = a.Fingerprint(isbn13, h.BranchName, "", title)
		return []domain.BookHolding{h}
	}

	holdings := make([]domain.BookHolding, 0, len(rows))
	for _, row := range rows {
		branchName := text(row, libCell)
		callNumber := text(row, callCell)
		rawStatus := text(row, statusCell)

		h := a.newHolding(isbn13, branchName, rawStatus, material)
		if callNumber != "" {
			h.CallNumber = &callNumber
		}
		h.Fingerprint = a.Fingerprint(isbn13, h.BranchName, callNumber, title)
		holdings = append(holdings, h)
	}
	return holdings
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
	if h.Status == domain.StatusCheckedOut {
		h.DueDate = catalog.NormalizeDueDate(rawStatus)
	}
	return h
}

func text(node *html.Node, selector string) string {
	found, err := htmlquery.Query(node, selector)
	if err != nil || found == nil {
		return ""
	}
	return strings.Join(strings.Fields(htmlquery.InnerText(found)), " ")
}
