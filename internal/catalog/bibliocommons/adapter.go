// Package bibliocommons drives the BiblioCommons discovery layer. The
// catalog is a SPA whose availability panel loads over XHR behind a CSRF
// token and a session cookie, so one search takes three coupled steps:
// fetch the search HTML, lift the CSRF token and bib ids out of it, then
// call the title-info endpoint per bib and join its JSON items with the
// branch names rendered in the page.
package bibliocommons

import (
	"context"
	"encoding/json/v2"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/arguspanoptes/argus-server/internal/catalog"
	"github.com/arguspanoptes/argus-server/internal/domain"
)

// The CSRF token lives in an inline script as a quoted JSON field.
var csrfPattern = regexp.MustCompile(`"csrfToken"\s*:\s*"([^"]+)"`)

// Record links look like /v2/record/S83C1234.
var recordPattern = regexp.MustCompile(`/v2/record/(S\d+C\d+)`)

// Adapter scrapes a BiblioCommons catalog.
type Adapter struct {
	catalog.Base
	system *domain.LibrarySystem
}

// New builds a BiblioCommons adapter. The HTTP client gets a cookie jar
// so the session cookie minted on the search page reaches the XHR
// endpoints.
func New(system *domain.LibrarySystem, cfg domain.AdapterConfig) (*Adapter, error) {
	a := &Adapter{
		Base:   catalog.NewBase(system, cfg),
		system: system,
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, a.Fail(catalog.KindUnknown, "construct", err)
	}
	a.SetHTTPClient(&http.Client{Jar: jar})
	return a, nil
}

// titleInfo is the lookup_title_info XHR payload. Branch names are not
// in it; those come from the search page markup, keyed by barcode.
type titleInfo struct {
	Items []struct {
		Barcode    string `json:"barcode"`
		Status     string `json:"status"`
		CallNumber string `json:"callNumber"`
		Collection string `json:"collection"`
	} `json:"items"`
}

// ExecuteSearch runs the three-step scrape.
func (a *Adapter) ExecuteSearch(ctx context.Context, isbn13 string) ([]domain.BookHolding, error) {
	searchURL := a.BaseURL() + "/v2/search?searchType=bl&query=" +
		url.QueryEscape("identifier:("+isbn13+")")

	doc, err := a.GetHTML(ctx, "search", searchURL)
	if err != nil {
		return nil, err
	}

	csrf := findCSRFToken(doc)
	if csrf == "" {
		return nil, a.Failf(catalog.KindParse, "search", "no csrfToken in search page")
	}
	bibIDs := findBibIDs(doc)
	if len(bibIDs) == 0 {
		return nil, nil
	}
	branches := branchByBarcode(doc)

	var holdings []domain.BookHolding
	for _, bibID := range bibIDs {
		info, err := a.lookupTitleInfo(ctx, bibID, csrf)
		if err != nil {
			continue
		}
		holdings = append(holdings, a.joinItems(info, branches, isbn13)...)
	}
	return holdings, nil
}

// ExecuteHealthCheck fetches the catalog home page.
func (a *Adapter) ExecuteHealthCheck(ctx context.Context) error {
	return a.Ping(ctx, "")
}

// lookupTitleInfo POSTs the detail-panel XHR endpoint for one bib.
func (a *Adapter) lookupTitleInfo(ctx context.Context, bibID, csrf string) (*titleInfo, error) {
	form := url.Values{"bib_id": {bibID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.BaseURL()+"/item/lookup_title_info", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, a.Fail(catalog.KindUnknown, "title_info", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-CSRF-Token", csrf)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Accept", "application/json")

	resp, err := a.Do(req, "title_info")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := a.CheckStatus(resp, "title_info"); err != nil {
		return nil, err
	}
	var info titleInfo
	if err := json.UnmarshalRead(resp.Body, &info); err != nil {
		return nil, a.Fail(catalog.KindParse, "title_info", err)
	}
	return &info, nil
}

// joinItems merges XHR items with the branch names scraped per barcode.
func (a *Adapter) joinItems(info *titleInfo, branches map[string]string, isbn13 string) []domain.BookHolding {
	holdings := make([]domain.BookHolding, 0, len(info.Items))
	for _, item := range info.Items {
		branchName := branches[item.Barcode]
		if branchName == "" {
			branchName = "Unknown"
		}
		h := domain.BookHolding{
			ISBN:         isbn13,
			SystemID:     a.SystemID(),
			SystemName:   a.SystemName(),
			BranchName:   branchName,
			Collection:   item.Collection,
			MaterialType: domain.MaterialBook,
			Status:       catalog.NormalizeStatus(item.Status),
			RawStatus:    item.Status,
			CatalogURL:   a.CatalogURL(),
		}
		if branch, ok := a.system.BranchByCode(branchName); ok {
			h.BranchID = branch.ID
			h.BranchName = branch.Name
		} else {
			h.BranchID = domain.BuildFingerprint(a.SystemID(), h.BranchName)
		}
		if item.CallNumber != "" {
			call := item.CallNumber
			h.CallNumber = &call
		}
		h.Fingerprint = a.Fingerprint(isbn13, h.BranchName, item.CallNumber, item.Barcode)
		holdings = append(holdings, h)
	}
	return holdings
}

// findCSRFToken scans inline scripts for the csrfToken field.
func findCSRFToken(doc *html.Node) string {
	scripts, err := htmlquery.QueryAll(doc, "//script")
	if err != nil {
		return ""
	}
	for _, s := range scripts {
		if m := csrfPattern.FindStringSubmatch(htmlquery.InnerText(s)); m != nil {
			return m[1]
		}
	}
	return ""
}

// findBibIDs collects bib ids from record links, first occurrence order,
// deduplicated.
func findBibIDs(doc *html.Node) []string {
	links, err := htmlquery.QueryAll(doc, "//a[@href]")
	if err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var ids []string
	for _, link := range links {
		m := recordPattern.FindStringSubmatch(htmlquery.SelectAttr(link, "href"))
		if m == nil || seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		ids = append(ids, m[1])
	}
	return ids
}

// branchByBarcode maps barcodes to branch names from the availability
// rows rendered in the search page.
func branchByBarcode(doc *html.Node) map[string]string {
	rows, err := htmlquery.QueryAll(doc, "//tr[@data-barcode]")
	if err != nil {
		return nil
	}
	branches := make(map[string]string, len(rows))
	for _, row := range rows {
		barcode := htmlquery.SelectAttr(row, "data-barcode")
		cell, err := htmlquery.Query(row, ".//td[contains(@class,'branch')]")
		if err != nil || cell == nil {
			continue
		}
		branches[barcode] = strings.Join(strings.Fields(htmlquery.InnerText(cell)), " ")
	}
	return branches
}
