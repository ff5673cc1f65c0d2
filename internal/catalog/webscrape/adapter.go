// Package webscrape extracts availability from OPAC result pages using
// configuration-supplied XPath selectors. One adapter implementation
// covers every catalog whose markup is stable enough to describe with a
// search URL template and a handful of selectors (generic web catalogs,
// Atriuum, Spydus).
package webscrape

import (
	"context"
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/arguspanoptes/argus-server/internal/catalog"
	"github.com/arguspanoptes/argus-server/internal/domain"
	"github.com/arguspanoptes/argus-server/internal/ratelimit"
)

// Scrapes pace themselves to one request per second per host so a
// federated search never hammers a small library's OPAC.
const scrapeRPS = 1.0

// Extra keys understood by this adapter. searchUrlTemplate is required
// and must contain the {isbn} placeholder; the selectors are XPath
// expressions, rowSelector relative to the document and the rest
// relative to each row.
const (
	keySearchURLTemplate = "searchUrlTemplate"
	keyRowSelector       = "rowSelector"
	keyTitleSelector     = "titleSelector"
	keyBranchSelector    = "branchSelector"
	keyStatusSelector    = "statusSelector"
	keyCallNumber        = "callNumberSelector"
)

// Adapter scrapes an OPAC result page with configured selectors.
type Adapter struct {
	catalog.Base
	system *domain.LibrarySystem

	urlTemplate string
	rowSelector string
	titleSel    string
	branchSel   string
	statusSel   string
	callSel     string

	pacer *ratelimit.KeyedRateLimiter
}

// New builds a scrape adapter from the config's extra map. A missing
// search URL template is a construction-time parse error.
func New(system *domain.LibrarySystem, cfg domain.AdapterConfig) (*Adapter, error) {
	a := &Adapter{
		Base:        catalog.NewBase(system, cfg),
		system:      system,
		urlTemplate: cfg.Extra[keySearchURLTemplate],
		rowSelector: cfg.Extra[keyRowSelector],
		titleSel:    cfg.Extra[keyTitleSelector],
		branchSel:   cfg.Extra[keyBranchSelector],
		statusSel:   cfg.Extra[keyStatusSelector],
		callSel:     cfg.Extra[keyCallNumber],
	}
	if a.urlTemplate == "" || !strings.Contains(a.urlTemplate, "{isbn}") {
		return nil, a.Failf(catalog.KindParse, "construct",
			"extra.%s must contain an {isbn} placeholder", keySearchURLTemplate)
	}
	if a.rowSelector == "" {
		a.rowSelector = "//tr[contains(@class,'result')]"
	}
	a.pacer = ratelimit.New(scrapeRPS, 1)
	return a, nil
}

// Close stops the pacing limiter.
func (a *Adapter) Close() {
	a.pacer.Stop()
}

// ExecuteSearch fetches the result page and extracts one holding per
// matched row.
func (a *Adapter) ExecuteSearch(ctx context.Context, isbn13 string) ([]domain.BookHolding, error) {
	searchURL := strings.ReplaceAll(a.urlTemplate, "{isbn}", url.QueryEscape(isbn13))

	if err := a.pace(ctx, searchURL); err != nil {
		return nil, err
	}
	doc, err := a.GetHTML(ctx, "search", searchURL)
	if err != nil {
		return nil, err
	}

	rows, err := htmlquery.QueryAll(doc, a.rowSelector)
	if err != nil {
		return nil, a.Fail(catalog.KindParse, "search", err)
	}

	holdings := make([]domain.BookHolding, 0, len(rows))
	for _, row := range rows {
		holdings = append(holdings, a.rowHolding(row, isbn13))
	}
	return holdings, nil
}

// ExecuteHealthCheck fetches the catalog home page.
func (a *Adapter) ExecuteHealthCheck(ctx context.Context) error {
	if err := a.pace(ctx, a.BaseURL()); err != nil {
		return err
	}
	return a.Ping(ctx, "")
}

func (a *Adapter) pace(ctx context.Context, rawURL string) error {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}
	if err := a.pacer.Wait(ctx, host); err != nil {
		return catalog.Classify(err, a.SystemID(), a.Protocol(), "pace")
	}
	return nil
}

// rowHolding extracts one holding from a result row. Rows with missing
// cells still produce a record; the gaps read as unknown.
func (a *Adapter) rowHolding(row *html.Node, isbn13 string) domain.BookHolding {
	branchName := a.selectText(row, a.branchSel)
	rawStatus := a.selectText(row, a.statusSel)
	callNumber := a.selectText(row, a.callSel)
	title := a.selectText(row, a.titleSel)

	h := domain.BookHolding{
		ISBN:         isbn13,
		SystemID:     a.SystemID(),
		SystemName:   a.SystemName(),
		BranchName:   branchName,
		MaterialType: domain.MaterialBook,
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
	if callNumber != "" {
		h.CallNumber = &callNumber
	}
	if h.Status == domain.StatusCheckedOut {
		h.DueDate = catalog.NormalizeDueDate(rawStatus)
	}
	h.Fingerprint = a.Fingerprint(isbn13, h.BranchName, callNumber, title)
	return h
}

// selectText evaluates an XPath selector against a row and returns the
// trimmed inner text, or "" when the selector is empty or matches
// nothing.
func (a *Adapter) selectText(row *html.Node, selector string) string {
	if selector == "" {
		return ""
	}
	node, err := htmlquery.Query(row, selector)
	if err != nil || node == nil {
		return ""
	}
	return strings.Join(strings.Fields(htmlquery.InnerText(node)), " ")
}
