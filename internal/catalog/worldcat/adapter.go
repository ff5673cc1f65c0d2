// Package worldcat queries the OCLC WorldCat Search API. WorldCat is a
// union catalog: it reports which systems hold a title, not real-time
// item status, so every holding it returns is stamped as an
// aggregate-source record and yields to direct results during
// aggregation.
package worldcat

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/arguspanoptes/argus-server/internal/catalog"
	"github.com/arguspanoptes/argus-server/internal/domain"
)

const (
	defaultTokenURL = "https://oauth.oclc.org/token"
	defaultScope    = "wcapi"

	// Tokens are refreshed this long before their stated expiry.
	expiryMargin = 60 * time.Second
)

// Adapter speaks the WorldCat Search API v2 with OAuth2
// client-credentials auth.
type Adapter struct {
	catalog.Base
	system *domain.LibrarySystem

	// symbols maps OCLC institution symbols to branch names, from
	// extra["symbols"] ("SYM=Name,SYM2=Name2"). Empty means report at
	// system level.
	symbols map[string]string

	oauth clientcredentials.Config

	mu     sync.Mutex
	source oauth2.TokenSource
}

// New builds a WorldCat adapter. WSKey and secret come from the env vars
// named in the config. The token URL and scope can be overridden with
// extra["tokenUrl"] and extra["scope"].
func New(system *domain.LibrarySystem, cfg domain.AdapterConfig) (*Adapter, error) {
	creds, err := catalog.ResolveCredentials(system.ID, cfg)
	if err != nil {
		return nil, err
	}

	tokenURL := cfg.Extra["tokenUrl"]
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	scope := cfg.Extra["scope"]
	if scope == "" {
		scope = defaultScope
	}

	a := &Adapter{
		Base:   catalog.NewBase(system, cfg),
		system: system,
		oauth: clientcredentials.Config{
			ClientID:     creds.Key,
			ClientSecret: creds.Secret,
			TokenURL:     tokenURL,
			Scopes:       []string{scope},
		},
	}
	a.symbols = parseSymbolMap(cfg.Extra["symbols"])
	return a, nil
}

// parseSymbolMap reads "SYM=Branch Name,SYM2=Other" pairs.
func parseSymbolMap(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for pair := range strings.SplitSeq(raw, ",") {
		sym, name, ok := strings.Cut(pair, "=")
		sym = strings.TrimSpace(sym)
		if !ok || sym == "" {
			continue
		}
		out[strings.ToUpper(sym)] = strings.TrimSpace(name)
	}
	return out
}

// token returns a cached access token, refreshing when the previous one
// is within the expiry margin. The reuse source serializes refreshes, so
// concurrent searches share one outbound token request.
func (a *Adapter) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	if a.source == nil {
		base := a.oauth.TokenSource(context.WithoutCancel(ctx))
		a.source = oauth2.ReuseTokenSourceWithExpiry(nil, base, expiryMargin)
	}
	source := a.source
	a.mu.Unlock()

	tok, err := source.Token()
	if err != nil {
		return "", a.Fail(catalog.KindAuth, "token", err)
	}
	return tok.AccessToken, nil
}

// invalidateToken drops the cached token source so the next call mints a
// fresh token.
func (a *Adapter) invalidateToken() {
	a.mu.Lock()
	a.source = nil
	a.mu.Unlock()
}

type bibsResponse struct {
	NumberOfRecords int `json:"numberOfRecords"`
	BibRecords      []struct {
		Identifier struct {
			OCLCNumber string `json:"oclcNumber"`
		} `json:"identifier"`
		Title struct {
			MainTitles []struct {
				Text string `json:"text"`
			} `json:"mainTitles"`
		} `json:"title"`
	} `json:"bibRecords"`
}

type holdingsResponse struct {
	NumberOfHoldings int `json:"numberOfHoldings"`
	Holdings         []struct {
		InstitutionSymbol string `json:"oclcSymbol"`
		InstitutionName   string `json:"institutionName"`
		HoldingCount      int    `json:"numberOfCopies"`
	} `json:"detailedHoldings"`
}

// ExecuteSearch finds the OCLC number for the ISBN, then lists holdings
// for the configured institution symbols.
func (a *Adapter) ExecuteSearch(ctx context.Context, isbn13 string) ([]domain.BookHolding, error) {
	bibs, err := a.searchBibs(ctx, isbn13)
	if err != nil {
		return nil, err
	}
	if len(bibs.BibRecords) == 0 {
		return nil, nil
	}

	oclcNumber := bibs.BibRecords[0].Identifier.OCLCNumber
	held, err := a.fetchHoldings(ctx, oclcNumber)
	if err != nil {
		return nil, err
	}

	var holdings []domain.BookHolding
	for _, inst := range held.Holdings {
		branchName := a.symbols[strings.ToUpper(inst.InstitutionSymbol)]
		if branchName == "" {
			if len(a.symbols) > 0 {
				// Symbol map configured and this institution is not in
				// it: a different system's holding, not ours.
				continue
			}
			branchName = inst.InstitutionName
		}
		h := domain.BookHolding{
			ISBN:              isbn13,
			SystemID:          a.SystemID(),
			SystemName:        a.SystemName(),
			BranchID:          domain.BuildFingerprint(a.SystemID(), inst.InstitutionSymbol),
			BranchName:        branchName,
			MaterialType:      domain.MaterialBook,
			Status:            domain.StatusUnknown,
			RawStatus:         domain.AggregateSourceStatus,
			IsSecondarySource: true,
			CatalogURL:        a.CatalogURL(),
		}
		if inst.HoldingCount > 0 {
			copies := inst.HoldingCount
			h.CopyCount = &copies
		}
		h.Fingerprint = a.Fingerprint(isbn13, branchName, "", "oclc-"+oclcNumber)
		holdings = append(holdings, h)
	}
	return holdings, nil
}

// ExecuteHealthCheck verifies that token minting works.
func (a *Adapter) ExecuteHealthCheck(ctx context.Context) error {
	_, err := a.token(ctx)
	return err
}

func (a *Adapter) searchBibs(ctx context.Context, isbn13 string) (*bibsResponse, error) {
	query := url.Values{
		"q":     {"bn:" + isbn13},
		"limit": {strconv.Itoa(1)},
	}
	var out bibsResponse
	if err := a.getJSON(ctx, "bibs", a.BaseURL()+"/search/brief-bibs?"+query.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Adapter) fetchHoldings(ctx context.Context, oclcNumber string) (*holdingsResponse, error) {
	query := url.Values{"oclcNumber": {oclcNumber}}
	var out holdingsResponse
	if err := a.getJSON(ctx, "holdings", a.BaseURL()+"/search/bibs-detailed-holdings?"+query.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Adapter) getJSON(ctx context.Context, op, requestURL string, out any) error {
	token, err := a.token(ctx)
	if err != nil {
		return err
	}
	header := http.Header{"Authorization": {"Bearer " + token}}
	if err := a.GetJSON(ctx, op, requestURL, header, out); err != nil {
		if catalog.KindOf(err) == catalog.KindAuth {
			a.invalidateToken()
		}
		return err
	}
	return nil
}
