// Package polaris queries the Polaris PAPI public interface. Every
// request carries an HMAC-SHA1 signature over method, URL, and an HTTP
// date, in the PWS authorization scheme.
package polaris

import (
	"context"
	"crypto/hmac"
	"crypto/sha1" //#nosec G505 -- PAPI mandates HMAC-SHA1
	"encoding/base64"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/arguspanoptes/argus-server/internal/catalog"
	"github.com/arguspanoptes/argus-server/internal/domain"
)

// PAPI path segments: language 1033 (en-US), app id 100, org id 1.
const papiBase = "/PAPIService/REST/public/v1/1033/100/1"

// Adapter speaks the Polaris PAPI with HMAC request signing.
type Adapter struct {
	catalog.Base
	system *domain.LibrarySystem
	creds  catalog.Credentials
	now    func() time.Time
}

// New builds a Polaris adapter. Access ID and key come from the env vars
// named in the config; unresolved names fail construction.
func New(system *domain.LibrarySystem, cfg domain.AdapterConfig) (*Adapter, error) {
	creds, err := catalog.ResolveCredentials(system.ID, cfg)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		Base:   catalog.NewBase(system, cfg),
		system: system,
		creds:  creds,
		now:    time.Now,
	}, nil
}

// sign computes Base64(HMAC-SHA1(secret, method + url + httpDate)).
func (a *Adapter) sign(method, requestURL, httpDate string) string {
	mac := hmac.New(sha1.New, []byte(a.creds.Secret))
	mac.Write([]byte(method + requestURL + httpDate)) //nolint:errcheck
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// signedGet issues a GET with the PolarisDate and PWS authorization
// headers and decodes the JSON response.
func (a *Adapter) signedGet(ctx context.Context, op, requestURL string, out any) error {
	httpDate := a.now().UTC().Format(http.TimeFormat)
	header := http.Header{
		"PolarisDate":   {httpDate},
		"Authorization": {"PWS " + a.creds.Key + ":" + a.sign(http.MethodGet, requestURL, httpDate)},
	}
	return a.GetJSON(ctx, op, requestURL, header, out)
}

type searchResponse struct {
	PAPIErrorCode     int `json:"PAPIErrorCode"`
	TotalRecordsFound int `json:"TotalRecordsFound"`
	SearchRows        []struct {
		ControlNumber int    `json:"ControlNumber"`
		Title         string `json:"Title"`
		CallNumber    string `json:"CallNumber"`
		MaterialType  string `json:"MaterialType"`
	} `json:"SearchRows"`
}

type holdingsPayload struct {
	PAPIErrorCode int `json:"PAPIErrorCode"`
	Rows          []struct {
		LocationName   string `json:"LocationName"`
		CollectionName string `json:"CollectionName"`
		CallNumber     string `json:"CallNumber"`
		Barcode        string `json:"Barcode"`
		ItemStatus     string `json:"CircStatus"`
		DueDate        string `json:"DueDate"`
		Holds          int    `json:"HoldsCount"`
	} `json:"GetHoldingsRows"`
}

// ExecuteSearch runs a boolean bib search by ISBN, then fetches the
// holdings rows for each matching bib.
func (a *Adapter) ExecuteSearch(ctx context.Context, isbn13 string) ([]domain.BookHolding, error) {
	searchURL := a.BaseURL() + papiBase + "/search/bibs/boolean?q=" + url.QueryEscape("ISBN="+isbn13)

	var found searchResponse
	if err := a.signedGet(ctx, "search", searchURL, &found); err != nil {
		return nil, err
	}
	if found.PAPIErrorCode != 0 {
		return nil, a.Failf(catalog.KindParse, "search", "PAPI error code %d", found.PAPIErrorCode)
	}

	var holdings []domain.BookHolding
	for _, row := range found.SearchRows {
		got, err := a.fetchHoldings(ctx, row.ControlNumber, row.MaterialType, isbn13)
		if err != nil {
			continue
		}
		holdings = append(holdings, got...)
	}
	return holdings, nil
}

// ExecuteHealthCheck probes the PAPI root with a signed request.
func (a *Adapter) ExecuteHealthCheck(ctx context.Context) error {
	httpDate := a.now().UTC().Format(http.TimeFormat)
	pingURL := a.BaseURL() + papiBase + "/search/bibs/boolean?q=" + url.QueryEscape("ISBN=9780000000000")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pingURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("PolarisDate", httpDate)
	req.Header.Set("Authorization", "PWS "+a.creds.Key+":"+a.sign(http.MethodGet, pingURL, httpDate))
	resp, err := a.Do(req, "health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return a.Failf(catalog.KindAuth, "health", "signature rejected: status %d", resp.StatusCode)
	}
	return nil
}

func (a *Adapter) fetchHoldings(ctx context.Context, controlNumber int, materialType, isbn13 string) ([]domain.BookHolding, error) {
	holdingsURL := a.BaseURL() + papiBase + "/bib/" + strconv.Itoa(controlNumber) + "/holdings"

	var payload holdingsPayload
	if err := a.signedGet(ctx, "holdings", holdingsURL, &payload); err != nil {
		return nil, err
	}
	if payload.PAPIErrorCode != 0 {
		return nil, a.Failf(catalog.KindParse, "holdings", "PAPI error code %d", payload.PAPIErrorCode)
	}

	material := catalog.NormalizeMaterial(materialType)
	if material == domain.MaterialUnknown {
		material = domain.MaterialBook
	}

	holdings := make([]domain.BookHolding, 0, len(payload.Rows))
	for _, row := range payload.Rows {
		h := domain.BookHolding{
			ISBN:         isbn13,
			SystemID:     a.SystemID(),
			SystemName:   a.SystemName(),
			BranchName:   row.LocationName,
			Collection:   row.CollectionName,
			MaterialType: material,
			Status:       catalog.NormalizeStatus(row.ItemStatus),
			RawStatus:    row.ItemStatus,
			CatalogURL:   a.CatalogURL(),
		}
		if h.BranchName == "" {
			h.BranchName = "Unknown"
		}
		if branch, ok := a.system.BranchByCode(row.LocationName); ok {
			h.BranchID = branch.ID
			h.BranchName = branch.Name
		} else {
			h.BranchID = domain.BuildFingerprint(a.SystemID(), h.BranchName)
		}
		if row.CallNumber != "" {
			call := row.CallNumber
			h.CallNumber = &call
		}
		if row.DueDate != "" {
			h.Status = domain.StatusCheckedOut
			h.DueDate = catalog.NormalizeDueDate(row.DueDate)
		}
		if row.Holds > 0 {
			holds := row.Holds
			h.HoldCount = &holds
		}
		h.Fingerprint = a.Fingerprint(isbn13, h.BranchName, row.CallNumber, row.Barcode)
		holdings = append(holdings, h)
	}
	return holdings, nil
}
