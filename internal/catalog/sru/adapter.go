// Package sru queries SRU endpoints (Koha and generic) and extracts
// item-level availability from the MARC XML records they return.
package sru

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/url"
	"strings"

	"github.com/arguspanoptes/argus-server/internal/catalog"
	"github.com/arguspanoptes/argus-server/internal/domain"
)

// Koha exposes item data in MARC field 952 by default; other ILSes use
// a different local tag (Evergreen: 852).
const defaultItemTag = "952"

// Adapter speaks SRU searchRetrieve with MARC XML record payloads.
type Adapter struct {
	catalog.Base
	system  *domain.LibrarySystem
	itemTag string
}

// New builds an SRU adapter for one system. The item field tag can be
// overridden with extra["itemTag"].
func New(system *domain.LibrarySystem, cfg domain.AdapterConfig) (*Adapter, error) {
	a := &Adapter{
		Base:    catalog.NewBase(system, cfg),
		system:  system,
		itemTag: defaultItemTag,
	}
	if tag := cfg.Extra["itemTag"]; tag != "" {
		a.itemTag = tag
	}
	return a, nil
}

// ExecuteSearch runs one searchRetrieve query by ISBN.
func (a *Adapter) ExecuteSearch(ctx context.Context, isbn13 string) ([]domain.BookHolding, error) {
	query := url.Values{
		"version":        {"1.1"},
		"operation":      {"searchRetrieve"},
		"query":          {"bath.isbn=" + isbn13},
		"maximumRecords": {"10"},
		"recordSchema":   {"marcxml"},
	}
	searchURL := a.BaseURL() + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, a.Fail(catalog.KindUnknown, "search", err)
	}
	resp, err := a.Do(req, "search")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, a.Failf(catalog.KindParse, "search", "unexpected SRU status %d", resp.StatusCode)
	}

	var envelope searchRetrieveResponse
	if err := xml.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, a.Fail(catalog.KindParse, "search", err)
	}

	var holdings []domain.BookHolding
	for i := range envelope.Records {
		rec := &envelope.Records[i].Data.Record
		holdings = append(holdings, a.recordHoldings(rec, isbn13)...)
	}
	return holdings, nil
}

// ExecuteHealthCheck issues an explain request, the cheapest SRU operation.
func (a *Adapter) ExecuteHealthCheck(ctx context.Context) error {
	return a.Ping(ctx, a.BaseURL()+"?version=1.1&operation=explain")
}

// recordHoldings extracts one holding per item field. Records with no
// item fields still prove the system owns the title, so they yield a
// single system-level holding with unknown status.
func (a *Adapter) recordHoldings(rec *marcRecord, isbn13 string) []domain.BookHolding {
	bibCall := rec.subfield("082", "a")
	if bibCall == "" {
		bibCall = rec.subfield("050", "a")
	}

	var holdings []domain.BookHolding
	for i := range rec.DataFields {
		field := &rec.DataFields[i]
		if field.Tag != a.itemTag {
			continue
		}
		holdings = append(holdings, a.itemHolding(field, isbn13))
	}

	if len(holdings) == 0 {
		h := domain.BookHolding{
			ISBN:         isbn13,
			SystemID:     a.SystemID(),
			SystemName:   a.SystemName(),
			BranchID:     a.SystemID(),
			BranchName:   a.SystemName(),
			MaterialType: domain.MaterialBook,
			Status:       domain.StatusUnknown,
			RawStatus:    "Holdings information unavailable",
			CatalogURL:   a.CatalogURL(),
		}
		if bibCall != "" {
			call := bibCall
			h.CallNumber = &call
		}
		h.Fingerprint = a.Fingerprint(isbn13, a.SystemID(), bibCall, "")
		holdings = append(holdings, h)
	}
	return holdings
}

// Koha 952 subfields: $a home branch, $b holding branch, $o call
// number, $8 collection code, $7 not-for-loan flag, $q due date,
// $y item type, $p barcode.
func (a *Adapter) itemHolding(field *marcDataField, isbn13 string) domain.BookHolding {
	branchCode := field.subfield("b")
	if branchCode == "" {
		branchCode = field.subfield("a")
	}

	h := domain.BookHolding{
		ISBN:       isbn13,
		SystemID:   a.SystemID(),
		SystemName: a.SystemName(),
		Collection: field.subfield("8"),
		CatalogURL: a.CatalogURL(),
	}

	if branch, ok := a.system.BranchByCode(branchCode); ok {
		h.BranchID = branch.ID
		h.BranchName = branch.Name
	} else {
		h.BranchID = domain.BuildFingerprint(a.SystemID(), branchCode)
		h.BranchName = branchCode
		if h.BranchName == "" {
			h.BranchName = "Unknown"
		}
	}

	if call := field.subfield("o"); call != "" {
		h.CallNumber = &call
	}

	h.MaterialType = catalog.NormalizeMaterial(field.subfield("y"))
	if h.MaterialType == domain.MaterialUnknown {
		h.MaterialType = domain.MaterialBook
	}

	notForLoan := field.subfield("7")
	dueDate := field.subfield("q")
	switch {
	case dueDate != "":
		h.Status = domain.StatusCheckedOut
		h.RawStatus = "Due " + dueDate
		h.DueDate = catalog.NormalizeDueDate(dueDate)
	case notForLoan != "" && notForLoan != "0":
		h.Status = domain.StatusUnknown
		h.RawStatus = "Not for loan (" + notForLoan + ")"
	default:
		h.Status = domain.StatusAvailable
		h.RawStatus = "Available"
	}

	copyKey := field.subfield("p")
	callNumber := ""
	if h.CallNumber != nil {
		callNumber = *h.CallNumber
	}
	h.Fingerprint = a.Fingerprint(isbn13, h.BranchName, callNumber, copyKey)
	return h
}

// searchRetrieveResponse decodes the SRU envelope. Every repeatable
// element is declared as a slice so single-record and multi-record
// responses decode the same way.
type searchRetrieveResponse struct {
	XMLName      xml.Name    `xml:"searchRetrieveResponse"`
	NumRecords   int         `xml:"numberOfRecords"`
	Records      []sruRecord `xml:"records>record"`
	Diagnostics  []string    `xml:"diagnostics>diagnostic>message"`
	EchoedQuery  string      `xml:"echoedSearchRetrieveRequest>query"`
	ResultSetTTL int         `xml:"resultSetIdleTime"`
}

type sruRecord struct {
	Schema string        `xml:"recordSchema"`
	Data   sruRecordData `xml:"recordData"`
}

type sruRecordData struct {
	Record marcRecord `xml:"record"`
}

type marcRecord struct {
	Leader        string           `xml:"leader"`
	ControlFields []marcControl    `xml:"controlfield"`
	DataFields    []marcDataField  `xml:"datafield"`
}

type marcControl struct {
	Tag   string `xml:"tag,attr"`
	Value string `xml:",chardata"`
}

type marcDataField struct {
	Tag       string         `xml:"tag,attr"`
	Ind1      string         `xml:"ind1,attr"`
	Ind2      string         `xml:"ind2,attr"`
	Subfields []marcSubfield `xml:"subfield"`
}

type marcSubfield struct {
	Code  string `xml:"code,attr"`
	Value string `xml:",chardata"`
}

// subfield returns the first occurrence of code within the field.
func (f *marcDataField) subfield(code string) string {
	for _, sf := range f.Subfields {
		if sf.Code == code {
			return strings.TrimSpace(sf.Value)
		}
	}
	return ""
}

// subfield returns the first tag/code value across the record's fields.
func (r *marcRecord) subfield(tag, code string) string {
	for i := range r.DataFields {
		if r.DataFields[i].Tag == tag {
			if v := r.DataFields[i].subfield(code); v != "" {
				return v
			}
		}
	}
	return ""
}
