package catalog

import (
	"strings"
	"time"

	"github.com/arguspanoptes/argus-server/internal/domain"
)

// statusPhrases maps lowered upstream status text to the closed
// vocabulary. Upstreams are wildly inconsistent; this table collects the
// phrasings seen across Koha, Sierra, Polaris, Enterprise, Apollo,
// Aspen, Atriuum, Spydus, and TLC catalogs.
var statusPhrases = map[string]domain.HoldingStatus{
	"available":            domain.StatusAvailable,
	"available - on shelf": domain.StatusAvailable,
	"on shelf":             domain.StatusAvailable,
	"check shelf":          domain.StatusAvailable,
	"check shelves":        domain.StatusAvailable,
	"in":                   domain.StatusAvailable,
	"in library":           domain.StatusAvailable,
	"on shelves now":       domain.StatusAvailable,
	"not checked out":      domain.StatusAvailable,
	"checked in":           domain.StatusAvailable,

	"checked out": domain.StatusCheckedOut,
	"on loan":     domain.StatusCheckedOut,
	"charged":     domain.StatusCheckedOut,
	"issued":      domain.StatusCheckedOut,
	"out":         domain.StatusCheckedOut,

	"in transit":                           domain.StatusInTransit,
	"transit":                              domain.StatusInTransit,
	"in transit between library locations": domain.StatusInTransit,

	"on hold":         domain.StatusOnHold,
	"on holdshelf":    domain.StatusOnHold,
	"on hold shelf":   domain.StatusOnHold,
	"hold":            domain.StatusOnHold,
	"held":            domain.StatusOnHold,
	"awaiting pickup": domain.StatusOnHold,

	"on order":        domain.StatusOnOrder,
	"ordered":         domain.StatusOnOrder,
	"in acquisitions": domain.StatusOnOrder,

	"in processing":   domain.StatusInProcessing,
	"in process":      domain.StatusInProcessing,
	"processing":      domain.StatusInProcessing,
	"being cataloged": domain.StatusInProcessing,
	"cataloging":      domain.StatusInProcessing,

	"missing":         domain.StatusMissing,
	"lost":            domain.StatusMissing,
	"lost and paid":   domain.StatusMissing,
	"claims returned": domain.StatusMissing,
	"withdrawn":       domain.StatusMissing,
	"billed":          domain.StatusMissing,
}

// NormalizeStatus maps raw upstream status text to the closed status
// vocabulary. Matching is case-insensitive on the trimmed string; a
// "due ..." prefix means the item is out. Unrecognized text maps to
// unknown — callers keep the verbatim text in RawStatus.
func NormalizeStatus(raw string) domain.HoldingStatus {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return domain.StatusUnknown
	}
	if status, ok := statusPhrases[s]; ok {
		return status
	}
	if strings.HasPrefix(s, "due ") || s == "due" {
		return domain.StatusCheckedOut
	}
	return domain.StatusUnknown
}

// materialPhrases maps lowered material-type text to the closed
// vocabulary. Adapters layer vendor code maps (MARC item types, Sierra
// material codes) on top of this generic table.
var materialPhrases = map[string]domain.MaterialType{
	"book":          domain.MaterialBook,
	"bk":            domain.MaterialBook,
	"text":          domain.MaterialBook,
	"print":         domain.MaterialBook,
	"regular print": domain.MaterialBook,
	"hardcover":     domain.MaterialBook,
	"paperback":     domain.MaterialBook,

	"large print": domain.MaterialLargePrint,
	"large type":  domain.MaterialLargePrint,
	"large-print": domain.MaterialLargePrint,
	"lp":          domain.MaterialLargePrint,

	"audiobook":       domain.MaterialAudiobookCD,
	"audio book":      domain.MaterialAudiobookCD,
	"audiobook cd":    domain.MaterialAudiobookCD,
	"audio cd":        domain.MaterialAudiobookCD,
	"book on cd":      domain.MaterialAudiobookCD,
	"cd audiobook":    domain.MaterialAudiobookCD,
	"sound recording": domain.MaterialAudiobookCD,

	"ebook":               domain.MaterialEbook,
	"e-book":              domain.MaterialEbook,
	"electronic book":     domain.MaterialEbook,
	"electronic resource": domain.MaterialEbook,
	"online":              domain.MaterialEbook,

	"dvd":       domain.MaterialDVD,
	"dvd-video": domain.MaterialDVD,
	"videodisc": domain.MaterialDVD,
	"video":     domain.MaterialDVD,
	"blu-ray":   domain.MaterialDVD,
}

// NormalizeMaterial maps raw material-type text to the closed material
// vocabulary. Unrecognized text maps to unknown.
func NormalizeMaterial(raw string) domain.MaterialType {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return domain.MaterialUnknown
	}
	if mat, ok := materialPhrases[s]; ok {
		return mat
	}
	return domain.MaterialUnknown
}

// dueDateFormats are tried in order. US month-first forms come before
// anything ambiguous because nearly all federated catalogs are US
// systems.
var dueDateFormats = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// NormalizeDueDate parses upstream due-date text ("Due 03/15/2026",
// "2026-03-15") into an ISO 8601 date string. Returns nil when no date
// can be recognized; the verbatim text survives in RawStatus.
func NormalizeDueDate(raw string) *string {
	s := strings.TrimSpace(raw)
	if len(s) >= 4 && strings.EqualFold(s[:4], "due ") {
		s = strings.TrimSpace(s[4:])
	}
	if s == "" {
		return nil
	}
	for _, layout := range dueDateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			iso := t.Format("2006-01-02")
			return &iso
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		iso := t.Format("2006-01-02")
		return &iso
	}
	return nil
}
