// Package search maintains the in-memory Bleve index over configured
// library systems that backs the catalog listing's free-text filter.
// The registry is immutable after startup, so the index is built once
// and never updated.
package search

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/arguspanoptes/argus-server/internal/domain"
)

// SystemIndex answers free-text queries over library systems. All
// methods are safe for concurrent use.
type SystemIndex struct {
	mu    sync.RWMutex
	index bleve.Index
}

// systemDocument is the indexed shape of one library system.
type systemDocument struct {
	Name     string   `json:"name"`
	Vendor   string   `json:"vendor"`
	Region   string   `json:"region"`
	Cities   []string `json:"cities"`
	Branches []string `json:"branches"`
}

// NewSystemIndex builds an in-memory index over the given systems.
func NewSystemIndex(systems []*domain.LibrarySystem) (*SystemIndex, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}

	batch := index.NewBatch()
	for _, sys := range systems {
		doc := systemDocument{
			Name:   sys.Name,
			Vendor: sys.Vendor,
			Region: sys.Region,
		}
		for _, b := range sys.Branches {
			doc.Branches = append(doc.Branches, b.Name)
			if b.City != "" {
				doc.Cities = append(doc.Cities, b.City)
			}
		}
		if err := batch.Index(sys.ID, doc); err != nil {
			return nil, fmt.Errorf("index %s: %w", sys.ID, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}
	return &SystemIndex{index: index}, nil
}

// Close releases the index.
func (s *SystemIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// Count returns the number of indexed systems.
func (s *SystemIndex) Count() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

// Query returns the ids of systems matching q, best first. Name
// matches outrank vendor, region, city, and branch matches.
func (s *SystemIndex) Query(ctx context.Context, q string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}

	name := bleve.NewMatchQuery(q)
	name.SetField("name")
	name.SetBoost(2.0)

	namePrefix := bleve.NewPrefixQuery(strings.ToLower(q))
	namePrefix.SetField("name")
	namePrefix.SetBoost(1.5)

	rest := make([]query.Query, 0, 4)
	for _, field := range []string{"vendor", "region", "cities", "branches"} {
		mq := bleve.NewMatchQuery(q)
		mq.SetField(field)
		rest = append(rest, mq)
	}

	full := bleve.NewDisjunctionQuery(append([]query.Query{name, namePrefix}, rest...)...)
	req := bleve.NewSearchRequestOptions(full, 50, 0, false)

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", q, err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// buildIndexMapping analyzes names and branch names as English text
// and keeps vendor/region/city as exact keywords.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	nameField := bleve.NewTextFieldMapping()
	nameField.Analyzer = en.AnalyzerName
	nameField.Store = true
	docMapping.AddFieldMappingsAt("name", nameField)

	branchField := bleve.NewTextFieldMapping()
	branchField.Analyzer = en.AnalyzerName
	docMapping.AddFieldMappingsAt("branches", branchField)

	for _, field := range []string{"vendor", "region", "cities"} {
		kw := bleve.NewTextFieldMapping()
		kw.Analyzer = keyword.Name
		docMapping.AddFieldMappingsAt(field, kw)
	}

	indexMapping.AddDocumentMapping("_default", docMapping)
	return indexMapping
}
