package store

import (
	"context"
	"errors"
	"time"

	"github.com/arguspanoptes/argus-server/internal/domain"
)

const searchCachePrefix = "search:isbn:"

// CachedSearch returns the stored result for a normalized ISBN-13 when
// it is younger than ttl. A miss and a stale entry both report
// ok=false; stale entries stay in place until the next write
// overwrites them.
func (s *Store) CachedSearch(ctx context.Context, isbn13 string, ttl time.Duration) (*domain.SearchResult, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var result domain.SearchResult
	err := s.get([]byte(searchCachePrefix+isbn13), &result)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if time.Since(result.CompletedAt) > ttl {
		return nil, false, nil
	}
	return &result, true, nil
}

// PutSearch stores a completed search keyed by its normalized ISBN-13,
// replacing any previous entry for the same book.
func (s *Store) PutSearch(ctx context.Context, result *domain.SearchResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.set([]byte(searchCachePrefix+result.NormalizedISBN13), result)
}
