package index

import (
	"cmp"
	"context"
	"log/slog"
	"slices"

	"github.com/poiesic/repokeeper/permission"
	"github.com/poiesic/repokeeper/storage"
)

// DefaultLimit is used when Search is called with a limit <= 0.
const DefaultLimit = 20

// Hit is one search result.
type Hit struct {
	Document storage.Document
	Score    int
}

// Searcher answers text queries against the index.
type Searcher struct {
	index  storage.IndexStore
	oracle permission.Oracle
	logger *slog.Logger
}

// NewSearcher creates a Searcher. Results are restricted to documents the
// subject in the query context is permitted to see.
func NewSearcher(index storage.IndexStore, oracle permission.Oracle, logger *slog.Logger) (*Searcher, error) {
	if index == nil {
		return nil, ErrIndexStoreRequired
	}
	if oracle == nil {
		return nil, ErrOracleRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{index: index, oracle: oracle, logger: logger}, nil
}

// Search returns the documents of docType containing every query word, best
// match first.
func (s *Searcher) Search(ctx context.Context, docType, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	words := tokenize(query)
	if len(words) == 0 {
		return []Hit{}, nil
	}

	var hits []Hit
	err := s.index.ForEach(ctx, docType, func(doc storage.Document) bool {
		n := score(doc.Fields, words)
		if n == 0 {
			return true
		}
		if !s.oracle.IsPermitted(ctx, doc.Permission) {
			return true
		}
		hits = append(hits, Hit{Document: doc, Score: n})
		return true
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(hits, func(a, b Hit) int {
		return cmp.Or(cmp.Compare(b.Score, a.Score), cmp.Compare(a.Document.ID, b.Document.ID))
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	s.logger.Debug("index search", "type", docType, "query", query, "hits", len(hits))
	if hits == nil {
		hits = []Hit{}
	}
	return hits, nil
}
