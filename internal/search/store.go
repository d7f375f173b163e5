package search

import (
	"context"

	"ria-search/internal/models"
)

// VectorSearcher runs the filtered semantic path. Implementations must apply
// every predicate in filters while selecting candidates, return only rows
// whose similarity strictly exceeds threshold, and silently exclude rows with
// missing or malformed embeddings.
type VectorSearcher interface {
	VectorSearch(ctx context.Context, embedding []float32, threshold float64, filters models.SearchFilters, limit int) ([]models.Candidate, error)
}

// TextSearcher runs the filtered lexical path over name, city and state.
type TextSearcher interface {
	TextSearch(ctx context.Context, query string, filters models.SearchFilters, limit int) ([]models.Candidate, error)
}

// AttributeLooker loads firm attributes by CRD. Unknown CRDs are absent from
// the returned map.
type AttributeLooker interface {
	AttributeLookup(ctx context.Context, crds []int64) (map[int64]models.Firm, error)
}

// Store is the storage capability set the engine depends on.
type Store interface {
	VectorSearcher
	TextSearcher
	AttributeLooker
}

type composite struct {
	VectorSearcher
	TextSearcher
	AttributeLooker
}

// Compose builds a Store from independent backends, e.g. pgvector for the
// semantic path and Elasticsearch for the lexical one.
func Compose(vectors VectorSearcher, text TextSearcher, attributes AttributeLooker) Store {
	return composite{VectorSearcher: vectors, TextSearcher: text, AttributeLooker: attributes}
}
