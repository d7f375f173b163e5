// internal/workers/search/hybrid-search/models.go
package hybridsearch

import (
	"encoding/json"

	"ria-search/internal/models"
)

// Input carries the search payload under a single process variable so the
// rest of the process scope does not leak into schema validation.
type Input struct {
	SearchRequest json.RawMessage `json:"searchRequest"`
}

type Output struct {
	SearchResponse *models.SearchResponse `json:"searchResponse"`
	ResultCount    int                    `json:"resultCount"`
	Degraded       bool                   `json:"degraded"`
}
