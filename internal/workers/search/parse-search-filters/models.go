// internal/workers/search/parse-search-filters/models.go
package parsesearchfilters

import "ria-search/internal/models"

// Input is loosely typed: values arrive from forms and chat intents as
// strings, numbers or lists.
type Input struct {
	Query      string                 `json:"query"`
	RawFilters map[string]interface{} `json:"rawFilters"`
}

type Output struct {
	SearchRequest models.SearchRequest `json:"searchRequest"`
	Pagination    Pagination           `json:"pagination"`
}

type Pagination struct {
	Page int `json:"page"`
	Size int `json:"size"`
}
