// internal/workers/search/query-postgresql/models.go
package querypostgresql

import "ria-search/internal/models"

type Input struct {
	QueryType string  `json:"queryType"`
	CRD       int64   `json:"crd,omitempty"`
	CRDs      []int64 `json:"crds,omitempty"`
}

type Output struct {
	Data               interface{} `json:"data"`
	RowCount           int         `json:"rowCount"`
	QueryExecutionTime int64       `json:"queryExecutionTime"` // milliseconds
}

type QueryType = models.QueryType
