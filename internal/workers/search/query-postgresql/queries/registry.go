// internal/workers/search/query-postgresql/queries/registry.go
package queries

import (
	"context"
	"errors"
	"fmt"

	"ria-search/internal/models"
)

var (
	ErrMissingParam     = errors.New("missing required parameter")
	ErrUnknownQueryType = errors.New("unknown query type")
)

// Source is the read side of the firm store.
type Source interface {
	Firm(ctx context.Context, crd int64) (models.Firm, error)
	AttributeLookup(ctx context.Context, crds []int64) (map[int64]models.Firm, error)
	Funds(ctx context.Context, crd int64) ([]models.Fund, error)
	Narratives(ctx context.Context, crd int64) ([]models.Narrative, error)
}

type Params struct {
	CRD  int64
	CRDs []int64
}

// QueryFunc returns: data, rowCount, executionTime (ms), error
type QueryFunc func(ctx context.Context, src Source, params Params) (interface{}, int, int64, error)

var Registry = map[models.QueryType]QueryFunc{
	models.QueryTypeFirmProfile:   FirmProfile,
	models.QueryTypeFirmProfiles:  FirmProfiles,
	models.QueryTypeFirmFunds:     FirmFunds,
	models.QueryTypeFirmNarrative: FirmNarrative,
}

func Execute(ctx context.Context, src Source, queryType models.QueryType, params Params) (interface{}, int, int64, error) {
	fn, exists := Registry[queryType]
	if !exists {
		return nil, 0, 0, fmt.Errorf("%w: %s", ErrUnknownQueryType, queryType)
	}
	return fn(ctx, src, params)
}
