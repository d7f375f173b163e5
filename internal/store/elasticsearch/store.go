// Package elasticsearch serves the lexical path from a firm profile index.
// Documents carry crd, name, city, state, aum, vc_activity and fund_types;
// fund_types holds canonical type names such as "Venture Capital".
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	apperrors "ria-search/internal/common/errors"
	"ria-search/internal/common/logger"
	"ria-search/internal/models"
)

type Store struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func New(client *elasticsearch.Client, index string, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Store{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"store": "elasticsearch", "index": index}),
	}
}

type searchResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Hits []struct {
			Score  *float64 `json:"_score"`
			Source struct {
				CRD int64    `json:"crd"`
				AUM *float64 `json:"aum"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// TextSearch runs a filtered multi_match over name, city and state.
func (s *Store) TextSearch(ctx context.Context, query string, filters models.SearchFilters, limit int) ([]models.Candidate, error) {
	if len(models.QueryTerms(query)) == 0 {
		return []models.Candidate{}, nil
	}

	body, err := json.Marshal(buildTextQuery(query, filters, limit))
	if err != nil {
		return nil, fmt.Errorf("text search: encode query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(body),
	}

	start := time.Now()
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, s.wrap(ctx, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, apperrors.NewSearchQueryFailedError("elasticsearch", fmt.Errorf("text search: %s", res.String()))
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("text search: decode response: %w", err)
	}

	out := make([]models.Candidate, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		c := models.Candidate{CRD: hit.Source.CRD, AUM: hit.Source.AUM}
		if hit.Score != nil {
			c.Score = *hit.Score
		}
		out = append(out, c)
	}

	s.logger.Debug("text search completed", map[string]interface{}{
		"hits":       len(out),
		"tookMs":     r.Took,
		"durationMs": time.Since(start).Milliseconds(),
	})
	return out, nil
}

func (s *Store) wrap(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("text search: %w", ctxErr)
	}
	return fmt.Errorf("text search: %w", err)
}

// buildTextQuery renders the bool query: the keyword clause scores, every
// structured filter restricts without scoring.
func buildTextQuery(query string, f models.SearchFilters, limit int) map[string]interface{} {
	filterClauses := []interface{}{}

	if f.State != "" {
		filterClauses = append(filterClauses, map[string]interface{}{
			"term": map[string]interface{}{"state": models.NormalizeState(f.State)},
		})
	}
	if f.City != "" {
		filterClauses = append(filterClauses, map[string]interface{}{
			"wildcard": map[string]interface{}{
				"city": map[string]interface{}{
					"value":            "*" + escapeWildcard(f.City) + "*",
					"case_insensitive": true,
				},
			},
		})
	}
	if f.MinAUM != nil {
		filterClauses = append(filterClauses, map[string]interface{}{
			"range": map[string]interface{}{"aum": map[string]interface{}{"gte": *f.MinAUM}},
		})
	}
	if f.MinVCActivity != nil {
		filterClauses = append(filterClauses, map[string]interface{}{
			"range": map[string]interface{}{"vc_activity": map[string]interface{}{"gte": *f.MinVCActivity}},
		})
	}
	if f.FundType != "" {
		filterClauses = append(filterClauses, map[string]interface{}{
			"term": map[string]interface{}{"fund_types": f.FundType},
		})
	}

	return map[string]interface{}{
		"size":         limit,
		"track_scores": true,
		"_source":      []string{"crd", "aum"},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					map[string]interface{}{
						"multi_match": map[string]interface{}{
							"query":    query,
							"fields":   []string{"name^3", "city", "state"},
							"type":     "best_fields",
							"operator": "or",
						},
					},
				},
				"filter": filterClauses,
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"_score": map[string]interface{}{"order": "desc"}},
			map[string]interface{}{"aum": map[string]interface{}{"order": "desc", "missing": "_last"}},
			map[string]interface{}{"crd": map[string]interface{}{"order": "asc"}},
		},
	}
}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

func escapeWildcard(s string) string {
	return wildcardEscaper.Replace(s)
}
