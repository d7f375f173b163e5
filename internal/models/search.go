// internal/models/search.go
package models

import "strings"

// SearchFilters are the structured predicates applied during candidate
// selection by both retrieval paths.
type SearchFilters struct {
	State         string   `json:"state,omitempty"`
	City          string   `json:"city,omitempty"`
	MinAUM        *float64 `json:"minAum,omitempty"`
	MinVCActivity *int     `json:"minVcActivity,omitempty"`
	FundType      string   `json:"fundType,omitempty"`
	Threshold     *float64 `json:"threshold,omitempty"`
}

// IsEmpty reports whether no structured predicate is set. Threshold is a
// semantic tuning knob, not a predicate.
func (f SearchFilters) IsEmpty() bool {
	return f.State == "" && f.City == "" && f.MinAUM == nil &&
		f.MinVCActivity == nil && f.FundType == ""
}

// Matches evaluates every structured predicate against a firm. Backends that
// cannot push predicates into a query use it during candidate selection.
func (f SearchFilters) Matches(firm Firm) bool {
	if f.State != "" && !strings.EqualFold(firm.State, f.State) {
		return false
	}
	if f.City != "" && !strings.Contains(strings.ToLower(firm.City), strings.ToLower(f.City)) {
		return false
	}
	if f.MinAUM != nil && (firm.AUM == nil || *firm.AUM < *f.MinAUM) {
		return false
	}
	if f.MinVCActivity != nil && firm.VCActivity < *f.MinVCActivity {
		return false
	}
	if f.FundType != "" {
		want := FundTypeOf(f.FundType)
		found := false
		for _, ft := range firm.FundTypes {
			if FundTypeOf(ft) == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// SearchRequest is one hybrid search call. Embedding is nil when no query
// vector is available.
type SearchRequest struct {
	Query     string        `json:"query"`
	Embedding []float32     `json:"embedding,omitempty"`
	Filters   SearchFilters `json:"filters"`
	Limit     int           `json:"limit"`
	Offset    int           `json:"offset"`
}

// Candidate is a single row produced by one retrieval path.
type Candidate struct {
	CRD   int64    `json:"crd"`
	Score float64  `json:"score"`
	AUM   *float64 `json:"aum,omitempty"`
}

// Result is one ranked entry of a search page. Component scores are the
// normalized per-path scores; nil means the path did not match the firm.
type Result struct {
	CRD           int64    `json:"crd"`
	CombinedScore float64  `json:"combinedScore"`
	SemanticScore *float64 `json:"semanticScore,omitempty"`
	TextScore     *float64 `json:"textScore,omitempty"`
	AUM           *float64 `json:"aum,omitempty"`
	Firm          *Firm    `json:"firm,omitempty"`
}

// SearchResponse is a ranked page. Degraded lists retrieval paths that were
// skipped or failed while the request still succeeded.
type SearchResponse struct {
	Results    []Result `json:"results"`
	Candidates int      `json:"candidates"`
	Limit      int      `json:"limit"`
	Offset     int      `json:"offset"`
	Degraded   []string `json:"degraded,omitempty"`
	TookMs     int64    `json:"tookMs"`
}
