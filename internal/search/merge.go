package search

import (
	"sort"

	"ria-search/internal/models"
)

// Weights scales each path's normalized score in the combined score.
type Weights struct {
	Semantic float64
	Text     float64
}

// normalize maps a path's scores into [0,1] by dividing by the set's maximum.
// A set whose maximum is not positive normalizes to all zeros.
func normalize(candidates []models.Candidate) map[int64]float64 {
	out := make(map[int64]float64, len(candidates))
	top := 0.0
	for _, c := range candidates {
		if c.Score > top {
			top = c.Score
		}
	}
	for _, c := range candidates {
		v := 0.0
		if top > 0 && c.Score > 0 {
			v = c.Score / top
		}
		// a path may return the same firm twice (e.g. several narratives); keep the best
		if prev, ok := out[c.CRD]; !ok || v > prev {
			out[c.CRD] = v
		}
	}
	return out
}

// Merge unions the semantic and lexical candidate sets by CRD and ranks them.
// A firm found by both paths scores w_sem*sim + w_text*rank; a firm found by
// one path scores that path's normalized component alone, unweighted, so it is
// not penalized for missing from the other set. The order is total:
// combined score desc, AUM desc with unknown AUM last, CRD asc.
func Merge(semantic, lexical []models.Candidate, w Weights) []models.Result {
	semScores := normalize(semantic)
	textScores := normalize(lexical)

	aum := make(map[int64]*float64, len(semantic)+len(lexical))
	order := make([]int64, 0, len(semantic)+len(lexical))
	seen := make(map[int64]bool, len(semantic)+len(lexical))
	for _, set := range [][]models.Candidate{semantic, lexical} {
		for _, c := range set {
			if aum[c.CRD] == nil && c.AUM != nil {
				aum[c.CRD] = c.AUM
			}
			if !seen[c.CRD] {
				seen[c.CRD] = true
				order = append(order, c.CRD)
			}
		}
	}

	results := make([]models.Result, 0, len(order))
	for _, crd := range order {
		r := models.Result{CRD: crd, AUM: aum[crd]}
		s, inSem := semScores[crd]
		t, inText := textScores[crd]
		switch {
		case inSem && inText:
			r.CombinedScore = w.Semantic*s + w.Text*t
		case inSem:
			r.CombinedScore = s
		default:
			r.CombinedScore = t
		}
		if inSem {
			r.SemanticScore = &s
		}
		if inText {
			r.TextScore = &t
		}
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return less(results[i], results[j])
	})
	return results
}

func less(a, b models.Result) bool {
	if a.CombinedScore != b.CombinedScore {
		return a.CombinedScore > b.CombinedScore
	}
	switch {
	case a.AUM != nil && b.AUM != nil && *a.AUM != *b.AUM:
		return *a.AUM > *b.AUM
	case a.AUM != nil && b.AUM == nil:
		return true
	case a.AUM == nil && b.AUM != nil:
		return false
	}
	return a.CRD < b.CRD
}

// Page slices an already ranked list. Out-of-range offsets yield an empty page.
func Page(results []models.Result, offset, limit int) []models.Result {
	if offset >= len(results) || limit <= 0 {
		return []models.Result{}
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}
	page := make([]models.Result, end-offset)
	copy(page, results[offset:end])
	return page
}
