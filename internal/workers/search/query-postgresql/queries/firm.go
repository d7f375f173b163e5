// internal/workers/search/query-postgresql/queries/firm.go
package queries

import (
	"context"
	"sort"
	"time"

	"ria-search/internal/models"
)

// FirmView is a profile with the display fields workflow forms render.
type FirmView struct {
	models.Firm
	AUMDisplay string `json:"aumDisplay,omitempty"`
	HasVC      bool   `json:"hasVentureCapital"`
}

func newFirmView(f models.Firm) FirmView {
	v := FirmView{Firm: f, HasVC: f.VCActivity > 0}
	if f.AUM != nil {
		v.AUMDisplay = models.FormatAUM(*f.AUM)
	}
	return v
}

func FirmProfile(ctx context.Context, src Source, params Params) (interface{}, int, int64, error) {
	if params.CRD <= 0 {
		return nil, 0, 0, ErrMissingParam
	}

	start := time.Now()
	firm, err := src.Firm(ctx, params.CRD)
	if err != nil {
		return nil, 0, 0, err
	}
	return newFirmView(firm), 1, time.Since(start).Milliseconds(), nil
}

// FirmProfiles skips CRDs the store does not know and keeps the caller's
// order for the rest.
func FirmProfiles(ctx context.Context, src Source, params Params) (interface{}, int, int64, error) {
	if len(params.CRDs) == 0 {
		return nil, 0, 0, ErrMissingParam
	}

	start := time.Now()
	firms, err := src.AttributeLookup(ctx, params.CRDs)
	if err != nil {
		return nil, 0, 0, err
	}

	seen := make(map[int64]bool, len(params.CRDs))
	results := make([]FirmView, 0, len(firms))
	for _, crd := range params.CRDs {
		f, ok := firms[crd]
		if !ok || seen[crd] {
			continue
		}
		seen[crd] = true
		results = append(results, newFirmView(f))
	}
	return results, len(results), time.Since(start).Milliseconds(), nil
}

func FirmFunds(ctx context.Context, src Source, params Params) (interface{}, int, int64, error) {
	if params.CRD <= 0 {
		return nil, 0, 0, ErrMissingParam
	}

	start := time.Now()
	funds, err := src.Funds(ctx, params.CRD)
	if err != nil {
		return nil, 0, 0, err
	}

	byType := make(map[string]int)
	for _, f := range funds {
		byType[models.FundTypeOf(f.FundType)]++
	}
	types := make([]string, 0, len(byType))
	for ft := range byType {
		types = append(types, ft)
	}
	sort.Strings(types)

	result := map[string]interface{}{
		"crd":        params.CRD,
		"funds":      funds,
		"fundTypes":  types,
		"byType":     byType,
		"vcActivity": models.VCActivity(funds),
	}
	return result, len(funds), time.Since(start).Milliseconds(), nil
}

func FirmNarrative(ctx context.Context, src Source, params Params) (interface{}, int, int64, error) {
	if params.CRD <= 0 {
		return nil, 0, 0, ErrMissingParam
	}

	start := time.Now()
	narratives, err := src.Narratives(ctx, params.CRD)
	if err != nil {
		return nil, 0, 0, err
	}

	texts := make([]string, 0, len(narratives))
	for _, n := range narratives {
		if n.Text != "" {
			texts = append(texts, n.Text)
		}
	}
	result := map[string]interface{}{
		"crd":        params.CRD,
		"narratives": texts,
	}
	return result, len(texts), time.Since(start).Milliseconds(), nil
}
