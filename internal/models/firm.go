// internal/models/firm.go
package models

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// EmbeddingDimension is the fixed narrative embedding width of the index.
const EmbeddingDimension = 768

var (
	ErrEmbeddingDimension = errors.New("embedding has wrong dimensionality")
	ErrEmbeddingNonFinite = errors.New("embedding contains NaN or Inf")
)

// Firm is one registered investment adviser, keyed by its CRD number.
// AUM is nil when unknown; it is never negative.
type Firm struct {
	CRD                int64    `json:"crd"`
	Name               string   `json:"name"`
	City               string   `json:"city"`
	State              string   `json:"state"`
	AUM                *float64 `json:"aum,omitempty"`
	PrivateFundCount   int      `json:"privateFundCount"`
	PrivateFundAUM     *float64 `json:"privateFundAum,omitempty"`
	ControlPersonCount int      `json:"controlPersonCount"`
	VCActivity         int      `json:"vcActivity"`
	FundTypes          []string `json:"fundTypes,omitempty"`
}

// Narrative is the free-text description of a firm and its embedding.
type Narrative struct {
	CRD       int64     `json:"crd"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// Fund is a private fund reported by a firm.
type Fund struct {
	CRD             int64    `json:"crd"`
	Name            string   `json:"name"`
	FundType        string   `json:"fundType"`
	GrossAssetValue *float64 `json:"grossAssetValue,omitempty"`
}

const (
	FundTypeVentureCapital = "Venture Capital"
	FundTypePrivateEquity  = "Private Equity"
	FundTypeHedgeFund      = "Hedge Fund"
	FundTypeRealEstate     = "Real Estate"
	FundTypeOther          = "Other"
)

var fundTypeAliases = map[string]string{
	"venture capital":        FundTypeVentureCapital,
	"venture capital fund":   FundTypeVentureCapital,
	"vc":                     FundTypeVentureCapital,
	"private equity":         FundTypePrivateEquity,
	"private equity fund":    FundTypePrivateEquity,
	"pe":                     FundTypePrivateEquity,
	"hedge fund":             FundTypeHedgeFund,
	"hedge":                  FundTypeHedgeFund,
	"real estate":            FundTypeRealEstate,
	"real estate fund":       FundTypeRealEstate,
	"other":                  FundTypeOther,
	"other private fund":     FundTypeOther,
	"securitized asset":      FundTypeOther,
	"securitized asset fund": FundTypeOther,
	"liquidity fund":         FundTypeOther,
}

// CanonicalFundType maps a user or filing spelling onto a known fund type.
func CanonicalFundType(s string) (string, bool) {
	ft, ok := fundTypeAliases[strings.ToLower(strings.TrimSpace(s))]
	return ft, ok
}

// FundTypeOf maps a filing spelling onto its canonical type. Unknown and
// empty spellings are Other.
func FundTypeOf(s string) string {
	if ft, ok := CanonicalFundType(s); ok {
		return ft
	}
	return FundTypeOther
}

// CanonicalFundTypes returns the sorted distinct canonical types of the
// given filing spellings.
func CanonicalFundTypes(spellings []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range spellings {
		ft := FundTypeOf(s)
		if !seen[ft] {
			seen[ft] = true
			out = append(out, ft)
		}
	}
	sort.Strings(out)
	return out
}

// FundTypeSpellings lists the lower-case spellings that map onto the given
// canonical types, sorted.
func FundTypeSpellings(canonical ...string) []string {
	want := make(map[string]bool, len(canonical))
	for _, c := range canonical {
		want[c] = true
	}
	var out []string
	for spelling, ft := range fundTypeAliases {
		if want[ft] {
			out = append(out, spelling)
		}
	}
	sort.Strings(out)
	return out
}

// IsPrivateCapital reports whether the fund type counts towards VC/PE activity.
func IsPrivateCapital(fundType string) bool {
	ft, ok := CanonicalFundType(fundType)
	return ok && (ft == FundTypeVentureCapital || ft == FundTypePrivateEquity)
}

// VCActivity counts a firm's venture capital and private equity funds.
func VCActivity(funds []Fund) int {
	n := 0
	for _, f := range funds {
		if IsPrivateCapital(f.FundType) {
			n++
		}
	}
	return n
}

// NormalizeState upper-cases and trims a two-letter state code.
func NormalizeState(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidateEmbedding rejects vectors that are not exactly dim wide or carry
// non-finite components.
func ValidateEmbedding(vec []float32, dim int) error {
	if len(vec) != dim {
		return fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingDimension, dim, len(vec))
	}
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrEmbeddingNonFinite
		}
	}
	return nil
}

// BuildNarrative renders the descriptive text that is embedded for a firm.
func BuildNarrative(f Firm, funds []Fund) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is a registered investment adviser", f.Name)
	if f.City != "" && f.State != "" {
		fmt.Fprintf(&b, " located in %s, %s", f.City, f.State)
	}
	b.WriteString(".")
	if f.AUM != nil {
		fmt.Fprintf(&b, " The firm manages %s in assets.", FormatAUM(*f.AUM))
	}

	if len(funds) > 0 {
		counts := make(map[string]int)
		var order []string
		for _, fund := range funds {
			ft := FundTypeOf(fund.FundType)
			if counts[ft] == 0 {
				order = append(order, ft)
			}
			counts[ft]++
		}
		parts := make([]string, 0, len(order))
		for _, ft := range order {
			parts = append(parts, fmt.Sprintf("%d %s", counts[ft], strings.ToLower(ft)))
		}
		fmt.Fprintf(&b, " It advises %d private funds (%s).", len(funds), strings.Join(parts, ", "))
	}
	if VCActivity(funds) > 0 {
		b.WriteString(" The firm is active in venture capital and private equity.")
	}
	return b.String()
}

// FormatAUM renders a dollar amount the way narratives and logs show it.
func FormatAUM(aum float64) string {
	switch {
	case aum >= 1e12:
		return fmt.Sprintf("$%.2f trillion", aum/1e12)
	case aum >= 1e9:
		return fmt.Sprintf("$%.2f billion", aum/1e9)
	case aum >= 1e6:
		return fmt.Sprintf("$%.2f million", aum/1e6)
	default:
		return fmt.Sprintf("$%.0f", aum)
	}
}
