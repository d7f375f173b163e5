package postgres

import (
	"strconv"
	"strings"

	"github.com/lib/pq"

	"ria-search/internal/models"
)

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

// filterClause renders the structured predicates against ria_profiles aliased
// as p. Arguments are appended after the ones already in args.
func filterClause(f models.SearchFilters, args []any) ([]string, []any) {
	var where []string

	if f.State != "" {
		args = append(args, models.NormalizeState(f.State))
		where = append(where, "p.state = "+placeholder(len(args)))
	}
	if f.City != "" {
		args = append(args, "%"+escapeLike(f.City)+"%")
		where = append(where, "p.city ILIKE "+placeholder(len(args)))
	}
	if f.MinAUM != nil {
		args = append(args, *f.MinAUM)
		where = append(where, "p.aum >= "+placeholder(len(args)))
	}
	if f.MinVCActivity != nil {
		args = append(args, *f.MinVCActivity)
		where = append(where, "p.vc_activity >= "+placeholder(len(args)))
	}
	if f.FundType != "" {
		where, args = fundTypeClause(models.FundTypeOf(f.FundType), where, args)
	}
	return where, args
}

// fundTypeClause matches funds by every filing spelling of the canonical type.
// Other covers any spelling that belongs to no named type, NULL included.
func fundTypeClause(canonical string, where []string, args []any) ([]string, []any) {
	spelled := "coalesce(lower(trim(f.fund_type)), '')"
	var match string
	if canonical == models.FundTypeOther {
		args = append(args, pq.StringArray(models.FundTypeSpellings(
			models.FundTypeVentureCapital, models.FundTypePrivateEquity,
			models.FundTypeHedgeFund, models.FundTypeRealEstate,
		)))
		match = spelled + " <> ALL(" + placeholder(len(args)) + ")"
	} else {
		args = append(args, pq.StringArray(models.FundTypeSpellings(canonical)))
		match = spelled + " = ANY(" + placeholder(len(args)) + ")"
	}
	where = append(where, `EXISTS (
			SELECT 1 FROM ria_private_funds f
			WHERE f.crd_number = p.crd_number AND `+match+`)`)
	return where, args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// tsQuery joins the distinct query terms into an OR tsquery. Terms are
// letters and digits only, so they need no quoting.
func tsQuery(query string) string {
	return strings.Join(models.QueryTerms(query), " | ")
}
