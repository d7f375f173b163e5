// Package postgres implements the search store over the ria_profiles,
// narratives and ria_private_funds tables. Narrative embeddings live in a
// pgvector vector(768) column.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"ria-search/internal/common/logger"
	"ria-search/internal/models"
)

const defaultLanguage = "simple"

var ErrNotFound = errors.New("firm not found")

type Store struct {
	db       *sql.DB
	dim      int
	language string
	logger   logger.Logger
}

type Option func(*Store)

// WithLanguage sets the text search configuration used for both the document
// and the query, e.g. "simple" or "english".
func WithLanguage(lang string) Option {
	return func(s *Store) {
		if lang != "" {
			s.language = lang
		}
	}
}

func WithDimension(dim int) Option {
	return func(s *Store) {
		if dim > 0 {
			s.dim = dim
		}
	}
}

func New(db *sql.DB, log logger.Logger, opts ...Option) *Store {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	s := &Store{
		db:       db,
		dim:      models.EmbeddingDimension,
		language: defaultLanguage,
		logger:   log.WithFields(map[string]interface{}{"store": "postgres"}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VectorSearch pushes every filter into the statement that orders by cosine
// similarity. The distance is only computed for embeddings of the index
// width; NULL or wrongly sized rows get a NULL similarity and never qualify.
// A firm with several narratives is returned once, at its best similarity.
func (s *Store) VectorSearch(ctx context.Context, embedding []float32, threshold float64, filters models.SearchFilters, limit int) ([]models.Candidate, error) {
	args := []any{pgvector.NewVector(embedding), s.dim}
	where := []string{"n.embedding IS NOT NULL"}
	var extra []string
	extra, args = filterClause(filters, args)
	where = append(where, extra...)

	args = append(args, threshold)
	thresholdArg := placeholder(len(args))
	args = append(args, limit)

	query := `
		SELECT c.crd_number, c.similarity, c.aum
		FROM (
			SELECT p.crd_number, p.aum,
				1 - (CASE WHEN vector_dims(n.embedding) = $2 THEN n.embedding <=> $1 END) AS similarity
			FROM narratives n
			JOIN ria_profiles p ON p.crd_number = n.crd_number
			WHERE ` + strings.Join(where, " AND ") + `
		) c
		WHERE c.similarity > ` + thresholdArg + `
		ORDER BY c.similarity DESC, c.aum DESC NULLS LAST, c.crd_number
		LIMIT ` + placeholder(len(args))

	return s.candidates(ctx, "vector search", query, args)
}

// TextSearch matches any query term against name, city and state and ranks
// with ts_rank.
func (s *Store) TextSearch(ctx context.Context, query string, filters models.SearchFilters, limit int) ([]models.Candidate, error) {
	tsq := tsQuery(query)
	if tsq == "" {
		return []models.Candidate{}, nil
	}

	args := []any{s.language, tsq}
	where := []string{"d.document @@ to_tsquery($1::regconfig, $2)"}
	var extra []string
	extra, args = filterClause(filters, args)
	where = append(where, extra...)
	args = append(args, limit)

	stmt := `
		SELECT p.crd_number, ts_rank(d.document, to_tsquery($1::regconfig, $2)) AS rank, p.aum
		FROM ria_profiles p
		CROSS JOIN LATERAL (
			SELECT to_tsvector($1::regconfig,
				coalesce(p.legal_name, '') || ' ' || coalesce(p.city, '') || ' ' || coalesce(p.state, '')) AS document
		) d
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY rank DESC, p.aum DESC NULLS LAST, p.crd_number
		LIMIT ` + placeholder(len(args))

	return s.candidates(ctx, "text search", stmt, args)
}

func (s *Store) candidates(ctx context.Context, op, query string, args []any) ([]models.Candidate, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.wrap(ctx, op, err)
	}
	defer rows.Close()

	out := []models.Candidate{}
	seen := make(map[int64]bool)
	for rows.Next() {
		var (
			c   models.Candidate
			aum sql.NullFloat64
		)
		if err := rows.Scan(&c.CRD, &c.Score, &aum); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		if seen[c.CRD] {
			continue
		}
		seen[c.CRD] = true
		c.AUM = floatPtr(aum)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(ctx, op, err)
	}

	s.logger.Debug(op+" completed", map[string]interface{}{
		"rows":       len(out),
		"durationMs": time.Since(start).Milliseconds(),
	})
	return out, nil
}

const firmColumns = `
	p.crd_number, p.legal_name, p.city, p.state, p.aum,
	p.private_fund_count, p.private_fund_aum, p.control_person_count, p.vc_activity,
	ARRAY(SELECT DISTINCT coalesce(f.fund_type, '') FROM ria_private_funds f
	      WHERE f.crd_number = p.crd_number ORDER BY 1)`

func (s *Store) AttributeLookup(ctx context.Context, crds []int64) (map[int64]models.Firm, error) {
	out := make(map[int64]models.Firm, len(crds))
	if len(crds) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+firmColumns+` FROM ria_profiles p WHERE p.crd_number = ANY($1)`,
		pq.Array(crds))
	if err != nil {
		return nil, s.wrap(ctx, "attribute lookup", err)
	}
	defer rows.Close()

	for rows.Next() {
		firm, err := scanFirm(rows)
		if err != nil {
			return nil, fmt.Errorf("attribute lookup: scan: %w", err)
		}
		out[firm.CRD] = firm
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(ctx, "attribute lookup", err)
	}
	return out, nil
}

// Firm loads one profile. It returns ErrNotFound for an unknown CRD.
func (s *Store) Firm(ctx context.Context, crd int64) (models.Firm, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+firmColumns+` FROM ria_profiles p WHERE p.crd_number = $1`, crd)
	firm, err := scanFirm(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Firm{}, ErrNotFound
	}
	if err != nil {
		return models.Firm{}, s.wrap(ctx, "firm", err)
	}
	return firm, nil
}

// Funds lists a firm's private funds ordered by gross asset value.
func (s *Store) Funds(ctx context.Context, crd int64) ([]models.Fund, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT crd_number, fund_name, fund_type, gross_asset_value
		FROM ria_private_funds
		WHERE crd_number = $1
		ORDER BY gross_asset_value DESC NULLS LAST, fund_name`, crd)
	if err != nil {
		return nil, s.wrap(ctx, "funds", err)
	}
	defer rows.Close()

	funds := []models.Fund{}
	for rows.Next() {
		var (
			f        models.Fund
			name, ft sql.NullString
			gav      sql.NullFloat64
		)
		if err := rows.Scan(&f.CRD, &name, &ft, &gav); err != nil {
			return nil, fmt.Errorf("funds: scan: %w", err)
		}
		f.Name, f.FundType, f.GrossAssetValue = name.String, ft.String, floatPtr(gav)
		funds = append(funds, f)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(ctx, "funds", err)
	}
	return funds, nil
}

// Narratives returns a firm's narrative texts. Embeddings are not loaded.
func (s *Store) Narratives(ctx context.Context, crd int64) ([]models.Narrative, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT crd_number, narrative FROM narratives WHERE crd_number = $1 ORDER BY id`, crd)
	if err != nil {
		return nil, s.wrap(ctx, "narratives", err)
	}
	defer rows.Close()

	out := []models.Narrative{}
	for rows.Next() {
		var (
			n    models.Narrative
			text sql.NullString
		)
		if err := rows.Scan(&n.CRD, &text); err != nil {
			return nil, fmt.Errorf("narratives: scan: %w", err)
		}
		n.Text = text.String
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(ctx, "narratives", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFirm(row scanner) (models.Firm, error) {
	var (
		f                  models.Firm
		name, city, state  sql.NullString
		aum, privateAUM    sql.NullFloat64
		fundCount, persons sql.NullInt64
		vc                 sql.NullInt64
		fundTypes          []string
	)
	err := row.Scan(&f.CRD, &name, &city, &state, &aum,
		&fundCount, &privateAUM, &persons, &vc, pq.Array(&fundTypes))
	if err != nil {
		return f, err
	}
	f.Name, f.City, f.State = name.String, city.String, state.String
	f.AUM, f.PrivateFundAUM = floatPtr(aum), floatPtr(privateAUM)
	f.PrivateFundCount = int(fundCount.Int64)
	f.ControlPersonCount = int(persons.Int64)
	f.VCActivity = int(vc.Int64)
	f.FundTypes = models.CanonicalFundTypes(fundTypes)
	return f, nil
}

// wrap prefers the context error so callers can tell timeouts from failures;
// lib/pq reports a cancelled statement as a plain server error.
func (s *Store) wrap(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
