package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"ria-search/internal/models"
)

// EmbeddingIssue is a narrative the vector path cannot use.
type EmbeddingIssue struct {
	CRD         int64  `json:"crd"`
	NarrativeID int64  `json:"narrativeId"`
	Width       int    `json:"width"`
	Reason      string `json:"reason"`
}

const (
	IssueMissing   = "missing"
	IssueDimension = "dimension"
	IssueNonFinite = "non_finite"
)

// AuditEmbeddings reports narratives whose embedding is NULL or does not
// validate at the store's dimension, ordered by CRD.
func (s *Store) AuditEmbeddings(ctx context.Context, limit int) ([]EmbeddingIssue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, crd_number, embedding IS NULL, coalesce(embedding, '[0]'::vector)
		FROM narratives
		WHERE embedding IS NULL OR vector_dims(embedding) <> $1
		ORDER BY crd_number, id
		LIMIT $2`, s.dim, limit)
	if err != nil {
		return nil, s.wrap(ctx, "audit embeddings", err)
	}
	defer rows.Close()

	issues := []EmbeddingIssue{}
	for rows.Next() {
		var (
			issue   EmbeddingIssue
			missing sql.NullBool
			vec     pgvector.Vector
		)
		if err := rows.Scan(&issue.NarrativeID, &issue.CRD, &missing, &vec); err != nil {
			return nil, fmt.Errorf("audit embeddings: scan: %w", err)
		}
		if missing.Bool {
			issue.Reason = IssueMissing
		} else {
			issue.Width = len(vec.Slice())
			issue.Reason = IssueDimension
			if err := models.ValidateEmbedding(vec.Slice(), issue.Width); err != nil {
				issue.Reason = IssueNonFinite
			}
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(ctx, "audit embeddings", err)
	}
	return issues, nil
}

// CountEmbeddings returns the total number of narratives and how many carry a
// usable embedding.
func (s *Store) CountEmbeddings(ctx context.Context) (total, usable int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE embedding IS NOT NULL AND vector_dims(embedding) = $1)
		FROM narratives`, s.dim).Scan(&total, &usable)
	if err != nil {
		return 0, 0, s.wrap(ctx, "count embeddings", err)
	}
	return total, usable, nil
}
