package repository

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/daniel-torresc/emerald-backend-sub000/internal/apperr"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/models"
)

// TagRepository stores the normalized (transaction, tag) pairs. Callers are
// expected to normalize tags before reaching the store; the unique
// constraint on the pair turns a duplicate attach into a Conflict.
type TagRepository struct {
	db DBTX
}

func NewTagRepository(db DBTX) *TagRepository {
	return &TagRepository{db: db}
}

func (r *TagRepository) Attach(ctx context.Context, transactionID, tag string) error {
	query := `INSERT INTO transaction_tags (transaction_id, tag) VALUES ($1, $2)`
	_, err := r.db.ExecContext(ctx, query, transactionID, tag)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return apperr.Newf(apperr.Conflict, "tag %q already attached to transaction %s", tag, transactionID)
		}
		return fmt.Errorf("failed to attach tag: %w", err)
	}
	return nil
}

// Detach removes the pair and reports whether a row existed.
func (r *TagRepository) Detach(ctx context.Context, transactionID, tag string) (bool, error) {
	query := `DELETE FROM transaction_tags WHERE transaction_id = $1 AND tag = $2`
	result, err := r.db.ExecContext(ctx, query, transactionID, tag)
	if err != nil {
		return false, fmt.Errorf("failed to detach tag: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *TagRepository) TagsFor(ctx context.Context, transactionID string) ([]string, error) {
	query := `SELECT tag FROM transaction_tags WHERE transaction_id = $1 ORDER BY tag`
	return r.collectTags(ctx, query, transactionID)
}

// DistinctTags lists the tags in use on the account's non-deleted
// transactions, alphabetically.
func (r *TagRepository) DistinctTags(ctx context.Context, accountID string) ([]string, error) {
	query := `
		SELECT DISTINCT tt.tag
		FROM transaction_tags tt
		JOIN transactions t ON t.id = tt.transaction_id
		WHERE t.account_id = $1 AND t.deleted_at IS NULL
		ORDER BY tt.tag
	`
	return r.collectTags(ctx, query, accountID)
}

// UsageCounts returns per-tag counts over the account's non-deleted
// transactions, most used first, ties broken alphabetically.
func (r *TagRepository) UsageCounts(ctx context.Context, accountID string) ([]models.TagCount, error) {
	query := `
		SELECT tt.tag, COUNT(*)
		FROM transaction_tags tt
		JOIN transactions t ON t.id = tt.transaction_id
		WHERE t.account_id = $1 AND t.deleted_at IS NULL
		GROUP BY tt.tag
		ORDER BY COUNT(*) DESC, tt.tag
	`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to count tags: %w", err)
	}
	defer rows.Close()

	var counts []models.TagCount
	for rows.Next() {
		var tc models.TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan tag count: %w", err)
		}
		counts = append(counts, tc)
	}
	return counts, rows.Err()
}

func (r *TagRepository) collectTags(ctx context.Context, query string, arg any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}
