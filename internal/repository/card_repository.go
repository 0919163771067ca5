package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/daniel-torresc/emerald-backend-sub000/internal/models"
)

// CardRepository stores payment cards and resolves card references for
// transactions.
type CardRepository struct {
	db DBTX
}

func NewCardRepository(db DBTX) *CardRepository {
	return &CardRepository{db: db}
}

func (r *CardRepository) Insert(ctx context.Context, c *models.Card) error {
	query := `
		INSERT INTO cards (id, owner_id, label, last4, card_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query, c.ID, c.OwnerID, c.Label, c.Last4, c.CardType, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create card: %w", err)
	}
	return nil
}

// Resolve returns the card only if it exists, is not deleted, and belongs to
// the actor. (nil, nil) means the reference does not resolve for this actor.
func (r *CardRepository) Resolve(ctx context.Context, cardID, actorID string) (*models.Card, error) {
	query := `
		SELECT id, owner_id, label, last4, card_type, created_at, updated_at, deleted_at
		FROM cards
		WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL
	`
	var (
		c         models.Card
		deletedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, cardID, actorID).Scan(
		&c.ID, &c.OwnerID, &c.Label, &c.Last4, &c.CardType, &c.CreatedAt, &c.UpdatedAt, &deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve card: %w", err)
	}
	c.DeletedAt = timePtr(deletedAt)
	return &c, nil
}

func (r *CardRepository) ListForUser(ctx context.Context, userID string) ([]models.Card, error) {
	query := `
		SELECT id, owner_id, label, last4, card_type, created_at, updated_at, deleted_at
		FROM cards
		WHERE owner_id = $1 AND deleted_at IS NULL
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	var cards []models.Card
	for rows.Next() {
		var (
			c         models.Card
			deletedAt sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Label, &c.Last4, &c.CardType, &c.CreatedAt, &c.UpdatedAt, &deletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		c.DeletedAt = timePtr(deletedAt)
		cards = append(cards, c)
	}
	return cards, rows.Err()
}
