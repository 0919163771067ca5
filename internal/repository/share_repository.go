package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/daniel-torresc/emerald-backend-sub000/internal/models"
)

// ShareRepository stores per-account access grants.
type ShareRepository struct {
	db DBTX
}

func NewShareRepository(db DBTX) *ShareRepository {
	return &ShareRepository{db: db}
}

func (r *ShareRepository) Upsert(ctx context.Context, s *models.AccountShare) error {
	query := `
		INSERT INTO account_shares (account_id, user_id, level, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, user_id) DO UPDATE SET level = EXCLUDED.level
	`
	_, err := r.db.ExecContext(ctx, query, s.AccountID, s.UserID, s.Level.String(), s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert account share: %w", err)
	}
	return nil
}

// LevelFor returns the grant a user holds on an account, if any.
func (r *ShareRepository) LevelFor(ctx context.Context, accountID, userID string) (models.PermissionLevel, bool, error) {
	query := `SELECT level FROM account_shares WHERE account_id = $1 AND user_id = $2`
	var raw string
	err := r.db.QueryRowContext(ctx, query, accountID, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get account share: %w", err)
	}
	level, ok := models.ParsePermissionLevel(raw)
	if !ok {
		return 0, false, fmt.Errorf("unknown permission level %q", raw)
	}
	return level, true, nil
}
