package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/daniel-torresc/emerald-backend-sub000/internal/models"
)

// PermissionGate answers authorization questions from account ownership,
// explicit shares and the user's admin flag. Owning an account implies the
// owner level; shares grant viewer or editor (or owner, when delegated).
type PermissionGate struct {
	db     DBTX
	shares *ShareRepository
}

func NewPermissionGate(db DBTX) *PermissionGate {
	return &PermissionGate{db: db, shares: NewShareRepository(db)}
}

func (g *PermissionGate) Check(ctx context.Context, actorID, accountID string, required models.PermissionLevel) (bool, error) {
	var ownerID string
	query := `SELECT owner_id FROM accounts WHERE id = $1 AND deleted_at IS NULL`
	err := g.db.QueryRowContext(ctx, query, accountID).Scan(&ownerID)
	if err == sql.ErrNoRows {
		// Unknown accounts fail the permission check; the service reports
		// NotFound separately when it loads the account.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check account ownership: %w", err)
	}
	if ownerID == actorID {
		return true, nil
	}
	level, ok, err := g.shares.LevelFor(ctx, accountID, actorID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return level.Covers(required), nil
}

func (g *PermissionGate) IsAdmin(ctx context.Context, actorID string) (bool, error) {
	query := `SELECT is_admin FROM users WHERE id = $1`
	var isAdmin bool
	err := g.db.QueryRowContext(ctx, query, actorID).Scan(&isAdmin)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check admin flag: %w", err)
	}
	return isAdmin, nil
}
