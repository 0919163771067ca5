package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/daniel-torresc/emerald-backend-sub000/internal/apperr"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/models"
)

// AccountRepository is the locking read/write surface over account rows. The
// row lock taken by LockForUpdate serializes all balance mutations for one
// account; it is only meaningful when the repository is bound to a *sql.Tx.
type AccountRepository struct {
	db DBTX
}

func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, owner_id, name, currency, opening_balance, current_balance, is_active, created_at, updated_at, deleted_at`

func (r *AccountRepository) Insert(ctx context.Context, a *models.Account) error {
	query := `
		INSERT INTO accounts (id, owner_id, name, currency, opening_balance, current_balance, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.OwnerID, a.Name, a.Currency,
		a.OpeningBalance, a.CurrentBalance, a.IsActive,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *AccountRepository) Get(ctx context.Context, id string, includeDeleted bool) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	return r.scanOne(r.db.QueryRowContext(ctx, query, id), id)
}

// FindByOwnerAndName matches case-insensitively among non-deleted accounts.
// Returns (nil, nil) when no account matches.
func (r *AccountRepository) FindByOwnerAndName(ctx context.Context, ownerID, name string) (*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE owner_id = $1 AND LOWER(name) = LOWER($2) AND deleted_at IS NULL
	`
	account, err := r.scanOne(r.db.QueryRowContext(ctx, query, ownerID, name), name)
	if apperr.IsKind(err, apperr.NotFound) {
		return nil, nil
	}
	return account, err
}

func (r *AccountRepository) ListForUser(ctx context.Context, userID string) ([]models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts a
		WHERE a.deleted_at IS NULL
		  AND (a.owner_id = $1 OR EXISTS (
		      SELECT 1 FROM account_shares s WHERE s.account_id = a.id AND s.user_id = $1))
		ORDER BY a.created_at
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// LockForUpdate returns the account row with an exclusive lock held until
// the enclosing transaction ends. Must only be called on a tx-bound
// repository; on a bare *sql.DB the lock is released as soon as the
// statement finishes, which defeats its purpose.
func (r *AccountRepository) LockForUpdate(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id), id)
}

// SetBalance writes current_balance. The caller must hold the row lock from
// LockForUpdate within the same transaction.
func (r *AccountRepository) SetBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	query := `UPDATE accounts SET current_balance = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, balance)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return apperr.Newf(apperr.NotFound, "account %s not found", id)
	}
	return nil
}

// Update writes the mutable metadata columns. Balances are not written here;
// SetBalance is the only balance writer.
func (r *AccountRepository) Update(ctx context.Context, a *models.Account) error {
	query := `
		UPDATE accounts
		SET name = $2, is_active = $3, updated_at = $4
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, a.ID, a.Name, a.IsActive, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return apperr.Newf(apperr.NotFound, "account %s not found", a.ID)
	}
	return nil
}

func (r *AccountRepository) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE accounts SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return apperr.Newf(apperr.NotFound, "account %s not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *AccountRepository) scanOne(row *sql.Row, id string) (*models.Account, error) {
	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, apperr.Newf(apperr.NotFound, "account %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a         models.Account
		deletedAt sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.OwnerID, &a.Name, &a.Currency,
		&a.OpeningBalance, &a.CurrentBalance, &a.IsActive,
		&a.CreatedAt, &a.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}
	a.DeletedAt = timePtr(deletedAt)
	return &a, nil
}
