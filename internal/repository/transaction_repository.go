package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/daniel-torresc/emerald-backend-sub000/internal/apperr"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/ledger"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/models"
)

// trigramThreshold is the fixed similarity cutoff for fuzzy description and
// merchant matching (pg_trgm similarity, roughly 70% alike).
const trigramThreshold = 0.3

// TransactionRepository stores transaction rows, the split tree, and the
// filtered search over them.
type TransactionRepository struct {
	db DBTX
}

func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `id, account_id, parent_transaction_id, txn_date, value_date, amount, currency,
	description, merchant, txn_type, card_id, notes, created_by, updated_by, created_at, updated_at, deleted_at`

func (r *TransactionRepository) Insert(ctx context.Context, t *models.Transaction) error {
	query := `
		INSERT INTO transactions (id, account_id, parent_transaction_id, txn_date, value_date, amount, currency,
			description, merchant, txn_type, card_id, notes, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.AccountID, nullString(t.ParentID), t.TxnDate, nullTime(t.ValueDate),
		t.Amount, t.Currency, t.Description, nullString(t.Merchant), t.Type,
		nullString(t.CardID), nullString(t.Notes), t.CreatedBy, t.UpdatedBy,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) Get(ctx context.Context, id string, includeDeleted bool) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	txn, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperr.Newf(apperr.NotFound, "transaction %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

func (r *TransactionRepository) Update(ctx context.Context, t *models.Transaction) error {
	query := `
		UPDATE transactions
		SET txn_date = $2, value_date = $3, amount = $4, description = $5, merchant = $6,
			txn_type = $7, card_id = $8, notes = $9, updated_by = $10, updated_at = $11
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query,
		t.ID, t.TxnDate, nullTime(t.ValueDate), t.Amount, t.Description,
		nullString(t.Merchant), t.Type, nullString(t.CardID), nullString(t.Notes),
		t.UpdatedBy, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return apperr.Newf(apperr.NotFound, "transaction %s not found", t.ID)
	}
	return nil
}

func (r *TransactionRepository) SoftDelete(ctx context.Context, id, actorID string) error {
	query := `
		UPDATE transactions
		SET deleted_at = NOW(), updated_by = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, id, actorID)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return apperr.Newf(apperr.NotFound, "transaction %s not found", id)
	}
	return nil
}

// SoftDeleteChildren cascades a delete (or a join) to all active children of
// parentID and reports how many rows it touched.
func (r *TransactionRepository) SoftDeleteChildren(ctx context.Context, parentID, actorID string) (int, error) {
	query := `
		UPDATE transactions
		SET deleted_at = NOW(), updated_by = $2, updated_at = NOW()
		WHERE parent_transaction_id = $1 AND deleted_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, parentID, actorID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete child transactions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return int(rows), nil
}

func (r *TransactionRepository) Children(ctx context.Context, parentID string, includeDeleted bool) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE parent_transaction_id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list child transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (r *TransactionRepository) HasChildren(ctx context.Context, parentID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM transactions WHERE parent_transaction_id = $1 AND deleted_at IS NULL)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, parentID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check child transactions: %w", err)
	}
	return exists, nil
}

// ParentOf returns the parent of a split child, or nil when the transaction
// has no parent.
func (r *TransactionRepository) ParentOf(ctx context.Context, childID string, includeDeleted bool) (*models.Transaction, error) {
	child, err := r.Get(ctx, childID, includeDeleted)
	if err != nil {
		return nil, err
	}
	if child.ParentID == nil {
		return nil, nil
	}
	return r.Get(ctx, *child.ParentID, includeDeleted)
}

// Search applies the AND-composed filters and returns one page of matches
// plus the total over the full filtered set. Deleted rows are never searched.
func (r *TransactionRepository) Search(ctx context.Context, accountID string, f ledger.SearchFilters, p ledger.Page) ([]models.Transaction, int, error) {
	where, args := buildSearchWhere(accountID, f)

	countQuery := `SELECT COUNT(*) FROM transactions t ` + where
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	query := `SELECT ` + prefixColumns("t", transactionColumns) + ` FROM transactions t ` + where +
		` ORDER BY t.txn_date DESC, t.created_at DESC, t.id`
	if p.Limit > 0 {
		args = append(args, p.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if p.Offset > 0 {
		args = append(args, p.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search transactions: %w", err)
	}
	defer rows.Close()
	txns, err := collectTransactions(rows)
	if err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// buildSearchWhere composes the WHERE clause for Search. Bounds are
// inclusive; the free-text filter uses trigram similarity on description and
// merchant rather than exact equality.
func buildSearchWhere(accountID string, f ledger.SearchFilters) (string, []any) {
	conds := []string{"t.account_id = $1", "t.deleted_at IS NULL"}
	args := []any{accountID}

	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.DateFrom != nil {
		add("t.txn_date >= $%d", *f.DateFrom)
	}
	if f.DateTo != nil {
		add("t.txn_date <= $%d", *f.DateTo)
	}
	if f.AmountMin != nil {
		add("t.amount >= $%d", *f.AmountMin)
	}
	if f.AmountMax != nil {
		add("t.amount <= $%d", *f.AmountMax)
	}
	if f.Type != nil {
		add("t.txn_type = $%d", *f.Type)
	}
	if f.CardID != nil {
		add("t.card_id = $%d", *f.CardID)
	}
	if f.CardType != nil {
		add("t.card_id IN (SELECT id FROM cards WHERE card_type = $%d)", *f.CardType)
	}
	if f.Text != "" {
		args = append(args, f.Text)
		conds = append(conds, fmt.Sprintf(
			"(similarity(t.description, $%[1]d) > %[2]v OR similarity(COALESCE(t.merchant, ''), $%[1]d) > %[2]v)",
			len(args), trigramThreshold))
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// RecomputeBalance independently sums the non-deleted top-level transaction
// amounts of an account, optionally bounded by transaction date. Split
// children are excluded: they restate their parent's amount, they do not add
// to it. This is the ground truth the cached balance must agree with.
func (r *TransactionRepository) RecomputeBalance(ctx context.Context, accountID string, asOf *time.Time) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE account_id = $1 AND deleted_at IS NULL AND parent_transaction_id IS NULL`
	args := []any{accountID}
	if asOf != nil {
		args = append(args, *asOf)
		query += ` AND txn_date <= $2`
	}
	var sum decimal.Decimal
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&sum); err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to recompute balance: %w", err)
	}
	return sum, nil
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		t         models.Transaction
		parentID  sql.NullString
		valueDate sql.NullTime
		merchant  sql.NullString
		cardID    sql.NullString
		notes     sql.NullString
		deletedAt sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.AccountID, &parentID, &t.TxnDate, &valueDate, &t.Amount, &t.Currency,
		&t.Description, &merchant, &t.Type, &cardID, &notes,
		&t.CreatedBy, &t.UpdatedBy, &t.CreatedAt, &t.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}
	t.ParentID = stringPtr(parentID)
	t.ValueDate = timePtr(valueDate)
	t.Merchant = stringPtr(merchant)
	t.CardID = stringPtr(cardID)
	t.Notes = stringPtr(notes)
	t.DeletedAt = timePtr(deletedAt)
	return &t, nil
}

func collectTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	var txns []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
