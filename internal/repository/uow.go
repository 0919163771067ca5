package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/daniel-torresc/emerald-backend-sub000/internal/ledger"
)

// NewStores builds the store bundle over any DBTX. Bound to a *sql.DB it
// serves plain reads; TxRunner binds the same constructors to a *sql.Tx for
// units of work.
func NewStores(db DBTX) ledger.Stores {
	return ledger.Stores{
		Accounts:     NewAccountRepository(db),
		Transactions: NewTransactionRepository(db),
		Tags:         NewTagRepository(db),
		Audit:        NewAuditRepository(db),
	}
}

// TxRunner executes a unit of work inside one database transaction. The row
// lock taken via AccountRepository.LockForUpdate lives exactly as long as
// the transaction: commit or rollback releases it.
type TxRunner struct {
	db *sql.DB
}

func NewTxRunner(db *sql.DB) *TxRunner {
	return &TxRunner{db: db}
}

func (r *TxRunner) InTx(ctx context.Context, fn func(ctx context.Context, st ledger.Stores) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(ctx, NewStores(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
