package ledger

import (
	"context"

	"github.com/daniel-torresc/emerald-backend-sub000/internal/models"
)

// TransactionAuditTrail returns the audit trail of a transaction, oldest
// first. The transaction is looked up including deleted rows: the trail of a
// deleted transaction is exactly what an auditor wants to see.
func (s *Service) TransactionAuditTrail(ctx context.Context, actorID, transactionID string) ([]models.AuditEntry, error) {
	txn, err := s.reads.Transactions.Get(ctx, transactionID, true)
	if err != nil {
		return nil, err
	}
	if err := s.requireLevel(ctx, actorID, txn.AccountID, models.LevelViewer); err != nil {
		return nil, err
	}
	return s.reads.Audit.ListForEntity(ctx, "transaction", txn.ID)
}

// AccountAuditTrail returns the audit trail of an account, oldest first.
func (s *Service) AccountAuditTrail(ctx context.Context, actorID, accountID string) ([]models.AuditEntry, error) {
	if err := s.requireLevel(ctx, actorID, accountID, models.LevelViewer); err != nil {
		return nil, err
	}
	return s.reads.Audit.ListForEntity(ctx, "account", accountID)
}
