package ledger

import (
	"context"

	"github.com/daniel-torresc/emerald-backend-sub000/internal/apperr"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/models"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/utils"
)

// AttachTag adds a normalized tag to a transaction. Attaching a tag that is
// already present surfaces as Conflict; the attach is never silently skipped.
func (s *Service) AttachTag(ctx context.Context, actorID, transactionID, tag string) (string, error) {
	normalized := utils.NormalizeTag(tag)
	if normalized == "" {
		return "", apperr.New(apperr.Validation, "tag must not be empty")
	}
	txn, err := s.reads.Transactions.Get(ctx, transactionID, false)
	if err != nil {
		return "", err
	}
	if err := s.requireLevel(ctx, actorID, txn.AccountID, models.LevelEditor); err != nil {
		return "", err
	}
	if err := s.reads.Tags.Attach(ctx, transactionID, normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// DetachTag removes a tag by its normalized form; NotFound if the pair does
// not exist.
func (s *Service) DetachTag(ctx context.Context, actorID, transactionID, tag string) error {
	normalized := utils.NormalizeTag(tag)
	txn, err := s.reads.Transactions.Get(ctx, transactionID, false)
	if err != nil {
		return err
	}
	if err := s.requireLevel(ctx, actorID, txn.AccountID, models.LevelEditor); err != nil {
		return err
	}
	removed, err := s.reads.Tags.Detach(ctx, transactionID, normalized)
	if err != nil {
		return err
	}
	if !removed {
		return apperr.Newf(apperr.NotFound, "tag %q not attached to transaction %s", normalized, transactionID)
	}
	return nil
}

// TransactionTags lists the tags of one transaction.
func (s *Service) TransactionTags(ctx context.Context, actorID, transactionID string) ([]string, error) {
	txn, err := s.reads.Transactions.Get(ctx, transactionID, false)
	if err != nil {
		return nil, err
	}
	if err := s.requireLevel(ctx, actorID, txn.AccountID, models.LevelViewer); err != nil {
		return nil, err
	}
	return s.reads.Tags.TagsFor(ctx, transactionID)
}

// AccountTags lists the distinct tags used by the account's non-deleted
// transactions, alphabetically.
func (s *Service) AccountTags(ctx context.Context, actorID, accountID string) ([]string, error) {
	if err := s.requireLevel(ctx, actorID, accountID, models.LevelViewer); err != nil {
		return nil, err
	}
	return s.reads.Tags.DistinctTags(ctx, accountID)
}

// AccountTagUsage returns per-tag usage counts for the account, most used
// first.
func (s *Service) AccountTagUsage(ctx context.Context, actorID, accountID string) ([]models.TagCount, error) {
	if err := s.requireLevel(ctx, actorID, accountID, models.LevelViewer); err != nil {
		return nil, err
	}
	return s.reads.Tags.UsageCounts(ctx, accountID)
}
