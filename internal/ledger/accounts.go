package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/daniel-torresc/emerald-backend-sub000/internal/apperr"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/events"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/models"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/utils"
)

type CreateAccountCommand struct {
	OwnerID        string
	Name           string
	Currency       string
	OpeningBalance decimal.Decimal
}

// CreateAccount creates an account whose opening balance is immutable from
// then on; current_balance starts equal to it and is only ever mutated by
// ledger operations.
func (s *Service) CreateAccount(ctx context.Context, cmd CreateAccountCommand) (*models.Account, error) {
	if !s.currencies.IsSupported(cmd.Currency) {
		return nil, apperr.Newf(apperr.Validation, "unsupported currency %q", cmd.Currency)
	}
	opening := models.NewAmount(cmd.OpeningBalance)

	now := time.Now().UTC()
	account := &models.Account{
		ID:             utils.GenerateID("acc"),
		OwnerID:        cmd.OwnerID,
		Name:           cmd.Name,
		Currency:       cmd.Currency,
		OpeningBalance: opening,
		CurrentBalance: opening,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := s.runner.InTx(ctx, func(ctx context.Context, st Stores) error {
		existing, err := st.Accounts.FindByOwnerAndName(ctx, cmd.OwnerID, cmd.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Newf(apperr.Conflict, "account named %q already exists", cmd.Name)
		}
		if err := st.Accounts.Insert(ctx, account); err != nil {
			return err
		}
		return st.Audit.Log(ctx, &models.AuditEntry{
			ActorID:    cmd.OwnerID,
			Action:     "account.create",
			EntityType: "account",
			EntityID:   account.ID,
			NewValues: map[string]any{
				"name":           account.Name,
				"currency":       account.Currency,
				"openingBalance": account.OpeningBalance.String(),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, accountCacheKey(account.ID), account)
	}
	s.publish(ctx, events.AccountEventsStream, events.AccountCreated, events.AccountEvent{
		AccountID: account.ID,
		OwnerID:   account.OwnerID,
		Name:      account.Name,
		Currency:  account.Currency,
	})
	return account, nil
}

// GetAccount returns a non-deleted account, viewer access required.
func (s *Service) GetAccount(ctx context.Context, actorID, accountID string) (*models.Account, error) {
	if err := s.requireLevel(ctx, actorID, accountID, models.LevelViewer); err != nil {
		return nil, err
	}
	return s.reads.Accounts.Get(ctx, accountID, false)
}

// ListAccounts returns the accounts the user owns or has been granted access
// to.
func (s *Service) ListAccounts(ctx context.Context, actorID string) ([]models.Account, error) {
	return s.reads.Accounts.ListForUser(ctx, actorID)
}

type UpdateAccountCommand struct {
	AccountID string
	ActorID   string
	Name      models.Patch[string]
	IsActive  models.Patch[bool]
}

// UpdateAccount renames or (de)activates an account; owner access required.
// The opening balance is immutable and the current balance is never written
// here.
func (s *Service) UpdateAccount(ctx context.Context, cmd UpdateAccountCommand) (*models.Account, error) {
	if err := s.requireLevel(ctx, cmd.ActorID, cmd.AccountID, models.LevelOwner); err != nil {
		return nil, err
	}
	var updated *models.Account
	err := s.runner.InTx(ctx, func(ctx context.Context, st Stores) error {
		account, err := st.Accounts.Get(ctx, cmd.AccountID, false)
		if err != nil {
			return err
		}
		oldValues := map[string]any{}
		newValues := map[string]any{}
		if cmd.Name.Set && cmd.Name.Value != account.Name {
			existing, err := st.Accounts.FindByOwnerAndName(ctx, account.OwnerID, cmd.Name.Value)
			if err != nil {
				return err
			}
			if existing != nil && existing.ID != account.ID {
				return apperr.Newf(apperr.Conflict, "account named %q already exists", cmd.Name.Value)
			}
			oldValues["name"] = account.Name
			newValues["name"] = cmd.Name.Value
			account.Name = cmd.Name.Value
		}
		if cmd.IsActive.Set && cmd.IsActive.Value != account.IsActive {
			oldValues["isActive"] = account.IsActive
			newValues["isActive"] = cmd.IsActive.Value
			account.IsActive = cmd.IsActive.Value
		}
		account.UpdatedAt = time.Now().UTC()
		if err := st.Accounts.Update(ctx, account); err != nil {
			return err
		}
		updated = account
		return st.Audit.Log(ctx, &models.AuditEntry{
			ActorID:    cmd.ActorID,
			Action:     "account.update",
			EntityType: "account",
			EntityID:   account.ID,
			OldValues:  oldValues,
			NewValues:  newValues,
		})
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, accountCacheKey(updated.ID), updated)
	}
	return updated, nil
}

// DeleteAccount soft-deletes an account; owner access required.
func (s *Service) DeleteAccount(ctx context.Context, actorID, accountID string) error {
	if err := s.requireLevel(ctx, actorID, accountID, models.LevelOwner); err != nil {
		return err
	}
	var ownerID string
	err := s.runner.InTx(ctx, func(ctx context.Context, st Stores) error {
		account, err := st.Accounts.Get(ctx, accountID, false)
		if err != nil {
			return err
		}
		ownerID = account.OwnerID
		if err := st.Accounts.SoftDelete(ctx, accountID); err != nil {
			return err
		}
		return st.Audit.Log(ctx, &models.AuditEntry{
			ActorID:    actorID,
			Action:     "account.delete",
			EntityType: "account",
			EntityID:   accountID,
			OldValues:  map[string]any{"name": account.Name},
		})
	})
	if err != nil {
		return err
	}

	if s.cache != nil {
		s.cache.Delete(ctx, accountCacheKey(accountID))
	}
	s.publish(ctx, events.AccountEventsStream, events.AccountDeleted, events.AccountEvent{
		AccountID: accountID,
		OwnerID:   ownerID,
	})
	return nil
}

// ShareAccount grants another user a permission level on the account; only
// the owner may grant.
func (s *Service) ShareAccount(ctx context.Context, actorID, accountID, userID string, level models.PermissionLevel) error {
	if err := s.requireLevel(ctx, actorID, accountID, models.LevelOwner); err != nil {
		return err
	}
	if _, err := s.reads.Accounts.Get(ctx, accountID, false); err != nil {
		return err
	}
	return s.shares.Upsert(ctx, &models.AccountShare{
		AccountID: accountID,
		UserID:    userID,
		Level:     level,
		CreatedAt: time.Now().UTC(),
	})
}

// BalanceCheck is the result of comparing the cached balance with the
// recomputed ground truth.
type BalanceCheck struct {
	AccountID       string          `json:"accountId"`
	CachedBalance   decimal.Decimal `json:"cachedBalance"`
	ComputedBalance decimal.Decimal `json:"computedBalance"`
	Consistent      bool            `json:"consistent"`
}

// VerifyBalance recomputes the balance from the transaction log and compares
// it with the cache. It never repairs silently; inconsistencies are reported
// to the caller.
func (s *Service) VerifyBalance(ctx context.Context, actorID, accountID string) (*BalanceCheck, error) {
	if err := s.requireLevel(ctx, actorID, accountID, models.LevelViewer); err != nil {
		return nil, err
	}
	account, err := s.reads.Accounts.Get(ctx, accountID, false)
	if err != nil {
		return nil, err
	}
	sum, err := s.reads.Transactions.RecomputeBalance(ctx, accountID, nil)
	if err != nil {
		return nil, err
	}
	computed := account.OpeningBalance.Add(sum)
	return &BalanceCheck{
		AccountID:       accountID,
		CachedBalance:   account.CurrentBalance,
		ComputedBalance: computed,
		Consistent:      account.CurrentBalance.Equal(computed),
	}, nil
}
