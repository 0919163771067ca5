// Package ledger implements the consistency engine behind the tracker:
// every mutation of a transaction runs inside one database unit of work that
// also adjusts the owning account's cached balance under an exclusive row
// lock and appends an audit entry. After a committed operation,
// current_balance always equals opening_balance plus the sum of the
// account's non-deleted transaction amounts.
package ledger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/daniel-torresc/emerald-backend-sub000/internal/apperr"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/events"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/models"
	"github.com/daniel-torresc/emerald-backend-sub000/internal/utils"
)

type Service struct {
	runner     TxRunner
	reads      Stores
	shares     ShareStore
	gate       PermissionGate
	cards      CardDirectory
	currencies CurrencyCatalog
	publisher  EventPublisher
	cache      AccountViewCache
	log        zerolog.Logger
}

func NewService(
	runner TxRunner,
	reads Stores,
	shares ShareStore,
	gate PermissionGate,
	cards CardDirectory,
	currencies CurrencyCatalog,
	publisher EventPublisher,
	cache AccountViewCache,
	log zerolog.Logger,
) *Service {
	return &Service{
		runner:     runner,
		reads:      reads,
		shares:     shares,
		gate:       gate,
		cards:      cards,
		currencies: currencies,
		publisher:  publisher,
		cache:      cache,
		log:        log,
	}
}

type CreateTransactionCommand struct {
	AccountID   string
	ActorID     string
	TxnDate     time.Time
	ValueDate   *time.Time
	Amount      decimal.Decimal
	Currency    string
	Description string
	Merchant    *string
	Type        string
	CardID      *string
	Notes       *string
}

// CreateTransaction inserts a transaction and applies its amount to the
// account's cached balance in the same unit of work.
func (s *Service) CreateTransaction(ctx context.Context, cmd CreateTransactionCommand) (*models.Transaction, error) {
	amount := models.NewAmount(cmd.Amount)
	if amount.IsZero() {
		return nil, apperr.New(apperr.Validation, "transaction amount must not be zero")
	}
	if !s.currencies.IsSupported(cmd.Currency) {
		return nil, apperr.Newf(apperr.Validation, "unsupported currency %q", cmd.Currency)
	}
	if err := s.requireLevel(ctx, cmd.ActorID, cmd.AccountID, models.LevelEditor); err != nil {
		return nil, err
	}
	if cmd.CardID != nil {
		card, err := s.cards.Resolve(ctx, *cmd.CardID, cmd.ActorID)
		if err != nil {
			return nil, err
		}
		if card == nil {
			return nil, apperr.Newf(apperr.NotFound, "card %s not found", *cmd.CardID)
		}
	}

	now := time.Now().UTC()
	txn := &models.Transaction{
		ID:          utils.GenerateID("txn"),
		AccountID:   cmd.AccountID,
		TxnDate:     cmd.TxnDate,
		ValueDate:   cmd.ValueDate,
		Amount:      amount,
		Currency:    cmd.Currency,
		Description: cmd.Description,
		Merchant:    cmd.Merchant,
		Type:        cmd.Type,
		CardID:      cmd.CardID,
		Notes:       cmd.Notes,
		CreatedBy:   cmd.ActorID,
		UpdatedBy:   cmd.ActorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var newBalance decimal.Decimal
	err := s.runner.InTx(ctx, func(ctx context.Context, st Stores) error {
		account, err := st.Accounts.Get(ctx, cmd.AccountID, false)
		if err != nil {
			return err
		}
		if !account.IsActive {
			return apperr.Newf(apperr.Validation, "account %s is inactive", account.ID)
		}
		if account.Currency != cmd.Currency {
			return apperr.Newf(apperr.Validation, "currency %s does not match account currency %s", cmd.Currency, account.Currency)
		}
		if err := st.Transactions.Insert(ctx, txn); err != nil {
			return err
		}
		// The lock must precede the balance read used for the mutation;
		// locking only at commit time reintroduces the lost-update race.
		locked, err := st.Accounts.LockForUpdate(ctx, cmd.AccountID)
		if err != nil {
			return err
		}
		newBalance = locked.CurrentBalance.Add(amount)
		if err := st.Accounts.SetBalance(ctx, cmd.AccountID, newBalance); err != nil {
			return err
		}
		return st.Audit.Log(ctx, &models.AuditEntry{
			ActorID:    cmd.ActorID,
			Action:     "transaction.create",
			EntityType: "transaction",
			EntityID:   txn.ID,
			NewValues:  transactionValues(txn),
			Metadata: map[string]any{
				"balanceBefore": locked.CurrentBalance.String(),
				"balanceAfter":  newBalance.String(),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.afterBalanceChange(ctx, cmd.AccountID, newBalance, amount)
	s.publish(ctx, events.TransactionEventsStream, events.TransactionCreated, events.TransactionEvent{
		TransactionID: txn.ID,
		AccountID:     cmd.AccountID,
		ActorID:       cmd.ActorID,
		Amount:        amount.String(),
		Currency:      cmd.Currency,
		Type:          cmd.Type,
	})
	return txn, nil
}

type UpdateTransactionCommand struct {
	TransactionID string
	ActorID       string
	Amount        models.Patch[decimal.Decimal]
	TxnDate       models.Patch[time.Time]
	ValueDate     models.Patch[*time.Time]
	Description   models.Patch[string]
	Merchant      models.Patch[*string]
	Type          models.Patch[string]
	CardID        models.Patch[*string]
	Notes         models.Patch[*string]
}

// UpdateTransaction applies only the fields present on the command. If the
// amount changes, the delta is applied to the cached balance exactly once,
// under the account row lock.
func (s *Service) UpdateTransaction(ctx context.Context, cmd UpdateTransactionCommand) (*models.Transaction, error) {
	if cmd.Amount.Set && models.NewAmount(cmd.Amount.Value).IsZero() {
		return nil, apperr.New(apperr.Validation, "transaction amount must not be zero")
	}
	if cmd.CardID.Set && cmd.CardID.Value != nil {
		card, err := s.cards.Resolve(ctx, *cmd.CardID.Value, cmd.ActorID)
		if err != nil {
			return nil, err
		}
		if card == nil {
			return nil, apperr.Newf(apperr.NotFound, "card %s not found", *cmd.CardID.Value)
		}
	}

	var (
		updated    *models.Transaction
		delta      decimal.Decimal
		newBalance decimal.Decimal
	)
	err := s.runner.InTx(ctx, func(ctx context.Context, st Stores) error {
		txn, err := st.Transactions.Get(ctx, cmd.TransactionID, false)
		if err != nil {
			return err
		}
		if err := s.requireUpdateRights(ctx, cmd.ActorID, txn); err != nil {
			return err
		}

		oldValues := map[string]any{}
		newValues := map[string]any{}
		delta = decimal.Zero

		if cmd.Amount.Set {
			newAmount := models.NewAmount(cmd.Amount.Value)
			if !newAmount.Equal(txn.Amount) {
				// Child amounts must keep summing to the parent; a
				// different breakdown goes through a fresh split.
				if txn.IsChild() {
					return apperr.New(apperr.Validation, "cannot change the amount of a split child; re-split the parent instead")
				}
				hasChildren, err := st.Transactions.HasChildren(ctx, txn.ID)
				if err != nil {
					return err
				}
				if hasChildren {
					return apperr.New(apperr.Validation, "cannot change the amount of a split transaction; join it first")
				}
				oldValues["amount"] = txn.Amount.String()
				newValues["amount"] = newAmount.String()
				delta = newAmount.Sub(txn.Amount)
				txn.Amount = newAmount
			}
		}
		if cmd.TxnDate.Set && !cmd.TxnDate.Value.Equal(txn.TxnDate) {
			oldValues["transactionDate"] = txn.TxnDate
			newValues["transactionDate"] = cmd.TxnDate.Value
			txn.TxnDate = cmd.TxnDate.Value
		}
		if cmd.ValueDate.Set {
			oldValues["valueDate"] = txn.ValueDate
			newValues["valueDate"] = cmd.ValueDate.Value
			txn.ValueDate = cmd.ValueDate.Value
		}
		if cmd.Description.Set && cmd.Description.Value != txn.Description {
			oldValues["description"] = txn.Description
			newValues["description"] = cmd.Description.Value
			txn.Description = cmd.Description.Value
		}
		if cmd.Merchant.Set {
			oldValues["merchant"] = txn.Merchant
			newValues["merchant"] = cmd.Merchant.Value
			txn.Merchant = cmd.Merchant.Value
		}
		if cmd.Type.Set && cmd.Type.Value != txn.Type {
			oldValues["type"] = txn.Type
			newValues["type"] = cmd.Type.Value
			txn.Type = cmd.Type.Value
		}
		if cmd.CardID.Set {
			oldValues["cardId"] = txn.CardID
			newValues["cardId"] = cmd.CardID.Value
			txn.CardID = cmd.CardID.Value
		}
		if cmd.Notes.Set {
			oldValues["notes"] = txn.Notes
			newValues["notes"] = cmd.Notes.Value
			txn.Notes = cmd.Notes.Value
		}

		txn.UpdatedBy = cmd.ActorID
		txn.UpdatedAt = time.Now().UTC()
		if err := st.Transactions.Update(ctx, txn); err != nil {
			return err
		}

		metadata := map[string]any{}
		if !delta.IsZero() {
			locked, err := st.Accounts.LockForUpdate(ctx, txn.AccountID)
			if err != nil {
				return err
			}
			newBalance = locked.CurrentBalance.Add(delta)
			if err := st.Accounts.SetBalance(ctx, txn.AccountID, newBalance); err != nil {
				return err
			}
			metadata["balanceDelta"] = delta.String()
			metadata["balanceBefore"] = locked.CurrentBalance.String()
			metadata["balanceAfter"] = newBalance.String()
		}
		updated = txn
		return st.Audit.Log(ctx, &models.AuditEntry{
			ActorID:    cmd.ActorID,
			Action:     "transaction.update",
			EntityType: "transaction",
			EntityID:   txn.ID,
			OldValues:  oldValues,
			NewValues:  newValues,
			Metadata:   metadata,
		})
	})
	if err != nil {
		return nil, err
	}

	if !delta.IsZero() {
		s.afterBalanceChange(ctx, updated.AccountID, newBalance, delta)
	}
	s.publish(ctx, events.TransactionEventsStream, events.TransactionUpdated, events.TransactionEvent{
		TransactionID: updated.ID,
		AccountID:     updated.AccountID,
		ActorID:       cmd.ActorID,
		Amount:        updated.Amount.String(),
	})
	return updated, nil
}

// DeleteTransaction soft-deletes a transaction. Active split children are
// cascaded first; the balance is reduced by the parent's own amount only,
// since children never contributed independently. Split children cannot be
// deleted on their own: removing one would leave the siblings summing short
// of the parent, so the split must be joined (or its parent deleted) first.
func (s *Service) DeleteTransaction(ctx context.Context, transactionID, actorID string) error {
	var (
		accountID  string
		amount     decimal.Decimal
		newBalance decimal.Decimal
	)
	err := s.runner.InTx(ctx, func(ctx context.Context, st Stores) error {
		txn, err := st.Transactions.Get(ctx, transactionID, false)
		if err != nil {
			return err
		}
		if txn.IsChild() {
			return apperr.New(apperr.Validation, "cannot delete a split child; join the split or delete its parent")
		}
		if err := s.requireLevel(ctx, actorID, txn.AccountID, models.LevelOwner); err != nil {
			return err
		}
		cascaded, err := st.Transactions.SoftDeleteChildren(ctx, txn.ID, actorID)
		if err != nil {
			return err
		}
		if err := st.Transactions.SoftDelete(ctx, txn.ID, actorID); err != nil {
			return err
		}
		locked, err := st.Accounts.LockForUpdate(ctx, txn.AccountID)
		if err != nil {
			return err
		}
		accountID = txn.AccountID
		amount = txn.Amount
		newBalance = locked.CurrentBalance.Sub(txn.Amount)
		if err := st.Accounts.SetBalance(ctx, txn.AccountID, newBalance); err != nil {
			return err
		}
		return st.Audit.Log(ctx, &models.AuditEntry{
			ActorID:    actorID,
			Action:     "transaction.delete",
			EntityType: "transaction",
			EntityID:   txn.ID,
			OldValues:  transactionValues(txn),
			Metadata: map[string]any{
				"cascadedChildren": cascaded,
				"balanceBefore":    locked.CurrentBalance.String(),
				"balanceAfter":     newBalance.String(),
			},
		})
	})
	if err != nil {
		return err
	}

	s.afterBalanceChange(ctx, accountID, newBalance, amount.Neg())
	s.publish(ctx, events.TransactionEventsStream, events.TransactionDeleted, events.TransactionEvent{
		TransactionID: transactionID,
		AccountID:     accountID,
		ActorID:       actorID,
	})
	return nil
}

type SplitItem struct {
	Amount      decimal.Decimal
	Description string
	Merchant    *string
	Notes       *string
}

type SplitTransactionCommand struct {
	TransactionID string
	ActorID       string
	Splits        []SplitItem
}

// SplitTransaction materializes a transaction into child lines. The parent
// row and the account balance are untouched: the log's net contribution does
// not change, only its presentation moves from one line to several.
func (s *Service) SplitTransaction(ctx context.Context, cmd SplitTransactionCommand) ([]models.Transaction, error) {
	if len(cmd.Splits) < 2 {
		return nil, apperr.New(apperr.Validation, "a split needs at least two parts")
	}
	sum := decimal.Zero
	amounts := make([]decimal.Decimal, len(cmd.Splits))
	for i, part := range cmd.Splits {
		amounts[i] = models.NewAmount(part.Amount)
		if amounts[i].IsZero() {
			return nil, apperr.New(apperr.Validation, "split amounts must not be zero")
		}
		sum = sum.Add(amounts[i])
	}

	var children []models.Transaction
	err := s.runner.InTx(ctx, func(ctx context.Context, st Stores) error {
		parent, err := st.Transactions.Get(ctx, cmd.TransactionID, false)
		if err != nil {
			return err
		}
		if parent.IsChild() {
			return apperr.New(apperr.Validation, "cannot split a child transaction")
		}
		if err := s.requireLevel(ctx, cmd.ActorID, parent.AccountID, models.LevelEditor); err != nil {
			return err
		}
		if !sum.Equal(parent.Amount) {
			return apperr.Newf(apperr.Validation, "split amounts sum to %s, expected %s", sum, parent.Amount)
		}

		now := time.Now().UTC()
		children = make([]models.Transaction, 0, len(cmd.Splits))
		for i, part := range cmd.Splits {
			parentID := parent.ID
			child := models.Transaction{
				ID:          utils.GenerateID("txn"),
				AccountID:   parent.AccountID,
				ParentID:    &parentID,
				TxnDate:     parent.TxnDate,
				ValueDate:   parent.ValueDate,
				Amount:      amounts[i],
				Currency:    parent.Currency,
				Description: part.Description,
				Merchant:    part.Merchant,
				Type:        parent.Type,
				Notes:       part.Notes,
				CreatedBy:   cmd.ActorID,
				UpdatedBy:   cmd.ActorID,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := st.Transactions.Insert(ctx, &child); err != nil {
				return err
			}
			children = append(children, child)
		}
		childValues := make([]map[string]any, len(children))
		for i := range children {
			childValues[i] = transactionValues(&children[i])
		}
		return st.Audit.Log(ctx, &models.AuditEntry{
			ActorID:    cmd.ActorID,
			Action:     "transaction.split",
			EntityType: "transaction",
			EntityID:   parent.ID,
			NewValues:  map[string]any{"children": childValues},
			Metadata:   map[string]any{"childCount": len(children)},
		})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TransactionEventsStream, events.TransactionSplit, events.TransactionEvent{
		TransactionID: cmd.TransactionID,
		ActorID:       cmd.ActorID,
		ChildCount:    len(children),
	})
	return children, nil
}

// JoinTransaction collapses a split: all active children are soft-deleted and
// the parent again represents the full amount as a single line. No balance
// change.
func (s *Service) JoinTransaction(ctx context.Context, transactionID, actorID string) (*models.Transaction, error) {
	var parent *models.Transaction
	err := s.runner.InTx(ctx, func(ctx context.Context, st Stores) error {
		txn, err := st.Transactions.Get(ctx, transactionID, false)
		if err != nil {
			return err
		}
		if err := s.requireLevel(ctx, actorID, txn.AccountID, models.LevelEditor); err != nil {
			return err
		}
		removed, err := st.Transactions.SoftDeleteChildren(ctx, txn.ID, actorID)
		if err != nil {
			return err
		}
		if removed == 0 {
			return apperr.New(apperr.Validation, "transaction has no splits to join")
		}
		parent = txn
		return st.Audit.Log(ctx, &models.AuditEntry{
			ActorID:    actorID,
			Action:     "transaction.join",
			EntityType: "transaction",
			EntityID:   txn.ID,
			Metadata:   map[string]any{"removedChildren": removed},
		})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TransactionEventsStream, events.TransactionJoined, events.TransactionEvent{
		TransactionID: transactionID,
		AccountID:     parent.AccountID,
		ActorID:       actorID,
	})
	return parent, nil
}

// GetTransaction returns a single non-deleted transaction, viewer access
// required.
func (s *Service) GetTransaction(ctx context.Context, actorID, transactionID string) (*models.Transaction, error) {
	txn, err := s.reads.Transactions.Get(ctx, transactionID, false)
	if err != nil {
		return nil, err
	}
	if err := s.requireLevel(ctx, actorID, txn.AccountID, models.LevelViewer); err != nil {
		return nil, err
	}
	return txn, nil
}

// SearchTransactions runs the filtered/fuzzy search; the returned total is a
// real count over the full filtered set.
func (s *Service) SearchTransactions(ctx context.Context, actorID, accountID string, f SearchFilters, p Page) ([]models.Transaction, int, error) {
	if err := s.requireLevel(ctx, actorID, accountID, models.LevelViewer); err != nil {
		return nil, 0, err
	}
	if _, err := s.reads.Accounts.Get(ctx, accountID, false); err != nil {
		return nil, 0, err
	}
	return s.reads.Transactions.Search(ctx, accountID, f, p)
}

// ChildrenOf lists the active split children of a transaction.
func (s *Service) ChildrenOf(ctx context.Context, actorID, transactionID string) ([]models.Transaction, error) {
	txn, err := s.reads.Transactions.Get(ctx, transactionID, false)
	if err != nil {
		return nil, err
	}
	if err := s.requireLevel(ctx, actorID, txn.AccountID, models.LevelViewer); err != nil {
		return nil, err
	}
	return s.reads.Transactions.Children(ctx, transactionID, false)
}

func (s *Service) requireLevel(ctx context.Context, actorID, accountID string, level models.PermissionLevel) error {
	ok, err := s.gate.Check(ctx, actorID, accountID, level)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Newf(apperr.Forbidden, "%s access to account %s denied", level, accountID)
	}
	return nil
}

// requireUpdateRights: the original creator, a system administrator, or the
// account owner may update; any one suffices.
func (s *Service) requireUpdateRights(ctx context.Context, actorID string, txn *models.Transaction) error {
	if txn.CreatedBy == actorID {
		return nil
	}
	admin, err := s.gate.IsAdmin(ctx, actorID)
	if err != nil {
		return err
	}
	if admin {
		return nil
	}
	owner, err := s.gate.Check(ctx, actorID, txn.AccountID, models.LevelOwner)
	if err != nil {
		return err
	}
	if !owner {
		return apperr.Newf(apperr.Forbidden, "update of transaction %s denied", txn.ID)
	}
	return nil
}

func (s *Service) afterBalanceChange(ctx context.Context, accountID string, balance, change decimal.Decimal) {
	if s.cache != nil {
		if account, err := s.reads.Accounts.Get(ctx, accountID, false); err == nil {
			s.cache.Set(ctx, accountCacheKey(accountID), account)
		}
	}
	s.publish(ctx, events.AccountEventsStream, events.BalanceUpdated, events.BalanceUpdatedEvent{
		AccountID:  accountID,
		NewBalance: balance.String(),
		Change:     change.String(),
	})
}

func (s *Service) publish(ctx context.Context, stream, eventType string, data any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, stream, eventType, data); err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}

func accountCacheKey(accountID string) string { return "account:" + accountID }

func transactionValues(t *models.Transaction) map[string]any {
	v := map[string]any{
		"accountId":       t.AccountID,
		"transactionDate": t.TxnDate,
		"amount":          t.Amount.String(),
		"currency":        t.Currency,
		"description":     t.Description,
		"type":            t.Type,
	}
	if t.ParentID != nil {
		v["parentTransactionId"] = *t.ParentID
	}
	if t.Merchant != nil {
		v["merchant"] = *t.Merchant
	}
	if t.CardID != nil {
		v["cardId"] = *t.CardID
	}
	return v
}
