package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/daniel-torresc/emerald-backend-sub000/internal/models"
)

// AccountLedger is the locking read/write surface over an account row. It is
// the serialization point for every balance mutation: LockForUpdate and
// SetBalance are only meaningful on a transaction-bound store obtained from
// TxRunner.InTx.
type AccountLedger interface {
	Insert(ctx context.Context, a *models.Account) error
	Get(ctx context.Context, id string, includeDeleted bool) (*models.Account, error)
	// FindByOwnerAndName matches case-insensitively and excludes soft-deleted
	// accounts; used to enforce per-owner name uniqueness.
	FindByOwnerAndName(ctx context.Context, ownerID, name string) (*models.Account, error)
	ListForUser(ctx context.Context, userID string) ([]models.Account, error)
	// LockForUpdate returns the account row with an exclusive row lock held
	// until the enclosing unit of work commits or rolls back.
	LockForUpdate(ctx context.Context, id string) (*models.Account, error)
	// SetBalance writes current_balance. Callers must hold the row lock from
	// LockForUpdate within the same unit of work.
	SetBalance(ctx context.Context, id string, balance decimal.Decimal) error
	Update(ctx context.Context, a *models.Account) error
	SoftDelete(ctx context.Context, id string) error
}

// SearchFilters compose by logical AND. Nil fields are not applied; range
// bounds are inclusive. Text matches description and merchant by trigram
// similarity, not equality.
type SearchFilters struct {
	DateFrom  *time.Time
	DateTo    *time.Time
	AmountMin *decimal.Decimal
	AmountMax *decimal.Decimal
	Type      *string
	CardID    *string
	CardType  *string
	Text      string
}

type Page struct {
	Limit  int
	Offset int
}

// TransactionStore covers CRUD, filtered search and the split-tree queries.
// Every read takes an explicit includeDeleted so the soft-delete filter can
// never be silently forgotten.
type TransactionStore interface {
	Insert(ctx context.Context, t *models.Transaction) error
	Get(ctx context.Context, id string, includeDeleted bool) (*models.Transaction, error)
	Update(ctx context.Context, t *models.Transaction) error
	SoftDelete(ctx context.Context, id, actorID string) error
	// SoftDeleteChildren marks all active children of parentID deleted and
	// reports how many rows it touched.
	SoftDeleteChildren(ctx context.Context, parentID, actorID string) (int, error)
	Children(ctx context.Context, parentID string, includeDeleted bool) ([]models.Transaction, error)
	HasChildren(ctx context.Context, parentID string) (bool, error)
	ParentOf(ctx context.Context, childID string, includeDeleted bool) (*models.Transaction, error)
	// Search returns one page of matches plus the total count over the full
	// filtered set, independent of the pagination window.
	Search(ctx context.Context, accountID string, f SearchFilters, p Page) ([]models.Transaction, int, error)
	// RecomputeBalance sums non-deleted top-level amounts, optionally bounded
	// by date. Split children are excluded; they restate their parent. This
	// is the ground truth the cached balance must agree with.
	RecomputeBalance(ctx context.Context, accountID string, asOf *time.Time) (decimal.Decimal, error)
}

// TagIndex stores normalized (trimmed, lower-cased) tags per transaction.
type TagIndex interface {
	Attach(ctx context.Context, transactionID, tag string) error
	Detach(ctx context.Context, transactionID, tag string) (bool, error)
	TagsFor(ctx context.Context, transactionID string) ([]string, error)
	DistinctTags(ctx context.Context, accountID string) ([]string, error)
	UsageCounts(ctx context.Context, accountID string) ([]models.TagCount, error)
}

// AuditRecorder appends to the audit trail and reads it back, oldest first.
// Entries are never updated or deleted by this service.
type AuditRecorder interface {
	Log(ctx context.Context, e *models.AuditEntry) error
	ListForEntity(ctx context.Context, entityType, entityID string) ([]models.AuditEntry, error)
}

// ShareStore grants and revokes per-account access levels.
type ShareStore interface {
	Upsert(ctx context.Context, s *models.AccountShare) error
}

// Stores bundles the tx-scoped stores a unit of work operates on.
type Stores struct {
	Accounts     AccountLedger
	Transactions TransactionStore
	Tags         TagIndex
	Audit        AuditRecorder
}

// TxRunner executes fn inside one database transaction. The Stores passed to
// fn are bound to that transaction; a nil return commits, any error rolls
// everything back. Inserted rows, balance writes and audit entries are
// all-or-nothing.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, st Stores) error) error
}

// PermissionGate answers authorization questions; levels are ordered
// viewer < editor < owner.
type PermissionGate interface {
	Check(ctx context.Context, actorID, accountID string, required models.PermissionLevel) (bool, error)
	IsAdmin(ctx context.Context, actorID string) (bool, error)
}

// CardDirectory stores payment cards and resolves an optional card reference
// to a card the actor can reach. A nil card with nil error from Resolve means
// "not found".
type CardDirectory interface {
	Insert(ctx context.Context, c *models.Card) error
	Resolve(ctx context.Context, cardID, actorID string) (*models.Card, error)
	ListForUser(ctx context.Context, userID string) ([]models.Card, error)
}

// CurrencyCatalog validates currency codes before they are persisted.
type CurrencyCatalog interface {
	IsSupported(code string) bool
}

// EventPublisher pushes domain events after a unit of work commits. Publish
// failures never undo the committed operation.
type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// AccountViewCache keeps the cached account projection in step with the
// committed balance. Writes are best-effort.
type AccountViewCache interface {
	Set(ctx context.Context, key string, value *models.Account)
	Delete(ctx context.Context, key string)
}
