package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"-"`
	CreatedAt    time.Time `json:"createdTimestamp"`
	UpdatedAt    time.Time `json:"updatedTimestamp"`
}

type Account struct {
	ID             string          `json:"id"`
	OwnerID        string          `json:"-"`
	Name           string          `json:"name"`
	Currency       string          `json:"currency"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
	CurrentBalance decimal.Decimal `json:"currentBalance"`
	IsActive       bool            `json:"isActive"`
	CreatedAt      time.Time       `json:"createdTimestamp"`
	UpdatedAt      time.Time       `json:"updatedTimestamp"`
	DeletedAt      *time.Time      `json:"-"`
}

type Transaction struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"accountId"`
	ParentID    *string         `json:"parentTransactionId,omitempty"`
	TxnDate     time.Time       `json:"transactionDate"`
	ValueDate   *time.Time      `json:"valueDate,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	Merchant    *string         `json:"merchant,omitempty"`
	Type        string          `json:"type"`
	CardID      *string         `json:"cardId,omitempty"`
	Notes       *string         `json:"notes,omitempty"`
	CreatedBy   string          `json:"createdBy"`
	UpdatedBy   string          `json:"updatedBy"`
	CreatedAt   time.Time       `json:"createdTimestamp"`
	UpdatedAt   time.Time       `json:"updatedTimestamp"`
	DeletedAt   *time.Time      `json:"-"`
}

// IsChild reports whether the transaction is a split child. A child can never
// be split again; one level of nesting is the invariant the tree queries rely
// on.
func (t *Transaction) IsChild() bool { return t.ParentID != nil }

type TransactionTag struct {
	TransactionID string `json:"transactionId"`
	Tag           string `json:"tag"`
}

// TagCount is one row of the per-account tag usage statistics.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

type Card struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"-"`
	Label     string     `json:"label"`
	Last4     string     `json:"last4"`
	CardType  string     `json:"cardType"`
	CreatedAt time.Time  `json:"createdTimestamp"`
	UpdatedAt time.Time  `json:"updatedTimestamp"`
	DeletedAt *time.Time `json:"-"`
}

// PermissionLevel orders access to an account: viewer < editor < owner.
type PermissionLevel int

const (
	LevelViewer PermissionLevel = iota
	LevelEditor
	LevelOwner
)

func (l PermissionLevel) String() string {
	switch l {
	case LevelViewer:
		return "viewer"
	case LevelEditor:
		return "editor"
	case LevelOwner:
		return "owner"
	}
	return "unknown"
}

// ParsePermissionLevel maps the stored/wire representation back to a level.
func ParsePermissionLevel(s string) (PermissionLevel, bool) {
	switch s {
	case "viewer":
		return LevelViewer, true
	case "editor":
		return LevelEditor, true
	case "owner":
		return LevelOwner, true
	}
	return 0, false
}

// Covers reports whether a grant at level l satisfies a requirement.
func (l PermissionLevel) Covers(required PermissionLevel) bool { return l >= required }

type AccountShare struct {
	AccountID string          `json:"accountId"`
	UserID    string          `json:"userId"`
	Level     PermissionLevel `json:"level"`
	CreatedAt time.Time       `json:"createdTimestamp"`
}

// AuditEntry is one append-only audit log row. Old/new values carry the
// per-field before/after snapshots of the mutated entity.
type AuditEntry struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actorId"`
	Action     string         `json:"action"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	OldValues  map[string]any `json:"oldValues,omitempty"`
	NewValues  map[string]any `json:"newValues,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"createdTimestamp"`
}
