package events

import "time"

// Event types
const (
	TransactionCreated = "transaction.created"
	TransactionUpdated = "transaction.updated"
	TransactionDeleted = "transaction.deleted"
	TransactionSplit   = "transaction.split"
	TransactionJoined  = "transaction.joined"
	BalanceUpdated     = "balance.updated"

	AccountCreated = "account.created"
	AccountDeleted = "account.deleted"
)

// Stream names
const (
	AccountEventsStream     = "account.events"
	TransactionEventsStream = "transaction.events"
)

// Base event structure
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type TransactionEvent struct {
	TransactionID string `json:"transactionId"`
	AccountID     string `json:"accountId"`
	ActorID       string `json:"actorId"`
	Amount        string `json:"amount,omitempty"`
	Currency      string `json:"currency,omitempty"`
	Type          string `json:"type,omitempty"`
	ChildCount    int    `json:"childCount,omitempty"`
}

type BalanceUpdatedEvent struct {
	AccountID  string `json:"accountId"`
	NewBalance string `json:"newBalance"`
	Change     string `json:"change"`
}

type AccountEvent struct {
	AccountID string `json:"accountId"`
	OwnerID   string `json:"ownerId"`
	Name      string `json:"name,omitempty"`
	Currency  string `json:"currency,omitempty"`
}
