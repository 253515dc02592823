// Package transaction holds the transaction model, its processing status
// machine, and the stores the pipeline reads history from.
package transaction

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a transaction id is unknown.
var ErrNotFound = errors.New("transaction not found")

// Status is the processing state of a transaction.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether a status is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Transaction is a single financial transaction under review.
type Transaction struct {
	ID              string    `json:"id"`
	CustomerID      string    `json:"customerId"`
	CustomerRating  string    `json:"customerRating"` // low, medium, high, critical
	SenderAccount   string    `json:"senderAccount"`
	ReceiverAccount string    `json:"receiverAccount"`
	SenderCountry   string    `json:"senderCountry"`
	ReceiverCountry string    `json:"receiverCountry"`
	Amount          float64   `json:"amount"`
	Currency        string    `json:"currency"`
	SanctionsHit    bool      `json:"sanctionsHit"`
	PEPInvolved     bool      `json:"pepInvolved"`
	Status          Status    `json:"status"`
	StatusReason    string    `json:"statusReason,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// HistoryEntry is one prior transaction of the same customer, used for
// behavioral pattern analysis.
type HistoryEntry struct {
	ID              string    `json:"id"`
	SenderAccount   string    `json:"senderAccount"`
	ReceiverAccount string    `json:"receiverAccount"`
	Amount          float64   `json:"amount"`
	Timestamp       time.Time `json:"timestamp"`
}

// Store persists transactions and their processing status.
type Store interface {
	Create(ctx context.Context, tx *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
	SetStatus(ctx context.Context, id string, status Status, reason string) error
	// History returns the customer's prior transactions since the given time,
	// most recent first.
	History(ctx context.Context, customerID string, since time.Time) ([]HistoryEntry, error)
	// ListCompletedBetween returns ids of transactions that reached
	// "completed" inside the window. Used by the integrity monitor.
	ListCompletedBetween(ctx context.Context, from, to time.Time) ([]string, error)
}
