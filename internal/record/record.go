// Package record persists the durable compliance record and carries the
// persistence-integrity guarantee: committing a record and marking its
// transaction "completed" is one logical operation. A transaction must never
// read as completed without its record.
package record

import (
	"context"
	"errors"
	"time"

	"github.com/finwatch/amlguard/internal/alerts"
	"github.com/finwatch/amlguard/internal/evidence"
	"github.com/finwatch/amlguard/internal/features"
	"github.com/finwatch/amlguard/internal/fusion"
	"github.com/finwatch/amlguard/internal/patterns"
	"github.com/finwatch/amlguard/internal/posterior"
)

var (
	// ErrNotFound is returned when no record exists for a transaction id.
	ErrNotFound = errors.New("compliance record not found")
	// ErrDuplicate is returned on a second commit for the same transaction.
	// Records are immutable once written.
	ErrDuplicate = errors.New("compliance record already exists")
	// ErrMissingTransactionID is fatal and non-retryable for the transaction.
	ErrMissingTransactionID = errors.New("compliance record has no transaction id")
)

// ComplianceRecord is the audit-grade artifact summarizing evidence and
// verdict for one completed transaction. Immutable once written.
type ComplianceRecord struct {
	ID             string                    `json:"id"`
	TransactionID  string                    `json:"transactionId"`
	RuleResults    []evidence.RuleTestResult `json:"ruleResults"`
	RuleBasedScore float64                   `json:"ruleBasedScore"`
	Features       features.FeatureSet       `json:"features"`
	PatternScores  patterns.ScoreSet         `json:"patternScores"`
	Posterior      posterior.Distribution    `json:"posterior"`
	Fusion         fusion.Result             `json:"fusion"`
	Alert          alerts.Decision           `json:"alert"`
	Errors         []string                  `json:"errors,omitempty"`
	CreatedAt      time.Time                 `json:"createdAt"`
}

// Store persists compliance records. Commit must atomically write the record
// and transition the transaction to "completed"; a failed commit must leave
// the transaction status untouched.
type Store interface {
	Commit(ctx context.Context, rec *ComplianceRecord) error
	Get(ctx context.Context, transactionID string) (*ComplianceRecord, error)
	Exists(ctx context.Context, transactionID string) (bool, error)
}
