package record

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/finwatch/amlguard/internal/evidence"
	"github.com/finwatch/amlguard/internal/transaction"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
// It marks the transaction completed through the given transaction store,
// rolling the record back if the status update fails, so the completed
// invariant holds the same way it does under Postgres.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*ComplianceRecord // transaction id → record
	txs     transaction.Store
}

// NewMemoryStore creates an in-memory record store bound to a transaction
// store.
func NewMemoryStore(txs transaction.Store) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*ComplianceRecord),
		txs:     txs,
	}
}

func (s *MemoryStore) Commit(ctx context.Context, rec *ComplianceRecord) error {
	if rec.TransactionID == "" {
		return ErrMissingTransactionID
	}

	s.mu.Lock()
	if _, ok := s.records[rec.TransactionID]; ok {
		s.mu.Unlock()
		return ErrDuplicate
	}
	cp := copyRecord(rec)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.records[rec.TransactionID] = cp
	s.mu.Unlock()

	if err := s.txs.SetStatus(ctx, rec.TransactionID, transaction.StatusCompleted, ""); err != nil {
		s.mu.Lock()
		delete(s.records, rec.TransactionID)
		s.mu.Unlock()
		return fmt.Errorf("failed to mark transaction completed: %w", err)
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, transactionID string) (*ComplianceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[transactionID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(rec), nil
}

func (s *MemoryStore) Exists(ctx context.Context, transactionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[transactionID]
	return ok, nil
}

// Delete removes a record. Test hook for simulating an interrupted write;
// never part of the Store interface.
func (s *MemoryStore) Delete(transactionID string) {
	s.mu.Lock()
	delete(s.records, transactionID)
	s.mu.Unlock()
}

func copyRecord(rec *ComplianceRecord) *ComplianceRecord {
	cp := *rec
	if rec.RuleResults != nil {
		cp.RuleResults = make([]evidence.RuleTestResult, len(rec.RuleResults))
		copy(cp.RuleResults, rec.RuleResults)
	}
	if rec.Errors != nil {
		cp.Errors = make([]string, len(rec.Errors))
		copy(cp.Errors, rec.Errors)
	}
	if rec.Alert.Checklist != nil {
		cp.Alert.Checklist = make([]string, len(rec.Alert.Checklist))
		copy(cp.Alert.Checklist, rec.Alert.Checklist)
	}
	return &cp
}
