package transaction

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu  sync.RWMutex
	txs map[string]*Transaction
}

// NewMemoryStore creates an in-memory transaction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{txs: make(map[string]*Transaction)}
}

func (s *MemoryStore) Create(ctx context.Context, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *tx
	if cp.Status == "" {
		cp.Status = StatusPending
	}
	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.txs[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.txs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, id string, status Status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[id]
	if !ok {
		return ErrNotFound
	}
	tx.Status = status
	tx.StatusReason = reason
	tx.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) History(ctx context.Context, customerID string, since time.Time) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []HistoryEntry
	for _, tx := range s.txs {
		if tx.CustomerID != customerID || tx.CreatedAt.Before(since) {
			continue
		}
		entries = append(entries, HistoryEntry{
			ID:              tx.ID,
			SenderAccount:   tx.SenderAccount,
			ReceiverAccount: tx.ReceiverAccount,
			Amount:          tx.Amount,
			Timestamp:       tx.CreatedAt,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

func (s *MemoryStore) ListCompletedBetween(ctx context.Context, from, to time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, tx := range s.txs {
		if tx.Status != StatusCompleted {
			continue
		}
		if tx.UpdatedAt.Before(from) || tx.UpdatedAt.After(to) {
			continue
		}
		ids = append(ids, tx.ID)
	}
	sort.Strings(ids)
	return ids, nil
}
