package transaction

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore persists transactions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed transaction store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the transactions table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id                VARCHAR(64) PRIMARY KEY,
			customer_id       VARCHAR(64) NOT NULL,
			customer_rating   VARCHAR(16) NOT NULL DEFAULT 'medium',
			sender_account    VARCHAR(128) NOT NULL,
			receiver_account  VARCHAR(128) NOT NULL,
			sender_country    VARCHAR(2) NOT NULL DEFAULT '',
			receiver_country  VARCHAR(2) NOT NULL DEFAULT '',
			amount            NUMERIC(18,2) NOT NULL,
			currency          VARCHAR(8) NOT NULL DEFAULT 'USD',
			sanctions_hit     BOOLEAN NOT NULL DEFAULT FALSE,
			pep_involved      BOOLEAN NOT NULL DEFAULT FALSE,
			status            VARCHAR(16) NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending', 'processing', 'completed', 'failed')),
			status_reason     TEXT NOT NULL DEFAULT '',
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_transactions_customer
			ON transactions (customer_id, created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_transactions_completed
			ON transactions (updated_at) WHERE status = 'completed';
	`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, tx *Transaction) error {
	status := tx.Status
	if status == "" {
		status = StatusPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, customer_id, customer_rating, sender_account, receiver_account,
			sender_country, receiver_country, amount, currency,
			sanctions_hit, pep_involved, status, status_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		tx.ID, tx.CustomerID, tx.CustomerRating, tx.SenderAccount, tx.ReceiverAccount,
		tx.SenderCountry, tx.ReceiverCountry, tx.Amount, tx.Currency,
		tx.SanctionsHit, tx.PEPInvolved, string(status), tx.StatusReason,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, customer_rating, sender_account, receiver_account,
		       sender_country, receiver_country, amount, currency,
		       sanctions_hit, pep_involved, status, status_reason,
		       created_at, updated_at
		FROM transactions
		WHERE id = $1
	`, id)

	var tx Transaction
	var status string
	err := row.Scan(
		&tx.ID, &tx.CustomerID, &tx.CustomerRating, &tx.SenderAccount, &tx.ReceiverAccount,
		&tx.SenderCountry, &tx.ReceiverCountry, &tx.Amount, &tx.Currency,
		&tx.SanctionsHit, &tx.PEPInvolved, &status, &tx.StatusReason,
		&tx.CreatedAt, &tx.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	tx.Status = Status(status)
	return &tx, nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, id string, status Status, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2, status_reason = $3, updated_at = NOW()
		WHERE id = $1
	`, id, string(status), reason)
	if err != nil {
		return fmt.Errorf("failed to set transaction status: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) History(ctx context.Context, customerID string, since time.Time) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_account, receiver_account, amount, created_at
		FROM transactions
		WHERE customer_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
	`, customerID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.SenderAccount, &e.ReceiverAccount, &e.Amount, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) ListCompletedBetween(ctx context.Context, from, to time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM transactions
		WHERE status = 'completed' AND updated_at >= $1 AND updated_at <= $2
		ORDER BY id
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan transaction id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
