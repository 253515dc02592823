package record

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists compliance records in PostgreSQL. Commit writes the
// record and flips the transaction to "completed" inside one database
// transaction, so a partial failure can never leave a completed transaction
// without its record.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed compliance record store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the compliance_records table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS compliance_records (
			id               VARCHAR(64) PRIMARY KEY,
			transaction_id   VARCHAR(64) NOT NULL UNIQUE
				REFERENCES transactions (id),
			rule_results     JSONB NOT NULL DEFAULT '[]',
			rule_based_score NUMERIC(5,2) NOT NULL CHECK (rule_based_score >= 0 AND rule_based_score <= 100),
			features         JSONB NOT NULL DEFAULT '{}',
			pattern_scores   JSONB NOT NULL DEFAULT '{}',
			posterior        JSONB NOT NULL DEFAULT '{}',
			fusion           JSONB NOT NULL DEFAULT '{}',
			alert            JSONB NOT NULL DEFAULT '{}',
			errors           TEXT[] NOT NULL DEFAULT '{}',
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_compliance_records_created
			ON compliance_records (created_at DESC);
	`)
	return err
}

func (s *PostgresStore) Commit(ctx context.Context, rec *ComplianceRecord) error {
	if rec.TransactionID == "" {
		return ErrMissingTransactionID
	}

	ruleResults, err := json.Marshal(rec.RuleResults)
	if err != nil {
		return fmt.Errorf("failed to marshal rule results: %w", err)
	}
	featuresJSON, err := json.Marshal(rec.Features)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}
	patternsJSON, err := json.Marshal(rec.PatternScores)
	if err != nil {
		return fmt.Errorf("failed to marshal pattern scores: %w", err)
	}
	posteriorJSON, err := json.Marshal(rec.Posterior)
	if err != nil {
		return fmt.Errorf("failed to marshal posterior: %w", err)
	}
	fusionJSON, err := json.Marshal(rec.Fusion)
	if err != nil {
		return fmt.Errorf("failed to marshal fusion result: %w", err)
	}
	alertJSON, err := json.Marshal(rec.Alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert decision: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin commit transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO compliance_records (
			id, transaction_id, rule_results, rule_based_score,
			features, pattern_scores, posterior, fusion, alert, errors, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		rec.ID, rec.TransactionID, ruleResults, rec.RuleBasedScore,
		featuresJSON, patternsJSON, posteriorJSON, fusionJSON, alertJSON,
		pq.Array(rec.Errors), createdAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert compliance record: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = 'completed', status_reason = '', updated_at = NOW()
		WHERE id = $1
	`, rec.TransactionID)
	if err != nil {
		return fmt.Errorf("failed to mark transaction completed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to mark transaction completed: unknown transaction %q", rec.TransactionID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit compliance record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, transactionID string) (*ComplianceRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, transaction_id, rule_results, rule_based_score,
		       features, pattern_scores, posterior, fusion, alert, errors, created_at
		FROM compliance_records
		WHERE transaction_id = $1
	`, transactionID)

	var rec ComplianceRecord
	var ruleResults, featuresJSON, patternsJSON, posteriorJSON, fusionJSON, alertJSON []byte
	err := row.Scan(
		&rec.ID, &rec.TransactionID, &ruleResults, &rec.RuleBasedScore,
		&featuresJSON, &patternsJSON, &posteriorJSON, &fusionJSON, &alertJSON,
		pq.Array(&rec.Errors), &rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get compliance record: %w", err)
	}

	if err := json.Unmarshal(ruleResults, &rec.RuleResults); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rule results: %w", err)
	}
	if err := json.Unmarshal(featuresJSON, &rec.Features); err != nil {
		return nil, fmt.Errorf("failed to unmarshal features: %w", err)
	}
	if err := json.Unmarshal(patternsJSON, &rec.PatternScores); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pattern scores: %w", err)
	}
	if err := json.Unmarshal(posteriorJSON, &rec.Posterior); err != nil {
		return nil, fmt.Errorf("failed to unmarshal posterior: %w", err)
	}
	if err := json.Unmarshal(fusionJSON, &rec.Fusion); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fusion result: %w", err)
	}
	if err := json.Unmarshal(alertJSON, &rec.Alert); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alert decision: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) Exists(ctx context.Context, transactionID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM compliance_records WHERE transaction_id = $1)
	`, transactionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check compliance record existence: %w", err)
	}
	return exists, nil
}
