package integrity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/finwatch/amlguard/internal/record"
	"github.com/finwatch/amlguard/internal/transaction"
)

func setup(t *testing.T) (*transaction.MemoryStore, *record.MemoryStore, *Monitor) {
	t.Helper()
	txs := transaction.NewMemoryStore()
	records := record.NewMemoryStore(txs)
	return txs, records, NewMonitor(txs, records, 24*time.Hour)
}

func commit(t *testing.T, txs *transaction.MemoryStore, records *record.MemoryStore, id string) {
	t.Helper()
	ctx := context.Background()
	if err := txs.Create(ctx, &transaction.Transaction{ID: id, CustomerID: "cust-1"}); err != nil {
		t.Fatalf("create %s: %v", id, err)
	}
	if err := records.Commit(ctx, &record.ComplianceRecord{ID: "rec_" + id, TransactionID: id}); err != nil {
		t.Fatalf("commit %s: %v", id, err)
	}
}

func window() (time.Time, time.Time) {
	now := time.Now()
	return now.Add(-time.Hour), now.Add(time.Minute)
}

func TestVerifyCleanWindow(t *testing.T) {
	txs, records, m := setup(t)
	commit(t, txs, records, "txn_a")
	commit(t, txs, records, "txn_b")

	from, to := window()
	report, err := m.Verify(context.Background(), from, to)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if report.CompletedCount != 2 || report.RecordCount != 2 {
		t.Errorf("counts = (%d, %d), want (2, 2)", report.CompletedCount, report.RecordCount)
	}
	if len(report.Violations) != 0 {
		t.Errorf("Violations = %v, want none", report.Violations)
	}
	if report.IntegrityRate != 1.0 {
		t.Errorf("IntegrityRate = %v, want 1.0", report.IntegrityRate)
	}
}

func TestVerifyEmptyWindowIsHealthy(t *testing.T) {
	_, _, m := setup(t)
	from, to := window()
	report, err := m.Verify(context.Background(), from, to)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if report.IntegrityRate != 1.0 {
		t.Errorf("IntegrityRate on empty window = %v, want 1.0", report.IntegrityRate)
	}
}

func TestVerifyFindsViolation(t *testing.T) {
	txs, records, m := setup(t)
	commit(t, txs, records, "txn_ok")
	commit(t, txs, records, "txn_bad")
	records.Delete("txn_bad") // simulate an interrupted write

	from, to := window()
	report, err := m.Verify(context.Background(), from, to)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if report.CompletedCount != 2 || report.RecordCount != 1 {
		t.Errorf("counts = (%d, %d), want (2, 1)", report.CompletedCount, report.RecordCount)
	}
	if len(report.Violations) != 1 || report.Violations[0].TransactionID != "txn_bad" {
		t.Fatalf("Violations = %+v, want one for txn_bad", report.Violations)
	}
	if report.IntegrityRate != 0.5 {
		t.Errorf("IntegrityRate = %v, want 0.5", report.IntegrityRate)
	}
}

type capturingPublisher struct {
	violations []string
}

func (p *capturingPublisher) PublishIntegrityViolation(transactionID string) {
	p.violations = append(p.violations, transactionID)
}

func TestVerifyPublishesViolations(t *testing.T) {
	txs := transaction.NewMemoryStore()
	records := record.NewMemoryStore(txs)
	pub := &capturingPublisher{}
	m := NewMonitor(txs, records, 24*time.Hour, WithPublisher(pub))

	commit(t, txs, records, "txn_ok")
	commit(t, txs, records, "txn_bad")
	records.Delete("txn_bad")

	from, to := window()
	if _, err := m.Verify(context.Background(), from, to); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if len(pub.violations) != 1 || pub.violations[0] != "txn_bad" {
		t.Fatalf("published violations = %v, want [txn_bad]", pub.violations)
	}

	// Each sweep re-announces outstanding violations; healthy transactions
	// stay silent.
	pub.violations = nil
	commit(t, txs, records, "txn_ok2")
	if _, err := m.Verify(context.Background(), from, to); err != nil {
		t.Fatalf("second Verify() error = %v", err)
	}
	if len(pub.violations) != 1 || pub.violations[0] != "txn_bad" {
		t.Fatalf("re-verify published = %v, want [txn_bad] again", pub.violations)
	}
}

func TestVerifyIsIdempotent(t *testing.T) {
	txs, records, m := setup(t)
	commit(t, txs, records, "txn_ok")
	commit(t, txs, records, "txn_bad")
	records.Delete("txn_bad")

	from, to := window()
	first, err := m.Verify(context.Background(), from, to)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	second, err := m.Verify(context.Background(), from, to)
	if err != nil {
		t.Fatalf("second Verify() error = %v", err)
	}
	// Same findings, different report identity.
	if first.CompletedCount != second.CompletedCount ||
		first.RecordCount != second.RecordCount ||
		len(first.Violations) != len(second.Violations) ||
		first.IntegrityRate != second.IntegrityRate {
		t.Errorf("repeated verify diverged: %+v vs %+v", first, second)
	}
	if first.ID == second.ID {
		t.Error("reports share an ID")
	}
}

func TestCheckTransaction(t *testing.T) {
	txs, records, m := setup(t)
	ctx := context.Background()

	commit(t, txs, records, "txn_ok")
	if err := m.CheckTransaction(ctx, "txn_ok"); err != nil {
		t.Errorf("CheckTransaction(ok) = %v, want nil", err)
	}

	// Non-terminal transaction has no record yet: that's fine.
	_ = txs.Create(ctx, &transaction.Transaction{ID: "txn_pending"})
	if err := m.CheckTransaction(ctx, "txn_pending"); err != nil {
		t.Errorf("CheckTransaction(pending) = %v, want nil", err)
	}

	commit(t, txs, records, "txn_bad")
	records.Delete("txn_bad")
	err := m.CheckTransaction(ctx, "txn_bad")
	if !errors.Is(err, ErrIntegrityViolation) {
		t.Errorf("CheckTransaction(bad) = %v, want ErrIntegrityViolation", err)
	}

	if err := m.CheckTransaction(ctx, "txn_missing"); err == nil {
		t.Error("CheckTransaction(missing) = nil, want error")
	}
}

func TestHealthCheckDegrades(t *testing.T) {
	txs, records, m := setup(t)
	check := m.HealthCheck()

	// Empty window: healthy.
	if st := check(context.Background()); !st.Healthy {
		t.Errorf("empty window: Healthy = false, detail %q", st.Detail)
	}

	// 1 violation out of 2 completed drops the rate to 0.5, below 99%.
	commit(t, txs, records, "txn_ok")
	commit(t, txs, records, "txn_bad")
	records.Delete("txn_bad")
	if st := check(context.Background()); st.Healthy {
		t.Error("degraded window: Healthy = true, want false")
	}
}
