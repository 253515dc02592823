package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/finwatch/amlguard/internal/alerts"
	"github.com/finwatch/amlguard/internal/evidence"
	"github.com/finwatch/amlguard/internal/features"
	"github.com/finwatch/amlguard/internal/fusion"
	"github.com/finwatch/amlguard/internal/integrity"
	"github.com/finwatch/amlguard/internal/record"
	"github.com/finwatch/amlguard/internal/transaction"
)

// stubSearcher returns a fixed rule set or a fixed error.
type stubSearcher struct {
	rules []evidence.CandidateRule
	err   error
}

func (s stubSearcher) Search(_ context.Context, _ *transaction.Transaction, limit int) ([]evidence.CandidateRule, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit > 0 && limit < len(s.rules) {
		return s.rules[:limit], nil
	}
	return s.rules, nil
}

// stubJudge delegates to a function.
type stubJudge struct {
	fn func(rule evidence.CandidateRule, tx *transaction.Transaction) evidence.RuleTestResult
}

func (j stubJudge) Test(_ context.Context, rule evidence.CandidateRule, tx *transaction.Transaction) evidence.RuleTestResult {
	return j.fn(rule, tx)
}

func passingJudge() stubJudge {
	return stubJudge{fn: func(rule evidence.CandidateRule, _ *transaction.Transaction) evidence.RuleTestResult {
		return evidence.RuleTestResult{
			RuleID: rule.RuleID, Status: evidence.StatusPass, Severity: rule.Severity,
		}
	}}
}

func degradedJudge() stubJudge {
	return stubJudge{fn: func(rule evidence.CandidateRule, _ *transaction.Transaction) evidence.RuleTestResult {
		return evidence.FallbackResult(rule, fmt.Errorf("judge unreachable"))
	}}
}

// vanishingStore commits normally, then loses the record. Simulates the
// interrupted write the post-commit self-check exists to catch.
type vanishingStore struct {
	*record.MemoryStore
}

func (s vanishingStore) Commit(ctx context.Context, rec *record.ComplianceRecord) error {
	if err := s.MemoryStore.Commit(ctx, rec); err != nil {
		return err
	}
	s.MemoryStore.Delete(rec.TransactionID)
	return nil
}

// capturingPublisher records published events.
type capturingPublisher struct {
	verdicts []fusion.Result
	alerts   []alerts.Decision
}

func (p *capturingPublisher) PublishVerdict(_ string, result fusion.Result)   { p.verdicts = append(p.verdicts, result) }
func (p *capturingPublisher) PublishAlert(_ string, decision alerts.Decision) { p.alerts = append(p.alerts, decision) }

var twoRules = []evidence.CandidateRule{
	{RuleID: "r-critical", Severity: evidence.SeverityCritical},
	{RuleID: "r-medium", Severity: evidence.SeverityMedium},
}

func seedTx(t *testing.T, txs transaction.Store, tx *transaction.Transaction) {
	t.Helper()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	if err := txs.Create(context.Background(), tx); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
}

func newOrchestrator(txs transaction.Store, records record.Store, searcher evidence.Searcher, judge evidence.Judge, opts ...Option) *Orchestrator {
	extractor := features.NewExtractor(10000, 10000, nil)
	return New(txs, searcher, judge, extractor, records, opts...)
}

func TestRunHappyPathCleanTransaction(t *testing.T) {
	txs := transaction.NewMemoryStore()
	records := record.NewMemoryStore(txs)
	pub := &capturingPublisher{}
	o := newOrchestrator(txs, records, stubSearcher{rules: twoRules}, passingJudge(), WithPublisher(pub))

	seedTx(t, txs, &transaction.Transaction{ID: "txn_1", CustomerID: "cust-1", CustomerRating: "low", Amount: 100})

	rec, err := o.Run(context.Background(), "txn_1")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if rec.TransactionID != "txn_1" || rec.ID == "" {
		t.Errorf("record identity = %q/%q", rec.ID, rec.TransactionID)
	}
	if len(rec.RuleResults) != 2 {
		t.Errorf("len(RuleResults) = %d, want 2", len(rec.RuleResults))
	}
	if rec.RuleBasedScore != 0 {
		t.Errorf("RuleBasedScore = %v, want 0 (all passes)", rec.RuleBasedScore)
	}
	if rec.Fusion.Band != fusion.BandLow {
		t.Errorf("Band = %v, want Low", rec.Fusion.Band)
	}
	if rec.Alert.AlertType != alerts.TypeRoutineMonitoring {
		t.Errorf("AlertType = %q, want routine_monitoring", rec.Alert.AlertType)
	}
	if len(rec.Errors) != 0 {
		t.Errorf("Errors = %v, want none", rec.Errors)
	}

	tx, _ := txs.Get(context.Background(), "txn_1")
	if tx.Status != transaction.StatusCompleted {
		t.Errorf("Status = %q, want completed", tx.Status)
	}
	if len(pub.verdicts) != 1 || len(pub.alerts) != 1 {
		t.Errorf("published %d verdicts, %d alerts, want 1 each", len(pub.verdicts), len(pub.alerts))
	}
}

func TestRunSanctionsHitEscalatesToLegal(t *testing.T) {
	txs := transaction.NewMemoryStore()
	records := record.NewMemoryStore(txs)
	o := newOrchestrator(txs, records, evidence.NewStaticSearcher(), evidence.MockJudge{})

	seedTx(t, txs, &transaction.Transaction{
		ID: "txn_1", CustomerID: "cust-1", CustomerRating: "high",
		Amount: 50000, SenderCountry: "US", ReceiverCountry: "IR", SanctionsHit: true,
	})

	rec, err := o.Run(context.Background(), "txn_1")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rec.Alert.Role != alerts.RoleLegal || rec.Alert.AlertType != alerts.TypeSanctionsBreach {
		t.Errorf("Alert = {%s %s}, want {Legal sanctions_breach}", rec.Alert.Role, rec.Alert.AlertType)
	}
	if len(rec.Alert.Checklist) == 0 {
		t.Error("sanctions alert has no checklist")
	}
	if rec.Fusion.Score <= 30 {
		t.Errorf("Score = %v, want well above low band for a sanctions hit", rec.Fusion.Score)
	}
}

func TestRunJudgeAlwaysDegraded(t *testing.T) {
	txs := transaction.NewMemoryStore()
	records := record.NewMemoryStore(txs)
	o := newOrchestrator(txs, records, stubSearcher{rules: twoRules}, degradedJudge())

	seedTx(t, txs, &transaction.Transaction{ID: "txn_1", CustomerID: "cust-1", Amount: 100})

	rec, err := o.Run(context.Background(), "txn_1")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// All results are the {partial, 50} fallback, weighted mean is exactly 50.
	if rec.RuleBasedScore != 50 {
		t.Errorf("RuleBasedScore = %v, want 50", rec.RuleBasedScore)
	}
	if !hasErrorContaining(rec.Errors, "rule_testing") {
		t.Errorf("Errors = %v, want a rule_testing degradation note", rec.Errors)
	}
	tx, _ := txs.Get(context.Background(), "txn_1")
	if tx.Status != transaction.StatusCompleted {
		t.Errorf("Status = %q, want completed despite degradation", tx.Status)
	}
}

func TestRunSearcherFailureDegradesToNoEvidence(t *testing.T) {
	txs := transaction.NewMemoryStore()
	records := record.NewMemoryStore(txs)
	o := newOrchestrator(txs, records, stubSearcher{err: fmt.Errorf("search service down")}, passingJudge())

	seedTx(t, txs, &transaction.Transaction{ID: "txn_1", CustomerID: "cust-1", CustomerRating: "low", Amount: 100})

	rec, err := o.Run(context.Background(), "txn_1")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(rec.RuleResults) != 0 || rec.RuleBasedScore != 0 {
		t.Errorf("evidence = (%d results, score %v), want none", len(rec.RuleResults), rec.RuleBasedScore)
	}
	if !hasErrorContaining(rec.Errors, "rule_retrieval") {
		t.Errorf("Errors = %v, want a rule_retrieval degradation note", rec.Errors)
	}
	// No evidence and a clean feature set: the posterior is the prior.
	if rec.Fusion.Band != fusion.BandLow {
		t.Errorf("Band = %v, want Low (fail-safe-low)", rec.Fusion.Band)
	}
}

func TestRunAbandonedBeforePersistence(t *testing.T) {
	txs := transaction.NewMemoryStore()
	records := record.NewMemoryStore(txs)
	o := newOrchestrator(txs, records, stubSearcher{rules: twoRules}, passingJudge())

	seedTx(t, txs, &transaction.Transaction{ID: "txn_1", CustomerID: "cust-1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec, err := o.Run(ctx, "txn_1")
	if err == nil {
		t.Fatal("Run() error = nil, want abandonment")
	}
	if rec != nil {
		t.Errorf("record = %+v, want nil", rec)
	}

	// The transaction must stay re-runnable: non-terminal, no record.
	tx, _ := txs.Get(context.Background(), "txn_1")
	if tx.Status.Terminal() {
		t.Errorf("Status = %q, want non-terminal", tx.Status)
	}
	if ok, _ := records.Exists(context.Background(), "txn_1"); ok {
		t.Error("record written for abandoned run")
	}

	// Re-running to completion works.
	if _, err := o.Run(context.Background(), "txn_1"); err != nil {
		t.Fatalf("re-run error = %v", err)
	}
}

func TestRunInterruptedWriteForcesFailed(t *testing.T) {
	txs := transaction.NewMemoryStore()
	records := vanishingStore{record.NewMemoryStore(txs)}
	o := newOrchestrator(txs, records, stubSearcher{rules: twoRules}, passingJudge())

	seedTx(t, txs, &transaction.Transaction{ID: "txn_1", CustomerID: "cust-1"})

	_, err := o.Run(context.Background(), "txn_1")
	if !errors.Is(err, integrity.ErrIntegrityViolation) {
		t.Fatalf("Run() error = %v, want ErrIntegrityViolation", err)
	}

	tx, _ := txs.Get(context.Background(), "txn_1")
	if tx.Status != transaction.StatusFailed {
		t.Errorf("Status = %q, want failed after self-check", tx.Status)
	}
	if tx.StatusReason == "" {
		t.Error("StatusReason empty, want the self-check explanation")
	}
}

func TestRunCommitFailureMarksFailed(t *testing.T) {
	txs := transaction.NewMemoryStore()
	records := record.NewMemoryStore(txs)
	o := newOrchestrator(txs, records, stubSearcher{rules: twoRules}, passingJudge())

	seedTx(t, txs, &transaction.Transaction{ID: "txn_1", CustomerID: "cust-1"})

	// First run commits.
	if _, err := o.Run(context.Background(), "txn_1"); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	// Second run hits the duplicate record and must fail the transaction.
	_, err := o.Run(context.Background(), "txn_1")
	if !errors.Is(err, record.ErrDuplicate) {
		t.Fatalf("second Run() error = %v, want ErrDuplicate", err)
	}
	tx, _ := txs.Get(context.Background(), "txn_1")
	if tx.Status != transaction.StatusFailed {
		t.Errorf("Status = %q, want failed", tx.Status)
	}
}

func TestRunMissingTransaction(t *testing.T) {
	txs := transaction.NewMemoryStore()
	records := record.NewMemoryStore(txs)
	o := newOrchestrator(txs, records, stubSearcher{rules: twoRules}, passingJudge())

	if _, err := o.Run(context.Background(), ""); !errors.Is(err, record.ErrMissingTransactionID) {
		t.Errorf("Run(\"\") error = %v, want ErrMissingTransactionID", err)
	}
	if _, err := o.Run(context.Background(), "txn_ghost"); !errors.Is(err, transaction.ErrNotFound) {
		t.Errorf("Run(ghost) error = %v, want ErrNotFound", err)
	}
}

func TestRunStageRecoversFromPanic(t *testing.T) {
	txs := transaction.NewMemoryStore()
	records := record.NewMemoryStore(txs)
	panicJudge := stubJudge{fn: func(evidence.CandidateRule, *transaction.Transaction) evidence.RuleTestResult {
		panic("judge exploded")
	}}
	o := newOrchestrator(txs, records, stubSearcher{rules: twoRules}, panicJudge)

	seedTx(t, txs, &transaction.Transaction{ID: "txn_1", CustomerID: "cust-1"})

	rec, err := o.Run(context.Background(), "txn_1")
	if err != nil {
		t.Fatalf("Run() error = %v, want recovery and completion", err)
	}
	if !hasErrorContaining(rec.Errors, "panicked") {
		t.Errorf("Errors = %v, want a panic note", rec.Errors)
	}
	tx, _ := txs.Get(context.Background(), "txn_1")
	if tx.Status != transaction.StatusCompleted {
		t.Errorf("Status = %q, want completed", tx.Status)
	}
}

func hasErrorContaining(errs []string, substr string) bool {
	for _, e := range errs {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}
