// Package integrity verifies the persistence guarantee: every transaction
// marked "completed" has exactly one compliance record. Verification is
// read-only and idempotent; reports are computed views, never persisted.
package integrity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/finwatch/amlguard/internal/health"
	"github.com/finwatch/amlguard/internal/idgen"
	"github.com/finwatch/amlguard/internal/record"
	"github.com/finwatch/amlguard/internal/transaction"
)

// ErrIntegrityViolation is returned when a completed transaction has no
// compliance record. Never swallow it: the core guarantee is "never believe
// completed without proof".
var ErrIntegrityViolation = errors.New("integrity violation: completed transaction without compliance record")

// degradedBelow is the windowed integrity rate under which health reports
// degraded.
const degradedBelow = 0.99

// Violation identifies one completed transaction lacking its record.
type Violation struct {
	TransactionID string `json:"transactionId"`
	Detail        string `json:"detail"`
}

// Report is the result of verifying one window. Computed on demand.
type Report struct {
	ID             string      `json:"id"`
	WindowStart    time.Time   `json:"windowStart"`
	WindowEnd      time.Time   `json:"windowEnd"`
	CompletedCount int         `json:"completedCount"`
	RecordCount    int         `json:"recordCount"`
	Violations     []Violation `json:"violations"`
	IntegrityRate  float64     `json:"integrityRate"` // 1.0 when window is empty
	GeneratedAt    time.Time   `json:"generatedAt"`
}

// Publisher receives a violation event for every completed-without-record
// finding as Verify discovers it.
type Publisher interface {
	PublishIntegrityViolation(transactionID string)
}

// Monitor scans completed transactions against compliance records.
type Monitor struct {
	txs     transaction.Store
	records record.Store
	window  time.Duration // health-check lookback
	events  Publisher
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithPublisher wires a violation event publisher.
func WithPublisher(p Publisher) Option {
	return func(m *Monitor) {
		m.events = p
	}
}

// NewMonitor creates an integrity monitor. window is the lookback used by
// the health checker; zero means 24 hours.
func NewMonitor(txs transaction.Store, records record.Store, window time.Duration, opts ...Option) *Monitor {
	if window <= 0 {
		window = 24 * time.Hour
	}
	m := &Monitor{txs: txs, records: records, window: window}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Verify scans the window and reports every completed transaction without a
// matching record. Running it twice on an unchanged window yields an
// identical report apart from ID and timestamp.
func (m *Monitor) Verify(ctx context.Context, from, to time.Time) (*Report, error) {
	ids, err := m.txs.ListCompletedBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed transactions: %w", err)
	}

	report := &Report{
		ID:             idgen.ReportID(),
		WindowStart:    from,
		WindowEnd:      to,
		CompletedCount: len(ids),
		IntegrityRate:  1.0,
		GeneratedAt:    time.Now(),
	}

	for _, id := range ids {
		ok, err := m.records.Exists(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to check record for transaction %s: %w", id, err)
		}
		if ok {
			report.RecordCount++
			continue
		}
		report.Violations = append(report.Violations, Violation{
			TransactionID: id,
			Detail:        "marked completed but no compliance record found",
		})
		if m.events != nil {
			m.events.PublishIntegrityViolation(id)
		}
	}

	if report.CompletedCount > 0 {
		report.IntegrityRate = float64(report.RecordCount) / float64(report.CompletedCount)
	}

	violationsFound.Set(float64(len(report.Violations)))
	integrityRate.Set(report.IntegrityRate)
	checksTotal.Inc()

	return report, nil
}

// CheckTransaction verifies a single transaction. A completed transaction
// without its record returns ErrIntegrityViolation.
func (m *Monitor) CheckTransaction(ctx context.Context, id string) error {
	tx, err := m.txs.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load transaction %s: %w", id, err)
	}
	if tx.Status != transaction.StatusCompleted {
		return nil
	}
	ok, err := m.records.Exists(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check record for transaction %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrIntegrityViolation, id)
	}
	return nil
}

// HealthCheck returns a health checker reporting degraded when the windowed
// integrity rate drops below 99%.
func (m *Monitor) HealthCheck() health.Checker {
	return func(ctx context.Context) health.Status {
		now := time.Now()
		report, err := m.Verify(ctx, now.Add(-m.window), now)
		if err != nil {
			return health.Status{Name: "integrity", Healthy: false, Detail: err.Error()}
		}
		if report.IntegrityRate < degradedBelow {
			return health.Status{
				Name:    "integrity",
				Healthy: false,
				Detail:  fmt.Sprintf("degraded: integrity rate %.4f over last %s", report.IntegrityRate, m.window),
			}
		}
		return health.Status{Name: "integrity", Healthy: true}
	}
}
