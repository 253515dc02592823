package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/finwatch/amlguard/internal/alerts"
	"github.com/finwatch/amlguard/internal/evidence"
	"github.com/finwatch/amlguard/internal/features"
	"github.com/finwatch/amlguard/internal/fusion"
	"github.com/finwatch/amlguard/internal/idgen"
	"github.com/finwatch/amlguard/internal/integrity"
	"github.com/finwatch/amlguard/internal/logging"
	"github.com/finwatch/amlguard/internal/metrics"
	"github.com/finwatch/amlguard/internal/patterns"
	"github.com/finwatch/amlguard/internal/posterior"
	"github.com/finwatch/amlguard/internal/record"
	"github.com/finwatch/amlguard/internal/traces"
	"github.com/finwatch/amlguard/internal/transaction"
)

// historyLookback bounds how far back the pipeline loads customer history.
// Feature extraction itself only reads 7 days.
const historyLookback = 7 * 24 * time.Hour

// Publisher receives verdict and alert events as they are committed.
// Implementations must not block.
type Publisher interface {
	PublishVerdict(transactionID string, result fusion.Result)
	PublishAlert(transactionID string, decision alerts.Decision)
}

// Orchestrator runs the fixed stage sequence for one transaction at a time.
// Many orchestrator runs may proceed concurrently, each with its own Context,
// sharing only the stores and the external judge/search services.
type Orchestrator struct {
	txs       transaction.Store
	searcher  evidence.Searcher
	judge     evidence.Judge
	extractor *features.Extractor
	records   record.Store
	events    Publisher
	logger    *slog.Logger

	ruleLimit int
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithPublisher wires a verdict/alert event publisher.
func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.events = p }
}

// WithRuleLimit caps how many candidate rules are retrieved per transaction.
func WithRuleLimit(n int) Option {
	return func(o *Orchestrator) { o.ruleLimit = n }
}

// New creates an orchestrator.
func New(txs transaction.Store, searcher evidence.Searcher, judge evidence.Judge,
	extractor *features.Extractor, records record.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		txs:       txs,
		searcher:  searcher,
		judge:     judge,
		extractor: extractor,
		records:   records,
		logger:    slog.Default(),
		ruleLimit: 10,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// stage is one named step of the fixed sequence. Stages return an error only
// to describe a degradation; the orchestrator records it and continues.
type stage struct {
	name string
	run  func(ctx context.Context, pc *Context) error
}

func (o *Orchestrator) stages() []stage {
	return []stage{
		{"fetch_history", o.stageFetchHistory},
		{"rule_retrieval", o.stageRuleRetrieval},
		{"rule_testing", o.stageRuleTesting},
		{"evidence_aggregation", o.stageEvidenceAggregation},
		{"feature_extraction", o.stageFeatureExtraction},
		{"pattern_scoring", o.stagePatternScoring},
		{"posterior_estimation", o.stagePosteriorEstimation},
		{"decision_fusion", o.stageDecisionFusion},
		{"alert_classification", o.stageAlertClassification},
	}
}

// Run executes the full pipeline for a transaction and returns the committed
// compliance record. Abandoning the run (context cancellation) before the
// persistence stage leaves the transaction in a non-terminal status and
// writes no record.
func (o *Orchestrator) Run(ctx context.Context, transactionID string) (*record.ComplianceRecord, error) {
	start := time.Now()
	ctx, span := traces.StartSpan(ctx, "pipeline.run", traces.TransactionID(transactionID))
	defer span.End()

	if transactionID == "" {
		metrics.PipelineRunsTotal.WithLabelValues("failed").Inc()
		return nil, record.ErrMissingTransactionID
	}
	ctx = logging.WithTransactionID(ctx, transactionID)

	tx, err := o.txs.Get(ctx, transactionID)
	if err != nil {
		metrics.PipelineRunsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to load transaction %s: %w", transactionID, err)
	}
	if err := o.txs.SetStatus(ctx, transactionID, transaction.StatusProcessing, ""); err != nil {
		metrics.PipelineRunsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to mark transaction processing: %w", err)
	}

	pc := &Context{Transaction: tx, StartedAt: start}

	for _, st := range o.stages() {
		// An abandoned run must not reach persistence; leave the
		// transaction in its non-terminal status for the caller to re-run.
		if err := ctx.Err(); err != nil {
			metrics.PipelineRunsTotal.WithLabelValues("abandoned").Inc()
			return nil, fmt.Errorf("pipeline abandoned before persistence: %w", err)
		}
		o.runStage(ctx, st, pc)
	}
	if err := ctx.Err(); err != nil {
		metrics.PipelineRunsTotal.WithLabelValues("abandoned").Inc()
		return nil, fmt.Errorf("pipeline abandoned before persistence: %w", err)
	}

	rec, err := o.persist(ctx, pc)
	pc.FinishedAt = time.Now()
	metrics.PipelineDuration.Observe(pc.FinishedAt.Sub(start).Seconds())
	if err != nil {
		metrics.PipelineRunsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.PipelineRunsTotal.WithLabelValues("completed").Inc()
	metrics.VerdictsTotal.WithLabelValues(string(rec.Fusion.Band)).Inc()
	metrics.AlertsTotal.WithLabelValues(rec.Alert.AlertType, string(rec.Alert.Role)).Inc()

	if o.events != nil {
		o.events.PublishVerdict(rec.TransactionID, rec.Fusion)
		o.events.PublishAlert(rec.TransactionID, rec.Alert)
	}
	return rec, nil
}

// runStage executes one stage with panic isolation. Failures degrade the
// stage's output and are collected as data; the pipeline always proceeds.
func (o *Orchestrator) runStage(ctx context.Context, st stage, pc *Context) {
	ctx, span := traces.StartSpan(ctx, "pipeline."+st.name, traces.Stage(st.name))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			metrics.StageFallbacksTotal.WithLabelValues(st.name).Inc()
			pc.AddError(fmt.Sprintf("stage %s panicked: %v", st.name, r))
			o.logger.Error("pipeline stage panicked",
				"stage", st.name, "transaction", pc.Transaction.ID, "panic", fmt.Sprint(r))
		}
	}()

	if err := st.run(ctx, pc); err != nil {
		metrics.StageFallbacksTotal.WithLabelValues(st.name).Inc()
		pc.AddError(fmt.Sprintf("stage %s degraded: %v", st.name, err))
		o.logger.Warn("pipeline stage degraded",
			"stage", st.name, "transaction", pc.Transaction.ID, "error", err)
	}
}

func (o *Orchestrator) stageFetchHistory(ctx context.Context, pc *Context) error {
	since := pc.Transaction.CreatedAt
	if since.IsZero() {
		since = time.Now()
	}
	history, err := o.txs.History(ctx, pc.Transaction.CustomerID, since.Add(-historyLookback))
	if err != nil {
		pc.History = nil
		return err
	}
	pc.History = history
	return nil
}

func (o *Orchestrator) stageRuleRetrieval(ctx context.Context, pc *Context) error {
	rules, err := o.searcher.Search(ctx, pc.Transaction, o.ruleLimit)
	if err != nil {
		pc.CandidateRules = nil
		return err
	}
	pc.CandidateRules = rules
	return nil
}

func (o *Orchestrator) stageRuleTesting(ctx context.Context, pc *Context) error {
	results := make([]evidence.RuleTestResult, 0, len(pc.CandidateRules))
	degraded := 0
	for _, rule := range pc.CandidateRules {
		r := o.judge.Test(ctx, rule, pc.Transaction)
		if r.Status == evidence.StatusPartial && r.ComplianceScore == 50 {
			// The judge client folds its own failures into the partial
			// fallback; count them so degradation stays visible.
			degraded++
		}
		results = append(results, r)
	}
	pc.RuleResults = results
	if degraded > 0 {
		return fmt.Errorf("%d of %d rule tests returned degraded results", degraded, len(pc.CandidateRules))
	}
	return nil
}

func (o *Orchestrator) stageEvidenceAggregation(ctx context.Context, pc *Context) error {
	pc.RuleBasedScore = evidence.Aggregate(pc.RuleResults)
	return nil
}

func (o *Orchestrator) stageFeatureExtraction(ctx context.Context, pc *Context) error {
	pc.Features = o.extractor.Extract(pc.Transaction, pc.History)
	return nil
}

func (o *Orchestrator) stagePatternScoring(ctx context.Context, pc *Context) error {
	pc.PatternScores = patterns.Score(pc.Transaction, pc.History, pc.Features)
	return nil
}

func (o *Orchestrator) stagePosteriorEstimation(ctx context.Context, pc *Context) error {
	dist, err := posterior.Estimate(pc.Transaction.CustomerRating, pc.RuleResults, pc.Features)
	pc.Posterior = dist
	return err
}

func (o *Orchestrator) stageDecisionFusion(ctx context.Context, pc *Context) error {
	pc.Fusion = fusion.Fuse(pc.RuleBasedScore, pc.Posterior, pc.PatternScores.Max())
	return nil
}

func (o *Orchestrator) stageAlertClassification(ctx context.Context, pc *Context) error {
	criticalCount, highCount, _ := evidence.CountFailures(pc.RuleResults)
	pc.Alert = alerts.Classify(alerts.Input{
		Score:            pc.Fusion.Score,
		SanctionsHit:     pc.Transaction.SanctionsHit,
		PEPInvolved:      pc.Transaction.PEPInvolved,
		HighRiskCountry:  pc.Features.IsHighRiskCountry,
		CriticalFailures: criticalCount,
		HighFailures:     highCount,
		Patterns:         pc.PatternScores,
	})
	return nil
}

// persist is the terminal stage: commit the record and mark the transaction
// completed as one logical operation, then self-check that the record is
// actually readable. Failure here is fatal for the transaction.
func (o *Orchestrator) persist(ctx context.Context, pc *Context) (*record.ComplianceRecord, error) {
	ctx, span := traces.StartSpan(ctx, "pipeline.persistence",
		traces.Stage("persistence"), traces.Band(string(pc.Fusion.Band)))
	defer span.End()

	if pc.Transaction.ID == "" {
		metrics.PersistenceFailures.Inc()
		return nil, record.ErrMissingTransactionID
	}

	rec := &record.ComplianceRecord{
		ID:             idgen.RecordID(),
		TransactionID:  pc.Transaction.ID,
		RuleResults:    pc.RuleResults,
		RuleBasedScore: pc.RuleBasedScore,
		Features:       pc.Features,
		PatternScores:  pc.PatternScores,
		Posterior:      pc.Posterior,
		Fusion:         pc.Fusion,
		Alert:          pc.Alert,
		Errors:         pc.Errors,
		CreatedAt:      time.Now(),
	}

	if err := o.records.Commit(ctx, rec); err != nil {
		metrics.PersistenceFailures.Inc()
		reason := fmt.Sprintf("persistence failed: %v", err)
		if stErr := o.txs.SetStatus(ctx, pc.Transaction.ID, transaction.StatusFailed, reason); stErr != nil {
			o.logger.Error("failed to mark transaction failed after commit error",
				"transaction", pc.Transaction.ID, "error", stErr)
		}
		return nil, fmt.Errorf("failed to commit compliance record for %s: %w", pc.Transaction.ID, err)
	}
	metrics.PersistenceCommits.Inc()

	// Post-write self-check: never believe "completed" without proof.
	ok, err := o.records.Exists(ctx, pc.Transaction.ID)
	if err == nil && !ok {
		err = integrity.ErrIntegrityViolation
	}
	if errors.Is(err, integrity.ErrIntegrityViolation) {
		reason := "integrity self-check failed: completed without record"
		if stErr := o.txs.SetStatus(ctx, pc.Transaction.ID, transaction.StatusFailed, reason); stErr != nil {
			o.logger.Error("failed to force transaction to failed after integrity violation",
				"transaction", pc.Transaction.ID, "error", stErr)
		}
		return nil, fmt.Errorf("post-write self-check for %s: %w", pc.Transaction.ID, integrity.ErrIntegrityViolation)
	}
	if err != nil {
		// Verification itself failed; the commit stands, but say so loudly.
		o.logger.Error("post-write self-check could not verify record",
			"transaction", pc.Transaction.ID, "error", err)
	}

	return rec, nil
}
