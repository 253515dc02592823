// Package pipeline threads a transaction through the fixed stage sequence:
// history, rule retrieval, rule testing, evidence aggregation, feature
// extraction, pattern scoring, posterior estimation, decision fusion, alert
// classification, persistence.
//
// Stages are best-effort: a stage failure degrades that
// stage's output to its fallback and is recorded as data in the shared error
// list; it never halts the pipeline. Every run reaches the persistence stage
// and every transaction ends completed-with-record or failed-with-reason.
package pipeline

import (
	"time"

	"github.com/finwatch/amlguard/internal/alerts"
	"github.com/finwatch/amlguard/internal/evidence"
	"github.com/finwatch/amlguard/internal/features"
	"github.com/finwatch/amlguard/internal/fusion"
	"github.com/finwatch/amlguard/internal/patterns"
	"github.com/finwatch/amlguard/internal/posterior"
	"github.com/finwatch/amlguard/internal/transaction"
)

// Context carries one transaction through the pipeline. It is exclusively
// owned by the running orchestrator: never shared across concurrent
// transactions, so it needs no locking. Each stage appends its designated
// fields; internal failures land in Errors, not in panics.
type Context struct {
	Transaction *transaction.Transaction
	History     []transaction.HistoryEntry

	CandidateRules []evidence.CandidateRule
	RuleResults    []evidence.RuleTestResult
	RuleBasedScore float64

	Features      features.FeatureSet
	PatternScores patterns.ScoreSet
	Posterior     posterior.Distribution
	Fusion        fusion.Result
	Alert         alerts.Decision

	// Errors collects human-readable notes about degraded stages. They end
	// up in the compliance record, visible, never hidden.
	Errors []string

	StartedAt  time.Time
	FinishedAt time.Time
}

// AddError appends a degradation note.
func (c *Context) AddError(note string) {
	c.Errors = append(c.Errors, note)
}
