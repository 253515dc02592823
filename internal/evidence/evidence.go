// Package evidence turns per-rule test outcomes into a severity-weighted
// compliance score, and hosts the clients for the external rule-search and
// rule-test judge services.
//
// The judge is fallible by contract: any transport failure, timeout, or
// malformed payload degrades that rule's outcome to {partial, 50}. "partial"
// is a first-class outcome, not an error state.
package evidence

import "strings"

// TestStatus is the outcome of testing one rule against a transaction.
type TestStatus string

const (
	StatusPass    TestStatus = "pass"
	StatusFail    TestStatus = "fail"
	StatusPartial TestStatus = "partial"
)

// Severity of a regulatory rule.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// CandidateRule is one retrieved rule, pre-filtered to "applicable" by the
// external search service.
type CandidateRule struct {
	RuleID       string   `json:"ruleId"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Severity     Severity `json:"severity"`
	Jurisdiction string   `json:"jurisdiction"`
}

// RuleTestResult is the judged outcome of one rule test.
type RuleTestResult struct {
	RuleID          string     `json:"ruleId"`
	Title           string     `json:"title"`
	Status          TestStatus `json:"status"`
	Severity        Severity   `json:"severity"`
	ComplianceScore float64    `json:"complianceScore"` // 0-100
	Rationale       string     `json:"rationale"`
}

// Severity weights for evidence aggregation. Unknown severities weigh 0.4.
const (
	weightCritical = 1.0
	weightHigh     = 0.7
	weightMedium   = 0.4
	weightLow      = 0.2
	weightDefault  = 0.4
)

// SeverityWeight returns the aggregation weight for a severity.
func SeverityWeight(s Severity) float64 {
	switch Severity(strings.ToLower(string(s))) {
	case SeverityCritical:
		return weightCritical
	case SeverityHigh:
		return weightHigh
	case SeverityMedium:
		return weightMedium
	case SeverityLow:
		return weightLow
	default:
		return weightDefault
	}
}

// outcomeScore maps a test status to its risk contribution.
// fail is maximal risk, partial is the midpoint, pass contributes nothing.
func outcomeScore(s TestStatus) float64 {
	switch s {
	case StatusFail:
		return 100
	case StatusPartial:
		return 50
	default:
		return 0
	}
}

// Aggregate computes the severity-weighted rule-based score in [0, 100].
// An empty result list yields 0, meaning "no evidence", not "compliant".
func Aggregate(results []RuleTestResult) float64 {
	if len(results) == 0 {
		return 0
	}

	var weighted, totalWeight float64
	for _, r := range results {
		w := SeverityWeight(r.Severity)
		weighted += outcomeScore(r.Status) * w
		totalWeight += w
	}
	if totalWeight <= 0 {
		return 0
	}

	score := weighted / totalWeight
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// CountFailures partitions failed results by severity: critical failures,
// high-severity failures, and all other failures.
func CountFailures(results []RuleTestResult) (critical, high, other int) {
	for _, r := range results {
		if r.Status != StatusFail {
			continue
		}
		switch Severity(strings.ToLower(string(r.Severity))) {
		case SeverityCritical:
			critical++
		case SeverityHigh:
			high++
		default:
			other++
		}
	}
	return critical, high, other
}
