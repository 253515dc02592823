package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/finwatch/amlguard/internal/metrics"
	"github.com/finwatch/amlguard/internal/transaction"
)

// Judge tests one rule against a transaction and returns the outcome.
// Implementations must tolerate concurrent independent calls.
type Judge interface {
	Test(ctx context.Context, rule CandidateRule, tx *transaction.Transaction) RuleTestResult
}

// HTTPJudge calls the external rule-test judge service over HTTP.
// Every call is bounded by the configured timeout; any failure degrades to
// the literal fallback {partial, 50} so the pipeline never blocks on it.
type HTTPJudge struct {
	baseURL string
	client  *http.Client
}

// NewHTTPJudge creates a judge client with a per-call timeout.
func NewHTTPJudge(baseURL string, timeout time.Duration) *HTTPJudge {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPJudge{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type judgeRequest struct {
	Rule        CandidateRule            `json:"rule"`
	Transaction *transaction.Transaction `json:"transaction"`
}

type judgeResponse struct {
	Status          string  `json:"status"`
	Severity        string  `json:"severity"`
	ComplianceScore float64 `json:"complianceScore"`
	Rationale       string  `json:"rationale"`
}

// Test judges one rule. On any failure it returns the degraded result and
// never an error: the caller records the degradation in the pipeline's
// error list, not as a fault.
func (j *HTTPJudge) Test(ctx context.Context, rule CandidateRule, tx *transaction.Transaction) RuleTestResult {
	result, err := j.test(ctx, rule, tx)
	if err != nil {
		metrics.JudgeCallsTotal.WithLabelValues("degraded").Inc()
		return FallbackResult(rule, err)
	}
	metrics.JudgeCallsTotal.WithLabelValues("ok").Inc()
	return result
}

func (j *HTTPJudge) test(ctx context.Context, rule CandidateRule, tx *transaction.Transaction) (RuleTestResult, error) {
	body, err := json.Marshal(judgeRequest{Rule: rule, Transaction: tx})
	if err != nil {
		return RuleTestResult{}, fmt.Errorf("failed to encode judge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.baseURL+"/v1/test", bytes.NewReader(body))
	if err != nil {
		return RuleTestResult{}, fmt.Errorf("failed to create judge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.client.Do(req)
	if err != nil {
		return RuleTestResult{}, fmt.Errorf("judge call failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return RuleTestResult{}, fmt.Errorf("judge returned status %d", resp.StatusCode)
	}

	var jr judgeResponse
	if err := json.NewDecoder(resp.Body).Decode(&jr); err != nil {
		return RuleTestResult{}, fmt.Errorf("failed to decode judge response: %w", err)
	}

	status := TestStatus(jr.Status)
	switch status {
	case StatusPass, StatusFail, StatusPartial:
	default:
		return RuleTestResult{}, fmt.Errorf("judge returned unknown status %q", jr.Status)
	}
	if jr.ComplianceScore < 0 || jr.ComplianceScore > 100 {
		return RuleTestResult{}, fmt.Errorf("judge returned out-of-range score %f", jr.ComplianceScore)
	}

	severity := Severity(jr.Severity)
	if severity == "" {
		severity = rule.Severity
	}

	return RuleTestResult{
		RuleID:          rule.RuleID,
		Title:           rule.Title,
		Status:          status,
		Severity:        severity,
		ComplianceScore: jr.ComplianceScore,
		Rationale:       jr.Rationale,
	}, nil
}

// FallbackResult is the literal degraded outcome for a failed judge call.
func FallbackResult(rule CandidateRule, cause error) RuleTestResult {
	rationale := "rule test degraded: judge unavailable"
	if cause != nil {
		rationale = fmt.Sprintf("rule test degraded: %v", cause)
	}
	return RuleTestResult{
		RuleID:          rule.RuleID,
		Title:           rule.Title,
		Status:          StatusPartial,
		Severity:        rule.Severity,
		ComplianceScore: 50,
		Rationale:       rationale,
	}
}

// MockJudge produces deterministic rule outcomes from transaction attributes
// alone, without calling an external service. Used in local development when
// JUDGE_URL is not configured.
type MockJudge struct{}

func (MockJudge) Test(_ context.Context, rule CandidateRule, tx *transaction.Transaction) RuleTestResult {
	status, score := StatusPass, 0.0
	switch {
	case tx.SanctionsHit && rule.Severity == SeverityCritical:
		status, score = StatusFail, 100
	case tx.PEPInvolved && rule.Severity == SeverityHigh:
		status, score = StatusPartial, 50
	}
	return RuleTestResult{
		RuleID:          rule.RuleID,
		Title:           rule.Title,
		Status:          status,
		Severity:        rule.Severity,
		ComplianceScore: score,
		Rationale:       "mock evaluation from transaction attributes",
	}
}
