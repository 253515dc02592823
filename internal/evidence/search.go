package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/finwatch/amlguard/internal/retry"
	"github.com/finwatch/amlguard/internal/transaction"
)

// Searcher retrieves candidate rules applicable to a transaction, ranked by
// relevance. The search service pre-filters to "applicable".
type Searcher interface {
	Search(ctx context.Context, tx *transaction.Transaction, limit int) ([]CandidateRule, error)
}

// HTTPSearcher calls the external candidate-rule retrieval service.
type HTTPSearcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSearcher creates a search client with a per-call timeout.
func NewHTTPSearcher(baseURL string, timeout time.Duration) *HTTPSearcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSearcher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type searchResponse struct {
	Rules []CandidateRule `json:"rules"`
}

// Search fetches ranked applicable rules. The GET is idempotent, so transient
// failures are retried with backoff inside the caller's deadline.
func (s *HTTPSearcher) Search(ctx context.Context, tx *transaction.Transaction, limit int) ([]CandidateRule, error) {
	if limit <= 0 {
		limit = 10
	}

	q := url.Values{}
	q.Set("transaction_id", tx.ID)
	q.Set("customer_id", tx.CustomerID)
	q.Set("amount", strconv.FormatFloat(tx.Amount, 'f', 2, 64))
	q.Set("sender_country", tx.SenderCountry)
	q.Set("receiver_country", tx.ReceiverCountry)
	q.Set("limit", strconv.Itoa(limit))

	var rules []CandidateRule
	err := retry.Do(ctx, 3, 200*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			s.baseURL+"/v1/rules/search?"+q.Encode(), nil)
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to create search request: %w", err))
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("rule search failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode == http.StatusBadRequest {
			return retry.Permanent(fmt.Errorf("rule search rejected request: status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("rule search returned status %d", resp.StatusCode)
		}

		var sr searchResponse
		if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
			return fmt.Errorf("failed to decode search response: %w", err)
		}
		rules = sr.Rules
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(rules) > limit {
		rules = rules[:limit]
	}
	return rules, nil
}

// baselineRules is the built-in candidate set served when no external search
// service is configured. It covers the screening controls every jurisdiction
// mandates, so local deployments still exercise the full pipeline.
var baselineRules = []CandidateRule{
	{RuleID: "aml-sanctions-screening", Title: "Sanctions list screening", Description: "Parties must be screened against consolidated sanctions lists", Severity: SeverityCritical, Jurisdiction: "global"},
	{RuleID: "aml-pep-screening", Title: "Politically exposed person screening", Description: "Enhanced due diligence required when a PEP is party to the transaction", Severity: SeverityHigh, Jurisdiction: "global"},
	{RuleID: "aml-geographic-risk", Title: "High-risk jurisdiction review", Description: "Transfers involving high-risk jurisdictions require additional review", Severity: SeverityHigh, Jurisdiction: "global"},
	{RuleID: "aml-threshold-reporting", Title: "Cash threshold reporting", Description: "Transactions at or above the reporting threshold must be reported", Severity: SeverityMedium, Jurisdiction: "global"},
	{RuleID: "aml-record-keeping", Title: "Transaction record keeping", Description: "Complete records must be retained for the statutory period", Severity: SeverityLow, Jurisdiction: "global"},
}

// StaticSearcher serves a fixed candidate rule set without any network calls.
// Used when RULE_SEARCH_URL is not configured.
type StaticSearcher struct {
	rules []CandidateRule
}

// NewStaticSearcher creates a searcher over the given rules, or over the
// built-in baseline set when none are given.
func NewStaticSearcher(rules ...CandidateRule) *StaticSearcher {
	if len(rules) == 0 {
		rules = baselineRules
	}
	return &StaticSearcher{rules: rules}
}

func (s *StaticSearcher) Search(_ context.Context, _ *transaction.Transaction, limit int) ([]CandidateRule, error) {
	n := len(s.rules)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]CandidateRule, n)
	copy(out, s.rules[:n])
	return out, nil
}
