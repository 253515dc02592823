package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *Client
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *Client) *Handlers {
	return &Handlers{client: client}
}

// HandleGetTransaction looks up a transaction by id.
func (h *Handlers) HandleGetTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("transaction_id", "")
	if id == "" {
		return mcp.NewToolResultError("transaction_id is required"), nil
	}

	raw, err := h.client.GetTransaction(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to fetch transaction: %v", err)), nil
	}

	text, err := formatTransaction(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse transaction: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetComplianceRecord fetches the committed record for a transaction.
func (h *Handlers) HandleGetComplianceRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("transaction_id", "")
	if id == "" {
		return mcp.NewToolResultError("transaction_id is required"), nil
	}

	raw, err := h.client.GetComplianceRecord(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to fetch compliance record: %v", err)), nil
	}

	text, err := formatRecord(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse compliance record: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleEvaluateTransaction runs the verdict pipeline for a transaction.
func (h *Handlers) HandleEvaluateTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("transaction_id", "")
	if id == "" {
		return mcp.NewToolResultError("transaction_id is required"), nil
	}

	raw, err := h.client.EvaluateTransaction(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Evaluation failed: %v", err)), nil
	}

	text, err := formatRecord(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse compliance record: %v", err)), nil
	}
	return mcp.NewToolResultText("Evaluation complete.\n\n" + text), nil
}

// HandleIntegrityReport verifies the persistence guarantee over a window.
func (h *Handlers) HandleIntegrityReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hours := req.GetInt("hours", 24)

	raw, err := h.client.IntegrityReport(ctx, hours)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to generate integrity report: %v", err)), nil
	}

	text, err := formatIntegrityReport(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse integrity report: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleCheckTransactionIntegrity checks one transaction for a missing record.
func (h *Handlers) HandleCheckTransactionIntegrity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("transaction_id", "")
	if id == "" {
		return mcp.NewToolResultError("transaction_id is required"), nil
	}

	raw, err := h.client.CheckTransactionIntegrity(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Integrity check failed: %v", err)), nil
	}

	var check struct {
		TransactionID string `json:"transactionId"`
		Consistent    bool   `json:"consistent"`
		Detail        string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &check); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse integrity check: %v", err)), nil
	}

	if check.Consistent {
		return mcp.NewToolResultText(fmt.Sprintf(
			"Transaction %s is consistent: its status and compliance record agree.", check.TransactionID)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"INTEGRITY VIOLATION on %s: %s\nThe transaction should be re-evaluated.",
		check.TransactionID, check.Detail)), nil
}

// -----------------------------------------------------------------------------
// Formatters
// -----------------------------------------------------------------------------

func formatTransaction(raw json.RawMessage) (string, error) {
	var tx struct {
		ID              string  `json:"id"`
		CustomerID      string  `json:"customerId"`
		CustomerRating  string  `json:"customerRating"`
		SenderAccount   string  `json:"senderAccount"`
		ReceiverAccount string  `json:"receiverAccount"`
		SenderCountry   string  `json:"senderCountry"`
		ReceiverCountry string  `json:"receiverCountry"`
		Amount          float64 `json:"amount"`
		Currency        string  `json:"currency"`
		SanctionsHit    bool    `json:"sanctionsHit"`
		PEPInvolved     bool    `json:"pepInvolved"`
		Status          string  `json:"status"`
		StatusReason    string  `json:"statusReason"`
	}
	if err := json.Unmarshal(raw, &tx); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Transaction %s [%s]\n", tx.ID, tx.Status)
	if tx.StatusReason != "" {
		fmt.Fprintf(&sb, "Status reason: %s\n", tx.StatusReason)
	}
	fmt.Fprintf(&sb, "Customer: %s (prior rating: %s)\n", tx.CustomerID, valueOr(tx.CustomerRating, "unknown"))
	fmt.Fprintf(&sb, "Amount: %.2f %s\n", tx.Amount, tx.Currency)
	fmt.Fprintf(&sb, "Route: %s (%s) -> %s (%s)\n",
		tx.SenderAccount, tx.SenderCountry, tx.ReceiverAccount, tx.ReceiverCountry)
	fmt.Fprintf(&sb, "Sanctions hit: %t, PEP involved: %t\n", tx.SanctionsHit, tx.PEPInvolved)
	return sb.String(), nil
}

func formatRecord(raw json.RawMessage) (string, error) {
	var rec struct {
		ID             string  `json:"id"`
		TransactionID  string  `json:"transactionId"`
		RuleBasedScore float64 `json:"ruleBasedScore"`
		RuleResults    []struct {
			RuleID   string  `json:"ruleId"`
			Status   string  `json:"status"`
			Severity string  `json:"severity"`
			Score    float64 `json:"complianceScore"`
		} `json:"ruleResults"`
		PatternScores struct {
			Structuring   float64 `json:"structuring"`
			Layering      float64 `json:"layering"`
			Circular      float64 `json:"circular"`
			RapidMovement float64 `json:"rapidMovement"`
			Velocity      float64 `json:"velocity"`
		} `json:"patternScores"`
		Posterior struct {
			Low      float64 `json:"low"`
			Medium   float64 `json:"medium"`
			High     float64 `json:"high"`
			Critical float64 `json:"critical"`
		} `json:"posterior"`
		Fusion struct {
			Score     float64 `json:"score"`
			Band      string  `json:"band"`
			Breakdown struct {
				RuleBased    float64 `json:"ruleBased"`
				MLBased      float64 `json:"mlBased"`
				PatternBased float64 `json:"patternBased"`
			} `json:"breakdown"`
		} `json:"fusion"`
		Alert struct {
			Role      string   `json:"role"`
			AlertType string   `json:"alertType"`
			Checklist []string `json:"checklist"`
		} `json:"alert"`
		Errors []string `json:"errors"`
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Compliance record %s for transaction %s\n\n", rec.ID, rec.TransactionID)
	fmt.Fprintf(&sb, "Verdict: %.2f (%s)\n", rec.Fusion.Score, strings.ToUpper(rec.Fusion.Band))
	fmt.Fprintf(&sb, "  rule-based: %.1f, ml-based: %.1f, pattern-based: %.1f\n\n",
		rec.Fusion.Breakdown.RuleBased, rec.Fusion.Breakdown.MLBased, rec.Fusion.Breakdown.PatternBased)

	fmt.Fprintf(&sb, "Rule evidence (aggregate %.1f):\n", rec.RuleBasedScore)
	if len(rec.RuleResults) == 0 {
		sb.WriteString("  no rules tested\n")
	}
	for _, r := range rec.RuleResults {
		fmt.Fprintf(&sb, "  [%s/%s] %s: %.0f\n", r.Severity, r.Status, r.RuleID, r.Score)
	}

	fmt.Fprintf(&sb, "\nPattern scores: structuring %.0f, layering %.0f, circular %.0f, rapid %.0f, velocity %.0f\n",
		rec.PatternScores.Structuring, rec.PatternScores.Layering, rec.PatternScores.Circular,
		rec.PatternScores.RapidMovement, rec.PatternScores.Velocity)
	fmt.Fprintf(&sb, "Posterior risk: low %.2f, medium %.2f, high %.2f, critical %.2f\n",
		rec.Posterior.Low, rec.Posterior.Medium, rec.Posterior.High, rec.Posterior.Critical)

	fmt.Fprintf(&sb, "\nAlert: %s -> %s office\n", rec.Alert.AlertType, rec.Alert.Role)
	for _, step := range rec.Alert.Checklist {
		fmt.Fprintf(&sb, "  - %s\n", step)
	}

	if len(rec.Errors) > 0 {
		fmt.Fprintf(&sb, "\nDegradations during evaluation (%d):\n", len(rec.Errors))
		for _, e := range rec.Errors {
			fmt.Fprintf(&sb, "  - %s\n", e)
		}
	}
	return sb.String(), nil
}

func formatIntegrityReport(raw json.RawMessage) (string, error) {
	var report struct {
		ID             string  `json:"id"`
		WindowStart    string  `json:"windowStart"`
		WindowEnd      string  `json:"windowEnd"`
		CompletedCount int     `json:"completedCount"`
		RecordCount    int     `json:"recordCount"`
		IntegrityRate  float64 `json:"integrityRate"`
		Violations     []struct {
			TransactionID string `json:"transactionId"`
			Detail        string `json:"detail"`
		} `json:"violations"`
	}
	if err := json.Unmarshal(raw, &report); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Integrity report %s\n", report.ID)
	fmt.Fprintf(&sb, "Window: %s to %s\n", report.WindowStart, report.WindowEnd)
	fmt.Fprintf(&sb, "Completed transactions: %d, records found: %d\n", report.CompletedCount, report.RecordCount)
	fmt.Fprintf(&sb, "Integrity rate: %.4f\n", report.IntegrityRate)

	if len(report.Violations) == 0 {
		sb.WriteString("\nNo violations. Every completed transaction has a compliance record.\n")
		return sb.String(), nil
	}

	fmt.Fprintf(&sb, "\nVIOLATIONS (%d):\n", len(report.Violations))
	for _, v := range report.Violations {
		fmt.Fprintf(&sb, "  - %s: %s\n", v.TransactionID, v.Detail)
	}
	return sb.String(), nil
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
