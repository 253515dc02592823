package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the AMLGuard MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolGetTransaction = mcp.NewTool("get_transaction",
	mcp.WithDescription(
		"Look up a transaction under compliance review by its id. "+
			"Returns the parties, amount, screening flags, and processing status."),
	mcp.WithString("transaction_id",
		mcp.Required(),
		mcp.Description("The transaction id (e.g. 'txn_a1b2c3...')")),
)

var ToolGetComplianceRecord = mcp.NewTool("get_compliance_record",
	mcp.WithDescription(
		"Fetch the committed compliance record for a completed transaction. "+
			"Shows the fused risk score, risk band, rule test outcomes, behavioral "+
			"pattern scores, posterior risk distribution, and the routed alert with "+
			"its remediation checklist."),
	mcp.WithString("transaction_id",
		mcp.Required(),
		mcp.Description("The transaction id the record belongs to")),
)

var ToolEvaluateTransaction = mcp.NewTool("evaluate_transaction",
	mcp.WithDescription(
		"Run the risk verdict pipeline for a pending or failed transaction. "+
			"Produces and commits a compliance record. Completed transactions are "+
			"immutable and cannot be re-evaluated."),
	mcp.WithString("transaction_id",
		mcp.Required(),
		mcp.Description("The transaction id to evaluate")),
)

var ToolIntegrityReport = mcp.NewTool("integrity_report",
	mcp.WithDescription(
		"Verify the persistence guarantee over a recent window: every completed "+
			"transaction must have a readable compliance record. Returns counts, "+
			"the integrity rate, and any violations found."),
	mcp.WithNumber("hours",
		mcp.Description("Lookback window in hours (default 24, max 720)")),
)

var ToolCheckTransactionIntegrity = mcp.NewTool("check_transaction_integrity",
	mcp.WithDescription(
		"Check a single transaction for the completed-without-record integrity "+
			"violation. Use this when a compliance record lookup unexpectedly fails."),
	mcp.WithString("transaction_id",
		mcp.Required(),
		mcp.Description("The transaction id to check")),
)
