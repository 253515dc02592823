package alerts

// checklists maps alert type to its fixed remediation steps, in order.
// These are data, not logic: the compliance team owns the wording.
var checklists = map[string][]string{
	TypeSanctionsBreach: {
		"Freeze the transaction immediately",
		"File a blocking report with the sanctions authority within 24 hours",
		"Notify legal counsel and the MLRO",
		"Preserve all transaction evidence and correspondence",
		"Do not inform the customer of the sanctions match",
	},
	TypePEPHighRisk: {
		"Escalate to legal for PEP exposure review",
		"Obtain senior management approval before releasing funds",
		"Verify source of wealth and source of funds documentation",
		"Record the enhanced due diligence outcome",
	},
	TypeCriticalRuleBreach: {
		"Suspend the transaction pending legal review",
		"Document each failed critical control with its rationale",
		"Assess suspicious activity report filing obligation",
		"Schedule remediation review of the failed controls",
	},
	TypeStructuringPattern: {
		"Review all transactions of this customer in the past 30 days",
		"Aggregate amounts against the reporting threshold",
		"Assess suspicious activity report filing obligation",
		"Flag the customer for enhanced transaction monitoring",
	},
	TypeLayeringPattern: {
		"Map the transaction chain across involved accounts",
		"Identify the ultimate beneficiary of the funds",
		"Review counterparty accounts for related activity",
		"Assess suspicious activity report filing obligation",
	},
	TypeVelocityAnomaly: {
		"Compare current activity against the customer's baseline",
		"Contact the relationship manager for context",
		"Determine whether a plausible business reason exists",
		"Extend monitoring window if unexplained",
	},
	TypeHighRiskJurisdiction: {
		"Verify the counterparty against jurisdiction watchlists",
		"Confirm the stated purpose of the cross-border transfer",
		"Apply enhanced due diligence for the involved jurisdiction",
		"Document the jurisdiction risk assessment",
	},
	TypeMultipleControlFailures: {
		"List every failed control and its severity",
		"Determine whether failures share a root cause",
		"Escalate to the compliance officer for disposition",
		"Track remediation of each failed control to closure",
	},
	TypeEnhancedDueDiligence: {
		"Collect updated customer identification documents",
		"Verify source of funds for this transaction",
		"Record the enhanced due diligence outcome",
	},
	TypeVerificationRequired: {
		"Verify the counterparty identity",
		"Confirm transaction purpose with the customer",
		"Document the verification outcome",
	},
	TypeDocumentationReview: {
		"Review supporting documentation for completeness",
		"Request missing documents from the customer",
		"Record the documentation review outcome",
	},
	TypeCustomerVerification: {
		"Confirm customer contact details are current",
		"Verify the transaction was customer-initiated",
		"Note the verification in the customer file",
	},
	TypeTransactionReview: {
		"Review the transaction against the customer profile",
		"Note any deviation from expected activity",
	},
	TypePeriodicReview: {
		"Add the transaction to the next periodic review batch",
		"No immediate action required",
	},
	TypeRoutineCheck: {
		"Spot-check transaction details for accuracy",
		"No escalation required",
	},
	TypeRoutineMonitoring: {
		"Continue routine automated monitoring",
	},
}

// Checklist returns the remediation steps for an alert type. The returned
// slice is a copy; callers may not mutate the master list.
func Checklist(alertType string) []string {
	steps, ok := checklists[alertType]
	if !ok {
		return []string{"Continue routine automated monitoring"}
	}
	out := make([]string, len(steps))
	copy(out, steps)
	return out
}
