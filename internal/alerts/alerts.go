// Package alerts maps a scored transaction to the responsible team and a
// remediation checklist.
//
// Classification is a priority-ordered list of predicates: the first match
// wins, and branch order is part of the contract. A sanctions hit always
// produces a Legal alert no matter what the score says.
package alerts

import (
	"github.com/finwatch/amlguard/internal/patterns"
)

// Role is the team responsible for a triggered alert.
type Role string

const (
	RoleFront      Role = "Front"
	RoleCompliance Role = "Compliance"
	RoleLegal      Role = "Legal"
)

// Alert types, from most to least severe.
const (
	TypeSanctionsBreach         = "sanctions_breach"
	TypePEPHighRisk             = "pep_high_risk"
	TypeCriticalRuleBreach      = "critical_rule_breach"
	TypeStructuringPattern      = "structuring_pattern"
	TypeLayeringPattern         = "layering_pattern"
	TypeVelocityAnomaly         = "velocity_anomaly"
	TypeHighRiskJurisdiction    = "high_risk_jurisdiction"
	TypeMultipleControlFailures = "multiple_control_failures"
	TypeEnhancedDueDiligence    = "enhanced_due_diligence"
	TypeVerificationRequired    = "verification_required"
	TypeDocumentationReview     = "documentation_review"
	TypeCustomerVerification    = "customer_verification"
	TypeTransactionReview       = "transaction_review"
	TypePeriodicReview          = "periodic_review"
	TypeRoutineCheck            = "routine_check"
	TypeRoutineMonitoring       = "routine_monitoring"
)

// Input carries everything the classifier reads.
type Input struct {
	Score            float64
	SanctionsHit     bool
	PEPInvolved      bool
	HighRiskCountry  bool
	CriticalFailures int
	HighFailures     int
	Patterns         patterns.ScoreSet
}

// Decision is the classifier's verdict: who handles the alert and what they
// must do about it.
type Decision struct {
	Role      Role     `json:"role"`
	AlertType string   `json:"alertType"`
	Checklist []string `json:"checklist"`
}

// rule is one classification branch.
type rule struct {
	name      string
	match     func(in Input) bool
	role      Role
	alertType string
}

// branches is evaluated top to bottom; first match wins.
var branches = []rule{
	{
		name:      "sanctions",
		match:     func(in Input) bool { return in.SanctionsHit },
		role:      RoleLegal,
		alertType: TypeSanctionsBreach,
	},
	{
		name:      "pep_high_risk",
		match:     func(in Input) bool { return in.PEPInvolved && in.Score >= 70 },
		role:      RoleLegal,
		alertType: TypePEPHighRisk,
	},
	{
		name:      "critical_rule_breach",
		match:     func(in Input) bool { return in.CriticalFailures >= 1 && in.Score >= 80 },
		role:      RoleLegal,
		alertType: TypeCriticalRuleBreach,
	},
	{
		name:      "structuring",
		match:     func(in Input) bool { return in.Patterns.Structuring >= 70 },
		role:      RoleCompliance,
		alertType: TypeStructuringPattern,
	},
	{
		name:      "layering",
		match:     func(in Input) bool { return in.Patterns.Layering >= 70 || in.Patterns.RapidMovement >= 70 },
		role:      RoleCompliance,
		alertType: TypeLayeringPattern,
	},
	{
		name:      "velocity",
		match:     func(in Input) bool { return in.Patterns.Velocity >= 70 },
		role:      RoleCompliance,
		alertType: TypeVelocityAnomaly,
	},
	{
		name:      "high_risk_jurisdiction",
		match:     func(in Input) bool { return in.HighRiskCountry && in.Score >= 50 },
		role:      RoleCompliance,
		alertType: TypeHighRiskJurisdiction,
	},
	{
		name:      "multiple_control_failures",
		match:     func(in Input) bool { return in.HighFailures >= 1 && in.Score >= 60 },
		role:      RoleCompliance,
		alertType: TypeMultipleControlFailures,
	},
	// Score-banded defaults. Mid-risk goes to the front office for
	// documentation and verification; low risk stays in routine monitoring.
	{
		name:      "band_65",
		match:     func(in Input) bool { return in.Score >= 65 },
		role:      RoleFront,
		alertType: TypeEnhancedDueDiligence,
	},
	{
		name:      "band_60",
		match:     func(in Input) bool { return in.Score >= 60 },
		role:      RoleFront,
		alertType: TypeVerificationRequired,
	},
	{
		name:      "band_55",
		match:     func(in Input) bool { return in.Score >= 55 },
		role:      RoleFront,
		alertType: TypeDocumentationReview,
	},
	{
		name:      "band_50",
		match:     func(in Input) bool { return in.Score >= 50 },
		role:      RoleFront,
		alertType: TypeCustomerVerification,
	},
	{
		name:      "band_45",
		match:     func(in Input) bool { return in.Score >= 45 },
		role:      RoleFront,
		alertType: TypeTransactionReview,
	},
	{
		name:      "band_40",
		match:     func(in Input) bool { return in.Score >= 40 },
		role:      RoleFront,
		alertType: TypePeriodicReview,
	},
	{
		name:      "band_30",
		match:     func(in Input) bool { return in.Score >= 30 },
		role:      RoleFront,
		alertType: TypeRoutineCheck,
	},
}

// Classify runs the branches in priority order. Total: every input maps to
// exactly one decision; anything below the last cut point is routine
// monitoring.
func Classify(in Input) Decision {
	for _, b := range branches {
		if b.match(in) {
			return Decision{
				Role:      b.role,
				AlertType: b.alertType,
				Checklist: Checklist(b.alertType),
			}
		}
	}
	return Decision{
		Role:      RoleFront,
		AlertType: TypeRoutineMonitoring,
		Checklist: Checklist(TypeRoutineMonitoring),
	}
}
