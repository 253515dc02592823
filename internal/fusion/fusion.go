// Package fusion linearly combines the rule-based, posterior, and pattern
// signals into the final 0-100 risk score and band.
package fusion

import (
	"math"

	"github.com/finwatch/amlguard/internal/posterior"
)

// Band is the categorical risk bucket of the final score.
type Band string

const (
	BandLow      Band = "Low"
	BandMedium   Band = "Medium"
	BandHigh     Band = "High"
	BandCritical Band = "Critical"
)

// Signal weights. Rule evidence dominates; the statistical and behavioral
// signals split the remainder evenly.
const (
	weightRuleBased = 0.40
	weightMLBased   = 0.30
	weightPattern   = 0.30
)

// Expected-risk scalar per posterior category.
const (
	scalarLow      = 10
	scalarMedium   = 40
	scalarHigh     = 70
	scalarCritical = 95
)

// Breakdown records each signal's contribution before weighting.
type Breakdown struct {
	RuleBased    float64 `json:"ruleBased"`
	MLBased      float64 `json:"mlBased"`
	PatternBased float64 `json:"patternBased"`
}

// Result is the fused verdict.
type Result struct {
	Score     float64   `json:"score"` // 0-100, 2 decimals
	Band      Band      `json:"band"`
	Breakdown Breakdown `json:"breakdown"`
}

// MLScalar collapses a posterior distribution into a 0-100 expected-risk
// scalar.
func MLScalar(d posterior.Distribution) float64 {
	return scalarLow*d.Low + scalarMedium*d.Medium + scalarHigh*d.High + scalarCritical*d.Critical
}

// BandFor maps a score to its band. Lower bounds are inclusive: 80.00 is
// Critical, 79.99 is not.
func BandFor(score float64) Band {
	switch {
	case score >= 80:
		return BandCritical
	case score >= 60:
		return BandHigh
	case score >= 30:
		return BandMedium
	default:
		return BandLow
	}
}

// Fuse combines the three signals. Pure function; callers pass fallback
// inputs (0, fallback posterior, 0) when upstream stages degraded, which
// yields the fail-safe-low result.
func Fuse(ruleBased float64, dist posterior.Distribution, patternScore float64) Result {
	ml := MLScalar(dist)

	score := weightRuleBased*ruleBased + weightMLBased*ml + weightPattern*patternScore
	score = math.Round(score*100) / 100
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return Result{
		Score: score,
		Band:  BandFor(score),
		Breakdown: Breakdown{
			RuleBased:    ruleBased,
			MLBased:      ml,
			PatternBased: patternScore,
		},
	}
}

// Fallback is the fail-safe-low result used when fusion itself cannot run.
func Fallback() Result {
	return Result{Score: 0, Band: BandLow}
}
