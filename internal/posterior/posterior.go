// Package posterior combines a customer-segment prior with rule-failure and
// feature evidence into a normalized risk-category distribution.
//
// The multiplicative adjustments are hand-tuned literals carried over from
// the production tuning exercise, not a textbook Bayes update. Treat them as
// configuration: change the numbers, not the shape.
package posterior

import (
	"fmt"
	"math"
	"strings"

	"github.com/finwatch/amlguard/internal/evidence"
	"github.com/finwatch/amlguard/internal/features"
)

// Distribution is a probability distribution over the four risk categories.
// A valid distribution sums to 1.0 within 1e-6.
type Distribution struct {
	Low      float64 `json:"low"`
	Medium   float64 `json:"medium"`
	High     float64 `json:"high"`
	Critical float64 `json:"critical"`
}

// Sum returns the total mass.
func (d Distribution) Sum() float64 {
	return d.Low + d.Medium + d.High + d.Critical
}

// DefaultRating is assumed when the customer rating is missing or unknown.
const DefaultRating = "medium"

// priors maps customer rating to the prior risk distribution.
// Each row sums to 1.0.
var priors = map[string]Distribution{
	"low":      {Low: 0.70, Medium: 0.20, High: 0.08, Critical: 0.02},
	"medium":   {Low: 0.40, Medium: 0.35, High: 0.18, Critical: 0.07},
	"high":     {Low: 0.15, Medium: 0.30, High: 0.35, Critical: 0.20},
	"critical": {Low: 0.05, Medium: 0.20, High: 0.35, Critical: 0.40},
}

// Likelihood multipliers. Hand-tuned, flagged for domain-owner review.
const (
	criticalFailCriticalFactor = 5.0 // per critical failure, applied as 5*count
	criticalFailHighFactor     = 2.5
	criticalFailMediumDamp     = 0.7
	criticalFailLowDamp        = 0.4

	highFailHighFactor = 3.0 // per high-severity failure, applied as 3*count

	highValueHighFactor = 1.5

	crossBorderHighFactor = 1.3

	highRiskCountryHighFactor     = 2.0
	highRiskCountryCriticalFactor = 1.5

	structuringCriticalFactor = 4.0
	structuringHighFactor     = 2.0
)

// Fallback is the literal distribution returned when estimation faults.
func Fallback() Distribution {
	return Distribution{Low: 0.25, Medium: 0.50, High: 0.20, Critical: 0.05}
}

// Prior returns the prior distribution for a customer rating. Unknown or
// empty ratings use the default rating.
func Prior(rating string) Distribution {
	p, ok := priors[strings.ToLower(strings.TrimSpace(rating))]
	if !ok {
		return priors[DefaultRating]
	}
	return p
}

// Ratings lists the known customer ratings.
func Ratings() []string {
	return []string{"low", "medium", "high", "critical"}
}

// Estimate computes the posterior distribution. It never panics outward: any
// internal fault yields the literal fallback plus a non-nil error for the
// caller's error list, and downstream stages proceed unblocked.
func Estimate(rating string, results []evidence.RuleTestResult, fs features.FeatureSet) (dist Distribution, err error) {
	defer func() {
		if r := recover(); r != nil {
			dist = Fallback()
			err = fmt.Errorf("posterior estimation panicked: %v", r)
		}
	}()

	prior := Prior(rating)
	d := prior
	adjusted := false

	criticalCount, highCount, _ := evidence.CountFailures(results)

	if criticalCount > 0 {
		adjusted = true
		d.Critical *= criticalFailCriticalFactor * float64(criticalCount)
		d.High *= criticalFailHighFactor
		d.Medium *= criticalFailMediumDamp
		d.Low *= criticalFailLowDamp
	}
	if highCount > 0 {
		adjusted = true
		d.High *= highFailHighFactor * float64(highCount)
	}

	if fs.IsHighValue {
		adjusted = true
		d.High *= highValueHighFactor
	}
	if fs.IsCrossBorder {
		adjusted = true
		d.High *= crossBorderHighFactor
	}
	if fs.IsHighRiskCountry {
		adjusted = true
		d.High *= highRiskCountryHighFactor
		d.Critical *= highRiskCountryCriticalFactor
	}
	if fs.PotentialStructuring {
		adjusted = true
		d.Critical *= structuringCriticalFactor
		d.High *= structuringHighFactor
	}

	// Nothing fired: the prior is already normalized, renormalizing would
	// only introduce float drift.
	if !adjusted {
		return prior, nil
	}

	sum := d.Sum()
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		// Degenerate adjustment: keep the unmodified prior.
		return prior, nil
	}

	d.Low /= sum
	d.Medium /= sum
	d.High /= sum
	d.Critical /= sum
	return d, nil
}
