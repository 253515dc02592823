// Package patterns scores five money-laundering typologies: structuring,
// layering, circular transfer, rapid movement, and velocity anomaly.
//
// Each scorer is a pure function returning 0-100, computed independently.
// No pattern may influence another's score; fusion takes the worst typology,
// not a sum.
package patterns

import (
	"github.com/finwatch/amlguard/internal/features"
	"github.com/finwatch/amlguard/internal/transaction"
)

// circularLookback is how many recent history entries the circular scorer
// inspects.
const circularLookback = 10

// ScoreSet holds the five typology scores.
type ScoreSet struct {
	Structuring   float64 `json:"structuring"`
	Layering      float64 `json:"layering"`
	Circular      float64 `json:"circular"`
	RapidMovement float64 `json:"rapidMovement"`
	Velocity      float64 `json:"velocity"`
}

// Max returns the worst typology score.
func (s ScoreSet) Max() float64 {
	max := s.Structuring
	for _, v := range []float64{s.Layering, s.Circular, s.RapidMovement, s.Velocity} {
		if v > max {
			max = v
		}
	}
	return max
}

// Score computes all five typology scores.
func Score(tx *transaction.Transaction, history []transaction.HistoryEntry, fs features.FeatureSet) ScoreSet {
	return ScoreSet{
		Structuring:   Structuring(fs),
		Layering:      Layering(fs),
		Circular:      Circular(tx, history),
		RapidMovement: RapidMovement(fs),
		Velocity:      Velocity(tx, fs),
	}
}

func cap100(v float64) float64 {
	if v > 100 {
		return 100
	}
	if v < 0 {
		return 0
	}
	return v
}

// Structuring detects amounts sitting just under the reporting threshold
// combined with bursty activity. Additive, capped at 100.
func Structuring(fs features.FeatureSet) float64 {
	var score float64
	if fs.PotentialStructuring {
		score += 40
	}
	if fs.TransactionCount24h >= 3 {
		score += 30
	}
	if fs.TransactionCount7d >= 10 {
		score += 30
	}
	return cap100(score)
}

// Layering detects high transaction counts consistent with moving funds
// through intermediate hops. Tiered: the highest tier wins, tiers do not add.
func Layering(fs features.FeatureSet) float64 {
	switch {
	case fs.TransactionCount24h >= 20 || fs.TransactionCount7d >= 20:
		return 70
	case fs.TransactionCount24h >= 5 || fs.TransactionCount7d >= 5:
		return 50
	default:
		return 0
	}
}

// Circular scans the most recent history entries for funds flowing back.
// A prior receiver matching the current sender scores 60; an exact
// sender/receiver swap scores 90 and overrides the weaker signal.
func Circular(tx *transaction.Transaction, history []transaction.HistoryEntry) float64 {
	if tx == nil {
		return 0
	}
	n := len(history)
	if n > circularLookback {
		n = circularLookback
	}

	var score float64
	for _, h := range history[:n] {
		if h.ID == tx.ID {
			continue
		}
		if h.SenderAccount == tx.ReceiverAccount && h.ReceiverAccount == tx.SenderAccount {
			return 90
		}
		if h.ReceiverAccount == tx.SenderAccount {
			score = 60
		}
	}
	return score
}

// RapidMovement scores same-day transaction bursts.
func RapidMovement(fs features.FeatureSet) float64 {
	switch {
	case fs.SameDayCount >= 5:
		return 70
	case fs.SameDayCount >= 3:
		return 50
	default:
		return 0
	}
}

// Velocity tiers on 24h count and raises the floor to 50 when the amount is
// more than 3x the customer's 7-day average.
func Velocity(tx *transaction.Transaction, fs features.FeatureSet) float64 {
	var score float64
	switch {
	case fs.TransactionCount24h >= 10:
		score = 80
	case fs.TransactionCount24h >= 5:
		score = 60
	case fs.TransactionCount24h >= 3:
		score = 40
	}
	if tx != nil && fs.AvgAmount7d > 0 && tx.Amount > 3*fs.AvgAmount7d && score < 50 {
		score = 50
	}
	return cap100(score)
}
