// Package features computes the deterministic feature set the estimator and
// pattern scorers consume. Everything here is a pure function of the
// transaction and its history.
package features

import (
	"time"

	"github.com/finwatch/amlguard/internal/transaction"
)

// Thresholds for feature extraction. REPORTING_THRESHOLD / HIGH_VALUE_THRESHOLD
// override these via config.
const (
	DefaultReportingThreshold = 10000.0
	DefaultHighValueThreshold = 10000.0

	// structuringBandRatio: amounts in [ratio*threshold, threshold) sit just
	// under the reporting line.
	structuringBandRatio = 0.9
)

// DefaultHighRiskCountries is the built-in high-risk jurisdiction list
// (ISO 3166-1 alpha-2).
var DefaultHighRiskCountries = []string{"IR", "KP", "MM", "AF", "SY", "YE"}

// FeatureSet holds deterministic booleans and counters for one transaction.
type FeatureSet struct {
	IsHighValue          bool    `json:"isHighValue"`
	IsCrossBorder        bool    `json:"isCrossBorder"`
	IsHighRiskCountry    bool    `json:"isHighRiskCountry"`
	PotentialStructuring bool    `json:"potentialStructuring"`
	TransactionCount24h  int     `json:"transactionCount24h"`
	TransactionCount7d   int     `json:"transactionCount7d"`
	SameDayCount         int     `json:"sameDayCount"`
	AvgAmount7d          float64 `json:"avgAmount7d"`
}

// Extractor computes feature sets with configured thresholds.
type Extractor struct {
	reportingThreshold float64
	highValueThreshold float64
	highRisk           map[string]bool
}

// NewExtractor creates an extractor. Zero thresholds fall back to defaults;
// a nil country list falls back to the built-in one.
func NewExtractor(reportingThreshold, highValueThreshold float64, highRiskCountries []string) *Extractor {
	if reportingThreshold <= 0 {
		reportingThreshold = DefaultReportingThreshold
	}
	if highValueThreshold <= 0 {
		highValueThreshold = DefaultHighValueThreshold
	}
	if highRiskCountries == nil {
		highRiskCountries = DefaultHighRiskCountries
	}
	hr := make(map[string]bool, len(highRiskCountries))
	for _, c := range highRiskCountries {
		hr[c] = true
	}
	return &Extractor{
		reportingThreshold: reportingThreshold,
		highValueThreshold: highValueThreshold,
		highRisk:           hr,
	}
}

// ReportingThreshold returns the configured reporting threshold.
func (e *Extractor) ReportingThreshold() float64 { return e.reportingThreshold }

// Extract computes the feature set for a transaction and its history.
// History entries older than 7 days are ignored.
func (e *Extractor) Extract(tx *transaction.Transaction, history []transaction.HistoryEntry) FeatureSet {
	now := tx.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}

	fs := FeatureSet{
		IsHighValue:       tx.Amount >= e.highValueThreshold,
		IsCrossBorder:     tx.SenderCountry != "" && tx.ReceiverCountry != "" && tx.SenderCountry != tx.ReceiverCountry,
		IsHighRiskCountry: e.highRisk[tx.SenderCountry] || e.highRisk[tx.ReceiverCountry],
	}

	fs.PotentialStructuring = tx.Amount >= e.reportingThreshold*structuringBandRatio &&
		tx.Amount < e.reportingThreshold

	cutoff24h := now.Add(-24 * time.Hour)
	cutoff7d := now.Add(-7 * 24 * time.Hour)
	y, m, d := now.Date()

	var sum7d float64
	for _, h := range history {
		if h.ID == tx.ID || h.Timestamp.Before(cutoff7d) || h.Timestamp.After(now) {
			continue
		}
		fs.TransactionCount7d++
		sum7d += h.Amount
		if !h.Timestamp.Before(cutoff24h) {
			fs.TransactionCount24h++
		}
		hy, hm, hd := h.Timestamp.Date()
		if hy == y && hm == m && hd == d {
			fs.SameDayCount++
		}
	}
	if fs.TransactionCount7d > 0 {
		fs.AvgAmount7d = sum7d / float64(fs.TransactionCount7d)
	}
	return fs
}
