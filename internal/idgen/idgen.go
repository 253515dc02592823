// Package idgen generates the prefixed random identifiers used across the
// API: txn_ for transactions, rec_ for compliance records, intg_ for
// integrity reports and req_ for request correlation.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// WithPrefix generates a random ID of the form prefix + 24 hex chars
// (12 random bytes).
func WithPrefix(prefix string) string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}

// TransactionID generates a transaction identifier.
func TransactionID() string { return WithPrefix("txn_") }

// RecordID generates a compliance record identifier.
func RecordID() string { return WithPrefix("rec_") }

// ReportID generates an integrity report identifier.
func ReportID() string { return WithPrefix("intg_") }

// RequestID generates an HTTP request correlation identifier.
func RequestID() string { return WithPrefix("req_") }
