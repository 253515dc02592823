// Package validation provides input validation middleware for the AMLGuard API.
package validation

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxStringLength is the maximum length for string fields
const MaxStringLength = 10000

var (
	// idRegex validates transaction and record identifiers (prefix_hex)
	idRegex = regexp.MustCompile(`^[a-z]+_[a-f0-9]{24}$`)
	// countryRegex validates ISO 3166-1 alpha-2 country codes
	countryRegex = regexp.MustCompile(`^[A-Za-z]{2}$`)
	// currencyRegex validates ISO 4217 currency codes
	currencyRegex = regexp.MustCompile(`^[A-Za-z]{3}$`)
)

// customerRatings are the accepted prior risk ratings.
var customerRatings = map[string]bool{
	"low": true, "medium": true, "high": true, "critical": true,
}

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidID checks if a string is a well-formed entity identifier
func IsValidID(id string) bool {
	return idRegex.MatchString(id)
}

// IsValidCountryCode checks if a string is an ISO alpha-2 country code
func IsValidCountryCode(code string) bool {
	return countryRegex.MatchString(code)
}

// IsValidCurrencyCode checks if a string is an ISO 4217 currency code
func IsValidCurrencyCode(code string) bool {
	return currencyRegex.MatchString(code)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	// Trim whitespace
	s = strings.TrimSpace(s)

	// Limit length
	if len(s) > maxLen {
		s = s[:maxLen]
	}

	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	return s
}

// ParseBoundedInt parses a decimal integer and checks it is within [min, max].
func ParseBoundedInt(s string, min, max int) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < min || n > max {
		return 0, false
	}
	return n, true
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidCountry checks if a field is a valid ISO alpha-2 country code
func ValidCountry(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		if !IsValidCountryCode(strings.TrimSpace(value)) {
			return &ValidationError{Field: field, Message: "must be an ISO alpha-2 country code"}
		}
		return nil
	}
}

// ValidCurrency checks if a field is a valid ISO 4217 currency code
func ValidCurrency(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		if !IsValidCurrencyCode(strings.TrimSpace(value)) {
			return &ValidationError{Field: field, Message: "must be an ISO 4217 currency code"}
		}
		return nil
	}
}

// ValidRating checks if a field is a recognized customer risk rating.
// Empty is allowed; an unknown prior falls back to a conservative default
// downstream.
func ValidRating(field, value string) func() *ValidationError {
	return func() *ValidationError {
		v := strings.ToLower(strings.TrimSpace(value))
		if v == "" {
			return nil
		}
		if !customerRatings[v] {
			return &ValidationError{Field: field, Message: "must be one of low, medium, high, critical"}
		}
		return nil
	}
}

// PositiveAmount checks if a monetary amount is strictly positive
func PositiveAmount(field string, value float64) func() *ValidationError {
	return func() *ValidationError {
		if value <= 0 {
			return &ValidationError{Field: field, Message: "must be greater than zero"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// IDParamMiddleware validates the :id URL parameter on routes that use it.
// Apply to route groups that include :id params to reject malformed
// identifiers early (no-op when the param is absent).
func IDParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if id != "" && !IsValidID(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_id",
				"message": "id must be a prefixed hex identifier (e.g. txn_a1b2...)",
			})
			return
		}
		c.Next()
	}
}
