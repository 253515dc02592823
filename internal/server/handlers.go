package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/finwatch/amlguard/internal/idgen"
	"github.com/finwatch/amlguard/internal/integrity"
	"github.com/finwatch/amlguard/internal/logging"
	"github.com/finwatch/amlguard/internal/record"
	"github.com/finwatch/amlguard/internal/transaction"
	"github.com/finwatch/amlguard/internal/validation"
)

// SubmitTransactionRequest is the payload for POST /v1/transactions
type SubmitTransactionRequest struct {
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
	// Evaluate runs the verdict pipeline synchronously when true (default).
	Evaluate *bool `json:"evaluate,omitempty"`
}

// submitTransactionHandler accepts a transaction and, unless evaluate=false,
// runs the full verdict pipeline and returns the committed compliance record.
func (s *Server) submitTransactionHandler(c *gin.Context) {
	var req SubmitTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid JSON body: " + err.Error(),
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("customerId", req.CustomerID),
		validation.Required("senderAccount", req.SenderAccount),
		validation.Required("receiverAccount", req.ReceiverAccount),
		validation.ValidCountry("senderCountry", req.SenderCountry),
		validation.ValidCountry("receiverCountry", req.ReceiverCountry),
		validation.ValidCurrency("currency", req.Currency),
		validation.ValidRating("customerRating", req.CustomerRating),
		validation.PositiveAmount("amount", req.Amount),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"details": errs,
		})
		return
	}

	now := time.Now()
	tx := &transaction.Transaction{
		ID:              idgen.TransactionID(),
		CustomerID:      validation.SanitizeString(req.CustomerID, 256),
		CustomerRating:  strings.ToLower(strings.TrimSpace(req.CustomerRating)),
		SenderAccount:   validation.SanitizeString(req.SenderAccount, 256),
		ReceiverAccount: validation.SanitizeString(req.ReceiverAccount, 256),
		SenderCountry:   strings.ToUpper(strings.TrimSpace(req.SenderCountry)),
		ReceiverCountry: strings.ToUpper(strings.TrimSpace(req.ReceiverCountry)),
		Amount:          req.Amount,
		Currency:        strings.ToUpper(strings.TrimSpace(req.Currency)),
		SanctionsHit:    req.SanctionsHit,
		PEPInvolved:     req.PEPInvolved,
		Status:          transaction.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.txs.Create(c.Request.Context(), tx); err != nil {
		logging.L(c.Request.Context()).Error("failed to create transaction", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "storage_error",
			"message": "Failed to store transaction",
		})
		return
	}

	if req.Evaluate != nil && !*req.Evaluate {
		c.JSON(http.StatusCreated, tx)
		return
	}

	rec, err := s.orchestrator.Run(c.Request.Context(), tx.ID)
	if err != nil {
		s.renderPipelineError(c, tx.ID, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"transaction": gin.H{"id": tx.ID, "status": transaction.StatusCompleted},
		"record":      rec,
	})
}

func (s *Server) getTransactionHandler(c *gin.Context) {
	tx, err := s.txs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Transaction not found",
			})
			return
		}
		logging.L(c.Request.Context()).Error("failed to load transaction", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error"})
		return
	}
	c.JSON(http.StatusOK, tx)
}

// evaluateTransactionHandler re-runs the verdict pipeline for a stored
// transaction. Completed transactions are immutable and cannot be re-judged.
func (s *Server) evaluateTransactionHandler(c *gin.Context) {
	id := c.Param("id")

	tx, err := s.txs.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Transaction not found",
			})
			return
		}
		logging.L(c.Request.Context()).Error("failed to load transaction", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error"})
		return
	}
	if tx.Status == transaction.StatusCompleted {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "already_completed",
			"message": "Transaction already has a committed compliance record",
		})
		return
	}

	rec, err := s.orchestrator.Run(c.Request.Context(), id)
	if err != nil {
		s.renderPipelineError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) getRecordByTransactionHandler(c *gin.Context) {
	rec, err := s.records.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No compliance record for this transaction",
			})
			return
		}
		logging.L(c.Request.Context()).Error("failed to load compliance record", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// checkTransactionIntegrityHandler verifies the persistence guarantee for a
// single transaction: completed implies a readable compliance record.
func (s *Server) checkTransactionIntegrityHandler(c *gin.Context) {
	id := c.Param("id")

	err := s.monitor.CheckTransaction(c.Request.Context(), id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"transactionId": id, "consistent": true})
	case errors.Is(err, integrity.ErrIntegrityViolation):
		c.JSON(http.StatusOK, gin.H{
			"transactionId": id,
			"consistent":    false,
			"detail":        err.Error(),
		})
	case errors.Is(err, transaction.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Transaction not found",
		})
	default:
		logging.L(c.Request.Context()).Error("integrity check failed", "transaction", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "integrity_check_error"})
	}
}

// integrityReportHandler verifies a window of completed transactions.
// Query params: hours (lookback, default 24, max 720).
func (s *Server) integrityReportHandler(c *gin.Context) {
	hours := 24
	if raw := c.Query("hours"); raw != "" {
		parsed, ok := validation.ParseBoundedInt(raw, 1, 720)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "hours must be an integer between 1 and 720",
			})
			return
		}
		hours = parsed
	}

	to := time.Now()
	from := to.Add(-time.Duration(hours) * time.Hour)

	report, err := s.monitor.Verify(c.Request.Context(), from, to)
	if err != nil {
		logging.L(c.Request.Context()).Error("integrity verification failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "integrity_check_error"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// renderPipelineError maps orchestrator failures to API errors. Pipeline
// stage degradation never reaches here; only persistence and load failures do.
func (s *Server) renderPipelineError(c *gin.Context, transactionID string, err error) {
	logger := logging.L(c.Request.Context())

	switch {
	case errors.Is(err, transaction.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Transaction not found",
		})
	case errors.Is(err, integrity.ErrIntegrityViolation):
		logger.Error("pipeline integrity violation", "transaction", transactionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "integrity_violation",
			"message": "Compliance record could not be verified after commit",
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"error":   "abandoned",
			"message": "Evaluation abandoned before persistence; the transaction can be re-evaluated",
		})
	default:
		logger.Error("pipeline run failed", "transaction", transactionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "pipeline_error",
			"message": "Failed to evaluate transaction",
		})
	}
}
