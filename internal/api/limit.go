package api

import (
	"bank_ledger/internal/ledger" // Ledger service
	"net/http"                    // HTTP status codes

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/google/uuid"        // Identifiers
	"github.com/shopspring/decimal" // Exact decimal amounts
)

// SetLimitRequest represents a limit change request
type SetLimitRequest struct {
	AccountID   uuid.UUID       `json:"account_id" binding:"required"`   // Account the cap applies to
	LimitAmount decimal.Decimal `json:"limit_amount" binding:"required"` // New monthly cap
	CurrencyID  int             `json:"currency_id" binding:"required"`  // Cap currency
}

// CheckTransferRequest represents a limit pre-check request
type CheckTransferRequest struct {
	AccountID uuid.UUID       `json:"account_id" binding:"required"` // Debited account
	Amount    decimal.Decimal `json:"amount" binding:"required"`     // Pending transfer amount
}

// SetLimitHandler creates or updates the monthly spending cap for an account
func SetLimitHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetLimitRequest // Bind JSON request to struct
		// Validate request
		if err := c.ShouldBindJSON(&req); err != nil {
			// If invalid, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Apply the cap via the ledger service
		limit, err := svc.SetLimit(c.Request.Context(), req.AccountID, req.LimitAmount, req.CurrencyID)
		if err != nil {
			respondError(c, err) // Map the domain error kind to a status code
			return
		}
		// Return the resulting limit
		c.JSON(http.StatusOK, gin.H{"message": "Limit set", "limit": limit})
	}
}

// CheckTransferHandler reports whether a pending transfer would incur a fee
func CheckTransferHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CheckTransferRequest // Bind JSON request to struct
		// Validate request
		if err := c.ShouldBindJSON(&req); err != nil {
			// If invalid, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Run the read-only limit check
		result, err := svc.CheckTransfer(c.Request.Context(), req.AccountID, req.Amount)
		if err != nil {
			respondError(c, err) // Map the domain error kind to a status code
			return
		}
		// Return the check result
		c.JSON(http.StatusOK, result)
	}
}
