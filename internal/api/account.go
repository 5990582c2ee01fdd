package api

import (
	"bank_ledger/internal/ledger" // Ledger service
	"net/http"                    // HTTP status codes

	"github.com/gin-gonic/gin" // Gin web framework
	"github.com/google/uuid"   // User identifiers
)

// CreateAccountRequest represents an account creation request
type CreateAccountRequest struct {
	CurrencyID int `json:"currency_id" binding:"required"` // Currency of the new account
}

// CreateAccountHandler opens a zero-balance account for the authenticated user
func CreateAccountHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID") // Get userID from context
		// Check if userID exists in context
		if !exists {
			// If not, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var req CreateAccountRequest // Bind JSON request to struct
		// Validate request
		if err := c.ShouldBindJSON(&req); err != nil {
			// If invalid, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Open the account via the ledger service
		account, err := svc.CreateAccount(c.Request.Context(), userID.(uuid.UUID), req.CurrencyID)
		if err != nil {
			respondError(c, err) // Map the domain error kind to a status code
			return
		}
		// Return the created account
		c.JSON(http.StatusCreated, gin.H{"message": "Account created", "account": account})
	}
}
