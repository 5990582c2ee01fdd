package api

import (
	"bank_ledger/internal/domain" // Importing domain models
	"bank_ledger/internal/ledger" // Ledger service
	"bank_ledger/internal/utils"  // Utility functions
	"context"                     // Context for Redis operations
	"net/http"                    // HTTP status codes
	"time"                        // Cache TTLs

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/google/uuid"        // Identifiers
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Exact decimal amounts
)

// DepositRequest represents a deposit request
type DepositRequest struct {
	AccountID uuid.UUID       `json:"account_id" binding:"required"` // Target account
	Amount    decimal.Decimal `json:"amount" binding:"required"`     // Deposit amount
}

// TransferRequest represents a transfer request
type TransferRequest struct {
	SenderAccountID   uuid.UUID       `json:"sender_account_id" binding:"required"`   // Debited account
	ReceiverAccountID uuid.UUID       `json:"receiver_account_id" binding:"required"` // Credited account
	Amount            decimal.Decimal `json:"amount" binding:"required"`              // Transfer amount
}

// expensesCacheKey builds the cache key for an account's expense list
func expensesCacheKey(accountID uuid.UUID) string {
	return "expenses:account:" + accountID.String()
}

// exceededCacheKey builds the cache key for an account's fee-bearing list
func exceededCacheKey(accountID uuid.UUID) string {
	return "exceeded:account:" + accountID.String()
}

// invalidateAccountCaches drops the cached query results for the given accounts
func invalidateAccountCaches(c *gin.Context, accountIDs ...uuid.UUID) {
	// Invalidate expense and exceeded-limit cache for each account
	if rdb, ok := c.MustGet("redisClient").(*redis.Client); ok {
		ctx := context.Background() // Context for Redis operations
		for _, id := range accountIDs {
			_ = utils.DeleteCache(ctx, rdb, expensesCacheKey(id)) // Invalidate expense cache
			_ = utils.DeleteCache(ctx, rdb, exceededCacheKey(id)) // Invalidate exceeded-limit cache
		}
	}
}

// DepositHandler credits funds to one of the authenticated user's accounts
func DepositHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID") // Get userID from context
		// Check if userID exists in context
		if !exists {
			// If not, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var req DepositRequest // Bind JSON request to struct
		// Validate request
		if err := c.ShouldBindJSON(&req); err != nil {
			// If invalid, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Run the deposit through the ledger service
		account, err := svc.Deposit(c.Request.Context(), userID.(uuid.UUID), req.AccountID, req.Amount)
		if err != nil {
			respondError(c, err) // Map the domain error kind to a status code
			return
		}
		// Invalidate cached query results for the account
		invalidateAccountCaches(c, req.AccountID)
		// Return success response with the new balance
		c.JSON(http.StatusOK, gin.H{"message": "Deposit successful", "account": account})
	}
}

// TransferHandler moves funds between two accounts
func TransferHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID") // Get userID from context
		// Check if userID exists in context
		if !exists {
			// If not, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var req TransferRequest // Bind JSON request to struct
		// Validate request
		if err := c.ShouldBindJSON(&req); err != nil {
			// If invalid, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Run the transfer through the ledger service
		err := svc.Transfer(c.Request.Context(), userID.(uuid.UUID), req.SenderAccountID, req.ReceiverAccountID, req.Amount)
		if err != nil {
			respondError(c, err) // Map the domain error kind to a status code
			return
		}
		// Invalidate cached query results for both accounts
		invalidateAccountCaches(c, req.SenderAccountID, req.ReceiverAccountID)
		// Return success response
		c.JSON(http.StatusOK, gin.H{"message": "Transfer successful"})
	}
}

// transactionView is the wire shape of a ledger entry
type transactionView struct {
	ID          uuid.UUID       `json:"id"`           // Entry identifier
	Amount      decimal.Decimal `json:"amount"`       // Signed amount
	CurrencyID  int             `json:"currency_id"`  // Entry currency
	Timestamp   time.Time       `json:"timestamp"`    // Time of the movement
	Description string          `json:"description"`  // Free-text description
	FeeApplied  bool            `json:"fee_applied"`  // Whether a fee was levied
	FeeAmount   decimal.Decimal `json:"fee_amount"`   // The fee, when applied
}

// toTransactionViews converts ledger entries to their wire shape
func toTransactionViews(entries []domain.Transaction) []transactionView {
	out := make([]transactionView, 0, len(entries))
	for _, t := range entries {
		out = append(out, transactionView{
			ID:          t.ID,              // Entry identifier
			Amount:      t.Amount,          // Signed amount
			CurrencyID:  t.CurrencyID,      // Entry currency
			Timestamp:   t.TransactionDate, // Time of the movement
			Description: t.Description,     // Description
			FeeApplied:  t.FeeApplied,      // Fee marker
			FeeAmount:   t.FeeAmount,       // Fee amount
		})
	}
	return out
}

// cachedTransactionsHandler serves an account-scoped transaction query with
// a Redis read-through cache
func cachedTransactionsHandler(rdb *redis.Client, cacheKey func(uuid.UUID) string,
	query func(c *gin.Context, accountID uuid.UUID) ([]domain.Transaction, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Parse the account ID from the path
		accountID, err := uuid.Parse(c.Param("accountID"))
		if err != nil {
			// If malformed, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid account ID"})
			return
		}
		ctx := context.Background() // Context for Redis operations
		key := cacheKey(accountID)  // Cache key for this account's query
		var cached []transactionView
		found, err := utils.GetCache(ctx, rdb, key, &cached) // Try to get from cache
		// If found in cache, return it
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{"transactions": cached, "cached": true})
			return
		}
		// If not in cache, query the ledger
		entries, err := query(c, accountID)
		if err != nil {
			respondError(c, err) // Map the domain error kind to a status code
			return
		}
		views := toTransactionViews(entries)                  // Convert to wire shape
		_ = utils.SetCache(ctx, rdb, key, views, 60*time.Second) // Cache for 60 seconds
		c.JSON(http.StatusOK, gin.H{"transactions": views, "cached": false})
	}
}

// GetExpenseTransactionsHandler returns an account's debit entries, newest first
func GetExpenseTransactionsHandler(svc *ledger.Service, rdb *redis.Client) gin.HandlerFunc {
	return cachedTransactionsHandler(rdb, expensesCacheKey,
		func(c *gin.Context, accountID uuid.UUID) ([]domain.Transaction, error) {
			return svc.ExpenseTransactions(c.Request.Context(), accountID)
		})
}

// GetExceededLimitTransactionsHandler returns an account's fee-bearing entries
func GetExceededLimitTransactionsHandler(svc *ledger.Service, rdb *redis.Client) gin.HandlerFunc {
	return cachedTransactionsHandler(rdb, exceededCacheKey,
		func(c *gin.Context, accountID uuid.UUID) ([]domain.Transaction, error) {
			return svc.ExceededLimitTransactions(c.Request.Context(), accountID)
		})
}
