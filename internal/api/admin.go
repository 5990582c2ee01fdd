package api

import (
	"bank_ledger/internal/domain" // Importing domain models
	"bank_ledger/internal/ledger" // Ledger service
	"bank_ledger/internal/utils"  // Utility functions
	"context"                     // Context for Redis operations
	"net/http"                    // HTTP status codes
	"strconv"                     // String conversion
	"time"                        // Cache TTLs

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/google/uuid"       // Identifiers
	"github.com/redis/go-redis/v9" // Redis client
	"gorm.io/gorm"                 // GORM ORM library
)

// UserAdminResponse is the admin view of a user and their accounts
type UserAdminResponse struct {
	ID       uuid.UUID        `json:"id"`       // User identifier
	Username string           `json:"username"` // Username
	Role     string           `json:"role"`     // Role: user or admin
	Accounts []domain.Account `json:"accounts"` // The user's accounts
}

// pageParams extracts page/page_size query parameters with defaults
func pageParams(c *gin.Context) (page, pageSize int) {
	page = 1      // Default page
	pageSize = 20 // Default page size
	// If page exists in query
	if p := c.Query("page"); p != "" {
		// Convert page to integer
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v // Set page if valid
		}
	}
	// If page_size exists in query
	if ps := c.Query("page_size"); ps != "" {
		// Convert page_size to integer
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v // Set page size if valid
		}
	}
	return page, pageSize
}

// ListUsersHandler returns all users with their accounts
func ListUsersHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.Background()     // Use background context for Redis
		page, pageSize := pageParams(c) // Pagination parameters
		// Create a cache key based on pagination parameters
		cacheKey := "admin:users:page=" + strconv.Itoa(page) + ":size=" + strconv.Itoa(pageSize)
		// Try to get cached response
		var cached struct {
			Users      []UserAdminResponse `json:"users"`       // List of users
			Page       int                 `json:"page"`        // Current page
			PageSize   int                 `json:"page_size"`   // Page size
			Total      int64               `json:"total"`       // Total number of users
			TotalPages int                 `json:"total_pages"` // Total pages
		}
		// If cached data found, return it
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"users":       cached.Users,      // List of users
				"page":        cached.Page,       // Current page
				"page_size":   cached.PageSize,   // Page size
				"total":       cached.Total,      // Total users
				"total_pages": cached.TotalPages, // Total pages
				"cached":      true,
			})
			return
		}
		var total int64 // Total count of users
		// Count users for pagination
		if err := db.Model(&domain.User{}).Count(&total).Error; err != nil {
			// If counting fails, return error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count users"})
			return
		}
		var users []domain.User // Slice to hold users
		// Fetch paginated users with their accounts
		if err := db.Preload("Accounts").
			Offset((page - 1) * pageSize).
			Limit(pageSize).
			Find(&users).Error; err != nil {
			// If fetching fails, return error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
			return
		}
		// Convert users to admin view
		out := make([]UserAdminResponse, 0, len(users))
		for _, u := range users {
			out = append(out, UserAdminResponse{
				ID:       u.ID,       // User identifier
				Username: u.Username, // Username
				Role:     u.Role,     // Role
				Accounts: u.Accounts, // The user's accounts
			})
		}
		// Calculate total pages
		totalPages := (int(total) + pageSize - 1) / pageSize
		resp := gin.H{
			"users":       out,        // List of users
			"page":        page,       // Current page
			"page_size":   pageSize,   // Page size
			"total":       total,      // Total users
			"total_pages": totalPages, // Total pages
			"cached":      false,      // Not from cache
		}
		// Cache the result for 60 seconds
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, 60*time.Second)
		c.JSON(http.StatusOK, resp) // Return the user list
	}
}

// ListTransactionsHandler returns the full ledger, newest first
func ListTransactionsHandler(svc *ledger.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.Background()     // Use background context for Redis
		page, pageSize := pageParams(c) // Pagination parameters
		// Create a cache key based on pagination parameters
		cacheKey := "admin:transactions:page=" + strconv.Itoa(page) + ":size=" + strconv.Itoa(pageSize)
		// Try to get cached response
		var cached struct {
			Transactions []transactionView `json:"transactions"` // Ledger entries
			Page         int               `json:"page"`         // Current page
			PageSize     int               `json:"page_size"`    // Page size
			Total        int64             `json:"total"`        // Total entries
			TotalPages   int               `json:"total_pages"`  // Total pages
		}
		// If cached data found, return it
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"transactions": cached.Transactions, // Ledger entries
				"page":         cached.Page,         // Current page
				"page_size":    cached.PageSize,     // Page size
				"total":        cached.Total,        // Total entries
				"total_pages":  cached.TotalPages,   // Total pages
				"cached":       true,
			})
			return
		}
		// Fetch the page from the ledger
		entries, total, err := svc.ListTransactions(c.Request.Context(), (page-1)*pageSize, pageSize)
		if err != nil {
			respondError(c, err) // Map the domain error kind to a status code
			return
		}
		views := toTransactionViews(entries) // Convert to wire shape
		// Calculate total pages
		totalPages := (int(total) + pageSize - 1) / pageSize
		resp := gin.H{
			"transactions": views,      // Ledger entries
			"page":         page,       // Current page
			"page_size":    pageSize,   // Page size
			"total":        total,      // Total entries
			"total_pages":  totalPages, // Total pages
			"cached":       false,      // Not from cache
		}
		// Cache the result for 60 seconds
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, 60*time.Second)
		c.JSON(http.StatusOK, resp) // Return the ledger page
	}
}
