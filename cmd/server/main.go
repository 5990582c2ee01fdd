package main

import (
	"bank_ledger/internal/api"        // Custom package for API handlers
	"bank_ledger/internal/config"     // Custom package for configuration
	"bank_ledger/internal/ledger"     // Custom package for the ledger engine
	"bank_ledger/internal/middleware" // Custom package for middleware
	"context"                         // context package is needed for Redis operations
	"log"                             // log package is needed for logging

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
	"gorm.io/driver/mysql"         // MySQL driver for GORM
	"gorm.io/gorm"                 // GORM ORM library
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Setup Data Source Name (DSN) and connect to the database
	dsn := cfg.DBUser + ":" + cfg.DBPassword + "@tcp(" + cfg.DBHost + ":" + cfg.DBPort + ")/" + cfg.DBName + "?parseTime=true"
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}

	// Setup Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr, // Redis server address
		Password: cfg.RedisPass, // Redis password
		DB:       cfg.RedisDB,   // Redis database number
	})

	// Test Redis connection
	_, err = redisClient.Ping(context.Background()).Result()
	if err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	// Setup the ledger service over the MySQL-backed store
	svc := ledger.NewService(ledger.NewGormStore(db))

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup Gin
	r := gin.Default() // Gin router instance

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	// Auth routes
	r.POST("/user", api.RegisterHandler(db))            // Registration endpoint
	r.GET("/user", api.LoginHandler(db, cfg.JWTSecret)) // Login endpoint

	// Account routes (protected by JWT)
	accountGroup := r.Group("/account")
	accountGroup.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
	accountGroup.POST("", api.CreateAccountHandler(svc)) // Create account endpoint

	// Transaction routes (protected by JWT)
	txGroup := r.Group("/transactions")
	// Protect transaction routes with JWT middleware and inject Redis client into context
	txGroup.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret), func(c *gin.Context) {
		c.Set("redisClient", redisClient)
		c.Next()
	})
	txGroup.POST("/deposit", api.DepositHandler(svc))                                                 // Deposit endpoint
	txGroup.POST("/transfer", api.TransferHandler(svc))                                               // Transfer endpoint
	txGroup.GET("/:accountID/expenses", api.GetExpenseTransactionsHandler(svc, redisClient))          // Expense history endpoint
	txGroup.GET("/:accountID/exceeded-limit", api.GetExceededLimitTransactionsHandler(svc, redisClient)) // Fee-bearing history endpoint

	// Limit routes (protected by JWT)
	limitGroup := r.Group("/limit")
	limitGroup.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
	limitGroup.POST("", api.SetLimitHandler(svc))            // Set limit endpoint
	limitGroup.POST("/check", api.CheckTransferHandler(svc)) // Check transfer endpoint

	// Admin routes (protected, admin only)
	adminGroup := r.Group("/admin")
	// Protect admin routes with JWT and AdminOnly middleware
	adminGroup.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret), middleware.AdminOnlyMiddleware(db))
	adminGroup.GET("/users", api.ListUsersHandler(db, redisClient))                 // List users endpoint
	adminGroup.GET("/transactions", api.ListTransactionsHandler(svc, redisClient)) // List transactions endpoint

	log.Println("Server running on " + cfg.AppPort) // Log server start
	r.Run(":" + cfg.AppPort)                        // Start the server on port cfg.AppPort
}
