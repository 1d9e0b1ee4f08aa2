package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"quota-api/internal/api"
	"quota-api/internal/api/handlers"
	"quota-api/internal/clock"
	"quota-api/internal/config"
	"quota-api/internal/metrics"
	"quota-api/internal/models"
	"quota-api/internal/repository"
	"quota-api/internal/services"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	// Initialize database connection
	db, err := initDB()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Get underlying *sql.DB instance for connection pool settings
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("Failed to get underlying *sql.DB instance:", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(25)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// Optional snapshot cache
	cacheConfig := config.NewCacheConfig()
	var cacheService *services.RedisCacheService
	if cacheConfig.Enabled() {
		cacheService, err = services.NewRedisCacheService(cacheConfig)
		if err != nil {
			log.Fatal("Failed to connect to Redis:", err)
		}
	} else {
		log.Print("REDIS_HOST not set, running without snapshot cache")
	}

	// Initialize repositories
	usageRepo := repository.NewUsageRepository(db)
	principalRepo := repository.NewPrincipalRepository(db)
	apiKeyRepo := repository.NewAPIKeyRepository(db)

	// Initialize services
	quotaService := services.NewQuotaService(config.NewPlanLimitConfig())
	apiKeyService := services.NewAPIKeyService(apiKeyRepo)

	var ledgerCache services.CacheService
	if cacheService != nil {
		ledgerCache = cacheService
	}
	ledgerService := services.NewUsageLedgerService(
		usageRepo,
		principalRepo,
		quotaService,
		ledgerCache,
		cacheConfig.SnapshotTTL,
		clock.Real{},
	)

	// Initialize handlers and routes
	usageHandler := handlers.NewUsageHandler(ledgerService, apiKeyService)
	router := api.SetupRoutes(db, cacheService, usageHandler, os.Getenv("LEDGER_AUTH_SECRET"))

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{getEnv("CORS_ORIGIN", "http://localhost:3000")},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
		},
		AllowCredentials: true,
		MaxAge:           300,
	})

	// Create server with timeouts
	srv := &http.Server{
		Handler:      corsMiddleware.Handler(router),
		Addr:         ":" + getPort(),
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	// Start server
	log.Printf("Server starting on port %s...", getPort())
	log.Fatal(srv.ListenAndServe())
}

func initDB() (*gorm.DB, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	// Configure GORM logger
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	// Open connection
	db, err := gorm.Open(postgres.Open(dbURL), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("error migrating database: %v", err)
	}

	return db, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Principal{},
		&models.APIKey{},
	)
}

func getPort() string {
	port := os.Getenv("PORT")
	if port == "" {
		port = "5050"
	}
	return port
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
