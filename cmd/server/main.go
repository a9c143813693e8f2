package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dukerupert/heimdall/internal"
	"github.com/dukerupert/heimdall/internal/auth"
	"github.com/dukerupert/heimdall/internal/entitlement"
	"github.com/dukerupert/heimdall/internal/handler"
	"github.com/dukerupert/heimdall/internal/middleware"
	"github.com/dukerupert/heimdall/internal/playstore"
	"github.com/dukerupert/heimdall/internal/postgres"
	"github.com/dukerupert/heimdall/internal/router"
	"github.com/dukerupert/heimdall/internal/service"
	"github.com/dukerupert/heimdall/internal/telemetry"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database/sql connection for migrations
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	// Verify database connection
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	logger.Info("Database connection established")

	// Run migrations
	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database migrations completed successfully")

	// Initialize pgx connection pool for application
	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	// Initialize token store
	store := postgres.NewTokenStore(pool)

	// Initialize Play Store client
	var provider playstore.Client
	switch cfg.PlayStore.Mode {
	case "mock":
		logger.Warn("Using mock Play Store client; all tokens verify as active")
		provider = playstore.NewMockClient("")
	default:
		provider, err = playstore.NewGoogleClient(playstore.GoogleConfig{
			ServiceAccountJSON: cfg.PlayStore.ServiceAccountJSON,
			Timeout:            cfg.PlayStore.Timeout,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize Play Store client: %w", err)
		}
		logger.Info("Play Store client initialized")
	}

	// Initialize entitlement gateway
	var gateway entitlement.Gateway
	switch cfg.Entitlement.Mode {
	case "mock":
		logger.Warn("Using mock entitlement gateway; no plans will be granted")
		gateway = entitlement.NewMockGateway()
	default:
		gateway, err = entitlement.NewLedgerClient(entitlement.LedgerConfig{
			BaseURL:    cfg.Entitlement.BaseURL,
			AdminToken: cfg.Entitlement.AdminToken,
			Timeout:    cfg.Entitlement.Timeout,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize entitlement gateway: %w", err)
		}
		logger.Info("Entitlement gateway initialized")
	}

	// Initialize reconciliation metrics
	reconMetrics := telemetry.NewReconciliationMetrics("heimdall")

	// Initialize reconciliation service
	purchases := service.NewPurchaseService(store, provider, gateway, reconMetrics, logger)

	// Initialize Pub/Sub push authentication
	verifier := auth.NewGoogleVerifier(
		cfg.Pubsub.Audience,
		cfg.Pubsub.ServiceAccountEmail,
		auth.NewKeyCache(auth.KeyCacheConfig{}),
	)
	if cfg.Pubsub.AuthDisabled {
		logger.Warn("Pub/Sub push authentication is DISABLED")
	}

	// Initialize handlers
	verifyHandler := handler.NewVerifyHandler(purchases, logger)
	rtdnHandler := handler.NewRTDNHandler(purchases, logger)

	// Initialize Prometheus HTTP metrics
	metrics := middleware.NewMetrics("heimdall")

	// Create router and register routes
	r := router.New(
		router.Recovery(logger),
		middleware.RequestID,
		metrics.Middleware,
		middleware.WithRequestLogger(logger),
		router.Logger(logger),
	)

	// Metrics endpoint (no auth required, but should be protected in production via firewall)
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		metrics.Handler().ServeHTTP(w, req)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Post("/google/verify", verifyHandler.HandleVerify)
	r.Post("/google/rtdn-webhook", rtdnHandler.HandlePush,
		middleware.RequireGoogleAuth(verifier, cfg.Pubsub.AuthDisabled))

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("Starting server", "address", addr, "env", cfg.Env)

	if err := http.ListenAndServe(addr, r); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
