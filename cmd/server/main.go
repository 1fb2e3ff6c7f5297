package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dkoffi/marketplace-payments/internal/adapters/fulfillment"
	"github.com/dkoffi/marketplace-payments/internal/adapters/moneroo"
	adapterports "github.com/dkoffi/marketplace-payments/internal/adapters/ports"
	"github.com/dkoffi/marketplace-payments/internal/adapters/postgres"
	"github.com/dkoffi/marketplace-payments/internal/adapters/secrets"
	"github.com/dkoffi/marketplace-payments/internal/config"
	"github.com/dkoffi/marketplace-payments/internal/domain/ports"
	adminHandler "github.com/dkoffi/marketplace-payments/internal/handlers/admin"
	cronHandler "github.com/dkoffi/marketplace-payments/internal/handlers/cron"
	"github.com/dkoffi/marketplace-payments/internal/middleware"
	"github.com/dkoffi/marketplace-payments/internal/services/reconciliation"
	"github.com/dkoffi/marketplace-payments/internal/services/recovery"
	"github.com/dkoffi/marketplace-payments/pkg/observability"
	"github.com/dkoffi/marketplace-payments/pkg/timeutil"
)

func main() {
	// Load .env for local development; in deployed environments the
	// variables come from the platform
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logger)
	defer logger.Sync()

	logger.Info("Starting marketplace payments service",
		zap.String("version", "0.1.0"),
	)

	dbPool, err := initDatabase(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbPool.Close()

	logger.Info("Database connection established",
		zap.String("database", cfg.Database.Database),
	)

	deps, err := initDependencies(dbPool, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies", zap.Error(err))
	}

	// HTTP server for cron and admin endpoints
	httpMux := http.NewServeMux()

	httpMux.HandleFunc("/cron/reconcile", deps.reconCronHandler.Reconcile)
	httpMux.HandleFunc("/cron/reconcile/stats", deps.reconCronHandler.Stats)
	httpMux.HandleFunc("/cron/reconcile/health", deps.reconCronHandler.HealthCheck)

	httpMux.HandleFunc("/admin/transactions/force-success", deps.recoveryHandler.ForceSuccess)
	httpMux.HandleFunc("/admin/orders/confirm", deps.recoveryHandler.ConfirmOrder)
	httpMux.HandleFunc("/admin/orders/fulfill", deps.recoveryHandler.MarkOrderFulfilled)
	httpMux.HandleFunc("/admin/subscriptions/approve", deps.recoveryHandler.ApproveSubscription)
	httpMux.HandleFunc("/admin/subscriptions/reject", deps.recoveryHandler.RejectSubscription)
	httpMux.HandleFunc("/admin/reconcile", deps.recoveryHandler.TriggerReconciliation)
	httpMux.HandleFunc("/admin/reconcile/logs", deps.recoveryHandler.ListRuns)

	securityHeaders := middleware.NewSecurityHeaders(cfg.Logger.Development)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: securityHeaders.Middleware(httpMux),
	}

	// Prometheus metrics and health checks on a separate port
	healthChecker := observability.NewHealthChecker(dbPool)
	metricsServer := observability.StartMetricsServer(strconv.Itoa(cfg.Server.MetricsPort), healthChecker)
	logger.Info("Metrics server listening", zap.Int("port", cfg.Server.MetricsPort))

	// In-process scheduler; /cron/reconcile stays available for external
	// schedulers, the run lock keeps the two from overlapping
	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Reconciliation.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		_, runErr := deps.reconService.Run(ctx, reconciliation.RunOptions{
			Staleness:   time.Duration(cfg.Reconciliation.StalenessMinutes) * time.Minute,
			BatchSize:   int32(cfg.Reconciliation.BatchSize),
			TriggeredBy: "scheduler",
		})
		if runErr != nil {
			logger.Error("Scheduled reconciliation run failed", zap.Error(runErr))
		}
	})
	if err != nil {
		logger.Fatal("Invalid reconciliation schedule",
			zap.String("schedule", cfg.Reconciliation.Schedule),
			zap.Error(err),
		)
	}
	scheduler.Start()
	logger.Info("Reconciliation scheduler started",
		zap.String("schedule", cfg.Reconciliation.Schedule),
	)

	go func() {
		logger.Info("HTTP server listening",
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	schedulerCtx := scheduler.Stop()
	<-schedulerCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	if err := observability.ShutdownMetricsServer(metricsServer); err != nil {
		logger.Error("Metrics server shutdown error", zap.Error(err))
	}

	logger.Info("Servers stopped")
}

// Dependencies holds all initialized services and handlers
type Dependencies struct {
	reconService     *reconciliation.Service
	reconCronHandler *cronHandler.ReconciliationHandler
	recoveryHandler  *adminHandler.RecoveryHandler
}

// initLogger initializes the logger
func initLogger(cfg config.LoggerConfig) *zap.Logger {
	if cfg.Development {
		logger, _ := zap.NewDevelopment()
		return logger
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	logger, _ := zapCfg.Build()
	return logger
}

// initDatabase initializes the PostgreSQL connection pool
func initDatabase(cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	poolConfig.MaxConns = cfg.Database.MaxConns
	poolConfig.MinConns = cfg.Database.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// initSecretManager selects the secret manager backend from configuration
func initSecretManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) (adapterports.SecretManagerAdapter, error) {
	switch cfg.Secrets.Backend {
	case "aws":
		awsCfg := secrets.DefaultAWSSecretsManagerConfig(cfg.Secrets.AWSRegion)
		awsCfg.Endpoint = cfg.Secrets.AWSEndpoint
		return secrets.NewAWSSecretsManagerAdapter(ctx, awsCfg, logger)
	case "vault":
		vaultCfg := secrets.DefaultVaultConfig(cfg.Secrets.VaultAddress)
		vaultCfg.Token = cfg.Secrets.VaultToken
		return secrets.NewVaultAdapter(vaultCfg, logger)
	case "local":
		return secrets.NewLocalSecretManager(cfg.Secrets.LocalPath, logger), nil
	default:
		return nil, fmt.Errorf("unknown secrets backend %q", cfg.Secrets.Backend)
	}
}

// initDependencies initializes all services and handlers with dependency injection
func initDependencies(dbPool *pgxpool.Pool, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	ctx := context.Background()

	db := postgres.NewDBExecutor(dbPool)
	orderRepo := postgres.NewOrderRepository(db)
	txRepo := postgres.NewTransactionRepository(db)
	subscriptionRepo := postgres.NewSubscriptionRepository(db)
	logRepo := postgres.NewAutoProcessLogRepository(db)
	runLocker := postgres.NewRunLocker(dbPool)

	secretManager, err := initSecretManager(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init secret manager: %w", err)
	}

	// The gateway API key can live in the secret manager instead of the env
	apiKey := cfg.Gateway.APIKey
	if cfg.Secrets.GatewayKeyPath != "" {
		secret, err := secretManager.GetSecret(ctx, cfg.Secrets.GatewayKeyPath)
		if err != nil {
			return nil, fmt.Errorf("resolve gateway API key: %w", err)
		}
		apiKey = secret.Value
	}

	gatewayTimeout := time.Duration(cfg.Gateway.Timeout) * time.Second
	verifierCfg := moneroo.DefaultVerificationConfig(apiKey)
	verifierCfg.BaseURL = cfg.Gateway.BaseURL
	verifierCfg.Timeout = gatewayTimeout
	verifier := moneroo.NewVerificationAdapter(verifierCfg, &http.Client{Timeout: gatewayTimeout}, logger)

	// Fulfillment is optional; without an endpoint, settled orders are only
	// recorded and delivery is triggered elsewhere
	var fulfiller ports.Fulfiller
	if cfg.Fulfillment.Endpoint != "" {
		fulfillTimeout := time.Duration(cfg.Fulfillment.Timeout) * time.Second
		fulfiller = fulfillment.NewHTTPFulfiller(&fulfillment.Config{
			Endpoint: cfg.Fulfillment.Endpoint,
			Secret:   cfg.Fulfillment.Secret,
			Timeout:  fulfillTimeout,
		}, &http.Client{Timeout: fulfillTimeout}, logger)
	} else {
		logger.Warn("No fulfillment endpoint configured, delivery triggers disabled")
	}

	reconService := reconciliation.NewService(
		db, orderRepo, txRepo, logRepo,
		verifier, fulfiller, runLocker,
		timeutil.SystemClock(), logger,
	)
	recoveryService := recovery.NewService(db, orderRepo, txRepo, subscriptionRepo, logger)

	reconCronHdlr := cronHandler.NewReconciliationHandler(
		reconService, orderRepo, logRepo, logger,
		cfg.Reconciliation.CronSecret,
		time.Duration(cfg.Reconciliation.StalenessMinutes)*time.Minute,
		int32(cfg.Reconciliation.BatchSize),
	)
	recoveryHdlr := adminHandler.NewRecoveryHandler(
		recoveryService, reconService, logRepo, logger,
		cfg.Reconciliation.AdminSecret,
	)

	return &Dependencies{
		reconService:     reconService,
		reconCronHandler: reconCronHdlr,
		recoveryHandler:  recoveryHdlr,
	}, nil
}
