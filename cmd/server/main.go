package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appledger "github.com/vendfleet/backend/internal/application/ledger"
	"github.com/vendfleet/backend/internal/domain/shared"
	"github.com/vendfleet/backend/internal/infrastructure/cache"
	"github.com/vendfleet/backend/internal/infrastructure/config"
	"github.com/vendfleet/backend/internal/infrastructure/event"
	"github.com/vendfleet/backend/internal/infrastructure/logger"
	"github.com/vendfleet/backend/internal/infrastructure/persistence"
	"github.com/vendfleet/backend/internal/infrastructure/scheduler"
	"github.com/vendfleet/backend/internal/interfaces/http/handler"
	"github.com/vendfleet/backend/internal/interfaces/http/middleware"
	"github.com/vendfleet/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting ledger backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Initialize repositories and the transaction scope that carries the
	// transfer engine's atomicity guarantees
	reservationRepo := persistence.NewGormReservationRepository(db.DB)
	scope := persistence.NewGormTransactionScope(db.DB)

	// Initialize event bus
	eventBus := event.NewInMemoryEventBus(log)

	// Idempotency store for event redelivery suppression. Redis-backed
	// when enabled, in-memory otherwise.
	var idempotencyStore shared.IdempotencyStore
	if cfg.Redis.Enabled {
		store, err := cache.NewRedisIdempotencyStore(cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		idempotencyStore = store
		log.Info("Redis idempotency store connected", zap.String("addr", cfg.Redis.Addr()))
	} else {
		idempotencyStore = cache.NewInMemoryIdempotencyStore()
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	// Register alert handlers, wrapped so redelivered events do not fire
	// duplicate alerts
	lowStockHandler := event.NewIdempotentHandler(appledger.NewLowStockAlertHandler(log), idempotencyStore, log)
	driftHandler := event.NewIdempotentHandler(appledger.NewDriftAlertHandler(log), idempotencyStore, log)
	eventBus.Subscribe(lowStockHandler)
	eventBus.Subscribe(driftHandler)

	log.Info("Event handlers registered",
		zap.Strings("low_stock_events", lowStockHandler.EventTypes()),
		zap.Strings("drift_events", driftHandler.EventTypes()),
	)

	// Start event bus
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Initialize application services
	transferService := appledger.NewTransferService(scope, eventBus, log)
	reservationService := appledger.NewReservationService(scope, eventBus, log)
	stockRecordService := appledger.NewStockRecordService(scope, log)
	reconciliationService := appledger.NewReconciliationService(scope, eventBus, log)
	expirationService := appledger.NewReservationExpirationService(
		reservationService, reservationRepo, cfg.Reservation.SweepBatchSize, log)

	// Background sweeps
	if cfg.Reservation.SweepEnabled {
		sweepRunner := scheduler.NewPeriodicRunner(
			scheduler.NewReservationSweepTask(expirationService),
			cfg.Reservation.SweepInterval,
			log,
		)
		if err := sweepRunner.Start(context.Background()); err != nil {
			log.Fatal("Failed to start reservation sweep", zap.Error(err))
		}
		defer func() {
			if err := sweepRunner.Stop(context.Background()); err != nil {
				log.Error("Error stopping reservation sweep", zap.Error(err))
			}
		}()
		log.Info("Reservation expiration sweep started",
			zap.Duration("interval", cfg.Reservation.SweepInterval),
			zap.Int("batch_size", cfg.Reservation.SweepBatchSize),
		)
	}

	if cfg.Reconcile.Enabled {
		reconcileRunner := scheduler.NewPeriodicRunner(
			scheduler.NewReconciliationTask(reconciliationService, log),
			cfg.Reconcile.Interval,
			log,
		)
		if err := reconcileRunner.Start(context.Background()); err != nil {
			log.Fatal("Failed to start reconciliation sweep", zap.Error(err))
		}
		defer func() {
			if err := reconcileRunner.Stop(context.Background()); err != nil {
				log.Error("Error stopping reconciliation sweep", zap.Error(err))
			}
		}()
		log.Info("Balance reconciliation sweep started",
			zap.Duration("interval", cfg.Reconcile.Interval),
		)
	}

	// Initialize HTTP handlers
	transferHandler := handler.NewTransferHandler(transferService, stockRecordService)
	reservationHandler := handler.NewReservationHandler(reservationService, cfg.Reservation.DefaultExpiration)
	stockRecordHandler := handler.NewStockRecordHandler(stockRecordService, reconciliationService)
	systemHandler := handler.NewSystemHandler(expirationService)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	// Initialize router with middleware stack:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. CORS - Handle cross-origin requests
	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db))

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(transferHandler).
		Register(reservationHandler).
		Register(stockRecordHandler).
		Register(systemHandler)
	r.Setup()

	// Create HTTP server
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in a goroutine
	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
