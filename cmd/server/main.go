package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	traceapp "github.com/foodtrace/backend/internal/application/traceability"
	"github.com/foodtrace/backend/internal/domain/shared"
	"github.com/foodtrace/backend/internal/infrastructure/cache"
	"github.com/foodtrace/backend/internal/infrastructure/config"
	"github.com/foodtrace/backend/internal/infrastructure/event"
	"github.com/foodtrace/backend/internal/infrastructure/logger"
	"github.com/foodtrace/backend/internal/infrastructure/persistence"
	"github.com/foodtrace/backend/internal/interfaces/http/handler"
	"github.com/foodtrace/backend/internal/interfaces/http/middleware"
	"github.com/foodtrace/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting foodtrace backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("version", version),
		zap.String("port", cfg.App.Port),
	)

	// Database with a zap-backed GORM logger
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected")

	// Repositories and the transaction scope services write through
	batchRepo := persistence.NewGormStockBatchRepository(db.DB)
	lineageRepo := persistence.NewGormLineageRepository(db.DB)
	scope := persistence.NewGormTransactionScope(db.DB)

	// Application services
	batchService := traceapp.NewBatchService(scope, log)
	lineageService := traceapp.NewLineageService(scope, log)
	traceService := traceapp.NewTraceService(batchRepo, lineageRepo, log,
		traceapp.WithTraceDepthCeiling(cfg.Trace.MaxDepth))
	recallService := traceapp.NewRecallService(scope, batchRepo, lineageRepo, log)
	expiryService := traceapp.NewExpirySweepService(scope, batchRepo, traceapp.ExpiryConfig{
		WarnDaysUseBy:      cfg.Expiry.WarnDaysUseBy,
		WarnDaysBestBefore: cfg.Expiry.WarnDaysBestBefore,
		SweepInterval:      cfg.Expiry.SweepInterval,
		SweepBatchLimit:    cfg.Expiry.SweepBatchLimit,
	}, log)

	// Event bus with the audit trail subscriber
	eventBus := event.NewInMemoryEventBus(log, event.WithHandlerTimeout(cfg.Event.HandlerTimeout))
	eventBus.Subscribe(event.NewAuditLogHandler(log))
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	batchService.SetEventPublisher(eventBus)
	lineageService.SetEventPublisher(eventBus)
	recallService.SetEventPublisher(eventBus)
	expiryService.SetEventPublisher(eventBus)

	// Replay protection for recall initiation. Redis when reachable,
	// in-memory otherwise.
	if cfg.Idempotency.Enabled {
		factory := cache.NewIdempotencyStoreFactory(cfg.Redis, cache.WithLogger(log))
		store, err := factory.CreateStore()
		if err != nil {
			log.Fatal("Failed to create idempotency store", zap.Error(err))
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Error("Error closing idempotency store", zap.Error(err))
			}
		}()
		recallService.SetIdempotencyStore(store, shared.IdempotencyConfig{
			Enabled: cfg.Idempotency.Enabled,
			TTL:     cfg.Idempotency.TTL,
		})
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Use(middleware.RequireTenant())
	r.Register(handler.NewBatchHandler(batchService, expiryService)).
		Register(handler.NewLineageHandler(lineageService)).
		Register(handler.NewTraceHandler(traceService)).
		Register(handler.NewRecallHandler(recallService))
	r.RegisterRoot(handler.NewHealthHandler(db, version))
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Background expiry sweep, stopped on shutdown
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	if cfg.Expiry.SweepEnabled {
		go expiryService.Run(sweepCtx)
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
