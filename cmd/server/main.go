package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	integrationapp "github.com/marketsync/backend/internal/application/integration"
	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/infrastructure/auth"
	"github.com/marketsync/backend/internal/infrastructure/cache"
	"github.com/marketsync/backend/internal/infrastructure/config"
	"github.com/marketsync/backend/internal/infrastructure/ecommerce"
	"github.com/marketsync/backend/internal/infrastructure/logger"
	"github.com/marketsync/backend/internal/infrastructure/messaging"
	"github.com/marketsync/backend/internal/infrastructure/persistence"
	"github.com/marketsync/backend/internal/infrastructure/scheduler"
	"github.com/marketsync/backend/internal/infrastructure/storage"
	"github.com/marketsync/backend/internal/infrastructure/telemetry"
	"github.com/marketsync/backend/internal/interfaces/http/handler"
	"github.com/marketsync/backend/internal/interfaces/http/middleware"
	"github.com/marketsync/backend/internal/interfaces/http/router"
)

//	@title			MarketSync Backend API
//	@version		1.0
//	@description	Marketplace order and inventory synchronization engine
//	@termsOfService	http://swagger.io/terms/

//	@contact.name	API Support
//	@contact.url	https://github.com/marketsync/backend

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

const serviceVersion = "1.0.0"

func main() {
	// A missing .env is fine; the environment and config.toml still apply
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
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

	log.Info("Starting MarketSync Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.Int("marketplaces", len(cfg.EnabledMarketplaces())),
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Telemetry
	telemetryCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    serviceVersion,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
	}
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer shutdownWithTimeout(log, "tracer provider", tracerProvider.Shutdown)

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer shutdownWithTimeout(log, "meter provider", meterProvider.Shutdown)

	// Initialize database connection
	db, err := persistence.NewDatabase(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if err := telemetry.InstrumentDatabase(db.DB, telemetry.DBConfig{
		Tracing:          cfg.Telemetry.DBTraceEnabled,
		IncludeQueryVars: cfg.Telemetry.DBLogFullSQL,
		SlowQuery:        cfg.Database.SlowQueryThreshold,
	}, meterProvider, log); err != nil {
		log.Warn("Failed to instrument database", zap.Error(err))
	}

	// Initialize repositories
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	quarantineRepo := persistence.NewGormQuarantineRepository(db.DB)
	skuRepo := persistence.NewGormSKURepository(db.DB)
	syncRunRepo := persistence.NewGormSyncRunRepository(db.DB)
	syncStateRepo := persistence.NewGormSyncStateRepository(db.DB)

	sealer, err := auth.NewValueSealer(cfg.Sync.EncryptionKey)
	if err != nil {
		log.Fatal("Failed to initialize token sealer", zap.Error(err))
	}

	// Token store and run lock: Redis when available, otherwise the
	// database token store and a process-local lock
	stores := cache.NewStoreFactory(cfg.Redis, cache.WithLogger(log))
	if err := stores.Connect(ctx); err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Error("Error closing Redis client", zap.Error(err))
		}
	}()
	tokenStore := stores.TokenStore(sealer)
	if tokenStore == nil {
		tokenStore = persistence.NewGormTokenStore(db.DB, sealer)
	}

	// Sync metrics
	syncMetrics, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
		Meter:           meterProvider.Meter("marketsync.sync"),
		Logger:          log,
		BacklogProvider: telemetry.NewGormSyncBacklogProvider(db.DB),
	})
	if err != nil {
		log.Fatal("Failed to initialize sync metrics", zap.Error(err))
	}
	syncMetrics.StartPeriodicCollection(ctx, time.Minute)
	defer syncMetrics.Stop()

	// Credential manager and marketplace adapters
	credentials := integrationapp.NewCredentialManager(tokenStore, integrationapp.CredentialManagerConfig{
		RefreshMargin: cfg.Sync.RefreshMargin,
		MaxAttempts:   cfg.Sync.CredentialMaxAttempts,
	}, log)
	credentials.SetRefreshRecorder(syncMetrics)

	marketplaces := cfg.EnabledMarketplaces()
	registry := integration.NewAdapterRegistry()
	vocabularies := make(map[integration.MarketplaceID][]string, len(marketplaces))
	for _, mc := range marketplaces {
		client, err := ecommerce.NewMarketplaceClient(mc, credentials)
		if err != nil {
			log.Fatal("Failed to create marketplace adapter",
				zap.String("marketplace", mc.ID),
				zap.Error(err),
			)
		}
		registry.Register(client)
		credentials.RegisterIssuer(client.Marketplace(), client)
		vocabularies[client.Marketplace()] = client.StatusVocabulary()
		log.Info("Marketplace registered",
			zap.String("marketplace", mc.ID),
			zap.String("provider", mc.Provider),
		)
	}

	// Status mapping table. Configuration problems block order sync for the
	// affected marketplaces only, so they are logged rather than fatal.
	mappingFile, err := config.LoadStatusMappings(cfg.Sync.StatusMappingsFile)
	if err != nil {
		log.Fatal("Failed to load status mappings",
			zap.String("file", cfg.Sync.StatusMappingsFile),
			zap.Error(err),
		)
	}
	statuses, err := integration.NewStatusMappingTable(mappingFile.Entries(marketplaces), vocabularies)
	if err != nil {
		log.Error("Status mapping configuration is incomplete",
			zap.Error(err),
		)
	}
	for _, m := range statuses.BlockedMarketplaces() {
		log.Warn("Order sync blocked for marketplace", zap.String("marketplace", string(m.Marketplace)))
	}

	// Quarantine payload archive
	var archive interface {
		integration.PayloadArchive
		integrationapp.PayloadReader
	} = storage.NewMemoryPayloadArchive()
	if cfg.Storage.Enabled {
		s3Archive, err := storage.NewS3PayloadArchive(ctx, &cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to initialize payload archive", zap.Error(err))
		}
		if err := s3Archive.EnsureBucket(ctx); err != nil {
			log.Warn("Payload bucket check failed", zap.String("bucket", s3Archive.Bucket()), zap.Error(err))
		}
		archive = s3Archive
	}

	// Alert publisher
	var publisher integration.SyncEventPublisher = messaging.NewLogPublisher(log)
	if cfg.RabbitMQ.Enabled {
		rabbit, err := messaging.NewRabbitMQPublisher(messaging.RabbitMQConfig{
			URL:      cfg.RabbitMQ.URL,
			Exchange: cfg.RabbitMQ.Exchange,
			Source:   cfg.RabbitMQ.Source,
		}, log)
		if err != nil {
			log.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer func() {
			if err := rabbit.Close(); err != nil {
				log.Error("Error closing RabbitMQ publisher", zap.Error(err))
			}
		}()
		publisher = rabbit
	}

	// Reconciler and synchronizer
	reconcilerCfg := integrationapp.ReconcilerConfig{
		DefaultDirection: integration.SyncDirection(cfg.Sync.Direction),
		Directions:       make(map[integration.MarketplaceID]integration.SyncDirection),
	}
	syncCfg := integrationapp.OrderSynchronizerConfig{
		InitialLookback: cfg.Sync.InitialLookback,
		ShopCodes:       make(map[integration.MarketplaceID][]string),
		StatusFilter:    make(map[integration.MarketplaceID][]string),
	}
	for _, mc := range marketplaces {
		id := integration.MarketplaceID(mc.ID)
		if mc.Direction != "" {
			reconcilerCfg.Directions[id] = integration.SyncDirection(mc.Direction)
		}
		if len(mc.ShopCodes) > 0 {
			syncCfg.ShopCodes[id] = mc.ShopCodes
		}
		if len(mc.StatusFilter) > 0 {
			syncCfg.StatusFilter[id] = mc.StatusFilter
		}
	}

	reconciler := integrationapp.NewInventoryReconciler(registry, skuRepo, reconcilerCfg, log)
	synchronizer := integrationapp.NewOrderSynchronizer(
		registry, orderRepo, quarantineRepo, syncStateRepo, statuses, syncCfg, log,
	)
	synchronizer.SetPayloadArchive(archive)
	synchronizer.SetEventPublisher(publisher)

	// Sync orchestrator
	orchestratorCfg := scheduler.DefaultOrchestratorConfig()
	if cfg.Sync.RunTimeout > 0 {
		orchestratorCfg.RunTimeout = cfg.Sync.RunTimeout
		orchestratorCfg.LockTTL = cfg.Sync.RunTimeout + time.Minute
	}
	if cfg.Sync.MaxTransientRetries > 0 {
		orchestratorCfg.MaxTransientRetries = cfg.Sync.MaxTransientRetries
	}
	if cfg.Sync.MaxPartialRetries > 0 {
		orchestratorCfg.MaxPartialRetries = cfg.Sync.MaxPartialRetries
	}
	if cfg.Sync.RetryBaseDelay > 0 {
		orchestratorCfg.RetryBaseDelay = cfg.Sync.RetryBaseDelay
	}
	if cfg.Sync.RetryMaxDelay > 0 {
		orchestratorCfg.RetryMaxDelay = cfg.Sync.RetryMaxDelay
	}
	if cfg.Sync.SchedulerEnabled {
		orchestratorCfg.Schedules = buildSchedules(cfg.Sync, marketplaces)
	}

	orchestrator, err := scheduler.NewSyncOrchestrator(orchestratorCfg, syncRunRepo, syncStateRepo, statuses, log)
	if err != nil {
		log.Fatal("Failed to create sync orchestrator", zap.Error(err))
	}
	orchestrator.RegisterExecutor(integration.RunKindInventory, scheduler.RunExecutorFunc(reconciler.Reconcile))
	orchestrator.RegisterExecutor(integration.RunKindOrders, scheduler.RunExecutorFunc(synchronizer.Sync))
	orchestrator.SetRunLock(stores.RunLock())
	orchestrator.SetEventPublisher(publisher)
	orchestrator.SetRunRecorder(syncMetrics)

	if err := orchestrator.Start(ctx); err != nil {
		log.Fatal("Failed to start sync orchestrator", zap.Error(err))
	}
	log.Info("Sync orchestrator started",
		zap.Bool("scheduler_enabled", cfg.Sync.SchedulerEnabled),
		zap.Int("schedules", len(orchestratorCfg.Schedules)),
	)

	// Application services
	orderService := integrationapp.NewOrderService(orderRepo)
	stockService := integrationapp.NewStockService(skuRepo, log)
	quarantineService := integrationapp.NewQuarantineService(quarantineRepo, archive, log)
	syncRunService := integrationapp.NewSyncRunService(syncRunRepo)

	// HTTP handlers
	badges := integration.DefaultBadgeTable()
	handlers := router.SyncAPIHandlers{
		Sync:       handler.NewSyncHandler(orchestrator, syncRunService),
		Quarantine: handler.NewQuarantineHandler(quarantineService),
		Order:      handler.NewOrderHandler(orderService, badges),
		Stock:      handler.NewStockHandler(stockService, badges),
		Status:     handler.NewStatusHandler(statuses, badges),
	}

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Request ID first so every later log line and span can carry it
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Tracing(cfg.Telemetry.ServiceName, tracerProvider.IsEnabled())...)
	engine.Use(middleware.HTTPMetrics(meterProvider, log))
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure(middleware.SecureConfig{HSTSMaxAge: cfg.HTTP.HSTSMaxAge}))
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{middleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, log))

	// Rate limiting runs after authentication so the key can use the operator subject
	jwtService := auth.NewJWTService(cfg.JWT)
	authenticate := middleware.Authenticate(jwtService, log)
	var apiMiddlewares []gin.HandlerFunc
	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		apiMiddlewares = append(apiMiddlewares, middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	router.RegisterSyncAPI(r, handlers, authenticate, apiMiddlewares...)

	marketplaceIDs := make([]string, 0, len(marketplaces))
	for _, m := range marketplaces {
		marketplaceIDs = append(marketplaceIDs, m.ID)
	}
	systemHandler := handler.NewSystemHandler(marketplaceIDs, cfg.Sync.SchedulerEnabled)
	r.Register(router.NewDomainGroup("system", "/system").
		Use(authenticate).
		GET("/info", systemHandler.GetSystemInfo))

	r.Setup()

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	// In-flight runs are cancelled and closed as failed before the stores go away
	if err := orchestrator.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping sync orchestrator", zap.Error(err))
	}
	stop()

	log.Info("Server exited gracefully")
}

// buildSchedules returns one interval schedule per enabled (marketplace, kind) pair
func buildSchedules(cfg config.SyncConfig, marketplaces []config.MarketplaceConfig) []scheduler.Schedule {
	var schedules []scheduler.Schedule
	for _, mc := range marketplaces {
		id := integration.MarketplaceID(mc.ID)
		if mc.Inventory && cfg.InventoryInterval > 0 {
			schedules = append(schedules, scheduler.Schedule{
				Marketplace: id,
				Kind:        integration.RunKindInventory,
				Interval:    cfg.InventoryInterval,
			})
		}
		if mc.Orders && cfg.OrdersInterval > 0 {
			schedules = append(schedules, scheduler.Schedule{
				Marketplace: id,
				Kind:        integration.RunKindOrders,
				Interval:    cfg.OrdersInterval,
			})
		}
	}
	return schedules
}

// shutdownWithTimeout calls fn with a bounded context and logs a failure
func shutdownWithTimeout(log *zap.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Error("Error shutting down "+name, zap.Error(err))
	}
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.Ctx(c.Request.Context(), log)
		if err := db.Ping(c.Request.Context()); err != nil {
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
