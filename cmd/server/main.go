package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	appintegration "github.com/erp/marketsync/internal/application/integration"
	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/erp/marketsync/internal/infrastructure/auth"
	"github.com/erp/marketsync/internal/infrastructure/cache"
	"github.com/erp/marketsync/internal/infrastructure/config"
	"github.com/erp/marketsync/internal/infrastructure/crypto"
	"github.com/erp/marketsync/internal/infrastructure/ecommerce"
	"github.com/erp/marketsync/internal/infrastructure/erp"
	"github.com/erp/marketsync/internal/infrastructure/event"
	"github.com/erp/marketsync/internal/infrastructure/lock"
	"github.com/erp/marketsync/internal/infrastructure/logger"
	"github.com/erp/marketsync/internal/infrastructure/persistence"
	"github.com/erp/marketsync/internal/infrastructure/scheduler"
	"github.com/erp/marketsync/internal/infrastructure/storage"
	"github.com/erp/marketsync/internal/infrastructure/telemetry"
	"github.com/erp/marketsync/internal/interfaces/http/handler"
	"github.com/erp/marketsync/internal/interfaces/http/middleware"
	"github.com/erp/marketsync/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const (
	shutdownTimeout = 30 * time.Second
	redisKeyPrefix  = "msync:"
)

// lifecycle is a background component started after wiring and stopped on shutdown
type lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	baseLog, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
	}

	logProvider, err := telemetry.NewLoggerProvider(ctx, telCfg, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize log exporter", zap.Error(err))
	}
	minLevel, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		minLevel = zapcore.InfoLevel
	}
	log := logProvider.Bridge(baseLog, cfg.Telemetry.ServiceName, minLevel)
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting marketplace sync service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("version", version),
		zap.String("port", cfg.App.Port),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	meter := meterProvider.Meter("marketsync")
	syncMetrics, err := telemetry.NewSyncMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create sync metrics", zap.Error(err))
	}

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		DBName:          cfg.Database.DBName,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
	}, log)
	if err := dbTracing.Register(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	log.Info("Database connected",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.DBName),
	)

	// Coordination: Redis when configured, process-local otherwise
	var (
		redisClient *redis.Client
		locker      lock.Locker
		idempotency shared.IdempotencyStore
		cooldowns   ecommerce.CooldownStore
	)
	if cfg.Redis.Enabled() {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		locker = lock.NewRedisLocker(redisClient, redisKeyPrefix+"lock:")
		idempotency = cache.NewIdempotencyStore(redisClient, redisKeyPrefix+"idem:", log)
		cooldowns = ecommerce.NewRedisCooldownStore(redisClient, redisKeyPrefix+"cooldown:")
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	} else {
		memStore := cache.NewInMemoryIdempotencyStore(time.Minute)
		defer func() {
			_ = memStore.Close()
		}()
		locker = lock.NewLocalLocker()
		idempotency = memStore
		cooldowns = ecommerce.NewLocalCooldownStore()
		log.Warn("Redis not configured, using process-local locks and idempotency")
	}

	var cipher *crypto.TokenCipher
	if cfg.Crypto.ActiveKeyID != "" {
		cipher, err = crypto.NewTokenCipher(cfg.Crypto.ActiveKeyID, cfg.Crypto.Keys)
	} else {
		log.Warn("No token encryption key configured, stored tokens will not survive a restart")
		cipher, err = crypto.NewEphemeralTokenCipher()
	}
	if err != nil {
		log.Fatal("Failed to initialize token cipher", zap.Error(err))
	}

	// Marketplace adapters
	mlAdapter, err := ecommerce.NewMercadoLibreAdapter(
		ecommerce.NewMercadoLibreConfig(cfg.MercadoLibre),
		ecommerce.WithHTTPClient(&http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.MercadoLibre.RequestTimeout,
		}),
		ecommerce.WithCooldownStore(cooldowns),
		ecommerce.WithLogger(log),
	)
	if err != nil {
		log.Fatal("Failed to initialize Mercado Libre adapter", zap.Error(err))
	}
	adapters := ecommerce.NewRegistry(mlAdapter)

	// ERP collaborators
	erpClient, err := erp.NewClient(cfg.ERP, erp.WithLogger(log))
	if err != nil {
		log.Fatal("Failed to initialize ERP client", zap.Error(err))
	}
	inventory := erp.NewInventoryClient(erpClient)
	catalog := erp.NewCatalogClient(erpClient)
	orderSink := erp.NewOrderClient(erpClient)

	var pictures integration.PictureSource
	if cfg.Storage.Bucket != "" {
		store, err := storage.NewS3PictureStore(ctx, &cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to initialize picture store", zap.Error(err))
		}
		pictures = store
	}

	// Repositories
	connectionRepo := persistence.NewGormConnectionRepository(db.DB)
	listingRepo := persistence.NewGormListingRepository(db.DB)
	orderRepo := persistence.NewGormMarketplaceOrderRepository(db.DB)
	ruleRepo := persistence.NewGormSafetyMarginRuleRepository(db.DB)
	logRepo := persistence.NewGormSyncLogRepository(db.DB)
	queueRepo := persistence.NewGormSyncQueueRepository(db.DB)

	// Application services
	connectionService := appintegration.NewConnectionService(
		connectionRepo, adapters, cipher, auth.NewStateSigner(cfg.JWT), cfg.TokenRefresh.Threshold, log,
	)
	connectionService.UseMetrics(syncMetrics)

	queueService := appintegration.NewSyncQueueService(queueRepo, logRepo, connectionRepo, appintegration.SyncQueueConfig{
		MaxRetries:        cfg.Sync.MaxRetries,
		RetryBaseDelay:    cfg.Sync.RetryBaseDelay,
		RetryMaxDelay:     cfg.Sync.RetryMaxDelay,
		ProcessingTimeout: cfg.Sync.ProcessingTimeout,
		Retention:         cfg.Sync.Retention(),
	}, log)

	marginService := appintegration.NewSafetyMarginService(ruleRepo, catalog, queueService, log)
	listingService := appintegration.NewListingService(listingRepo, adapters, pictures, log)
	listingService.UsePublishLock(locker)

	orderService := appintegration.NewOrderImportService(
		connectionRepo, orderRepo, listingRepo, connectionService, adapters, orderSink, log,
	)
	orderService.UseMetrics(syncMetrics)

	processor := appintegration.NewSyncProcessor(appintegration.SyncProcessorDeps{
		Tokens:    connectionService,
		Margins:   marginService,
		Listings:  listingService,
		Outcomes:  queueService,
		Inventory: inventory,
		Catalog:   catalog,
		Adapters:  adapters,
		Metrics:   syncMetrics,
	}, cfg.Sync.CallTimeout, log)

	// Stock change events
	eventBus := event.NewInMemoryEventBus(log)
	stockHandler := appintegration.NewStockChangedHandler(queueService, log)
	eventBus.Subscribe(event.NewIdempotentHandler(stockHandler, idempotency, log), stockHandler.EventTypes()...)

	// Background components, started in order and stopped in reverse
	components := []lifecycle{eventBus}

	dispatcher, err := scheduler.NewNotificationDispatcher(scheduler.NotificationDispatcherConfig{
		Workers:       cfg.OrderImport.DispatcherWorkers,
		Buffer:        cfg.OrderImport.DispatcherBuffer,
		CoalesceTTL:   cfg.OrderImport.NotificationTTL,
		HandleTimeout: time.Minute,
	}, orderService, idempotency, syncMetrics, log)
	if err != nil {
		log.Fatal("Failed to create notification dispatcher", zap.Error(err))
	}
	components = append(components, dispatcher)

	if cfg.Sync.Enabled {
		pool, err := scheduler.NewSyncWorkerPool(scheduler.SyncWorkerPoolConfig{
			Workers:      cfg.Sync.Workers,
			BatchSize:    cfg.Sync.BatchSize,
			PollInterval: cfg.Sync.PollInterval,
		}, queueService, processor, syncMetrics, log)
		if err != nil {
			log.Fatal("Failed to create sync worker pool", zap.Error(err))
		}
		maintenance, err := scheduler.NewMaintenance(scheduler.MaintenanceConfig{
			ReaperCron: cfg.Sync.ReaperCron,
			PurgeCron:  cfg.Sync.PurgeCron,
		}, queueService, locker, log)
		if err != nil {
			log.Fatal("Failed to create queue maintenance", zap.Error(err))
		}
		components = append(components, pool, maintenance)
	} else {
		log.Warn("Sync workers disabled")
	}

	refresher, err := scheduler.NewTokenRefresher(scheduler.TokenRefresherConfig{
		Interval:  cfg.TokenRefresh.Interval,
		Threshold: cfg.TokenRefresh.Threshold,
	}, connectionService, locker, log)
	if err != nil {
		log.Fatal("Failed to create token refresher", zap.Error(err))
	}
	components = append(components, refresher)

	if cfg.OrderImport.PollEnabled {
		_, pollJob, err := scheduler.NewOrderPoller(scheduler.OrderPollerConfig{
			Interval:    cfg.OrderImport.PollInterval,
			Lookback:    cfg.OrderImport.Lookback,
			Concurrency: cfg.OrderImport.PollConcurrency,
		}, connectionRepo, orderService, locker, log)
		if err != nil {
			log.Fatal("Failed to create order poller", zap.Error(err))
		}
		components = append(components, pollJob)
	}

	// HTTP
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsCfg.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsCfg.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.Tracing(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		}),
		middleware.HTTPMetrics(meter),
		middleware.CORS(corsCfg),
		middleware.Secure(),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	adminChain := []gin.HandlerFunc{}
	if cfg.JWT.Secret != "" {
		adminChain = append(adminChain, middleware.JWTAuth(middleware.JWTMiddlewareConfig{
			Validator: auth.NewJWTService(cfg.JWT),
			Logger:    log,
		}))
	} else {
		log.Warn("JWT secret not configured, admin API relies on X-Tenant-ID only")
	}
	adminChain = append(adminChain, middleware.TenantMiddleware(), middleware.TracingAttributes())

	webhookLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RatePerSecond: cfg.HTTP.WebhookRatePerSecond,
		Burst:         cfg.HTTP.WebhookRateBurst,
		IdleTTL:       10 * time.Minute,
	})
	defer webhookLimiter.Stop()

	routes := router.NewIntegrationRoutes(router.IntegrationHandlers{
		Connection:   handler.NewConnectionHandler(connectionService),
		Webhook:      handler.NewWebhookHandler(orderService, dispatcher),
		SafetyMargin: handler.NewSafetyMarginHandler(marginService),
		Sync:         handler.NewSyncHandler(queueService),
		Listing:      handler.NewListingHandler(listingService, orderService),
		StockEvent:   handler.NewStockEventHandler(eventBus),
	}, router.IntegrationMiddleware{
		Admin:   adminChain,
		Webhook: []gin.HandlerFunc{middleware.RateLimit(webhookLimiter, middleware.ClientIPKey)},
	})
	router.NewRouter(engine).Register(routes).Setup()

	checks := map[string]handler.HealthCheck{"database": db.Ping}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	router.SystemRoutes(engine, handler.NewSystemHandler(version, checks))

	// Start background work
	for _, c := range components {
		if err := c.Start(ctx); err != nil {
			log.Fatal("Failed to start background component", zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	for i := len(components) - 1; i >= 0; i-- {
		if err := components[i].Stop(shutdownCtx); err != nil {
			log.Warn("Background component did not stop cleanly", zap.Error(err))
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Warn("Failed to close redis client", zap.Error(err))
		}
	}
	if err := db.Close(); err != nil {
		log.Warn("Failed to close database", zap.Error(err))
	}
	for name, shutdown := range map[string]func(context.Context) error{
		"tracer": tracerProvider.Shutdown,
		"meter":  meterProvider.Shutdown,
		"logs":   logProvider.Shutdown,
	} {
		if err := shutdown(shutdownCtx); err != nil {
			log.Warn("Telemetry shutdown failed", zap.String("provider", name), zap.Error(err))
		}
	}

	log.Info("Server exited")
}
