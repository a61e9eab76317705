package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	appbilling "github.com/leasehold/backend/internal/application/billing"
	appidentity "github.com/leasehold/backend/internal/application/identity"
	"github.com/leasehold/backend/internal/domain/shared"
	"github.com/leasehold/backend/internal/infrastructure/cache"
	"github.com/leasehold/backend/internal/infrastructure/config"
	"github.com/leasehold/backend/internal/infrastructure/logger"
	"github.com/leasehold/backend/internal/infrastructure/persistence"
	"github.com/leasehold/backend/internal/infrastructure/persistence/tenant"
	"github.com/leasehold/backend/internal/infrastructure/scheduler"
	"github.com/leasehold/backend/internal/infrastructure/telemetry"
	"github.com/leasehold/backend/internal/interfaces/http/handler"
	"github.com/leasehold/backend/internal/interfaces/http/middleware"
	"github.com/leasehold/backend/internal/interfaces/http/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// version is set at build time with -ldflags "-X main.version=..."
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
		_ = log.Sync()
	}()

	log.Info("Starting lease billing backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Connection pool: one lazily opened handle per tenant database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.SlowQueryThreshold))
	dial := instrumentedDialer(
		persistence.NewPostgresDialer(persistence.DialOptionsFromConfig(&cfg.Database, gormLog)),
		telemetry.DBTracingConfig{
			Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTracing,
			LogFullSQL:      cfg.App.Env == "development",
			SlowQueryThresh: cfg.Telemetry.SlowQueryThreshold,
			TracerProvider:  tracerProvider.Provider(),
		},
	)
	pool := tenant.NewPool(
		tenant.PoolConfig{BaseURL: cfg.Database.URL, ConnectTimeout: cfg.Database.ConnectTimeout},
		dial,
		tenant.WithLogger(log),
		tenant.WithMetrics(tenant.NewMetrics(registry)),
	)

	controlID := tenant.ControlDatabaseID(cfg.Database.ControlDBName, cfg.Database.URL)
	if _, err := pool.Acquire(ctx, controlID); err != nil {
		log.Fatal("Failed to connect to control database", zap.String("database_id", controlID), zap.Error(err))
	}
	log.Info("Control database connected", zap.String("database_id", controlID))

	// Tenant registry, cached in Redis when enabled
	control := persistence.NewPoolDB(pool, controlID)
	var redisClient redis.UniversalClient
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("Redis unavailable, tenant lookups will hit the control database", zap.Error(err))
		}
		defer func() {
			_ = client.Close()
		}()
		redisClient = client
	}
	tenantRepo := cache.NewTenantCache(persistence.NewGormTenantRepository(control), redisClient, cfg.Redis.TenantCacheTTL, log)
	resolver := tenant.NewResolver(tenantRepo, controlID, log)

	// Tenant-scoped repositories resolve their database per operation
	tenantDB := persistence.TenantDB{}
	invoiceRepo := persistence.NewGormInvoiceRepository(tenantDB)
	contractRepo := persistence.NewGormContractRepository(tenantDB)
	serviceRepo := persistence.NewGormServiceRepository(tenantDB)
	meterRepo := persistence.NewGormMeterRepository(tenantDB, nil)

	meterService := appbilling.NewMeterService(meterRepo, serviceRepo, log)
	contractService := appbilling.NewContractService(contractRepo, serviceRepo, log)
	// Payment idempotency keys are shared through Redis when it is enabled
	var idempotency shared.IdempotencyStore
	if redisClient != nil {
		idempotency = cache.NewRedisIdempotencyStore(redisClient, "")
	} else {
		idempotency = cache.NewInMemoryIdempotencyStore()
	}
	defer func() {
		_ = idempotency.Close()
	}()
	invoiceService := appbilling.NewInvoiceService(invoiceRepo, contractRepo, serviceRepo, tenantRepo, meterService, log,
		appbilling.InvoiceServiceConfig{
			NumberRetries:  cfg.Billing.NumberRetries,
			Idempotency:    idempotency,
			IdempotencyTTL: cfg.Billing.PaymentIdempotencyTTL,
		})

	schema := persistence.NewSchemaManager(control, tenantDB, cfg.Database.MigrationsDir, log)
	provisioningService := appidentity.NewProvisioningService(tenantRepo, schema, appidentity.OverrideScope(resolver, pool), resolver.ControlDatabaseID(), log)

	// Monthly invoice run
	monthlyJob := appbilling.NewMonthlyInvoiceJob(
		tenantRepo,
		contractRepo,
		invoiceService,
		appbilling.SystemTenantScope(resolver, pool),
		appbilling.NewJobMetrics(registry),
		log,
		appbilling.MonthlyInvoiceJobConfig{MaxConcurrentTenants: cfg.Scheduler.MaxConcurrentTenants},
	)
	invoiceScheduler := scheduler.NewInvoiceScheduler(monthlyJob, log, scheduler.InvoiceSchedulerConfig{
		Enabled:    cfg.Scheduler.Enabled,
		RunHour:    cfg.Scheduler.RunHour,
		JobTimeout: cfg.Scheduler.JobTimeout,
	})
	if err := invoiceScheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start invoice scheduler", zap.Error(err))
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := router.NewEngine(router.EngineConfig{
		Logger: log,
		Tracing: middleware.TracingConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			Enabled:        tracerProvider.IsEnabled(),
			TracerProvider: tracerProvider.Provider(),
		},
		Metrics:        middleware.NewHTTPMetrics(registry),
		Gatherer:       registry,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	})

	systemHandler := handler.NewSystemHandler(cfg.App.Name, version, map[string]handler.HealthChecker{
		"control_db": handler.HealthCheckFunc(func(ctx context.Context) error {
			db, err := pool.Acquire(ctx, controlID)
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}),
	})
	engine.GET("/health", systemHandler.Health)

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Use(
		middleware.Caller(middleware.CallerConfig{Resolver: resolver, Pool: pool}),
		middleware.SpanAttributes(),
	)
	r.Register(handler.NewTenantHandler(provisioningService).Routes())
	r.Register(handler.NewInvoiceHandler(invoiceService).Routes())
	for _, g := range handler.NewContractHandler(contractService).Routes() {
		r.Register(g)
	}
	for _, g := range handler.NewMeterHandler(meterService).Routes() {
		r.Register(g)
	}
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := invoiceScheduler.Stop(shutdownCtx); err != nil {
		log.Error("Invoice scheduler did not stop in time", zap.Error(err))
	}
	if err := pool.Close(); err != nil {
		log.Error("Error closing database pool", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// instrumentedDialer attaches query tracing to every handle the pool opens.
// The database id is the path of the dsn built by tenant.BuildDSN.
func instrumentedDialer(dial tenant.Dialer, cfg telemetry.DBTracingConfig) tenant.Dialer {
	if !cfg.Enabled {
		return dial
	}
	return func(ctx context.Context, dsn string) (*gorm.DB, error) {
		db, err := dial(ctx, dsn)
		if err != nil {
			return nil, err
		}
		databaseID := dsn
		if u, err := url.Parse(dsn); err == nil {
			databaseID = strings.TrimPrefix(u.Path, "/")
		}
		if err := telemetry.InstrumentDB(db, databaseID, cfg); err != nil {
			if sqlDB, dbErr := db.DB(); dbErr == nil {
				_ = sqlDB.Close()
			}
			return nil, err
		}
		return db, nil
	}
}
