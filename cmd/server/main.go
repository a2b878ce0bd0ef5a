// Command server runs the fulfillment API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appfulfillment "github.com/fulfillment/backend/internal/application/fulfillment"
	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/fulfillment/backend/internal/domain/shared"
	"github.com/fulfillment/backend/internal/infrastructure/auth"
	"github.com/fulfillment/backend/internal/infrastructure/cache"
	"github.com/fulfillment/backend/internal/infrastructure/carrier"
	"github.com/fulfillment/backend/internal/infrastructure/config"
	"github.com/fulfillment/backend/internal/infrastructure/event"
	"github.com/fulfillment/backend/internal/infrastructure/logger"
	"github.com/fulfillment/backend/internal/infrastructure/notification"
	"github.com/fulfillment/backend/internal/infrastructure/persistence"
	"github.com/fulfillment/backend/internal/infrastructure/storage"
	"github.com/fulfillment/backend/internal/infrastructure/telemetry"
	"github.com/fulfillment/backend/internal/interfaces/http/handler"
	"github.com/fulfillment/backend/internal/interfaces/http/middleware"
	"github.com/fulfillment/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
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
		Service:    cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	tel, err := telemetry.Setup(ctx, telemetry.ConfigFrom(cfg.Telemetry), log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down telemetry", zap.Error(err))
		}
	}()
	log = tel.Logger.Tee(log, cfg.Log.Level)

	log.Info("Starting fulfillment backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	db := openDatabase(cfg, log)
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	coord, err := cache.NewFactory(cfg.Redis, cache.WithLogger(log)).Create(ctx)
	if err != nil {
		log.Fatal("Failed to initialize coordination", zap.Error(err))
	}
	defer func() {
		if err := coord.Close(); err != nil {
			log.Error("Error closing coordination", zap.Error(err))
		}
	}()

	// Notifications reach local streams through the hub. With Redis they
	// are fanned out to every instance first.
	hub := notification.NewHub(notification.WithHubLogger(log))
	defer func() { _ = hub.Close() }()
	var (
		publisher  fulfillment.NotificationPublisher  = hub
		subscriber fulfillment.NotificationSubscriber = hub
	)
	if coord.Distributed() {
		broadcaster := notification.NewRedisBroadcaster(coord.Client, hub, notification.WithBroadcasterLogger(log))
		if err := broadcaster.Start(ctx); err != nil {
			log.Fatal("Failed to start notification broadcaster", zap.Error(err))
		}
		defer func() { _ = broadcaster.Close() }()
		publisher, subscriber = broadcaster, broadcaster
	}

	documents, err := storage.NewLabelStore(&cfg.Storage, log)
	if err != nil {
		log.Fatal("Failed to initialize label storage", zap.Error(err))
	}
	registry := carrier.NewRegistryFromEnv(log)

	metrics, err := telemetry.NewFulfillmentMetrics(tel.Meter.Meter("fulfillment"))
	if err != nil {
		log.Fatal("Failed to create fulfillment metrics", zap.Error(err))
	}

	store := persistence.NewGormStore(db.DB)
	bus := event.NewInMemoryEventBus(log)

	recorder := appfulfillment.NewActivityRecorder(store.Activities(), log)
	transitions := appfulfillment.NewTransitionService(store, bus,
		appfulfillment.WithTransitionMetrics(metrics),
		appfulfillment.WithTransitionLogger(log),
	)
	consolidator := appfulfillment.NewConsolidator(store, coord.Locker,
		appfulfillment.WithBundleLockTTL(cfg.Fulfillment.BundleLockTTL),
		appfulfillment.WithConsolidatorActivity(recorder),
		appfulfillment.WithConsolidatorMetrics(metrics),
		appfulfillment.WithConsolidatorLogger(log),
	)
	labels := appfulfillment.NewLabelBuilder(store, registry, documents, bus, appfulfillment.LabelBuilderConfig{
		Shipper:        shipperFrom(cfg.Fulfillment.Warehouse),
		Currency:       cfg.Fulfillment.Currency,
		CarrierTimeout: cfg.Fulfillment.CarrierTimeout,
	},
		appfulfillment.WithLabelActivity(recorder),
		appfulfillment.WithLabelMetrics(metrics),
		appfulfillment.WithLabelLogger(log),
	)
	dispatcher := appfulfillment.NewDispatcher(store, publisher,
		appfulfillment.WithDispatcherActivity(recorder),
		appfulfillment.WithDispatcherMetrics(metrics),
		appfulfillment.WithDispatcherLogger(log),
	)

	bus.Subscribe(dispatcher)
	activityHandler := event.NewIdempotentHandler(
		appfulfillment.NewActivityEventHandler(recorder),
		coord.Idempotency,
		log,
		event.WithIdempotencyConfig(shared.IdempotencyConfig{TTL: cfg.Notification.IdempotencyTTL, Enabled: true}),
	)
	bus.Subscribe(activityHandler)
	log.Info("Event handlers registered",
		zap.Strings("dispatcher_events", dispatcher.EventTypes()),
		zap.Strings("activity_events", activityHandler.EventTypes()),
	)
	if err := bus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := bus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	pipeline := appfulfillment.NewPipeline(store, transitions, consolidator, labels, appfulfillment.PipelineConfig{
		AutoLabel:      cfg.Fulfillment.AutoLabel,
		DefaultCarrier: fulfillment.CarrierCode(cfg.Fulfillment.DefaultCarrier),
		DefaultService: fulfillment.ServiceLevel(cfg.Fulfillment.DefaultService),
	}, log)

	checks := map[string]handler.Pinger{"database": db}
	if coord.Distributed() {
		checks["redis"] = handler.PingerFunc(func(ctx context.Context) error {
			return coord.Client.Ping(ctx).Err()
		})
	}
	stream := handler.NewNotificationStreamHandler(subscriber,
		handler.WithStreamLogger(log),
		handler.WithStreamHeartbeat(cfg.Notification.SSEHeartbeat),
		handler.WithStreamMaxClients(cfg.Notification.SSEMaxClients),
	)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := middleware.SetupValidator(); err != nil {
		log.Fatal("Failed to set up request validation", zap.Error(err))
	}

	var tokens *auth.TokenService
	if cfg.Auth.Enabled {
		tokens = auth.NewTokenService(cfg.Auth)
	}
	engine := router.NewEngine(router.Handlers{
		Fulfillment:   handler.NewFulfillmentHandler(pipeline, appfulfillment.NewQueryService(store, documents)),
		Notifications: handler.NewNotificationHandler(appfulfillment.NewNotificationService(store.Notifications())),
		Stream:        stream,
		System:        handler.NewSystemHandler(version, checks),
	}, router.EngineConfig{
		Logger: log,
		HTTP:   cfg.HTTP,
		Auth: middleware.ActorAuthConfig{
			Enabled:   cfg.Auth.Enabled,
			Tokens:    tokens,
			SkipPaths: []string{router.HealthPath},
			Logger:    log,
		},
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     tel.Tracer.IsEnabled(),
		},
		Meter: meterIfEnabled(tel.Meter),
	})

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

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// open streams never finish on their own
	stream.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited gracefully")
}

func openDatabase(cfg *config.Config, log *zap.Logger) *persistence.Database {
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
		logger.WithFullSQL(cfg.Telemetry.DBLogFullSQL),
	)
	opts := []persistence.DatabaseOption{persistence.WithGormLogger(gormLog)}
	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		plugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfigFrom(cfg.Telemetry, cfg.Database), log)
		opts = append(opts, persistence.WithPlugins(plugin))
	}

	db, err := persistence.NewDatabase(&cfg.Database, opts...)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connected", zap.String("driver", db.Driver()))

	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to migrate schema", zap.Error(err))
		}
		log.Info("Schema migrated")
	}
	return db
}

func shipperFrom(w config.WarehouseAddress) fulfillment.Party {
	return fulfillment.Party{
		Name:  w.Name,
		Phone: w.Phone,
		Address: fulfillment.Address{
			Name:       w.Name,
			Phone:      w.Phone,
			Line1:      w.Line1,
			Line2:      w.Line2,
			City:       w.City,
			State:      w.State,
			PostalCode: w.PostalCode,
			Country:    w.Country,
		},
	}
}

func meterIfEnabled(mp *telemetry.MeterProvider) metric.Meter {
	if !mp.IsEnabled() {
		return nil
	}
	return mp.Meter("http")
}
