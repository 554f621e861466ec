package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/actions"
	"github.com/angelmondragon/storefront-backend/internal/analytics"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/storage"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	err = migrate.MaybeRunDev(ctx, cfg, logg, dbClient)
	requireResource(ctx, logg, "dev migrations", err)

	pingers := map[string]controllers.Pinger{"db": dbClient}

	var redisClient *redis.Client
	if cfg.Redis.Configured() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		requireResource(ctx, logg, "redis", err)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(ctx, "error closing redis", err)
			}
		}()
		pingers["redis"] = redisClient
	} else {
		logg.Warn(ctx, "redis not configured, idempotency and rate limiting disabled")
	}

	store, closeStore, err := buildStorage(ctx, cfg, redisClient, logg)
	requireResource(ctx, logg, "cart storage", err)
	defer closeStore()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sink, closeSink, err := buildSink(ctx, cfg, logg, pingers)
	requireResource(ctx, logg, "analytics sink", err)
	defer closeSink()

	dispatcher, err := analytics.NewDispatcher(sink, analytics.Options{
		QueueSize: cfg.Analytics.QueueSize,
		Workers:   cfg.Analytics.Workers,
		Timeout:   cfg.Analytics.Timeout,
	}, logg, metrics.NewAnalyticsMetrics(registry))
	requireResource(ctx, logg, "analytics dispatcher", err)

	carts, err := cart.NewRegistry(store, cart.Options{
		Tracker:     dispatcher,
		Logger:      logg,
		Currency:    cfg.Checkout.Currency,
		IdleTTL:     cfg.Sessions.IdleTTL,
		MaxProfiles: cfg.Sessions.MaxProfiles,
	})
	requireResource(ctx, logg, "cart registry", err)

	staging, err := checkoutsvc.NewStaging(store, carts)
	requireResource(ctx, logg, "checkout staging", err)

	rule := checkoutsvc.ShippingRuleFromConfig(cfg.Checkout)
	checkoutService, err := checkoutsvc.NewService(staging, rule, cfg.Checkout.Currency)
	requireResource(ctx, logg, "checkout service", err)

	actionHandler, err := actions.NewHandler(staging, dispatcher, cfg.Checkout.CheckoutPath, cfg.Checkout.Currency)
	requireResource(ctx, logg, "action handler", err)

	sessions := actions.NewSessions(actions.SessionOptions{
		Guard:       actions.GuardConfigFromConfig(cfg.Actions),
		Logger:      logg,
		Metrics:     metrics.NewActionMetrics(registry),
		IdleTTL:     cfg.Sessions.IdleTTL,
		MaxProfiles: cfg.Sessions.MaxProfiles,
	})

	catalogService, err := catalog.NewService(catalog.NewRepository(dbClient.DB()))
	requireResource(ctx, logg, "catalog service", err)

	ordersService, err := orders.NewService(orders.NewRepository(dbClient.DB()), staging, orders.Options{
		Scope:           cfg.Orders.Scope,
		SubmitTimeout:   cfg.Orders.SubmitTimeout,
		Rule:            rule,
		Currency:        cfg.Checkout.Currency,
		OrderStatusPath: cfg.Checkout.OrderStatusPath,
		Tracker:         dispatcher,
		Logger:          logg,
		Tx:              dbClient,
	})
	requireResource(ctx, logg, "orders service", err)

	handler := routes.NewRouter(
		cfg,
		logg,
		pingers,
		redisClient,
		registry,
		metrics.NewHTTPMetrics(registry),
		catalogService,
		controllers.CartDeps{
			Carts:    carts,
			Sessions: sessions,
			Actions:  actionHandler,
			Products: catalogService,
			Currency: cfg.Checkout.Currency,
		},
		checkoutService,
		ordersService,
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"storage":  cfg.Storage.Kind(),
		"instance": instance.GetID(),
	})

	go carts.Run(runCtx, cfg.Sessions.SweepInterval)
	go sessions.Run(runCtx, cfg.Sessions.SweepInterval)

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(runCtx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(runCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		logg.Info(ctx, "shutting down api server")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "api server shutdown failed", err)
	}
	carts.Close()
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logg.Error(ctx, "analytics dispatcher drain failed", err)
	}
}

// buildStorage returns the persistent cart store selected by configuration.
func buildStorage(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logg *logger.Logger) (storage.Store, func(), error) {
	switch cfg.Storage.Kind() {
	case config.StorageBackendMemory:
		return storage.NewMemory(), func() {}, nil
	case config.StorageBackendRedis:
		if redisClient == nil {
			return nil, nil, errors.New("redis storage backend needs a redis connection")
		}
		st, err := storage.NewRedis(redisClient, cfg.Storage.ChangeChannel, logg)
		if err != nil {
			return nil, nil, err
		}
		if err := st.Start(ctx, redisClient); err != nil {
			return nil, nil, fmt.Errorf("subscribe storage changes: %w", err)
		}
		return st, func() {
			if err := st.Close(); err != nil {
				logg.Error(ctx, "error closing redis storage", err)
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
}

// buildSink returns the analytics sink selected by configuration.
func buildSink(ctx context.Context, cfg *config.Config, logg *logger.Logger, pingers map[string]controllers.Pinger) (analytics.Sink, func(), error) {
	switch cfg.Analytics.Sink {
	case "", "log":
		return analytics.NewLogSink(logg), func() {}, nil
	case "none":
		return analytics.Nop{}, func() {}, nil
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return nil, nil, err
		}
		sink, err := analytics.NewPubSubSink(client.AnalyticsPublisher())
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		pingers["pubsub"] = client
		return sink, func() {
			if err := client.Close(); err != nil {
				logg.Error(ctx, "error closing pubsub client", err)
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unsupported analytics sink %q", cfg.Analytics.Sink)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
