package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bookable/api/internal/handlers"
	"github.com/bookable/api/internal/payments"
	"github.com/bookable/api/internal/platform/auth"
	"github.com/bookable/api/internal/platform/config"
	pfirestore "github.com/bookable/api/internal/platform/firestore"
	"github.com/bookable/api/internal/platform/jobs"
	"github.com/bookable/api/internal/platform/observability"
	"github.com/bookable/api/internal/platform/secrets"
	firestoreRepo "github.com/bookable/api/internal/repositories/firestore"
	"github.com/bookable/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger(strings.TrimSpace(os.Getenv("API_LOG_LEVEL")))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithDefaultProject(strings.TrimSpace(os.Getenv("API_FIRESTORE_PROJECT_ID"))),
	)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
	)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repository registry", zap.Error(err))
	}

	authenticator, err := auth.NewAuthenticator([]byte(cfg.Auth.JWTSecret),
		auth.WithIssuer(cfg.Auth.Issuer),
	)
	if err != nil {
		logger.Fatal("failed to initialise authenticator", zap.Error(err))
	}

	if strings.TrimSpace(cfg.PSP.StripeAPIKey) == "" {
		logger.Fatal("stripe api key is required for checkout")
	}
	paymentsLogger := logger.Named("payments")
	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey: cfg.PSP.StripeAPIKey,
		Logger: func(_ context.Context, event string, fields map[string]any) {
			zFields := make([]zap.Field, 0, len(fields)+1)
			zFields = append(zFields, zap.String("event", event))
			for k, v := range fields {
				zFields = append(zFields, zap.Any(k, v))
			}
			paymentsLogger.Debug("stripe log", zFields...)
		},
		Clock: time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe payment provider", zap.Error(err))
	}
	paymentManager, err := payments.NewManager(map[string]payments.Provider{
		"stripe": stripeProvider,
	})
	if err != nil {
		logger.Fatal("failed to initialise payment manager", zap.Error(err))
	}

	eventLogger := observability.EventLogger()

	var publisher services.OrderEventPublisher = services.NoopOrderEventPublisher{}
	if topicID := strings.TrimSpace(cfg.Events.OrderTopic); topicID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		topic := pubsubClient.Topic(topicID)
		defer topic.Stop()
		publisher, err = jobs.NewPubSubOrderPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
	} else {
		logger.Info("order event topic not configured; events will be discarded")
	}

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Repository:  registry.Catalog(),
		Clock:       time.Now,
		Logger:      eventLogger,
		MaxPageSize: cfg.Catalog.MaxPageSize,
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	cartService, err := services.NewCartService(services.CartServiceDeps{
		Repository: registry.Carts(),
		Catalog:    registry.Catalog(),
		Clock:      time.Now,
		Logger:     eventLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise cart service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:    registry.Orders(),
		Carts:     registry.Carts(),
		Catalog:   registry.Catalog(),
		Uow:       registry,
		Publisher: publisher,
		Clock:     time.Now,
		Logger:    eventLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Orders:     registry.Orders(),
		Sessions:   registry.PaymentSessions(),
		Gateway:    paymentManager,
		Clock:      time.Now,
		Logger:     eventLogger,
		SuccessURL: callbackURL(cfg, "/success", cfg.PSP.SuccessRedirectURL),
		CancelURL:  callbackURL(cfg, "/cancel", cfg.PSP.CancelRedirectURL),
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout service", zap.Error(err))
	}

	reconciler, err := services.NewPaymentReconciler(services.PaymentReconcilerDeps{
		Orders:    registry.Orders(),
		Sessions:  registry.PaymentSessions(),
		Uow:       registry,
		Publisher: publisher,
		Clock:     time.Now,
		Logger:    eventLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise payment reconciler", zap.Error(err))
	}

	reviewService, err := services.NewReviewService(services.ReviewServiceDeps{
		Reviews:     registry.Reviews(),
		Catalog:     registry.Catalog(),
		Orders:      registry.Orders(),
		Uow:         registry,
		Clock:       time.Now,
		Logger:      eventLogger,
		MaxPageSize: cfg.Catalog.MaxPageSize,
	})
	if err != nil {
		logger.Fatal("failed to initialise review service", zap.Error(err))
	}

	systemService, err := services.NewSystemService(services.SystemServiceDeps{
		Health: registry.Health(),
		Logger: eventLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise system service", zap.Error(err))
	}

	catalogHandlers := handlers.NewCatalogHandlers(authenticator, catalogService)
	cartHandlers := handlers.NewCartHandlers(authenticator, cartService)
	orderHandlers := handlers.NewOrderHandlers(authenticator, orderService)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, checkoutService)
	reviewHandlers := handlers.NewReviewHandlers(authenticator, reviewService)
	callbackHandlers := handlers.NewPaymentCallbackHandlers(reconciler,
		handlers.WithCallbackRedirects(cfg.PSP.SuccessRedirectURL, cfg.PSP.FailRedirectURL, cfg.PSP.CancelRedirectURL),
		handlers.WithCallbackLogger(eventLogger),
	)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthSystemService(systemService),
		handlers.WithHealthBuildInfo(buildInfoFromEnv(startedAt)),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCatalogRoutes(catalogHandlers.PublicRoutes),
		handlers.WithReviewRoutes(reviewHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithPaymentRoutes(callbackHandlers.Routes),
		handlers.WithAdminRoutes(func(r chi.Router) {
			r.Route("/services", catalogHandlers.AdminRoutes)
			r.Route("/orders", orderHandlers.AdminRoutes)
		}),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("bookable api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	grace := cfg.Server.ShutdownGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// callbackURL points the PSP at our own reconciliation endpoint when a public
// base URL is configured, otherwise it falls back to the storefront redirect.
func callbackURL(cfg config.Config, suffix, fallback string) string {
	base := strings.TrimRight(strings.TrimSpace(cfg.Server.PublicBaseURL), "/")
	if base == "" {
		return fallback
	}
	return base + "/api/v1/payments/result" + suffix
}

func buildInfoFromEnv(started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("API_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(os.Getenv("API_ENVIRONMENT"))
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}
