// Command ridgelist runs the ridgelist API server: the public
// directory, the owner dashboard endpoints and the Stripe billing
// integration.
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

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ridgelist/ridgelist/pkg/api"
	"github.com/ridgelist/ridgelist/pkg/billing"
	prommetrics "github.com/ridgelist/ridgelist/pkg/billing/metrics/prometheus"
	billingstripe "github.com/ridgelist/ridgelist/pkg/billing/stripe"
	"github.com/ridgelist/ridgelist/pkg/directory"
	"github.com/ridgelist/ridgelist/pkg/subscription"
	zerologadapter "github.com/ridgelist/ridgelist/pkg/subscription/logger/zerolog"
	"github.com/ridgelist/ridgelist/storage/memory"
	"github.com/ridgelist/ridgelist/storage/postgres"
	"github.com/ridgelist/ridgelist/storage/rediscache"
)

const shutdownTimeout = 10 * time.Second

// store is the full persistence surface the server needs. Both the
// postgres and the in-memory backend satisfy it.
type store interface {
	subscription.Store
	directory.ListingStore
	directory.LeadStore
}

func main() {
	// .env is a dev convenience; in production everything comes from
	// real environment variables.
	_ = godotenv.Load()

	zl := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if level, err := zerolog.ParseLevel(envDefault("LOG_LEVEL", "info")); err == nil {
		zl = zl.Level(level)
	}
	logger := zerologadapter.NewLogger(zl)

	if err := run(logger, zl); err != nil {
		zl.Fatal().Err(err).Msg("server exited")
	}
}

func run(logger subscription.Logger, zl zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backing, cleanup, err := openStorage(ctx, zl)
	if err != nil {
		return err
	}
	defer cleanup()

	// Entitlement reads happen on every gated request; put Redis in
	// front of them when available. Listing and lead reads stay on the
	// backing store.
	profiles := subscription.Store(backing)
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		cached, err := rediscache.New(backing, client, rediscache.DefaultConfig(), logger)
		if err != nil {
			return fmt.Errorf("redis cache: %w", err)
		}
		profiles = cached
		zl.Info().Str("addr", addr).Msg("profile cache enabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	provider, err := billingstripe.NewProvider(billingstripe.Config{
		Config: billing.Config{
			Profiles: profiles,
			Logger:   logger,
			Metrics:  prommetrics.NewMetrics(registry, "ridgelist"),
		},
		StripeAPIKey:        os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		SubscriptionPriceID: os.Getenv("STRIPE_PRICE_ID"),
		BoostPriceIDs:       boostPrices(),
	})
	if err != nil {
		return fmt.Errorf("stripe provider: %w", err)
	}

	var notifier directory.Notifier
	if apiKey := os.Getenv("RESEND_API_KEY"); apiKey != "" {
		notifier = directory.NewResendNotifier(apiKey, os.Getenv("NOTIFY_FROM"), nil)
	}
	dir := directory.NewService(backing, backing, profiles, notifier, logger)

	handler, err := api.NewHandler(api.Config{
		Profiles:            profiles,
		Billing:             provider,
		Directory:           dir,
		GetAccountID:        api.FromHeader(envDefault("ACCOUNT_ID_HEADER", "X-Account-ID")),
		BaseURL:             envDefault("BASE_URL", "http://localhost:3000"),
		QuotesWebhookSecret: os.Getenv("QUOTES_WEBHOOK_SECRET"),
		AdminSecret:         os.Getenv("ADMIN_SECRET"),
		Logger:              logger,
	})
	if err != nil {
		return fmt.Errorf("api handler: %w", err)
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Mount("/", handler.Routes())

	srv := &http.Server{
		Addr:              ":" + envDefault("PORT", "8080"),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zl.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStorage connects to postgres when DATABASE_URL is set and falls
// back to the in-memory store otherwise. The fallback keeps local dev
// and CI runnable without a database; it is not for production.
func openStorage(ctx context.Context, zl zerolog.Logger) (store, func(), error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		zl.Warn().Msg("DATABASE_URL not set, using in-memory storage")
		return memory.New(), func() {}, nil
	}

	config := postgres.DefaultConfig()
	config.ConnectionString = dsn
	pg, err := postgres.New(ctx, config)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, fmt.Errorf("postgres schema: %w", err)
	}
	return pg, pg.Close, nil
}

func boostPrices() map[string]string {
	prices := map[string]string{}
	if id := strings.TrimSpace(os.Getenv("STRIPE_BOOST_PRICE_WEEK")); id != "" {
		prices["week"] = id
	}
	if id := strings.TrimSpace(os.Getenv("STRIPE_BOOST_PRICE_MONTH")); id != "" {
		prices["month"] = id
	}
	return prices
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
