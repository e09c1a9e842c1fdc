package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nikolayk812/checkoutflow/internal/checkout"
	"github.com/nikolayk812/checkoutflow/internal/config"
	"github.com/nikolayk812/checkoutflow/internal/consent"
	"github.com/nikolayk812/checkoutflow/internal/events"
	"github.com/nikolayk812/checkoutflow/internal/graphql"
	"github.com/nikolayk812/checkoutflow/internal/httpapi"
	"github.com/nikolayk812/checkoutflow/internal/identity"
	"github.com/nikolayk812/checkoutflow/internal/metrics"
	"github.com/nikolayk812/checkoutflow/internal/payment"
	"github.com/nikolayk812/checkoutflow/internal/port"
	"github.com/nikolayk812/checkoutflow/internal/repository"
	"github.com/nikolayk812/checkoutflow/internal/tax"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

const evictInterval = time.Minute

func serveCmd() *cobra.Command {
	var configPath, envFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, envFile)
			if err != nil {
				return fmt.Errorf("config.Load: %w", err)
			}

			if err := setupLogger(cfg.Log); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file, ignored when missing")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	gql, err := graphql.NewClient(cfg.GraphQL.Endpoint, cfg.GraphQL.Timeout)
	if err != nil {
		return fmt.Errorf("graphql.NewClient: %w", err)
	}

	trigger, err := tax.NewTrigger(gql)
	if err != nil {
		return fmt.Errorf("tax.NewTrigger: %w", err)
	}

	cache, closeCache, err := consentCache(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeCache()

	publisher, closePublisher, err := eventPublisher(cfg.NATS)
	if err != nil {
		return err
	}
	defer closePublisher()

	repo, closeRepo, err := sessionRepository(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeRepo()

	m := metrics.New()

	manager, err := checkout.NewManager(checkout.Deps{
		Commerce: gql,
		Consents: gql,
		Cache:    cache,
		Intents:  payment.NewStripeIntents(cfg.Stripe.SecretKey),
		Tax:      trigger,
		Events:   publisher,
		Observer: m,
	}, repo)
	if err != nil {
		return fmt.Errorf("checkout.NewManager: %w", err)
	}

	identities, err := identity.NewParser(cfg.Auth.JWTSecret)
	if err != nil {
		return fmt.Errorf("identity.NewParser: %w", err)
	}

	api, err := httpapi.New(manager, gql, cache, identities, m, httpapi.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RateLimit:      rate.Limit(cfg.HTTP.RateLimit),
		RateBurst:      cfg.HTTP.RateBurst,
		ReturnURL:      cfg.Stripe.ReturnURL,
	})
	if err != nil {
		return fmt.Errorf("httpapi.New: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           http.TimeoutHandler(api.Handler(), cfg.HTTP.RequestTimeout, `{"error":"request timed out"}`),
		ReadHeaderTimeout: 2 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go evictLoop(ctx, manager, cfg.Sessions.IdleTTL)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "method", "serve", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server.ListenAndServe: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down", "method", "serve")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}

	return nil
}

func evictLoop(ctx context.Context, manager *checkout.Manager, idle time.Duration) {
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			manager.Evict(time.Now().Add(-idle))
		}
	}
}

func consentCache(ctx context.Context, cfg config.RedisConfig) (port.ConsentCache, func(), error) {
	if cfg.Addr == "" {
		return consent.NewMemoryCache(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("client.Ping: %w", err)
	}

	cache, err := consent.NewRedisCache(client, cfg.ConsentTTL)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("consent.NewRedisCache: %w", err)
	}

	return cache, func() { _ = client.Close() }, nil
}

func eventPublisher(cfg config.NATSConfig) (port.EventPublisher, func(), error) {
	if cfg.URL == "" {
		return events.Nop(), func() {}, nil
	}

	conn, err := nats.Connect(cfg.URL, nats.Name("checkoutd"))
	if err != nil {
		return nil, nil, fmt.Errorf("nats.Connect: %w", err)
	}

	publisher, err := events.NewNATSPublisher(conn, cfg.SubjectPrefix)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("events.NewNATSPublisher: %w", err)
	}

	return publisher, func() {
		if err := conn.Drain(); err != nil {
			slog.Warn("nats drain failed", "method", "eventPublisher", "error", err)
		}
	}, nil
}

// sessionRepository returns a nil repository when no database is configured;
// sessions then live in memory only.
func sessionRepository(ctx context.Context, cfg config.DatabaseConfig) (port.SessionRepository, func(), error) {
	if cfg.URL == "" {
		return nil, func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := repository.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("repository.Migrate: %w", err)
	}

	repo, err := repository.NewSession(pool)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("repository.NewSession: %w", err)
	}

	return repo, pool.Close, nil
}
