package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hongminglow/cdms-be/internal/analytics"
	"github.com/hongminglow/cdms-be/internal/auth"
	"github.com/hongminglow/cdms-be/internal/cache"
	"github.com/hongminglow/cdms-be/internal/config"
	"github.com/hongminglow/cdms-be/internal/llm"
	"github.com/hongminglow/cdms-be/internal/logger"
	"github.com/hongminglow/cdms-be/internal/server"
	"github.com/hongminglow/cdms-be/internal/storage"
	"github.com/hongminglow/cdms-be/internal/storage/memory"
	"github.com/hongminglow/cdms-be/internal/storage/postgres"
)

func main() {
	envLoaded := godotenv.Load() == nil

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		slog.Error("init logger", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(log)
	if !envLoaded {
		log.Info("no .env file found; relying on existing environment")
	}

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, users := openStores(ctx, cfg, log)
	defer store.Close()

	analyticsCache := cache.New()
	defer analyticsCache.Close()

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTAlgorithm, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		return err
	}

	var verifier auth.FederatedVerifier
	if cfg.FederatedConfigured() {
		certs := cache.New()
		defer certs.Close()
		fv, err := auth.NewFirebaseVerifier(auth.FirebaseVerifierConfig{
			ProjectID:  cfg.FirebaseProjectID,
			CertsURL:   cfg.FirebaseCertsURL,
			HTTPClient: &http.Client{Timeout: cfg.HTTPClientTimeout},
			Certs:      certs,
			Logger:     logger.WithComponent(log, "firebase"),
		})
		if err != nil {
			return err
		}
		verifier = fv
	} else {
		log.Warn("FIREBASE_PROJECT_ID not set; federated tokens cannot be verified")
	}
	if cfg.AllowUnverifiedFederated {
		log.Warn("unverified federated token introspection is enabled")
	}

	resolver := auth.NewDefaultResolver(auth.ResolverConfig{
		Users:           users,
		Tokens:          tokens,
		Verifier:        verifier,
		AllowUnverified: cfg.AllowUnverifiedFederated,
		Logger:          logger.WithComponent(log, "auth"),
	})

	var gateway *analytics.Gateway
	if cfg.AnalyticsConfigured() {
		gateway = analytics.NewGateway(
			analytics.NewSupabaseClient(cfg.SupabaseURL, cfg.SupabaseKey, cfg.HTTPClientTimeout),
			analyticsCache,
			analytics.Options{PageSize: cfg.AnalyticsPageSize, CacheTTL: cfg.AnalyticsCacheTTL},
			logger.WithComponent(log, "analytics"),
		)
	} else {
		log.Warn("Supabase credentials not configured; data endpoints will return 503")
	}

	var completer llm.Completer
	if cfg.AIConfigured() {
		client, err := llm.NewClient(llm.Config{
			APIKey:       cfg.LLMAPIKey,
			Model:        cfg.LLMModel,
			ResponsesURL: cfg.LLMResponsesURL,
			HTTPClient:   &http.Client{Timeout: 2 * cfg.HTTPClientTimeout},
		})
		if err != nil {
			return err
		}
		completer = client
	}

	srv, err := server.New(server.Deps{
		Config:   cfg,
		Logger:   log,
		Store:    store,
		Users:    users,
		Tokens:   tokens,
		Resolver: resolver,
		Verifier: verifier,
		Gateway:  gateway,
		LLM:      completer,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("CDMS backend listening", "addr", cfg.HTTPAddress())
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Error("graceful shutdown error", "error", err)
	}
	return nil
}

// openStores returns the resource store and the user store the resolver reads
// from. Without a reachable database everything lives in memory; with one,
// user lookups degrade to memory whenever Postgres becomes unreachable.
func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (storage.Store, storage.UserStore) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set; using in-memory storage")
		mem := memory.New()
		return mem, mem
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pg, err := postgres.Open(connectCtx, cfg.DatabaseURL, postgres.PoolOptions{
		MaxConns:        cfg.DBMaxConns,
		MaxConnIdleTime: cfg.DBMaxConnIdleTime,
	})
	if err != nil {
		log.Warn("database unreachable; using in-memory storage", "error", err)
		mem := memory.New()
		return mem, mem
	}
	return pg, storage.NewFallbackUserStore(pg, memory.New(), logger.WithComponent(log, "storage"))
}
