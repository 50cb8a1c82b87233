package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/garrettladley/whoopweb/internal/client/whoop"
	"github.com/garrettladley/whoopweb/internal/config"
	"github.com/garrettladley/whoopweb/internal/migrations"
	"github.com/garrettladley/whoopweb/internal/migrations/postgres"
	"github.com/garrettladley/whoopweb/internal/oauth"
	xredis "github.com/garrettladley/whoopweb/internal/redis"
	"github.com/garrettladley/whoopweb/internal/server/handler"
	servermw "github.com/garrettladley/whoopweb/internal/server/middleware"
	"github.com/garrettladley/whoopweb/internal/service/auth"
	"github.com/garrettladley/whoopweb/internal/service/proxy"
	"github.com/garrettladley/whoopweb/internal/service/resource"
	"github.com/garrettladley/whoopweb/internal/service/token"
	"github.com/garrettladley/whoopweb/internal/service/webhook"
	"github.com/garrettladley/whoopweb/internal/storage"
	"github.com/garrettladley/whoopweb/internal/xhttp"
	"github.com/garrettladley/whoopweb/internal/xhttp/middleware"
	"github.com/garrettladley/whoopweb/internal/xslog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const (
	keyPort      = "port"
	keyStore     = "store"
	keyMigration = "migration"
	keyLimit     = "limit"
	keyBurst     = "burst"

	pruneInterval   = time.Hour
	shutdownTimeout = 30 * time.Second

	bucketAuth    = "auth"
	bucketWebhook = "webhook"
)

func main() {
	_ = godotenv.Load()

	logger := xslog.NewLoggerFromEnv(os.Stdout)
	slog.SetDefault(logger)

	ctx := context.Background()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", xslog.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Read()
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	redisClient, err := initRedis(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize redis client: %w", err)
	}

	backend, err := initBackend(ctx, cfg, redisClient, logger)
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return fmt.Errorf("failed to initialize session store: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.ErrorContext(ctx, "failed to close session store", xslog.Error(err))
		}
		// the redis backend owns the client; any other backend leaves it to us
		if redisClient != nil && cfg.Session.Store != config.StoreRedis {
			_ = redisClient.Close()
		}
	}()

	limiter := initRateLimiter(ctx, cfg, redisClient, logger)

	pruneCtx, stopPrune := context.WithCancel(ctx)
	defer stopPrune()
	if pruner, ok := backend.(storage.Pruner); ok {
		go pruneLoop(pruneCtx, pruner, logger)
	}

	// Services
	oauthConfig := oauth.NewConfig(cfg)
	httpClient := xhttp.NewHTTPClient(xhttp.WithTimeout(cfg.Whoop.Timeout))

	authService := auth.NewCoordinator(oauthConfig, backend, backend,
		auth.WithStateTTL(cfg.Whoop.StateTTL),
		auth.WithTimeout(cfg.Whoop.Timeout),
		auth.WithHTTPClient(httpClient),
	)
	tokenService := token.NewManager(oauthConfig, backend,
		token.WithMargin(cfg.Whoop.RefreshMargin),
		token.WithTimeout(cfg.Whoop.Timeout),
		token.WithHTTPClient(httpClient),
	)
	whoopClient := whoop.New(oauth.APIBaseURL(cfg), whoop.WithHTTPClient(httpClient))
	proxyService := proxy.NewProxy(tokenService, whoopClient, proxy.WithTimeout(cfg.Whoop.Timeout))
	resourceService := resource.NewService(proxyService)
	webhookService := webhook.NewProcessor()

	// Handlers
	authHandler := handler.NewAuth(authService, handler.CookieConfig{
		Name:        cfg.Session.Cookie,
		Secure:      cfg.Env.SecureCookies(),
		MaxAge:      cfg.Session.TTL,
		StateMaxAge: cfg.Whoop.StateTTL,
	})
	resourceHandler := handler.NewResource(resourceService)
	webhookHandler := handler.NewWebhook(webhookService)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", handler.HandleHome)
	mux.HandleFunc("GET "+handler.PathWelcome, handler.HandleWelcome)
	mux.HandleFunc("GET "+handler.PathLoginFailed, handler.HandleLoginFailed)
	mux.HandleFunc("GET "+handler.PathLogout, authHandler.HandleLogout)
	mux.HandleFunc("GET /resource/{"+handler.PathValueResource+"}", resourceHandler.HandleResource)
	mux.HandleFunc("GET /health", handler.HandleHealth(backend))

	// Unauthenticated entry points - protected by per-IP rate limiting
	authMux := http.NewServeMux()
	authMux.HandleFunc("GET "+handler.PathLogin, authHandler.HandleLogin)
	authMux.HandleFunc("GET "+handler.PathCallback, authHandler.HandleCallback)
	mux.Handle("/auth/", middleware.Chain(authMux, servermw.RateLimit(limiter, bucketAuth)))

	mux.Handle(handler.PathWebhook, middleware.Chain(
		http.HandlerFunc(webhookHandler.HandleWebhook),
		servermw.RateLimit(limiter, bucketWebhook),
	))

	wrapped := middleware.Chain(mux,
		middleware.RequestID(),
		middleware.SessionCookie(cfg.Session.Cookie),
		middleware.Logger(logger),
		middleware.Recovery,
		middleware.Logging,
		middleware.SecurityHeaders,
		middleware.Gzip(),
	)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           wrapped,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Whoop.Timeout*2 + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "starting server",
			xslog.Version(),
			slog.String(keyPort, cfg.Port),
			slog.String(keyStore, string(cfg.Session.Store)))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-done:
		logger.InfoContext(ctx, "shutdown signal received, initiating graceful shutdown")
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.InfoContext(ctx, "server stopped")
	return nil
}

// initRedis returns a nil client when REDIS_URL is unset and nothing requires it.
func initRedis(ctx context.Context, cfg config.Config, logger *slog.Logger) (*redis.Client, error) {
	if cfg.Redis.URL == "" && cfg.Session.Store != config.StoreRedis {
		return nil, nil
	}
	logger.InfoContext(ctx, "initializing Redis")
	return xredis.Connect(ctx, cfg.Redis)
}

func initBackend(ctx context.Context, cfg config.Config, redisClient *redis.Client, logger *slog.Logger) (storage.Backend, error) {
	switch cfg.Session.Store {
	case config.StoreMemory:
		logger.InfoContext(ctx, "initializing in-memory session store")
		return storage.NewMemoryBackend(cfg.Session.TTL), nil
	case config.StoreRedis:
		logger.InfoContext(ctx, "initializing Redis session store")
		return storage.NewRedisBackend(redisClient, cfg.Session.TTL), nil
	case config.StorePostgres:
		pool, err := initPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return storage.NewPostgresBackend(pool, cfg.Session.TTL), nil
	case config.StoreSQLite:
		logger.InfoContext(ctx, "initializing SQLite session store", slog.String("path", cfg.SQLite.Path))
		db, err := storage.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		applied, err := migrations.Apply(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		logMigrations(ctx, logger, applied)
		return storage.NewSQLiteBackend(db, cfg.Session.TTL), nil
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Session.Store)
	}
}

func initPostgres(ctx context.Context, cfg config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	logger.InfoContext(ctx, "initializing PostgreSQL session store")

	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	applied, err := postgres.Apply(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	logMigrations(ctx, logger, applied)

	return pool, nil
}

// initRateLimiter prefers the shared Redis window so limits hold across replicas.
func initRateLimiter(ctx context.Context, cfg config.Config, redisClient *redis.Client, logger *slog.Logger) storage.RateLimiter {
	attrs := []any{
		slog.Float64(keyLimit, cfg.RateLimit.Limit),
		slog.Int(keyBurst, cfg.RateLimit.Burst),
	}

	if redisClient != nil && cfg.RateLimit.Limit > 0 {
		window := time.Duration(float64(cfg.RateLimit.Burst) / cfg.RateLimit.Limit * float64(time.Second))
		logger.InfoContext(ctx, "initializing Redis rate limiter", append(attrs, xslog.Duration(window))...)
		return storage.NewRedisRateLimiter(redisClient, cfg.RateLimit.Burst, window)
	}

	logger.InfoContext(ctx, "initializing in-memory rate limiter", attrs...)
	return storage.NewMemoryRateLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Burst)
}

func pruneLoop(ctx context.Context, pruner storage.Pruner, logger *slog.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := pruner.Prune(ctx)
			if err != nil {
				logger.WarnContext(ctx, "failed to prune expired sessions", xslog.Error(err))
				continue
			}
			if n > 0 {
				logger.InfoContext(ctx, "pruned expired sessions", xslog.Count(int(n)))
			}
		}
	}
}

func logMigrations(ctx context.Context, logger *slog.Logger, applied []string) {
	for _, name := range applied {
		logger.InfoContext(ctx, "applied migration", slog.String(keyMigration, name))
	}
}
