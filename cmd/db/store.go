package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garrettladley/whoopweb/internal/config"
	xredis "github.com/garrettladley/whoopweb/internal/redis"
	"github.com/garrettladley/whoopweb/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

const flagStore = "store"

var errNoDatabaseURL = errors.New("DATABASE_URL is not set")

// readStore resolves the store kind from --store, falling back to SESSION_STORE.
func readStore(cmd *cobra.Command) (config.Store, error) {
	cfg, err := config.ReadStore()
	if err != nil {
		return config.Store{}, fmt.Errorf("failed to read config: %w", err)
	}
	if kind, _ := cmd.Flags().GetString(flagStore); kind != "" {
		cfg.Session.Store = config.StoreKind(kind)
	}
	return cfg, nil
}

func openPostgres(ctx context.Context, cfg config.Store) (*pgxpool.Pool, error) {
	if cfg.Database.URL == "" {
		return nil, errNoDatabaseURL
	}
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return pool, nil
}

func openSQLite(cfg config.Store) (*sql.DB, error) {
	db, err := storage.OpenSQLite(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// openBackend opens a persistent session store. The in-memory store has nothing to inspect.
func openBackend(ctx context.Context, cfg config.Store) (storage.Backend, error) {
	switch cfg.Session.Store {
	case config.StoreRedis:
		client, err := xredis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return storage.NewRedisBackend(client, cfg.Session.TTL), nil
	case config.StorePostgres:
		pool, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return storage.NewPostgresBackend(pool, cfg.Session.TTL), nil
	case config.StoreSQLite:
		db, err := openSQLite(cfg)
		if err != nil {
			return nil, err
		}
		return storage.NewSQLiteBackend(db, cfg.Session.TTL), nil
	default:
		return nil, fmt.Errorf("store %q is not persistent", cfg.Session.Store)
	}
}
