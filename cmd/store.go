package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/adsync/internal/resilience"
	"github.com/sells-group/adsync/internal/store"
)

// openStore builds the configured store backend. Caller owns Close.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store: no database_url configured (set store.database_url or ADSYNC_STORE_DATABASE_URL)")
		}
		pool, err := pgxpool.New(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "store: create connection pool")
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, eris.Wrap(err, "store: ping database")
		}
		opts := []store.Option{
			store.WithChunkSize(cfg.Store.ChunkSize),
			store.WithWriteRate(cfg.Store.WriteRatePerSec),
		}
		if cfg.Store.WriteRetries > 1 {
			retry := resilience.DefaultRetryConfig()
			retry.MaxAttempts = cfg.Store.WriteRetries
			retry.OnRetry = resilience.RetryLogger("store", "upsert facts")
			opts = append(opts, store.WithWriteRetry(retry))
		}
		return store.NewPostgres(pool, opts...), nil

	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath, cfg.Store.ChunkSize)

	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Store.Driver)
	}
}

// requireAccount resolves the account ID from flag or config.
func requireAccount(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if cfg.Ingest.AccountID != "" {
		return cfg.Ingest.AccountID, nil
	}
	return "", eris.New("account ID required (pass --account or set ingest.account_id)")
}
