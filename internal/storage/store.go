package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"price-move-alerts/internal/config"
)

// Storage drivers.
const (
	DriverBunt     = "bunt"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// Open returns the repository selected by storage.driver. The driver "none"
// yields a nil Repository and no error.
func Open(ctx context.Context, storageCfg config.StorageConfig, dbCfg config.DatabaseConfig) (Repository, error) {
	switch strings.ToLower(storageCfg.Driver) {
	case "", DriverBunt:
		return OpenBunt(storageCfg.Bunt.Path)
	case DriverPostgres:
		pool, err := NewPool(ctx, dbCfg)
		if err != nil {
			return nil, err
		}
		store := NewStore(pool)
		if dbCfg.AutoMigrate {
			if err := store.Migrate(ctx); err != nil {
				store.Close()
				return nil, err
			}
		}
		return store, nil
	case DriverNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", storageCfg.Driver)
	}
}
