package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"fx-rate-alerts/internal/config"
)

// Open constructs a KV based on the configured driver.
func Open(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (KV, error) {
	drv := cfg.Driver
	if drv == "" {
		drv = "sqlite"
	}
	logger = logger.With().Str("component", "storage").Str("driver", drv).Logger()

	switch drv {
	case "memory":
		logger.Warn().Msg("using in-memory storage; state is lost on exit")
		return NewMemory(), nil

	case "sqlite":
		st, err := OpenSQLite(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		logger.Debug().Str("path", cfg.DSN).Msg("storage opened")
		return st, nil

	case "postgres":
		pool, err := NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		st := NewPostgres(pool)
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
		logger.Debug().Msg("storage opened")
		return st, nil

	case "redis":
		st, err := NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
		if err != nil {
			return nil, err
		}
		logger.Debug().Str("addr", cfg.Redis.Addr).Msg("storage opened")
		return st, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", drv)
	}
}
