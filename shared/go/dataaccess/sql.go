package dataaccess

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PoolConfig holds the connection settings applied to database/sql handles.
type PoolConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// OpenSQL opens a pooled handle and verifies it with a ping; the handle is
// closed again when the ping fails.
func OpenSQL(ctx context.Context, driver string, cfg PoolConfig) (*sql.DB, error) {
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	ConfigureSQL(db, cfg)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// ConfigureSQL applies pooling parameters to the provided database handle.
// Zero values leave the database/sql defaults in place.
func ConfigureSQL(db *sql.DB, cfg PoolConfig) {
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}
