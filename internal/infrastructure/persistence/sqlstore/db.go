// Package sqlstore is the database/sql backend, used with PostgreSQL through pgx
// and with SQLite through go-sqlite3.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

type Config struct {
	Dialect         string        `yaml:"dialect" env:"DIALECT" validate:"omitempty,oneof=postgres sqlite"`
	DSN             string        `yaml:"dsn" env:"DSN"`
	PingTimeout     time.Duration `yaml:"ping_timeout" env:"PING_TIMEOUT"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

func (c Config) Validate() error {
	if c.DSN == "" {
		return errors.New("database dsn is required")
	}
	if c.PingTimeout <= 0 {
		return errors.New("database ping timeout must be positive")
	}
	if c.MaxOpenConns < 1 {
		return errors.New("database max open conns must be >= 1")
	}
	if c.MaxIdleConns < 0 || c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("database max idle conns must be between 0 and max open conns")
	}
	if c.ConnMaxLifetime < 0 {
		return errors.New("database conn max lifetime must be >= 0")
	}
	return nil
}

// Open connects and pings the database.
func Open(ctx context.Context, cfg Config) (*sql.DB, Dialect, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	dialect, err := DialectFor(cfg.Dialect)
	if err != nil {
		return nil, nil, err
	}

	db, err := sql.Open(dialect.Driver(), cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	return db, dialect, nil
}

// Migrate runs the statements in one transaction.
func Migrate(ctx context.Context, db *sql.DB, statements ...string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return tx.Commit()
}
