package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// DB wraps the Postgres connection pool
type DB struct {
	conn *sql.DB
}

// PoolConfig bounds the connection pool
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// New opens a connection pool and verifies it with a ping
func New(connStr string) (*DB, error) {
	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn}, nil
}

// ConfigurePool applies pool limits; zero values keep the driver defaults
func (db *DB) ConfigurePool(cfg PoolConfig) {
	if cfg.MaxOpenConns > 0 {
		db.conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.conn.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

// Close closes the pool
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Migrate applies every pending migration found at sourceURL, e.g. file://db/migrations
func (db *DB) Migrate(sourceURL string) error {
	driver, err := postgres.WithInstance(db.conn, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// mapPQError translates constraint violations into the shared error taxonomy
func mapPQError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code.Name() {
	case "unique_violation":
		return fmt.Errorf("%w: %s", models.ErrAlreadyExists, pqErr.Detail)
	case "foreign_key_violation":
		return fmt.Errorf("%w: %s", models.ErrNotFound, pqErr.Detail)
	}
	return err
}

func notFound(what string, id int) error {
	return fmt.Errorf("%s %w: %d", what, models.ErrNotFound, id)
}
