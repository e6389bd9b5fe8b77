package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // embedded SQLite driver (pure Go)
)

// DB wraps the database connection used by the key store.
type DB struct {
	conn   *sqlx.DB
	driver string
}

// DBConfig holds database configuration.
type DBConfig struct {
	// DSN selects the backend: a postgres:// URL uses the Postgres driver,
	// anything else is treated as a SQLite path (":memory:" included).
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultDBConfig returns the default database configuration: an embedded
// SQLite file next to the binary.
func DefaultDBConfig() DBConfig {
	return DBConfig{
		DSN:             "gateway.db",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}

func driverForDSN(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	return "sqlite"
}

// NewDB opens the database, configures the pool and applies the schema.
func NewDB(cfg DBConfig) (*DB, error) {
	driver := driverForDSN(cfg.DSN)

	conn, err := sqlx.Connect(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == "sqlite" {
		// SQLite serializes writes itself; a single connection avoids
		// SQLITE_BUSY under concurrent create/delete.
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		conn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	db := &DB{conn: conn, driver: driver}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return db, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS api_keys (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT NOT NULL,
	secret_key    TEXT NOT NULL UNIQUE,
	allowed_model TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_api_keys_secret_key ON api_keys (secret_key);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS api_keys (
	id            BIGSERIAL PRIMARY KEY,
	name          TEXT NOT NULL,
	secret_key    TEXT NOT NULL UNIQUE,
	allowed_model TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_api_keys_secret_key ON api_keys (secret_key);
`

func (db *DB) migrate() error {
	schema := sqliteSchema
	if db.driver == "postgres" {
		schema = postgresSchema
	}
	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks if the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}
