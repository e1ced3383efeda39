// Package store persists the response cache, the rate-limit event log and the
// quota ledgers in SQLite or MySQL.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aschepis/backscratcher/llmcore/migrations"
	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Config describes the database connection.
type Config struct {
	Driver          string        `yaml:"driver"` // "sqlite3" or "mysql"
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements cache.Store, ratelimit.EventLog and quota.Store on one
// database handle.
type Store struct {
	db      *sql.DB
	dialect string
	logger  zerolog.Logger
}

// New wraps an open database. dialect is migrations.DialectSQLite or
// migrations.DialectMySQL.
func New(db *sql.DB, dialect string, logger zerolog.Logger) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		logger:  logger.With().Str("component", "store").Logger(),
	}
}

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	var (
		db  *sql.DB
		err error
	)
	switch cfg.Driver {
	case migrations.DialectSQLite, "":
		db, err = sql.Open("sqlite3", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		// SQLite allows one writer; a single connection also serializes
		// quota reservations across goroutines.
		db.SetMaxOpenConns(1)
		cfg.Driver = migrations.DialectSQLite
	case migrations.DialectMySQL:
		db, err = openMySQL(cfg)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close() //nolint:errcheck // Cleanup on error
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}
	return New(db, cfg.Driver, logger), nil
}

func openMySQL(cfg Config) (*sql.DB, error) {
	mcfg, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	// Migrations contain several statements per file.
	mcfg.MultiStatements = true
	mcfg.ParseTime = true

	db, err := sql.Open("mysql", mcfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(20)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(10)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// Migrate applies pending schema migrations.
func (s *Store) Migrate() error {
	return migrations.RunMigrations(s.db, s.dialect, s.logger)
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect in use.
func (s *Store) Dialect() string {
	return s.dialect
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) isMySQL() bool {
	return s.dialect == migrations.DialectMySQL
}
