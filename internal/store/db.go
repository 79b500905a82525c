package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

// DB wraps sql.DB for Postgres (pgx) or SQLite.
type DB struct {
	Client *sql.DB
	Driver string
}

// NewDB opens a connection pool with sane defaults and pings it.
func NewDB(ctx context.Context, driver, dsn string) (*DB, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, errors.Errorf("store: unsupported driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "store: open")
	}
	if driver == DriverSQLite {
		// One writer at a time; also keeps :memory: databases on one connection.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "store: ping")
	}
	return &DB{Client: db, Driver: driver}, nil
}

// Healthy reports whether the database answers a ping.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id                    TEXT PRIMARY KEY,
		pin                   TEXT NOT NULL UNIQUE,
		name                  TEXT NOT NULL,
		role                  TEXT NOT NULL,
		branch                TEXT NOT NULL DEFAULT '',
		email                 TEXT NOT NULL DEFAULT '',
		email_verified        BOOLEAN NOT NULL DEFAULT FALSE,
		parent_email          TEXT NOT NULL DEFAULT '',
		parent_email_verified BOOLEAN NOT NULL DEFAULT FALSE,
		phone_number          TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS users_role_idx ON users (role)`,
	`CREATE TABLE IF NOT EXISTS attendance_records (
		id              TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL,
		day             TEXT NOT NULL,
		status          TEXT NOT NULL,
		clocked_at      TEXT,
		location_status TEXT,
		coordinates     TEXT,
		UNIQUE (user_id, day)
	)`,
	`CREATE INDEX IF NOT EXISTS attendance_records_day_idx ON attendance_records (day)`,
}

// Migrate creates the tables if they do not exist.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "store: migrate")
		}
	}
	return nil
}
