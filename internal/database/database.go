// Package database implements the pipeline stores and the user directory
// on PostgreSQL.
package database

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/gyaneshwarpardhi/opsalert/internal/store"
	"github.com/gyaneshwarpardhi/opsalert/internal/user"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DB wraps a database connection and implements store.Store and
// user.Directory.
type DB struct {
	conn *sql.DB
}

// Open connects to dsn and checks the connection.
func Open(ctx context.Context, dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	slog.Info("connected to PostgreSQL")
	return &DB{conn: conn}, nil
}

// New wraps an existing connection.
func New(conn *sql.DB) *DB { return &DB{conn: conn} }

// Close closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// Ping reports whether the database answers.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Migrate applies the embedded schema migrations to dsn.
func Migrate(dsn string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	v, dirty, _ := m.Version()
	slog.Info("database migrations applied", "version", v, "dirty", dirty)
	return nil
}

// limitArg turns a non-positive limit into NULL, which Postgres reads as
// no limit.
func limitArg(limit int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(limit), Valid: limit > 0}
}

// marshalMap stores empty maps as NULL.
func marshalMap(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalMap(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

var (
	_ store.Store    = (*DB)(nil)
	_ user.Directory = (*DB)(nil)
)
