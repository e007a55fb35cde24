// Package sqlstore persists checkpoints and task records through database/sql.
// SQLite and PostgreSQL are supported; the dialect only changes placeholders.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	// Registered drivers: "sqlite3" and "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect selects placeholder syntax.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// DriverName returns the database/sql driver registered for d.
func (d Dialect) DriverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite3"
}

// ParseDialect maps a config driver name to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	}
	return 0, fmt.Errorf("unsupported sql driver %q", name)
}

// rebind rewrites ? placeholders for the dialect.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS checkpoints (
		task_id        TEXT PRIMARY KEY,
		phase          TEXT NOT NULL,
		gathered_info  TEXT NOT NULL,
		execution_plan TEXT NOT NULL,
		progress       DOUBLE PRECISION NOT NULL DEFAULT 0,
		updated_at     BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id             TEXT PRIMARY KEY,
		session_id     TEXT NOT NULL,
		type           TEXT NOT NULL,
		status         TEXT NOT NULL,
		awaiting_input BOOLEAN NOT NULL DEFAULT FALSE,
		created_at     BIGINT NOT NULL,
		updated_at     BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS tasks_session_idx ON tasks (session_id, status, updated_at)`,
	`CREATE TABLE IF NOT EXISTS guests (
		token      TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
}

// Open connects to dsn and ensures the schema exists.
func Open(ctx context.Context, d Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.DriverName(), err)
	}
	if d == SQLite {
		// SQLite serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
