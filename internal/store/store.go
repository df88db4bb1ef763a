// Package store persists credential sessions and the interaction log in a
// SQLite database.  Schema management is handled by embedded goose
// migrations, applied once when the store is opened.
package store

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func init() {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		panic(err)
	}
	goose.SetLogger(goose.NopLogger())
}

// ErrSessionNotFound is returned by Credential when the session id is
// unknown.
var ErrSessionNotFound = errors.New("session not found")

// Store wraps the SQLite connection.  Safe for concurrent use; every
// operation is a single statement, atomic at the database level.
type Store struct {
	conn *sqlx.DB
}

// Open opens (creating if necessary) the database at path and brings the
// schema up to date.  Use ":memory:" for an ephemeral store.
func Open(ctx context.Context, path string) (*Store, error) {
	conn, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc sqlite serialises writes itself; a single connection avoids
	// SQLITE_BUSY on concurrent writers.
	conn.SetMaxOpenConns(1)
	if err := goose.UpContext(ctx, conn.DB, "migrations"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}
