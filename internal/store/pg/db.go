// Package pg implements the six store.* interfaces against Postgres using
// database/sql over the pgx stdlib driver, the same way the teacher's
// PGSessionStore does — plain SQL, jsonb columns, uuid.NewV7 primary keys.
package pg

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// OpenDB opens a pooled Postgres connection. The pool is sized for a
// cloud-pooler-friendly profile (§5): small pool, no idle timeout, tolerant
// of idle-terminated connections (the driver reconnects transparently).
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open pgx: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxIdleTime(0) // no idle timeout — poolers may kill idle conns; driver recovers
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}
