// Package sqlite persists the sync queue and the failed-mutation log in a
// single local SQLite file, so queued mutations survive a restart.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the data directory.
const FileName = "debtsync.db"

// DB wraps the database handle.
type DB struct {
	db *sql.DB
}

// Open creates (if needed) and opens the database in dir, then runs migrations.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dir, FileName)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)", path)

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One writer keeps AUTOINCREMENT order equal to submission order.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{db: sqlDB}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.db.Close()
}

// Ping checks the database is reachable.
func (db *DB) Ping() error {
	return db.db.Ping()
}

func (db *DB) migrate() error {
	for i, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		// Mutations waiting for the network, in submission order.
		`CREATE TABLE IF NOT EXISTS sync_queue (
			seq           INTEGER PRIMARY KEY AUTOINCREMENT,
			local_id      TEXT NOT NULL UNIQUE,
			customer_id   TEXT NOT NULL,
			mutation_type TEXT NOT NULL,
			payload       TEXT NOT NULL,
			enqueued_at   TEXT NOT NULL,
			attempt       INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_customer ON sync_queue(customer_id)`,

		// Queued mutations the server rejected on replay.
		`CREATE TABLE IF NOT EXISTS failed_mutations (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			local_id      TEXT NOT NULL UNIQUE,
			customer_id   TEXT NOT NULL,
			mutation_type TEXT NOT NULL,
			payload       TEXT NOT NULL,
			reason        TEXT NOT NULL,
			failed_at     TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_failed_mutations_at ON failed_mutations(failed_at)`,

		// Sync bookkeeping such as the last completed drain.
		`CREATE TABLE IF NOT EXISTS sync_state (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
