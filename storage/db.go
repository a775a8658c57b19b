package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB stores the history of typing jobs
type DB struct {
	conn *sql.DB
}

// Open opens typetool.db in dir, creating the file and schema on first use
func Open(dir string) (*DB, error) {
	conn, err := sql.Open("sqlite", filepath.Join(dir, "typetool.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// job goroutines and the dashboard write concurrently
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set %q: %w", pragma, err)
		}
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the database schema
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,

		-- Outcome
		state TEXT NOT NULL,
		character_count INTEGER NOT NULL,
		units_sent INTEGER NOT NULL,

		-- Settings snapshot
		delay_ms INTEGER NOT NULL,
		enter_sent BOOLEAN NOT NULL,

		duration_ms INTEGER NOT NULL,
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_timestamp ON jobs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);
	`

	_, err := db.conn.Exec(schema)
	return err
}
