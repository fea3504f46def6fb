package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is stored in PRAGMA user_version.
//
//	0: schema.sql without the ticks seq index
//	1: idx_ticks_session_seq
const schemaVersion = 1

// MemoryPath opens a database that lives only as long as its Store.
// Each Open(MemoryPath) gets its own database; nothing is shared between
// stores, so scenarios can run side by side.
const MemoryPath = ":memory:"

// Store is the session log of one or more Runners. A Runner is the only
// writer for its session; readers (trace, the harness) never overlap a
// write on the same connection.
type Store struct {
	db *sql.DB
}

// Open opens the session log at path, creating the file and schema as
// needed. Reopening an existing log is safe.
//
// File logs run in WAL mode so `cortex trace` can read while a run is
// still writing. MemoryPath logs keep a single connection for their whole
// life: an in-memory SQLite database disappears with the connection that
// created it.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}

	// Writes come from one Runner goroutine at a time; one connection
	// serializes them without SQLITE_BUSY retries.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if path == MemoryPath {
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to session log %s: %w", path, err)
	}
	if err := configure(db, path == MemoryPath); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the connection. For MemoryPath stores this drops the log.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// configure sets the connection pragmas. In-memory logs have no journal
// file to put in WAL mode and no other process to wait on.
func configure(db *sql.DB, memory bool) error {
	pragmas := []string{"PRAGMA foreign_keys = ON"}
	if !memory {
		pragmas = append(pragmas,
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
			"PRAGMA busy_timeout = 5000",
		)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("configure session log: %q: %w", p, err)
		}
	}
	return nil
}

// migrate applies schema.sql, then every step above the stored
// user_version.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version < 1 {
		// Logs written before schema.sql declared the index.
		if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_ticks_session_seq ON ticks(session_id, seq)`); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}
	if version != schemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			return fmt.Errorf("write schema version: %w", err)
		}
	}
	return nil
}
