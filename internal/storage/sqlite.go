// Package storage persists paired-device history in SQLite.
//
// The store holds display metadata only (name, pairing time, last seen) so
// 'meterlink devices list' works across host restarts. It never stores
// credentials: pairing tokens are single-use and live exclusively in the
// in-memory token store while the server runs.
package storage

import (
	"errors"
	"fmt"
	"log"
	"sync"

	// SQLite driver - imported for side effects (registers the driver).
	// Using modernc.org/sqlite which is a pure-Go implementation that
	// doesn't require CGO, making cross-compilation and testing easier.
	"database/sql"

	_ "modernc.org/sqlite"
)

// ErrDeviceNotFound is returned when a device lookup fails.
var ErrDeviceNotFound = errors.New("device not found")

// SQLiteStore implements device persistence using SQLite.
// It creates the database and tables on first use and supports
// concurrent access through internal locking.
type SQLiteStore struct {
	db *sql.DB      // Database connection handle.
	mu sync.RWMutex // Guards all database operations for thread safety.
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
// It initializes the schema if the tables don't exist.
// Use ":memory:" for an in-memory database (useful for testing).
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	log.Printf("storage: opening database at %s", path)

	// Foreign keys for referential integrity; busy_timeout handles
	// concurrent access from the CLI and the running host (e.g., during
	// device revocation).
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	log.Printf("storage: database ready (schema version %d)", currentSchemaVersion)
	return store, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	log.Printf("storage: closing database")
	return s.db.Close()
}
