package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	// dirPermissions is the permission mode for the session file directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for session files. Files hold
	// raw measurement data and operator comments, so owner-only.
	filePermissions = 0600

	// msPerSecond converts the configured busy timeout to milliseconds.
	msPerSecond = 1000

	// openTimeout bounds the connectivity check after opening a file.
	openTimeout = 5 * time.Second
)

// DB is the connection to one session file.
//
// A session file is created when a session starts and receives writes from a
// single goroutine until the session stops, after which it is closed and
// never written again. The embedded sql.DB exposes the query surface
// directly; callers add their own context to errors.
type DB struct {
	*sql.DB
	path string
}

// Config carries the settings for opening a session file. Path is chosen per
// session; the WAL and busy-timeout settings come from the storage section
// of the daemon configuration and are shared by every file.
type Config struct {
	// Path is the filesystem path of the session file. The parent
	// directory is created if it does not exist.
	Path string

	// WALMode enables write-ahead logging, which lets analysis tooling
	// read a file while the current session is still appending to it.
	WALMode bool

	// BusyTimeout is the maximum time in seconds to wait on a locked
	// file before an operation fails.
	BusyTimeout int
}

// Open creates or opens the session file at cfg.Path.
//
// The connection pool is pinned to a single connection: SQLite allows one
// writer, and the writer goroutine is the only producer for the life of the
// file, so there is nothing to recycle or grow. The sole connection is held
// until Close.
//
// Parameters:
//   - cfg: file path and SQLite settings
//
// Returns:
//   - *DB: open connection to the session file
//   - error: if the directory cannot be created or the file cannot be opened
func Open(cfg Config) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}

	// Pragmas ride on the DSN so they apply before any statement runs.
	// See: https://github.com/mattn/go-sqlite3#connection-string
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
	)
	if cfg.WALMode {
		dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening session file: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0) // held for the life of the session file
	sqlDB.SetConnMaxIdleTime(0)

	db := &DB{
		DB:   sqlDB,
		path: cfg.Path,
	}

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying session file: %w", err)
	}

	// The file exists after the ping; tighten its permissions. Ignore
	// failure on filesystems that do not support it.
	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // Advisory only

	return db, nil
}

// Close releases the connection to the session file. Safe to call with a
// nil embedded DB.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing session file: %w", err)
	}
	return nil
}

// Path returns the filesystem path of the session file.
func (db *DB) Path() string {
	return db.path
}
