// Package database opens and migrates the per-session SQLite files.
//
// Every recording session gets a fresh file: created at session start,
// schema applied from the embedded migrations, written for the life of
// the session, then never written again. The wrapper pins a single
// connection for that lifetime, which sidesteps SQLite's multi-writer
// locking entirely, and sets the file to 0600.
//
//	db, err := database.Open(database.Config{Path: path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// WAL mode keeps reads (the samples API, an analyst's sqlite3 shell)
// from blocking the write path mid-session.
//
// Migrations are forward-only and additive, so older session files
// stay readable by newer tooling: new columns must be nullable or
// carry defaults, and nothing is ever dropped or renamed. There are no
// down steps; a broken session file is deleted, not rolled back.
package database
