package recording

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nerrad567/cliqr-core/internal/infrastructure/database"
)

// nanosPerSecond converts time.Time nanoseconds to epoch-second REALs.
const nanosPerSecond = 1e9

// StoreConfig carries the storage settings shared by every session file.
type StoreConfig struct {
	// OutputDir is the directory session files are created in.
	OutputDir string

	// WALMode enables write-ahead logging on session files.
	WALMode bool

	// BusyTimeout is the SQLite lock wait in seconds.
	BusyTimeout int

	// Location is the zone session filenames are stamped in, so files
	// sort alongside the lab notebook. Nil falls back to the process
	// zone. Timestamps inside the file are epoch seconds regardless.
	Location *time.Location
}

// SQLiteOpener returns a StoreOpener that creates one SQLite session file
// per session under cfg.OutputDir, named after the session start time.
func SQLiteOpener(cfg StoreConfig) StoreOpener {
	return func(ctx context.Context, start time.Time) (Store, string, error) {
		stamp := start
		if cfg.Location != nil {
			stamp = start.In(cfg.Location)
		}
		path := filepath.Join(cfg.OutputDir, SessionFilename(stamp))
		store, err := OpenStore(ctx, path, cfg)
		if err != nil {
			return nil, "", err
		}
		return store, path, nil
	}
}

// SQLiteStore persists a session to a single SQLite file.
//
// All methods are called from the writer goroutine in strict order, so the
// store carries no locking. Sample sequence numbers advance only after a
// successful commit, which keeps the on-disk series dense when a failed
// batch is retried.
type SQLiteStore struct {
	db     *database.DB
	path   string
	seqs   map[int]int64
	closed bool
}

// OpenStore opens (and migrates) the session file at path.
func OpenStore(ctx context.Context, path string, cfg StoreConfig) (*SQLiteStore, error) {
	db, err := database.Open(database.Config{
		Path:        path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening session file: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("preparing session schema: %w", err)
	}

	return &SQLiteStore{
		db:   db,
		path: path,
		seqs: make(map[int]int64),
	}, nil
}

// Path returns the session file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Begin writes the session row and the sensor layout in one transaction.
func (s *SQLiteStore) Begin(ctx context.Context, info SessionInfo, bindings []SensorBinding) error {
	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO session (id, site_id, started_at) VALUES (?, ?, ?)",
		info.ID, info.SiteID, epochSeconds(info.StartedAt),
	); err != nil {
		return fmt.Errorf("inserting session row: %w", err)
	}

	for _, b := range bindings {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO sensors (sensor_id, board_id, channel) VALUES (?, ?, ?)",
			b.Sensor, b.BoardID, b.Channel,
		); err != nil {
			return fmt.Errorf("inserting sensor %d: %w", b.Sensor, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing session begin: %w", err)
	}
	return nil
}

// AppendSamples inserts one flushed batch inside a transaction. Every row
// carries both timestamp and value, so the two series for a sensor cannot
// drift apart; a row count other than one per sample reports
// ErrSeriesMismatch.
func (s *SQLiteStore) AppendSamples(ctx context.Context, boardID string, sensor int, batch []Sample) error {
	if s.closed {
		return ErrStoreClosed
	}
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO samples (sensor_id, seq, board_id, captured_at, value) VALUES (?, ?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("preparing sample insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // Statement is tied to the transaction

	seq := s.seqs[sensor]
	for _, smp := range batch {
		seq++
		res, err := stmt.ExecContext(ctx,
			sensor, seq, boardID, epochSeconds(smp.CapturedAt), smp.Value,
		)
		if err != nil {
			return fmt.Errorf("inserting sample %d for sensor %d: %w", seq, sensor, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking sample insert: %w", err)
		}
		if n != 1 {
			return fmt.Errorf("%w: sensor %d seq %d affected %d rows", ErrSeriesMismatch, sensor, seq, n)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing sample batch: %w", err)
	}

	// Advance only after commit so a retried batch reuses the same range.
	s.seqs[sensor] = seq
	return nil
}

// BeginCycle inserts the start edge of a cycle. Stop fields stay NULL
// until FinishCycle, so an interrupted cycle is visible in the file.
func (s *SQLiteStore) BeginCycle(ctx context.Context, sensor, cycle int, subject string, startTime time.Time) error {
	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO cycles (sensor_id, cycle, subject_id, start_time) VALUES (?, ?, ?, ?)",
		sensor, cycle, nullableString(subject), epochSeconds(startTime),
	)
	if err != nil {
		return fmt.Errorf("inserting cycle %d for sensor %d: %w", cycle, sensor, err)
	}
	return nil
}

// FinishCycle writes the stop edge of a previously begun cycle.
func (s *SQLiteStore) FinishCycle(ctx context.Context, sensor, cycle int, upd CycleUpdate) error {
	if s.closed {
		return ErrStoreClosed
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE cycles SET stop_time = ?, start_vol = ?, stop_vol = ?, weight = ? WHERE sensor_id = ? AND cycle = ?",
		epochSeconds(upd.StopTime), upd.StartVol, upd.StopVol, upd.Weight, sensor, cycle,
	)
	if err != nil {
		return fmt.Errorf("finishing cycle %d for sensor %d: %w", cycle, sensor, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking cycle update: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("finishing cycle %d for sensor %d: updated %d rows, want 1", cycle, sensor, n)
	}
	return nil
}

// AppendEvent inserts one event row. Zero-valued sensor and board fields
// are stored as NULL.
func (s *SQLiteStore) AppendEvent(ctx context.Context, ev Event) error {
	if s.closed {
		return ErrStoreClosed
	}

	var sensor sql.NullInt64
	if ev.Sensor != 0 {
		sensor = sql.NullInt64{Int64: int64(ev.Sensor), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO events (occurred_at, kind, sensor_id, board_id, detail) VALUES (?, ?, ?, ?, ?)",
		epochSeconds(ev.OccurredAt), ev.Kind, sensor, nullableString(ev.BoardID), ev.Detail,
	)
	if err != nil {
		return fmt.Errorf("inserting %s event: %w", ev.Kind, err)
	}
	return nil
}

// Finish stamps the session row with its stop time and comment.
func (s *SQLiteStore) Finish(ctx context.Context, stoppedAt time.Time, comment string) error {
	if s.closed {
		return ErrStoreClosed
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE session SET stopped_at = ?, comment = ?",
		epochSeconds(stoppedAt), comment,
	)
	if err != nil {
		return fmt.Errorf("finishing session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking session update: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("finishing session: updated %d rows, want 1", n)
	}
	return nil
}

// Close closes the underlying file. Safe to call more than once.
func (s *SQLiteStore) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// epochSeconds converts a time to the REAL epoch-second representation
// used throughout the session schema.
func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / nanosPerSecond
}

func nullableString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
