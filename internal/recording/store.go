package recording

import (
	"context"
	"time"
)

// Store persists one recording session. Implementations append rows to a
// single session file; the engine guarantees calls arrive in write order
// through the writer queue, so implementations need no internal ordering.
type Store interface {
	// Begin records the session row and the sensor layout. Called once,
	// synchronously, before any other method.
	Begin(ctx context.Context, info SessionInfo, bindings []SensorBinding) error

	// AppendSamples persists one flushed batch for a sensor. Sequence
	// numbers continue from the sensor's previous batch.
	AppendSamples(ctx context.Context, boardID string, sensor int, batch []Sample) error

	// BeginCycle records the start of a recording cycle for a sensor.
	BeginCycle(ctx context.Context, sensor, cycle int, subject string, startTime time.Time) error

	// FinishCycle completes a previously begun cycle with its stop
	// metadata.
	FinishCycle(ctx context.Context, sensor, cycle int, upd CycleUpdate) error

	// AppendEvent records a lifecycle event.
	AppendEvent(ctx context.Context, ev Event) error

	// Finish stamps the session row with its stop time and operator
	// comment. Called once at session end.
	Finish(ctx context.Context, stoppedAt time.Time, comment string) error

	// Close releases the underlying file. No calls may follow.
	Close() error
}

// StoreOpener creates the session store for a session starting at the
// given time, returning the store and the path of the file it writes.
type StoreOpener func(ctx context.Context, start time.Time) (Store, string, error)

// SessionFilename returns the canonical file name for a session starting
// at the given local time.
func SessionFilename(start time.Time) string {
	return "raw_data_" + start.Format("2006-01-02_15-04-05") + ".db"
}
