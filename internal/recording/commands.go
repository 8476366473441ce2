package recording

import (
	"context"

	"github.com/nerrad567/cliqr-core/internal/hardware"
)

// SessionStart opens a new session file and starts acquisition.
// Returns ErrSessionActive if a session is already running and
// ErrNoBoardsConnected when no board is connected.
func (e *Engine) SessionStart(ctx context.Context) error {
	return e.do(ctx, func() error { return e.sessionStart(ctx) })
}

// SessionStop runs the stop cascade: recording sensors are stopped with
// their current metadata, the comment is persisted, queued writes drain,
// acquisition is cancelled, and the file closes. The session always ends
// Idle; a write fault that survives the final drain is surfaced through
// the snapshot rather than failing the stop.
// Returns ErrSessionIdle when no session is active.
func (e *Engine) SessionStop(ctx context.Context) error {
	return e.do(ctx, func() error { return e.sessionStop(ctx) })
}

// SensorStart begins a new recording cycle for the sensor, incrementing
// its cycle counter and writing the start edge.
// Returns ErrSessionIdle, ErrSessionFault, ErrUnknownSensor,
// ErrAlreadyRecording, ErrSensorFaulted, or ErrBoardUnavailable when the
// transition is not allowed.
func (e *Engine) SensorStart(ctx context.Context, sensor int) error {
	return e.do(ctx, func() error { return e.sensorStart(sensor) })
}

// SensorStop ends the sensor's current cycle, flushing its partial buffer
// and writing the stop edge with the currently held volumes and weight.
// Returns ErrNotRecording if the sensor has no open cycle; nothing is
// written in that case.
func (e *Engine) SensorStop(ctx context.Context, sensor int) error {
	return e.do(ctx, func() error { return e.sensorStop(sensor) })
}

// SetVolume updates the sensor's held start or stop volume. The value is
// persisted with the cycle when the sensor next stops.
func (e *Engine) SetVolume(ctx context.Context, sensor int, phase VolumePhase, value float64) error {
	return e.do(ctx, func() error { return e.setVolume(sensor, phase, value) })
}

// SetWeight updates the sensor's held weight, persisted at the next cycle
// stop.
func (e *Engine) SetWeight(ctx context.Context, sensor int, value float64) error {
	return e.do(ctx, func() error { return e.setWeight(sensor, value) })
}

// SetSubject assigns the subject recorded with the sensor's next cycle.
func (e *Engine) SetSubject(ctx context.Context, sensor int, subject string) error {
	return e.do(ctx, func() error { return e.setSubject(sensor, subject) })
}

// SetComment replaces the session comment, written to the file once when
// the session stops. Returns ErrSessionIdle outside a session.
func (e *Engine) SetComment(ctx context.Context, text string) error {
	return e.do(ctx, func() error { return e.setComment(text) })
}

// RetryWrites resumes a parked writer after a write fault. On success the
// fault clears and acquisition restarts; on another failure the fault
// stays latched and ErrSessionFault is returned.
func (e *Engine) RetryWrites(ctx context.Context) error {
	return e.do(ctx, func() error { return e.retryWrites(ctx) })
}

// Snapshot returns the most recently published state. Always non-blocking
// and safe from any goroutine.
func (e *Engine) Snapshot() Snapshot {
	return *e.current.Load()
}

// RecentSamples returns up to n of the sensor's latest samples, oldest
// first, independent of recording state. n <= 0 returns the full window.
func (e *Engine) RecentSamples(sensor, n int) ([]Sample, error) {
	e.recentMu.Lock()
	defer e.recentMu.Unlock()

	ring, ok := e.recent[sensor]
	if !ok {
		return nil, ErrUnknownSensor
	}
	return ring.tail(n), nil
}

// RecentEvents returns up to n of the latest session events, oldest
// first. The window spans session boundaries; n <= 0 returns all of it.
func (e *Engine) RecentEvents(n int) []Event {
	e.eventsMu.Lock()
	defer e.eventsMu.Unlock()
	return e.eventLog.tail(n)
}

// Ingest delivers one board read to the coordination loop. It never
// blocks: a batch that arrives while the loop is saturated is dropped,
// which keeps acquisition goroutines from stalling behind a slow stop or
// drain.
func (e *Engine) Ingest(boardID string, readings []hardware.Reading) {
	if len(readings) == 0 {
		return
	}
	select {
	case e.ingest <- ingestBatch{boardID: boardID, readings: readings}:
	default:
	}
}

// BoardFailed tells the engine the board crossed its consecutive-failure
// threshold. Sensors on the board are flushed best-effort and parked in
// the error state. Never blocks.
func (e *Engine) BoardFailed(boardID string) {
	select {
	case e.hwEvents <- hwEvent{boardID: boardID, failed: true}:
	default:
		e.logInfo("board failure event dropped", "board_id", boardID)
	}
}

// BoardStatusChanged feeds board connectivity changes into the loop. A
// change to connected releases the board's sensors from the error state.
// Never blocks.
func (e *Engine) BoardStatusChanged(boardID string, status hardware.Status) {
	select {
	case e.hwEvents <- hwEvent{boardID: boardID, status: status}:
	default:
		e.logInfo("board status event dropped", "board_id", boardID, "status", status)
	}
}
