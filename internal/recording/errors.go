package recording

import "errors"

// Domain errors for the recording package.
//
// Commands rejected by the state machine return one of the state errors
// below; the engine's state is unchanged and nothing is written. Control
// surfaces should map these to a conflict response rather than a server
// failure (see IsStateError).
var (
	// ErrSessionActive is returned when starting a session that is
	// already active.
	ErrSessionActive = errors.New("recording: session already active")

	// ErrSessionIdle is returned by commands that need an active session.
	ErrSessionIdle = errors.New("recording: session not active")

	// ErrAlreadyRecording is returned when starting a sensor that is
	// already recording.
	ErrAlreadyRecording = errors.New("recording: sensor already recording")

	// ErrNotRecording is returned when stopping a sensor that is not
	// recording. The stop is a no-op; no metadata is written.
	ErrNotRecording = errors.New("recording: sensor not recording")

	// ErrSensorFaulted is returned when starting a sensor in the error
	// state. Only an explicit board reconnect clears it.
	ErrSensorFaulted = errors.New("recording: sensor in error state")

	// ErrUnknownSensor is returned for sensor IDs not in the rack map.
	ErrUnknownSensor = errors.New("recording: unknown sensor")

	// ErrInvalidPhase is returned for a volume phase other than start or
	// stop.
	ErrInvalidPhase = errors.New("recording: invalid volume phase")

	// ErrInvalidValue is returned for negative volumes or weights.
	ErrInvalidValue = errors.New("recording: invalid value")

	// ErrNoBoardsConnected is returned when starting a session with no
	// connected board.
	ErrNoBoardsConnected = errors.New("recording: no boards connected")

	// ErrBoardUnavailable is returned when starting a sensor whose board
	// is not connected.
	ErrBoardUnavailable = errors.New("recording: board unavailable")

	// ErrSessionFault is returned when the session has a latched write
	// fault; recording commands are refused until a retry succeeds or the
	// session is stopped.
	ErrSessionFault = errors.New("recording: session write fault")

	// ErrSeriesMismatch is returned when a flush would leave a sensor's
	// value and timestamp series with different lengths.
	ErrSeriesMismatch = errors.New("recording: series length mismatch")

	// ErrStoreClosed is returned when writing to a closed store.
	ErrStoreClosed = errors.New("recording: store closed")

	// ErrEngineClosed is returned by commands after the engine shut down.
	ErrEngineClosed = errors.New("recording: engine closed")
)

// IsStateError reports whether err is a state-machine rejection: the
// command was refused as a no-op and the engine is healthy.
func IsStateError(err error) bool {
	for _, target := range []error{
		ErrSessionActive,
		ErrSessionIdle,
		ErrAlreadyRecording,
		ErrNotRecording,
		ErrSensorFaulted,
		ErrInvalidPhase,
		ErrInvalidValue,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
