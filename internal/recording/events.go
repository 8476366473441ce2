package recording

import "time"

// Event kinds recorded in the session file and mirrored to subscribers.
const (
	EventSessionStarted = "session_started"
	EventSessionStopped = "session_stopped"
	EventCycleStarted   = "cycle_started"
	EventCycleStopped   = "cycle_stopped"
	EventSensorFault    = "sensor_fault"
	EventBoardFault     = "board_fault"
	EventBoardRecovered = "board_recovered"
	EventWriteFault     = "write_fault"
	EventWriteRecovered = "write_recovered"
	EventCommentSet     = "comment_set"
)

// Event is one lifecycle occurrence within a session. Sensor and BoardID
// are zero-valued for events that concern the whole session.
type Event struct {
	OccurredAt time.Time `json:"occurred_at"`
	Kind       string    `json:"kind"`
	Sensor     int       `json:"sensor,omitempty"`
	BoardID    string    `json:"board_id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}
