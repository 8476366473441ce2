package recording

import (
	"time"

	"github.com/nerrad567/cliqr-core/internal/hardware"
)

// Snapshot is an immutable view of engine state at one instant. The
// engine publishes a fresh snapshot after every state change; holders may
// keep and read it without coordination.
type Snapshot struct {
	Session     SessionStatus  `json:"session"`
	Sensors     []SensorStatus `json:"sensors"`
	Boards      []BoardStatus  `json:"boards"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// Sensor returns the status for one sensor id.
func (s Snapshot) Sensor(id int) (SensorStatus, bool) {
	for _, st := range s.Sensors {
		if st.ID == id {
			return st, true
		}
	}
	return SensorStatus{}, false
}

// SessionStatus describes the session lifecycle. ID, File, and StartedAt
// are set only while a session is active.
type SessionStatus struct {
	State      SessionState `json:"state"`
	ID         string       `json:"id,omitempty"`
	File       string       `json:"file,omitempty"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	Comment    string       `json:"comment,omitempty"`
	WriteFault string       `json:"write_fault,omitempty"`
}

// SensorStatus describes one sensor. Cycle metadata reflects the current
// (or most recent) cycle; Buffered is the number of samples awaiting the
// next flush.
type SensorStatus struct {
	ID             int         `json:"id"`
	BoardID        string      `json:"board_id"`
	Channel        int         `json:"channel"`
	State          SensorState `json:"state"`
	Cycle          int         `json:"cycle,omitempty"`
	CycleStartedAt *time.Time  `json:"cycle_started_at,omitempty"`
	Subject        string      `json:"subject,omitempty"`
	StartVol       float64     `json:"start_vol,omitempty"`
	StopVol        float64     `json:"stop_vol,omitempty"`
	Weight         float64     `json:"weight,omitempty"`
	Buffered       int         `json:"buffered"`
}

// Elapsed returns how long the current cycle has been recording, computed
// from the cycle start rather than accumulated, so it survives restarts of
// any downstream consumer.
func (s SensorStatus) Elapsed(now time.Time) time.Duration {
	if s.State != SensorRecording || s.CycleStartedAt == nil {
		return 0
	}
	return now.Sub(*s.CycleStartedAt)
}

// BoardStatus describes one acquisition board and the sensors wired to it.
type BoardStatus struct {
	ID      string          `json:"id"`
	Status  hardware.Status `json:"status"`
	Sensors []int           `json:"sensors"`
}
