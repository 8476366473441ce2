package recording

import "time"

// SessionState is the global recording lifecycle state.
type SessionState string

// Session states.
const (
	// SessionIdle means no session file is open and no acquisition runs.
	SessionIdle SessionState = "idle"

	// SessionActive means a session file is open and sensors may record.
	SessionActive SessionState = "active"
)

// SensorState is the per-sensor lifecycle state.
type SensorState string

// Sensor states.
const (
	// SensorIdle means the sensor is available but not recording.
	SensorIdle SensorState = "idle"

	// SensorRecording means samples route to the sensor's buffer and an
	// open cycle accumulates metadata.
	SensorRecording SensorState = "recording"

	// SensorError means the owning board exceeded its failure allowance.
	// The sensor stays here until the board is explicitly reconnected.
	SensorError SensorState = "error"
)

// VolumePhase selects which cycle volume a SetVolume command updates.
type VolumePhase string

// Volume phases.
const (
	// PhaseStart is the volume measured when a cycle begins.
	PhaseStart VolumePhase = "start"

	// PhaseStop is the volume measured when a cycle ends.
	PhaseStop VolumePhase = "stop"
)

// Sample is one timestamped capacitance reading.
type Sample struct {
	CapturedAt time.Time
	Value      uint16
}

// SessionInfo identifies one recording session.
type SessionInfo struct {
	ID        string
	SiteID    string
	StartedAt time.Time
}

// SensorBinding records which board and electrode channel a sensor was
// wired to when the session started, making the file self-describing.
type SensorBinding struct {
	Sensor  int
	BoardID string
	Channel int
}

// CycleUpdate carries the scalar fields persisted at a cycle's stop edge.
type CycleUpdate struct {
	StopTime time.Time
	StartVol float64
	StopVol  float64
	Weight   float64
}
