package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteCapacitance mirrors one capacitance reading.
//
// This is the per-sample feed behind live dashboards. Points are
// buffered and shipped in batches; a point dropped here still exists
// in the session file.
//
// Parameters:
//   - sensorID: rack position the reading belongs to
//   - boardID: board that produced the frame
//   - value: the controller's filtered 10-bit count
//   - timestamp: when the frame was read, not when it was mirrored
func (c *Client) WriteCapacitance(sensorID int, boardID string, value uint16, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writes.WritePoint(write.NewPoint(
		"capacitance",
		map[string]string{
			"sensor_id": strconv.Itoa(sensorID),
			"board_id":  boardID,
		},
		map[string]any{"value": int64(value)},
		timestamp,
	))
}

// WriteBoardStatus records a board connectivity change, so rig-health
// dashboards can overlay board drops on the sample stream.
func (c *Client) WriteBoardStatus(boardID, status string) {
	if !c.IsConnected() {
		return
	}

	c.writes.WritePoint(write.NewPoint(
		"board_status",
		map[string]string{"board_id": boardID},
		map[string]any{
			"status":    status,
			"connected": status == "connected",
		},
		time.Now(),
	))
}

// WriteRecordingEvent mirrors a recording lifecycle event as a
// dashboard annotation. Grafana overlays these on the capacitance
// stream, so a step in a trace can be matched to the session or cycle
// boundary that caused it.
//
// Sensor and board tags are only attached when the event carries them;
// session-scope events have neither.
func (c *Client) WriteRecordingEvent(kind, detail string, sensorID int, boardID string, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{"kind": kind}
	if sensorID > 0 {
		tags["sensor_id"] = strconv.Itoa(sensorID)
	}
	if boardID != "" {
		tags["board_id"] = boardID
	}

	c.writes.WritePoint(write.NewPoint(
		"recording_event",
		tags,
		map[string]any{"detail": detail},
		timestamp,
	))
}
