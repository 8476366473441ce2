package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/cliqr-core/internal/recording"
)

// VolumeRequest is the JSON body for recording a measured volume.
type VolumeRequest struct {
	Phase string  `json:"phase"`
	Value float64 `json:"value"`
}

// WeightRequest is the JSON body for recording a measured weight.
type WeightRequest struct {
	Value float64 `json:"value"`
}

// SubjectRequest is the JSON body for assigning a subject to a sensor.
type SubjectRequest struct {
	Subject string `json:"subject"`
}

// SensorSample is one live reading returned by the samples endpoint.
type SensorSample struct {
	CapturedAt time.Time `json:"captured_at"`
	Value      uint16    `json:"value"`
}

// SensorSamplesResponse is the samples endpoint payload, oldest sample
// first.
type SensorSamplesResponse struct {
	Sensor  int            `json:"sensor"`
	Samples []SensorSample `json:"samples"`
}

// sensorID extracts and validates the {id} path parameter.
func sensorID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "sensor id must be an integer")
		return 0, false
	}
	return id, true
}

// handleListSensors returns the status of every sensor in the rack.
func (s *Server) handleListSensors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot().Sensors)
}

// handleGetSensor returns the status of one sensor.
func (s *Server) handleGetSensor(w http.ResponseWriter, r *http.Request) {
	id, ok := sensorID(w, r)
	if !ok {
		return
	}

	status, ok := s.engine.Snapshot().Sensor(id)
	if !ok {
		writeNotFound(w, "unknown sensor")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// handleSensorSamples returns the sensor's most recent samples, oldest
// first. The optional n query parameter limits the count; the default is
// the full live window. Works for idle sensors too, since readings stream
// into the window whenever the board is polled.
func (s *Server) handleSensorSamples(w http.ResponseWriter, r *http.Request) {
	id, ok := sensorID(w, r)
	if !ok {
		return
	}

	n := 0
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, "n must be an integer")
			return
		}
		n = parsed
	}

	samples, err := s.engine.RecentSamples(id, n)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	resp := SensorSamplesResponse{Sensor: id, Samples: make([]SensorSample, 0, len(samples))}
	for _, sm := range samples {
		resp.Samples = append(resp.Samples, SensorSample{CapturedAt: sm.CapturedAt, Value: sm.Value})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSensorStart begins a new recording cycle for the sensor.
func (s *Server) handleSensorStart(w http.ResponseWriter, r *http.Request) {
	id, ok := sensorID(w, r)
	if !ok {
		return
	}

	if err := s.engine.SensorStart(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}

	s.logger.Info("sensor recording started via API", "sensor", id)
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// handleSensorStop ends the sensor's current cycle, persisting its held
// volumes and weight with the stop edge.
func (s *Server) handleSensorStop(w http.ResponseWriter, r *http.Request) {
	id, ok := sensorID(w, r)
	if !ok {
		return
	}

	if err := s.engine.SensorStop(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}

	s.logger.Info("sensor recording stopped via API", "sensor", id)
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// handleSensorVolume records a measured start or stop volume for the
// sensor. The value is held in memory and persisted when the current (or
// next) cycle stops.
func (s *Server) handleSensorVolume(w http.ResponseWriter, r *http.Request) {
	id, ok := sensorID(w, r)
	if !ok {
		return
	}

	var req VolumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.engine.SetVolume(r.Context(), id, recording.VolumePhase(req.Phase), req.Value); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// handleSensorWeight records a measured weight for the sensor.
func (s *Server) handleSensorWeight(w http.ResponseWriter, r *http.Request) {
	id, ok := sensorID(w, r)
	if !ok {
		return
	}

	var req WeightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.engine.SetWeight(r.Context(), id, req.Value); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// handleSensorSubject assigns the subject captured when the sensor's next
// cycle starts. An empty subject clears the assignment.
func (s *Server) handleSensorSubject(w http.ResponseWriter, r *http.Request) {
	id, ok := sensorID(w, r)
	if !ok {
		return
	}

	var req SubjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.engine.SetSubject(r.Context(), id, req.Subject); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}
