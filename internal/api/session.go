package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/nerrad567/cliqr-core/internal/recording"
)

// CommentRequest is the JSON body for setting the session comment.
type CommentRequest struct {
	Comment string `json:"comment"`
}

// SessionEventsResponse carries the tail of the session event log.
type SessionEventsResponse struct {
	Events []recording.Event `json:"events"`
}

// handleStatus returns the current status snapshot: session lifecycle,
// per-sensor states and cycle metadata, board connectivity.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// handleSessionStart opens a new session file and starts acquisition.
// Fails with 409 if a session is already active or no board is connected.
func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.SessionStart(r.Context()); err != nil {
		writeEngineError(w, err)
		return
	}

	snap := s.engine.Snapshot()
	s.logger.Info("session started via API", "session_id", snap.Session.ID, "file", snap.Session.File)
	writeJSON(w, http.StatusOK, snap)
}

// handleSessionStop stops every recording sensor, drains buffered data to
// the session file, and closes it. Buffered data that cannot be written is
// retained; the returned snapshot carries the write fault if one latched.
func (s *Server) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.SessionStop(r.Context()); err != nil {
		writeEngineError(w, err)
		return
	}

	s.logger.Info("session stopped via API")
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// handleSessionComment sets the free-text comment persisted when the
// session file is finalised. Requires an active session.
func (s *Server) handleSessionComment(w http.ResponseWriter, r *http.Request) {
	var req CommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.engine.SetComment(r.Context(), req.Comment); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// handleSessionRetry replays failed writes after a write fault. On
// success the fault clears and acquisition resumes; on failure the fault
// stays latched and buffered data is still retained.
func (s *Server) handleSessionRetry(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RetryWrites(r.Context()); err != nil {
		writeEngineError(w, err)
		return
	}

	s.logger.Info("write retry succeeded via API")
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// handleSessionEvents returns the tail of the session event log, oldest
// first. The in-memory window spans session boundaries; ?limit=N trims it
// to the newest N entries.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		limit = n
	}

	events := s.engine.RecentEvents(limit)
	if events == nil {
		events = []recording.Event{}
	}
	writeJSON(w, http.StatusOK, SessionEventsResponse{Events: events})
}
