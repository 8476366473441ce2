package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/cliqr-core/internal/hardware"
)

// BoardReconnectResponse reports the outcome of an explicit reconnect.
type BoardReconnectResponse struct {
	BoardID string          `json:"board_id"`
	Status  hardware.Status `json:"status"`
}

// handleListBoards returns the status of every acquisition board.
func (s *Server) handleListBoards(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot().Boards)
}

// handleGetBoard returns the status of one board.
func (s *Server) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	for _, b := range s.engine.Snapshot().Boards {
		if b.ID == id {
			writeJSON(w, http.StatusOK, b)
			return
		}
	}
	writeNotFound(w, "unknown board")
}

// handleReconnectBoard reopens one board. This is the only path out of
// the board error state: reconnects are never automatic, so a technician
// reseats the cable first and then confirms the fix here.
func (s *Server) handleReconnectBoard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.hardware.Reconnect(r.Context(), id); err != nil {
		if errors.Is(err, hardware.ErrUnknownBoard) {
			writeNotFound(w, "unknown board")
			return
		}
		s.logger.Error("board reconnect failed", "board_id", id, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeHardware, err.Error())
		return
	}

	s.logger.Info("board reconnected via API", "board_id", id)
	writeJSON(w, http.StatusOK, BoardReconnectResponse{
		BoardID: id,
		Status:  s.hardware.Status(id),
	})
}
