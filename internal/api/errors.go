package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/cliqr-core/internal/recording"
)

// Error is the JSON body every non-2xx response carries. Code is the
// machine-readable half for the bench UI to switch on; Message is for
// the human reading the UI's error toast.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes the bench UI distinguishes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeConflict    = "conflict"
	ErrCodeInternal    = "internal_error"
	ErrCodeValidation  = "validation_error"
	ErrCodeUnavailable = "unavailable"
	ErrCodeHardware    = "hardware_error"
)

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // nothing useful to do once the status line is out
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeEngineError maps a recording engine error onto an HTTP
// response.
//
// Unknown sensors are 404. Validation failures (bad phase, negative
// value) are 400. State-machine refusals and the latched write fault
// are 409: the command was rejected and the engine is unchanged. A
// closed engine is 503, since the process is shutting down.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, recording.ErrUnknownSensor):
		writeNotFound(w, err.Error())
	case errors.Is(err, recording.ErrInvalidPhase), errors.Is(err, recording.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, recording.ErrEngineClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	case recording.IsStateError(err),
		errors.Is(err, recording.ErrNoBoardsConnected),
		errors.Is(err, recording.ErrBoardUnavailable),
		errors.Is(err, recording.ErrSessionFault):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
