package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcdev12/quizarena/go/internal/contest"
	"github.com/mcdev12/quizarena/go/internal/enrollment"
	"github.com/rs/zerolog/log"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, contest.ErrNotAParticipant),
		errors.Is(err, contest.ErrUnauthorized),
		errors.Is(err, enrollment.ErrNotEnrolled):
		return http.StatusForbidden
	case errors.Is(err, contest.ErrSessionNotFound),
		errors.Is(err, enrollment.ErrQuizNotFound):
		return http.StatusNotFound
	case errors.Is(err, contest.ErrNoActiveTimer):
		return http.StatusConflict
	case errors.Is(err, contest.ErrSchedulerStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, enrollment.ErrInvalidJoinCode):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError writes err with its mapped status. Unexpected errors are
// logged and hidden from the client.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}
