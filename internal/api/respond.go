package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/clinora/clinic-scheduling/internal/scheduling"
	redisclient "github.com/clinora/clinic-scheduling/internal/redis"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeDomainError maps the scheduling error taxonomy onto HTTP statuses.
// Conflicts keep their machine code so the UI can explain why a booking was
// rejected.
func writeDomainError(w http.ResponseWriter, err error) {
	var domainErr *scheduling.Error
	if errors.As(err, &domainErr) {
		switch domainErr.Kind {
		case scheduling.KindNotFound:
			writeError(w, http.StatusNotFound, "not_found", domainErr.Message)
		case scheduling.KindForbidden:
			writeError(w, http.StatusForbidden, "forbidden", domainErr.Message)
		case scheduling.KindValidation:
			writeError(w, http.StatusBadRequest, "validation_error", domainErr.Message)
		case scheduling.KindConflict:
			writeError(w, http.StatusBadRequest, domainErr.Code, domainErr.Message)
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", domainErr.Message)
		}
		return
	}

	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		writeError(w, http.StatusConflict, "calendar_locked", "the calendar is being modified, please retry shortly")
		return
	}

	log.Error().Err(err).Msg("unhandled error")
	writeError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
}
