package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kacharaalert/internal/logger"
	"github.com/kacharaalert/internal/model"
	"github.com/kacharaalert/internal/repository"
)

const maxJSONBody = 8 << 20

func writeEnvelope(w http.ResponseWriter, status int, env model.Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		logger.Errorf("writeEnvelope encode: %v", err)
	}
}

// writeJSON answers with a success envelope around data.
func writeJSON(w http.ResponseWriter, status int, message string, data any) {
	env, err := model.NewEnvelope(message, data)
	if err != nil {
		logger.Errorf("writeJSON marshal: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "INTERNAL")
		return
	}
	writeEnvelope(w, status, env)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeEnvelope(w, status, model.FailureEnvelope(message, code))
}

// writeRepoError maps repository sentinels onto HTTP statuses.
func writeRepoError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, repository.ErrInvalid):
		writeError(w, http.StatusBadRequest, repository.Reason(err), "VALIDATION_ERROR")
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, repository.Reason(err), "NOT_FOUND")
	case errors.Is(err, repository.ErrForbidden):
		writeError(w, http.StatusForbidden, repository.Reason(err), "FORBIDDEN")
	case errors.Is(err, repository.ErrConflict):
		writeError(w, http.StatusConflict, repository.Reason(err), "CONFLICT")
	default:
		logger.Errorf("%s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "INTERNAL")
	}
}

// decodeJSON reads a JSON request body into dst and answers 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "VALIDATION_ERROR")
		return false
	}
	return true
}
