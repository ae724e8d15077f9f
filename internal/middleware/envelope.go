package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/kacharaalert/internal/logger"
	"github.com/kacharaalert/internal/model"
)

func writeFailure(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(model.FailureEnvelope(message, code)); err != nil {
		logger.Errorf("middleware encode: %v", err)
	}
}
