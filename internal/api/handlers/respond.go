package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/markdave123-py/Simplifai/internal/core"
	"github.com/markdave123-py/Simplifai/internal/core/pipeline"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to status codes. Internal failures are logged
// and answered with a generic message.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Error()})
	case errors.Is(err, core.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, pipeline.ErrNotReady):
		writeJSON(w, http.StatusConflict, errorBody{Error: "result not ready"})
	case errors.Is(err, core.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody{Error: "already exists"})
	case errors.Is(err, core.ErrTransient):
		log.Warn("request failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "temporarily unavailable, try again"})
	default:
		log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}
