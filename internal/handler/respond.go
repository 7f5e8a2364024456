package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	appI18n "github.com/pavelanni/mathtutor/internal/i18n"
	"github.com/pavelanni/mathtutor/internal/model"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeMessage writes a localized error body.
func writeMessage(w http.ResponseWriter, r *http.Request, status int, msgID string, data map[string]any) {
	writeJSON(w, status, errorResponse{Error: appI18n.Td(r.Context(), msgID, data)})
}

// writeError maps domain errors to status codes. Unknown errors are logged
// and reported as 500 without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: appI18n.Td(r.Context(), "FieldRequired", map[string]any{"Field": ve.Field}),
			Field: ve.Field,
		})
	case errors.Is(err, model.ErrValidation):
		writeMessage(w, r, http.StatusBadRequest, "ErrBadRequest", nil)
	case errors.Is(err, model.ErrNotFound):
		writeMessage(w, r, http.StatusNotFound, "ErrNotFound", nil)
	case errors.Is(err, model.ErrForbidden):
		writeMessage(w, r, http.StatusForbidden, "ErrForbidden", nil)
	case errors.Is(err, model.ErrConflict):
		writeMessage(w, r, http.StatusConflict, "ErrConflict", nil)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeMessage(w, r, http.StatusInternalServerError, "ErrInternal", nil)
	}
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("decode request body: %v: %w", err, model.ErrValidation)
}
