package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/juju/errors"

	"github.com/baharkarakas/pixelmart/internal/api/validate"
	"github.com/baharkarakas/pixelmart/internal/models"
)

type APIError struct {
	Error   string      `json:"error"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, code, msg string, details interface{}) {
	WriteJSON(w, status, APIError{
		Error:   msg,
		Code:    code,
		Details: details,
	})
}

// Status maps an error kind to the HTTP status and machine-readable code.
func Status(err error) (int, string) {
	switch {
	case errors.Is(err, errors.BadRequest), errors.Is(err, errors.NotSupported):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, errors.Unauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, errors.Forbidden):
		return http.StatusForbidden, "not_allowed"
	case errors.Is(err, errors.NotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errors.AlreadyExists):
		return http.StatusConflict, "conflict"
	case errors.Is(err, models.ErrTransferOutcomeUnknown):
		return http.StatusConflict, "needs_review"
	case errors.Is(err, errors.NotValid):
		return http.StatusConflict, "not_valid"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// WriteErr renders err using its kind. Internal errors are logged and their
// message is not exposed.
func WriteErr(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var verrs validate.Errs
	if errors.As(err, &verrs) {
		WriteError(w, http.StatusBadRequest, "invalid_request", "validation failed", verrs)
		return
	}
	status, code := Status(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", errors.Details(err))
		msg = "internal error"
	}
	WriteError(w, status, code, msg, nil)
}

// DecodeJSON reads a JSON body into v, rejecting unknown fields.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.BadRequestf("invalid JSON body: %v", err)
	}
	return nil
}
