package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/iudanet/fieldsync/internal/models"
	"github.com/iudanet/fieldsync/internal/server/reconcile"
	"github.com/iudanet/fieldsync/internal/server/storage"
	"github.com/iudanet/fieldsync/internal/validation"
	"github.com/iudanet/fieldsync/pkg/api"
)

// Error kinds returned in api.ErrorResponse.Error.
const (
	KindBadRequest      = "bad_request"
	KindValidation      = "validation"
	KindUnauthorized    = "unauthorized"
	KindForbidden       = "forbidden"
	KindNotFound        = "not_found"
	KindUnknownStrategy = "unknown_strategy"
	KindResolution      = "resolution"
	KindInvalidState    = "invalid_transition"
	KindInternal        = "internal"
)

const (
	maxRequestBodyBytes  = 8 << 20
	internalErrorMessage = "internal server error"
)

// badRequestError marks malformed input detected by a handler itself.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

// writeJSON sends v with the given status.
func writeJSON(logger *slog.Logger, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

// writeError maps err onto a status code and an api.ErrorResponse.
// Internal errors are logged and never echoed to the client.
func writeError(logger *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	status, resp := classify(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		logger.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(logger, w, status, resp)
}

func classify(err error) (int, api.ErrorResponse) {
	var (
		berr   *validation.BatchError
		terr   *models.TransitionError
		badReq *badRequestError
	)

	switch {
	case errors.As(err, &berr):
		details := make([]api.FieldError, 0, len(berr.Errors))
		for _, fe := range berr.Errors {
			details = append(details, api.FieldError{Index: fe.Index, Field: fe.Field, Message: fe.Message})
		}
		return http.StatusBadRequest, api.ErrorResponse{Error: KindValidation, Message: "invalid submission", Details: details}
	case errors.As(err, &badReq):
		return http.StatusBadRequest, api.ErrorResponse{Error: KindBadRequest, Message: badReq.msg}
	case errors.Is(err, models.ErrInvalidPolicy):
		return http.StatusBadRequest, api.ErrorResponse{Error: KindValidation, Message: err.Error()}
	case errors.Is(err, reconcile.ErrUnknownStrategy):
		return http.StatusBadRequest, api.ErrorResponse{Error: KindUnknownStrategy, Message: err.Error()}
	case errors.Is(err, reconcile.ErrForbidden):
		return http.StatusForbidden, api.ErrorResponse{Error: KindForbidden, Message: "operation not permitted"}
	case errors.Is(err, storage.ErrItemNotFound),
		errors.Is(err, storage.ErrConflictNotFound),
		errors.Is(err, storage.ErrSessionNotFound):
		return http.StatusNotFound, api.ErrorResponse{Error: KindNotFound, Message: err.Error()}
	case errors.Is(err, reconcile.ErrMergeUnsupported):
		return http.StatusConflict, api.ErrorResponse{Error: KindResolution, Message: err.Error()}
	case errors.As(err, &terr):
		return http.StatusConflict, api.ErrorResponse{Error: KindInvalidState, Message: terr.Error()}
	default:
		return http.StatusInternalServerError, api.ErrorResponse{Error: KindInternal, Message: internalErrorMessage}
	}
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v
// untouched when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

// actorFrom returns the authenticated actor or writes 401.
func actorFrom(logger *slog.Logger, w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, ok := GetActor(r.Context())
	if !ok {
		logger.Error("Actor not found in context", "path", r.URL.Path)
		writeJSON(logger, w, http.StatusUnauthorized, api.ErrorResponse{Error: KindUnauthorized, Message: "missing credentials"})
		return models.Actor{}, false
	}
	return actor, true
}
