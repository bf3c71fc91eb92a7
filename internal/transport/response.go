// Package transport contains the HTTP router, middleware chain, and the
// generic handler that turns registered endpoint definitions into routes.
package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/pitabwire/formbase/model"
)

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrBadRequest:    http.StatusBadRequest,
	model.ErrUnauthorized:  http.StatusUnauthorized,
	model.ErrNotFound:      http.StatusNotFound,
	model.ErrValidation:    http.StatusBadRequest,
	model.ErrIntegrity:     http.StatusBadRequest,
	model.ErrConfiguration: http.StatusBadRequest,
	model.ErrInternal:      http.StatusInternalServerError,
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteError writes an ErrorEnvelope as a JSON response with the correct
// HTTP status code. A raw error is never exposed: it is logged with its
// correlation id and replaced by an opaque INTERNAL_ERROR envelope.
func WriteError(w http.ResponseWriter, log *zap.Logger, err error) {
	var ee *model.ErrorEnvelope
	if !errors.As(err, &ee) {
		ee = model.NewInternalError()
		if log != nil {
			log.Error("internal error",
				zap.String("correlation_id", ee.CorrelationID),
				zap.Error(err),
			)
		}
	}

	status := statusForCode[ee.Code]
	if status == 0 {
		status = http.StatusInternalServerError
	}

	type errorResponse struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	WriteJSON(w, status, errorResponse{Error: ee})
}
