package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pitabwire/formbase/model"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) *model.ErrorEnvelope {
	t.Helper()
	var body struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return body.Error
}

func TestWriteErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    *model.ErrorEnvelope
		status int
	}{
		{"bad request", model.NewBadRequestError("nope"), http.StatusBadRequest},
		{"unauthorized", model.NewUnauthorizedError("nope"), http.StatusUnauthorized},
		{"not found", model.NewNotFoundError("nope"), http.StatusNotFound},
		{"validation", model.NewValidationError(model.FieldError{Field: "name", Code: model.FieldRequired}), http.StatusBadRequest},
		{"integrity", model.NewIntegrityError("duplicate"), http.StatusBadRequest},
		{"configuration", model.NewConfigurationError("no display column"), http.StatusBadRequest},
		{"internal", model.NewInternalError(), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, zap.NewNop(), tc.err)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.err.Code, decodeEnvelope(t, rec).Code)
		})
	}
}

func TestWriteErrorUnwrapsEnvelopes(t *testing.T) {
	rec := httptest.NewRecorder()
	wrapped := fmt.Errorf("looking up form: %w", model.NewNotFoundError("form not found"))
	WriteError(rec, zap.NewNop(), wrapped)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, model.ErrNotFound, decodeEnvelope(t, rec).Code)
}

func TestWriteErrorHidesRawErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, zap.NewNop(), errors.New("pq: table exploded"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	ee := decodeEnvelope(t, rec)
	assert.Equal(t, model.ErrInternal, ee.Code)
	assert.NotContains(t, rec.Body.String(), "exploded")
	assert.NotEmpty(t, ee.CorrelationID)
}

func TestWriteJSONSetsHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, map[string]string{"status": "OK"})

	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `{"status":"OK"}`, rec.Body.String())
}
