package transport

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/pitabwire/formbase/internal/function"
	"github.com/pitabwire/formbase/model"
)

// maxJSONBody bounds how much of a request body the JSON decoder reads.
const maxJSONBody = 1 << 20

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temp files. Upload size limits are enforced downstream when
// the file is persisted.
const multipartMemory = 10 << 20

// endpointHandler adapts one registered definition into an http.Handler.
// It collects the request's query parameters, JSON body, or multipart form
// into the invocation input, executes the definition, and writes the
// response.
func endpointHandler(def *function.Definition, db *sql.DB, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc := model.RequestContextFrom(r.Context())
		if rc == nil {
			WriteError(w, log, model.NewUnauthorizedError("Missing request identity"))
			return
		}

		inv := def.Invoke(db, *rc)

		cleanup, err := collectInput(r, inv)
		if cleanup != nil {
			defer cleanup()
		}
		if err != nil {
			WriteError(w, log, err)
			return
		}

		resp, err := def.Execute(r.Context(), inv)
		if err != nil {
			WriteError(w, log, err)
			return
		}
		writeResponse(w, log, resp)
	}
}

// collectInput populates the invocation's input and uploads from the
// request. Query parameters are always read; a JSON body or multipart form
// adds to them. The returned cleanup releases multipart resources and must
// run after the definition has executed.
func collectInput(r *http.Request, inv *function.Invocation) (cleanup func(), err error) {
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			inv.Input[k] = model.String(vs[0])
		}
	}

	ct := r.Header.Get("Content-Type")
	if ct == "" || r.Body == nil || r.ContentLength == 0 {
		return nil, nil
	}
	mediaType, _, mtErr := mime.ParseMediaType(ct)
	if mtErr != nil {
		return nil, model.NewBadRequestError("Malformed Content-Type header")
	}

	switch {
	case mediaType == "application/json":
		return nil, collectJSON(r, inv)
	case mediaType == "multipart/form-data":
		return collectMultipart(r, inv)
	default:
		return nil, model.NewBadRequestError(fmt.Sprintf("Unsupported content type %q", mediaType))
	}
}

func collectJSON(r *http.Request, inv *function.Invocation) error {
	var body map[string]any
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(&body); err != nil {
		return model.NewBadRequestError("Request body must be a JSON object")
	}
	for k, raw := range body {
		v, err := model.FromAny(raw)
		if err != nil {
			return model.NewValidationError(model.FieldError{
				Field:   k,
				Code:    model.FieldType,
				Message: fmt.Sprintf("Parameter %q has an unsupported value type", k),
			})
		}
		inv.Input[k] = v
	}
	return nil
}

func collectMultipart(r *http.Request, inv *function.Invocation) (func(), error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, model.NewBadRequestError("Malformed multipart form")
	}

	var open []multipart.File
	cleanup := func() {
		for _, f := range open {
			f.Close()
		}
		r.MultipartForm.RemoveAll()
	}

	for k, vs := range r.MultipartForm.Value {
		if len(vs) > 0 {
			inv.Input[k] = model.String(vs[0])
		}
	}
	for field, headers := range r.MultipartForm.File {
		if len(headers) == 0 {
			continue
		}
		f, err := headers[0].Open()
		if err != nil {
			return cleanup, model.NewBadRequestError(fmt.Sprintf("Unreadable upload for field %q", field))
		}
		open = append(open, f)
		inv.Uploads = append(inv.Uploads, function.Upload{
			Field:    field,
			Filename: headers[0].Filename,
			Content:  f,
		})
	}
	return cleanup, nil
}

// writeResponse serializes a handler response: a streamed file when one is
// attached, a JSON payload otherwise.
func writeResponse(w http.ResponseWriter, log *zap.Logger, resp *function.Response) {
	if resp.File != nil {
		defer resp.File.Content.Close()
		w.Header().Set("Content-Type", resp.File.ContentType)
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", sanitizeFilename(resp.File.Name)))
		w.WriteHeader(resp.Status)
		if _, err := io.Copy(w, resp.File.Content); err != nil {
			log.Warn("file stream interrupted", zap.Error(err))
		}
		return
	}
	WriteJSON(w, resp.Status, resp.Payload)
}

func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\"", "")
	name = strings.ReplaceAll(name, "\r", "")
	return strings.ReplaceAll(name, "\n", "")
}
