// Package integration provides a reusable test harness for end-to-end
// testing of the formbase server. It starts a full HTTP server over an
// in-memory SQLite database with a temporary upload directory and a test
// JWT signer.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/pitabwire/formbase/internal/config"
	"github.com/pitabwire/formbase/internal/files"
	"github.com/pitabwire/formbase/internal/forms"
	"github.com/pitabwire/formbase/internal/function"
	"github.com/pitabwire/formbase/internal/observability"
	"github.com/pitabwire/formbase/internal/schema"
	"github.com/pitabwire/formbase/internal/store"
	"github.com/pitabwire/formbase/internal/transport"
)

// TestHarness encapsulates a fully wired formbase instance.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server

	Store    *store.Store
	Files    *files.Manager
	Registry *function.Registry
	cfg      *config.Config
}

// NewTestHarness creates a complete server over an in-memory database.
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()

	cfg := config.Defaults()
	cfg.Identity = config.IdentityConfig{
		Issuer:       testIssuer,
		Audience:     testAudience,
		SigningKey:   testSigningKey,
		SpaceClaim:   "space_id",
		SubjectClaim: "sub",
	}
	cfg.Uploads.Directory = t.TempDir()
	cfg.Uploads.MaxBytes = 1 << 20

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	fm := files.NewManager(cfg.Uploads.Directory, cfg.Uploads.MaxBytes)
	svc := forms.NewService(st.DB(), schema.NewResolver(st.DB()), fm, zap.NewNop(), nil)
	reg := function.NewRegistry()
	svc.Register(reg)

	router := transport.NewRouter(transport.Dependencies{
		Config:   cfg,
		Log:      zap.NewNop(),
		DB:       st.DB(),
		Registry: reg,
		Ready: observability.ReadinessChecks{
			DefinitionsLoaded: func() bool { return len(reg.Definitions()) > 0 },
			Store:             st,
			UploadsDir:        fm,
		},
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &TestHarness{
		t:        t,
		server:   server,
		Store:    st,
		Files:    fm,
		Registry: reg,
		cfg:      cfg,
	}
}

// URL returns the base URL of the running server.
func (h *TestHarness) URL() string { return h.server.URL }

// Do performs a request with the given token. An empty token omits the
// Authorization header.
func (h *TestHarness) Do(method, path, token string, body io.Reader, contentType string) *http.Response {
	h.t.Helper()
	req, err := http.NewRequest(method, h.server.URL+path, body)
	if err != nil {
		h.t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := h.server.Client().Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.Do(http.MethodGet, path, token, nil, "")
}

// JSON performs an authenticated request with a JSON body.
func (h *TestHarness) JSON(method, path, token string, input map[string]any) *http.Response {
	h.t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(input); err != nil {
		h.t.Fatalf("encode body: %v", err)
	}
	return h.Do(method, path, token, &buf, "application/json")
}

// FileField describes one upload in a multipart request.
type FileField struct {
	Field    string
	Filename string
	Content  []byte
}

// Multipart performs an authenticated multipart POST or PUT.
func (h *TestHarness) Multipart(method, path, token string, fields map[string]string, uploads ...FileField) *http.Response {
	h.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			h.t.Fatalf("write field %s: %v", k, err)
		}
	}
	for _, u := range uploads {
		fw, err := mw.CreateFormFile(u.Field, u.Filename)
		if err != nil {
			h.t.Fatalf("create file part %s: %v", u.Field, err)
		}
		if _, err := fw.Write(u.Content); err != nil {
			h.t.Fatalf("write file part %s: %v", u.Field, err)
		}
	}
	if err := mw.Close(); err != nil {
		h.t.Fatalf("close multipart writer: %v", err)
	}
	return h.Do(method, path, token, &buf, mw.FormDataContentType())
}

// AssertStatus fails the test when the response status differs, including
// the body in the failure message.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, want, body)
	}
}

// ParseJSON decodes the response body into out and closes it.
func (h *TestHarness) ParseJSON(resp *http.Response, out any) {
	h.t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		h.t.Fatalf("decode response: %v", err)
	}
}

// ErrorCode returns the error envelope code of a failed response.
func (h *TestHarness) ErrorCode(resp *http.Response) string {
	h.t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	h.ParseJSON(resp, &body)
	return body.Error.Code
}

// CreateForm creates a form and returns its id.
func (h *TestHarness) CreateForm(t *testing.T, token, identifier string) int64 {
	t.Helper()
	resp := h.JSON(http.MethodPost, "/api/forms/add", token, map[string]any{
		"identifier": identifier,
		"name":       identifier,
	})
	h.AssertStatus(t, resp, http.StatusOK)
	var body struct {
		Data struct {
			ID int64 `json:"id"`
		} `json:"data"`
	}
	h.ParseJSON(resp, &body)
	if body.Data.ID == 0 {
		t.Fatalf("create form %s: no id in response", identifier)
	}
	return body.Data.ID
}

// AddColumn adds a column to a form.
func (h *TestHarness) AddColumn(t *testing.T, token, form, identifier, columnType string, extra map[string]any) {
	t.Helper()
	input := map[string]any{
		"form":        form,
		"identifier":  identifier,
		"column_type": columnType,
	}
	for k, v := range extra {
		input[k] = v
	}
	resp := h.JSON(http.MethodPost, "/api/forms/columns/add", token, input)
	h.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func assertEqual(t *testing.T, got, want any, label string) {
	t.Helper()
	if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
		t.Errorf("%s = %v, want %v", label, got, want)
	}
}
