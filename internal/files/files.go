// Package files stores the uploads referenced by file and image columns.
// Files live under <root>/<space>/<form_id>/ with server-generated names;
// the stored column value is the generated name, never the client's.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/pitabwire/formbase/model"
)

// ErrNotFound reports a missing file as distinct from an I/O failure.
// Delete cascades treat the two differently: a missing file is already
// gone, an I/O failure aborts the cascade.
var ErrNotFound = errors.New("file not found")

// allowedExtensions is the upload whitelist, keyed by lowercase extension
// with the leading dot.
var allowedExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".svg": {},
	".pdf": {}, ".txt": {}, ".csv": {}, ".md": {},
	".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {},
	".zip": {},
}

// Manager saves, serves, and deletes uploaded files.
type Manager struct {
	root     string
	maxBytes int64
}

// NewManager returns a manager rooted at dir with the given per-file size
// limit in bytes.
func NewManager(dir string, maxBytes int64) *Manager {
	return &Manager{root: dir, maxBytes: maxBytes}
}

// Dir returns the directory holding one form's files.
func (m *Manager) Dir(spaceID string, formID int64) string {
	return filepath.Join(m.root, spaceID, fmt.Sprintf("%d", formID))
}

// Save streams an upload to disk and returns the generated file name and
// its size. The client name contributes only its extension; the stored name
// is a fresh uuid, so concurrent uploads of the same file never collide.
func (m *Manager) Save(spaceID string, formID int64, clientName string, r io.Reader) (string, int64, error) {
	if err := checkComponent(spaceID); err != nil {
		return "", 0, err
	}

	ext := strings.ToLower(filepath.Ext(filepath.Base(clientName)))
	if _, ok := allowedExtensions[ext]; !ok {
		return "", 0, model.NewValidationError(model.FieldError{
			Field:   "file",
			Code:    model.FieldInvalid,
			Message: fmt.Sprintf("file type %q is not allowed", ext),
		})
	}

	dir := m.Dir(spaceID, formID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("files: create directory: %w", err)
	}

	name := uuid.NewString() + ext
	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", 0, fmt.Errorf("files: create file: %w", err)
	}

	// One byte past the limit is enough to detect overflow without
	// buffering the upload.
	n, err := io.Copy(dst, io.LimitReader(r, m.maxBytes+1))
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(filepath.Join(dir, name))
		return "", 0, fmt.Errorf("files: write file: %w", err)
	}
	if n > m.maxBytes {
		os.Remove(filepath.Join(dir, name))
		return "", 0, model.NewValidationError(model.FieldError{
			Field:   "file",
			Code:    model.FieldInvalid,
			Message: fmt.Sprintf("file exceeds the maximum size of %d bytes", m.maxBytes),
		})
	}
	return name, n, nil
}

// Open returns the named file for download. Missing files report
// ErrNotFound.
func (m *Manager) Open(spaceID string, formID int64, name string) (*os.File, error) {
	path, err := m.resolve(spaceID, formID, name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("files: open: %w", err)
	}
	return f, nil
}

// Delete removes the named file. Missing files report ErrNotFound; any
// other failure is an I/O error the caller must treat as fatal.
func (m *Manager) Delete(spaceID string, formID int64, name string) error {
	path, err := m.resolve(spaceID, formID, name)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("files: delete: %w", err)
	}
	return nil
}

// RemoveAll deletes every file belonging to a form. Used when the form
// itself is deleted; an absent directory is not an error.
func (m *Manager) RemoveAll(spaceID string, formID int64) error {
	if err := checkComponent(spaceID); err != nil {
		return err
	}
	if err := os.RemoveAll(m.Dir(spaceID, formID)); err != nil {
		return fmt.Errorf("files: remove all: %w", err)
	}
	return nil
}

// HealthCheck verifies the upload root exists and is writable.
func (m *Manager) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return fmt.Errorf("files: upload root unavailable: %w", err)
	}
	probe, err := os.CreateTemp(m.root, ".probe-*")
	if err != nil {
		return fmt.Errorf("files: upload root not writable: %w", err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

// resolve validates path components and returns the absolute file path.
// Names containing separators or relative segments never reach the
// filesystem.
func (m *Manager) resolve(spaceID string, formID int64, name string) (string, error) {
	if err := checkComponent(spaceID); err != nil {
		return "", err
	}
	if err := checkComponent(name); err != nil {
		return "", err
	}
	return filepath.Join(m.Dir(spaceID, formID), name), nil
}

func checkComponent(s string) error {
	if s == "" || s == "." || s == ".." ||
		strings.ContainsAny(s, `/\`) || strings.Contains(s, "..") {
		return model.NewBadRequestError("invalid file path component")
	}
	return nil
}
