package forms

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/formbase/internal/function"
	"github.com/pitabwire/formbase/model"
)

// ordersHarness builds an orders form with a customer text column and an
// integer amount column carrying a default.
func ordersHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t)
	h.createForm(t, "tenant-a", "orders")
	h.addColumn(t, "tenant-a", "orders", map[string]model.Value{
		"identifier":  model.String("customer"),
		"column_type": model.String("text"),
		"required":    model.Bool(true),
	})
	h.addColumn(t, "tenant-a", "orders", map[string]model.Value{
		"identifier":    model.String("amount"),
		"column_type":   model.String("integer"),
		"default_value": model.String("0"),
	})
	return h
}

func (h *harness) addRecord(t *testing.T, space, form string,
	input map[string]model.Value, uploads ...function.Upload) int64 {
	t.Helper()
	input["form"] = model.String(form)
	resp, err := h.exec(t, http.MethodPost, "/api/forms/data/add", space, input, uploads...)
	require.NoError(t, err)
	return payloadID(t, resp)
}

func TestRecordLifecycle(t *testing.T) {
	h := ordersHarness(t)

	id := h.addRecord(t, "tenant-a", "orders", map[string]model.Value{
		"customer": model.String("alice"),
		"amount":   model.Int(42),
	})

	// Read by id.
	resp, err := h.exec(t, http.MethodGet, "/api/forms/data/read/id", "tenant-a",
		map[string]model.Value{"form": model.String("orders"), "id": model.Int(id)})
	require.NoError(t, err)
	payload := resp.Payload.(map[string]any)
	records := payload["data"].([]map[string]any)
	require.Len(t, records, 1)
	assert.Equal(t, "alice", records[0]["customer"])
	assert.Equal(t, int64(42), records[0]["amount"])
	assert.NotEmpty(t, payload["columns_meta"])

	// Modify.
	_, err = h.exec(t, http.MethodPut, "/api/forms/data/modify", "tenant-a",
		map[string]model.Value{
			"form":     model.String("orders"),
			"id":       model.Int(id),
			"customer": model.String("bob"),
			"amount":   model.Int(7),
		})
	require.NoError(t, err)

	// Delete, then the list is empty.
	_, err = h.exec(t, http.MethodDelete, "/api/forms/data/delete", "tenant-a",
		map[string]model.Value{"form": model.String("orders"), "id": model.Int(id)})
	require.NoError(t, err)

	resp, err = h.exec(t, http.MethodGet, "/api/forms/data/read", "tenant-a",
		map[string]model.Value{"form": model.String("orders")})
	require.NoError(t, err)
	assert.Empty(t, resp.Payload.(map[string]any)["data"].([]map[string]any))

	// Reading the deleted id is an empty result set, not an error.
	resp, err = h.exec(t, http.MethodGet, "/api/forms/data/read/id", "tenant-a",
		map[string]model.Value{"form": model.String("orders"), "id": model.Int(id)})
	require.NoError(t, err)
	assert.Empty(t, resp.Payload.(map[string]any)["data"].([]map[string]any))

	// Deleting again is not an error.
	resp, err = h.exec(t, http.MethodDelete, "/api/forms/data/delete", "tenant-a",
		map[string]model.Value{"form": model.String("orders"), "id": model.Int(id)})
	require.NoError(t, err)
	data := resp.Payload.(map[string]any)["data"].(map[string]any)
	assert.Equal(t, int64(0), data["rows_affected"])
}

func TestRecordAddAppliesDefaults(t *testing.T) {
	h := ordersHarness(t)

	id := h.addRecord(t, "tenant-a", "orders", map[string]model.Value{
		"customer": model.String("alice"),
	})

	resp, err := h.exec(t, http.MethodGet, "/api/forms/data/read/id", "tenant-a",
		map[string]model.Value{"form": model.String("orders"), "id": model.Int(id)})
	require.NoError(t, err)
	records := resp.Payload.(map[string]any)["data"].([]map[string]any)
	assert.Equal(t, int64(0), records[0]["amount"],
		"the declared default fills the omitted column")
}

func TestRecordAddValidation(t *testing.T) {
	h := ordersHarness(t)

	// Required column empty.
	_, err := h.exec(t, http.MethodPost, "/api/forms/data/add", "tenant-a",
		map[string]model.Value{"form": model.String("orders")})
	assert.Equal(t, model.ErrValidation, envelopeCode(t, err))

	// Wrong type.
	_, err = h.exec(t, http.MethodPost, "/api/forms/data/add", "tenant-a",
		map[string]model.Value{
			"form":     model.String("orders"),
			"customer": model.String("alice"),
			"amount":   model.String("lots"),
		})
	assert.Equal(t, model.ErrValidation, envelopeCode(t, err))
}

func TestRecordAddZeroColumns(t *testing.T) {
	h := newHarness(t)
	h.createForm(t, "tenant-a", "empty-form")

	_, err := h.exec(t, http.MethodPost, "/api/forms/data/add", "tenant-a",
		map[string]model.Value{"form": model.String("empty-form")})
	assert.Equal(t, model.ErrConfiguration, envelopeCode(t, err))
}

func TestRecordReadLinkDisplay(t *testing.T) {
	h := newHarness(t)
	customersID := h.createForm(t, "tenant-a", "customers")
	h.addColumn(t, "tenant-a", "customers", map[string]model.Value{
		"identifier":  model.String("name"),
		"column_type": model.String("text"),
	})
	h.createForm(t, "tenant-a", "orders")
	h.addColumn(t, "tenant-a", "orders", map[string]model.Value{
		"identifier":  model.String("customer"),
		"column_type": model.String("link"),
		"link_to":     model.Int(customersID),
	})

	customerID := h.addRecord(t, "tenant-a", "customers", map[string]model.Value{
		"name": model.String("alice"),
	})
	h.addRecord(t, "tenant-a", "orders", map[string]model.Value{
		"customer": model.Int(customerID),
	})

	resp, err := h.exec(t, http.MethodGet, "/api/forms/data/read", "tenant-a",
		map[string]model.Value{"form": model.String("orders")})
	require.NoError(t, err)
	records := resp.Payload.(map[string]any)["data"].([]map[string]any)
	require.Len(t, records, 1)
	assert.Equal(t, customerID, records[0]["customer"])
	assert.Equal(t, "alice", records[0]["customer_display"])
}

func fileHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t)
	h.createForm(t, "tenant-a", "docs")
	h.addColumn(t, "tenant-a", "docs", map[string]model.Value{
		"identifier":  model.String("title"),
		"column_type": model.String("text"),
	})
	h.addColumn(t, "tenant-a", "docs", map[string]model.Value{
		"identifier":  model.String("attachment"),
		"column_type": model.String("file"),
	})
	return h
}

func storedFile(t *testing.T, h *harness, id int64) string {
	t.Helper()
	resp, err := h.exec(t, http.MethodGet, "/api/forms/data/read/id", "tenant-a",
		map[string]model.Value{"form": model.String("docs"), "id": model.Int(id)})
	require.NoError(t, err)
	records := resp.Payload.(map[string]any)["data"].([]map[string]any)
	require.Len(t, records, 1)
	name, _ := records[0]["attachment"].(string)
	return name
}

func TestRecordFileLifecycle(t *testing.T) {
	h := fileHarness(t)

	id := h.addRecord(t, "tenant-a", "docs",
		map[string]model.Value{"title": model.String("notes")},
		function.Upload{Field: "attachment", Filename: "notes.txt",
			Content: strings.NewReader("first version")})

	first := storedFile(t, h, id)
	require.NotEmpty(t, first)

	// Download.
	resp, err := h.exec(t, http.MethodGet, "/api/forms/data/file/read", "tenant-a",
		map[string]model.Value{"form": model.String("docs"), "file": model.String(first)})
	require.NoError(t, err)
	require.NotNil(t, resp.File)
	body, err := io.ReadAll(resp.File.Content)
	require.NoError(t, err)
	resp.File.Content.Close()
	assert.Equal(t, "first version", string(body))
	assert.Equal(t, "text/plain; charset=utf-8", resp.File.ContentType)

	// Replace: the old file disappears, the stored name changes.
	_, err = h.exec(t, http.MethodPut, "/api/forms/data/modify", "tenant-a",
		map[string]model.Value{
			"form":  model.String("docs"),
			"id":    model.Int(id),
			"title": model.String("notes"),
		},
		function.Upload{Field: "attachment", Filename: "notes.txt",
			Content: strings.NewReader("second version")})
	require.NoError(t, err)

	second := storedFile(t, h, id)
	require.NotEmpty(t, second)
	assert.NotEqual(t, first, second)

	_, err = h.exec(t, http.MethodGet, "/api/forms/data/file/read", "tenant-a",
		map[string]model.Value{"form": model.String("docs"), "file": model.String(first)})
	assert.Equal(t, model.ErrNotFound, envelopeCode(t, err))

	// Modify without an upload leaves the file column untouched.
	_, err = h.exec(t, http.MethodPut, "/api/forms/data/modify", "tenant-a",
		map[string]model.Value{
			"form":  model.String("docs"),
			"id":    model.Int(id),
			"title": model.String("renamed"),
		})
	require.NoError(t, err)
	assert.Equal(t, second, storedFile(t, h, id))

	// Delete removes the row and the stored file.
	_, err = h.exec(t, http.MethodDelete, "/api/forms/data/delete", "tenant-a",
		map[string]model.Value{"form": model.String("docs"), "id": model.Int(id)})
	require.NoError(t, err)

	_, err = h.exec(t, http.MethodGet, "/api/forms/data/file/read", "tenant-a",
		map[string]model.Value{"form": model.String("docs"), "file": model.String(second)})
	assert.Equal(t, model.ErrNotFound, envelopeCode(t, err))
}

func TestRecordFileReadRejectsTraversal(t *testing.T) {
	h := fileHarness(t)

	_, err := h.exec(t, http.MethodGet, "/api/forms/data/file/read", "tenant-a",
		map[string]model.Value{
			"form": model.String("docs"),
			"file": model.String("../../../etc/passwd"),
		})
	assert.Equal(t, model.ErrBadRequest, envelopeCode(t, err))
}

func TestRecordSpaceIsolation(t *testing.T) {
	h := ordersHarness(t)
	id := h.addRecord(t, "tenant-a", "orders", map[string]model.Value{
		"customer": model.String("alice"),
	})

	_, err := h.exec(t, http.MethodGet, "/api/forms/data/read/id", "tenant-b",
		map[string]model.Value{"form": model.String("orders"), "id": model.Int(id)})
	assert.Equal(t, model.ErrNotFound, envelopeCode(t, err))
}
