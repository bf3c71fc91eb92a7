package integration

import (
	"fmt"
	"net/http"
	"testing"
)

// Exercises the full metadata-to-data flow: a form is declared, columns
// are added, records flow through the dynamically created table, and the
// form delete tears everything down.
func TestFormsLifecycle(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(SpaceClaims("acme"))

	h.CreateForm(t, token, "orders")
	h.AddColumn(t, token, "orders", "customer", "text", map[string]any{"required": true})
	h.AddColumn(t, token, "orders", "amount", "integer", map[string]any{"default_value": "0"})

	// Add a record supplying only the required column.
	resp := h.JSON(http.MethodPost, "/api/forms/data/add", token, map[string]any{
		"form":     "orders",
		"customer": "alice",
	})
	h.AssertStatus(t, resp, http.StatusOK)
	var created struct {
		Data struct {
			ID int64 `json:"id"`
		} `json:"data"`
	}
	h.ParseJSON(resp, &created)
	if created.Data.ID == 0 {
		t.Fatal("expected a record id")
	}

	// The default rewrote the absent amount.
	resp = h.GET(fmt.Sprintf("/api/forms/data/read/id?form=orders&id=%d", created.Data.ID), token)
	h.AssertStatus(t, resp, http.StatusOK)
	var read struct {
		Data []map[string]any `json:"data"`
	}
	h.ParseJSON(resp, &read)
	if len(read.Data) != 1 {
		t.Fatalf("records = %d, want 1", len(read.Data))
	}
	assertEqual(t, read.Data[0]["customer"], "alice", "customer")
	assertEqual(t, read.Data[0]["amount"], 0, "amount")

	// Modify rewrites every data column.
	resp = h.JSON(http.MethodPut, "/api/forms/data/modify", token, map[string]any{
		"form":     "orders",
		"id":       created.Data.ID,
		"customer": "bob",
		"amount":   42,
	})
	h.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = h.GET(fmt.Sprintf("/api/forms/data/read/id?form=orders&id=%d", created.Data.ID), token)
	h.ParseJSON(resp, &read)
	assertEqual(t, read.Data[0]["customer"], "bob", "customer after modify")
	assertEqual(t, read.Data[0]["amount"], 42, "amount after modify")

	// Record delete is idempotent: the second call reports zero rows.
	resp = h.JSON(http.MethodDelete, "/api/forms/data/delete", token, map[string]any{
		"form": "orders",
		"id":   created.Data.ID,
	})
	h.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = h.JSON(http.MethodDelete, "/api/forms/data/delete", token, map[string]any{
		"form": "orders",
		"id":   created.Data.ID,
	})
	h.AssertStatus(t, resp, http.StatusOK)
	var deleted struct {
		Data struct {
			RowsAffected int64 `json:"rows_affected"`
		} `json:"data"`
	}
	h.ParseJSON(resp, &deleted)
	assertEqual(t, deleted.Data.RowsAffected, 0, "rows_affected on second delete")

	// Form delete removes the metadata; subsequent reads report NOT_FOUND.
	resp = h.JSON(http.MethodDelete, "/api/forms/delete", token, map[string]any{
		"form": "orders",
	})
	h.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = h.GET("/api/forms/data/read?form=orders", token)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("read after delete: status = %d, want 404", resp.StatusCode)
	}
	assertEqual(t, h.ErrorCode(resp), "NOT_FOUND", "error code")
}

func TestLinkColumnProjectsDisplayValue(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(SpaceClaims("acme"))

	customersID := h.CreateForm(t, token, "customers")
	h.AddColumn(t, token, "customers", "fullname", "text", map[string]any{"required": true})
	h.CreateForm(t, token, "invoices")
	h.AddColumn(t, token, "invoices", "customer", "link",
		map[string]any{"link_to": customersID})

	resp := h.JSON(http.MethodPost, "/api/forms/data/add", token, map[string]any{
		"form":     "customers",
		"fullname": "Ada Lovelace",
	})
	h.AssertStatus(t, resp, http.StatusOK)
	var created struct {
		Data struct {
			ID int64 `json:"id"`
		} `json:"data"`
	}
	h.ParseJSON(resp, &created)

	resp = h.JSON(http.MethodPost, "/api/forms/data/add", token, map[string]any{
		"form":     "invoices",
		"customer": created.Data.ID,
	})
	h.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = h.GET("/api/forms/data/read?form=invoices", token)
	h.AssertStatus(t, resp, http.StatusOK)
	var read struct {
		Data []map[string]any `json:"data"`
	}
	h.ParseJSON(resp, &read)
	if len(read.Data) != 1 {
		t.Fatalf("invoices = %d, want 1", len(read.Data))
	}
	assertEqual(t, read.Data[0]["customer_display"], "Ada Lovelace", "customer_display")
}

func TestFormValidationAndUniqueness(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(SpaceClaims("acme"))

	// Identifiers outside the allowed charset and length are rejected.
	for _, bad := range []string{"ab", "has space", "semi;colon", "ä-umlaut"} {
		resp := h.JSON(http.MethodPost, "/api/forms/add", token, map[string]any{
			"identifier": bad,
			"name":       "Bad",
		})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("identifier %q: status = %d, want 400", bad, resp.StatusCode)
		}
		assertEqual(t, h.ErrorCode(resp), "VALIDATION_ERROR", "error code for "+bad)
	}

	// Duplicate identifiers within a space are an integrity error.
	h.CreateForm(t, token, "orders")
	resp := h.JSON(http.MethodPost, "/api/forms/add", token, map[string]any{
		"identifier": "orders",
		"name":       "Orders again",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate form: status = %d, want 400", resp.StatusCode)
	}
	assertEqual(t, h.ErrorCode(resp), "INTEGRITY_ERROR", "duplicate error code")

	// The same identifier in another space is fine.
	other := h.GenerateToken(SpaceClaims("globex"))
	h.CreateForm(t, other, "orders")
}

func TestRecordAddRequiresStorableColumns(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(SpaceClaims("acme"))
	h.CreateForm(t, token, "bare")

	resp := h.JSON(http.MethodPost, "/api/forms/data/add", token, map[string]any{
		"form": "bare",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	assertEqual(t, h.ErrorCode(resp), "CONFIGURATION_ERROR", "error code")
}
