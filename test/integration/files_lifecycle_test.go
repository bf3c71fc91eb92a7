package integration

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
)

func uploadedName(t *testing.T, h *TestHarness, token string, id int64) string {
	t.Helper()
	resp := h.GET(fmt.Sprintf("/api/forms/data/read/id?form=docs&id=%d", id), token)
	h.AssertStatus(t, resp, http.StatusOK)
	var read struct {
		Data []map[string]any `json:"data"`
	}
	h.ParseJSON(resp, &read)
	if len(read.Data) != 1 {
		t.Fatalf("records = %d, want 1", len(read.Data))
	}
	name, _ := read.Data[0]["attachment"].(string)
	return name
}

func TestFileColumnLifecycle(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(SpaceClaims("acme"))

	h.CreateForm(t, token, "docs")
	h.AddColumn(t, token, "docs", "title", "text", map[string]any{"required": true})
	h.AddColumn(t, token, "docs", "attachment", "file", nil)

	// A record with an upload stores the file under a generated name.
	resp := h.Multipart(http.MethodPost, "/api/forms/data/add", token,
		map[string]string{"form": "docs", "title": "report"},
		FileField{Field: "attachment", Filename: "report.txt", Content: []byte("first version")},
	)
	h.AssertStatus(t, resp, http.StatusOK)
	var created struct {
		Data struct {
			ID int64 `json:"id"`
		} `json:"data"`
	}
	h.ParseJSON(resp, &created)

	name := uploadedName(t, h, token, created.Data.ID)
	if name == "" || name == "report.txt" {
		t.Fatalf("stored name = %q, want a generated name", name)
	}
	if !strings.HasSuffix(name, ".txt") {
		t.Fatalf("stored name %q does not keep the extension", name)
	}

	// The file streams back.
	resp = h.GET("/api/forms/data/file/read?form=docs&file="+name, token)
	h.AssertStatus(t, resp, http.StatusOK)
	content, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	assertEqual(t, string(content), "first version", "downloaded content")

	// Replacing the upload deletes the old file.
	resp = h.Multipart(http.MethodPut, "/api/forms/data/modify", token,
		map[string]string{"form": "docs", "id": fmt.Sprint(created.Data.ID), "title": "report"},
		FileField{Field: "attachment", Filename: "report-v2.txt", Content: []byte("second version")},
	)
	h.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	newName := uploadedName(t, h, token, created.Data.ID)
	if newName == name {
		t.Fatal("stored name unchanged after replacing the upload")
	}
	resp = h.GET("/api/forms/data/file/read?form=docs&file="+name, token)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("old file: status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	// Modifying without an upload leaves the stored file untouched.
	resp = h.Multipart(http.MethodPut, "/api/forms/data/modify", token,
		map[string]string{"form": "docs", "id": fmt.Sprint(created.Data.ID), "title": "renamed"})
	h.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	assertEqual(t, uploadedName(t, h, token, created.Data.ID), newName, "name after metadata-only modify")

	// Deleting the record removes its file.
	resp = h.JSON(http.MethodDelete, "/api/forms/data/delete", token, map[string]any{
		"form": "docs",
		"id":   created.Data.ID,
	})
	h.AssertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = h.GET("/api/forms/data/file/read?form=docs&file="+newName, token)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted file: status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDisallowedExtensionIsRejected(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(SpaceClaims("acme"))

	h.CreateForm(t, token, "docs")
	h.AddColumn(t, token, "docs", "title", "text", nil)
	h.AddColumn(t, token, "docs", "attachment", "file", nil)

	resp := h.Multipart(http.MethodPost, "/api/forms/data/add", token,
		map[string]string{"form": "docs", "title": "bad"},
		FileField{Field: "attachment", Filename: "payload.exe", Content: []byte{0x4d, 0x5a}},
	)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	assertEqual(t, h.ErrorCode(resp), "VALIDATION_ERROR", "error code")
}
