package server

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func multipartRequest(t *testing.T, server *testServer, path, userID string, fields map[string]string, fileName string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	if fileName != "" {
		part, err := writer.CreateFormFile(multipartFileField, fileName)
		if err != nil {
			t.Fatalf("failed to create file part: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("failed to write file part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	request := httptest.NewRequest(http.MethodPost, path, &body)
	request.Header.Set("Content-Type", writer.FormDataContentType())
	request.Header.Set("Authorization", "Bearer "+server.token(t, userID))
	recorder := httptest.NewRecorder()
	server.handler.ServeHTTP(recorder, request)
	return recorder
}

func TestCreateContributionFromJSON(t *testing.T) {
	server := newTestServer(t)

	recorder := server.do(t, http.MethodPost, "/contributions", "user-1", map[string]any{
		"title":             "Led migration",
		"what_happened":     "Moved billing to the new cluster",
		"why_it_mattered":   "Cut costs",
		"contribution_date": "2026-10-01",
		"categories":        []string{"Leadership / Ownership", "Leadership / Ownership"},
		"evidence_link":     map[string]string{"url": "https://example.com/doc", "label": "Design doc"},
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected created status, got %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = server.do(t, http.MethodGet, "/contributions", "user-1", nil)
	items, _ := decodeBody(t, recorder)["contributions"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected one contribution on the timeline, got %d", len(items))
	}
	item, _ := items[0].(map[string]any)
	categories, _ := item["categories"].([]any)
	if len(categories) != 1 {
		t.Fatalf("expected duplicate categories to collapse, got %v", categories)
	}
}

func TestCreateContributionRejectsFutureDate(t *testing.T) {
	server := newTestServer(t)

	recorder := server.do(t, http.MethodPost, "/contributions", "user-1", map[string]any{
		"title":             "Too early",
		"what_happened":     "x",
		"why_it_mattered":   "y",
		"contribution_date": "2026-10-19",
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request status, got %d", recorder.Code)
	}
	if payload := decodeBody(t, recorder); payload["status"] != "error" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestCreateContributionFromMultipartWithFile(t *testing.T) {
	server := newTestServer(t)

	recorder := multipartRequest(t, server, "/contributions", "user-1", map[string]string{
		"title":             "Shipped dashboard",
		"what_happened":     "Built it",
		"why_it_mattered":   "Visibility",
		"contribution_date": "2026-09-30",
		"evidence_url":      "https://example.com/dash",
	}, "screenshot.png", pngHeader)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected created status, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var fileCount, linkCount int64
	server.db.Table("files").Count(&fileCount)
	server.db.Table("evidence_links").Count(&linkCount)
	if fileCount != 1 || linkCount != 1 {
		t.Fatalf("expected one file and one link, got %d files and %d links", fileCount, linkCount)
	}
}

func TestAttachAndOpenFileIsOwnerOnly(t *testing.T) {
	server := newTestServer(t)
	id := server.seedContribution(t, "user-1", "With file", "2026-01-01")

	recorder := multipartRequest(t, server, "/contributions/"+strconv.FormatInt(id, 10)+"/files", "user-1", nil, "chart.png", pngHeader)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected created status, got %d: %s", recorder.Code, recorder.Body.String())
	}
	file, _ := decodeBody(t, recorder)["file"].(map[string]any)
	fileID := strconv.FormatInt(int64(file["id"].(float64)), 10)

	recorder = server.do(t, http.MethodGet, "/files/"+fileID, "user-1", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected owner to read file, got %d", recorder.Code)
	}
	if recorder.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected content type %q", recorder.Header().Get("Content-Type"))
	}
	if !bytes.Equal(recorder.Body.Bytes(), pngHeader) {
		t.Fatalf("unexpected file bytes")
	}

	recorder = server.do(t, http.MethodGet, "/files/"+fileID, "user-2", nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected not found for other users, got %d", recorder.Code)
	}

	recorder = multipartRequest(t, server, "/contributions/"+strconv.FormatInt(id, 10)+"/files", "user-1", nil, "notes.txt", []byte("plain text"))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected unsupported type to be rejected, got %d", recorder.Code)
	}

	recorder = multipartRequest(t, server, "/contributions/"+strconv.FormatInt(id, 10)+"/files", "user-1", nil, "big.png", bytes.Repeat([]byte{1}, 2048))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected oversized file to be rejected, got %d", recorder.Code)
	}
}

func TestAddLinkAndDeleteContribution(t *testing.T) {
	server := newTestServer(t)
	id := server.seedContribution(t, "user-1", "Linked", "2026-01-01")
	path := "/contributions/" + strconv.FormatInt(id, 10)

	recorder := server.do(t, http.MethodPost, path+"/links", "user-2", map[string]string{"url": "https://example.com"})
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected not found for foreign contribution, got %d", recorder.Code)
	}
	recorder = server.do(t, http.MethodPost, path+"/links", "user-1", map[string]string{"url": "ftp://example.com"})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected non-http url to be rejected, got %d", recorder.Code)
	}
	recorder = server.do(t, http.MethodPost, path+"/links", "user-1", map[string]string{"url": "https://example.com", "label": "PR"})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected created status, got %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = server.do(t, http.MethodDelete, path, "user-1", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok status on delete, got %d", recorder.Code)
	}
	recorder = server.do(t, http.MethodDelete, path, "user-1", nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected not found on repeated delete, got %d", recorder.Code)
	}
	recorder = server.do(t, http.MethodDelete, "/contributions/abc", "user-1", nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for malformed id, got %d", recorder.Code)
	}
}
