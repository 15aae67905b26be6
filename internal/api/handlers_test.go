package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chat2doc/chat2doc/internal/artifact"
	"github.com/chat2doc/chat2doc/internal/conversation"
	"github.com/chat2doc/chat2doc/internal/pipeline"
	"github.com/chat2doc/chat2doc/internal/storage"
	"github.com/chat2doc/chat2doc/internal/tracker"
)

const testToken = "test-token"

const chatgptExport = `{
	"title": "Trip planning",
	"mapping": {
		"root": {"message": null, "parent": null, "children": ["n1"]},
		"n1": {
			"message": {"author": {"role": "user"}, "content": {"content_type": "text", "parts": ["Plan a trip to Lisbon"]}, "create_time": 1700000000.0},
			"parent": "root", "children": ["n2"]
		},
		"n2": {
			"message": {"author": {"role": "assistant"}, "content": {"content_type": "text", "parts": ["Sure, here is a plan."]}, "create_time": 1700000060.5},
			"parent": "n1", "children": []
		}
	}
}`

type mockSummarizer struct {
	summarizeFn func(ctx context.Context, conv *conversation.Conversation) (string, error)
}

func (m *mockSummarizer) Summarize(ctx context.Context, conv *conversation.Conversation) (string, error) {
	return m.summarizeFn(ctx, conv)
}

func newTestDeps(t *testing.T) AppDeps {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	artifacts, err := artifact.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	tr := tracker.New(store, artifacts)

	return AppDeps{
		Coordinator: pipeline.New(tr, store, artifacts, nil),
		Tracker:     tr,
		Store:       store,
		Artifacts:   artifacts,
		Token:       testToken,
	}
}

func doRequest(t *testing.T, handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func multipartUpload(t *testing.T, userID, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("user_id", userID); err != nil {
		t.Fatalf("writing field: %v", err)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	fmt.Fprint(fw, content)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func submitTestFile(t *testing.T, handler http.Handler, userID, filename, content string) storage.Conversion {
	t.Helper()
	body, contentType := multipartUpload(t, userID, filename, content)
	req := httptest.NewRequest(http.MethodPost, "/conversions", body)
	req.Header.Set("Content-Type", contentType)
	rec := doRequest(t, handler, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d: %s", rec.Code, rec.Body.String())
	}
	var job storage.Conversion
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return job
}

func TestAuth_MissingToken(t *testing.T) {
	handler := NewAppHandler(newTestDeps(t))

	req := httptest.NewRequest(http.MethodGet, "/conversions?user_id=u1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestSubmitFile_Completed(t *testing.T) {
	handler := NewAppHandler(newTestDeps(t))

	job := submitTestFile(t, handler, "u1", "export.json", chatgptExport)
	if job.Status != storage.StatusCompleted {
		t.Fatalf("Status = %q (%s)", job.Status, job.Error)
	}
	if job.Platform != "chatgpt" || job.MessageCount != 2 {
		t.Errorf("record = %+v", job)
	}

	rec := doRequest(t, handler, httptest.NewRequest(http.MethodGet, "/conversions/"+job.ID, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}
}

func TestSubmitFile_UnsupportedExtension(t *testing.T) {
	handler := NewAppHandler(newTestDeps(t))

	body, contentType := multipartUpload(t, "u1", "export.xyz", "data")
	req := httptest.NewRequest(http.MethodPost, "/conversions", body)
	req.Header.Set("Content-Type", contentType)
	rec := doRequest(t, handler, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422: %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitURL_FetchFailureReturnsFailedRecord(t *testing.T) {
	handler := NewAppHandler(newTestDeps(t))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	payload, _ := json.Marshal(submitURLRequest{UserID: "u1", URL: url})
	req := httptest.NewRequest(http.MethodPost, "/conversions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := doRequest(t, handler, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var job storage.Conversion
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if job.Status != storage.StatusFailed || job.ErrorCategory != pipeline.CategoryFetchError {
		t.Errorf("record = %q/%q", job.Status, job.ErrorCategory)
	}
}

func TestListConversions(t *testing.T) {
	handler := NewAppHandler(newTestDeps(t))

	rec := doRequest(t, handler, httptest.NewRequest(http.MethodGet, "/conversions", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing user_id status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, handler, httptest.NewRequest(http.MethodGet, "/conversions?user_id=nobody", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty list body = %q", rec.Body.String())
	}

	submitTestFile(t, handler, "u1", "export.json", chatgptExport)
	rec = doRequest(t, handler, httptest.NewRequest(http.MethodGet, "/conversions?user_id=u1", nil))
	var list []storage.Conversion
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Errorf("list = %v, err = %v", list, err)
	}
}

func TestDownloadArtifacts(t *testing.T) {
	handler := NewAppHandler(newTestDeps(t))
	job := submitTestFile(t, handler, "u1", "export.json", chatgptExport)

	rec := doRequest(t, handler, httptest.NewRequest(http.MethodGet, "/conversions/"+job.ID+"/files/pdf", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("pdf status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
		t.Error("body is not a pdf")
	}

	rec = doRequest(t, handler, httptest.NewRequest(http.MethodGet, "/conversions/"+job.ID+"/files/txt", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad kind status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, handler, httptest.NewRequest(http.MethodGet, "/conversions/missing/files/pdf", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing id status = %d, want 404", rec.Code)
	}
}

func TestDeleteConversion_Idempotent(t *testing.T) {
	handler := NewAppHandler(newTestDeps(t))
	job := submitTestFile(t, handler, "u1", "export.json", chatgptExport)

	for i := 0; i < 2; i++ {
		rec := doRequest(t, handler, httptest.NewRequest(http.MethodDelete, "/conversions/"+job.ID, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("delete #%d status = %d", i+1, rec.Code)
		}
	}
	rec := doRequest(t, handler, httptest.NewRequest(http.MethodGet, "/conversions/"+job.ID, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestEvents_TerminalJobClosesStream(t *testing.T) {
	handler := NewAppHandler(newTestDeps(t))
	job := submitTestFile(t, handler, "u1", "export.json", chatgptExport)

	rec := doRequest(t, handler, httptest.NewRequest(http.MethodGet, "/conversions/"+job.ID+"/events", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), `"status":"completed"`) {
		t.Errorf("stream body = %q", rec.Body.String())
	}
}

func TestUserProfileEndpoints(t *testing.T) {
	deps := newTestDeps(t)
	handler := NewAppHandler(deps)
	submitTestFile(t, handler, "u1", "export.json", chatgptExport)

	rec := doRequest(t, handler, httptest.NewRequest(http.MethodGet, "/users/u1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get user status = %d", rec.Code)
	}
	var u storage.User
	if err := json.Unmarshal(rec.Body.Bytes(), &u); err != nil {
		t.Fatalf("decoding user: %v", err)
	}
	if u.ConversionCount != 1 || u.Subscription != storage.TierFree {
		t.Errorf("user = %+v", u)
	}

	req := httptest.NewRequest(http.MethodPatch, "/users/u1/preferences",
		strings.NewReader(`{"default_format":"docx","auto_delete":true}`))
	if rec = doRequest(t, handler, req); rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d: %s", rec.Code, rec.Body.String())
	}

	u2, err := deps.Store.GetUser("u1")
	if err != nil || u2.DefaultFormat != "docx" || !u2.AutoDelete {
		t.Errorf("updated user = %+v, err = %v", u2, err)
	}

	req = httptest.NewRequest(http.MethodPatch, "/users/u1/preferences",
		strings.NewReader(`{"default_format":"odt"}`))
	if rec = doRequest(t, handler, req); rec.Code != http.StatusBadRequest {
		t.Errorf("bad format status = %d, want 400", rec.Code)
	}
}

func TestSummary(t *testing.T) {
	deps := newTestDeps(t)
	deps.Summarizer = &mockSummarizer{
		summarizeFn: func(_ context.Context, conv *conversation.Conversation) (string, error) {
			if conv.MessageCount() != 2 {
				t.Errorf("summarizer got %d messages", conv.MessageCount())
			}
			return "A Lisbon trip was planned.", nil
		},
	}
	handler := NewAppHandler(deps)
	job := submitTestFile(t, handler, "u1", "export.json", chatgptExport)

	rec := doRequest(t, handler, httptest.NewRequest(http.MethodPost, "/conversions/"+job.ID+"/summary", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["summary"] != "A Lisbon trip was planned." {
		t.Errorf("summary = %q", resp["summary"])
	}
}

func TestSummary_NotConfigured(t *testing.T) {
	handler := NewAppHandler(newTestDeps(t))
	job := submitTestFile(t, handler, "u1", "export.json", chatgptExport)

	rec := doRequest(t, handler, httptest.NewRequest(http.MethodPost, "/conversions/"+job.ID+"/summary", nil))
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

func TestHealth_Unauthenticated(t *testing.T) {
	handler := NewHealthHandler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("body = %q", rec.Body.String())
	}
}
