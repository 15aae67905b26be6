// Package api exposes the conversion service over HTTP (chi) and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/chat2doc/chat2doc/internal/conversation"
	"github.com/chat2doc/chat2doc/internal/detect"
	"github.com/chat2doc/chat2doc/internal/extract"
	"github.com/chat2doc/chat2doc/internal/pipeline"
	"github.com/chat2doc/chat2doc/internal/storage"
	"github.com/chat2doc/chat2doc/internal/tracker"
)

const maxUploadSize = 32 << 20 // matches the extractor's per-entry cap
const maxRequestBodySize = 1 << 20

// ArtifactReader abstracts artifact retrieval for downloads.
type ArtifactReader interface {
	Read(location string) ([]byte, error)
}

// Summarizer abstracts the optional insight add-on.
type Summarizer interface {
	Summarize(ctx context.Context, conv *conversation.Conversation) (string, error)
}

// AppDeps holds everything the HTTP surface needs.
type AppDeps struct {
	Coordinator *pipeline.Coordinator
	Tracker     *tracker.Tracker
	Store       *storage.Store
	Artifacts   ArtifactReader
	Summarizer  Summarizer // optional; nil disables summaries
	Token       string
}

// NewAppHandler returns the authenticated application API.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(BearerAuth(deps.Token))

	r.Post("/conversions", handleSubmit(deps))
	r.Get("/conversions", handleListConversions(deps))
	r.Get("/conversions/{id}", handleGetConversion(deps))
	r.Delete("/conversions/{id}", handleDeleteConversion(deps))
	r.Get("/conversions/{id}/files/{kind}", handleDownload(deps))
	r.Get("/conversions/{id}/events", handleEvents(deps))
	r.Post("/conversions/{id}/summary", handleSummary(deps))
	r.Get("/users/{uid}", handleGetUser(deps))
	r.Patch("/users/{uid}/preferences", handlePatchPreferences(deps))

	return r
}

// NewHealthHandler returns the unauthenticated health endpoint.
func NewHealthHandler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	return r
}

type submitURLRequest struct {
	UserID string `json:"user_id"`
	URL    string `json:"url"`
}

// handleSubmit accepts either a multipart upload (fields user_id and file) or
// a JSON body naming a share URL. The response is always the finalized job
// record; failures show up in its status, not as HTTP errors.
func handleSubmit(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			submitFile(deps, w, r)
			return
		}
		submitURL(deps, w, r)
	}
}

func submitFile(deps AppDeps, w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart body: %v", err)
		return
	}
	userID := r.FormValue("user_id")
	if userID == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "reading upload: %v", err)
		return
	}

	job, err := deps.Coordinator.SubmitFile(r.Context(), userID, header.Filename, data)
	writeSubmitResult(w, job, err)
}

func submitURL(deps AppDeps, w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req submitURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	if req.UserID == "" || req.URL == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id and url are required")
		return
	}

	job, err := deps.Coordinator.SubmitURL(r.Context(), req.UserID, req.URL)
	writeSubmitResult(w, job, err)
}

func writeSubmitResult(w http.ResponseWriter, job storage.Conversion, err error) {
	switch {
	case errors.Is(err, detect.ErrUnsupportedFormat):
		httpError(w, http.StatusUnprocessableEntity, "unsupported_format", "%v", err)
		return
	case errors.Is(err, pipeline.ErrUserBusy):
		httpError(w, http.StatusTooManyRequests, "rate_limit_error", "%v", err)
		return
	case err != nil:
		httpError(w, http.StatusInternalServerError, "api_error", "submission failed: %v", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(job)
}

func handleListConversions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}

		list, err := deps.Tracker.List(userID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list conversions: %v", err)
			return
		}
		if list == nil {
			list = []storage.Conversion{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(list)
	}
}

func handleGetConversion(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := deps.Tracker.Get(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "conversion not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get conversion: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(job)
	}
}

func handleDeleteConversion(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Tracker.Delete(chi.URLParam(r, "id")); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete conversion: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

func handleDownload(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		kind := chi.URLParam(r, "kind")

		job, err := deps.Tracker.Get(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "conversion not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get conversion: %v", err)
			return
		}

		var location, contentType string
		switch kind {
		case "pdf":
			location, contentType = job.PDFPath, "application/pdf"
		case "docx":
			location, contentType = job.DOCXPath,
				"application/vnd.openxmlformats-officedocument.wordprocessingml.document"
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "kind must be pdf or docx")
			return
		}
		if job.Status != storage.StatusCompleted || location == "" {
			httpError(w, http.StatusConflict, "not_ready", "conversion has no %s artifact", kind)
			return
		}

		data, err := deps.Artifacts.Read(location)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading artifact: %v", err)
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+"."+kind))
		w.Write(data)
	}
}

// handleEvents streams status transitions for a job as server-sent events,
// closing once the job reaches a terminal state.
func handleEvents(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		job, err := deps.Tracker.Get(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "conversion not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get conversion: %v", err)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		ch, cancel := deps.Tracker.Subscribe(id)
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		writeEvent := func(status storage.Status) {
			fmt.Fprintf(w, "data: {\"status\":%q}\n\n", status)
			flusher.Flush()
		}

		writeEvent(job.Status)
		if job.Status.Terminal() {
			return
		}
		for {
			select {
			case status, open := <-ch:
				if !open {
					return
				}
				writeEvent(status)
				if status.Terminal() {
					return
				}
			case <-r.Context().Done():
				return
			}
		}
	}
}

// handleSummary re-extracts the stored input of a completed conversion and
// returns a model-generated summary.
func handleSummary(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Summarizer == nil {
			httpError(w, http.StatusNotImplemented, "not_configured", "summaries are not enabled")
			return
		}

		job, err := deps.Tracker.Get(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "conversion not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get conversion: %v", err)
			return
		}

		conv, err := conversationFor(deps, job)
		if err != nil {
			httpError(w, http.StatusConflict, "not_ready", "cannot reload conversation: %v", err)
			return
		}

		summary, err := deps.Summarizer.Summarize(r.Context(), conv)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "summarization failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"conversion_id": job.ID,
			"summary":       summary,
		})
	}
}

// conversationFor reloads the normalized conversation from a job's stored
// input. URL-sourced jobs keep only the source link, which may have expired,
// so those are not reloadable here.
func conversationFor(deps AppDeps, job storage.Conversion) (*conversation.Conversation, error) {
	if strings.HasPrefix(job.InputLocation, "http://") || strings.HasPrefix(job.InputLocation, "https://") {
		return nil, errors.New("input was fetched from a url and is not stored")
	}

	data, err := deps.Artifacts.Read(job.InputLocation)
	if err != nil {
		return nil, fmt.Errorf("reading stored input: %w", err)
	}

	res, err := detect.File(job.OriginalFilename, data)
	if err != nil {
		return nil, err
	}
	switch res.Kind {
	case detect.KindJSON:
		return extract.FromJSON(data)
	case detect.KindText:
		return extract.FromText(data)
	case detect.KindHTML:
		return extract.FromHTML(data)
	case detect.KindZip:
		conv, _, err := extract.FromZip(data)
		return conv, err
	default:
		return nil, detect.ErrUnsupportedFormat
	}
}

func handleGetUser(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := deps.Store.GetUser(chi.URLParam(r, "uid"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get user: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(u)
	}
}

type preferencesRequest struct {
	DefaultFormat *string `json:"default_format"`
	AutoDelete    *bool   `json:"auto_delete"`
}

func handlePatchPreferences(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := chi.URLParam(r, "uid")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req preferencesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		u, err := deps.Store.EnsureUser(uid)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load user: %v", err)
			return
		}

		format := u.DefaultFormat
		if req.DefaultFormat != nil {
			format = *req.DefaultFormat
			if format != "pdf" && format != "docx" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "default_format must be pdf or docx")
				return
			}
		}
		autoDelete := u.AutoDelete
		if req.AutoDelete != nil {
			autoDelete = *req.AutoDelete
		}

		if err := deps.Store.UpdateUserPreferences(uid, format, autoDelete); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update preferences: %v", err)
			return
		}

		u, err = deps.Store.GetUser(uid)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load user: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(u)
	}
}
